package service

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hajjtech/mawkib/internal/mawkib/metrics"
	"github.com/hajjtech/mawkib/internal/mawkib/sensor"
	"github.com/hajjtech/mawkib/internal/mawkib/store"
	"github.com/hajjtech/mawkib/internal/mawkib/types"
)

var (
	// ErrSessionConflict means a trip session is already active on this
	// terminal. One bus, one session.
	ErrSessionConflict = errors.New("trip session already active")

	// ErrInvalidTransition means the requested operation is not legal
	// from the session's current state.
	ErrInvalidTransition = errors.New("invalid trip state transition")

	// ErrPINRejected means the supervisor PIN did not verify.
	ErrPINRejected = errors.New("supervisor pin rejected")

	// ErrNoSession means no trip session exists on this terminal.
	ErrNoSession = errors.New("no active trip session")
)

// PINVerifier checks a supervisor PIN before boarding may open.
type PINVerifier interface {
	Verify(ctx context.Context, pin string) (bool, error)
}

// TripController owns the lifecycle of a single bus trip on this
// terminal. All state transitions happen under one mutex, so concurrent
// HTTP handlers observe the session atomically and double-admits cannot
// race past the manifest check.
type TripController struct {
	mu      sync.Mutex
	session *types.TripSession

	auth   *Authenticator
	recon  *Reconciler
	door   sensor.DoorSensor
	pins   PINVerifier
	trips  store.TripStore
	logger *log.Logger
	m      *metrics.Metrics

	windows     int // reconciliation windows before aborting on mismatch
	doorTimeout time.Duration
	doorPoll    time.Duration
}

type TripControllerConfig struct {
	HeadcountWindows int
	DoorTimeout      time.Duration
	DoorPollInterval time.Duration
}

func NewTripController(
	auth *Authenticator,
	recon *Reconciler,
	door sensor.DoorSensor,
	pins PINVerifier,
	trips store.TripStore,
	logger *log.Logger,
	m *metrics.Metrics,
	cfg TripControllerConfig,
) *TripController {
	if cfg.HeadcountWindows <= 0 {
		cfg.HeadcountWindows = 3
	}
	if cfg.DoorTimeout <= 0 {
		cfg.DoorTimeout = 60 * time.Second
	}
	if cfg.DoorPollInterval <= 0 {
		cfg.DoorPollInterval = 500 * time.Millisecond
	}
	return &TripController{
		auth:        auth,
		recon:       recon,
		door:        door,
		pins:        pins,
		trips:       trips,
		logger:      logger,
		m:           m,
		windows:     cfg.HeadcountWindows,
		doorTimeout: cfg.DoorTimeout,
		doorPoll:    cfg.DoorPollInterval,
	}
}

// OpenBoarding verifies the supervisor PIN and opens a fresh boarding
// session. Fails if a non-terminal session already exists.
func (c *TripController) OpenBoarding(ctx context.Context, pin string) (types.TripSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session != nil && !c.session.State.Terminal() {
		return c.snapshotLocked(), ErrSessionConflict
	}

	ok, err := c.pins.Verify(ctx, pin)
	if err != nil {
		return types.TripSession{}, err
	}
	if !ok {
		return types.TripSession{}, ErrPINRejected
	}

	c.session = &types.TripSession{
		TripID: uuid.NewString(),
		State:  types.TripPreVerification,
	}
	// PIN is the whole of pre-trip verification for now; move straight
	// to boarding.
	c.session.State = types.TripBoarding
	c.logger.Printf("trip %s: boarding open", c.session.TripID)

	return c.snapshotLocked(), nil
}

// Admit authenticates one pilgrim at the door and, on acceptance, adds
// them to the manifest. Re-presenting an already-admitted credential is
// idempotent and does not grow the manifest.
func (c *TripController) Admit(ctx context.Context, rawPayload string) (types.AuthAttempt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil {
		return types.AuthAttempt{}, ErrNoSession
	}
	if c.session.State != types.TripBoarding {
		return types.AuthAttempt{}, ErrInvalidTransition
	}

	attempt, err := c.auth.Authenticate(ctx, rawPayload)
	if err != nil {
		return attempt, err
	}
	if attempt.Outcome == types.OutcomeAccepted {
		if c.session.Manifest.Add(attempt.HajjID) {
			c.logger.Printf("trip %s: admitted %s (manifest %d)",
				c.session.TripID, attempt.HajjID, c.session.Manifest.Len())
		} else {
			c.logger.Printf("trip %s: %s re-presented, manifest unchanged", c.session.TripID, attempt.HajjID)
		}
	}
	return attempt, nil
}

// CloseBoarding freezes the manifest and moves the session to headcount
// reconciliation. No further admits are possible.
func (c *TripController) CloseBoarding(ctx context.Context) (types.TripSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil {
		return types.TripSession{}, ErrNoSession
	}
	if c.session.State != types.TripBoarding {
		return c.snapshotLocked(), ErrInvalidTransition
	}

	c.session.State = types.TripHeadcountPending
	c.logger.Printf("trip %s: boarding closed, manifest frozen at %d", c.session.TripID, c.session.Manifest.Len())
	return c.snapshotLocked(), nil
}

// StartTrip reconciles the camera headcount against the manifest and, on
// an exact match with the door closed, moves the trip in-progress.
//
// Aborts triggered here (headcount mismatch, door timeout, sensor
// failure) are normal outcomes: the aborted session is returned with a
// nil error so the caller can present the reason.
func (c *TripController) StartTrip(ctx context.Context) (types.TripSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil {
		return types.TripSession{}, ErrNoSession
	}
	if c.session.State != types.TripHeadcountPending {
		return c.snapshotLocked(), ErrInvalidTransition
	}

	expected := c.session.Manifest.Len()

	matched := false
	sampled := false
	for w := 0; w < c.windows; w++ {
		rec, err := c.recon.Reconcile(ctx, expected)
		if err != nil {
			if errors.Is(err, ErrInsufficientSamples) {
				c.logger.Printf("trip %s: window %d/%d %v", c.session.TripID, w+1, c.windows, err)
				continue
			}
			return c.snapshotLocked(), err
		}
		sampled = true
		c.session.HeadcountSamples = append(c.session.HeadcountSamples, rec.Samples...)
		count := rec.StableCount
		c.session.ReconciledCount = &count
		if rec.Matched {
			matched = true
			break
		}
		c.logger.Printf("trip %s: window %d/%d counted %d, expected %d",
			c.session.TripID, w+1, c.windows, rec.StableCount, expected)
	}

	if !sampled {
		return c.abortLocked(ctx, types.AbortSensorFailure), nil
	}
	if !matched {
		return c.abortLocked(ctx, types.AbortHeadcountMismatch), nil
	}

	closed, err := c.awaitDoorClosedLocked(ctx)
	if err != nil {
		return c.snapshotLocked(), err
	}
	if !closed {
		return c.abortLocked(ctx, types.AbortDoorTimeout), nil
	}
	c.session.DoorClosed = true

	c.session.StartTime = time.Now().UTC()
	c.session.State = types.TripInTrip
	c.logger.Printf("trip %s: departed with %d pilgrims", c.session.TripID, expected)
	return c.snapshotLocked(), nil
}

// EndTrip closes out an in-progress trip and persists its record. If
// persistence fails the session stays in completing so the close-out can
// be retried.
func (c *TripController) EndTrip(ctx context.Context) (types.TripSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil {
		return types.TripSession{}, ErrNoSession
	}
	switch c.session.State {
	case types.TripInTrip:
		c.session.State = types.TripCompleting
	case types.TripCompleting:
		// retry of a failed close-out
	default:
		return c.snapshotLocked(), ErrInvalidTransition
	}

	c.session.EndTime = time.Now().UTC()

	record := c.snapshotLocked()
	record.State = types.TripClosed
	if err := c.trips.Record(ctx, record); err != nil {
		c.session.EndTime = time.Time{}
		c.logger.Printf("trip %s: close-out persist failed: %v", c.session.TripID, err)
		return c.snapshotLocked(), err
	}

	c.session.State = types.TripClosed
	c.m.TripsFinalized.WithLabelValues("closed").Inc()
	c.logger.Printf("trip %s: closed", c.session.TripID)
	return c.snapshotLocked(), nil
}

// Abort force-terminates the current session for an operator-supplied
// reason. Legal from any non-terminal state.
func (c *TripController) Abort(ctx context.Context, reason types.AbortReason) (types.TripSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil {
		return types.TripSession{}, ErrNoSession
	}
	if c.session.State.Terminal() {
		return c.snapshotLocked(), ErrInvalidTransition
	}
	if reason == "" {
		reason = types.AbortAdministrative
	}
	return c.abortLocked(ctx, reason), nil
}

// Session returns a snapshot of the current session, or ErrNoSession.
func (c *TripController) Session() (types.TripSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return types.TripSession{}, ErrNoSession
	}
	return c.snapshotLocked(), nil
}

// ── internals ──────────────────────────────────────────────────────────

func (c *TripController) abortLocked(ctx context.Context, reason types.AbortReason) types.TripSession {
	c.session.EndTime = time.Now().UTC()
	c.session.State = types.TripAborted
	c.session.AbortReason = reason

	if err := c.trips.Record(ctx, c.snapshotLocked()); err != nil {
		// The abort stands either way; losing the record is logged.
		c.logger.Printf("trip %s: abort record persist failed: %v", c.session.TripID, err)
	}
	c.m.TripsFinalized.WithLabelValues(string(reason)).Inc()
	c.logger.Printf("trip %s: aborted (%s)", c.session.TripID, reason)
	return c.snapshotLocked()
}

// awaitDoorClosedLocked polls the door sensor until it reads closed or
// the timeout lapses. Poll errors count as open readings.
func (c *TripController) awaitDoorClosedLocked(ctx context.Context) (bool, error) {
	deadline := time.Now().Add(c.doorTimeout)
	for {
		closed, err := c.door.Closed(ctx)
		if err != nil {
			c.logger.Printf("trip %s: door sensor read failed: %v", c.session.TripID, err)
		} else if closed {
			return true, nil
		}
		if time.Now().After(deadline) {
			return false, nil
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(c.doorPoll):
		}
	}
}

func (c *TripController) snapshotLocked() types.TripSession {
	s := *c.session
	s.Manifest = c.session.Manifest.Clone()
	if c.session.HeadcountSamples != nil {
		s.HeadcountSamples = append([]int(nil), c.session.HeadcountSamples...)
	}
	return s
}
