package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/hajjtech/mawkib/internal/mawkib/codec"
	"github.com/hajjtech/mawkib/internal/mawkib/metrics"
	"github.com/hajjtech/mawkib/internal/mawkib/sensor"
	"github.com/hajjtech/mawkib/internal/mawkib/store"
	"github.com/hajjtech/mawkib/internal/mawkib/types"
)

// Authenticator sequences card and fingerprint verification into a
// single multi-factor decision. Every attempt, whatever its outcome,
// is appended to the audit trail before Authenticate returns.
type Authenticator struct {
	codec    *codec.Codec
	pilgrims store.PilgrimStore
	finger   sensor.FingerprintSensor
	attempts store.AttemptStore
	logger   *log.Logger
	metrics  *metrics.Metrics
}

func NewAuthenticator(
	cdc *codec.Codec,
	pilgrims store.PilgrimStore,
	finger sensor.FingerprintSensor,
	attempts store.AttemptStore,
	logger *log.Logger,
	m *metrics.Metrics,
) *Authenticator {
	return &Authenticator{
		codec:    cdc,
		pilgrims: pilgrims,
		finger:   finger,
		attempts: attempts,
		logger:   logger,
		metrics:  m,
	}
}

// Authenticate runs the full verification sequence for one presented
// card:
//
//  1. decrypt the card payload; integrity failure rejects the card
//     before any biometric scan is requested
//  2. resolve the identity against the pilgrim registry
//  3. request a fingerprint match against the pilgrim's template slot
//  4. cross-association: the template that matched must belong to the
//     card-resolved identity, guarding against a cloned card paired
//     with a different live finger
//
// Sensor timeouts and infrastructure failures produce OutcomeError and
// are returned alongside the attempt so the operator decides whether to
// re-prompt; the core never retries silently.
func (a *Authenticator) Authenticate(ctx context.Context, rawPayload string) (types.AuthAttempt, error) {
	att := types.AuthAttempt{
		AttemptID:  uuid.NewString(),
		OccurredAt: time.Now().UTC(),
	}

	cred, err := a.codec.Decrypt(rawPayload)
	if err != nil {
		if errors.Is(err, codec.ErrIntegrity) {
			return a.finalize(ctx, att, types.OutcomeRejectedCard, "card_integrity"), nil
		}
		att = a.finalize(ctx, att, types.OutcomeError, "card_decode")
		return att, fmt.Errorf("authenticate: decrypt card: %w", err)
	}

	rec, err := a.pilgrims.FindByHajjID(ctx, cred.HajjID)
	if errors.Is(err, store.ErrNotFound) {
		return a.finalize(ctx, att, types.OutcomeRejectedCard, "unknown_credential"), nil
	}
	if err != nil {
		att = a.finalize(ctx, att, types.OutcomeError, "registry_lookup")
		return att, fmt.Errorf("authenticate: resolve %s: %w", cred.HajjID, err)
	}

	att.HajjID = rec.HajjID
	att.CardVerified = true

	res, err := a.finger.Match(ctx, rec.FingerprintRef)
	if err != nil {
		// Timeout or sensor fault, not a policy rejection. The retry
		// decision belongs to the caller.
		att = a.finalize(ctx, att, types.OutcomeError, "fingerprint_sensor")
		return att, fmt.Errorf("authenticate: fingerprint match: %w", err)
	}
	if !res.Matched {
		return a.finalize(ctx, att, types.OutcomeRejectedFingerprint, "fingerprint_no_match"), nil
	}

	owner, err := a.pilgrims.FindByFingerprintRef(ctx, res.TemplateID)
	if errors.Is(err, store.ErrNotFound) {
		// The sensor matched a slot no active pilgrim owns, a stale
		// template. Treat as a mismatch, not an acceptance.
		return a.finalize(ctx, att, types.OutcomeRejectedMismatch, "unowned_template"), nil
	}
	if err != nil {
		att = a.finalize(ctx, att, types.OutcomeError, "registry_lookup")
		return att, fmt.Errorf("authenticate: resolve template %d: %w", res.TemplateID, err)
	}
	if owner.HajjID != rec.HajjID {
		return a.finalize(ctx, att, types.OutcomeRejectedMismatch, "cross_association"), nil
	}

	att.FingerprintVerified = true
	return a.finalize(ctx, att, types.OutcomeAccepted, ""), nil
}

// finalize stamps the outcome and appends the attempt to the audit
// trail. A failed audit append cannot block the verdict, but it is
// logged loudly: security rejections must never vanish silently.
func (a *Authenticator) finalize(ctx context.Context, att types.AuthAttempt, outcome types.Outcome, reason string) types.AuthAttempt {
	att.Outcome = outcome
	att.Reason = reason

	if err := a.attempts.Append(ctx, att); err != nil {
		a.logger.Printf("AUDIT WRITE FAILED attempt=%s outcome=%s: %v", att.AttemptID, outcome, err)
	}
	a.metrics.AuthAttempts.WithLabelValues(string(outcome)).Inc()

	return att
}
