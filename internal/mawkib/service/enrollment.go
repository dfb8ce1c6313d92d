package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/hajjtech/mawkib/internal/mawkib/codec"
	"github.com/hajjtech/mawkib/internal/mawkib/sensor"
	"github.com/hajjtech/mawkib/internal/mawkib/store"
	"github.com/hajjtech/mawkib/internal/mawkib/types"
)

// Fingerprint template slots available on the sensor module.
const (
	minTemplateRef = 1
	maxTemplateRef = 120
)

var (
	// ErrNoFreeTemplateSlot means every fingerprint template slot is in
	// use by an active enrollment.
	ErrNoFreeTemplateSlot = errors.New("no free fingerprint template slot")

	// ErrAlreadyEnrolled means an active record already exists for the
	// hajj id. Use Reissue to replace a lost or damaged card.
	ErrAlreadyEnrolled = errors.New("pilgrim already enrolled")
)

// Enroller registers pilgrims: captures a fingerprint template, seals a
// fresh credential, writes it to a card, and records the pairing. Any
// step failing after the template was stored rolls the template back so
// no orphaned slot is left behind.
type Enroller struct {
	codec    *codec.Codec
	pilgrims store.PilgrimStore
	finger   sensor.FingerprintSensor
	cards    sensor.CardWriter
	logger   *log.Logger
}

func NewEnroller(cdc *codec.Codec, pilgrims store.PilgrimStore, finger sensor.FingerprintSensor, cards sensor.CardWriter, logger *log.Logger) *Enroller {
	return &Enroller{codec: cdc, pilgrims: pilgrims, finger: finger, cards: cards, logger: logger}
}

// Enroll registers a new pilgrim and returns the stored record. The
// sealed credential in the returned record has already been written to
// the presented card.
func (e *Enroller) Enroll(ctx context.Context, hajjID, name string) (types.PilgrimRecord, error) {
	hajjID = strings.TrimSpace(hajjID)
	name = strings.TrimSpace(name)
	if hajjID == "" {
		return types.PilgrimRecord{}, errors.New("hajj id required")
	}
	if len(name) < 2 {
		return types.PilgrimRecord{}, errors.New("name must be at least 2 characters")
	}

	if _, err := e.pilgrims.FindByHajjID(ctx, hajjID); err == nil {
		return types.PilgrimRecord{}, ErrAlreadyEnrolled
	} else if !errors.Is(err, store.ErrNotFound) {
		return types.PilgrimRecord{}, fmt.Errorf("enroll lookup: %w", err)
	}

	return e.enroll(ctx, hajjID, name)
}

// Reissue supersedes a pilgrim's active record and enrolls them afresh
// with a new fingerprint slot and a new sealed credential. The old card
// stops authenticating the moment the record is superseded.
func (e *Enroller) Reissue(ctx context.Context, hajjID string) (types.PilgrimRecord, error) {
	hajjID = strings.TrimSpace(hajjID)

	old, err := e.pilgrims.FindByHajjID(ctx, hajjID)
	if err != nil {
		return types.PilgrimRecord{}, err
	}
	if err := e.pilgrims.Supersede(ctx, hajjID); err != nil {
		return types.PilgrimRecord{}, fmt.Errorf("supersede: %w", err)
	}
	if err := e.finger.DeleteTemplate(ctx, old.FingerprintRef); err != nil {
		// Slot stays allocated in the sensor but is no longer referenced
		// by any active record; flagged for manual cleanup.
		e.logger.Printf("reissue %s: stale template %d not deleted: %v", hajjID, old.FingerprintRef, err)
	}

	e.logger.Printf("reissue %s: superseded prior record", hajjID)
	return e.enroll(ctx, hajjID, old.Name)
}

func (e *Enroller) enroll(ctx context.Context, hajjID, name string) (types.PilgrimRecord, error) {
	ref, err := e.nextFreeTemplateRef(ctx)
	if err != nil {
		return types.PilgrimRecord{}, err
	}

	if err := e.finger.Enroll(ctx, ref); err != nil {
		return types.PilgrimRecord{}, fmt.Errorf("fingerprint enroll: %w", err)
	}

	nonce, err := codec.NewNonce()
	if err != nil {
		e.rollbackTemplate(ctx, hajjID, ref)
		return types.PilgrimRecord{}, err
	}
	sealed, err := e.codec.Encrypt(types.Credential{HajjID: hajjID, IssueNonce: nonce})
	if err != nil {
		e.rollbackTemplate(ctx, hajjID, ref)
		return types.PilgrimRecord{}, fmt.Errorf("seal credential: %w", err)
	}

	if err := e.cards.WritePayload(ctx, sealed); err != nil {
		e.rollbackTemplate(ctx, hajjID, ref)
		return types.PilgrimRecord{}, fmt.Errorf("card write: %w", err)
	}

	rec := types.PilgrimRecord{
		HajjID:         hajjID,
		Name:           name,
		CardCredential: sealed,
		FingerprintRef: ref,
		EnrolledAt:     time.Now().UTC(),
	}
	if err := e.pilgrims.Create(ctx, rec); err != nil {
		e.rollbackTemplate(ctx, hajjID, ref)
		return types.PilgrimRecord{}, fmt.Errorf("store enrollment: %w", err)
	}

	e.logger.Printf("enrolled %s in template slot %d", hajjID, ref)
	return rec, nil
}

// nextFreeTemplateRef returns the lowest slot not used by an active
// record.
func (e *Enroller) nextFreeTemplateRef(ctx context.Context) (int, error) {
	used, err := e.pilgrims.UsedFingerprintRefs(ctx)
	if err != nil {
		return 0, fmt.Errorf("list template refs: %w", err)
	}
	taken := make(map[int]struct{}, len(used))
	for _, r := range used {
		taken[r] = struct{}{}
	}
	for ref := minTemplateRef; ref <= maxTemplateRef; ref++ {
		if _, ok := taken[ref]; !ok {
			return ref, nil
		}
	}
	return 0, ErrNoFreeTemplateSlot
}

func (e *Enroller) rollbackTemplate(ctx context.Context, hajjID string, ref int) {
	if err := e.finger.DeleteTemplate(ctx, ref); err != nil {
		e.logger.Printf("enroll %s: rollback of template %d failed: %v", hajjID, ref, err)
	}
}
