// Package store defines the persistence contracts for pilgrim records,
// the authentication audit trail and trip history. Implementations come
// in sqlite (production) and memory (tests, dev) flavors.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/hajjtech/mawkib/internal/mawkib/types"
)

var (
	// ErrNotFound reports an unknown identity or record.
	ErrNotFound = errors.New("record not found")

	// ErrConflict reports a write that would violate a uniqueness
	// invariant. The write leaves prior state unchanged; partial
	// writes are never observable.
	ErrConflict = errors.New("write conflicts with existing record")
)

// PilgrimStore holds enrolled pilgrims. Uniqueness invariants enforced at
// write time, among active (non-superseded) records only:
//
//   - hajj_id is globally unique
//   - fingerprint_ref is unique (a sensor slot holds at most one
//     pilgrim's template)
type PilgrimStore interface {
	// Create persists a new active record. Returns ErrConflict if an
	// active record already holds its hajj id or fingerprint ref.
	Create(ctx context.Context, rec types.PilgrimRecord) error

	// FindByHajjID returns the active record for hajjID, or ErrNotFound.
	FindByHajjID(ctx context.Context, hajjID string) (types.PilgrimRecord, error)

	// FindByFingerprintRef returns the active record owning the sensor
	// slot, or ErrNotFound.
	FindByFingerprintRef(ctx context.Context, ref int) (types.PilgrimRecord, error)

	// Supersede tombstones the active record for hajjID so a fresh one
	// can be created. The old record is retained for audit.
	Supersede(ctx context.Context, hajjID string) error

	// UsedFingerprintRefs lists the sensor slots held by active records.
	UsedFingerprintRefs(ctx context.Context) ([]int, error)
}

// AttemptStore is the append-only audit trail of authentication attempts.
type AttemptStore interface {
	Append(ctx context.Context, rec types.AuthAttempt) error
	PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// TripStore persists finalized trip sessions (closed and aborted alike;
// aborted sessions are kept for audit, flagged as non-completed).
type TripStore interface {
	// Record persists a terminal session with its manifest atomically.
	// Returns ErrConflict if the trip id was already recorded.
	Record(ctx context.Context, session types.TripSession) error

	// List returns up to limit most recent finalized sessions.
	List(ctx context.Context, limit int) ([]types.TripSession, error)
}
