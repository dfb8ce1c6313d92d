package memory

import (
	"context"
	"sync"
	"time"

	"github.com/hajjtech/mawkib/internal/mawkib/types"
)

func nowUTC() time.Time { return time.Now().UTC() }

// AttemptStore is an in-memory append-only audit trail of authentication
// attempts. It is intended for use in tests and dev environments.
type AttemptStore struct {
	mu       sync.Mutex
	attempts []types.AuthAttempt
}

func NewAttemptStore() *AttemptStore {
	return &AttemptStore{}
}

func (s *AttemptStore) Append(_ context.Context, rec types.AuthAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.OccurredAt.IsZero() {
		rec.OccurredAt = nowUTC()
	}
	s.attempts = append(s.attempts, rec)
	return nil
}

func (s *AttemptStore) PruneOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.attempts[:0]
	var deleted int64
	for _, a := range s.attempts {
		if a.OccurredAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, a)
	}
	s.attempts = kept
	return deleted, nil
}

// Attempts returns a copy of all recorded attempts. Test-only helper.
func (s *AttemptStore) Attempts() []types.AuthAttempt {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]types.AuthAttempt, len(s.attempts))
	copy(out, s.attempts)
	return out
}
