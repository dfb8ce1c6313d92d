package memory

import (
	"context"
	"sync"

	"github.com/hajjtech/mawkib/internal/mawkib/store"
	"github.com/hajjtech/mawkib/internal/mawkib/types"
)

// TripStore is an in-memory trip history for tests and dev environments.
type TripStore struct {
	mu    sync.Mutex
	trips []types.TripSession
	ids   map[string]struct{}
}

func NewTripStore() *TripStore {
	return &TripStore{ids: make(map[string]struct{})}
}

func (s *TripStore) Record(_ context.Context, session types.TripSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.ids[session.TripID]; ok {
		return store.ErrConflict
	}
	s.ids[session.TripID] = struct{}{}
	s.trips = append(s.trips, session)
	return nil
}

func (s *TripStore) List(_ context.Context, limit int) ([]types.TripSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.trips)
	if limit > 0 && limit < n {
		n = limit
	}

	// Most recent first.
	out := make([]types.TripSession, 0, n)
	for i := len(s.trips) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, s.trips[i])
	}
	return out, nil
}

// Trips returns a copy of all recorded sessions in insertion order.
// Test-only helper.
func (s *TripStore) Trips() []types.TripSession {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]types.TripSession, len(s.trips))
	copy(out, s.trips)
	return out
}
