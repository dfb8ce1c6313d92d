package memory

import (
	"context"
	"sync"

	"github.com/hajjtech/mawkib/internal/mawkib/store"
	"github.com/hajjtech/mawkib/internal/mawkib/types"
)

// PilgrimStore is an in-memory pilgrim registry for tests and dev
// environments. Superseded records are kept, mirroring the tombstone
// behavior of the sqlite store.
type PilgrimStore struct {
	mu      sync.RWMutex
	records []types.PilgrimRecord
}

func NewPilgrimStore() *PilgrimStore {
	return &PilgrimStore{}
}

func (s *PilgrimStore) Create(_ context.Context, rec types.PilgrimRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.records {
		if !r.Active() {
			continue
		}
		if r.HajjID == rec.HajjID || r.FingerprintRef == rec.FingerprintRef {
			return store.ErrConflict
		}
	}
	s.records = append(s.records, rec)
	return nil
}

func (s *PilgrimStore) FindByHajjID(_ context.Context, hajjID string) (types.PilgrimRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, r := range s.records {
		if r.Active() && r.HajjID == hajjID {
			return r, nil
		}
	}
	return types.PilgrimRecord{}, store.ErrNotFound
}

func (s *PilgrimStore) FindByFingerprintRef(_ context.Context, ref int) (types.PilgrimRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, r := range s.records {
		if r.Active() && r.FingerprintRef == ref {
			return r, nil
		}
	}
	return types.PilgrimRecord{}, store.ErrNotFound
}

func (s *PilgrimStore) Supersede(_ context.Context, hajjID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.records {
		if s.records[i].Active() && s.records[i].HajjID == hajjID {
			now := nowUTC()
			s.records[i].SupersededAt = &now
			return nil
		}
	}
	return store.ErrNotFound
}

func (s *PilgrimStore) UsedFingerprintRefs(_ context.Context) ([]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var refs []int
	for _, r := range s.records {
		if r.Active() {
			refs = append(refs, r.FingerprintRef)
		}
	}
	return refs, nil
}
