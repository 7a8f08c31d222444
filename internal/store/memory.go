package store

import (
	"context"
	"sync"

	"github.com/fairyhunter13/festival-restock-service/internal/model"
)

// MemoryStore keeps restock requests in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	records []model.RestockRequest
	exists  bool
}

// NewMemory returns a MemoryStore. Passing seed records behaves like an
// already existing backing file; passing none behaves like a missing one.
func NewMemory(seed ...model.RestockRequest) *MemoryStore {
	s := &MemoryStore{}
	if len(seed) > 0 {
		s.records = model.CloneAll(seed)
		s.exists = true
	}
	return s
}

func (s *MemoryStore) Load(ctx context.Context) ([]model.RestockRequest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return model.CloneAll(s.records), nil
}

func (s *MemoryStore) Append(ctx context.Context, rec model.RestockRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec.Clone())
	s.exists = true
	return nil
}

func (s *MemoryStore) PatchStatus(ctx context.Context, ref Ref, status StatusFunc) (model.RestockRequest, error) {
	if err := ctx.Err(); err != nil {
		return model.RestockRequest{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.exists {
		return model.RestockRequest{}, ErrNoRequests
	}
	return applyStatus(s.records, ref, status)
}
