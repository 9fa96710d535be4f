package candidate

import (
	"context"
	"sync"
	"time"

	"velos/pkg/platform/sentinel"
)

// Store persists candidates keyed by id. Interface-driven so the memory
// implementation can be swapped without rewiring the pipeline.
type Store interface {
	Save(ctx context.Context, c Candidate) error
	FindByID(ctx context.Context, id string) (Candidate, error)
	// Update applies fn to the stored candidate under the store's lock so
	// concurrent readers never observe a half-applied transition.
	Update(ctx context.Context, id string, fn func(*Candidate) error) (Candidate, error)
	CountByState(ctx context.Context) (map[State]int, error)
}

// InMemoryStore is the default Store.
type InMemoryStore struct {
	mu         sync.RWMutex
	candidates map[string]Candidate
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{candidates: make(map[string]Candidate)}
}

func (s *InMemoryStore) Save(_ context.Context, c Candidate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.candidates[c.ID]; exists {
		return sentinel.ErrConflict
	}
	c.UpdatedAt = time.Now()
	s.candidates[c.ID] = c
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, id string) (Candidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if c, ok := s.candidates[id]; ok {
		return c, nil
	}
	return Candidate{}, sentinel.ErrNotFound
}

func (s *InMemoryStore) Update(_ context.Context, id string, fn func(*Candidate) error) (Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.candidates[id]
	if !ok {
		return Candidate{}, sentinel.ErrNotFound
	}
	if err := fn(&c); err != nil {
		return Candidate{}, err
	}
	c.UpdatedAt = time.Now()
	s.candidates[id] = c
	return c, nil
}

func (s *InMemoryStore) CountByState(_ context.Context) (map[State]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[State]int)
	for _, c := range s.candidates {
		counts[c.State]++
	}
	return counts, nil
}
