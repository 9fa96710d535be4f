package packet

import (
	"context"
	"sync"

	"velos/pkg/platform/sentinel"
)

// Store persists sealed packets keyed by candidate id. A candidate's packet
// is written exactly once; the stored bytes are the artifact every later
// read and verification runs against.
type Store interface {
	Put(ctx context.Context, p Packet) error
	Get(ctx context.Context, candidateID string) (Packet, error)
}

// InMemoryStore is the default Store.
type InMemoryStore struct {
	mu      sync.RWMutex
	packets map[string]Packet
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{packets: make(map[string]Packet)}
}

func (s *InMemoryStore) Put(_ context.Context, p Packet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.packets[p.CandidateID]; exists {
		return sentinel.ErrConflict
	}
	s.packets[p.CandidateID] = p
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, candidateID string) (Packet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.packets[candidateID]; ok {
		return p, nil
	}
	return Packet{}, sentinel.ErrNotFound
}
