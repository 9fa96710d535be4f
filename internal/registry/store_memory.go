package registry

import (
	"context"
	"sync"

	"velos/pkg/platform/sentinel"
)

// InMemoryCredentialStore keeps credentials in maps plus an ordered
// per-subject index so FindBySubject returns issuance order.
type InMemoryCredentialStore struct {
	mu        sync.RWMutex
	byID      map[string]VerifiableCredential
	bySubject map[DID][]string
}

func NewInMemoryCredentialStore() *InMemoryCredentialStore {
	return &InMemoryCredentialStore{
		byID:      make(map[string]VerifiableCredential),
		bySubject: make(map[DID][]string),
	}
}

func (s *InMemoryCredentialStore) Save(_ context.Context, vc VerifiableCredential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byID[vc.ID]; exists {
		return sentinel.ErrConflict
	}
	s.byID[vc.ID] = vc
	s.bySubject[vc.Subject] = append(s.bySubject[vc.Subject], vc.ID)
	return nil
}

func (s *InMemoryCredentialStore) FindByID(_ context.Context, id string) (VerifiableCredential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if vc, ok := s.byID[id]; ok {
		return vc, nil
	}
	return VerifiableCredential{}, sentinel.ErrNotFound
}

func (s *InMemoryCredentialStore) FindBySubject(_ context.Context, subject DID) ([]VerifiableCredential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.bySubject[subject]
	out := make([]VerifiableCredential, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.byID[id])
	}
	return out, nil
}

// InMemoryRevocationStore is the default revocation list.
type InMemoryRevocationStore struct {
	mu      sync.RWMutex
	records map[string]RevocationRecord
}

func NewInMemoryRevocationStore() *InMemoryRevocationStore {
	return &InMemoryRevocationStore{records: make(map[string]RevocationRecord)}
}

func (s *InMemoryRevocationStore) Put(_ context.Context, rec RevocationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[rec.CredentialID]; exists {
		return nil
	}
	s.records[rec.CredentialID] = rec
	return nil
}

func (s *InMemoryRevocationStore) Get(_ context.Context, credentialID string) (RevocationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if rec, ok := s.records[credentialID]; ok {
		return rec, nil
	}
	return RevocationRecord{}, sentinel.ErrNotFound
}
