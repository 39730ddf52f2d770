package store

import (
	"context"
	"fmt"
	"sync"

	"medshare/internal/auth/models"
	"medshare/internal/sentinel"
)

// Error Contract:
// All store methods follow this error pattern:
// - Return sentinel.ErrNotFound when the identity has no credential
// - Return nil for successful operations
// - Return wrapped errors with context for infrastructure failures

// InMemoryStore keeps credentials in a map. It backs local runs and tests.
type InMemoryStore struct {
	mu          sync.RWMutex
	credentials map[string]models.Credential
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{credentials: make(map[string]models.Credential)}
}

// Save inserts or replaces the credential for its identity.
func (s *InMemoryStore) Save(_ context.Context, cred models.Credential) error {
	identity := models.NormalizeIdentity(cred.Identity)
	if identity == "" {
		return fmt.Errorf("credential identity is required")
	}
	cred.Identity = identity

	s.mu.Lock()
	defer s.mu.Unlock()
	s.credentials[identity] = cred
	return nil
}

func (s *InMemoryStore) FindByIdentity(_ context.Context, identity string) (*models.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cred, ok := s.credentials[models.NormalizeIdentity(identity)]
	if !ok {
		return nil, fmt.Errorf("credential not found: %w", sentinel.ErrNotFound)
	}
	return &cred, nil
}
