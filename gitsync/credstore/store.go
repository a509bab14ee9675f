package credstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/byte4ever/codepublish/gitsync/git"
)

// Organization is the integration record of one installed
// provider account.
type Organization struct {
	ID             string
	Provider       git.Kind
	InstallationID string
	Name           string
	Credential     git.OAuthCredential
	UpdatedAt      time.Time
}

// Installation returns the properties a provider variant is
// built with.
func (o Organization) Installation() git.Installation {
	return git.Installation{
		InstallationID: o.InstallationID,
		Credential:     o.Credential,
	}
}

// Store reads and writes organization records. Get fails with
// git.ErrNotFound for unknown ids.
type Store interface {
	Get(ctx context.Context, id string) (*Organization, error)
	Save(ctx context.Context, org Organization) error
	Delete(ctx context.Context, id string) error
}

// MemoryStore is a Store backed by a map.
type MemoryStore struct {
	mu   sync.RWMutex
	orgs map[string]Organization
	now  func() time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns a MemoryStore holding orgs.
func NewMemoryStore(orgs ...Organization) *MemoryStore {
	s := &MemoryStore{
		orgs: make(map[string]Organization, len(orgs)),
		now:  time.Now,
	}

	for _, o := range orgs {
		s.orgs[o.ID] = o
	}

	return s
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, id string) (*Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orgs[id]
	if !ok {
		return nil, fmt.Errorf("organization %q: %w", id, git.ErrNotFound)
	}

	o.Credential.Scopes = append([]string(nil), o.Credential.Scopes...)

	return &o, nil
}

// Save implements Store.
func (s *MemoryStore) Save(_ context.Context, org Organization) error {
	if org.ID == "" {
		return fmt.Errorf("saving organization: empty id: %w", git.ErrConfiguration)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	org.UpdatedAt = s.now().UTC()
	org.Credential.Scopes = append([]string(nil), org.Credential.Scopes...)
	s.orgs[org.ID] = org

	return nil
}

// Delete implements Store. Unknown ids are ignored.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.orgs, id)

	return nil
}
