package memory

import (
	"context"
	"sync"

	"github.com/artpar/facturo/domain/wizard"
	"github.com/artpar/facturo/ports"
)

// DraftStore is an in-memory implementation of ports.DraftStore.
type DraftStore struct {
	mu     sync.RWMutex
	drafts map[string]wizard.Draft
}

// NewDraftStore creates a new in-memory draft store.
func NewDraftStore() *DraftStore {
	return &DraftStore{drafts: make(map[string]wizard.Draft)}
}

// Create stores a new draft.
func (s *DraftStore) Create(ctx context.Context, d wizard.Draft) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.drafts[d.ID]; exists {
		return ErrDuplicate
	}
	d.Invoice = clone(d.Invoice)
	s.drafts[d.ID] = d
	return nil
}

// Get retrieves a draft by ID.
func (s *DraftStore) Get(ctx context.Context, id string) (wizard.Draft, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.drafts[id]
	if !ok {
		return wizard.Draft{}, ErrNotFound
	}
	d.Invoice = clone(d.Invoice)
	return d, nil
}

// Update replaces a draft still at stage from.
func (s *DraftStore) Update(ctx context.Context, d wizard.Draft, from wizard.Stage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.drafts[d.ID]
	if !ok {
		return ErrNotFound
	}
	if stored.Stage != from {
		return ErrConflict
	}
	d.Invoice = clone(d.Invoice)
	s.drafts[d.ID] = d
	return nil
}

// Ensure interface compliance.
var _ ports.DraftStore = (*DraftStore)(nil)
