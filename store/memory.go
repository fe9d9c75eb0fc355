package store

import (
	"context"
	"sync"

	"github.com/c360/formflow/errors"
	"github.com/c360/formflow/submission"
)

// MemoryStore keeps submissions in process memory. Writes are last-writer-wins.
type MemoryStore struct {
	mu         sync.RWMutex
	items      map[string]*submission.Submission
	shortCodes map[string]string // code -> submission id
	opts       options
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore(opts ...Option) *MemoryStore {
	return &MemoryStore{
		items:      make(map[string]*submission.Submission),
		shortCodes: make(map[string]string),
		opts:       defaultOptions(opts),
	}
}

// Get returns a copy of the stored submission
func (m *MemoryStore) Get(_ context.Context, id string) (*submission.Submission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sub, ok := m.items[id]
	if !ok {
		return nil, notFound(id)
	}
	return sub.Clone(), nil
}

// Create stores a new submission, assigning its id and timestamps
func (m *MemoryStore) Create(_ context.Context, sub *submission.Submission) error {
	if err := checkSubmission("MemoryStore", "Create", sub); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.items[sub.ID]; exists && sub.ID != "" {
		return errors.WrapInvalid(errors.ErrConflict, "MemoryStore", "Create", "submission "+sub.ID+" already exists")
	}
	if _, taken := m.shortCodes[sub.ShortCode]; taken {
		return errors.WrapTransient(errors.ErrConflict, "MemoryStore", "Create", "short code already in use")
	}
	m.opts.stampNew(sub)
	if sub.ShortCode != "" {
		m.shortCodes[sub.ShortCode] = sub.ID
	}
	sub.Revision = 1
	m.items[sub.ID] = sub.Clone()
	return nil
}

// Save creates or replaces the submission
func (m *MemoryStore) Save(ctx context.Context, sub *submission.Submission) error {
	if err := checkSubmission("MemoryStore", "Save", sub); err != nil {
		return err
	}
	if sub.IsNew() {
		return m.Create(ctx, sub)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.items[sub.ID]
	if !ok {
		return notFound(sub.ID)
	}
	if err := m.claimShortCode(sub); err != nil {
		return err
	}
	sub.UpdatedAt = m.opts.now().UTC()
	sub.Revision = current.Revision + 1
	m.items[sub.ID] = sub.Clone()
	return nil
}

// claimShortCode must be called with mu held
func (m *MemoryStore) claimShortCode(sub *submission.Submission) error {
	if sub.ShortCode == "" {
		return nil
	}
	if owner, taken := m.shortCodes[sub.ShortCode]; taken && owner != sub.ID {
		return errors.WrapTransient(errors.ErrConflict, "MemoryStore", "Save", "short code already in use")
	}
	m.shortCodes[sub.ShortCode] = sub.ID
	return nil
}

// Delete removes a submission; unknown ids are ignored
func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sub, ok := m.items[id]; ok && sub.ShortCode != "" {
		delete(m.shortCodes, sub.ShortCode)
	}
	delete(m.items, id)
	return nil
}

// ShortCodeExists reports whether any stored submission carries code
func (m *MemoryStore) ShortCodeExists(_ context.Context, code string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.shortCodes[code]
	return ok, nil
}

// Len returns the number of stored submissions
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}

// Ping always succeeds
func (m *MemoryStore) Ping(context.Context) error { return nil }

// Close is a no-op
func (m *MemoryStore) Close() error { return nil }
