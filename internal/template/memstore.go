package template

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// MemStore is an in-memory [Store] and [CompanyStore]. It is the default
// backing for tests and single-node deployments without Postgres.
//
// Loads return deep copies so callers can treat results as immutable
// snapshots. Writes are serialized per store (one mutex), which satisfies the
// per-template serialization requirement trivially.
type MemStore struct {
	mu        sync.Mutex
	templates map[string]*Template
	companies map[string]*Company
}

// Compile-time interface checks.
var (
	_ Store        = (*MemStore)(nil)
	_ CompanyStore = (*MemStore)(nil)
)

// NewMemStore creates an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{
		templates: make(map[string]*Template),
		companies: make(map[string]*Company),
	}
}

// PutTemplate validates and stores t. A template stored with version 0 is
// assigned version 1.
func (m *MemStore) PutTemplate(t *Template) error {
	if err := t.Validate(); err != nil {
		return fmt.Errorf("template: put %q: %w", t.ID, err)
	}
	cp, err := cloneTemplate(t)
	if err != nil {
		return err
	}
	if cp.Version == 0 {
		cp.Version = 1
	}
	m.mu.Lock()
	m.templates[cp.ID] = cp
	m.mu.Unlock()
	return nil
}

// PutCompany validates and stores c.
func (m *MemStore) PutCompany(c *Company) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("template: put company %q: %w", c.ID, err)
	}
	cp, err := cloneCompany(c)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.companies[cp.ID] = cp
	m.mu.Unlock()
	return nil
}

// LoadTemplate implements [Store].
func (m *MemStore) LoadTemplate(_ context.Context, id string) (*Template, error) {
	m.mu.Lock()
	t, ok := m.templates[id]
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("template: load %q: %w", id, ErrNotFound)
	}
	return cloneTemplate(t)
}

// ApplyPatterns implements [Store]. The write succeeds only when the stored
// version equals expectedVersion; the version advances by one on success.
func (m *MemStore) ApplyPatterns(_ context.Context, id string, patterns []Pattern, expectedVersion int64) (*ApplyResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.templates[id]
	if !ok {
		return nil, fmt.Errorf("template: apply patterns to %q: %w", id, ErrNotFound)
	}
	if t.Version != expectedVersion {
		return nil, fmt.Errorf("template: apply patterns to %q: have version %d, expected %d: %w",
			id, t.Version, expectedVersion, ErrVersionConflict)
	}

	res := Merge(t, patterns)
	if len(res.Applied) > 0 {
		t.Version++
	}
	return res, nil
}

// LoadCompany implements [CompanyStore].
func (m *MemStore) LoadCompany(_ context.Context, id string) (*Company, error) {
	m.mu.Lock()
	c, ok := m.companies[id]
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("template: load company %q: %w", id, ErrNotFound)
	}
	return cloneCompany(c)
}

// cloneTemplate deep-copies t via JSON round-trip. Template values are plain
// data so this is lossless.
func cloneTemplate(t *Template) (*Template, error) {
	raw, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("template: clone: %w", err)
	}
	cp := &Template{}
	if err := json.Unmarshal(raw, cp); err != nil {
		return nil, fmt.Errorf("template: clone: %w", err)
	}
	return cp, nil
}

func cloneCompany(c *Company) (*Company, error) {
	raw, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("template: clone company: %w", err)
	}
	cp := &Company{}
	if err := json.Unmarshal(raw, cp); err != nil {
		return nil, fmt.Errorf("template: clone company: %w", err)
	}
	return cp, nil
}
