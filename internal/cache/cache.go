// Package cache keeps the client's last known contact set between runs.
package cache

import (
	"context"
	"slices"
	"sync"

	"contact-manager/internal/contact"
)

// Store holds at most one contact set. Set replaces it whole; a set is never
// partially updated.
type Store interface {
	// Get returns the cached set and whether one is present. A present set may be empty.
	Get(ctx context.Context) ([]contact.Contact, bool, error)
	Set(ctx context.Context, contacts []contact.Contact) error
	// Clear removes the set. Clearing an empty cache is not an error.
	Clear(ctx context.Context) error
}

// MemoryStore is a Store living for the process lifetime.
type MemoryStore struct {
	mu       sync.RWMutex
	contacts []contact.Contact
	present  bool
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (m *MemoryStore) Get(context.Context) ([]contact.Contact, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.present {
		return nil, false, nil
	}
	return contact.Clone(m.contacts), true, nil
}

func (m *MemoryStore) Set(_ context.Context, contacts []contact.Contact) error {
	cp := contact.Clone(contacts)
	if cp == nil {
		cp = []contact.Contact{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.contacts = cp
	m.present = true
	return nil
}

func (m *MemoryStore) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.contacts = nil
	m.present = false
	return nil
}

// UnseenStore remembers names of contacts the user created but has not listed yet.
type UnseenStore interface {
	Add(ctx context.Context, name string) error
	List(ctx context.Context) ([]string, error)
	Remove(ctx context.Context, names ...string) error
	Clear(ctx context.Context) error
}

// MemoryUnseen is an in-process UnseenStore. List keeps insertion order.
type MemoryUnseen struct {
	mu    sync.Mutex
	names []string
}

func NewMemoryUnseen() *MemoryUnseen { return &MemoryUnseen{} }

func (m *MemoryUnseen) Add(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !slices.Contains(m.names, name) {
		m.names = append(m.names, name)
	}
	return nil
}

func (m *MemoryUnseen) List(context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.names), nil
}

func (m *MemoryUnseen) Remove(_ context.Context, names ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.names = slices.DeleteFunc(m.names, func(n string) bool { return slices.Contains(names, n) })
	return nil
}

func (m *MemoryUnseen) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.names = nil
	return nil
}
