package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryBackend is an in-memory implementation of StorageBackend for testing.
type MemoryBackend struct {
	mu        sync.RWMutex
	snapshots map[string]*Snapshot
}

// NewMemoryBackend creates a new in-memory storage backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{snapshots: make(map[string]*Snapshot)}
}

// Initialize implements StorageBackend.
func (m *MemoryBackend) Initialize(path string, readOnly bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.snapshots == nil {
		m.snapshots = make(map[string]*Snapshot)
	}
	return nil
}

// Close implements StorageBackend.
func (m *MemoryBackend) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots = nil
	return nil
}

// Save implements StorageBackend.
func (m *MemoryBackend) Save(ctx context.Context, snap *Snapshot) error {
	if snap == nil || snap.Name == "" {
		return fmt.Errorf("saving snapshot: missing name")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	stored := &Snapshot{Info: snap.Info, Data: append([]byte(nil), snap.Data...)}
	stored.Size = len(snap.Data)
	if stored.SavedAt.IsZero() {
		stored.SavedAt = time.Now().UTC()
	}
	m.snapshots[snap.Name] = stored
	return nil
}

// Load implements StorageBackend.
func (m *MemoryBackend) Load(ctx context.Context, name string) (*Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap, ok := m.snapshots[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return &Snapshot{Info: snap.Info, Data: append([]byte(nil), snap.Data...)}, nil
}

// List implements StorageBackend.
func (m *MemoryBackend) List(ctx context.Context) ([]Info, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	infos := make([]Info, 0, len(m.snapshots))
	for _, snap := range m.snapshots {
		infos = append(infos, snap.Info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos, nil
}

// Delete implements StorageBackend.
func (m *MemoryBackend) Delete(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.snapshots[name]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	delete(m.snapshots, name)
	return nil
}
