// Package storage provides the persisted workspace for Scout.
//
// A workspace holds named graph snapshots, so a recon session can be
// resumed across process runs. Snapshots are stored as opaque documents
// produced by graph.Snapshot together with a small metadata record.
package storage

import (
	"context"
	"errors"
	"time"
)

// DefaultSnapshot is the name used when the caller does not pick one.
const DefaultSnapshot = "default"

// ErrNotFound is returned when a snapshot does not exist.
var ErrNotFound = errors.New("snapshot not found")

// Info describes a stored snapshot.
type Info struct {
	// Name is the snapshot key.
	Name string `json:"name"`

	// Nodes and Edges are the graph size at save time.
	Nodes int `json:"nodes"`
	Edges int `json:"edges"`

	// Size is the uncompressed document size in bytes.
	Size int `json:"size"`

	// SavedAt is when the snapshot was last written.
	SavedAt time.Time `json:"saved_at"`
}

// Snapshot is a stored document with its metadata.
type Snapshot struct {
	Info
	Data []byte
}

// StorageBackend defines the interface for workspace implementations.
//
// Implementations must be thread-safe and support concurrent access.
type StorageBackend interface {
	// Initialize opens or creates the workspace at the given path.
	// If readOnly is true, the backend is opened in read-only mode.
	Initialize(path string, readOnly bool) error

	// Close releases all resources held by the backend.
	Close() error

	// Save stores a snapshot under its name, replacing any previous one.
	Save(ctx context.Context, snap *Snapshot) error

	// Load returns the named snapshot, or ErrNotFound.
	Load(ctx context.Context, name string) (*Snapshot, error)

	// List returns the metadata of every snapshot, sorted by name.
	List(ctx context.Context) ([]Info, error)

	// Delete removes the named snapshot, or returns ErrNotFound.
	Delete(ctx context.Context, name string) error
}
