package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/golang/snappy"
)

// Key prefixes for different data types
const (
	prefixSnapshot = "s:" // snappy-compressed snapshot document
	prefixInfo     = "m:" // snapshot metadata
)

// BadgerBackend is a BadgerDB-backed workspace.
type BadgerBackend struct {
	db          *badger.DB
	initialized bool
	readOnly    bool
	mu          sync.RWMutex
}

// NewBadgerBackend creates a new BadgerDB backend.
func NewBadgerBackend() *BadgerBackend {
	return &BadgerBackend{}
}

// Initialize opens or creates the BadgerDB database at the given path.
func (b *BadgerBackend) Initialize(path string, readOnly bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	opts := badger.DefaultOptions(path).
		WithNumCompactors(2).
		WithNumMemtables(5).
		WithLoggingLevel(badger.ERROR) // Suppress INFO/WARNING logs

	if readOnly {
		opts = opts.WithReadOnly(true)
	}

	var err error
	b.db, err = badger.Open(opts)
	if err != nil {
		return fmt.Errorf("opening badger DB: %w", err)
	}

	b.initialized = true
	b.readOnly = readOnly
	return nil
}

// Close releases all resources held by the backend.
func (b *BadgerBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.db == nil {
		return nil
	}

	err := b.db.Close()
	b.db = nil
	b.initialized = false
	return err
}

// Save implements StorageBackend.
func (b *BadgerBackend) Save(ctx context.Context, snap *Snapshot) error {
	if snap == nil || snap.Name == "" {
		return fmt.Errorf("saving snapshot: missing name")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.ready(); err != nil {
		return err
	}
	if b.readOnly {
		return fmt.Errorf("saving snapshot %s: workspace is read-only", snap.Name)
	}

	info := snap.Info
	info.Size = len(snap.Data)
	if info.SavedAt.IsZero() {
		info.SavedAt = time.Now().UTC()
	}
	meta, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("marshaling snapshot info: %w", err)
	}

	err = b.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(snapshotKey(snap.Name), snappy.Encode(nil, snap.Data)); err != nil {
			return err
		}
		return txn.Set(infoKey(snap.Name), meta)
	})
	if err != nil {
		return fmt.Errorf("saving snapshot %s: %w", snap.Name, err)
	}
	return nil
}

// Load implements StorageBackend.
func (b *BadgerBackend) Load(ctx context.Context, name string) (*Snapshot, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if err := b.ready(); err != nil {
		return nil, err
	}

	snap := &Snapshot{}
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(infoKey(name))
		if err != nil {
			return err
		}
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &snap.Info)
		}); err != nil {
			return fmt.Errorf("decoding snapshot info: %w", err)
		}

		item, err = txn.Get(snapshotKey(name))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			data, err := snappy.Decode(nil, val)
			if err != nil {
				return fmt.Errorf("decompressing snapshot: %w", err)
			}
			snap.Data = data
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("loading snapshot %s: %w", name, err)
	}
	return snap, nil
}

// List implements StorageBackend.
func (b *BadgerBackend) List(ctx context.Context) ([]Info, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if err := b.ready(); err != nil {
		return nil, err
	}

	var infos []Info
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefixInfo)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var info Info
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &info)
			}); err != nil {
				continue
			}
			infos = append(infos, info)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos, nil
}

// Delete implements StorageBackend.
func (b *BadgerBackend) Delete(ctx context.Context, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.ready(); err != nil {
		return err
	}

	err := b.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(infoKey(name)); err != nil {
			return err
		}
		if err := txn.Delete(infoKey(name)); err != nil {
			return err
		}
		return txn.Delete(snapshotKey(name))
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return fmt.Errorf("deleting snapshot %s: %w", name, err)
	}
	return nil
}

func (b *BadgerBackend) ready() error {
	if !b.initialized || b.db == nil {
		return fmt.Errorf("badger backend not initialized")
	}
	return nil
}

func snapshotKey(name string) []byte {
	return []byte(prefixSnapshot + name)
}

func infoKey(name string) []byte {
	return []byte(prefixInfo + name)
}
