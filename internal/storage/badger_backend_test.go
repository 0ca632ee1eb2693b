package storage

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/golang/snappy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestBadgerBackend(t *testing.T) (*BadgerBackend, string) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "badger")

	backend := NewBadgerBackend()
	err := backend.Initialize(dbPath, false)
	require.NoError(t, err)
	t.Cleanup(func() { _ = backend.Close() })

	return backend, dbPath
}

func TestBadgerBackend_Initialize(t *testing.T) {
	t.Parallel()

	t.Run("Success", func(t *testing.T) {
		backend, _ := setupTestBadgerBackend(t)
		assert.True(t, backend.initialized)
	})

	t.Run("InvalidPath", func(t *testing.T) {
		backend := NewBadgerBackend()
		err := backend.Initialize("/nonexistent/path/that/does/not/exist", false)
		assert.Error(t, err)
	})

	t.Run("NotInitialized", func(t *testing.T) {
		backend := NewBadgerBackend()
		_, err := backend.Load(context.Background(), "x")
		assert.Error(t, err)
	})
}

func TestBadgerBackend_Persistence(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	backend, dbPath := setupTestBadgerBackend(t)
	require.NoError(t, backend.Save(ctx, &Snapshot{Info: Info{Name: DefaultSnapshot, Nodes: 2}, Data: []byte(`{"nodes":{}}`)}))
	require.NoError(t, backend.Close())

	t.Run("ReadOnly", func(t *testing.T) {
		reopened := NewBadgerBackend()
		require.NoError(t, reopened.Initialize(dbPath, true))
		defer reopened.Close()

		snap, err := reopened.Load(ctx, DefaultSnapshot)
		require.NoError(t, err)
		assert.Equal(t, `{"nodes":{}}`, string(snap.Data))
		assert.Equal(t, 2, snap.Nodes)

		assert.Error(t, reopened.Save(ctx, &Snapshot{Info: Info{Name: "other"}, Data: []byte("{}")}))
	})
}

func TestBadgerBackend_StoresCompressed(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	backend, _ := setupTestBadgerBackend(t)

	doc := []byte(`{"nodes":{` + strings.Repeat(`"a":{"type":"string"},`, 200) + `}}`)
	require.NoError(t, backend.Save(ctx, &Snapshot{Info: Info{Name: "big"}, Data: doc}))

	err := backend.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(snapshotKey("big"))
		if err != nil {
			return err
		}
		raw, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		assert.Less(t, len(raw), len(doc))
		decoded, err := snappy.Decode(nil, raw)
		require.NoError(t, err)
		assert.Equal(t, doc, decoded)
		return nil
	})
	require.NoError(t, err)
}

func TestBadgerBackend_Close(t *testing.T) {
	t.Parallel()

	backend, _ := setupTestBadgerBackend(t)
	require.NoError(t, backend.Close())
	require.NoError(t, backend.Close())

	_, err := backend.List(context.Background())
	assert.Error(t, err)
}
