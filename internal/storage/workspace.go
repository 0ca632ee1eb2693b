package storage

import (
	"context"
	"fmt"

	"github.com/Benny93/scout-go/internal/graph"
)

// SaveGraph snapshots g into the backend under name.
func SaveGraph(ctx context.Context, b StorageBackend, name string, g *graph.Graph) (Info, error) {
	data, err := g.Snapshot()
	if err != nil {
		return Info{}, err
	}
	snap := &Snapshot{
		Info: Info{Name: name, Nodes: g.NodeCount(), Edges: g.EdgeCount()},
		Data: data,
	}
	if err := b.Save(ctx, snap); err != nil {
		return Info{}, err
	}
	return snap.Info, nil
}

// LoadGraph restores the named snapshot into g. A missing snapshot leaves g
// untouched and returns ErrNotFound.
func LoadGraph(ctx context.Context, b StorageBackend, name string, g *graph.Graph) (Info, error) {
	snap, err := b.Load(ctx, name)
	if err != nil {
		return Info{}, err
	}
	if err := g.Load(snap.Data); err != nil {
		return Info{}, fmt.Errorf("restoring snapshot %s: %w", name, err)
	}
	return snap.Info, nil
}
