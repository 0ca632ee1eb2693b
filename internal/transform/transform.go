// Package transform defines the contract every Scout transform implements.
//
// A Transform pairs a static Descriptor (name, aliases, applicable node
// types, options) with a Handler that expands one source node into result
// descriptors. The default runner fans Handle out over many nodes with a
// bounded number of concurrent calls and isolates per-node failures.
package transform

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/Benny93/scout-go/internal/diag"
	"github.com/Benny93/scout-go/internal/graph"
	"github.com/Benny93/scout-go/internal/nodetype"
)

// DefaultConcurrency is the fan-out used when neither the caller nor the
// descriptor chooses one.
const DefaultConcurrency = 8

// Descriptor is the static metadata of a transform.
type Descriptor struct {
	Name        string   `validate:"required"`
	Aliases     []string `validate:"dive,required"`
	Title       string   `validate:"required"`
	Description string
	Group       string
	Tags        []string

	// Types lists the node types the transform applies to; empty means any.
	Types []nodetype.Type `validate:"dive,required"`

	Options map[string]Option `validate:"dive"`

	// Priority and Noise are ordering hints for batch runners. Scout does
	// not interpret them.
	Priority int
	Noise    int

	// DefaultConcurrency is the fan-out when the caller passes zero.
	DefaultConcurrency int `validate:"gte=0"`
}

// Handler expands one source node.
//
// Expected upstream failures are reported through sink and the results
// gathered so far are returned. A returned error marks the whole call as
// failed; the runner reports it for that node only.
type Handler interface {
	Handle(ctx context.Context, node *graph.Node, opts Options, sink diag.Sink) ([]graph.Result, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, node *graph.Node, opts Options, sink diag.Sink) ([]graph.Result, error)

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, node *graph.Node, opts Options, sink diag.Sink) ([]graph.Result, error) {
	return f(ctx, node, opts, sink)
}

// Runner is implemented by handlers that adjust how a run is driven, for
// example to force their own concurrency, before delegating to RunNodes.
type Runner interface {
	Run(ctx context.Context, t *Transform, nodes []*graph.Node, opts Options, concurrency int, sink diag.Sink) ([]graph.Result, error)
}

// Transform couples a descriptor with its handler.
type Transform struct {
	Descriptor
	Handler Handler
}

// New creates a transform.
func New(d Descriptor, h Handler) *Transform {
	return &Transform{Descriptor: d, Handler: h}
}

// Applies reports whether the transform runs on nodes of type t.
func (t *Transform) Applies(typ nodetype.Type) bool {
	return len(t.Types) == 0 || slices.Contains(t.Types, typ)
}

// Run drives the transform over nodes, through the handler's Runner if it has one.
func (t *Transform) Run(ctx context.Context, nodes []*graph.Node, opts Options, concurrency int, sink diag.Sink) ([]graph.Result, error) {
	if r, ok := t.Handler.(Runner); ok {
		return r.Run(ctx, t, nodes, opts, concurrency, sink)
	}
	return t.RunNodes(ctx, nodes, opts, concurrency, sink)
}

// RunNodes is the default runner. It keeps the nodes the transform applies
// to and calls Handle for each of them, at most concurrency at a time.
// Handler errors and panics are reported to sink and never stop the other
// nodes. Results come back in no particular order. Results without edges
// are linked to the node that produced them.
//
// The returned error is only non-nil when ctx ends before every node ran.
func (t *Transform) RunNodes(ctx context.Context, nodes []*graph.Node, opts Options, concurrency int, sink diag.Sink) ([]graph.Result, error) {
	if concurrency <= 0 {
		concurrency = t.DefaultConcurrency
	}
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	if sink == nil {
		sink = diag.Discard
	}

	var (
		mu      sync.Mutex
		results []graph.Result
	)

	var g errgroup.Group
	g.SetLimit(concurrency)

	for _, node := range nodes {
		if !t.Applies(node.Type) {
			continue
		}
		if ctx.Err() != nil {
			break
		}

		g.Go(func() error {
			nodeSink := diag.With(sink, t.Name, node.Label)

			out, err := t.handle(ctx, node, opts, nodeSink)
			if err != nil {
				diag.Errorf(nodeSink, "%v", err)
			}
			for i := range out {
				if len(out[i].Edges) == 0 {
					out[i].Edges = []string{node.ID}
				}
			}

			mu.Lock()
			results = append(results, out...)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return results, fmt.Errorf("running %s: %w", t.Name, err)
	}
	return results, nil
}

func (t *Transform) handle(ctx context.Context, node *graph.Node, opts Options, sink diag.Sink) (out []graph.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("handler panic: %v", r)
		}
	}()
	return t.Handler.Handle(ctx, node, opts, sink)
}
