// Package scout runs transforms over the reconnaissance graph.
//
// The Orchestrator owns the graph. It picks the candidate nodes a transform
// applies to, lets the transform fan out over them, and merges the results
// back in a single pass once the run has finished.
package scout

import (
	"context"
	"fmt"
	"sync"

	"github.com/Benny93/scout-go/internal/diag"
	"github.com/Benny93/scout-go/internal/graph"
	"github.com/Benny93/scout-go/internal/metrics"
	"github.com/Benny93/scout-go/internal/transform"
)

// Orchestrator runs named transforms against one graph.
type Orchestrator struct {
	graph       *graph.Graph
	registry    *transform.Registry
	sink        diag.Sink
	metrics     *metrics.Registry
	concurrency int

	// mergeMu admits one merge pass at a time.
	mergeMu sync.Mutex
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithGraph starts from an existing graph instead of an empty one.
func WithGraph(g *graph.Graph) Option {
	return func(o *Orchestrator) { o.graph = g }
}

// WithMetrics records runs, results and graph size in m.
func WithMetrics(m *metrics.Registry) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithConcurrency sets the fan-out used when a run passes zero.
func WithConcurrency(n int) Option {
	return func(o *Orchestrator) { o.concurrency = n }
}

// New creates an orchestrator over the transforms in reg.
func New(reg *transform.Registry, sink diag.Sink, opts ...Option) *Orchestrator {
	if sink == nil {
		sink = diag.Discard
	}
	o := &Orchestrator{registry: reg, sink: sink}
	for _, opt := range opts {
		opt(o)
	}
	if o.graph == nil {
		o.graph = graph.New()
	}
	return o
}

// Graph returns the graph being built.
func (o *Orchestrator) Graph() *graph.Graph { return o.graph }

// Transforms returns the registered transforms sorted by name.
func (o *Orchestrator) Transforms() []*transform.Transform { return o.registry.All() }

// Lookup resolves a transform name or alias.
func (o *Orchestrator) Lookup(name string) (*transform.Transform, error) {
	return o.registry.Lookup(name)
}

// AddSeed adds a node for raw, inferring its type.
func (o *Orchestrator) AddSeed(raw string) *graph.Node {
	n := o.graph.AddSeed(raw)
	o.observeGraph()
	return n
}

// Snapshot serializes the graph.
func (o *Orchestrator) Snapshot() ([]byte, error) {
	return o.graph.Snapshot()
}

// Load replaces the graph with a snapshot. On error the graph is unchanged.
func (o *Orchestrator) Load(data []byte) error {
	if err := o.graph.Load(data); err != nil {
		diag.Errorf(o.sink, "loading snapshot: %v", err)
		return err
	}
	diag.Infof(o.sink, "loaded %d nodes and %d edges", o.graph.NodeCount(), o.graph.EdgeCount())
	o.observeGraph()
	return nil
}

// RunTransform runs the named transform over every node it applies to and
// merges the results. It returns the nodes that were created or changed, in
// the order they were first touched. A concurrency of zero uses the
// orchestrator default, then the transform's own.
//
// Name and option errors are returned before any node is processed. Handler
// and merge failures are reported to the sink and do not fail the run.
func (o *Orchestrator) RunTransform(ctx context.Context, name string, raw map[string]any, concurrency int) ([]*graph.Node, error) {
	t, err := o.registry.Lookup(name)
	if err != nil {
		diag.Errorf(o.sink, "%v", err)
		return nil, err
	}
	sink := diag.With(o.countErrors(t.Name), t.Name, "")

	opts, err := transform.ResolveOptions(t.Options, raw)
	if err != nil {
		diag.Errorf(sink, "%v", err)
		return nil, fmt.Errorf("%s: %w", t.Name, err)
	}

	candidates := o.graph.NodesByType(t.Types...)
	if len(candidates) == 0 {
		if len(t.Types) == 0 {
			diag.Warnf(sink, "graph is empty")
		} else {
			diag.Warnf(sink, "no nodes of type %v to run on", t.Types)
		}
		return nil, nil
	}
	if concurrency <= 0 {
		concurrency = o.concurrency
	}

	if o.metrics != nil {
		o.metrics.TransformRuns.WithLabelValues(t.Name).Inc()
	}
	diag.Infof(sink, "running on %d nodes", len(candidates))

	results, runErr := t.Run(ctx, candidates, opts, concurrency, sink)
	if o.metrics != nil {
		o.metrics.TransformResults.WithLabelValues(t.Name).Add(float64(len(results)))
	}

	touched := o.merge(results, sink)
	o.observeGraph()

	diag.Infof(sink, "%d results, %d nodes created or updated", len(results), len(touched))
	if runErr != nil {
		diag.Errorf(sink, "%v", runErr)
		return touched, runErr
	}
	return touched, nil
}

// merge folds results into the graph in one serialized pass.
func (o *Orchestrator) merge(results []graph.Result, sink diag.Sink) []*graph.Node {
	o.mergeMu.Lock()
	defer o.mergeMu.Unlock()

	var (
		touched []*graph.Node
		index   = make(map[string]int)
	)
	for _, r := range results {
		node, changed, err := o.graph.MergeResult(r)
		if err != nil {
			diag.Errorf(sink, "merging %s %q: %v", r.Type, r.Label, err)
		}
		if !changed {
			continue
		}
		if i, ok := index[node.ID]; ok {
			touched[i] = node
			continue
		}
		index[node.ID] = len(touched)
		touched = append(touched, node)
	}
	return touched
}

func (o *Orchestrator) countErrors(name string) diag.Sink {
	if o.metrics == nil {
		return o.sink
	}
	counter := o.metrics.TransformErrors.WithLabelValues(name)
	return diag.SinkFunc(func(e diag.Event) {
		if e.Level == diag.LevelError {
			counter.Inc()
		}
		o.sink.Emit(e)
	})
}

func (o *Orchestrator) observeGraph() {
	if o.metrics == nil {
		return
	}
	o.metrics.GraphNodes.Set(float64(o.graph.NodeCount()))
	o.metrics.GraphEdges.Set(float64(o.graph.EdgeCount()))
}
