package graph

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/Benny93/scout-go/internal/nodetype"
)

// ErrUnknownSource is returned when a result names a source id that is not in the graph.
var ErrUnknownSource = errors.New("unknown source node")

// Graph is an in-memory directed graph of discovered entities.
//
// Nodes are keyed by id and indexed by (type, label) so that re-inserting
// the same entity collapses onto the existing node. Node order follows
// insertion. The graph only grows: there is no removal primitive.
//
// Accessors return copies; callers never hold references into graph state.
type Graph struct {
	mu       sync.RWMutex
	nodes    map[string]*Node
	order    []string
	identity map[identity]string

	edges    map[Edge]struct{}
	edgeList []Edge
	outgoing map[string][]string
	incoming map[string][]string
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{
		nodes:    make(map[string]*Node),
		identity: make(map[identity]string),
		edges:    make(map[Edge]struct{}),
		outgoing: make(map[string][]string),
		incoming: make(map[string][]string),
	}
}

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// EdgeCount returns the number of edges.
func (g *Graph) EdgeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.edgeList)
}

// AddNode returns the node for (t, label), creating it if needed and merging
// props and image into it otherwise. The bool reports whether the graph changed.
func (g *Graph) AddNode(t nodetype.Type, label string, props map[string]any, image string) (*Node, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	node, changed := g.addNodeLocked(t, label, props, image)
	return node.Clone(), changed
}

// AddSeed wraps a raw string into a node of the inferred type, labelled
// with the trimmed string.
func (g *Graph) AddSeed(raw string) *Node {
	label := strings.TrimSpace(raw)
	node, _ := g.AddNode(nodetype.Infer(label), label, nil, "")
	return node
}

// MergeResult adds the result as a node and links it from every listed source.
// Duplicate edges are ignored. Unknown source ids are skipped and reported in
// the returned error; the node and the remaining edges are still merged.
func (g *Graph) MergeResult(r Result) (*Node, bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	node, changed := g.addNodeLocked(r.Type, r.Label, r.Props, r.Image)

	var errs []error
	for _, source := range r.Edges {
		if _, ok := g.nodes[source]; !ok {
			errs = append(errs, fmt.Errorf("%w: %s", ErrUnknownSource, source))
			continue
		}
		if g.addEdgeLocked(source, node.ID) {
			changed = true
		}
	}

	return node.Clone(), changed, errors.Join(errs...)
}

// Node returns the node with the given id, or nil.
func (g *Graph) Node(id string) *Node {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if n, ok := g.nodes[id]; ok {
		return n.Clone()
	}
	return nil
}

// Lookup returns the node for (t, label), or nil.
func (g *Graph) Lookup(t nodetype.Type, label string) *Node {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if id, ok := g.identity[identity{t, label}]; ok {
		return g.nodes[id].Clone()
	}
	return nil
}

// NodesByType returns the nodes matching any of the given types in insertion
// order. Without types, every node is returned.
func (g *Graph) NodesByType(types ...nodetype.Type) []*Node {
	g.mu.RLock()
	defer g.mu.RUnlock()

	want := make(map[nodetype.Type]bool, len(types))
	for _, t := range types {
		want[t] = true
	}

	result := make([]*Node, 0, len(g.order))
	for _, id := range g.order {
		n := g.nodes[id]
		if len(want) > 0 && !want[n.Type] {
			continue
		}
		result = append(result, n.Clone())
	}
	return result
}

// Edges returns every edge in insertion order.
func (g *Graph) Edges() []Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]Edge(nil), g.edgeList...)
}

// Outgoing returns the nodes discovered from the given node.
func (g *Graph) Outgoing(id string) []*Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.collectLocked(g.outgoing[id])
}

// Incoming returns the nodes the given node was discovered from.
func (g *Graph) Incoming(id string) []*Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.collectLocked(g.incoming[id])
}

// Stats returns a summary of graph size.
func (g *Graph) Stats() map[string]int {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return map[string]int{
		"nodes": len(g.nodes),
		"edges": len(g.edgeList),
	}
}

func (g *Graph) collectLocked(ids []string) []*Node {
	nodes := make([]*Node, 0, len(ids))
	for _, id := range ids {
		nodes = append(nodes, g.nodes[id].Clone())
	}
	return nodes
}

// addNodeLocked must be called with the write lock held.
func (g *Graph) addNodeLocked(t nodetype.Type, label string, props map[string]any, image string) (*Node, bool) {
	key := identity{t, label}
	if id, ok := g.identity[key]; ok {
		node := g.nodes[id]
		return node, mergeInto(node, props, image)
	}

	node := &Node{
		ID:    GenerateID(t, label),
		Type:  t,
		Label: label,
		Image: image,
		Props: make(map[string]any, len(props)),
	}
	for k, v := range props {
		node.Props[k] = jsonValue(v)
	}
	g.insertLocked(node)
	return node, true
}

// insertLocked indexes a node under its own id. Must be called with the write lock held.
func (g *Graph) insertLocked(node *Node) {
	g.nodes[node.ID] = node
	g.identity[identity{node.Type, node.Label}] = node.ID
	g.order = append(g.order, node.ID)
}

// addEdgeLocked reports whether the edge was new. Must be called with the write lock held.
func (g *Graph) addEdgeLocked(source, target string) bool {
	e := Edge{Source: source, Target: target}
	if _, ok := g.edges[e]; ok {
		return false
	}
	g.edges[e] = struct{}{}
	g.edgeList = append(g.edgeList, e)
	g.outgoing[source] = append(g.outgoing[source], target)
	g.incoming[target] = append(g.incoming[target], source)
	return true
}

// mergeInto overwrites existing keys with newly supplied values and keeps the rest.
func mergeInto(node *Node, props map[string]any, image string) bool {
	changed := false
	if image != "" && image != node.Image {
		node.Image = image
		changed = true
	}
	for k, v := range props {
		v = jsonValue(v)
		if old, ok := node.Props[k]; ok && reflect.DeepEqual(old, v) {
			continue
		}
		node.Props[k] = v
		changed = true
	}
	return changed
}

// jsonValue returns v in the form it reads back from a snapshot, so numbers
// become float64 and typed slices, maps and structs become []any and
// map[string]any. Values that cannot be encoded are kept as they are.
func jsonValue(v any) any {
	switch v.(type) {
	case nil, string, bool, float64:
		return v
	}
	data, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return v
	}
	return out
}
