package graph

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/Benny93/scout-go/internal/nodetype"
)

// ErrSnapshotParse is returned for malformed snapshot documents.
var ErrSnapshotParse = errors.New("invalid snapshot")

// snapshotNode is the persisted form of a node; the id is the map key.
type snapshotNode struct {
	Type  nodetype.Type  `json:"type"`
	Label string         `json:"label"`
	Image string         `json:"image"`
	Props map[string]any `json:"props"`
}

// document is the persisted graph. Nodes keep their insertion order.
type document struct {
	Nodes *orderedmap.OrderedMap[string, snapshotNode] `json:"nodes"`
	Edges [][]string                                   `json:"edges"`
}

// Snapshot serializes the full node table and edge set.
func (g *Graph) Snapshot() ([]byte, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	doc := document{
		Nodes: orderedmap.New[string, snapshotNode](),
		Edges: make([][]string, 0, len(g.edgeList)),
	}
	for _, id := range g.order {
		n := g.nodes[id]
		props := n.Props
		if props == nil {
			props = map[string]any{}
		}
		doc.Nodes.Set(id, snapshotNode{Type: n.Type, Label: n.Label, Image: n.Image, Props: props})
	}
	for _, e := range g.edgeList {
		doc.Edges = append(doc.Edges, []string{e.Source, e.Target})
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshaling snapshot: %w", err)
	}
	return data, nil
}

// FromSnapshot builds a new graph from a snapshot document.
func FromSnapshot(data []byte) (*Graph, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSnapshotParse, err)
	}
	if doc.Nodes == nil {
		return nil, fmt.Errorf("%w: missing nodes", ErrSnapshotParse)
	}
	if doc.Edges == nil {
		return nil, fmt.Errorf("%w: missing edges", ErrSnapshotParse)
	}
	if err := checkNodeIDs(data); err != nil {
		return nil, err
	}

	g := New()
	for pair := doc.Nodes.Oldest(); pair != nil; pair = pair.Next() {
		id, sn := pair.Key, pair.Value
		if id == "" || sn.Type == "" {
			return nil, fmt.Errorf("%w: node %q has no id or type", ErrSnapshotParse, id)
		}
		key := identity{sn.Type, sn.Label}
		if other, dup := g.identity[key]; dup {
			return nil, fmt.Errorf("%w: nodes %s and %s share type %s and label %q", ErrSnapshotParse, other, id, sn.Type, sn.Label)
		}
		props := sn.Props
		if props == nil {
			props = make(map[string]any)
		}
		g.insertLocked(&Node{ID: id, Type: sn.Type, Label: sn.Label, Image: sn.Image, Props: props})
	}

	for i, pair := range doc.Edges {
		if len(pair) != 2 {
			return nil, fmt.Errorf("%w: edge %d has %d endpoints", ErrSnapshotParse, i, len(pair))
		}
		source, target := pair[0], pair[1]
		if _, ok := g.nodes[source]; !ok {
			return nil, fmt.Errorf("%w: edge %d references unknown source %s", ErrSnapshotParse, i, source)
		}
		if _, ok := g.nodes[target]; !ok {
			return nil, fmt.Errorf("%w: edge %d references unknown target %s", ErrSnapshotParse, i, target)
		}
		g.addEdgeLocked(source, target)
	}

	return g, nil
}

// Load replaces the graph contents with the snapshot. On error the graph is unchanged.
func (g *Graph) Load(data []byte) error {
	loaded, err := FromSnapshot(data)
	if err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.nodes = loaded.nodes
	g.order = loaded.order
	g.identity = loaded.identity
	g.edges = loaded.edges
	g.edgeList = loaded.edgeList
	g.outgoing = loaded.outgoing
	g.incoming = loaded.incoming
	return nil
}

// checkNodeIDs rejects a document whose nodes object repeats an id. The
// ordered map keeps only the last of repeated keys.
func checkNodeIDs(data []byte) error {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return fmt.Errorf("%w: %v", ErrSnapshotParse, err)
	}

	dec := json.NewDecoder(bytes.NewReader(top["nodes"]))
	if tok, err := dec.Token(); err != nil || tok != json.Delim('{') {
		return fmt.Errorf("%w: nodes is not an object", ErrSnapshotParse)
	}

	seen := make(map[string]struct{})
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrSnapshotParse, err)
		}
		id, _ := tok.(string)
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: node id %s appears more than once", ErrSnapshotParse, id)
		}
		seen[id] = struct{}{}

		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return fmt.Errorf("%w: %v", ErrSnapshotParse, err)
		}
	}
	return nil
}
