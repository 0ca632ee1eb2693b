// Package graph provides the reconnaissance graph data model for Scout.
//
// It defines the node, edge and result types that represent discovered
// entities (domains, repositories, software versions, etc.) and the
// discovery relations between them.
package graph

import (
	"crypto/sha256"
	"encoding/hex"
	"maps"

	"github.com/Benny93/scout-go/internal/nodetype"
)

// Node represents an entity in the reconnaissance graph.
type Node struct {
	// ID is derived from Type and Label, see GenerateID.
	ID string `json:"id"`

	// Type is the node type tag.
	Type nodetype.Type `json:"type"`

	// Label is the human-readable identity of the entity.
	Label string `json:"label"`

	// Image is an optional display hint (e.g. an avatar URL).
	Image string `json:"image,omitempty"`

	// Props holds attributes discovered by transforms.
	Props map[string]any `json:"props,omitempty"`
}

// Prop returns a property value.
func (n *Node) Prop(key string) (any, bool) {
	if n.Props == nil {
		return nil, false
	}
	v, ok := n.Props[key]
	return v, ok
}

// PropString returns a property as a string, or "" if absent or not a string.
func (n *Node) PropString(key string) string {
	v, ok := n.Prop(key)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// Clone returns a copy of the node with its own props map.
func (n *Node) Clone() *Node {
	c := *n
	c.Props = maps.Clone(n.Props)
	if c.Props == nil {
		c.Props = make(map[string]any)
	}
	return &c
}

// Edge is a directed discovery relation: Target was found while expanding Source.
type Edge struct {
	Source string
	Target string
}

// Result is the transient output of a transform handler, not yet a graph node.
type Result struct {
	Type  nodetype.Type  `json:"type"`
	Label string         `json:"label"`
	Image string         `json:"image,omitempty"`
	Props map[string]any `json:"props,omitempty"`

	// Edges lists the ids of the source nodes this result was discovered from.
	Edges []string `json:"edges"`
}

// GenerateID derives the node id from its type and label.
// The NUL separator keeps "a:b"+"c" and "a"+"b:c" apart.
func GenerateID(t nodetype.Type, label string) string {
	h := sha256.New()
	h.Write([]byte(t))
	h.Write([]byte{0})
	h.Write([]byte(label))
	return hex.EncodeToString(h.Sum(nil)[:16])
}

// identity is the dedup key of a node.
type identity struct {
	Type  nodetype.Type
	Label string
}
