package graph

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Benny93/scout-go/internal/nodetype"
)

func buildSampleGraph(t *testing.T) *Graph {
	t.Helper()

	g := New()
	seed := g.AddSeed("octocat")
	site, _ := g.AddNode(nodetype.URI, "https://github.com/octocat", map[string]any{
		"code":    200,
		"secure":  true,
		"headers": map[string]string{"server": "nginx"},
	}, "")
	_, _, err := g.MergeResult(Result{
		Type:  "github:member",
		Label: "octocat",
		Image: "https://avatars.example/octocat.png",
		Props: map[string]any{"login": "octocat", "tags": []any{"a", "b"}},
		Edges: []string{seed.ID, site.ID},
	})
	require.NoError(t, err)
	return g
}

func TestSnapshot_Document(t *testing.T) {
	t.Parallel()

	g := buildSampleGraph(t)
	data, err := g.Snapshot()
	require.NoError(t, err)

	var raw struct {
		Nodes map[string]map[string]any `json:"nodes"`
		Edges [][]string                `json:"edges"`
	}
	require.NoError(t, json.Unmarshal(data, &raw))

	assert.Len(t, raw.Nodes, 3)
	assert.Len(t, raw.Edges, 2)
	member := raw.Nodes[GenerateID("github:member", "octocat")]
	assert.Equal(t, "github:member", member["type"])
	assert.Equal(t, "https://avatars.example/octocat.png", member["image"])
}

func TestSnapshot_RoundTrip(t *testing.T) {
	t.Parallel()

	g := buildSampleGraph(t)
	data, err := g.Snapshot()
	require.NoError(t, err)

	restored, err := FromSnapshot(data)
	require.NoError(t, err)

	if diff := cmp.Diff(g.NodesByType(), restored.NodesByType()); diff != "" {
		t.Errorf("nodes differ (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(g.Edges(), restored.Edges()); diff != "" {
		t.Errorf("edges differ (-want +got):\n%s", diff)
	}

	again, err := restored.Snapshot()
	require.NoError(t, err)
	assert.JSONEq(t, string(data), string(again))
}

func TestSnapshot_ForeignIDsPreserved(t *testing.T) {
	t.Parallel()

	doc := `{"nodes":{"n1":{"type":"brand","label":"acme","image":"","props":{}},
	                  "n2":{"type":"string","label":"x","image":"","props":{"k":"v"}}},
	          "edges":[["n1","n2"]]}`

	g, err := FromSnapshot([]byte(doc))
	require.NoError(t, err)

	assert.NotNil(t, g.Node("n1"))
	assert.Equal(t, "n1", g.Lookup(nodetype.Brand, "acme").ID)

	// Re-inserting the same entity collapses onto the stored id.
	node, _, err := g.MergeResult(Result{Type: nodetype.String, Label: "x", Edges: []string{"n1"}})
	require.NoError(t, err)
	assert.Equal(t, "n2", node.ID)
	assert.Equal(t, 2, g.NodeCount())
	assert.Equal(t, 1, g.EdgeCount())
}

func TestSnapshot_LoadFailureLeavesGraphUnchanged(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"Syntax":        `{"nodes": {`,
		"MissingType":   `{"nodes":{"n1":{"label":"x"}},"edges":[]}`,
		"DanglingEdge":  `{"nodes":{"n1":{"type":"brand","label":"x"}},"edges":[["n1","nope"]]}`,
		"ShortEdge":     `{"nodes":{"n1":{"type":"brand","label":"x"}},"edges":[["n1"]]}`,
		"DuplicateNode": `{"nodes":{"n1":{"type":"brand","label":"x"},"n2":{"type":"brand","label":"x"}},"edges":[]}`,
		"DuplicateID":   `{"nodes":{"n1":{"type":"brand","label":"x"},"n1":{"type":"brand","label":"y"}},"edges":[]}`,
		"Null":          `null`,
		"MissingNodes":  `{"edges":[]}`,
		"MissingEdges":  `{"nodes":{"n1":{"type":"brand","label":"x"}}}`,
		"NodesArray":    `{"nodes":[],"edges":[]}`,
	}

	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			g := buildSampleGraph(t)
			before, err := g.Snapshot()
			require.NoError(t, err)

			err = g.Load([]byte(doc))
			assert.ErrorIs(t, err, ErrSnapshotParse)

			after, err := g.Snapshot()
			require.NoError(t, err)
			assert.Equal(t, string(before), string(after))
		})
	}
}

func TestSnapshot_ReloadedPropsCompareEqual(t *testing.T) {
	t.Parallel()

	g := New()
	seed := g.AddSeed("https://example.com")
	result := Result{
		Type:  nodetype.String,
		Label: "200/HTTP",
		Props: map[string]any{"code": 200, "cached": false, "meta": map[string]any{"tries": 1}},
		Edges: []string{seed.ID},
	}
	_, _, err := g.MergeResult(result)
	require.NoError(t, err)

	data, err := g.Snapshot()
	require.NoError(t, err)
	restored, err := FromSnapshot(data)
	require.NoError(t, err)

	if diff := cmp.Diff(g.NodesByType(), restored.NodesByType()); diff != "" {
		t.Errorf("nodes differ (-want +got):\n%s", diff)
	}

	_, changed, err := restored.MergeResult(result)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestSnapshot_EmptyLabel(t *testing.T) {
	t.Parallel()

	g := New()
	g.AddSeed("")
	data, err := g.Snapshot()
	require.NoError(t, err)

	restored, err := FromSnapshot(data)
	require.NoError(t, err)
	assert.NotNil(t, restored.Lookup(nodetype.Brand, ""))
}

func TestSnapshot_Load(t *testing.T) {
	t.Parallel()

	src := buildSampleGraph(t)
	data, err := src.Snapshot()
	require.NoError(t, err)

	g := New()
	g.AddSeed("discarded")
	require.NoError(t, g.Load(data))

	assert.Equal(t, 3, g.NodeCount())
	assert.Nil(t, g.Lookup(nodetype.Brand, "discarded"))
}

// TestGraphProperties checks dedup and round trip over random merge sequences.
func TestGraphProperties(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping property-based test in short mode")
	}

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	types := []nodetype.Type{nodetype.Brand, nodetype.Software, "github:repo"}

	build := func(labels []string) *Graph {
		g := New()
		root := g.AddSeed("root")
		prev := root.ID
		for i, label := range labels {
			r := Result{
				Type:  types[i%len(types)],
				Label: label,
				Props: map[string]any{"n": fmt.Sprint(i), "i": i, "even": i%2 == 0, "nested": map[string]any{"i": i}},
				Edges: []string{root.ID, prev},
			}
			n, _, _ := g.MergeResult(r)
			prev = n.ID
		}
		return g
	}

	properties.Property("one node per distinct type and label", prop.ForAll(
		func(labels []string) bool {
			g := build(labels)
			distinct := map[identity]bool{{nodetype.Brand, "root"}: true}
			for i, label := range labels {
				distinct[identity{types[i%len(types)], label}] = true
			}
			return g.NodeCount() == len(distinct)
		},
		gen.SliceOf(gen.OneConstOf("a", "b", "c", "root", "d")),
	))

	properties.Property("snapshot round trip preserves nodes and edges", prop.ForAll(
		func(labels []string) bool {
			g := build(labels)
			data, err := g.Snapshot()
			if err != nil {
				return false
			}
			restored, err := FromSnapshot(data)
			if err != nil {
				return false
			}
			return cmp.Equal(g.NodesByType(), restored.NodesByType()) &&
				cmp.Equal(g.Edges(), restored.Edges())
		},
		gen.SliceOf(gen.AlphaString()),
	))

	properties.TestingRun(t)
}
