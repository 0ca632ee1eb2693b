package mcp

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/Benny93/scout-go/internal/diag"
	"github.com/Benny93/scout-go/internal/graph"
	"github.com/Benny93/scout-go/internal/nodetype"
	"github.com/Benny93/scout-go/internal/scout"
)

// Tool Handlers

func handleListTransforms(orch *scout.Orchestrator) string {
	var sb strings.Builder
	sb.WriteString("# Transforms\n")

	for _, t := range orch.Transforms() {
		sb.WriteString(fmt.Sprintf("\n## %s\n\n", t.Name))
		sb.WriteString(t.Title + "\n")
		if t.Description != "" {
			sb.WriteString("\n" + t.Description + "\n")
		}
		if len(t.Aliases) > 0 {
			sb.WriteString(fmt.Sprintf("\n- Aliases: %s\n", strings.Join(t.Aliases, ", ")))
		} else {
			sb.WriteString("\n")
		}
		sb.WriteString(fmt.Sprintf("- Types: %s\n", joinTypes(t.Types)))
		for _, name := range slices.Sorted(maps.Keys(t.Options)) {
			opt := t.Options[name]
			sb.WriteString(fmt.Sprintf("- Option `%s` (%s, default %v): %s\n", name, opt.Kind, opt.Default, opt.Description))
		}
	}

	return sb.String()
}

func handleAddSeed(orch *scout.Orchestrator, values []string) string {
	if len(values) == 0 {
		return "No seed values provided."
	}

	nodes := make([]*graph.Node, 0, len(values))
	for _, v := range values {
		nodes = append(nodes, orch.AddSeed(v))
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("# Added %d seeds\n\n", len(nodes)))
	for _, n := range nodes {
		sb.WriteString(fmt.Sprintf("- **%s** (%s) `%s`\n", n.Label, n.Type, n.ID))
	}
	return sb.String()
}

func (s *Server) handleRunTransform(ctx context.Context, name string, options map[string]any, concurrency int) (string, error) {
	if name == "" {
		return "", fmt.Errorf("no transform name provided")
	}

	s.runMu.Lock()
	defer s.runMu.Unlock()

	mark := 0
	if s.events != nil {
		mark = len(s.events.Events())
	}

	touched, err := s.orch.RunTransform(ctx, name, options, concurrency)
	if err != nil && touched == nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("# %s\n\n", name))
	if len(touched) == 0 {
		sb.WriteString("No nodes created or updated.\n")
	} else {
		sb.WriteString(fmt.Sprintf("## Nodes created or updated (%d)\n\n", len(touched)))
		writeNodes(&sb, touched)
	}

	if s.events != nil {
		var problems []diag.Event
		for _, e := range s.events.Events()[mark:] {
			if e.Level != diag.LevelInfo {
				problems = append(problems, e)
			}
		}
		if len(problems) > 0 {
			sb.WriteString(fmt.Sprintf("\n## Diagnostics (%d)\n\n", len(problems)))
			for _, e := range problems {
				sb.WriteString(fmt.Sprintf("- %s: %s\n", e.Level, e.String()))
			}
		}
	}

	return sb.String(), err
}

func handleListNodes(orch *scout.Orchestrator, typ string, limit int) string {
	var types []nodetype.Type
	if typ != "" {
		types = append(types, nodetype.Type(typ))
	}

	nodes := orch.Graph().NodesByType(types...)
	if len(nodes) == 0 {
		return "No nodes found."
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("# Nodes (%d)\n\n", len(nodes)))
	if limit > 0 && len(nodes) > limit {
		writeNodes(&sb, nodes[:limit])
		sb.WriteString(fmt.Sprintf("\n... and %d more\n", len(nodes)-limit))
		return sb.String()
	}
	writeNodes(&sb, nodes)
	return sb.String()
}

func handleNode(orch *scout.Orchestrator, id, typ, label string) (string, error) {
	g := orch.Graph()

	var node *graph.Node
	switch {
	case id != "":
		node = g.Node(id)
	case typ != "" && label != "":
		node = g.Lookup(nodetype.Type(typ), label)
	default:
		return "", fmt.Errorf("provide an id, or a type and a label")
	}
	if node == nil {
		return fmt.Sprintf("Node not found: %s", strings.TrimSpace(id+" "+typ+" "+label)), nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("# %s\n\n", node.Label))
	sb.WriteString(fmt.Sprintf("- ID: `%s`\n", node.ID))
	sb.WriteString(fmt.Sprintf("- Type: %s\n", node.Type))
	if node.Image != "" {
		sb.WriteString(fmt.Sprintf("- Image: %s\n", node.Image))
	}

	if len(node.Props) > 0 {
		sb.WriteString("\n## Props\n\n")
		for _, k := range slices.Sorted(maps.Keys(node.Props)) {
			sb.WriteString(fmt.Sprintf("- %s: %v\n", k, node.Props[k]))
		}
	}

	if from := g.Incoming(node.ID); len(from) > 0 {
		sb.WriteString(fmt.Sprintf("\n## Discovered from (%d)\n\n", len(from)))
		writeNodes(&sb, from)
	}
	if to := g.Outgoing(node.ID); len(to) > 0 {
		sb.WriteString(fmt.Sprintf("\n## Led to (%d)\n\n", len(to)))
		writeNodes(&sb, to)
	}

	return sb.String(), nil
}

func getStats(orch *scout.Orchestrator) string {
	g := orch.Graph()

	counts := make(map[nodetype.Type]int)
	for _, n := range g.NodesByType() {
		counts[n.Type]++
	}

	var sb strings.Builder
	sb.WriteString("# Scout Graph\n\n")
	sb.WriteString(fmt.Sprintf("- Nodes: %d\n", g.NodeCount()))
	sb.WriteString(fmt.Sprintf("- Edges: %d\n", g.EdgeCount()))
	if len(counts) > 0 {
		sb.WriteString("\n## Nodes by type\n\n")
		for _, t := range slices.Sorted(maps.Keys(counts)) {
			sb.WriteString(fmt.Sprintf("- %s: %d\n", t, counts[t]))
		}
	}
	return sb.String()
}

func writeNodes(sb *strings.Builder, nodes []*graph.Node) {
	for _, n := range nodes {
		sb.WriteString(fmt.Sprintf("- **%s** (%s) `%s`", n.Label, n.Type, n.ID))
		if len(n.Props) > 0 {
			parts := make([]string, 0, len(n.Props))
			for _, k := range slices.Sorted(maps.Keys(n.Props)) {
				parts = append(parts, fmt.Sprintf("%s=%v", k, n.Props[k]))
			}
			sb.WriteString(" " + strings.Join(parts, ", "))
		}
		sb.WriteString("\n")
	}
}

func joinTypes(types []nodetype.Type) string {
	parts := make([]string, len(types))
	for i, t := range types {
		parts[i] = string(t)
	}
	return strings.Join(parts, ", ")
}
