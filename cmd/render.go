package cmd

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	"github.com/olekukonko/tablewriter"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/Benny93/scout-go/internal/graph"
)

// Output formats accepted by --format.
const (
	FormatTable = "table"
	FormatJSON  = "json"
	FormatCSV   = "csv"
)

// render writes the props of nodes in the given format.
func render(w io.Writer, format string, nodes []*graph.Node) error {
	switch format {
	case FormatJSON:
		return renderJSON(w, nodes)
	case FormatCSV:
		return renderCSV(w, nodes)
	case FormatTable, "":
		return renderTable(w, nodes)
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

// columns is the union of prop names in first-seen order. Each node
// contributes its own keys sorted.
func columns(nodes []*graph.Node) []string {
	seen := orderedmap.New[string, struct{}]()
	for _, n := range nodes {
		keys := slices.Sorted(maps.Keys(n.Props))
		for _, k := range keys {
			seen.Set(k, struct{}{})
		}
	}

	cols := make([]string, 0, seen.Len())
	for pair := seen.Oldest(); pair != nil; pair = pair.Next() {
		cols = append(cols, pair.Key)
	}
	return cols
}

func rows(nodes []*graph.Node, cols []string) [][]string {
	out := make([][]string, 0, len(nodes))
	for _, n := range nodes {
		row := make([]string, len(cols))
		for i, c := range cols {
			row[i] = formatValue(n.Props[c])
		}
		out = append(out, row)
	}
	return out
}

func formatValue(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case map[string]any, []any:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(data)
	default:
		return fmt.Sprint(v)
	}
}

func renderTable(w io.Writer, nodes []*graph.Node) error {
	cols := columns(nodes)
	if len(cols) == 0 {
		_, err := fmt.Fprintln(w, "No results")
		return err
	}

	table := tablewriter.NewWriter(w)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetHeader(cols)
	table.AppendBulk(rows(nodes, cols))
	table.Render()
	return nil
}

// renderJSON writes one props object per line inside a JSON array.
func renderJSON(w io.Writer, nodes []*graph.Node) error {
	lines := make([]string, 0, len(nodes))
	for _, n := range nodes {
		data, err := json.Marshal(n.Props)
		if err != nil {
			return fmt.Errorf("encoding %s: %w", n.Label, err)
		}
		lines = append(lines, string(data))
	}

	if len(lines) == 0 {
		_, err := fmt.Fprintln(w, "[]")
		return err
	}
	_, err := fmt.Fprintf(w, "[\n%s\n]\n", strings.Join(lines, ",\n"))
	return err
}

// renderCSV writes a '#'-prefixed header line followed by one record per node.
func renderCSV(w io.Writer, nodes []*graph.Node) error {
	cols := columns(nodes)
	if len(cols) == 0 {
		return nil
	}

	cw := csv.NewWriter(w)
	header := slices.Clone(cols)
	header[0] = "#" + header[0]
	if err := cw.Write(header); err != nil {
		return err
	}
	if err := cw.WriteAll(rows(nodes, cols)); err != nil {
		return fmt.Errorf("writing csv: %w", err)
	}
	return nil
}
