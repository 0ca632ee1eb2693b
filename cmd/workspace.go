package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"

	"github.com/Benny93/scout-go/internal/graph"
	"github.com/Benny93/scout-go/internal/nodetype"
	"github.com/Benny93/scout-go/internal/storage"
)

// loadWorkspaceGraph reads the named snapshot from a read-only workspace.
func loadWorkspaceGraph(ctx context.Context, g *Globals, name string) (*graph.Graph, storage.Info, error) {
	cfg, err := g.loadConfig()
	if err != nil {
		return nil, storage.Info{}, err
	}
	store, err := openWorkspace(cfg, true)
	if err != nil {
		return nil, storage.Info{}, err
	}
	defer func() { _ = store.Close() }()

	gr := graph.New()
	info, err := storage.LoadGraph(ctx, store, name, gr)
	if err != nil {
		return nil, storage.Info{}, fmt.Errorf("loading snapshot %s: %w", name, err)
	}
	return gr, info, nil
}

// NodesCmd lists nodes of the workspace graph.
type NodesCmd struct {
	Type     []string `short:"t" help:"Only list nodes of these types"`
	Format   string   `short:"f" enum:"table,json,csv" default:"table" help:"Output format (table, json, csv)"`
	Snapshot string   `default:"default" help:"Workspace snapshot name"`
}

// Run executes the nodes command.
func (c *NodesCmd) Run(g *Globals) error {
	ctx := context.Background()
	gr, _, err := loadWorkspaceGraph(ctx, g, c.Snapshot)
	if err != nil {
		return err
	}

	types := make([]nodetype.Type, len(c.Type))
	for i, t := range c.Type {
		types[i] = nodetype.Type(t)
	}

	nodes := gr.NodesByType(types...)
	rowsOut := make([]*graph.Node, len(nodes))
	for i, n := range nodes {
		// Label and type lead so every node renders, props or not.
		n.Props["label"] = n.Label
		n.Props["type"] = string(n.Type)
		rowsOut[i] = n
	}
	return render(g.stdout(), c.Format, rowsOut)
}

// ExportCmd writes a workspace snapshot to a file or stdout.
type ExportCmd struct {
	File     string `arg:"" optional:"" type:"path" help:"Output file (stdout when omitted)"`
	Snapshot string `default:"default" help:"Workspace snapshot name"`
}

// Run executes the export command.
func (c *ExportCmd) Run(g *Globals) error {
	gr, _, err := loadWorkspaceGraph(context.Background(), g, c.Snapshot)
	if err != nil {
		return err
	}
	data, err := gr.Snapshot()
	if err != nil {
		return err
	}

	if c.File == "" {
		_, err := fmt.Fprintln(g.stdout(), string(data))
		return err
	}
	if err := os.WriteFile(c.File, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", c.File, err)
	}
	color.New(color.FgGreen).Fprintf(g.stderr(), "Exported %d nodes and %d edges to %s\n", gr.NodeCount(), gr.EdgeCount(), c.File)
	return nil
}

// ImportCmd loads a snapshot file into the workspace, replacing the stored graph.
type ImportCmd struct {
	File     string `arg:"" type:"existingfile" help:"Snapshot file"`
	Snapshot string `default:"default" help:"Workspace snapshot name"`
}

// Run executes the import command.
func (c *ImportCmd) Run(g *Globals) error {
	ctx := context.Background()
	data, err := os.ReadFile(c.File)
	if err != nil {
		return fmt.Errorf("reading %s: %w", c.File, err)
	}
	gr, err := graph.FromSnapshot(data)
	if err != nil {
		return fmt.Errorf("loading %s: %w", c.File, err)
	}

	cfg, err := g.loadConfig()
	if err != nil {
		return err
	}
	store, err := openWorkspace(cfg, false)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	info, err := storage.SaveGraph(ctx, store, c.Snapshot, gr)
	if err != nil {
		return fmt.Errorf("saving workspace: %w", err)
	}
	color.New(color.FgGreen).Fprintf(g.stderr(), "Imported %d nodes and %d edges as %s\n", info.Nodes, info.Edges, info.Name)
	return nil
}

// StatusCmd shows the snapshots stored in the workspace.
type StatusCmd struct{}

// Run executes the status command.
func (c *StatusCmd) Run(g *Globals) error {
	cfg, err := g.loadConfig()
	if err != nil {
		return err
	}
	store, err := openWorkspace(cfg, true)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	infos, err := store.List(context.Background())
	if err != nil {
		return fmt.Errorf("listing snapshots: %w", err)
	}

	out := g.stdout()
	fmt.Fprintf(out, "Workspace %s\n", cfg.Workspace)
	if len(infos) == 0 {
		fmt.Fprintln(out, "  No snapshots")
		return nil
	}
	for _, info := range infos {
		fmt.Fprintf(out, "\n  %s\n", info.Name)
		fmt.Fprintf(out, "    Nodes:   %d\n", info.Nodes)
		fmt.Fprintf(out, "    Edges:   %d\n", info.Edges)
		fmt.Fprintf(out, "    Size:    %d bytes\n", info.Size)
		fmt.Fprintf(out, "    Saved:   %s\n", info.SavedAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}

// CleanCmd deletes the workspace, or one snapshot in it.
type CleanCmd struct {
	Force    bool   `short:"f" help:"Skip confirmation"`
	Snapshot string `help:"Only delete this snapshot"`

	// In is read for the confirmation answer. Nil means stdin.
	In io.Reader `kong:"-"`
}

// Run executes the clean command.
func (c *CleanCmd) Run(g *Globals) error {
	cfg, err := g.loadConfig()
	if err != nil {
		return err
	}
	if _, err := os.Stat(cfg.Workspace); errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("no workspace found at %s. Nothing to clean", cfg.Workspace)
	}

	target := cfg.Workspace
	if c.Snapshot != "" {
		target = fmt.Sprintf("snapshot %s in %s", c.Snapshot, cfg.Workspace)
	}

	if !c.Force && !c.confirm(g.stdout(), target) {
		fmt.Fprintln(g.stdout(), "Aborted")
		return nil
	}

	if c.Snapshot != "" {
		store, err := openWorkspace(cfg, false)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()
		if err := store.Delete(context.Background(), c.Snapshot); err != nil {
			return fmt.Errorf("deleting snapshot: %w", err)
		}
	} else if err := os.RemoveAll(cfg.Workspace); err != nil {
		return fmt.Errorf("deleting workspace: %w", err)
	}

	color.New(color.FgGreen).Fprintf(g.stdout(), "Deleted %s\n", target)
	return nil
}

func (c *CleanCmd) confirm(out io.Writer, target string) bool {
	in := c.In
	if in == nil {
		in = os.Stdin
	}
	fmt.Fprintf(out, "Delete %s? [y/N] ", target)
	answer, _ := bufio.NewReader(in).ReadString('\n')
	answer = strings.TrimSpace(answer)
	return answer == "y" || answer == "Y"
}

// SetupCmd prints the effective configuration or writes it to --config.
type SetupCmd struct {
	Write bool `help:"Write the configuration to the --config path"`
}

// Run executes the setup command.
func (c *SetupCmd) Run(g *Globals) error {
	cfg, err := g.loadConfig()
	if err != nil {
		return err
	}

	if !c.Write {
		// Keys stay out of terminal output.
		shown := *cfg
		if shown.GitHub.Key != "" {
			shown.GitHub.Key = "<redacted>"
		}
		data, err := shown.Marshal()
		if err != nil {
			return err
		}
		_, err = g.stdout().Write(data)
		return err
	}

	if err := cfg.Save(g.Config); err != nil {
		return err
	}
	color.New(color.FgGreen).Fprintf(g.stdout(), "Wrote %s\n", g.Config)
	return nil
}
