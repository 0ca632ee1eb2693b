package cmd

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"

	"github.com/fatih/color"

	"github.com/Benny93/scout-go/internal/storage"
)

// TransformCmd runs one transform.
type TransformCmd struct {
	Name  string   `arg:"" help:"Transform name or alias"`
	Seeds []string `arg:"" optional:"" help:"Seed values added to the graph before running"`

	Option      map[string]string `short:"o" help:"Transform option as key=value (repeatable)"`
	Read        string            `short:"r" type:"path" help:"Load a snapshot file before adding seeds"`
	Write       string            `short:"w" type:"path" help:"Write the graph snapshot after running"`
	Format      string            `short:"f" enum:"table,json,csv" default:"table" help:"Output format (table, json, csv)"`
	Concurrency int               `short:"n" help:"Nodes expanded in parallel (0 uses the transform default)"`
	Persist     bool              `short:"p" help:"Load the workspace graph before and save it after"`
	Snapshot    string            `default:"default" help:"Workspace snapshot name used with --persist"`
}

// Run executes the transform command.
func (c *TransformCmd) Run(g *Globals) error {
	ctx, cancel := g.context()
	defer cancel()

	orch, cfg, err := g.orchestrator(nil)
	if err != nil {
		return err
	}

	snapshot := c.Snapshot
	if snapshot == "" {
		snapshot = storage.DefaultSnapshot
	}

	var store *storage.BadgerBackend
	if c.Persist {
		store, err = openWorkspace(cfg, false)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		_, err := storage.LoadGraph(ctx, store, snapshot, orch.Graph())
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("loading workspace: %w", err)
		}
	}

	if c.Read != "" {
		data, err := os.ReadFile(c.Read)
		if err != nil {
			return fmt.Errorf("reading %s: %w", c.Read, err)
		}
		if err := orch.Load(data); err != nil {
			return fmt.Errorf("loading %s: %w", c.Read, err)
		}
	}

	for _, seed := range c.Seeds {
		orch.AddSeed(seed)
	}

	touched, runErr := orch.RunTransform(ctx, c.Name, c.options(), c.Concurrency)
	if runErr != nil && touched == nil {
		return runErr
	}

	if c.Write != "" {
		data, err := orch.Snapshot()
		if err != nil {
			return err
		}
		if err := os.WriteFile(c.Write, data, 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", c.Write, err)
		}
	}

	if store != nil {
		if _, err := storage.SaveGraph(ctx, store, snapshot, orch.Graph()); err != nil {
			return fmt.Errorf("saving workspace: %w", err)
		}
	}

	if err := render(g.stdout(), c.Format, touched); err != nil {
		return err
	}
	return runErr
}

func (c *TransformCmd) options() map[string]any {
	raw := make(map[string]any, len(c.Option))
	for k, v := range c.Option {
		raw[k] = v
	}
	return raw
}

// TransformsCmd lists the registered transforms.
type TransformsCmd struct {
	Verbose bool `short:"v" help:"Show options and descriptions"`
}

// Run executes the transforms command.
func (c *TransformsCmd) Run(g *Globals) error {
	orch, _, err := g.orchestrator(nil)
	if err != nil {
		return err
	}

	out := g.stdout()
	for _, t := range orch.Transforms() {
		name := t.Name
		if len(t.Aliases) > 0 {
			name += " (" + strings.Join(t.Aliases, ", ") + ")"
		}
		fmt.Fprintf(out, "%s\n", color.GreenString(name))
		fmt.Fprintf(out, "  %s\n", t.Title)
		fmt.Fprintf(out, "  Types: %v\n", t.Types)
		if !c.Verbose {
			continue
		}
		if t.Description != "" {
			fmt.Fprintf(out, "  %s\n", t.Description)
		}
		for _, name := range slices.Sorted(maps.Keys(t.Options)) {
			opt := t.Options[name]
			fmt.Fprintf(out, "  --option %s=<%s>  %s (default %v)\n", name, opt.Kind, opt.Description, opt.Default)
		}
	}
	return nil
}
