package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/fatih/color"

	"github.com/Benny93/scout-go/internal/diag"
	"github.com/Benny93/scout-go/internal/metrics"
	"github.com/Benny93/scout-go/internal/scout"
	"github.com/Benny93/scout-go/internal/storage"
	"github.com/Benny93/scout-go/internal/watch"
	"github.com/Benny93/scout-go/mcp"
)

// WatchCmd re-runs a transform whenever the seeds file changes.
type WatchCmd struct {
	Name  string `arg:"" help:"Transform name or alias"`
	Seeds string `short:"s" required:"" type:"path" help:"File with one seed per line"`

	Option      map[string]string `short:"o" help:"Transform option as key=value (repeatable)"`
	Concurrency int               `short:"n" help:"Nodes expanded in parallel (0 uses the transform default)"`
	Debounce    time.Duration     `default:"2s" help:"Wait this long after the last change before re-running"`
	Format      string            `short:"f" enum:"table,json,csv" default:"table" help:"Output format (table, json, csv)"`
	Persist     bool              `short:"p" help:"Load the workspace graph first and save it after every round"`
	Snapshot    string            `default:"default" help:"Workspace snapshot name used with --persist"`
}

// Run executes the watch command.
func (c *WatchCmd) Run(g *Globals) error {
	ctx, cancel := g.context()
	defer cancel()

	orch, cfg, err := g.orchestrator(nil)
	if err != nil {
		return err
	}

	var store *storage.BadgerBackend
	if c.Persist {
		store, err = openWorkspace(cfg, false)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		if _, err := storage.LoadGraph(ctx, store, c.Snapshot, orch.Graph()); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("loading workspace: %w", err)
		}
	}

	raw := make(map[string]any, len(c.Option))
	for k, v := range c.Option {
		raw[k] = v
	}

	fmt.Fprintln(g.stdout(), "## Watch Mode")

	err = watch.Watch(ctx, orch, watch.Config{
		Seeds:       c.Seeds,
		Transform:   c.Name,
		Options:     raw,
		Concurrency: c.Concurrency,
		Debounce:    c.Debounce,
		OnRound: func(r watch.Round) {
			if r.Err != nil {
				return
			}
			if store != nil {
				if _, err := storage.SaveGraph(ctx, store, c.Snapshot, orch.Graph()); err != nil {
					color.Red("saving workspace: %v", err)
				}
			}
			_ = render(g.stdout(), c.Format, r.Touched)
		},
	}, g.sink())
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("watch error: %w", err)
	}

	fmt.Fprintln(g.stdout(), "Watch mode stopped.")
	return nil
}

// MCPCmd serves the graph over MCP.
type MCPCmd struct {
	SDK         bool   `help:"Serve through the MCP SDK stdio transport"`
	Persist     bool   `short:"p" help:"Load the workspace graph and save it after every change"`
	Snapshot    string `default:"default" help:"Workspace snapshot name used with --persist"`
	MetricsAddr string `help:"Serve prometheus metrics on this address, e.g. :9090"`
}

// Run executes the mcp command.
func (c *MCPCmd) Run(g *Globals) error {
	ctx, cancel := g.context()
	defer cancel()

	cfg, err := g.loadConfig()
	if err != nil {
		return err
	}

	// stdout carries JSON-RPC only; diagnostics go to stderr as JSON lines.
	events := &diag.Recorder{}
	sink := diag.Multi(diag.NewLogSink(g.stderr(), g.Quiet), events)

	m := metrics.NewRegistry()
	orch, err := scout.NewDefault(cfg, sink, m)
	if err != nil {
		return err
	}

	opts := []mcp.Option{mcp.WithEvents(events)}
	if c.Persist {
		store, err := openWorkspace(cfg, false)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		if _, err := storage.LoadGraph(ctx, store, c.Snapshot, orch.Graph()); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("loading workspace: %w", err)
		}
		opts = append(opts, mcp.WithStore(store, c.Snapshot))
	}

	if c.MetricsAddr != "" {
		srv := &http.Server{Addr: c.MetricsAddr, Handler: metricsMux(m), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				diag.Errorf(sink, "metrics server: %v", err)
			}
		}()
		defer func() { _ = srv.Close() }()
	}

	server := mcp.NewServer(orch, opts...)
	if c.SDK {
		return server.RunSDK(ctx)
	}
	return server.Run(ctx, os.Stdin, os.Stdout)
}

func metricsMux(m *metrics.Registry) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	return mux
}
