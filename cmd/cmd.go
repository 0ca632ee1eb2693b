// Package cmd provides CLI command implementations for Scout.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/Benny93/scout-go/internal/config"
	"github.com/Benny93/scout-go/internal/diag"
	"github.com/Benny93/scout-go/internal/metrics"
	"github.com/Benny93/scout-go/internal/scout"
	"github.com/Benny93/scout-go/internal/storage"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Globals are the flags shared by every command.
type Globals struct {
	Config    string `short:"c" type:"path" default:"${config_path}" help:"Config file"`
	Workspace string `type:"path" help:"Workspace directory (overrides config)"`
	Quiet     bool   `short:"q" help:"Suppress info diagnostics"`
	LogFormat string `enum:"console,json" default:"console" help:"Diagnostics format (console, json)"`

	// Out receives command output and Err diagnostics. Nil means stdout and stderr.
	Out io.Writer `kong:"-"`
	Err io.Writer `kong:"-"`
}

func (g *Globals) stdout() io.Writer {
	if g.Out == nil {
		return os.Stdout
	}
	return g.Out
}

func (g *Globals) stderr() io.Writer {
	if g.Err == nil {
		return os.Stderr
	}
	return g.Err
}

// sink returns the diagnostics sink selected by --log-format.
func (g *Globals) sink() diag.Sink {
	if g.LogFormat == "json" {
		return diag.NewLogSink(g.stderr(), g.Quiet)
	}
	return diag.NewConsoleSink(g.stderr(), g.Quiet)
}

func (g *Globals) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(g.Config)
	if err != nil {
		return nil, err
	}
	if g.Workspace != "" {
		cfg.Workspace = g.Workspace
	}
	return cfg, nil
}

// orchestrator builds the default orchestrator from the loaded config.
func (g *Globals) orchestrator(m *metrics.Registry) (*scout.Orchestrator, *config.Config, error) {
	cfg, err := g.loadConfig()
	if err != nil {
		return nil, nil, err
	}
	orch, err := scout.NewDefault(cfg, g.sink(), m)
	if err != nil {
		return nil, nil, err
	}
	return orch, cfg, nil
}

// context returns a context cancelled on SIGINT or SIGTERM.
func (g *Globals) context() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigs := osSignalChannel()
	go func() {
		defer signal.Stop(sigs)
		select {
		case <-sigs:
			fmt.Fprintln(g.stderr(), "\nInterrupted, stopping...")
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// osSignalChannel returns a channel that receives OS signals for graceful shutdown.
func osSignalChannel() chan os.Signal {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	return sigChan
}

func workspaceDB(cfg *config.Config) string {
	return filepath.Join(cfg.Workspace, "badger")
}

// openWorkspace opens the badger workspace. A read-only open requires an
// existing workspace.
func openWorkspace(cfg *config.Config, readOnly bool) (*storage.BadgerBackend, error) {
	dbPath := workspaceDB(cfg)
	if readOnly {
		if _, err := os.Stat(dbPath); errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("no workspace found at %s. Run 'scout transform --persist' or 'scout import' first", cfg.Workspace)
		}
	}

	if err := os.MkdirAll(cfg.Workspace, 0o755); err != nil {
		return nil, fmt.Errorf("creating workspace directory: %w", err)
	}

	store := storage.NewBadgerBackend()
	if err := store.Initialize(dbPath, readOnly); err != nil {
		return nil, fmt.Errorf("initializing storage: %w", err)
	}
	return store, nil
}

// CLI is the root Kong command structure.
type CLI struct {
	Globals

	Version kong.VersionFlag `help:"Show version information"`

	// Commands
	Transform  TransformCmd  `cmd:"" aliases:"t" help:"Run a transform over seeds and the loaded graph"`
	Transforms TransformsCmd `cmd:"" help:"List registered transforms"`
	Nodes      NodesCmd      `cmd:"" help:"List nodes in the workspace graph"`
	Export     ExportCmd     `cmd:"" help:"Write the workspace graph as a snapshot file"`
	Import     ImportCmd     `cmd:"" help:"Load a snapshot file into the workspace"`
	Watch      WatchCmd      `cmd:"" help:"Re-run a transform whenever a seeds file changes"`
	MCP        MCPCmd        `cmd:"" help:"Start MCP server (stdio transport)"`
	Status     StatusCmd     `cmd:"" help:"Show workspace status"`
	Clean      CleanCmd      `cmd:"" help:"Delete the workspace"`
	Setup      SetupCmd      `cmd:"" help:"Print or write the effective configuration"`
}

// NewCLI creates a new CLI instance.
func NewCLI() *CLI {
	return &CLI{}
}

// Execute parses command-line arguments and executes the selected command.
func (c *CLI) Execute(args []string) error {
	parser, err := kong.New(c,
		kong.Name("scout"),
		kong.Description("Reconnaissance graph builder"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact:             true,
			NoExpandSubcommands: true,
		}),
		kong.Vars{
			"version":     Version,
			"config_path": config.DefaultPath(),
		},
		kong.Bind(&c.Globals),
	)
	if err != nil {
		return err
	}

	kongCtx, err := parser.Parse(args)
	if err != nil {
		return err
	}
	return kongCtx.Run()
}
