// Package watch re-runs a transform whenever a seeds file changes.
package watch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Benny93/scout-go/internal/diag"
	"github.com/Benny93/scout-go/internal/graph"
)

// DefaultDebounce is how long writes are batched before a re-run.
const DefaultDebounce = 2 * time.Second

// Runner is the part of the orchestrator a watch drives.
type Runner interface {
	AddSeed(raw string) *graph.Node
	RunTransform(ctx context.Context, name string, raw map[string]any, concurrency int) ([]*graph.Node, error)
}

// Round is the outcome of one run.
type Round struct {
	Seeds   int
	Touched []*graph.Node
	Err     error
}

// Config selects the seeds file and the transform to run.
type Config struct {
	Seeds       string
	Transform   string
	Options     map[string]any
	Concurrency int
	Debounce    time.Duration

	// OnRound is called after every run, the initial one included.
	OnRound func(Round)
}

// Watch runs the transform once over the seeds and again after every change
// to the seeds file. Blocks until the context is cancelled.
func Watch(ctx context.Context, r Runner, cfg Config, sink diag.Sink) error {
	if sink == nil {
		sink = diag.Discard
	}
	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	path, err := filepath.Abs(cfg.Seeds)
	if err != nil {
		return fmt.Errorf("resolving seeds path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	// Editors often replace the file on save, so watch its directory.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("setting up watcher: %w", err)
	}

	round := func() {
		res := runRound(ctx, r, path, cfg)
		if res.Err != nil && !errors.Is(res.Err, context.Canceled) {
			diag.Errorf(sink, "%s: %v", cfg.Transform, res.Err)
		}
		if cfg.OnRound != nil {
			cfg.OnRound(res)
		}
	}

	diag.Infof(sink, "watching %s for changes (Ctrl+C to stop)", cfg.Seeds)
	round()

	batchTimer := time.NewTimer(debounce)
	batchTimer.Stop() // Don't start yet
	pending := false

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != path || !(event.Has(fsnotify.Write) || event.Has(fsnotify.Create)) {
				continue
			}
			pending = true
			batchTimer.Reset(debounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			diag.Warnf(sink, "watch error: %v", err)

		case <-batchTimer.C:
			if pending {
				pending = false
				round()
			}
		}
	}
}

func runRound(ctx context.Context, r Runner, path string, cfg Config) Round {
	seeds, err := ReadSeeds(path)
	if err != nil {
		return Round{Err: err}
	}
	for _, s := range seeds {
		r.AddSeed(s)
	}
	touched, err := r.RunTransform(ctx, cfg.Transform, cfg.Options, cfg.Concurrency)
	return Round{Seeds: len(seeds), Touched: touched, Err: err}
}

// ReadSeeds returns the non-empty lines of a seeds file, skipping # comments.
func ReadSeeds(path string) ([]string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading seeds: %w", err)
	}

	var seeds []string
	for _, line := range strings.Split(string(content), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		seeds = append(seeds, line)
	}
	return seeds, nil
}
