package scout

import (
	"fmt"

	"github.com/Benny93/scout-go/internal/config"
	"github.com/Benny93/scout-go/internal/diag"
	"github.com/Benny93/scout-go/internal/metrics"
	"github.com/Benny93/scout-go/internal/nodetype"
	"github.com/Benny93/scout-go/internal/scheduler"
	"github.com/Benny93/scout-go/internal/transform"
	"github.com/Benny93/scout-go/internal/transforms/github"
	"github.com/Benny93/scout-go/internal/transforms/gitlog"
	"github.com/Benny93/scout-go/internal/transforms/httpx"
)

// Modules builds the compiled-in transform modules. Each external surface
// gets exactly one scheduler, shared by every transform that targets it.
func Modules(cfg *config.Config, m *metrics.Registry) []transform.Module {
	httpSched := scheduler.New("http", cfg.HTTP, scheduler.WithMetrics(m))
	githubSched := scheduler.New("github", cfg.GitHub.Scheduler, scheduler.WithMetrics(m))
	gitSched := scheduler.New("git", cfg.Git, scheduler.WithMetrics(m))

	ghOpts := []github.ModuleOption{github.WithKey(cfg.GitHub.Key)}
	if cfg.GitHub.BaseURL != "" {
		ghOpts = append(ghOpts, github.WithBaseURL(cfg.GitHub.BaseURL))
	}

	return []transform.Module{
		httpx.NewModule(httpSched),
		github.NewModule(githubSched, ghOpts...),
		gitlog.NewModule(gitSched, nil),
	}
}

// NewDefault wires the built-in transforms into a new orchestrator.
func NewDefault(cfg *config.Config, sink diag.Sink, m *metrics.Registry, opts ...Option) (*Orchestrator, error) {
	if cfg == nil {
		cfg = config.Default()
	}

	reg := transform.NewRegistry(nodetype.NewRegistry())
	for _, mod := range Modules(cfg, m) {
		if err := reg.RegisterModule(mod); err != nil {
			return nil, fmt.Errorf("registering transforms: %w", err)
		}
	}

	opts = append([]Option{WithMetrics(m), WithConcurrency(cfg.Concurrency)}, opts...)
	return New(reg, sink, opts...), nil
}
