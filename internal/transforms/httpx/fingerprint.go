// Package httpx provides the HTTP fingerprinting transform.
package httpx

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/Benny93/scout-go/internal/diag"
	"github.com/Benny93/scout-go/internal/graph"
	"github.com/Benny93/scout-go/internal/nodetype"
	"github.com/Benny93/scout-go/internal/scheduler"
	"github.com/Benny93/scout-go/internal/transform"
)

const (
	defaultTimeout     = 30 * time.Second
	defaultConcurrency = 256
)

var generatorRe = regexp.MustCompile(`(?is)<meta\s+name="generator"\s+content="(.*?)"|<meta\s+content="(.*?)"\s+name="generator"`)

// Module exposes http_fingerprint.
type Module struct {
	sched *scheduler.Scheduler
}

// NewModule creates the module. All requests go through sched.
func NewModule(sched *scheduler.Scheduler) *Module {
	return &Module{sched: sched}
}

// Name implements transform.Module.
func (m *Module) Name() string { return "http" }

// Transforms implements transform.Module.
func (m *Module) Transforms() []*transform.Transform {
	return []*transform.Transform{Fingerprint(m.sched)}
}

// Fingerprint returns the http_fingerprint transform.
func Fingerprint(sched *scheduler.Scheduler) *transform.Transform {
	return transform.New(transform.Descriptor{
		Name:        "http_fingerprint",
		Aliases:     []string{"hf"},
		Title:       "HTTP Fingerprint",
		Description: "Performs a fingerprint on the HTTP server and application.",
		Group:       "HTTP Fingerprint",
		Tags:        []string{"ce", "local", "http"},
		Types:       []nodetype.Type{nodetype.URI, nodetype.Domain},
		Options: map[string]transform.Option{
			"timeout": {
				Description: "HTTP timeout interval",
				Kind:        transform.KindDuration,
				Default:     defaultTimeout,
			},
			"concurrency": {
				Description: "Number of concurrent scans",
				Kind:        transform.KindNumber,
				Default:     defaultConcurrency,
			},
		},
		Priority:           1,
		Noise:              1,
		DefaultConcurrency: defaultConcurrency,
	}, &fingerprinter{sched: sched})
}

type fingerprinter struct {
	sched *scheduler.Scheduler
}

// Run lets the concurrency option stand in for an unset fan-out.
func (f *fingerprinter) Run(ctx context.Context, t *transform.Transform, nodes []*graph.Node, opts transform.Options, concurrency int, sink diag.Sink) ([]graph.Result, error) {
	if concurrency <= 0 {
		concurrency = opts.Int("concurrency")
	}
	return t.RunNodes(ctx, nodes, opts, concurrency, sink)
}

func (f *fingerprinter) Handle(ctx context.Context, node *graph.Node, opts transform.Options, sink diag.Sink) ([]graph.Result, error) {
	uri := node.Label
	if node.Type == nodetype.Domain {
		uri = "http://" + uri
	}

	resp, err := f.sched.TryRequest(ctx, scheduler.Request{
		URI:           uri,
		Timeout:       opts.Duration("timeout"),
		SkipTLSVerify: true,
	})
	if err != nil {
		return nil, fmt.Errorf("fingerprinting %s: %w", uri, err)
	}

	edges := []string{node.ID}
	var results []graph.Result

	if resp.StatusCode != 0 {
		results = append(results, graph.Result{
			Type:  nodetype.String,
			Label: fmt.Sprintf("%d/HTTP", resp.StatusCode),
			Props: map[string]any{"code": resp.StatusCode},
			Edges: edges,
		})
	}

	if server := strings.TrimSpace(resp.Header.Get("Server")); server != "" {
		results = append(results, graph.Result{
			Type:  nodetype.Software,
			Label: server,
			Props: map[string]any{"server": server},
			Edges: edges,
		})
	}

	if contentType := strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Type"))); contentType != "" {
		results = append(results, graph.Result{
			Type:  nodetype.String,
			Label: contentType,
			Props: map[string]any{"contentType": contentType},
			Edges: edges,
		})
	}

	if version := generator(resp.Body); version != "" {
		results = append(results, graph.Result{
			Type:  nodetype.Software,
			Label: version,
			Props: map[string]any{"softwareVersion": version},
			Edges: edges,
		})
	}

	return results, nil
}

// generator extracts the lowercased content of a <meta name="generator"> tag.
func generator(body []byte) string {
	m := generatorRe.FindSubmatch(body)
	if m == nil {
		return ""
	}
	for _, group := range m[1:] {
		if len(group) > 0 {
			return strings.ToLower(string(group))
		}
	}
	return ""
}
