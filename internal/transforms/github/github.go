// Package github provides transforms that enumerate GitHub users and
// organisations: their repositories, gists and members.
//
// Every request goes through one shared scheduler so the API sees at most
// as many concurrent calls as that scheduler allows, however many nodes a
// run fans out over.
package github

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/Benny93/scout-go/internal/diag"
	"github.com/Benny93/scout-go/internal/graph"
	"github.com/Benny93/scout-go/internal/nodetype"
	"github.com/Benny93/scout-go/internal/scheduler"
	"github.com/Benny93/scout-go/internal/transform"
)

// Node types introduced by this module.
const (
	RepoType   nodetype.Type = "github:repo"
	GistType   nodetype.Type = "github:gist"
	MemberType nodetype.Type = "github:member"
)

// DefaultBaseURL is the public GitHub API.
const DefaultBaseURL = "https://api.github.com"

const (
	userAgent       = "scout"
	fallbackMessage = "Cannot query github"
	defaultCount    = 100
)

// Module exposes the GitHub transforms.
type Module struct {
	sched   *scheduler.Scheduler
	baseURL string
	key     string
}

// ModuleOption configures a Module.
type ModuleOption func(*Module)

// WithBaseURL points the module at another API root, such as GitHub
// Enterprise or a test server.
func WithBaseURL(u string) ModuleOption {
	return func(m *Module) { m.baseURL = strings.TrimRight(u, "/") }
}

// WithKey sets the API key used when a run does not pass githubKey.
func WithKey(key string) ModuleOption {
	return func(m *Module) { m.key = key }
}

// NewModule creates the module. All requests go through sched.
func NewModule(sched *scheduler.Scheduler, opts ...ModuleOption) *Module {
	m := &Module{sched: sched, baseURL: DefaultBaseURL}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Name implements transform.Module.
func (m *Module) Name() string { return "github" }

// NodeTypes implements transform.TypeProvider.
func (m *Module) NodeTypes() []nodetype.Info {
	return []nodetype.Info{
		{Type: RepoType, Description: "GitHub repository"},
		{Type: GistType, Description: "GitHub gist"},
		{Type: MemberType, Description: "GitHub user or organisation member"},
	}
}

// Transforms implements transform.Module.
func (m *Module) Transforms() []*transform.Transform {
	return []*transform.Transform{m.ListRepos(), m.ListGists(), m.ListMembers()}
}

func pagingOptions() map[string]transform.Option {
	return map[string]transform.Option{
		"githubKey": {
			Description: "GitHub API Key. The key is either in the format username:password or username:token.",
			Kind:        transform.KindString,
		},
		"count": {
			Description: "Results per page",
			Kind:        transform.KindNumber,
			Default:     defaultCount,
		},
		"pages": {
			Description: "Number of pages to fetch",
			Kind:        transform.KindPages,
			Default:     transform.Unbounded,
		},
	}
}

// lister pages through one list endpoint and turns every item into a result.
type lister[T any] struct {
	m       *Module
	path    string
	query   func(opts transform.Options) url.Values
	convert func(item T) graph.Result
}

func (l *lister[T]) Handle(ctx context.Context, node *graph.Node, opts transform.Options, sink diag.Sink) ([]graph.Result, error) {
	headers := l.m.headers(opts.String("githubKey"))
	endpoint := l.m.baseURL + fmt.Sprintf(l.path, url.PathEscape(node.Label))

	items, err := transform.Paginate(ctx, opts.Pages("pages"), func(ctx context.Context, page int) ([]T, error) {
		q := url.Values{}
		if l.query != nil {
			q = l.query(opts)
		}
		q.Set("page", strconv.Itoa(page))
		q.Set("per_page", strconv.Itoa(max(opts.Int("count"), 1)))

		resp, err := l.m.sched.TryFetch(ctx, endpoint+"?"+q.Encode(), headers)
		if err != nil {
			return nil, err
		}
		return transform.DecodeList[T](resp.Body, fallbackMessage)
	})

	results := make([]graph.Result, 0, len(items))
	for _, item := range items {
		r := l.convert(item)
		r.Edges = []string{node.ID}
		results = append(results, r)
	}

	if err != nil {
		diag.Errorf(sink, "%v", err)
	}
	return results, nil
}

func (m *Module) headers(key string) map[string]string {
	if key == "" {
		key = m.key
	}
	h := map[string]string{
		"User-Agent": userAgent,
		"Accept":     "application/vnd.github+json",
	}
	if key != "" {
		h["Authorization"] = "Basic " + base64.StdEncoding.EncodeToString([]byte(key))
	}
	return h
}
