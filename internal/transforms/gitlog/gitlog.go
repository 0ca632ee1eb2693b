// Package gitlog provides a transform that lists the commit authors of a
// git repository.
package gitlog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/storage/memory"

	"github.com/Benny93/scout-go/internal/diag"
	"github.com/Benny93/scout-go/internal/graph"
	"github.com/Benny93/scout-go/internal/nodetype"
	"github.com/Benny93/scout-go/internal/scheduler"
	"github.com/Benny93/scout-go/internal/transform"
	"github.com/Benny93/scout-go/internal/transforms/github"
)

const defaultDepth = 200

// Opener fetches a repository. depth limits history; zero means all of it.
type Opener func(ctx context.Context, url string, depth int) (*git.Repository, error)

// Clone opens url as an in-memory clone without a worktree.
func Clone(ctx context.Context, url string, depth int) (*git.Repository, error) {
	return git.CloneContext(ctx, memory.NewStorage(), nil, &git.CloneOptions{
		URL:          url,
		Depth:        depth,
		SingleBranch: true,
		Tags:         git.NoTags,
	})
}

// Module exposes git_list_authors.
type Module struct {
	sched *scheduler.Scheduler
	open  Opener
}

// NewModule creates the module. Clones go through sched; a nil open uses Clone.
func NewModule(sched *scheduler.Scheduler, open Opener) *Module {
	if open == nil {
		open = Clone
	}
	return &Module{sched: sched, open: open}
}

// Name implements transform.Module.
func (m *Module) Name() string { return "git" }

// NodeTypes implements transform.TypeProvider.
func (m *Module) NodeTypes() []nodetype.Info {
	return []nodetype.Info{{Type: github.RepoType, Description: "GitHub repository"}}
}

// Transforms implements transform.Module.
func (m *Module) Transforms() []*transform.Transform {
	return []*transform.Transform{m.ListAuthors()}
}

// ListAuthors returns git_list_authors.
func (m *Module) ListAuthors() *transform.Transform {
	return transform.New(transform.Descriptor{
		Name:        "git_list_authors",
		Aliases:     []string{"gla"},
		Title:       "List Git Authors",
		Description: "List the commit authors of a git repository.",
		Group:       "List Git Authors",
		Tags:        []string{"ce", "git"},
		Types:       []nodetype.Type{github.RepoType, nodetype.URI},
		Options: map[string]transform.Option{
			"depth": {
				Description: "Number of commits to fetch, 0 for the full history",
				Kind:        transform.KindNumber,
				Default:     defaultDepth,
			},
		},
		Priority:           2,
		Noise:              3,
		DefaultConcurrency: 4,
	}, transform.HandlerFunc(m.handle))
}

func (m *Module) handle(ctx context.Context, node *graph.Node, opts transform.Options, sink diag.Sink) ([]graph.Result, error) {
	url := cloneURL(node)
	if url == "" {
		diag.Warnf(sink, "no clone url for %s", node.Label)
		return nil, nil
	}
	depth := max(opts.Int("depth"), 0)

	var repo *git.Repository
	err := m.sched.Do(ctx, func(ctx context.Context) error {
		r, err := m.open(ctx, url, depth)
		if err != nil {
			return classify(err)
		}
		repo = r
		return nil
	})
	if err != nil {
		if errors.Is(err, transport.ErrEmptyRemoteRepository) {
			return nil, nil
		}
		return nil, fmt.Errorf("cloning %s: %w", url, err)
	}

	authors, err := listAuthors(repo, depth)
	if err != nil {
		diag.Errorf(sink, "reading history of %s: %v", url, err)
	}

	results := make([]graph.Result, 0, len(authors))
	for _, a := range authors {
		results = append(results, graph.Result{
			Type:  nodetype.Email,
			Label: a.email,
			Props: map[string]any{"name": a.name, "commits": a.commits},
			Edges: []string{node.ID},
		})
	}
	return results, nil
}

type author struct {
	name    string
	email   string
	commits int
}

// listAuthors walks history from HEAD and returns authors in order of
// their most recent commit. Authors found before a walk error are returned.
func listAuthors(repo *git.Repository, limit int) ([]*author, error) {
	iter, err := repo.Log(&git.LogOptions{})
	if err != nil {
		return nil, fmt.Errorf("reading log: %w", err)
	}
	defer iter.Close()

	var (
		order   []*author
		byEmail = make(map[string]*author)
		seen    int
		errStop = errors.New("stop")
	)
	err = iter.ForEach(func(c *object.Commit) error {
		if limit > 0 && seen >= limit {
			return errStop
		}
		seen++

		email := strings.ToLower(strings.TrimSpace(c.Author.Email))
		if email == "" {
			return nil
		}
		a, ok := byEmail[email]
		if !ok {
			a = &author{name: c.Author.Name, email: email}
			byEmail[email] = a
			order = append(order, a)
		}
		a.commits++
		return nil
	})
	if err != nil && !errors.Is(err, errStop) {
		return order, err
	}
	return order, nil
}

// cloneURL derives the clone url from a repository or uri node.
func cloneURL(node *graph.Node) string {
	switch node.Type {
	case github.RepoType:
		if uri := node.PropString("uri"); uri != "" {
			return uri + ".git"
		}
		if strings.Contains(node.Label, "/") {
			return "https://github.com/" + node.Label + ".git"
		}
		return ""
	default:
		if strings.HasSuffix(node.Label, ".git") {
			return node.Label
		}
		return ""
	}
}

// classify marks failures other than a missing, empty or protected
// repository as transient.
func classify(err error) error {
	switch {
	case errors.Is(err, transport.ErrRepositoryNotFound),
		errors.Is(err, transport.ErrEmptyRemoteRepository),
		errors.Is(err, transport.ErrAuthenticationRequired),
		errors.Is(err, transport.ErrAuthorizationFailed),
		errors.Is(err, context.Canceled):
		return err
	}
	return scheduler.Transient(err)
}
