package github

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Benny93/scout-go/internal/diag"
	"github.com/Benny93/scout-go/internal/graph"
	"github.com/Benny93/scout-go/internal/nodetype"
	"github.com/Benny93/scout-go/internal/scheduler"
	"github.com/Benny93/scout-go/internal/transform"
)

// fakeAPI serves paged repo listings; pages maps a page number to its body.
type fakeAPI struct {
	mu       sync.Mutex
	requests []*http.Request
	pages    map[int]string
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.requests = append(f.requests, r)
	f.mu.Unlock()

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	body, ok := f.pages[page]
	if !ok {
		body = "[]"
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(body))
}

func (f *fakeAPI) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func repoPage(names ...string) string {
	body := "["
	for i, n := range names {
		if i > 0 {
			body += ","
		}
		body += fmt.Sprintf(`{"full_name":%q,"html_url":"https://github.com/%s"}`, n, n)
	}
	return body + "]"
}

func newModule(t *testing.T, api http.Handler, opts ...ModuleOption) *Module {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	sched := scheduler.New("github", scheduler.Config{MaxConcurrent: 1})
	return NewModule(sched, append([]ModuleOption{WithBaseURL(srv.URL)}, opts...)...)
}

func runOn(t *testing.T, tr *transform.Transform, node *graph.Node, raw map[string]any) ([]graph.Result, *diag.Recorder) {
	t.Helper()
	opts, err := transform.ResolveOptions(tr.Options, raw)
	require.NoError(t, err)

	rec := &diag.Recorder{}
	results, err := tr.Run(context.Background(), []*graph.Node{node}, opts, 0, rec)
	require.NoError(t, err)
	return results, rec
}

func TestListRepos_CountAndPages(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{pages: map[int]string{
		1: repoPage("octocat/hello", "octocat/spoon"),
		2: repoPage("octocat/linguist"),
	}}
	m := newModule(t, api)

	g := graph.New()
	octocat, _ := g.AddNode(MemberType, "octocat", nil, "")

	results, rec := runOn(t, m.ListRepos(), octocat, map[string]any{"count": "2", "pages": "1"})

	assert.Empty(t, rec.Events())
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Equal(t, RepoType, r.Type)
		assert.Equal(t, []string{octocat.ID}, r.Edges)
	}
	assert.Equal(t, "octocat/hello", results[0].Label)
	assert.Equal(t, map[string]any{"uri": "https://github.com/octocat/hello", "fullName": "octocat/hello"}, results[0].Props)

	require.Equal(t, 1, api.count())
	req := api.requests[0]
	assert.Equal(t, "/users/octocat/repos", req.URL.Path)
	assert.Equal(t, "2", req.URL.Query().Get("per_page"))
	assert.Equal(t, "owner", req.URL.Query().Get("type"))
	assert.Equal(t, userAgent, req.Header.Get("User-Agent"))
	assert.Empty(t, req.Header.Get("Authorization"))
}

func TestListRepos_StopsOnEmptyPage(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{pages: map[int]string{
		1: repoPage("acme/a"),
		2: repoPage("acme/b"),
	}}
	m := newModule(t, api)

	g := graph.New()
	acme := g.AddSeed("acme")

	results, rec := runOn(t, m.ListRepos(), acme, nil)

	assert.Empty(t, rec.Events())
	assert.Len(t, results, 2)
	assert.Equal(t, 3, api.count())
}

func TestListRepos_ErrorPayloadHaltsPaging(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{pages: map[int]string{
		1: repoPage("acme/a", "acme/b"),
		2: `{"message":"API rate limit exceeded for 127.0.0.1."}`,
		3: repoPage("acme/c"),
	}}
	m := newModule(t, api)

	g := graph.New()
	acme := g.AddSeed("acme")

	results, rec := runOn(t, m.ListRepos(), acme, nil)

	assert.Len(t, results, 2)
	assert.Equal(t, 2, api.count())

	errs := rec.ByLevel(diag.LevelError)
	require.Len(t, errs, 1)
	assert.Equal(t, "API rate limit exceeded for 127.0.0.1.", errs[0].Message)
	assert.Equal(t, "github_list_repos", errs[0].Transform)
	assert.Equal(t, "acme", errs[0].Node)
}

func TestListRepos_FallbackMessageAndLabel(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{pages: map[int]string{
		1: `[{"html_url":"https://github.com/x"}]`,
		2: `{"documentation_url":"https://docs.github.com"}`,
	}}
	m := newModule(t, api)

	g := graph.New()
	results, rec := runOn(t, m.ListRepos(), g.AddSeed("acme"), nil)

	require.Len(t, results, 1)
	assert.NotEmpty(t, results[0].Label)
	assert.Equal(t, "", results[0].Props["fullName"])

	errs := rec.ByLevel(diag.LevelError)
	require.Len(t, errs, 1)
	assert.Equal(t, fallbackMessage, errs[0].Message)
}

func TestListRepos_IsolatesNodes(t *testing.T) {
	t.Parallel()

	api := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/users/bad/repos" {
			_, _ = w.Write([]byte(`{"message":"Not Found"}`))
			return
		}
		if r.URL.Query().Get("page") == "1" {
			_, _ = w.Write([]byte(repoPage("good/one")))
			return
		}
		_, _ = w.Write([]byte("[]"))
	})
	m := newModule(t, api)

	g := graph.New()
	g.AddSeed("good")
	g.AddSeed("bad")
	tr := m.ListRepos()
	opts, err := transform.ResolveOptions(tr.Options, nil)
	require.NoError(t, err)

	rec := &diag.Recorder{}
	results, err := tr.Run(context.Background(), g.NodesByType(nodetype.Brand), opts, 4, rec)
	require.NoError(t, err)

	require.Len(t, results, 1)
	assert.Equal(t, "good/one", results[0].Label)
	errs := rec.ByLevel(diag.LevelError)
	require.Len(t, errs, 1)
	assert.Equal(t, "bad", errs[0].Node)
}

func TestAuthorization(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{}
	m := newModule(t, api, WithKey("user:config-token"))
	g := graph.New()
	node := g.AddSeed("acme")

	runOn(t, m.ListGists(), node, nil)
	runOn(t, m.ListGists(), node, map[string]any{"githubKey": "user:run-token"})

	require.Equal(t, 2, api.count())
	assert.Equal(t, "Basic "+base64.StdEncoding.EncodeToString([]byte("user:config-token")), api.requests[0].Header.Get("Authorization"))
	assert.Equal(t, "Basic "+base64.StdEncoding.EncodeToString([]byte("user:run-token")), api.requests[1].Header.Get("Authorization"))
}

func TestListGists(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{pages: map[int]string{
		1: `[{"html_url":"https://gist.github.com/1","description":"dotfiles"},{"html_url":"https://gist.github.com/2","description":""}]`,
	}}
	m := newModule(t, api)
	g := graph.New()

	results, _ := runOn(t, m.ListGists(), g.AddSeed("octocat"), nil)

	require.Len(t, results, 2)
	assert.Equal(t, "/users/octocat/gists", api.requests[0].URL.Path)
	assert.Equal(t, GistType, results[0].Type)
	assert.Equal(t, "dotfiles", results[0].Label)
	assert.Equal(t, "https://gist.github.com/2", results[1].Label)
	assert.Equal(t, map[string]any{"uri": "https://gist.github.com/2", "description": ""}, results[1].Props)
}

func TestListMembers(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{pages: map[int]string{
		1: `[{"login":"mona","html_url":"https://github.com/mona","avatar_url":"https://avatars/mona"}]`,
	}}
	m := newModule(t, api)
	g := graph.New()

	results, _ := runOn(t, m.ListMembers(), g.AddSeed("github"), nil)

	require.Len(t, results, 1)
	assert.Equal(t, "/orgs/github/members", api.requests[0].URL.Path)
	r := results[0]
	assert.Equal(t, MemberType, r.Type)
	assert.Equal(t, "mona", r.Label)
	assert.Equal(t, "https://avatars/mona", r.Image)
	assert.Equal(t, map[string]any{"uri": "https://github.com/mona", "login": "mona", "avatar": "https://avatars/mona"}, r.Props)
}

func TestModule_Register(t *testing.T) {
	t.Parallel()

	types := nodetype.NewRegistry()
	reg := transform.NewRegistry(types)
	require.NoError(t, reg.RegisterModule(NewModule(scheduler.New("github", scheduler.Config{MaxConcurrent: 1}))))

	for _, alias := range []string{"ghlr", "ghlg", "ghlm"} {
		_, err := reg.Lookup(alias)
		assert.NoError(t, err, alias)
	}
	assert.True(t, types.Known(MemberType))
}
