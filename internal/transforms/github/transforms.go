package github

import (
	"net/url"

	"github.com/google/uuid"

	"github.com/Benny93/scout-go/internal/graph"
	"github.com/Benny93/scout-go/internal/nodetype"
	"github.com/Benny93/scout-go/internal/transform"
)

type repo struct {
	HTMLURL  string `json:"html_url"`
	FullName string `json:"full_name"`
}

type gist struct {
	HTMLURL     string `json:"html_url"`
	Description string `json:"description"`
}

type member struct {
	HTMLURL   string `json:"html_url"`
	Login     string `json:"login"`
	AvatarURL string `json:"avatar_url"`
}

// ListRepos returns github_list_repos.
func (m *Module) ListRepos() *transform.Transform {
	opts := pagingOptions()
	opts["type"] = transform.Option{
		Description: "Repository type",
		Kind:        transform.KindString,
		Default:     "owner",
	}

	return transform.New(transform.Descriptor{
		Name:        "github_list_repos",
		Aliases:     []string{"ghlr"},
		Title:       "List GitHub Repos",
		Description: "List GitHub repositories for a given member or org.",
		Group:       "List GitHub Repos",
		Tags:        []string{"ce"},
		Types:       []nodetype.Type{nodetype.Brand, MemberType},
		Options:     opts,
		Priority:    1,
		Noise:       1,
	}, &lister[repo]{
		m:    m,
		path: "/users/%s/repos",
		query: func(o transform.Options) url.Values {
			return url.Values{"type": {o.String("type")}}
		},
		convert: func(r repo) graph.Result {
			label := r.FullName
			if label == "" {
				label = uuid.NewString()
			}
			return graph.Result{
				Type:  RepoType,
				Label: label,
				Props: map[string]any{"uri": r.HTMLURL, "fullName": r.FullName},
			}
		},
	})
}

// ListGists returns github_list_gists.
func (m *Module) ListGists() *transform.Transform {
	return transform.New(transform.Descriptor{
		Name:        "github_list_gists",
		Aliases:     []string{"ghlg"},
		Title:       "List GitHub Gists",
		Description: "List GitHub gists for a given member or org.",
		Group:       "List GitHub Gists",
		Tags:        []string{"ce"},
		Types:       []nodetype.Type{nodetype.Brand, MemberType},
		Options:     pagingOptions(),
		Priority:    1,
		Noise:       1,
	}, &lister[gist]{
		m:    m,
		path: "/users/%s/gists",
		convert: func(g gist) graph.Result {
			label := g.Description
			if label == "" {
				label = g.HTMLURL
			}
			if label == "" {
				label = uuid.NewString()
			}
			return graph.Result{
				Type:  GistType,
				Label: label,
				Props: map[string]any{"uri": g.HTMLURL, "description": g.Description},
			}
		},
	})
}

// ListMembers returns github_list_members.
func (m *Module) ListMembers() *transform.Transform {
	return transform.New(transform.Descriptor{
		Name:        "github_list_members",
		Aliases:     []string{"ghlm"},
		Title:       "List GitHub Members",
		Description: "List GitHub members in a given org.",
		Group:       "List GitHub Members",
		Tags:        []string{"ce"},
		Types:       []nodetype.Type{nodetype.Brand},
		Options:     pagingOptions(),
		Priority:    1,
		Noise:       1,
	}, &lister[member]{
		m:    m,
		path: "/orgs/%s/members",
		convert: func(u member) graph.Result {
			label := u.Login
			if label == "" {
				label = uuid.NewString()
			}
			return graph.Result{
				Type:  MemberType,
				Label: label,
				Image: u.AvatarURL,
				Props: map[string]any{"uri": u.HTMLURL, "login": u.Login, "avatar": u.AvatarURL},
			}
		},
	})
}
