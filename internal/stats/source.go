package stats

import (
	"context"

	"github.com/cam3ron2/year-in-code/internal/githubapi"
)

// Source is the GitHub REST surface the engine reads from.
type Source interface {
	GetAuthenticatedUser(ctx context.Context) (githubapi.UserResult, error)
	GetUser(ctx context.Context, login string) (githubapi.UserResult, error)
	ListUserEmails(ctx context.Context, page int) (githubapi.EmailPage, error)
	ListAuthenticatedRepos(ctx context.Context, page int) (githubapi.RepoPage, error)
	ListUserOrgs(ctx context.Context, page int) (githubapi.OrgPage, error)
	ListOrgRepos(ctx context.Context, org string, page int) (githubapi.RepoPage, error)
	ListUserRepos(ctx context.Context, login string, page int) (githubapi.RepoPage, error)
	ListBranches(ctx context.Context, owner, repo string, page int) (githubapi.BranchPage, error)
	ListCommits(ctx context.Context, query githubapi.CommitQuery) (githubapi.CommitPage, error)
}

// PinnedSource lists the repositories pinned on a profile.
type PinnedSource interface {
	ListPinnedRepositories(ctx context.Context, login string) ([]string, error)
}

// Clients are the sources opened for one credential. Pinned may be nil.
type Clients struct {
	Source Source
	Pinned PinnedSource
}

// Connector opens sources for a bearer token, or anonymous sources when token is empty.
type Connector interface {
	Connect(token string) (Clients, error)
}

// ConnectorFunc adapts a function to Connector.
type ConnectorFunc func(token string) (Clients, error)

// Connect calls f(token).
func (f ConnectorFunc) Connect(token string) (Clients, error) {
	return f(token)
}
