package stats

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/cam3ron2/year-in-code/internal/githubapi"
)

var errNetworkDown = errors.New("network down")

// fakeSource serves canned GitHub data. Lists are split into pages of
// githubapi.PerPage. Commits are keyed by "owner/repo@branch"; the empty
// branch is the default-branch history.
type fakeSource struct {
	user        githubapi.User
	userStatus  githubapi.EndpointStatus
	userErr     error
	emails      []githubapi.Email
	emailErr    error
	publicUsers map[string]githubapi.User

	authRepos      []githubapi.Repository
	authRepoStatus githubapi.EndpointStatus
	orgs           []string
	orgErr         error
	orgRepos       map[string][]githubapi.Repository
	orgRepoStatus  map[string]githubapi.EndpointStatus
	userRepos      map[string][]githubapi.Repository

	branches     map[string][]string
	branchStatus map[string]githubapi.EndpointStatus
	branchErr    map[string]error

	commits      map[string][]githubapi.Commit
	commitStatus map[string]githubapi.EndpointStatus
	commitErr    map[string]error

	// walkMeta, when set, replaces the metadata of branch and commit pages.
	walkMeta githubapi.CallMetadata

	mu      sync.Mutex
	calls   map[string]int
	queries []githubapi.CommitQuery
}

func (f *fakeSource) record(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[name]++
}

func (f *fakeSource) callCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func statusOr(status githubapi.EndpointStatus) githubapi.EndpointStatus {
	if status == "" {
		return githubapi.EndpointStatusOK
	}
	return status
}

// paginate returns the 1-based page of items and the page descriptor.
func paginate[T any](items []T, page int, status githubapi.EndpointStatus) ([]T, githubapi.Page) {
	status = statusOr(status)
	if status != githubapi.EndpointStatusOK {
		return nil, githubapi.Page{Status: status, Metadata: githubapi.CallMetadata{Attempts: 1}}
	}
	if page < 1 {
		page = 1
	}
	start := min((page-1)*githubapi.PerPage, len(items))
	end := min(start+githubapi.PerPage, len(items))
	return items[start:end], githubapi.Page{
		Status:      status,
		Size:        end - start,
		LinkPresent: true,
		HasNext:     end < len(items),
		Metadata:    githubapi.CallMetadata{Attempts: 1},
	}
}

func (f *fakeSource) GetAuthenticatedUser(context.Context) (githubapi.UserResult, error) {
	f.record("user")
	if f.userErr != nil {
		return githubapi.UserResult{}, f.userErr
	}
	return githubapi.UserResult{Status: statusOr(f.userStatus), User: f.user}, nil
}

func (f *fakeSource) GetUser(_ context.Context, login string) (githubapi.UserResult, error) {
	f.record("public_user")
	if f.userErr != nil {
		return githubapi.UserResult{}, f.userErr
	}
	user, ok := f.publicUsers[strings.ToLower(login)]
	if !ok {
		return githubapi.UserResult{Status: githubapi.EndpointStatusNotFound}, nil
	}
	return githubapi.UserResult{Status: githubapi.EndpointStatusOK, User: user}, nil
}

func (f *fakeSource) ListUserEmails(_ context.Context, page int) (githubapi.EmailPage, error) {
	f.record("emails")
	if f.emailErr != nil {
		return githubapi.EmailPage{}, f.emailErr
	}
	items, p := paginate(f.emails, page, "")
	return githubapi.EmailPage{Page: p, Emails: items}, nil
}

func (f *fakeSource) ListAuthenticatedRepos(_ context.Context, page int) (githubapi.RepoPage, error) {
	f.record("auth_repos")
	items, p := paginate(f.authRepos, page, f.authRepoStatus)
	return githubapi.RepoPage{Page: p, Repos: items}, nil
}

func (f *fakeSource) ListUserOrgs(_ context.Context, page int) (githubapi.OrgPage, error) {
	f.record("orgs")
	if f.orgErr != nil {
		return githubapi.OrgPage{}, f.orgErr
	}
	items, p := paginate(f.orgs, page, "")
	return githubapi.OrgPage{Page: p, Orgs: items}, nil
}

func (f *fakeSource) ListOrgRepos(_ context.Context, org string, page int) (githubapi.RepoPage, error) {
	f.record("org_repos:" + org)
	items, p := paginate(f.orgRepos[org], page, f.orgRepoStatus[org])
	return githubapi.RepoPage{Page: p, Repos: items}, nil
}

func (f *fakeSource) ListUserRepos(_ context.Context, login string, page int) (githubapi.RepoPage, error) {
	f.record("user_repos")
	items, p := paginate(f.userRepos[strings.ToLower(login)], page, "")
	return githubapi.RepoPage{Page: p, Repos: items}, nil
}

func (f *fakeSource) ListBranches(_ context.Context, owner, repo string, page int) (githubapi.BranchPage, error) {
	key := owner + "/" + repo
	f.record("branches:" + key)
	if err := f.branchErr[key]; err != nil {
		return githubapi.BranchPage{}, err
	}
	items, p := paginate(f.branches[key], page, f.branchStatus[key])
	return githubapi.BranchPage{Page: f.withWalkMeta(p), Branches: items}, nil
}

func (f *fakeSource) ListCommits(_ context.Context, query githubapi.CommitQuery) (githubapi.CommitPage, error) {
	key := query.Owner + "/" + query.Repo + "@" + query.Branch
	f.record("commits:" + key)
	f.mu.Lock()
	f.queries = append(f.queries, query)
	f.mu.Unlock()

	if err := f.commitErr[key]; err != nil {
		return githubapi.CommitPage{}, err
	}

	// The API filters by date server-side.
	inRange := make([]githubapi.Commit, 0, len(f.commits[key]))
	for _, commit := range f.commits[key] {
		if commit.AuthoredAt.Before(query.Since) || commit.AuthoredAt.After(query.Until) {
			continue
		}
		inRange = append(inRange, commit)
	}
	items, p := paginate(inRange, query.Page, f.commitStatus[key])
	return githubapi.CommitPage{Page: f.withWalkMeta(p), Commits: items}, nil
}

func (f *fakeSource) withWalkMeta(p githubapi.Page) githubapi.Page {
	if f.walkMeta.Attempts > 0 {
		p.Metadata = f.walkMeta
	}
	return p
}

type fakePinned struct {
	names []string
	err   error
}

func (f fakePinned) ListPinnedRepositories(context.Context, string) ([]string, error) {
	return f.names, f.err
}

type reportEvent struct {
	mode    Mode
	outcome string
}

type fakeRecorder struct {
	mu        sync.Mutex
	reports   []reportEvent
	requests  map[string]int
	walked    map[string]int
	remaining []int
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{
		requests: make(map[string]int),
		walked:   make(map[string]int),
	}
}

func (r *fakeRecorder) ReportCompleted(mode Mode, outcome string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, reportEvent{mode: mode, outcome: outcome})
}

func (r *fakeRecorder) GitHubRequest(endpoint, status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests[endpoint+"/"+status]++
}

func (r *fakeRecorder) RateLimitRemaining(remaining int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.remaining = append(r.remaining, remaining)
}

func (r *fakeRecorder) RepositoryWalked(outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.walked[outcome]++
}

func testRepo(fullName string, stars int, language string) githubapi.Repository {
	owner, name, _ := strings.Cut(fullName, "/")
	return githubapi.Repository{
		Name:     name,
		FullName: fullName,
		Owner:    owner,
		Stars:    stars,
		Language: language,
		HTMLURL:  "https://github.com/" + fullName,
	}
}

func authored(sha, login string, at time.Time) githubapi.Commit {
	return githubapi.Commit{
		SHA:         sha,
		AuthorLogin: login,
		ParentCount: 1,
		Message:     "change " + sha,
		AuthoredAt:  at,
	}
}
