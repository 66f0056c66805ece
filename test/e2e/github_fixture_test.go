//go:build e2e

package e2e

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeGitHubAPI struct {
	mu sync.Mutex

	server *httptest.Server

	tokens    map[string]string
	profiles  map[string]fixtureProfile
	emails    map[string][]string
	orgs      map[string][]string
	orgRepos  map[string][]fixtureRepository
	userRepos map[string][]fixtureRepository
	commits   map[string][]fixtureCommit
	pinned    map[string][]string
	failures  map[string]*failureRule
	callCount map[string]int
}

type failureRule struct {
	status    int
	remaining int
	body      map[string]string
}

type fixtureProfile struct {
	Login     string
	Name      string
	AvatarURL string
}

type fixtureRepository struct {
	Owner    string
	Name     string
	Stars    int
	Language string
	Fork     bool
}

type fixtureCommit struct {
	SHA         string
	Author      string
	Committer   string
	AuthorName  string
	AuthorEmail string
	Message     string
	Parents     int
	AuthoredAt  time.Time
}

func newFakeGitHubAPI(t *testing.T) *fakeGitHubAPI {
	t.Helper()

	fixture := &fakeGitHubAPI{
		tokens:    make(map[string]string),
		profiles:  make(map[string]fixtureProfile),
		emails:    make(map[string][]string),
		orgs:      make(map[string][]string),
		orgRepos:  make(map[string][]fixtureRepository),
		userRepos: make(map[string][]fixtureRepository),
		commits:   make(map[string][]fixtureCommit),
		pinned:    make(map[string][]string),
		failures:  make(map[string]*failureRule),
		callCount: make(map[string]int),
	}
	fixture.server = httptest.NewServer(http.HandlerFunc(fixture.serveHTTP))
	t.Cleanup(fixture.Close)
	return fixture
}

func (f *fakeGitHubAPI) URL() string {
	if f == nil || f.server == nil {
		return ""
	}
	return f.server.URL
}

func (f *fakeGitHubAPI) Close() {
	if f == nil || f.server == nil {
		return
	}
	f.server.Close()
}

// AddUser registers a profile. A non-empty token authenticates as that user.
func (f *fakeGitHubAPI) AddUser(profile fixtureProfile, token string, emails []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := strings.ToLower(profile.Login)
	f.profiles[key] = profile
	f.emails[key] = append([]string(nil), emails...)
	if token != "" {
		f.tokens[token] = key
	}
}

func (f *fakeGitHubAPI) SetUserOrgs(login string, orgs []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orgs[strings.ToLower(login)] = append([]string(nil), orgs...)
}

func (f *fakeGitHubAPI) SetOrgRepos(org string, repos []fixtureRepository) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orgRepos[strings.TrimSpace(org)] = append([]fixtureRepository(nil), repos...)
}

func (f *fakeGitHubAPI) SetUserRepos(login string, repos []fixtureRepository) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.userRepos[strings.ToLower(login)] = append([]fixtureRepository(nil), repos...)
}

func (f *fakeGitHubAPI) SetCommits(owner string, repo string, commits []fixtureCommit) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commits[repoKey(owner, repo)] = append([]fixtureCommit(nil), commits...)
}

func (f *fakeGitHubAPI) SetPinned(login string, names []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pinned[strings.ToLower(login)] = append([]string(nil), names...)
}

func (f *fakeGitHubAPI) FailPath(path string, statusCode int, times int) {
	if f == nil || statusCode <= 0 || times <= 0 {
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[path] = &failureRule{
		status:    statusCode,
		remaining: times,
		body: map[string]string{
			"message": fmt.Sprintf("forced failure for %s", path),
		},
	}
}

func (f *fakeGitHubAPI) PathCallCount(path string) int {
	if f == nil {
		return 0
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.callCount[path]
}

func (f *fakeGitHubAPI) serveHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	f.incrementCall(path)

	if f.tryFailPath(path, w) {
		return
	}
	if path == "/rate_limit" {
		f.writeJSON(w, http.StatusOK, map[string]any{
			"resources": map[string]any{
				"core": map[string]any{"limit": 5000, "remaining": 4500, "reset": time.Now().Add(time.Hour).Unix()},
			},
		})
		return
	}
	if path == "/graphql" && r.Method == http.MethodPost {
		f.handleGraphQL(w, r)
		return
	}

	segments := splitPath(path)
	if len(segments) >= 1 && segments[0] == "user" {
		f.handleAuthenticatedRoutes(w, r, segments)
		return
	}
	if len(segments) == 2 && segments[0] == "users" {
		f.handlePublicProfile(w, segments[1])
		return
	}
	if len(segments) == 3 && segments[0] == "users" && segments[2] == "repos" {
		f.writeRepositories(w, f.getUserRepos(segments[1]))
		return
	}
	if len(segments) == 3 && segments[0] == "orgs" && segments[2] == "repos" {
		f.writeRepositories(w, f.getOrgRepos(segments[1]))
		return
	}
	if len(segments) == 4 && segments[0] == "repos" {
		f.handleRepositoryRoutes(w, r, segments)
		return
	}

	f.writeJSON(w, http.StatusNotFound, map[string]string{"message": "route not found"})
}

func (f *fakeGitHubAPI) handleAuthenticatedRoutes(w http.ResponseWriter, r *http.Request, segments []string) {
	login, ok := f.loginForRequest(r)
	if !ok {
		f.writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Bad credentials"})
		return
	}

	switch {
	case len(segments) == 1:
		f.writeProfile(w, login)
	case len(segments) == 2 && segments[1] == "emails":
		f.mu.Lock()
		addresses := append([]string(nil), f.emails[login]...)
		f.mu.Unlock()
		payload := make([]map[string]any, 0, len(addresses))
		for i, address := range addresses {
			payload = append(payload, map[string]any{
				"email":    address,
				"verified": true,
				"primary":  i == 0,
			})
		}
		f.writeJSON(w, http.StatusOK, payload)
	case len(segments) == 2 && segments[1] == "repos":
		f.writeRepositories(w, f.getUserRepos(login))
	case len(segments) == 2 && segments[1] == "orgs":
		f.mu.Lock()
		orgs := append([]string(nil), f.orgs[login]...)
		f.mu.Unlock()
		payload := make([]map[string]any, 0, len(orgs))
		for _, org := range orgs {
			payload = append(payload, map[string]any{"login": org})
		}
		f.writeJSON(w, http.StatusOK, payload)
	default:
		f.writeJSON(w, http.StatusNotFound, map[string]string{"message": "route not found"})
	}
}

func (f *fakeGitHubAPI) handlePublicProfile(w http.ResponseWriter, login string) {
	f.writeProfile(w, strings.ToLower(login))
}

func (f *fakeGitHubAPI) writeProfile(w http.ResponseWriter, key string) {
	f.mu.Lock()
	profile, ok := f.profiles[key]
	f.mu.Unlock()
	if !ok {
		f.writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
		return
	}
	f.writeJSON(w, http.StatusOK, map[string]any{
		"login":      profile.Login,
		"name":       profile.Name,
		"avatar_url": profile.AvatarURL,
	})
}

func (f *fakeGitHubAPI) handleRepositoryRoutes(w http.ResponseWriter, r *http.Request, segments []string) {
	owner := segments[1]
	repo := segments[2]
	f.mu.Lock()
	commits, found := f.commits[repoKey(owner, repo)]
	f.mu.Unlock()
	if !found {
		f.writeJSON(w, http.StatusNotFound, map[string]string{"message": "repository not found"})
		return
	}

	switch segments[3] {
	case "branches":
		f.writeJSON(w, http.StatusOK, []map[string]any{{"name": "main"}})
	case "commits":
		f.writeCommitList(w, r, commits)
	default:
		f.writeJSON(w, http.StatusNotFound, map[string]string{"message": "route not found"})
	}
}

func (f *fakeGitHubAPI) handleGraphQL(w http.ResponseWriter, r *http.Request) {
	if _, ok := f.loginForRequest(r); !ok {
		f.writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Bad credentials"})
		return
	}
	var request struct {
		Variables map[string]any `json:"variables"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		f.writeJSON(w, http.StatusBadRequest, map[string]string{"message": "invalid query"})
		return
	}
	login, _ := request.Variables["login"].(string)

	f.mu.Lock()
	names := append([]string(nil), f.pinned[strings.ToLower(login)]...)
	f.mu.Unlock()
	nodes := make([]map[string]any, 0, len(names))
	for _, name := range names {
		nodes = append(nodes, map[string]any{"nameWithOwner": name})
	}
	f.writeJSON(w, http.StatusOK, map[string]any{
		"data": map[string]any{
			"user": map[string]any{
				"pinnedItems": map[string]any{"nodes": nodes},
			},
		},
	})
}

func (f *fakeGitHubAPI) writeRepositories(w http.ResponseWriter, repos []fixtureRepository) {
	payload := make([]map[string]any, 0, len(repos))
	for i, repo := range repos {
		fullName := repoKey(repo.Owner, repo.Name)
		payload = append(payload, map[string]any{
			"id":               i + 1,
			"name":             repo.Name,
			"full_name":        fullName,
			"owner":            map[string]any{"login": repo.Owner},
			"stargazers_count": repo.Stars,
			"language":         repo.Language,
			"fork":             repo.Fork,
			"default_branch":   "main",
			"html_url":         "https://github.com/" + fullName,
			"updated_at":       time.Now().UTC().Format(time.RFC3339),
		})
	}
	f.writeJSON(w, http.StatusOK, payload)
}

func (f *fakeGitHubAPI) writeCommitList(w http.ResponseWriter, r *http.Request, commits []fixtureCommit) {
	since, _ := time.Parse(time.RFC3339, r.URL.Query().Get("since"))
	until, _ := time.Parse(time.RFC3339, r.URL.Query().Get("until"))

	payload := make([]map[string]any, 0, len(commits))
	for _, commit := range commits {
		if !since.IsZero() && commit.AuthoredAt.Before(since) {
			continue
		}
		if !until.IsZero() && commit.AuthoredAt.After(until) {
			continue
		}
		parents := make([]map[string]any, 0, commit.Parents)
		for i := 0; i < commit.Parents; i++ {
			parents = append(parents, map[string]any{"sha": commit.SHA + "-parent-" + strconv.Itoa(i)})
		}
		entry := map[string]any{
			"sha":     commit.SHA,
			"parents": parents,
			"commit": map[string]any{
				"message": commit.Message,
				"author": map[string]any{
					"name":  commit.AuthorName,
					"email": commit.AuthorEmail,
					"date":  commit.AuthoredAt.UTC().Format(time.RFC3339),
				},
				"committer": map[string]any{
					"name":  "GitHub",
					"email": "noreply@github.com",
					"date":  commit.AuthoredAt.UTC().Format(time.RFC3339),
				},
			},
		}
		if commit.Author != "" {
			entry["author"] = map[string]any{"login": commit.Author}
		}
		if commit.Committer != "" {
			entry["committer"] = map[string]any{"login": commit.Committer}
		}
		payload = append(payload, entry)
	}
	f.writeJSON(w, http.StatusOK, payload)
}

func (f *fakeGitHubAPI) loginForRequest(r *http.Request) (string, bool) {
	scheme, token, found := strings.Cut(r.Header.Get("Authorization"), " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	login, ok := f.tokens[strings.TrimSpace(token)]
	return login, ok
}

func (f *fakeGitHubAPI) getUserRepos(login string) []fixtureRepository {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]fixtureRepository(nil), f.userRepos[strings.ToLower(login)]...)
}

func (f *fakeGitHubAPI) getOrgRepos(org string) []fixtureRepository {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]fixtureRepository(nil), f.orgRepos[strings.TrimSpace(org)]...)
}

func (f *fakeGitHubAPI) incrementCall(path string) {
	if f == nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callCount[path]++
}

func (f *fakeGitHubAPI) tryFailPath(path string, w http.ResponseWriter) bool {
	if f == nil {
		return false
	}

	f.mu.Lock()
	rule, ok := f.failures[path]
	if ok && rule.remaining > 0 {
		rule.remaining--
		status := rule.status
		body := rule.body
		f.mu.Unlock()
		f.writeJSON(w, status, body)
		return true
	}
	f.mu.Unlock()
	return false
}

func (f *fakeGitHubAPI) writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-RateLimit-Remaining", "4500")
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(time.Hour).Unix(), 10))
	w.WriteHeader(statusCode)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		return
	}
}

func splitPath(path string) []string {
	trimmed := strings.TrimSpace(path)
	trimmed = strings.Trim(trimmed, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func repoKey(owner string, repo string) string {
	return strings.TrimSpace(owner) + "/" + strings.TrimSpace(repo)
}
