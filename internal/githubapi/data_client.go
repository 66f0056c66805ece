package githubapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/go-github/v75/github"
)

const (
	defaultGitHubAPIBaseURL = "https://api.github.com/"
	// PerPage is the page size requested from every paginated listing.
	PerPage   = 100
	userAgent = "year-in-code"
)

// ErrDecode marks a response body that could not be decoded into its schema.
var ErrDecode = errors.New("decode github response")

// EndpointStatus represents a normalized GitHub API endpoint outcome.
type EndpointStatus string

const (
	// EndpointStatusOK indicates a successful response.
	EndpointStatusOK EndpointStatus = "ok"
	// EndpointStatusUnauthorized indicates a missing, invalid or expired credential.
	EndpointStatusUnauthorized EndpointStatus = "unauthorized"
	// EndpointStatusForbidden indicates authorization failure or restricted access.
	EndpointStatusForbidden EndpointStatus = "forbidden"
	// EndpointStatusRateLimited indicates a spent primary or secondary rate-limit budget.
	EndpointStatusRateLimited EndpointStatus = "rate_limited"
	// EndpointStatusNotFound indicates the resource does not exist or is hidden.
	EndpointStatusNotFound EndpointStatus = "not_found"
	// EndpointStatusConflict indicates a state conflict, like listing commits of an empty repository.
	EndpointStatusConflict EndpointStatus = "conflict"
	// EndpointStatusUnprocessable indicates request validation/processing failure.
	EndpointStatusUnprocessable EndpointStatus = "unprocessable"
	// EndpointStatusUnavailable indicates a temporary service-side failure.
	EndpointStatusUnavailable EndpointStatus = "unavailable"
	// EndpointStatusUnknown indicates an unclassified non-success status.
	EndpointStatusUnknown EndpointStatus = "unknown"
)

// Page describes one paginated response.
type Page struct {
	Status      EndpointStatus
	Size        int
	LinkPresent bool
	HasNext     bool
	Metadata    CallMetadata
}

// More reports whether another page should be requested. A Link header is
// authoritative when present; otherwise only a full page implies more data.
func (p Page) More(perPage int) bool {
	if p.Status != EndpointStatusOK || p.Size == 0 || p.Size < perPage {
		return false
	}
	if p.LinkPresent {
		return p.HasNext
	}
	return true
}

// User is a GitHub account profile.
type User struct {
	Login       string `json:"login"`
	Name        string `json:"name"`
	AvatarURL   string `json:"avatar_url"`
	Bio         string `json:"bio"`
	Location    string `json:"location,omitempty"`
	Company     string `json:"company,omitempty"`
	Blog        string `json:"blog,omitempty"`
	PublicRepos int    `json:"public_repos"`
	Followers   int    `json:"followers"`
	Following   int    `json:"following"`
}

// UserResult is the typed result for profile lookups.
type UserResult struct {
	Status   EndpointStatus
	User     User
	Metadata CallMetadata
}

// Email is one address attached to the authenticated account.
type Email struct {
	Address  string
	Verified bool
	Primary  bool
}

// EmailPage is one page of the authenticated account's addresses.
type EmailPage struct {
	Page
	Emails []Email
}

// OrgPage is one page of organization logins.
type OrgPage struct {
	Page
	Orgs []string
}

// Repository is one GitHub repository.
type Repository struct {
	ID            int64
	Name          string
	FullName      string
	Owner         string
	Description   string
	Stars         int
	Forks         int
	Language      string
	UpdatedAt     time.Time
	HTMLURL       string
	Fork          bool
	DefaultBranch string
}

// RepoPage is one page of repositories.
type RepoPage struct {
	Page
	Repos []Repository
}

// BranchPage is one page of branch names.
type BranchPage struct {
	Page
	Branches []string
}

// Commit carries the commit fields consulted for attribution.
type Commit struct {
	SHA            string
	AuthorLogin    string
	CommitterLogin string
	AuthorName     string
	AuthorEmail    string
	CommitterName  string
	CommitterEmail string
	Message        string
	ParentCount    int
	AuthoredAt     time.Time
}

// CommitPage is one page of repository commits.
type CommitPage struct {
	Page
	Commits []Commit
}

// CommitQuery selects one page of a repository's history.
type CommitQuery struct {
	Owner  string
	Repo   string
	Branch string
	Since  time.Time
	Until  time.Time
	Page   int
}

// DataClient is a typed GitHub REST data client for the statistics endpoints.
type DataClient struct {
	baseURL       *url.URL
	requestClient *Client
}

// NewDataClient creates a typed data client over the generic retry/rate-limit request client.
func NewDataClient(baseURL string, requestClient *Client) (*DataClient, error) {
	if requestClient == nil {
		return nil, fmt.Errorf("request client is required")
	}

	parsed, err := parseAPIBaseURL(baseURL)
	if err != nil {
		return nil, err
	}

	return &DataClient{
		baseURL:       parsed,
		requestClient: requestClient,
	}, nil
}

// GetAuthenticatedUser reads the profile owning the client's credential.
func (c *DataClient) GetAuthenticatedUser(ctx context.Context) (UserResult, error) {
	var payload github.User
	page, err := c.getJSON(ctx, []string{"user"}, nil, &payload)
	if err != nil {
		return UserResult{}, fmt.Errorf("get authenticated user: %w", err)
	}
	return UserResult{Status: page.Status, User: userFromPayload(&payload), Metadata: page.Metadata}, nil
}

// GetUser reads a public profile by login.
func (c *DataClient) GetUser(ctx context.Context, login string) (UserResult, error) {
	trimmed := strings.TrimSpace(login)
	if trimmed == "" {
		return UserResult{}, fmt.Errorf("login is required")
	}

	var payload github.User
	page, err := c.getJSON(ctx, []string{"users", url.PathEscape(trimmed)}, nil, &payload)
	if err != nil {
		return UserResult{}, fmt.Errorf("get user %q: %w", trimmed, err)
	}
	return UserResult{Status: page.Status, User: userFromPayload(&payload), Metadata: page.Metadata}, nil
}

// ListUserEmails lists one page of the authenticated account's e-mail addresses.
func (c *DataClient) ListUserEmails(ctx context.Context, page int) (EmailPage, error) {
	var payload []*github.UserEmail
	meta, err := c.getJSON(ctx, []string{"user", "emails"}, pageQuery(page), &payload)
	if err != nil {
		return EmailPage{}, fmt.Errorf("list user emails: %w", err)
	}

	result := EmailPage{Page: meta}
	for _, email := range payload {
		result.Emails = append(result.Emails, Email{
			Address:  email.GetEmail(),
			Verified: email.GetVerified(),
			Primary:  email.GetPrimary(),
		})
	}
	result.Size = len(payload)
	return result, nil
}

// ListAuthenticatedRepos lists one page of repositories the credential owns,
// collaborates on, or reaches through organization membership.
func (c *DataClient) ListAuthenticatedRepos(ctx context.Context, page int) (RepoPage, error) {
	query := pageQuery(page)
	query.Set("affiliation", "owner,collaborator,organization_member")
	query.Set("sort", "updated")
	return c.listRepos(ctx, []string{"user", "repos"}, query, "list authenticated repos")
}

// ListUserOrgs lists one page of the authenticated account's organizations.
func (c *DataClient) ListUserOrgs(ctx context.Context, page int) (OrgPage, error) {
	var payload []*github.Organization
	meta, err := c.getJSON(ctx, []string{"user", "orgs"}, pageQuery(page), &payload)
	if err != nil {
		return OrgPage{}, fmt.Errorf("list user orgs: %w", err)
	}

	result := OrgPage{Page: meta}
	for _, org := range payload {
		if login := strings.TrimSpace(org.GetLogin()); login != "" {
			result.Orgs = append(result.Orgs, login)
		}
	}
	result.Size = len(payload)
	return result, nil
}

// ListOrgRepos lists one page of an organization's repositories.
func (c *DataClient) ListOrgRepos(ctx context.Context, org string, page int) (RepoPage, error) {
	trimmed := strings.TrimSpace(org)
	if trimmed == "" {
		return RepoPage{}, fmt.Errorf("organization is required")
	}
	query := pageQuery(page)
	query.Set("type", "all")
	return c.listRepos(ctx, []string{"orgs", url.PathEscape(trimmed), "repos"}, query, "list org repos")
}

// ListUserRepos lists one page of repositories owned by login.
func (c *DataClient) ListUserRepos(ctx context.Context, login string, page int) (RepoPage, error) {
	trimmed := strings.TrimSpace(login)
	if trimmed == "" {
		return RepoPage{}, fmt.Errorf("login is required")
	}
	query := pageQuery(page)
	query.Set("type", "owner")
	query.Set("sort", "updated")
	return c.listRepos(ctx, []string{"users", url.PathEscape(trimmed), "repos"}, query, "list user repos")
}

// ListBranches lists one page of branch names for a repository.
func (c *DataClient) ListBranches(ctx context.Context, owner, repo string, page int) (BranchPage, error) {
	trimmedOwner, trimmedRepo, err := ownerRepo(owner, repo)
	if err != nil {
		return BranchPage{}, err
	}

	var payload []*github.Branch
	meta, err := c.getJSON(ctx, []string{"repos", url.PathEscape(trimmedOwner), url.PathEscape(trimmedRepo), "branches"}, pageQuery(page), &payload)
	if err != nil {
		return BranchPage{}, fmt.Errorf("list branches: %w", err)
	}

	result := BranchPage{Page: meta}
	for _, branch := range payload {
		if name := branch.GetName(); name != "" {
			result.Branches = append(result.Branches, name)
		}
	}
	result.Size = len(payload)
	return result, nil
}

// ListCommits lists one page of repository history filtered by branch and window.
func (c *DataClient) ListCommits(ctx context.Context, q CommitQuery) (CommitPage, error) {
	trimmedOwner, trimmedRepo, err := ownerRepo(q.Owner, q.Repo)
	if err != nil {
		return CommitPage{}, err
	}
	if !q.Until.IsZero() && !q.Since.IsZero() && q.Until.Before(q.Since) {
		return CommitPage{}, fmt.Errorf("until must not be before since")
	}

	query := pageQuery(q.Page)
	if branch := strings.TrimSpace(q.Branch); branch != "" {
		query.Set("sha", branch)
	}
	if !q.Since.IsZero() {
		query.Set("since", q.Since.UTC().Format(time.RFC3339))
	}
	if !q.Until.IsZero() {
		query.Set("until", q.Until.UTC().Format(time.RFC3339))
	}

	var payload []*github.RepositoryCommit
	meta, err := c.getJSON(ctx, []string{"repos", url.PathEscape(trimmedOwner), url.PathEscape(trimmedRepo), "commits"}, query, &payload)
	if err != nil {
		return CommitPage{}, fmt.Errorf("list commits: %w", err)
	}

	result := CommitPage{Page: meta}
	for _, commit := range payload {
		result.Commits = append(result.Commits, commitFromPayload(commit))
	}
	result.Size = len(payload)
	return result, nil
}

func (c *DataClient) listRepos(ctx context.Context, segments []string, query url.Values, operation string) (RepoPage, error) {
	var payload []*github.Repository
	meta, err := c.getJSON(ctx, segments, query, &payload)
	if err != nil {
		return RepoPage{}, fmt.Errorf("%s: %w", operation, err)
	}

	result := RepoPage{Page: meta}
	for _, repo := range payload {
		result.Repos = append(result.Repos, repositoryFromPayload(repo))
	}
	result.Size = len(payload)
	return result, nil
}

// getJSON performs one GET and decodes a successful body into target.
// Non-success statuses are reported through Page.Status with a nil error.
func (c *DataClient) getJSON(ctx context.Context, segments []string, query url.Values, target any) (Page, error) {
	reqURL := c.cloneBaseURL()
	reqURL.Path = joinURLPath(reqURL.Path, segments...)
	if query != nil {
		reqURL.RawQuery = query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return Page{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	req.Header.Set("User-Agent", userAgent)

	resp, metadata, err := c.requestClient.Do(req)
	if err != nil {
		return Page{Metadata: metadata}, fmt.Errorf("request failed: %w", err)
	}
	if resp == nil {
		return Page{Metadata: metadata}, fmt.Errorf("request failed: nil response")
	}

	page := Page{
		Status:   endpointStatusFromHTTP(resp.StatusCode, metadata.LastRateHeaders),
		Metadata: metadata,
	}
	if page.Status != EndpointStatusOK {
		_ = resp.Body.Close()
		return page, nil
	}

	link := resp.Header.Get("Link")
	page.LinkPresent = strings.TrimSpace(link) != ""
	page.HasNext = hasNextPage(link)

	if err := decodeJSONAndClose(resp, target); err != nil {
		return page, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return page, nil
}

func userFromPayload(payload *github.User) User {
	return User{
		Login:       payload.GetLogin(),
		Name:        payload.GetName(),
		AvatarURL:   payload.GetAvatarURL(),
		Bio:         payload.GetBio(),
		Location:    payload.GetLocation(),
		Company:     payload.GetCompany(),
		Blog:        payload.GetBlog(),
		PublicRepos: payload.GetPublicRepos(),
		Followers:   payload.GetFollowers(),
		Following:   payload.GetFollowing(),
	}
}

func repositoryFromPayload(payload *github.Repository) Repository {
	return Repository{
		ID:            payload.GetID(),
		Name:          payload.GetName(),
		FullName:      payload.GetFullName(),
		Owner:         payload.GetOwner().GetLogin(),
		Description:   payload.GetDescription(),
		Stars:         payload.GetStargazersCount(),
		Forks:         payload.GetForksCount(),
		Language:      payload.GetLanguage(),
		UpdatedAt:     payload.GetUpdatedAt().UTC(),
		HTMLURL:       payload.GetHTMLURL(),
		Fork:          payload.GetFork(),
		DefaultBranch: payload.GetDefaultBranch(),
	}
}

func commitFromPayload(payload *github.RepositoryCommit) Commit {
	core := payload.GetCommit()
	return Commit{
		SHA:            payload.GetSHA(),
		AuthorLogin:    payload.GetAuthor().GetLogin(),
		CommitterLogin: payload.GetCommitter().GetLogin(),
		AuthorName:     core.GetAuthor().GetName(),
		AuthorEmail:    core.GetAuthor().GetEmail(),
		CommitterName:  core.GetCommitter().GetName(),
		CommitterEmail: core.GetCommitter().GetEmail(),
		Message:        core.GetMessage(),
		ParentCount:    len(payload.Parents),
		AuthoredAt:     core.GetAuthor().GetDate().UTC(),
	}
}

func ownerRepo(owner, repo string) (string, string, error) {
	trimmedOwner := strings.TrimSpace(owner)
	trimmedRepo := strings.TrimSpace(repo)
	if trimmedOwner == "" {
		return "", "", fmt.Errorf("owner is required")
	}
	if trimmedRepo == "" {
		return "", "", fmt.Errorf("repo is required")
	}
	return trimmedOwner, trimmedRepo, nil
}

func pageQuery(page int) url.Values {
	if page <= 0 {
		page = 1
	}
	query := url.Values{}
	query.Set("per_page", strconv.Itoa(PerPage))
	query.Set("page", strconv.Itoa(page))
	return query
}

func parseAPIBaseURL(raw string) (*url.URL, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		trimmed = defaultGitHubAPIBaseURL
	}

	parsed, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse github api base url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("parse github api base url: missing scheme or host")
	}
	if !strings.HasSuffix(parsed.Path, "/") {
		parsed.Path += "/"
	}
	return parsed, nil
}

func (c *DataClient) cloneBaseURL() *url.URL {
	cloned := *c.baseURL
	return &cloned
}

func joinURLPath(base string, segments ...string) string {
	trimmedBase := strings.TrimSuffix(base, "/")
	builder := strings.Builder{}
	builder.WriteString(trimmedBase)
	for _, segment := range segments {
		builder.WriteString("/")
		builder.WriteString(strings.TrimPrefix(segment, "/"))
	}
	return builder.String()
}

func endpointStatusFromHTTP(statusCode int, headers RateLimitHeaders) EndpointStatus {
	switch statusCode {
	case http.StatusUnauthorized:
		return EndpointStatusUnauthorized
	case http.StatusForbidden, http.StatusTooManyRequests:
		if headers.Exhausted() || statusCode == http.StatusTooManyRequests {
			return EndpointStatusRateLimited
		}
		return EndpointStatusForbidden
	case http.StatusNotFound:
		return EndpointStatusNotFound
	case http.StatusConflict:
		return EndpointStatusConflict
	case http.StatusUnprocessableEntity:
		return EndpointStatusUnprocessable
	}
	if statusCode >= 200 && statusCode <= 299 {
		return EndpointStatusOK
	}
	if statusCode >= 500 {
		return EndpointStatusUnavailable
	}
	return EndpointStatusUnknown
}

func decodeJSONAndClose(resp *http.Response, target any) error {
	defer resp.Body.Close()
	decoder := json.NewDecoder(resp.Body)
	if err := decoder.Decode(target); err != nil {
		return err
	}
	return nil
}

func hasNextPage(linkHeader string) bool {
	if strings.TrimSpace(linkHeader) == "" {
		return false
	}
	parts := strings.Split(linkHeader, ",")
	for _, part := range parts {
		if strings.Contains(part, `rel="next"`) {
			return true
		}
	}
	return false
}
