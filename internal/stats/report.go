package stats

import (
	"time"

	"github.com/cam3ron2/year-in-code/internal/githubapi"
)

// Mode distinguishes token-backed reports from public username lookups.
type Mode string

// Report modes.
const (
	ModeAuthenticated Mode = "authenticated"
	ModePublic        Mode = "public"
)

// Repository is a discovered repository enriched with the user's activity.
type Repository struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	FullName      string    `json:"full_name"`
	Description   string    `json:"description"`
	Stars         int       `json:"stargazers_count"`
	Forks         int       `json:"forks_count"`
	Language      string    `json:"language"`
	UpdatedAt     time.Time `json:"updated_at"`
	HTMLURL       string    `json:"html_url"`
	Fork          bool      `json:"fork"`
	DefaultBranch string    `json:"default_branch"`
	CommitsCount  int       `json:"commits_count"`
	PRsCount      int       `json:"prs_count"`
	IsPinned      bool      `json:"is_pinned"`
	Truncated     bool      `json:"truncated,omitempty"`
}

// Report is the yearly statistics artifact handed to presentation.
type Report struct {
	TotalCommits        int             `json:"totalCommits"`
	TotalPRs            int             `json:"totalPRs"`
	TotalIssues         int             `json:"totalIssues"`
	TotalStars          int             `json:"totalStars"`
	TopRepos            []Repository    `json:"topRepos"`
	Languages           map[string]int  `json:"languages"`
	CommitTimeline      []TimelinePoint `json:"commitTimeline"`
	TimelineApproximate bool            `json:"timelineApproximate"`
	Complete            bool            `json:"complete"`
	TruncatedRepos      []string        `json:"truncatedRepos,omitempty"`
	TruncatedListings   []string        `json:"truncatedListings,omitempty"`
	Window              Window          `json:"window"`
}

// Result pairs a report with the profile it describes.
type Result struct {
	Mode  Mode           `json:"mode"`
	User  githubapi.User `json:"user"`
	Stats Report         `json:"stats"`
}

func repositoryFromSource(repo githubapi.Repository) Repository {
	return Repository{
		ID:            repo.ID,
		Name:          repo.Name,
		FullName:      repo.FullName,
		Description:   repo.Description,
		Stars:         repo.Stars,
		Forks:         repo.Forks,
		Language:      repo.Language,
		UpdatedAt:     repo.UpdatedAt,
		HTMLURL:       repo.HTMLURL,
		Fork:          repo.Fork,
		DefaultBranch: repo.DefaultBranch,
	}
}
