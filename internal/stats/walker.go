package stats

import (
	"context"
	"strings"
	"time"

	"github.com/cam3ron2/year-in-code/internal/githubapi"
	"go.uber.org/zap"
)

// StopReason records why a walk stopped paging.
type StopReason string

// Stop reasons. Exhausted, fork, not-found and empty stops are complete.
const (
	StopExhausted    StopReason = "exhausted"
	StopFork         StopReason = "fork"
	StopNotFound     StopReason = "not_found"
	StopEmpty        StopReason = "empty"
	StopRejected     StopReason = "rejected"
	StopRateLimited  StopReason = "rate_limited"
	StopForbidden    StopReason = "forbidden"
	StopUnauthorized StopReason = "unauthorized"
	StopUnavailable  StopReason = "unavailable"
	StopTransient    StopReason = "transient"
	StopPageCap      StopReason = "page_cap"
	StopDeadline     StopReason = "deadline"
	StopUnknown      StopReason = "unknown"
)

// Truncates reports whether stopping for r may have left matching commits unread.
func (r StopReason) Truncates() bool {
	switch r {
	case StopExhausted, StopFork, StopNotFound, StopEmpty:
		return false
	default:
		return true
	}
}

func stopReasonForStatus(status githubapi.EndpointStatus) StopReason {
	switch status {
	case githubapi.EndpointStatusOK:
		return StopExhausted
	case githubapi.EndpointStatusNotFound:
		return StopNotFound
	case githubapi.EndpointStatusConflict:
		return StopEmpty
	case githubapi.EndpointStatusUnprocessable:
		return StopRejected
	case githubapi.EndpointStatusRateLimited:
		return StopRateLimited
	case githubapi.EndpointStatusForbidden:
		return StopForbidden
	case githubapi.EndpointStatusUnauthorized:
		return StopUnauthorized
	case githubapi.EndpointStatusUnavailable:
		return StopUnavailable
	default:
		return StopUnknown
	}
}

type walkMode int

const (
	walkCount walkMode = iota
	walkDates
)

// RepoWalk is the outcome of walking one repository's history.
type RepoWalk struct {
	Count      int
	Dates      []time.Time
	Complete   bool
	StopReason StopReason
	Pages      int
}

func (w *RepoWalk) truncate(reason StopReason) {
	if !w.Complete {
		return
	}
	w.Complete = false
	w.StopReason = reason
}

// walkRepository counts the user's commits in repo across every branch,
// accepting each SHA at most once.
func (r *run) walkRepository(ctx context.Context, repo githubapi.Repository, mode walkMode) RepoWalk {
	if repo.Fork {
		r.recorder.RepositoryWalked(string(StopFork))
		return RepoWalk{Complete: true, StopReason: StopFork}
	}

	result := RepoWalk{Complete: true, StopReason: StopExhausted}
	owner, name, ok := splitFullName(repo)
	if !ok {
		result.truncate(StopUnknown)
		r.recorder.RepositoryWalked(string(result.StopReason))
		return result
	}

	branches, branchStop := r.listBranches(ctx, owner, name)
	if branchStop.Truncates() {
		result.truncate(branchStop)
	}
	if len(branches) == 0 {
		branches = []string{""}
	}

	accepted := make(map[string]struct{})
	for _, branch := range branches {
		stop := r.walkBranch(ctx, owner, name, branch, mode, accepted, &result)
		if stop.Truncates() {
			result.truncate(stop)
			r.logger.Debug("branch walk truncated",
				zap.String("repo", repo.FullName),
				zap.String("branch", branch),
				zap.String("reason", string(stop)),
			)
		}
		if stop == StopDeadline {
			break
		}
	}

	outcome := "complete"
	if !result.Complete {
		outcome = string(result.StopReason)
	}
	r.recorder.RepositoryWalked(outcome)
	return result
}

func (r *run) walkBranch(
	ctx context.Context,
	owner, name, branch string,
	mode walkMode,
	accepted map[string]struct{},
	result *RepoWalk,
) StopReason {
	for page := 1; ; page++ {
		if ctx.Err() != nil {
			return StopDeadline
		}
		commits, err := r.src.ListCommits(ctx, githubapi.CommitQuery{
			Owner:  owner,
			Repo:   name,
			Branch: branch,
			Since:  r.window.Start,
			Until:  r.window.End,
			Page:   page,
		})
		r.observe("commits", commits.Status, commits.Metadata, err)
		if err != nil {
			if ctx.Err() != nil {
				return StopDeadline
			}
			return StopTransient
		}
		result.Pages++
		if commits.Status != githubapi.EndpointStatusOK {
			return stopReasonForStatus(commits.Status)
		}

		for _, commit := range commits.Commits {
			if commit.SHA != "" {
				if _, ok := accepted[commit.SHA]; ok {
					continue
				}
			}
			if r.matcher.Match(commit) == SignalNone {
				continue
			}
			if commit.SHA != "" {
				accepted[commit.SHA] = struct{}{}
			}
			result.Count++
			if mode == walkDates && r.window.Contains(commit.AuthoredAt) {
				result.Dates = append(result.Dates, commit.AuthoredAt)
			}
		}

		if !commits.More(githubapi.PerPage) {
			return StopExhausted
		}
		if page >= r.maxPages {
			return StopPageCap
		}
		if err := r.pacer.Backoff(ctx); err != nil {
			return StopDeadline
		}
	}
}

// listBranches returns the repository's branch names. A failed first page
// yields no names; a later failure keeps the names already read.
func (r *run) listBranches(ctx context.Context, owner, name string) ([]string, StopReason) {
	var names []string
	for page := 1; ; page++ {
		result, err := r.src.ListBranches(ctx, owner, name, page)
		r.observe("branches", result.Status, result.Metadata, err)
		if err != nil {
			if ctx.Err() != nil {
				return names, StopDeadline
			}
			return names, StopTransient
		}
		if result.Status != githubapi.EndpointStatusOK {
			return names, stopReasonForStatus(result.Status)
		}
		names = append(names, result.Branches...)
		if !result.More(githubapi.PerPage) {
			return names, StopExhausted
		}
		if page >= r.maxPages {
			return names, StopPageCap
		}
	}
}

func splitFullName(repo githubapi.Repository) (string, string, bool) {
	owner, name, found := strings.Cut(strings.TrimSpace(repo.FullName), "/")
	if !found {
		owner, name = repo.Owner, repo.Name
	}
	owner = strings.TrimSpace(owner)
	name = strings.TrimSpace(name)
	return owner, name, owner != "" && name != ""
}
