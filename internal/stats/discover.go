package stats

import (
	"context"
	"fmt"
	"strings"

	"github.com/cam3ron2/year-in-code/internal/githubapi"
	"go.uber.org/zap"
)

// repoSet collects repositories in discovery order, keyed by full name.
type repoSet struct {
	seen  map[string]struct{}
	repos []githubapi.Repository
}

func newRepoSet() *repoSet {
	return &repoSet{seen: make(map[string]struct{})}
}

func (s *repoSet) add(repo githubapi.Repository) bool {
	key := strings.ToLower(strings.TrimSpace(repo.FullName))
	if key == "" {
		return false
	}
	if _, ok := s.seen[key]; ok {
		return false
	}
	s.seen[key] = struct{}{}
	s.repos = append(s.repos, repo)
	return true
}

type repoPageFunc func(ctx context.Context, page int) (githubapi.RepoPage, error)

// discoverAuthenticated lists repositories reachable through the credential,
// then each organization's repositories. Organization failures are skipped.
func (r *run) discoverAuthenticated(ctx context.Context) ([]githubapi.Repository, error) {
	set := newRepoSet()
	err := r.paginateRepos(ctx, "authenticated", "user_repos", set, func(ctx context.Context, page int) (githubapi.RepoPage, error) {
		return r.src.ListAuthenticatedRepos(ctx, page)
	})
	if err != nil {
		return nil, err
	}

	orgs, err := r.listOrgs(ctx)
	if err != nil {
		r.logger.Warn("organization listing failed; using affiliated repositories only", zap.Error(err))
		return set.repos, nil
	}
	for _, org := range orgs {
		before := len(set.repos)
		err := r.paginateRepos(ctx, "organization "+org, "org_repos", set, func(ctx context.Context, page int) (githubapi.RepoPage, error) {
			return r.src.ListOrgRepos(ctx, org, page)
		})
		if err != nil {
			r.logger.Warn("skipping organization repositories",
				zap.String("org", org),
				zap.Error(err),
			)
			continue
		}
		r.logger.Debug("organization repositories listed",
			zap.String("org", org),
			zap.Int("new_repos", len(set.repos)-before),
		)
	}
	return set.repos, nil
}

// discoverPublic lists the repositories login owns.
func (r *run) discoverPublic(ctx context.Context, login string) ([]githubapi.Repository, error) {
	set := newRepoSet()
	err := r.paginateRepos(ctx, "public", "user_public_repos", set, func(ctx context.Context, page int) (githubapi.RepoPage, error) {
		return r.src.ListUserRepos(ctx, login, page)
	})
	if err != nil {
		return nil, err
	}
	return set.repos, nil
}

func (r *run) paginateRepos(ctx context.Context, scope, endpoint string, set *repoSet, fetch repoPageFunc) error {
	for page := 1; page <= r.maxListPages; page++ {
		result, err := fetch(ctx, page)
		r.observe(endpoint, result.Status, result.Metadata, err)
		if err != nil {
			return &RepoFetchError{Scope: scope, Err: fmt.Errorf("%w: %v", ErrTransient, err)}
		}
		if result.Status != githubapi.EndpointStatusOK {
			return &RepoFetchError{Scope: scope, Status: result.Status}
		}
		for _, repo := range result.Repos {
			set.add(repo)
		}
		if !result.More(githubapi.PerPage) {
			return nil
		}
		if err := r.pacer.Backoff(ctx); err != nil {
			return &RepoFetchError{Scope: scope, Err: err}
		}
	}
	r.logger.Warn("repository listing hit page cap", zap.String("scope", scope), zap.Int("pages", r.maxListPages))
	r.cappedListings = append(r.cappedListings, scope)
	return nil
}

func (r *run) listOrgs(ctx context.Context) ([]string, error) {
	var orgs []string
	for page := 1; page <= r.maxListPages; page++ {
		result, err := r.src.ListUserOrgs(ctx, page)
		r.observe("user_orgs", result.Status, result.Metadata, err)
		if err != nil {
			return nil, err
		}
		if result.Status != githubapi.EndpointStatusOK {
			return nil, fmt.Errorf("list user orgs returned status %q", result.Status)
		}
		orgs = append(orgs, result.Orgs...)
		if !result.More(githubapi.PerPage) {
			return orgs, nil
		}
	}
	r.logger.Warn("organization listing hit page cap", zap.Int("pages", r.maxListPages))
	r.cappedListings = append(r.cappedListings, "organizations")
	return orgs, nil
}
