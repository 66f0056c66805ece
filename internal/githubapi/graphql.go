package githubapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/shurcooL/githubv4"
)

const (
	defaultGitHubGraphQLURL = "https://api.github.com/graphql"
	pinnedItemsLimit        = 6
)

// PinnedClient reads the repositories a user pinned to their profile.
type PinnedClient struct {
	client *githubv4.Client
}

// NewPinnedClient creates a GraphQL client. httpClient must carry credentials;
// the GraphQL API rejects anonymous callers.
func NewPinnedClient(graphqlURL string, httpClient *http.Client) (*PinnedClient, error) {
	if httpClient == nil {
		return nil, fmt.Errorf("http client is required")
	}
	endpoint := strings.TrimSpace(graphqlURL)
	if endpoint == "" {
		endpoint = defaultGitHubGraphQLURL
	}
	return &PinnedClient{client: githubv4.NewEnterpriseClient(endpoint, httpClient)}, nil
}

type pinnedItemsQuery struct {
	User struct {
		PinnedItems struct {
			Nodes []struct {
				Repository struct {
					NameWithOwner githubv4.String
				} `graphql:"... on Repository"`
			}
		} `graphql:"pinnedItems(first: 6, types: REPOSITORY)"`
	} `graphql:"user(login: $login)"`
}

// ListPinnedRepositories returns the owner/name of each pinned repository, in profile order.
func (c *PinnedClient) ListPinnedRepositories(ctx context.Context, login string) ([]string, error) {
	trimmed := strings.TrimSpace(login)
	if trimmed == "" {
		return nil, fmt.Errorf("login is required")
	}

	var query pinnedItemsQuery
	variables := map[string]any{
		"login": githubv4.String(trimmed),
	}
	if err := c.client.Query(ctx, &query, variables); err != nil {
		return nil, fmt.Errorf("query pinned items: %w", err)
	}

	names := make([]string, 0, pinnedItemsLimit)
	for _, node := range query.User.PinnedItems.Nodes {
		name := strings.TrimSpace(string(node.Repository.NameWithOwner))
		if name == "" {
			continue
		}
		names = append(names, name)
	}
	return names, nil
}
