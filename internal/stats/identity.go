package stats

import (
	"context"
	"fmt"
	"sort"

	"github.com/cam3ron2/year-in-code/internal/githubapi"
	"go.uber.org/zap"
)

const maxEmailPages = 5

// Identity is the authenticated account and its verified addresses.
type Identity struct {
	User   githubapi.User
	Emails []string
}

// ResolveIdentity reads the profile behind src's credential and its verified
// e-mail addresses. A failed e-mail listing leaves Emails empty.
func ResolveIdentity(ctx context.Context, src Source, logger *zap.Logger) (Identity, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	user, err := authenticatedUser(ctx, src)
	if err != nil {
		return Identity{}, err
	}

	emails, err := verifiedEmails(ctx, src)
	if err != nil {
		logger.Warn("email lookup failed; attributing by login only",
			zap.String("login", user.Login),
			zap.Error(err),
		)
		emails = nil
	}
	return Identity{User: user, Emails: emails}, nil
}

// ValidateToken resolves only the profile behind src's credential.
func ValidateToken(ctx context.Context, src Source) (githubapi.User, error) {
	return authenticatedUser(ctx, src)
}

func authenticatedUser(ctx context.Context, src Source) (githubapi.User, error) {
	result, err := src.GetAuthenticatedUser(ctx)
	if err != nil {
		return githubapi.User{}, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	switch result.Status {
	case githubapi.EndpointStatusOK:
	case githubapi.EndpointStatusUnauthorized, githubapi.EndpointStatusForbidden:
		return githubapi.User{}, &AuthError{Status: result.Status}
	default:
		return githubapi.User{}, fmt.Errorf("get authenticated user returned status %q", result.Status)
	}
	if result.User.Login == "" {
		return githubapi.User{}, fmt.Errorf("authenticated user has no login")
	}
	return result.User, nil
}

func verifiedEmails(ctx context.Context, src Source) ([]string, error) {
	seen := make(map[string]struct{})
	for page := 1; page <= maxEmailPages; page++ {
		result, err := src.ListUserEmails(ctx, page)
		if err != nil {
			return nil, err
		}
		if result.Status != githubapi.EndpointStatusOK {
			return nil, fmt.Errorf("list user emails returned status %q", result.Status)
		}
		for _, email := range result.Emails {
			if !email.Verified {
				continue
			}
			if normalized := normalizeEmail(email.Address); normalized != "" {
				seen[normalized] = struct{}{}
			}
		}
		if !result.More(githubapi.PerPage) {
			break
		}
	}

	emails := make([]string, 0, len(seen))
	for email := range seen {
		emails = append(emails, email)
	}
	sort.Strings(emails)
	return emails, nil
}
