package stats

import (
	"errors"
	"fmt"

	"github.com/cam3ron2/year-in-code/internal/githubapi"
)

var (
	// ErrUserNotFound is returned when a public lookup names an unknown login.
	ErrUserNotFound = errors.New("github user not found")
	// ErrTransient marks a request-level transport or decode failure.
	ErrTransient = errors.New("transient github failure")
)

// AuthError reports a credential GitHub refused.
type AuthError struct {
	Status githubapi.EndpointStatus
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("github rejected credential: %s", e.Status)
}

// RepoFetchError reports a repository listing that failed for a reason other
// than running out of pages.
type RepoFetchError struct {
	Scope  string
	Status githubapi.EndpointStatus
	Err    error
}

func (e *RepoFetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("list %s repositories: %v", e.Scope, e.Err)
	}
	return fmt.Sprintf("list %s repositories: status %q", e.Scope, e.Status)
}

func (e *RepoFetchError) Unwrap() error {
	return e.Err
}

// StatsError wraps a failure that aborted a whole report.
type StatsError struct {
	Stage string
	Err   error
}

func (e *StatsError) Error() string {
	return fmt.Sprintf("compute stats (%s): %v", e.Stage, e.Err)
}

func (e *StatsError) Unwrap() error {
	return e.Err
}

// IsAuthError reports whether err carries an *AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}
