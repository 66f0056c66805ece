package app

import (
	"context"
	"sync"

	"github.com/cam3ron2/year-in-code/internal/githubapi"
	"github.com/cam3ron2/year-in-code/internal/stats"
)

type fakeStats struct {
	mu       sync.Mutex
	result   stats.Result
	err      error
	user     githubapi.User
	tokenErr error
	calls    []stats.Credentials
}

func (f *fakeStats) GetStats(_ context.Context, creds stats.Credentials) (stats.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, creds)
	if f.err != nil {
		return stats.Result{}, f.err
	}
	return f.result, nil
}

func (f *fakeStats) ValidateToken(context.Context, string) (githubapi.User, error) {
	if f.tokenErr != nil {
		return githubapi.User{}, f.tokenErr
	}
	return f.user, nil
}

func (f *fakeStats) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeInstrumentation struct {
	mu        sync.Mutex
	hits      int
	misses    int
	responses map[string]int
}

func (f *fakeInstrumentation) CacheLookup(hit bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if hit {
		f.hits++
		return
	}
	f.misses++
}

func (f *fakeInstrumentation) HTTPResponse(route string, code int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.responses == nil {
		f.responses = make(map[string]int)
	}
	f.responses[route]++
	_ = code
}

func completeResult(login string, commits int) stats.Result {
	return stats.Result{
		Mode: stats.ModeAuthenticated,
		User: githubapi.User{Login: login, Name: "Octo Cat", AvatarURL: "https://avatars.example.com/" + login},
		Stats: stats.Report{
			TotalCommits: commits,
			Languages:    map[string]int{"Go": 2},
			Complete:     true,
		},
	}
}
