package stats

import "time"

// Recorder receives engine instrumentation.
type Recorder interface {
	ReportCompleted(mode Mode, outcome string, duration time.Duration)
	GitHubRequest(endpoint, status string)
	RateLimitRemaining(remaining int)
	RepositoryWalked(outcome string)
}

// Report outcomes.
const (
	OutcomeComplete = "complete"
	OutcomePartial  = "partial"
	OutcomeError    = "error"
)

type nopRecorder struct{}

func (nopRecorder) ReportCompleted(Mode, string, time.Duration) {}
func (nopRecorder) GitHubRequest(string, string)                 {}
func (nopRecorder) RateLimitRemaining(int)                       {}
func (nopRecorder) RepositoryWalked(string)                      {}
