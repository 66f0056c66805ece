package stats

import (
	"context"
	"sync"
	"time"

	"github.com/cam3ron2/year-in-code/internal/githubapi"
	"golang.org/x/time/rate"
)

// Pacer spaces out repository batches and backs off on rate-limit signals.
// One Pacer belongs to one report computation.
type Pacer struct {
	limiter   *rate.Limiter
	threshold int
	maxWait   time.Duration
	sleep     func(ctx context.Context, d time.Duration) error

	mu        sync.Mutex
	decision  githubapi.Decision
	remaining int
	known     bool
}

// PacerConfig configures a Pacer.
type PacerConfig struct {
	// Interval is the minimum spacing between batches.
	Interval time.Duration
	// Threshold is the remaining-budget floor used to shrink batches.
	Threshold int
	// MaxWait caps a single header-driven backoff.
	MaxWait time.Duration
	Sleep   func(ctx context.Context, d time.Duration) error
}

// NewPacer creates a Pacer whose first batch starts immediately.
func NewPacer(cfg PacerConfig) *Pacer {
	limit := rate.Inf
	if cfg.Interval > 0 {
		limit = rate.Every(cfg.Interval)
	}
	sleep := cfg.Sleep
	if sleep == nil {
		sleep = githubapi.SleepContext
	}
	return &Pacer{
		limiter:   rate.NewLimiter(limit, 1),
		threshold: cfg.Threshold,
		maxWait:   cfg.MaxWait,
		sleep:     sleep,
		decision:  githubapi.Decision{Allow: true},
	}
}

// Observe records the rate-limit view of a completed call.
func (p *Pacer) Observe(metadata githubapi.CallMetadata) {
	if p == nil || metadata.Attempts == 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	p.decision = metadata.LastDecision
	if metadata.LastRateHeaders.Present {
		p.remaining = metadata.LastRateHeaders.Remaining
		p.known = true
	}
}

// Backoff blocks while the last observed decision disallows calls.
func (p *Pacer) Backoff(ctx context.Context) error {
	if p == nil {
		return ctx.Err()
	}
	p.mu.Lock()
	decision := p.decision
	p.mu.Unlock()

	if decision.Allow || decision.WaitFor <= 0 {
		return ctx.Err()
	}
	wait := decision.WaitFor
	if p.maxWait > 0 && wait > p.maxWait {
		wait = p.maxWait
	}
	if err := p.sleep(ctx, wait); err != nil {
		return err
	}

	p.mu.Lock()
	if p.decision == decision {
		p.decision = githubapi.Decision{Allow: true, Reason: "backoff_elapsed"}
	}
	p.mu.Unlock()
	return nil
}

// Wait blocks until the next batch may start.
func (p *Pacer) Wait(ctx context.Context) error {
	if p == nil {
		return ctx.Err()
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return err
	}
	return p.Backoff(ctx)
}

// BatchSize returns base, halved while the remaining budget is under twice the threshold.
func (p *Pacer) BatchSize(base int) int {
	if base <= 0 {
		base = 1
	}
	if p == nil {
		return base
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.known && p.threshold > 0 && p.remaining < 2*p.threshold {
		base /= 2
	}
	if base < 1 {
		base = 1
	}
	return base
}

// Remaining returns the last observed remaining budget.
func (p *Pacer) Remaining() (int, bool) {
	if p == nil {
		return 0, false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.remaining, p.known
}
