package health

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Pinger checks a dependency round trip.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RateProber reads the remaining core GitHub budget.
type RateProber interface {
	CoreRemaining(ctx context.Context) (int, error)
}

// MonitorConfig configures background dependency probes.
type MonitorConfig struct {
	Interval                      time.Duration
	GitHubRecoverSuccessThreshold int
	ProbeTimeout                  time.Duration
}

// Monitor probes the cache and GitHub and serves the evaluated status.
type Monitor struct {
	cache     Pinger
	github    RateProber
	evaluator *StatusEvaluator
	logger    *zap.Logger

	interval         time.Duration
	probeTimeout     time.Duration
	recoverThreshold int

	mu            sync.RWMutex
	cacheHealthy  bool
	engineReady   bool
	githubHealthy bool
	recoverStreak int
	rateRemaining int
}

// NewMonitor creates a monitor. Dependencies start out healthy and the engine
// not ready until SetEngineReady is called. Either dependency may be nil, in
// which case it is reported healthy without probing.
func NewMonitor(cfg MonitorConfig, cache Pinger, github RateProber, logger *zap.Logger) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	probeTimeout := cfg.ProbeTimeout
	if probeTimeout <= 0 {
		probeTimeout = 5 * time.Second
	}
	recoverThreshold := cfg.GitHubRecoverSuccessThreshold
	if recoverThreshold <= 0 {
		recoverThreshold = 1
	}
	return &Monitor{
		cache:            cache,
		github:           github,
		evaluator:        NewStatusEvaluator(),
		logger:           logger,
		interval:         interval,
		probeTimeout:     probeTimeout,
		recoverThreshold: recoverThreshold,
		cacheHealthy:     true,
		githubHealthy:    true,
		rateRemaining:    -1,
	}
}

// Run probes immediately and then on every interval until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	m.ProbeOnce(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.ProbeOnce(ctx)
		}
	}
}

// ProbeOnce runs one round of dependency probes.
func (m *Monitor) ProbeOnce(ctx context.Context) {
	cacheHealthy := true
	if m.cache != nil {
		probeCtx, cancel := context.WithTimeout(ctx, m.probeTimeout)
		err := m.cache.Ping(probeCtx)
		cancel()
		if err != nil {
			cacheHealthy = false
			m.logger.Warn("cache probe failed", zap.Error(err))
		}
	}

	remaining := -1
	githubOK := true
	if m.github != nil {
		probeCtx, cancel := context.WithTimeout(ctx, m.probeTimeout)
		got, err := m.github.CoreRemaining(probeCtx)
		cancel()
		if err != nil {
			githubOK = false
			m.logger.Warn("github probe failed", zap.Error(err))
		} else {
			remaining = got
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.cacheHealthy = cacheHealthy
	if remaining >= 0 {
		m.rateRemaining = remaining
	}
	m.updateGitHubHealthLocked(githubOK)
}

func (m *Monitor) updateGitHubHealthLocked(probeSuccessful bool) {
	if !probeSuccessful {
		m.recoverStreak = 0
		m.githubHealthy = false
		return
	}
	if m.githubHealthy {
		m.recoverStreak = 0
		return
	}
	m.recoverStreak++
	if m.recoverStreak >= m.recoverThreshold {
		m.githubHealthy = true
		m.recoverStreak = 0
		m.logger.Info("github probe recovered")
	}
}

// SetEngineReady records whether the stats engine can serve requests.
func (m *Monitor) SetEngineReady(ready bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.engineReady = ready
}

// CurrentStatus returns the evaluated status from the last probe round.
func (m *Monitor) CurrentStatus(_ context.Context) Status {
	m.mu.RLock()
	input := Input{
		CacheHealthy:  m.cacheHealthy,
		EngineReady:   m.engineReady,
		GitHubHealthy: m.githubHealthy,
		RateRemaining: m.rateRemaining,
	}
	m.mu.RUnlock()
	return m.evaluator.Evaluate(input)
}
