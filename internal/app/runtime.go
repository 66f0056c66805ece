package app

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cam3ron2/year-in-code/internal/cache"
	"github.com/cam3ron2/year-in-code/internal/config"
	"github.com/cam3ron2/year-in-code/internal/githubapi"
	"github.com/cam3ron2/year-in-code/internal/health"
	"github.com/cam3ron2/year-in-code/internal/metrics"
	"github.com/cam3ron2/year-in-code/internal/stats"
	"go.uber.org/zap"
)

// Runtime is the application runtime orchestrator.
type Runtime struct {
	cfg     *config.Config
	store   cache.Store
	engine  *stats.Engine
	metrics *metrics.Metrics
	monitor *health.Monitor
	logger  *zap.Logger

	mu            sync.Mutex
	monitorCancel context.CancelFunc
	monitorDone   chan struct{}
}

// NewRuntime builds the cache, engine, metrics and health monitor from cfg.
func NewRuntime(cfg *config.Config, logger *zap.Logger) (*Runtime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	store, err := cache.NewFromConfig(cfg.Cache)
	if err != nil {
		logger.Warn("failed to initialize cache backend; falling back to in-memory cache",
			zap.String("backend", cfg.Cache.Backend), zap.Error(err))
		store = cache.NewMemoryStore(cache.MemoryConfig{MaxEntries: cfg.Cache.MaxEntries})
	}

	recorder := metrics.New()
	engine, err := stats.NewEngineFromConfig(cfg, logger.Named("stats"), recorder)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("create stats engine: %w", err)
	}

	var prober health.RateProber
	probeClient, err := githubapi.NewGitHubRESTClient(
		githubapi.NewAnonymousHTTPClient(cfg.GitHub.RequestTimeout, nil),
		cfg.GitHub.APIBaseURL,
	)
	if err != nil {
		logger.Warn("github probe disabled", zap.Error(err))
	} else {
		prober = probeClient
	}

	monitor := health.NewMonitor(health.MonitorConfig{
		Interval:                      cfg.Health.GitHubProbeInterval,
		GitHubRecoverSuccessThreshold: cfg.Health.GitHubRecoverSuccessThreshold,
	}, store, prober, logger.Named("health"))
	monitor.SetEngineReady(true)

	return &Runtime{
		cfg:     cfg,
		store:   store,
		engine:  engine,
		metrics: recorder,
		monitor: monitor,
		logger:  logger,
	}, nil
}

// Engine exposes the stats engine.
func (r *Runtime) Engine() *stats.Engine {
	return r.engine
}

// CurrentStatus returns current health status.
func (r *Runtime) CurrentStatus(ctx context.Context) health.Status {
	return r.monitor.CurrentStatus(ctx)
}

// ReportTTL is the report cache lifetime; zero when caching is disabled.
func (r *Runtime) ReportTTL() time.Duration {
	if strings.EqualFold(strings.TrimSpace(r.cfg.Cache.Backend), cache.BackendNone) {
		return 0
	}
	return r.cfg.Cache.TTL
}

// Handler returns the combined HTTP handler.
func (r *Runtime) Handler(traceMode string) http.Handler {
	api := NewAPI(APIConfig{
		Stats:           r.engine,
		Cache:           r.store,
		ReportTTL:       r.ReportTTL(),
		Instrumentation: r.metrics,
		Logger:          r.logger.Named("api"),
	})
	oauth := NewOAuthHandler(r.cfg.OAuth, r.store, r.logger.Named("oauth"))
	return NewHTTPHandler(api, oauth, r.metrics.Handler(), health.NewHandler(r), traceMode)
}

// Start runs the dependency probes until Stop or ctx cancellation.
func (r *Runtime) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.monitorCancel != nil {
		return
	}
	monitorCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	r.monitorCancel = cancel
	r.monitorDone = done
	go func() {
		defer close(done)
		r.monitor.Run(monitorCtx)
	}()
	r.logger.Info("started health probes", zap.Duration("interval", r.cfg.Health.GitHubProbeInterval))
}

// Stop halts the probes and releases the cache.
func (r *Runtime) Stop() error {
	r.mu.Lock()
	cancel, done := r.monitorCancel, r.monitorDone
	r.monitorCancel, r.monitorDone = nil, nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	if err := r.store.Close(); err != nil {
		return fmt.Errorf("close cache: %w", err)
	}
	return nil
}
