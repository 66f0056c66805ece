// Package metrics exposes engine and fetch-layer instrumentation to Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/cam3ron2/year-in-code/internal/stats"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "yic"

// Metrics implements stats.Recorder on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	reports        *prometheus.CounterVec
	reportDuration *prometheus.HistogramVec
	githubRequests *prometheus.CounterVec
	rateRemaining  prometheus.Gauge
	repoWalks      *prometheus.CounterVec
	cacheLookups   *prometheus.CounterVec
	httpResponses  *prometheus.CounterVec
}

var _ stats.Recorder = (*Metrics)(nil)

// New registers the service collectors plus the Go runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		reports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stats",
			Name:      "reports_total",
			Help:      "Reports computed, by mode and outcome.",
		}, []string{"mode", "outcome"}),
		reportDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "stats",
			Name:      "report_duration_seconds",
			Help:      "Wall time spent computing a report.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80, 120, 240},
		}, []string{"mode"}),
		githubRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "github",
			Name:      "requests_total",
			Help:      "GitHub API calls, by endpoint and classified status.",
		}, []string{"endpoint", "status"}),
		rateRemaining: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "github",
			Name:      "rate_limit_remaining",
			Help:      "Last observed X-RateLimit-Remaining value.",
		}),
		repoWalks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "repository_walks_total",
			Help:      "Repository history walks, by outcome or stop reason.",
		}, []string{"outcome"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "report_cache",
			Name:      "lookups_total",
			Help:      "Report cache lookups, by result.",
		}, []string{"result"}),
		httpResponses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "responses_total",
			Help:      "API responses, by route and status code.",
		}, []string{"route", "code"}),
	}

	m.registry.MustRegister(
		m.reports,
		m.reportDuration,
		m.githubRequests,
		m.rateRemaining,
		m.repoWalks,
		m.cacheLookups,
		m.httpResponses,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler renders the registry, negotiating OpenMetrics when requested.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) ReportCompleted(mode stats.Mode, outcome string, duration time.Duration) {
	m.reports.WithLabelValues(string(mode), outcome).Inc()
	m.reportDuration.WithLabelValues(string(mode)).Observe(duration.Seconds())
}

func (m *Metrics) GitHubRequest(endpoint, status string) {
	m.githubRequests.WithLabelValues(endpoint, status).Inc()
}

func (m *Metrics) RateLimitRemaining(remaining int) {
	m.rateRemaining.Set(float64(remaining))
}

func (m *Metrics) RepositoryWalked(outcome string) {
	m.repoWalks.WithLabelValues(outcome).Inc()
}

// CacheLookup counts a report cache hit or miss.
func (m *Metrics) CacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// HTTPResponse counts one API response.
func (m *Metrics) HTTPResponse(route string, code int) {
	m.httpResponses.WithLabelValues(route, strconv.Itoa(code)).Inc()
}
