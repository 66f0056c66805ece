package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadAndValidate(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name       string
		yaml       string
		wantErr    bool
		errSubstrs []string
	}{
		{
			name: "valid_full_configuration",
			yaml: `
server:
  listen_addr: ":9090"
  log_level: "debug"
  shutdown_timeout: "15s"
github:
  api_base_url: "https://github.example.com/api/v3"
  graphql_url: "https://github.example.com/api/graphql"
  request_timeout: "30s"
  app:
    app_id: 111111
    installation_id: 222222
    private_key_path: "/etc/year-in-code/app.pem"
oauth:
  client_id: "Iv1.abc"
  client_secret: "shh"
  redirect_url: "https://yearincode.example.com/api/auth/callback"
  scopes: ["read:user", "repo"]
  state_ttl: "5m"
rate_limit:
  min_remaining_threshold: 100
  min_reset_buffer: "10s"
  secondary_limit_backoff: "90s"
retry:
  max_attempts: 5
  initial_backoff: "500ms"
  max_backoff: "1m"
  max_rate_limit_wait: "2m"
stats:
  authenticated:
    batch_size: 20
    batch_delay: "50ms"
    timeline_sample_repos: 0
  public:
    batch_size: 4
  operation_timeout: "3m"
  max_pages_per_branch: 50
  window_days: 365
  time_zone: "Europe/Berlin"
cache:
  backend: "redis"
  ttl: "15m"
  redis_addr: "redis:6379"
  redis_db: 2
health:
  github_probe_interval: "1m"
  github_recover_success_threshold: 3
telemetry:
  otel_enabled: true
  otel_exporter_otlp_endpoint: "http://otel-collector:4318"
  otel_trace_mode: "sampled"
  otel_trace_sample_ratio: 0.25
`,
			wantErr: false,
		},
		{
			name:    "empty_document_uses_defaults",
			yaml:    "",
			wantErr: false,
		},
		{
			name: "invalid_enums",
			yaml: `
server:
  log_level: "verbose"
cache:
  backend: "memcached"
telemetry:
  otel_trace_mode: "loud"
`,
			wantErr: true,
			errSubstrs: []string{
				"server.log_level must be one of debug|info|warn|error",
				"cache.backend must be one of memory|redis|none",
				"telemetry.otel_trace_mode must be one of off|errors|sampled|detailed",
			},
		},
		{
			name: "redis_without_address",
			yaml: `
cache:
  backend: "redis"
`,
			wantErr:    true,
			errSubstrs: []string{"cache.redis_addr is required when cache.backend=redis"},
		},
		{
			name: "partial_github_app",
			yaml: `
github:
  app:
    app_id: 42
`,
			wantErr: true,
			errSubstrs: []string{
				"github.app.installation_id must be > 0",
				"github.app.private_key_path is required",
			},
		},
		{
			name: "oauth_secret_without_id",
			yaml: `
oauth:
  client_secret: "shh"
`,
			wantErr:    true,
			errSubstrs: []string{"oauth.client_id and oauth.client_secret must be set together"},
		},
		{
			name: "invalid_stats_values",
			yaml: `
stats:
  authenticated:
    batch_size: -1
    pr_ratio: -0.5
  public:
    timeline_sample_repos: -3
  time_zone: "Mars/Olympus_Mons"
`,
			wantErr: true,
			errSubstrs: []string{
				"stats.authenticated.batch_size must be > 0",
				"stats.authenticated ratios must be >= 0",
				"stats.public.timeline_sample_repos must be >= 0",
				"stats.time_zone is not a known location: Mars/Olympus_Mons",
			},
		},
		{
			name: "negative_cache_ttl",
			yaml: `
cache:
  ttl: "-1m"
`,
			wantErr:    true,
			errSubstrs: []string{"cache.ttl must be > 0"},
		},
		{
			name: "sample_ratio_out_of_range",
			yaml: `
telemetry:
  otel_trace_sample_ratio: 1.5
`,
			wantErr:    true,
			errSubstrs: []string{"telemetry.otel_trace_sample_ratio must be between 0 and 1"},
		},
		{
			name: "unknown_field_rejected",
			yaml: `
server:
  listen_address: ":8080"
`,
			wantErr:    true,
			errSubstrs: []string{"unmarshal yaml", "listen_address"},
		},
		{
			name: "invalid_duration_unit",
			yaml: `
github:
  request_timeout: "10 fortnights"
`,
			wantErr:    true,
			errSubstrs: []string{"invalid unit"},
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			cfg, err := load(strings.NewReader(tc.yaml), noEnv)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("load() expected error, got nil")
				}
				for _, substr := range tc.errSubstrs {
					if !strings.Contains(err.Error(), substr) {
						t.Fatalf("load() error = %q, missing %q", err.Error(), substr)
					}
				}
				return
			}
			if err != nil {
				t.Fatalf("load() unexpected error: %v", err)
			}
			if cfg == nil {
				t.Fatalf("load() returned nil config")
			}
		})
	}
}

func TestValidateErrorsAreSorted(t *testing.T) {
	t.Parallel()

	_, err := load(strings.NewReader(`
server:
  log_level: "verbose"
cache:
  backend: "memcached"
telemetry:
  otel_trace_mode: "loud"
`), noEnv)
	if err == nil {
		t.Fatalf("load() expected error, got nil")
	}
	want := "cache.backend must be one of memory|redis|none; " +
		"server.log_level must be one of debug|info|warn|error; " +
		"telemetry.otel_trace_mode must be one of off|errors|sampled|detailed"
	if err.Error() != want {
		t.Fatalf("load() error = %q, want %q", err.Error(), want)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := load(strings.NewReader(""), noEnv)
	if err != nil {
		t.Fatalf("load() unexpected error: %v", err)
	}

	checks := []struct {
		name string
		got  any
		want any
	}{
		{name: "listen_addr", got: cfg.Server.ListenAddr, want: ":8080"},
		{name: "log_level", got: cfg.Server.LogLevel, want: "info"},
		{name: "shutdown_timeout", got: cfg.Server.ShutdownTimeout, want: 10 * time.Second},
		{name: "request_timeout", got: cfg.GitHub.RequestTimeout, want: 20 * time.Second},
		{name: "oauth_scopes", got: strings.Join(cfg.OAuth.Scopes, ","), want: "read:user,user:email,repo,read:org"},
		{name: "oauth_state_ttl", got: cfg.OAuth.StateTTL, want: 10 * time.Minute},
		{name: "min_remaining_threshold", got: cfg.RateLimit.MinRemainingThreshold, want: 200},
		{name: "secondary_backoff", got: cfg.RateLimit.SecondaryLimitBackoff, want: 60 * time.Second},
		{name: "retry_attempts", got: cfg.Retry.MaxAttempts, want: 3},
		{name: "auth_batch", got: cfg.Stats.Authenticated.BatchSize, want: 10},
		{name: "auth_delay", got: cfg.Stats.Authenticated.BatchDelay, want: 100 * time.Millisecond},
		{name: "auth_pr_ratio", got: cfg.Stats.Authenticated.PRRatio, want: 0.30},
		{name: "auth_issue_ratio", got: cfg.Stats.Authenticated.IssueRatio, want: 0.20},
		{name: "auth_sample", got: cfg.Stats.Authenticated.TimelineSampleRepos, want: 20},
		{name: "public_batch", got: cfg.Stats.Public.BatchSize, want: 5},
		{name: "public_delay", got: cfg.Stats.Public.BatchDelay, want: 200 * time.Millisecond},
		{name: "public_pr_ratio", got: cfg.Stats.Public.PRRatio, want: 0.25},
		{name: "public_issue_ratio", got: cfg.Stats.Public.IssueRatio, want: 0.15},
		{name: "public_sample", got: cfg.Stats.Public.TimelineSampleRepos, want: 10},
		{name: "operation_timeout", got: cfg.Stats.OperationTimeout, want: 2 * time.Minute},
		{name: "page_cap", got: cfg.Stats.MaxPagesPerBranch, want: 100},
		{name: "window_days", got: cfg.Stats.WindowDays, want: 365},
		{name: "time_zone", got: cfg.Stats.TimeZone, want: "UTC"},
		{name: "cache_backend", got: cfg.Cache.Backend, want: "memory"},
		{name: "cache_ttl", got: cfg.Cache.TTL, want: 10 * time.Minute},
		{name: "cache_entries", got: cfg.Cache.MaxEntries, want: 1000},
		{name: "cache_prefix", got: cfg.Cache.KeyPrefix, want: "yic"},
		{name: "probe_interval", got: cfg.Health.GitHubProbeInterval, want: 30 * time.Second},
		{name: "trace_mode", got: cfg.Telemetry.OTELTraceMode, want: "off"},
		{name: "app_disabled", got: cfg.GitHub.App.Enabled(), want: false},
		{name: "oauth_disabled", got: cfg.OAuth.Enabled(), want: false},
	}
	for _, check := range checks {
		if check.got != check.want {
			t.Fatalf("%s = %v, want %v", check.name, check.got, check.want)
		}
	}
}

func TestLoadKeepsExplicitZeroes(t *testing.T) {
	t.Parallel()

	cfg, err := load(strings.NewReader(`
rate_limit:
  min_remaining_threshold: 0
stats:
  public:
    batch_delay: "0s"
    timeline_sample_repos: 0
cache:
  backend: "none"
`), noEnv)
	if err != nil {
		t.Fatalf("load() unexpected error: %v", err)
	}
	if cfg.RateLimit.MinRemainingThreshold != 0 {
		t.Fatalf("MinRemainingThreshold = %d, want 0", cfg.RateLimit.MinRemainingThreshold)
	}
	if cfg.Stats.Public.BatchDelay != 0 {
		t.Fatalf("Public.BatchDelay = %s, want 0", cfg.Stats.Public.BatchDelay)
	}
	if cfg.Stats.Public.TimelineSampleRepos != 0 {
		t.Fatalf("Public.TimelineSampleRepos = %d, want 0", cfg.Stats.Public.TimelineSampleRepos)
	}
	if cfg.Stats.Public.BatchSize != 5 {
		t.Fatalf("Public.BatchSize = %d, want default 5", cfg.Stats.Public.BatchSize)
	}
}

func TestLoadEnvOverridesSecrets(t *testing.T) {
	t.Parallel()

	env := map[string]string{
		EnvGitHubClientID:     " env-client ",
		EnvGitHubClientSecret: "env-secret",
		EnvGitHubRedirectURI:  "https://env.example.com/callback",
		EnvRedisPassword:      "",
	}
	cfg, err := load(strings.NewReader(`
oauth:
  client_id: "yaml-client"
  client_secret: "yaml-secret"
cache:
  redis_password: "yaml-redis"
`), func(key string) (string, bool) {
		value, ok := env[key]
		return value, ok
	})
	if err != nil {
		t.Fatalf("load() unexpected error: %v", err)
	}
	if cfg.OAuth.ClientID != "env-client" {
		t.Fatalf("OAuth.ClientID = %q, want env-client", cfg.OAuth.ClientID)
	}
	if cfg.OAuth.ClientSecret != "env-secret" {
		t.Fatalf("OAuth.ClientSecret = %q, want env-secret", cfg.OAuth.ClientSecret)
	}
	if cfg.OAuth.RedirectURL != "https://env.example.com/callback" {
		t.Fatalf("OAuth.RedirectURL = %q", cfg.OAuth.RedirectURL)
	}
	if cfg.Cache.RedisPassword != "yaml-redis" {
		t.Fatalf("Cache.RedisPassword = %q, blank env value must not override", cfg.Cache.RedisPassword)
	}
	if !cfg.OAuth.Enabled() {
		t.Fatalf("OAuth.Enabled() = false, want true")
	}
}

func TestLoadWithEnvFile(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	content := "GITHUB_CLIENT_ID=file-client\nGITHUB_CLIENT_SECRET=file-secret\nREDIS_PASSWORD=file-redis\n"
	if err := os.WriteFile(envPath, []byte(content), 0o600); err != nil {
		t.Fatalf("os.WriteFile() unexpected error: %v", err)
	}
	t.Setenv(EnvRedisPassword, "process-redis")

	cfg, err := LoadWithEnvFile(strings.NewReader(""), envPath)
	if err != nil {
		t.Fatalf("LoadWithEnvFile() unexpected error: %v", err)
	}
	if cfg.OAuth.ClientID != "file-client" || cfg.OAuth.ClientSecret != "file-secret" {
		t.Fatalf("OAuth = %q/%q, want values from env file", cfg.OAuth.ClientID, cfg.OAuth.ClientSecret)
	}
	if cfg.Cache.RedisPassword != "process-redis" {
		t.Fatalf("Cache.RedisPassword = %q, process environment must win", cfg.Cache.RedisPassword)
	}

	if _, err := LoadWithEnvFile(strings.NewReader(""), filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("LoadWithEnvFile(missing) unexpected error: %v", err)
	}
	if _, err := LoadWithEnvFile(strings.NewReader(""), dir); err == nil || !strings.Contains(err.Error(), "read env file") {
		t.Fatalf("LoadWithEnvFile(dir) error = %v, want read env file error", err)
	}
}

func TestLoadNilReader(t *testing.T) {
	t.Parallel()

	if _, err := Load(nil); err == nil {
		t.Fatalf("Load(nil) expected error, got nil")
	}
}

func TestParseFlexibleDuration(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		input   string
		want    time.Duration
		wantErr bool
	}{
		{input: "30s", want: 30 * time.Second},
		{input: "1h30m", want: 90 * time.Minute},
		{input: "7d", want: 7 * 24 * time.Hour},
		{input: "1.5d", want: 36 * time.Hour},
		{input: "2w", want: 14 * 24 * time.Hour},
		{input: "  ", want: 0},
		{input: "xd", wantErr: true},
		{input: "5y", wantErr: true},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.input, func(t *testing.T) {
			t.Parallel()

			got, err := parseFlexibleDuration(tc.input)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("parseFlexibleDuration(%q) expected error, got nil", tc.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseFlexibleDuration(%q) unexpected error: %v", tc.input, err)
			}
			if got != tc.want {
				t.Fatalf("parseFlexibleDuration(%q) = %s, want %s", tc.input, got, tc.want)
			}
		})
	}
}

func TestStatsLocation(t *testing.T) {
	t.Parallel()

	if got := (StatsConfig{TimeZone: "Asia/Tokyo"}).Location().String(); got != "Asia/Tokyo" {
		t.Fatalf("Location() = %q, want Asia/Tokyo", got)
	}
	if got := (StatsConfig{TimeZone: "Nowhere/Special"}).Location(); got != time.UTC {
		t.Fatalf("Location() = %v, want UTC fallback", got)
	}
}

func noEnv(string) (string, bool) {
	return "", false
}
