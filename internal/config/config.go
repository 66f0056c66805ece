package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

var (
	validLogLevels     = []string{"debug", "info", "warn", "error"}
	validCacheBackends = []string{"memory", "redis", "none"}
	validTraceModes    = []string{"off", "errors", "sampled", "detailed"}
)

// Environment variables that override secrets from YAML.
const (
	EnvGitHubClientID     = "GITHUB_CLIENT_ID"
	EnvGitHubClientSecret = "GITHUB_CLIENT_SECRET"
	EnvGitHubRedirectURI  = "GITHUB_REDIRECT_URI"
	EnvRedisPassword      = "REDIS_PASSWORD"
)

// Config is the root application configuration.
type Config struct {
	Server    ServerConfig
	GitHub    GitHubConfig
	OAuth     OAuthConfig
	RateLimit RateLimitConfig
	Retry     RetryConfig
	Stats     StatsConfig
	Cache     CacheConfig
	Health    HealthConfig
	Telemetry TelemetryConfig
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	ListenAddr      string
	LogLevel        string
	ShutdownTimeout time.Duration
}

// GitHubConfig configures GitHub API interactions.
type GitHubConfig struct {
	APIBaseURL     string
	GraphQLURL     string
	RequestTimeout time.Duration
	App            GitHubAppConfig
}

// GitHubAppConfig optionally authenticates public lookups as a GitHub App installation.
type GitHubAppConfig struct {
	AppID          int64
	InstallationID int64
	PrivateKeyPath string
}

// Enabled reports whether an installation is configured.
func (c GitHubAppConfig) Enabled() bool {
	return c.AppID > 0 || c.InstallationID > 0 || c.PrivateKeyPath != ""
}

// OAuthConfig configures the GitHub OAuth web flow.
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
	AuthURL      string
	TokenURL     string
	StateTTL     time.Duration
}

// Enabled reports whether OAuth routes should be served.
func (c OAuthConfig) Enabled() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

// RateLimitConfig configures rate-limit controls.
type RateLimitConfig struct {
	MinRemainingThreshold int
	MinResetBuffer        time.Duration
	SecondaryLimitBackoff time.Duration
}

// RetryConfig configures retries.
type RetryConfig struct {
	MaxAttempts      int
	InitialBackoff   time.Duration
	MaxBackoff       time.Duration
	MaxRateLimitWait time.Duration
}

// StatsConfig configures report computation.
type StatsConfig struct {
	Authenticated     StatsModeConfig
	Public            StatsModeConfig
	OperationTimeout  time.Duration
	MaxPagesPerBranch int
	WindowDays        int
	TimeZone          string
}

// StatsModeConfig tunes one report mode.
type StatsModeConfig struct {
	BatchSize           int
	BatchDelay          time.Duration
	PRRatio             float64
	IssueRatio          float64
	TimelineSampleRepos int
}

// CacheConfig configures the report cache.
type CacheConfig struct {
	Backend       string
	TTL           time.Duration
	MaxEntries    int
	KeyPrefix     string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// HealthConfig configures health probe behavior.
type HealthConfig struct {
	GitHubProbeInterval           time.Duration
	GitHubRecoverSuccessThreshold int
}

// TelemetryConfig configures OpenTelemetry behavior.
type TelemetryConfig struct {
	OTELEnabled          bool
	OTELExporterEndpoint string
	OTELTraceMode        string
	OTELTraceSampleRatio float64
}

// Load reads configuration from YAML, overlays secrets from the process
// environment, and validates the result.
func Load(reader io.Reader) (*Config, error) {
	return load(reader, os.LookupEnv)
}

// LoadWithEnvFile is Load with envFile's variables layered under the process
// environment. A missing envFile is ignored.
func LoadWithEnvFile(reader io.Reader, envFile string) (*Config, error) {
	fileEnv, err := readEnvFile(envFile)
	if err != nil {
		return nil, err
	}
	return load(reader, func(key string) (string, bool) {
		if value, ok := os.LookupEnv(key); ok {
			return value, true
		}
		value, ok := fileEnv[key]
		return value, ok
	})
}

func readEnvFile(path string) (map[string]string, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}
	values, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read env file %q: %w", path, err)
	}
	return values, nil
}

func load(reader io.Reader, lookup func(string) (string, bool)) (*Config, error) {
	if reader == nil {
		return nil, fmt.Errorf("config reader is nil")
	}

	decoder := yaml.NewDecoder(reader)
	decoder.KnownFields(true)

	var raw rawConfig
	if err := decoder.Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}

	cfg := raw.toConfig()
	applyDefaults(cfg)
	applyEnv(cfg, lookup)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) {
	if lookup == nil {
		return
	}
	override := func(target *string, key string) {
		if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
			*target = strings.TrimSpace(value)
		}
	}
	override(&cfg.OAuth.ClientID, EnvGitHubClientID)
	override(&cfg.OAuth.ClientSecret, EnvGitHubClientSecret)
	override(&cfg.OAuth.RedirectURL, EnvGitHubRedirectURI)
	override(&cfg.Cache.RedisPassword, EnvRedisPassword)
}

// Validate validates configuration values.
func (c *Config) Validate() error {
	var errs []string

	if !slices.Contains(validLogLevels, c.Server.LogLevel) {
		errs = append(errs, "server.log_level must be one of debug|info|warn|error")
	}
	if c.GitHub.RequestTimeout <= 0 {
		errs = append(errs, "github.request_timeout must be > 0")
	}
	if c.GitHub.App.Enabled() {
		if c.GitHub.App.AppID <= 0 {
			errs = append(errs, "github.app.app_id must be > 0")
		}
		if c.GitHub.App.InstallationID <= 0 {
			errs = append(errs, "github.app.installation_id must be > 0")
		}
		if c.GitHub.App.PrivateKeyPath == "" {
			errs = append(errs, "github.app.private_key_path is required")
		}
	}
	if (c.OAuth.ClientID == "") != (c.OAuth.ClientSecret == "") {
		errs = append(errs, "oauth.client_id and oauth.client_secret must be set together")
	}

	if c.Retry.MaxAttempts <= 0 {
		errs = append(errs, "retry.max_attempts must be > 0")
	}
	if c.RateLimit.MinRemainingThreshold < 0 {
		errs = append(errs, "rate_limit.min_remaining_threshold must be >= 0")
	}

	for name, mode := range map[string]StatsModeConfig{
		"stats.authenticated": c.Stats.Authenticated,
		"stats.public":        c.Stats.Public,
	} {
		if mode.BatchSize <= 0 {
			errs = append(errs, name+".batch_size must be > 0")
		}
		if mode.BatchDelay < 0 {
			errs = append(errs, name+".batch_delay must be >= 0")
		}
		if mode.PRRatio < 0 || mode.IssueRatio < 0 {
			errs = append(errs, name+" ratios must be >= 0")
		}
		if mode.TimelineSampleRepos < 0 {
			errs = append(errs, name+".timeline_sample_repos must be >= 0")
		}
	}
	if c.Stats.MaxPagesPerBranch <= 0 {
		errs = append(errs, "stats.max_pages_per_branch must be > 0")
	}
	if c.Stats.WindowDays <= 0 {
		errs = append(errs, "stats.window_days must be > 0")
	}
	if _, err := time.LoadLocation(c.Stats.TimeZone); err != nil {
		errs = append(errs, "stats.time_zone is not a known location: "+c.Stats.TimeZone)
	}

	if !slices.Contains(validCacheBackends, c.Cache.Backend) {
		errs = append(errs, "cache.backend must be one of memory|redis|none")
	}
	if c.Cache.Backend == "redis" && c.Cache.RedisAddr == "" {
		errs = append(errs, "cache.redis_addr is required when cache.backend=redis")
	}
	if c.Cache.Backend != "none" && c.Cache.TTL <= 0 {
		errs = append(errs, "cache.ttl must be > 0")
	}

	if !slices.Contains(validTraceModes, c.Telemetry.OTELTraceMode) {
		errs = append(errs, "telemetry.otel_trace_mode must be one of off|errors|sampled|detailed")
	}
	if c.Telemetry.OTELTraceSampleRatio < 0 || c.Telemetry.OTELTraceSampleRatio > 1 {
		errs = append(errs, "telemetry.otel_trace_sample_ratio must be between 0 and 1")
	}

	if len(errs) > 0 {
		slices.Sort(errs)
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// Location returns the configured report time zone, falling back to UTC.
func (c StatsConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func applyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":8080"
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = "info"
	}
	if cfg.Server.ShutdownTimeout <= 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}
	if cfg.GitHub.RequestTimeout == 0 {
		cfg.GitHub.RequestTimeout = 20 * time.Second
	}
	if len(cfg.OAuth.Scopes) == 0 {
		cfg.OAuth.Scopes = []string{"read:user", "user:email", "repo", "read:org"}
	}
	if cfg.OAuth.StateTTL <= 0 {
		cfg.OAuth.StateTTL = 10 * time.Minute
	}
	if cfg.RateLimit.MinResetBuffer == 0 {
		cfg.RateLimit.MinResetBuffer = 5 * time.Second
	}
	if cfg.RateLimit.SecondaryLimitBackoff == 0 {
		cfg.RateLimit.SecondaryLimitBackoff = 60 * time.Second
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry.MaxAttempts = 3
	}
	if cfg.Retry.InitialBackoff == 0 {
		cfg.Retry.InitialBackoff = time.Second
	}
	if cfg.Retry.MaxBackoff == 0 {
		cfg.Retry.MaxBackoff = 30 * time.Second
	}
	if cfg.Retry.MaxRateLimitWait == 0 {
		cfg.Retry.MaxRateLimitWait = time.Minute
	}
	if cfg.Stats.OperationTimeout == 0 {
		cfg.Stats.OperationTimeout = 2 * time.Minute
	}
	if cfg.Stats.MaxPagesPerBranch == 0 {
		cfg.Stats.MaxPagesPerBranch = 100
	}
	if cfg.Stats.WindowDays == 0 {
		cfg.Stats.WindowDays = 365
	}
	if cfg.Stats.TimeZone == "" {
		cfg.Stats.TimeZone = "UTC"
	}
	if cfg.Cache.Backend == "" {
		cfg.Cache.Backend = "memory"
	}
	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = 10 * time.Minute
	}
	if cfg.Cache.MaxEntries == 0 {
		cfg.Cache.MaxEntries = 1000
	}
	if cfg.Cache.KeyPrefix == "" {
		cfg.Cache.KeyPrefix = "yic"
	}
	if cfg.Health.GitHubProbeInterval == 0 {
		cfg.Health.GitHubProbeInterval = 30 * time.Second
	}
	if cfg.Health.GitHubRecoverSuccessThreshold == 0 {
		cfg.Health.GitHubRecoverSuccessThreshold = 1
	}
	if cfg.Telemetry.OTELTraceMode == "" {
		cfg.Telemetry.OTELTraceMode = "off"
	}
}

type duration struct {
	time.Duration
}

func (d *duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil || value.Kind == 0 || strings.TrimSpace(value.Value) == "" {
		d.Duration = 0
		return nil
	}

	var raw string
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("decode duration: %w", err)
	}

	parsed, err := parseFlexibleDuration(raw)
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

func parseFlexibleDuration(raw string) (time.Duration, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, nil
	}

	if standard, err := time.ParseDuration(trimmed); err == nil {
		return standard, nil
	}

	if strings.HasSuffix(trimmed, "d") {
		return parseDurationWithMultiplier(strings.TrimSuffix(trimmed, "d"), 24)
	}
	if strings.HasSuffix(trimmed, "w") {
		return parseDurationWithMultiplier(strings.TrimSuffix(trimmed, "w"), 24*7)
	}

	return 0, fmt.Errorf("parse duration %q: invalid unit", raw)
}

func parseDurationWithMultiplier(numeric string, multiplierHours float64) (time.Duration, error) {
	value, err := strconv.ParseFloat(strings.TrimSpace(numeric), 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration value %q: %w", numeric, err)
	}

	nanos := value * multiplierHours * float64(time.Hour)
	if nanos > math.MaxInt64 || nanos < math.MinInt64 {
		return 0, fmt.Errorf("parse duration value %q: out of range", numeric)
	}
	return time.Duration(nanos), nil
}

type rawConfig struct {
	Server    rawServer    `yaml:"server"`
	GitHub    rawGitHub    `yaml:"github"`
	OAuth     rawOAuth     `yaml:"oauth"`
	RateLimit rawRateLimit `yaml:"rate_limit"`
	Retry     rawRetry     `yaml:"retry"`
	Stats     rawStats     `yaml:"stats"`
	Cache     rawCache     `yaml:"cache"`
	Health    rawHealth    `yaml:"health"`
	Telemetry rawTelemetry `yaml:"telemetry"`
}

type rawServer struct {
	ListenAddr      string   `yaml:"listen_addr"`
	LogLevel        string   `yaml:"log_level"`
	ShutdownTimeout duration `yaml:"shutdown_timeout"`
}

type rawGitHub struct {
	APIBaseURL     string       `yaml:"api_base_url"`
	GraphQLURL     string       `yaml:"graphql_url"`
	RequestTimeout duration     `yaml:"request_timeout"`
	App            rawGitHubApp `yaml:"app"`
}

type rawGitHubApp struct {
	AppID          int64  `yaml:"app_id"`
	InstallationID int64  `yaml:"installation_id"`
	PrivateKeyPath string `yaml:"private_key_path"`
}

type rawOAuth struct {
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	RedirectURL  string   `yaml:"redirect_url"`
	Scopes       []string `yaml:"scopes"`
	AuthURL      string   `yaml:"auth_url"`
	TokenURL     string   `yaml:"token_url"`
	StateTTL     duration `yaml:"state_ttl"`
}

type rawRateLimit struct {
	MinRemainingThreshold *int     `yaml:"min_remaining_threshold"`
	MinResetBuffer        duration `yaml:"min_reset_buffer"`
	SecondaryLimitBackoff duration `yaml:"secondary_limit_backoff"`
}

type rawRetry struct {
	MaxAttempts      int      `yaml:"max_attempts"`
	InitialBackoff   duration `yaml:"initial_backoff"`
	MaxBackoff       duration `yaml:"max_backoff"`
	MaxRateLimitWait duration `yaml:"max_rate_limit_wait"`
}

type rawStats struct {
	Authenticated     rawStatsMode `yaml:"authenticated"`
	Public            rawStatsMode `yaml:"public"`
	OperationTimeout  duration     `yaml:"operation_timeout"`
	MaxPagesPerBranch int          `yaml:"max_pages_per_branch"`
	WindowDays        int          `yaml:"window_days"`
	TimeZone          string       `yaml:"time_zone"`
}

type rawStatsMode struct {
	BatchSize           int       `yaml:"batch_size"`
	BatchDelay          *duration `yaml:"batch_delay"`
	PRRatio             *float64  `yaml:"pr_ratio"`
	IssueRatio          *float64  `yaml:"issue_ratio"`
	TimelineSampleRepos *int      `yaml:"timeline_sample_repos"`
}

type rawCache struct {
	Backend       string   `yaml:"backend"`
	TTL           duration `yaml:"ttl"`
	MaxEntries    int      `yaml:"max_entries"`
	KeyPrefix     string   `yaml:"key_prefix"`
	RedisAddr     string   `yaml:"redis_addr"`
	RedisPassword string   `yaml:"redis_password"`
	RedisDB       int      `yaml:"redis_db"`
}

type rawHealth struct {
	GitHubProbeInterval           duration `yaml:"github_probe_interval"`
	GitHubRecoverSuccessThreshold int      `yaml:"github_recover_success_threshold"`
}

type rawTelemetry struct {
	OTELEnabled          bool    `yaml:"otel_enabled"`
	OTELExporterEndpoint string  `yaml:"otel_exporter_otlp_endpoint"`
	OTELTraceMode        string  `yaml:"otel_trace_mode"`
	OTELTraceSampleRatio float64 `yaml:"otel_trace_sample_ratio"`
}

// Mode defaults follow the unauthenticated limits being far stricter.
var (
	defaultAuthenticatedMode = StatsModeConfig{
		BatchSize:           10,
		BatchDelay:          100 * time.Millisecond,
		PRRatio:             0.30,
		IssueRatio:          0.20,
		TimelineSampleRepos: 20,
	}
	defaultPublicMode = StatsModeConfig{
		BatchSize:           5,
		BatchDelay:          200 * time.Millisecond,
		PRRatio:             0.25,
		IssueRatio:          0.15,
		TimelineSampleRepos: 10,
	}
)

func (r rawStatsMode) toConfig(defaults StatsModeConfig) StatsModeConfig {
	mode := defaults
	if r.BatchSize != 0 {
		mode.BatchSize = r.BatchSize
	}
	if r.BatchDelay != nil {
		mode.BatchDelay = r.BatchDelay.Duration
	}
	if r.PRRatio != nil {
		mode.PRRatio = *r.PRRatio
	}
	if r.IssueRatio != nil {
		mode.IssueRatio = *r.IssueRatio
	}
	if r.TimelineSampleRepos != nil {
		mode.TimelineSampleRepos = *r.TimelineSampleRepos
	}
	return mode
}

func (r rawConfig) toConfig() *Config {
	threshold := 200
	if r.RateLimit.MinRemainingThreshold != nil {
		threshold = *r.RateLimit.MinRemainingThreshold
	}

	return &Config{
		Server: ServerConfig{
			ListenAddr:      r.Server.ListenAddr,
			LogLevel:        r.Server.LogLevel,
			ShutdownTimeout: r.Server.ShutdownTimeout.Duration,
		},
		GitHub: GitHubConfig{
			APIBaseURL:     r.GitHub.APIBaseURL,
			GraphQLURL:     r.GitHub.GraphQLURL,
			RequestTimeout: r.GitHub.RequestTimeout.Duration,
			App: GitHubAppConfig{
				AppID:          r.GitHub.App.AppID,
				InstallationID: r.GitHub.App.InstallationID,
				PrivateKeyPath: r.GitHub.App.PrivateKeyPath,
			},
		},
		OAuth: OAuthConfig{
			ClientID:     r.OAuth.ClientID,
			ClientSecret: r.OAuth.ClientSecret,
			RedirectURL:  r.OAuth.RedirectURL,
			Scopes:       r.OAuth.Scopes,
			AuthURL:      r.OAuth.AuthURL,
			TokenURL:     r.OAuth.TokenURL,
			StateTTL:     r.OAuth.StateTTL.Duration,
		},
		RateLimit: RateLimitConfig{
			MinRemainingThreshold: threshold,
			MinResetBuffer:        r.RateLimit.MinResetBuffer.Duration,
			SecondaryLimitBackoff: r.RateLimit.SecondaryLimitBackoff.Duration,
		},
		Retry: RetryConfig{
			MaxAttempts:      r.Retry.MaxAttempts,
			InitialBackoff:   r.Retry.InitialBackoff.Duration,
			MaxBackoff:       r.Retry.MaxBackoff.Duration,
			MaxRateLimitWait: r.Retry.MaxRateLimitWait.Duration,
		},
		Stats: StatsConfig{
			Authenticated:     r.Stats.Authenticated.toConfig(defaultAuthenticatedMode),
			Public:            r.Stats.Public.toConfig(defaultPublicMode),
			OperationTimeout:  r.Stats.OperationTimeout.Duration,
			MaxPagesPerBranch: r.Stats.MaxPagesPerBranch,
			WindowDays:        r.Stats.WindowDays,
			TimeZone:          r.Stats.TimeZone,
		},
		Cache: CacheConfig{
			Backend:       r.Cache.Backend,
			TTL:           r.Cache.TTL.Duration,
			MaxEntries:    r.Cache.MaxEntries,
			KeyPrefix:     r.Cache.KeyPrefix,
			RedisAddr:     r.Cache.RedisAddr,
			RedisPassword: r.Cache.RedisPassword,
			RedisDB:       r.Cache.RedisDB,
		},
		Health: HealthConfig{
			GitHubProbeInterval:           r.Health.GitHubProbeInterval.Duration,
			GitHubRecoverSuccessThreshold: r.Health.GitHubRecoverSuccessThreshold,
		},
		Telemetry: TelemetryConfig{
			OTELEnabled:          r.Telemetry.OTELEnabled,
			OTELExporterEndpoint: r.Telemetry.OTELExporterEndpoint,
			OTELTraceMode:        r.Telemetry.OTELTraceMode,
			OTELTraceSampleRatio: r.Telemetry.OTELTraceSampleRatio,
		},
	}
}
