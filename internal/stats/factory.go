package stats

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cam3ron2/year-in-code/internal/config"
	"github.com/cam3ron2/year-in-code/internal/githubapi"
	"go.uber.org/zap"
)

const defaultRequestTimeout = 20 * time.Second

// NewConnectorFromConfig builds a Connector that opens REST and GraphQL
// clients per bearer token. Anonymous connections use the configured GitHub
// App installation when present, and the unauthenticated API otherwise.
func NewConnectorFromConfig(cfg *config.Config) (Connector, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	timeout := cfg.GitHub.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	retry := githubapi.RetryConfig{
		MaxAttempts:      cfg.Retry.MaxAttempts,
		InitialBackoff:   cfg.Retry.InitialBackoff,
		MaxBackoff:       cfg.Retry.MaxBackoff,
		MaxRateLimitWait: cfg.Retry.MaxRateLimitWait,
	}
	policy := githubapi.RateLimitPolicy{
		MinRemainingThreshold: cfg.RateLimit.MinRemainingThreshold,
		MinResetBuffer:        cfg.RateLimit.MinResetBuffer,
		SecondaryLimitBackoff: cfg.RateLimit.SecondaryLimitBackoff,
	}

	open := func(httpClient *http.Client, withPinned bool) (Clients, error) {
		requestClient := githubapi.NewClient(httpClient, retry, policy)
		dataClient, err := githubapi.NewDataClient(cfg.GitHub.APIBaseURL, requestClient)
		if err != nil {
			return Clients{}, fmt.Errorf("create data client: %w", err)
		}
		clients := Clients{Source: dataClient}
		if withPinned {
			pinned, err := githubapi.NewPinnedClient(cfg.GitHub.GraphQLURL, httpClient)
			if err != nil {
				return Clients{}, fmt.Errorf("create graphql client: %w", err)
			}
			clients.Pinned = pinned
		}
		return clients, nil
	}

	anonymousHTTP := githubapi.NewAnonymousHTTPClient(timeout, http.DefaultTransport)
	installation := false
	if cfg.GitHub.App.Enabled() {
		httpClient, err := githubapi.NewInstallationHTTPClient(githubapi.InstallationAuthConfig{
			AppID:          cfg.GitHub.App.AppID,
			InstallationID: cfg.GitHub.App.InstallationID,
			PrivateKeyPath: cfg.GitHub.App.PrivateKeyPath,
			Timeout:        timeout,
			BaseTransport:  http.DefaultTransport,
		})
		if err != nil {
			return nil, fmt.Errorf("create installation client: %w", err)
		}
		anonymousHTTP = httpClient
		installation = true
	}

	return ConnectorFunc(func(token string) (Clients, error) {
		trimmed := strings.TrimSpace(token)
		if trimmed == "" {
			return open(anonymousHTTP, installation)
		}
		httpClient, err := githubapi.NewTokenHTTPClient(trimmed, timeout, http.DefaultTransport)
		if err != nil {
			return Clients{}, err
		}
		return open(httpClient, true)
	}), nil
}

// SettingsFromConfig maps configuration onto engine settings.
func SettingsFromConfig(cfg *config.Config) Settings {
	settings := DefaultSettings()
	if cfg == nil {
		return settings
	}
	settings.Authenticated = modeSettings(cfg.Stats.Authenticated)
	settings.Public = modeSettings(cfg.Stats.Public)
	settings.OperationTimeout = cfg.Stats.OperationTimeout
	settings.MaxPagesPerBranch = cfg.Stats.MaxPagesPerBranch
	settings.WindowDays = cfg.Stats.WindowDays
	settings.Location = cfg.Stats.Location()
	settings.MinRemainingThreshold = cfg.RateLimit.MinRemainingThreshold
	if cfg.Retry.MaxBackoff > 0 {
		settings.MaxBackoff = cfg.Retry.MaxBackoff
	}
	return settings
}

func modeSettings(cfg config.StatsModeConfig) ModeSettings {
	return ModeSettings{
		BatchSize:           cfg.BatchSize,
		BatchDelay:          cfg.BatchDelay,
		PRRatio:             cfg.PRRatio,
		IssueRatio:          cfg.IssueRatio,
		TimelineSampleRepos: cfg.TimelineSampleRepos,
	}
}

// NewEngineFromConfig builds an Engine backed by live GitHub clients.
func NewEngineFromConfig(cfg *config.Config, logger *zap.Logger, recorder Recorder) (*Engine, error) {
	connector, err := NewConnectorFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	return NewEngine(Config{
		Connector: connector,
		Settings:  SettingsFromConfig(cfg),
		Logger:    logger,
		Recorder:  recorder,
	})
}
