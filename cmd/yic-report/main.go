package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/cam3ron2/year-in-code/internal/config"
	"github.com/cam3ron2/year-in-code/internal/githubapi"
	"github.com/cam3ron2/year-in-code/internal/leaderboard"
	"github.com/cam3ron2/year-in-code/internal/stats"
	"go.uber.org/zap"
)

const tokenEnv = "GITHUB_TOKEN"

type reporter interface {
	GetStats(ctx context.Context, creds stats.Credentials) (stats.Result, error)
}

type output struct {
	User  githubapi.User    `json:"user"`
	Stats stats.Report      `json:"stats"`
	Level leaderboard.Level `json:"level"`
}

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Getenv); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "yic-report: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer, getenv func(string) string) error {
	flags := flag.NewFlagSet("yic-report", flag.ContinueOnError)
	username := flags.String("username", "", "GitHub username for a public report; defaults to the GITHUB_TOKEN owner")
	configPath := flags.String("config", "", "optional path to YAML config file")
	timeout := flags.Duration("timeout", 5*time.Minute, "overall deadline for the report")
	verbose := flags.Bool("v", false, "log progress to stderr")
	if err := flags.Parse(args); err != nil {
		return err
	}

	creds, err := credentials(*username, getenv(tokenEnv))
	if err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	logger := zap.NewNop()
	if *verbose {
		logger, err = zap.NewDevelopment()
		if err != nil {
			return fmt.Errorf("build logger: %w", err)
		}
		defer func() {
			if syncErr := logger.Sync(); syncErr != nil && !errors.Is(syncErr, syscall.EINVAL) && !errors.Is(syncErr, syscall.ENOTTY) {
				_, _ = fmt.Fprintf(os.Stderr, "yic-report: sync logger: %v\n", syncErr)
			}
		}()
	}

	engine, err := stats.NewEngineFromConfig(cfg, logger, nil)
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	return report(ctx, engine, creds, stdout)
}

// credentials prefers a public lookup when a username is given.
func credentials(username, token string) (stats.Credentials, error) {
	username = strings.TrimSpace(username)
	token = strings.TrimSpace(token)
	if username == "" && token == "" {
		return stats.Credentials{}, fmt.Errorf("either -username or the %s environment variable is required", tokenEnv)
	}
	if username != "" {
		return stats.Credentials{Username: username}, nil
	}
	return stats.Credentials{Token: token}, nil
}

func loadConfig(path string) (*config.Config, error) {
	if strings.TrimSpace(path) == "" {
		return config.Load(strings.NewReader(""))
	}
	configFile, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config file: %w", err)
	}
	defer func() {
		_ = configFile.Close()
	}()

	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func report(ctx context.Context, r reporter, creds stats.Credentials, w io.Writer) error {
	result, err := r.GetStats(ctx, creds)
	if err != nil {
		return fmt.Errorf("get stats: %w", err)
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(output{
		User:  result.User,
		Stats: result.Stats,
		Level: leaderboard.LevelFor(result.Stats.TotalCommits),
	}); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return nil
}
