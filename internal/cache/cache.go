// Package cache stores encoded reports and single-use OAuth state values.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/cam3ron2/year-in-code/internal/config"
	"github.com/redis/go-redis/v9"
)

// Store is implemented by the memory and Redis backends.
type Store interface {
	// Get returns the value stored under key, if present and unexpired.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores value under key for ttl. A non-positive ttl stores nothing.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// PutState records a single-use state value for ttl.
	PutState(ctx context.Context, state string, ttl time.Duration) error
	// ConsumeState removes state and reports whether it was still live.
	ConsumeState(ctx context.Context, state string) (bool, error)
	Ping(ctx context.Context) error
	Close() error
}

// Backend names accepted in configuration.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendNone   = "none"
)

// NewFromConfig builds the configured backend. The none backend keeps OAuth
// state in memory; callers disable report caching by passing a zero TTL.
func NewFromConfig(cfg config.CacheConfig) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", BackendMemory, BackendNone:
		return NewMemoryStore(MemoryConfig{MaxEntries: cfg.MaxEntries}), nil
	case BackendRedis:
		if strings.TrimSpace(cfg.RedisAddr) == "" {
			return nil, fmt.Errorf("redis address is required")
		}
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		return NewRedisStore(client, RedisConfig{Namespace: cfg.KeyPrefix}), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}

// ReportKey derives the cache key for a report. Tokens are hashed so they
// never appear in keys; logins are case-insensitive.
func ReportKey(token, username string) string {
	if trimmed := strings.TrimSpace(token); trimmed != "" {
		sum := sha256.Sum256([]byte(trimmed))
		return "token:" + hex.EncodeToString(sum[:])
	}
	return "user:" + strings.ToLower(strings.TrimSpace(username))
}
