package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type redisCommander interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Ping(ctx context.Context) *redis.StatusCmd
}

// RedisConfig configures the Redis-backed store.
type RedisConfig struct {
	Namespace string
}

// RedisStore shares reports and OAuth states across replicas.
type RedisStore struct {
	client    redisCommander
	closeFn   func() error
	namespace string
}

// NewRedisStore creates a Redis-backed store.
func NewRedisStore(client redis.UniversalClient, cfg RedisConfig) *RedisStore {
	closeFn := func() error { return nil }
	if client != nil {
		closeFn = client.Close
	}
	return newRedisStoreFromCommander(client, closeFn, cfg)
}

func newRedisStoreFromCommander(client redisCommander, closeFn func() error, cfg RedisConfig) *RedisStore {
	namespace := cfg.Namespace
	if namespace == "" {
		namespace = "yic"
	}
	if closeFn == nil {
		closeFn = func() error { return nil }
	}
	return &RedisStore{
		client:    client,
		closeFn:   closeFn,
		namespace: namespace,
	}
}

// Close closes the underlying Redis client.
func (s *RedisStore) Close() error {
	if s == nil || s.closeFn == nil {
		return nil
	}
	return s.closeFn()
}

// Get reads a cached report.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if s == nil || s.client == nil {
		return nil, false, fmt.Errorf("redis store is not initialized")
	}
	ctx, span := startRedisSpan(ctx, "redis.get_report")
	defer span.End()

	value, err := s.client.Get(ctx, s.reportKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		span.SetAttributes(attribute.Bool("cache.hit", false))
		return nil, false, nil
	}
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, false, fmt.Errorf("read report: %w", err)
	}
	span.SetAttributes(attribute.Bool("cache.hit", true))
	return value, true, nil
}

// Set writes a report with ttl.
func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("redis store is not initialized")
	}
	if ttl <= 0 {
		return nil
	}
	ctx, span := startRedisSpan(ctx, "redis.set_report")
	defer span.End()

	if err := s.client.Set(ctx, s.reportKey(key), value, ttl).Err(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

// PutState stores a single-use state. A collision with a live state is an error.
func (s *RedisStore) PutState(ctx context.Context, state string, ttl time.Duration) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("redis store is not initialized")
	}
	ctx, span := startRedisSpan(ctx, "redis.put_state")
	defer span.End()

	stored, err := s.client.SetNX(ctx, s.stateKey(state), time.Now().UTC().Format(time.RFC3339Nano), ttl).Result()
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("write oauth state: %w", err)
	}
	if !stored {
		return fmt.Errorf("oauth state already exists")
	}
	return nil
}

// ConsumeState deletes state; Redis expiry makes a stale state absent.
func (s *RedisStore) ConsumeState(ctx context.Context, state string) (bool, error) {
	if s == nil || s.client == nil {
		return false, fmt.Errorf("redis store is not initialized")
	}
	ctx, span := startRedisSpan(ctx, "redis.consume_state")
	defer span.End()

	deleted, err := s.client.Del(ctx, s.stateKey(state)).Result()
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return false, fmt.Errorf("consume oauth state: %w", err)
	}
	return deleted > 0, nil
}

// Ping checks connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("redis store is not initialized")
	}
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) prefixed(suffix string) string {
	return s.namespace + ":" + suffix
}

func (s *RedisStore) reportKey(key string) string {
	return s.prefixed("report:" + key)
}

func (s *RedisStore) stateKey(state string) string {
	return s.prefixed("oauth:state:" + state)
}

func startRedisSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return otel.Tracer("year-in-code/internal/cache").Start(
		ctx,
		name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("db.system", "redis")),
	)
}
