// ABOUTME: Redis-backed storage for session and thread ownership records
// ABOUTME: Keys carry a rolling TTL so stale records expire on their own

package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrThreadNotFound means no ownership record exists for the thread.
var ErrThreadNotFound = errors.New("thread not found")

// Store persists session and thread ownership records.
type Store interface {
	// CreateSession records an active session for the user.
	CreateSession(ctx context.Context, userID string) error
	// LinkThread records the user as owner of the thread.
	LinkThread(ctx context.Context, threadID, userID string) error
	// ThreadOwner returns the user that owns the thread.
	ThreadOwner(ctx context.Context, threadID string) (string, error)
	// Ping checks storage connectivity.
	Ping(ctx context.Context) error
	Close() error
}

const (
	sessionKeyPrefix = "user_session:"
	threadKeyPrefix  = "thread_user_id:"
)

// RedisStore implements Store on a Redis client.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisStore connects to Redis at the given URI and verifies the
// connection before returning.
func NewRedisStore(ctx context.Context, uri string, ttl time.Duration, logger *slog.Logger) (*RedisStore, error) {
	opts, err := redis.ParseURL(uri)
	if err != nil {
		return nil, fmt.Errorf("parsing redis uri: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}
	return &RedisStore{
		client: client,
		ttl:    ttl,
		logger: logger.With("component", "registry-store"),
	}, nil
}

func (s *RedisStore) CreateSession(ctx context.Context, userID string) error {
	key := sessionKeyPrefix + userID
	value := time.Now().UTC().Format(time.RFC3339)
	if err := s.client.Set(ctx, key, value, s.ttl).Err(); err != nil {
		return fmt.Errorf("storing session record: %w", err)
	}
	s.logger.Debug("session recorded", "user_id", userID, "ttl", s.ttl)
	return nil
}

func (s *RedisStore) LinkThread(ctx context.Context, threadID, userID string) error {
	key := threadKeyPrefix + threadID
	if err := s.client.Set(ctx, key, userID, s.ttl).Err(); err != nil {
		return fmt.Errorf("storing thread record: %w", err)
	}

	// Linking a thread is session activity: refresh the session TTL too.
	if err := s.client.Expire(ctx, sessionKeyPrefix+userID, s.ttl).Err(); err != nil {
		s.logger.Warn("failed to refresh session ttl", "user_id", userID, "error", err)
	}

	s.logger.Debug("thread linked", "thread_id", threadID, "user_id", userID)
	return nil
}

func (s *RedisStore) ThreadOwner(ctx context.Context, threadID string) (string, error) {
	owner, err := s.client.Get(ctx, threadKeyPrefix+threadID).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrThreadNotFound
	}
	if err != nil {
		return "", fmt.Errorf("reading thread record: %w", err)
	}
	return owner, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
