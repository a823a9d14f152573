// Package store persists session state in Redis. Both keys of a session
// carry the session TTL, so abandoned sessions expire on their own and the
// reaper only has to deal with their containers.
package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nomomon/sandbox-api/internal/config"
)

var ErrNotFound = errors.New("session not found")

// Session is the stored state of one session.
type Session struct {
	ID           string
	UserID       string
	ContainerID  string
	CreatedAt    string
	CommandCount int64
}

// Store maps sessions to containers with a sliding TTL. Each session owns
// two keys: a hash with the session fields and a plain string with the
// container id for cheap lookups on the hot path.
type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewClient builds the Redis client shared by the store and the rate
// limiter. The caller owns closing it.
func NewClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

func New(rdb *redis.Client, sessionTTLSeconds int) *Store {
	return &Store{rdb: rdb, ttl: time.Duration(sessionTTLSeconds) * time.Second}
}

func sessionKey(id string) string   { return "session:" + id }
func containerKey(id string) string { return "container:" + id }

// Create stores a fresh session pointing at containerID and arms the TTL on
// both keys.
func (s *Store) Create(ctx context.Context, sessionID, userID, containerID string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, sessionKey(sessionID), map[string]any{
		"user_id":       userID,
		"container_id":  containerID,
		"created_at":    now,
		"command_count": "0",
	})
	pipe.Expire(ctx, sessionKey(sessionID), s.ttl)
	pipe.Set(ctx, containerKey(sessionID), containerID, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// Get returns the session state or ErrNotFound once the keys have expired.
func (s *Store) Get(ctx context.Context, sessionID string) (*Session, error) {
	raw, err := s.rdb.HGetAll(ctx, sessionKey(sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if len(raw) == 0 {
		return nil, ErrNotFound
	}
	count, _ := strconv.ParseInt(raw["command_count"], 10, 64)
	return &Session{
		ID:           sessionID,
		UserID:       raw["user_id"],
		ContainerID:  raw["container_id"],
		CreatedAt:    raw["created_at"],
		CommandCount: count,
	}, nil
}

// ContainerID resolves the container mapped to a session.
func (s *Store) ContainerID(ctx context.Context, sessionID string) (string, error) {
	id, err := s.rdb.Get(ctx, containerKey(sessionID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get container id: %w", err)
	}
	return id, nil
}

// Refresh extends the lease on both keys and bumps the command counter.
// Returns ErrNotFound if the session has already expired.
func (s *Store) Refresh(ctx context.Context, sessionID string) error {
	exists, err := s.rdb.Exists(ctx, sessionKey(sessionID)).Result()
	if err != nil {
		return fmt.Errorf("refresh session: %w", err)
	}
	if exists == 0 {
		return ErrNotFound
	}
	pipe := s.rdb.TxPipeline()
	pipe.Expire(ctx, sessionKey(sessionID), s.ttl)
	pipe.Expire(ctx, containerKey(sessionID), s.ttl)
	pipe.HIncrBy(ctx, sessionKey(sessionID), "command_count", 1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("refresh session: %w", err)
	}
	return nil
}

// Delete removes both keys. Deleting an absent session is not an error.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	if err := s.rdb.Del(ctx, sessionKey(sessionID), containerKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// SetContainer points an existing session at a replacement container and
// renews the lease.
func (s *Store) SetContainer(ctx context.Context, sessionID, containerID string) error {
	if err := s.rdb.Set(ctx, containerKey(sessionID), containerID, s.ttl).Err(); err != nil {
		return fmt.Errorf("set container: %w", err)
	}
	exists, err := s.rdb.Exists(ctx, sessionKey(sessionID)).Result()
	if err != nil {
		return fmt.Errorf("set container: %w", err)
	}
	if exists == 1 {
		pipe := s.rdb.TxPipeline()
		pipe.HSet(ctx, sessionKey(sessionID), "container_id", containerID)
		pipe.Expire(ctx, sessionKey(sessionID), s.ttl)
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("set container: %w", err)
		}
	}
	return nil
}

// Ping reports whether Redis is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}
