package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"activestats/internal/core/domain"
)

const (
	keyPrefix = "snapshot:"
	latestKey = keyPrefix + "latest"
)

// Store keeps poller snapshots in Redis.
type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewStore creates a Store. A zero ttl keeps keys forever.
func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
	return &Store{rdb: rdb, ttl: ttl}
}

// Connect parses a redis:// URL and verifies the server answers.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to reach redis: %w", err)
	}
	return rdb, nil
}

// Save writes the snapshot under its session key and the latest key.
func (s *Store) Save(ctx context.Context, snap domain.Snapshot) error {
	if snap.SessionID == "" {
		return fmt.Errorf("snapshot has no session id")
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		return err
	}

	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, sessionKey(snap.SessionID), payload, s.ttl)
	pipe.Set(ctx, latestKey, payload, s.ttl)
	_, err = pipe.Exec(ctx)
	return err
}

// Latest returns the last saved snapshot, or nil if none exists.
func (s *Store) Latest(ctx context.Context) (*domain.Snapshot, error) {
	return s.get(ctx, latestKey)
}

// Session returns the snapshot saved for sessionID, or nil if none exists.
func (s *Store) Session(ctx context.Context, sessionID string) (*domain.Snapshot, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("sessionID is required")
	}
	return s.get(ctx, sessionKey(sessionID))
}

func (s *Store) get(ctx context.Context, key string) (*domain.Snapshot, error) {
	data, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var snap domain.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func sessionKey(id string) string {
	return keyPrefix + id
}
