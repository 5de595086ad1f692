// Package redisstore keeps the whole chat snapshot as one JSON value in Redis.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/suPer8Hu/gopherchat/internal/chat"
)

const DefaultKey = "gopherchat:snapshot"

type Store struct {
	rdb *redis.Client
	key string
}

func NewClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

func New(rdb *redis.Client, key string) *Store {
	if key == "" {
		key = DefaultKey
	}
	return &Store{rdb: rdb, key: key}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Load returns nil when the key does not exist.
func (s *Store) Load(ctx context.Context) (*chat.Snapshot, error) {
	b, err := s.rdb.Get(ctx, s.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get %s: %w", s.key, err)
	}
	var snap chat.Snapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &snap, nil
}

func (s *Store) Save(ctx context.Context, snap chat.Snapshot) error {
	b, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := s.rdb.Set(ctx, s.key, b, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", s.key, err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.rdb.Close()
}
