package token

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const sessionKeyPrefix = "session:v1:"

type redisStore struct {
	cache *redis.Client
	ttl   time.Duration
}

// NewRedisStore builds a Redis-backed session store. Each session is one JSON
// value under a single key, so Save and Clear are atomic and expiry removes
// the credential and identity together with no orphaned keys.
func NewRedisStore(cache *redis.Client, ttl time.Duration) Store {
	return &redisStore{cache: cache, ttl: ttl}
}

func (s *redisStore) Load(ctx context.Context, sid string) (Session, error) {
	raw, err := s.cache.Get(ctx, sessionKeyPrefix+sid).Result()
	if err == redis.Nil {
		return Session{}, ErrNoSession
	}
	if err != nil {
		return Session{}, fmt.Errorf("load session: %w", err)
	}

	var session Session
	if err := json.Unmarshal([]byte(raw), &session); err != nil {
		// Corrupt record: drop it and treat the caller as logged out.
		_ = s.cache.Del(ctx, sessionKeyPrefix+sid).Err()
		return Session{}, ErrNoSession
	}
	if !valid(session) {
		return Session{}, ErrNoSession
	}
	return session, nil
}

func (s *redisStore) Save(ctx context.Context, sid string, session Session) error {
	raw, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := s.cache.Set(ctx, sessionKeyPrefix+sid, raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *redisStore) Clear(ctx context.Context, sid string) error {
	if err := s.cache.Del(ctx, sessionKeyPrefix+sid).Err(); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}
