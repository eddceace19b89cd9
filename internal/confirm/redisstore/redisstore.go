// Package redisstore persists always-allow confirmation decisions in Redis
// so they survive process restarts within a user's machine-level session,
// without reintroducing the conversation-history persistence spec.md's
// Non-goals exclude (see SPEC_FULL.md §9). Grounded on the teacher's direct
// dependency on github.com/redis/go-redis/v9
// (_examples/goadesign-goa-ai/go.mod).
package redisstore

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store implements confirm.AlwaysAllowStore against a Redis hash keyed by
// sessionID, so multiple concurrent sessions on one Redis instance do not
// share trust decisions.
type Store struct {
	client    *redis.Client
	sessionID string
	ttl       time.Duration
}

// New builds a Store scoped to sessionID. ttl, when positive, expires the
// whole session's always-allow set once ttl has passed since the most recent
// Allow (lookups do not extend it); zero disables expiry.
func New(client *redis.Client, sessionID string, ttl time.Duration) *Store {
	return &Store{client: client, sessionID: sessionID, ttl: ttl}
}

func (s *Store) hashKey() string {
	return fmt.Sprintf("agentcore:always-allow:%s", s.sessionID)
}

// IsAllowed implements confirm.AlwaysAllowStore.
func (s *Store) IsAllowed(ctx context.Context, key string) (bool, error) {
	ok, err := s.client.HExists(ctx, s.hashKey(), key).Result()
	if err != nil {
		return false, fmt.Errorf("redis always-allow lookup %q: %w", key, err)
	}
	return ok, nil
}

// Allow implements confirm.AlwaysAllowStore.
func (s *Store) Allow(ctx context.Context, key string) error {
	if err := s.client.HSet(ctx, s.hashKey(), key, time.Now().UTC().Format(time.RFC3339)).Err(); err != nil {
		return fmt.Errorf("redis always-allow set %q: %w", key, err)
	}
	if s.ttl > 0 {
		if err := s.client.PExpire(ctx, s.hashKey(), s.ttl).Err(); err != nil {
			return fmt.Errorf("redis always-allow expire: %w", err)
		}
	}
	return nil
}
