package ratelimit

import (
	"context"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Manager provides Redis-backed per-user request throttling. This is a
// traffic shield in front of the quota engine, not quota accounting: the
// wallet ledger in the store stays authoritative.
type Manager struct {
	redis *redis.Client
	rpm   int
}

func NewManager(redisURL string, rpm int) (*Manager, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Manager{redis: client, rpm: rpm}, nil
}

func (m *Manager) Close() error { return m.redis.Close() }

// CheckRate counts the request against the user's fixed one-minute window.
// Returns allowed=false with seconds until the window resets once rpm is
// exceeded.
func (m *Manager) CheckRate(ctx context.Context, userID string, rpm int) (allowed bool, resetSec int, err error) {
	now := time.Now().UTC()
	window := now.Unix() / 60
	rk := fmt.Sprintf("rl:user:%s:%d", userID, window)

	pipe := m.redis.TxPipeline()
	incr := pipe.Incr(ctx, rk)
	pipe.Expire(ctx, rk, time.Minute)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, err
	}
	if int(incr.Val()) > rpm {
		secPassed := int(now.Unix() % 60)
		return false, 60 - secPassed, nil
	}
	return true, 0, nil
}
