package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

const redisBreakerDuration = 30 * time.Second

// Manager enforces limits with Redis when available and memory otherwise.
type Manager struct {
	nowFn         func() time.Time
	memoryLimiter Limiter
	redisLimiter  Limiter
	mu            sync.Mutex
	breakerUntil  time.Time
}

// NewManager constructs a Manager. A nil client keeps every counter in memory,
// which is only correct for a single server process.
func NewManager(nowFn func() time.Time, client *redis.Client, prefix string) *Manager {
	if nowFn == nil {
		nowFn = time.Now
	}
	m := &Manager{
		nowFn:         nowFn,
		memoryLimiter: NewMemoryLimiter(),
	}
	if client != nil {
		m.redisLimiter = NewRedisLimiter(client, prefix)
	}
	return m
}

// Allow checks whether the request should be allowed using the best available backend.
func (m *Manager) Allow(ctx context.Context, key string, limit int) (Result, error) {
	if m == nil || limit <= 0 || key == "" {
		return Result{Allowed: true}, nil
	}
	now := m.nowFn()
	if m.redisLimiter != nil {
		if result, ok := m.allowRedis(ctx, key, limit, now); ok {
			return result, nil
		}
	}
	return m.memoryLimiter.Allow(ctx, key, limit, now)
}

func (m *Manager) allowRedis(ctx context.Context, key string, limit int, now time.Time) (Result, bool) {
	if m.isBreakerActive(now) {
		return Result{}, false
	}
	result, errAllow := m.redisLimiter.Allow(ctx, key, limit, now)
	if errAllow != nil {
		m.tripBreaker(errAllow, now)
		return Result{}, false
	}
	return result, true
}

func (m *Manager) isBreakerActive(now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.breakerUntil.IsZero() {
		return false
	}
	if now.Before(m.breakerUntil) {
		return true
	}
	m.breakerUntil = time.Time{}
	return false
}

func (m *Manager) tripBreaker(err error, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.breakerUntil.IsZero() && now.Before(m.breakerUntil) {
		return
	}
	m.breakerUntil = now.Add(redisBreakerDuration)
	log.WithError(err).Warn("rate limit: redis unavailable, falling back to memory")
}
