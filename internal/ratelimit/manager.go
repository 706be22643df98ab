package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/router-for-me/QuizAccess/internal/config"
	internalsettings "github.com/router-for-me/QuizAccess/internal/settings"
	log "github.com/sirupsen/logrus"
)

// RedisClientFactory constructs a Redis client for the given options.
type RedisClientFactory func(options *redis.Options) *redis.Client

// Manager selects a limiter backend and enforces the verification limit.
type Manager struct {
	cfg            config.RateLimitConfig
	nowFn          func() time.Time
	memoryLimiter  Limiter
	newRedisClient RedisClientFactory
	mu             sync.Mutex
	redisLimiter   *RedisLimiter
	breakerUntil   time.Time
}

// NewManager constructs a Manager with default dependencies when nil.
func NewManager(cfg config.RateLimitConfig, nowFn func() time.Time, newRedisClient RedisClientFactory) *Manager {
	if nowFn == nil {
		nowFn = time.Now
	}
	if newRedisClient == nil {
		newRedisClient = redis.NewClient
	}
	return &Manager{
		cfg:            cfg,
		nowFn:          nowFn,
		memoryLimiter:  NewMemoryLimiter(),
		newRedisClient: newRedisClient,
	}
}

// Now returns the manager clock.
func (m *Manager) Now() time.Time {
	if m == nil || m.nowFn == nil {
		return time.Now()
	}
	return m.nowFn()
}

// Allow checks whether one more submission under key fits the configured window.
func (m *Manager) Allow(ctx context.Context, key string) (Result, error) {
	if m == nil || key == "" || m.cfg.VerifyLimit <= 0 {
		return Result{Allowed: true}, nil
	}
	now := m.nowFn()
	limit, window := m.cfg.VerifyLimit, m.cfg.VerifyWindow

	if m.cfg.Enabled {
		if result, ok := m.allowRedis(ctx, key, limit, window, now); ok {
			return result, nil
		}
	}
	return m.memoryLimiter.Allow(ctx, key, limit, window, now)
}

// Close releases the Redis client if one was opened.
func (m *Manager) Close() error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.redisLimiter == nil {
		return nil
	}
	errClose := m.redisLimiter.Close()
	m.redisLimiter = nil
	return errClose
}

func (m *Manager) allowRedis(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (Result, bool) {
	if ctx == nil {
		ctx = context.Background()
	}
	if m.isBreakerActive(now) {
		return Result{}, false
	}
	limiter, errEnsure := m.ensureRedis(ctx)
	if errEnsure != nil {
		m.tripBreaker(errEnsure, now)
		return Result{}, false
	}
	result, errAllow := limiter.Allow(ctx, key, limit, window, now)
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
	if err == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.breakerUntil.IsZero() && now.Before(m.breakerUntil) {
		return
	}
	m.breakerUntil = now.Add(internalsettings.RedisBreakerDuration)
	log.WithError(err).Warn("rate limit: redis unavailable, falling back to memory")
}

func (m *Manager) ensureRedis(ctx context.Context) (*RedisLimiter, error) {
	if m.cfg.Addr == "" {
		return nil, errors.New("rate limit redis: missing address")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.redisLimiter != nil {
		return m.redisLimiter, nil
	}

	client := m.newRedisClient(&redis.Options{
		Addr:     m.cfg.Addr,
		Password: m.cfg.Password,
		DB:       m.cfg.DB,
	})
	ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if errPing := client.Ping(ctxPing).Err(); errPing != nil {
		_ = client.Close()
		return nil, errPing
	}
	m.redisLimiter = NewRedisLimiter(client, m.cfg.Prefix)
	return m.redisLimiter, nil
}
