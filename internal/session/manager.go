package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/router-for-me/QuizAccess/internal/accessrule"
	"github.com/router-for-me/QuizAccess/internal/config"
	internalsettings "github.com/router-for-me/QuizAccess/internal/settings"
	log "github.com/sirupsen/logrus"
)

// RedisClientFactory constructs a Redis client for the given options.
type RedisClientFactory func(options *redis.Options) *redis.Client

// Manager stores verification state in Redis when configured and falls back to
// memory while Redis is unavailable.
type Manager struct {
	cfg            config.SessionConfig
	nowFn          func() time.Time
	memory         *MemoryStore
	newRedisClient RedisClientFactory
	mu             sync.Mutex
	redisStore     *RedisStore
	breakerUntil   time.Time
}

// NewManager constructs a Manager with default dependencies when nil.
func NewManager(cfg config.SessionConfig, nowFn func() time.Time, newRedisClient RedisClientFactory) *Manager {
	if nowFn == nil {
		nowFn = time.Now
	}
	if newRedisClient == nil {
		newRedisClient = redis.NewClient
	}
	if cfg.TTL <= 0 {
		cfg.TTL = internalsettings.DefaultSessionTTL
	}
	return &Manager{
		cfg:            cfg,
		nowFn:          nowFn,
		memory:         NewMemoryStore(cfg.TTL, nowFn),
		newRedisClient: newRedisClient,
	}
}

// Load returns the user's verification state.
func (m *Manager) Load(ctx context.Context, userID uint64) (accessrule.VerificationState, error) {
	if store, ok := m.redis(ctx); ok {
		state, errLoad := store.Load(ctx, userID)
		if errLoad == nil {
			return state, nil
		}
		m.tripBreaker(errLoad)
	}
	return m.memory.Load(ctx, userID)
}

// Save replaces the user's verification state.
func (m *Manager) Save(ctx context.Context, userID uint64, state accessrule.VerificationState) error {
	if store, ok := m.redis(ctx); ok {
		errSave := store.Save(ctx, userID, state)
		if errSave == nil {
			return nil
		}
		m.tripBreaker(errSave)
	}
	return m.memory.Save(ctx, userID, state)
}

// Close releases the Redis client if one was opened.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.redisStore == nil {
		return nil
	}
	errClose := m.redisStore.Close()
	m.redisStore = nil
	return errClose
}

func (m *Manager) redis(ctx context.Context) (*RedisStore, bool) {
	if !m.cfg.Enabled {
		return nil, false
	}
	if ctx == nil {
		ctx = context.Background()
	}
	now := m.nowFn()

	m.mu.Lock()
	if !m.breakerUntil.IsZero() {
		if now.Before(m.breakerUntil) {
			m.mu.Unlock()
			return nil, false
		}
		m.breakerUntil = time.Time{}
	}
	if m.redisStore != nil {
		store := m.redisStore
		m.mu.Unlock()
		return store, true
	}
	m.mu.Unlock()

	store, errConnect := m.connect(ctx)
	if errConnect != nil {
		m.tripBreaker(errConnect)
		return nil, false
	}
	return store, true
}

func (m *Manager) connect(ctx context.Context) (*RedisStore, error) {
	if m.cfg.Addr == "" {
		return nil, errors.New("session redis: missing address")
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

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.redisStore != nil {
		_ = client.Close()
		return m.redisStore, nil
	}
	m.redisStore = NewRedisStore(client, m.cfg.Prefix, m.cfg.TTL)
	return m.redisStore, nil
}

func (m *Manager) tripBreaker(err error) {
	if err == nil {
		return
	}
	now := m.nowFn()
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.breakerUntil.IsZero() && now.Before(m.breakerUntil) {
		return
	}
	m.breakerUntil = now.Add(internalsettings.RedisBreakerDuration)
	log.WithError(err).Warn("session: redis unavailable, falling back to memory")
}
