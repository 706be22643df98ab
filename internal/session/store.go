package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/router-for-me/QuizAccess/internal/accessrule"
)

// Store persists verification state per user.
type Store interface {
	Load(ctx context.Context, userID uint64) (accessrule.VerificationState, error)
	Save(ctx context.Context, userID uint64, state accessrule.VerificationState) error
}

type memoryEntry struct {
	state   accessrule.VerificationState
	expires time.Time
}

// MemoryStore keeps verification state in process memory with a sliding TTL.
type MemoryStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	nowFn   func() time.Time
	entries map[uint64]memoryEntry
}

// NewMemoryStore constructs a MemoryStore.
func NewMemoryStore(ttl time.Duration, nowFn func() time.Time) *MemoryStore {
	if nowFn == nil {
		nowFn = time.Now
	}
	return &MemoryStore{
		ttl:     ttl,
		nowFn:   nowFn,
		entries: make(map[uint64]memoryEntry),
	}
}

// Load returns the stored state, or an empty state when none is live.
func (s *MemoryStore) Load(_ context.Context, userID uint64) (accessrule.VerificationState, error) {
	now := s.nowFn()
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[userID]
	if !ok {
		return accessrule.VerificationState{}, nil
	}
	if s.ttl > 0 && !now.Before(entry.expires) {
		delete(s.entries, userID)
		return accessrule.VerificationState{}, nil
	}
	if s.ttl > 0 {
		entry.expires = now.Add(s.ttl)
		s.entries[userID] = entry
	}
	return entry.state, nil
}

// Save replaces the stored state. An empty state removes the entry.
func (s *MemoryStore) Save(_ context.Context, userID uint64, state accessrule.VerificationState) error {
	now := s.nowFn()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(state.PasswordChecked) == 0 {
		delete(s.entries, userID)
		return nil
	}
	s.entries[userID] = memoryEntry{state: state, expires: now.Add(s.ttl)}
	return nil
}

// RedisStore keeps verification state as JSON values with a TTL.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore constructs a RedisStore.
func NewRedisStore(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: strings.TrimSpace(prefix),
		ttl:    ttl,
	}
}

// Load returns the stored state, or an empty state when the key is missing.
func (s *RedisStore) Load(ctx context.Context, userID uint64) (accessrule.VerificationState, error) {
	if s == nil || s.client == nil {
		return accessrule.VerificationState{}, errors.New("session redis: not initialized")
	}
	key := s.buildKey(userID)
	raw, errGet := s.client.GetEx(ctx, key, s.ttl).Bytes()
	if errGet != nil {
		if errors.Is(errGet, redis.Nil) {
			return accessrule.VerificationState{}, nil
		}
		return accessrule.VerificationState{}, errGet
	}
	var state accessrule.VerificationState
	if errUnmarshal := json.Unmarshal(raw, &state); errUnmarshal != nil {
		return accessrule.VerificationState{}, fmt.Errorf("session redis: decode %s: %w", key, errUnmarshal)
	}
	return state, nil
}

// Save replaces the stored state. An empty state deletes the key.
func (s *RedisStore) Save(ctx context.Context, userID uint64, state accessrule.VerificationState) error {
	if s == nil || s.client == nil {
		return errors.New("session redis: not initialized")
	}
	key := s.buildKey(userID)
	if len(state.PasswordChecked) == 0 {
		return s.client.Del(ctx, key).Err()
	}
	payload, errMarshal := json.Marshal(state)
	if errMarshal != nil {
		return fmt.Errorf("session redis: encode: %w", errMarshal)
	}
	return s.client.Set(ctx, key, payload, s.ttl).Err()
}

// Close releases the underlying client.
func (s *RedisStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *RedisStore) buildKey(userID uint64) string {
	id := strconv.FormatUint(userID, 10)
	if s.prefix == "" {
		return "u:" + id
	}
	return s.prefix + ":u:" + id
}
