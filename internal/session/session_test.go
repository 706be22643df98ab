package session

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/router-for-me/QuizAccess/internal/accessrule"
	"github.com/router-for-me/QuizAccess/internal/config"
)

func checked(ids ...uint64) accessrule.VerificationState {
	state := accessrule.VerificationState{PasswordChecked: map[uint64]bool{}}
	for _, id := range ids {
		state.PasswordChecked[id] = true
	}
	return state
}

func TestMemoryStoreRoundTripAndExpiry(t *testing.T) {
	now := time.Unix(1_000, 0)
	s := NewMemoryStore(time.Hour, func() time.Time { return now })
	ctx := context.Background()

	empty, err := s.Load(ctx, 1)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if empty.PasswordCheckedFor(5) {
		t.Fatalf("expected empty state for unknown user")
	}

	if errSave := s.Save(ctx, 1, checked(5)); errSave != nil {
		t.Fatalf("save: %v", errSave)
	}
	got, _ := s.Load(ctx, 1)
	if !got.PasswordCheckedFor(5) {
		t.Fatalf("expected stored flag for quiz 5")
	}
	other, _ := s.Load(ctx, 2)
	if other.PasswordCheckedFor(5) {
		t.Fatalf("expected users to be isolated")
	}

	// Loading slides the expiry.
	now = now.Add(59 * time.Minute)
	if got, _ = s.Load(ctx, 1); !got.PasswordCheckedFor(5) {
		t.Fatalf("expected state to survive before ttl")
	}
	now = now.Add(61 * time.Minute)
	if got, _ = s.Load(ctx, 1); got.PasswordCheckedFor(5) {
		t.Fatalf("expected state to expire after ttl")
	}
}

func TestMemoryStoreSaveEmptyClears(t *testing.T) {
	s := NewMemoryStore(time.Hour, nil)
	ctx := context.Background()
	_ = s.Save(ctx, 1, checked(5))
	_ = s.Save(ctx, 1, accessrule.VerificationState{})
	got, _ := s.Load(ctx, 1)
	if got.PasswordCheckedFor(5) {
		t.Fatalf("expected empty save to clear state")
	}
}

func TestRedisStoreKey(t *testing.T) {
	s := NewRedisStore(nil, " qa:sess ", time.Hour)
	if got := s.buildKey(17); got != "qa:sess:u:17" {
		t.Fatalf("unexpected key %q", got)
	}
	if _, err := s.Load(context.Background(), 17); err == nil {
		t.Fatalf("expected error without client")
	}
}

func TestManagerFallsBackToMemory(t *testing.T) {
	now := time.Unix(5_000, 0)
	dialed := 0
	factory := func(opts *redis.Options) *redis.Client {
		dialed++
		opts.Addr = "127.0.0.1:1"
		opts.MaxRetries = -1
		opts.DialTimeout = 100 * time.Millisecond
		return redis.NewClient(opts)
	}
	cfg := config.SessionConfig{
		RedisConfig: config.RedisConfig{Enabled: true, Addr: "redis.invalid:6379", Prefix: "qa:sess"},
		TTL:         time.Hour,
	}
	m := NewManager(cfg, func() time.Time { return now }, factory)
	defer func() { _ = m.Close() }()
	ctx := context.Background()

	if errSave := m.Save(ctx, 9, checked(3)); errSave != nil {
		t.Fatalf("save: %v", errSave)
	}
	got, err := m.Load(ctx, 9)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !got.PasswordCheckedFor(3) {
		t.Fatalf("expected memory fallback to keep the state")
	}
	if dialed != 1 {
		t.Fatalf("expected breaker to stop redial attempts, got %d dials", dialed)
	}
}

func TestManagerMemoryOnly(t *testing.T) {
	m := NewManager(config.SessionConfig{}, nil, func(*redis.Options) *redis.Client {
		t.Fatalf("redis must not be dialed when disabled")
		return nil
	})
	ctx := context.Background()
	_ = m.Save(ctx, 1, checked(2))
	got, _ := m.Load(ctx, 1)
	if !got.PasswordCheckedFor(2) {
		t.Fatalf("expected memory store to hold the state")
	}
}
