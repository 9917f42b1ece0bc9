package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

type mockRedisEvaler struct {
	lastScript string
	lastKeys   []string
	lastArgs   []interface{}
	result     int64
	err        error
}

func (m *mockRedisEvaler) Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd {
	m.lastScript = script
	m.lastKeys = keys
	m.lastArgs = args
	cmd := redis.NewCmd(ctx)
	if m.err != nil {
		cmd.SetErr(m.err)
		return cmd
	}
	cmd.SetVal(m.result)
	return cmd
}

func TestMemoryResendLimiter_Window(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l := NewResendLimiter(time.Minute, 1).(*memoryResendLimiter)
	l.now = func() time.Time { return now }

	if !l.Allow("sub-1") {
		t.Fatalf("expected first send to be allowed")
	}
	if l.Allow("sub-1") {
		t.Fatalf("expected second send inside the window to be rejected")
	}
	if !l.Allow("sub-2") {
		t.Fatalf("expected other subjects to be independent")
	}

	now = now.Add(61 * time.Second)
	if !l.Allow("sub-1") {
		t.Fatalf("expected send after cooldown to be allowed")
	}
}

func TestMemoryResendLimiter_EvictsIdleSubjects(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l := NewResendLimiter(time.Minute, 1).(*memoryResendLimiter)
	l.now = func() time.Time { return now }

	for i := 0; i < 50; i++ {
		if !l.Allow(fmt.Sprintf("sub-%d", i)) {
			t.Fatalf("expected first send for sub-%d to be allowed", i)
		}
	}
	if len(l.hits) != 50 {
		t.Fatalf("expected 50 tracked subjects, got %d", len(l.hits))
	}

	now = now.Add(2 * time.Minute)
	if !l.Allow("sub-new") {
		t.Fatalf("expected new subject to be allowed")
	}
	if len(l.hits) != 1 {
		t.Fatalf("expected idle subjects to be evicted, got %d entries", len(l.hits))
	}
	if _, ok := l.hits["sub-new"]; !ok {
		t.Fatalf("expected current subject to stay tracked")
	}
}

func TestMemoryResendLimiter_EmptyKey(t *testing.T) {
	l := NewResendLimiter(time.Minute, 3)
	if l.Allow("  ") {
		t.Fatalf("expected empty key to be rejected")
	}
}

func TestRedisResendLimiterAllow(t *testing.T) {
	t.Run("nil receiver fail-open", func(t *testing.T) {
		var l *redisResendLimiter
		if !l.Allow("sub-1") {
			t.Fatalf("expected fail-open for nil limiter")
		}
	})

	t.Run("empty key rejected", func(t *testing.T) {
		l := &redisResendLimiter{client: &mockRedisEvaler{result: 1}, window: time.Minute, max: 1, prefix: "verify:resend:"}
		if l.Allow("   ") {
			t.Fatalf("expected empty key to be rejected")
		}
	})

	t.Run("allow within max", func(t *testing.T) {
		mock := &mockRedisEvaler{result: 1}
		l := &redisResendLimiter{client: mock, window: 2 * time.Minute, max: 1, prefix: "verify:resend:"}
		if !l.Allow(" sub-1 ") {
			t.Fatalf("expected allow when count <= max")
		}
		if len(mock.lastKeys) != 1 || mock.lastKeys[0] != "verify:resend:sub-1" {
			t.Fatalf("unexpected key, got %+v", mock.lastKeys)
		}
		if len(mock.lastArgs) != 1 || mock.lastArgs[0] != 120 {
			t.Fatalf("expected TTL seconds=120, got %+v", mock.lastArgs)
		}
		if mock.lastScript != redisResendAllowScript {
			t.Fatalf("expected script to match")
		}
	})

	t.Run("deny over max", func(t *testing.T) {
		l := &redisResendLimiter{client: &mockRedisEvaler{result: 2}, window: time.Minute, max: 1, prefix: "verify:resend:"}
		if l.Allow("sub-1") {
			t.Fatalf("expected deny when count > max")
		}
	})

	t.Run("redis error fail-open", func(t *testing.T) {
		l := &redisResendLimiter{client: &mockRedisEvaler{err: errors.New("redis down")}, window: time.Minute, max: 1, prefix: "verify:resend:"}
		if !l.Allow("sub-1") {
			t.Fatalf("expected fail-open on redis errors")
		}
	})
}
