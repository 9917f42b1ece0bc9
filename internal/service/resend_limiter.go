package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ResendLimiter aplica el cooldown de reenvio de verificacion por sujeto.
type ResendLimiter interface {
	Allow(key string) bool
}

type memoryResendLimiter struct {
	mu        sync.Mutex
	window    time.Duration
	max       int
	now       func() time.Time
	hits      map[string][]time.Time
	lastSweep time.Time
}

// NewResendLimiter crea un limitador de ventana deslizante en memoria.
func NewResendLimiter(window time.Duration, max int) ResendLimiter {
	if max <= 0 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &memoryResendLimiter{
		window: window,
		max:    max,
		now:    func() time.Time { return time.Now().UTC() },
		hits:   make(map[string][]time.Time),
	}
}

func (l *memoryResendLimiter) Allow(key string) bool {
	key = strings.TrimSpace(key)
	if key == "" {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	cutoff := now.Add(-l.window)
	entries := l.hits[key]
	kept := entries[:0]
	for _, ts := range entries {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	l.sweep(now, cutoff)
	if len(kept) >= l.max {
		l.hits[key] = kept
		return false
	}
	l.hits[key] = append(kept, now)
	return true
}

// sweep descarta sujetos sin envios dentro de la ventana, como mucho una vez por ventana.
func (l *memoryResendLimiter) sweep(now, cutoff time.Time) {
	if now.Sub(l.lastSweep) < l.window {
		return
	}
	l.lastSweep = now
	for k, entries := range l.hits {
		if len(entries) == 0 || !entries[len(entries)-1].After(cutoff) {
			delete(l.hits, k)
		}
	}
}

const redisResendAllowScript = `
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("EXPIRE", KEYS[1], ARGV[1])
end
return current
`

type redisEvaler interface {
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

type redisResendLimiter struct {
	client redisEvaler
	window time.Duration
	max    int
	prefix string
}

// NewRedisResendLimiter comparte el cooldown entre replicas. Ante errores de Redis deja pasar.
func NewRedisResendLimiter(client *redis.Client, window time.Duration, max int) ResendLimiter {
	if client == nil {
		return nil
	}
	if window <= 0 {
		window = time.Minute
	}
	if max <= 0 {
		max = 1
	}
	return &redisResendLimiter{
		client: client,
		window: window,
		max:    max,
		prefix: "verify:resend:",
	}
}

func (l *redisResendLimiter) Allow(key string) bool {
	if l == nil || l.client == nil {
		return true
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	seconds := int(l.window.Seconds())
	if seconds <= 0 {
		seconds = 60
	}
	count, err := l.client.Eval(ctx, redisResendAllowScript, []string{l.prefix + key}, seconds).Int()
	if err != nil {
		return true
	}
	return count <= l.max
}
