package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RevocationStore lleva una generacion de sesion por perfil. Los tokens emitidos
// con una generacion anterior a la vigente quedan invalidados.
type RevocationStore interface {
	Generation(profileID string) (int64, error)
	Revoke(profileID string) (int64, error)
}

type memoryRevocationStore struct {
	mu    sync.Mutex
	items map[string]int64
}

func NewMemoryRevocationStore() RevocationStore {
	return &memoryRevocationStore{items: make(map[string]int64)}
}

func (s *memoryRevocationStore) Generation(profileID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.items[strings.TrimSpace(profileID)], nil
}

func (s *memoryRevocationStore) Revoke(profileID string) (int64, error) {
	profileID = strings.TrimSpace(profileID)
	if profileID == "" {
		return 0, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[profileID]++
	return s.items[profileID], nil
}

type redisKVClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Incr(ctx context.Context, key string) *redis.IntCmd
}

type redisRevocationStore struct {
	client redisKVClient
	prefix string
}

func NewRedisRevocationStore(client *redis.Client) RevocationStore {
	if client == nil {
		return nil
	}
	return &redisRevocationStore{
		client: client,
		prefix: "auth:session-gen:",
	}
}

func (s *redisRevocationStore) Generation(profileID string) (int64, error) {
	profileID = strings.TrimSpace(profileID)
	if profileID == "" {
		return 0, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	gen, err := s.client.Get(ctx, s.prefix+profileID).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

func (s *redisRevocationStore) Revoke(profileID string) (int64, error) {
	profileID = strings.TrimSpace(profileID)
	if profileID == "" {
		return 0, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	return s.client.Incr(ctx, s.prefix+profileID).Result()
}
