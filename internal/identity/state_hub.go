package identity

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"instructor-core/internal/domain"
)

// MemoryStateHub difunde cambios de estado dentro del proceso.
type MemoryStateHub struct {
	mu     sync.Mutex
	nextID int
	subs   map[string]map[int]func(domain.ExternalIdentity)
}

func NewMemoryStateHub() *MemoryStateHub {
	return &MemoryStateHub{subs: make(map[string]map[int]func(domain.ExternalIdentity))}
}

func (h *MemoryStateHub) SubscribeAuthState(_ context.Context, subjectID string, fn func(domain.ExternalIdentity)) (func(), error) {
	subjectID = strings.TrimSpace(subjectID)
	if subjectID == "" || fn == nil {
		return nil, errors.New("subject and callback are required")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	id := h.nextID
	if h.subs[subjectID] == nil {
		h.subs[subjectID] = make(map[int]func(domain.ExternalIdentity))
	}
	h.subs[subjectID][id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs[subjectID], id)
			if len(h.subs[subjectID]) == 0 {
				delete(h.subs, subjectID)
			}
		})
	}, nil
}

func (h *MemoryStateHub) PublishAuthState(_ context.Context, state domain.ExternalIdentity) error {
	h.mu.Lock()
	callbacks := make([]func(domain.ExternalIdentity), 0, len(h.subs[state.SubjectID]))
	for _, fn := range h.subs[state.SubjectID] {
		callbacks = append(callbacks, fn)
	}
	h.mu.Unlock()

	for _, fn := range callbacks {
		fn(state)
	}
	return nil
}

type redisPubSubClient interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Subscribe(ctx context.Context, channels ...string) *redis.PubSub
}

// RedisStateHub difunde cambios de estado entre instancias via Redis pub/sub.
type RedisStateHub struct {
	client redisPubSubClient
	prefix string
	logger *zap.Logger
}

func NewRedisStateHub(client *redis.Client, logger *zap.Logger) *RedisStateHub {
	if client == nil {
		return nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisStateHub{
		client: client,
		prefix: "identity:state:",
		logger: logger,
	}
}

func (h *RedisStateHub) PublishAuthState(ctx context.Context, state domain.ExternalIdentity) error {
	subjectID := strings.TrimSpace(state.SubjectID)
	if subjectID == "" {
		return errors.New("subject is required")
	}
	payload, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return h.client.Publish(ctx, h.prefix+subjectID, payload).Err()
}

func (h *RedisStateHub) SubscribeAuthState(ctx context.Context, subjectID string, fn func(domain.ExternalIdentity)) (func(), error) {
	subjectID = strings.TrimSpace(subjectID)
	if subjectID == "" || fn == nil {
		return nil, errors.New("subject and callback are required")
	}
	ps := h.client.Subscribe(ctx, h.prefix+subjectID)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for msg := range ps.Channel() {
			var state domain.ExternalIdentity
			if err := json.Unmarshal([]byte(msg.Payload), &state); err != nil {
				h.logger.Warn("discarding malformed auth state", zap.Error(err), zap.String("channel", msg.Channel))
				continue
			}
			fn(state)
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			_ = ps.Close()
			<-done
		})
	}, nil
}
