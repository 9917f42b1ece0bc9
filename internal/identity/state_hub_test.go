package identity

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/redis/go-redis/v9"

	"instructor-core/internal/domain"
)

func TestMemoryStateHub_DeliversUntilUnsubscribed(t *testing.T) {
	hub := NewMemoryStateHub()
	ctx := context.Background()

	var got []domain.ExternalIdentity
	unsubscribe, err := hub.SubscribeAuthState(ctx, "sub-1", func(s domain.ExternalIdentity) {
		got = append(got, s)
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	_ = hub.PublishAuthState(ctx, domain.ExternalIdentity{SubjectID: "sub-2", Verified: true})
	_ = hub.PublishAuthState(ctx, domain.ExternalIdentity{SubjectID: "sub-1", Verified: true})
	if len(got) != 1 || !got[0].Verified {
		t.Fatalf("expected one delivery for sub-1, got %+v", got)
	}

	unsubscribe()
	unsubscribe()
	_ = hub.PublishAuthState(ctx, domain.ExternalIdentity{SubjectID: "sub-1", Verified: true})
	if len(got) != 1 {
		t.Fatalf("expected no delivery after unsubscribe, got %d", len(got))
	}
	if len(hub.subs) != 0 {
		t.Fatalf("expected subscriptions to be released, got %d", len(hub.subs))
	}
}

func TestMemoryStateHub_RejectsInvalidSubscription(t *testing.T) {
	hub := NewMemoryStateHub()
	if _, err := hub.SubscribeAuthState(context.Background(), " ", func(domain.ExternalIdentity) {}); err == nil {
		t.Fatalf("expected error for empty subject")
	}
	if _, err := hub.SubscribeAuthState(context.Background(), "sub", nil); err == nil {
		t.Fatalf("expected error for nil callback")
	}
}

type mockPubSubClient struct {
	lastChannel string
	lastPayload interface{}
}

func (m *mockPubSubClient) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	m.lastChannel = channel
	m.lastPayload = message
	cmd := redis.NewIntCmd(ctx)
	cmd.SetVal(1)
	return cmd
}

func (m *mockPubSubClient) Subscribe(_ context.Context, _ ...string) *redis.PubSub {
	return nil
}

func TestRedisStateHub_Publish(t *testing.T) {
	mock := &mockPubSubClient{}
	hub := &RedisStateHub{client: mock, prefix: "identity:state:"}

	if err := hub.PublishAuthState(context.Background(), domain.ExternalIdentity{SubjectID: " sub-9 ", Email: "a@x.com", Verified: true}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if mock.lastChannel != "identity:state:sub-9" {
		t.Fatalf("unexpected channel %q", mock.lastChannel)
	}
	payload, ok := mock.lastPayload.([]byte)
	if !ok {
		t.Fatalf("expected []byte payload, got %T", mock.lastPayload)
	}
	var state domain.ExternalIdentity
	if err := json.Unmarshal(payload, &state); err != nil || !state.Verified {
		t.Fatalf("unexpected payload %s (%v)", payload, err)
	}

	if err := hub.PublishAuthState(context.Background(), domain.ExternalIdentity{}); err == nil {
		t.Fatalf("expected error for empty subject")
	}
}
