package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"instructor-core/internal/domain"
	"instructor-core/internal/identity"
)

type pollResult struct {
	verified bool
	err      error
}

// mockStateReader devuelve los resultados en orden y luego repite el ultimo.
type mockStateReader struct {
	mu      sync.Mutex
	results []pollResult
	calls   int
}

func (m *mockStateReader) GetVerificationState(_ context.Context, _ string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if len(m.results) == 0 {
		return false, nil
	}
	r := m.results[0]
	if len(m.results) > 1 {
		m.results = m.results[1:]
	}
	return r.verified, r.err
}

func (m *mockStateReader) setVerified() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = []pollResult{{verified: true}}
}

func (m *mockStateReader) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type failingSubscriber struct{}

func (failingSubscriber) SubscribeAuthState(context.Context, string, func(domain.ExternalIdentity)) (func(), error) {
	return nil, errors.New("redis unavailable")
}

func newTestDetector(states verificationStateReader, sub identity.StateSubscriber) *VerificationDetector {
	return NewVerificationDetector(zap.NewNop(), states, sub, 5*time.Millisecond, 20*time.Millisecond)
}

func waitEvent(t *testing.T, w *VerificationWatch) VerifiedEvent {
	t.Helper()
	select {
	case evt, ok := <-w.Events():
		if !ok {
			t.Fatalf("events closed without a verified event")
		}
		return evt
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for verified event")
	}
	return VerifiedEvent{}
}

func waitDone(t *testing.T, w *VerificationWatch) {
	t.Helper()
	select {
	case <-w.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("watch did not tear down")
	}
}

func TestDetector_PollObservesVerification(t *testing.T) {
	states := &mockStateReader{results: []pollResult{{}, {}, {verified: true}}}
	d := newTestDetector(states, identity.NewMemoryStateHub())

	w, err := d.Watch(context.Background(), "sub-1")
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	evt := waitEvent(t, w)
	if evt.Source != SourcePoll || evt.SubjectID != "sub-1" {
		t.Fatalf("unexpected event %+v", evt)
	}
	waitDone(t, w)
	if _, ok := <-w.Events(); ok {
		t.Fatalf("expected a single event")
	}
}

func TestDetector_PushObservesVerification(t *testing.T) {
	states := &mockStateReader{}
	hub := identity.NewMemoryStateHub()
	d := newTestDetector(states, hub)

	w, err := d.Watch(context.Background(), "sub-1")
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	_ = hub.PublishAuthState(context.Background(), domain.ExternalIdentity{SubjectID: "sub-1", Verified: false})
	_ = hub.PublishAuthState(context.Background(), domain.ExternalIdentity{SubjectID: "sub-2", Verified: true})
	_ = hub.PublishAuthState(context.Background(), domain.ExternalIdentity{SubjectID: "sub-1", Verified: true})

	evt := waitEvent(t, w)
	if evt.Source != SourcePush {
		t.Fatalf("expected push event, got %+v", evt)
	}
	waitDone(t, w)

	calls := states.callCount()
	time.Sleep(30 * time.Millisecond)
	if states.callCount() != calls {
		t.Fatalf("expected polling to stop after push won")
	}
}

func TestDetector_SimultaneousObservationsEmitOnce(t *testing.T) {
	for i := 0; i < 20; i++ {
		states := &mockStateReader{results: []pollResult{{verified: true}}}
		hub := identity.NewMemoryStateHub()
		d := newTestDetector(states, hub)

		w, err := d.Watch(context.Background(), "sub-1")
		if err != nil {
			t.Fatalf("watch: %v", err)
		}
		go func() {
			_ = hub.PublishAuthState(context.Background(), domain.ExternalIdentity{SubjectID: "sub-1", Verified: true})
		}()

		count := 0
		for range w.Events() {
			count++
		}
		if count != 1 {
			t.Fatalf("expected exactly one event, got %d", count)
		}
	}
}

func TestDetector_TransientPollErrorsAreRetried(t *testing.T) {
	states := &mockStateReader{results: []pollResult{
		{err: identity.ErrTransient},
		{err: identity.ErrTransient},
		{err: identity.ErrTransient},
		{verified: true},
	}}
	d := newTestDetector(states, nil)

	w, err := d.Watch(context.Background(), "sub-1")
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	evt := waitEvent(t, w)
	if evt.Source != SourcePoll {
		t.Fatalf("unexpected event %+v", evt)
	}
	if states.callCount() < 4 {
		t.Fatalf("expected retries, got %d calls", states.callCount())
	}
}

func TestDetector_StopEmitsNothing(t *testing.T) {
	states := &mockStateReader{}
	hub := identity.NewMemoryStateHub()
	d := newTestDetector(states, hub)

	w, err := d.Watch(context.Background(), "sub-1")
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	time.Sleep(15 * time.Millisecond)
	w.Stop()

	states.setVerified()
	_ = hub.PublishAuthState(context.Background(), domain.ExternalIdentity{SubjectID: "sub-1", Verified: true})
	if _, ok := <-w.Events(); ok {
		t.Fatalf("expected no event after stop")
	}
	calls := states.callCount()
	time.Sleep(30 * time.Millisecond)
	if states.callCount() != calls {
		t.Fatalf("expected polling stopped")
	}
}

func TestDetector_ContextCancelTearsDown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	d := newTestDetector(&mockStateReader{}, identity.NewMemoryStateHub())
	w, err := d.Watch(ctx, "sub-1")
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	cancel()
	waitDone(t, w)
	if _, ok := <-w.Events(); ok {
		t.Fatalf("expected no event after cancel")
	}
}

func TestDetector_SubscriptionFailureFallsBackToPolling(t *testing.T) {
	states := &mockStateReader{results: []pollResult{{}, {verified: true}}}
	d := newTestDetector(states, failingSubscriber{})
	w, err := d.Watch(context.Background(), "sub-1")
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	if evt := waitEvent(t, w); evt.Source != SourcePoll {
		t.Fatalf("unexpected event %+v", evt)
	}
}

func TestDetector_Backoff(t *testing.T) {
	d := NewVerificationDetector(nil, &mockStateReader{}, nil, time.Second, 8*time.Second)
	cases := map[int]time.Duration{1: 2 * time.Second, 2: 4 * time.Second, 3: 8 * time.Second, 10: 8 * time.Second}
	for failures, want := range cases {
		if got := d.backoff(failures); got != want {
			t.Fatalf("backoff(%d) = %v, want %v", failures, got, want)
		}
	}
}

func TestDetector_RequiresSubject(t *testing.T) {
	d := newTestDetector(&mockStateReader{}, nil)
	if _, err := d.Watch(context.Background(), " "); err == nil {
		t.Fatalf("expected error for empty subject")
	}
}
