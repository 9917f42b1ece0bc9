package identity

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

type fakeToolkit struct {
	mu       sync.Mutex
	accounts map[string]fakeAccount
	calls    []string
	delay    time.Duration
}

type fakeAccount struct {
	id       string
	email    string
	password string
	verified bool
}

func newFakeToolkit() *fakeToolkit {
	return &fakeToolkit{accounts: make(map[string]fakeAccount)}
}

func (f *fakeToolkit) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	method := strings.TrimPrefix(r.URL.Path, "/v1/")
	f.calls = append(f.calls, method)
	if r.URL.Query().Get("key") != "api-key" {
		writeToolkitError(w, http.StatusForbidden, "API_KEY_INVALID")
		return
	}

	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)

	switch method {
	case "accounts:signUp":
		email, _ := body["email"].(string)
		for _, acc := range f.accounts {
			if acc.email == email {
				writeToolkitError(w, http.StatusBadRequest, "EMAIL_EXISTS")
				return
			}
		}
		id := "sub-" + email
		f.accounts[id] = fakeAccount{id: id, email: email, password: body["password"].(string)}
		_ = json.NewEncoder(w).Encode(map[string]any{"localId": id, "email": email})
	case "accounts:signInWithPassword":
		email, _ := body["email"].(string)
		for _, acc := range f.accounts {
			if acc.email == email {
				if acc.password != body["password"] {
					writeToolkitError(w, http.StatusBadRequest, "INVALID_LOGIN_CREDENTIALS")
					return
				}
				_ = json.NewEncoder(w).Encode(map[string]any{"localId": acc.id, "email": acc.email})
				return
			}
		}
		writeToolkitError(w, http.StatusBadRequest, "EMAIL_NOT_FOUND")
	case "accounts:lookup":
		ids, _ := body["localId"].([]any)
		users := []map[string]any{}
		for _, raw := range ids {
			if acc, ok := f.accounts[raw.(string)]; ok {
				users = append(users, map[string]any{"localId": acc.id, "email": acc.email, "emailVerified": acc.verified})
			}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"users": users})
	case "accounts:sendOobCode":
		_ = json.NewEncoder(w).Encode(map[string]any{"email": "ok"})
	case "accounts:update":
		id, _ := body["localId"].(string)
		acc := f.accounts[id]
		acc.password, _ = body["password"].(string)
		f.accounts[id] = acc
		_ = json.NewEncoder(w).Encode(map[string]any{"localId": id})
	case "boom":
		writeToolkitError(w, http.StatusBadGateway, "BACKEND_ERROR")
	default:
		writeToolkitError(w, http.StatusNotFound, "NOT_FOUND")
	}
}

func writeToolkitError(w http.ResponseWriter, status int, message string) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"code": status, "message": message}})
}

func setupProvider(t *testing.T, toolkit *fakeToolkit, timeout time.Duration) *RESTProvider {
	t.Helper()
	srv := httptest.NewServer(toolkit)
	t.Cleanup(srv.Close)
	return NewRESTProvider(srv.URL+"/v1", "api-key", timeout, zap.NewNop())
}

func TestRESTProvider_CreateAndSignIn(t *testing.T) {
	toolkit := newFakeToolkit()
	p := setupProvider(t, toolkit, time.Second)
	ctx := context.Background()

	created, err := p.CreateIdentity(ctx, "a@x.com", "pw-123456")
	if err != nil {
		t.Fatalf("create identity: %v", err)
	}
	if created.SubjectID == "" || created.Verified {
		t.Fatalf("unexpected created identity: %+v", created)
	}

	if _, err := p.CreateIdentity(ctx, "a@x.com", "other"); !errors.Is(err, ErrEmailExists) {
		t.Fatalf("expected ErrEmailExists, got %v", err)
	}

	signed, err := p.SignIn(ctx, "a@x.com", "pw-123456")
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if signed.SubjectID != created.SubjectID || signed.Verified {
		t.Fatalf("unexpected signed identity: %+v", signed)
	}

	if _, err := p.SignIn(ctx, "a@x.com", "wrong"); !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("expected ErrInvalidCredential, got %v", err)
	}
}

func TestRESTProvider_VerificationStateAndRotation(t *testing.T) {
	toolkit := newFakeToolkit()
	p := setupProvider(t, toolkit, time.Second)
	ctx := context.Background()

	created, err := p.CreateIdentity(ctx, "b@x.com", "pw-123456")
	if err != nil {
		t.Fatalf("create identity: %v", err)
	}
	if err := p.SendVerification(ctx, created.SubjectID); err != nil {
		t.Fatalf("send verification: %v", err)
	}

	verified, err := p.GetVerificationState(ctx, created.SubjectID)
	if err != nil || verified {
		t.Fatalf("expected unverified,nil; got %v,%v", verified, err)
	}

	toolkit.mu.Lock()
	acc := toolkit.accounts[created.SubjectID]
	acc.verified = true
	toolkit.accounts[created.SubjectID] = acc
	toolkit.mu.Unlock()

	verified, err = p.GetVerificationState(ctx, created.SubjectID)
	if err != nil || !verified {
		t.Fatalf("expected verified,nil; got %v,%v", verified, err)
	}

	if err := p.Reauthenticate(ctx, created.SubjectID, "bad"); !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("expected ErrInvalidCredential on reauth, got %v", err)
	}
	if err := p.Reauthenticate(ctx, created.SubjectID, "pw-123456"); err != nil {
		t.Fatalf("reauthenticate: %v", err)
	}
	if err := p.RotateCredential(ctx, created.SubjectID, "new-password"); err != nil {
		t.Fatalf("rotate credential: %v", err)
	}
	if err := p.Reauthenticate(ctx, created.SubjectID, "new-password"); err != nil {
		t.Fatalf("reauthenticate with rotated password: %v", err)
	}
}

func TestRESTProvider_TimeoutIsTransient(t *testing.T) {
	toolkit := newFakeToolkit()
	toolkit.delay = 200 * time.Millisecond
	p := setupProvider(t, toolkit, 20*time.Millisecond)

	_, err := p.CreateIdentity(context.Background(), "slow@x.com", "pw")
	if !errors.Is(err, ErrTimeout) || !errors.Is(err, ErrTransient) {
		t.Fatalf("expected transient timeout, got %v", err)
	}
}

func TestTranslateError(t *testing.T) {
	cases := []struct {
		status int
		raw    string
		want   error
	}{
		{http.StatusBadRequest, "EMAIL_EXISTS", ErrEmailExists},
		{http.StatusBadRequest, "INVALID_PASSWORD", ErrInvalidCredential},
		{http.StatusBadRequest, "TOO_MANY_ATTEMPTS_TRY_LATER : Access disabled", ErrRateLimited},
		{http.StatusBadGateway, "BACKEND_ERROR", ErrTransient},
		{http.StatusBadRequest, "WEAK_PASSWORD : too short", ErrPermanent},
	}
	for _, tc := range cases {
		got := translateError(tc.status, tc.raw)
		if !errors.Is(got, tc.want) {
			t.Fatalf("translate(%d,%q): expected %v, got %v", tc.status, tc.raw, tc.want, got)
		}
		if strings.Contains(got.Error(), "WEAK_PASSWORD") || strings.Contains(got.Error(), "BACKEND_ERROR") {
			t.Fatalf("raw provider code leaked: %v", got)
		}
	}
}
