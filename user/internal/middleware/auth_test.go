package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"news-platform-backend/shared/authx"
)

type fakeTokenStore struct {
	revoked bool
	err     error
	calls   int
}

func (f *fakeTokenStore) IsBlacklisted(ctx context.Context, token string) (bool, error) {
	f.calls++
	return f.revoked, f.err
}

func bearerRequest(t *testing.T) *http.Request {
	t.Helper()
	issuer, err := authx.NewTokenIssuer("test-secret", "user-api", time.Hour)
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}
	token, _, err := issuer.Issue("64f1a2b3c4d5e6f7a8b9c0d1", "user@example.com", authx.RoleUser)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/users/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func testVerifier(t *testing.T) authx.Verifier {
	t.Helper()
	verifier, err := authx.NewTokenVerifier("test-secret", 0)
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	return verifier
}

func TestAuthMiddlewarePassesWithoutBlacklistStore(t *testing.T) {
	// degraded mode: Mongo down means no blacklist store, auth itself
	// still has to work
	m := AuthMiddleware{Verifier: testVerifier(t)}

	var reached bool
	handler := m.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
		if _, ok := authx.FromContext(r.Context()); !ok {
			t.Fatalf("auth context missing")
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, bearerRequest(t))
	if !reached || rec.Code != http.StatusNoContent {
		t.Fatalf("request should pass without a blacklist store, got %d", rec.Code)
	}
}

func TestAuthMiddlewareRejectsRevokedToken(t *testing.T) {
	store := &fakeTokenStore{revoked: true}
	m := AuthMiddleware{Verifier: testVerifier(t), Blacklist: store}

	handler := m.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("revoked token must not reach the handler")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, bearerRequest(t))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("got %d, want 401", rec.Code)
	}
	if store.calls != 1 {
		t.Fatalf("blacklist checked %d times", store.calls)
	}
}

func TestAuthMiddlewareBlacklistLookupFailure(t *testing.T) {
	store := &fakeTokenStore{err: errors.New("mongo: connection reset")}
	m := AuthMiddleware{Verifier: testVerifier(t), Blacklist: store}

	handler := m.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("handler must not run when the blacklist is unreachable")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, bearerRequest(t))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("got %d, want 503", rec.Code)
	}
}
