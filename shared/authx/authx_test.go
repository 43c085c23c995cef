package authx

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestIssueAndVerifyRoundTrip(t *testing.T) {
	issuer, err := NewTokenIssuer("test-secret", "news-platform", time.Hour)
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}
	token, expiresAt, err := issuer.Issue("64f1a2b3c4d5e6f7a8b9c0d1", "reporter@example.com", RoleReporter)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if !expiresAt.After(time.Now()) {
		t.Fatalf("expected future expiry, got %v", expiresAt)
	}

	verifier, err := NewTokenVerifier("test-secret", 0)
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	auth, err := verifier.Verify(context.Background(), token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if auth.UserID != "64f1a2b3c4d5e6f7a8b9c0d1" {
		t.Fatalf("got user id %q", auth.UserID)
	}
	if auth.Role != RoleReporter {
		t.Fatalf("got role %q, want %q", auth.Role, RoleReporter)
	}
	if auth.Email != "reporter@example.com" {
		t.Fatalf("got email %q", auth.Email)
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	issuer, _ := NewTokenIssuer("secret-a", "news-platform", time.Hour)
	token, _, err := issuer.Issue("64f1a2b3c4d5e6f7a8b9c0d1", "", RoleUser)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	verifier, _ := NewTokenVerifier("secret-b", 0)
	if _, err := verifier.Verify(context.Background(), token); err == nil {
		t.Fatalf("expected verification failure for wrong secret")
	}
}

func TestVerifyRejectsExpired(t *testing.T) {
	issuer := &TokenIssuer{secret: []byte("test-secret"), ttl: -time.Minute}
	token, _, err := issuer.Issue("64f1a2b3c4d5e6f7a8b9c0d1", "", RoleUser)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	verifier, _ := NewTokenVerifier("test-secret", 0)
	if _, err := verifier.Verify(context.Background(), token); err == nil {
		t.Fatalf("expected verification failure for expired token")
	}
}

func TestVerifyDefaultsRole(t *testing.T) {
	issuer, _ := NewTokenIssuer("test-secret", "news-platform", time.Hour)
	token, _, err := issuer.Issue("64f1a2b3c4d5e6f7a8b9c0d1", "", "")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	verifier, _ := NewTokenVerifier("test-secret", 0)
	auth, err := verifier.Verify(context.Background(), token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if auth.Role != RoleUser {
		t.Fatalf("got role %q, want default %q", auth.Role, RoleUser)
	}
}

type rejectAllVerifier struct{}

func (rejectAllVerifier) Verify(context.Context, string) (AuthContext, error) {
	return AuthContext{}, ErrInvalidToken
}

func TestChainVerifierFallsThrough(t *testing.T) {
	issuer, _ := NewTokenIssuer("test-secret", "news-platform", time.Hour)
	token, _, err := issuer.Issue("64f1a2b3c4d5e6f7a8b9c0d1", "", RoleUser)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	tokenVerifier, _ := NewTokenVerifier("test-secret", 0)

	chain := ChainVerifier{rejectAllVerifier{}, tokenVerifier}
	auth, err := chain.Verify(context.Background(), token)
	if err != nil {
		t.Fatalf("chain should fall through to the second verifier: %v", err)
	}
	if auth.UserID != "64f1a2b3c4d5e6f7a8b9c0d1" {
		t.Fatalf("got user id %q", auth.UserID)
	}

	chain = ChainVerifier{rejectAllVerifier{}}
	if _, err := chain.Verify(context.Background(), token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("exhausted chain should reject, got %v", err)
	}
}

func TestHasAnyRole(t *testing.T) {
	auth := AuthContext{Role: RoleEditor}
	if !auth.HasAnyRole(RoleEditor, RoleAdmin, RoleSuperAdmin) {
		t.Fatalf("editor should be allowed")
	}
	if auth.HasAnyRole(RoleAdmin, RoleSuperAdmin) {
		t.Fatalf("editor should not pass admin-only check")
	}
}

func TestBearerToken(t *testing.T) {
	if got := BearerToken("Bearer abc.def.ghi"); got != "abc.def.ghi" {
		t.Fatalf("got %q", got)
	}
	if got := BearerToken("abc.def.ghi"); got != "abc.def.ghi" {
		t.Fatalf("bare token should pass through, got %q", got)
	}
	if got := BearerToken(""); got != "" {
		t.Fatalf("expected empty, got %q", got)
	}
}
