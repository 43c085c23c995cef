package middleware

import (
	"context"
	"net/http"
	"strings"

	"news-platform-backend/shared/authx"
	"news-platform-backend/shared/httpx"
)

// TokenStore answers whether a token was revoked by a logout.
type TokenStore interface {
	IsBlacklisted(ctx context.Context, token string) (bool, error)
}

// AuthMiddleware verifies bearer tokens and rejects blacklisted ones before
// the handler runs. Blacklist lookups failing closed would lock everyone out
// on a Mongo blip, so lookup errors reject only the current request.
type AuthMiddleware struct {
	Verifier  authx.Verifier
	Blacklist TokenStore
	Skip      func(*http.Request) bool
}

func (m AuthMiddleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.Skip != nil && m.Skip(r) {
			next.ServeHTTP(w, r)
			return
		}

		if m.Verifier == nil {
			httpx.WriteError(w, r, http.StatusServiceUnavailable, "FAILED_PRECONDITION", "auth verifier not configured", nil)
			return
		}

		authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
			httpx.WriteError(w, r, http.StatusUnauthorized, "UNAUTHENTICATED", "missing bearer token", nil)
			return
		}
		token := strings.TrimSpace(authHeader[len("bearer "):])
		auth, err := m.Verifier.Verify(r.Context(), token)
		if err != nil {
			httpx.WriteError(w, r, http.StatusUnauthorized, "UNAUTHENTICATED", "invalid token", nil)
			return
		}

		if m.Blacklist != nil {
			revoked, err := m.Blacklist.IsBlacklisted(r.Context(), token)
			if err != nil {
				httpx.WriteError(w, r, http.StatusServiceUnavailable, "SERVER_ERROR", "token check unavailable", nil)
				return
			}
			if revoked {
				httpx.WriteError(w, r, http.StatusUnauthorized, "UNAUTHENTICATED", "token has been revoked", nil)
				return
			}
		}

		ctx := authx.WithAuth(r.Context(), auth)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRoles guards a single route. The 403 is written before any body is
// read so a rejected command has no side effects.
func RequireRoles(next http.HandlerFunc, roles ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		auth, ok := authx.FromContext(r.Context())
		if !ok {
			httpx.WriteError(w, r, http.StatusUnauthorized, "UNAUTHENTICATED", "missing auth context", nil)
			return
		}
		if !auth.HasAnyRole(roles...) {
			httpx.WriteError(w, r, http.StatusForbidden, "PERMISSION_DENIED", "you are not allowed to perform this action", nil)
			return
		}
		next(w, r)
	}
}
