package authx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v2/jwk"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrUnknownKID   = errors.New("unknown kid")
)

// Role values as they appear in the role claim and in stored user documents.
const (
	RoleUser            = "user"
	RolePendingReporter = "pending-reporter"
	RoleReporter        = "reporter"
	RoleEditor          = "editor"
	RoleAdmin           = "admin"
	RoleSuperAdmin      = "superadmin"
)

// AuthContext is the caller identity attached to a request after token
// verification.
type AuthContext struct {
	UserID string
	Email  string
	Role   string
	Claims map[string]any
}

// HasAnyRole reports whether the caller's role is one of allowed.
func (a AuthContext) HasAnyRole(allowed ...string) bool {
	for _, role := range allowed {
		if a.Role == role {
			return true
		}
	}
	return false
}

type contextKey struct{}

func WithAuth(ctx context.Context, auth AuthContext) context.Context {
	return context.WithValue(ctx, contextKey{}, auth)
}

func FromContext(ctx context.Context) (AuthContext, bool) {
	if v := ctx.Value(contextKey{}); v != nil {
		if a, ok := v.(AuthContext); ok {
			return a, true
		}
	}
	return AuthContext{}, false
}

// BearerToken extracts the raw token from an Authorization header value.
func BearerToken(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return header
}

// TokenIssuer mints the symmetric session tokens handed out at login.
type TokenIssuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

func NewTokenIssuer(secret string, issuer string, ttl time.Duration) (*TokenIssuer, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	if ttl <= 0 {
		ttl = 360 * time.Hour
	}
	return &TokenIssuer{secret: []byte(secret), issuer: issuer, ttl: ttl}, nil
}

func (i *TokenIssuer) Issue(userID string, email string, role string) (string, time.Time, error) {
	if strings.TrimSpace(userID) == "" {
		return "", time.Time{}, errors.New("user id is required")
	}
	now := time.Now()
	expiresAt := now.Add(i.ttl)
	claims := jwt.MapClaims{
		"sub":   userID,
		"email": email,
		"role":  role,
		"iss":   i.issuer,
		"iat":   now.Unix(),
		"nbf":   now.Unix(),
		"exp":   expiresAt.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Verifier checks a bearer token and returns the caller identity. Both the
// symmetric TokenVerifier and the JWKS-backed OIDCVerifier satisfy it.
type Verifier interface {
	Verify(ctx context.Context, rawToken string) (AuthContext, error)
}

var (
	_ Verifier = (*TokenVerifier)(nil)
	_ Verifier = (*OIDCVerifier)(nil)
	_ Verifier = (ChainVerifier)(nil)
)

// ChainVerifier tries each verifier in order; the first success wins. It
// lets first-party session tokens and OIDC tokens share one auth middleware.
type ChainVerifier []Verifier

func (c ChainVerifier) Verify(ctx context.Context, rawToken string) (AuthContext, error) {
	for _, v := range c {
		auth, err := v.Verify(ctx, rawToken)
		if err == nil {
			return auth, nil
		}
	}
	return AuthContext{}, ErrInvalidToken
}

// TokenVerifier validates tokens minted by TokenIssuer.
type TokenVerifier struct {
	secret []byte
	parser *jwt.Parser
}

func NewTokenVerifier(secret string, clockSkew time.Duration) (*TokenVerifier, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	if clockSkew < 0 {
		clockSkew = 0
	}
	return &TokenVerifier{
		secret: []byte(secret),
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{"HS256"}),
			jwt.WithLeeway(clockSkew),
			jwt.WithExpirationRequired(),
		),
	}, nil
}

func (v *TokenVerifier) Verify(_ context.Context, rawToken string) (AuthContext, error) {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return AuthContext{}, ErrInvalidToken
	}

	claims := jwt.MapClaims{}
	_, err := v.parser.ParseWithClaims(rawToken, claims, func(token *jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		return AuthContext{}, ErrInvalidToken
	}

	userID := strings.TrimSpace(fmt.Sprint(claims["sub"]))
	if userID == "" || userID == "<nil>" {
		return AuthContext{}, ErrInvalidToken
	}
	role := strings.TrimSpace(fmt.Sprint(claims["role"]))
	if role == "" || role == "<nil>" {
		role = RoleUser
	}
	email := strings.TrimSpace(fmt.Sprint(claims["email"]))
	if email == "<nil>" {
		email = ""
	}

	return AuthContext{
		UserID: userID,
		Email:  email,
		Role:   role,
		Claims: map[string]any(claims),
	}, nil
}

// OIDCVerifier validates tokens from an external identity provider using its
// published JWKS. It is used when OIDC_JWKS_URL is configured; first-party
// session tokens go through TokenVerifier instead.
type OIDCVerifier struct {
	jwks   *JWKSCache
	parser *jwt.Parser
}

func NewOIDCVerifier(jwksURL string, ttlSeconds int, clockSkewSeconds int) (*OIDCVerifier, error) {
	jwksURL = strings.TrimSpace(jwksURL)
	if jwksURL == "" {
		return nil, errors.New("OIDC_JWKS_URL is required")
	}
	if ttlSeconds <= 0 {
		ttlSeconds = 300
	}
	if clockSkewSeconds < 0 {
		clockSkewSeconds = 0
	}
	return &OIDCVerifier{
		jwks: NewJWKSCache(jwksURL, time.Duration(ttlSeconds)*time.Second, &http.Client{Timeout: 5 * time.Second}),
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{"RS256", "RS384", "RS512", "ES256", "ES384", "ES512"}),
			jwt.WithLeeway(time.Duration(clockSkewSeconds)*time.Second),
			jwt.WithExpirationRequired(),
		),
	}, nil
}

func (v *OIDCVerifier) Verify(ctx context.Context, rawToken string) (AuthContext, error) {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return AuthContext{}, ErrInvalidToken
	}

	claims := jwt.MapClaims{}
	_, err := v.parser.ParseWithClaims(rawToken, claims, func(token *jwt.Token) (any, error) {
		kid, _ := token.Header["kid"].(string)
		kid = strings.TrimSpace(kid)
		if kid == "" {
			return nil, ErrUnknownKID
		}
		return v.jwks.GetKey(ctx, kid)
	})
	if err != nil {
		return AuthContext{}, ErrInvalidToken
	}

	userID := strings.TrimSpace(fmt.Sprint(claims["sub"]))
	if userID == "" || userID == "<nil>" {
		return AuthContext{}, ErrInvalidToken
	}
	email := strings.TrimSpace(fmt.Sprint(claims["email"]))
	if email == "<nil>" {
		email = ""
	}

	return AuthContext{
		UserID: userID,
		Email:  email,
		Role:   RoleUser,
		Claims: map[string]any(claims),
	}, nil
}

type JWKSCache struct {
	url        string
	ttl        time.Duration
	client     *http.Client
	mu         sync.RWMutex
	keysByKID  map[string]any
	expiresAt  time.Time
	lastUpdate time.Time
}

func NewJWKSCache(url string, ttl time.Duration, client *http.Client) *JWKSCache {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &JWKSCache{
		url:       url,
		ttl:       ttl,
		client:    client,
		keysByKID: map[string]any{},
	}
}

func (c *JWKSCache) GetKey(ctx context.Context, kid string) (any, error) {
	if kid == "" {
		return nil, ErrUnknownKID
	}

	now := time.Now()
	c.mu.RLock()
	key := c.keysByKID[kid]
	expiresAt := c.expiresAt
	c.mu.RUnlock()

	if key != nil && now.Before(expiresAt) {
		return key, nil
	}

	if err := c.refresh(ctx); err != nil {
		c.mu.RLock()
		key = c.keysByKID[kid]
		expiresAt = c.expiresAt
		c.mu.RUnlock()
		if key != nil && now.Before(expiresAt) {
			return key, nil
		}
		return nil, err
	}

	c.mu.RLock()
	key = c.keysByKID[kid]
	c.mu.RUnlock()
	if key == nil {
		return nil, ErrUnknownKID
	}
	return key, nil
}

func (c *JWKSCache) refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("jwks fetch failed: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	set, err := jwk.Parse(body)
	if err != nil {
		return err
	}

	keys := make(map[string]any)
	iter := set.Iterate(ctx)
	for iter.Next(ctx) {
		pair := iter.Pair()
		key, ok := pair.Value.(jwk.Key)
		if !ok {
			continue
		}
		kid := strings.TrimSpace(key.KeyID())
		if kid == "" {
			continue
		}
		var raw any
		if err := key.Raw(&raw); err != nil {
			continue
		}
		keys[kid] = raw
	}
	if len(keys) == 0 {
		return errors.New("no usable jwks keys")
	}

	c.mu.Lock()
	c.keysByKID = keys
	c.expiresAt = time.Now().Add(c.ttl)
	c.lastUpdate = time.Now()
	c.mu.Unlock()
	return nil
}
