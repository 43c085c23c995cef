package handlers

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"news-platform-backend/shared/authx"
	"news-platform-backend/shared/httpx"
	"news-platform-backend/shared/logx"
	"news-platform-backend/shared/uploadx"
	"news-platform-backend/user/internal/identity"
	"news-platform-backend/user/internal/middleware"
	"news-platform-backend/user/internal/models"
)

// Publisher is the write side of the event bus. Aside from the users
// collection, which login and register mutate synchronously, every mutation
// leaves through here.
type Publisher interface {
	Publish(ctx context.Context, topic string, kind string, payload any) error
}

type Cache interface {
	GetJSON(ctx context.Context, key string, dest any) (bool, error)
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	DeleteFamily(ctx context.Context, pattern string) (int, error)
}

type UserStore interface {
	Create(ctx context.Context, user models.User) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, userID bson.ObjectID) (*models.User, error)
	SetLoggedIn(ctx context.Context, userID bson.ObjectID, loggedIn bool) error
}

type ApplicationStore interface {
	FindByID(ctx context.Context, applicationID bson.ObjectID) (*models.Application, error)
	FindPendingByReporter(ctx context.Context, reporterID bson.ObjectID) (*models.Application, error)
	FindByReporter(ctx context.Context, reporterID bson.ObjectID) ([]models.Application, error)
	FindByStatus(ctx context.Context, status string) ([]models.Application, error)
	FindAll(ctx context.Context) ([]models.Application, error)
}

// TokenBlacklist records tokens revoked at logout.
type TokenBlacklist interface {
	Insert(ctx context.Context, token string, expiresAt time.Time) error
}

type Handlers struct {
	publisher    Publisher
	cache        Cache
	users        UserStore
	applications ApplicationStore
	blacklist    TokenBlacklist
	hasher       identity.PasswordHasher
	issuer       *authx.TokenIssuer
	uploader     uploadx.Uploader
	logger       logx.Logger
}

func New(
	publisher Publisher,
	cache Cache,
	users UserStore,
	applications ApplicationStore,
	blacklist TokenBlacklist,
	hasher identity.PasswordHasher,
	issuer *authx.TokenIssuer,
	uploader uploadx.Uploader,
	logger logx.Logger,
) *Handlers {
	return &Handlers{
		publisher:    publisher,
		cache:        cache,
		users:        users,
		applications: applications,
		blacklist:    blacklist,
		hasher:       hasher,
		issuer:       issuer,
		uploader:     uploader,
		logger:       logger,
	}
}

func (h *Handlers) Register(mux *http.ServeMux) {
	// public
	mux.HandleFunc("POST /api/v1/auth/register", h.RegisterUser)
	mux.HandleFunc("POST /api/v1/auth/login", h.Login)

	// authenticated
	mux.HandleFunc("POST /api/v1/auth/logout", h.Logout)
	mux.HandleFunc("GET /api/v1/users/me", h.GetMe)

	// reporter applications
	mux.HandleFunc("POST /api/v1/applications", middleware.RequireRoles(h.CreateApplication,
		authx.RoleUser, authx.RolePendingReporter))
	mux.HandleFunc("PUT /api/v1/applications/{id}", h.UpdateApplication)
	mux.HandleFunc("PATCH /api/v1/applications/{id}/verify", middleware.RequireRoles(h.VerifyApplication,
		authx.RoleAdmin, authx.RoleSuperAdmin))
	mux.HandleFunc("DELETE /api/v1/applications/{id}", middleware.RequireRoles(h.DeleteApplication,
		authx.RoleAdmin, authx.RoleSuperAdmin))

	mux.HandleFunc("GET /api/v1/applications/mine", h.GetMyApplications)
	mux.HandleFunc("GET /api/v1/applications", middleware.RequireRoles(h.GetApplications,
		authx.RoleAdmin, authx.RoleSuperAdmin))
	mux.HandleFunc("GET /api/v1/applications/{id}", middleware.RequireRoles(h.GetApplicationByID,
		authx.RoleAdmin, authx.RoleSuperAdmin))
}

// PublicPath reports routes that skip the auth middleware.
func PublicPath(r *http.Request) bool {
	switch r.URL.Path {
	case "/api/v1/auth/register", "/api/v1/auth/login":
		return true
	}
	return false
}

func decodeJSON(r *http.Request, dest any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dest)
}

func mustAuth(w http.ResponseWriter, r *http.Request) (authx.AuthContext, bool) {
	auth, ok := authx.FromContext(r.Context())
	if !ok {
		httpx.WriteError(w, r, http.StatusUnauthorized, "UNAUTHENTICATED", "missing auth context", nil)
	}
	return auth, ok
}

func pathObjectID(w http.ResponseWriter, r *http.Request, name string) (bson.ObjectID, bool) {
	id, err := bson.ObjectIDFromHex(r.PathValue(name))
	if err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid id format", nil)
		return bson.ObjectID{}, false
	}
	return id, true
}

// requestIP resolves the client address recorded on device-token events.
func requestIP(r *http.Request) string {
	if v := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); v != "" {
		if i := strings.IndexByte(v, ','); i >= 0 {
			v = v[:i]
		}
		return strings.TrimSpace(v)
	}
	if v := strings.TrimSpace(r.Header.Get("X-Real-IP")); v != "" {
		return v
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}
