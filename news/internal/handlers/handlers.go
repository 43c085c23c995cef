package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"news-platform-backend/news/internal/middleware"
	"news-platform-backend/news/internal/models"
	"news-platform-backend/shared/authx"
	"news-platform-backend/shared/httpx"
	"news-platform-backend/shared/logx"
	"news-platform-backend/shared/uploadx"
)

// Publisher is the write side of the event bus. Command handlers never touch
// the store directly; every mutation leaves through here.
type Publisher interface {
	Publish(ctx context.Context, topic string, kind string, payload any) error
}

type Cache interface {
	GetJSON(ctx context.Context, key string, dest any) (bool, error)
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	DeleteFamily(ctx context.Context, pattern string) (int, error)
}

type NewsStore interface {
	FindByID(ctx context.Context, newsID bson.ObjectID) (*models.News, error)
	FindAll(ctx context.Context) ([]models.News, error)
	FindByStatus(ctx context.Context, status string) ([]models.News, error)
	FindSystemGenerated(ctx context.Context) ([]models.News, error)
	FindPublished(ctx context.Context) ([]models.News, error)
	FindByReporter(ctx context.Context, reporterID bson.ObjectID) ([]models.News, error)
	FindPublishedByCategories(ctx context.Context, categoryIDs []bson.ObjectID) ([]models.News, error)
}

type CategoryStore interface {
	FindByID(ctx context.Context, categoryID bson.ObjectID) (*models.Category, error)
	TreeAll(ctx context.Context) ([]models.CategoryTree, error)
	TreeParents(ctx context.Context) ([]models.CategoryTree, error)
	TreeByName(ctx context.Context, name string) ([]models.CategoryTree, error)
	TreeByID(ctx context.Context, categoryID bson.ObjectID) ([]models.CategoryTree, error)
	DescendantIDs(ctx context.Context, roots []bson.ObjectID) ([]bson.ObjectID, error)
}

type Handlers struct {
	publisher  Publisher
	cache      Cache
	news       NewsStore
	categories CategoryStore
	uploader   uploadx.Uploader
	logger     logx.Logger
}

func New(publisher Publisher, cache Cache, news NewsStore, categories CategoryStore, uploader uploadx.Uploader, logger logx.Logger) *Handlers {
	return &Handlers{
		publisher:  publisher,
		cache:      cache,
		news:       news,
		categories: categories,
		uploader:   uploader,
		logger:     logger,
	}
}

func (h *Handlers) Register(mux *http.ServeMux) {
	// commands
	mux.HandleFunc("POST /api/v1/news", middleware.RequireRoles(h.UploadNews,
		authx.RoleReporter, authx.RoleAdmin, authx.RoleSuperAdmin))
	mux.HandleFunc("PUT /api/v1/news/{id}", middleware.RequireRoles(h.EditNews,
		authx.RoleEditor, authx.RoleAdmin, authx.RoleSuperAdmin))
	mux.HandleFunc("PATCH /api/v1/news/{id}/verify", middleware.RequireRoles(h.VerifyNews,
		authx.RoleAdmin, authx.RoleSuperAdmin))
	mux.HandleFunc("DELETE /api/v1/news/{id}", middleware.RequireRoles(h.DeleteNews,
		authx.RoleAdmin, authx.RoleSuperAdmin))

	mux.HandleFunc("POST /api/v1/categories", middleware.RequireRoles(h.CreateCategory,
		authx.RoleAdmin, authx.RoleSuperAdmin))
	mux.HandleFunc("PUT /api/v1/categories/{id}", middleware.RequireRoles(h.UpdateCategory,
		authx.RoleAdmin, authx.RoleSuperAdmin))
	mux.HandleFunc("DELETE /api/v1/categories/{id}", middleware.RequireRoles(h.DeleteCategory,
		authx.RoleAdmin, authx.RoleSuperAdmin))

	// queries
	mux.HandleFunc("GET /api/v1/categories", h.GetCategories)
	mux.HandleFunc("GET /api/v1/categories/parents", h.GetParentCategories)
	mux.HandleFunc("GET /api/v1/categories/by-name", h.GetCategoryByName)
	mux.HandleFunc("GET /api/v1/categories/{id}", h.GetCategoryByID)

	mux.HandleFunc("GET /api/v1/news", h.GetAllNews)
	mux.HandleFunc("GET /api/v1/news/category/{categoryId}", h.GetCategoryNews)
	mux.HandleFunc("GET /api/v1/news/interests", h.GetNewsByInterests)
	mux.HandleFunc("GET /api/v1/admin/news", middleware.RequireRoles(h.GetNewsByStatus,
		authx.RoleAdmin, authx.RoleSuperAdmin))
	mux.HandleFunc("GET /api/v1/admin/news/system", middleware.RequireRoles(h.GetSystemGeneratedNews,
		authx.RoleAdmin, authx.RoleSuperAdmin))
	mux.HandleFunc("GET /api/v1/admin/news/{id}", middleware.RequireRoles(h.GetNewsByID,
		authx.RoleAdmin, authx.RoleSuperAdmin))
	mux.HandleFunc("GET /api/v1/admin/news/reporter/{reporterId}", middleware.RequireRoles(h.GetNewsByReporter,
		authx.RoleAdmin, authx.RoleSuperAdmin))
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
