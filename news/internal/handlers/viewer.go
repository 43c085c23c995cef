package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"

	"news-platform-backend/news/internal/models"
	"news-platform-backend/shared/cachex"
	"news-platform-backend/shared/httpx"
)

// Viewer endpoints are the hot read path: cache first, store on miss,
// repopulate with the family TTL.

func (h *Handlers) GetAllNews(w http.ResponseWriter, r *http.Request) {
	var cached []models.News
	if hit, err := h.cache.GetJSON(r.Context(), cachex.KeyAllNews, &cached); err == nil && hit {
		httpx.WriteSuccess(w, http.StatusOK, "All news fetched successfully", cached)
		return
	}

	items, err := h.news.FindPublished(r.Context())
	if err != nil {
		httpx.WriteError(w, r, http.StatusInternalServerError, "SERVER_ERROR", "failed to fetch news", nil)
		return
	}

	ttl := cachex.TTLNews
	if len(items) == 0 {
		ttl = cachex.TTLEmpty
	}
	if err := h.cache.SetJSON(r.Context(), cachex.KeyAllNews, items, ttl); err != nil {
		h.logger.Warn(r.Context(), "cache_set_failed", "failed to cache all news",
			slog.String("error", err.Error()),
		)
	}
	httpx.WriteSuccess(w, http.StatusOK, "All news fetched successfully", items)
}

func (h *Handlers) GetCategoryNews(w http.ResponseWriter, r *http.Request) {
	categoryID, ok := pathObjectID(w, r, "categoryId")
	if !ok {
		return
	}

	key := cachex.KeyCategoryNews(categoryID.Hex())
	var cached []models.News
	if hit, err := h.cache.GetJSON(r.Context(), key, &cached); err == nil && hit {
		httpx.WriteSuccess(w, http.StatusOK, "Category news fetched successfully", cached)
		return
	}

	categoryIDs, err := h.categories.DescendantIDs(r.Context(), []bson.ObjectID{categoryID})
	if err != nil {
		httpx.WriteError(w, r, http.StatusInternalServerError, "SERVER_ERROR", "failed to resolve category tree", nil)
		return
	}
	items, err := h.news.FindPublishedByCategories(r.Context(), categoryIDs)
	if err != nil {
		httpx.WriteError(w, r, http.StatusInternalServerError, "SERVER_ERROR", "failed to fetch category news", nil)
		return
	}

	ttl := cachex.TTLNews
	if len(items) == 0 {
		ttl = cachex.TTLEmpty
	}
	if err := h.cache.SetJSON(r.Context(), key, items, ttl); err != nil {
		h.logger.Warn(r.Context(), "cache_set_failed", "failed to cache category news",
			slog.String("error", err.Error()),
		)
	}
	httpx.WriteSuccess(w, http.StatusOK, "Category news fetched successfully", items)
}

// GetNewsByInterests expands every interest category to its subtree and
// returns published news across the union. The result is cached per user.
func (h *Handlers) GetNewsByInterests(w http.ResponseWriter, r *http.Request) {
	auth, ok := mustAuth(w, r)
	if !ok {
		return
	}

	raw := strings.TrimSpace(r.URL.Query().Get("categoryIds"))
	if raw == "" {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "no interest categories provided", nil)
		return
	}
	var roots []bson.ObjectID
	for _, part := range strings.Split(raw, ",") {
		id, err := bson.ObjectIDFromHex(strings.TrimSpace(part))
		if err != nil {
			continue
		}
		roots = append(roots, id)
	}
	if len(roots) == 0 {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "no valid interest categories provided", nil)
		return
	}

	key := cachex.KeyUserInterestNews(auth.UserID)
	var cached []models.News
	if hit, err := h.cache.GetJSON(r.Context(), key, &cached); err == nil && hit {
		httpx.WriteSuccess(w, http.StatusOK, "Interest news fetched successfully", cached)
		return
	}

	categoryIDs, err := h.categories.DescendantIDs(r.Context(), roots)
	if err != nil {
		httpx.WriteError(w, r, http.StatusInternalServerError, "SERVER_ERROR", "failed to resolve category trees", nil)
		return
	}
	items, err := h.news.FindPublishedByCategories(r.Context(), categoryIDs)
	if err != nil {
		httpx.WriteError(w, r, http.StatusInternalServerError, "SERVER_ERROR", "failed to fetch interest news", nil)
		return
	}

	ttl := cachex.TTLNews
	if len(items) == 0 {
		ttl = cachex.TTLEmpty
	}
	if err := h.cache.SetJSON(r.Context(), key, items, ttl); err != nil {
		h.logger.Warn(r.Context(), "cache_set_failed", "failed to cache interest news",
			slog.String("error", err.Error()),
		)
	}
	httpx.WriteSuccess(w, http.StatusOK, "Interest news fetched successfully", items)
}
