package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"news-platform-backend/shared/cachex"
	"news-platform-backend/shared/events"
	"news-platform-backend/shared/httpx"
)

type createCategoryRequest struct {
	Name   string  `json:"name"`
	Parent *string `json:"parent"`
}

func (h *Handlers) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var req createCategoryRequest
	if err := decodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid request body", nil)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "name is required", nil)
		return
	}

	payload := events.CreateCategoryPayload{Name: req.Name, Parent: req.Parent}
	if err := h.publisher.Publish(r.Context(), events.TopicCategoryMutations, events.KindCreateCategory, payload); err != nil {
		h.logger.Error(r.Context(), "publish_failed", "failed to publish create-category",
			slog.String("error", err.Error()),
		)
		httpx.WriteError(w, r, http.StatusInternalServerError, "SERVER_ERROR", "error while publishing category event", nil)
		return
	}

	h.clearCategoryCache(r)
	httpx.WriteSuccess(w, http.StatusCreated, "Category creation request sent", nil)
}

type updateCategoryRequest struct {
	Name   string  `json:"name"`
	Parent *string `json:"parent"`
}

func (h *Handlers) UpdateCategory(w http.ResponseWriter, r *http.Request) {
	categoryID, ok := pathObjectID(w, r, "id")
	if !ok {
		return
	}
	var req updateCategoryRequest
	if err := decodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid request body", nil)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "name is required", nil)
		return
	}

	payload := events.UpdateCategoryPayload{
		CategoryID: categoryID.Hex(),
		Name:       req.Name,
		Parent:     req.Parent,
	}
	if err := h.publisher.Publish(r.Context(), events.TopicCategoryMutations, events.KindUpdateCategory, payload); err != nil {
		h.logger.Error(r.Context(), "publish_failed", "failed to publish update-category",
			slog.String("error", err.Error()),
		)
		httpx.WriteError(w, r, http.StatusInternalServerError, "SERVER_ERROR", "error while publishing category event", nil)
		return
	}

	h.clearCategoryCache(r)
	httpx.WriteSuccess(w, http.StatusOK, "Category update request sent", nil)
}

func (h *Handlers) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	categoryID, ok := pathObjectID(w, r, "id")
	if !ok {
		return
	}

	payload := events.DeleteCategoryPayload{CategoryID: categoryID.Hex()}
	if err := h.publisher.Publish(r.Context(), events.TopicCategoryMutations, events.KindDeleteCategory, payload); err != nil {
		h.logger.Error(r.Context(), "publish_failed", "failed to publish delete-category",
			slog.String("error", err.Error()),
		)
		httpx.WriteError(w, r, http.StatusInternalServerError, "SERVER_ERROR", "error while publishing category event", nil)
		return
	}

	h.clearCategoryCache(r)
	httpx.WriteSuccess(w, http.StatusOK, "Category deletion request sent", nil)
}

// clearCategoryCache drops derived category views right after a command is
// accepted. The consumer clears them again after the store write; the double
// eviction keeps the read path honest between accept and apply.
func (h *Handlers) clearCategoryCache(r *http.Request) {
	for _, family := range []string{cachex.FamilyCategories, cachex.FamilyParentCategories} {
		if _, err := h.cache.DeleteFamily(r.Context(), family); err != nil {
			h.logger.Warn(r.Context(), "cache_invalidate_failed", "failed to clear category cache",
				slog.String("pattern", family),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (h *Handlers) GetCategories(w http.ResponseWriter, r *http.Request) {
	var cached []map[string]any
	if hit, err := h.cache.GetJSON(r.Context(), cachex.KeyCategories, &cached); err == nil && hit {
		httpx.WriteSuccess(w, http.StatusOK, "Categories fetched successfully", cached)
		return
	}

	trees, err := h.categories.TreeAll(r.Context())
	if err != nil {
		httpx.WriteError(w, r, http.StatusInternalServerError, "SERVER_ERROR", "failed to fetch categories", nil)
		return
	}

	ttl := cachex.TTLCategories
	if len(trees) == 0 {
		ttl = cachex.TTLEmpty
	}
	if err := h.cache.SetJSON(r.Context(), cachex.KeyCategories, trees, ttl); err != nil {
		h.logger.Warn(r.Context(), "cache_set_failed", "failed to cache categories",
			slog.String("error", err.Error()),
		)
	}
	httpx.WriteSuccess(w, http.StatusOK, "Categories fetched successfully", trees)
}

func (h *Handlers) GetParentCategories(w http.ResponseWriter, r *http.Request) {
	var cached []map[string]any
	if hit, err := h.cache.GetJSON(r.Context(), cachex.KeyParentCategories, &cached); err == nil && hit {
		httpx.WriteSuccess(w, http.StatusOK, "Parent categories fetched successfully", cached)
		return
	}

	trees, err := h.categories.TreeParents(r.Context())
	if err != nil {
		httpx.WriteError(w, r, http.StatusInternalServerError, "SERVER_ERROR", "failed to fetch parent categories", nil)
		return
	}

	ttl := cachex.TTLCategories
	if len(trees) == 0 {
		ttl = cachex.TTLEmpty
	}
	if err := h.cache.SetJSON(r.Context(), cachex.KeyParentCategories, trees, ttl); err != nil {
		h.logger.Warn(r.Context(), "cache_set_failed", "failed to cache parent categories",
			slog.String("error", err.Error()),
		)
	}
	httpx.WriteSuccess(w, http.StatusOK, "Parent categories fetched successfully", trees)
}

func (h *Handlers) GetCategoryByName(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.URL.Query().Get("categoryName"))
	if name == "" {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "categoryName is required", nil)
		return
	}

	key := cachex.KeyCategory(name)
	var cached []map[string]any
	if hit, err := h.cache.GetJSON(r.Context(), key, &cached); err == nil && hit {
		httpx.WriteSuccess(w, http.StatusOK, "Category fetched successfully", cached)
		return
	}

	trees, err := h.categories.TreeByName(r.Context(), name)
	if err != nil {
		httpx.WriteError(w, r, http.StatusInternalServerError, "SERVER_ERROR", "failed to fetch category", nil)
		return
	}
	if len(trees) == 0 {
		_ = h.cache.SetJSON(r.Context(), key, trees, cachex.TTLEmpty)
		httpx.WriteError(w, r, http.StatusNotFound, "NOT_FOUND", "category not found", nil)
		return
	}

	if err := h.cache.SetJSON(r.Context(), key, trees, cachex.TTLCategories); err != nil {
		h.logger.Warn(r.Context(), "cache_set_failed", "failed to cache category",
			slog.String("error", err.Error()),
		)
	}
	httpx.WriteSuccess(w, http.StatusOK, "Category fetched successfully", trees)
}

func (h *Handlers) GetCategoryByID(w http.ResponseWriter, r *http.Request) {
	categoryID, ok := pathObjectID(w, r, "id")
	if !ok {
		return
	}

	key := cachex.KeyCategory(categoryID.Hex())
	var cached []map[string]any
	if hit, err := h.cache.GetJSON(r.Context(), key, &cached); err == nil && hit {
		httpx.WriteSuccess(w, http.StatusOK, "Category fetched successfully", cached)
		return
	}

	trees, err := h.categories.TreeByID(r.Context(), categoryID)
	if err != nil {
		httpx.WriteError(w, r, http.StatusInternalServerError, "SERVER_ERROR", "failed to fetch category", nil)
		return
	}
	if len(trees) == 0 {
		_ = h.cache.SetJSON(r.Context(), key, trees, cachex.TTLEmpty)
		httpx.WriteError(w, r, http.StatusNotFound, "NOT_FOUND", "category not found", nil)
		return
	}

	if err := h.cache.SetJSON(r.Context(), key, trees, cachex.TTLCategories); err != nil {
		h.logger.Warn(r.Context(), "cache_set_failed", "failed to cache category",
			slog.String("error", err.Error()),
		)
	}
	httpx.WriteSuccess(w, http.StatusOK, "Category fetched successfully", trees)
}
