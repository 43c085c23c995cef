package handlers

import (
	"errors"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"

	"news-platform-backend/news/internal/models"
	"news-platform-backend/news/internal/repos"
	"news-platform-backend/shared/events"
	"news-platform-backend/shared/httpx"
)

const maxUploadBytes = 32 << 20

func (h *Handlers) UploadNews(w http.ResponseWriter, r *http.Request) {
	auth, ok := mustAuth(w, r)
	if !ok {
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "expected multipart form", nil)
		return
	}

	title := strings.TrimSpace(r.FormValue("title"))
	content := strings.TrimSpace(r.FormValue("content"))
	category := strings.TrimSpace(r.FormValue("category"))
	language := strings.TrimSpace(r.FormValue("language"))
	location := strings.TrimSpace(r.FormValue("location"))
	tags := splitTags(r.FormValue("tags"))

	if len(title) < 5 || len(title) > 200 {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "title must be between 5 and 200 characters", nil)
		return
	}
	if content == "" || category == "" || language == "" {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "content, category and language are required", nil)
		return
	}

	files := r.MultipartForm.File["images"]
	if len(files) == 0 {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "please upload the related images", nil)
		return
	}
	imageURLs, err := h.uploadImages(r, files)
	if err != nil {
		httpx.WriteError(w, r, http.StatusInternalServerError, "SERVER_ERROR", "failed to store uploaded images", nil)
		return
	}

	payload := events.UploadNewsPayload{
		Title:      title,
		Content:    content,
		CategoryID: category,
		Language:   language,
		Tags:       tags,
		Location:   location,
		ReportedBy: auth.UserID,
		ImageURLs:  imageURLs,
	}
	if err := h.publisher.Publish(r.Context(), events.TopicContentMutations, events.KindUploadNews, payload); err != nil {
		h.logger.Error(r.Context(), "publish_failed", "failed to publish upload-news",
			slog.String("error", err.Error()),
		)
		httpx.WriteError(w, r, http.StatusInternalServerError, "SERVER_ERROR", "error while publishing news event", nil)
		return
	}

	httpx.WriteSuccess(w, http.StatusCreated, "News uploaded successfully", nil)
}

func (h *Handlers) EditNews(w http.ResponseWriter, r *http.Request) {
	auth, ok := mustAuth(w, r)
	if !ok {
		return
	}
	newsID, ok := pathObjectID(w, r, "id")
	if !ok {
		return
	}

	current, err := h.news.FindByID(r.Context(), newsID)
	if err != nil {
		if errors.Is(err, repos.ErrNotFound) {
			httpx.WriteError(w, r, http.StatusNotFound, "NOT_FOUND", "news not found", nil)
			return
		}
		httpx.WriteError(w, r, http.StatusInternalServerError, "SERVER_ERROR", "failed to load news", nil)
		return
	}

	var (
		title, content, category, language, location string
		tags, imageURLs                              []string
		isFake                                       *bool
	)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "expected multipart form", nil)
			return
		}
		title = strings.TrimSpace(r.FormValue("title"))
		content = strings.TrimSpace(r.FormValue("content"))
		category = strings.TrimSpace(r.FormValue("category"))
		language = strings.TrimSpace(r.FormValue("language"))
		location = strings.TrimSpace(r.FormValue("location"))
		tags = splitTags(r.FormValue("tags"))
		if v := strings.TrimSpace(r.FormValue("isFake")); v != "" {
			fake := v == "true" || v == "1"
			isFake = &fake
		}
		if files := r.MultipartForm.File["images"]; len(files) > 0 {
			imageURLs, err = h.uploadImages(r, files)
			if err != nil {
				httpx.WriteError(w, r, http.StatusInternalServerError, "SERVER_ERROR", "failed to store uploaded images", nil)
				return
			}
		}
	} else {
		var req struct {
			Title    string   `json:"title"`
			Content  string   `json:"content"`
			Category string   `json:"category"`
			Language string   `json:"language"`
			Tags     []string `json:"tags"`
			Location string   `json:"location"`
			IsFake   *bool    `json:"isFake"`
		}
		if err := decodeJSON(r, &req); err != nil {
			httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid request body", nil)
			return
		}
		title, content, category = req.Title, req.Content, req.Category
		language, location, tags = req.Language, req.Location, req.Tags
		isFake = req.IsFake
	}

	// Fields left unset fall back to the stored row so the event is
	// self-contained.
	payload := events.UpdateNewsPayload{
		NewsID:     newsID.Hex(),
		Title:      fallback(title, current.Title),
		Content:    fallback(content, current.Content),
		CategoryID: fallback(category, current.CategoryID.Hex()),
		Language:   fallback(language, current.Language),
		Tags:       current.Tags,
		Location:   fallback(location, current.Location),
		EditedBy:   auth.UserID,
		IsFake:     current.IsFake,
		ImageURLs:  imageURLs,
	}
	if len(tags) > 0 {
		payload.Tags = tags
	}
	if isFake != nil {
		payload.IsFake = *isFake
	}

	if err := h.publisher.Publish(r.Context(), events.TopicContentMutations, events.KindUpdateNews, payload); err != nil {
		h.logger.Error(r.Context(), "publish_failed", "failed to publish update-news",
			slog.String("error", err.Error()),
		)
		httpx.WriteError(w, r, http.StatusInternalServerError, "SERVER_ERROR", "error while publishing news event", nil)
		return
	}

	httpx.WriteSuccess(w, http.StatusOK, "News edited successfully", nil)
}

func (h *Handlers) VerifyNews(w http.ResponseWriter, r *http.Request) {
	auth, ok := mustAuth(w, r)
	if !ok {
		return
	}
	newsID, ok := pathObjectID(w, r, "id")
	if !ok {
		return
	}

	var req struct {
		Status string `json:"status"`
	}
	if err := decodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid request body", nil)
		return
	}
	if !models.ValidStatus(req.Status) {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid status", nil)
		return
	}

	if _, err := h.news.FindByID(r.Context(), newsID); err != nil {
		if errors.Is(err, repos.ErrNotFound) {
			httpx.WriteError(w, r, http.StatusNotFound, "NOT_FOUND", "news not found", nil)
			return
		}
		httpx.WriteError(w, r, http.StatusInternalServerError, "SERVER_ERROR", "failed to load news", nil)
		return
	}

	payload := events.VerifyNewsPayload{
		NewsID:     newsID.Hex(),
		Status:     req.Status,
		VerifiedBy: auth.UserID,
	}
	if err := h.publisher.Publish(r.Context(), events.TopicContentMutations, events.KindVerifyNews, payload); err != nil {
		h.logger.Error(r.Context(), "publish_failed", "failed to publish verify-news",
			slog.String("error", err.Error()),
		)
		httpx.WriteError(w, r, http.StatusInternalServerError, "SERVER_ERROR", "error while publishing news event", nil)
		return
	}

	httpx.WriteSuccess(w, http.StatusOK, "News verified successfully", nil)
}

func (h *Handlers) DeleteNews(w http.ResponseWriter, r *http.Request) {
	newsID, ok := pathObjectID(w, r, "id")
	if !ok {
		return
	}

	if _, err := h.news.FindByID(r.Context(), newsID); err != nil {
		if errors.Is(err, repos.ErrNotFound) {
			httpx.WriteError(w, r, http.StatusNotFound, "NOT_FOUND", "news not found", nil)
			return
		}
		httpx.WriteError(w, r, http.StatusInternalServerError, "SERVER_ERROR", "failed to load news", nil)
		return
	}

	payload := events.DeleteNewsPayload{NewsID: newsID.Hex()}
	if err := h.publisher.Publish(r.Context(), events.TopicContentMutations, events.KindDeleteNews, payload); err != nil {
		h.logger.Error(r.Context(), "publish_failed", "failed to publish delete-news",
			slog.String("error", err.Error()),
		)
		httpx.WriteError(w, r, http.StatusInternalServerError, "SERVER_ERROR", "error while publishing news event", nil)
		return
	}

	httpx.WriteSuccess(w, http.StatusOK, "News deleted successfully", nil)
}

func (h *Handlers) GetNewsByStatus(w http.ResponseWriter, r *http.Request) {
	status := strings.TrimSpace(r.URL.Query().Get("status"))

	var (
		items []models.News
		err   error
	)
	if status != "" {
		if !models.ValidStatus(status) {
			httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid status", nil)
			return
		}
		items, err = h.news.FindByStatus(r.Context(), status)
	} else {
		items, err = h.news.FindAll(r.Context())
	}
	if err != nil {
		httpx.WriteError(w, r, http.StatusInternalServerError, "SERVER_ERROR", "failed to fetch news", nil)
		return
	}
	httpx.WriteSuccess(w, http.StatusOK, "News fetched successfully", items)
}

func (h *Handlers) GetSystemGeneratedNews(w http.ResponseWriter, r *http.Request) {
	items, err := h.news.FindSystemGenerated(r.Context())
	if err != nil {
		httpx.WriteError(w, r, http.StatusInternalServerError, "SERVER_ERROR", "failed to fetch news", nil)
		return
	}
	httpx.WriteSuccess(w, http.StatusOK, "News fetched successfully", items)
}

func (h *Handlers) GetNewsByID(w http.ResponseWriter, r *http.Request) {
	newsID, ok := pathObjectID(w, r, "id")
	if !ok {
		return
	}
	item, err := h.news.FindByID(r.Context(), newsID)
	if err != nil {
		if errors.Is(err, repos.ErrNotFound) {
			httpx.WriteError(w, r, http.StatusNotFound, "NOT_FOUND", "news not found", nil)
			return
		}
		httpx.WriteError(w, r, http.StatusInternalServerError, "SERVER_ERROR", "failed to fetch news", nil)
		return
	}
	httpx.WriteSuccess(w, http.StatusOK, "News fetched successfully", item)
}

func (h *Handlers) GetNewsByReporter(w http.ResponseWriter, r *http.Request) {
	reporterID, ok := pathObjectID(w, r, "reporterId")
	if !ok {
		return
	}
	items, err := h.news.FindByReporter(r.Context(), reporterID)
	if err != nil {
		httpx.WriteError(w, r, http.StatusInternalServerError, "SERVER_ERROR", "failed to fetch news", nil)
		return
	}
	httpx.WriteSuccess(w, http.StatusOK, "News fetched successfully", items)
}

func (h *Handlers) uploadImages(r *http.Request, files []*multipart.FileHeader) ([]string, error) {
	urls := make([]string, 0, len(files))
	for _, header := range files {
		f, err := header.Open()
		if err != nil {
			return nil, err
		}
		url, err := h.uploader.Upload(r.Context(), header.Filename, header.Header.Get("Content-Type"), f)
		f.Close()
		if err != nil {
			return nil, err
		}
		urls = append(urls, url)
	}
	return urls, nil
}

func splitTags(raw string) []string {
	var tags []string
	for _, tag := range strings.Split(raw, ",") {
		tag = strings.TrimSpace(tag)
		if tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}

func fallback(value string, current string) string {
	if strings.TrimSpace(value) == "" {
		return current
	}
	return value
}
