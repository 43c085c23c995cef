package handlers

import (
	"errors"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"news-platform-backend/shared/authx"
	"news-platform-backend/shared/cachex"
	"news-platform-backend/shared/events"
	"news-platform-backend/shared/httpx"
	"news-platform-backend/user/internal/models"
	"news-platform-backend/user/internal/repos"
)

const maxDocumentBytes = 32 << 20

func (h *Handlers) CreateApplication(w http.ResponseWriter, r *http.Request) {
	auth, ok := mustAuth(w, r)
	if !ok {
		return
	}
	if auth.HasAnyRole(authx.RoleReporter, authx.RoleEditor, authx.RoleAdmin, authx.RoleSuperAdmin) {
		httpx.WriteError(w, r, http.StatusConflict, "FAILED_PRECONDITION", "you are already a reporter", nil)
		return
	}
	reporterID, err := objectIDFromAuth(auth)
	if err != nil {
		httpx.WriteError(w, r, http.StatusUnauthorized, "UNAUTHENTICATED", "invalid subject", nil)
		return
	}

	if _, err := h.applications.FindPendingByReporter(r.Context(), reporterID); err == nil {
		httpx.WriteError(w, r, http.StatusConflict, "FAILED_PRECONDITION", "you already have a pending application", nil)
		return
	} else if !errors.Is(err, repos.ErrNotFound) {
		httpx.WriteError(w, r, http.StatusInternalServerError, "SERVER_ERROR", "failed to check existing applications", nil)
		return
	}

	if err := r.ParseMultipartForm(maxDocumentBytes); err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "expected multipart form", nil)
		return
	}
	bio := strings.TrimSpace(r.FormValue("bio"))
	organization := strings.TrimSpace(r.FormValue("organization"))
	if bio == "" {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "bio is required", nil)
		return
	}
	files := r.MultipartForm.File["documents"]
	if len(files) == 0 {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "please upload the supporting documents", nil)
		return
	}
	documents, err := h.uploadDocuments(r, files)
	if err != nil {
		httpx.WriteError(w, r, http.StatusInternalServerError, "SERVER_ERROR", "failed to store uploaded documents", nil)
		return
	}

	payload := events.ApplicationCreatedPayload{
		ReporterID:   auth.UserID,
		Bio:          bio,
		Organization: organization,
		Status:       models.ApplicationPending,
		CreatedAt:    time.Now().UTC(),
		Documents:    documents,
	}
	if err := h.publisher.Publish(r.Context(), events.TopicApplicationMutations, events.KindApplicationCreated, payload); err != nil {
		h.logger.Error(r.Context(), "publish_failed", "failed to publish application-created",
			slog.String("error", err.Error()),
		)
		httpx.WriteError(w, r, http.StatusInternalServerError, "SERVER_ERROR", "error while publishing application event", nil)
		return
	}
	h.clearApplicationCache(r, auth.UserID)

	httpx.WriteSuccess(w, http.StatusCreated, "Application submitted successfully", nil)
}

func (h *Handlers) UpdateApplication(w http.ResponseWriter, r *http.Request) {
	auth, ok := mustAuth(w, r)
	if !ok {
		return
	}
	applicationID, ok := pathObjectID(w, r, "id")
	if !ok {
		return
	}

	current, err := h.applications.FindByID(r.Context(), applicationID)
	if err != nil {
		if errors.Is(err, repos.ErrNotFound) {
			httpx.WriteError(w, r, http.StatusNotFound, "NOT_FOUND", "application not found", nil)
			return
		}
		httpx.WriteError(w, r, http.StatusInternalServerError, "SERVER_ERROR", "failed to load application", nil)
		return
	}
	if current.ReporterID.Hex() != auth.UserID && !auth.HasAnyRole(authx.RoleAdmin, authx.RoleSuperAdmin) {
		httpx.WriteError(w, r, http.StatusForbidden, "PERMISSION_DENIED", "you are not allowed to perform this action", nil)
		return
	}

	var (
		bio, organization string
		documents         []string
	)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		if err := r.ParseMultipartForm(maxDocumentBytes); err != nil {
			httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "expected multipart form", nil)
			return
		}
		bio = strings.TrimSpace(r.FormValue("bio"))
		organization = strings.TrimSpace(r.FormValue("organization"))
		if files := r.MultipartForm.File["documents"]; len(files) > 0 {
			documents, err = h.uploadDocuments(r, files)
			if err != nil {
				httpx.WriteError(w, r, http.StatusInternalServerError, "SERVER_ERROR", "failed to store uploaded documents", nil)
				return
			}
		}
	} else {
		var req struct {
			Bio          string `json:"bio"`
			Organization string `json:"organization"`
		}
		if err := decodeJSON(r, &req); err != nil {
			httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid request body", nil)
			return
		}
		bio = strings.TrimSpace(req.Bio)
		organization = strings.TrimSpace(req.Organization)
	}
	if bio == "" {
		bio = current.Bio
	}
	if organization == "" {
		organization = current.Organization
	}

	payload := events.ApplicationUpdatedPayload{
		ApplicationID: applicationID.Hex(),
		ReporterID:    current.ReporterID.Hex(),
		Bio:           bio,
		Organization:  organization,
		Status:        models.ApplicationPending,
		Documents:     documents,
	}
	if err := h.publisher.Publish(r.Context(), events.TopicApplicationMutations, events.KindApplicationUpdated, payload); err != nil {
		h.logger.Error(r.Context(), "publish_failed", "failed to publish application-updated",
			slog.String("error", err.Error()),
		)
		httpx.WriteError(w, r, http.StatusInternalServerError, "SERVER_ERROR", "error while publishing application event", nil)
		return
	}
	h.clearApplicationCache(r, current.ReporterID.Hex())

	httpx.WriteSuccess(w, http.StatusOK, "Application updated successfully", nil)
}

func (h *Handlers) VerifyApplication(w http.ResponseWriter, r *http.Request) {
	auth, ok := mustAuth(w, r)
	if !ok {
		return
	}
	applicationID, ok := pathObjectID(w, r, "id")
	if !ok {
		return
	}

	var req struct {
		Status  string `json:"status"`
		Message string `json:"message,omitempty"`
	}
	if err := decodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid request body", nil)
		return
	}
	if req.Status != models.ApplicationAccepted && req.Status != models.ApplicationRejected {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "status must be accepted or rejected", nil)
		return
	}

	current, err := h.applications.FindByID(r.Context(), applicationID)
	if err != nil {
		if errors.Is(err, repos.ErrNotFound) {
			httpx.WriteError(w, r, http.StatusNotFound, "NOT_FOUND", "application not found", nil)
			return
		}
		httpx.WriteError(w, r, http.StatusInternalServerError, "SERVER_ERROR", "failed to load application", nil)
		return
	}
	if current.Status != models.ApplicationPending {
		httpx.WriteError(w, r, http.StatusConflict, "FAILED_PRECONDITION", "application has already been verified", nil)
		return
	}

	var email string
	if reporter, err := h.users.FindByID(r.Context(), current.ReporterID); err == nil {
		email = reporter.Email
	}

	kind := events.KindApplicationVerified
	if req.Status == models.ApplicationRejected {
		kind = events.KindApplicationRejected
	}
	payload := events.ApplicationVerifiedPayload{
		ApplicationID: applicationID.Hex(),
		VerifiedBy:    auth.UserID,
		Status:        req.Status,
		Message:       strings.TrimSpace(req.Message),
		ReporterID:    current.ReporterID.Hex(),
		Email:         email,
	}
	if err := h.publisher.Publish(r.Context(), events.TopicApplicationMutations, kind, payload); err != nil {
		h.logger.Error(r.Context(), "publish_failed", "failed to publish application verdict",
			slog.String("error", err.Error()),
		)
		httpx.WriteError(w, r, http.StatusInternalServerError, "SERVER_ERROR", "error while publishing application event", nil)
		return
	}
	h.clearApplicationCache(r, current.ReporterID.Hex())

	httpx.WriteSuccess(w, http.StatusOK, "Application verified successfully", nil)
}

func (h *Handlers) DeleteApplication(w http.ResponseWriter, r *http.Request) {
	if _, ok := mustAuth(w, r); !ok {
		return
	}
	applicationID, ok := pathObjectID(w, r, "id")
	if !ok {
		return
	}

	current, err := h.applications.FindByID(r.Context(), applicationID)
	if err != nil {
		if errors.Is(err, repos.ErrNotFound) {
			httpx.WriteError(w, r, http.StatusNotFound, "NOT_FOUND", "application not found", nil)
			return
		}
		httpx.WriteError(w, r, http.StatusInternalServerError, "SERVER_ERROR", "failed to load application", nil)
		return
	}

	payload := events.ApplicationDeletedPayload{
		ApplicationID: applicationID.Hex(),
		ReporterID:    current.ReporterID.Hex(),
	}
	if err := h.publisher.Publish(r.Context(), events.TopicApplicationMutations, events.KindApplicationDeleted, payload); err != nil {
		h.logger.Error(r.Context(), "publish_failed", "failed to publish application-deleted",
			slog.String("error", err.Error()),
		)
		httpx.WriteError(w, r, http.StatusInternalServerError, "SERVER_ERROR", "error while publishing application event", nil)
		return
	}
	h.clearApplicationCache(r, current.ReporterID.Hex())

	httpx.WriteSuccess(w, http.StatusOK, "Application deleted successfully", nil)
}

func (h *Handlers) GetMyApplications(w http.ResponseWriter, r *http.Request) {
	auth, ok := mustAuth(w, r)
	if !ok {
		return
	}
	reporterID, err := objectIDFromAuth(auth)
	if err != nil {
		httpx.WriteError(w, r, http.StatusUnauthorized, "UNAUTHENTICATED", "invalid subject", nil)
		return
	}

	key := cachex.KeyUserApplications(auth.UserID)
	var cached []models.Application
	if hit, err := h.cache.GetJSON(r.Context(), key, &cached); err == nil && hit {
		httpx.WriteSuccess(w, http.StatusOK, "Applications fetched successfully", cached)
		return
	}

	apps, err := h.applications.FindByReporter(r.Context(), reporterID)
	if err != nil {
		httpx.WriteError(w, r, http.StatusInternalServerError, "SERVER_ERROR", "failed to load applications", nil)
		return
	}
	h.cacheApplications(r, key, apps)

	httpx.WriteSuccess(w, http.StatusOK, "Applications fetched successfully", apps)
}

// GetApplications serves the admin list; ?status= narrows to one status.
func (h *Handlers) GetApplications(w http.ResponseWriter, r *http.Request) {
	status := strings.TrimSpace(r.URL.Query().Get("status"))
	if status != "" && !models.ValidApplicationStatus(status) {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid application status", nil)
		return
	}

	key := cachex.KeyApplicationsAll
	if status != "" {
		key = cachex.KeyApplicationsByStatus(status)
	}
	var cached []models.Application
	if hit, err := h.cache.GetJSON(r.Context(), key, &cached); err == nil && hit {
		httpx.WriteSuccess(w, http.StatusOK, "Applications fetched successfully", cached)
		return
	}

	var (
		apps []models.Application
		err  error
	)
	if status == "" {
		apps, err = h.applications.FindAll(r.Context())
	} else {
		apps, err = h.applications.FindByStatus(r.Context(), status)
	}
	if err != nil {
		httpx.WriteError(w, r, http.StatusInternalServerError, "SERVER_ERROR", "failed to load applications", nil)
		return
	}
	h.cacheApplications(r, key, apps)

	httpx.WriteSuccess(w, http.StatusOK, "Applications fetched successfully", apps)
}

func (h *Handlers) GetApplicationByID(w http.ResponseWriter, r *http.Request) {
	applicationID, ok := pathObjectID(w, r, "id")
	if !ok {
		return
	}

	key := cachex.KeyApplication(applicationID.Hex())
	var cached models.Application
	if hit, err := h.cache.GetJSON(r.Context(), key, &cached); err == nil && hit {
		httpx.WriteSuccess(w, http.StatusOK, "Application fetched successfully", cached)
		return
	}

	app, err := h.applications.FindByID(r.Context(), applicationID)
	if err != nil {
		if errors.Is(err, repos.ErrNotFound) {
			httpx.WriteError(w, r, http.StatusNotFound, "NOT_FOUND", "application not found", nil)
			return
		}
		httpx.WriteError(w, r, http.StatusInternalServerError, "SERVER_ERROR", "failed to load application", nil)
		return
	}
	if err := h.cache.SetJSON(r.Context(), key, app, cachex.TTLApplications); err != nil {
		h.logger.Warn(r.Context(), "cache_set_failed", "failed to cache application",
			slog.String("error", err.Error()),
		)
	}

	httpx.WriteSuccess(w, http.StatusOK, "Application fetched successfully", app)
}

func objectIDFromAuth(auth authx.AuthContext) (bson.ObjectID, error) {
	return bson.ObjectIDFromHex(auth.UserID)
}

// clearApplicationCache evicts both application families after a command is
// accepted; the consumer evicts again after the store write lands.
func (h *Handlers) clearApplicationCache(r *http.Request, reporterID string) {
	for _, pattern := range []string{cachex.FamilyApplications, cachex.FamilyUserApplications} {
		if _, err := h.cache.DeleteFamily(r.Context(), pattern); err != nil {
			h.logger.Warn(r.Context(), "cache_clear_failed", "failed to clear application cache",
				slog.String("pattern", pattern),
				slog.String("error", err.Error()),
			)
		}
	}
	if reporterID != "" {
		if err := h.cache.Delete(r.Context(), cachex.KeyUserApplications(reporterID)); err != nil {
			h.logger.Warn(r.Context(), "cache_clear_failed", "failed to clear reporter application cache",
				slog.String("error", err.Error()),
			)
		}
	}
}

func (h *Handlers) cacheApplications(r *http.Request, key string, apps []models.Application) {
	ttl := cachex.TTLApplications
	if len(apps) == 0 {
		ttl = cachex.TTLEmpty
	}
	if err := h.cache.SetJSON(r.Context(), key, apps, ttl); err != nil {
		h.logger.Warn(r.Context(), "cache_set_failed", "failed to cache applications",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
}

func (h *Handlers) uploadDocuments(r *http.Request, files []*multipart.FileHeader) ([]string, error) {
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
