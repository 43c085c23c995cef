package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"news-platform-backend/shared/authx"
	"news-platform-backend/shared/events"
	"news-platform-backend/shared/httpx"
	"news-platform-backend/user/internal/identity"
	"news-platform-backend/user/internal/models"
	"news-platform-backend/user/internal/repos"
)

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Contact  string `json:"contact,omitempty"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Platform string `json:"platform,omitempty"`
}

type loginResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expiresAt"`
	User      *models.User `json:"user"`
}

func (h *Handlers) RegisterUser(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid request body", nil)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Name == "" || req.Email == "" || req.Password == "" {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "name, email and password are required", nil)
		return
	}
	if len(req.Password) < 8 {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "password must be at least 8 characters", nil)
		return
	}

	if _, err := h.users.FindByEmail(r.Context(), req.Email); err == nil {
		httpx.WriteError(w, r, http.StatusConflict, "FAILED_PRECONDITION", "user already exists", nil)
		return
	} else if !errors.Is(err, repos.ErrNotFound) {
		httpx.WriteError(w, r, http.StatusInternalServerError, "SERVER_ERROR", "failed to look up user", nil)
		return
	}

	hashed, err := h.hasher.Hash(req.Password)
	if err != nil {
		httpx.WriteError(w, r, http.StatusInternalServerError, "SERVER_ERROR", "failed to process credentials", nil)
		return
	}

	user, err := h.users.Create(r.Context(), models.User{
		Name:       req.Name,
		Email:      req.Email,
		Password:   hashed,
		Contact:    req.Contact,
		IsVerified: true,
		IsActive:   true,
		Role:       authx.RoleUser,
	})
	if err != nil {
		httpx.WriteError(w, r, http.StatusInternalServerError, "SERVER_ERROR", "failed to create user", nil)
		return
	}

	// the welcome mail is fire-and-forget; registration already succeeded
	if err := h.publisher.Publish(r.Context(), events.TopicEmailOutbound, events.KindSendEmail, events.SendEmailPayload{
		To:      user.Email,
		Subject: "Welcome to the platform",
		Body:    "Hi " + user.Name + ", your account has been created.",
	}); err != nil {
		h.logger.Warn(r.Context(), "publish_failed", "failed to publish welcome email",
			slog.String("error", err.Error()),
		)
	}

	httpx.WriteSuccess(w, http.StatusCreated, "User registered successfully", user)
}

func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid request body", nil)
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || req.Password == "" {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "email and password are required", nil)
		return
	}

	user, err := h.users.FindByEmail(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, repos.ErrNotFound) {
			httpx.WriteError(w, r, http.StatusUnauthorized, "UNAUTHENTICATED", "invalid email or password", nil)
			return
		}
		httpx.WriteError(w, r, http.StatusInternalServerError, "SERVER_ERROR", "failed to look up user", nil)
		return
	}
	if err := h.hasher.Compare(user.Password, req.Password); err != nil {
		if errors.Is(err, identity.ErrPasswordMismatch) {
			httpx.WriteError(w, r, http.StatusUnauthorized, "UNAUTHENTICATED", "invalid email or password", nil)
			return
		}
		httpx.WriteError(w, r, http.StatusInternalServerError, "SERVER_ERROR", "failed to verify credentials", nil)
		return
	}

	token, expiresAt, err := h.issuer.Issue(user.ID.Hex(), user.Email, user.Role)
	if err != nil {
		httpx.WriteError(w, r, http.StatusInternalServerError, "SERVER_ERROR", "failed to issue token", nil)
		return
	}

	// login state is the one user-document write that stays synchronous so
	// the response reflects it immediately
	if err := h.users.SetLoggedIn(r.Context(), user.ID, true); err != nil {
		httpx.WriteError(w, r, http.StatusInternalServerError, "SERVER_ERROR", "failed to update login state", nil)
		return
	}
	user.IsLoggedIn = true

	loginTime := time.Now().UTC()
	if err := h.publisher.Publish(r.Context(), events.TopicIdentityMutations, events.KindCreateDeviceToken, events.CreateDeviceTokenPayload{
		UserID:     user.ID.Hex(),
		LoginTime:  loginTime,
		IsLoggedIn: true,
		Platform:   req.Platform,
		IP:         requestIP(r),
	}); err != nil {
		h.logger.Warn(r.Context(), "publish_failed", "failed to publish device token event",
			slog.String("error", err.Error()),
		)
	}

	httpx.WriteSuccess(w, http.StatusOK, "Logged in successfully", loginResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		User:      user,
	})
}

func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	auth, ok := mustAuth(w, r)
	if !ok {
		return
	}
	userID, err := bson.ObjectIDFromHex(auth.UserID)
	if err != nil {
		httpx.WriteError(w, r, http.StatusUnauthorized, "UNAUTHENTICATED", "invalid subject", nil)
		return
	}

	token := authx.BearerToken(r.Header.Get("Authorization"))
	if token != "" {
		if err := h.blacklist.Insert(r.Context(), token, tokenExpiry(auth)); err != nil {
			httpx.WriteError(w, r, http.StatusInternalServerError, "SERVER_ERROR", "failed to revoke token", nil)
			return
		}
	}

	if err := h.users.SetLoggedIn(r.Context(), userID, false); err != nil && !errors.Is(err, repos.ErrNotFound) {
		httpx.WriteError(w, r, http.StatusInternalServerError, "SERVER_ERROR", "failed to update login state", nil)
		return
	}

	if err := h.publisher.Publish(r.Context(), events.TopicIdentityMutations, events.KindDeleteDeviceToken, events.DeleteDeviceTokenPayload{
		UserID: auth.UserID,
		IP:     requestIP(r),
	}); err != nil {
		h.logger.Warn(r.Context(), "publish_failed", "failed to publish device token event",
			slog.String("error", err.Error()),
		)
	}

	httpx.WriteSuccess(w, http.StatusOK, "Logged out successfully", nil)
}

func (h *Handlers) GetMe(w http.ResponseWriter, r *http.Request) {
	auth, ok := mustAuth(w, r)
	if !ok {
		return
	}
	userID, err := bson.ObjectIDFromHex(auth.UserID)
	if err != nil {
		httpx.WriteError(w, r, http.StatusUnauthorized, "UNAUTHENTICATED", "invalid subject", nil)
		return
	}
	user, err := h.users.FindByID(r.Context(), userID)
	if err != nil {
		if errors.Is(err, repos.ErrNotFound) {
			httpx.WriteError(w, r, http.StatusNotFound, "NOT_FOUND", "user not found", nil)
			return
		}
		httpx.WriteError(w, r, http.StatusInternalServerError, "SERVER_ERROR", "failed to load user", nil)
		return
	}
	httpx.WriteSuccess(w, http.StatusOK, "User fetched successfully", user)
}

// tokenExpiry recovers exp from the verified claims; the fallback keeps the
// blacklist entry alive at least as long as any token we could have minted.
func tokenExpiry(auth authx.AuthContext) time.Time {
	if v, ok := auth.Claims["exp"]; ok {
		switch exp := v.(type) {
		case float64:
			return time.Unix(int64(exp), 0)
		case int64:
			return time.Unix(exp, 0)
		}
	}
	return time.Now().Add(360 * time.Hour)
}
