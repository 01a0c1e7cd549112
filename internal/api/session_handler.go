package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/mail"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/markoval/stylist-api/internal/api/shared"
	"github.com/markoval/stylist-api/internal/domain"
	"github.com/markoval/stylist-api/internal/service"
)

// SessionManager is the slice of the entitlement service the session
// endpoints need.
type SessionManager interface {
	Get(ctx context.Context, email string) (*domain.Entitlement, error)
	IsValid(ctx context.Context, email string) (bool, error)
	AvailableStyles(ctx context.Context, email string) (map[domain.Style]bool, error)
	UpdateContext(ctx context.Context, email string, targetURL, occasionNote *string) error
	Delete(ctx context.Context, email string) error
}

// SessionCheckResponse reports whether the email holds a live session.
type SessionCheckResponse struct {
	Active    bool      `json:"active"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// UpdateContextRequest is the partial session context update. Absent
// fields are left untouched; an explicit empty string clears the field.
type UpdateContextRequest struct {
	TargetURL    *string `json:"target_url"`
	OccasionNote *string `json:"occasion_note"`
}

// SessionHandler serves the session inspection and management endpoints.
type SessionHandler struct {
	sessions SessionManager
	logger   *slog.Logger
}

// NewSessionHandler creates the handler.
func NewSessionHandler(sessions SessionManager, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{
		sessions: sessions,
		logger:   logger.With("handler", "session"),
	}
}

// Check handles GET /api/session/check/{email}. Looking at an expired
// session deletes it, so the answer is authoritative, not advisory.
func (h *SessionHandler) Check(w http.ResponseWriter, r *http.Request) {
	email, ok := emailParam(w, r)
	if !ok {
		return
	}

	valid, err := h.sessions.IsValid(r.Context(), email)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError, "failed to check session", err)
		return
	}
	if !valid {
		shared.RespondWithJSON(w, r, http.StatusOK, SessionCheckResponse{Active: false})
		return
	}

	entitlement, err := h.sessions.Get(r.Context(), email)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError, "failed to check session", err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, SessionCheckResponse{
		Active:    true,
		ExpiresAt: entitlement.ExpiresAt(),
	})
}

// Styles handles GET /api/session/styles/{email}.
func (h *SessionHandler) Styles(w http.ResponseWriter, r *http.Request) {
	email, ok := emailParam(w, r)
	if !ok {
		return
	}

	styles, err := h.sessions.AvailableStyles(r.Context(), email)
	if err != nil {
		if errors.Is(err, service.ErrNotEntitled) {
			shared.RespondWithError(w, r, http.StatusForbidden, "no active session for this email")
			return
		}
		shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError, "failed to read styles", err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, map[string]any{"styles": styles})
}

// UpdateContext handles POST /api/session/update/{email}.
func (h *SessionHandler) UpdateContext(w http.ResponseWriter, r *http.Request) {
	email, ok := emailParam(w, r)
	if !ok {
		return
	}

	var req UpdateContextRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "invalid request format")
		return
	}
	if req.TargetURL == nil && req.OccasionNote == nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "nothing to update")
		return
	}

	if err := h.sessions.UpdateContext(r.Context(), email, req.TargetURL, req.OccasionNote); err != nil {
		if errors.Is(err, service.ErrNotEntitled) {
			shared.RespondWithError(w, r, http.StatusForbidden, "no active session for this email")
			return
		}
		shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError, "failed to update session", err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, map[string]string{"status": "updated"})
}

// Delete handles DELETE /api/session/{email}. Deleting a session that
// does not exist succeeds.
func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	email, ok := emailParam(w, r)
	if !ok {
		return
	}

	if err := h.sessions.Delete(r.Context(), email); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError, "failed to delete session", err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, map[string]string{"status": "deleted"})
}

// emailParam extracts and validates the {email} path parameter.
func emailParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	email := chi.URLParam(r, "email")
	if _, err := mail.ParseAddress(email); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "invalid email")
		return "", false
	}
	return email, true
}
