package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/markoval/stylist-api/internal/api/shared"
	"github.com/markoval/stylist-api/internal/params"
)

// ParamStore is the slice of the parameter store the admin endpoints
// need.
type ParamStore interface {
	Get(ctx context.Context, name string) (string, error)
	Set(ctx context.Context, name, value string) error
	History(ctx context.Context, name string) ([]params.HistoryEntry, error)
}

// SetParamRequest is the body for updating a parameter.
type SetParamRequest struct {
	Value string `json:"value" validate:"required"`
}

// ParamsHandler serves the operator endpoints for dynamic parameters.
// Secret-bearing parameters are never echoed back.
type ParamsHandler struct {
	store  ParamStore
	logger *slog.Logger
}

// NewParamsHandler creates the handler.
func NewParamsHandler(store ParamStore, logger *slog.Logger) *ParamsHandler {
	return &ParamsHandler{
		store:  store,
		logger: logger.With("handler", "params"),
	}
}

// secretParams are readable only as "set"/"unset".
var secretParams = map[string]bool{
	params.NameAPIKey: true,
}

// Get handles GET /api/admin/params/{name}.
func (h *ParamsHandler) Get(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	value, err := h.store.Get(r.Context(), name)
	if err != nil {
		h.respondParamError(w, r, err)
		return
	}

	if secretParams[name] {
		state := "unset"
		if value != "" {
			state = "set"
		}
		shared.RespondWithJSON(w, r, http.StatusOK, map[string]string{"name": name, "state": state})
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, map[string]string{"name": name, "value": value})
}

// Set handles PUT /api/admin/params/{name}.
func (h *ParamsHandler) Set(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var req SetParamRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "invalid request format")
		return
	}
	if err := shared.ValidateRequest(&req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "validation error: "+err.Error())
		return
	}

	if err := h.store.Set(r.Context(), name, req.Value); err != nil {
		h.respondParamError(w, r, err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, map[string]string{"status": "updated"})
}

// History handles GET /api/admin/params/{name}/history.
func (h *ParamsHandler) History(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if secretParams[name] {
		shared.RespondWithError(w, r, http.StatusForbidden, "history is not available for secret parameters")
		return
	}

	entries, err := h.store.History(r.Context(), name)
	if err != nil {
		h.respondParamError(w, r, err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, map[string]any{"name": name, "history": entries})
}

func (h *ParamsHandler) respondParamError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, params.ErrUnknownParam) {
		shared.RespondWithError(w, r, http.StatusNotFound, "unknown parameter")
		return
	}
	if errors.Is(err, params.ErrInvalidValue) {
		shared.RespondWithError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError, "parameter operation failed", err)
}
