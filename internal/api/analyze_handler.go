package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/markoval/stylist-api/internal/analyzer"
	"github.com/markoval/stylist-api/internal/api/shared"
	"github.com/markoval/stylist-api/internal/domain"
	"github.com/markoval/stylist-api/internal/task"
)

// EntitlementChecker is the slice of the entitlement service the
// analysis endpoints need.
type EntitlementChecker interface {
	Check(ctx context.Context, email string, style domain.Style) (*domain.Entitlement, error)
	CompleteAfterAnalysis(ctx context.Context, email string, style domain.Style, artifact domain.ParsedArtifact, freshParse bool) (bool, error)
}

// SiteAnalyzer runs the analysis pipeline synchronously.
type SiteAnalyzer interface {
	Analyze(ctx context.Context, url string, style domain.Style, occasion string, useCache bool, cachedSteps string) (*analyzer.Result, error)
}

// AnalyzeRequest is the request body for both analysis endpoints.
type AnalyzeRequest struct {
	Email    string `json:"email"    validate:"required,email"`
	URL      string `json:"url"      validate:"required,url"`
	Style    string `json:"style"    validate:"required"`
	Occasion string `json:"occasion"`
	UseCache *bool  `json:"use_cache"`
}

func (req *AnalyzeRequest) useCache() bool {
	return req.UseCache == nil || *req.UseCache
}

// AnalyzeAcceptedResponse is returned when a background task is queued.
type AnalyzeAcceptedResponse struct {
	TaskID string `json:"task_id"`
	Status string `json:"status"`
}

// AnalyzeResultResponse is the synchronous analysis result.
type AnalyzeResultResponse struct {
	Publication  string `json:"publication"`
	Steps        string `json:"intermediate_steps"`
	FromCache    bool   `json:"from_cache"`
	SessionEnded bool   `json:"session_ended"`
}

// TaskStatusResponse reports the state of a background task.
type TaskStatusResponse struct {
	TaskID    string    `json:"task_id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	Result    any       `json:"result,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// AnalyzeHandler serves the analysis endpoints: queued, synchronous and
// task status.
type AnalyzeHandler struct {
	entitlements EntitlementChecker
	analyzer     SiteAnalyzer
	queue        task.Queue
	taskTimeout  time.Duration
	logger       *slog.Logger
}

// NewAnalyzeHandler creates the handler.
func NewAnalyzeHandler(entitlements EntitlementChecker, siteAnalyzer SiteAnalyzer, queue task.Queue, taskTimeout time.Duration, logger *slog.Logger) *AnalyzeHandler {
	return &AnalyzeHandler{
		entitlements: entitlements,
		analyzer:     siteAnalyzer,
		queue:        queue,
		taskTimeout:  taskTimeout,
		logger:       logger.With("handler", "analyze"),
	}
}

// Analyze handles POST /api/analyze: check admissibility, queue a
// background task and answer immediately with its id. When the queue is
// unavailable the client is told to fall back to the synchronous
// endpoint instead of silently degrading latency here.
func (h *AnalyzeHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	req, _, ok := h.decodeAndCheck(w, r)
	if !ok {
		return
	}

	payload := task.AnalyzeSitePayload{
		Email:    req.Email,
		URL:      req.URL,
		Style:    domain.Style(req.Style),
		Occasion: req.Occasion,
		UseCache: req.useCache(),
	}
	taskID, err := h.queue.Submit(r.Context(), task.KindAnalyzeSite, payload, h.taskTimeout)
	if err != nil {
		if errors.Is(err, task.ErrQueueUnavailable) {
			shared.RespondWithJSON(w, r, http.StatusServiceUnavailable, map[string]string{
				"error":    "task queue unavailable",
				"fallback": "/api/analyze-sync",
			})
			return
		}
		shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError, "failed to queue analysis", err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusAccepted, AnalyzeAcceptedResponse{
		TaskID: taskID.String(),
		Status: string(task.StatusPending),
	})
}

// AnalyzeSync handles POST /api/analyze-sync: the same pipeline run
// inline, with consumption and session cleanup settled before the
// response goes out.
func (h *AnalyzeHandler) AnalyzeSync(w http.ResponseWriter, r *http.Request) {
	req, entitlement, ok := h.decodeAndCheck(w, r)
	if !ok {
		return
	}

	style := domain.Style(req.Style)
	var cachedSteps string
	if entitlement.TargetURL == req.URL {
		cachedSteps = entitlement.Artifact.Steps
	}

	result, err := h.analyzer.Analyze(r.Context(), req.URL, style, req.Occasion, req.useCache(), cachedSteps)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadGateway, "analysis failed", err)
		return
	}

	artifact := domain.ParsedArtifact{Text: result.CleanedText, Steps: result.Steps}
	sessionEnded, err := h.entitlements.CompleteAfterAnalysis(r.Context(), req.Email, style, artifact, result.FreshParse)
	if err != nil {
		h.logger.Error("post-analysis bookkeeping failed",
			"email", req.Email,
			"error", err)
	}

	shared.RespondWithJSON(w, r, http.StatusOK, AnalyzeResultResponse{
		Publication:  result.Publication,
		Steps:        result.Steps,
		FromCache:    result.FromCache,
		SessionEnded: sessionEnded,
	})
}

// TaskStatus handles GET /api/tasks/{id}.
func (h *AnalyzeHandler) TaskStatus(w http.ResponseWriter, r *http.Request) {
	taskID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "invalid task id")
		return
	}

	descriptor, err := h.queue.Status(r.Context(), taskID)
	if err != nil {
		switch {
		case errors.Is(err, task.ErrTaskNotFound):
			shared.RespondWithError(w, r, http.StatusNotFound, "task not found")
		case errors.Is(err, task.ErrQueueUnavailable):
			shared.RespondWithError(w, r, http.StatusServiceUnavailable, "task queue unavailable")
		default:
			shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError, "failed to read task status", err)
		}
		return
	}

	response := TaskStatusResponse{
		TaskID:    descriptor.ID.String(),
		Status:    string(descriptor.Status),
		CreatedAt: descriptor.CreatedAt,
		Error:     descriptor.Error,
	}
	if len(descriptor.Result) > 0 {
		response.Result = descriptor.Result
	}
	shared.RespondWithJSON(w, r, http.StatusOK, response)
}

// decodeAndCheck parses the analysis request and runs the admissibility
// check, writing the error response itself when either fails.
func (h *AnalyzeHandler) decodeAndCheck(w http.ResponseWriter, r *http.Request) (*AnalyzeRequest, *domain.Entitlement, bool) {
	var req AnalyzeRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "invalid request format")
		return nil, nil, false
	}
	if err := shared.ValidateRequest(&req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "validation error: "+err.Error())
		return nil, nil, false
	}

	entitlement, err := h.entitlements.Check(r.Context(), req.Email, domain.Style(req.Style))
	if err != nil {
		status, message := admissibilityStatus(err)
		if status == http.StatusInternalServerError {
			shared.RespondWithErrorAndLog(w, r, status, message, err)
		} else {
			shared.RespondWithError(w, r, status, message)
		}
		return nil, nil, false
	}
	return &req, entitlement, true
}
