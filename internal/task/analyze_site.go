package task

import (
	"context"
	"log/slog"

	"github.com/markoval/stylist-api/internal/analyzer"
	"github.com/markoval/stylist-api/internal/domain"
)

// SiteAnalyzer runs the analysis pipeline for one page.
type SiteAnalyzer interface {
	Analyze(ctx context.Context, url string, style domain.Style, occasion string, useCache bool, cachedSteps string) (*analyzer.Result, error)
}

// EntitlementCompleter settles quota consumption and cleanup once a job
// has produced its result.
type EntitlementCompleter interface {
	Get(ctx context.Context, email string) (*domain.Entitlement, error)
	CompleteAfterAnalysis(ctx context.Context, email string, style domain.Style, artifact domain.ParsedArtifact, freshParse bool) (bool, error)
}

// AnalyzeSiteResult is what a completed analyze_site task stores as its
// result. SessionEnded marks the last publication of an entitlement that
// expired or ran out of styles while the job was in flight.
type AnalyzeSiteResult struct {
	Publication  string `json:"publication"`
	Steps        string `json:"intermediate_steps"`
	FromCache    bool   `json:"from_cache"`
	SessionEnded bool   `json:"session_ended"`
}

// AnalyzeSiteHandler executes analyze_site tasks. Admissibility was
// checked at submission; once a job runs, its result is produced and
// stored unconditionally, and the entitlement bookkeeping happens after.
type AnalyzeSiteHandler struct {
	analyzer     SiteAnalyzer
	entitlements EntitlementCompleter
	logger       *slog.Logger
}

// NewAnalyzeSiteHandler creates the handler.
func NewAnalyzeSiteHandler(siteAnalyzer SiteAnalyzer, entitlements EntitlementCompleter, logger *slog.Logger) *AnalyzeSiteHandler {
	return &AnalyzeSiteHandler{
		analyzer:     siteAnalyzer,
		entitlements: entitlements,
		logger:       logger.With("component", "analyze_site_handler"),
	}
}

// Kind implements Handler.
func (h *AnalyzeSiteHandler) Kind() string {
	return KindAnalyzeSite
}

// Handle implements Handler.
func (h *AnalyzeSiteHandler) Handle(ctx context.Context, task *Descriptor) (any, error) {
	payload, err := task.AnalyzePayload()
	if err != nil {
		return nil, err
	}

	// The memoized parse artifact from an earlier run against the same
	// entitlement lets repeat styles skip the fetch and distill stages.
	var cachedSteps string
	entitlement, err := h.entitlements.Get(ctx, payload.Email)
	if err == nil && entitlement.TargetURL == payload.URL {
		cachedSteps = entitlement.Artifact.Steps
	}

	result, err := h.analyzer.Analyze(ctx, payload.URL, payload.Style, payload.Occasion, payload.UseCache, cachedSteps)
	if err != nil {
		return nil, err
	}

	artifact := domain.ParsedArtifact{Text: result.CleanedText, Steps: result.Steps}
	sessionEnded, err := h.entitlements.CompleteAfterAnalysis(ctx, payload.Email, payload.Style, artifact, result.FreshParse)
	if err != nil {
		// The publication exists; losing it over a bookkeeping failure
		// would punish the client twice. Store the result anyway.
		h.logger.Error("post-analysis bookkeeping failed",
			"task_id", task.ID,
			"email", payload.Email,
			"error", err)
	}

	return AnalyzeSiteResult{
		Publication:  result.Publication,
		Steps:        result.Steps,
		FromCache:    result.FromCache,
		SessionEnded: sessionEnded,
	}, nil
}

// Ensure AnalyzeSiteHandler implements Handler.
var _ Handler = (*AnalyzeSiteHandler)(nil)
