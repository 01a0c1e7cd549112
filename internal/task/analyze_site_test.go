package task_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markoval/stylist-api/internal/analyzer"
	"github.com/markoval/stylist-api/internal/domain"
	"github.com/markoval/stylist-api/internal/task"
)

type fakeAnalyzer struct {
	result          *analyzer.Result
	err             error
	gotCachedSteps  string
	gotUseCache     bool
	gotStyle        domain.Style
	gotURL          string
	gotOccasionNote string
}

func (f *fakeAnalyzer) Analyze(_ context.Context, url string, style domain.Style, occasion string, useCache bool, cachedSteps string) (*analyzer.Result, error) {
	f.gotURL = url
	f.gotStyle = style
	f.gotOccasionNote = occasion
	f.gotUseCache = useCache
	f.gotCachedSteps = cachedSteps
	return f.result, f.err
}

type fakeCompleter struct {
	entitlement  *domain.Entitlement
	getErr       error
	sessionEnded bool
	completeErr  error

	completedEmail string
	completedStyle domain.Style
	gotArtifact    domain.ParsedArtifact
	gotFresh       bool
}

func (f *fakeCompleter) Get(context.Context, string) (*domain.Entitlement, error) {
	return f.entitlement, f.getErr
}

func (f *fakeCompleter) CompleteAfterAnalysis(_ context.Context, email string, style domain.Style, artifact domain.ParsedArtifact, freshParse bool) (bool, error) {
	f.completedEmail = email
	f.completedStyle = style
	f.gotArtifact = artifact
	f.gotFresh = freshParse
	return f.sessionEnded, f.completeErr
}

func analyzeDescriptor(t *testing.T, payload task.AnalyzeSitePayload) *task.Descriptor {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return &task.Descriptor{
		ID:      uuid.New(),
		Kind:    task.KindAnalyzeSite,
		Payload: raw,
		Status:  task.StatusProcessing,
	}
}

func TestAnalyzeSiteHandlerSuccess(t *testing.T) {
	entitlement, err := domain.NewEntitlement("a@example.com", "pay-1", 1000, 1440)
	require.NoError(t, err)
	entitlement.TargetURL = "https://shop.example"
	entitlement.Artifact = domain.ParsedArtifact{Text: "cleaned", Steps: "1. memoized"}

	fa := &fakeAnalyzer{result: &analyzer.Result{
		CleanedText: "cleaned",
		Steps:       "1. memoized",
		Publication: "the text",
		FreshParse:  false,
	}}
	fc := &fakeCompleter{entitlement: entitlement, sessionEnded: true}

	handler := task.NewAnalyzeSiteHandler(fa, fc, discardLogger())
	assert.Equal(t, task.KindAnalyzeSite, handler.Kind())

	result, err := handler.Handle(context.Background(), analyzeDescriptor(t, testPayload("a@example.com")))
	require.NoError(t, err)

	analyzeResult := result.(task.AnalyzeSiteResult)
	assert.Equal(t, "the text", analyzeResult.Publication)
	assert.True(t, analyzeResult.SessionEnded)

	assert.Equal(t, "1. memoized", fa.gotCachedSteps, "artifact steps for the same URL short-circuit the parse")
	assert.Equal(t, "a@example.com", fc.completedEmail)
	assert.Equal(t, domain.StyleIronic, fc.completedStyle)
	assert.False(t, fc.gotFresh)
}

func TestAnalyzeSiteHandlerIgnoresArtifactForOtherURL(t *testing.T) {
	entitlement, err := domain.NewEntitlement("a@example.com", "pay-1", 1000, 1440)
	require.NoError(t, err)
	entitlement.TargetURL = "https://other.example"
	entitlement.Artifact = domain.ParsedArtifact{Steps: "1. stale"}

	fa := &fakeAnalyzer{result: &analyzer.Result{Publication: "p", FreshParse: true}}
	fc := &fakeCompleter{entitlement: entitlement}

	handler := task.NewAnalyzeSiteHandler(fa, fc, discardLogger())
	_, err = handler.Handle(context.Background(), analyzeDescriptor(t, testPayload("a@example.com")))
	require.NoError(t, err)

	assert.Empty(t, fa.gotCachedSteps, "an artifact for another URL must not be reused")
}

func TestAnalyzeSiteHandlerAnalysisFailure(t *testing.T) {
	fa := &fakeAnalyzer{err: errors.New("fetch exploded")}
	fc := &fakeCompleter{getErr: errors.New("no record")}

	handler := task.NewAnalyzeSiteHandler(fa, fc, discardLogger())
	_, err := handler.Handle(context.Background(), analyzeDescriptor(t, testPayload("a@example.com")))
	assert.ErrorContains(t, err, "fetch exploded")
	assert.Empty(t, fc.completedEmail, "no bookkeeping on failure")
}

func TestAnalyzeSiteHandlerKeepsResultOnBookkeepingFailure(t *testing.T) {
	fa := &fakeAnalyzer{result: &analyzer.Result{Publication: "kept", FreshParse: true}}
	fc := &fakeCompleter{getErr: errors.New("no record"), completeErr: errors.New("db down")}

	handler := task.NewAnalyzeSiteHandler(fa, fc, discardLogger())
	result, err := handler.Handle(context.Background(), analyzeDescriptor(t, testPayload("a@example.com")))
	require.NoError(t, err, "a finished publication is never discarded over bookkeeping")
	assert.Equal(t, "kept", result.(task.AnalyzeSiteResult).Publication)
}

func TestAnalyzeSiteHandlerRejectsForeignKind(t *testing.T) {
	handler := task.NewAnalyzeSiteHandler(&fakeAnalyzer{}, &fakeCompleter{}, discardLogger())

	descriptor := &task.Descriptor{ID: uuid.New(), Kind: "mystery", Payload: []byte(`{}`)}
	_, err := handler.Handle(context.Background(), descriptor)
	assert.ErrorIs(t, err, task.ErrUnknownKind)
}
