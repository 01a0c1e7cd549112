package analyzer

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/markoval/stylist-api/internal/cache"
	"github.com/markoval/stylist-api/internal/domain"
	"github.com/markoval/stylist-api/internal/llm"
)

// ChatClient is the slice of the LLM client the pipeline needs.
type ChatClient interface {
	ChatWithSystem(ctx context.Context, system, user string, opts ...llm.Option) (string, error)
}

// Result is the output of one analysis run.
type Result struct {
	CleanedText string `json:"cleaned_text"`
	Steps       string `json:"intermediate_steps"`
	Publication string `json:"publication"`
	FromCache   bool   `json:"from_cache"`

	// FreshParse reports whether this run actually fetched and distilled
	// the page rather than reusing memoized products. Callers use it to
	// decide whether the parse artifact is worth persisting.
	FreshParse bool `json:"-"`
}

// Analyzer runs the fetch → clean → distill → generate pipeline.
type Analyzer struct {
	llm        ChatClient
	cache      *cache.Cache
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates an Analyzer.
func New(chatClient ChatClient, resultCache *cache.Cache, logger *slog.Logger) *Analyzer {
	return &Analyzer{
		llm:        chatClient,
		cache:      resultCache,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger.With("component", "analyzer"),
	}
}

// Analyze produces a publication about the page at url in the requested
// style. With useCache set, a previous result for the same (url, style,
// occasion) is returned directly, and intermediate products (cleaned
// text, analysis steps) are shared across runs. cachedSteps, when
// non-empty, short-circuits the fetch and distill stages entirely; it is
// the caller's memoized artifact from an earlier run.
func (a *Analyzer) Analyze(ctx context.Context, url string, style domain.Style, occasion string, useCache bool, cachedSteps string) (*Result, error) {
	if domain.StyleIndex(style) < 0 {
		return nil, domain.ErrUnknownStyle
	}

	analysisKey := cache.AnalysisKey(url, string(style), occasion)
	if useCache {
		var cached Result
		found, err := a.cache.Get(ctx, analysisKey, &cached)
		if err != nil {
			a.logger.Warn("analysis cache read failed", "error", err)
		}
		if found {
			cached.FromCache = true
			cached.FreshParse = false
			return &cached, nil
		}
	}

	result := &Result{}

	if cachedSteps != "" {
		result.Steps = cachedSteps
	} else {
		steps, cleanedText, fresh, err := a.distill(ctx, url, useCache)
		if err != nil {
			return nil, err
		}
		result.Steps = steps
		result.CleanedText = cleanedText
		result.FreshParse = fresh
	}

	publication, err := a.llm.ChatWithSystem(ctx, publicationSystem, publicationPrompt(result.Steps, style, occasion))
	if err != nil {
		return nil, fmt.Errorf("publication generation failed: %w", err)
	}
	result.Publication = publication

	if useCache {
		if err := a.cache.Set(ctx, analysisKey, result, cache.TTLAnalysis); err != nil {
			a.logger.Warn("failed to cache analysis result", "error", err)
		}
	}
	return result, nil
}

// distill produces the analysis steps for a url, reusing cached cleaned
// text and steps when allowed. Concurrent first requests for one url
// race on set-if-absent; losers adopt the winner's value so every
// requester sees one consistent product.
func (a *Analyzer) distill(ctx context.Context, url string, useCache bool) (steps, cleanedText string, fresh bool, err error) {
	stepsKey := cache.StepsKey(url)
	if useCache {
		var cached string
		found, cacheErr := a.cache.Get(ctx, stepsKey, &cached)
		if cacheErr != nil {
			a.logger.Warn("steps cache read failed", "error", cacheErr)
		}
		if found {
			return cached, "", false, nil
		}
	}

	cleanedText, err = a.cleanedText(ctx, url, useCache)
	if err != nil {
		return "", "", false, err
	}

	steps, err = a.llm.ChatWithSystem(ctx, summarizeSystem, stepsPrompt(cleanedText))
	if err != nil {
		return "", "", false, fmt.Errorf("analysis distillation failed: %w", err)
	}

	if useCache {
		created, cacheErr := a.cache.SetIfAbsent(ctx, stepsKey, steps, cache.TTLSteps)
		if cacheErr != nil {
			a.logger.Warn("failed to cache analysis steps", "error", cacheErr)
		} else if !created {
			var winner string
			if found, _ := a.cache.Get(ctx, stepsKey, &winner); found {
				steps = winner
			}
		}
	}
	return steps, cleanedText, true, nil
}

// cleanedText returns the readable text of the page, fetched fresh or
// taken from cache.
func (a *Analyzer) cleanedText(ctx context.Context, url string, useCache bool) (string, error) {
	textKey := cache.CleanedTextKey(url)
	if useCache {
		var cached string
		found, err := a.cache.Get(ctx, textKey, &cached)
		if err != nil {
			a.logger.Warn("text cache read failed", "error", err)
		}
		if found {
			return cached, nil
		}
	}

	page, err := a.fetchPage(ctx, url)
	if err != nil {
		return "", err
	}
	text := cleanHTML(page)
	if text == "" {
		return "", fmt.Errorf("page %s has no readable text", url)
	}

	if useCache {
		created, err := a.cache.SetIfAbsent(ctx, textKey, text, cache.TTLCleanedText)
		if err != nil {
			a.logger.Warn("failed to cache cleaned text", "error", err)
		} else if !created {
			var winner string
			if found, _ := a.cache.Get(ctx, textKey, &winner); found {
				text = winner
			}
		}
	}
	return text, nil
}
