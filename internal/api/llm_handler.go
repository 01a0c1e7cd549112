package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/markoval/stylist-api/internal/api/shared"
	"github.com/markoval/stylist-api/internal/llm"
)

// ChatClient is the slice of the LLM client the chat endpoints need.
type ChatClient interface {
	ChatWithSystem(ctx context.Context, system, user string, opts ...llm.Option) (string, error)
	ChatJSON(ctx context.Context, system, user string, out any, opts ...llm.Option) error
}

// ChatRequest is the request body for both chat endpoints.
type ChatRequest struct {
	System string `json:"system"`
	Prompt string `json:"prompt" validate:"required,min=1"`
}

// LLMHandler exposes the raw chat completion surface, mostly for
// diagnostics and prompt iteration.
type LLMHandler struct {
	client ChatClient
	logger *slog.Logger
}

// NewLLMHandler creates the handler.
func NewLLMHandler(client ChatClient, logger *slog.Logger) *LLMHandler {
	return &LLMHandler{
		client: client,
		logger: logger.With("handler", "llm"),
	}
}

// Chat handles POST /api/llm/chat.
func (h *LLMHandler) Chat(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeChatRequest(w, r)
	if !ok {
		return
	}

	answer, err := h.client.ChatWithSystem(r.Context(), req.System, req.Prompt)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadGateway, "chat completion failed", err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, map[string]string{"response": answer})
}

// ChatJSON handles POST /api/llm/chat-json: the completion is forced
// through the JSON recovery chain and returned as a structured object.
func (h *LLMHandler) ChatJSON(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeChatRequest(w, r)
	if !ok {
		return
	}

	var result json.RawMessage
	if err := h.client.ChatJSON(r.Context(), req.System, req.Prompt, &result); err != nil {
		if errors.Is(err, llm.ErrNoJSON) {
			shared.RespondWithError(w, r, http.StatusUnprocessableEntity, "model did not return parsable JSON")
			return
		}
		shared.RespondWithErrorAndLog(w, r, http.StatusBadGateway, "chat completion failed", err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, map[string]any{"response": result})
}

func decodeChatRequest(w http.ResponseWriter, r *http.Request) (*ChatRequest, bool) {
	var req ChatRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "invalid request format")
		return nil, false
	}
	if err := shared.ValidateRequest(&req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "validation error: "+err.Error())
		return nil, false
	}
	return &req, true
}
