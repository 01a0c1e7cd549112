package api_test

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markoval/stylist-api/internal/api"
	"github.com/markoval/stylist-api/internal/llm"
)

type fakeChat struct {
	answer  string
	rawJSON string
	err     error

	gotSystem string
	gotPrompt string
}

func (f *fakeChat) ChatWithSystem(_ context.Context, system, user string, _ ...llm.Option) (string, error) {
	f.gotSystem = system
	f.gotPrompt = user
	return f.answer, f.err
}

func (f *fakeChat) ChatJSON(_ context.Context, system, user string, out any, _ ...llm.Option) error {
	f.gotSystem = system
	f.gotPrompt = user
	if f.err != nil {
		return f.err
	}
	_, err := llm.DecodeJSON(f.rawJSON, out)
	return err
}

func TestLLMChat(t *testing.T) {
	chat := &fakeChat{answer: "pong"}
	handler := api.NewLLMHandler(chat, discardLogger())

	body := bytes.NewReader([]byte(`{"system": "be brief", "prompt": "ping"}`))
	rec := httptest.NewRecorder()
	handler.Chat(rec, httptest.NewRequest(http.MethodPost, "/api/llm/chat", body))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"pong"`)
	assert.Equal(t, "be brief", chat.gotSystem)
	assert.Equal(t, "ping", chat.gotPrompt)
}

func TestLLMChatFailure(t *testing.T) {
	handler := api.NewLLMHandler(&fakeChat{err: errors.New("backend down")}, discardLogger())

	body := bytes.NewReader([]byte(`{"prompt": "ping"}`))
	rec := httptest.NewRecorder()
	handler.Chat(rec, httptest.NewRequest(http.MethodPost, "/api/llm/chat", body))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestLLMChatJSON(t *testing.T) {
	t.Run("recovers fenced output", func(t *testing.T) {
		chat := &fakeChat{rawJSON: "```json\n{\"answer\": 42}\n```"}
		handler := api.NewLLMHandler(chat, discardLogger())

		body := bytes.NewReader([]byte(`{"prompt": "ping"}`))
		rec := httptest.NewRecorder()
		handler.ChatJSON(rec, httptest.NewRequest(http.MethodPost, "/api/llm/chat-json", body))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"answer":42`)
	})

	t.Run("unparsable output", func(t *testing.T) {
		chat := &fakeChat{rawJSON: "I cannot answer in JSON, sorry."}
		handler := api.NewLLMHandler(chat, discardLogger())

		body := bytes.NewReader([]byte(`{"prompt": "ping"}`))
		rec := httptest.NewRecorder()
		handler.ChatJSON(rec, httptest.NewRequest(http.MethodPost, "/api/llm/chat-json", body))
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})
}

func TestLLMChatRejectsEmptyPrompt(t *testing.T) {
	handler := api.NewLLMHandler(&fakeChat{}, discardLogger())

	rec := httptest.NewRecorder()
	handler.Chat(rec, httptest.NewRequest(http.MethodPost, "/api/llm/chat", bytes.NewReader([]byte(`{"system": "x"}`))))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
