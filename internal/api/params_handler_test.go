package api_test

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markoval/stylist-api/internal/api"
	"github.com/markoval/stylist-api/internal/params"
)

type fakeParamStore struct {
	values  map[string]string
	history []params.HistoryEntry

	setName  string
	setValue string
	setErr   error
}

func (f *fakeParamStore) Get(_ context.Context, name string) (string, error) {
	value, ok := f.values[name]
	if !ok {
		return "", fmt.Errorf("read %q: %w", name, params.ErrUnknownParam)
	}
	return value, nil
}

func (f *fakeParamStore) Set(_ context.Context, name, value string) error {
	f.setName = name
	f.setValue = value
	return f.setErr
}

func (f *fakeParamStore) History(_ context.Context, name string) ([]params.HistoryEntry, error) {
	if _, ok := f.values[name]; !ok {
		return nil, fmt.Errorf("history %q: %w", name, params.ErrUnknownParam)
	}
	return f.history, nil
}

func TestParamsGet(t *testing.T) {
	store := &fakeParamStore{values: map[string]string{
		params.NameDuration: "1440",
		params.NameAPIKey:   "live_secret",
	}}
	handler := api.NewParamsHandler(store, discardLogger())

	t.Run("plain value", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.Get(rec, requestWithURLParam(t, http.MethodGet, "/api/admin/params/W", "name", params.NameDuration))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"value":"1440"`)
	})

	t.Run("secret is masked", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.Get(rec, requestWithURLParam(t, http.MethodGet, "/api/admin/params/APIKey", "name", params.NameAPIKey))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"state":"set"`)
		assert.NotContains(t, rec.Body.String(), "live_secret")
	})

	t.Run("unknown name", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.Get(rec, requestWithURLParam(t, http.MethodGet, "/api/admin/params/Nope", "name", "Nope"))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestParamsSet(t *testing.T) {
	t.Run("updates", func(t *testing.T) {
		store := &fakeParamStore{}
		handler := api.NewParamsHandler(store, discardLogger())

		body := bytes.NewReader([]byte(`{"value": "2000"}`))
		rec := httptest.NewRecorder()
		handler.Set(rec, requestWithURLParamBody(t, http.MethodPut, "/api/admin/params/Price", "name", params.NamePrice, body))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, params.NamePrice, store.setName)
		assert.Equal(t, "2000", store.setValue)
	})

	t.Run("invalid value", func(t *testing.T) {
		store := &fakeParamStore{setErr: fmt.Errorf("set: %w", params.ErrInvalidValue)}
		handler := api.NewParamsHandler(store, discardLogger())

		body := bytes.NewReader([]byte(`{"value": "soon"}`))
		rec := httptest.NewRecorder()
		handler.Set(rec, requestWithURLParamBody(t, http.MethodPut, "/api/admin/params/W", "name", params.NameDuration, body))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("missing value", func(t *testing.T) {
		handler := api.NewParamsHandler(&fakeParamStore{}, discardLogger())

		rec := httptest.NewRecorder()
		handler.Set(rec, requestWithURLParamBody(t, http.MethodPut, "/api/admin/params/W", "name", params.NameDuration, bytes.NewReader([]byte(`{}`))))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestParamsHistory(t *testing.T) {
	t.Run("lists entries", func(t *testing.T) {
		store := &fakeParamStore{
			values: map[string]string{params.NamePrice: "1000"},
			history: []params.HistoryEntry{
				{Value: "1000", ChangedAt: time.Now().UTC()},
				{Value: "900", ChangedAt: time.Now().UTC().Add(-time.Hour)},
			},
		}
		handler := api.NewParamsHandler(store, discardLogger())

		rec := httptest.NewRecorder()
		handler.History(rec, requestWithURLParam(t, http.MethodGet, "/api/admin/params/Price/history", "name", params.NamePrice))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"900"`)
	})

	t.Run("secret history is forbidden", func(t *testing.T) {
		handler := api.NewParamsHandler(&fakeParamStore{}, discardLogger())

		rec := httptest.NewRecorder()
		handler.History(rec, requestWithURLParam(t, http.MethodGet, "/api/admin/params/APIKey/history", "name", params.NameAPIKey))
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}
