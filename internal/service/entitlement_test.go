package service_test

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markoval/stylist-api/internal/domain"
	"github.com/markoval/stylist-api/internal/service"
	"github.com/markoval/stylist-api/internal/store"
)

// memoryStore is an in-memory store.EntitlementStore for service tests.
type memoryStore struct {
	mu      sync.Mutex
	records map[string]*domain.Entitlement
}

func newMemoryStore() *memoryStore {
	return &memoryStore{records: make(map[string]*domain.Entitlement)}
}

func (m *memoryStore) GetByEmail(_ context.Context, email string) (*domain.Entitlement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.records[email]
	if !ok {
		return nil, store.ErrEntitlementNotFound
	}
	clone := *e
	return &clone, nil
}

func (m *memoryStore) Create(_ context.Context, e *domain.Entitlement) error {
	if err := e.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, e.Email)
	clone := *e
	m.records[e.Email] = &clone
	return nil
}

func (m *memoryStore) UpdateContext(_ context.Context, email string, targetURL, occasionNote *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.records[email]
	if !ok {
		return store.ErrEntitlementNotFound
	}
	if targetURL != nil {
		e.TargetURL = *targetURL
	}
	if occasionNote != nil {
		e.OccasionNote = *occasionNote
	}
	return nil
}

func (m *memoryStore) ConsumeStyle(_ context.Context, email string, style domain.Style) error {
	i := domain.StyleIndex(style)
	if i < 0 {
		return domain.ErrUnknownStyle
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.records[email]
	if !ok {
		return store.ErrEntitlementNotFound
	}
	e.Styles[i] = false
	return nil
}

func (m *memoryStore) SaveArtifact(_ context.Context, email string, artifact domain.ParsedArtifact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.records[email]
	if !ok {
		return store.ErrEntitlementNotFound
	}
	if !e.Artifact.IsZero() {
		return store.ErrArtifactExists
	}
	e.Artifact = artifact
	return nil
}

func (m *memoryStore) Delete(_ context.Context, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, email)
	return nil
}

func (m *memoryStore) WithTx(_ *sql.Tx) store.EntitlementStore { return m }

func (m *memoryStore) has(email string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.records[email]
	return ok
}

func newTestService(t *testing.T) (*service.EntitlementService, *memoryStore) {
	t.Helper()
	st := newMemoryStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return service.NewEntitlementService(st, logger), st
}

const testEmail = "client@example.com"

func TestCreateResetsQuotaAndAnchor(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.Create(ctx, testEmail, "pay-1", 1000, 1440)
	require.NoError(t, err)
	require.NoError(t, svc.Consume(ctx, testEmail, domain.StyleIronic))

	second, err := svc.Create(ctx, testEmail, "pay-2", 1000, 1440)
	require.NoError(t, err)

	styles, err := svc.AvailableStyles(ctx, testEmail)
	require.NoError(t, err)
	assert.True(t, styles[domain.StyleIronic], "a new payment restores the full quota")
	assert.False(t, second.PaidAt.Before(first.PaidAt))
}

func TestCheckAdmissibility(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	t.Run("no record", func(t *testing.T) {
		_, err := svc.Check(ctx, testEmail, domain.StyleIronic)
		assert.ErrorIs(t, err, service.ErrNotEntitled)
	})

	_, err := svc.Create(ctx, testEmail, "pay-1", 1000, 1440)
	require.NoError(t, err)

	t.Run("fresh entitlement admits", func(t *testing.T) {
		entitlement, err := svc.Check(ctx, testEmail, domain.StyleIronic)
		require.NoError(t, err)
		assert.True(t, entitlement.StyleAvailable(domain.StyleIronic))
	})

	t.Run("unknown style", func(t *testing.T) {
		_, err := svc.Check(ctx, testEmail, domain.Style("baroque"))
		assert.ErrorIs(t, err, domain.ErrUnknownStyle)
	})

	t.Run("consumed style is refused", func(t *testing.T) {
		require.NoError(t, svc.Consume(ctx, testEmail, domain.StyleIronic))
		_, err := svc.Check(ctx, testEmail, domain.StyleIronic)
		assert.ErrorIs(t, err, service.ErrStyleUnavailable)
	})

	t.Run("other styles still admit", func(t *testing.T) {
		_, err := svc.Check(ctx, testEmail, domain.StyleFormal)
		assert.NoError(t, err)
	})
}

func TestExpiredRecordIsDeletedOnAccess(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, testEmail, "pay-1", 1000, 1440)
	require.NoError(t, err)

	// Age the record past its window.
	st.mu.Lock()
	st.records[testEmail].PaidAt = time.Now().UTC().Add(-1441 * time.Minute)
	st.mu.Unlock()

	valid, err := svc.IsValid(ctx, testEmail)
	require.NoError(t, err)
	assert.False(t, valid)
	assert.False(t, st.has(testEmail), "expiry detection deletes the record")
}

func TestValidityBoundary(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, testEmail, "pay-1", 1000, 60)
	require.NoError(t, err)

	st.mu.Lock()
	st.records[testEmail].PaidAt = time.Now().UTC().Add(-60 * time.Minute)
	st.mu.Unlock()

	valid, err := svc.IsValid(ctx, testEmail)
	require.NoError(t, err)
	assert.False(t, valid, "exactly at the window edge is already invalid")
}

func TestCompleteAfterAnalysis(t *testing.T) {
	ctx := context.Background()
	artifact := domain.ParsedArtifact{Text: "cleaned", Steps: "1. look"}

	t.Run("consumes and memoizes", func(t *testing.T) {
		svc, st := newTestService(t)
		_, err := svc.Create(ctx, testEmail, "pay-1", 1000, 1440)
		require.NoError(t, err)

		ended, err := svc.CompleteAfterAnalysis(ctx, testEmail, domain.StyleIronic, artifact, true)
		require.NoError(t, err)
		assert.False(t, ended)

		record, err := st.GetByEmail(ctx, testEmail)
		require.NoError(t, err)
		assert.False(t, record.StyleAvailable(domain.StyleIronic))
		assert.Equal(t, artifact, record.Artifact)
	})

	t.Run("expired mid-flight still settles and closes the session", func(t *testing.T) {
		svc, st := newTestService(t)
		_, err := svc.Create(ctx, testEmail, "pay-1", 1000, 1440)
		require.NoError(t, err)

		st.mu.Lock()
		st.records[testEmail].PaidAt = time.Now().UTC().Add(-1500 * time.Minute)
		st.mu.Unlock()

		ended, err := svc.CompleteAfterAnalysis(ctx, testEmail, domain.StyleIronic, artifact, true)
		require.NoError(t, err)
		assert.True(t, ended, "the result stands, the session ends")
		assert.False(t, st.has(testEmail))
	})

	t.Run("exhausting the last style closes the session", func(t *testing.T) {
		svc, st := newTestService(t)
		_, err := svc.Create(ctx, testEmail, "pay-1", 1000, 1440)
		require.NoError(t, err)

		for _, style := range domain.StyleOrder[:len(domain.StyleOrder)-1] {
			require.NoError(t, svc.Consume(ctx, testEmail, style))
		}

		last := domain.StyleOrder[len(domain.StyleOrder)-1]
		ended, err := svc.CompleteAfterAnalysis(ctx, testEmail, last, artifact, false)
		require.NoError(t, err)
		assert.True(t, ended)
		assert.False(t, st.has(testEmail))
	})

	t.Run("record already gone", func(t *testing.T) {
		svc, _ := newTestService(t)
		ended, err := svc.CompleteAfterAnalysis(ctx, testEmail, domain.StyleIronic, artifact, true)
		require.NoError(t, err)
		assert.True(t, ended)
	})

	t.Run("stale reparse never overwrites the artifact", func(t *testing.T) {
		svc, st := newTestService(t)
		_, err := svc.Create(ctx, testEmail, "pay-1", 1000, 1440)
		require.NoError(t, err)

		require.NoError(t, svc.SaveArtifact(ctx, testEmail, artifact))

		other := domain.ParsedArtifact{Text: "other", Steps: "2. leap"}
		_, err = svc.CompleteAfterAnalysis(ctx, testEmail, domain.StyleFormal, other, true)
		require.NoError(t, err)

		record, err := st.GetByEmail(ctx, testEmail)
		require.NoError(t, err)
		assert.Equal(t, artifact, record.Artifact)
	})
}

func TestUpdateContextPartial(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, testEmail, "pay-1", 1000, 1440)
	require.NoError(t, err)

	url := "https://shop.example"
	require.NoError(t, svc.UpdateContext(ctx, testEmail, &url, nil))

	note := "spring launch"
	require.NoError(t, svc.UpdateContext(ctx, testEmail, nil, &note))

	record, err := st.GetByEmail(ctx, testEmail)
	require.NoError(t, err)
	assert.Equal(t, url, record.TargetURL)
	assert.Equal(t, note, record.OccasionNote)

	empty := ""
	require.NoError(t, svc.UpdateContext(ctx, testEmail, nil, &empty))
	record, err = st.GetByEmail(ctx, testEmail)
	require.NoError(t, err)
	assert.Equal(t, url, record.TargetURL, "nil leaves the field untouched")
	assert.Empty(t, record.OccasionNote, "explicit empty string clears it")

	err = svc.UpdateContext(ctx, "ghost@example.com", &url, nil)
	assert.ErrorIs(t, err, service.ErrNotEntitled)
}

func TestDeleteIsIdempotent(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, testEmail, "pay-1", 1000, 1440)
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, testEmail))
	require.NoError(t, svc.Delete(ctx, testEmail))

	valid, err := svc.IsValid(ctx, testEmail)
	require.NoError(t, err)
	assert.False(t, valid)
}
