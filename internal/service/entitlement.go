package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/markoval/stylist-api/internal/domain"
	"github.com/markoval/stylist-api/internal/store"
)

// EntitlementService implements the business rules around paid
// entitlements: validity is re-evaluated against the wall clock on every
// access, style consumption is monotonic, and background jobs settle
// their consumption only after the work has finished.
type EntitlementService struct {
	store  store.EntitlementStore
	locks  *keyedMutex
	logger *slog.Logger
	now    func() time.Time
}

// NewEntitlementService creates a new EntitlementService.
func NewEntitlementService(entitlementStore store.EntitlementStore, logger *slog.Logger) *EntitlementService {
	return &EntitlementService{
		store:  entitlementStore,
		locks:  newKeyedMutex(),
		logger: logger.With("component", "entitlement_service"),
		now:    time.Now,
	}
}

// Create grants a fresh entitlement to the given email, replacing any
// existing record. The new record has a full quota and a validity anchor
// of now, whatever the old record looked like.
func (s *EntitlementService) Create(ctx context.Context, email, paymentID string, amount, durationMinutes int) (*domain.Entitlement, error) {
	entitlement, err := domain.NewEntitlement(email, paymentID, amount, durationMinutes)
	if err != nil {
		return nil, newServiceError("create", err)
	}

	unlock := s.locks.Lock(email)
	defer unlock()

	if err := s.store.Create(ctx, entitlement); err != nil {
		return nil, newServiceError("create", err)
	}

	s.logger.Info("entitlement created",
		"email", email,
		"duration_minutes", durationMinutes,
		"payment_id", paymentID)
	return entitlement, nil
}

// Get returns the current entitlement for the email, valid or not.
// Returns ErrNotEntitled when no record exists.
func (s *EntitlementService) Get(ctx context.Context, email string) (*domain.Entitlement, error) {
	entitlement, err := s.store.GetByEmail(ctx, email)
	if err != nil {
		if store.IsNotFoundError(err) {
			return nil, ErrNotEntitled
		}
		return nil, newServiceError("get", err)
	}
	return entitlement, nil
}

// IsValid reports whether the email has an entitlement whose validity
// window is still open right now. An expired record found here is
// deleted as a side effect, so a later lookup starts from a clean slate.
func (s *EntitlementService) IsValid(ctx context.Context, email string) (bool, error) {
	entitlement, err := s.Get(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotEntitled) {
			return false, nil
		}
		return false, err
	}

	if !entitlement.ValidAt(s.now()) {
		s.expire(ctx, email)
		return false, nil
	}
	return true, nil
}

// AvailableStyles returns the per-style availability map for a currently
// valid entitlement. Expired or missing records yield ErrNotEntitled.
func (s *EntitlementService) AvailableStyles(ctx context.Context, email string) (map[domain.Style]bool, error) {
	entitlement, err := s.getValid(ctx, email)
	if err != nil {
		return nil, err
	}
	return entitlement.AvailableStyles(), nil
}

// Check is the admissibility primitive: it answers whether the identity
// may run an analysis in the given style right now, and returns the
// entitlement when it may. The error distinguishes why not: ErrNotEntitled
// (missing or expired record), domain.ErrUnknownStyle, ErrStyleUnavailable.
func (s *EntitlementService) Check(ctx context.Context, email string, style domain.Style) (*domain.Entitlement, error) {
	if domain.StyleIndex(style) < 0 {
		return nil, domain.ErrUnknownStyle
	}

	entitlement, err := s.getValid(ctx, email)
	if err != nil {
		return nil, err
	}

	if !entitlement.StyleAvailable(style) {
		return nil, ErrStyleUnavailable
	}
	return entitlement, nil
}

// Consume spends the named style flag for the email. The flag transition
// is monotonic; consuming an already spent flag returns
// domain.ErrStyleConsumed.
func (s *EntitlementService) Consume(ctx context.Context, email string, style domain.Style) error {
	unlock := s.locks.Lock(email)
	defer unlock()

	entitlement, err := s.Get(ctx, email)
	if err != nil {
		return err
	}
	if err := entitlement.ConsumeStyle(style); err != nil {
		return err
	}

	if err := s.store.ConsumeStyle(ctx, email, style); err != nil {
		return newServiceError("consume", err)
	}

	s.logger.Info("style consumed", "email", email, "style", style)
	return nil
}

// UpdateContext partially updates the analysis context. Nil fields are
// left untouched.
func (s *EntitlementService) UpdateContext(ctx context.Context, email string, targetURL, occasionNote *string) error {
	unlock := s.locks.Lock(email)
	defer unlock()

	if err := s.store.UpdateContext(ctx, email, targetURL, occasionNote); err != nil {
		if store.IsNotFoundError(err) {
			return ErrNotEntitled
		}
		return newServiceError("update_context", err)
	}
	return nil
}

// SaveArtifact memoizes the parse output on the entitlement. An already
// saved artifact is left alone.
func (s *EntitlementService) SaveArtifact(ctx context.Context, email string, artifact domain.ParsedArtifact) error {
	unlock := s.locks.Lock(email)
	defer unlock()

	err := s.store.SaveArtifact(ctx, email, artifact)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrArtifactExists):
		return nil
	case store.IsNotFoundError(err):
		return ErrNotEntitled
	default:
		return newServiceError("save_artifact", err)
	}
}

// Delete removes the entitlement record. Deleting a missing record is
// not an error.
func (s *EntitlementService) Delete(ctx context.Context, email string) error {
	unlock := s.locks.Lock(email)
	defer unlock()

	if err := s.store.Delete(ctx, email); err != nil {
		return newServiceError("delete", err)
	}
	return nil
}

// CompleteAfterAnalysis settles the books once an analysis has produced
// its result. A job admitted while the entitlement was valid keeps its
// result even if the window closed mid-flight; consumption and cleanup
// happen here, after the fact. It returns true when the entitlement was
// removed (expired or fully exhausted), letting the caller tag the
// result as the last one of the session.
func (s *EntitlementService) CompleteAfterAnalysis(ctx context.Context, email string, style domain.Style, artifact domain.ParsedArtifact, freshParse bool) (bool, error) {
	unlock := s.locks.Lock(email)
	defer unlock()

	entitlement, err := s.store.GetByEmail(ctx, email)
	if err != nil {
		if store.IsNotFoundError(err) {
			// Record already gone; the result still stands.
			return true, nil
		}
		return false, newServiceError("complete", err)
	}

	if entitlement.StyleAvailable(style) {
		if err := s.store.ConsumeStyle(ctx, email, style); err != nil {
			return false, newServiceError("complete", err)
		}
		entitlement.Styles[domain.StyleIndex(style)] = false
	}

	if freshParse && entitlement.Artifact.IsZero() && !artifact.IsZero() {
		if err := s.store.SaveArtifact(ctx, email, artifact); err != nil && !errors.Is(err, store.ErrArtifactExists) {
			s.logger.Warn("failed to memoize parse artifact",
				"email", email,
				"error", err)
		}
	}

	if !entitlement.ValidAt(s.now()) || !entitlement.HasUnused() {
		if err := s.store.Delete(ctx, email); err != nil {
			return false, newServiceError("complete", err)
		}
		s.logger.Info("entitlement closed after analysis",
			"email", email,
			"expired", !entitlement.ValidAt(s.now()),
			"exhausted", !entitlement.HasUnused())
		return true, nil
	}
	return false, nil
}

// getValid loads the entitlement and enforces the validity window,
// deleting an expired record as a side effect.
func (s *EntitlementService) getValid(ctx context.Context, email string) (*domain.Entitlement, error) {
	entitlement, err := s.Get(ctx, email)
	if err != nil {
		return nil, err
	}
	if !entitlement.ValidAt(s.now()) {
		s.expire(ctx, email)
		return nil, fmt.Errorf("%w: expired at %s", ErrNotEntitled, entitlement.ExpiresAt().Format(time.RFC3339))
	}
	return entitlement, nil
}

// expire removes a record whose window has closed. Failure to delete is
// logged, not surfaced: the caller's answer is the same either way.
func (s *EntitlementService) expire(ctx context.Context, email string) {
	unlock := s.locks.Lock(email)
	defer unlock()

	if err := s.store.Delete(ctx, email); err != nil {
		s.logger.Warn("failed to delete expired entitlement",
			"email", email,
			"error", err)
		return
	}
	s.logger.Info("expired entitlement deleted", "email", email)
}
