package store

import (
	"context"
	"database/sql"

	"github.com/markoval/stylist-api/internal/domain"
)

// EntitlementStore defines the interface for entitlement data persistence.
// All mutations go through this interface; no component reaches around it
// to touch the entitlements table directly.
type EntitlementStore interface {
	// GetByEmail retrieves an entitlement by the client's email.
	// Returns ErrEntitlementNotFound if no record exists.
	GetByEmail(ctx context.Context, email string) (*domain.Entitlement, error)

	// Create saves a new entitlement, first deleting any existing record
	// for the same email. A payment event therefore unconditionally resets
	// the quota and the expiry anchor (delete-then-insert, never
	// update-in-place).
	Create(ctx context.Context, entitlement *domain.Entitlement) error

	// UpdateContext partially updates the analysis context. A nil field
	// is left untouched, distinguishing "no change" from "set to empty".
	// Returns ErrEntitlementNotFound if no record exists.
	UpdateContext(ctx context.Context, email string, targetURL, occasionNote *string) error

	// ConsumeStyle flips the named style flag to consumed. The flag is
	// monotonic: a consumed flag is never made available again.
	// Returns domain.ErrUnknownStyle for names outside the fixed set and
	// ErrEntitlementNotFound if no record exists.
	ConsumeStyle(ctx context.Context, email string, style domain.Style) error

	// SaveArtifact persists the memoized parse output. It is written only
	// when a fresh parse was performed; an existing artifact is never
	// overwritten (ErrArtifactExists).
	SaveArtifact(ctx context.Context, email string, artifact domain.ParsedArtifact) error

	// Delete removes the entitlement record. Deleting a missing record
	// is not an error.
	Delete(ctx context.Context, email string) error

	// WithTx returns a new EntitlementStore instance that uses the provided
	// transaction. The transaction is created and managed by the caller.
	WithTx(tx *sql.Tx) EntitlementStore
}
