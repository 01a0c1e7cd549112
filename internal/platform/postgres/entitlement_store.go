package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/markoval/stylist-api/internal/domain"
	"github.com/markoval/stylist-api/internal/platform/logger"
	"github.com/markoval/stylist-api/internal/store"
)

// uniqueViolationCode is the PostgreSQL unique constraint violation error code.
const uniqueViolationCode = "23505"

// EntitlementStore implements the store.EntitlementStore interface
// using a PostgreSQL database as the storage backend.
type EntitlementStore struct {
	db store.DBTX
}

// NewEntitlementStore creates a new PostgreSQL implementation of the
// store.EntitlementStore interface. It accepts a database connection
// that should be initialized and managed by the caller.
func NewEntitlementStore(db store.DBTX) *EntitlementStore {
	return &EntitlementStore{db: db}
}

// Ensure EntitlementStore implements store.EntitlementStore.
var _ store.EntitlementStore = (*EntitlementStore)(nil)

// isUniqueViolation checks if the given error is a PostgreSQL unique
// constraint violation, such as a duplicate email.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}

// entitlementColumns is the select list shared by the read paths.
// The st1..st9 columns carry the style flags in their fixed order.
const entitlementColumns = `email, target_url, occasion_note,
	st1, st2, st3, st4, st5, st6, st7, st8, st9,
	paid_at, duration_minutes, payment_id, amount,
	parsed_text, parsed_steps, is_active`

// GetByEmail implements store.EntitlementStore.GetByEmail.
func (s *EntitlementStore) GetByEmail(ctx context.Context, email string) (*domain.Entitlement, error) {
	query := `SELECT ` + entitlementColumns + ` FROM entitlements WHERE email = $1`

	row := s.db.QueryRowContext(ctx, query, email)

	var (
		e         domain.Entitlement
		paymentID sql.NullString
		amount    sql.NullInt64
	)
	err := row.Scan(
		&e.Email, &e.TargetURL, &e.OccasionNote,
		&e.Styles[0], &e.Styles[1], &e.Styles[2],
		&e.Styles[3], &e.Styles[4], &e.Styles[5],
		&e.Styles[6], &e.Styles[7], &e.Styles[8],
		&e.PaidAt, &e.DurationMinutes, &paymentID, &amount,
		&e.Artifact.Text, &e.Artifact.Steps, &e.Active,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrEntitlementNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get entitlement by email: %w", err)
	}

	e.PaymentID = paymentID.String
	e.Amount = int(amount.Int64)
	e.PaidAt = e.PaidAt.UTC()

	return &e, nil
}

// Create implements store.EntitlementStore.Create. Any existing record
// for the same email is deleted first so the quota and expiry anchor are
// unconditionally reset. When the store owns the root connection the
// delete and insert run in one transaction, so a crash between them
// cannot leave the email without any record.
func (s *EntitlementStore) Create(ctx context.Context, entitlement *domain.Entitlement) error {
	if db, ok := s.db.(*sql.DB); ok {
		return store.RunInTransaction(ctx, db, func(ctx context.Context, tx *sql.Tx) error {
			return s.WithTx(tx).Create(ctx, entitlement)
		})
	}

	log := logger.FromContext(ctx)

	if err := entitlement.Validate(); err != nil {
		return store.NewStoreError("entitlement", "create", "validation failed", err)
	}

	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM entitlements WHERE email = $1`, entitlement.Email); err != nil {
		return fmt.Errorf("failed to retire previous entitlement: %w", err)
	}

	query := `
		INSERT INTO entitlements (` + entitlementColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12,
			$13, $14, $15, $16, $17, $18, $19)
	`

	_, err := s.db.ExecContext(ctx, query,
		entitlement.Email, entitlement.TargetURL, entitlement.OccasionNote,
		entitlement.Styles[0], entitlement.Styles[1], entitlement.Styles[2],
		entitlement.Styles[3], entitlement.Styles[4], entitlement.Styles[5],
		entitlement.Styles[6], entitlement.Styles[7], entitlement.Styles[8],
		entitlement.PaidAt.UTC(), entitlement.DurationMinutes,
		nullString(entitlement.PaymentID), entitlement.Amount,
		entitlement.Artifact.Text, entitlement.Artifact.Steps, entitlement.Active,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicate
		}
		log.Error("failed to create entitlement",
			"email", entitlement.Email,
			"error", err)
		return fmt.Errorf("failed to create entitlement: %w", err)
	}

	log.Info("entitlement created",
		"email", entitlement.Email,
		"payment_id", entitlement.PaymentID,
		"duration_minutes", entitlement.DurationMinutes)
	return nil
}

// UpdateContext implements store.EntitlementStore.UpdateContext.
// Nil arguments leave the corresponding column untouched.
func (s *EntitlementStore) UpdateContext(ctx context.Context, email string, targetURL, occasionNote *string) error {
	if targetURL == nil && occasionNote == nil {
		return nil
	}

	sets := make([]string, 0, 2)
	args := make([]any, 0, 3)
	if targetURL != nil {
		args = append(args, *targetURL)
		sets = append(sets, fmt.Sprintf("target_url = $%d", len(args)))
	}
	if occasionNote != nil {
		args = append(args, *occasionNote)
		sets = append(sets, fmt.Sprintf("occasion_note = $%d", len(args)))
	}
	args = append(args, email)

	query := fmt.Sprintf(`UPDATE entitlements SET %s WHERE email = $%d`,
		strings.Join(sets, ", "), len(args))

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update entitlement context: %w", err)
	}
	return requireRow(result, "update entitlement context")
}

// ConsumeStyle implements store.EntitlementStore.ConsumeStyle. The update
// only ever sets the flag to false, so the transition stays monotonic even
// under concurrent writers.
func (s *EntitlementStore) ConsumeStyle(ctx context.Context, email string, style domain.Style) error {
	idx := domain.StyleIndex(style)
	if idx < 0 {
		return domain.ErrUnknownStyle
	}

	// Column name is derived from the fixed style set, never from input.
	query := fmt.Sprintf(`UPDATE entitlements SET st%d = FALSE WHERE email = $1`, idx+1)

	result, err := s.db.ExecContext(ctx, query, email)
	if err != nil {
		return fmt.Errorf("failed to consume style %q: %w", style, err)
	}
	return requireRow(result, "consume style")
}

// SaveArtifact implements store.EntitlementStore.SaveArtifact. The write
// is conditional on the artifact columns being empty so a memoized parse
// is never overwritten with derivative data.
func (s *EntitlementStore) SaveArtifact(ctx context.Context, email string, artifact domain.ParsedArtifact) error {
	query := `
		UPDATE entitlements
		SET parsed_text = $1, parsed_steps = $2
		WHERE email = $3 AND parsed_text = '' AND parsed_steps = ''
	`

	result, err := s.db.ExecContext(ctx, query, artifact.Text, artifact.Steps, email)
	if err != nil {
		return fmt.Errorf("failed to save parsed artifact: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		// Distinguish "record missing" from "artifact already present".
		if _, err := s.GetByEmail(ctx, email); err != nil {
			return err
		}
		return store.ErrArtifactExists
	}
	return nil
}

// Delete implements store.EntitlementStore.Delete. Idempotent: deleting
// a missing record succeeds.
func (s *EntitlementStore) Delete(ctx context.Context, email string) error {
	log := logger.FromContext(ctx)

	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM entitlements WHERE email = $1`, email); err != nil {
		return fmt.Errorf("failed to delete entitlement: %w", err)
	}

	log.Debug("entitlement deleted", "email", email)
	return nil
}

// WithTx implements store.EntitlementStore.WithTx.
func (s *EntitlementStore) WithTx(tx *sql.Tx) store.EntitlementStore {
	return &EntitlementStore{db: tx}
}

// requireRow maps a zero-row update to ErrEntitlementNotFound.
func requireRow(result sql.Result, operation string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for %s: %w", operation, err)
	}
	if affected == 0 {
		return store.ErrEntitlementNotFound
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
