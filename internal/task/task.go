package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/markoval/stylist-api/internal/domain"
)

// Status represents the current state of a task.
type Status string

// Possible task status values. Pending and processing are transient;
// completed and failed are terminal and never left.
const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Task kind identifiers.
const (
	// KindAnalyzeSite is the site analysis job.
	KindAnalyzeSite = "analyze_site"
)

// Common errors returned by the queue.
var (
	// ErrQueueUnavailable is returned when the durable backing store for
	// the queue cannot be reached. Callers must fall back to synchronous
	// execution.
	ErrQueueUnavailable = errors.New("task queue unavailable")

	// ErrTaskNotFound is returned for status queries against an unknown
	// id or one whose descriptor has expired out of the store.
	ErrTaskNotFound = errors.New("task not found")

	// ErrNoTask is returned by Dequeue when the poll timeout elapses with
	// nothing queued.
	ErrNoTask = errors.New("no task queued")

	// ErrUnknownKind is returned when a payload is submitted for a kind
	// no handler is registered for.
	ErrUnknownKind = errors.New("unknown task kind")
)

// Descriptor is the durable record describing one queued background job
// and its terminal outcome. Result and Error are mutually exclusive and
// set exactly once, on the transition into a terminal status.
type Descriptor struct {
	ID        uuid.UUID       `json:"id"`
	Kind      string          `json:"kind"`
	Payload   json.RawMessage `json:"payload"`
	Status    Status          `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at,omitempty"`
	Timeout   time.Duration   `json:"timeout"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// AnalyzeSitePayload is the input snapshot captured when a site analysis
// job is submitted. Each job kind carries its own typed payload so
// malformed submissions fail at submit time, not at execution time.
type AnalyzeSitePayload struct {
	Email    string       `json:"email"`
	URL      string       `json:"url"`
	Style    domain.Style `json:"style"`
	Occasion string       `json:"occasion"`
	UseCache bool         `json:"use_cache"`
}

// Validate checks the payload before it is accepted onto the queue.
func (p AnalyzeSitePayload) Validate() error {
	if p.Email == "" {
		return fmt.Errorf("%w: email is required", domain.ErrValidation)
	}
	if p.URL == "" {
		return fmt.Errorf("%w: url is required", domain.ErrValidation)
	}
	if domain.StyleIndex(p.Style) < 0 {
		return domain.ErrUnknownStyle
	}
	return nil
}

// AnalyzePayload decodes the descriptor's payload as an AnalyzeSitePayload.
func (d *Descriptor) AnalyzePayload() (AnalyzeSitePayload, error) {
	var p AnalyzeSitePayload
	if d.Kind != KindAnalyzeSite {
		return p, fmt.Errorf("%w: %q", ErrUnknownKind, d.Kind)
	}
	if err := json.Unmarshal(d.Payload, &p); err != nil {
		return p, fmt.Errorf("failed to decode analyze payload: %w", err)
	}
	return p, nil
}

// Queue is the durable FIFO of job descriptors.
type Queue interface {
	// Submit persists a pending descriptor and enqueues its id, returning
	// the generated task id. Fails fast with ErrQueueUnavailable when the
	// backing store cannot be reached.
	Submit(ctx context.Context, kind string, payload any, timeout time.Duration) (uuid.UUID, error)

	// Status returns the descriptor for the given id, or ErrTaskNotFound.
	Status(ctx context.Context, id uuid.UUID) (*Descriptor, error)

	// UpdateStatus sets the task status. At most one of result/errMsg may
	// be supplied, and only together with a terminal status.
	UpdateStatus(ctx context.Context, id uuid.UUID, status Status, result any, errMsg string) error

	// Dequeue blocks up to wait for the next queued task id, returning
	// ErrNoTask on timeout and ErrQueueUnavailable when the store is
	// unreachable. Submission order is preserved.
	Dequeue(ctx context.Context, wait time.Duration) (uuid.UUID, error)

	// Cleanup purges descriptors older than maxAge regardless of status
	// and returns how many were removed. It is a coarse safety net on top
	// of the store's TTL-based expiry, not a replacement for it.
	Cleanup(ctx context.Context, maxAge time.Duration) (int, error)

	// Ping reports whether the backing store is reachable.
	Ping(ctx context.Context) error
}

// Handler executes tasks of one kind.
type Handler interface {
	// Kind returns the task kind this handler serves.
	Kind() string

	// Handle runs the job and returns its result. Any error marks the
	// task failed; failure is terminal and is never retried automatically.
	Handle(ctx context.Context, task *Descriptor) (any, error)
}
