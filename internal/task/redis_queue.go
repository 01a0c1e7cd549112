package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/markoval/stylist-api/internal/platform/redis"
)

const (
	// queueKey is the FIFO ordering structure: ids are pushed at the head
	// and popped from the tail.
	queueKey = "task_queue"

	// descriptorKeyPrefix namespaces the per-task hashes.
	descriptorKeyPrefix = "task:"

	// descriptorTTLBuffer is added on top of the task timeout so a
	// finished descriptor stays queryable for a while after the job
	// would have gone stale.
	descriptorTTLBuffer = time.Minute
)

// RedisQueue implements Queue on top of redis: one hash per descriptor
// with a TTL, plus a list carrying the FIFO order.
type RedisQueue struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRedisQueue creates a RedisQueue on the given client.
func NewRedisQueue(client *redis.Client, logger *slog.Logger) *RedisQueue {
	return &RedisQueue{
		client: client,
		logger: logger.With("component", "task_queue"),
	}
}

// Ensure RedisQueue implements Queue.
var _ Queue = (*RedisQueue)(nil)

func descriptorKey(id uuid.UUID) string {
	return descriptorKeyPrefix + id.String()
}

// Submit implements Queue.Submit.
func (q *RedisQueue) Submit(ctx context.Context, kind string, payload any, timeout time.Duration) (uuid.UUID, error) {
	if kind != KindAnalyzeSite {
		return uuid.Nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	rawPayload, err := json.Marshal(payload)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to marshal task payload: %w", err)
	}

	id := uuid.New()
	now := time.Now().UTC()
	fields := map[string]string{
		"id":         id.String(),
		"kind":       kind,
		"payload":    string(rawPayload),
		"status":     string(StatusPending),
		"created_at": now.Format(time.RFC3339Nano),
		"timeout":    strconv.Itoa(int(timeout.Seconds())),
	}

	key := descriptorKey(id)
	if err := q.client.HSet(ctx, key, fields); err != nil {
		return uuid.Nil, fmt.Errorf("%w: %v", ErrQueueUnavailable, err)
	}
	if err := q.client.Expire(ctx, key, timeout+descriptorTTLBuffer); err != nil {
		return uuid.Nil, fmt.Errorf("%w: %v", ErrQueueUnavailable, err)
	}

	if err := q.client.LPush(ctx, queueKey, id.String()); err != nil {
		return uuid.Nil, fmt.Errorf("%w: %v", ErrQueueUnavailable, err)
	}

	q.logger.Info("task submitted",
		"task_id", id,
		"task_kind", kind,
		"timeout", timeout)
	return id, nil
}

// Status implements Queue.Status.
func (q *RedisQueue) Status(ctx context.Context, id uuid.UUID) (*Descriptor, error) {
	fields, err := q.client.HGetAll(ctx, descriptorKey(id))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQueueUnavailable, err)
	}
	if len(fields) == 0 {
		return nil, ErrTaskNotFound
	}
	return descriptorFromFields(id, fields)
}

// UpdateStatus implements Queue.UpdateStatus.
func (q *RedisQueue) UpdateStatus(ctx context.Context, id uuid.UUID, status Status, result any, errMsg string) error {
	if (result != nil || errMsg != "") && !status.Terminal() {
		return fmt.Errorf("result or error may only be set with a terminal status, got %q", status)
	}
	if result != nil && errMsg != "" {
		return errors.New("result and error are mutually exclusive")
	}

	fields := map[string]string{
		"status":     string(status),
		"updated_at": time.Now().UTC().Format(time.RFC3339Nano),
	}
	if result != nil {
		raw, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("failed to marshal task result: %w", err)
		}
		fields["result"] = string(raw)
	}
	if errMsg != "" {
		fields["error"] = errMsg
	}

	if err := q.client.HSet(ctx, descriptorKey(id), fields); err != nil {
		return fmt.Errorf("%w: %v", ErrQueueUnavailable, err)
	}
	return nil
}

// Dequeue implements Queue.Dequeue. The blocking pop pairs with the head
// push in Submit, so submission order is preserved end-to-end.
func (q *RedisQueue) Dequeue(ctx context.Context, wait time.Duration) (uuid.UUID, error) {
	value, err := q.client.BRPop(ctx, wait, queueKey)
	if err != nil {
		if errors.Is(err, redis.ErrKeyNotFound) {
			return uuid.Nil, ErrNoTask
		}
		return uuid.Nil, fmt.Errorf("%w: %v", ErrQueueUnavailable, err)
	}

	id, err := uuid.Parse(value)
	if err != nil {
		return uuid.Nil, fmt.Errorf("malformed task id %q on queue: %w", value, err)
	}
	return id, nil
}

// Cleanup implements Queue.Cleanup. Descriptors whose created_at cannot
// be parsed are treated as leaked and removed as well.
func (q *RedisQueue) Cleanup(ctx context.Context, maxAge time.Duration) (int, error) {
	keys, err := q.client.ScanKeys(ctx, descriptorKeyPrefix+"*")
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrQueueUnavailable, err)
	}

	cutoff := time.Now().UTC().Add(-maxAge)
	removed := 0
	for _, key := range keys {
		fields, err := q.client.HGetAll(ctx, key)
		if err != nil {
			return removed, fmt.Errorf("%w: %v", ErrQueueUnavailable, err)
		}
		if len(fields) == 0 {
			continue
		}

		createdAt, err := time.Parse(time.RFC3339Nano, fields["created_at"])
		if err != nil || createdAt.Before(cutoff) {
			if delErr := q.client.Delete(ctx, key); delErr != nil {
				return removed, fmt.Errorf("%w: %v", ErrQueueUnavailable, delErr)
			}
			removed++
		}
	}

	if removed > 0 {
		q.logger.Info("purged old task descriptors",
			"removed", removed,
			"max_age", maxAge)
	}
	return removed, nil
}

// Ping implements Queue.Ping.
func (q *RedisQueue) Ping(ctx context.Context) error {
	if err := q.client.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrQueueUnavailable, err)
	}
	return nil
}

// descriptorFromFields rebuilds a Descriptor from its redis hash.
func descriptorFromFields(id uuid.UUID, fields map[string]string) (*Descriptor, error) {
	d := &Descriptor{
		ID:      id,
		Kind:    fields["kind"],
		Status:  Status(fields["status"]),
		Payload: json.RawMessage(fields["payload"]),
		Error:   fields["error"],
	}
	if raw := fields["result"]; raw != "" {
		d.Result = json.RawMessage(raw)
	}

	if v := fields["created_at"]; v != "" {
		createdAt, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return nil, fmt.Errorf("malformed created_at on task %s: %w", id, err)
		}
		d.CreatedAt = createdAt
	}
	if v := fields["updated_at"]; v != "" {
		updatedAt, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return nil, fmt.Errorf("malformed updated_at on task %s: %w", id, err)
		}
		d.UpdatedAt = updatedAt
	}
	if v := fields["timeout"]; v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("malformed timeout on task %s: %w", id, err)
		}
		d.Timeout = time.Duration(secs) * time.Second
	}
	return d, nil
}
