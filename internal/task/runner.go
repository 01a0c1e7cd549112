package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// RunnerConfig holds configuration for the task runner.
type RunnerConfig struct {
	// Concurrency is the ceiling on simultaneously processing tasks.
	// While the ceiling is reached the coordinating loop refuses to
	// dequeue further work.
	Concurrency int

	// PollTimeout bounds how long one blocking wait on the FIFO lasts.
	PollTimeout time.Duration

	// UnavailableDelay is how long the loop idles between probes while
	// the backing store is unreachable.
	UnavailableDelay time.Duration

	// CleanupInterval is how often old descriptors are purged.
	// If zero, periodic cleanup is disabled.
	CleanupInterval time.Duration

	// CleanupMaxAge is the age past which descriptors are purged.
	CleanupMaxAge time.Duration
}

// DefaultRunnerConfig returns a RunnerConfig with reasonable defaults.
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		Concurrency:      4,
		PollTimeout:      time.Second,
		UnavailableDelay: 10 * time.Second,
		CleanupInterval:  time.Hour,
		CleanupMaxAge:    24 * time.Hour,
	}
}

// Runner drives background task processing: a single coordinating loop
// dequeues ids from the durable FIFO and spawns one worker goroutine per
// task, tracking them in an in-flight set bounded by the concurrency
// ceiling.
type Runner struct {
	queue    Queue
	handlers map[string]Handler
	config   RunnerConfig
	logger   *slog.Logger

	mu       sync.Mutex
	inflight map[uuid.UUID]struct{}

	ctx        context.Context
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// NewRunner creates a new Runner. Handlers are registered with Register
// before Start is called.
func NewRunner(queue Queue, config RunnerConfig, logger *slog.Logger) *Runner {
	if config.Concurrency <= 0 {
		config.Concurrency = 1
	}
	if config.PollTimeout <= 0 {
		config.PollTimeout = time.Second
	}
	if config.UnavailableDelay <= 0 {
		config.UnavailableDelay = 10 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Runner{
		queue:      queue,
		handlers:   make(map[string]Handler),
		config:     config,
		logger:     logger.With("component", "task_runner"),
		inflight:   make(map[uuid.UUID]struct{}),
		ctx:        ctx,
		cancelFunc: cancel,
	}
}

// Register adds a handler for its task kind. Registering two handlers
// for one kind is a programming error.
func (r *Runner) Register(handler Handler) error {
	if _, exists := r.handlers[handler.Kind()]; exists {
		return fmt.Errorf("handler already registered for kind %q", handler.Kind())
	}
	r.handlers[handler.Kind()] = handler
	return nil
}

// Start launches the coordinating loop and, when configured, the
// periodic descriptor cleanup.
func (r *Runner) Start() {
	r.wg.Add(1)
	go r.coordinate()

	if r.config.CleanupInterval > 0 {
		r.wg.Add(1)
		go r.cleanupLoop()
	}

	r.logger.Info("task runner started",
		"concurrency", r.config.Concurrency,
		"poll_timeout", r.config.PollTimeout)
}

// Stop shuts the runner down, waiting for in-flight workers to finish.
func (r *Runner) Stop() {
	r.cancelFunc()
	r.wg.Wait()
	r.logger.Info("task runner stopped")
}

// InFlight returns the number of tasks currently processing.
func (r *Runner) InFlight() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.inflight)
}

// coordinate is the single loop that pulls work off the FIFO. When the
// backing store is unreachable it degrades to idle polling instead of
// crashing; newly submitted tasks are rejected by Submit until
// connectivity returns.
func (r *Runner) coordinate() {
	defer r.wg.Done()

	for {
		select {
		case <-r.ctx.Done():
			return
		default:
		}

		if err := r.queue.Ping(r.ctx); err != nil {
			r.logger.Warn("task queue backend unreachable, idling",
				"error", err,
				"retry_in", r.config.UnavailableDelay)
			r.sleep(r.config.UnavailableDelay)
			continue
		}

		if r.InFlight() >= r.config.Concurrency {
			r.sleep(time.Second)
			continue
		}

		id, err := r.queue.Dequeue(r.ctx, r.config.PollTimeout)
		if err != nil {
			if errors.Is(err, ErrNoTask) || r.ctx.Err() != nil {
				continue
			}
			r.logger.Error("failed to dequeue task", "error", err)
			r.sleep(5 * time.Second)
			continue
		}

		descriptor, err := r.queue.Status(r.ctx, id)
		if err != nil {
			// Descriptor may have expired between enqueue and dequeue.
			r.logger.Warn("dequeued task has no descriptor, skipping",
				"task_id", id,
				"error", err)
			continue
		}

		r.track(id)
		r.wg.Add(1)
		go r.execute(descriptor)
	}
}

// execute runs one task on its own goroutine. The task always leaves
// the in-flight set, whatever the outcome.
func (r *Runner) execute(descriptor *Descriptor) {
	defer r.wg.Done()
	defer r.untrack(descriptor.ID)

	logger := r.logger.With(
		"task_id", descriptor.ID,
		"task_kind", descriptor.Kind,
	)

	if err := r.queue.UpdateStatus(r.ctx, descriptor.ID, StatusProcessing, nil, ""); err != nil {
		logger.Error("failed to mark task processing", "error", err)
		return
	}

	logger.Info("processing task")

	handler, ok := r.handlers[descriptor.Kind]
	if !ok {
		logger.Error("no handler registered for task kind")
		r.finish(descriptor.ID, logger, nil, fmt.Errorf("%w: %q", ErrUnknownKind, descriptor.Kind))
		return
	}

	result, err := handler.Handle(r.ctx, descriptor)
	r.finish(descriptor.ID, logger, result, err)
}

// finish records the terminal status. Failure is terminal: the task is
// never retried automatically, the caller resubmits if desired.
func (r *Runner) finish(id uuid.UUID, logger *slog.Logger, result any, err error) {
	if err != nil {
		logger.Error("task failed", "error", err)
		if updateErr := r.queue.UpdateStatus(r.ctx, id, StatusFailed, nil, err.Error()); updateErr != nil {
			logger.Error("failed to record task failure", "error", updateErr)
		}
		return
	}

	logger.Info("task completed")
	if updateErr := r.queue.UpdateStatus(r.ctx, id, StatusCompleted, result, ""); updateErr != nil {
		logger.Error("failed to record task completion", "error", updateErr)
	}
}

// cleanupLoop periodically purges descriptors past the configured age.
func (r *Runner) cleanupLoop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.queue.Cleanup(r.ctx, r.config.CleanupMaxAge); err != nil {
				r.logger.Error("descriptor cleanup failed", "error", err)
			}
		}
	}
}

func (r *Runner) track(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inflight[id] = struct{}{}
}

func (r *Runner) untrack(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.inflight, id)
}

// sleep waits for d or until the runner is stopped.
func (r *Runner) sleep(d time.Duration) {
	select {
	case <-r.ctx.Done():
	case <-time.After(d):
	}
}
