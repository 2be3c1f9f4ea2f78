// Package watchdog force-fails tasks whose executor died without a trace.
//
// A task's heartbeat is refreshed on every persisted mutation; when it goes
// quiet for longer than the staleness threshold, the owning executor is
// presumed gone and the sweep fails the task and refunds its consumption.
// Sweeps run opportunistically before submissions and status reads rather
// than on a dedicated scheduler, so they must be cheap and idempotent.
package watchdog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/voxlate/voxlate-api/internal/domain"
	"github.com/voxlate/voxlate-api/internal/store"
)

const defaultStaleAfter = 10 * time.Minute

// Watchdog sweeps stale tasks into the failed state.
type Watchdog struct {
	tasks      store.TaskStore
	refunder   store.Refunder
	staleAfter time.Duration
	logger     *slog.Logger
}

// New creates a watchdog with the given staleness threshold. A
// non-positive threshold falls back to 10 minutes.
func New(tasks store.TaskStore, refunder store.Refunder, staleAfter time.Duration, logger *slog.Logger) *Watchdog {
	if staleAfter <= 0 {
		staleAfter = defaultStaleAfter
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watchdog{
		tasks:      tasks,
		refunder:   refunder,
		staleAfter: staleAfter,
		logger:     logger.With(slog.String("component", "watchdog")),
	}
}

// Sweep fails every task whose heartbeat is older than the threshold and
// refunds each one's ledger consumption. Concurrent sweeps and a still-live
// executor racing the sweep are both safe: the conditional status write has
// exactly one winner, and refunds are idempotent.
//
// One task's failure does not stop the sweep; the first error is returned
// after all stale tasks have been attempted.
func (w *Watchdog) Sweep(ctx context.Context) error {
	stale, err := w.tasks.ListStale(ctx, w.staleAfter)
	if err != nil {
		return fmt.Errorf("failed to list stale tasks: %w", err)
	}
	if len(stale) == 0 {
		return nil
	}

	w.logger.Info("sweeping stale tasks", slog.Int("count", len(stale)))

	var firstErr error
	for _, task := range stale {
		if err := w.reap(ctx, task); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (w *Watchdog) reap(ctx context.Context, task *domain.Task) error {
	log := w.logger.With(slog.String("task_id", task.ID.String()))

	failure := &domain.Failure{
		Reason: domain.FailureReasonTimeout,
		Detail: fmt.Sprintf("no liveness update for over %s", w.staleAfter),
	}
	err := w.tasks.TransitionStatus(ctx, task.ID, task.Status, domain.TaskStatusFailed,
		store.TaskUpdate{Failure: failure})
	if err != nil {
		if errors.Is(err, store.ErrStaleStatus) || store.IsNotFoundError(err) {
			// The task moved since we listed it; it is someone else's now.
			log.Debug("stale task changed under the sweep, skipping")
			return nil
		}
		log.Error("failed to fail stale task", slog.String("error", err.Error()))
		return err
	}

	log.Info("stale task failed by watchdog",
		slog.String("previous_status", string(task.Status)),
		slog.Time("last_heartbeat", task.HeartbeatAt))

	if task.LedgerRef == nil {
		return nil
	}
	if err := w.refunder.Refund(ctx, *task.LedgerRef); err != nil {
		log.Error("failed to refund swept task",
			slog.String("ledger_ref", task.LedgerRef.String()),
			slog.String("error", err.Error()))
		return err
	}
	return nil
}
