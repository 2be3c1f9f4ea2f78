package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/voxlate/voxlate-api/internal/dispatch"
	"github.com/voxlate/voxlate-api/internal/domain"
	"github.com/voxlate/voxlate-api/internal/store"
)

// Sweeper clears stale tasks before plan checks read task counts. The
// watchdog implements it.
type Sweeper interface {
	Sweep(ctx context.Context) error
}

// TaskDispatcher hands an accepted task off for asynchronous execution.
type TaskDispatcher interface {
	Dispatch(ctx context.Context, msg dispatch.Message) error
}

// SubmitRequest is one task submission.
type SubmitRequest struct {
	OwnerID    uuid.UUID
	SourceURL  string
	OutputKind domain.OutputKind
	TargetLang string
}

// SubmitService is the submission coordinator: it validates, enforces plan
// policy, records the task and its credit consumption atomically, and
// dispatches execution.
type SubmitService struct {
	tx         store.TxManager
	tasks      store.TaskStore
	ledger     store.LedgerStore
	plan       PlanPolicy
	dispatcher TaskDispatcher
	sweeper    Sweeper
	logger     *slog.Logger
}

// NewSubmitService creates the submission coordinator.
func NewSubmitService(
	tx store.TxManager,
	tasks store.TaskStore,
	ledger store.LedgerStore,
	plan PlanPolicy,
	dispatcher TaskDispatcher,
	sweeper Sweeper,
	logger *slog.Logger,
) *SubmitService {
	if logger == nil {
		logger = slog.Default()
	}
	return &SubmitService{
		tx:         tx,
		tasks:      tasks,
		ledger:     ledger,
		plan:       plan,
		dispatcher: dispatcher,
		sweeper:    sweeper,
		logger:     logger.With(slog.String("component", "submit_service")),
	}
}

// Submit accepts one task. On success the task is persisted in pending,
// credits (if any) are consumed in the same transaction, and execution has
// been dispatched. The returned task is the caller's receipt.
func (s *SubmitService) Submit(ctx context.Context, req SubmitRequest) (*domain.Task, error) {
	if req.OwnerID == uuid.Nil {
		return nil, fmt.Errorf("%w: owner is required", ErrInvalidSubmission)
	}
	if err := domain.ValidateSourceURL(req.SourceURL); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSubmission, err)
	}
	if req.OutputKind != domain.OutputKindCaptions && req.OutputKind != domain.OutputKindMediaFile {
		return nil, fmt.Errorf("%w: unknown output kind %q", ErrInvalidSubmission, req.OutputKind)
	}
	if req.TargetLang != "" && req.OutputKind != domain.OutputKindCaptions {
		return nil, fmt.Errorf("%w: translation requires captions output", ErrInvalidSubmission)
	}

	// Clear abandoned tasks first so a dead task does not hold a
	// concurrency slot against this submission.
	if err := s.sweeper.Sweep(ctx); err != nil {
		s.logger.Warn("pre-submission sweep failed", slog.String("error", err.Error()))
	}

	limits, err := s.plan.Limits(ctx, req.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve plan limits: %w", err)
	}

	if limits.MaxConcurrentTasks > 0 {
		active, err := s.tasks.CountActiveByOwner(ctx, req.OwnerID)
		if err != nil {
			return nil, fmt.Errorf("failed to count active tasks: %w", err)
		}
		if active >= limits.MaxConcurrentTasks {
			return nil, fmt.Errorf("%w: %d of %d slots in use",
				ErrTooManyActiveTasks, active, limits.MaxConcurrentTasks)
		}
	}

	task, err := domain.NewTask(req.OwnerID, req.SourceURL, req.OutputKind, req.TargetLang)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSubmission, err)
	}

	freeTrial, err := s.trialApplies(ctx, req.OwnerID, limits)
	if err != nil {
		return nil, err
	}
	task.FreeTrial = freeTrial

	err = s.tx.RunInTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if !freeTrial {
			consumption, err := s.ledger.WithTx(tx).Consume(ctx, req.OwnerID, limits.TaskCost, domain.LedgerSceneTaskCost)
			if err != nil {
				return err
			}
			task.LedgerRef = &consumption.ID
		}
		return s.tasks.WithTx(tx).Create(ctx, task)
	})
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientCredits) {
			return nil, fmt.Errorf("%w: task costs %d credits", ErrInsufficientBalance, limits.TaskCost)
		}
		return nil, fmt.Errorf("failed to record task: %w", err)
	}

	s.logger.Info("task accepted",
		slog.String("task_id", task.ID.String()),
		slog.String("owner_id", req.OwnerID.String()),
		slog.String("platform", task.Platform),
		slog.String("output_kind", string(req.OutputKind)),
		slog.Bool("free_trial", freeTrial))

	// Dispatch outside the transaction: the task row is the source of
	// truth, and the watchdog will eventually reap a task nothing picked
	// up. The timer strategy makes total dispatch failure near-impossible.
	msg := dispatch.Message{
		TaskID:             task.ID,
		OwnerID:            task.OwnerID,
		SourceURL:          task.SourceURL,
		OutputKind:         task.OutputKind,
		TargetLang:         task.TargetLang,
		MaxDurationSeconds: limits.MaxDurationSeconds,
	}
	if err := s.dispatcher.Dispatch(ctx, msg); err != nil {
		s.logger.Error("dispatch failed on all strategies, leaving task to the watchdog",
			slog.String("task_id", task.ID.String()),
			slog.String("error", err.Error()))
	}

	return task, nil
}

// trialApplies decides whether this submission rides the free trial.
// Paid credit is never preferred over an available trial slot.
func (s *SubmitService) trialApplies(ctx context.Context, ownerID uuid.UUID, limits PlanLimits) (bool, error) {
	if !limits.FreeTrialEnabled || limits.FreeTrialTasks <= 0 {
		return false, nil
	}
	used, err := s.tasks.CountTrialByOwner(ctx, ownerID)
	if err != nil {
		return false, fmt.Errorf("failed to count trial tasks: %w", err)
	}
	return used < limits.FreeTrialTasks, nil
}
