package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/voxlate/voxlate-api/internal/domain"
	"github.com/voxlate/voxlate-api/internal/store"
)

// StatusService answers task status queries. Every read is preceded by a
// stale-task sweep so a poller never sees a task that looks alive but
// whose executor died; the first read after the staleness threshold
// observes failed with the credits already refunded.
type StatusService struct {
	tasks   store.TaskStore
	sweeper Sweeper
	logger  *slog.Logger
}

// NewStatusService creates the status query service.
func NewStatusService(tasks store.TaskStore, sweeper Sweeper, logger *slog.Logger) *StatusService {
	if logger == nil {
		logger = slog.Default()
	}
	return &StatusService{
		tasks:   tasks,
		sweeper: sweeper,
		logger:  logger.With(slog.String("component", "status_service")),
	}
}

// GetTask returns the owner's task. Tasks belonging to other owners are
// reported as not found rather than forbidden.
func (s *StatusService) GetTask(ctx context.Context, ownerID, taskID uuid.UUID) (*domain.Task, error) {
	if err := s.sweeper.Sweep(ctx); err != nil {
		s.logger.Warn("pre-read sweep failed", slog.String("error", err.Error()))
	}

	task, err := s.tasks.GetByID(ctx, taskID)
	if err != nil {
		if store.IsNotFoundError(err) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to load task: %w", err)
	}
	if task.OwnerID != ownerID {
		return nil, ErrTaskNotFound
	}
	return task, nil
}
