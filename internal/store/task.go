package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/voxlate/voxlate-api/internal/domain"
)

// TaskUpdate carries the optional fields a status transition may set
// alongside the new status. Nil fields are left untouched.
type TaskUpdate struct {
	Progress         *int
	Metadata         *domain.MediaMetadata
	Captions         *string
	Translation      *string
	StorageRef       *string
	StorageExpiresAt *time.Time
	Failure          *domain.Failure
}

// TaskStore defines the interface for persisting tasks.
//
// All mutations are conditional on the caller's view of the row: writes
// carry the expected prior status and lose (ErrStaleStatus) when a
// concurrent writer got there first. Every successful non-terminal write
// also refreshes the liveness heartbeat; the watchdog has no other signal.
type TaskStore interface {
	// Create persists a new task.
	Create(ctx context.Context, task *domain.Task) error

	// GetByID retrieves a task by its unique ID.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error)

	// TransitionStatus moves a task from the expected prior status to the
	// next status, applying the update's non-nil fields and refreshing the
	// heartbeat. Returns ErrStaleStatus when the row's status no longer
	// matches `from`, which is how stale writers are rejected.
	TransitionStatus(ctx context.Context, id uuid.UUID, from, to domain.TaskStatus, update TaskUpdate) error

	// UpdateProgress raises the progress of a task that is still in the
	// given status, refreshing the heartbeat. Decreases are ignored at the
	// SQL level so progress stays monotone. Returns ErrStaleStatus when the
	// status no longer matches.
	UpdateProgress(ctx context.Context, id uuid.UUID, status domain.TaskStatus, progress int) error

	// CountActiveByOwner counts the owner's non-terminal tasks, which is
	// what plan concurrency caps are checked against.
	CountActiveByOwner(ctx context.Context, ownerID uuid.UUID) (int, error)

	// CountTrialByOwner counts the owner's free-trial tasks across all
	// statuses, for trial-availability checks.
	CountTrialByOwner(ctx context.Context, ownerID uuid.UUID) (int, error)

	// ListStale returns non-terminal tasks whose heartbeat is older than
	// the given duration, oldest first.
	ListStale(ctx context.Context, olderThan time.Duration) ([]*domain.Task, error)

	// WithTx returns a new TaskStore instance that uses the provided transaction.
	// The transaction should be created and managed by the caller (typically a service).
	WithTx(tx *sql.Tx) TaskStore
}
