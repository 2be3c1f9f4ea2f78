package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/voxlate/voxlate-api/internal/domain"
	"github.com/voxlate/voxlate-api/internal/platform/logger"
	"github.com/voxlate/voxlate-api/internal/store"
)

// PostgreSQL error codes
const pgUniqueViolationCode = "23505"

// taskColumns is the select list shared by every task query.
const taskColumns = `id, owner_id, platform, source_url, output_kind, target_lang,
	status, progress, metadata, captions, translation, storage_ref,
	storage_expires_at, failure_reason, failure_detail, ledger_ref,
	free_trial, heartbeat_at, created_at, updated_at`

// PostgresTaskStore implements the store.TaskStore interface
// using a PostgreSQL database as the storage backend.
type PostgresTaskStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresTaskStore creates a new PostgreSQL implementation of the TaskStore interface.
// It accepts a database connection or transaction that should be initialized and managed by the caller.
// If logger is nil, a default logger will be used.
func NewPostgresTaskStore(db store.DBTX, logger *slog.Logger) *PostgresTaskStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresTaskStore{
		db:     db,
		logger: logger.With(slog.String("component", "task_store")),
	}
}

// Ensure PostgresTaskStore implements store.TaskStore interface
var _ store.TaskStore = (*PostgresTaskStore)(nil)

// WithTx returns a new TaskStore that runs on the provided transaction.
func (s *PostgresTaskStore) WithTx(tx *sql.Tx) store.TaskStore {
	return &PostgresTaskStore{db: tx, logger: s.logger}
}

// Create implements store.TaskStore.Create
func (s *PostgresTaskStore) Create(ctx context.Context, task *domain.Task) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := task.Validate(); err != nil {
		log.Warn("task validation failed during create",
			slog.String("error", err.Error()),
			slog.String("task_id", task.ID.String()))
		return err
	}

	metadata, err := marshalMetadata(task.Metadata)
	if err != nil {
		return store.NewStoreError("task", "create", "failed to marshal metadata", err)
	}

	var failureReason, failureDetail sql.NullString
	if task.Failure != nil {
		failureReason = sql.NullString{String: string(task.Failure.Reason), Valid: true}
		failureDetail = sql.NullString{String: task.Failure.Detail, Valid: true}
	}

	query := `
		INSERT INTO tasks (id, owner_id, platform, source_url, output_kind, target_lang,
			status, progress, metadata, captions, translation, storage_ref,
			storage_expires_at, failure_reason, failure_detail, ledger_ref,
			free_trial, heartbeat_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
	`
	_, err = s.db.ExecContext(ctx, query,
		task.ID,
		task.OwnerID,
		task.Platform,
		task.SourceURL,
		task.OutputKind,
		task.TargetLang,
		task.Status,
		task.Progress,
		metadata,
		task.Captions,
		task.Translation,
		task.StorageRef,
		task.StorageExpiresAt,
		failureReason,
		failureDetail,
		task.LedgerRef,
		task.FreeTrial,
		task.HeartbeatAt,
		task.CreatedAt,
		task.UpdatedAt,
	)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolationCode {
			return fmt.Errorf("%w: task %s", store.ErrDuplicate, task.ID)
		}
		log.Error("failed to create task",
			slog.String("error", err.Error()),
			slog.String("task_id", task.ID.String()))
		return err
	}

	log.Info("task created successfully",
		slog.String("task_id", task.ID.String()),
		slog.String("owner_id", task.OwnerID.String()),
		slog.String("status", string(task.Status)))
	return nil
}

// GetByID implements store.TaskStore.GetByID
// Returns store.ErrTaskNotFound if the task does not exist.
func (s *PostgresTaskStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1`

	task, err := scanTask(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Debug("task not found", slog.String("task_id", id.String()))
			return nil, store.ErrTaskNotFound
		}
		log.Error("failed to get task by ID",
			slog.String("error", err.Error()),
			slog.String("task_id", id.String()))
		return nil, err
	}

	return task, nil
}

// TransitionStatus implements store.TaskStore.TransitionStatus.
// The write is conditional on the expected prior status; a stale writer
// (row already advanced by someone else) gets store.ErrStaleStatus instead
// of silently clobbering the newer state.
func (s *PostgresTaskStore) TransitionStatus(
	ctx context.Context,
	id uuid.UUID,
	from, to domain.TaskStatus,
	update store.TaskUpdate,
) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if !domain.CanTransition(from, to) {
		return domain.ErrInvalidTransition
	}

	now := time.Now().UTC()
	sets := []string{"status = $1", "heartbeat_at = $2", "updated_at = $2"}
	args := []any{to, now}
	idx := 3

	addSet := func(column string, value any) {
		sets = append(sets, fmt.Sprintf("%s = $%d", column, idx))
		args = append(args, value)
		idx++
	}

	if update.Progress != nil {
		sets = append(sets, fmt.Sprintf("progress = GREATEST(progress, $%d)", idx))
		args = append(args, *update.Progress)
		idx++
	}
	if update.Metadata != nil {
		metadata, err := marshalMetadata(update.Metadata)
		if err != nil {
			return store.NewStoreError("task", "transition", "failed to marshal metadata", err)
		}
		addSet("metadata", metadata)
	}
	if update.Captions != nil {
		addSet("captions", *update.Captions)
	}
	if update.Translation != nil {
		addSet("translation", *update.Translation)
	}
	if update.StorageRef != nil {
		addSet("storage_ref", *update.StorageRef)
	}
	if update.StorageExpiresAt != nil {
		addSet("storage_expires_at", *update.StorageExpiresAt)
	}
	if update.Failure != nil {
		addSet("failure_reason", string(update.Failure.Reason))
		addSet("failure_detail", update.Failure.Detail)
	}

	query := fmt.Sprintf(
		"UPDATE tasks SET %s WHERE id = $%d AND status = $%d",
		strings.Join(sets, ", "), idx, idx+1,
	)
	args = append(args, id, from)

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to transition task status",
			slog.String("error", err.Error()),
			slog.String("task_id", id.String()),
			slog.String("from", string(from)),
			slog.String("to", string(to)))
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		// Either the row is gone or another writer advanced it first.
		if _, getErr := s.GetByID(ctx, id); getErr != nil {
			return getErr
		}
		log.Warn("task status transition lost to a concurrent writer",
			slog.String("task_id", id.String()),
			slog.String("expected", string(from)),
			slog.String("target", string(to)))
		return store.ErrStaleStatus
	}

	log.Info("task status transitioned",
		slog.String("task_id", id.String()),
		slog.String("from", string(from)),
		slog.String("to", string(to)))
	return nil
}

// UpdateProgress implements store.TaskStore.UpdateProgress.
// GREATEST keeps progress monotone even if a slow writer delivers an old value.
func (s *PostgresTaskStore) UpdateProgress(
	ctx context.Context,
	id uuid.UUID,
	status domain.TaskStatus,
	progress int,
) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	now := time.Now().UTC()
	query := `
		UPDATE tasks
		SET progress = GREATEST(progress, $1), heartbeat_at = $2, updated_at = $2
		WHERE id = $3 AND status = $4
	`
	result, err := s.db.ExecContext(ctx, query, progress, now, id, status)
	if err != nil {
		log.Error("failed to update task progress",
			slog.String("error", err.Error()),
			slog.String("task_id", id.String()))
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		if _, getErr := s.GetByID(ctx, id); getErr != nil {
			return getErr
		}
		return store.ErrStaleStatus
	}
	return nil
}

// CountActiveByOwner implements store.TaskStore.CountActiveByOwner
func (s *PostgresTaskStore) CountActiveByOwner(ctx context.Context, ownerID uuid.UUID) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM tasks
		WHERE owner_id = $1 AND status NOT IN ($2, $3)
	`
	var count int
	err := s.db.QueryRowContext(ctx, query, ownerID,
		domain.TaskStatusCompleted, domain.TaskStatusFailed).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count active tasks: %w", err)
	}
	return count, nil
}

// CountTrialByOwner implements store.TaskStore.CountTrialByOwner
func (s *PostgresTaskStore) CountTrialByOwner(ctx context.Context, ownerID uuid.UUID) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM tasks
		WHERE owner_id = $1 AND free_trial = TRUE
	`
	var count int
	if err := s.db.QueryRowContext(ctx, query, ownerID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count trial tasks: %w", err)
	}
	return count, nil
}

// ListStale implements store.TaskStore.ListStale
func (s *PostgresTaskStore) ListStale(ctx context.Context, olderThan time.Duration) ([]*domain.Task, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	cutoff := time.Now().UTC().Add(-olderThan)
	query := `SELECT ` + taskColumns + `
		FROM tasks
		WHERE status NOT IN ($1, $2) AND heartbeat_at < $3
		ORDER BY heartbeat_at ASC
	`

	rows, err := s.db.QueryContext(ctx, query,
		domain.TaskStatusCompleted, domain.TaskStatusFailed, cutoff)
	if err != nil {
		log.Error("failed to query stale tasks", slog.String("error", err.Error()))
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			log.Error("failed to close rows", slog.String("error", err.Error()))
		}
	}()

	var tasks []*domain.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			log.Error("failed to scan task row", slog.String("error", err.Error()))
			return nil, err
		}
		tasks = append(tasks, task)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	if tasks == nil {
		tasks = []*domain.Task{}
	}
	return tasks, nil
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*domain.Task, error) {
	var task domain.Task
	var status, outputKind string
	var targetLang sql.NullString
	var metadata []byte
	var captions, translation, storageRef sql.NullString
	var storageExpiresAt sql.NullTime
	var failureReason, failureDetail sql.NullString
	var ledgerRef uuid.NullUUID

	err := row.Scan(
		&task.ID,
		&task.OwnerID,
		&task.Platform,
		&task.SourceURL,
		&outputKind,
		&targetLang,
		&status,
		&task.Progress,
		&metadata,
		&captions,
		&translation,
		&storageRef,
		&storageExpiresAt,
		&failureReason,
		&failureDetail,
		&ledgerRef,
		&task.FreeTrial,
		&task.HeartbeatAt,
		&task.CreatedAt,
		&task.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	task.Status = domain.TaskStatus(status)
	task.OutputKind = domain.OutputKind(outputKind)
	task.TargetLang = targetLang.String

	if len(metadata) > 0 {
		var m domain.MediaMetadata
		if err := json.Unmarshal(metadata, &m); err != nil {
			return nil, fmt.Errorf("failed to unmarshal task metadata: %w", err)
		}
		task.Metadata = &m
	}
	if captions.Valid {
		task.Captions = &captions.String
	}
	if translation.Valid {
		task.Translation = &translation.String
	}
	if storageRef.Valid {
		task.StorageRef = &storageRef.String
	}
	if storageExpiresAt.Valid {
		t := storageExpiresAt.Time
		task.StorageExpiresAt = &t
	}
	if failureReason.Valid {
		task.Failure = &domain.Failure{
			Reason: domain.FailureReason(failureReason.String),
			Detail: failureDetail.String,
		}
	}
	if ledgerRef.Valid {
		ref := ledgerRef.UUID
		task.LedgerRef = &ref
	}

	return &task, nil
}

func marshalMetadata(m *domain.MediaMetadata) ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}
