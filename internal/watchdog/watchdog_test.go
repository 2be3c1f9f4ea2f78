package watchdog

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxlate/voxlate-api/internal/domain"
	"github.com/voxlate/voxlate-api/internal/store"
)

// fakeTaskStore serves a scripted stale list and records transitions.
type fakeTaskStore struct {
	stale         []*domain.Task
	listErr       error
	transitionErr map[uuid.UUID]error
	transitions   []transition
}

type transition struct {
	id       uuid.UUID
	from, to domain.TaskStatus
	failure  *domain.Failure
}

func (s *fakeTaskStore) Create(context.Context, *domain.Task) error { return nil }

func (s *fakeTaskStore) GetByID(context.Context, uuid.UUID) (*domain.Task, error) {
	return nil, store.ErrTaskNotFound
}

func (s *fakeTaskStore) TransitionStatus(
	_ context.Context,
	id uuid.UUID,
	from, to domain.TaskStatus,
	update store.TaskUpdate,
) error {
	if err, ok := s.transitionErr[id]; ok {
		return err
	}
	s.transitions = append(s.transitions, transition{id: id, from: from, to: to, failure: update.Failure})
	return nil
}

func (s *fakeTaskStore) UpdateProgress(context.Context, uuid.UUID, domain.TaskStatus, int) error {
	return nil
}

func (s *fakeTaskStore) CountActiveByOwner(context.Context, uuid.UUID) (int, error) { return 0, nil }
func (s *fakeTaskStore) CountTrialByOwner(context.Context, uuid.UUID) (int, error)  { return 0, nil }

func (s *fakeTaskStore) ListStale(context.Context, time.Duration) ([]*domain.Task, error) {
	return s.stale, s.listErr
}

func (s *fakeTaskStore) WithTx(*sql.Tx) store.TaskStore { return s }

// fakeRefunder records refunded consumption IDs.
type fakeRefunder struct {
	refunded []uuid.UUID
	err      error
}

func (r *fakeRefunder) Refund(_ context.Context, id uuid.UUID) error {
	if r.err != nil {
		return r.err
	}
	r.refunded = append(r.refunded, id)
	return nil
}

func staleTask(status domain.TaskStatus, ledgerRef *uuid.UUID) *domain.Task {
	return &domain.Task{
		ID:          uuid.New(),
		OwnerID:     uuid.New(),
		SourceURL:   "https://example.com/video",
		OutputKind:  domain.OutputKindCaptions,
		Status:      status,
		LedgerRef:   ledgerRef,
		HeartbeatAt: time.Now().UTC().Add(-time.Hour),
	}
}

func TestSweepFailsStaleTasksAndRefunds(t *testing.T) {
	t.Parallel()

	consumptionID := uuid.New()
	paid := staleTask(domain.TaskStatusProcessing, &consumptionID)
	trial := staleTask(domain.TaskStatusTranslating, nil)

	tasks := &fakeTaskStore{stale: []*domain.Task{paid, trial}}
	refunder := &fakeRefunder{}
	w := New(tasks, refunder, time.Minute, slog.Default())

	require.NoError(t, w.Sweep(context.Background()))

	require.Len(t, tasks.transitions, 2)
	for _, tr := range tasks.transitions {
		assert.Equal(t, domain.TaskStatusFailed, tr.to)
		require.NotNil(t, tr.failure)
		assert.Equal(t, domain.FailureReasonTimeout, tr.failure.Reason)
	}
	assert.Equal(t, paid.Status, tasks.transitions[0].from,
		"the conditional write must key on the status the sweep observed")

	// Only the paid task refunds, with exactly its consumption
	assert.Equal(t, []uuid.UUID{consumptionID}, refunder.refunded)
}

func TestSweepNothingStale(t *testing.T) {
	t.Parallel()

	tasks := &fakeTaskStore{}
	refunder := &fakeRefunder{}
	w := New(tasks, refunder, time.Minute, slog.Default())

	require.NoError(t, w.Sweep(context.Background()))
	assert.Empty(t, tasks.transitions)
	assert.Empty(t, refunder.refunded)
}

func TestSweepSkipsTasksThatMovedUnderneath(t *testing.T) {
	t.Parallel()

	consumptionID := uuid.New()
	revived := staleTask(domain.TaskStatusProcessing, &consumptionID)

	tasks := &fakeTaskStore{
		stale:         []*domain.Task{revived},
		transitionErr: map[uuid.UUID]error{revived.ID: store.ErrStaleStatus},
	}
	refunder := &fakeRefunder{}
	w := New(tasks, refunder, time.Minute, slog.Default())

	// Losing the status race is not an error, and must not refund.
	require.NoError(t, w.Sweep(context.Background()))
	assert.Empty(t, refunder.refunded)
}

func TestSweepContinuesPastFailures(t *testing.T) {
	t.Parallel()

	broken := staleTask(domain.TaskStatusProcessing, nil)
	healthy := staleTask(domain.TaskStatusProcessing, nil)

	tasks := &fakeTaskStore{
		stale:         []*domain.Task{broken, healthy},
		transitionErr: map[uuid.UUID]error{broken.ID: errors.New("connection reset")},
	}
	w := New(tasks, &fakeRefunder{}, time.Minute, slog.Default())

	err := w.Sweep(context.Background())
	require.Error(t, err, "the first real failure is surfaced")
	require.Len(t, tasks.transitions, 1, "the sweep still reaped the healthy task")
	assert.Equal(t, healthy.ID, tasks.transitions[0].id)
}

func TestSweepListError(t *testing.T) {
	t.Parallel()

	tasks := &fakeTaskStore{listErr: errors.New("db gone")}
	w := New(tasks, &fakeRefunder{}, time.Minute, slog.Default())

	assert.Error(t, w.Sweep(context.Background()))
}
