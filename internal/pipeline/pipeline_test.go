package pipeline

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxlate/voxlate-api/internal/dispatch"
	"github.com/voxlate/voxlate-api/internal/domain"
	"github.com/voxlate/voxlate-api/internal/generation"
	"github.com/voxlate/voxlate-api/internal/provider"
	"github.com/voxlate/voxlate-api/internal/storage"
	"github.com/voxlate/voxlate-api/internal/store"
)

// memTaskStore is an in-memory TaskStore with the same conditional-write
// semantics as the Postgres implementation.
type memTaskStore struct {
	mu               sync.Mutex
	tasks            map[uuid.UUID]*domain.Task
	failTransitionTo map[domain.TaskStatus]error
	progressUpdates  []progressUpdate
}

type progressUpdate struct {
	status   domain.TaskStatus
	progress int
}

func newMemTaskStore(tasks ...*domain.Task) *memTaskStore {
	s := &memTaskStore{
		tasks:            make(map[uuid.UUID]*domain.Task),
		failTransitionTo: make(map[domain.TaskStatus]error),
	}
	for _, task := range tasks {
		s.tasks[task.ID] = task
	}
	return s
}

func (s *memTaskStore) Create(_ context.Context, task *domain.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[task.ID] = task
	return nil
}

func (s *memTaskStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok {
		return nil, store.ErrTaskNotFound
	}
	copied := *task
	return &copied, nil
}

func (s *memTaskStore) TransitionStatus(
	_ context.Context,
	id uuid.UUID,
	from, to domain.TaskStatus,
	update store.TaskUpdate,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err, ok := s.failTransitionTo[to]; ok {
		return err
	}

	task, ok := s.tasks[id]
	if !ok {
		return store.ErrTaskNotFound
	}
	if task.Status != from {
		return store.ErrStaleStatus
	}
	if !domain.CanTransition(from, to) {
		return domain.ErrInvalidTransition
	}

	task.Status = to
	if update.Progress != nil && *update.Progress > task.Progress {
		task.Progress = *update.Progress
	}
	if update.Metadata != nil {
		task.Metadata = update.Metadata
	}
	if update.Captions != nil {
		task.Captions = update.Captions
	}
	if update.Translation != nil {
		task.Translation = update.Translation
	}
	if update.StorageRef != nil {
		task.StorageRef = update.StorageRef
	}
	if update.StorageExpiresAt != nil {
		task.StorageExpiresAt = update.StorageExpiresAt
	}
	if update.Failure != nil {
		task.Failure = update.Failure
	}
	task.HeartbeatAt = time.Now().UTC()
	return nil
}

func (s *memTaskStore) UpdateProgress(_ context.Context, id uuid.UUID, status domain.TaskStatus, progress int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok {
		return store.ErrTaskNotFound
	}
	if task.Status != status {
		return store.ErrStaleStatus
	}
	if progress > task.Progress {
		task.Progress = progress
	}
	task.HeartbeatAt = time.Now().UTC()
	s.progressUpdates = append(s.progressUpdates, progressUpdate{status: status, progress: progress})
	return nil
}

func (s *memTaskStore) CountActiveByOwner(context.Context, uuid.UUID) (int, error) { return 0, nil }
func (s *memTaskStore) CountTrialByOwner(context.Context, uuid.UUID) (int, error)  { return 0, nil }
func (s *memTaskStore) ListStale(context.Context, time.Duration) ([]*domain.Task, error) {
	return nil, nil
}
func (s *memTaskStore) WithTx(*sql.Tx) store.TaskStore { return s }

type fakeRefunder struct {
	refunded []uuid.UUID
}

func (r *fakeRefunder) Refund(_ context.Context, id uuid.UUID) error {
	r.refunded = append(r.refunded, id)
	return nil
}

type fakeCache struct {
	entry  *domain.CacheEntry
	stored []*domain.CacheEntry
}

func (c *fakeCache) Lookup(context.Context, string) (*domain.CacheEntry, error) {
	return c.entry, nil
}

func (c *fakeCache) Store(_ context.Context, entry *domain.CacheEntry, _ time.Duration) error {
	c.stored = append(c.stored, entry)
	return nil
}

type fakeFetcher struct {
	result *provider.FetchResult
	err    error
	calls  int
}

func (f *fakeFetcher) Fetch(context.Context, provider.FetchRequest) (*provider.FetchResult, error) {
	f.calls++
	return f.result, f.err
}

type fakeTranslator struct {
	text  string
	err   error
	last  generation.Request
	calls int
}

func (t *fakeTranslator) Translate(_ context.Context, req generation.Request) (string, error) {
	t.calls++
	t.last = req
	return t.text, t.err
}

type fakeMediaStore struct {
	result *storage.UploadResult
	err    error
	calls  int
}

func (m *fakeMediaStore) Upload(context.Context, string, string) (*storage.UploadResult, error) {
	m.calls++
	return m.result, m.err
}

func pendingTask(kind domain.OutputKind, targetLang string, ledgerRef *uuid.UUID) *domain.Task {
	task, _ := domain.NewTask(uuid.New(), "https://example.com/video", kind, targetLang)
	task.LedgerRef = ledgerRef
	return task
}

func messageFor(task *domain.Task) dispatch.Message {
	return dispatch.Message{
		TaskID:     task.ID,
		OwnerID:    task.OwnerID,
		SourceURL:  task.SourceURL,
		OutputKind: task.OutputKind,
		TargetLang: task.TargetLang,
	}
}

func captionsResult() *provider.FetchResult {
	return &provider.FetchResult{
		Platform: "web",
		Metadata: domain.MediaMetadata{Title: "A Video", ViewCount: 100},
		Captions: "1\n00:00:01,000 --> 00:00:02,000\nhello\n",
	}
}

func newTestExecutor(
	tasks store.TaskStore,
	refunder store.Refunder,
	cache store.ResultCache,
	fetcher Fetcher,
	translator generation.Translator,
	media storage.MediaStore,
) *Executor {
	return NewExecutor(tasks, refunder, cache, fetcher, translator, media, slog.Default())
}

func TestRunCaptionsWithoutTranslation(t *testing.T) {
	t.Parallel()

	task := pendingTask(domain.OutputKindCaptions, "", nil)
	tasks := newMemTaskStore(task)
	fetcher := &fakeFetcher{result: captionsResult()}
	translator := &fakeTranslator{}
	refunder := &fakeRefunder{}

	e := newTestExecutor(tasks, refunder, &fakeCache{}, fetcher, translator, nil)
	require.NoError(t, e.Run(context.Background(), messageFor(task)))

	final, err := tasks.GetByID(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusCompleted, final.Status)
	assert.Equal(t, 100, final.Progress)
	require.NotNil(t, final.Captions)
	assert.Contains(t, *final.Captions, "hello")
	require.NotNil(t, final.Metadata)
	assert.Equal(t, "A Video", final.Metadata.Title)
	assert.Equal(t, 0, translator.calls)
	assert.Empty(t, refunder.refunded)
}

func TestRunCaptionsWithTranslation(t *testing.T) {
	t.Parallel()

	task := pendingTask(domain.OutputKindCaptions, "es", nil)
	tasks := newMemTaskStore(task)
	fetcher := &fakeFetcher{result: captionsResult()}
	translator := &fakeTranslator{text: "hola"}

	e := newTestExecutor(tasks, &fakeRefunder{}, &fakeCache{}, fetcher, translator, nil)
	require.NoError(t, e.Run(context.Background(), messageFor(task)))

	final, _ := tasks.GetByID(context.Background(), task.ID)
	assert.Equal(t, domain.TaskStatusCompleted, final.Status)
	require.NotNil(t, final.Translation)
	assert.Equal(t, "hola", *final.Translation)
	assert.Equal(t, 1, translator.calls)
	assert.Equal(t, "es", translator.last.TargetLang)
	assert.Contains(t, translator.last.Text, "hello")
}

func TestRunMediaCacheHitSkipsProviders(t *testing.T) {
	t.Parallel()

	task := pendingTask(domain.OutputKindMediaFile, "", nil)
	tasks := newMemTaskStore(task)
	fetcher := &fakeFetcher{err: errors.New("must not be called")}
	cache := &fakeCache{entry: &domain.CacheEntry{
		Fingerprint: domain.Fingerprint(task.SourceURL),
		MediaRef:    "https://cdn.example.com/cached.mp4",
		ExpiresAt:   time.Now().UTC().Add(time.Hour),
	}}

	e := newTestExecutor(tasks, &fakeRefunder{}, cache, fetcher, &fakeTranslator{}, nil)
	require.NoError(t, e.Run(context.Background(), messageFor(task)))

	final, _ := tasks.GetByID(context.Background(), task.ID)
	assert.Equal(t, domain.TaskStatusCompleted, final.Status)
	require.NotNil(t, final.StorageRef)
	assert.Equal(t, "https://cdn.example.com/cached.mp4", *final.StorageRef)
	assert.Equal(t, 0, fetcher.calls, "a cache hit must not touch the providers")
}

func TestRunMediaStoresAndCaches(t *testing.T) {
	t.Parallel()

	task := pendingTask(domain.OutputKindMediaFile, "", nil)
	tasks := newMemTaskStore(task)
	result := captionsResult()
	result.MediaURL = "https://provider.example.com/raw.mp4"
	fetcher := &fakeFetcher{result: result}
	cache := &fakeCache{}
	media := &fakeMediaStore{result: &storage.UploadResult{
		StorageRef: "https://cdn.example.com/hosted.mp4",
		ExpiresAt:  time.Now().UTC().Add(48 * time.Hour),
	}}

	e := newTestExecutor(tasks, &fakeRefunder{}, cache, fetcher, &fakeTranslator{}, media)
	require.NoError(t, e.Run(context.Background(), messageFor(task)))

	final, _ := tasks.GetByID(context.Background(), task.ID)
	assert.Equal(t, domain.TaskStatusCompleted, final.Status)
	require.NotNil(t, final.StorageRef)
	assert.Equal(t, "https://cdn.example.com/hosted.mp4", *final.StorageRef)
	assert.Equal(t, 1, media.calls)

	require.Len(t, cache.stored, 1)
	assert.Equal(t, "https://cdn.example.com/hosted.mp4", cache.stored[0].MediaRef)
	assert.Equal(t, domain.Fingerprint(task.SourceURL), cache.stored[0].Fingerprint)
}

func TestRunMediaDegradesWhenStorageFails(t *testing.T) {
	t.Parallel()

	task := pendingTask(domain.OutputKindMediaFile, "", nil)
	tasks := newMemTaskStore(task)
	result := captionsResult()
	result.MediaURL = "https://provider.example.com/raw.mp4"
	fetcher := &fakeFetcher{result: result}
	media := &fakeMediaStore{err: storage.ErrUploadFailed}

	e := newTestExecutor(tasks, &fakeRefunder{}, &fakeCache{}, fetcher, &fakeTranslator{}, media)
	require.NoError(t, e.Run(context.Background(), messageFor(task)))

	// Storage failure degrades to the provider URL instead of failing.
	final, _ := tasks.GetByID(context.Background(), task.ID)
	assert.Equal(t, domain.TaskStatusCompleted, final.Status)
	require.NotNil(t, final.StorageRef)
	assert.Equal(t, "https://provider.example.com/raw.mp4", *final.StorageRef)
	require.NotNil(t, final.StorageExpiresAt)
	assert.Less(t, time.Until(*final.StorageExpiresAt), 2*time.Hour,
		"degraded references carry a short expiry")
}

func TestRunAllProvidersFailRefunds(t *testing.T) {
	t.Parallel()

	consumptionID := uuid.New()
	task := pendingTask(domain.OutputKindCaptions, "", &consumptionID)
	tasks := newMemTaskStore(task)
	fetcher := &fakeFetcher{err: &provider.CombinedError{
		Primary: &provider.ClassifiedError{Provider: "a", Classification: provider.ClassQuotaExceeded, Message: "quota"},
		Backup:  &provider.ClassifiedError{Provider: "b", Classification: provider.ClassNoUsableData, Message: "none"},
	}}
	refunder := &fakeRefunder{}

	e := newTestExecutor(tasks, refunder, &fakeCache{}, fetcher, &fakeTranslator{}, nil)
	require.NoError(t, e.Run(context.Background(), messageFor(task)))

	final, _ := tasks.GetByID(context.Background(), task.ID)
	assert.Equal(t, domain.TaskStatusFailed, final.Status)
	require.NotNil(t, final.Failure)
	assert.Equal(t, domain.FailureReasonProvider, final.Failure.Reason)
	assert.Contains(t, final.Failure.Detail, "quota")
	assert.Contains(t, final.Failure.Detail, "none")
	assert.Equal(t, []uuid.UUID{consumptionID}, refunder.refunded)
}

func TestRunAllProvidersTimeOut(t *testing.T) {
	t.Parallel()

	task := pendingTask(domain.OutputKindCaptions, "", nil)
	tasks := newMemTaskStore(task)
	fetcher := &fakeFetcher{err: &provider.CombinedError{
		Primary: &provider.ClassifiedError{Provider: "a", Classification: provider.ClassNetworkTimeout, Message: "t"},
		Backup:  &provider.ClassifiedError{Provider: "b", Classification: provider.ClassNetworkTimeout, Message: "t"},
	}}

	e := newTestExecutor(tasks, &fakeRefunder{}, &fakeCache{}, fetcher, &fakeTranslator{}, nil)
	require.NoError(t, e.Run(context.Background(), messageFor(task)))

	final, _ := tasks.GetByID(context.Background(), task.ID)
	require.NotNil(t, final.Failure)
	assert.Equal(t, domain.FailureReasonTimeout, final.Failure.Reason)
}

func TestRunTranslationFailureRefunds(t *testing.T) {
	t.Parallel()

	consumptionID := uuid.New()
	task := pendingTask(domain.OutputKindCaptions, "fr", &consumptionID)
	tasks := newMemTaskStore(task)
	fetcher := &fakeFetcher{result: captionsResult()}
	translator := &fakeTranslator{err: generation.ErrContentBlocked}
	refunder := &fakeRefunder{}

	e := newTestExecutor(tasks, refunder, &fakeCache{}, fetcher, translator, nil)
	require.NoError(t, e.Run(context.Background(), messageFor(task)))

	final, _ := tasks.GetByID(context.Background(), task.ID)
	assert.Equal(t, domain.TaskStatusFailed, final.Status)
	require.NotNil(t, final.Failure)
	assert.Equal(t, domain.FailureReasonProvider, final.Failure.Reason)
	assert.Equal(t, []uuid.UUID{consumptionID}, refunder.refunded)
}

func TestRunAlreadyClaimedBacksOff(t *testing.T) {
	t.Parallel()

	task := pendingTask(domain.OutputKindCaptions, "", nil)
	require.NoError(t, task.UpdateStatus(domain.TaskStatusProcessing))
	tasks := newMemTaskStore(task)
	fetcher := &fakeFetcher{result: captionsResult()}

	e := newTestExecutor(tasks, &fakeRefunder{}, &fakeCache{}, fetcher, &fakeTranslator{}, nil)

	// A second executor racing on the same task loses the claim write and
	// backs off without side effects.
	require.NoError(t, e.Run(context.Background(), messageFor(task)))
	assert.Equal(t, 0, fetcher.calls)

	final, _ := tasks.GetByID(context.Background(), task.ID)
	assert.Equal(t, domain.TaskStatusProcessing, final.Status)
}

func TestRunDoubleExecutionCompletesOnce(t *testing.T) {
	t.Parallel()

	task := pendingTask(domain.OutputKindCaptions, "", nil)
	tasks := newMemTaskStore(task)
	fetcher := &fakeFetcher{result: captionsResult()}

	e := newTestExecutor(tasks, &fakeRefunder{}, &fakeCache{}, fetcher, &fakeTranslator{}, nil)
	require.NoError(t, e.Run(context.Background(), messageFor(task)))
	require.NoError(t, e.Run(context.Background(), messageFor(task)), "redelivery must be harmless")

	assert.Equal(t, 1, fetcher.calls)
	final, _ := tasks.GetByID(context.Background(), task.ID)
	assert.Equal(t, domain.TaskStatusCompleted, final.Status)
}

func TestRunPersistenceFailureFailsTaskAndRefunds(t *testing.T) {
	t.Parallel()

	consumptionID := uuid.New()
	task := pendingTask(domain.OutputKindCaptions, "", &consumptionID)
	tasks := newMemTaskStore(task)
	tasks.failTransitionTo[domain.TaskStatusExtracted] = errors.New("connection reset by peer")
	fetcher := &fakeFetcher{result: captionsResult()}
	refunder := &fakeRefunder{}

	e := newTestExecutor(tasks, refunder, &fakeCache{}, fetcher, &fakeTranslator{}, nil)
	require.NoError(t, e.Run(context.Background(), messageFor(task)))

	final, _ := tasks.GetByID(context.Background(), task.ID)
	assert.Equal(t, domain.TaskStatusFailed, final.Status)
	require.NotNil(t, final.Failure)
	assert.Equal(t, domain.FailureReasonPersistence, final.Failure.Reason)
	assert.Equal(t, []uuid.UUID{consumptionID}, refunder.refunded)
}

func TestRunHeartbeatsBeforeLongSteps(t *testing.T) {
	t.Parallel()

	task := pendingTask(domain.OutputKindCaptions, "it", nil)
	tasks := newMemTaskStore(task)
	fetcher := &fakeFetcher{result: captionsResult()}
	translator := &fakeTranslator{text: "ciao"}

	e := newTestExecutor(tasks, &fakeRefunder{}, &fakeCache{}, fetcher, translator, nil)
	require.NoError(t, e.Run(context.Background(), messageFor(task)))

	// Liveness is refreshed ahead of the provider fetch and the LLM call,
	// the two steps that can outlast a watchdog staleness window.
	require.Len(t, tasks.progressUpdates, 2)
	assert.Equal(t, progressUpdate{status: domain.TaskStatusProcessing, progress: 25}, tasks.progressUpdates[0])
	assert.Equal(t, progressUpdate{status: domain.TaskStatusTranslating, progress: 80}, tasks.progressUpdates[1])
}

func floatPtr(v float64) *float64 { return &v }

func TestRunDurationOverPlanLimitFailsAndRefunds(t *testing.T) {
	t.Parallel()

	consumptionID := uuid.New()
	task := pendingTask(domain.OutputKindCaptions, "", &consumptionID)
	tasks := newMemTaskStore(task)

	result := captionsResult()
	result.Metadata.DurationSeconds = floatPtr(7200)
	fetcher := &fakeFetcher{result: result}
	refunder := &fakeRefunder{}

	e := newTestExecutor(tasks, refunder, &fakeCache{}, fetcher, &fakeTranslator{}, nil)
	msg := messageFor(task)
	msg.MaxDurationSeconds = 3600
	require.NoError(t, e.Run(context.Background(), msg))

	final, _ := tasks.GetByID(context.Background(), task.ID)
	assert.Equal(t, domain.TaskStatusFailed, final.Status)
	require.NotNil(t, final.Failure)
	assert.Equal(t, domain.FailureReasonProvider, final.Failure.Reason)
	assert.Contains(t, final.Failure.Detail, "duration")
	assert.Equal(t, []uuid.UUID{consumptionID}, refunder.refunded)
}

func TestRunDurationLimitEdgeCases(t *testing.T) {
	t.Parallel()

	within := captionsResult()
	within.Metadata.DurationSeconds = floatPtr(3600)

	unknown := captionsResult()

	cases := []struct {
		name   string
		result *provider.FetchResult
		cap    int
	}{
		{"exactly at the cap", within, 3600},
		{"unknown duration passes", unknown, 3600},
		{"zero cap means unlimited", within, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			task := pendingTask(domain.OutputKindCaptions, "", nil)
			tasks := newMemTaskStore(task)
			e := newTestExecutor(tasks, &fakeRefunder{}, &fakeCache{}, &fakeFetcher{result: tc.result}, &fakeTranslator{}, nil)

			msg := messageFor(task)
			msg.MaxDurationSeconds = tc.cap
			require.NoError(t, e.Run(context.Background(), msg))

			final, _ := tasks.GetByID(context.Background(), task.ID)
			assert.Equal(t, domain.TaskStatusCompleted, final.Status)
		})
	}
}

func TestRunMissingTask(t *testing.T) {
	t.Parallel()

	tasks := newMemTaskStore()
	e := newTestExecutor(tasks, &fakeRefunder{}, &fakeCache{}, &fakeFetcher{}, &fakeTranslator{}, nil)

	msg := dispatch.Message{
		TaskID:     uuid.New(),
		OwnerID:    uuid.New(),
		SourceURL:  "https://example.com/v",
		OutputKind: domain.OutputKindCaptions,
	}
	assert.NoError(t, e.Run(context.Background(), msg), "a vanished task is not an execution error")
}
