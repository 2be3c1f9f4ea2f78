// Package pipeline executes accepted tasks end to end: claim, extract,
// store, optionally translate, complete. Every status write is conditional
// on the expected prior status, so two executors racing on the same task
// resolve to exactly one winner and the loser backs off without damage.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/voxlate/voxlate-api/internal/dispatch"
	"github.com/voxlate/voxlate-api/internal/domain"
	"github.com/voxlate/voxlate-api/internal/generation"
	"github.com/voxlate/voxlate-api/internal/provider"
	"github.com/voxlate/voxlate-api/internal/storage"
	"github.com/voxlate/voxlate-api/internal/store"
)

// Progress checkpoints. Values only ever rise; the store clamps decreases.
// The fetching and translate-wait values are written as heartbeats before
// the two long blocking steps so the watchdog sees liveness during them.
const (
	progressClaimed       = 10
	progressFetching      = 25
	progressExtracted     = 60
	progressTranslating   = 75
	progressTranslateWait = 80
	progressDone          = 100
)

const (
	// defaultCacheTTL bounds how long a resolved media reference is served
	// to later tasks without re-extraction.
	defaultCacheTTL = 24 * time.Hour

	// degradedExpiry is how long a provider-hosted URL is advertised when
	// re-hosting is unavailable. Provider URLs rot quickly.
	degradedExpiry = 1 * time.Hour
)

// Fetcher produces one normalized extraction result. The provider
// fallback orchestrator implements it.
type Fetcher interface {
	Fetch(ctx context.Context, req provider.FetchRequest) (*provider.FetchResult, error)
}

// Executor runs one task per Run call. It implements dispatch.Runner so
// every dispatch strategy funnels into the same code path.
type Executor struct {
	tasks      store.TaskStore
	refunder   store.Refunder
	cache      store.ResultCache
	fetcher    Fetcher
	translator generation.Translator
	media      storage.MediaStore
	cacheTTL   time.Duration
	logger     *slog.Logger
}

var _ dispatch.Runner = (*Executor)(nil)

// NewExecutor wires the pipeline. media may be nil; the pipeline then
// keeps provider URLs with a short expiry instead of re-hosting.
func NewExecutor(
	tasks store.TaskStore,
	refunder store.Refunder,
	cache store.ResultCache,
	fetcher Fetcher,
	translator generation.Translator,
	media storage.MediaStore,
	logger *slog.Logger,
) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		tasks:      tasks,
		refunder:   refunder,
		cache:      cache,
		fetcher:    fetcher,
		translator: translator,
		media:      media,
		cacheTTL:   defaultCacheTTL,
		logger:     logger.With(slog.String("component", "pipeline")),
	}
}

// Run implements dispatch.Runner. It is safe to call twice for the same
// task: the first conditional write decides the winner and the loser
// returns nil without side effects.
func (e *Executor) Run(ctx context.Context, msg dispatch.Message) error {
	log := e.logger.With(slog.String("task_id", msg.TaskID.String()))

	claim := store.TaskUpdate{Progress: intPtr(progressClaimed)}
	err := e.tasks.TransitionStatus(ctx, msg.TaskID, domain.TaskStatusPending, domain.TaskStatusProcessing, claim)
	if err != nil {
		if errors.Is(err, store.ErrStaleStatus) {
			log.Info("task already claimed by another executor, backing off")
			return nil
		}
		if store.IsNotFoundError(err) {
			log.Warn("dispatched task no longer exists")
			return nil
		}
		return err
	}

	fingerprint := domain.Fingerprint(msg.SourceURL)

	// A live cache entry for media extraction means the hard work is
	// already done; skip the providers entirely.
	if msg.OutputKind == domain.OutputKindMediaFile {
		if entry := e.cacheLookup(ctx, log, fingerprint); entry != nil {
			return e.completeFromCache(ctx, log, msg, entry)
		}
	}

	e.heartbeat(ctx, log, msg.TaskID, domain.TaskStatusProcessing, progressFetching)

	result, err := e.fetcher.Fetch(ctx, provider.FetchRequest{URL: msg.SourceURL, OutputKind: msg.OutputKind})
	if err != nil {
		log.Warn("extraction failed on all providers", slog.String("error", err.Error()))
		return e.failTask(ctx, log, msg.TaskID, failureForFetch(err), err.Error())
	}

	if detail, ok := exceedsDurationLimit(result.Metadata.DurationSeconds, msg.MaxDurationSeconds); ok {
		log.Info("task rejected by plan duration limit", slog.String("detail", detail))
		return e.failTask(ctx, log, msg.TaskID, domain.FailureReasonProvider, detail)
	}

	update := store.TaskUpdate{
		Progress: intPtr(progressExtracted),
		Metadata: &result.Metadata,
	}
	if result.Captions != "" {
		update.Captions = &result.Captions
	}
	if msg.OutputKind == domain.OutputKindMediaFile {
		ref, expires := e.storeMedia(ctx, log, fingerprint, result.MediaURL)
		update.StorageRef = &ref
		update.StorageExpiresAt = &expires
		e.cacheStore(ctx, log, fingerprint, result.Platform, ref, expires)
	}

	err = e.tasks.TransitionStatus(ctx, msg.TaskID, domain.TaskStatusProcessing, domain.TaskStatusExtracted, update)
	if err != nil {
		return e.handleWriteError(ctx, log, msg.TaskID, err)
	}

	if msg.OutputKind == domain.OutputKindCaptions && msg.TargetLang != "" {
		return e.translate(ctx, log, msg, result.Captions)
	}

	err = e.tasks.TransitionStatus(ctx, msg.TaskID, domain.TaskStatusExtracted, domain.TaskStatusCompleted,
		store.TaskUpdate{Progress: intPtr(progressDone)})
	if err != nil {
		return e.handleWriteError(ctx, log, msg.TaskID, err)
	}

	log.Info("task completed", slog.String("output_kind", string(msg.OutputKind)))
	return nil
}

// translate runs the optional translation leg: extracted → translating →
// completed.
func (e *Executor) translate(ctx context.Context, log *slog.Logger, msg dispatch.Message, captions string) error {
	err := e.tasks.TransitionStatus(ctx, msg.TaskID, domain.TaskStatusExtracted, domain.TaskStatusTranslating,
		store.TaskUpdate{Progress: intPtr(progressTranslating)})
	if err != nil {
		return e.handleWriteError(ctx, log, msg.TaskID, err)
	}

	e.heartbeat(ctx, log, msg.TaskID, domain.TaskStatusTranslating, progressTranslateWait)

	translated, err := e.translator.Translate(ctx, generation.Request{
		Text:       captions,
		TargetLang: msg.TargetLang,
	})
	if err != nil {
		log.Warn("translation failed", slog.String("error", err.Error()))
		return e.failTask(ctx, log, msg.TaskID, domain.FailureReasonProvider, err.Error())
	}

	err = e.tasks.TransitionStatus(ctx, msg.TaskID, domain.TaskStatusTranslating, domain.TaskStatusCompleted,
		store.TaskUpdate{Progress: intPtr(progressDone), Translation: &translated})
	if err != nil {
		return e.handleWriteError(ctx, log, msg.TaskID, err)
	}

	log.Info("task completed", slog.String("output_kind", string(msg.OutputKind)),
		slog.String("target_lang", msg.TargetLang))
	return nil
}

// completeFromCache finishes a media task from a cached reference without
// touching the providers.
func (e *Executor) completeFromCache(ctx context.Context, log *slog.Logger, msg dispatch.Message, entry *domain.CacheEntry) error {
	ref := entry.MediaRef
	expires := entry.ExpiresAt

	err := e.tasks.TransitionStatus(ctx, msg.TaskID, domain.TaskStatusProcessing, domain.TaskStatusExtracted,
		store.TaskUpdate{
			Progress:         intPtr(progressExtracted),
			StorageRef:       &ref,
			StorageExpiresAt: &expires,
		})
	if err != nil {
		return e.handleWriteError(ctx, log, msg.TaskID, err)
	}

	err = e.tasks.TransitionStatus(ctx, msg.TaskID, domain.TaskStatusExtracted, domain.TaskStatusCompleted,
		store.TaskUpdate{Progress: intPtr(progressDone)})
	if err != nil {
		return e.handleWriteError(ctx, log, msg.TaskID, err)
	}

	log.Info("task completed from cache", slog.String("fingerprint", entry.Fingerprint))
	return nil
}

// storeMedia re-hosts the provider URL when storage is available, and
// degrades to the provider URL with a short expiry when it is not.
func (e *Executor) storeMedia(ctx context.Context, log *slog.Logger, fingerprint, mediaURL string) (string, time.Time) {
	if e.media != nil {
		uploaded, err := e.media.Upload(ctx, fingerprint, mediaURL)
		if err == nil {
			return uploaded.StorageRef, uploaded.ExpiresAt
		}
		log.Warn("media re-hosting failed, keeping provider URL",
			slog.String("error", err.Error()))
	}
	return mediaURL, time.Now().UTC().Add(degradedExpiry)
}

// heartbeat refreshes the task's liveness timestamp ahead of a step that
// may block for a long time. Best-effort: a lost race or a write failure
// here never derails the pipeline.
func (e *Executor) heartbeat(ctx context.Context, log *slog.Logger, taskID uuid.UUID, status domain.TaskStatus, progress int) {
	err := e.tasks.UpdateProgress(ctx, taskID, status, progress)
	if err != nil && !errors.Is(err, store.ErrStaleStatus) && !store.IsNotFoundError(err) {
		log.Warn("progress heartbeat failed", slog.String("error", err.Error()))
	}
}

func (e *Executor) cacheLookup(ctx context.Context, log *slog.Logger, fingerprint string) *domain.CacheEntry {
	entry, err := e.cache.Lookup(ctx, fingerprint)
	if err != nil {
		log.Warn("cache lookup failed, proceeding without cache", slog.String("error", err.Error()))
		return nil
	}
	return entry
}

func (e *Executor) cacheStore(ctx context.Context, log *slog.Logger, fingerprint, platform, ref string, expires time.Time) {
	ttl := e.cacheTTL
	if until := time.Until(expires); until < ttl {
		ttl = until
	}
	if ttl <= 0 {
		return
	}

	entry := &domain.CacheEntry{
		Fingerprint: fingerprint,
		Platform:    platform,
		MediaRef:    ref,
		CreatedAt:   time.Now().UTC(),
		ExpiresAt:   expires,
	}
	if err := e.cache.Store(ctx, entry, ttl); err != nil {
		// Cache writes are best-effort.
		log.Warn("cache store failed", slog.String("error", err.Error()))
	}
}

// handleWriteError sorts a failed status write into its three outcomes:
// stale writer (benign), row gone (benign), or a real persistence fault
// that fails the task and refunds.
func (e *Executor) handleWriteError(ctx context.Context, log *slog.Logger, taskID uuid.UUID, err error) error {
	if errors.Is(err, store.ErrStaleStatus) {
		log.Info("lost status race to a concurrent writer, backing off")
		return nil
	}
	if store.IsNotFoundError(err) {
		log.Warn("task disappeared mid-execution")
		return nil
	}
	log.Error("persistence failure mid-execution", slog.String("error", err.Error()))
	return e.failTask(ctx, log, taskID, domain.FailureReasonPersistence, err.Error())
}

// failTask force-fails the task from whatever non-terminal status it is in
// and refunds its ledger consumption. Returning nil keeps queue strategies
// from redelivering a terminally failed task.
func (e *Executor) failTask(ctx context.Context, log *slog.Logger, taskID uuid.UUID, reason domain.FailureReason, detail string) error {
	task, err := e.tasks.GetByID(ctx, taskID)
	if err != nil {
		if store.IsNotFoundError(err) {
			return nil
		}
		log.Error("failed to load task for failure write", slog.String("error", err.Error()))
		return err
	}
	if task.IsTerminal() {
		return nil
	}

	failure := &domain.Failure{Reason: reason, Detail: detail}
	err = e.tasks.TransitionStatus(ctx, taskID, task.Status, domain.TaskStatusFailed,
		store.TaskUpdate{Failure: failure})
	if err != nil {
		if errors.Is(err, store.ErrStaleStatus) || store.IsNotFoundError(err) {
			return nil
		}
		log.Error("failed to mark task failed", slog.String("error", err.Error()))
		return err
	}

	log.Info("task failed", slog.String("reason", string(reason)))

	if task.LedgerRef != nil {
		// Refunds are idempotent at the store level, so racing the
		// watchdog here is safe.
		if err := e.refunder.Refund(ctx, *task.LedgerRef); err != nil {
			log.Error("refund failed after task failure",
				slog.String("ledger_ref", task.LedgerRef.String()),
				slog.String("error", err.Error()))
			return err
		}
	}
	return nil
}

// failureForFetch maps provider classifications onto the tagged failure
// reasons. Only an all-timeouts round counts as a timeout.
func failureForFetch(err error) domain.FailureReason {
	var combined *provider.CombinedError
	if errors.As(err, &combined) &&
		combined.Primary.Classification == provider.ClassNetworkTimeout &&
		combined.Backup.Classification == provider.ClassNetworkTimeout {
		return domain.FailureReasonTimeout
	}
	return domain.FailureReasonProvider
}

// exceedsDurationLimit checks the extracted duration against the plan's
// media-length cap. An unknown duration passes: providers that report no
// duration must not hard-fail every task under a capped plan.
func exceedsDurationLimit(duration *float64, maxSeconds int) (string, bool) {
	if maxSeconds <= 0 || duration == nil || *duration <= float64(maxSeconds) {
		return "", false
	}
	return fmt.Sprintf("media duration %.0fs exceeds the plan limit of %ds", *duration, maxSeconds), true
}

func intPtr(v int) *int { return &v }
