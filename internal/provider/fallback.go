package provider

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// FallbackOrchestrator produces one normalized FetchResult from a primary
// and a backup provider. Each provider is attempted at most once per
// fallback round, each under its own wall-clock timeout; any non-success
// classification on the primary triggers exactly one backup attempt.
type FallbackOrchestrator struct {
	primary        Client
	backup         Client
	primaryTimeout time.Duration
	backupTimeout  time.Duration
	logger         *slog.Logger
}

// NewFallbackOrchestrator wires the primary/backup pair with per-attempt
// timeouts. Zero timeouts default to 45s, matching the provider clients.
func NewFallbackOrchestrator(
	primary, backup Client,
	primaryTimeout, backupTimeout time.Duration,
	logger *slog.Logger,
) *FallbackOrchestrator {
	if primaryTimeout <= 0 {
		primaryTimeout = 45 * time.Second
	}
	if backupTimeout <= 0 {
		backupTimeout = 45 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &FallbackOrchestrator{
		primary:        primary,
		backup:         backup,
		primaryTimeout: primaryTimeout,
		backupTimeout:  backupTimeout,
		logger:         logger.With(slog.String("component", "provider_fallback")),
	}
}

// Fetch tries the primary provider, falls back once to the backup on any
// non-success classification, and returns a *CombinedError carrying both
// classifications when both fail.
func (o *FallbackOrchestrator) Fetch(ctx context.Context, req FetchRequest) (*FetchResult, error) {
	result, primaryErr := o.attempt(ctx, o.primary, o.primaryTimeout, req)
	if primaryErr == nil {
		return result, nil
	}

	o.logger.Warn("primary provider failed, falling back",
		slog.String("provider", o.primary.Name()),
		slog.String("classification", string(Classify(primaryErr))),
		slog.String("url", req.URL),
		slog.String("error", primaryErr.Error()))

	result, backupErr := o.attempt(ctx, o.backup, o.backupTimeout, req)
	if backupErr == nil {
		o.logger.Info("backup provider succeeded",
			slog.String("provider", o.backup.Name()),
			slog.String("url", req.URL))
		return result, nil
	}

	o.logger.Error("all providers failed",
		slog.String("primary_classification", string(Classify(primaryErr))),
		slog.String("backup_classification", string(Classify(backupErr))),
		slog.String("url", req.URL))

	return nil, &CombinedError{
		Primary: asClassifiedError(o.primary.Name(), primaryErr),
		Backup:  asClassifiedError(o.backup.Name(), backupErr),
	}
}

// attempt runs a single provider call under its own deadline.
func (o *FallbackOrchestrator) attempt(
	ctx context.Context,
	client Client,
	timeout time.Duration,
	req FetchRequest,
) (*FetchResult, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	return client.Fetch(attemptCtx, req)
}

// asClassifiedError coerces any error into a *ClassifiedError so the
// combined error always carries two classifications.
func asClassifiedError(providerName string, err error) *ClassifiedError {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce
	}
	return &ClassifiedError{
		Provider:       providerName,
		Classification: ClassOther,
		Message:        err.Error(),
	}
}
