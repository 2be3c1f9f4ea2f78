// Package dispatch hands accepted tasks off for asynchronous execution.
//
// Execution can happen in-process, through the durable queue, on an
// independently triggered instance, or on a deferred local timer. The
// Dispatcher walks its strategies in priority order and falls through to
// the next one whenever the current one fails; a later strategy's success
// makes earlier failures non-fatal.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/voxlate/voxlate-api/internal/domain"
)

// ErrStrategyUnavailable signals that a strategy is not configured in this
// deployment. The dispatcher treats it like any other failure and moves on.
var ErrStrategyUnavailable = errors.New("dispatch strategy unavailable")

// Message carries everything an executor needs to run one task without a
// prior database read.
type Message struct {
	TaskID     uuid.UUID         `json:"task_id"`
	OwnerID    uuid.UUID         `json:"owner_id"`
	SourceURL  string            `json:"url"`
	OutputKind domain.OutputKind `json:"output_kind"`
	TargetLang string            `json:"target_lang,omitempty"`

	// MaxDurationSeconds is the owner's plan limit on source media length,
	// resolved at submission time. The executor enforces it once the
	// extracted duration is known. Zero means unlimited.
	MaxDurationSeconds int `json:"max_duration_seconds,omitempty"`
}

// Strategy is one way of getting a task executed. Dispatch returns nil once
// the message has been durably handed off; the task itself runs later.
type Strategy interface {
	// Name identifies the strategy in logs.
	Name() string

	// Dispatch hands the message off for execution.
	Dispatch(ctx context.Context, msg Message) error
}

// Runner executes one task end to end. The pipeline implements it; the
// in-process strategies call it.
type Runner interface {
	Run(ctx context.Context, msg Message) error
}

// Dispatcher tries each strategy in order until one accepts the message.
type Dispatcher struct {
	strategies []Strategy
	logger     *slog.Logger
}

// NewDispatcher builds a dispatcher over the given strategies. Order is
// priority order; the last strategy should be one that cannot fail.
func NewDispatcher(logger *slog.Logger, strategies ...Strategy) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		strategies: strategies,
		logger:     logger.With(slog.String("component", "dispatcher")),
	}
}

// Dispatch walks the strategy chain. It returns nil as soon as any
// strategy accepts the message, and an error only when every strategy has
// failed.
func (d *Dispatcher) Dispatch(ctx context.Context, msg Message) error {
	var lastErr error
	for _, s := range d.strategies {
		err := s.Dispatch(ctx, msg)
		if err == nil {
			d.logger.Info("task dispatched",
				slog.String("task_id", msg.TaskID.String()),
				slog.String("strategy", s.Name()))
			return nil
		}
		lastErr = err

		level := slog.LevelWarn
		if errors.Is(err, ErrStrategyUnavailable) {
			level = slog.LevelDebug
		}
		d.logger.Log(ctx, level, "dispatch strategy failed, trying next",
			slog.String("task_id", msg.TaskID.String()),
			slog.String("strategy", s.Name()),
			slog.String("error", err.Error()))
	}

	return fmt.Errorf("all dispatch strategies failed for task %s: %w", msg.TaskID, lastErr)
}
