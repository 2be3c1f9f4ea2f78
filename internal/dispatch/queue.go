package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
)

// TypeProcessTask is the asynq task type for queued task execution.
const TypeProcessTask = "task:process"

// QueueStrategy dispatches through the Redis-backed durable queue. It
// survives instance restarts and gives bounded redelivery, so it sits
// right after the continuation hook in the chain.
type QueueStrategy struct {
	client   *asynq.Client
	maxRetry int
	logger   *slog.Logger
}

var _ Strategy = (*QueueStrategy)(nil)

// NewQueueStrategy wraps an asynq client. A nil client yields a strategy
// that always reports ErrStrategyUnavailable.
func NewQueueStrategy(client *asynq.Client, maxRetry int, logger *slog.Logger) *QueueStrategy {
	if maxRetry <= 0 {
		maxRetry = 3
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &QueueStrategy{
		client:   client,
		maxRetry: maxRetry,
		logger:   logger.With(slog.String("component", "queue_strategy")),
	}
}

// Name implements Strategy.Name.
func (s *QueueStrategy) Name() string { return "queue" }

// Dispatch implements Strategy.Dispatch.
func (s *QueueStrategy) Dispatch(ctx context.Context, msg Message) error {
	if s.client == nil {
		return fmt.Errorf("%w: queue not configured", ErrStrategyUnavailable)
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal dispatch message: %w", err)
	}

	task := asynq.NewTask(TypeProcessTask, payload)
	info, err := s.client.EnqueueContext(ctx, task, asynq.MaxRetry(s.maxRetry))
	if err != nil {
		return fmt.Errorf("failed to enqueue task %s: %w", msg.TaskID, err)
	}

	s.logger.Debug("task enqueued",
		slog.String("task_id", msg.TaskID.String()),
		slog.String("queue", info.Queue),
		slog.String("queue_id", info.ID))
	return nil
}

// UnmarshalMessage decodes a queued payload back into a Message. Shared by
// the worker handler and the internal trigger endpoint.
func UnmarshalMessage(payload []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return Message{}, fmt.Errorf("failed to unmarshal dispatch message: %w", err)
	}
	return msg, nil
}
