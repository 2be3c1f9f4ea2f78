package main

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/voxlate/voxlate-api/internal/dispatch"
)

// workerConcurrency bounds how many queued tasks one instance executes at
// a time. Extraction is provider-bound, not CPU-bound, so a small pool is
// plenty.
const workerConcurrency = 5

// startWorker starts the durable-queue consumer when the queue strategy is
// enabled. Queued messages run through the same executor as every other
// dispatch path.
func (app *application) startWorker() error {
	if !app.config.Dispatch.QueueEnabled {
		app.logger.Info("queue worker disabled")
		return nil
	}

	app.asynqServer = asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     app.config.Redis.Addr,
			Password: app.config.Redis.Password,
			DB:       app.config.Redis.DB,
		},
		asynq.Config{Concurrency: workerConcurrency},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(dispatch.TypeProcessTask, app.handleProcessTask)

	if err := app.asynqServer.Start(mux); err != nil {
		return fmt.Errorf("failed to start queue worker: %w", err)
	}

	app.logger.Info("queue worker started", "concurrency", workerConcurrency)
	return nil
}

// handleProcessTask executes one queued task. A corrupt payload is not
// retryable; execution errors are, up to the enqueue-time retry bound.
func (app *application) handleProcessTask(ctx context.Context, t *asynq.Task) error {
	msg, err := dispatch.UnmarshalMessage(t.Payload())
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	return app.executor.Run(ctx, msg)
}
