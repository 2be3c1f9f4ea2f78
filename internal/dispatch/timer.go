package dispatch

import (
	"context"
	"log/slog"
	"time"
)

// TimerStrategy is the last-resort strategy: it schedules the task on a
// deferred local timer and always accepts. The delay lets the submission
// response flush before execution competes for the instance.
type TimerStrategy struct {
	runner Runner
	delay  time.Duration
	logger *slog.Logger
}

var _ Strategy = (*TimerStrategy)(nil)

// NewTimerStrategy schedules execution on the given runner after delay.
func NewTimerStrategy(runner Runner, delay time.Duration, logger *slog.Logger) *TimerStrategy {
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TimerStrategy{
		runner: runner,
		delay:  delay,
		logger: logger.With(slog.String("component", "timer_strategy")),
	}
}

// Name implements Strategy.Name.
func (s *TimerStrategy) Name() string { return "timer" }

// Dispatch implements Strategy.Dispatch. It never returns an error; the
// watchdog covers the case where the process dies before the timer fires.
func (s *TimerStrategy) Dispatch(_ context.Context, msg Message) error {
	time.AfterFunc(s.delay, func() {
		// Detached from the request context: the submission has already
		// been answered by the time this fires.
		ctx := context.Background()
		if err := s.runner.Run(ctx, msg); err != nil {
			s.logger.Error("deferred task execution failed",
				slog.String("task_id", msg.TaskID.String()),
				slog.String("error", err.Error()))
		}
	})
	return nil
}
