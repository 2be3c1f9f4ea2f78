package dispatch

import (
	"context"
	"fmt"
)

// ContinuationFunc schedules work to run after the current request has
// been answered. The platform layer supplies it when the runtime offers a
// post-response continuation mechanism.
type ContinuationFunc func(msg Message) error

// ContinuationStrategy executes the task on the same instance that
// accepted the submission, after the response is sent. It is the cheapest
// strategy and first in the chain, but only exists when the runtime
// provides a continuation hook.
type ContinuationStrategy struct {
	hook ContinuationFunc
}

var _ Strategy = (*ContinuationStrategy)(nil)

// NewContinuationStrategy wraps a runtime continuation hook. A nil hook
// yields a strategy that always reports ErrStrategyUnavailable.
func NewContinuationStrategy(hook ContinuationFunc) *ContinuationStrategy {
	return &ContinuationStrategy{hook: hook}
}

// Name implements Strategy.Name.
func (s *ContinuationStrategy) Name() string { return "continuation" }

// Dispatch implements Strategy.Dispatch.
func (s *ContinuationStrategy) Dispatch(_ context.Context, msg Message) error {
	if s.hook == nil {
		return fmt.Errorf("%w: no continuation hook registered", ErrStrategyUnavailable)
	}
	if err := s.hook(msg); err != nil {
		return fmt.Errorf("continuation hook rejected task %s: %w", msg.TaskID, err)
	}
	return nil
}
