package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// TriggerSecretHeader carries the shared secret on internal process calls.
const TriggerSecretHeader = "X-Internal-Secret"

// WebhookStrategy dispatches by POSTing the message to an independently
// invoked processing instance. Used when the queue is down or disabled;
// the receiving instance runs the task in its own lifetime.
type WebhookStrategy struct {
	httpClient *http.Client
	triggerURL string
	secret     string
}

var _ Strategy = (*WebhookStrategy)(nil)

// NewWebhookStrategy points at the trigger endpoint of a processing
// instance. An empty URL yields a strategy that always reports
// ErrStrategyUnavailable.
func NewWebhookStrategy(triggerURL, secret string) *WebhookStrategy {
	return &WebhookStrategy{
		// Short timeout: the receiver acknowledges before executing, so a
		// slow response means the trigger itself is unhealthy.
		httpClient: &http.Client{Timeout: 10 * time.Second},
		triggerURL: triggerURL,
		secret:     secret,
	}
}

// Name implements Strategy.Name.
func (s *WebhookStrategy) Name() string { return "webhook" }

// Dispatch implements Strategy.Dispatch.
func (s *WebhookStrategy) Dispatch(ctx context.Context, msg Message) error {
	if s.triggerURL == "" {
		return fmt.Errorf("%w: no trigger URL configured", ErrStrategyUnavailable)
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal dispatch message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.triggerURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create trigger request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.secret != "" {
		req.Header.Set(TriggerSecretHeader, s.secret)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("trigger call failed for task %s: %w", msg.TaskID, err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("trigger returned HTTP %d for task %s", resp.StatusCode, msg.TaskID)
	}
	return nil
}
