package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxlate/voxlate-api/internal/domain"
)

// fakeStrategy records dispatch attempts and returns a scripted error.
type fakeStrategy struct {
	name  string
	err   error
	calls int
}

func (s *fakeStrategy) Name() string { return s.name }

func (s *fakeStrategy) Dispatch(_ context.Context, _ Message) error {
	s.calls++
	return s.err
}

func testMessage() Message {
	return Message{
		TaskID:     uuid.New(),
		OwnerID:    uuid.New(),
		SourceURL:  "https://example.com/video",
		OutputKind: domain.OutputKindCaptions,
	}
}

func TestDispatcherStopsAtFirstSuccess(t *testing.T) {
	t.Parallel()

	first := &fakeStrategy{name: "first"}
	second := &fakeStrategy{name: "second"}
	d := NewDispatcher(slog.Default(), first, second)

	require.NoError(t, d.Dispatch(context.Background(), testMessage()))
	assert.Equal(t, 1, first.calls)
	assert.Equal(t, 0, second.calls, "later strategies must not run after a success")
}

func TestDispatcherFallsThroughOnFailure(t *testing.T) {
	t.Parallel()

	first := &fakeStrategy{name: "first", err: errors.New("broker down")}
	second := &fakeStrategy{name: "second", err: ErrStrategyUnavailable}
	third := &fakeStrategy{name: "third"}
	d := NewDispatcher(slog.Default(), first, second, third)

	require.NoError(t, d.Dispatch(context.Background(), testMessage()))
	assert.Equal(t, 1, first.calls)
	assert.Equal(t, 1, second.calls)
	assert.Equal(t, 1, third.calls)
}

func TestDispatcherAllStrategiesFail(t *testing.T) {
	t.Parallel()

	first := &fakeStrategy{name: "first", err: errors.New("one")}
	second := &fakeStrategy{name: "second", err: errors.New("two")}
	d := NewDispatcher(slog.Default(), first, second)

	err := d.Dispatch(context.Background(), testMessage())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "two", "the last failure is the one surfaced")
}

func TestContinuationStrategyWithoutHook(t *testing.T) {
	t.Parallel()

	s := NewContinuationStrategy(nil)
	err := s.Dispatch(context.Background(), testMessage())
	assert.ErrorIs(t, err, ErrStrategyUnavailable)
}

func TestContinuationStrategyWithHook(t *testing.T) {
	t.Parallel()

	var got Message
	s := NewContinuationStrategy(func(msg Message) error {
		got = msg
		return nil
	})

	msg := testMessage()
	require.NoError(t, s.Dispatch(context.Background(), msg))
	assert.Equal(t, msg.TaskID, got.TaskID)

	// A rejecting hook surfaces as a failure so the chain can continue
	failing := NewContinuationStrategy(func(Message) error { return errors.New("queue full") })
	assert.Error(t, failing.Dispatch(context.Background(), msg))
}

func TestQueueStrategyUnconfigured(t *testing.T) {
	t.Parallel()

	s := NewQueueStrategy(nil, 3, slog.Default())
	err := s.Dispatch(context.Background(), testMessage())
	assert.ErrorIs(t, err, ErrStrategyUnavailable)
}

func TestWebhookStrategyUnconfigured(t *testing.T) {
	t.Parallel()

	s := NewWebhookStrategy("", "secret")
	err := s.Dispatch(context.Background(), testMessage())
	assert.ErrorIs(t, err, ErrStrategyUnavailable)
}

// fakeRunner records executed messages.
type fakeRunner struct {
	ran chan Message
	err error
}

func (r *fakeRunner) Run(_ context.Context, msg Message) error {
	r.ran <- msg
	return r.err
}

func TestTimerStrategyRunsDeferred(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{ran: make(chan Message, 1)}
	s := NewTimerStrategy(runner, time.Millisecond, slog.Default())

	msg := testMessage()
	require.NoError(t, s.Dispatch(context.Background(), msg), "the timer strategy always accepts")

	select {
	case got := <-runner.ran:
		assert.Equal(t, msg.TaskID, got.TaskID)
	case <-time.After(2 * time.Second):
		t.Fatal("deferred execution never fired")
	}
}

func TestMessageRoundTrip(t *testing.T) {
	t.Parallel()

	msg := Message{
		TaskID:             uuid.New(),
		OwnerID:            uuid.New(),
		SourceURL:          "https://example.com/v",
		OutputKind:         domain.OutputKindMediaFile,
		TargetLang:         "de",
		MaxDurationSeconds: 3600,
	}

	// The queue and webhook strategies share this wire shape.
	payload, err := json.Marshal(msg)
	require.NoError(t, err)

	decoded, err := UnmarshalMessage(payload)
	require.NoError(t, err)
	assert.Equal(t, msg, decoded)

	_, err = UnmarshalMessage([]byte("{not json"))
	assert.Error(t, err)
}
