package domain

import (
	"testing"

	"github.com/google/uuid"
)

func TestNewTask(t *testing.T) {
	t.Parallel()
	ownerID := uuid.New()

	task, err := NewTask(ownerID, "https://www.youtube.com/watch?v=abc123", OutputKindCaptions, "es")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if task.ID == uuid.Nil {
		t.Error("Expected non-nil UUID, got nil UUID")
	}
	if task.OwnerID != ownerID {
		t.Errorf("Expected owner ID %s, got %s", ownerID, task.OwnerID)
	}
	if task.Status != TaskStatusPending {
		t.Errorf("Expected status %s, got %s", TaskStatusPending, task.Status)
	}
	if task.Progress != 0 {
		t.Errorf("Expected progress 0, got %d", task.Progress)
	}
	if task.Platform != "youtube" {
		t.Errorf("Expected platform youtube, got %s", task.Platform)
	}
	if task.HeartbeatAt.IsZero() {
		t.Error("Expected non-zero HeartbeatAt time")
	}

	// Invalid owner
	if _, err := NewTask(uuid.Nil, "https://example.com/v", OutputKindCaptions, ""); err != ErrEmptyTaskOwnerID {
		t.Errorf("Expected error %v, got %v", ErrEmptyTaskOwnerID, err)
	}

	// Invalid URL
	if _, err := NewTask(ownerID, "not-a-url", OutputKindCaptions, ""); err != ErrInvalidSourceURL {
		t.Errorf("Expected error %v, got %v", ErrInvalidSourceURL, err)
	}
	if _, err := NewTask(ownerID, "ftp://example.com/v", OutputKindCaptions, ""); err != ErrInvalidSourceURL {
		t.Errorf("Expected error %v, got %v", ErrInvalidSourceURL, err)
	}

	// Invalid output kind
	if _, err := NewTask(ownerID, "https://example.com/v", OutputKind("thumbnails"), ""); err != ErrInvalidOutputKind {
		t.Errorf("Expected error %v, got %v", ErrInvalidOutputKind, err)
	}
}

func TestCanTransition(t *testing.T) {
	t.Parallel()

	allowed := []struct{ from, to TaskStatus }{
		{TaskStatusPending, TaskStatusProcessing},
		{TaskStatusProcessing, TaskStatusExtracted},
		{TaskStatusExtracted, TaskStatusTranslating},
		{TaskStatusExtracted, TaskStatusCompleted},
		{TaskStatusTranslating, TaskStatusCompleted},
		// failed is reachable from every non-terminal state
		{TaskStatusPending, TaskStatusFailed},
		{TaskStatusProcessing, TaskStatusFailed},
		{TaskStatusExtracted, TaskStatusFailed},
		{TaskStatusTranslating, TaskStatusFailed},
	}
	for _, tc := range allowed {
		if !CanTransition(tc.from, tc.to) {
			t.Errorf("Expected %s -> %s to be allowed", tc.from, tc.to)
		}
	}

	denied := []struct{ from, to TaskStatus }{
		{TaskStatusPending, TaskStatusExtracted},
		{TaskStatusPending, TaskStatusCompleted},
		{TaskStatusProcessing, TaskStatusTranslating},
		{TaskStatusProcessing, TaskStatusCompleted},
		{TaskStatusTranslating, TaskStatusExtracted},
		// terminal states are frozen
		{TaskStatusCompleted, TaskStatusFailed},
		{TaskStatusCompleted, TaskStatusProcessing},
		{TaskStatusFailed, TaskStatusPending},
		{TaskStatusFailed, TaskStatusFailed},
	}
	for _, tc := range denied {
		if CanTransition(tc.from, tc.to) {
			t.Errorf("Expected %s -> %s to be denied", tc.from, tc.to)
		}
	}
}

func TestAdvanceProgress(t *testing.T) {
	t.Parallel()
	task := mustNewTask(t)

	if err := task.AdvanceProgress(40); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if task.Progress != 40 {
		t.Errorf("Expected progress 40, got %d", task.Progress)
	}

	// Decreases are rejected
	if err := task.AdvanceProgress(30); err != ErrProgressDecreased {
		t.Errorf("Expected error %v, got %v", ErrProgressDecreased, err)
	}
	if task.Progress != 40 {
		t.Errorf("Expected progress unchanged at 40, got %d", task.Progress)
	}

	// Equal progress is fine (heartbeat refresh)
	if err := task.AdvanceProgress(40); err != nil {
		t.Errorf("Expected no error for equal progress, got %v", err)
	}

	// Over 100 clamps
	if err := task.AdvanceProgress(150); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if task.Progress != 100 {
		t.Errorf("Expected progress clamped to 100, got %d", task.Progress)
	}

	// Terminal tasks are frozen
	if err := task.Fail(FailureReasonProvider, "boom"); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if err := task.AdvanceProgress(100); err != ErrTaskTerminal {
		t.Errorf("Expected error %v, got %v", ErrTaskTerminal, err)
	}
}

func TestFail(t *testing.T) {
	t.Parallel()
	task := mustNewTask(t)

	if err := task.Fail(FailureReasonTimeout, "no heartbeat for 10m"); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if task.Status != TaskStatusFailed {
		t.Errorf("Expected status failed, got %s", task.Status)
	}
	if task.Failure == nil || task.Failure.Reason != FailureReasonTimeout {
		t.Errorf("Expected tagged timeout failure, got %+v", task.Failure)
	}

	// Failing twice is rejected
	if err := task.Fail(FailureReasonProvider, "again"); err != ErrInvalidTransition {
		t.Errorf("Expected error %v, got %v", ErrInvalidTransition, err)
	}
}

func TestUpdateStatusRefreshesHeartbeat(t *testing.T) {
	t.Parallel()
	task := mustNewTask(t)
	before := task.HeartbeatAt

	if err := task.UpdateStatus(TaskStatusProcessing); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if task.HeartbeatAt.Before(before) {
		t.Error("Expected heartbeat to be refreshed")
	}
}

func TestDetectPlatform(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"https://www.youtube.com/watch?v=x":  "youtube",
		"https://youtu.be/x":                 "youtube",
		"https://www.tiktok.com/@a/video/1":  "tiktok",
		"https://www.instagram.com/reel/x":   "instagram",
		"https://x.com/user/status/1":        "x",
		"https://twitter.com/user/status/1":  "x",
		"https://www.bilibili.com/video/BV1": "bilibili",
		"https://example.com/some/video":     "web",
		"https://notyoutube.com/watch":       "web",
	}
	for raw, want := range cases {
		if got := DetectPlatform(raw); got != want {
			t.Errorf("DetectPlatform(%q) = %q, want %q", raw, got, want)
		}
	}
}

func mustNewTask(t *testing.T) *Task {
	t.Helper()
	task, err := NewTask(uuid.New(), "https://example.com/video", OutputKindCaptions, "")
	if err != nil {
		t.Fatalf("failed to create task: %v", err)
	}
	return task
}
