package domain

import (
	"errors"
	"net/url"
	"time"

	"github.com/google/uuid"
)

// TaskStatus represents the processing state of a task.
type TaskStatus string

// Possible task status values. A task advances pending → processing →
// extracted → translating → completed; failed is reachable from any
// non-terminal state.
const (
	TaskStatusPending     TaskStatus = "pending"
	TaskStatusProcessing  TaskStatus = "processing"
	TaskStatusExtracted   TaskStatus = "extracted"
	TaskStatusTranslating TaskStatus = "translating"
	TaskStatusCompleted   TaskStatus = "completed"
	TaskStatusFailed      TaskStatus = "failed"
)

// OutputKind is what the caller asked the pipeline to produce.
type OutputKind string

const (
	OutputKindCaptions  OutputKind = "captions"
	OutputKindMediaFile OutputKind = "media-file"
)

// FailureReason tags a terminal failure so callers can tell a provider
// failure from a watchdog timeout without string-matching error text.
type FailureReason string

const (
	FailureReasonProvider    FailureReason = "provider_failure"
	FailureReasonTimeout     FailureReason = "timeout"
	FailureReasonPersistence FailureReason = "persistence_error"
)

// Failure carries the tagged reason and a human-readable detail for a
// failed task.
type Failure struct {
	Reason FailureReason `json:"reason"`
	Detail string        `json:"detail"`
}

// MediaMetadata is the normalized provider output shape. Malformed or
// missing numeric fields normalize to zero values, never to errors.
type MediaMetadata struct {
	Title           string     `json:"title"`
	Author          string     `json:"author"`
	ViewCount       int64      `json:"view_count"`
	LikeCount       int64      `json:"like_count"`
	CommentCount    int64      `json:"comment_count"`
	DurationSeconds *float64   `json:"duration_seconds,omitempty"`
	ThumbnailURL    string     `json:"thumbnail_url,omitempty"`
	PublishedAt     *time.Time `json:"published_at,omitempty"`
	Language        string     `json:"language,omitempty"`
}

// Common validation errors for Task
var (
	ErrEmptyTaskID        = errors.New("task ID cannot be empty")
	ErrEmptyTaskOwnerID   = errors.New("task owner ID cannot be empty")
	ErrInvalidSourceURL   = errors.New("source URL must be a valid http(s) URL")
	ErrInvalidOutputKind  = errors.New("invalid output kind")
	ErrInvalidTaskStatus  = errors.New("invalid task status")
	ErrInvalidTransition  = errors.New("invalid task status transition")
	ErrProgressDecreased  = errors.New("task progress cannot decrease")
	ErrTaskTerminal       = errors.New("task is in a terminal state")
)

// Task is one user-requested media extraction/translation job and its
// persisted state. HeartbeatAt is refreshed on every non-terminal mutation
// and is the sole liveness signal the watchdog inspects.
type Task struct {
	ID               uuid.UUID      `json:"id"`
	OwnerID          uuid.UUID      `json:"owner_id"`
	Platform         string         `json:"platform"`
	SourceURL        string         `json:"source_url"`
	OutputKind       OutputKind     `json:"output_kind"`
	TargetLang       string         `json:"target_lang,omitempty"`
	Status           TaskStatus     `json:"status"`
	Progress         int            `json:"progress"`
	Metadata         *MediaMetadata `json:"metadata,omitempty"`
	Captions         *string        `json:"captions,omitempty"`
	Translation      *string        `json:"translation,omitempty"`
	StorageRef       *string        `json:"storage_ref,omitempty"`
	StorageExpiresAt *time.Time     `json:"storage_expires_at,omitempty"`
	Failure          *Failure       `json:"failure,omitempty"`
	LedgerRef        *uuid.UUID     `json:"ledger_ref,omitempty"`
	FreeTrial        bool           `json:"free_trial"`
	HeartbeatAt      time.Time      `json:"heartbeat_at"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// NewTask creates a pending Task for the given owner and source URL.
// It generates a new UUID, stamps creation time and the initial heartbeat,
// and validates the result.
func NewTask(ownerID uuid.UUID, sourceURL string, kind OutputKind, targetLang string) (*Task, error) {
	now := time.Now().UTC()
	t := &Task{
		ID:          uuid.New(),
		OwnerID:     ownerID,
		Platform:    DetectPlatform(sourceURL),
		SourceURL:   sourceURL,
		OutputKind:  kind,
		TargetLang:  targetLang,
		Status:      TaskStatusPending,
		Progress:    0,
		HeartbeatAt: now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := t.Validate(); err != nil {
		return nil, err
	}

	return t, nil
}

// Validate checks if the Task has valid data.
func (t *Task) Validate() error {
	if t.ID == uuid.Nil {
		return ErrEmptyTaskID
	}
	if t.OwnerID == uuid.Nil {
		return ErrEmptyTaskOwnerID
	}
	if err := ValidateSourceURL(t.SourceURL); err != nil {
		return err
	}
	if !isValidOutputKind(t.OutputKind) {
		return ErrInvalidOutputKind
	}
	if !isValidTaskStatus(t.Status) {
		return ErrInvalidTaskStatus
	}
	return nil
}

// IsTerminal reports whether the task has reached a final state.
func (t *Task) IsTerminal() bool {
	return t.Status == TaskStatusCompleted || t.Status == TaskStatusFailed
}

// CanTransition reports whether moving from the task's current status to
// the target status is legal. Failed is reachable from every non-terminal
// state; forward progress follows the fixed pipeline order.
func (t *Task) CanTransition(to TaskStatus) bool {
	return CanTransition(t.Status, to)
}

// CanTransition reports whether from → to is a legal status transition.
func CanTransition(from, to TaskStatus) bool {
	if from == TaskStatusCompleted || from == TaskStatusFailed {
		return false
	}
	if to == TaskStatusFailed {
		return true
	}
	switch from {
	case TaskStatusPending:
		return to == TaskStatusProcessing
	case TaskStatusProcessing:
		return to == TaskStatusExtracted
	case TaskStatusExtracted:
		return to == TaskStatusTranslating || to == TaskStatusCompleted
	case TaskStatusTranslating:
		return to == TaskStatusCompleted
	default:
		return false
	}
}

// AdvanceProgress raises the task's progress. Progress is monotone
// non-decreasing while the task is non-terminal.
func (t *Task) AdvanceProgress(progress int) error {
	if t.IsTerminal() {
		return ErrTaskTerminal
	}
	if progress < t.Progress {
		return ErrProgressDecreased
	}
	if progress > 100 {
		progress = 100
	}
	t.Progress = progress
	t.touch()
	return nil
}

// UpdateStatus moves the task to the given status, refreshing the liveness
// heartbeat. Terminal states freeze the task.
func (t *Task) UpdateStatus(status TaskStatus) error {
	if !isValidTaskStatus(status) {
		return ErrInvalidTaskStatus
	}
	if !t.CanTransition(status) {
		return ErrInvalidTransition
	}
	t.Status = status
	t.touch()
	return nil
}

// Fail moves the task to failed with the given tagged reason.
func (t *Task) Fail(reason FailureReason, detail string) error {
	if err := t.UpdateStatus(TaskStatusFailed); err != nil {
		return err
	}
	t.Failure = &Failure{Reason: reason, Detail: detail}
	return nil
}

func (t *Task) touch() {
	now := time.Now().UTC()
	t.HeartbeatAt = now
	t.UpdatedAt = now
}

// ValidateSourceURL rejects anything that is not an absolute http(s) URL
// with a host.
func ValidateSourceURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return ErrInvalidSourceURL
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ErrInvalidSourceURL
	}
	return nil
}

// DetectPlatform derives a coarse platform tag from the source URL host.
// Unknown hosts map to "web".
func DetectPlatform(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "web"
	}
	host := u.Hostname()
	switch {
	case hasSuffixAny(host, "youtube.com", "youtu.be"):
		return "youtube"
	case hasSuffixAny(host, "tiktok.com"):
		return "tiktok"
	case hasSuffixAny(host, "instagram.com"):
		return "instagram"
	case hasSuffixAny(host, "twitter.com", "x.com"):
		return "x"
	case hasSuffixAny(host, "bilibili.com"):
		return "bilibili"
	default:
		return "web"
	}
}

func hasSuffixAny(host string, suffixes ...string) bool {
	for _, s := range suffixes {
		if host == s || (len(host) > len(s) && host[len(host)-len(s)-1] == '.' && host[len(host)-len(s):] == s) {
			return true
		}
	}
	return false
}

func isValidOutputKind(kind OutputKind) bool {
	return kind == OutputKindCaptions || kind == OutputKindMediaFile
}

func isValidTaskStatus(status TaskStatus) bool {
	switch status {
	case TaskStatusPending, TaskStatusProcessing, TaskStatusExtracted,
		TaskStatusTranslating, TaskStatusCompleted, TaskStatusFailed:
		return true
	default:
		return false
	}
}
