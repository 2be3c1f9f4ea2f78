package api

import (
	"time"

	"github.com/voxlate/voxlate-api/internal/domain"
)

// SubmitTaskRequest is the body of POST /tasks.
type SubmitTaskRequest struct {
	URL        string `json:"url"         validate:"required,url"`
	OutputKind string `json:"output_kind" validate:"required,oneof=captions media-file"`
	TargetLang string `json:"target_lang" validate:"omitempty,bcp47_language_tag"`
}

// SubmitTaskResponse acknowledges an accepted task.
type SubmitTaskResponse struct {
	TaskID string `json:"task_id"`
	Status string `json:"status"`
}

// FailureResponse is the tagged failure detail on a failed task.
type FailureResponse struct {
	Reason string `json:"reason"`
	Detail string `json:"detail"`
}

// TaskResponse is the full status projection of one task.
type TaskResponse struct {
	ID               string                `json:"id"`
	Platform         string                `json:"platform"`
	SourceURL        string                `json:"source_url"`
	OutputKind       string                `json:"output_kind"`
	TargetLang       string                `json:"target_lang,omitempty"`
	Status           string                `json:"status"`
	Progress         int                   `json:"progress"`
	Metadata         *domain.MediaMetadata `json:"metadata,omitempty"`
	Captions         *string               `json:"captions,omitempty"`
	Translation      *string               `json:"translation,omitempty"`
	StorageRef       *string               `json:"storage_ref,omitempty"`
	StorageExpiresAt *time.Time            `json:"storage_expires_at,omitempty"`
	Failure          *FailureResponse      `json:"failure,omitempty"`
	FreeTrial        bool                  `json:"free_trial"`
	CreatedAt        time.Time             `json:"created_at"`
	UpdatedAt        time.Time             `json:"updated_at"`
}

// NewTaskResponse projects a task for the status endpoint.
func NewTaskResponse(task *domain.Task) TaskResponse {
	resp := TaskResponse{
		ID:               task.ID.String(),
		Platform:         task.Platform,
		SourceURL:        task.SourceURL,
		OutputKind:       string(task.OutputKind),
		TargetLang:       task.TargetLang,
		Status:           string(task.Status),
		Progress:         task.Progress,
		Metadata:         task.Metadata,
		Captions:         task.Captions,
		Translation:      task.Translation,
		StorageRef:       task.StorageRef,
		StorageExpiresAt: task.StorageExpiresAt,
		FreeTrial:        task.FreeTrial,
		CreatedAt:        task.CreatedAt,
		UpdatedAt:        task.UpdatedAt,
	}
	if task.Failure != nil {
		resp.Failure = &FailureResponse{
			Reason: string(task.Failure.Reason),
			Detail: task.Failure.Detail,
		}
	}
	return resp
}

// BalanceResponse is the body of GET /credits/balance.
type BalanceResponse struct {
	Balance int `json:"balance"`
}

// GrantCreditsRequest is the body of the internal grant endpoint.
type GrantCreditsRequest struct {
	OwnerID   string     `json:"owner_id"   validate:"required,uuid"`
	Amount    int        `json:"amount"     validate:"required,gt=0"`
	ExpiresAt *time.Time `json:"expires_at"`
}

// GrantCreditsResponse acknowledges a created grant.
type GrantCreditsResponse struct {
	GrantID   string     `json:"grant_id"`
	Amount    int        `json:"amount"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// ProcessTaskRequest is the body of the internal process trigger.
type ProcessTaskRequest struct {
	TaskID             string `json:"task_id"     validate:"required,uuid"`
	OwnerID            string `json:"owner_id"    validate:"required,uuid"`
	URL                string `json:"url"         validate:"required,url"`
	OutputKind         string `json:"output_kind" validate:"required,oneof=captions media-file"`
	TargetLang         string `json:"target_lang"`
	MaxDurationSeconds int    `json:"max_duration_seconds" validate:"gte=0"`
}
