package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/voxlate/voxlate-api/internal/api/middleware"
	"github.com/voxlate/voxlate-api/internal/api/shared"
	"github.com/voxlate/voxlate-api/internal/domain"
	"github.com/voxlate/voxlate-api/internal/service"
)

// TaskHandler serves task submission and status queries.
type TaskHandler struct {
	submitService *service.SubmitService
	statusService *service.StatusService
	logger        *slog.Logger
}

// NewTaskHandler creates a new TaskHandler with the given dependencies.
func NewTaskHandler(
	submitService *service.SubmitService,
	statusService *service.StatusService,
	logger *slog.Logger,
) *TaskHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &TaskHandler{
		submitService: submitService,
		statusService: statusService,
		logger:        logger.With(slog.String("component", "task_handler")),
	}
}

// SubmitTask handles POST /tasks. Acceptance is asynchronous: the response
// is 202 with the task ID, and the caller polls the status endpoint.
func (h *TaskHandler) SubmitTask(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := middleware.GetOwnerID(r)
	if !ok {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "Authentication required")
		return
	}

	var req SubmitTaskRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request: "+err.Error())
		return
	}

	task, err := h.submitService.Submit(r.Context(), service.SubmitRequest{
		OwnerID:    ownerID,
		SourceURL:  req.URL,
		OutputKind: domain.OutputKind(req.OutputKind),
		TargetLang: req.TargetLang,
	})
	if err != nil {
		shared.RespondWithErrorAndLog(w, r,
			MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusAccepted, SubmitTaskResponse{
		TaskID: task.ID.String(),
		Status: string(task.Status),
	})
}

// GetTask handles GET /tasks/{id}.
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := middleware.GetOwnerID(r)
	if !ok {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "Authentication required")
		return
	}

	taskID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid task ID")
		return
	}

	task, err := h.statusService.GetTask(r.Context(), ownerID, taskID)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r,
			MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, NewTaskResponse(task))
}
