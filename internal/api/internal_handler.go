package api

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/voxlate/voxlate-api/internal/api/shared"
	"github.com/voxlate/voxlate-api/internal/dispatch"
	"github.com/voxlate/voxlate-api/internal/domain"
	"github.com/voxlate/voxlate-api/internal/redact"
	"github.com/voxlate/voxlate-api/internal/service"
)

// taskRunTimeout bounds one triggered task execution.
const taskRunTimeout = 15 * time.Minute

// InternalHandler serves service-to-service endpoints guarded by a shared
// secret instead of owner authentication: the out-of-band process trigger
// and credit granting for the billing service.
type InternalHandler struct {
	runner        dispatch.Runner
	creditService *service.CreditService
	secret        string
	logger        *slog.Logger
}

// NewInternalHandler creates a new InternalHandler.
func NewInternalHandler(
	runner dispatch.Runner,
	creditService *service.CreditService,
	secret string,
	logger *slog.Logger,
) *InternalHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &InternalHandler{
		runner:        runner,
		creditService: creditService,
		secret:        secret,
		logger:        logger.With(slog.String("component", "internal_handler")),
	}
}

// Authorize rejects callers without the shared secret. An unconfigured
// secret disables the internal surface entirely.
func (h *InternalHandler) Authorize(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.secret == "" {
			shared.RespondWithError(w, r, http.StatusNotFound, "Not found")
			return
		}
		provided := r.Header.Get(dispatch.TriggerSecretHeader)
		if subtle.ConstantTimeCompare([]byte(provided), []byte(h.secret)) != 1 {
			shared.RespondWithError(w, r, http.StatusUnauthorized, "Invalid internal secret")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ProcessTask handles POST /internal/tasks/process: the receiving end of
// the out-of-band dispatch strategy. It acknowledges before executing so
// the triggering instance is not held open for the task's duration.
func (h *InternalHandler) ProcessTask(w http.ResponseWriter, r *http.Request) {
	var req ProcessTaskRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request: "+err.Error())
		return
	}

	taskID, err := uuid.Parse(req.TaskID)
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid task ID")
		return
	}
	ownerID, err := uuid.Parse(req.OwnerID)
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid owner ID")
		return
	}

	msg := dispatch.Message{
		TaskID:             taskID,
		OwnerID:            ownerID,
		SourceURL:          req.URL,
		OutputKind:         domain.OutputKind(req.OutputKind),
		TargetLang:         req.TargetLang,
		MaxDurationSeconds: req.MaxDurationSeconds,
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), taskRunTimeout)
		defer cancel()
		if err := h.runner.Run(ctx, msg); err != nil {
			h.logger.Error("triggered task execution failed",
				slog.String("task_id", msg.TaskID.String()),
				slog.String("error", redact.Error(err)))
		}
	}()

	shared.RespondWithJSON(w, r, http.StatusAccepted, map[string]string{
		"task_id": msg.TaskID.String(),
		"status":  "accepted",
	})
}

// GrantCredits handles POST /internal/credits/grant.
func (h *InternalHandler) GrantCredits(w http.ResponseWriter, r *http.Request) {
	var req GrantCreditsRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request: "+err.Error())
		return
	}

	ownerID, err := uuid.Parse(req.OwnerID)
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid owner ID")
		return
	}

	grant, err := h.creditService.Grant(r.Context(), ownerID, req.Amount, req.ExpiresAt)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r,
			MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusCreated, GrantCreditsResponse{
		GrantID:   grant.ID.String(),
		Amount:    grant.Amount,
		ExpiresAt: grant.ExpiresAt,
	})
}
