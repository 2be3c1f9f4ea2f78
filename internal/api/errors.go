package api

import (
	"errors"
	"net/http"

	"github.com/voxlate/voxlate-api/internal/domain"
	"github.com/voxlate/voxlate-api/internal/service"
	"github.com/voxlate/voxlate-api/internal/store"
)

// MapErrorToStatusCode maps internal errors to HTTP status codes without
// leaking internal error types or messages to clients.
func MapErrorToStatusCode(err error) int {
	switch {
	case errors.Is(err, service.ErrTaskNotFound),
		store.IsNotFoundError(err):
		return http.StatusNotFound

	case errors.Is(err, service.ErrInvalidSubmission),
		errors.Is(err, store.ErrInvalidEntity),
		errors.Is(err, domain.ErrNonPositiveAmount):
		return http.StatusBadRequest

	case errors.Is(err, service.ErrInsufficientBalance),
		errors.Is(err, domain.ErrInsufficientCredits):
		return http.StatusPaymentRequired

	case errors.Is(err, service.ErrTooManyActiveTasks):
		return http.StatusTooManyRequests

	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a sanitized, user-facing message for the
// error. Raw error strings never reach the client.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	switch {
	case errors.Is(err, service.ErrTaskNotFound), store.IsNotFoundError(err):
		return "Task not found"
	case errors.Is(err, service.ErrInvalidSubmission):
		return "Invalid task submission"
	case errors.Is(err, domain.ErrNonPositiveAmount):
		return "Credit amount must be positive"
	case errors.Is(err, service.ErrInsufficientBalance),
		errors.Is(err, domain.ErrInsufficientCredits):
		return "Insufficient credit balance"
	case errors.Is(err, service.ErrTooManyActiveTasks):
		return "Too many active tasks, wait for one to finish"
	default:
		return "An unexpected error occurred"
	}
}
