package service

import "errors"

// Common errors returned by the service layer. Handlers map these onto
// HTTP status codes.
var (
	// ErrTaskNotFound is returned when a task does not exist or is not
	// visible to the requesting owner.
	ErrTaskNotFound = errors.New("task not found")

	// ErrInvalidSubmission is returned when a submission fails validation.
	ErrInvalidSubmission = errors.New("invalid task submission")

	// ErrInsufficientBalance is returned when the owner's spendable credit
	// cannot cover the task cost.
	ErrInsufficientBalance = errors.New("insufficient credit balance")

	// ErrTooManyActiveTasks is returned when the owner is at their plan's
	// concurrency cap.
	ErrTooManyActiveTasks = errors.New("too many active tasks")
)
