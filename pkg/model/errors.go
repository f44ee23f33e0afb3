package model

import "fmt"

// ErrorCode represents a structured API error code.
type ErrorCode string

const (
	ErrValidation ErrorCode = "VALIDATION_ERROR"
	ErrNotFound   ErrorCode = "NOT_FOUND"
	ErrInternal   ErrorCode = "INTERNAL_ERROR"
)

// APIError is a structured error returned by the diagnostics API.
type APIError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewValidationError creates a VALIDATION_ERROR APIError.
func NewValidationError(msg string) *APIError {
	return &APIError{Code: ErrValidation, Message: msg}
}

// NewNotFoundError creates a NOT_FOUND APIError.
func NewNotFoundError(resource, id string) *APIError {
	return &APIError{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("%s '%s' not found", resource, id),
	}
}

// InvalidTransitionError is returned when a status transition is invalid.
type InvalidTransitionError struct {
	Entity string
	ID     string
	From   string
	To     string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid %s state transition: %s → %s (entity %s)", e.Entity, e.From, e.To, e.ID)
}

// PanicKind classifies a fatal scheduler condition.
type PanicKind string

const (
	ErrDuplicateReady     PanicKind = "DUPLICATE_READY"
	ErrDuplicateTask      PanicKind = "DUPLICATE_TASK"
	ErrInterruptsEnabled  PanicKind = "INTERRUPTS_ENABLED"
	ErrInvalidBlockStatus PanicKind = "INVALID_BLOCK_STATUS"
	ErrNotBlocked         PanicKind = "NOT_BLOCKED"
	ErrReadyQueueEmpty    PanicKind = "READY_QUEUE_EMPTY"
	ErrStackCorrupt       PanicKind = "STACK_CORRUPT"
	ErrBadContext         PanicKind = "BAD_CONTEXT"
	ErrBadTransition      PanicKind = "BAD_TRANSITION"
)

// KernelPanic describes a broken scheduler invariant. It is never returned
// as an ordinary error; the kernel halts with it.
type KernelPanic struct {
	Kind PanicKind
	Task string // name of the task involved, if any
	PID  PID
	Msg  string
}

func (e *KernelPanic) Error() string {
	if e.Task == "" {
		return fmt.Sprintf("kernel panic: %s: %s", e.Kind, e.Msg)
	}
	return fmt.Sprintf("kernel panic: %s: %s (task %s pid %d)", e.Kind, e.Msg, e.Task, e.PID)
}
