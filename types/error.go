package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code across the engine.
// Every code is local and recoverable; none should crash the host.
type ErrorCode string

const (
	ErrNoEligibleAgents   ErrorCode = "NO_ELIGIBLE_AGENTS"
	ErrUnknownTask        ErrorCode = "UNKNOWN_TASK"
	ErrAgentNotAssigned   ErrorCode = "AGENT_NOT_ASSIGNED"
	ErrUnknownProposal    ErrorCode = "UNKNOWN_PROPOSAL"
	ErrProposalNotPending ErrorCode = "PROPOSAL_NOT_PENDING"
	ErrAgentNotVoter      ErrorCode = "AGENT_NOT_VOTER"
	ErrQueueFull          ErrorCode = "QUEUE_FULL"
	ErrMergeFailed        ErrorCode = "MERGE_FAILED"
)

// Error represents a structured error with code, message, and cause.
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Cause   error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// GetErrorCode extracts the error code from an error chain.
func GetErrorCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code ErrorCode) bool {
	return GetErrorCode(err) == code
}
