// Package domainerrors defines the typed error vocabulary shared by services
// and the HTTP layer. Services return these; transport translates them to
// status codes without inspecting error strings.
package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies a domain error.
type Code string

const (
	// CodeInvalidInput marks malformed input rejected before a pipeline starts.
	CodeInvalidInput Code = "invalid_input"
	// CodeStageExecution marks a collaborator failure after exhausted retries.
	// The stage halts; a partial trust packet is still produced.
	CodeStageExecution Code = "stage_execution"
	// CodeIntegrity marks a hash mismatch or invalid signature found during
	// verification. Never auto-corrected.
	CodeIntegrity Code = "integrity"
	// CodeTimeout marks an interrogation idle-timeout.
	CodeTimeout Code = "timeout"

	CodeNotFound     Code = "not_found"
	CodeConflict     Code = "conflict"
	CodeInvalidState Code = "invalid_state"
	CodeInternal     Code = "internal"
)

// Error carries a code plus a human-readable message.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates a domain error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a cause so infrastructure detail survives for logging while
// callers still match on the code.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

// CodeOf extracts the code from an error chain, defaulting to CodeInternal.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// ToHTTPStatus maps a domain error code to an HTTP status.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeInvalidInput:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict, CodeInvalidState:
		return http.StatusConflict
	case CodeTimeout:
		return http.StatusGatewayTimeout
	case CodeStageExecution:
		return http.StatusBadGateway
	case CodeIntegrity:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
