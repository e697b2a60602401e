package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a domain error with a structured error code.
// Codes have the form WS-<AREA>-<NNNN>.
type DomainError struct {
	Code    string // Error code (e.g., "WS-GEN-4040")
	Message string // Human-readable message
	Details string // Optional additional details
	Cause   error  // Underlying error (if any)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap() support.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is() support for error comparison.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewDomainError creates a new DomainError with the given code and message.
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *DomainError) WithDetails(details string) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: details,
		Cause:   e.Cause,
	}
}

// WithCause returns a copy of the error wrapping the given cause.
func (e *DomainError) WithCause(cause error) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
		Cause:   cause,
	}
}

// IsDomainError checks if an error is a DomainError with the given code.
// If code is empty, it only checks if the error is a DomainError.
func IsDomainError(err error, code string) bool {
	var de *DomainError
	if errors.As(err, &de) {
		if code == "" {
			return true // Only check if it's a DomainError
		}
		return de.Code == code
	}
	return false
}

// GetErrorCode extracts the error code from an error if it's a DomainError.
func GetErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// Filesystem errors. Both abort the current run.
var (
	// ErrAccess indicates the world or the store could not be read or written.
	ErrAccess = NewDomainError("WS-FS-5001", "filesystem access failed")

	// ErrStat indicates a file's metadata could not be read during classification.
	ErrStat = NewDomainError("WS-FS-5002", "file metadata unavailable")
)

// Generation errors.
var (
	// ErrNoSuchGeneration indicates the requested generation does not exist.
	ErrNoSuchGeneration = NewDomainError("WS-GEN-4040", "no such generation")

	// ErrNoNextGeneration indicates the generation has no younger successor.
	ErrNoNextGeneration = NewDomainError("WS-GEN-4041", "generation has no successor")

	// ErrDuplicateGeneration indicates a generation with the same id already exists.
	ErrDuplicateGeneration = NewDomainError("WS-GEN-4090", "generation already exists")

	// ErrProvisionalGeneration indicates an incomplete generation blocks the operation.
	ErrProvisionalGeneration = NewDomainError("WS-GEN-4091", "provisional generation present")
)

// Reference chain errors.
var (
	// ErrBrokenChain indicates a reference that cannot be resolved to a physical
	// copy. This is index corruption, never an ordinary missing file.
	ErrBrokenChain = NewDomainError("WS-CHAIN-5000", "broken reference chain")

	// ErrPathNotTracked indicates the generation holds no reference for the path.
	ErrPathNotTracked = NewDomainError("WS-CHAIN-4040", "path not tracked by generation")
)

// System and argument errors.
var (
	// ErrInvalidArgument indicates an invalid argument.
	ErrInvalidArgument = NewDomainError("WS-ARG-1001", "invalid argument")

	// ErrStoreLocked indicates another process holds the store lock.
	ErrStoreLocked = NewDomainError("WS-SYS-4230", "backup store is locked")

	// ErrStorage indicates a reference index failure.
	ErrStorage = NewDomainError("WS-SYS-5001", "index storage error")
)
