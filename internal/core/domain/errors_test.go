package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestDomainError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *DomainError
		expected string
	}{
		{
			name:     "error without details",
			err:      NewDomainError("WS-TEST-1000", "test message"),
			expected: "[WS-TEST-1000] test message",
		},
		{
			name:     "error with details",
			err:      NewDomainError("WS-TEST-1001", "test message").WithDetails("extra info"),
			expected: "[WS-TEST-1001] test message: extra info",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestDomainError_Is(t *testing.T) {
	err1 := NewDomainError("WS-TEST-1000", "message 1")
	err2 := NewDomainError("WS-TEST-1000", "message 2")
	err3 := NewDomainError("WS-TEST-1001", "message 1")

	if !errors.Is(err1, err2) {
		t.Error("errors.Is should return true for same error code")
	}
	if errors.Is(err1, err3) {
		t.Error("errors.Is should return false for different error code")
	}
	if errors.Is(err1, fmt.Errorf("some error")) {
		t.Error("errors.Is should return false for non-DomainError")
	}

	// Details do not affect matching.
	detailed := fmt.Errorf("backup: %w", ErrBrokenChain.WithDetails("2024-01-01T00-00:a.txt"))
	if !errors.Is(detailed, ErrBrokenChain) {
		t.Error("errors.Is should see through details and wrapping")
	}
	if errors.Is(detailed, ErrPathNotTracked) {
		t.Error("broken chain must be distinguishable from an untracked path")
	}
}

func TestDomainError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("underlying cause")
	err := NewDomainError("WS-TEST-1000", "wrapper").WithCause(cause)

	if unwrapped := errors.Unwrap(err); unwrapped != cause {
		t.Errorf("Unwrap() = %v, want %v", unwrapped, cause)
	}

	errNoCause := NewDomainError("WS-TEST-1000", "no cause")
	if errors.Unwrap(errNoCause) != nil {
		t.Error("Unwrap() should return nil when no cause")
	}
}

func TestDomainError_WithDetails(t *testing.T) {
	original := NewDomainError("WS-TEST-1000", "original message")
	withDetails := original.WithDetails("additional details")

	if original.Details != "" {
		t.Error("WithDetails should not modify original error")
	}
	if withDetails.Details != "additional details" {
		t.Errorf("Details = %q, want %q", withDetails.Details, "additional details")
	}
	if withDetails.Code != original.Code || withDetails.Message != original.Message {
		t.Error("WithDetails should preserve code and message")
	}
}

func TestDomainError_WithCause(t *testing.T) {
	original := NewDomainError("WS-TEST-1000", "original")
	cause := fmt.Errorf("cause")
	wrapped := original.WithCause(cause)

	if wrapped.Cause != cause {
		t.Errorf("WithCause() should set cause, got %v", wrapped.Cause)
	}
	if original.Cause != nil {
		t.Error("WithCause should not modify original error")
	}
}

func TestIsDomainError(t *testing.T) {
	err := ErrNoSuchGeneration

	if !IsDomainError(err, "WS-GEN-4040") {
		t.Error("IsDomainError should return true for matching code")
	}
	if IsDomainError(err, "WS-GEN-9999") {
		t.Error("IsDomainError should return false for non-matching code")
	}
	if IsDomainError(fmt.Errorf("regular error"), "WS-GEN-4040") {
		t.Error("IsDomainError should return false for non-DomainError")
	}
	wrapped := fmt.Errorf("wrapped: %w", ErrNoSuchGeneration)
	if !IsDomainError(wrapped, "WS-GEN-4040") {
		t.Error("IsDomainError should work with wrapped errors")
	}
}

func TestGetErrorCode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{"domain error", ErrStoreLocked, "WS-SYS-4230"},
		{"wrapped domain error", fmt.Errorf("wrapped: %w", ErrStat), "WS-FS-5002"},
		{"regular error", fmt.Errorf("regular error"), ""},
		{"nil error", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetErrorCode(tt.err); got != tt.expected {
				t.Errorf("GetErrorCode() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestPredefinedErrors(t *testing.T) {
	tests := []struct {
		err  *DomainError
		code string
	}{
		{ErrAccess, "WS-FS-5001"},
		{ErrStat, "WS-FS-5002"},
		{ErrNoSuchGeneration, "WS-GEN-4040"},
		{ErrNoNextGeneration, "WS-GEN-4041"},
		{ErrDuplicateGeneration, "WS-GEN-4090"},
		{ErrProvisionalGeneration, "WS-GEN-4091"},
		{ErrBrokenChain, "WS-CHAIN-5000"},
		{ErrPathNotTracked, "WS-CHAIN-4040"},
		{ErrInvalidArgument, "WS-ARG-1001"},
		{ErrStoreLocked, "WS-SYS-4230"},
		{ErrStorage, "WS-SYS-5001"},
	}

	seen := make(map[string]bool)
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			if tt.err.Code != tt.code {
				t.Errorf("Code = %q, want %q", tt.err.Code, tt.code)
			}
			if tt.err.Message == "" {
				t.Error("Message should not be empty")
			}
			if seen[tt.code] {
				t.Errorf("duplicate code %q", tt.code)
			}
			seen[tt.code] = true
		})
	}
}
