package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents different categories of errors.
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeSecurity   ErrorType = "security"
	ErrorTypeDecode     ErrorType = "decode"
	ErrorTypeIO         ErrorType = "io"
	ErrorTypeNetwork    ErrorType = "network"
	ErrorTypeConfig     ErrorType = "config"
	ErrorTypeInternal   ErrorType = "internal"
)

// FiddleError is a structured error type with context.
type FiddleError struct {
	Type        ErrorType
	Code        string
	Message     string
	Cause       error
	Context     map[string]interface{}
	Component   string
	Recoverable bool
}

// Error implements the error interface.
func (e *FiddleError) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}

	if e.Component != "" {
		parts = append(parts, "component:"+e.Component)
	}

	parts = append(parts, e.Message)

	result := strings.Join(parts, " ")

	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *FiddleError) Unwrap() error {
	return e.Cause
}

// Is implements error comparison.
func (e *FiddleError) Is(target error) bool {
	var t *FiddleError
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}

	return false
}

// WithContext adds context information to the error.
func (e *FiddleError) WithContext(key string, value interface{}) *FiddleError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value

	return e
}

// WithComponent adds component context.
func (e *FiddleError) WithComponent(component string) *FiddleError {
	e.Component = component

	return e
}

// Error creation functions

// NewValidationError creates a validation error.
func NewValidationError(code, message string) *FiddleError {
	return &FiddleError{
		Type:        ErrorTypeValidation,
		Code:        code,
		Message:     message,
		Recoverable: true,
	}
}

// NewSecurityError creates a security error.
func NewSecurityError(code, message string) *FiddleError {
	return &FiddleError{
		Type:        ErrorTypeSecurity,
		Code:        code,
		Message:     message,
		Recoverable: false,
	}
}

// NewDecodeError creates a share-link decode error. Decode failures
// are always recoverable: the caller falls back to default content.
func NewDecodeError(code, message string, cause error) *FiddleError {
	return &FiddleError{
		Type:        ErrorTypeDecode,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: true,
	}
}

// NewIOError creates an I/O error.
func NewIOError(code, message string, cause error) *FiddleError {
	return &FiddleError{
		Type:        ErrorTypeIO,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: false,
	}
}

// NewConfigError creates a configuration error.
func NewConfigError(code, message string) *FiddleError {
	return &FiddleError{
		Type:        ErrorTypeConfig,
		Code:        code,
		Message:     message,
		Recoverable: false,
	}
}

// NewInternalError creates an internal error.
func NewInternalError(code, message string, cause error) *FiddleError {
	return &FiddleError{
		Type:        ErrorTypeInternal,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: false,
	}
}

// IsRecoverable checks if an error is recoverable.
func IsRecoverable(err error) bool {
	var fe *FiddleError
	if errors.As(err, &fe) {
		return fe.Recoverable
	}

	return false
}

// IsSecurityError checks if an error is security-related.
func IsSecurityError(err error) bool {
	var fe *FiddleError
	if errors.As(err, &fe) {
		return fe.Type == ErrorTypeSecurity
	}

	return false
}

// IsDecodeError checks if an error is a share-link decode failure.
func IsDecodeError(err error) bool {
	var fe *FiddleError
	if errors.As(err, &fe) {
		return fe.Type == ErrorTypeDecode
	}

	return false
}
