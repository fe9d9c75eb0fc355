// Package errors provides standardized error handling for formflow components.
// It includes error classification, the domain error taxonomy used by the
// navigation engine, and helper functions for consistent error wrapping.
package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorClass represents the classification of errors for handling purposes
type ErrorClass int

const (
	// ErrorTransient represents temporary errors that may be retried
	ErrorTransient ErrorClass = iota
	// ErrorInvalid represents errors due to invalid input or configuration
	ErrorInvalid
	// ErrorFatal represents unrecoverable errors that should stop processing
	ErrorFatal
)

// String returns the string representation of ErrorClass
func (ec ErrorClass) String() string {
	switch ec {
	case ErrorTransient:
		return "transient"
	case ErrorInvalid:
		return "invalid"
	case ErrorFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Domain errors raised by the flow engine
var (
	// ErrNotFound marks a missing flow, screen, subflow, iteration or submission
	ErrNotFound = errors.New("not found")
	// ErrConfigAmbiguity marks a flow definition that cannot be navigated
	ErrConfigAmbiguity = errors.New("flow configuration ambiguity")
	// ErrNavigationCycle marks a loop of screens whose conditions never hold
	ErrNavigationCycle = errors.New("navigation cycle detected")
	// ErrSubmissionLocked marks a mutation attempt on a finalized submission
	ErrSubmissionLocked = errors.New("submission is locked")
	// ErrSessionExpired marks a request that needs session state that is gone
	ErrSessionExpired = errors.New("session expired")
)

// Standard error variables for infrastructure conditions
var (
	ErrAlreadyStarted = errors.New("component already started")
	ErrNotStarted     = errors.New("component not started")

	ErrNoConnection      = errors.New("no connection available")
	ErrConnectionLost    = errors.New("connection lost")
	ErrConnectionTimeout = errors.New("connection timeout")

	ErrInvalidData   = errors.New("invalid data format")
	ErrDataCorrupted = errors.New("data corrupted")
	ErrParsingFailed = errors.New("parsing failed")

	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrBucketNotFound     = errors.New("bucket not found")
	ErrKeyNotFound        = errors.New("key not found")
	ErrConflict           = errors.New("concurrent modification")

	ErrInvalidConfig = errors.New("invalid configuration")
	ErrMissingConfig = errors.New("missing required configuration")

	ErrRateLimited = errors.New("rate limited")
	ErrCircuitOpen = errors.New("circuit breaker open")
)

// ClassifiedError wraps an error with its classification
type ClassifiedError struct {
	Class     ErrorClass
	Err       error
	Message   string
	Component string
	Operation string
}

// Error implements the error interface
func (ce *ClassifiedError) Error() string {
	if ce.Message != "" {
		return ce.Message
	}
	return ce.Err.Error()
}

// Unwrap returns the underlying error
func (ce *ClassifiedError) Unwrap() error {
	return ce.Err
}

// NotFoundError describes a request that references something the flow
// configuration or the submission does not contain. Screen may be empty.
type NotFoundError struct {
	Flow    string
	Screen  string
	Message string
}

// NewNotFound creates a NotFoundError
func NewNotFound(flow, screen, message string) *NotFoundError {
	return &NotFoundError{Flow: flow, Screen: screen, Message: message}
}

// Error implements the error interface
func (e *NotFoundError) Error() string {
	screen := e.Screen
	if screen == "" {
		screen = "null"
	}
	return fmt.Sprintf("There was a problem with the request (flow: %s, screen: %s): %s",
		e.Flow, screen, e.Message)
}

// Is lets errors.Is(err, ErrNotFound) match
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// ConfigError describes a flow definition that is structurally valid but
// cannot be navigated, such as a screen without an unconditional next entry.
type ConfigError struct {
	Flow    string
	Screen  string
	Message string
	Err     error
}

// NewConfigError creates a ConfigError matching ErrConfigAmbiguity
func NewConfigError(flow, screen, message string) *ConfigError {
	return &ConfigError{Flow: flow, Screen: screen, Message: message, Err: ErrConfigAmbiguity}
}

// Error implements the error interface
func (e *ConfigError) Error() string {
	return fmt.Sprintf("flow %q screen %q: %s", e.Flow, e.Screen, e.Message)
}

// Unwrap returns the sentinel describing the configuration problem
func (e *ConfigError) Unwrap() error {
	if e.Err == nil {
		return ErrConfigAmbiguity
	}
	return e.Err
}

// Is lets every ConfigError match ErrConfigAmbiguity regardless of Err
func (e *ConfigError) Is(target error) bool {
	return target == ErrConfigAmbiguity
}

// IsNotFound reports whether err describes a missing resource
func IsNotFound(err error) bool {
	return err != nil && (errors.Is(err, ErrNotFound) || errors.Is(err, ErrKeyNotFound))
}

// IsConfigError reports whether err describes an unusable flow definition
func IsConfigError(err error) bool {
	return err != nil && errors.Is(err, ErrConfigAmbiguity)
}

// IsTransient checks if an error is transient and should be retried
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorTransient
	}

	if errors.Is(err, ErrConnectionTimeout) ||
		errors.Is(err, ErrConnectionLost) ||
		errors.Is(err, ErrStorageUnavailable) ||
		errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrCircuitOpen) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	transientPatterns := []string{
		"timeout",
		"connection",
		"network",
		"temporary",
		"unavailable",
	}

	for _, pattern := range transientPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}

// IsFatal checks if an error is fatal and should stop processing
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorFatal
	}

	if errors.Is(err, ErrInvalidConfig) ||
		errors.Is(err, ErrMissingConfig) ||
		errors.Is(err, ErrDataCorrupted) ||
		errors.Is(err, ErrConfigAmbiguity) ||
		errors.Is(err, ErrNavigationCycle) {
		return true
	}

	return false
}

// IsInvalid checks if an error is due to invalid input
func IsInvalid(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorInvalid
	}

	return errors.Is(err, ErrInvalidData) ||
		errors.Is(err, ErrParsingFailed) ||
		errors.Is(err, ErrSessionExpired)
}

// Classify returns the error class for an error
func Classify(err error) ErrorClass {
	if err == nil {
		return ErrorTransient
	}

	if IsFatal(err) {
		return ErrorFatal
	}
	if IsInvalid(err) {
		return ErrorInvalid
	}

	// Unknown errors stay retryable
	return ErrorTransient
}

func newClassified(class ErrorClass, err error, component, operation, message string) *ClassifiedError {
	return &ClassifiedError{
		Class:     class,
		Err:       err,
		Message:   message,
		Component: component,
		Operation: operation,
	}
}

// Wrap creates a standardized error with context following the pattern:
// "component.method: action failed: %w"
func Wrap(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s.%s: %s failed: %w", component, method, action, err)
}

// WrapTransient wraps an error as transient with context
func WrapTransient(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorTransient, wrappedErr, component, method, wrappedErr.Error())
}

// WrapFatal wraps an error as fatal with context
func WrapFatal(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorFatal, wrappedErr, component, method, wrappedErr.Error())
}

// WrapInvalid wraps an error as invalid with context
func WrapInvalid(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorInvalid, wrappedErr, component, method, wrappedErr.Error())
}

// Invalid creates an invalid-class error from a message
func Invalid(component, method, message string) error {
	return WrapInvalid(errors.New(message), component, method, "validation")
}

// Is, As and New re-export the standard library helpers so callers only
// import one errors package.
var (
	Is  = errors.Is
	As  = errors.As
	New = errors.New
)
