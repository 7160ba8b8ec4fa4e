// Package errors defines the error vocabulary shared by rowflow packages:
// sentinel errors, validation and operation errors, and the stage failure
// categories a run can terminate with.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrClosed indicates that an operation was attempted on a closed resource
	ErrClosed = errors.New("resource is closed")

	// ErrTimeout indicates that an operation timed out
	ErrTimeout = errors.New("operation timed out")

	// ErrInvalidConfiguration indicates invalid configuration parameters
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrStopped indicates that the run was stopped before the operation completed
	ErrStopped = errors.New("run stopped")

	// ErrChannelDone indicates a put on a channel already marked done
	ErrChannelDone = errors.New("channel is done")

	// ErrMissingChannel indicates that no channel was allocated for a stage pairing
	ErrMissingChannel = errors.New("missing channel")

	// ErrSchemaMismatch indicates rows with incompatible layouts reached one stage
	ErrSchemaMismatch = errors.New("row layout mismatch")

	// ErrRateExceeded indicates an error-rate threshold was breached
	ErrRateExceeded = errors.New("error rate exceeded")

	// ErrDeadlock indicates a confirmed buffer deadlock between stages
	ErrDeadlock = errors.New("deadlock detected")
)

// Category classifies why a stage copy failed.
type Category int

const (
	// Unknown is used for failures raised by stage processors without a category.
	Unknown Category = iota
	Configuration
	DataQuality
	Resource
	RateExceeded
	Deadlock
)

// String returns the category name used in logs and run reports.
func (c Category) String() string {
	switch c {
	case Configuration:
		return "configuration"
	case DataQuality:
		return "data-quality"
	case Resource:
		return "resource"
	case RateExceeded:
		return "rate-exceeded"
	case Deadlock:
		return "deadlock"
	default:
		return "unknown"
	}
}

// ValidationError describes an invalid configuration value.
type ValidationError struct {
	Module string
	Field  string
	Value  interface{}
	Reason string
	Hint   string
}

// NewValidationError creates a ValidationError without a hint.
func NewValidationError(module, field string, value interface{}, reason string) *ValidationError {
	return &ValidationError{
		Module: module,
		Field:  field,
		Value:  value,
		Reason: reason,
	}
}

// WithHint attaches a remediation hint and returns the same error for chaining.
func (e *ValidationError) WithHint(hint string) *ValidationError {
	e.Hint = hint
	return e
}

func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("%s: invalid %s=%v (%s)", e.Module, e.Field, e.Value, e.Reason)
	if e.Hint != "" {
		msg += " - " + e.Hint
	}
	return msg
}

// Unwrap lets errors.Is match ErrInvalidConfiguration.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidConfiguration
}

// OperationError wraps a failure of a named operation in a module.
type OperationError struct {
	Module    string
	Operation string
	Cause     error
	Context   string
}

// NewOperationError creates an OperationError for module.operation.
func NewOperationError(module, operation string, cause error) *OperationError {
	return &OperationError{
		Module:    module,
		Operation: operation,
		Cause:     cause,
	}
}

// WithContext attaches additional context and returns the same error for chaining.
func (e *OperationError) WithContext(context string) *OperationError {
	e.Context = context
	return e
}

func (e *OperationError) Error() string {
	msg := fmt.Sprintf("%s.%s failed: %v", e.Module, e.Operation, e.Cause)
	if e.Context != "" {
		msg += " (" + e.Context + ")"
	}
	return msg
}

func (e *OperationError) Unwrap() error {
	return e.Cause
}

// StageError is a fatal failure of one stage copy.
type StageError struct {
	Stage    string
	Copy     int
	Category Category
	Err      error
}

// NewStageError creates a StageError.
func NewStageError(stage string, copyNr int, category Category, err error) *StageError {
	return &StageError{Stage: stage, Copy: copyNr, Category: category, Err: err}
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %q copy %d: %s: %v", e.Stage, e.Copy, e.Category, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// CategoryOf returns the category of the first StageError in err's chain.
// Sentinel errors map to their category when no StageError is present.
func CategoryOf(err error) Category {
	if err == nil {
		return Unknown
	}
	var se *StageError
	if errors.As(err, &se) {
		return se.Category
	}
	switch {
	case errors.Is(err, ErrInvalidConfiguration), errors.Is(err, ErrMissingChannel), errors.Is(err, ErrSchemaMismatch):
		return Configuration
	case errors.Is(err, ErrRateExceeded):
		return RateExceeded
	case errors.Is(err, ErrDeadlock):
		return Deadlock
	}
	return Unknown
}

// Categorize wraps err in a StageError unless it already carries one.
// A nil error stays nil.
func Categorize(stage string, copyNr int, fallback Category, err error) *StageError {
	if err == nil {
		return nil
	}
	var se *StageError
	if errors.As(err, &se) {
		return se
	}
	if c := CategoryOf(err); c != Unknown {
		fallback = c
	}
	return NewStageError(stage, copyNr, fallback, err)
}

// RunError reports every stage failure that terminated a run.
type RunError struct {
	RunID    string
	Failures []*StageError
}

func (e *RunError) Error() string {
	if len(e.Failures) == 0 {
		return fmt.Sprintf("run %s failed", e.RunID)
	}
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, f.Error())
	}
	return fmt.Sprintf("run %s failed: %s", e.RunID, strings.Join(parts, "; "))
}

// Unwrap exposes each stage failure to errors.Is and errors.As.
func (e *RunError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f
	}
	return errs
}

// IsRetryable returns true if the error indicates a condition that might
// be resolved by retrying the operation
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// IsValidationError reports whether err wraps a ValidationError.
func IsValidationError(err error) bool {
	var verr *ValidationError
	return errors.As(err, &verr)
}
