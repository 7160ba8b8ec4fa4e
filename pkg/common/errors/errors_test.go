package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestCommonErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"ErrClosed", ErrClosed, "resource is closed"},
		{"ErrTimeout", ErrTimeout, "operation timed out"},
		{"ErrInvalidConfiguration", ErrInvalidConfiguration, "invalid configuration"},
		{"ErrStopped", ErrStopped, "run stopped"},
		{"ErrChannelDone", ErrChannelDone, "channel is done"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestValidationError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *ValidationError
		want string
	}{
		{
			name: "without hint",
			err:  &ValidationError{Module: "channel", Field: "capacity", Value: -1, Reason: "must be positive"},
			want: "channel: invalid capacity=-1 (must be positive)",
		},
		{
			name: "with hint",
			err: &ValidationError{
				Module: "pipeline",
				Field:  "copies",
				Value:  0,
				Reason: "must be positive",
				Hint:   "use 1 for a single copy",
			},
			want: "pipeline: invalid copies=0 (must be positive) - use 1 for a single copy",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestValidationError_Unwrap(t *testing.T) {
	verr := NewValidationError("test", "field", 0, "test").WithHint("hint")
	if !errors.Is(verr, ErrInvalidConfiguration) {
		t.Error("ValidationError should wrap ErrInvalidConfiguration")
	}
	if verr.WithHint("other") != verr {
		t.Error("WithHint should return the same instance")
	}
}

func TestOperationError(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewOperationError("remote", "Connect", cause).WithContext("localhost:4000")

	if got, want := err.Error(), "remote.Connect failed: connection refused (localhost:4000)"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !errors.Is(err, cause) {
		t.Error("OperationError should wrap the cause error")
	}
}

func TestStageError(t *testing.T) {
	err := NewStageError("sort", 1, RateExceeded, ErrRateExceeded)

	msg := err.Error()
	for _, part := range []string{`"sort"`, "copy 1", "rate-exceeded"} {
		if !strings.Contains(msg, part) {
			t.Errorf("error message should contain %q, got %q", part, msg)
		}
	}
	if !errors.Is(err, ErrRateExceeded) {
		t.Error("StageError should wrap its cause")
	}
}

func TestCategoryOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Category
	}{
		{"nil", nil, Unknown},
		{"plain", errors.New("boom"), Unknown},
		{"stage error", NewStageError("a", 0, Resource, errors.New("io")), Resource},
		{"wrapped stage error", fmt.Errorf("outer: %w", NewStageError("a", 0, Deadlock, ErrDeadlock)), Deadlock},
		{"validation", NewValidationError("m", "f", 1, "bad"), Configuration},
		{"missing channel", fmt.Errorf("wire: %w", ErrMissingChannel), Configuration},
		{"schema mismatch", ErrSchemaMismatch, Configuration},
		{"rate sentinel", ErrRateExceeded, RateExceeded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CategoryOf(tt.err); got != tt.want {
				t.Errorf("CategoryOf() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCategorize(t *testing.T) {
	if Categorize("a", 0, Resource, nil) != nil {
		t.Fatal("nil error should stay nil")
	}

	se := Categorize("load", 2, Resource, errors.New("disk full"))
	if se.Category != Resource || se.Stage != "load" || se.Copy != 2 {
		t.Errorf("unexpected stage error %+v", se)
	}

	se = Categorize("load", 2, Resource, ErrSchemaMismatch)
	if se.Category != Configuration {
		t.Errorf("Category = %v, want configuration", se.Category)
	}

	inner := NewStageError("filter", 0, DataQuality, errors.New("null"))
	if Categorize("other", 3, Resource, inner) != inner {
		t.Error("existing StageError should be returned unchanged")
	}
}

func TestRunError(t *testing.T) {
	runErr := &RunError{
		RunID: "r1",
		Failures: []*StageError{
			NewStageError("a", 0, Deadlock, ErrDeadlock),
			NewStageError("b", 1, Resource, errors.New("socket")),
		},
	}

	if !errors.Is(runErr, ErrDeadlock) {
		t.Error("RunError should expose stage failures")
	}
	var se *StageError
	if !errors.As(runErr, &se) || se.Stage != "a" {
		t.Errorf("errors.As should find the first stage error, got %+v", se)
	}
	if !strings.Contains(runErr.Error(), "socket") {
		t.Errorf("message should list every failure, got %q", runErr.Error())
	}
}

func TestIsValidationError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"validation error", NewValidationError("test", "field", 0, "test"), true},
		{"wrapped", &OperationError{Cause: NewValidationError("test", "field", 0, "test")}, true},
		{"operation error", &OperationError{Cause: errors.New("test")}, false},
		{"nil error", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValidationError(tt.err); got != tt.want {
				t.Errorf("IsValidationError() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(fmt.Errorf("put: %w", ErrTimeout)) {
		t.Error("wrapped timeout should be retryable")
	}
	if IsRetryable(ErrClosed) || IsRetryable(nil) {
		t.Error("closed and nil should not be retryable")
	}
}
