package validation

import (
	"strings"
	"time"

	rferrors "github.com/vnykmshr/rowflow/pkg/common/errors"
)

// ValidatePositive validates that an integer value is positive (> 0).
func ValidatePositive(module, field string, value int) error {
	if value <= 0 {
		return rferrors.NewValidationError(module, field, value, "must be positive").
			WithHint("value must be greater than 0")
	}
	return nil
}

// ValidateNonNegative validates that a count or threshold is not negative.
func ValidateNonNegative(module, field string, value int64) error {
	if value < 0 {
		return rferrors.NewValidationError(module, field, value, "cannot be negative").
			WithHint("use 0 to disable or a positive value")
	}
	return nil
}

// ValidatePercent validates that value lies in [0, 100].
func ValidatePercent(module, field string, value int) error {
	if value < 0 || value > 100 {
		return rferrors.NewValidationError(module, field, value, "must be between 0 and 100").
			WithHint("use 0 to disable the percentage check")
	}
	return nil
}

// ValidatePositiveDuration validates that a duration is greater than zero.
func ValidatePositiveDuration(module, field string, value time.Duration) error {
	if value <= 0 {
		return rferrors.NewValidationError(module, field, value, "must be positive").
			WithHint("use a duration such as 1ms or 1s")
	}
	return nil
}

// ValidateNotNil validates that an interface value is not nil.
func ValidateNotNil(module, field string, value interface{}) error {
	if value == nil {
		return rferrors.NewValidationError(module, field, nil, "cannot be nil").
			WithHint("provide a valid " + field)
	}
	return nil
}

// ValidateNotBlank validates that a name is not empty or whitespace only.
func ValidateNotBlank(module, field string, value string) error {
	if strings.TrimSpace(value) == "" {
		return rferrors.NewValidationError(module, field, value, "cannot be blank").
			WithHint("provide a non-empty " + field)
	}
	return nil
}
