package types

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidArgument marks caller-supplied values that fail validation, such
// as a strength outside [0,1] or an empty required identifier.
var ErrInvalidArgument = errors.New("invalid argument")

// RequireNonEmpty returns an error wrapping ErrInvalidArgument when the
// value is empty or whitespace.
func RequireNonEmpty(value, name string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%w: %s is required", ErrInvalidArgument, name)
	}
	return nil
}

// RequireUnitRange returns an error wrapping ErrInvalidArgument when the
// value is outside [0,1].
func RequireUnitRange(value float64, name string) error {
	return RequireRange(value, 0, 1, name)
}

// RequireRange returns an error wrapping ErrInvalidArgument when the value
// is outside [min, max].
func RequireRange(value, min, max float64, name string) error {
	if value < min || value > max {
		return fmt.Errorf("%w: %s must be between %g and %g, got %g",
			ErrInvalidArgument, name, min, max, value)
	}
	return nil
}

// Clamp bounds value to [min, max].
func Clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
