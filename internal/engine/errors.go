package engine

import (
	"errors"
	"fmt"
)

// ConsistencyError represents a structural inconsistency detected while
// wiring the engine or while handling a notification.
//
// Consistency errors include:
//   - Dangling id: a subsystem id outside the dense [0, N) range
//   - Coverage gap: block ranges leave rows of the global space unowned
//   - Range overlap: two block ranges claim the same rows
//   - Unknown component: a mode change names an unregistered component
//   - Pattern outside block: an evaluator claims entries outside its rows
//   - Missing evaluator: a subsystem has no derivative evaluator
//
// ConsistencyError includes structured fields for diagnostics.
type ConsistencyError struct {
	// Code identifies the error category.
	Code ConsistencyErrorCode

	// Message is a human-readable description.
	Message string

	// Subsystem identifies the affected subsystem, when known.
	Subsystem string

	// Details contains additional context.
	Details map[string]string
}

// ConsistencyErrorCode categorizes consistency errors.
type ConsistencyErrorCode string

const (
	// ErrCodeDanglingID indicates a subsystem id outside the dense range.
	ErrCodeDanglingID ConsistencyErrorCode = "DANGLING_ID"

	// ErrCodeCoverageGap indicates block ranges leave rows unowned.
	ErrCodeCoverageGap ConsistencyErrorCode = "COVERAGE_GAP"

	// ErrCodeRangeOverlap indicates two block ranges claim the same rows.
	ErrCodeRangeOverlap ConsistencyErrorCode = "RANGE_OVERLAP"

	// ErrCodeUnknownComponent indicates a mode change named a component
	// absent from the component table.
	ErrCodeUnknownComponent ConsistencyErrorCode = "UNKNOWN_COMPONENT"

	// ErrCodePatternOutsideBlock indicates an evaluator declared pattern
	// coordinates outside its block's row range or the global space.
	ErrCodePatternOutsideBlock ConsistencyErrorCode = "PATTERN_OUTSIDE_BLOCK"

	// ErrCodeMissingEvaluator indicates a subsystem has no evaluator.
	ErrCodeMissingEvaluator ConsistencyErrorCode = "MISSING_EVALUATOR"

	// ErrCodeDuplicateComponent indicates two components share a
	// (kind, name) reference.
	ErrCodeDuplicateComponent ConsistencyErrorCode = "DUPLICATE_COMPONENT"
)

// Error implements the error interface.
func (e *ConsistencyError) Error() string {
	if e.Subsystem != "" {
		return fmt.Sprintf("%s: %s (subsystem=%s)", e.Code, e.Message, e.Subsystem)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsConsistencyError returns true if the error is a consistency error.
// Uses errors.As to handle wrapped errors.
func IsConsistencyError(err error) bool {
	var ce *ConsistencyError
	return errors.As(err, &ce)
}

// newConsistencyError creates a ConsistencyError with a formatted message.
func newConsistencyError(code ConsistencyErrorCode, format string, args ...any) *ConsistencyError {
	return &ConsistencyError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// NewCoverageError creates a ConsistencyError for an unowned row range.
func NewCoverageError(start, end int) *ConsistencyError {
	return &ConsistencyError{
		Code:    ErrCodeCoverageGap,
		Message: fmt.Sprintf("rows [%d, %d) belong to no block", start, end),
		Details: map[string]string{
			"start": fmt.Sprintf("%d", start),
			"end":   fmt.Sprintf("%d", end),
		},
	}
}

// NewOverlapError creates a ConsistencyError for overlapping block ranges.
func NewOverlapError(a, b string, row int) *ConsistencyError {
	return &ConsistencyError{
		Code:    ErrCodeRangeOverlap,
		Message: fmt.Sprintf("subsystems %s and %s both own row %d", a, b, row),
		Details: map[string]string{
			"first":  a,
			"second": b,
			"row":    fmt.Sprintf("%d", row),
		},
	}
}

// NewUnknownComponentError creates a ConsistencyError for a mode change
// naming an unregistered component.
func NewUnknownComponentError(kind, name string) *ConsistencyError {
	return &ConsistencyError{
		Code:    ErrCodeUnknownComponent,
		Message: fmt.Sprintf("no component %s/%s registered", kind, name),
		Details: map[string]string{
			"kind": kind,
			"name": name,
		},
	}
}

// ConfigurationError represents an invalid tuning value. Configuration is
// validated once at construction; a ConfigurationError is never retried.
type ConfigurationError struct {
	// Field names the offending configuration field.
	Field string

	// Value renders the rejected value.
	Value string

	// Message describes the violated constraint.
	Message string
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid config: %s: %s (got %s)", e.Field, e.Message, e.Value)
}

// IsConfigurationError returns true if the error is a configuration error.
// Uses errors.As to handle wrapped errors.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

// newConfigError creates a ConfigurationError for one field.
func newConfigError(field, message string, value any) *ConfigurationError {
	return &ConfigurationError{
		Field:   field,
		Value:   fmt.Sprintf("%v", value),
		Message: message,
	}
}

// SingularityError represents a structurally singular system: the
// factorization found no permutation giving a zero-free diagonal. This is
// a modeling defect, kept distinct from transient convergence failures
// (which the integrator reports through RecordConvergence and owns).
type SingularityError struct {
	// Row is the first zero diagonal reported, or -1 when unknown.
	Row int

	// Message is a human-readable description.
	Message string
}

// Error implements the error interface.
func (e *SingularityError) Error() string {
	if e.Row >= 0 {
		return fmt.Sprintf("structurally singular system: %s (row=%d)", e.Message, e.Row)
	}
	return fmt.Sprintf("structurally singular system: %s", e.Message)
}

// IsSingularityError returns true if the error reports a structural
// singularity. Uses errors.As to handle wrapped errors.
func IsSingularityError(err error) bool {
	var se *SingularityError
	return errors.As(err, &se)
}
