package engine

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestConsistencyError_Rendering tests the message with and without a
// subsystem attached.
func TestConsistencyError_Rendering(t *testing.T) {
	withSub := &ConsistencyError{
		Code:      ErrCodeMissingEvaluator,
		Message:   "no derivative evaluator registered",
		Subsystem: "north",
	}
	assert.Equal(t, "MISSING_EVALUATOR: no derivative evaluator registered (subsystem=north)", withSub.Error())

	bare := newConsistencyError(ErrCodeDanglingID, "id %d out of range", 7)
	assert.Equal(t, "DANGLING_ID: id 7 out of range", bare.Error())
}

// TestConfigurationError_Rendering tests the field/value message layout.
func TestConfigurationError_Rendering(t *testing.T) {
	err := newConfigError("FullUpdateFraction", "must be in (0, 1]", 1.5)
	assert.Equal(t, "invalid config: FullUpdateFraction: must be in (0, 1] (got 1.5)", err.Error())
}

// TestSingularityError_Rendering tests both the known-row and unknown-row
// forms of the factorization failure surfaced by the outer solver.
func TestSingularityError_Rendering(t *testing.T) {
	known := &SingularityError{Row: 42, Message: "zero-free diagonal impossible"}
	assert.Equal(t, "structurally singular system: zero-free diagonal impossible (row=42)", known.Error())

	unknown := &SingularityError{Row: -1, Message: "zero-free diagonal impossible"}
	assert.Equal(t, "structurally singular system: zero-free diagonal impossible", unknown.Error())
}

// TestErrorPredicates_Wrapped tests that the Is helpers see through
// wrapping and reject foreign errors.
func TestErrorPredicates_Wrapped(t *testing.T) {
	ce := fmt.Errorf("wiring: %w", NewCoverageError(2, 5))
	assert.True(t, IsConsistencyError(ce))
	assert.False(t, IsConfigurationError(ce))
	assert.False(t, IsSingularityError(ce))

	cfg := fmt.Errorf("construct: %w", newConfigError("MaxWorkers", "must not be negative", -2))
	assert.True(t, IsConfigurationError(cfg))
	assert.False(t, IsConsistencyError(cfg))

	sing := fmt.Errorf("factorize: %w", &SingularityError{Row: 0, Message: "empty row"})
	assert.True(t, IsSingularityError(sing))
	assert.False(t, IsConsistencyError(sing))

	assert.False(t, IsConsistencyError(assert.AnError))
	assert.False(t, IsConfigurationError(nil))
	assert.False(t, IsSingularityError(nil))
}
