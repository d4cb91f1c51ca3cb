package compiler

import (
	"fmt"
	"strings"

	"github.com/roach88/jacquard/internal/engine"
	"github.com/roach88/jacquard/internal/sysdef"
)

// Validation error codes (E100-E199)
const (
	// General validation errors (E100)
	ErrUnsupportedType = "E100" // unsupported type for validation

	// System errors (E101-E109)
	ErrSystemNameEmpty      = "E101" // system name is required
	ErrSystemNoSubsystems   = "E102" // at least one subsystem required
	ErrEmptyIndexRange      = "E103" // subsystem must own at least one row/column
	ErrNonDenseID           = "E104" // subsystem IDs must match declaration order
	ErrNonContiguousRange   = "E105" // index ranges must tile the global space
	ErrDuplicateName        = "E106" // duplicate subsystem/component name
	ErrUnknownSubsystemRef  = "E107" // reference to a subsystem that does not exist
	ErrSelfCoupling         = "E108" // coupling endpoints must differ
	ErrInvalidComponentKind = "E109" // component kind not recognized

	// Tuning errors (E110-E119)
	ErrNegativeTolerance    = "E110" // structure tolerances must be non-negative
	ErrFractionOutOfRange   = "E111" // full-update fraction must be in (0, 1]
	ErrNonPositiveBudget    = "E112" // time/step/streak budgets must be positive
	ErrZeroPropagationDepth = "E113" // propagation depth cannot be zero
	ErrNegativeLimit        = "E114" // rates and worker limits must be non-negative
)

// ValidationError represents a schema validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate validates a compiled system description or engine tuning against
// structural rules.
// Returns all errors found (does not fail-fast).
// Supports System and Config types.
func Validate(v any) []ValidationError {
	switch val := v.(type) {
	case *sysdef.System:
		return validateSystem(val)
	case sysdef.System:
		return validateSystem(&val)
	case *engine.Config:
		return validateConfig(val)
	case engine.Config:
		return validateConfig(&val)
	default:
		return []ValidationError{{
			Field:   "type",
			Message: fmt.Sprintf("unsupported type: %T", v),
			Code:    ErrUnsupportedType,
		}}
	}
}

// validateSystem validates a system description.
func validateSystem(sys *sysdef.System) []ValidationError {
	var errs []ValidationError

	// E101: system name is required
	if strings.TrimSpace(sys.Name) == "" {
		errs = append(errs, ValidationError{
			Field:   "name",
			Message: "system name is required and must be non-empty",
			Code:    ErrSystemNameEmpty,
		})
	}

	// E102: at least one subsystem required
	if len(sys.Subsystems) == 0 {
		errs = append(errs, ValidationError{
			Field:   "subsystems",
			Message: "at least one subsystem is required",
			Code:    ErrSystemNoSubsystems,
		})
	}

	// Track names for duplicate detection
	subsystemNames := make(map[string]bool)

	// Subsystem IDs double as array indices everywhere downstream, and the
	// ranges must tile [0, Dim) or block scatter offsets land on the wrong
	// rows. Both are checked positionally.
	rowOffset := 0
	colOffset := 0
	for i, sub := range sys.Subsystems {
		// E104: IDs must be dense and in declaration order
		if sub.ID != sysdef.SubsystemID(i) {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("subsystems[%d].id", i),
				Message: fmt.Sprintf("subsystem ID must be %d, got %d", i, sub.ID),
				Code:    ErrNonDenseID,
			})
		}

		// E106: duplicate subsystem name
		if subsystemNames[sub.Name] {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("subsystems[%d].name", i),
				Message: fmt.Sprintf("duplicate subsystem name: %q", sub.Name),
				Code:    ErrDuplicateName,
			})
		}
		subsystemNames[sub.Name] = true

		// E103: ranges must be non-empty
		if sub.Rows.Len() < 1 {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("subsystems[%d].rows", i),
				Message: fmt.Sprintf("subsystem %q must own at least one row", sub.Name),
				Code:    ErrEmptyIndexRange,
			})
		}
		if sub.Cols.Len() < 1 {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("subsystems[%d].cols", i),
				Message: fmt.Sprintf("subsystem %q must own at least one column", sub.Name),
				Code:    ErrEmptyIndexRange,
			})
		}

		// E105: ranges must start where the previous subsystem's ended
		if sub.Rows.Start != rowOffset {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("subsystems[%d].rows", i),
				Message: fmt.Sprintf("row range must start at %d, got %d", rowOffset, sub.Rows.Start),
				Code:    ErrNonContiguousRange,
			})
		}
		if sub.Cols.Start != colOffset {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("subsystems[%d].cols", i),
				Message: fmt.Sprintf("column range must start at %d, got %d", colOffset, sub.Cols.Start),
				Code:    ErrNonContiguousRange,
			})
		}
		rowOffset = sub.Rows.End
		colOffset = sub.Cols.End
	}

	// Validate couplings
	size := sysdef.SubsystemID(len(sys.Subsystems))
	for i, c := range sys.Couplings {
		// E107: endpoints must exist
		if c.From < 0 || c.From >= size {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("couplings[%d].from", i),
				Message: fmt.Sprintf("unknown subsystem ID %d", c.From),
				Code:    ErrUnknownSubsystemRef,
			})
		}
		if c.To < 0 || c.To >= size {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("couplings[%d].to", i),
				Message: fmt.Sprintf("unknown subsystem ID %d", c.To),
				Code:    ErrUnknownSubsystemRef,
			})
		}

		// E108: self-couplings are implicit (every diagonal block exists)
		if c.From == c.To {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("couplings[%d]", i),
				Message: fmt.Sprintf("subsystem %d coupled to itself, diagonal blocks are implicit", c.From),
				Code:    ErrSelfCoupling,
			})
		}
	}

	// Validate components
	componentKeys := make(map[sysdef.ComponentKey]bool)
	for i, comp := range sys.Components {
		// E109: kind must be recognized
		if !sysdef.ValidComponentKinds[comp.Kind] {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("components[%d].kind", i),
				Message: fmt.Sprintf("invalid component kind %q", comp.Kind),
				Code:    ErrInvalidComponentKind,
			})
		}

		// E107: owning subsystem must exist
		if comp.Subsystem < 0 || comp.Subsystem >= size {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("components[%d].subsystem", i),
				Message: fmt.Sprintf("unknown subsystem ID %d", comp.Subsystem),
				Code:    ErrUnknownSubsystemRef,
			})
		}

		// E106: duplicate (kind, name) reference
		key := sysdef.ComponentKey{Kind: comp.Kind, Name: comp.Name}
		if componentKeys[key] {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("components[%d].name", i),
				Message: fmt.Sprintf("duplicate component reference %s/%s", comp.Kind, comp.Name),
				Code:    ErrDuplicateName,
			})
		}
		componentKeys[key] = true
	}

	return errs
}

// validateConfig validates engine tuning parameters.
// Field names match the CUE tuning surface so errors point at the line the
// operator actually wrote.
func validateConfig(cfg *engine.Config) []ValidationError {
	var errs []ValidationError

	// E110: tolerances must be non-negative
	if cfg.StructureRelTol < 0 {
		errs = append(errs, ValidationError{
			Field:   "structure_rel_tol",
			Message: fmt.Sprintf("must be non-negative, got %g", cfg.StructureRelTol),
			Code:    ErrNegativeTolerance,
		})
	}
	if cfg.StructureAbsNNZ < 0 {
		errs = append(errs, ValidationError{
			Field:   "structure_abs_nnz",
			Message: fmt.Sprintf("must be non-negative, got %d", cfg.StructureAbsNNZ),
			Code:    ErrNegativeTolerance,
		})
	}

	// E111: fraction must be a usable threshold
	if cfg.FullUpdateFraction <= 0 || cfg.FullUpdateFraction > 1 {
		errs = append(errs, ValidationError{
			Field:   "full_update_fraction",
			Message: fmt.Sprintf("must be in (0, 1], got %g", cfg.FullUpdateFraction),
			Code:    ErrFractionOutOfRange,
		})
	}

	// E112: budgets must be positive
	if cfg.MaxTimeWithoutUpdate <= 0 {
		errs = append(errs, ValidationError{
			Field:   "max_time_without_update",
			Message: fmt.Sprintf("must be positive, got %g", cfg.MaxTimeWithoutUpdate),
			Code:    ErrNonPositiveBudget,
		})
	}
	if cfg.GoodStreakLength < 1 {
		errs = append(errs, ValidationError{
			Field:   "good_streak_length",
			Message: fmt.Sprintf("must be at least 1, got %d", cfg.GoodStreakLength),
			Code:    ErrNonPositiveBudget,
		})
	}
	if cfg.ReuseStreakLength < 1 {
		errs = append(errs, ValidationError{
			Field:   "reuse_streak_length",
			Message: fmt.Sprintf("must be at least 1, got %d", cfg.ReuseStreakLength),
			Code:    ErrNonPositiveBudget,
		})
	}
	if cfg.MaxStepsWithoutFactorization < 1 {
		errs = append(errs, ValidationError{
			Field:   "max_steps_without_factorization",
			Message: fmt.Sprintf("must be at least 1, got %d", cfg.MaxStepsWithoutFactorization),
			Code:    ErrNonPositiveBudget,
		})
	}

	// E113: zero depth would make every local change invisible
	if cfg.PropagationDepth == 0 {
		errs = append(errs, ValidationError{
			Field:   "propagation_depth",
			Message: "must be positive for hop-bounded or negative for full closure, got 0",
			Code:    ErrZeroPropagationDepth,
		})
	}

	// E114: rates and limits must be non-negative
	if cfg.PoorConvergenceRate < 0 {
		errs = append(errs, ValidationError{
			Field:   "poor_convergence_rate",
			Message: fmt.Sprintf("must be non-negative, got %g", cfg.PoorConvergenceRate),
			Code:    ErrNegativeLimit,
		})
	}
	if cfg.ParallelThreshold < 0 {
		errs = append(errs, ValidationError{
			Field:   "parallel_threshold",
			Message: fmt.Sprintf("must be non-negative, got %d", cfg.ParallelThreshold),
			Code:    ErrNegativeLimit,
		})
	}
	if cfg.MaxWorkers < 0 {
		errs = append(errs, ValidationError{
			Field:   "max_workers",
			Message: fmt.Sprintf("must be non-negative, got %d", cfg.MaxWorkers),
			Code:    ErrNegativeLimit,
		})
	}

	return errs
}
