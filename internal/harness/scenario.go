package harness

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/jacquard/internal/engine"
	"github.com/roach88/jacquard/internal/sysdef"
)

// Scenario defines one conformance test: a synthetic system, an optional
// tuning override, a step list, and expectations on evaluation results
// and final counters.
type Scenario struct {
	// Name uniquely identifies this scenario. Golden files are named
	// after it.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// RunID is an optional fixed run identifier for persisted runs.
	// If empty, RunWithStore mints a UUIDv7.
	RunID string `yaml:"run_id,omitempty"`

	// System describes the synthetic system the engine is built over.
	System SystemSpec `yaml:"system"`

	// Tuning overrides selected configuration fields. Absent fields
	// keep their defaults.
	Tuning *TuningSpec `yaml:"tuning,omitempty"`

	// Steps is the ordered solver step list. Must be non-empty.
	Steps []Step `yaml:"steps"`

	// Expect checks final profiler counters after all steps ran.
	Expect *FinalExpect `yaml:"expect,omitempty"`
}

// SystemSpec describes the synthetic system a scenario runs against.
// Subsystem index ranges are assigned cumulatively in declaration order,
// so declarations carry only row counts.
type SystemSpec struct {
	// Name is the system name, recorded in traces and persisted runs.
	Name string `yaml:"name"`

	// Subsystems lists the partition in declaration order.
	Subsystems []SubsystemSpec `yaml:"subsystems"`

	// Couplings lists coupled subsystem pairs by name.
	Couplings []CouplingSpec `yaml:"couplings,omitempty"`

	// Components maps component references to their subsystems.
	Components []ComponentSpec `yaml:"components,omitempty"`

	// Evaluators selects the scripted evaluator family: "diagonal"
	// (the default) or "coupled".
	Evaluators string `yaml:"evaluators,omitempty"`
}

// SubsystemSpec declares one subsystem by name and row count.
type SubsystemSpec struct {
	Name string `yaml:"name"`
	Rows int    `yaml:"rows"`
}

// CouplingSpec declares a coupling between two subsystems by name.
type CouplingSpec struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

// ComponentSpec maps one component reference to a subsystem by name.
type ComponentSpec struct {
	Kind      string `yaml:"kind"`
	Name      string `yaml:"name"`
	Subsystem string `yaml:"subsystem"`
}

// Evaluator family names accepted by SystemSpec.Evaluators.
const (
	EvaluatorsDiagonal = "diagonal"
	EvaluatorsCoupled  = "coupled"
)

// TuningSpec overrides engine configuration fields. Nil fields keep the
// default; field names match the CUE tuning block.
type TuningSpec struct {
	StructureRelTol              *float64 `yaml:"structure_rel_tol,omitempty"`
	StructureAbsNNZ              *int     `yaml:"structure_abs_nnz,omitempty"`
	FullUpdateFraction           *float64 `yaml:"full_update_fraction,omitempty"`
	MaxTimeWithoutUpdate         *float64 `yaml:"max_time_without_update,omitempty"`
	GoodStreakLength             *int     `yaml:"good_streak_length,omitempty"`
	ReuseStreakLength            *int     `yaml:"reuse_streak_length,omitempty"`
	MaxStepsWithoutFactorization *int     `yaml:"max_steps_without_factorization,omitempty"`
	PoorConvergenceRate          *float64 `yaml:"poor_convergence_rate,omitempty"`
	PropagationDepth             *int     `yaml:"propagation_depth,omitempty"`
	EnableReuse                  *bool    `yaml:"enable_reuse,omitempty"`
	ParallelThreshold            *int     `yaml:"parallel_threshold,omitempty"`
	MaxWorkers                   *int     `yaml:"max_workers,omitempty"`
}

// Apply overlays the set fields onto cfg.
func (t *TuningSpec) Apply(cfg *engine.Config) {
	if t.StructureRelTol != nil {
		cfg.StructureRelTol = *t.StructureRelTol
	}
	if t.StructureAbsNNZ != nil {
		cfg.StructureAbsNNZ = *t.StructureAbsNNZ
	}
	if t.FullUpdateFraction != nil {
		cfg.FullUpdateFraction = *t.FullUpdateFraction
	}
	if t.MaxTimeWithoutUpdate != nil {
		cfg.MaxTimeWithoutUpdate = *t.MaxTimeWithoutUpdate
	}
	if t.GoodStreakLength != nil {
		cfg.GoodStreakLength = *t.GoodStreakLength
	}
	if t.ReuseStreakLength != nil {
		cfg.ReuseStreakLength = *t.ReuseStreakLength
	}
	if t.MaxStepsWithoutFactorization != nil {
		cfg.MaxStepsWithoutFactorization = *t.MaxStepsWithoutFactorization
	}
	if t.PoorConvergenceRate != nil {
		cfg.PoorConvergenceRate = *t.PoorConvergenceRate
	}
	if t.PropagationDepth != nil {
		cfg.PropagationDepth = *t.PropagationDepth
	}
	if t.EnableReuse != nil {
		cfg.EnableReuse = *t.EnableReuse
	}
	if t.ParallelThreshold != nil {
		cfg.ParallelThreshold = *t.ParallelThreshold
	}
	if t.MaxWorkers != nil {
		cfg.MaxWorkers = *t.MaxWorkers
	}
}

// Step is one solver step. Exactly one of the step kinds must be set.
type Step struct {
	// ModeChange delivers a discrete-event notification.
	ModeChange *ModeChangeStep `yaml:"mode_change,omitempty"`

	// Mark marks one subsystem changed directly, bypassing the
	// component table.
	Mark *MarkStep `yaml:"mark,omitempty"`

	// ForceFull arms the sticky force-full flag.
	ForceFull *ForceFullStep `yaml:"force_full,omitempty"`

	// Eval evaluates the Jacobian.
	Eval *EvalStep `yaml:"eval,omitempty"`

	// Converge records the outcome of the enclosing nonlinear solve.
	Converge *ConvergeStep `yaml:"converge,omitempty"`

	// Factorize records a performed factorization.
	Factorize *FactorizeStep `yaml:"factorize,omitempty"`

	// CheckFactorization queries whether convergence history demands a
	// symbolic refactorization.
	CheckFactorization *CheckFactorizationStep `yaml:"check_factorization,omitempty"`
}

// ModeChangeStep delivers one mode-change notification.
type ModeChangeStep struct {
	// Kind is "none", "algebraic", or "algebraic_j_update".
	Kind string `yaml:"kind"`

	// Components lists affected components as "kind:name" references.
	Components []string `yaml:"components,omitempty"`

	// Time is the simulation time of the event.
	Time float64 `yaml:"time"`
}

// MarkStep marks a subsystem changed by name.
type MarkStep struct {
	Subsystem string `yaml:"subsystem"`

	// Propagate closes the change set over the dependency graph after
	// marking.
	Propagate bool `yaml:"propagate,omitempty"`
}

// ForceFullStep arms the sticky force-full flag. It carries no fields.
type ForceFullStep struct{}

// EvalStep evaluates the Jacobian at one (time, coefficient) point.
type EvalStep struct {
	Time float64 `yaml:"time"`
	CJ   float64 `yaml:"cj"`

	// Expect validates the evaluation result. Nil skips validation.
	Expect *EvalExpect `yaml:"expect,omitempty"`
}

// EvalExpect is a subset match on one evaluation result: only set fields
// are checked.
type EvalExpect struct {
	// Strategy is "full", "partial", or "none".
	Strategy string `yaml:"strategy,omitempty"`

	// DirtyBlocks is the expected number of recomputed blocks.
	DirtyBlocks *int `yaml:"dirty_blocks,omitempty"`

	// StructureChanged is the expected detector verdict.
	StructureChanged *bool `yaml:"structure_changed,omitempty"`
}

// ConvergeStep records one nonlinear solve outcome.
//
// Either the outcome is given directly via converged, or a residual
// vector and tolerance are given and the harness computes the outcome
// from the weighted infinity norm. In the residual form a set converged
// field becomes an expectation on the computed outcome.
type ConvergeStep struct {
	// Residual is the final residual vector of the solve.
	Residual []float64 `yaml:"residual,omitempty"`

	// Weights are the per-entry error weights. Defaults to all ones;
	// if set, must match the residual length.
	Weights []float64 `yaml:"weights,omitempty"`

	// Tol is the convergence tolerance for the weighted norm.
	Tol float64 `yaml:"tol,omitempty"`

	// Iterations is the Newton iteration count of the solve.
	Iterations int `yaml:"iterations"`

	// Converged is the solve outcome (direct form) or the expected
	// outcome (residual form).
	Converged *bool `yaml:"converged,omitempty"`
}

// Factorization kind names accepted by FactorizeStep.
const (
	FactorizeSymbolic  = "symbolic"
	FactorizeNumerical = "numerical"
)

// FactorizeStep records a performed factorization.
type FactorizeStep struct {
	// Kind is "symbolic" or "numerical".
	Kind string `yaml:"kind"`

	// Duration is the recorded wall time, in time.ParseDuration syntax
	// (e.g. "2ms"). Defaults to zero.
	Duration string `yaml:"duration,omitempty"`
}

// CheckFactorizationStep queries the factorization controller.
type CheckFactorizationStep struct {
	// Expect is the expected verdict. Nil records without checking.
	Expect *bool `yaml:"expect,omitempty"`
}

// FinalExpect is a subset match on the final profiler snapshot: only set
// fields are checked.
type FinalExpect struct {
	FullUpdates             *int64           `yaml:"full_updates,omitempty"`
	PartialUpdates          *int64           `yaml:"partial_updates,omitempty"`
	Reuses                  *int64           `yaml:"reuses,omitempty"`
	StructureChecks         *int64           `yaml:"structure_checks,omitempty"`
	StructureChanges        *int64           `yaml:"structure_changes,omitempty"`
	FalsePositivesAvoided   *int64           `yaml:"false_positives_avoided,omitempty"`
	DirtyBlocksUpdated      *int64           `yaml:"dirty_blocks_updated,omitempty"`
	SymbolicFactorizations  *int64           `yaml:"symbolic_factorizations,omitempty"`
	NumericalFactorizations *int64           `yaml:"numerical_factorizations,omitempty"`
	Divergences             *int64           `yaml:"divergences,omitempty"`
	ModeEvents              map[string]int64 `yaml:"mode_events,omitempty"`
}

// LoadScenario reads and parses a scenario YAML file. Returns an error if
// the file is missing, malformed, contains unknown fields (typos), or
// fails semantic validation.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("parse scenario YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario %s: %w", path, err)
	}
	return &scenario, nil
}

// validateScenario checks required fields and cross-references before any
// engine is built, so fixture typos fail at load rather than mid-run.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if err := validateSystemSpec(&s.System); err != nil {
		return err
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	for i := range s.Steps {
		if err := validateStep(i, &s.Steps[i], &s.System); err != nil {
			return err
		}
	}
	if !hasExpectation(s) {
		return fmt.Errorf("scenario asserts nothing: add a step expect or a final expect block")
	}
	return nil
}

func validateSystemSpec(sys *SystemSpec) error {
	if sys.Name == "" {
		return fmt.Errorf("system.name is required")
	}
	if len(sys.Subsystems) == 0 {
		return fmt.Errorf("system.subsystems is required and must be non-empty")
	}

	seen := make(map[string]bool, len(sys.Subsystems))
	for i, sub := range sys.Subsystems {
		if sub.Name == "" {
			return fmt.Errorf("system.subsystems[%d]: name is required", i)
		}
		if seen[sub.Name] {
			return fmt.Errorf("system.subsystems[%d]: duplicate name %q", i, sub.Name)
		}
		seen[sub.Name] = true
		if sub.Rows < 1 {
			return fmt.Errorf("system.subsystems[%d]: rows must be positive, got %d", i, sub.Rows)
		}
	}

	for i, c := range sys.Couplings {
		if !seen[c.From] {
			return fmt.Errorf("system.couplings[%d]: unknown subsystem %q", i, c.From)
		}
		if !seen[c.To] {
			return fmt.Errorf("system.couplings[%d]: unknown subsystem %q", i, c.To)
		}
		if c.From == c.To {
			return fmt.Errorf("system.couplings[%d]: subsystem %q coupled to itself", i, c.From)
		}
	}

	comps := make(map[string]bool, len(sys.Components))
	for i, c := range sys.Components {
		if !sysdef.ValidComponentKinds[sysdef.ComponentKind(c.Kind)] {
			return fmt.Errorf("system.components[%d]: invalid kind %q", i, c.Kind)
		}
		if c.Name == "" {
			return fmt.Errorf("system.components[%d]: name is required", i)
		}
		if !seen[c.Subsystem] {
			return fmt.Errorf("system.components[%d]: unknown subsystem %q", i, c.Subsystem)
		}
		key := c.Kind + ":" + c.Name
		if comps[key] {
			return fmt.Errorf("system.components[%d]: duplicate component %s", i, key)
		}
		comps[key] = true
	}

	switch sys.Evaluators {
	case "", EvaluatorsDiagonal, EvaluatorsCoupled:
	default:
		return fmt.Errorf("system.evaluators: unknown family %q", sys.Evaluators)
	}
	return nil
}

// validateStep checks that exactly one step kind is set and that its
// fields resolve against the system spec.
func validateStep(index int, step *Step, sys *SystemSpec) error {
	kinds := 0
	if step.ModeChange != nil {
		kinds++
	}
	if step.Mark != nil {
		kinds++
	}
	if step.ForceFull != nil {
		kinds++
	}
	if step.Eval != nil {
		kinds++
	}
	if step.Converge != nil {
		kinds++
	}
	if step.Factorize != nil {
		kinds++
	}
	if step.CheckFactorization != nil {
		kinds++
	}
	if kinds != 1 {
		return fmt.Errorf("steps[%d]: exactly one step kind must be set, got %d", index, kinds)
	}

	switch {
	case step.ModeChange != nil:
		st := step.ModeChange
		if _, err := parseModeKind(st.Kind); err != nil {
			return fmt.Errorf("steps[%d].mode_change: %w", index, err)
		}
		declared := make(map[string]bool, len(sys.Components))
		for _, c := range sys.Components {
			declared[c.Kind+":"+c.Name] = true
		}
		for _, ref := range st.Components {
			if _, err := parseComponentRef(ref); err != nil {
				return fmt.Errorf("steps[%d].mode_change: %w", index, err)
			}
			if !declared[ref] {
				return fmt.Errorf("steps[%d].mode_change: component %q not declared in system", index, ref)
			}
		}

	case step.Mark != nil:
		found := false
		for _, sub := range sys.Subsystems {
			if sub.Name == step.Mark.Subsystem {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("steps[%d].mark: unknown subsystem %q", index, step.Mark.Subsystem)
		}

	case step.Eval != nil:
		if e := step.Eval.Expect; e != nil {
			switch e.Strategy {
			case "", "full", "partial", "none":
			default:
				return fmt.Errorf("steps[%d].eval.expect: unknown strategy %q", index, e.Strategy)
			}
			if e.DirtyBlocks != nil && *e.DirtyBlocks < 0 {
				return fmt.Errorf("steps[%d].eval.expect: dirty_blocks must be non-negative", index)
			}
		}

	case step.Converge != nil:
		st := step.Converge
		if st.Iterations < 1 {
			return fmt.Errorf("steps[%d].converge: iterations must be at least 1", index)
		}
		if len(st.Residual) == 0 {
			if st.Converged == nil {
				return fmt.Errorf("steps[%d].converge: either converged or a residual with tol is required", index)
			}
			if len(st.Weights) > 0 || st.Tol != 0 {
				return fmt.Errorf("steps[%d].converge: weights and tol require a residual", index)
			}
		} else {
			if st.Tol <= 0 {
				return fmt.Errorf("steps[%d].converge: tol must be positive with a residual", index)
			}
			if len(st.Weights) > 0 && len(st.Weights) != len(st.Residual) {
				return fmt.Errorf("steps[%d].converge: weights length %d does not match residual length %d",
					index, len(st.Weights), len(st.Residual))
			}
		}

	case step.Factorize != nil:
		st := step.Factorize
		switch st.Kind {
		case FactorizeSymbolic, FactorizeNumerical:
		default:
			return fmt.Errorf("steps[%d].factorize: kind must be %q or %q, got %q",
				index, FactorizeSymbolic, FactorizeNumerical, st.Kind)
		}
		if st.Duration != "" {
			if _, err := time.ParseDuration(st.Duration); err != nil {
				return fmt.Errorf("steps[%d].factorize: invalid duration %q: %w", index, st.Duration, err)
			}
		}
	}
	return nil
}

// hasExpectation reports whether the scenario asserts anything at all. A
// scenario with no expectations passes vacuously, which is always a
// fixture mistake.
func hasExpectation(s *Scenario) bool {
	if s.Expect != nil {
		return true
	}
	for _, step := range s.Steps {
		if step.Eval != nil && step.Eval.Expect != nil {
			return true
		}
		if step.CheckFactorization != nil && step.CheckFactorization.Expect != nil {
			return true
		}
		if step.Converge != nil && len(step.Converge.Residual) > 0 && step.Converge.Converged != nil {
			return true
		}
	}
	return false
}

// parseModeKind maps a YAML kind name to the engine's event kind.
func parseModeKind(kind string) (engine.ModeChangeKind, error) {
	switch kind {
	case "none":
		return engine.ModeNone, nil
	case "algebraic":
		return engine.ModeAlgebraic, nil
	case "algebraic_j_update":
		return engine.ModeAlgebraicJUpdate, nil
	default:
		return 0, fmt.Errorf("unknown mode change kind %q", kind)
	}
}

// parseComponentRef splits a "kind:name" reference.
func parseComponentRef(ref string) (engine.ComponentRef, error) {
	kind, name, ok := strings.Cut(ref, ":")
	if !ok || name == "" {
		return engine.ComponentRef{}, fmt.Errorf("component reference %q is not of the form kind:name", ref)
	}
	k := sysdef.ComponentKind(kind)
	if !sysdef.ValidComponentKinds[k] {
		return engine.ComponentRef{}, fmt.Errorf("component reference %q has invalid kind %q", ref, kind)
	}
	return engine.ComponentRef{Kind: k, Name: name}, nil
}

// Build constructs the system definition: dense IDs in declaration order
// and cumulative index ranges, square blocks.
func (s *SystemSpec) Build() (*sysdef.System, error) {
	sys := &sysdef.System{Name: s.Name}

	byName := make(map[string]sysdef.SubsystemID, len(s.Subsystems))
	offset := 0
	for i, sub := range s.Subsystems {
		id := sysdef.SubsystemID(i)
		span := sysdef.IndexRange{Start: offset, End: offset + sub.Rows}
		offset += sub.Rows
		sys.Subsystems = append(sys.Subsystems, sysdef.Subsystem{
			ID:   id,
			Name: sub.Name,
			Rows: span,
			Cols: span,
		})
		byName[sub.Name] = id
	}

	for i, c := range s.Couplings {
		from, ok := byName[c.From]
		if !ok {
			return nil, fmt.Errorf("couplings[%d]: unknown subsystem %q", i, c.From)
		}
		to, ok := byName[c.To]
		if !ok {
			return nil, fmt.Errorf("couplings[%d]: unknown subsystem %q", i, c.To)
		}
		sys.Couplings = append(sys.Couplings, sysdef.Coupling{From: from, To: to})
	}

	for i, c := range s.Components {
		id, ok := byName[c.Subsystem]
		if !ok {
			return nil, fmt.Errorf("components[%d]: unknown subsystem %q", i, c.Subsystem)
		}
		sys.Components = append(sys.Components, sysdef.Component{
			Kind:      sysdef.ComponentKind(c.Kind),
			Name:      c.Name,
			Subsystem: id,
		})
	}
	return sys, nil
}
