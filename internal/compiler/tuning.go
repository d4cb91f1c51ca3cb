package compiler

import (
	"cuelang.org/go/cue"

	"github.com/roach88/jacquard/internal/engine"
)

// tuningFields is the set of recognized tuning keys. Anything else in the
// tuning struct is a typo, and a silently ignored typo here means a solver
// running with defaults the operator believes were overridden.
var tuningFields = map[string]bool{
	"structure_rel_tol":               true,
	"structure_abs_nnz":               true,
	"full_update_fraction":            true,
	"max_time_without_update":         true,
	"good_streak_length":              true,
	"reuse_streak_length":             true,
	"max_steps_without_factorization": true,
	"poor_convergence_rate":           true,
	"propagation_depth":               true,
	"enable_reuse":                    true,
	"parallel_threshold":              true,
	"max_workers":                     true,
}

// CompileTuning parses a CUE tuning struct into an engine configuration.
// Fields not present keep their defaults; unknown fields are compile errors.
//
// The CUE value should be the tuning struct itself, e.g.:
//
//	v := ctx.CompileString(`tuning: { propagation_depth: 2 }`)
//	cfg, err := CompileTuning(v.LookupPath(cue.ParsePath("tuning")))
//
// CompileTuning only parses; range checks happen in Validate and again when
// the engine is constructed.
func CompileTuning(v cue.Value) (engine.Config, error) {
	cfg := engine.DefaultConfig()

	if !v.Exists() {
		return cfg, nil
	}
	if err := v.Err(); err != nil {
		return cfg, formatCUEError(err)
	}

	iter, err := v.Fields()
	if err != nil {
		return cfg, formatCUEError(err)
	}
	for iter.Next() {
		name := iter.Selector().String()
		if !tuningFields[name] {
			return cfg, &CompileError{
				Field:   name,
				Message: "unknown tuning field",
				Pos:     iter.Value().Pos(),
			}
		}
	}

	if err := applyFloat(v, "structure_rel_tol", &cfg.StructureRelTol); err != nil {
		return cfg, err
	}
	if err := applyInt(v, "structure_abs_nnz", &cfg.StructureAbsNNZ); err != nil {
		return cfg, err
	}
	if err := applyFloat(v, "full_update_fraction", &cfg.FullUpdateFraction); err != nil {
		return cfg, err
	}
	if err := applyFloat(v, "max_time_without_update", &cfg.MaxTimeWithoutUpdate); err != nil {
		return cfg, err
	}
	if err := applyInt(v, "good_streak_length", &cfg.GoodStreakLength); err != nil {
		return cfg, err
	}
	if err := applyInt(v, "reuse_streak_length", &cfg.ReuseStreakLength); err != nil {
		return cfg, err
	}
	if err := applyInt(v, "max_steps_without_factorization", &cfg.MaxStepsWithoutFactorization); err != nil {
		return cfg, err
	}
	if err := applyFloat(v, "poor_convergence_rate", &cfg.PoorConvergenceRate); err != nil {
		return cfg, err
	}
	if err := applyInt(v, "propagation_depth", &cfg.PropagationDepth); err != nil {
		return cfg, err
	}
	if err := applyBool(v, "enable_reuse", &cfg.EnableReuse); err != nil {
		return cfg, err
	}
	if err := applyInt(v, "parallel_threshold", &cfg.ParallelThreshold); err != nil {
		return cfg, err
	}
	if err := applyInt(v, "max_workers", &cfg.MaxWorkers); err != nil {
		return cfg, err
	}

	return cfg, nil
}

func applyFloat(v cue.Value, name string, dst *float64) error {
	fv := v.LookupPath(cue.ParsePath(name))
	if !fv.Exists() {
		return nil
	}
	f, err := fv.Float64()
	if err != nil {
		return formatCUEError(err)
	}
	*dst = f
	return nil
}

func applyInt(v cue.Value, name string, dst *int) error {
	fv := v.LookupPath(cue.ParsePath(name))
	if !fv.Exists() {
		return nil
	}
	n, err := fv.Int64()
	if err != nil {
		return formatCUEError(err)
	}
	*dst = int(n)
	return nil
}

func applyBool(v cue.Value, name string, dst *bool) error {
	fv := v.LookupPath(cue.ParsePath(name))
	if !fv.Exists() {
		return nil
	}
	b, err := fv.Bool()
	if err != nil {
		return formatCUEError(err)
	}
	*dst = b
	return nil
}
