package compiler

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
	"golang.org/x/text/unicode/norm"

	"github.com/roach88/jacquard/internal/sysdef"
)

// CompileSystem parses a CUE value into a system description, using the
// CUE Go API rather than shelling out to the cue binary.
//
// The value passed in should be the system struct itself:
//
//	v := cuecontext.New().CompileString(`system: { name: "two-area", ... }`)
//	sys, err := CompileSystem(v.LookupPath(cue.ParsePath("system")))
//
// Subsystems receive dense IDs in declaration order; their row/column ranges
// tile the global index space cumulatively. All names are NFC-normalized so
// component lookups from the event path cannot miss on a different Unicode
// encoding of the same name.
func CompileSystem(v cue.Value) (*sysdef.System, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	sys := &sysdef.System{}

	// Parse name (required)
	nameVal := v.LookupPath(cue.ParsePath("name"))
	if !nameVal.Exists() {
		return nil, &CompileError{
			Field:   "name",
			Message: "system name is required",
			Pos:     v.Pos(),
		}
	}
	name, err := nameVal.String()
	if err != nil {
		return nil, formatCUEError(err)
	}
	sys.Name = norm.NFC.String(name)

	// Parse subsystems (required, at least one)
	sys.Subsystems, err = parseSubsystems(v)
	if err != nil {
		return nil, err
	}
	if len(sys.Subsystems) == 0 {
		return nil, &CompileError{
			Field:   "subsystems",
			Message: "at least one subsystem is required",
			Pos:     v.Pos(),
		}
	}

	// Parse couplings (optional)
	sys.Couplings, err = parseCouplings(v, sys)
	if err != nil {
		return nil, err
	}

	// Parse components (optional)
	sys.Components, err = parseComponents(v, sys)
	if err != nil {
		return nil, err
	}

	return sys, nil
}

// parseSubsystems extracts the subsystem list and assigns dense IDs and
// cumulative index ranges in declaration order.
func parseSubsystems(v cue.Value) ([]sysdef.Subsystem, error) {
	var subsystems []sysdef.Subsystem

	subsVal := v.LookupPath(cue.ParsePath("subsystems"))
	if !subsVal.Exists() {
		return subsystems, nil
	}

	iter, err := subsVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	offset := 0
	for iter.Next() {
		item := iter.Value()
		idx := len(subsystems)

		nameVal := item.LookupPath(cue.ParsePath("name"))
		if !nameVal.Exists() {
			return nil, &CompileError{
				Field:   fmt.Sprintf("subsystems[%d].name", idx),
				Message: "subsystem name is required",
				Pos:     item.Pos(),
			}
		}
		name, err := nameVal.String()
		if err != nil {
			return nil, formatCUEError(err)
		}

		rowsVal := item.LookupPath(cue.ParsePath("rows"))
		if !rowsVal.Exists() {
			return nil, &CompileError{
				Field:   fmt.Sprintf("subsystems[%d].rows", idx),
				Message: "subsystem row count is required",
				Pos:     item.Pos(),
			}
		}
		rows, err := rowsVal.Int64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		if rows < 1 {
			return nil, &CompileError{
				Field:   fmt.Sprintf("subsystems[%d].rows", idx),
				Message: fmt.Sprintf("row count must be positive, got %d", rows),
				Pos:     rowsVal.Pos(),
			}
		}

		span := sysdef.IndexRange{Start: offset, End: offset + int(rows)}
		offset += int(rows)

		subsystems = append(subsystems, sysdef.Subsystem{
			ID:   sysdef.SubsystemID(idx),
			Name: norm.NFC.String(name),
			Rows: span,
			Cols: span,
		})
	}

	return subsystems, nil
}

// parseCouplings extracts the coupling list, resolving subsystem names to IDs.
func parseCouplings(v cue.Value, sys *sysdef.System) ([]sysdef.Coupling, error) {
	var couplings []sysdef.Coupling

	coupVal := v.LookupPath(cue.ParsePath("couplings"))
	if !coupVal.Exists() {
		return couplings, nil
	}

	iter, err := coupVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	for iter.Next() {
		item := iter.Value()
		idx := len(couplings)

		from, err := resolveSubsystemRef(item, sys, fmt.Sprintf("couplings[%d].from", idx), "from")
		if err != nil {
			return nil, err
		}
		to, err := resolveSubsystemRef(item, sys, fmt.Sprintf("couplings[%d].to", idx), "to")
		if err != nil {
			return nil, err
		}

		couplings = append(couplings, sysdef.Coupling{From: from, To: to})
	}

	return couplings, nil
}

// parseComponents extracts the component table, resolving subsystem names.
func parseComponents(v cue.Value, sys *sysdef.System) ([]sysdef.Component, error) {
	var components []sysdef.Component

	compVal := v.LookupPath(cue.ParsePath("components"))
	if !compVal.Exists() {
		return components, nil
	}

	iter, err := compVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	for iter.Next() {
		item := iter.Value()
		idx := len(components)

		kindVal := item.LookupPath(cue.ParsePath("kind"))
		if !kindVal.Exists() {
			return nil, &CompileError{
				Field:   fmt.Sprintf("components[%d].kind", idx),
				Message: "component kind is required",
				Pos:     item.Pos(),
			}
		}
		kind, err := kindVal.String()
		if err != nil {
			return nil, formatCUEError(err)
		}

		nameVal := item.LookupPath(cue.ParsePath("name"))
		if !nameVal.Exists() {
			return nil, &CompileError{
				Field:   fmt.Sprintf("components[%d].name", idx),
				Message: "component name is required",
				Pos:     item.Pos(),
			}
		}
		name, err := nameVal.String()
		if err != nil {
			return nil, formatCUEError(err)
		}

		sub, err := resolveSubsystemRef(item, sys, fmt.Sprintf("components[%d].subsystem", idx), "subsystem")
		if err != nil {
			return nil, err
		}

		components = append(components, sysdef.Component{
			Kind:      sysdef.ComponentKind(kind),
			Name:      norm.NFC.String(name),
			Subsystem: sub,
		})
	}

	return components, nil
}

// resolveSubsystemRef reads a subsystem-name field and resolves it to the
// subsystem's dense ID. An unresolvable reference is a compile error: the
// engine's soundness guarantee starts with a closed component table.
func resolveSubsystemRef(item cue.Value, sys *sysdef.System, fieldPath, key string) (sysdef.SubsystemID, error) {
	refVal := item.LookupPath(cue.ParsePath(key))
	if !refVal.Exists() {
		return 0, &CompileError{
			Field:   fieldPath,
			Message: fmt.Sprintf("%s subsystem reference is required", key),
			Pos:     item.Pos(),
		}
	}
	ref, err := refVal.String()
	if err != nil {
		return 0, formatCUEError(err)
	}

	sub, ok := sys.SubsystemByName(norm.NFC.String(ref))
	if !ok {
		return 0, &CompileError{
			Field:   fieldPath,
			Message: fmt.Sprintf("unknown subsystem %q", ref),
			Pos:     refVal.Pos(),
		}
	}
	return sub.ID, nil
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError surfaces the first positioned error in a CUE error list
// as a CompileError so callers can report file:line:col.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}
	list := errors.Errors(err)
	if len(list) == 0 {
		return err
	}
	first := list[0]
	if positions := errors.Positions(first); len(positions) > 0 {
		return &CompileError{Field: "cue", Message: first.Error(), Pos: positions[0]}
	}
	return err
}
