package testutil

import (
	"fmt"

	"github.com/roach88/jacquard/internal/sparse"
	"github.com/roach88/jacquard/internal/sysdef"
)

// ChainSystem builds n subsystems of rowsPer rows each, coupled in a line:
// subsystem i to subsystem i+1. Each subsystem carries one bus component
// named "bus<i>".
//
// A chain keeps one-hop neighborhoods small and predictable, which makes
// propagation assertions exact.
func ChainSystem(n, rowsPer int) *sysdef.System {
	sys := &sysdef.System{Name: fmt.Sprintf("chain-%d", n)}
	for i := 0; i < n; i++ {
		id := sysdef.SubsystemID(i)
		rows := sysdef.IndexRange{Start: i * rowsPer, End: (i + 1) * rowsPer}
		sys.Subsystems = append(sys.Subsystems, sysdef.Subsystem{
			ID:   id,
			Name: fmt.Sprintf("s%d", i),
			Rows: rows,
			Cols: rows,
		})
		sys.Components = append(sys.Components, sysdef.Component{
			Kind:      sysdef.KindBus,
			Name:      fmt.Sprintf("bus%d", i),
			Subsystem: id,
		})
		if i > 0 {
			sys.Couplings = append(sys.Couplings, sysdef.Coupling{
				From: sysdef.SubsystemID(i - 1),
				To:   id,
			})
		}
	}
	return sys
}

// StarSystem builds subsystem 0 as a hub coupled to every other
// subsystem. One hop from the hub reaches everything; one hop from a
// spoke reaches only the hub.
func StarSystem(n, rowsPer int) *sysdef.System {
	sys := &sysdef.System{Name: fmt.Sprintf("star-%d", n)}
	for i := 0; i < n; i++ {
		id := sysdef.SubsystemID(i)
		rows := sysdef.IndexRange{Start: i * rowsPer, End: (i + 1) * rowsPer}
		sys.Subsystems = append(sys.Subsystems, sysdef.Subsystem{
			ID:   id,
			Name: fmt.Sprintf("s%d", i),
			Rows: rows,
			Cols: rows,
		})
		sys.Components = append(sys.Components, sysdef.Component{
			Kind:      sysdef.KindBus,
			Name:      fmt.Sprintf("bus%d", i),
			Subsystem: id,
		})
		if i > 0 {
			sys.Couplings = append(sys.Couplings, sysdef.Coupling{From: 0, To: id})
		}
	}
	return sys
}

// DiagonalEvaluators builds one scripted evaluator per subsystem whose
// pattern is the diagonal of its own rows, valued by RampValue.
func DiagonalEvaluators(sys *sysdef.System) map[sysdef.SubsystemID]*ScriptedEvaluator {
	evals := make(map[sysdef.SubsystemID]*ScriptedEvaluator, sys.Size())
	for _, sub := range sys.Subsystems {
		var pattern []sparse.Coord
		for r := sub.Rows.Start; r < sub.Rows.End; r++ {
			pattern = append(pattern, sparse.Coord{Row: r, Col: r})
		}
		evals[sub.ID] = NewScriptedEvaluator(pattern, nil)
	}
	return evals
}

// CoupledEvaluators builds diagonal evaluators extended with one
// off-diagonal entry per coupling: the first owned row against the first
// column of the coupled subsystem, in both directions. This exercises
// merge scatter across block column boundaries.
func CoupledEvaluators(sys *sysdef.System) map[sysdef.SubsystemID]*ScriptedEvaluator {
	patterns := make(map[sysdef.SubsystemID][]sparse.Coord, sys.Size())
	for _, sub := range sys.Subsystems {
		for r := sub.Rows.Start; r < sub.Rows.End; r++ {
			patterns[sub.ID] = append(patterns[sub.ID], sparse.Coord{Row: r, Col: r})
		}
	}
	for _, c := range sys.Couplings {
		from := sys.Subsystems[c.From]
		to := sys.Subsystems[c.To]
		patterns[from.ID] = append(patterns[from.ID], sparse.Coord{
			Row: from.Rows.Start,
			Col: to.Rows.Start,
		})
		patterns[to.ID] = append(patterns[to.ID], sparse.Coord{
			Row: to.Rows.Start,
			Col: from.Rows.Start,
		})
	}

	evals := make(map[sysdef.SubsystemID]*ScriptedEvaluator, sys.Size())
	for id, pattern := range patterns {
		evals[id] = NewScriptedEvaluator(pattern, nil)
	}
	return evals
}
