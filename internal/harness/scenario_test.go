package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/jacquard/internal/engine"
	"github.com/roach88/jacquard/internal/sysdef"
)

// writeScenario writes a scenario YAML into a temp dir and returns its path.
func writeScenario(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const minimalScenario = `name: minimal
description: "smallest valid scenario"
system:
  name: solo
  subsystems:
    - { name: only, rows: 1 }
steps:
  - eval:
      time: 0.0
      cj: 1.0
      expect: { strategy: full }
`

func TestLoadScenarioMinimal(t *testing.T) {
	scenario, err := LoadScenario(writeScenario(t, minimalScenario))
	require.NoError(t, err)

	assert.Equal(t, "minimal", scenario.Name)
	assert.Equal(t, "solo", scenario.System.Name)
	require.Len(t, scenario.Steps, 1)
	require.NotNil(t, scenario.Steps[0].Eval)
	assert.Equal(t, "full", scenario.Steps[0].Eval.Expect.Strategy)
	assert.Nil(t, scenario.Tuning)
}

func TestLoadScenarioFromTestdata(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/breaker_trip.yaml")
	require.NoError(t, err)

	assert.Equal(t, "breaker_trip", scenario.Name)
	assert.Len(t, scenario.System.Subsystems, 4)
	assert.Len(t, scenario.System.Couplings, 3)
	assert.Len(t, scenario.Steps, 6)

	require.NotNil(t, scenario.Tuning)
	require.NotNil(t, scenario.Tuning.FullUpdateFraction)
	assert.InDelta(t, 0.75, *scenario.Tuning.FullUpdateFraction, 1e-12)

	require.NotNil(t, scenario.Expect)
	require.NotNil(t, scenario.Expect.FullUpdates)
	assert.Equal(t, int64(1), *scenario.Expect.FullUpdates)
}

func TestLoadScenarioMissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read scenario file")
}

func TestLoadScenarioUnknownField(t *testing.T) {
	_, err := LoadScenario(writeScenario(t, minimalScenario+"flow_token: abc\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestLoadScenarioRejects(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name: "missing name",
			yaml: `description: "d"
system:
  name: solo
  subsystems:
    - { name: only, rows: 1 }
steps:
  - eval: { time: 0.0, cj: 1.0, expect: { strategy: full } }
`,
			wantErr: "name is required",
		},
		{
			name: "missing description",
			yaml: `name: n
system:
  name: solo
  subsystems:
    - { name: only, rows: 1 }
steps:
  - eval: { time: 0.0, cj: 1.0, expect: { strategy: full } }
`,
			wantErr: "description is required",
		},
		{
			name: "no subsystems",
			yaml: `name: n
description: "d"
system:
  name: solo
  subsystems: []
steps:
  - eval: { time: 0.0, cj: 1.0, expect: { strategy: full } }
`,
			wantErr: "system.subsystems is required",
		},
		{
			name: "duplicate subsystem names",
			yaml: `name: n
description: "d"
system:
  name: solo
  subsystems:
    - { name: twin, rows: 1 }
    - { name: twin, rows: 1 }
steps:
  - eval: { time: 0.0, cj: 1.0, expect: { strategy: full } }
`,
			wantErr: `duplicate name "twin"`,
		},
		{
			name: "zero rows",
			yaml: `name: n
description: "d"
system:
  name: solo
  subsystems:
    - { name: only, rows: 0 }
steps:
  - eval: { time: 0.0, cj: 1.0, expect: { strategy: full } }
`,
			wantErr: "rows must be positive",
		},
		{
			name: "coupling unknown subsystem",
			yaml: `name: n
description: "d"
system:
  name: solo
  subsystems:
    - { name: only, rows: 1 }
  couplings:
    - { from: only, to: nowhere }
steps:
  - eval: { time: 0.0, cj: 1.0, expect: { strategy: full } }
`,
			wantErr: `unknown subsystem "nowhere"`,
		},
		{
			name: "self coupling",
			yaml: `name: n
description: "d"
system:
  name: solo
  subsystems:
    - { name: only, rows: 1 }
  couplings:
    - { from: only, to: only }
steps:
  - eval: { time: 0.0, cj: 1.0, expect: { strategy: full } }
`,
			wantErr: "coupled to itself",
		},
		{
			name: "invalid component kind",
			yaml: `name: n
description: "d"
system:
  name: solo
  subsystems:
    - { name: only, rows: 1 }
  components:
    - { kind: transformer, name: t1, subsystem: only }
steps:
  - eval: { time: 0.0, cj: 1.0, expect: { strategy: full } }
`,
			wantErr: `invalid kind "transformer"`,
		},
		{
			name: "duplicate component",
			yaml: `name: n
description: "d"
system:
  name: solo
  subsystems:
    - { name: only, rows: 1 }
  components:
    - { kind: switch, name: s1, subsystem: only }
    - { kind: switch, name: s1, subsystem: only }
steps:
  - eval: { time: 0.0, cj: 1.0, expect: { strategy: full } }
`,
			wantErr: "duplicate component switch:s1",
		},
		{
			name: "unknown evaluator family",
			yaml: `name: n
description: "d"
system:
  name: solo
  subsystems:
    - { name: only, rows: 1 }
  evaluators: dense
steps:
  - eval: { time: 0.0, cj: 1.0, expect: { strategy: full } }
`,
			wantErr: `unknown family "dense"`,
		},
		{
			name: "no steps",
			yaml: `name: n
description: "d"
system:
  name: solo
  subsystems:
    - { name: only, rows: 1 }
steps: []
`,
			wantErr: "steps list is required",
		},
		{
			name: "empty step",
			yaml: `name: n
description: "d"
system:
  name: solo
  subsystems:
    - { name: only, rows: 1 }
steps:
  - {}
`,
			wantErr: "exactly one step kind",
		},
		{
			name: "two step kinds",
			yaml: `name: n
description: "d"
system:
  name: solo
  subsystems:
    - { name: only, rows: 1 }
steps:
  - eval: { time: 0.0, cj: 1.0, expect: { strategy: full } }
    force_full: {}
`,
			wantErr: "exactly one step kind",
		},
		{
			name: "unknown mode kind",
			yaml: `name: n
description: "d"
system:
  name: solo
  subsystems:
    - { name: only, rows: 1 }
  components:
    - { kind: switch, name: s1, subsystem: only }
steps:
  - mode_change: { kind: discrete, time: 0.0, components: ["switch:s1"] }
  - eval: { time: 0.0, cj: 1.0, expect: { strategy: full } }
`,
			wantErr: `unknown mode change kind "discrete"`,
		},
		{
			name: "malformed component reference",
			yaml: `name: n
description: "d"
system:
  name: solo
  subsystems:
    - { name: only, rows: 1 }
  components:
    - { kind: switch, name: s1, subsystem: only }
steps:
  - mode_change: { kind: algebraic, time: 0.0, components: ["s1"] }
  - eval: { time: 0.0, cj: 1.0, expect: { strategy: full } }
`,
			wantErr: "not of the form kind:name",
		},
		{
			name: "undeclared mode component",
			yaml: `name: n
description: "d"
system:
  name: solo
  subsystems:
    - { name: only, rows: 1 }
steps:
  - mode_change: { kind: algebraic, time: 0.0, components: ["switch:ghost"] }
  - eval: { time: 0.0, cj: 1.0, expect: { strategy: full } }
`,
			wantErr: `component "switch:ghost" not declared`,
		},
		{
			name: "mark unknown subsystem",
			yaml: `name: n
description: "d"
system:
  name: solo
  subsystems:
    - { name: only, rows: 1 }
steps:
  - mark: { subsystem: elsewhere }
  - eval: { time: 0.0, cj: 1.0, expect: { strategy: full } }
`,
			wantErr: `unknown subsystem "elsewhere"`,
		},
		{
			name: "unknown expected strategy",
			yaml: `name: n
description: "d"
system:
  name: solo
  subsystems:
    - { name: only, rows: 1 }
steps:
  - eval: { time: 0.0, cj: 1.0, expect: { strategy: cached } }
`,
			wantErr: `unknown strategy "cached"`,
		},
		{
			name: "converge without outcome",
			yaml: `name: n
description: "d"
system:
  name: solo
  subsystems:
    - { name: only, rows: 1 }
steps:
  - converge: { iterations: 2 }
  - eval: { time: 0.0, cj: 1.0, expect: { strategy: full } }
`,
			wantErr: "either converged or a residual",
		},
		{
			name: "converge weights without residual",
			yaml: `name: n
description: "d"
system:
  name: solo
  subsystems:
    - { name: only, rows: 1 }
steps:
  - converge: { converged: true, iterations: 2, weights: [1.0] }
  - eval: { time: 0.0, cj: 1.0, expect: { strategy: full } }
`,
			wantErr: "weights and tol require a residual",
		},
		{
			name: "converge weights length mismatch",
			yaml: `name: n
description: "d"
system:
  name: solo
  subsystems:
    - { name: only, rows: 1 }
steps:
  - converge: { residual: [0.1, 0.2], weights: [1.0], tol: 0.01, iterations: 2 }
  - eval: { time: 0.0, cj: 1.0, expect: { strategy: full } }
`,
			wantErr: "weights length 1 does not match residual length 2",
		},
		{
			name: "converge residual without tol",
			yaml: `name: n
description: "d"
system:
  name: solo
  subsystems:
    - { name: only, rows: 1 }
steps:
  - converge: { residual: [0.1], iterations: 2 }
  - eval: { time: 0.0, cj: 1.0, expect: { strategy: full } }
`,
			wantErr: "tol must be positive",
		},
		{
			name: "converge zero iterations",
			yaml: `name: n
description: "d"
system:
  name: solo
  subsystems:
    - { name: only, rows: 1 }
steps:
  - converge: { converged: true, iterations: 0 }
  - eval: { time: 0.0, cj: 1.0, expect: { strategy: full } }
`,
			wantErr: "iterations must be at least 1",
		},
		{
			name: "factorize unknown kind",
			yaml: `name: n
description: "d"
system:
  name: solo
  subsystems:
    - { name: only, rows: 1 }
steps:
  - factorize: { kind: incomplete }
  - eval: { time: 0.0, cj: 1.0, expect: { strategy: full } }
`,
			wantErr: `kind must be "symbolic" or "numerical"`,
		},
		{
			name: "factorize bad duration",
			yaml: `name: n
description: "d"
system:
  name: solo
  subsystems:
    - { name: only, rows: 1 }
steps:
  - factorize: { kind: symbolic, duration: fast }
  - eval: { time: 0.0, cj: 1.0, expect: { strategy: full } }
`,
			wantErr: `invalid duration "fast"`,
		},
		{
			name: "no expectations",
			yaml: `name: n
description: "d"
system:
  name: solo
  subsystems:
    - { name: only, rows: 1 }
steps:
  - eval: { time: 0.0, cj: 1.0 }
`,
			wantErr: "asserts nothing",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadScenario(writeScenario(t, tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestTuningSpecApply(t *testing.T) {
	frac := 0.9
	reuse := true
	depth := 3

	spec := &TuningSpec{
		FullUpdateFraction: &frac,
		EnableReuse:        &reuse,
		PropagationDepth:   &depth,
	}
	cfg := engine.DefaultConfig()
	spec.Apply(&cfg)

	assert.InDelta(t, 0.9, cfg.FullUpdateFraction, 1e-12)
	assert.True(t, cfg.EnableReuse)
	assert.Equal(t, 3, cfg.PropagationDepth)

	// Unset fields keep their defaults.
	def := engine.DefaultConfig()
	assert.Equal(t, def.ReuseStreakLength, cfg.ReuseStreakLength)
	assert.InDelta(t, def.StructureRelTol, cfg.StructureRelTol, 1e-12)
}

func TestSystemSpecBuild(t *testing.T) {
	spec := SystemSpec{
		Name: "three-stage",
		Subsystems: []SubsystemSpec{
			{Name: "a", Rows: 2},
			{Name: "b", Rows: 3},
			{Name: "c", Rows: 4},
		},
		Couplings: []CouplingSpec{
			{From: "a", To: "b"},
			{From: "b", To: "c"},
		},
		Components: []ComponentSpec{
			{Kind: "switch", Name: "s1", Subsystem: "c"},
		},
	}

	sys, err := spec.Build()
	require.NoError(t, err)

	assert.Equal(t, "three-stage", sys.Name)
	require.Len(t, sys.Subsystems, 3)
	assert.Equal(t, sysdef.IndexRange{Start: 0, End: 2}, sys.Subsystems[0].Rows)
	assert.Equal(t, sysdef.IndexRange{Start: 2, End: 5}, sys.Subsystems[1].Rows)
	assert.Equal(t, sysdef.IndexRange{Start: 5, End: 9}, sys.Subsystems[2].Rows)
	assert.Equal(t, sys.Subsystems[1].Rows, sys.Subsystems[1].Cols)
	assert.Equal(t, 9, sys.Dim())

	require.Len(t, sys.Couplings, 2)
	assert.Equal(t, sysdef.Coupling{From: 0, To: 1}, sys.Couplings[0])
	assert.Equal(t, sysdef.Coupling{From: 1, To: 2}, sys.Couplings[1])

	require.Len(t, sys.Components, 1)
	assert.Equal(t, sysdef.KindSwitch, sys.Components[0].Kind)
	assert.Equal(t, sysdef.SubsystemID(2), sys.Components[0].Subsystem)
}

func TestSystemSpecBuildUnknownReference(t *testing.T) {
	spec := SystemSpec{
		Name:       "broken",
		Subsystems: []SubsystemSpec{{Name: "a", Rows: 1}},
		Couplings:  []CouplingSpec{{From: "a", To: "z"}},
	}
	_, err := spec.Build()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown subsystem "z"`)
}

func TestParseComponentRef(t *testing.T) {
	ref, err := parseComponentRef("switch:brk-1")
	require.NoError(t, err)
	assert.Equal(t, engine.ComponentRef{Kind: sysdef.KindSwitch, Name: "brk-1"}, ref)

	// Names may themselves contain colons.
	ref, err = parseComponentRef("bus:feeder:north")
	require.NoError(t, err)
	assert.Equal(t, engine.ComponentRef{Kind: sysdef.KindBus, Name: "feeder:north"}, ref)

	_, err = parseComponentRef("brk-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not of the form kind:name")

	_, err = parseComponentRef("switch:")
	require.Error(t, err)

	_, err = parseComponentRef("transformer:t1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid kind "transformer"`)
}

func TestParseModeKind(t *testing.T) {
	kind, err := parseModeKind("none")
	require.NoError(t, err)
	assert.Equal(t, engine.ModeNone, kind)

	kind, err = parseModeKind("algebraic")
	require.NoError(t, err)
	assert.Equal(t, engine.ModeAlgebraic, kind)

	kind, err = parseModeKind("algebraic_j_update")
	require.NoError(t, err)
	assert.Equal(t, engine.ModeAlgebraicJUpdate, kind)

	_, err = parseModeKind("restart")
	require.Error(t, err)
}
