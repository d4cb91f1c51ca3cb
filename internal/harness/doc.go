// Package harness executes scenario-driven conformance tests against the
// Jacobian maintenance engine.
//
// A scenario describes a small synthetic system, an optional tuning
// override, and an ordered list of solver steps: mode-change
// notifications, direct subsystem marks, Jacobian evaluations,
// convergence records, and factorization records. The harness builds a
// fresh engine per run, drives it through the steps, collects a trace of
// everything observable, and checks the scenario's expectations against
// evaluation results and the final profiler snapshot.
//
// # Scenario Format
//
// Scenarios are YAML files with the following structure:
//
//	name: breaker_trip
//	description: "A tripped breaker drives a partial update"
//	system:
//	  name: four-bus-chain
//	  subsystems:
//	    - { name: north, rows: 2 }
//	    - { name: south, rows: 2 }
//	  couplings:
//	    - { from: north, to: south }
//	  components:
//	    - { kind: switch, name: brk-7, subsystem: south }
//	  evaluators: diagonal
//	tuning:
//	  full_update_fraction: 0.75
//	steps:
//	  - eval: { time: 0.0, cj: 1.0, expect: { strategy: full } }
//	  - mode_change: { kind: algebraic, time: 0.5, components: ["switch:brk-7"] }
//	  - eval: { time: 0.5, cj: 1.0, expect: { strategy: partial, dirty_blocks: 2 } }
//	expect:
//	  full_updates: 1
//	  partial_updates: 1
//
// Each step sets exactly one step kind: mode_change, mark, force_full,
// eval, converge, factorize, or check_factorization. Component references
// are written "kind:name" with the same kinds the system definition
// accepts.
//
// # Deterministic Traces
//
// Scenario evaluators are scripted: fixed sparsity patterns and pure value
// functions of time and coefficient. Together with a fixed step list this
// makes every trace byte-for-byte reproducible, so traces can be compared
// against golden files. Wall-clock timings are recorded in the profiler
// but never appear in traces.
//
// # Usage
//
// Load and run a scenario:
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/breaker_trip.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(ctx, scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if !result.Pass {
//	    for _, msg := range result.Errors {
//	        log.Println(msg)
//	    }
//	}
//
// RunWithStore additionally persists the run, its evaluations, and its
// mode events to a statstore database.
package harness
