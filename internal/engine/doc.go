// Package engine implements selective Jacobian maintenance for a
// Newton-type DAE solver.
//
// After every discrete mode change the engine decides whether the global
// sparse Jacobian must be fully recomputed, partially recomputed, or reused
// unchanged, and performs the partial recomputation and merge when
// applicable. The physical equations, the time-stepping integrator, and the
// sparse factorization itself are external collaborators.
//
// ARCHITECTURE:
//
// Mark, Propagate, Decide, Execute:
// 1. Mode-change notifications mark subsystems in the ChangeTracker
// 2. Marks propagate across the static DependencyGraph (never under-mark)
// 3. UpdateDecider picks FULL, PARTIAL, or NONE from the change fraction,
//    elapsed simulation time, and convergence history
// 4. BlockJacobian recomputes dirty blocks and merges values into the
//    shared matrix; the StructureChangeDetector then reports whether the
//    downstream factorization may keep its symbolic analysis
//
// The evaluation path is synchronous: one Jacobian evaluation runs to
// completion before the Newton iteration proceeds. Dirty-block
// recomputation may fan out across workers because each block writes only
// its own scratch values; the merge into the shared matrix is strictly
// serial.
//
// CRITICAL PATTERNS:
//
// Soundness over speed:
// A marked change is never silently dropped. Propagation covers at minimum
// the one-hop neighborhood of every marked subsystem; blocks outside the
// propagated set keep their previous values bit for bit.
//
// Static structure:
// The dependency graph and the block partition are built once from the
// topology and never mutated. A connectivity change is out of scope for
// partial updates and must force a full rebuild instead.
//
// Deterministic decisions:
// Every decision is a pure function of its inputs. There is no retry logic
// in this package; retries, backoff, and step-size control belong to the
// outer integrator.
package engine
