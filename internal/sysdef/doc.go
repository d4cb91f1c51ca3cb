// Package sysdef provides the static system description types for jacquard.
//
// This package contains type definitions only. All other internal packages
// import sysdef; sysdef imports nothing internal. This ensures the system
// description remains the foundational layer with no circular dependencies.
//
// Key design constraints:
//   - Subsystem ids are dense integers in [0, N) assigned at compile time
//   - Index ranges are half-open [Start, End) over the global Jacobian space
//   - Everything here is immutable after construction; the engine treats a
//     System as read-only for the lifetime of a run
package sysdef
