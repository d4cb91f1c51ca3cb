package sysdef

// Version constants for the system definition schema and the engine.
const (
	// SchemaVersion is the system definition schema version.
	SchemaVersion = "1"

	// EngineVersion is the Jacquard engine version.
	EngineVersion = "0.1.0"
)
