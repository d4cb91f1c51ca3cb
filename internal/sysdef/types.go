package sysdef

import "fmt"

// SubsystemID is a dense subsystem index in [0, N).
//
// IDs are assigned by the compiler in declaration order and double as array
// indices throughout the engine, so they must stay dense and zero-based.
type SubsystemID int32

// IndexRange is a half-open [Start, End) slice of the global Jacobian
// row/column index space.
type IndexRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Len returns the number of indices covered by the range.
func (r IndexRange) Len() int {
	return r.End - r.Start
}

// Contains reports whether i falls inside the range.
func (r IndexRange) Contains(i int) bool {
	return i >= r.Start && i < r.End
}

// Subsystem is one physical submodel: a generator, bus, line, or aggregate
// that owns a contiguous slice of the global equation/unknown space.
type Subsystem struct {
	ID   SubsystemID `json:"id"`
	Name string      `json:"name"`
	Rows IndexRange  `json:"rows"` // equations owned by this subsystem
	Cols IndexRange  `json:"cols"` // unknowns owned by this subsystem
}

// Coupling declares a direct physical coupling between two subsystems.
//
// Couplings are stored directed as written but Jacobian coupling under Newton
// iteration is bidirectional, so consumers must treat them symmetrically.
type Coupling struct {
	From SubsystemID `json:"from"`
	To   SubsystemID `json:"to"`
}

// ComponentKind categorizes raw component references arriving from the outer
// solver's event path.
type ComponentKind string

const (
	KindBus       ComponentKind = "bus"
	KindBranch    ComponentKind = "branch"
	KindGenerator ComponentKind = "generator"
	KindLoad      ComponentKind = "load"
	KindShunt     ComponentKind = "shunt"
	KindSwitch    ComponentKind = "switch"
)

// ValidComponentKinds defines the allowed component kinds.
var ValidComponentKinds = map[ComponentKind]bool{
	KindBus:       true,
	KindBranch:    true,
	KindGenerator: true,
	KindLoad:      true,
	KindShunt:     true,
	KindSwitch:    true,
}

// Component maps a raw (kind, name) component reference to the subsystem
// whose Jacobian contribution it belongs to.
type Component struct {
	Kind      ComponentKind `json:"kind"`
	Name      string        `json:"name"`
	Subsystem SubsystemID   `json:"subsystem"`
}

// System is the complete static description of a simulated system: the
// subsystem partition, the coupling topology, and the component table.
type System struct {
	Name       string      `json:"name"`
	Subsystems []Subsystem `json:"subsystems"`
	Couplings  []Coupling  `json:"couplings"`
	Components []Component `json:"components"`
}

// Size returns the number of subsystems.
func (s *System) Size() int {
	return len(s.Subsystems)
}

// Dim returns the dimension of the global Jacobian, i.e. the total number of
// rows owned by all subsystems.
func (s *System) Dim() int {
	n := 0
	for _, sub := range s.Subsystems {
		n += sub.Rows.Len()
	}
	return n
}

// SubsystemByName returns the subsystem with the given name.
func (s *System) SubsystemByName(name string) (Subsystem, bool) {
	for _, sub := range s.Subsystems {
		if sub.Name == name {
			return sub, true
		}
	}
	return Subsystem{}, false
}

// ComponentKey is the lookup key for the component table.
type ComponentKey struct {
	Kind ComponentKind
	Name string
}

// ComponentIndex builds a lookup table from (kind, name) to subsystem id.
// Returns an error on duplicate component references.
func (s *System) ComponentIndex() (map[ComponentKey]SubsystemID, error) {
	idx := make(map[ComponentKey]SubsystemID, len(s.Components))
	for _, c := range s.Components {
		key := ComponentKey{Kind: c.Kind, Name: c.Name}
		if _, dup := idx[key]; dup {
			return nil, fmt.Errorf("duplicate component reference %s/%s", c.Kind, c.Name)
		}
		idx[key] = c.Subsystem
	}
	return idx, nil
}
