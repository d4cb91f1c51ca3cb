package engine

import (
	"sort"

	"github.com/roach88/jacquard/internal/sysdef"
)

// DependencyGraph is the static adjacency over subsystems: for each
// subsystem, the set of subsystems whose Jacobian contribution it affects.
// Built once from the topology and read-only afterward, so it may be
// shared freely across parallel block recomputation.
//
// Adjacency is stored as one arena slice indexed through per-node offsets
// rather than a map of sets, keeping propagation walks cache-friendly.
// Neighbor lists are sorted and duplicate-free.
//
// Couplings are symmetrized unconditionally: Newton coupling is
// bidirectional, so if A affects B then B affects A, whichever direction
// the topology declared.
type DependencyGraph struct {
	n     int
	start []int32 // len n+1; node i's neighbors are adj[start[i]:start[i+1]]
	adj   []sysdef.SubsystemID
}

// NewDependencyGraph builds the adjacency from the system's couplings.
// A coupling naming an id outside [0, N) is a fatal construction error.
func NewDependencyGraph(sys *sysdef.System) (*DependencyGraph, error) {
	n := sys.Size()
	if n == 0 {
		return nil, newConsistencyError(ErrCodeDanglingID, "system has no subsystems")
	}

	type edge struct{ from, to sysdef.SubsystemID }
	edges := make([]edge, 0, 2*len(sys.Couplings))
	for _, c := range sys.Couplings {
		if c.From < 0 || int(c.From) >= n {
			return nil, newConsistencyError(ErrCodeDanglingID, "coupling references unknown subsystem id %d (have %d subsystems)", c.From, n)
		}
		if c.To < 0 || int(c.To) >= n {
			return nil, newConsistencyError(ErrCodeDanglingID, "coupling references unknown subsystem id %d (have %d subsystems)", c.To, n)
		}
		if c.From == c.To {
			continue
		}
		// Both directions, regardless of how the topology was declared.
		edges = append(edges, edge{c.From, c.To}, edge{c.To, c.From})
	}

	// Counting pass, then prefix sums, then a fill pass into the arena.
	counts := make([]int32, n)
	for _, e := range edges {
		counts[e.from]++
	}
	start := make([]int32, n+1)
	for i := 0; i < n; i++ {
		start[i+1] = start[i] + counts[i]
	}
	adj := make([]sysdef.SubsystemID, len(edges))
	next := make([]int32, n)
	copy(next, start[:n])
	for _, e := range edges {
		adj[next[e.from]] = e.to
		next[e.from]++
	}

	// Sort each neighbor segment and drop duplicates in place. The
	// compaction write cursor never overtakes the segment read cursor.
	compact := adj[:0]
	newStart := make([]int32, n+1)
	for i := 0; i < n; i++ {
		seg := adj[start[i]:start[i+1]]
		sort.Slice(seg, func(a, b int) bool { return seg[a] < seg[b] })
		newStart[i] = int32(len(compact))
		for j, v := range seg {
			if j > 0 && v == seg[j-1] {
				continue
			}
			compact = append(compact, v)
		}
	}
	newStart[n] = int32(len(compact))

	return &DependencyGraph{n: n, start: newStart, adj: compact}, nil
}

// Size returns the number of subsystems.
func (g *DependencyGraph) Size() int {
	return g.n
}

// Dependents returns the subsystems affected by a change in id, sorted
// ascending. The returned slice aliases internal storage; callers must
// not modify it.
func (g *DependencyGraph) Dependents(id sysdef.SubsystemID) []sysdef.SubsystemID {
	return g.adj[g.start[id]:g.start[id+1]]
}

// Degree returns the number of direct dependents of id.
func (g *DependencyGraph) Degree(id sysdef.SubsystemID) int {
	return int(g.start[id+1] - g.start[id])
}
