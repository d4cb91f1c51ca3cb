// Package sparse provides the compressed sparse row matrix shared with the
// external direct solver, the tolerance-based structure change detector, and
// weighted error norms.
//
// The matrix layout is the classic CSR triple (RowPtr, ColIdx, Values). The
// pattern is fixed at construction: partial Jacobian updates overwrite values
// in place and never reallocate or edit the index arrays.
package sparse

import (
	"fmt"
	"sort"
)

// Coord is one structurally nonzero position in global index space.
type Coord struct {
	Row int
	Col int
}

// Matrix is a square sparse matrix in compressed sparse row form.
//
// The index arrays are owned by the downstream factorization once handed
// over; callers mutate Values only.
type Matrix struct {
	Dim    int
	RowPtr []int
	ColIdx []int
	Values []float64
}

// NewMatrix builds a CSR matrix of dimension dim from the given pattern
// coordinates. Coordinates may arrive in any order; they are sorted
// row-major. Out-of-range or duplicate coordinates are construction errors.
func NewMatrix(dim int, coords []Coord) (*Matrix, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("sparse: dimension must be positive, got %d", dim)
	}
	sorted := make([]Coord, len(coords))
	copy(sorted, coords)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Row != sorted[j].Row {
			return sorted[i].Row < sorted[j].Row
		}
		return sorted[i].Col < sorted[j].Col
	})

	m := &Matrix{
		Dim:    dim,
		RowPtr: make([]int, dim+1),
		ColIdx: make([]int, len(sorted)),
		Values: make([]float64, len(sorted)),
	}
	for i, c := range sorted {
		if c.Row < 0 || c.Row >= dim || c.Col < 0 || c.Col >= dim {
			return nil, fmt.Errorf("sparse: coordinate (%d,%d) outside dimension %d", c.Row, c.Col, dim)
		}
		if i > 0 && sorted[i-1] == c {
			return nil, fmt.Errorf("sparse: duplicate coordinate (%d,%d) in pattern", c.Row, c.Col)
		}
		m.ColIdx[i] = c.Col
		m.RowPtr[c.Row+1]++
	}
	for r := 0; r < dim; r++ {
		m.RowPtr[r+1] += m.RowPtr[r]
	}
	return m, nil
}

// NNZ returns the number of structurally nonzero entries.
func (m *Matrix) NNZ() int {
	return len(m.ColIdx)
}

// ValueIndex returns the position in Values holding entry (row, col).
// The second return is false when the coordinate is not part of the pattern.
func (m *Matrix) ValueIndex(row, col int) (int, bool) {
	if row < 0 || row >= m.Dim {
		return 0, false
	}
	lo, hi := m.RowPtr[row], m.RowPtr[row+1]
	seg := m.ColIdx[lo:hi]
	k := sort.SearchInts(seg, col)
	if k < len(seg) && seg[k] == col {
		return lo + k, true
	}
	return 0, false
}

// Row returns the column indices and values of one row as subslice views.
func (m *Matrix) Row(row int) (cols []int, vals []float64) {
	lo, hi := m.RowPtr[row], m.RowPtr[row+1]
	return m.ColIdx[lo:hi], m.Values[lo:hi]
}
