package sparse

// Tolerances bound the sparsity-pattern jitter treated as numerical noise
// rather than a genuine structure change.
type Tolerances struct {
	// Relative is the NNZ change ratio below which a size difference may be
	// noise (fraction of the previous NNZ).
	Relative float64

	// AbsoluteNNZ is the absolute NNZ difference below which a size
	// difference may be noise.
	AbsoluteNNZ int
}

// DefaultTolerances returns the tolerances tuned against reference cases:
// 1% relative, 10 entries absolute.
func DefaultTolerances() Tolerances {
	return Tolerances{Relative: 0.01, AbsoluteNNZ: 10}
}

// Detector decides whether the downstream factorization must redo its
// symbolic analysis or may keep it and refresh numeric values only.
//
// It keeps two pieces of persistent state: a snapshot of the last confirmed
// sparsity pattern (replaced only when a change is flagged, so jitter keeps
// being measured against the same baseline) and a full copy of the most
// recent numeric values (refreshed on every call, regardless of the flag).
type Detector struct {
	tol Tolerances

	hasPrior bool
	priorNNZ int
	priorCol []int

	values []float64

	lastDiff  int
	lastRatio float64
}

// NewDetector creates a detector with the given tolerances. Tolerance
// validation happens upstream at configuration time.
func NewDetector(tol Tolerances) *Detector {
	return &Detector{tol: tol}
}

// Check compares the matrix pattern against the confirmed snapshot and
// reports whether the structure changed. The matrix values are always copied
// into the detector's persistent buffer; on a confirmed change the snapshot
// is replaced.
//
// Rule: the first call always reports a change. Afterwards, a size
// difference within both tolerances is treated as noise and only the
// overlapping column-index prefix is compared; a size difference exceeding
// either tolerance is a structure change outright.
func (d *Detector) Check(m *Matrix) bool {
	newNNZ := m.NNZ()

	// Values are copied in full no matter what the flag says. Grow the
	// buffer when the pattern grew past its previous capacity.
	if cap(d.values) < newNNZ {
		d.values = make([]float64, newNNZ)
	}
	d.values = d.values[:newNNZ]
	copy(d.values, m.Values)

	changed := d.patternChanged(newNNZ, m.ColIdx)
	if changed {
		if cap(d.priorCol) < newNNZ {
			d.priorCol = make([]int, newNNZ)
		}
		d.priorCol = d.priorCol[:newNNZ]
		copy(d.priorCol, m.ColIdx)
		d.priorNNZ = newNNZ
		d.hasPrior = true
	}
	return changed
}

func (d *Detector) patternChanged(newNNZ int, colIdx []int) bool {
	if !d.hasPrior {
		d.lastDiff = newNNZ
		d.lastRatio = 1.0
		return true
	}

	diff := newNNZ - d.priorNNZ
	if diff < 0 {
		diff = -diff
	}
	ratio := 1.0
	if d.priorNNZ > 0 {
		ratio = float64(diff) / float64(d.priorNNZ)
	}
	d.lastDiff = diff
	d.lastRatio = ratio

	if ratio < d.tol.Relative && diff < d.tol.AbsoluteNNZ {
		// Size jitter within tolerance: a change is real only if the
		// overlapping index prefix disagrees.
		n := newNNZ
		if d.priorNNZ < n {
			n = d.priorNNZ
		}
		for i := 0; i < n; i++ {
			if colIdx[i] != d.priorCol[i] {
				return true
			}
		}
		return false
	}
	return true
}

// LastDelta returns the NNZ difference and change ratio computed by the most
// recent Check, for instrumentation.
func (d *Detector) LastDelta() (nnzDiff int, changeRatio float64) {
	return d.lastDiff, d.lastRatio
}

// Values returns the detector's persistent copy of the most recent matrix
// values. The slice is reused across calls to Check.
func (d *Detector) Values() []float64 {
	return d.values
}

// HasPrior reports whether a confirmed pattern snapshot exists yet.
func (d *Detector) HasPrior() bool {
	return d.hasPrior
}
