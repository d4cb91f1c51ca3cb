package engine

import (
	"context"
	"fmt"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/jacquard/internal/sparse"
	"github.com/roach88/jacquard/internal/sysdef"
)

// Block is one subsystem's slice of the global Jacobian: a fixed sparsity
// pattern, a scratch value buffer written by the evaluator, and
// precomputed scatter indices into the shared matrix storage.
type Block struct {
	Subsystem sysdef.SubsystemID
	Name      string
	Rows      sysdef.IndexRange

	pattern []sparse.Coord
	values  []float64
	scatter []int // global value index per pattern entry
	dirty   bool
}

// NNZ returns the number of entries the block contributes.
func (b *Block) NNZ() int {
	return len(b.pattern)
}

// BlockJacobian is the static partition of the global matrix into
// per-subsystem blocks. The partition, the per-block patterns, and the
// global sparsity layout are fixed at construction; only numeric values
// and dirty flags change afterward.
//
// Recomputation touches dirty blocks only. Each block writes its own
// value buffer, so recomputation may fan out across workers; the merge
// into the shared matrix is strictly serial.
type BlockJacobian struct {
	blocks []Block          // indexed by subsystem id
	evals  []BlockEvaluator // same indexing
	global *sparse.Matrix

	parallelThreshold int
	maxWorkers        int
}

// NewBlockJacobian builds the block set from the system partition and the
// registered evaluators. Construction validates everything the runtime
// path relies on: dense ids, gap- and overlap-free row coverage, an
// evaluator per subsystem, and patterns confined to their blocks.
func NewBlockJacobian(sys *sysdef.System, evals map[sysdef.SubsystemID]BlockEvaluator, cfg *Config) (*BlockJacobian, error) {
	n := sys.Size()
	if n == 0 {
		return nil, newConsistencyError(ErrCodeDanglingID, "system has no subsystems")
	}
	dim := sys.Dim()

	for i, sub := range sys.Subsystems {
		if sub.ID != sysdef.SubsystemID(i) {
			return nil, newConsistencyError(ErrCodeDanglingID, "subsystem %s has id %d, want dense id %d", sub.Name, sub.ID, i)
		}
	}

	// Row ranges must exactly partition [0, dim).
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		return sys.Subsystems[order[a]].Rows.Start < sys.Subsystems[order[b]].Rows.Start
	})
	cursor := 0
	for k, i := range order {
		r := sys.Subsystems[i].Rows
		if r.Len() <= 0 {
			return nil, newConsistencyError(ErrCodeCoverageGap, "subsystem %s owns empty row range [%d, %d)", sys.Subsystems[i].Name, r.Start, r.End)
		}
		if r.Start > cursor {
			return nil, NewCoverageError(cursor, r.Start)
		}
		if r.Start < cursor {
			prev := sys.Subsystems[order[k-1]].Name
			return nil, NewOverlapError(prev, sys.Subsystems[i].Name, r.Start)
		}
		cursor = r.End
	}
	if cursor < dim {
		return nil, NewCoverageError(cursor, dim)
	}

	blocks := make([]Block, n)
	flat := make([]BlockEvaluator, n)
	var coords []sparse.Coord
	for i, sub := range sys.Subsystems {
		ev, ok := evals[sub.ID]
		if !ok || ev == nil {
			return nil, &ConsistencyError{
				Code:      ErrCodeMissingEvaluator,
				Message:   "no derivative evaluator registered",
				Subsystem: sub.Name,
			}
		}
		pattern := ev.Pattern()
		for _, c := range pattern {
			if !sub.Rows.Contains(c.Row) {
				return nil, &ConsistencyError{
					Code:      ErrCodePatternOutsideBlock,
					Message:   fmt.Sprintf("pattern row %d outside owned rows [%d, %d)", c.Row, sub.Rows.Start, sub.Rows.End),
					Subsystem: sub.Name,
				}
			}
			if c.Col < 0 || c.Col >= dim {
				return nil, &ConsistencyError{
					Code:      ErrCodePatternOutsideBlock,
					Message:   fmt.Sprintf("pattern column %d outside global space [0, %d)", c.Col, dim),
					Subsystem: sub.Name,
				}
			}
		}
		own := make([]sparse.Coord, len(pattern))
		copy(own, pattern)
		blocks[i] = Block{
			Subsystem: sub.ID,
			Name:      sub.Name,
			Rows:      sub.Rows,
			pattern:   own,
			values:    make([]float64, len(own)),
		}
		flat[i] = ev
		coords = append(coords, own...)
	}

	// Row ranges are disjoint, so blocks never collide on a coordinate;
	// a duplicate inside one block's declared pattern still fails here.
	global, err := sparse.NewMatrix(dim, coords)
	if err != nil {
		return nil, fmt.Errorf("build global sparsity pattern: %w", err)
	}

	for i := range blocks {
		blk := &blocks[i]
		blk.scatter = make([]int, len(blk.pattern))
		for j, c := range blk.pattern {
			idx, ok := global.ValueIndex(c.Row, c.Col)
			if !ok {
				return nil, fmt.Errorf("pattern entry (%d, %d) of subsystem %s missing from global layout", c.Row, c.Col, blk.Name)
			}
			blk.scatter[j] = idx
		}
	}

	return &BlockJacobian{
		blocks:            blocks,
		evals:             flat,
		global:            global,
		parallelThreshold: cfg.ParallelThreshold,
		maxWorkers:        cfg.MaxWorkers,
	}, nil
}

// Global returns the shared matrix the blocks merge into. The same
// instance lives for the whole run; callers must not reshape it.
func (b *BlockJacobian) Global() *sparse.Matrix {
	return b.global
}

// BlockCount returns the number of blocks in the partition.
func (b *BlockJacobian) BlockCount() int {
	return len(b.blocks)
}

// MarkAllDirty flags every block for recomputation.
func (b *BlockJacobian) MarkAllDirty() {
	for i := range b.blocks {
		b.blocks[i].dirty = true
	}
}

// MarkDirtyBlocks flags the blocks of the given subsystems.
func (b *BlockJacobian) MarkDirtyBlocks(ids []sysdef.SubsystemID) error {
	for _, id := range ids {
		if id < 0 || int(id) >= len(b.blocks) {
			return newConsistencyError(ErrCodeDanglingID, "dirty mark references unknown subsystem id %d (have %d blocks)", id, len(b.blocks))
		}
		b.blocks[id].dirty = true
	}
	return nil
}

// IsDirty reports whether one block is flagged for recomputation.
func (b *BlockJacobian) IsDirty(id sysdef.SubsystemID) bool {
	return b.blocks[id].dirty
}

// DirtyBlockCount returns the number of blocks currently flagged.
func (b *BlockJacobian) DirtyBlockCount() int {
	n := 0
	for i := range b.blocks {
		if b.blocks[i].dirty {
			n++
		}
	}
	return n
}

// UpdateDirtyBlocks refreshes the value buffers of all dirty blocks by
// invoking their evaluators; clean blocks keep their previous values.
// Recomputation fans out across workers once the dirty count reaches the
// configured threshold. Each worker writes only its own block's buffer.
//
// On error the evaluation is abandoned mid-flight: no values reach the
// shared matrix and the dirty flags stay set, so the outer integrator can
// retry the step.
func (b *BlockJacobian) UpdateDirtyBlocks(ctx context.Context, t, cj float64) error {
	dirty := b.DirtyBlockCount()
	if b.parallelThreshold <= 0 || dirty < b.parallelThreshold {
		return b.updateSerial(t, cj)
	}
	return b.updateParallel(ctx, t, cj)
}

func (b *BlockJacobian) updateSerial(t, cj float64) error {
	for i := range b.blocks {
		blk := &b.blocks[i]
		if !blk.dirty {
			continue
		}
		if err := b.evals[i].ComputeDerivatives(t, cj, blk.values); err != nil {
			return fmt.Errorf("compute block %s: %w", blk.Name, err)
		}
	}
	return nil
}

func (b *BlockJacobian) updateParallel(ctx context.Context, t, cj float64) error {
	workers := b.maxWorkers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range b.blocks {
		blk := &b.blocks[i]
		if !blk.dirty {
			continue
		}
		if gctx.Err() != nil {
			break
		}
		ev := b.evals[i]
		g.Go(func() error {
			if err := ev.ComputeDerivatives(t, cj, blk.values); err != nil {
				return fmt.Errorf("compute block %s: %w", blk.Name, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	// A cancellation that raced the launch loop may have skipped blocks
	// without any evaluator failing.
	return ctx.Err()
}

// MergeIntoGlobal copies the dirty blocks' values into the shared matrix
// and clears their flags. Value-only and fixed-size: the sparsity layout
// is never touched. Strictly serial; returns the number of blocks merged.
func (b *BlockJacobian) MergeIntoGlobal() int {
	merged := 0
	for i := range b.blocks {
		blk := &b.blocks[i]
		if !blk.dirty {
			continue
		}
		for j, idx := range blk.scatter {
			b.global.Values[idx] = blk.values[j]
		}
		blk.dirty = false
		merged++
	}
	return merged
}
