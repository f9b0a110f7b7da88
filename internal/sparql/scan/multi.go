package scan

import (
	"github.com/mercurydb/mercury/internal/atom"
	"github.com/mercurydb/mercury/internal/pattern"
)

// MultiPatternScan joins a sequence of Triple slots by nested-loop
// iteration: each pattern after the first sees every variable the
// preceding patterns bound, so shared variables become join constants via
// TriplePatternScan.resolvePosition rather than an unconstrained cross
// product.
type MultiPatternScan struct {
	ctx      *Context
	slotIdxs []int
	graphID  atom.ID

	scans   []Scanner // scans[i] is nil until opened; a plain Triple or a property path
	started bool

	// levelFilters[i] holds the filter spans whose variables are all bound
	// once pattern i has produced a row; they gate the join at that depth
	// so non-matching branches are pruned before deeper patterns run.
	levelFilters [][]pattern.FilterFields
	filter       *filterEvaluator
}

// setLevelFilters installs per-level pushed-down filters computed by the
// planner (see earliestApplicablePattern).
func (m *MultiPatternScan) setLevelFilters(levels [][]pattern.FilterFields) {
	m.levelFilters = levels
	m.filter = newFilterEvaluator(m.ctx)
}

// NewMultiPatternScan builds a joined scan over the given Triple slot
// indices, all evaluated against graphID (0 for the default graph).
func NewMultiPatternScan(ctx *Context, slotIdxs []int, graphID atom.ID) *MultiPatternScan {
	return &MultiPatternScan{
		ctx:      ctx,
		slotIdxs: slotIdxs,
		graphID:  graphID,
		scans:    make([]Scanner, len(slotIdxs)),
	}
}

// newSlotScan dispatches one Triple slot to TriplePatternScan or, when the
// slot carries a property-path operator, PropertyPathScan.
func newSlotScan(ctx *Context, slotIdx int, graphID atom.ID) (Scanner, error) {
	if ctx.Buf.At(slotIdx).Triple().HasPath {
		return NewPropertyPathScan(ctx, slotIdx, graphID)
	}
	return NewTriplePatternScan(ctx, slotIdx, graphID)
}

// Next advances the join, backtracking from the innermost pattern
// outward when a branch is exhausted.
func (m *MultiPatternScan) Next() (bool, error) {
	if len(m.slotIdxs) == 0 {
		if m.started {
			return false, nil
		}
		m.started = true
		return true, nil
	}
	depth := 0
	if m.started {
		depth = len(m.slotIdxs) - 1
	}
	for depth >= 0 {
		if m.scans[depth] == nil {
			sc, err := newSlotScan(m.ctx, m.slotIdxs[depth], m.graphID)
			if err != nil {
				return false, err
			}
			m.scans[depth] = sc
		}
		ok, err := m.scans[depth].Next()
		if err != nil {
			return false, err
		}
		if !ok {
			if err := m.scans[depth].Close(); err != nil {
				return false, err
			}
			m.scans[depth] = nil
			depth--
			continue
		}
		if m.levelFilters != nil && len(m.levelFilters[depth]) > 0 {
			pass, err := m.filter.evalAll(m.levelFilters[depth])
			if err != nil {
				return false, err
			}
			if !pass {
				continue
			}
		}
		if depth == len(m.slotIdxs)-1 {
			m.started = true
			return true, nil
		}
		depth++
	}
	m.started = true
	return false, nil
}

// Close releases every open inner scan.
func (m *MultiPatternScan) Close() error {
	var firstErr error
	for i, sc := range m.scans {
		if sc == nil {
			continue
		}
		if err := sc.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		m.scans[i] = nil
	}
	return firstErr
}
