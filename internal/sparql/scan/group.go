package scan

import (
	"fmt"

	"github.com/mercurydb/mercury/internal/atom"
	"github.com/mercurydb/mercury/internal/pattern"
)

// OptionalScan left-outer-joins a group onto an outer Scanner: every outer
// row is yielded at least once. If the inner group (rebuilt fresh per outer
// row, so Context.boundAtomID sees the outer row's bindings) produces one
// or more compatible solutions, each is yielded with the inner bindings in
// place; if it produces none, the outer row is yielded unchanged and the
// group's own variables are explicitly unbound so a stale binding from a
// failed inner attempt never leaks past the OPTIONAL.
type OptionalScan struct {
	ctx        *Context
	outer      Scanner
	buildInner func() (Scanner, error)
	localVars  []string

	inner      Scanner
	matchedAny bool
}

func newOptionalScan(ctx *Context, outer Scanner, buildInner func() (Scanner, error), localVars []string) *OptionalScan {
	return &OptionalScan{ctx: ctx, outer: outer, buildInner: buildInner, localVars: localVars}
}

func (o *OptionalScan) Next() (bool, error) {
	for {
		if o.inner != nil {
			ok, err := o.inner.Next()
			if err != nil {
				return false, err
			}
			if ok {
				o.matchedAny = true
				return true, nil
			}
			if err := o.inner.Close(); err != nil {
				return false, err
			}
			o.inner = nil
			if !o.matchedAny {
				for _, v := range o.localVars {
					o.ctx.Table.Unbind(pattern.HashVar(v))
				}
				return true, nil
			}
			continue
		}
		ok, err := o.outer.Next()
		if err != nil || !ok {
			return ok, err
		}
		inner, err := o.buildInner()
		if err != nil {
			return false, err
		}
		o.inner = inner
		o.matchedAny = false
	}
}

func (o *OptionalScan) Close() error {
	var firstErr error
	if o.inner != nil {
		firstErr = o.inner.Close()
	}
	if err := o.outer.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// MinusScan drops every outer row for which the inner group (rebuilt per
// outer row) has at least one solution compatible with the outer row's
// bindings. MINUS is set difference, not
// negation-as-failure over a shared variable.
type MinusScan struct {
	outer      Scanner
	buildInner func() (Scanner, error)
}

func newMinusScan(outer Scanner, buildInner func() (Scanner, error)) *MinusScan {
	return &MinusScan{outer: outer, buildInner: buildInner}
}

func (m *MinusScan) Next() (bool, error) {
	for {
		ok, err := m.outer.Next()
		if err != nil || !ok {
			return ok, err
		}
		inner, err := m.buildInner()
		if err != nil {
			return false, err
		}
		excluded, err := inner.Next()
		if err != nil {
			inner.Close()
			return false, err
		}
		if err := inner.Close(); err != nil {
			return false, err
		}
		if !excluded {
			return true, nil
		}
	}
}

func (m *MinusScan) Close() error { return m.outer.Close() }

// UnionScan yields every solution of left, then every solution of right.
// Each branch is built fresh by the caller so it sees whatever bindings
// the enclosing join has already pushed down.
type UnionScan struct {
	left, right Scanner
	onRight     bool
}

func (u *UnionScan) Next() (bool, error) {
	if !u.onRight {
		ok, err := u.left.Next()
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
		if err := u.left.Close(); err != nil {
			return false, err
		}
		u.onRight = true
	}
	return u.right.Next()
}

func (u *UnionScan) Close() error {
	var firstErr error
	if !u.onRight {
		firstErr = u.left.Close()
	}
	if err := u.right.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// joinGroup records one nested OPTIONAL/MINUS/GRAPH/SERVICE block found
// while walking a slot range, deferred until the range's base BGP is built
// so it can be joined on afterward in source order.
type joinGroup struct {
	kind               pattern.Kind
	childStart, childCount int32
	termType           pattern.TermType
	termStart, termLen int32
}

// collectVarsInRange gathers the variable names a Triple slot range binds,
// shallowly (it does not descend into further nested group headers), for
// OptionalScan's unbind-on-no-match fallback.
func collectVarsInRange(ctx *Context, buf *pattern.Buffer, start, end int32) []string {
	var names []string
	seen := map[string]bool{}
	add := func(t pattern.Term) {
		if t.Type != pattern.TermVariable {
			return
		}
		name := ctx.termVarName(t)
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	for i := start; i < end; i++ {
		switch buf.At(int(i)).Kind() {
		case pattern.KindTriple, pattern.KindMinusTriple:
			tf := buf.At(int(i)).Triple()
			add(tf.Subject)
			add(tf.Predicate)
			add(tf.Object)
		case pattern.KindBind:
			bf := buf.At(int(i)).Bind()
			name := ctx.varNameAt(bf.VarStart, bf.VarLen)
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	return names
}

// buildPlanRange is BuildPlan restricted to the slot range [start, end) of
// buf, used recursively to build the base relation for a nested group.
//
// UNION is encoded unlike the other group headers: the parser appends its
// left branch's body first, then the UnionHeader slot (pointing back at
// that body via ChildStart/ChildCount), then the right branch's body
// immediately after with no length recorded. buildPlanRange resolves this
// by treating the right branch as running to the end of the range being
// built — correct for a UNION as the final element of its enclosing group
// (the common case), but a second top-level UNION following it in the same
// range is not distinguishable from the first one's right branch and is
// not supported.
func buildPlanRange(ctx *Context, buf *pattern.Buffer, start, end int, graphID atom.ID) (Scanner, error) {
	// Detect a top-level UNION first, skipping nested group/VALUES bodies
	// as we walk so a UNION inside e.g. an OPTIONAL block isn't mistaken
	// for one directly in this range (it belongs to that block's own
	// recursive buildPlanRange call instead).
	plainEnd := end
	unionHeaderIdx := -1
	var unionFields pattern.GraphHeaderFields
	for i := start; i < end; i++ {
		slot := buf.At(i)
		switch slot.Kind() {
		case pattern.KindUnionHeader:
			unionHeaderIdx = i
			unionFields = slot.GraphHeader()
		case pattern.KindValuesHeader:
			i += int(slot.ValuesHeader().EntryCount)
		case pattern.KindOptionalHeader, pattern.KindMinusHeader, pattern.KindGraphHeader, pattern.KindServiceHeader:
			i += int(slot.GraphHeader().ChildCount)
		}
	}
	if unionHeaderIdx >= 0 {
		plainEnd = int(unionFields.ChildStart)
	}

	var tripleIdxs, filterIdxs, bindIdxs []int
	var groups []joinGroup
	valuesHeaderIdx := -1

	for i := start; i < plainEnd; i++ {
		slot := buf.At(i)
		switch slot.Kind() {
		case pattern.KindTriple:
			tripleIdxs = append(tripleIdxs, i)
		case pattern.KindFilter:
			filterIdxs = append(filterIdxs, i)
		case pattern.KindBind:
			bindIdxs = append(bindIdxs, i)
		case pattern.KindValuesHeader:
			valuesHeaderIdx = i
			h := slot.ValuesHeader()
			i += int(h.EntryCount)
		case pattern.KindOptionalHeader, pattern.KindMinusHeader, pattern.KindGraphHeader, pattern.KindServiceHeader:
			h := slot.GraphHeader()
			groups = append(groups, joinGroup{
				kind: slot.Kind(), childStart: h.ChildStart, childCount: h.ChildCount,
				termType: h.TermType, termStart: h.TermStart, termLen: h.TermLen,
			})
			i += int(h.ChildCount)
		case pattern.KindExistsHeader, pattern.KindNotExistsHeader:
			return nil, fmt.Errorf("scan: unexpected EXISTS/NOT EXISTS group header at slot %d (the parser encodes EXISTS only inside FILTER expressions)", i)
		}
	}

	bgp := NewMultiPatternScan(ctx, tripleIdxs, graphID)
	var lateFilterIdxs []int
	if len(filterIdxs) > 0 {
		levels := make([][]pattern.FilterFields, len(tripleIdxs))
		pushedAny := false
		for _, idx := range filterIdxs {
			lvl := earliestApplicablePattern(ctx, buf, idx, tripleIdxs)
			if lvl < 0 {
				lateFilterIdxs = append(lateFilterIdxs, idx)
				continue
			}
			levels[lvl] = append(levels[lvl], buf.At(idx).Filter())
			pushedAny = true
		}
		if pushedAny {
			bgp.setLevelFilters(levels)
		}
	}
	var plan Scanner = bgp

	if valuesHeaderIdx >= 0 {
		outer := NewValuesScan(ctx, valuesHeaderIdx)
		bgp := plan
		plan = newJoinScan(outer, func() (Scanner, error) { return bgp, nil })
	}

	for _, g := range groups {
		childStart, childEnd := int(g.childStart), int(g.childStart+g.childCount)
		switch g.kind {
		case pattern.KindOptionalHeader:
			localVars := collectVarsInRange(ctx, buf, g.childStart, g.childStart+g.childCount)
			buildInner := func() (Scanner, error) { return buildPlanRange(ctx, buf, childStart, childEnd, graphID) }
			plan = newOptionalScan(ctx, plan, buildInner, localVars)
		case pattern.KindMinusHeader:
			buildInner := func() (Scanner, error) { return buildPlanRange(ctx, buf, childStart, childEnd, graphID) }
			plan = newMinusScan(plan, buildInner)
		case pattern.KindGraphHeader:
			// Resolution is deferred into the per-outer-row closure so a
			// graph variable bound by a sibling pattern (or the enclosing
			// row, for EXISTS) is seen at execution time, not build time.
			gg := g
			buildInner := func() (Scanner, error) {
				childGraph, unboundVar, err := resolveGraphTerm(ctx, gg)
				if err != nil {
					return nil, err
				}
				if unboundVar != "" {
					return newCrossGraphScan(ctx, buf, unboundVar, childStart, childEnd), nil
				}
				return buildPlanRange(ctx, buf, childStart, childEnd, childGraph)
			}
			outer := plan
			plan = newJoinScan(outer, buildInner)
		case pattern.KindServiceHeader:
			headerIdx := childStart - 1 // the header slot always immediately precedes its own child range
			buildInner := func() (Scanner, error) { return NewServicePatternScan(ctx, headerIdx) }
			outer := plan
			plan = newJoinScan(outer, buildInner)
		}
	}

	if unionHeaderIdx >= 0 {
		leftStart, leftEnd := int(unionFields.ChildStart), int(unionFields.ChildStart+unionFields.ChildCount)
		rightStart := unionHeaderIdx + 1
		buildInner := func() (Scanner, error) {
			left, err := buildPlanRange(ctx, buf, leftStart, leftEnd, graphID)
			if err != nil {
				return nil, err
			}
			right, err := buildPlanRange(ctx, buf, rightStart, end, graphID)
			if err != nil {
				left.Close()
				return nil, err
			}
			return &UnionScan{left: left, right: right}, nil
		}
		outer := plan
		plan = newJoinScan(outer, buildInner)
	}

	for _, idx := range bindIdxs {
		plan = NewBindScan(ctx, plan, idx)
	}

	if len(lateFilterIdxs) > 0 {
		plan = NewFilterScan(ctx, plan, lateFilterIdxs)
	}

	return plan, nil
}

// resolveGraphTerm resolves a GRAPH block's graph term to a restricting
// atom ID. A ground IRI/blank-node term resolves directly; a variable term
// resolves through the current binding row (pushed down the same way a
// repeated triple-pattern variable is). An unbound variable returns its
// name so the caller can fall back to enumerating every named graph.
func resolveGraphTerm(ctx *Context, g joinGroup) (id atom.ID, unboundVar string, err error) {
	term := pattern.Term{Type: g.termType, Start: g.termStart, Len: g.termLen}
	if term.Type != pattern.TermVariable {
		id, _, err = ctx.resolveTerm(term)
		return id, "", err
	}
	name := ctx.termVarName(term)
	if id, bound, err := ctx.boundAtomID(name); bound {
		return id, "", err
	}
	return 0, name, nil
}
