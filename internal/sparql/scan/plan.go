package scan

import (
	"github.com/mercurydb/mercury/internal/atom"
	"github.com/mercurydb/mercury/internal/pattern"
)

// joinScan nested-loop joins two Scanners: for each outer row, the inner
// scanner is rebuilt fresh and driven to exhaustion, so join constraints
// pushed down via Context.boundAtomID see the outer row's bindings
// (mirrors MultiPatternScan's backtracking shape for a single pair of
// heterogeneous stages, e.g. a VALUES block joined against a BGP).
type joinScan struct {
	outer      Scanner
	buildInner func() (Scanner, error)
	inner      Scanner
	started    bool
}

func newJoinScan(outer Scanner, buildInner func() (Scanner, error)) *joinScan {
	return &joinScan{outer: outer, buildInner: buildInner}
}

func (j *joinScan) Next() (bool, error) {
	for {
		if j.inner != nil {
			ok, err := j.inner.Next()
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
			if err := j.inner.Close(); err != nil {
				return false, err
			}
			j.inner = nil
		}
		ok, err := j.outer.Next()
		if err != nil || !ok {
			return ok, err
		}
		inner, err := j.buildInner()
		if err != nil {
			return false, err
		}
		j.inner = inner
	}
}

func (j *joinScan) Close() error {
	var firstErr error
	if j.inner != nil {
		firstErr = j.inner.Close()
	}
	if err := j.outer.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// BuildPlan assembles a Scanner for one group body: Triple slots join as a
// BGP (property-path slots through PropertyPathScan), VALUES joins against
// it, nested OPTIONAL/MINUS/GRAPH/SERVICE/UNION groups join or alternate
// onto the result in source order (see buildPlanRange), BIND slots rewrite
// rows, and FILTER slots gate rows mid-join where pushdown allows and the
// final output otherwise.
func BuildPlan(ctx *Context, buf *pattern.Buffer, graphID atom.ID) (Scanner, error) {
	start := 0
	if ctx.Query != nil && buf == ctx.Query.Body {
		start = int(ctx.Query.WhereStart)
	}
	return buildPlanRange(ctx, buf, start, buf.Len(), graphID)
}

// BuildPlanRange assembles a Scanner for the slot range [start, end) of
// buf, for callers that execute only part of a buffer (e.g. an update's
// WHERE clause sharing its buffer with the operation's templates).
func BuildPlanRange(ctx *Context, buf *pattern.Buffer, start, end int, graphID atom.ID) (Scanner, error) {
	return buildPlanRange(ctx, buf, start, end, graphID)
}

// BuildDatasetPlan evaluates the body once per dataset graph and unions
// the results, so FROM clauses behave as a merged default graph. An empty
// graph list falls back to the real default graph.
func BuildDatasetPlan(ctx *Context, buf *pattern.Buffer, graphIDs []atom.ID) (Scanner, error) {
	if len(graphIDs) == 0 {
		return BuildPlan(ctx, buf, 0)
	}
	plan, err := BuildPlan(ctx, buf, graphIDs[0])
	if err != nil {
		return nil, err
	}
	for _, gid := range graphIDs[1:] {
		right, err := BuildPlan(ctx, buf, gid)
		if err != nil {
			plan.Close()
			return nil, err
		}
		plan = &UnionScan{left: plan, right: right}
	}
	return plan, nil
}
