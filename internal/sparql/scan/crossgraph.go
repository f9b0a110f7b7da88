package scan

import (
	"github.com/mercurydb/mercury/internal/atom"
	"github.com/mercurydb/mercury/internal/pattern"
)

// CrossGraphMultiPatternScan evaluates a GRAPH ?g group whose graph
// variable has no binding yet: the group's body runs once per named graph
// in the store, with ?g bound to that graph's IRI for the body's duration.
// Graph enumeration is deferred to the first Next call so the scan sees
// the store as of execution, not plan construction.
type CrossGraphMultiPatternScan struct {
	ctx     *Context
	buf     *pattern.Buffer
	varName string

	childStart, childEnd int

	started bool
	graphs  []atom.ID
	pos     int
	inner   Scanner
}

func newCrossGraphScan(ctx *Context, buf *pattern.Buffer, varName string, childStart, childEnd int) *CrossGraphMultiPatternScan {
	return &CrossGraphMultiPatternScan{ctx: ctx, buf: buf, varName: varName, childStart: childStart, childEnd: childEnd}
}

func (c *CrossGraphMultiPatternScan) Next() (bool, error) {
	for {
		if c.inner != nil {
			ok, err := c.inner.Next()
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
			if err := c.inner.Close(); err != nil {
				return false, err
			}
			c.inner = nil
		}
		if !c.started {
			gs, err := c.ctx.Store.NamedGraphs()
			if err != nil {
				return false, err
			}
			c.graphs = gs
			c.started = true
		}
		if c.pos >= len(c.graphs) {
			return false, nil
		}
		gid := c.graphs[c.pos]
		c.pos++
		c.ctx.bindVar(c.varName, gid)
		inner, err := buildPlanRange(c.ctx, c.buf, c.childStart, c.childEnd, gid)
		if err != nil {
			return false, err
		}
		c.inner = inner
	}
}

func (c *CrossGraphMultiPatternScan) Close() error {
	if c.inner != nil {
		inner := c.inner
		c.inner = nil
		return inner.Close()
	}
	return nil
}
