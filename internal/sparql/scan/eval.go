package scan

import (
	"github.com/mercurydb/mercury/internal/pattern"
	"github.com/mercurydb/mercury/internal/sparql/filter"
)

// filterEvaluator pairs a filter.Evaluator with the Context-backed
// Environment it runs against, reused across every row FilterScan checks.
type filterEvaluator struct {
	ctx *Context
	ev  *filter.Evaluator
}

func newFilterEvaluator(ctx *Context) *filterEvaluator {
	return &filterEvaluator{ctx: ctx, ev: filter.NewEvaluator(&environment{ctx: ctx})}
}

// evalAll reports whether every filter span evaluates true for the
// current row.
func (fe *filterEvaluator) evalAll(specs []pattern.FilterFields) (bool, error) {
	for _, spec := range specs {
		src := fe.ctx.Query.Source[spec.Start : spec.Start+spec.Len]
		ok, err := fe.ev.Eval(src)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}
