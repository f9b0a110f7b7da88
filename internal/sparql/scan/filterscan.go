package scan

import "github.com/mercurydb/mercury/internal/pattern"

// FilterScan re-evaluates a set of verbatim FILTER expression spans
// against each solution an inner Scanner produces, advancing past any row
// whose expressions are not all true. Filter text is parsed fresh per
// evaluation rather than compiled once into the pattern buffer.
type FilterScan struct {
	ctx    *Context
	inner  Scanner
	filter *filterEvaluator
	specs  []pattern.FilterFields
}

// NewFilterScan wraps inner with the filter expressions at the given
// Filter slot indices of ctx.Buf (all must hold for a row to pass).
func NewFilterScan(ctx *Context, inner Scanner, filterSlotIdxs []int) *FilterScan {
	specs := make([]pattern.FilterFields, len(filterSlotIdxs))
	for i, idx := range filterSlotIdxs {
		specs[i] = ctx.Buf.At(idx).Filter()
	}
	return &FilterScan{ctx: ctx, inner: inner, specs: specs, filter: newFilterEvaluator(ctx)}
}

func (f *FilterScan) Next() (bool, error) {
	for {
		ok, err := f.inner.Next()
		if err != nil || !ok {
			return ok, err
		}
		pass, err := f.filter.evalAll(f.specs)
		if err != nil {
			return false, err
		}
		if pass {
			return true, nil
		}
	}
}

func (f *FilterScan) Close() error { return f.inner.Close() }
