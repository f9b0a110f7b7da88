package scan

import (
	"github.com/mercurydb/mercury/internal/pattern"
	"github.com/mercurydb/mercury/internal/sparql/filter"
)

// earliestApplicablePattern computes the first join level (index into
// tripleIdxs) after which every variable a filter references is bound, so
// the filter can gate rows mid-join instead of after the full product.
// Returns -1 when the filter cannot be pushed: it contains EXISTS/NOT
// EXISTS (which depends on the whole solution), references a variable no
// triple pattern binds (e.g. one bound only inside an OPTIONAL), or its
// text does not parse (left for FilterScan to surface the error).
func earliestApplicablePattern(ctx *Context, buf *pattern.Buffer, filterIdx int, tripleIdxs []int) int {
	spec := buf.At(filterIdx).Filter()
	src := ctx.Query.Source[spec.Start : spec.Start+spec.Len]
	expr, err := filter.Parse(src)
	if err != nil || filter.ContainsExists(expr) {
		return -1
	}
	need := filter.Vars(expr)
	if len(tripleIdxs) == 0 {
		return -1
	}
	if len(need) == 0 {
		return 0
	}
	bound := map[string]bool{}
	for lvl, tIdx := range tripleIdxs {
		tf := buf.At(tIdx).Triple()
		for _, term := range [3]pattern.Term{tf.Subject, tf.Predicate, tf.Object} {
			if term.Type == pattern.TermVariable {
				bound[ctx.termVarName(term)] = true
			}
		}
		all := true
		for _, v := range need {
			if !bound[v] {
				all = false
				break
			}
		}
		if all {
			return lvl
		}
	}
	return -1
}
