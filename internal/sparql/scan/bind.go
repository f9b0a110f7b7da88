package scan

import "github.com/mercurydb/mercury/internal/pattern"

// BindScan evaluates a BIND expression against each row an inner Scanner
// produces and binds its result to the target variable before yielding
// the row onward (a non-distinct, order
// preserving row-rewrite, never a filter).
type BindScan struct {
	ctx     *Context
	inner   Scanner
	eval    *filterEvaluator
	expr    pattern.BindFields
	varName string
}

// NewBindScan wraps inner with the Bind slot at bindSlotIdx.
func NewBindScan(ctx *Context, inner Scanner, bindSlotIdx int) *BindScan {
	f := ctx.Buf.At(bindSlotIdx).Bind()
	return &BindScan{
		ctx:     ctx,
		inner:   inner,
		eval:    newFilterEvaluator(ctx),
		expr:    f,
		varName: ctx.varNameAt(f.VarStart, f.VarLen),
	}
}

func (b *BindScan) Next() (bool, error) {
	ok, err := b.inner.Next()
	if err != nil || !ok {
		return ok, err
	}
	src := b.ctx.Query.Source[b.expr.ExprStart : b.expr.ExprStart+b.expr.ExprLen]
	v, err := b.eval.ev.EvalValue(src)
	if err != nil {
		return false, err
	}
	term, err := filterValueToTerm(v)
	if err != nil {
		return false, err
	}
	if err := b.ctx.bindTerm(b.varName, term); err != nil {
		return false, err
	}
	return true, nil
}

func (b *BindScan) Close() error { return b.inner.Close() }
