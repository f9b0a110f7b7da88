package scan

import "github.com/mercurydb/mercury/internal/pattern"

// ValuesScan enumerates a VALUES block's literal rows as a base relation,
// binding the header's variable to each entry's term span in turn. The
// parser lays a ValuesHeader's ValuesEntry children immediately after it
// in the buffer (slots headerIdx+1 .. headerIdx+EntryCount), mirroring
// how GraphHeader-shaped slots record a ChildStart/ChildCount range.
type ValuesScan struct {
	ctx       *Context
	varName   string
	entryIdxs []int
	pos       int
}

// NewValuesScan builds a scan over the ValuesHeader slot at headerIdx.
func NewValuesScan(ctx *Context, headerIdx int) *ValuesScan {
	h := ctx.Buf.At(headerIdx).ValuesHeader()
	varName := ctx.varNameAt(h.VarStart, h.VarLen)
	entryIdxs := make([]int, 0, h.EntryCount)
	for i := int32(0); i < h.EntryCount; i++ {
		entryIdxs = append(entryIdxs, headerIdx+1+int(i))
	}
	return &ValuesScan{ctx: ctx, varName: varName, entryIdxs: entryIdxs, pos: -1}
}

func (v *ValuesScan) Next() (bool, error) {
	v.pos++
	if v.pos >= len(v.entryIdxs) {
		return false, nil
	}
	entry := v.ctx.Buf.At(v.entryIdxs[v.pos]).ValuesEntry()
	span := v.ctx.Query.Source[entry.ValueStart : entry.ValueStart+entry.ValueLen]
	if span == "UNDEF" {
		v.ctx.Table.Unbind(pattern.HashVar(v.varName))
		return true, nil
	}
	term, err := parseAnyGroundTerm(span, v.ctx.Query.Prefixes, v.ctx.Query.BaseURI)
	if err != nil {
		return false, err
	}
	if err := v.ctx.bindTerm(v.varName, term); err != nil {
		return false, err
	}
	return true, nil
}

func (v *ValuesScan) Close() error { return nil }
