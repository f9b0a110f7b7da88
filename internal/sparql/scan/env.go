package scan

import (
	"fmt"
	"unicode"
	"unicode/utf8"

	"github.com/mercurydb/mercury/internal/pattern"
	"github.com/mercurydb/mercury/internal/rdfterm"
	"github.com/mercurydb/mercury/internal/sparql/filter"
	"github.com/mercurydb/mercury/internal/sparql/parser"
	"github.com/mercurydb/mercury/pkg/rdf"
)

// environment adapts a Context (plus its current binding row) to
// filter.Environment, so FilterScan and BindScan can drive the same
// expression evaluator off whichever scan produced the row.
type environment struct {
	ctx *Context
}

func (e *environment) Lookup(name string) (filter.Value, bool) {
	v, ok := e.ctx.Table.Lookup(pattern.HashVar(name))
	if !ok {
		return filter.Value{}, false
	}
	fv, err := e.ctx.filterValue(v)
	if err != nil {
		return filter.Value{Err: err}, true
	}
	return fv, true
}

// Exists re-parses groupSource as a graph pattern body and reports whether
// it has at least one solution given the current binding row, per
// EXISTS/NOT EXISTS semantics: the inner pattern is correlated,
// so already-bound variables from the outer row are pushed down as join
// constants exactly as MultiPatternScan does within one BGP.
func (e *environment) Exists(groupSource string) (bool, error) {
	inner, err := parser.NewParser(groupSource).Parse()
	if err != nil {
		return false, fmt.Errorf("scan: EXISTS: %w", err)
	}
	if inner.Body == nil {
		return false, nil
	}
	mode, at, from, to, err := temporalParams(e.ctx)
	if err != nil {
		return false, err
	}
	innerCtx := &Context{
		Query:    &parser.Query{Source: inner.Source, Generated: inner.Generated, Prefixes: e.ctx.Query.Prefixes, BaseURI: e.ctx.Query.BaseURI},
		Buf:      inner.Body,
		Store:    e.ctx.Store,
		Atoms:    e.ctx.Atoms,
		Trigrams: e.ctx.Trigrams,
		Table:    e.ctx.Table, // shared: correlated lookups see the outer row's bindings
		scratch:  e.ctx.scratch, // outer scratch offsets stay resolvable; inner appends stay private

		// The inner pattern runs under the outer query's temporal bounds;
		// spans in TemporalExpr index the outer source, so the resolved
		// values are inherited instead.
		tempResolved: true,
		tempMode:     mode,
		tempAt:       at,
		tempFrom:     from,
		tempTo:       to,
	}
	// The probe may bind inner-only variables (with values in the inner
	// context's scratch); the outer row must come back untouched.
	saved := e.ctx.Table.Snapshot()
	defer func() {
		e.ctx.Table.Reset()
		e.ctx.Table.Restore(saved)
	}()

	plan, err := BuildPlan(innerCtx, inner.Body, 0)
	if err != nil {
		return false, err
	}
	defer plan.Close()
	ok, err := plan.Next()
	return ok, err
}

// TextMatch implements the text:match extension function: the trigram
// index's intersected postings narrow the bound literal to a candidate
// set, and a case-folded substring check confirms the hit. With no index
// wired (or a needle too short to trigram) only the substring check runs.
func (e *environment) TextMatch(varName, query string) (bool, error) {
	id, bound, err := e.ctx.boundAtomID(varName)
	if err != nil || !bound {
		return false, err
	}
	enc := e.ctx.Atoms.GetBytes(id)
	if !rdfterm.IsLiteral(enc) {
		return false, nil
	}
	term, err := rdfterm.Decode(enc)
	if err != nil {
		return false, err
	}
	lit, ok := term.(*rdf.Literal)
	if !ok {
		return false, nil
	}
	if e.ctx.Trigrams != nil && utf8.RuneCountInString(query) >= 3 {
		candidates, err := e.ctx.Trigrams.Search(query)
		if err != nil {
			return false, err
		}
		// Postings hold 32-bit doc ids; comparing the truncated atom id
		// can only widen the candidate set, which the substring check
		// below absorbs.
		if !containsDocID(candidates, uint64(uint32(id))) {
			return false, nil
		}
	}
	return containsFold(lit.Value, query), nil
}

// containsDocID reports membership in Search's ascending result slice.
func containsDocID(ids []uint64, id uint64) bool {
	lo, hi := 0, len(ids)
	for lo < hi {
		mid := (lo + hi) / 2
		if ids[mid] < id {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo < len(ids) && ids[lo] == id
}

func containsFold(text, query string) bool {
	return len(query) == 0 || indexFold(text, query) >= 0
}

func indexFold(text, query string) int {
	tl, ql := []rune(text), []rune(query)
	if len(ql) == 0 {
		return 0
	}
	for i := 0; i+len(ql) <= len(tl); i++ {
		match := true
		for j := range ql {
			if unicode.ToLower(tl[i+j]) != unicode.ToLower(ql[j]) {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}
