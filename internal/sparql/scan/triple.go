package scan

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mercurydb/mercury/internal/atom"
	"github.com/mercurydb/mercury/internal/pattern"
	"github.com/mercurydb/mercury/internal/quadstore"
	"github.com/mercurydb/mercury/internal/sparql/parser"
)

// TriplePatternScan enumerates every quad matching one Triple (or
// MinusTriple) slot under the query's temporal mode, binding the slot's
// variable positions into the shared Context.Table per solution.
//
// Property-path slots (HasPath) are not handled here: PathAlternative,
// PathZeroOrMore, PathOneOrMore, and PathZeroOrOne predicates are BFS'd by
// PropertyPathScan instead, since a single enumerator step cannot express
// path closure.
type TriplePatternScan struct {
	ctx  *Context
	slot pattern.TripleFields

	sVar, pVar, oVar, gVar string // "" if the position is bound or not a variable
	sID, pID, oID, gID     atom.ID

	graphID atom.ID // resolved active graph (0 = default graph), for CrossGraph callers

	mode           quadstore.QueryMode
	at, from, to   uint64
	enum           *quadstore.Enumerator
	started        bool
}

// NewTriplePatternScan builds a scan for the Triple/MinusTriple slot at
// index slotIdx of ctx.Buf, restricted to graphID (pass 0 for the default
// graph, or a resolved graph atom ID when nested under a GRAPH block).
func NewTriplePatternScan(ctx *Context, slotIdx int, graphID atom.ID) (*TriplePatternScan, error) {
	slot := ctx.Buf.At(slotIdx).Triple()
	if slot.HasPath {
		return nil, fmt.Errorf("scan: slot %d carries a property path, use newSlotScan", slotIdx)
	}
	s := &TriplePatternScan{ctx: ctx, slot: slot, graphID: graphID}

	var err error
	if s.sID, s.sVar, err = s.resolvePosition(slot.Subject); err != nil {
		return nil, err
	}
	if s.pID, s.pVar, err = s.resolvePosition(slot.Predicate); err != nil {
		return nil, err
	}
	if s.oID, s.oVar, err = s.resolvePosition(slot.Object); err != nil {
		return nil, err
	}
	s.gID = graphID

	s.mode, s.at, s.from, s.to, err = temporalParams(ctx)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// resolvePosition resolves one subject/predicate/object term. A variable
// already bound by an earlier pattern in the same BGP (or by an enclosing
// correlated scope, e.g. EXISTS) is pushed down as a join constant rather
// than re-bound as free, so sequential TriplePatternScans over shared
// variables perform an index-backed join instead of a cross product.
func (s *TriplePatternScan) resolvePosition(t pattern.Term) (atom.ID, string, error) {
	if t.Type == pattern.TermVariable {
		name := s.ctx.termVarName(t)
		if id, bound, err := s.ctx.boundAtomID(name); bound {
			return id, "", err
		}
		return 0, name, nil
	}
	id, _, err := s.ctx.resolveTerm(t)
	return id, "", err
}

// temporalParams derives the quadstore QueryMode and time bounds from the
// query's AS OF / DURING / ALL VERSIONS suffix, resolving the bound
// expressions once per query and caching the result on the Context (an
// EXISTS sub-context inherits the cache rather than re-reading spans that
// index the outer source).
func temporalParams(ctx *Context) (mode quadstore.QueryMode, at, from, to uint64, err error) {
	if ctx.tempResolved {
		return ctx.tempMode, ctx.tempAt, ctx.tempFrom, ctx.tempTo, nil
	}
	mode, at, from, to, err = resolveTemporal(ctx)
	if err != nil {
		return mode, at, from, to, err
	}
	ctx.tempResolved = true
	ctx.tempMode, ctx.tempAt, ctx.tempFrom, ctx.tempTo = mode, at, from, to
	return mode, at, from, to, nil
}

func resolveTemporal(ctx *Context) (mode quadstore.QueryMode, at, from, to uint64, err error) {
	switch ctx.Query.Temporal {
	case parser.TemporalNone:
		return quadstore.ModeCurrent, quadstore.Now(), 0, 0, nil
	case parser.TemporalAsOf:
		t, e := parseTimeSpan(ctx, ctx.Query.TemporalExpr)
		return quadstore.ModeAsOf, t, 0, 0, e
	case parser.TemporalDuring:
		from, e1 := parseTimeSpan(ctx, ctx.Query.TemporalExpr)
		to, e2 := parseTimeSpan(ctx, ctx.Query.TemporalTo)
		if e1 != nil {
			return quadstore.ModeDuring, 0, from, to, e1
		}
		return quadstore.ModeDuring, 0, from, to, e2
	case parser.TemporalAllVersions:
		return quadstore.ModeEvolution, 0, 0, 0, nil
	default:
		return quadstore.ModeCurrent, quadstore.Now(), 0, 0, nil
	}
}

func parseTimeSpan(ctx *Context, span parser.FilterSpan) (uint64, error) {
	if span.Len == 0 {
		return quadstore.Now(), nil
	}
	text := strings.TrimSpace(ctx.Query.Source[span.Start : span.Start+span.Len])
	if text[0] == '"' {
		// The span may carry a datatype suffix ("2023-08"^^xsd:date);
		// only the quoted lexical form matters here.
		if end := strings.IndexByte(text[1:], '"'); end >= 0 {
			text = text[1 : 1+end]
		}
	}
	if n, err := strconv.ParseUint(text, 10, 64); err == nil {
		return n, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02", "2006-01"} {
		if t, err := time.Parse(layout, text); err == nil {
			return quadstore.TicksFromTime(t), nil
		}
	}
	return 0, fmt.Errorf("scan: cannot parse temporal bound %q", text)
}

// Next advances the scan, binding sVar/pVar/oVar (and gVar, for
// CrossGraphMultiPatternScan callers that set one) into ctx.Table.
func (s *TriplePatternScan) Next() (bool, error) {
	if !s.started {
		enum, err := s.ctx.Store.Query(s.sID, s.pID, s.oID, s.gID, s.mode, s.at, s.from, s.to)
		if err != nil {
			return false, err
		}
		s.enum = enum
		s.started = true
	}
	if !s.enum.Next() {
		return false, nil
	}
	q := s.enum.Quad()
	if s.sVar != "" {
		s.ctx.bindVar(s.sVar, q.Subject)
	}
	if s.pVar != "" {
		s.ctx.bindVar(s.pVar, q.Predicate)
	}
	if s.oVar != "" {
		s.ctx.bindVar(s.oVar, q.Object)
	}
	if s.gVar != "" {
		s.ctx.bindVar(s.gVar, q.Graph)
	}
	return true, nil
}

// Close releases the underlying quadstore enumerator.
func (s *TriplePatternScan) Close() error {
	if s.enum == nil {
		return nil
	}
	return s.enum.Close()
}
