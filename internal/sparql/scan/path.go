package scan

import (
	"fmt"
	"strings"

	"github.com/mercurydb/mercury/internal/atom"
	"github.com/mercurydb/mercury/internal/pattern"
	"github.com/mercurydb/mercury/internal/quadstore"
	"github.com/mercurydb/mercury/internal/rdfterm"
)

// PropertyPathScan evaluates a Triple slot whose predicate carries a
// property-path operator: inverse (^p), alternation
// (p1|p2|...), and the Kleene closures (p*, p+, p?), each optionally
// inverted. Sequence paths (p/q) never reach here: the parser desugars
// them into a chain of plain Triple slots joined on a fresh intermediate
// variable (see parser.go's emitPathChain), so this scan only ever
// evaluates one operator over one logical hop (a single predicate, or a
// flat alternation of predicates).
//
// Closures are evaluated by frontier/visited-set BFS, one hop at a time
// against the live quadstore: visited set keyed by node id, FIFO
// frontier, no recursion, so cycles terminate.
type PropertyPathScan struct {
	ctx     *Context
	graphID atom.ID

	sVar, oVar string
	sID, oID   atom.ID

	preds   []atom.ID // one hop may traverse any of these predicates (>1 only for alternation)
	inverse bool      // predicate direction is object->subject rather than subject->object
	kind    pattern.PathKind

	mode         quadstore.QueryMode
	at, from, to uint64

	results []pathResult
	pos     int
	started bool
}

// pathResult is one (subject, object) pair a path evaluation yields. Only
// the endpoint(s) that were free at scan-build time get bound back onto the
// row; a ground/ground check yields a single zero-valued pathResult to mean
// "matched, binds nothing".
type pathResult struct {
	s, o atom.ID
}

// NewPropertyPathScan builds a scan for the HasPath Triple slot at slotIdx.
func NewPropertyPathScan(ctx *Context, slotIdx int, graphID atom.ID) (*PropertyPathScan, error) {
	slot := ctx.Buf.At(slotIdx).Triple()
	if !slot.HasPath {
		return nil, fmt.Errorf("scan: slot %d has no property path", slotIdx)
	}

	s := &PropertyPathScan{ctx: ctx, graphID: graphID, kind: slot.Path.Kind, inverse: slot.Path.Inverse}

	preds, err := s.resolvePredicates(slot.Path)
	if err != nil {
		return nil, err
	}
	s.preds = preds

	if slot.Subject.Type == pattern.TermVariable {
		s.sVar = ctx.termVarName(slot.Subject)
		if id, bound, err := ctx.boundAtomID(s.sVar); bound {
			s.sID = id
			s.sVar = ""
		} else if err != nil {
			return nil, err
		}
	} else {
		id, _, err := ctx.resolveTerm(slot.Subject)
		if err != nil {
			return nil, err
		}
		s.sID = id
	}

	if slot.Object.Type == pattern.TermVariable {
		s.oVar = ctx.termVarName(slot.Object)
		if id, bound, err := ctx.boundAtomID(s.oVar); bound {
			s.oID = id
			s.oVar = ""
		} else if err != nil {
			return nil, err
		}
	} else {
		id, _, err := ctx.resolveTerm(slot.Object)
		if err != nil {
			return nil, err
		}
		s.oID = id
	}

	if slot.Path.Kind == pattern.PathInverse {
		s.inverse = !s.inverse
	}

	s.mode, s.at, s.from, s.to, err = temporalParams(ctx)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// resolvePredicates interns the IRI(s) a single hop may traverse:
// PathAlternative's span is "p1|p2|...", optionally with surrounding
// parens per branch; every other PathKind carries exactly one IRI span.
func (s *PropertyPathScan) resolvePredicates(p pattern.Path) ([]atom.ID, error) {
	if p.Kind != pattern.PathAlternative {
		id, _, err := s.ctx.resolveTerm(pattern.Term{Type: pattern.TermIRI, Start: p.IRIStat, Len: p.IRILen})
		if err != nil {
			return nil, err
		}
		return []atom.ID{id}, nil
	}
	span := s.ctx.termSpan(pattern.Term{Type: pattern.TermIRI, Start: p.IRIStat, Len: p.IRILen})
	var ids []atom.ID
	for _, branch := range strings.Split(span, "|") {
		branch = strings.TrimSpace(branch)
		branch = strings.TrimPrefix(branch, "(")
		branch = strings.TrimSuffix(branch, ")")
		branch = strings.TrimSpace(branch)
		if strings.HasPrefix(branch, "^") {
			return nil, fmt.Errorf("scan: mixed-direction alternative paths (%q) are not supported", span)
		}
		term, err := parseIRITerm(branch, s.ctx.Query.Prefixes, s.ctx.Query.BaseURI)
		if err != nil {
			return nil, fmt.Errorf("scan: property path alternative branch %q: %w", branch, err)
		}
		enc, err := rdfterm.Encode(term)
		if err != nil {
			return nil, err
		}
		id, err := s.ctx.Atoms.InternIdentifier(enc)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Next computes the path's full result set on first call (materializing is
// unavoidable for the closure operators, which must track a visited set
// across arbitrarily many hops) and yields one pair per call thereafter.
func (s *PropertyPathScan) Next() (bool, error) {
	if !s.started {
		if err := s.evaluate(); err != nil {
			return false, err
		}
		s.started = true
	}
	if s.pos >= len(s.results) {
		return false, nil
	}
	r := s.results[s.pos]
	s.pos++
	if s.sVar != "" {
		s.ctx.bindVar(s.sVar, r.s)
	}
	if s.oVar != "" {
		s.ctx.bindVar(s.oVar, r.o)
	}
	return true, nil
}

func (s *PropertyPathScan) Close() error { return nil }

// evaluate populates s.results per the path kind. The Kleene closures
// require at least one bound endpoint to seed the BFS frontier from (an
// unconstrained walk from every atom in the store is not implemented);
// PathNone/PathInverse/PathAlternative's single-hop lookup tolerates any
// combination of bound/free endpoints, including both free.
func (s *PropertyPathScan) evaluate() error {
	switch s.kind {
	case pattern.PathNone, pattern.PathInverse, pattern.PathAlternative:
		return s.evaluateDirect()
	case pattern.PathZeroOrMore, pattern.PathOneOrMore, pattern.PathZeroOrOne:
		return s.evaluateClosure()
	default:
		return fmt.Errorf("scan: unhandled property path kind %d", s.kind)
	}
}

// evaluateDirect unions one quadstore scan per candidate predicate (plain
// predicate, ^p, or an alternation's several predicates). storedSubject/
// storedObject are the slot's Subject/Object remapped into on-disk
// (subject, object) order: for an inverted step the user wrote
// Subject ^p Object, which the store holds as (Object, p, Subject).
func (s *PropertyPathScan) evaluateDirect() error {
	storedSubject, storedObject := s.sID, s.oID
	if s.inverse {
		storedSubject, storedObject = storedObject, storedSubject
	}
	seen := map[pathResult]bool{}
	for _, pred := range s.preds {
		enum, err := s.ctx.Store.Query(storedSubject, pred, storedObject, s.graphID, s.mode, s.at, s.from, s.to)
		if err != nil {
			return err
		}
		for enum.Next() {
			q := enum.Quad()
			var r pathResult
			if s.inverse {
				r = pathResult{s: q.Object, o: q.Subject}
			} else {
				r = pathResult{s: q.Subject, o: q.Object}
			}
			if !seen[r] {
				seen[r] = true
				s.results = append(s.results, r)
			}
		}
		if err := enum.Close(); err != nil {
			return err
		}
	}
	return nil
}

// evaluateClosure BFS-expands from whichever endpoint is already
// bound/ground, one hop per frontier step, honoring ZeroOrMore/ZeroOrOne's
// inclusion of the start node itself. Requires at least one bound
// endpoint; both-free closures are not supported.
func (s *PropertyPathScan) evaluateClosure() error {
	var start atom.ID
	fromSubject := true
	switch {
	case s.sVar == "":
		start = s.sID
		fromSubject = true
	case s.oVar == "":
		start = s.oID
		fromSubject = false
	default:
		return fmt.Errorf("scan: property path closure requires at least one bound endpoint")
	}
	bothGround := s.sVar == "" && s.oVar == ""

	visited := map[atom.ID]bool{}
	var frontier []atom.ID

	addResult := func(node atom.ID) {
		if bothGround {
			return // reachability of the ground target is checked after the walk
		}
		if fromSubject {
			s.results = append(s.results, pathResult{o: node})
		} else {
			s.results = append(s.results, pathResult{s: node})
		}
	}

	switch s.kind {
	case pattern.PathZeroOrMore, pattern.PathZeroOrOne:
		visited[start] = true
		addResult(start)
	}
	frontier = append(frontier, start)

	maxHops := -1 // unbounded for ZeroOrMore/OneOrMore
	if s.kind == pattern.PathZeroOrOne {
		maxHops = 1
	}

	for hop := 0; len(frontier) > 0 && (maxHops < 0 || hop < maxHops); hop++ {
		var next []atom.ID
		for _, node := range frontier {
			neighbors, err := s.stepFrom(node, fromSubject)
			if err != nil {
				return err
			}
			for _, n := range neighbors {
				if visited[n] {
					continue
				}
				visited[n] = true
				addResult(n)
				next = append(next, n)
			}
		}
		frontier = next
	}

	if bothGround && visited[s.oID] {
		s.results = append(s.results, pathResult{}) // matched, binds nothing
	}
	return nil
}

// stepFrom expands one hop from node across every candidate predicate, in
// the direction fromSubject dictates (object->subject when walking an
// inverted path).
func (s *PropertyPathScan) stepFrom(node atom.ID, fromSubject bool) ([]atom.ID, error) {
	var out []atom.ID
	for _, pred := range s.preds {
		var sID, oID atom.ID
		if fromSubject != s.inverse {
			sID = node
		} else {
			oID = node
		}
		enum, err := s.ctx.Store.Query(sID, pred, oID, s.graphID, s.mode, s.at, s.from, s.to)
		if err != nil {
			return nil, err
		}
		for enum.Next() {
			q := enum.Quad()
			if sID != 0 {
				out = append(out, q.Object)
			} else {
				out = append(out, q.Subject)
			}
		}
		if err := enum.Close(); err != nil {
			return nil, err
		}
	}
	return out, nil
}
