// Package update implements the UpdateExecutor: SPARQL 1.1 Update forms
// executed against the quad store with end-dating instead of physical
// deletion, writing WAL records before index mutation.
package update

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/mercurydb/mercury/internal/atom"
	"github.com/mercurydb/mercury/internal/pattern"
	"github.com/mercurydb/mercury/internal/quadstore"
	"github.com/mercurydb/mercury/internal/rdfterm"
	"github.com/mercurydb/mercury/internal/sparql/parser"
	"github.com/mercurydb/mercury/internal/sparql/scan"
	"github.com/mercurydb/mercury/internal/trigram"
	"github.com/mercurydb/mercury/internal/walog"
	"github.com/mercurydb/mercury/pkg/rdf"
)

// Executor runs parsed update operations.
type Executor struct {
	Store    *quadstore.Store
	Atoms    *atom.Store
	Trigrams *trigram.Index // nil disables text indexing of inserted literals
}

// Result counts the quads an update touched.
type Result struct {
	Inserted int
	Deleted  int
}

// Execute dispatches on the update form. The query must have been parsed
// as an update (q.Update non-nil).
func (e *Executor) Execute(q *parser.Query) (Result, error) {
	u := q.Update
	if u == nil {
		return Result{}, fmt.Errorf("update: query is not an update")
	}
	ctx := scan.NewContext(q, e.Store, e.Atoms, e.Trigrams)
	defer ctx.Release()
	switch u.Form {
	case parser.UpdateInsertData:
		return e.insertData(ctx, u)
	case parser.UpdateDeleteData:
		return e.deleteData(ctx, u)
	case parser.UpdateDeleteWhere:
		return e.deleteWhere(ctx, u)
	case parser.UpdateModify:
		return e.modify(ctx, u)
	case parser.UpdateClear, parser.UpdateDrop:
		return e.clear(ctx, u)
	case parser.UpdateCreate:
		return Result{}, nil // graphs exist implicitly; CREATE is a no-op
	case parser.UpdateCopy:
		return e.copyGraph(ctx, u, true, false)
	case parser.UpdateMove:
		return e.copyGraph(ctx, u, true, true)
	case parser.UpdateAdd:
		return e.copyGraph(ctx, u, false, false)
	default:
		return Result{}, fmt.Errorf("update: unknown update form %d", u.Form)
	}
}

// templateQuad is one resolved (s,p,o,g) tuple from a template walk.
type templateQuad struct {
	s, p, o, g atom.ID
	skip       bool // a term could not be resolved (unbound var, delete-template blank)
}

// graphIDFor interns the graph IRI an operation scopes to; empty means
// the default graph (id 0).
func (e *Executor) graphIDFor(iri string) (atom.ID, error) {
	if iri == "" {
		return 0, nil
	}
	enc, err := rdfterm.Encode(rdf.NewNamedNode(iri))
	if err != nil {
		return 0, err
	}
	return e.Atoms.InternIdentifier(enc)
}

// walkTemplate resolves every Triple slot in [start, end) of buf under the
// current binding row. GRAPH headers inside the range scope their children
// to the named graph; everything else takes defaultGraph. fresh maps
// blank-node labels to minted blank nodes when minting is enabled
// (inserts); with fresh nil a blank term marks the quad skipped (a fresh
// node can never match an existing quad, so deleting it is a no-op).
func (e *Executor) walkTemplate(ctx *scan.Context, buf *pattern.Buffer, start, end int, defaultGraph atom.ID, fresh map[string]atom.ID) ([]templateQuad, error) {
	var out []templateQuad
	for i := start; i < end; i++ {
		slot := buf.At(i)
		switch slot.Kind() {
		case pattern.KindTriple:
			tf := slot.Triple()
			q := templateQuad{g: defaultGraph}
			var err error
			if q.s, q.skip, err = e.resolveTemplatePosition(ctx, tf.Subject, fresh, q.skip); err != nil {
				return nil, err
			}
			if q.p, q.skip, err = e.resolveTemplatePosition(ctx, tf.Predicate, fresh, q.skip); err != nil {
				return nil, err
			}
			if q.o, q.skip, err = e.resolveTemplatePosition(ctx, tf.Object, fresh, q.skip); err != nil {
				return nil, err
			}
			out = append(out, q)
		case pattern.KindGraphHeader:
			h := slot.GraphHeader()
			gid, ok, err := ctx.ResolveTemplateTerm(pattern.Term{Type: h.TermType, Start: h.TermStart, Len: h.TermLen})
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, fmt.Errorf("update: GRAPH term in template is unbound")
			}
			children, err := e.walkTemplate(ctx, buf, int(h.ChildStart), int(h.ChildStart+h.ChildCount), gid, fresh)
			if err != nil {
				return nil, err
			}
			out = append(out, children...)
			i = int(h.ChildStart + h.ChildCount - 1)
		}
	}
	return out, nil
}

// resolveTemplatePosition resolves one template term, carrying a skip
// flag forward: once any position is unresolvable the quad is dropped,
// but remaining positions are still walked so errors surface.
func (e *Executor) resolveTemplatePosition(ctx *scan.Context, t pattern.Term, fresh map[string]atom.ID, skipped bool) (atom.ID, bool, error) {
	if t.Type == pattern.TermBlankNode {
		if fresh == nil {
			return 0, true, nil
		}
		label := ctx.TermText(t)
		if id, ok := fresh[label]; ok {
			return id, skipped, nil
		}
		enc, err := rdfterm.Encode(rdf.NewBlankNode("b" + uuid.NewString()))
		if err != nil {
			return 0, true, err
		}
		id, err := e.Atoms.InternIdentifier(enc)
		if err != nil {
			return 0, true, err
		}
		fresh[label] = id
		return id, skipped, nil
	}
	id, ok, err := ctx.ResolveTemplateTerm(t)
	if err != nil {
		return 0, true, err
	}
	if !ok {
		return 0, true, nil
	}
	return id, skipped, nil
}

// addQuad inserts one quad with a fresh [now, +inf) interval and feeds the
// text index when the object is a literal.
func (e *Executor) addQuad(q templateQuad, now uint64) error {
	if err := e.Store.Add(quadstore.Quad{Subject: q.s, Predicate: q.p, Object: q.o, Graph: q.g,
		ValidFrom: now, ValidTo: walog.MaxTicks}); err != nil {
		return err
	}
	if e.Trigrams != nil {
		enc := e.Atoms.GetBytes(q.o)
		if rdfterm.IsLiteral(enc) {
			if term, err := rdfterm.Decode(enc); err == nil {
				if lit, ok := term.(*rdf.Literal); ok {
					if err := e.Trigrams.Index(uint64(q.o), lit.Value); err != nil {
						return err
					}
				}
			}
		}
	}
	return nil
}

func (e *Executor) insertData(ctx *scan.Context, u *parser.Update) (Result, error) {
	defaultGraph, err := e.graphIDFor(templateGraph(u.Data, u.WithGraph))
	if err != nil {
		return Result{}, err
	}
	fresh := map[string]atom.ID{}
	quads, err := e.walkTemplate(ctx, u.Data.Body, int(u.Data.Start), int(u.Data.End), defaultGraph, fresh)
	if err != nil {
		return Result{}, err
	}
	now := quadstore.Now()
	var res Result
	for _, q := range quads {
		if q.skip {
			continue
		}
		if err := e.addQuad(q, now); err != nil {
			return res, err
		}
		res.Inserted++
	}
	return res, nil
}

func (e *Executor) deleteData(ctx *scan.Context, u *parser.Update) (Result, error) {
	defaultGraph, err := e.graphIDFor(templateGraph(u.Data, u.WithGraph))
	if err != nil {
		return Result{}, err
	}
	quads, err := e.walkTemplate(ctx, u.Data.Body, int(u.Data.Start), int(u.Data.End), defaultGraph, nil)
	if err != nil {
		return Result{}, err
	}
	return e.endQuads(quads)
}

// endQuad end-dates one quad and retires its object's text from the
// trigram index once no live version references it.
func (e *Executor) endQuad(sID, pID, oID, gID atom.ID, now uint64) (bool, error) {
	ended, err := e.Store.End(sID, pID, oID, gID, now)
	if err != nil || !ended {
		return ended, err
	}
	return true, e.retireObjectText(oID)
}

// retireObjectText drops oID's literal from the trigram index when the
// store holds no current quad with it in object position.
func (e *Executor) retireObjectText(oID atom.ID) error {
	if e.Trigrams == nil {
		return nil
	}
	enc := e.Atoms.GetBytes(oID)
	if !rdfterm.IsLiteral(enc) {
		return nil
	}
	en, err := e.Store.Query(0, 0, oID, 0, quadstore.ModeCurrent, quadstore.Now(), 0, 0)
	if err != nil {
		return err
	}
	live := en.Next()
	if err := en.Close(); err != nil {
		return err
	}
	if live {
		return nil
	}
	term, err := rdfterm.Decode(enc)
	if err != nil {
		return err
	}
	lit, ok := term.(*rdf.Literal)
	if !ok {
		return nil
	}
	return e.Trigrams.Remove(uint64(oID), lit.Value)
}

// endQuads end-dates each distinct resolved quad, returning the count
// actually ended (a quad with no live version counts zero).
func (e *Executor) endQuads(quads []templateQuad) (Result, error) {
	now := quadstore.Now()
	seen := map[templateQuad]bool{}
	var res Result
	for _, q := range quads {
		if q.skip || seen[q] {
			continue
		}
		seen[q] = true
		ended, err := e.endQuad(q.s, q.p, q.o, q.g, now)
		if err != nil {
			return res, err
		}
		if ended {
			res.Deleted++
		}
	}
	return res, nil
}

// runWhere executes an update's WHERE clause and returns each solution as
// a binding snapshot.
func (e *Executor) runWhere(ctx *scan.Context, u *parser.Update, graphID atom.ID) ([][]pattern.BoundPair, error) {
	plan, err := scan.BuildPlanRange(ctx, u.Where, int(u.WhereStart), int(u.WhereEnd), graphID)
	if err != nil {
		return nil, err
	}
	defer plan.Close()
	var rows [][]pattern.BoundPair
	for {
		ok, err := plan.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return rows, nil
		}
		rows = append(rows, ctx.Table.Snapshot())
	}
}

func (e *Executor) deleteWhere(ctx *scan.Context, u *parser.Update) (Result, error) {
	withGraph, err := e.graphIDFor(u.WithGraph)
	if err != nil {
		return Result{}, err
	}
	rows, err := e.runWhere(ctx, u, withGraph)
	if err != nil {
		return Result{}, err
	}
	var all []templateQuad
	for _, row := range rows {
		ctx.Table.Reset()
		ctx.Table.Restore(row)
		quads, err := e.walkTemplate(ctx, u.Where, int(u.WhereStart), int(u.WhereEnd), withGraph, nil)
		if err != nil {
			return Result{}, err
		}
		all = append(all, quads...)
	}
	return e.endQuads(all)
}

func (e *Executor) modify(ctx *scan.Context, u *parser.Update) (Result, error) {
	withGraph, err := e.graphIDFor(u.WithGraph)
	if err != nil {
		return Result{}, err
	}
	rows, err := e.runWhere(ctx, u, withGraph)
	if err != nil {
		return Result{}, err
	}

	delGraph, err := e.graphIDFor(templateGraph(u.DeleteTemplate, u.WithGraph))
	if err != nil {
		return Result{}, err
	}
	insGraph, err := e.graphIDFor(templateGraph(u.InsertTemplate, u.WithGraph))
	if err != nil {
		return Result{}, err
	}

	var res Result
	now := quadstore.Now()
	for _, row := range rows {
		ctx.Table.Reset()
		ctx.Table.Restore(row)

		if u.DeleteTemplate.Body != nil && u.DeleteTemplate.End > u.DeleteTemplate.Start {
			quads, err := e.walkTemplate(ctx, u.DeleteTemplate.Body, int(u.DeleteTemplate.Start), int(u.DeleteTemplate.End), delGraph, nil)
			if err != nil {
				return res, err
			}
			sub, err := e.endQuads(quads)
			if err != nil {
				return res, err
			}
			res.Deleted += sub.Deleted
		}

		if u.InsertTemplate.Body != nil && u.InsertTemplate.End > u.InsertTemplate.Start {
			fresh := map[string]atom.ID{}
			quads, err := e.walkTemplate(ctx, u.InsertTemplate.Body, int(u.InsertTemplate.Start), int(u.InsertTemplate.End), insGraph, fresh)
			if err != nil {
				return res, err
			}
			for _, q := range quads {
				if q.skip {
					continue
				}
				if err := e.addQuad(q, now); err != nil {
					return res, err
				}
				res.Inserted++
			}
		}
	}
	return res, nil
}

// templateGraph returns the graph IRI a template's quads default to: an
// explicit GRAPH wrapper inside the template wins over WITH.
func templateGraph(t parser.QuadTemplate, with string) string {
	if t.HasGraph {
		return t.GraphIRI
	}
	return with
}

// collectScope gathers every currently-valid quad the scope covers. The
// enumerator is drained and closed before any write so the read lock is
// not held across End calls.
func (e *Executor) collectScope(match func(quadstore.Quad) bool) ([]quadstore.Quad, error) {
	now := quadstore.Now()
	en, err := e.Store.Query(0, 0, 0, 0, quadstore.ModeCurrent, now, 0, 0)
	if err != nil {
		return nil, err
	}
	defer en.Close()
	var out []quadstore.Quad
	for en.Next() {
		q := en.Quad()
		if match(q) {
			out = append(out, q)
		}
	}
	return out, nil
}

func (e *Executor) clear(ctx *scan.Context, u *parser.Update) (Result, error) {
	var match func(quadstore.Quad) bool
	switch u.Scope {
	case parser.ScopeDefault:
		match = func(q quadstore.Quad) bool { return q.Graph == 0 }
	case parser.ScopeNamed:
		match = func(q quadstore.Quad) bool { return q.Graph != 0 }
	case parser.ScopeAll:
		match = func(q quadstore.Quad) bool { return true }
	case parser.ScopeGraph:
		gid, err := e.graphIDFor(u.GraphIRI)
		if err != nil {
			return Result{}, err
		}
		match = func(q quadstore.Quad) bool { return q.Graph == gid }
	}
	quads, err := e.collectScope(match)
	if err != nil {
		return Result{}, err
	}
	now := quadstore.Now()
	var res Result
	for _, q := range quads {
		ended, err := e.endQuad(q.Subject, q.Predicate, q.Object, q.Graph, now)
		if err != nil {
			return res, err
		}
		if ended {
			res.Deleted++
		}
	}
	return res, nil
}

// copyGraph implements COPY (clearTarget), ADD (no clear), and MOVE
// (clearTarget + clearSource).
func (e *Executor) copyGraph(ctx *scan.Context, u *parser.Update, clearTarget, clearSource bool) (Result, error) {
	fromID, err := e.graphRefID(u.FromGraph, u.FromIsDefault)
	if err != nil {
		return Result{}, err
	}
	toID, err := e.graphRefID(u.ToGraph, u.ToIsDefault)
	if err != nil {
		return Result{}, err
	}
	if fromID == toID {
		return Result{}, nil
	}

	now := quadstore.Now()
	var res Result

	if clearTarget {
		existing, err := e.collectScope(func(q quadstore.Quad) bool { return q.Graph == toID })
		if err != nil {
			return res, err
		}
		for _, q := range existing {
			ended, err := e.endQuad(q.Subject, q.Predicate, q.Object, q.Graph, now)
			if err != nil {
				return res, err
			}
			if ended {
				res.Deleted++
			}
		}
	}

	source, err := e.collectScope(func(q quadstore.Quad) bool { return q.Graph == fromID })
	if err != nil {
		return res, err
	}
	for _, q := range source {
		if err := e.Store.Add(quadstore.Quad{Subject: q.Subject, Predicate: q.Predicate, Object: q.Object,
			Graph: toID, ValidFrom: now, ValidTo: walog.MaxTicks}); err != nil {
			return res, err
		}
		res.Inserted++
	}

	if clearSource {
		for _, q := range source {
			ended, err := e.endQuad(q.Subject, q.Predicate, q.Object, q.Graph, now)
			if err != nil {
				return res, err
			}
			if ended {
				res.Deleted++
			}
		}
	}
	return res, nil
}

func (e *Executor) graphRefID(iri string, isDefault bool) (atom.ID, error) {
	if isDefault {
		return 0, nil
	}
	return e.graphIDFor(iri)
}
