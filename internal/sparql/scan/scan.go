// Package scan implements the scan pipeline: pull-based scan operators
// over a pattern.Buffer, materializing pattern.BindingTable rows against
// a live quadstore.Store. Plans are keyed by slot ranges rather than a
// pointer tree, so an enumerator holds only cursors and child handles.
package scan

import (
	"context"

	"github.com/mercurydb/mercury/internal/atom"
	"github.com/mercurydb/mercury/internal/pattern"
	"github.com/mercurydb/mercury/internal/quadstore"
	"github.com/mercurydb/mercury/internal/rdfterm"
	"github.com/mercurydb/mercury/internal/service"
	"github.com/mercurydb/mercury/internal/sparql/filter"
	"github.com/mercurydb/mercury/internal/sparql/parser"
	"github.com/mercurydb/mercury/internal/trigram"
	"github.com/mercurydb/mercury/pkg/bufpool"
	"github.com/mercurydb/mercury/pkg/rdf"
)

// Scanner is the pull interface every scan variant implements. Next
// advances to the next solution, binding variables into table as a side
// effect; it returns false once exhausted. A Scanner owns no large
// per-row state: the binding table and scratch buffer are supplied by the
// caller so a chain of scans shares one allocation per query.
type Scanner interface {
	Next() (bool, error)
	Close() error
}

// Context bundles everything a scan needs to resolve terms and materialize
// bindings, shared by every scan in one query's pipeline.
type Context struct {
	Query    *parser.Query
	Buf      *pattern.Buffer
	Store    *quadstore.Store
	Atoms    *atom.Store
	Trigrams *trigram.Index // nil if no text index is wired

	Table   *pattern.BindingTable
	scratch []byte
	lease   *bufpool.Lease

	// Resolved temporal bounds, cached by temporalParams.
	tempResolved bool
	tempMode     quadstore.QueryMode
	tempAt       uint64
	tempFrom     uint64
	tempTo       uint64

	// Service materializes SERVICE patterns. Left nil, any
	// SERVICE block that isn't SILENT fails the query outright.
	Service service.Materializer
	Ctx     context.Context // propagated to Service.Materialize; defaults to Background
}

// scratchPool backs every Context's scratch buffer; leases are returned
// by Context.Release at end of query.
var scratchPool = bufpool.New(20)

// NewContext builds a scan Context for one query execution. Callers must
// call Release when the query is done.
func NewContext(q *parser.Query, store *quadstore.Store, atoms *atom.Store, trig *trigram.Index) *Context {
	lease := scratchPool.Rent(256)
	return &Context{
		Query:    q,
		Buf:      q.Body,
		Store:    store,
		Atoms:    atoms,
		Trigrams: trig,
		Table:    pattern.NewBindingTable(8),
		lease:    lease,
		scratch:  lease.Buf[:0],
	}
}

// Release returns the Context's pooled scratch buffer. Safe to call more
// than once; bindings must not be read afterward.
func (c *Context) Release() {
	if c.lease != nil {
		scratchPool.Return(c.lease)
		c.lease = nil
	}
}

// requestContext returns c.Ctx, or context.Background() if the caller never
// set one (e.g. an offline test harness with no request lifecycle to tie
// federated calls to).
func (c *Context) requestContext() context.Context {
	if c.Ctx != nil {
		return c.Ctx
	}
	return context.Background()
}

// termSpan returns the source text a Term's Start/Len span covers, or the
// parser's generated-text pool entry for synthesized terms (Start < 0):
// anonymous blank nodes, reifiers and their vocabulary IRIs, and fresh
// path-chain variables have no span in the query source.
func (c *Context) termSpan(t pattern.Term) string {
	if t.Start < 0 {
		return c.Query.Generated[-t.Start-1]
	}
	return c.Query.Source[t.Start : t.Start+t.Len]
}

// termVarName returns a TermVariable's name with its leading '?'/'$'
// sigil stripped, matching the convention pattern.HashVar and the parser
// itself use (parser.go hashes Start+1:Start+Len for the same reason).
// Synthesized variables (Start < 0) are stored sigil-free in the pool.
func (c *Context) termVarName(t pattern.Term) string {
	if t.Start < 0 {
		return c.Query.Generated[-t.Start-1]
	}
	return c.Query.Source[t.Start+1 : t.Start+t.Len]
}

// varNameAt strips the leading sigil from a raw (start, length) span over
// a variable reference, for the BindFields/ValuesHeaderFields shapes that
// record spans directly rather than through a pattern.Term.
func (c *Context) varNameAt(start, length int32) string {
	return c.Query.Source[start+1 : start+length]
}

// resolveTerm interns (or looks up) the atom ID a pattern.Term denotes. A
// TermVariable returns (0, true, false): callers must treat ID 0 as "not a
// constant" and branch to binding logic instead.
func (c *Context) resolveTerm(t pattern.Term) (id atom.ID, isVar bool, err error) {
	if t.Type == pattern.TermVariable {
		return 0, true, nil
	}
	span := c.termSpan(t)
	term, err := parseGroundTerm(t.Type, span, c.Query.Prefixes, c.Query.BaseURI)
	if err != nil {
		return 0, false, err
	}
	enc, err := rdfterm.Encode(term)
	if err != nil {
		return 0, false, err
	}
	if t.Type == pattern.TermIRI || t.Type == pattern.TermBlankNode {
		id, err = c.Atoms.InternIdentifier(enc)
	} else {
		id, err = c.Atoms.Intern(enc)
	}
	return id, false, err
}

// bindVar records a scan-materialized value for varName into the shared
// scratch buffer and the binding table.
func (c *Context) bindVar(varName string, id atom.ID) {
	enc := c.Atoms.GetBytes(id)
	start := int32(len(c.scratch))
	c.scratch = append(c.scratch, enc...)
	c.Table.Bind(pattern.HashVar(varName), pattern.Value{Scratch: true, Offset: start, Length: int32(len(enc))})
}

// bindTerm records an already-materialized rdf.Term (one not necessarily
// backed by an atom ID yet, e.g. a VALUES literal or a BIND result) into
// the scratch buffer and binding table.
func (c *Context) bindTerm(varName string, term rdf.Term) error {
	enc, err := rdfterm.Encode(term)
	if err != nil {
		return err
	}
	start := int32(len(c.scratch))
	c.scratch = append(c.scratch, enc...)
	c.Table.Bind(pattern.HashVar(varName), pattern.Value{Scratch: true, Offset: start, Length: int32(len(enc))})
	return nil
}

// scratchAt returns the bytes a Scratch Value refers to.
func (c *Context) scratchAt(v pattern.Value) []byte {
	return c.scratch[v.Offset : v.Offset+v.Length]
}

// valueEncoding returns the canonical rdfterm bytes a bound Value denotes,
// parsing a source-constant span on demand (scratch values are already
// canonically encoded by bindVar).
func (c *Context) valueEncoding(v pattern.Value) ([]byte, error) {
	if v.Scratch {
		return c.scratchAt(v), nil
	}
	span := c.Query.Source[v.Offset : v.Offset+v.Length]
	term, err := parseAnyGroundTerm(span, c.Query.Prefixes, c.Query.BaseURI)
	if err != nil {
		return nil, err
	}
	return rdfterm.Encode(term)
}

// boundAtomID resolves a variable already bound in Table to its interned
// atom ID, so a later TriplePatternScan over the same variable can push it
// down as a join constant instead of re-treating it as free. Returns
// bound=false if the variable has no current binding.
func (c *Context) boundAtomID(varName string) (id atom.ID, bound bool, err error) {
	v, ok := c.Table.Lookup(pattern.HashVar(varName))
	if !ok {
		return 0, false, nil
	}
	enc, err := c.valueEncoding(v)
	if err != nil {
		return 0, true, err
	}
	if rdfterm.IsLiteral(enc) {
		id, err = c.Atoms.Intern(enc)
	} else {
		id, err = c.Atoms.InternIdentifier(enc)
	}
	return id, true, err
}

// filterValue converts a bound Value into a filter.Value for expression
// evaluation, decoding either a scratch-materialized or source-constant
// term through the canonical rdfterm encoding.
func (c *Context) filterValue(v pattern.Value) (filter.Value, error) {
	enc, err := c.valueEncoding(v)
	if err != nil {
		return filter.Value{}, err
	}
	return decodeFilterValue(enc)
}

// Environment returns a filter.Environment bound to c's current binding
// row, the same adapter FilterScan/BindScan drive internally — exported so
// internal/sparql/agg can evaluate HAVING/ORDER BY/aggregate-argument
// expressions over a row it has Restore()'d without duplicating the EXISTS
// and text:match wiring.
func (c *Context) Environment() filter.Environment { return &environment{c} }

// FilterValue exports filterValue for internal/sparql/agg.
func (c *Context) FilterValue(v pattern.Value) (filter.Value, error) { return c.filterValue(v) }

// ValueEncoding exports valueEncoding for internal/sparql/agg, which keys
// GROUP BY groups off the canonical rdfterm bytes a bound Value decodes to.
func (c *Context) ValueEncoding(v pattern.Value) ([]byte, error) { return c.valueEncoding(v) }

// BindVar exports bindVar for internal/sparql/agg, which materializes
// aggregate results as fresh scratch-backed bindings the same way a scan
// materializes a join result.
func (c *Context) BindVar(varName string, id atom.ID) { c.bindVar(varName, id) }

// BindTerm exports bindTerm for internal/sparql/agg's SAMPLE/GROUP_CONCAT
// results and BIND-computed aggregate arguments.
func (c *Context) BindTerm(varName string, term rdf.Term) error { return c.bindTerm(varName, term) }

// ResolveTemplateTerm resolves an update-template term under the current
// binding row: ground terms intern to their atom ID, variables resolve
// through the table. ok=false means the term is a variable with no
// current binding.
func (c *Context) ResolveTemplateTerm(t pattern.Term) (id atom.ID, ok bool, err error) {
	if t.Type == pattern.TermVariable {
		return c.boundAtomID(c.termVarName(t))
	}
	id, _, err = c.resolveTerm(t)
	return id, true, err
}

// TermText returns the source text a term's span covers (or its
// synthesized label), for callers that key on lexical form, e.g. the
// update executor's fresh-blank-node-per-match mapping.
func (c *Context) TermText(t pattern.Term) string { return c.termSpan(t) }
