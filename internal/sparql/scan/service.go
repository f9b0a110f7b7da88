package scan

import (
	"fmt"

	"github.com/mercurydb/mercury/internal/pattern"
	"github.com/mercurydb/mercury/internal/rdfterm"
	"github.com/mercurydb/mercury/internal/service"
	"github.com/mercurydb/mercury/pkg/rdf"
)

// ServicePatternScan executes a federated SERVICE <endpoint> { ... } block
// by handing the block's verbatim text to ctx.Service, then
// joining each returned row onto the local BindingTable one at a time, the
// same shape every other Scanner in this package uses. It never descends
// into the block's own pattern slots: those exist only so the parser could
// record the block's source span (GraphHeaderFields.BodyStart/BodyLen) and
// are otherwise unused once a SERVICE header is reached.
type ServicePatternScan struct {
	ctx    *Context
	silent bool

	rows    []service.Row
	pos     int
	started bool
}

// NewServicePatternScan builds a scan for the ServiceHeader slot at
// headerIdx. With ctx.Service nil, a SILENT block yields no rows and any
// other SERVICE block fails with a configuration error.
func NewServicePatternScan(ctx *Context, headerIdx int) (*ServicePatternScan, error) {
	h := ctx.Buf.At(headerIdx).GraphHeader()
	if ctx.Service == nil {
		if h.Silent {
			return &ServicePatternScan{ctx: ctx, silent: true, started: true}, nil
		}
		return nil, fmt.Errorf("scan: SERVICE requires a service.Materializer, none configured")
	}

	endpoint, err := resolveServiceEndpoint(ctx, h)
	if err != nil {
		if h.Silent {
			return &ServicePatternScan{ctx: ctx, silent: true, started: true}, nil
		}
		return nil, err
	}

	groupText := ctx.Query.Source[h.BodyStart : h.BodyStart+h.BodyLen]
	rows, err := ctx.Service.Materialize(ctx.requestContext(), endpoint, groupText)
	if err != nil {
		if h.Silent {
			return &ServicePatternScan{ctx: ctx, silent: true, started: true}, nil
		}
		return nil, fmt.Errorf("scan: SERVICE <%s>: %w", endpoint, err)
	}
	return &ServicePatternScan{ctx: ctx, rows: rows}, nil
}

// resolveServiceEndpoint resolves the SERVICE header's endpoint term: a
// ground IRI resolves directly; a variable must already be bound by an
// enclosing scope, the same push-down rule GRAPH ?g follows.
func resolveServiceEndpoint(ctx *Context, h pattern.GraphHeaderFields) (string, error) {
	term := pattern.Term{Type: h.TermType, Start: h.TermStart, Len: h.TermLen}
	if term.Type != pattern.TermVariable {
		t, err := parseIRITerm(ctx.termSpan(term), ctx.Query.Prefixes, ctx.Query.BaseURI)
		if err != nil {
			return "", err
		}
		nn, ok := t.(*rdf.NamedNode)
		if !ok {
			return "", fmt.Errorf("scan: SERVICE endpoint must be an IRI")
		}
		return nn.IRI, nil
	}
	name := ctx.termVarName(term)
	v, bound := ctx.Table.Lookup(pattern.HashVar(name))
	if !bound {
		return "", fmt.Errorf("scan: SERVICE ?%s has no bound endpoint", name)
	}
	enc, err := ctx.valueEncoding(v)
	if err != nil {
		return "", err
	}
	t, err := rdfterm.Decode(enc)
	if err != nil {
		return "", err
	}
	nn, ok := t.(*rdf.NamedNode)
	if !ok {
		return "", fmt.Errorf("scan: SERVICE ?%s is bound to a non-IRI term", name)
	}
	return nn.IRI, nil
}

func (s *ServicePatternScan) Next() (bool, error) {
	if s.silent {
		return false, nil
	}
	if s.pos >= len(s.rows) {
		return false, nil
	}
	row := s.rows[s.pos]
	s.pos++
	for varName, term := range row {
		if err := s.ctx.bindTerm(varName, term); err != nil {
			return false, err
		}
	}
	return true, nil
}

func (s *ServicePatternScan) Close() error { return nil }
