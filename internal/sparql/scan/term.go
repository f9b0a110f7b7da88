package scan

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mercurydb/mercury/internal/pattern"
	"github.com/mercurydb/mercury/internal/rdfterm"
	"github.com/mercurydb/mercury/internal/sparql/filter"
	"github.com/mercurydb/mercury/pkg/rdf"
)

// parseGroundTerm converts a source span plus its pattern.TermType tag into
// an rdf.Term, resolving prefixed names and the query's BASE. span keeps
// the leading "_:" for blank nodes (stripped below) and includes
// surrounding quotes/angle-brackets for IRIs and literals as the parser
// wrote them.
func parseGroundTerm(typ pattern.TermType, span string, prefixes map[string]string, base string) (rdf.Term, error) {
	switch typ {
	case pattern.TermIRI:
		return parseIRITerm(span, prefixes, base)
	case pattern.TermBlankNode:
		id := strings.TrimPrefix(span, "_:")
		return rdf.NewBlankNode(id), nil
	case pattern.TermLiteral:
		return parseLiteralTerm(span)
	default:
		return nil, fmt.Errorf("scan: cannot resolve variable term as ground term")
	}
}

// parseAnyGroundTerm autodetects a span's term kind from its surface
// syntax, for spans (VALUES entries, scratch-decoded constants) whose
// original pattern.TermType tag isn't available at the call site.
func parseAnyGroundTerm(span string, prefixes map[string]string, base string) (rdf.Term, error) {
	switch {
	case strings.HasPrefix(span, "_:"):
		return parseGroundTerm(pattern.TermBlankNode, span, prefixes, base)
	case strings.HasPrefix(span, "<"):
		return parseGroundTerm(pattern.TermIRI, span, prefixes, base)
	case strings.HasPrefix(span, `"`) || strings.HasPrefix(span, "'"):
		return parseGroundTerm(pattern.TermLiteral, span, prefixes, base)
	case span == "UNDEF":
		return nil, fmt.Errorf("scan: UNDEF has no ground encoding")
	default:
		if _, err := strconv.ParseFloat(span, 64); err == nil {
			return parseGroundTerm(pattern.TermLiteral, span, prefixes, base)
		}
		if span == "true" || span == "false" {
			return parseGroundTerm(pattern.TermLiteral, span, prefixes, base)
		}
		return parseGroundTerm(pattern.TermIRI, span, prefixes, base)
	}
}

func parseIRITerm(span string, prefixes map[string]string, base string) (rdf.Term, error) {
	if strings.HasPrefix(span, "<") && strings.HasSuffix(span, ">") {
		iri := span[1 : len(span)-1]
		if base != "" && !strings.Contains(iri, ":") {
			iri = base + iri
		}
		return rdf.NewNamedNode(iri), nil
	}
	if i := strings.IndexByte(span, ':'); i >= 0 {
		prefix, local := span[:i], span[i+1:]
		if ns, ok := prefixes[prefix]; ok {
			return rdf.NewNamedNode(ns + local), nil
		}
	}
	return rdf.NewNamedNode(span), nil
}

// parseLiteralTerm parses a SPARQL literal span: "value", "value"@lang, or
// "value"^^<datatype>, plus the bare numeric/boolean literal forms SPARQL
// allows without quotes (42, 3.14, true).
func parseLiteralTerm(span string) (rdf.Term, error) {
	if len(span) == 0 {
		return nil, fmt.Errorf("scan: empty literal span")
	}
	if span[0] != '"' && span[0] != '\'' {
		switch span {
		case "true":
			return rdf.NewBooleanLiteral(true), nil
		case "false":
			return rdf.NewBooleanLiteral(false), nil
		}
		if iv, err := strconv.ParseInt(span, 10, 64); err == nil {
			return rdf.NewIntegerLiteral(iv), nil
		}
		if fv, err := strconv.ParseFloat(span, 64); err == nil {
			return rdf.NewDecimalLiteral(fv), nil
		}
		return nil, fmt.Errorf("scan: cannot parse literal %q", span)
	}
	quote := span[0]
	end := strings.IndexByte(span[1:], quote)
	if end < 0 {
		return nil, fmt.Errorf("scan: unterminated literal %q", span)
	}
	end++ // index relative to span
	value := span[1:end]
	rest := span[end+1:]
	switch {
	case strings.HasPrefix(rest, "@"):
		return rdf.NewLiteralWithLanguage(value, rest[1:]), nil
	case strings.HasPrefix(rest, "^^"):
		dt := strings.TrimSuffix(strings.TrimPrefix(rest[2:], "<"), ">")
		return rdf.NewLiteralWithDatatype(value, rdf.NewNamedNode(dt)), nil
	default:
		return rdf.NewLiteral(value), nil
	}
}

// decodeFilterValue converts a canonical rdfterm encoding into the filter
// package's Value representation.
func decodeFilterValue(enc []byte) (filter.Value, error) {
	term, err := rdfterm.Decode(enc)
	if err != nil {
		return filter.Value{}, err
	}
	switch t := term.(type) {
	case *rdf.NamedNode:
		return filter.Value{Kind: filter.KindIRI, Lexical: t.IRI}, nil
	case *rdf.BlankNode:
		return filter.Value{Kind: filter.KindBlank, Lexical: t.ID}, nil
	case *rdf.Literal:
		return literalToFilterValue(t), nil
	default:
		return filter.Value{}, fmt.Errorf("scan: unsupported term kind %T in filter context", term)
	}
}

// filterValueToTerm converts a computed filter.Value (e.g. a BIND result)
// back into an rdf.Term for storage in the scratch buffer.
func filterValueToTerm(v filter.Value) (rdf.Term, error) {
	switch v.Kind {
	case filter.KindIRI:
		return rdf.NewNamedNode(v.Lexical), nil
	case filter.KindBlank:
		return rdf.NewBlankNode(v.Lexical), nil
	case filter.KindBoolean:
		return rdf.NewBooleanLiteral(v.Bool), nil
	case filter.KindNumeric:
		if v.IsInt {
			iv, _ := strconv.ParseInt(v.Lexical, 10, 64)
			return rdf.NewIntegerLiteral(iv), nil
		}
		return rdf.NewDecimalLiteral(v.Num), nil
	case filter.KindString:
		return rdf.NewLiteral(v.Lexical), nil
	case filter.KindLiteral:
		if v.Lang != "" {
			return rdf.NewLiteralWithLanguage(v.Lexical, v.Lang), nil
		}
		if v.Datatype != "" {
			return rdf.NewLiteralWithDatatype(v.Lexical, rdf.NewNamedNode(v.Datatype)), nil
		}
		return rdf.NewLiteral(v.Lexical), nil
	default:
		if v.Err != nil {
			return nil, v.Err
		}
		return nil, fmt.Errorf("scan: cannot bind unbound/error value")
	}
}

// FilterValueToTerm exports filterValueToTerm for internal/sparql/agg,
// which materializes aggregate results (MIN/MAX winners, SAMPLE picks)
// back into storable terms.
func FilterValueToTerm(v filter.Value) (rdf.Term, error) { return filterValueToTerm(v) }

func literalToFilterValue(l *rdf.Literal) filter.Value {
	if l.Language != "" {
		return filter.Value{Kind: filter.KindLiteral, Lexical: l.Value, Lang: l.Language}
	}
	if l.Datatype == nil {
		return filter.Value{Kind: filter.KindString, Lexical: l.Value}
	}
	dt := l.Datatype.IRI
	switch {
	case strings.HasSuffix(dt, "#boolean"):
		b, _ := strconv.ParseBool(l.Value)
		return filter.Value{Kind: filter.KindBoolean, Lexical: l.Value, Datatype: dt, Bool: b}
	case strings.HasSuffix(dt, "#integer"), strings.HasSuffix(dt, "#int"), strings.HasSuffix(dt, "#long"):
		n, _ := strconv.ParseFloat(l.Value, 64)
		return filter.Value{Kind: filter.KindNumeric, Lexical: l.Value, Datatype: dt, Num: n, IsInt: true}
	case strings.HasSuffix(dt, "#decimal"), strings.HasSuffix(dt, "#double"), strings.HasSuffix(dt, "#float"):
		n, _ := strconv.ParseFloat(l.Value, 64)
		return filter.Value{Kind: filter.KindNumeric, Lexical: l.Value, Datatype: dt, Num: n}
	default:
		return filter.Value{Kind: filter.KindLiteral, Lexical: l.Value, Datatype: dt}
	}
}
