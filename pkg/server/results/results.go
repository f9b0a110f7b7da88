// Package results serializes query results into the SPARQL 1.1 result
// formats (JSON, XML, CSV, TSV) plus N-Triples for CONSTRUCT/DESCRIBE
// output.
package results

import (
	"fmt"
	"strings"

	"github.com/mercurydb/mercury/pkg/rdf"
)

// termFields splits an rdf.Term into the (type, value, datatype, lang)
// tuple every result format encodes.
func termFields(t rdf.Term) (typ, value, datatype, lang string, err error) {
	switch v := t.(type) {
	case *rdf.NamedNode:
		return "uri", v.IRI, "", "", nil
	case *rdf.BlankNode:
		return "bnode", v.ID, "", "", nil
	case *rdf.Literal:
		dt := ""
		if v.Datatype != nil {
			dt = v.Datatype.IRI
		}
		return "literal", v.Value, dt, v.Language, nil
	default:
		return "", "", "", "", fmt.Errorf("results: unsupported term %T", t)
	}
}

// FormatConstructResultNTriples renders CONSTRUCT/DESCRIBE triples as
// N-Triples (https://www.w3.org/TR/n-triples/).
func FormatConstructResultNTriples(triples []*rdf.Triple) ([]byte, error) {
	var builder strings.Builder
	for _, triple := range triples {
		for i, term := range []rdf.Term{triple.Subject, triple.Predicate, triple.Object} {
			if i > 0 {
				builder.WriteString(" ")
			}
			if err := writeNTriplesTerm(&builder, term); err != nil {
				return nil, err
			}
		}
		builder.WriteString(" .\n")
	}
	return []byte(builder.String()), nil
}

func writeNTriplesTerm(builder *strings.Builder, term rdf.Term) error {
	switch v := term.(type) {
	case *rdf.NamedNode:
		builder.WriteString("<")
		builder.WriteString(v.IRI)
		builder.WriteString(">")
	case *rdf.BlankNode:
		builder.WriteString("_:")
		builder.WriteString(v.ID)
	case *rdf.Literal:
		builder.WriteString("\"")
		builder.WriteString(escapeNTriplesString(v.Value))
		builder.WriteString("\"")
		if v.Language != "" {
			builder.WriteString("@")
			builder.WriteString(v.Language)
		} else if v.Datatype != nil {
			builder.WriteString("^^<")
			builder.WriteString(v.Datatype.IRI)
			builder.WriteString(">")
		}
	default:
		return fmt.Errorf("results: unsupported term %T in N-Triples output", term)
	}
	return nil
}

// escapeNTriplesString escapes special characters in N-Triples string literals
func escapeNTriplesString(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "\"", "\\\"")
	s = strings.ReplaceAll(s, "\n", "\\n")
	s = strings.ReplaceAll(s, "\r", "\\r")
	s = strings.ReplaceAll(s, "\t", "\\t")
	return s
}
