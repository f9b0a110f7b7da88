package results

import (
	"strings"

	"github.com/mercurydb/mercury/pkg/rdf"
)

// SPARQL TSV Results Format
// https://www.w3.org/TR/sparql11-results-csv-tsv/

// FormatSelectResultsTSV converts SELECT rows to TSV. Unlike CSV, TSV
// keeps full SPARQL term syntax: IRIs in angle brackets, literals quoted
// with language tags and datatypes attached.
func FormatSelectResultsTSV(vars []string, rows []map[string]rdf.Term) ([]byte, error) {
	var b strings.Builder
	for i, v := range vars {
		if i > 0 {
			b.WriteByte('\t')
		}
		b.WriteByte('?')
		b.WriteString(v)
	}
	b.WriteByte('\n')

	for _, row := range rows {
		for i, name := range vars {
			if i > 0 {
				b.WriteByte('\t')
			}
			if term, ok := row[name]; ok {
				b.WriteString(tsvTerm(term))
			}
		}
		b.WriteByte('\n')
	}
	return []byte(b.String()), nil
}

func tsvTerm(term rdf.Term) string {
	switch v := term.(type) {
	case *rdf.NamedNode:
		return "<" + v.IRI + ">"
	case *rdf.BlankNode:
		return "_:" + v.ID
	case *rdf.Literal:
		out := `"` + escapeTSVString(v.Value) + `"`
		if v.Language != "" {
			out += "@" + v.Language
		} else if v.Datatype != nil {
			out += "^^<" + v.Datatype.IRI + ">"
		}
		return out
	default:
		return term.String()
	}
}

func escapeTSVString(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "\t", "\\t")
	s = strings.ReplaceAll(s, "\n", "\\n")
	s = strings.ReplaceAll(s, "\r", "\\r")
	s = strings.ReplaceAll(s, "\"", "\\\"")
	return s
}

// FormatAskResultTSV renders an ASK result as a single boolean line.
func FormatAskResultTSV(value bool) ([]byte, error) {
	if value {
		return []byte("?bool\ntrue\n"), nil
	}
	return []byte("?bool\nfalse\n"), nil
}
