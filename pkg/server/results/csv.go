package results

import (
	"bytes"
	"encoding/csv"

	"github.com/mercurydb/mercury/pkg/rdf"
)

// SPARQL CSV Results Format
// https://www.w3.org/TR/sparql11-results-csv-tsv/

// FormatSelectResultsCSV converts SELECT rows to CSV: one header row of
// variable names, then one row per solution with unbound cells empty.
// Term values are written bare (no angle brackets or quotes) per the CSV
// section of the spec.
func FormatSelectResultsCSV(vars []string, rows []map[string]rdf.Term) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.UseCRLF = true

	if err := w.Write(vars); err != nil {
		return nil, err
	}
	record := make([]string, len(vars))
	for _, row := range rows {
		for i, name := range vars {
			record[i] = ""
			if term, ok := row[name]; ok {
				_, value, _, _, err := termFields(term)
				if err != nil {
					return nil, err
				}
				record[i] = value
			}
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

// FormatAskResultCSV renders an ASK result as a single boolean cell.
func FormatAskResultCSV(value bool) ([]byte, error) {
	if value {
		return []byte("bool\r\ntrue\r\n"), nil
	}
	return []byte("bool\r\nfalse\r\n"), nil
}
