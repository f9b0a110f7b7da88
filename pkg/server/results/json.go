package results

import (
	"encoding/json"

	"github.com/mercurydb/mercury/pkg/rdf"
)

// SPARQL JSON Results Format
// https://www.w3.org/TR/sparql11-results-json/

// SPARQLResultsJSON represents the JSON format for SPARQL query results
type SPARQLResultsJSON struct {
	Head    ResultHead      `json:"head"`
	Results *ResultBindings `json:"results,omitempty"`
	Boolean *bool           `json:"boolean,omitempty"`
}

// ResultHead contains the variable names
type ResultHead struct {
	Vars []string `json:"vars"`
}

// ResultBindings contains the result bindings
type ResultBindings struct {
	Bindings []map[string]BindingValue `json:"bindings"`
}

// BindingValue represents a single bound value
type BindingValue struct {
	Type     string  `json:"type"`
	Value    string  `json:"value"`
	Datatype *string `json:"datatype,omitempty"`
	XMLLang  *string `json:"xml:lang,omitempty"`
}

// FormatSelectResultsJSON converts SELECT rows to SPARQL JSON format.
func FormatSelectResultsJSON(vars []string, rows []map[string]rdf.Term) ([]byte, error) {
	out := SPARQLResultsJSON{
		Head:    ResultHead{Vars: vars},
		Results: &ResultBindings{Bindings: make([]map[string]BindingValue, 0, len(rows))},
	}
	for _, row := range rows {
		binding := make(map[string]BindingValue, len(row))
		for name, term := range row {
			typ, value, datatype, lang, err := termFields(term)
			if err != nil {
				return nil, err
			}
			bv := BindingValue{Type: typ, Value: value}
			if datatype != "" {
				bv.Datatype = &datatype
			}
			if lang != "" {
				bv.XMLLang = &lang
			}
			binding[name] = bv
		}
		out.Results.Bindings = append(out.Results.Bindings, binding)
	}
	return json.MarshalIndent(out, "", "  ")
}

// FormatAskResultJSON converts an ASK result to SPARQL JSON format.
func FormatAskResultJSON(value bool) ([]byte, error) {
	return json.MarshalIndent(SPARQLResultsJSON{Boolean: &value}, "", "  ")
}
