// Package service provides the default Materializer Mercury wires into
// SERVICE pattern execution: a plain SPARQL 1.1 Protocol HTTP client.
// The wire format matches the SPARQL JSON Results document
// pkg/server/results/json.go serializes for Mercury's own endpoint.
package service

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/mercurydb/mercury/internal/service"
	"github.com/mercurydb/mercury/pkg/rdf"
)

// HTTPMaterializer issues SPARQL SELECT queries over HTTP(S) and decodes
// the SPARQL 1.1 JSON Results response with gjson, which tolerates the
// variation real-world endpoints show in field ordering and optional
// members far better than a fixed struct would.
type HTTPMaterializer struct {
	Client *http.Client
}

// NewHTTPMaterializer builds a materializer with a bounded per-request
// timeout; federated queries must not be allowed to hang a local query
// indefinitely on an unresponsive endpoint.
func NewHTTPMaterializer(timeout time.Duration) *HTTPMaterializer {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPMaterializer{Client: &http.Client{Timeout: timeout}}
}

func (h *HTTPMaterializer) Materialize(ctx context.Context, endpoint, groupText string) ([]service.Row, error) {
	query := "SELECT * WHERE { " + groupText + " }"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+url.Values{"query": {query}}.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("service: building request for %s: %w", endpoint, err)
	}
	req.Header.Set("Accept", "application/sparql-results+json")

	resp, err := h.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("service: request to %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("service: reading response from %s: %w", endpoint, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("service: %s returned %s: %s", endpoint, resp.Status, strings.TrimSpace(string(body)))
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("service: %s returned non-JSON response", endpoint)
	}

	doc := gjson.ParseBytes(body)
	var rows []service.Row
	for _, binding := range doc.Get("results.bindings").Array() {
		row := service.Row{}
		binding.ForEach(func(varName, v gjson.Result) bool {
			term, err := decodeBinding(v)
			if err == nil {
				row[varName.String()] = term
			}
			return true
		})
		rows = append(rows, row)
	}
	return rows, nil
}

// decodeBinding converts one SPARQL JSON Results binding value
// (https://www.w3.org/TR/sparql11-results-json/#select-bindings) to an
// rdf.Term.
func decodeBinding(v gjson.Result) (rdf.Term, error) {
	switch v.Get("type").String() {
	case "uri":
		return rdf.NewNamedNode(v.Get("value").String()), nil
	case "bnode":
		return rdf.NewBlankNode(v.Get("value").String()), nil
	case "literal", "typed-literal":
		value := v.Get("value").String()
		if lang := v.Get("xml:lang"); lang.Exists() {
			return rdf.NewLiteralWithLanguage(value, lang.String()), nil
		}
		if dt := v.Get("datatype"); dt.Exists() {
			return rdf.NewLiteralWithDatatype(value, rdf.NewNamedNode(dt.String())), nil
		}
		return rdf.NewLiteral(value), nil
	default:
		return nil, fmt.Errorf("service: unrecognized binding type %q", v.Get("type").String())
	}
}
