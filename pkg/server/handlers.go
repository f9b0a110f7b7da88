package server

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/tidwall/sjson"

	"github.com/mercurydb/mercury/internal/sparql/parser"
	"github.com/mercurydb/mercury/pkg/mercury"
	"github.com/mercurydb/mercury/pkg/server/results"
)

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, `<!DOCTYPE html>
<html><head><title>Mercury SPARQL Endpoint</title></head>
<body>
<h1>Mercury SPARQL Endpoint</h1>
<ul>
<li>GET/POST /sparql?query=... — SPARQL 1.1 Query</li>
<li>POST /update — SPARQL 1.1 Update</li>
<li>POST /load — RDF ingestion (Content-Type selects the format)</li>
<li>GET /stats — store statistics</li>
<li>GET /metrics — Prometheus metrics</li>
</ul>
</body></html>`)
}

// extractQuery pulls the query string out of a request per the SPARQL
// protocol: the query parameter, a form field, or a raw
// application/sparql-query body.
func extractQuery(r *http.Request, field, rawType string) (string, error) {
	if q := r.URL.Query().Get(field); q != "" {
		return q, nil
	}
	if r.Method != http.MethodPost {
		return "", fmt.Errorf("missing %s parameter", field)
	}
	ct := r.Header.Get("Content-Type")
	if strings.HasPrefix(ct, rawType) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			return "", err
		}
		return string(body), nil
	}
	if err := r.ParseForm(); err != nil {
		return "", err
	}
	if q := r.PostForm.Get(field); q != "" {
		return q, nil
	}
	return "", fmt.Errorf("missing %s parameter", field)
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	query, err := extractQuery(r, "query", "application/sparql-query")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	start := time.Now()
	res, err := s.db.Query(r.Context(), query)
	s.metrics.QueryDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		s.metrics.QueriesTotal.WithLabelValues("error").Inc()
		status := http.StatusInternalServerError
		if _, ok := err.(*parser.ParseError); ok {
			status = http.StatusBadRequest
		}
		http.Error(w, err.Error(), status)
		return
	}
	s.metrics.QueriesTotal.WithLabelValues("ok").Inc()
	s.writeQueryResult(w, r, res)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}
	update, err := extractQuery(r, "update", "application/sparql-update")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	res, err := s.db.Query(r.Context(), update)
	if err != nil {
		status := http.StatusInternalServerError
		if _, ok := err.(*parser.ParseError); ok {
			status = http.StatusBadRequest
		}
		http.Error(w, err.Error(), status)
		return
	}
	s.metrics.QuadsAdded.Add(float64(res.Inserted))
	s.metrics.QuadsEnded.Add(float64(res.Deleted))
	writeJSON(w, map[string]any{"inserted": res.Inserted, "deleted": res.Deleted})
}

func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}
	ct := r.Header.Get("Content-Type")
	n, err := s.db.Load(r.Body, ct)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.metrics.QuadsAdded.Add(float64(n))
	writeJSON(w, map[string]any{"loaded": n})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.db.Stats()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{
		"quads":       stats.QuadCount,
		"atoms":       stats.AtomCount,
		"atom_bytes":  stats.AtomBytes,
		"index_bytes": stats.IndexSize,
	})
}

// writeJSON assembles a small JSON document field by field with sjson and
// writes it with the JSON content type.
func writeJSON(w http.ResponseWriter, fields map[string]any) {
	doc := "{}"
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		doc, _ = sjson.Set(doc, k, fields[k])
	}
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintln(w, doc)
}

// writeQueryResult serializes a result per the request's Accept header (or
// an explicit format= override).
func (s *Server) writeQueryResult(w http.ResponseWriter, r *http.Request, res *mercury.Result) {
	format := negotiateFormat(r)

	var body []byte
	var err error
	var contentType string

	switch res.Type {
	case parser.QueryAsk:
		switch format {
		case "xml":
			contentType = "application/sparql-results+xml"
			body, err = results.FormatAskResultXML(res.Bool)
		case "csv":
			contentType = "text/csv"
			body, err = results.FormatAskResultCSV(res.Bool)
		case "tsv":
			contentType = "text/tab-separated-values"
			body, err = results.FormatAskResultTSV(res.Bool)
		default:
			contentType = "application/sparql-results+json"
			body, err = results.FormatAskResultJSON(res.Bool)
		}
	case parser.QueryConstruct, parser.QueryDescribe:
		contentType = "application/n-triples"
		body, err = results.FormatConstructResultNTriples(res.Triples)
	default:
		switch format {
		case "xml":
			contentType = "application/sparql-results+xml"
			body, err = results.FormatSelectResultsXML(res.Vars, res.Rows)
		case "csv":
			contentType = "text/csv"
			body, err = results.FormatSelectResultsCSV(res.Vars, res.Rows)
		case "tsv":
			contentType = "text/tab-separated-values"
			body, err = results.FormatSelectResultsTSV(res.Vars, res.Rows)
		default:
			contentType = "application/sparql-results+json"
			body, err = results.FormatSelectResultsJSON(res.Vars, res.Rows)
		}
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Write(body)
}

// negotiateFormat maps the format= query parameter or Accept header to one
// of json, xml, csv, tsv.
func negotiateFormat(r *http.Request) string {
	switch strings.ToLower(r.URL.Query().Get("format")) {
	case "json":
		return "json"
	case "xml":
		return "xml"
	case "csv":
		return "csv"
	case "tsv":
		return "tsv"
	}
	accept := r.Header.Get("Accept")
	switch {
	case strings.Contains(accept, "sparql-results+xml"), strings.Contains(accept, "application/xml"):
		return "xml"
	case strings.Contains(accept, "text/csv"):
		return "csv"
	case strings.Contains(accept, "tab-separated-values"):
		return "tsv"
	default:
		return "json"
	}
}
