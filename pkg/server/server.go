// Package server exposes a Mercury database over the SPARQL 1.1 Protocol:
// GET/POST /sparql for queries, POST /update for updates, POST /load for
// bulk RDF ingestion, plus /stats and Prometheus /metrics.
package server

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/mercurydb/mercury/internal/obs"
	"github.com/mercurydb/mercury/pkg/mercury"
)

// Server is the HTTP SPARQL endpoint.
type Server struct {
	db      *mercury.DB
	addr    string
	log     zerolog.Logger
	metrics *obs.Metrics
	reg     *prometheus.Registry
	timeout time.Duration
}

// Options configures a Server.
type Options struct {
	Addr           string
	Logger         zerolog.Logger
	Registry       *prometheus.Registry // nil creates a private registry
	RequestTimeout time.Duration
}

// New builds a server around an opened database.
func New(db *mercury.DB, opts Options) *Server {
	if opts.Addr == "" {
		opts.Addr = "localhost:8080"
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	reg := opts.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	return &Server{
		db:      db,
		addr:    opts.Addr,
		log:     opts.Logger,
		metrics: obs.NewMetrics(reg),
		reg:     reg,
		timeout: opts.RequestTimeout,
	}
}

// Handler assembles the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRoot)
	mux.HandleFunc("/sparql", s.handleQuery)
	mux.HandleFunc("/query", s.handleQuery)
	mux.HandleFunc("/update", s.handleUpdate)
	mux.HandleFunc("/load", s.handleLoad)
	mux.HandleFunc("/stats", s.handleStats)
	mux.Handle("/metrics", promhttp.HandlerFor(s.reg, promhttp.HandlerOpts{}))
	return s.logRequests(mux)
}

// ListenAndServe runs the endpoint until the listener fails.
func (s *Server) ListenAndServe() error {
	srv := &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.timeout,
		WriteTimeout: s.timeout,
	}
	s.log.Info().Str("addr", s.addr).Msg("SPARQL endpoint listening")
	return srv.ListenAndServe()
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	})
}
