// Package obs wires Mercury's ambient observability: a zerolog logger
// configured from the log section of the config, and the Prometheus
// metrics the store and server publish.
package obs

import (
	"io"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// NewLogger builds the process logger. Pretty output is for interactive
// CLI use; servers log JSON lines.
func NewLogger(level string, pretty bool) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	var out io.Writer = os.Stderr
	if pretty {
		out = zerolog.ConsoleWriter{Out: os.Stderr}
	}
	return zerolog.New(out).Level(lvl).With().Timestamp().Logger()
}

// Metrics holds every counter and histogram Mercury publishes.
type Metrics struct {
	QuadsAdded    prometheus.Counter
	QuadsEnded    prometheus.Counter
	AtomsInterned prometheus.Counter
	QueriesTotal  *prometheus.CounterVec
	QueryDuration prometheus.Histogram
	ScanRows      prometheus.Counter
	WALFsyncs     prometheus.Counter
	Checkpoints   prometheus.Counter
}

// NewMetrics builds and registers the metric set on reg (use
// prometheus.DefaultRegisterer for the process-global registry).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		QuadsAdded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mercury", Name: "quads_added_total",
			Help: "Quads inserted into the store.",
		}),
		QuadsEnded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mercury", Name: "quads_ended_total",
			Help: "Quads end-dated by deletes and updates.",
		}),
		AtomsInterned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mercury", Name: "atoms_interned_total",
			Help: "Distinct atoms interned.",
		}),
		QueriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mercury", Name: "queries_total",
			Help: "Queries executed, by outcome.",
		}, []string{"outcome"}),
		QueryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "mercury", Name: "query_duration_seconds",
			Help:    "Wall-clock query execution time.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
		}),
		ScanRows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mercury", Name: "scan_rows_total",
			Help: "Rows produced by scan pipelines.",
		}),
		WALFsyncs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mercury", Name: "wal_fsyncs_total",
			Help: "fsync calls issued by the write-ahead log.",
		}),
		Checkpoints: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mercury", Name: "checkpoints_total",
			Help: "Checkpoints written.",
		}),
	}
	reg.MustRegister(m.QuadsAdded, m.QuadsEnded, m.AtomsInterned,
		m.QueriesTotal, m.QueryDuration, m.ScanRows, m.WALFsyncs, m.Checkpoints)
	return m
}
