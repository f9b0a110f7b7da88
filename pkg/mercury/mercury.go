// Package mercury is the embedded database facade: one handle bundling
// the atom store, the multi-index quad store, the trigram text index, and
// the SPARQL engine, with loading, querying, updating, reasoning, and
// statistics as its public surface.
package mercury

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"

	"github.com/mercurydb/mercury/internal/atom"
	"github.com/mercurydb/mercury/internal/quadstore"
	"github.com/mercurydb/mercury/internal/rdfterm"
	"github.com/mercurydb/mercury/internal/reasoner"
	"github.com/mercurydb/mercury/internal/service"
	"github.com/mercurydb/mercury/internal/trigram"
	"github.com/mercurydb/mercury/internal/walog"
	"github.com/mercurydb/mercury/pkg/rdf"
)

// Options configures an opened database.
type Options struct {
	// Dir is the on-disk root; created if missing.
	Dir string
	// Service materializes federated SERVICE patterns. Nil leaves
	// SERVICE unsupported (SILENT clauses yield zero rows).
	Service service.Materializer
	// Logger receives ambient log lines. The zero value is usable and
	// discards everything.
	Logger zerolog.Logger
	// DisableTextIndex skips trigram indexing of inserted literals.
	DisableTextIndex bool
}

// DB is an opened Mercury database.
type DB struct {
	dir      string
	atoms    *atom.Store
	store    *quadstore.Store
	trigrams *trigram.Index
	svc      service.Materializer
	log      zerolog.Logger
}

// Open opens (or creates) a database rooted at opts.Dir.
func Open(opts Options) (*DB, error) {
	if opts.Dir == "" {
		return nil, fmt.Errorf("mercury: Options.Dir is required")
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("mercury: create data dir: %w", err)
	}
	atoms, err := atom.Open(opts.Dir)
	if err != nil {
		return nil, err
	}
	store, err := quadstore.Open(opts.Dir, atoms)
	if err != nil {
		atoms.Close()
		return nil, err
	}
	db := &DB{dir: opts.Dir, atoms: atoms, store: store, svc: opts.Service, log: opts.Logger}
	if !opts.DisableTextIndex {
		db.trigrams = trigram.Open(store.DB())
	}
	db.log.Info().Str("dir", opts.Dir).Msg("database opened")
	return db, nil
}

// Close releases the store and its files.
func (db *DB) Close() error {
	err := db.store.Close()
	if cerr := db.atoms.Close(); err == nil {
		err = cerr
	}
	return err
}

// Load parses RDF data in the given content type (e.g. "text/turtle",
// "application/n-quads") and inserts every quad with a fresh validity
// interval, as one atomic batch. Returns the number of quads loaded.
func (db *DB) Load(r io.Reader, contentType string) (int, error) {
	txID, err := db.store.BeginBatch()
	if err != nil {
		return 0, err
	}
	now := quadstore.Now()
	count := 0
	err = rdf.ParseStream(r, contentType, func(q *rdf.Quad) error {
		sid, err := db.internTerm(q.Subject)
		if err != nil {
			return err
		}
		pid, err := db.internTerm(q.Predicate)
		if err != nil {
			return err
		}
		oid, err := db.internTerm(q.Object)
		if err != nil {
			return err
		}
		gid, err := db.internGraph(q.Graph)
		if err != nil {
			return err
		}
		if err := db.store.Add(quadstore.Quad{Subject: sid, Predicate: pid, Object: oid, Graph: gid,
			ValidFrom: now, ValidTo: walog.MaxTicks}); err != nil {
			return err
		}
		if db.trigrams != nil {
			if lit, ok := q.Object.(*rdf.Literal); ok {
				if err := db.trigrams.Index(uint64(oid), lit.Value); err != nil {
					return err
				}
			}
		}
		count++
		return nil
	})
	if err != nil {
		db.store.RollbackBatch(txID)
		return 0, err
	}
	if err := db.store.CommitBatch(txID); err != nil {
		return 0, err
	}
	db.log.Info().Int("quads", count).Str("format", contentType).Msg("load complete")
	return count, nil
}

// internTerm interns any term through its canonical encoding.
func (db *DB) internTerm(t rdf.Term) (atom.ID, error) {
	enc, err := rdfterm.Encode(t)
	if err != nil {
		return 0, err
	}
	if _, ok := t.(*rdf.Literal); ok {
		return db.atoms.Intern(enc)
	}
	return db.atoms.InternIdentifier(enc)
}

// internGraph maps a quad's graph term to its atom ID; the default graph
// is id 0.
func (db *DB) internGraph(g rdf.Term) (atom.ID, error) {
	if g == nil {
		return 0, nil
	}
	if _, ok := g.(*rdf.DefaultGraph); ok {
		return 0, nil
	}
	return db.internTerm(g)
}

// Statistics summarizes store size.
type Statistics struct {
	QuadCount uint64
	AtomCount uint64
	AtomBytes uint64
	IndexSize uint64
}

// Stats reports store-wide counts.
func (db *DB) Stats() (Statistics, error) {
	qs, err := db.store.GetStatistics()
	if err != nil {
		return Statistics{}, err
	}
	as := db.atoms.Statistics()
	return Statistics{QuadCount: qs.QuadCount, AtomCount: as.AtomCount, AtomBytes: as.TotalBytes, IndexSize: qs.Bytes}, nil
}

// Reason materializes the selected rule set's closure, returning the
// number of inferred quads.
func (db *DB) Reason(rules reasoner.RuleSet, maxIters int) (int, error) {
	r := &reasoner.Reasoner{Store: db.store, Atoms: db.atoms, Rules: rules}
	n, err := r.Materialize(maxIters)
	if err != nil {
		return n, err
	}
	db.log.Info().Int("inferred", n).Msg("materialization complete")
	return n, nil
}

// Checkpoint forces a WAL checkpoint regardless of thresholds.
func (db *DB) Checkpoint() error {
	if err := db.store.DB().Sync(); err != nil {
		return err
	}
	return db.store.WAL().Checkpoint()
}
