// Package service declares the interface core query execution uses to
// materialize a federated SPARQL SERVICE pattern, without the
// scan package needing to know how a remote endpoint is actually reached.
// The default implementation lives at pkg/service, an outward-facing
// adapter swappable by anything embedding Mercury (e.g. a test double that
// never makes a network call).
package service

import (
	"context"
	"fmt"

	"github.com/mercurydb/mercury/pkg/rdf"
)

// Row is one solution mapping variable names to the terms a remote endpoint
// bound them to.
type Row map[string]rdf.Term

// Materializer executes a SPARQL SELECT query against a federated endpoint
// and returns its solutions. groupText is the verbatim inner text of the
// SERVICE block ("{ ... }" braces excluded), wrapped into a standalone
// "SELECT * WHERE { ... }" query before being shipped.
type Materializer interface {
	Materialize(ctx context.Context, endpoint, groupText string) ([]Row, error)
}

// ErrSilent wraps an underlying Materializer error so callers can
// distinguish "silently swallow per SERVICE SILENT" from a
// hard failure that must abort the query.
type ErrSilent struct{ Err error }

func (e ErrSilent) Error() string { return fmt.Sprintf("service: %v (silenced)", e.Err) }
func (e ErrSilent) Unwrap() error { return e.Err }
