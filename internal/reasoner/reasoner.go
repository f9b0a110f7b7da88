// Package reasoner materializes RDFS/OWL entailments into the quad store:
// a naive fixed-point rule engine driven by the store's scan and add
// primitives. Rule sets are selected as a bitmap so callers pay only for
// the inference they ask for.
package reasoner

import (
	"fmt"

	"github.com/mercurydb/mercury/internal/atom"
	"github.com/mercurydb/mercury/internal/quadstore"
	"github.com/mercurydb/mercury/internal/rdfterm"
	"github.com/mercurydb/mercury/internal/walog"
	"github.com/mercurydb/mercury/pkg/rdf"
)

// RuleSet selects which inference rules Materialize applies.
type RuleSet uint16

const (
	RdfsSubClass RuleSet = 1 << iota
	RdfsSubProperty
	RdfsDomain
	RdfsRange
	OwlTransitive
	OwlSymmetric
	OwlInverse
	OwlSameAs
	OwlEquivalentClass
	OwlEquivalentProperty

	// RuleSetRDFS and RuleSetAll are the two bundles callers usually want.
	RuleSetRDFS = RdfsSubClass | RdfsSubProperty | RdfsDomain | RdfsRange
	RuleSetAll  = RuleSetRDFS | OwlTransitive | OwlSymmetric | OwlInverse |
		OwlSameAs | OwlEquivalentClass | OwlEquivalentProperty
)

// Vocabulary IRIs the rules pattern-match on.
const (
	iriType               = "http://www.w3.org/1999/02/22-rdf-syntax-ns#type"
	iriSubClassOf         = "http://www.w3.org/2000/01/rdf-schema#subClassOf"
	iriSubPropertyOf      = "http://www.w3.org/2000/01/rdf-schema#subPropertyOf"
	iriDomain             = "http://www.w3.org/2000/01/rdf-schema#domain"
	iriRange              = "http://www.w3.org/2000/01/rdf-schema#range"
	iriTransitiveProperty = "http://www.w3.org/2002/07/owl#TransitiveProperty"
	iriSymmetricProperty  = "http://www.w3.org/2002/07/owl#SymmetricProperty"
	iriInverseOf          = "http://www.w3.org/2002/07/owl#inverseOf"
	iriSameAs             = "http://www.w3.org/2002/07/owl#sameAs"
	iriEquivalentClass    = "http://www.w3.org/2002/07/owl#equivalentClass"
	iriEquivalentProperty = "http://www.w3.org/2002/07/owl#equivalentProperty"
)

// Reasoner computes the closure of the selected rule set over a store.
type Reasoner struct {
	Store *quadstore.Store
	Atoms *atom.Store
	Rules RuleSet
}

// vocab holds the interned atom IDs of the vocabulary terms.
type vocab struct {
	typ, subClass, subProp, domain, rang atom.ID
	transitive, symmetric, inverse       atom.ID
	sameAs, equivClass, equivProp        atom.ID
}

func (r *Reasoner) internVocab() (vocab, error) {
	var v vocab
	for _, bind := range []struct {
		dst *atom.ID
		iri string
	}{
		{&v.typ, iriType}, {&v.subClass, iriSubClassOf}, {&v.subProp, iriSubPropertyOf},
		{&v.domain, iriDomain}, {&v.rang, iriRange},
		{&v.transitive, iriTransitiveProperty}, {&v.symmetric, iriSymmetricProperty},
		{&v.inverse, iriInverseOf}, {&v.sameAs, iriSameAs},
		{&v.equivClass, iriEquivalentClass}, {&v.equivProp, iriEquivalentProperty},
	} {
		enc, err := rdfterm.Encode(rdf.NewNamedNode(bind.iri))
		if err != nil {
			return v, err
		}
		id, err := r.Atoms.InternIdentifier(enc)
		if err != nil {
			return v, err
		}
		*bind.dst = id
	}
	return v, nil
}

// quadKey identifies a quad regardless of validity interval.
type quadKey struct{ s, p, o, g atom.ID }

// Materialize applies the selected rules until no new quad is inferred or
// maxIters passes complete, returning the number of quads added. Inferred
// quads land in the same graph as their (first) premise, with a fresh
// validity interval starting at materialization time.
func (r *Reasoner) Materialize(maxIters int) (int, error) {
	if maxIters <= 0 {
		maxIters = 10
	}
	v, err := r.internVocab()
	if err != nil {
		return 0, fmt.Errorf("reasoner: intern vocabulary: %w", err)
	}

	quads, known, err := r.snapshot()
	if err != nil {
		return 0, err
	}

	now := quadstore.Now()
	total := 0
	for iter := 0; iter < maxIters; iter++ {
		inferred := r.applyRules(v, quads, known)
		if len(inferred) == 0 {
			break
		}
		for _, q := range inferred {
			if err := r.Store.Add(quadstore.Quad{Subject: q.s, Predicate: q.p, Object: q.o, Graph: q.g,
				ValidFrom: now, ValidTo: walog.MaxTicks}); err != nil {
				return total, err
			}
			known[q] = true
			quads = append(quads, q)
			total++
		}
	}
	return total, nil
}

// snapshot drains every currently-valid quad into memory, so rule
// application never holds the read lock while writing.
func (r *Reasoner) snapshot() ([]quadKey, map[quadKey]bool, error) {
	en, err := r.Store.Query(0, 0, 0, 0, quadstore.ModeCurrent, quadstore.Now(), 0, 0)
	if err != nil {
		return nil, nil, err
	}
	defer en.Close()
	var quads []quadKey
	known := map[quadKey]bool{}
	for en.Next() {
		q := en.Quad()
		k := quadKey{q.Subject, q.Predicate, q.Object, q.Graph}
		if !known[k] {
			known[k] = true
			quads = append(quads, k)
		}
	}
	return quads, known, nil
}

// schema holds the rule-relevant edges extracted from the current quads.
type schema struct {
	subClassOf map[atom.ID][]atom.ID
	subPropOf  map[atom.ID][]atom.ID
	domainOf   map[atom.ID][]atom.ID
	rangeOf    map[atom.ID][]atom.ID
	transitive map[atom.ID]bool
	symmetric  map[atom.ID]bool
	inverseOf  map[atom.ID][]atom.ID
	equivClass map[atom.ID][]atom.ID
	equivProp  map[atom.ID][]atom.ID

	// edges[p] lists (s,o,g) triples per predicate, for the transitive join.
	edges map[atom.ID][]quadKey
}

func (r *Reasoner) buildSchema(v vocab, quads []quadKey) *schema {
	sc := &schema{
		subClassOf: map[atom.ID][]atom.ID{}, subPropOf: map[atom.ID][]atom.ID{},
		domainOf: map[atom.ID][]atom.ID{}, rangeOf: map[atom.ID][]atom.ID{},
		transitive: map[atom.ID]bool{}, symmetric: map[atom.ID]bool{},
		inverseOf: map[atom.ID][]atom.ID{},
		equivClass: map[atom.ID][]atom.ID{}, equivProp: map[atom.ID][]atom.ID{},
		edges: map[atom.ID][]quadKey{},
	}
	for _, q := range quads {
		sc.edges[q.p] = append(sc.edges[q.p], q)
		switch q.p {
		case v.subClass:
			sc.subClassOf[q.s] = append(sc.subClassOf[q.s], q.o)
		case v.subProp:
			sc.subPropOf[q.s] = append(sc.subPropOf[q.s], q.o)
		case v.domain:
			sc.domainOf[q.s] = append(sc.domainOf[q.s], q.o)
		case v.rang:
			sc.rangeOf[q.s] = append(sc.rangeOf[q.s], q.o)
		case v.inverse:
			sc.inverseOf[q.s] = append(sc.inverseOf[q.s], q.o)
			sc.inverseOf[q.o] = append(sc.inverseOf[q.o], q.s)
		case v.equivClass:
			sc.equivClass[q.s] = append(sc.equivClass[q.s], q.o)
			sc.equivClass[q.o] = append(sc.equivClass[q.o], q.s)
		case v.equivProp:
			sc.equivProp[q.s] = append(sc.equivProp[q.s], q.o)
			sc.equivProp[q.o] = append(sc.equivProp[q.o], q.s)
		case v.typ:
			switch q.o {
			case v.transitive:
				sc.transitive[q.s] = true
			case v.symmetric:
				sc.symmetric[q.s] = true
			}
		}
	}
	return sc
}

// applyRules performs one pass over the current quads and returns the
// quads the selected rules entail that are not yet known.
func (r *Reasoner) applyRules(v vocab, quads []quadKey, known map[quadKey]bool) []quadKey {
	sc := r.buildSchema(v, quads)
	var out []quadKey
	emit := func(q quadKey) {
		if !known[q] {
			known[q] = true
			out = append(out, q)
		}
	}
	// emit marks known immediately so one pass never emits a duplicate;
	// the caller re-marks when it persists, which is harmless.

	for _, q := range quads {
		if r.Rules&RdfsSubClass != 0 && q.p == v.typ {
			for _, super := range sc.subClassOf[q.o] {
				emit(quadKey{q.s, v.typ, super, q.g})
			}
		}
		if r.Rules&OwlEquivalentClass != 0 && q.p == v.typ {
			for _, eq := range sc.equivClass[q.o] {
				emit(quadKey{q.s, v.typ, eq, q.g})
			}
		}
		if r.Rules&RdfsSubProperty != 0 {
			for _, super := range sc.subPropOf[q.p] {
				emit(quadKey{q.s, super, q.o, q.g})
			}
		}
		if r.Rules&OwlEquivalentProperty != 0 {
			for _, eq := range sc.equivProp[q.p] {
				emit(quadKey{q.s, eq, q.o, q.g})
			}
		}
		if r.Rules&RdfsDomain != 0 {
			for _, cls := range sc.domainOf[q.p] {
				emit(quadKey{q.s, v.typ, cls, q.g})
			}
		}
		if r.Rules&RdfsRange != 0 && !r.isLiteral(q.o) {
			for _, cls := range sc.rangeOf[q.p] {
				emit(quadKey{q.o, v.typ, cls, q.g})
			}
		}
		if r.Rules&OwlSymmetric != 0 && sc.symmetric[q.p] {
			emit(quadKey{q.o, q.p, q.s, q.g})
		}
		if r.Rules&OwlInverse != 0 {
			for _, inv := range sc.inverseOf[q.p] {
				emit(quadKey{q.o, inv, q.s, q.g})
			}
		}
		if r.Rules&OwlTransitive != 0 && sc.transitive[q.p] {
			for _, next := range sc.edges[q.p] {
				if next.s == q.o && next.g == q.g {
					emit(quadKey{q.s, q.p, next.o, q.g})
				}
			}
		}
		if r.Rules&OwlSameAs != 0 && q.p == v.sameAs {
			emit(quadKey{q.o, v.sameAs, q.s, q.g})
			for _, next := range sc.edges[v.sameAs] {
				if next.s == q.o && next.g == q.g {
					emit(quadKey{q.s, v.sameAs, next.o, q.g})
				}
			}
		}
	}

	// sameAs substitution: every statement about a holds for b when
	// a sameAs b (both directions are present by the symmetry rule).
	if r.Rules&OwlSameAs != 0 {
		for _, same := range sc.edges[v.sameAs] {
			if same.s == same.o {
				continue
			}
			for _, q := range quads {
				if q.p == v.sameAs {
					continue
				}
				if q.s == same.s {
					emit(quadKey{same.o, q.p, q.o, q.g})
				}
				if q.o == same.s && !r.isLiteral(q.o) {
					emit(quadKey{q.s, q.p, same.o, q.g})
				}
			}
		}
	}
	return out
}

func (r *Reasoner) isLiteral(id atom.ID) bool {
	return rdfterm.IsLiteral(r.Atoms.GetBytes(id))
}
