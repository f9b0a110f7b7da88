package agg

import "github.com/mercurydb/mercury/internal/sparql/filter"

// valueRank orders term kinds for ORDER BY: unbound first, then IRIs,
// then blank nodes, then literals.
func valueRank(v filter.Value) int {
	switch v.Kind {
	case filter.KindUnbound:
		return 0
	case filter.KindIRI:
		return 1
	case filter.KindBlank:
		return 2
	default:
		return 3
	}
}

// compareValues is the SPARQL value comparator used by ORDER BY and
// MIN/MAX: kinds rank before values, numerics compare by value, strings
// by Unicode code point, and language-tagged literals fall back to their
// tag when lexical forms tie.
func compareValues(a, b filter.Value) int {
	if ra, rb := valueRank(a), valueRank(b); ra != rb {
		return ra - rb
	}
	if a.Kind == filter.KindNumeric && b.Kind == filter.KindNumeric {
		switch {
		case a.Num < b.Num:
			return -1
		case a.Num > b.Num:
			return 1
		default:
			return 0
		}
	}
	if a.Kind == filter.KindBoolean && b.Kind == filter.KindBoolean {
		switch {
		case !a.Bool && b.Bool:
			return -1
		case a.Bool && !b.Bool:
			return 1
		default:
			return 0
		}
	}
	if c := compareStrings(a.Lexical, b.Lexical); c != 0 {
		return c
	}
	if c := compareStrings(a.Lang, b.Lang); c != 0 {
		return c
	}
	return compareStrings(a.Datatype, b.Datatype)
}

func compareStrings(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
