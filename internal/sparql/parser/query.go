// Package parser implements the SPARQL parser: a recursive-descent
// parser that records token offsets into the source string and writes
// flat pattern slots into a pattern.Buffer instead of building a pointer
// AST, covering property paths, RDF-star reification, SPARQL 1.1 Update,
// and the bitemporal AS OF / DURING / ALL VERSIONS suffixes.
package parser

import "github.com/mercurydb/mercury/internal/pattern"

// QueryType tags the kind of query or update parsed.
type QueryType int

const (
	QuerySelect QueryType = iota
	QueryAsk
	QueryConstruct
	QueryDescribe
	QueryUpdate
)

// Temporal tags which bitemporal mode a query runs under.
type Temporal int

const (
	TemporalNone Temporal = iota
	TemporalAsOf
	TemporalDuring
	TemporalAllVersions
)

// SolutionModifier carries GROUP BY/HAVING/ORDER BY/LIMIT/OFFSET.
type SolutionModifier struct {
	GroupBy []GroupCondition
	Having  []FilterSpan
	OrderBy []OrderCondition
	Limit   int // -1 means unset
	Offset  int
}

// GroupCondition is one GROUP BY expression (may be a bare variable).
type GroupCondition struct {
	ExprStart, ExprLen int32
	Var                pattern.VarHash // 0 if the group key is an expression, not a bare var
}

// OrderCondition is one ORDER BY expression with direction.
type OrderCondition struct {
	ExprStart, ExprLen int32
	Descending         bool
}

// FilterSpan is a verbatim filter expression source span, re-parsed by
// FilterEvaluator, which re-parses the verbatim text at evaluation time.
type FilterSpan struct {
	Start, Len int32
}

// Projection is one SELECT projection item: either a bare variable or an
// (expr AS ?var) computed projection. VarName/ExprAliasName carry the
// lexical name alongside the hash so a result serializer can print a
// "?name" header without needing to invert HashVar.
type Projection struct {
	Var          pattern.VarHash
	VarName      string
	IsExpr       bool
	ExprStart    int32
	ExprLen      int32
	ExprAliasVar  pattern.VarHash
	ExprAliasName string
}

// Query is the parsed header accompanying a pattern.Buffer.
type Query struct {
	Type       QueryType
	Source     string
	Prefixes   map[string]string
	BaseURI    string
	SelectAll  bool
	Distinct   bool
	Reduced    bool
	Projection []Projection
	Dataset    []string // FROM / FROM NAMED IRIs
	WithGraph  string

	Body *pattern.Buffer

	// Generated holds the text of parser-synthesized terms (anonymous
	// blank nodes, RDF-star reifiers and their vocabulary IRIs, fresh
	// path-chain variables). A Term with Start < 0 reads
	// Generated[-Start-1] instead of Source.
	Generated []string

	// CONSTRUCT queries parse their template into the same Buffer as the
	// WHERE clause; [ConstructStart, ConstructEnd) marks the template's
	// slots so execution can tell them apart from the pattern slots.
	ConstructStart int32
	ConstructEnd   int32

	// WhereStart is the index of the first WHERE-clause slot in Body
	// (non-zero only for CONSTRUCT, whose template slots precede it).
	WhereStart int32

	Modifier SolutionModifier

	Temporal     Temporal
	TemporalExpr FilterSpan // AS OF expr, or DURING's first bound
	TemporalTo   FilterSpan // DURING's second bound

	Update *Update
}
