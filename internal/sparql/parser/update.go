package parser

import "github.com/mercurydb/mercury/internal/pattern"

// UpdateForm tags which SPARQL 1.1 Update operation was parsed.
type UpdateForm int

const (
	UpdateInsertData UpdateForm = iota
	UpdateDeleteData
	UpdateDeleteWhere
	UpdateModify
	UpdateClear
	UpdateDrop
	UpdateCreate
	UpdateCopy
	UpdateMove
	UpdateAdd
)

// GraphScope tags CLEAR/DROP/CREATE's target.
type GraphScope int

const (
	ScopeDefault GraphScope = iota
	ScopeGraph
	ScopeNamed
	ScopeAll
)

// QuadTemplate is a source span of ground or variable quads (the
// INSERT/DELETE template, or the DATA block), re-walked at execution time
// against a BindingTable. Start/End index the shared Buffer every template
// and WHERE clause of one Update is parsed into, since UpdateExecutor must
// be able to tell one template's slots apart from its siblings'.
type QuadTemplate struct {
	Body     *pattern.Buffer
	Start    int32
	End      int32
	GraphIRI string // explicit GRAPH g {...} override inside the template, if any
	HasGraph bool
}

// Update is the parsed body of a SPARQL Update operation.
type Update struct {
	Form UpdateForm

	// INSERT DATA / DELETE DATA
	Data QuadTemplate

	// DELETE WHERE { P } and Modify
	DeleteTemplate         QuadTemplate
	InsertTemplate         QuadTemplate
	Where                  *pattern.Buffer
	WhereStart, WhereEnd   int32
	WithGraph              string

	// CLEAR/DROP/CREATE
	Scope    GraphScope
	GraphIRI string
	Silent   bool

	// COPY/MOVE/ADD
	FromGraph string
	ToGraph   string
	FromIsDefault bool
	ToIsDefault   bool
}
