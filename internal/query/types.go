package query

import "github.com/roach88/fluxgear/internal/ir"

// Query is a node that compiles to a SELECT statement.
// The interface is sealed; only this package implements it.
type Query interface {
	queryNode()
}

// Predicate is a filter condition.
// The interface is sealed; only this package implements it.
type Predicate interface {
	predicateNode()
}

// Select reads Columns from one table.
//
//	SELECT <columns> FROM <from> [WHERE <filter>] ORDER BY <order>
type Select struct {
	From    string
	Columns []string  // required; SELECT * is not supported
	Filter  Predicate // nil = every row
	OrderBy []Order   // empty = the table's key ascending
}

func (Select) queryNode() {}

// Order is one ORDER BY term.
type Order struct {
	Field string
	Desc  bool
}

// Equals is field = value. Null values are rejected; use a dedicated
// column flag instead.
type Equals struct {
	Field string
	Value ir.Value
}

func (Equals) predicateNode() {}

// In is field IN (values...). An empty Values list matches nothing.
type In struct {
	Field  string
	Values []ir.Value
}

func (In) predicateNode() {}

// And is a conjunction. An empty list is always true.
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}

// Not negates a predicate.
type Not struct {
	Predicate Predicate
}

func (Not) predicateNode() {}
