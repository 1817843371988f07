package query

import (
	"errors"
	"fmt"

	"github.com/roach88/fluxgear/internal/ir"
)

// ErrInvalidQuery wraps every validation failure.
var ErrInvalidQuery = errors.New("invalid query")

// Validate checks q against schema and returns every problem found.
// A nil slice means q compiles.
func Validate(q Query, schema Schema) []error {
	v := &validator{schema: schema}
	v.query(q)
	return v.errs
}

type validator struct {
	schema Schema
	errs   []error
}

func (v *validator) fail(format string, args ...any) {
	v.errs = append(v.errs, fmt.Errorf("%w: %s", ErrInvalidQuery, fmt.Sprintf(format, args...)))
}

func (v *validator) query(q Query) {
	switch query := q.(type) {
	case nil:
		v.fail("nil query")
	case Select:
		v.selectNode(query)
	case *Select:
		if query == nil {
			v.fail("nil query")
			return
		}
		v.selectNode(*query)
	default:
		v.fail("unsupported query type %T", q)
	}
}

func (v *validator) selectNode(sel Select) {
	table, ok := v.schema[sel.From]
	if !ok {
		v.fail("unknown table %q", sel.From)
		return
	}

	if len(sel.Columns) == 0 {
		v.fail("select from %s names no columns", sel.From)
	}
	for _, c := range sel.Columns {
		if !table.has(c) {
			v.fail("unknown column %s.%s", sel.From, c)
		}
	}
	for _, o := range sel.OrderBy {
		if !table.has(o.Field) {
			v.fail("unknown order column %s.%s", sel.From, o.Field)
		}
	}
	if len(sel.OrderBy) == 0 && len(table.Key) == 0 {
		v.fail("table %s has no key and the query no ORDER BY", sel.From)
	}

	v.predicate(sel.From, table, sel.Filter)
}

func (v *validator) predicate(from string, table Table, p Predicate) {
	switch pred := p.(type) {
	case nil:
	case Equals:
		v.field(from, table, pred.Field)
		v.value(pred.Field, pred.Value)
	case In:
		v.field(from, table, pred.Field)
		for _, val := range pred.Values {
			v.value(pred.Field, val)
		}
	case And:
		for _, sub := range pred.Predicates {
			v.predicate(from, table, sub)
		}
	case Not:
		if pred.Predicate == nil {
			v.fail("NOT without a predicate")
			return
		}
		v.predicate(from, table, pred.Predicate)
	default:
		v.fail("unsupported predicate type %T", p)
	}
}

func (v *validator) field(from string, table Table, name string) {
	if !table.has(name) {
		v.fail("unknown column %s.%s", from, name)
	}
}

func (v *validator) value(field string, val ir.Value) {
	if _, err := param(val); err != nil {
		v.fail("%s: %v", field, err)
	}
}
