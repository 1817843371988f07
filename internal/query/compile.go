package query

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/fluxgear/internal/ir"
)

// Compile validates q and converts it to SQL text and its arguments.
func Compile(q Query, schema Schema) (string, []any, error) {
	if errs := Validate(q, schema); len(errs) > 0 {
		return "", nil, errors.Join(errs...)
	}

	var sel Select
	switch query := q.(type) {
	case Select:
		sel = query
	case *Select:
		sel = *query
	}
	table := schema[sel.From]

	var b strings.Builder
	var args []any

	b.WriteString("SELECT ")
	b.WriteString(strings.Join(sel.Columns, ", "))
	b.WriteString(" FROM ")
	b.WriteString(sel.From)

	if sel.Filter != nil {
		where, whereArgs, err := compilePredicate(sel.Filter)
		if err != nil {
			return "", nil, fmt.Errorf("compile filter: %w", err)
		}
		b.WriteString(" WHERE ")
		b.WriteString(where)
		args = whereArgs
	}

	b.WriteString(" ORDER BY ")
	b.WriteString(orderClause(sel.OrderBy, table))

	return b.String(), args, nil
}

// orderClause always yields a total order: the requested terms followed by
// any key column they did not mention.
func orderClause(order []Order, table Table) string {
	seen := map[string]bool{}
	var parts []string
	add := func(field string, desc bool) {
		if seen[field] {
			return
		}
		seen[field] = true
		term := field
		if table.isText(field) {
			term += " COLLATE BINARY"
		}
		if desc {
			term += " DESC"
		} else {
			term += " ASC"
		}
		parts = append(parts, term)
	}
	for _, o := range order {
		add(o.Field, o.Desc)
	}
	for _, k := range table.Key {
		add(k, false)
	}
	return strings.Join(parts, ", ")
}

func compilePredicate(p Predicate) (string, []any, error) {
	switch pred := p.(type) {
	case Equals:
		arg, err := param(pred.Value)
		if err != nil {
			return "", nil, err
		}
		return pred.Field + " = ?", []any{arg}, nil

	case In:
		if len(pred.Values) == 0 {
			return "1 = 0", nil, nil
		}
		args := make([]any, len(pred.Values))
		marks := make([]string, len(pred.Values))
		for i, v := range pred.Values {
			arg, err := param(v)
			if err != nil {
				return "", nil, err
			}
			args[i] = arg
			marks[i] = "?"
		}
		return pred.Field + " IN (" + strings.Join(marks, ", ") + ")", args, nil

	case And:
		if len(pred.Predicates) == 0 {
			return "1 = 1", nil, nil
		}
		parts := make([]string, 0, len(pred.Predicates))
		var args []any
		for _, sub := range pred.Predicates {
			text, subArgs, err := compilePredicate(sub)
			if err != nil {
				return "", nil, err
			}
			if _, nested := sub.(And); nested {
				text = "(" + text + ")"
			}
			parts = append(parts, text)
			args = append(args, subArgs...)
		}
		return strings.Join(parts, " AND "), args, nil

	case Not:
		text, args, err := compilePredicate(pred.Predicate)
		if err != nil {
			return "", nil, err
		}
		return "NOT (" + text + ")", args, nil

	default:
		return "", nil, fmt.Errorf("unsupported predicate type: %T", p)
	}
}

// param converts a value to a driver argument. Booleans become 0 or 1 to
// match the INTEGER flag columns.
func param(v ir.Value) (any, error) {
	switch val := v.(type) {
	case ir.String:
		return string(val), nil
	case ir.Int:
		return int64(val), nil
	case ir.Bool:
		if val {
			return int64(1), nil
		}
		return int64(0), nil
	case nil, ir.Null:
		return nil, errors.New("null cannot be compared with =")
	case ir.Array, ir.Object:
		return nil, fmt.Errorf("%T cannot be used as a parameter", v)
	default:
		return nil, fmt.Errorf("unsupported value type %T", v)
	}
}
