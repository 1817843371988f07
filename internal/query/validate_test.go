package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fluxgear/internal/ir"
)

func TestValidate_Valid(t *testing.T) {
	q := Select{
		From:    "transactions",
		Columns: []string{"seq"},
		Filter: And{Predicates: []Predicate{
			Equals{Field: "status", Value: ir.String("ok")},
			Not{Predicate: In{Field: "event_type", Values: []ir.Value{ir.String("A")}}},
		}},
		OrderBy: []Order{{Field: "status"}},
	}
	assert.Empty(t, Validate(q, testSchema))
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name  string
		query Query
		want  string
	}{
		{"nil_query", nil, "nil query"},
		{"nil_pointer", (*Select)(nil), "nil query"},
		{"unknown_table", Select{From: "steps", Columns: []string{"seq"}}, `unknown table "steps"`},
		{"no_columns", Select{From: "transactions"}, "names no columns"},
		{"unknown_column", Select{From: "transactions", Columns: []string{"payload"}}, "unknown column transactions.payload"},
		{
			"unknown_order",
			Select{From: "transactions", Columns: []string{"seq"}, OrderBy: []Order{{Field: "x"}}},
			"unknown order column transactions.x",
		},
		{
			"unknown_filter_column",
			Select{From: "transactions", Columns: []string{"seq"}, Filter: Equals{Field: "x", Value: ir.Int(1)}},
			"unknown column transactions.x",
		},
		{
			"null_value",
			Select{From: "transactions", Columns: []string{"seq"}, Filter: Equals{Field: "status", Value: ir.Null{}}},
			"null cannot be compared",
		},
		{
			"array_value",
			Select{From: "transactions", Columns: []string{"seq"}, Filter: In{Field: "status", Values: []ir.Value{ir.Array{}}}},
			"cannot be used as a parameter",
		},
		{
			"empty_not",
			Select{From: "transactions", Columns: []string{"seq"}, Filter: Not{}},
			"NOT without a predicate",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := Validate(tt.query, testSchema)
			require.NotEmpty(t, errs)
			assert.ErrorIs(t, errs[0], ErrInvalidQuery)
			assert.Contains(t, errs[0].Error(), tt.want)
		})
	}
}

func TestValidate_CollectsEveryError(t *testing.T) {
	q := Select{
		From:    "transactions",
		Columns: []string{"a", "b"},
		Filter:  Equals{Field: "c", Value: ir.Int(1)},
	}
	assert.Len(t, Validate(q, testSchema), 3)
}

func TestValidate_TableWithoutKey(t *testing.T) {
	schema := Schema{"loose": {Columns: []string{"v"}}}

	errs := Validate(Select{From: "loose", Columns: []string{"v"}}, schema)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "no key")

	assert.Empty(t, Validate(Select{From: "loose", Columns: []string{"v"}, OrderBy: []Order{{Field: "v"}}}, schema))
}
