// Package query builds parameterized, deterministically ordered SQL for the
// journal tables.
//
// Queries are small trees: a Select over one table with an optional
// Predicate filter. Compile turns a tree into SQL text plus arguments.
//
// # Rules
//
//   - Values are never interpolated. Every literal becomes a ? parameter.
//   - Every query has an ORDER BY. A Select without OrderBy is ordered by
//     the table's key from the Schema, so result order never depends on
//     SQLite's storage layout.
//   - Text keys are compared with COLLATE BINARY.
//   - Tables and columns must appear in the Schema; identifiers are never
//     taken from user input unchecked.
//
// Example:
//
//	q := query.Select{
//		From:    "transactions",
//		Columns: []string{"seq", "event_type"},
//		Filter: query.And{Predicates: []query.Predicate{
//			query.Equals{Field: "session_id", Value: ir.String("s-1")},
//			query.Equals{Field: "status", Value: ir.String("failed")},
//		}},
//	}
//	text, args, err := query.Compile(q, schema)
//	// SELECT seq, event_type FROM transactions
//	// WHERE session_id = ? AND status = ? ORDER BY seq ASC
package query
