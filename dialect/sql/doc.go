// Package sql implements the dialect.Driver interface over database/sql and
// provides the statement builders persisters render their SQL with.
//
// # Builder Types
//
//   - Builder: Low-level SQL string builder with identifier quoting
//   - Selector: SELECT query builder with inner and left joins
//   - InsertBuilder: single-row INSERT builder with RETURNING support
//   - UpdateBuilder: UPDATE statement builder with SET and WHERE clauses
//   - DeleteBuilder: DELETE statement builder with WHERE predicates
//
// # Dialect Support
//
// Identifier quoting and placeholders follow the dialect:
//
//	sql.Dialect(dialect.Postgres).Select("t0.id").From("cars", "t0").Where(sql.EQ("t0.id", 1))
//	// SELECT "t0"."id" FROM "cars" AS "t0" WHERE "t0"."id" = $1
//
//	sql.Dialect(dialect.SQLite).Delete("cars").Where(sql.In("id", 1, 2))
//	// DELETE FROM `cars` WHERE `id` IN (?, ?)
//
// # Predicates
//
//	sql.EQ("name", "john")           // name = ?
//	sql.IsNull("deleted_at")         // deleted_at IS NULL
//	sql.In("status", "a", "b")       // status IN (?, ?)
//	sql.TupleIn([]string{"a", "b"}, [][]any{{1, 2}})  // a = ? AND b = ?
//
// # Drivers
//
// Driver runs persister statements on a database/sql pool and Tx inside a
// transaction. StatsDriver counts the statements by kind and reports the
// slow ones; compiler.WithStats installs it. DebugDriver logs every
// statement through log/slog.
package sql
