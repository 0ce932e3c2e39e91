package sqlgraph

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"

	"github.com/syssam/strata"
)

// WrapConstraint wraps constraint violations reported by the database in a
// strata.ConstraintError. Other errors are returned unchanged.
func WrapConstraint(err error) error {
	if err == nil || strata.IsConstraintError(err) || !IsConstraintError(err) {
		return err
	}
	return strata.NewConstraintError(err.Error(), err)
}

// IsConstraintError returns true if the error resulted from a database constraint violation.
func IsConstraintError(err error) bool {
	return strata.IsConstraintError(err) ||
		IsUniqueConstraintError(err) ||
		IsForeignKeyConstraintError(err) ||
		IsCheckConstraintError(err)
}

// sqlStateError is an interface for errors that provide SQLSTATE codes.
// Implemented by: pgx and other PostgreSQL drivers.
type sqlStateError interface {
	SQLState() string
}

// PostgreSQL SQLSTATE codes for constraint violations (Class 23).
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
)

// MySQL error numbers for constraint violations.
const (
	mysqlDuplicateEntry         = 1062
	mysqlForeignKeyParent       = 1451 // Cannot delete or update a parent row
	mysqlForeignKeyChild        = 1452 // Cannot add or update a child row
	mysqlCheckConstraintViolate = 3819
)

// IsUniqueConstraintError reports if the error resulted from a DB uniqueness constraint violation.
// e.g. duplicate primary key of an association row.
func IsUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if hasState(err, pgUniqueViolation) || hasNumber(err, mysqlDuplicateEntry) {
		return true
	}
	// Fallback to string matching for drivers without typed errors.
	return containsAny(err.Error(),
		"Error 1062",                 // MySQL
		"violates unique constraint", // Postgres
		"UNIQUE constraint failed",   // SQLite
	)
}

// IsForeignKeyConstraintError reports if the error resulted from a database foreign-key constraint violation.
// e.g. parent row does not exist.
func IsForeignKeyConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if hasState(err, pgForeignKeyViolation) || hasNumber(err, mysqlForeignKeyParent, mysqlForeignKeyChild) {
		return true
	}
	return containsAny(err.Error(),
		"Error 1451",                      // MySQL (Cannot delete or update a parent row)
		"Error 1452",                      // MySQL (Cannot add or update a child row)
		"violates foreign key constraint", // Postgres
		"FOREIGN KEY constraint failed",   // SQLite
	)
}

// IsCheckConstraintError reports if the error resulted from a database check constraint violation.
func IsCheckConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if hasState(err, pgCheckViolation) || hasNumber(err, mysqlCheckConstraintViolate) {
		return true
	}
	return containsAny(err.Error(),
		"Error 3819",                // MySQL
		"violates check constraint", // Postgres
		"CHECK constraint failed",   // SQLite
	)
}

// hasState reports whether err carries the given PostgreSQL SQLSTATE code.
func hasState(err error, code string) bool {
	var pe *pq.Error
	if errors.As(err, &pe) && string(pe.Code) == code {
		return true
	}
	if e, ok := asError[sqlStateError](err); ok {
		return e.SQLState() == code
	}
	return false
}

// hasNumber reports whether err is a MySQL error with one of the given numbers.
func hasNumber(err error, numbers ...uint16) bool {
	var me *mysql.MySQLError
	if !errors.As(err, &me) {
		return false
	}
	for _, n := range numbers {
		if me.Number == n {
			return true
		}
	}
	return false
}

// asError attempts to extract an error implementing interface T from the error chain.
func asError[T any](err error) (T, bool) {
	var target T
	for err != nil {
		if e, ok := err.(T); ok {
			return e, true
		}
		err = errors.Unwrap(err)
	}
	return target, false
}

// containsAny returns true if s contains any of the substrings.
func containsAny(s string, substrings ...string) bool {
	for _, sub := range substrings {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
