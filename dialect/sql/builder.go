package sql

import (
	"strconv"
	"strings"

	"github.com/syssam/strata/dialect"
)

// Querier wraps the basic Query method that is implemented
// by the different builders in this file.
type Querier interface {
	// Query returns the query representation of the element
	// and its arguments (if any).
	Query() (string, []any)
}

// Builder is the low-level SQL string builder shared by the statement
// builders. It quotes identifiers and writes placeholders according to
// its dialect.
type Builder struct {
	sb      strings.Builder
	dialect string
	args    []any
}

// Quote quotes the given identifier. Qualified names ("t0.id") are quoted
// part by part.
func (b *Builder) Quote(ident string) string {
	q := "`"
	if b.dialect == dialect.Postgres {
		q = `"`
	}
	parts := strings.Split(ident, ".")
	for i := range parts {
		parts[i] = q + parts[i] + q
	}
	return strings.Join(parts, ".")
}

// Ident writes the quoted identifier to the builder.
func (b *Builder) Ident(ident string) *Builder {
	b.sb.WriteString(b.Quote(ident))
	return b
}

// IdentComma writes the quoted identifiers separated by commas.
func (b *Builder) IdentComma(idents ...string) *Builder {
	for i, ident := range idents {
		if i > 0 {
			b.sb.WriteString(", ")
		}
		b.Ident(ident)
	}
	return b
}

// WriteString writes a raw string to the builder.
func (b *Builder) WriteString(s string) *Builder {
	b.sb.WriteString(s)
	return b
}

// Arg writes a placeholder for the given argument and records it.
func (b *Builder) Arg(v any) *Builder {
	b.args = append(b.args, v)
	if b.dialect == dialect.Postgres {
		b.sb.WriteString("$" + strconv.Itoa(len(b.args)))
	} else {
		b.sb.WriteString("?")
	}
	return b
}

// Args writes the placeholders for the given arguments separated by commas.
func (b *Builder) Args(vs ...any) *Builder {
	for i, v := range vs {
		if i > 0 {
			b.sb.WriteString(", ")
		}
		b.Arg(v)
	}
	return b
}

// Query returns the accumulated query and its arguments.
func (b *Builder) Query() (string, []any) {
	return b.sb.String(), b.args
}

// DialectBuilder prefixes all statement builders with one dialect.
type DialectBuilder struct {
	dialect string
}

// Dialect creates a new DialectBuilder with the given dialect name.
func Dialect(name string) *DialectBuilder {
	return &DialectBuilder{dialect: name}
}

// Insert creates an InsertBuilder for the configured dialect.
func (d *DialectBuilder) Insert(table string) *InsertBuilder {
	return &InsertBuilder{dialect: d.dialect, table: table}
}

// Update creates an UpdateBuilder for the configured dialect.
func (d *DialectBuilder) Update(table string) *UpdateBuilder {
	return &UpdateBuilder{dialect: d.dialect, table: table}
}

// Delete creates a DeleteBuilder for the configured dialect.
func (d *DialectBuilder) Delete(table string) *DeleteBuilder {
	return &DeleteBuilder{dialect: d.dialect, table: table}
}

// Select creates a Selector for the configured dialect.
func (d *DialectBuilder) Select(columns ...string) *Selector {
	return &Selector{dialect: d.dialect, columns: columns}
}

// InsertBuilder is a builder for single-row `INSERT INTO` statements.
type InsertBuilder struct {
	dialect   string
	table     string
	columns   []string
	values    []any
	returning []string
}

// Set adds a column and its value to the statement.
func (i *InsertBuilder) Set(column string, v any) *InsertBuilder {
	i.columns = append(i.columns, column)
	i.values = append(i.values, v)
	return i
}

// Returning adds the `RETURNING` clause to the insert statement.
// Only Postgres renders it.
func (i *InsertBuilder) Returning(columns ...string) *InsertBuilder {
	i.returning = columns
	return i
}

// Table returns the table the statement inserts into.
func (i *InsertBuilder) Table() string { return i.table }

// Query returns the statement and its arguments.
func (i *InsertBuilder) Query() (string, []any) {
	b := &Builder{dialect: i.dialect}
	b.WriteString("INSERT INTO ").Ident(i.table)
	switch {
	case len(i.columns) > 0:
		b.WriteString(" (").IdentComma(i.columns...).WriteString(") VALUES (").Args(i.values...).WriteString(")")
	case i.dialect == dialect.MySQL:
		b.WriteString(" () VALUES ()")
	default:
		b.WriteString(" DEFAULT VALUES")
	}
	if len(i.returning) > 0 && i.dialect == dialect.Postgres {
		b.WriteString(" RETURNING ").IdentComma(i.returning...)
	}
	return b.Query()
}

// UpdateBuilder is a builder for `UPDATE` statements.
type UpdateBuilder struct {
	dialect string
	table   string
	columns []string
	values  []any
	where   *Predicate
}

// Set sets a column to the given value.
func (u *UpdateBuilder) Set(column string, v any) *UpdateBuilder {
	u.columns = append(u.columns, column)
	u.values = append(u.values, v)
	return u
}

// SetNull sets a column to NULL.
func (u *UpdateBuilder) SetNull(column string) *UpdateBuilder {
	return u.Set(column, nil)
}

// Empty reports whether the statement sets no column.
func (u *UpdateBuilder) Empty() bool { return len(u.columns) == 0 }

// Where appends a predicate to the statement. Multiple calls are joined with AND.
func (u *UpdateBuilder) Where(p *Predicate) *UpdateBuilder {
	u.where = and(u.where, p)
	return u
}

// Query returns the statement and its arguments.
func (u *UpdateBuilder) Query() (string, []any) {
	b := &Builder{dialect: u.dialect}
	b.WriteString("UPDATE ").Ident(u.table).WriteString(" SET ")
	for i, c := range u.columns {
		if i > 0 {
			b.WriteString(", ")
		}
		if u.values[i] == nil {
			b.Ident(c).WriteString(" = NULL")
			continue
		}
		b.Ident(c).WriteString(" = ").Arg(u.values[i])
	}
	if u.where != nil {
		b.WriteString(" WHERE ")
		u.where.render(b)
	}
	return b.Query()
}

// DeleteBuilder is a builder for `DELETE` statements.
type DeleteBuilder struct {
	dialect string
	table   string
	where   *Predicate
}

// Where appends a predicate to the statement. Multiple calls are joined with AND.
func (d *DeleteBuilder) Where(p *Predicate) *DeleteBuilder {
	d.where = and(d.where, p)
	return d
}

// Query returns the statement and its arguments.
func (d *DeleteBuilder) Query() (string, []any) {
	b := &Builder{dialect: d.dialect}
	b.WriteString("DELETE FROM ").Ident(d.table)
	if d.where != nil {
		b.WriteString(" WHERE ")
		d.where.render(b)
	}
	return b.Query()
}

type join struct {
	kind  string
	table string
	as    string
	on    *Predicate
}

// Selector is a builder for `SELECT` statements.
type Selector struct {
	dialect string
	columns []string
	from    string
	as      string
	joins   []join
	where   *Predicate
}

// From sets the source table of the query and its alias.
func (s *Selector) From(table, as string) *Selector {
	s.from, s.as = table, as
	return s
}

// Join appends an `INNER JOIN` clause.
func (s *Selector) Join(table, as string, on *Predicate) *Selector {
	s.joins = append(s.joins, join{kind: "JOIN", table: table, as: as, on: on})
	return s
}

// LeftJoin appends a `LEFT JOIN` clause.
func (s *Selector) LeftJoin(table, as string, on *Predicate) *Selector {
	s.joins = append(s.joins, join{kind: "LEFT JOIN", table: table, as: as, on: on})
	return s
}

// Where appends a predicate to the query. Multiple calls are joined with AND.
func (s *Selector) Where(p *Predicate) *Selector {
	s.where = and(s.where, p)
	return s
}

// Query returns the query and its arguments.
func (s *Selector) Query() (string, []any) {
	b := &Builder{dialect: s.dialect}
	b.WriteString("SELECT ")
	if len(s.columns) == 0 {
		b.WriteString("*")
	} else {
		b.IdentComma(s.columns...)
	}
	b.WriteString(" FROM ").Ident(s.from)
	if s.as != "" {
		b.WriteString(" AS ").Ident(s.as)
	}
	for _, j := range s.joins {
		b.WriteString(" " + j.kind + " ").Ident(j.table)
		if j.as != "" {
			b.WriteString(" AS ").Ident(j.as)
		}
		if j.on != nil {
			b.WriteString(" ON ")
			j.on.render(b)
		}
	}
	if s.where != nil {
		b.WriteString(" WHERE ")
		s.where.render(b)
	}
	return b.Query()
}

func and(p1, p2 *Predicate) *Predicate {
	switch {
	case p1 == nil:
		return p2
	case p2 == nil:
		return p1
	default:
		return And(p1, p2)
	}
}

var (
	_ Querier = (*InsertBuilder)(nil)
	_ Querier = (*UpdateBuilder)(nil)
	_ Querier = (*DeleteBuilder)(nil)
	_ Querier = (*Selector)(nil)
)
