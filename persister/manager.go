package persister

import (
	"context"
	"fmt"

	"github.com/syssam/strata/dialect"
	"github.com/syssam/strata/dialect/sql"
	"github.com/syssam/strata/dialect/sql/schema"
	"github.com/syssam/strata/schema/field"
)

// InsertionManager handles the identifier of the rows a Strategy inserts.
type InsertionManager interface {
	// Prepare runs once before the entities are inserted.
	Prepare(ctx context.Context, entities []any) error
	// WritesID reports whether the identifier columns are part of the
	// insert statement.
	WritesID() bool
	// Execute runs the insert statement of one entity.
	Execute(ctx context.Context, ex dialect.ExecQuerier, insert *sql.InsertBuilder, entity any) error
	// Done runs once the rows of all entities are inserted.
	Done(entities []any)
}

// FallbackManager writes identifiers assigned elsewhere. It serves every
// table of a hierarchy except the one owning the identifier policy.
type FallbackManager struct{}

// Prepare implements InsertionManager.
func (FallbackManager) Prepare(context.Context, []any) error { return nil }

// WritesID implements InsertionManager.
func (FallbackManager) WritesID() bool { return true }

// Execute implements InsertionManager.
func (FallbackManager) Execute(ctx context.Context, ex dialect.ExecQuerier, insert *sql.InsertBuilder, _ any) error {
	query, args := insert.Query()
	return ex.Exec(ctx, query, args, nil)
}

// Done implements InsertionManager.
func (FallbackManager) Done([]any) {}

// AssignedManager writes identifiers set by the application and marks the
// entities as persisted.
type AssignedManager struct {
	FallbackManager
	Policy *field.AlreadyAssigned
}

// Done implements InsertionManager.
func (m *AssignedManager) Done(entities []any) {
	if m.Policy == nil || m.Policy.MarkPersisted == nil {
		return
	}
	for _, e := range entities {
		m.Policy.MarkPersisted(e)
	}
}

// GeneratedManager sets the identifier of new entities from the policy
// generator before inserting them.
type GeneratedManager struct {
	FallbackManager
	ID     *Identifier
	Policy *field.BeforeInsert
}

// Prepare implements InsertionManager.
func (m *GeneratedManager) Prepare(ctx context.Context, entities []any) error {
	for _, e := range entities {
		if !isZero(m.ID.ID(e)) {
			continue
		}
		v, err := m.Policy.Next(ctx)
		if err != nil {
			return fmt.Errorf("persister: generate identifier: %w", err)
		}
		if err := m.ID.SetID(e, v); err != nil {
			return err
		}
	}
	return nil
}

// DatabaseManager leaves the identifier to the database and reads the
// generated key back after each insert.
type DatabaseManager struct {
	ID     *Identifier
	Reader GeneratedKeysReader
}

// Prepare implements InsertionManager.
func (*DatabaseManager) Prepare(context.Context, []any) error { return nil }

// WritesID implements InsertionManager.
func (*DatabaseManager) WritesID() bool { return false }

// Execute implements InsertionManager.
func (m *DatabaseManager) Execute(ctx context.Context, ex dialect.ExecQuerier, insert *sql.InsertBuilder, entity any) error {
	v, err := m.Reader.Read(ctx, ex, insert, m.ID.Columns()[0])
	if err != nil {
		return err
	}
	id, err := m.ID.Assembler.Assemble([]any{v})
	if err != nil {
		return err
	}
	return m.ID.SetID(entity, id)
}

// Done implements InsertionManager.
func (*DatabaseManager) Done([]any) {}

// NewManager returns the insertion manager of the identifier policy.
func NewManager(id *Identifier, reader GeneratedKeysReader) InsertionManager {
	switch p := id.Policy.(type) {
	case *field.BeforeInsert:
		return &GeneratedManager{ID: id, Policy: p}
	case *field.AfterInsert:
		return &DatabaseManager{ID: id, Reader: reader}
	case *field.AlreadyAssigned:
		return &AssignedManager{Policy: p}
	}
	return FallbackManager{}
}

// GeneratedKeysReader executes an insert statement and returns the key
// generated by the database for the given column.
type GeneratedKeysReader interface {
	Read(ctx context.Context, ex dialect.ExecQuerier, insert *sql.InsertBuilder, column *schema.Column) (any, error)
}

// LastInsertIDReader reads the key from the statement result. It serves
// MySQL and SQLite.
type LastInsertIDReader struct{}

// Read implements GeneratedKeysReader.
func (LastInsertIDReader) Read(ctx context.Context, ex dialect.ExecQuerier, insert *sql.InsertBuilder, _ *schema.Column) (any, error) {
	var res sql.Result
	query, args := insert.Query()
	if err := ex.Exec(ctx, query, args, &res); err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("persister: read last insert id: %w", err)
	}
	return id, nil
}

// ReturningReader reads the key with a RETURNING clause. It serves
// PostgreSQL.
type ReturningReader struct{}

// Read implements GeneratedKeysReader.
func (ReturningReader) Read(ctx context.Context, ex dialect.ExecQuerier, insert *sql.InsertBuilder, column *schema.Column) (any, error) {
	rows := &sql.Rows{}
	query, args := insert.Returning(column.Name).Query()
	if err := ex.Query(ctx, query, args, rows); err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("persister: no key returned for %s", column.Name)
	}
	var v any
	if err := rows.Scan(&v); err != nil {
		return nil, err
	}
	return v, rows.Close()
}

// DefaultKeysReader returns the keys reader of the dialect.
func DefaultKeysReader(name string) GeneratedKeysReader {
	if name == dialect.Postgres {
		return ReturningReader{}
	}
	return LastInsertIDReader{}
}
