// Package schema holds the physical schema model compiled from entity
// mappings: tables, columns, primary keys, foreign keys and indexes. Tables
// are only ever extended; nothing is removed once added, except when a
// failed build rolls its Set back to a checkpoint.
package schema

import (
	"fmt"
	"strings"

	"github.com/syssam/strata/dialect/sqlschema"
	"github.com/syssam/strata/schema/field"
)

// Table is a table definition.
type Table struct {
	Name        string
	Columns     []*Column
	PrimaryKey  []*Column
	ForeignKeys []*ForeignKey
	Indexes     []*Index
	columns     map[string]*Column
}

// NewTable returns a new table with the given name.
func NewTable(name string) *Table {
	return &Table{
		Name:    name,
		columns: make(map[string]*Column),
	}
}

// AddColumn adds a column to the table and returns it. Adding a column whose
// name already exists is a no-op returning the existing column.
func (t *Table) AddColumn(c *Column) *Column {
	if e, ok := t.Column(c.Name); ok {
		return e
	}
	if t.columns == nil {
		t.columns = make(map[string]*Column)
	}
	c.table = t
	t.columns[c.Name] = c
	t.Columns = append(t.Columns, c)
	return c
}

// HasColumn reports if the table contains a column with the given name.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.Column(name)
	return ok
}

// Column returns the column with the given name, if exists.
func (t *Table) Column(name string) (*Column, bool) {
	if c, ok := t.columns[name]; ok {
		return c, true
	}
	// Columns added directly to the slice.
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return nil, false
}

// SetPrimaryKey sets the primary key of the table. A table has exactly one
// primary key: setting it again with the same columns is a no-op, with other
// columns an error.
func (t *Table) SetPrimaryKey(columns ...*Column) error {
	if len(columns) == 0 {
		return fmt.Errorf("schema: empty primary key for table %q", t.Name)
	}
	if len(t.PrimaryKey) > 0 {
		if sameColumns(t.PrimaryKey, columns) {
			return nil
		}
		return fmt.Errorf("schema: table %q already has primary key (%s)", t.Name, strings.Join(columnNames(t.PrimaryKey), ", "))
	}
	for _, c := range columns {
		if c.table != t {
			return fmt.Errorf("schema: column %q does not belong to table %q", c.Name, t.Name)
		}
		c.Nullable = false
	}
	t.PrimaryKey = columns
	return nil
}

// AddForeignKey adds a foreign key to the table. Foreign keys are identified
// by their symbol; adding an existing symbol returns the existing key.
func (t *Table) AddForeignKey(fk *ForeignKey) *ForeignKey {
	for _, e := range t.ForeignKeys {
		if e.Symbol == fk.Symbol {
			return e
		}
	}
	fk.table = t
	t.ForeignKeys = append(t.ForeignKeys, fk)
	return fk
}

// AddIndex creates and adds a new index to the table from the given options.
func (t *Table) AddIndex(name string, unique bool, columns []string) *Table {
	idx := &Index{Name: name, Unique: unique}
	for _, name := range columns {
		c, ok := t.Column(name)
		if ok {
			idx.Columns = append(idx.Columns, c)
		}
	}
	t.Indexes = append(t.Indexes, idx)
	return t
}

// Index returns a table index by its name.
func (t *Table) Index(name string) (*Index, bool) {
	for _, idx := range t.Indexes {
		if idx.Name == name {
			return idx, true
		}
	}
	return nil, false
}

// PrimaryKeyNames returns the names of the primary key columns.
func (t *Table) PrimaryKeyNames() []string {
	return columnNames(t.PrimaryKey)
}

// Column is a column definition.
type Column struct {
	Name      string
	Type      field.Type
	Size      int64
	Nullable  bool
	Unique    bool
	Increment bool
	// SchemaType overrides the dialect type of the column.
	SchemaType string
	// Default is a SQL literal default value.
	Default string
	table   *Table
}

// Table returns the table owning the column.
func (c *Column) Table() *Table { return c.table }

// Qualified returns the column name qualified with the table name.
func (c *Column) Qualified() string {
	if c.table == nil {
		return c.Name
	}
	return c.table.Name + "." + c.Name
}

// ForeignKey is a foreign key from the columns of a table to the primary
// key of the referenced table.
type ForeignKey struct {
	Symbol     string
	Columns    []*Column
	RefTable   *Table
	RefColumns []*Column
	OnDelete   sqlschema.CascadeAction
	OnUpdate   sqlschema.CascadeAction
	table      *Table
}

// Table returns the table owning the foreign key.
func (fk *ForeignKey) Table() *Table { return fk.table }

// Index is an index definition.
type Index struct {
	Name    string
	Unique  bool
	Columns []*Column
}

func columnNames(columns []*Column) []string {
	names := make([]string, len(columns))
	for i, c := range columns {
		names[i] = c.Name
	}
	return names
}

func sameColumns(a, b []*Column) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Name != b[i].Name {
			return false
		}
	}
	return true
}
