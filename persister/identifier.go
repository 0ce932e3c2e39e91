package persister

import (
	"fmt"
	"reflect"

	"github.com/syssam/strata/dialect/sql"
	"github.com/syssam/strata/dialect/sql/schema"
	"github.com/syssam/strata/schema/field"
)

// IDAssembler converts between an identifier value and the values of the
// columns holding it.
type IDAssembler interface {
	// Columns returns the identifier columns.
	Columns() []*schema.Column
	// Values returns the column values of the identifier, in column order.
	Values(id any) ([]any, error)
	// Assemble builds an identifier from column values. It returns nil
	// when every value is nil.
	Assemble(values []any) (any, error)
	// Bind returns the same assembler over other columns, e.g. the
	// propagated key of a joined table or a foreign key.
	Bind(columns []*schema.Column) IDAssembler
}

// Simple is the assembler of a single column identifier.
type Simple struct {
	column *schema.Column
	typ    reflect.Type
}

// NewSimple returns the assembler of identifiers of type t stored in c.
func NewSimple(c *schema.Column, t reflect.Type) *Simple {
	return &Simple{column: c, typ: t}
}

// Columns implements IDAssembler.
func (s *Simple) Columns() []*schema.Column { return []*schema.Column{s.column} }

// Values implements IDAssembler.
func (s *Simple) Values(id any) ([]any, error) {
	return []any{field.Value(id)}, nil
}

// Assemble implements IDAssembler.
func (s *Simple) Assemble(values []any) (any, error) {
	if len(values) != 1 {
		return nil, fmt.Errorf("persister: assemble %s: got %d values", s.column.Name, len(values))
	}
	return field.Convert(values[0], s.typ)
}

// Bind implements IDAssembler.
func (s *Simple) Bind(columns []*schema.Column) IDAssembler {
	return &Simple{column: columns[0], typ: s.typ}
}

// Component is one property of a composite key mapped to a column.
type Component struct {
	Accessor *field.Accessor
	Column   *schema.Column
}

// Composite is the assembler of identifiers made of a key struct (or a
// pointer to one) whose components are stored in one column each.
type Composite struct {
	typ        reflect.Type
	components []Component
}

// NewComposite returns the assembler of keys of type t.
func NewComposite(t reflect.Type, components ...Component) *Composite {
	return &Composite{typ: t, components: components}
}

// Columns implements IDAssembler.
func (c *Composite) Columns() []*schema.Column {
	cs := make([]*schema.Column, len(c.components))
	for i, comp := range c.components {
		cs[i] = comp.Column
	}
	return cs
}

// Values implements IDAssembler.
func (c *Composite) Values(id any) ([]any, error) {
	vs := make([]any, len(c.components))
	if field.IsNil(id) {
		return vs, nil
	}
	key := addressable(id)
	for i, comp := range c.components {
		vs[i] = field.Value(comp.Accessor.Get(key))
	}
	return vs, nil
}

// Assemble implements IDAssembler.
func (c *Composite) Assemble(values []any) (any, error) {
	if len(values) != len(c.components) {
		return nil, fmt.Errorf("persister: assemble %s: got %d values", c.typ, len(values))
	}
	if allNil(values) {
		return nil, nil
	}
	elem := c.typ
	if elem.Kind() == reflect.Pointer {
		elem = elem.Elem()
	}
	key := reflect.New(elem)
	for i, comp := range c.components {
		if err := comp.Accessor.Set(key.Interface(), values[i]); err != nil {
			return nil, err
		}
	}
	if c.typ.Kind() == reflect.Pointer {
		return key.Interface(), nil
	}
	return key.Elem().Interface(), nil
}

// Bind implements IDAssembler.
func (c *Composite) Bind(columns []*schema.Column) IDAssembler {
	comps := make([]Component, len(c.components))
	for i, comp := range c.components {
		comps[i] = Component{Accessor: comp.Accessor, Column: columns[i]}
	}
	return &Composite{typ: c.typ, components: comps}
}

// addressable returns a pointer to the key struct, copying values.
func addressable(id any) any {
	rv := reflect.ValueOf(id)
	if rv.Kind() == reflect.Pointer {
		return id
	}
	p := reflect.New(rv.Type())
	p.Elem().Set(rv)
	return p.Interface()
}

// Identifier is the identification of an entity hierarchy bound to the
// primary key of one table.
type Identifier struct {
	Accessor  *field.Accessor
	Assembler IDAssembler
	Policy    field.Policy
}

// Bind returns the identifier bound to other columns.
func (i *Identifier) Bind(columns []*schema.Column) *Identifier {
	return &Identifier{Accessor: i.Accessor, Assembler: i.Assembler.Bind(columns), Policy: i.Policy}
}

// Columns returns the bound columns.
func (i *Identifier) Columns() []*schema.Column { return i.Assembler.Columns() }

// ColumnNames returns the names of the bound columns.
func (i *Identifier) ColumnNames() []string {
	cs := i.Columns()
	names := make([]string, len(cs))
	for j, c := range cs {
		names[j] = c.Name
	}
	return names
}

// ID returns the identifier of the entity.
func (i *Identifier) ID(entity any) any { return i.Accessor.Get(entity) }

// SetID sets the identifier of the entity.
func (i *Identifier) SetID(entity, id any) error { return i.Accessor.Set(entity, id) }

// Values returns the column values of the entity identifier.
func (i *Identifier) Values(entity any) ([]any, error) {
	return i.Assembler.Values(i.ID(entity))
}

// IsNew reports whether the entity was never stored. The second result is
// false when the policy cannot tell, in which case the database decides.
func (i *Identifier) IsNew(entity any) (isNew, known bool) {
	id := i.ID(entity)
	if p, ok := i.Policy.(*field.AlreadyAssigned); ok {
		if p.IsPersisted == nil {
			return false, false
		}
		return !p.IsPersisted(entity), true
	}
	return isZero(id), true
}

// Predicate returns the predicate matching the rows of the given
// identifiers, using qualify to name the columns.
func (i *Identifier) Predicate(ids []any, qualify func(string) string) (*sql.Predicate, error) {
	names := i.ColumnNames()
	if qualify != nil {
		for j := range names {
			names[j] = qualify(names[j])
		}
	}
	tuples := make([][]any, 0, len(ids))
	for _, id := range ids {
		vs, err := i.Assembler.Values(id)
		if err != nil {
			return nil, err
		}
		tuples = append(tuples, vs)
	}
	return sql.TupleIn(names, tuples), nil
}

// key returns a comparable map key of an identifier value.
func key(id any) any {
	if field.IsNil(id) {
		return nil
	}
	rv := reflect.ValueOf(id)
	for rv.Kind() == reflect.Pointer {
		rv = rv.Elem()
	}
	if rv.Comparable() {
		return rv.Interface()
	}
	return fmt.Sprintf("%#v", rv.Interface())
}

func isZero(v any) bool {
	if field.IsNil(v) {
		return true
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		rv = rv.Elem()
	}
	return rv.IsZero()
}

func allNil(vs []any) bool {
	for _, v := range vs {
		if v != nil {
			return false
		}
	}
	return true
}
