package schema

import (
	"reflect"

	"github.com/syssam/strata/schema/field"
	"github.com/syssam/strata/schema/index"
	"github.com/syssam/strata/schema/mixin"
)

// Polymorphism is the polymorphism policy of an entity: one of
// *SingleTable, *JoinedTables or *TablePerClass.
type Polymorphism interface {
	// Subtypes returns the declared subtypes.
	Subtypes() []*SubEntity
	polymorphism()
}

// SingleTable stores every subtype in the root table, telling rows apart
// with a discriminator column.
type SingleTable struct {
	column string
	typ    field.Type
	subs   []*SubEntity
}

// OnSingleTable returns a single-table policy of the given subtypes.
func OnSingleTable(subs ...*SubEntity) *SingleTable {
	return &SingleTable{subs: subs}
}

// Discriminator sets the discriminator column name and type. They default
// to the naming strategy and to a string column.
func (p *SingleTable) Discriminator(column string, t field.Type) *SingleTable {
	p.column = column
	p.typ = t
	return p
}

// DiscriminatorColumn returns the explicit discriminator column, if any.
func (p *SingleTable) DiscriminatorColumn() string { return p.column }

// DiscriminatorType returns the discriminator column type.
func (p *SingleTable) DiscriminatorType() field.Type {
	if p.typ == field.TypeInvalid {
		return field.TypeString
	}
	return p.typ
}

// Subtypes implements Polymorphism.
func (p *SingleTable) Subtypes() []*SubEntity { return p.subs }

// JoinedTables stores each subtype in its own table joined to the root one
// by primary key.
type JoinedTables struct {
	subs []*SubEntity
}

// OnJoinedTables returns a joined-tables policy of the given subtypes.
func OnJoinedTables(subs ...*SubEntity) *JoinedTables {
	return &JoinedTables{subs: subs}
}

// Subtypes implements Polymorphism.
func (p *JoinedTables) Subtypes() []*SubEntity { return p.subs }

// TablePerClass stores each subtype in an independent table holding a copy
// of the root columns. Relations are not supported by this policy.
type TablePerClass struct {
	subs []*SubEntity
}

// OnTablePerClass returns a table-per-class policy of the given subtypes.
func OnTablePerClass(subs ...*SubEntity) *TablePerClass {
	return &TablePerClass{subs: subs}
}

// Subtypes implements Polymorphism.
func (p *TablePerClass) Subtypes() []*SubEntity { return p.subs }

func (*SingleTable) polymorphism()   {}
func (*JoinedTables) polymorphism()  {}
func (*TablePerClass) polymorphism() {}

// SubEntity is the configuration of a subtype of a polymorphic entity.
type SubEntity struct {
	typ           reflect.Type
	mapping       *mixin.Mapping
	relations     []Relation
	discriminator any
	table         string
	poly          Polymorphism
	indexes       []*index.Descriptor
}

// Sub returns the configuration of the subtype T, a pointer to a struct
// embedding the parent type.
func Sub[T any]() *SubEntity {
	t := reflect.TypeFor[T]()
	return &SubEntity{typ: t, mapping: mixin.Of(t)}
}

// Map adds subtype property linkages.
func (s *SubEntity) Map(linkages ...*field.Linkage) *SubEntity {
	s.mapping.Add(linkages...)
	return s
}

// Embed stores the value held by the given property in the subtype columns.
func (s *SubEntity) Embed(a *field.Accessor, m *mixin.Mapping) *SubEntity {
	s.mapping.Embed(a, m)
	return s
}

// EmbedWith is like Embed, with column names overridden per property path.
func (s *SubEntity) EmbedWith(a *field.Accessor, m *mixin.Mapping, overrides map[string]string) *SubEntity {
	s.mapping.EmbedWith(a, m, overrides)
	return s
}

// Relate adds relations of the subtype.
func (s *SubEntity) Relate(rs ...Relation) *SubEntity {
	s.relations = append(s.relations, rs...)
	return s
}

// Discriminator sets the discriminator value of the subtype in a
// single-table hierarchy. It defaults to the subtype name.
func (s *SubEntity) Discriminator(v any) *SubEntity {
	s.discriminator = v
	return s
}

// OnTable sets the table of the subtype in joined-tables and table-per-class
// hierarchies.
func (s *SubEntity) OnTable(name string) *SubEntity {
	s.table = name
	return s
}

// Polymorphic declares the subtypes of the subtype.
func (s *SubEntity) Polymorphic(p Polymorphism) *SubEntity {
	s.poly = p
	return s
}

// Indexes adds indexes to the subtype table.
func (s *SubEntity) Indexes(bs ...*index.Builder) *SubEntity {
	for _, b := range bs {
		s.indexes = append(s.indexes, b.Descriptor())
	}
	return s
}

// Type returns the subtype.
func (s *SubEntity) Type() reflect.Type { return s.typ }

// Name returns the subtype name.
func (s *SubEntity) Name() string { return field.TypeName(s.typ) }

// New returns a new zero instance of the subtype.
func (s *SubEntity) New() any { return instantiate(s.typ) }

// Mapping returns the property mapping of the subtype.
func (s *SubEntity) Mapping() *mixin.Mapping { return s.mapping }

// Relations returns the relations of the subtype.
func (s *SubEntity) Relations() []Relation { return s.relations }

// DiscriminatorValue returns the discriminator value of the subtype.
func (s *SubEntity) DiscriminatorValue() any {
	if s.discriminator == nil {
		return s.Name()
	}
	return s.discriminator
}

// Table returns the explicit table name, if any.
func (s *SubEntity) Table() string { return s.table }

// Polymorphism returns the nested polymorphism policy, if any.
func (s *SubEntity) Polymorphism() Polymorphism { return s.poly }

// IndexDescriptors returns the indexes of the subtype table.
func (s *SubEntity) IndexDescriptors() []*index.Descriptor { return s.indexes }
