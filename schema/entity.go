package schema

import (
	"reflect"

	"github.com/syssam/strata/schema/field"
	"github.com/syssam/strata/schema/index"
	"github.com/syssam/strata/schema/mixin"
	"github.com/syssam/strata/schema/naming"
)

// Relation is a relation declaration of an entity. It is implemented by the
// descriptors of the edge package.
type Relation interface {
	// PropertyName returns the name of the property holding the relation.
	PropertyName() string
}

// Entity is the mapping configuration of an entity type.
type Entity struct {
	typ       reflect.Type
	table     string
	naming    *naming.Strategy
	id        *field.Identifier
	mapping   *mixin.Mapping
	parent    *Entity
	joined    bool
	joinTable string
	relations []Relation
	poly      Polymorphism
	indexes   []*index.Descriptor
}

// New returns the configuration of the entity type T, a pointer to a struct.
func New[T any]() *Entity {
	return Of(reflect.TypeFor[T]())
}

// Of returns the configuration of the entity type t.
func Of(t reflect.Type) *Entity {
	return &Entity{typ: t, mapping: mixin.Of(t)}
}

// Identify declares the identifier of the entity hierarchy.
func (e *Entity) Identify(id *field.Identifier) *Entity {
	e.id = id
	return e
}

// Map adds property linkages.
func (e *Entity) Map(linkages ...*field.Linkage) *Entity {
	e.mapping.Add(linkages...)
	return e
}

// Embed stores the value held by the given property in the entity columns.
func (e *Entity) Embed(a *field.Accessor, m *mixin.Mapping) *Entity {
	e.mapping.Embed(a, m)
	return e
}

// EmbedWith is like Embed, with column names overridden per property path.
func (e *Entity) EmbedWith(a *field.Accessor, m *mixin.Mapping, overrides map[string]string) *Entity {
	e.mapping.EmbedWith(a, m, overrides)
	return e
}

// MapSuperclass sets the mapped superclass of the entity. Its properties are
// stored in the entity table.
func (e *Entity) MapSuperclass(m *mixin.Mapping) *Entity {
	e.mapping.Extends(m)
	return e
}

// Extends declares the parent entity. The entity shares the parent table.
func (e *Entity) Extends(parent *Entity) *Entity {
	e.parent = parent
	e.joined = false
	return e
}

// ExtendsJoined declares the parent entity, storing the entity properties in
// their own table joined to the parent one by primary key. An empty table
// name falls back to the naming strategy.
func (e *Entity) ExtendsJoined(parent *Entity, table string) *Entity {
	e.parent = parent
	e.joined = true
	e.joinTable = table
	return e
}

// OnTable sets the table of the entity.
func (e *Entity) OnTable(name string) *Entity {
	e.table = name
	return e
}

// WithNaming sets the naming strategy of the entity hierarchy.
func (e *Entity) WithNaming(s *naming.Strategy) *Entity {
	e.naming = s
	return e
}

// Relate adds relations to other entities or element collections.
func (e *Entity) Relate(rs ...Relation) *Entity {
	e.relations = append(e.relations, rs...)
	return e
}

// Polymorphic declares the subtypes of the entity.
func (e *Entity) Polymorphic(p Polymorphism) *Entity {
	e.poly = p
	return e
}

// Indexes adds indexes to the entity table.
func (e *Entity) Indexes(bs ...*index.Builder) *Entity {
	for _, b := range bs {
		e.indexes = append(e.indexes, b.Descriptor())
	}
	return e
}

// Type returns the entity type.
func (e *Entity) Type() reflect.Type { return e.typ }

// Name returns the entity type name.
func (e *Entity) Name() string { return field.TypeName(e.typ) }

// New returns a new zero instance of the entity.
func (e *Entity) New() any { return instantiate(e.typ) }

// Table returns the explicit table name, if any.
func (e *Entity) Table() string { return e.table }

// Naming returns the naming strategy, if any.
func (e *Entity) Naming() *naming.Strategy { return e.naming }

// Identifier returns the identifier declared on the entity itself.
func (e *Entity) Identifier() *field.Identifier { return e.id }

// Mapping returns the property mapping of the entity.
func (e *Entity) Mapping() *mixin.Mapping { return e.mapping }

// Parent returns the parent entity, if any.
func (e *Entity) Parent() *Entity { return e.parent }

// Joined reports whether the entity has its own table joined to its parent.
func (e *Entity) Joined() bool { return e.joined }

// JoinTable returns the explicit joined table name, if any.
func (e *Entity) JoinTable() string { return e.joinTable }

// Relations returns the relations of the entity.
func (e *Entity) Relations() []Relation { return e.relations }

// Polymorphism returns the polymorphism policy, if any.
func (e *Entity) Polymorphism() Polymorphism { return e.poly }

// IndexDescriptors returns the indexes of the entity table.
func (e *Entity) IndexDescriptors() []*index.Descriptor { return e.indexes }

// Chain returns the entity hierarchy, root first.
func (e *Entity) Chain() []*Entity {
	var chain []*Entity
	seen := make(map[*Entity]bool)
	for c := e; c != nil && !seen[c]; c = c.parent {
		seen[c] = true
		chain = append([]*Entity{c}, chain...)
	}
	return chain
}

func instantiate(t reflect.Type) any {
	if t == nil || t.Kind() != reflect.Pointer || t.Elem().Kind() != reflect.Struct {
		return nil
	}
	return reflect.New(t.Elem()).Interface()
}
