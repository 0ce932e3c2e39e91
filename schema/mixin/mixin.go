package mixin

import (
	"reflect"

	"github.com/syssam/strata/schema/field"
	"github.com/syssam/strata/schema/naming"
)

// Mapping is the property configuration of a mapped superclass or an
// embeddable value.
type Mapping struct {
	typ        reflect.Type
	linkages   []*field.Linkage
	embeds     []*Embed
	superclass *Mapping
	id         *field.Identifier
	naming     *naming.Strategy
}

// New returns a mapping of the type T holding the given linkages.
func New[T any](linkages ...*field.Linkage) *Mapping {
	return Of(reflect.TypeFor[T](), linkages...)
}

// Of returns a mapping of the type t holding the given linkages.
func Of(t reflect.Type, linkages ...*field.Linkage) *Mapping {
	return &Mapping{typ: t, linkages: linkages}
}

// Add appends linkages to the mapping.
func (m *Mapping) Add(linkages ...*field.Linkage) *Mapping {
	m.linkages = append(m.linkages, linkages...)
	return m
}

// Embed stores the value held by the given property in the owner's columns.
func (m *Mapping) Embed(a *field.Accessor, sub *Mapping) *Mapping {
	return m.EmbedWith(a, sub, nil)
}

// EmbedWith is like Embed, with column names overridden per property path.
func (m *Mapping) EmbedWith(a *field.Accessor, sub *Mapping, overrides map[string]string) *Mapping {
	m.embeds = append(m.embeds, &Embed{accessor: a, mapping: sub, overrides: overrides})
	return m
}

// Extends sets the mapped superclass of the mapping.
func (m *Mapping) Extends(super *Mapping) *Mapping {
	m.superclass = super
	return m
}

// Identify declares the identifier on the mapping. Only mapped superclasses
// of the root entity of a hierarchy may declare one.
func (m *Mapping) Identify(id *field.Identifier) *Mapping {
	m.id = id
	return m
}

// WithNaming sets the naming strategy of the mapping.
func (m *Mapping) WithNaming(s *naming.Strategy) *Mapping {
	m.naming = s
	return m
}

// Type returns the mapped type.
func (m *Mapping) Type() reflect.Type { return m.typ }

// Linkages returns the direct linkages of the mapping.
func (m *Mapping) Linkages() []*field.Linkage { return m.linkages }

// Embeds returns the embedded values of the mapping.
func (m *Mapping) Embeds() []*Embed { return m.embeds }

// Superclass returns the mapped superclass, if any.
func (m *Mapping) Superclass() *Mapping { return m.superclass }

// Identifier returns the identifier declared on the mapping, if any.
func (m *Mapping) Identifier() *field.Identifier { return m.id }

// Naming returns the naming strategy of the mapping, if any.
func (m *Mapping) Naming() *naming.Strategy { return m.naming }

// Embed is an embedded value of a mapping.
type Embed struct {
	accessor  *field.Accessor
	mapping   *Mapping
	overrides map[string]string
}

// Accessor returns the property holding the embedded value.
func (e *Embed) Accessor() *field.Accessor { return e.accessor }

// Mapping returns the mapping of the embedded value.
func (e *Embed) Mapping() *Mapping { return e.mapping }

// Override returns the column override of the given property path inside
// the embedded value.
func (e *Embed) Override(path string) (string, bool) {
	c, ok := e.overrides[path]
	return c, ok
}
