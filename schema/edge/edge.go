package edge

import (
	"github.com/syssam/strata/dialect/sqlschema"
	"github.com/syssam/strata/schema"
	"github.com/syssam/strata/schema/field"
	"github.com/syssam/strata/schema/mixin"
)

// Mode is the cascade mode of a relation.
type Mode int

// Cascade modes.
const (
	All Mode = iota
	AllOrphanRemoval
	AssociationOnly
	ReadOnly
)

var modeNames = [...]string{
	All:              "ALL",
	AllOrphanRemoval: "ALL_ORPHAN_REMOVAL",
	AssociationOnly:  "ASSOCIATION_ONLY",
	ReadOnly:         "READ_ONLY",
}

// String returns the mode name.
func (m Mode) String() string {
	if m >= 0 && int(m) < len(modeNames) {
		return modeNames[m]
	}
	return "UNKNOWN"
}

// PersistsTargets reports whether targets are inserted, updated and deleted
// along with the source.
func (m Mode) PersistsTargets() bool {
	return m == All || m == AllOrphanRemoval
}

// OneDescriptor describes a one-to-one relation.
type OneDescriptor struct {
	Accessor      *field.Accessor
	Target        *schema.Entity
	Mode          Mode
	Mandatory     bool
	Column        string
	MappedBy      *field.Accessor
	ReverseColumn string
	Annotation    sqlschema.Annotation
}

// TargetOwned reports whether the foreign key lives on the target table.
func (d *OneDescriptor) TargetOwned() bool {
	return d.MappedBy != nil || d.ReverseColumn != ""
}

// OneBuilder is the builder of one-to-one relations.
type OneBuilder struct {
	desc *OneDescriptor
}

// One returns a one-to-one relation held by the given property.
func One(a *field.Accessor, target *schema.Entity) *OneBuilder {
	return &OneBuilder{desc: &OneDescriptor{Accessor: a, Target: target}}
}

// Cascade sets the cascade mode. It defaults to All.
func (b *OneBuilder) Cascade(m Mode) *OneBuilder {
	b.desc.Mode = m
	return b
}

// Mandatory makes the relation non-nullable.
func (b *OneBuilder) Mandatory() *OneBuilder {
	b.desc.Mandatory = true
	return b
}

// JoinColumn sets the name of the source join column.
func (b *OneBuilder) JoinColumn(name string) *OneBuilder {
	b.desc.Column = name
	return b
}

// MappedBy sets the target property pointing back to the source and moves
// the foreign key to the target table.
func (b *OneBuilder) MappedBy(a *field.Accessor) *OneBuilder {
	b.desc.MappedBy = a
	return b
}

// ReverseColumn sets the target column referencing the source.
func (b *OneBuilder) ReverseColumn(name string) *OneBuilder {
	b.desc.ReverseColumn = name
	return b
}

// Annotations adds SQL annotations to the relation foreign key.
func (b *OneBuilder) Annotations(as ...sqlschema.Annotation) *OneBuilder {
	b.desc.Annotation = sqlschema.Merge(append([]sqlschema.Annotation{b.desc.Annotation}, as...)...)
	return b
}

// PropertyName implements schema.Relation.
func (b *OneBuilder) PropertyName() string { return b.desc.Accessor.Name() }

// Descriptor returns the relation descriptor.
func (b *OneBuilder) Descriptor() *OneDescriptor { return b.desc }

// ManyDescriptor describes a one-to-many relation.
type ManyDescriptor struct {
	Accessor         *field.Many
	Target           *schema.Entity
	Mode             Mode
	MappedBy         *field.Accessor
	ReverseColumn    string
	AssociationTable string
	Indexed          bool
	IndexColumn      string
	Annotation       sqlschema.Annotation
}

// UsesAssociationTable reports whether the relation is stored in an
// association table rather than in a column of the target table.
func (d *ManyDescriptor) UsesAssociationTable() bool {
	return d.MappedBy == nil && d.ReverseColumn == ""
}

// ManyBuilder is the builder of one-to-many relations.
type ManyBuilder struct {
	desc *ManyDescriptor
}

// Many returns a one-to-many relation held by the given collection.
func Many(a *field.Many, target *schema.Entity) *ManyBuilder {
	return &ManyBuilder{desc: &ManyDescriptor{Accessor: a, Target: target}}
}

// Cascade sets the cascade mode. It defaults to All.
func (b *ManyBuilder) Cascade(m Mode) *ManyBuilder {
	b.desc.Mode = m
	return b
}

// MappedBy sets the target property pointing back to the source and stores
// the relation in a target column.
func (b *ManyBuilder) MappedBy(a *field.Accessor) *ManyBuilder {
	b.desc.MappedBy = a
	return b
}

// ReverseColumn sets the target column referencing the source.
func (b *ManyBuilder) ReverseColumn(name string) *ManyBuilder {
	b.desc.ReverseColumn = name
	return b
}

// AssociationTable sets the name of the association table.
func (b *ManyBuilder) AssociationTable(name string) *ManyBuilder {
	b.desc.AssociationTable = name
	return b
}

// Indexed keeps the order of the collection in an index column.
func (b *ManyBuilder) Indexed() *ManyBuilder {
	b.desc.Indexed = true
	return b
}

// IndexColumn sets the name of the index column and makes the relation
// indexed.
func (b *ManyBuilder) IndexColumn(name string) *ManyBuilder {
	b.desc.Indexed = true
	b.desc.IndexColumn = name
	return b
}

// Annotations adds SQL annotations to the relation foreign keys.
func (b *ManyBuilder) Annotations(as ...sqlschema.Annotation) *ManyBuilder {
	b.desc.Annotation = sqlschema.Merge(append([]sqlschema.Annotation{b.desc.Annotation}, as...)...)
	return b
}

// PropertyName implements schema.Relation.
func (b *ManyBuilder) PropertyName() string { return b.desc.Accessor.Name() }

// Descriptor returns the relation descriptor.
func (b *ManyBuilder) Descriptor() *ManyDescriptor { return b.desc }

// ManyToManyDescriptor describes a many-to-many relation.
type ManyToManyDescriptor struct {
	Accessor         *field.Many
	Target           *schema.Entity
	Mode             Mode
	Reverse          *field.Many
	AssociationTable string
	Indexed          bool
	IndexColumn      string
	Annotation       sqlschema.Annotation
}

// ManyToManyBuilder is the builder of many-to-many relations.
type ManyToManyBuilder struct {
	desc *ManyToManyDescriptor
}

// ManyToMany returns a many-to-many relation held by the given collection.
func ManyToMany(a *field.Many, target *schema.Entity) *ManyToManyBuilder {
	return &ManyToManyBuilder{desc: &ManyToManyDescriptor{Accessor: a, Target: target}}
}

// Cascade sets the cascade mode. It defaults to All.
func (b *ManyToManyBuilder) Cascade(m Mode) *ManyToManyBuilder {
	b.desc.Mode = m
	return b
}

// Reverse sets the target collection holding the sources, filled when the
// relation is loaded.
func (b *ManyToManyBuilder) Reverse(m *field.Many) *ManyToManyBuilder {
	b.desc.Reverse = m
	return b
}

// AssociationTable sets the name of the association table.
func (b *ManyToManyBuilder) AssociationTable(name string) *ManyToManyBuilder {
	b.desc.AssociationTable = name
	return b
}

// Indexed keeps the order of the collection in an index column.
func (b *ManyToManyBuilder) Indexed() *ManyToManyBuilder {
	b.desc.Indexed = true
	return b
}

// IndexColumn sets the name of the index column and makes the relation
// indexed.
func (b *ManyToManyBuilder) IndexColumn(name string) *ManyToManyBuilder {
	b.desc.Indexed = true
	b.desc.IndexColumn = name
	return b
}

// Annotations adds SQL annotations to the association foreign keys.
func (b *ManyToManyBuilder) Annotations(as ...sqlschema.Annotation) *ManyToManyBuilder {
	b.desc.Annotation = sqlschema.Merge(append([]sqlschema.Annotation{b.desc.Annotation}, as...)...)
	return b
}

// PropertyName implements schema.Relation.
func (b *ManyToManyBuilder) PropertyName() string { return b.desc.Accessor.Name() }

// Descriptor returns the relation descriptor.
func (b *ManyToManyBuilder) Descriptor() *ManyToManyDescriptor { return b.desc }

// ElementsDescriptor describes a collection of values.
type ElementsDescriptor struct {
	Accessor      *field.Many
	Column        string
	Embeddable    *mixin.Mapping
	Overrides     map[string]string
	Table         string
	ReverseColumn string
	Annotation    sqlschema.Annotation
}

// ElementsBuilder is the builder of element collections.
type ElementsBuilder struct {
	desc *ElementsDescriptor
}

// Elements returns an element collection held by the given collection.
func Elements(a *field.Many) *ElementsBuilder {
	return &ElementsBuilder{desc: &ElementsDescriptor{Accessor: a}}
}

// Column sets the value column of a collection of simple values.
func (b *ElementsBuilder) Column(name string) *ElementsBuilder {
	b.desc.Column = name
	return b
}

// Embedded stores the elements as embedded values of the given mapping.
func (b *ElementsBuilder) Embedded(m *mixin.Mapping) *ElementsBuilder {
	b.desc.Embeddable = m
	return b
}

// EmbeddedWith is like Embedded, with column names overridden per property
// path.
func (b *ElementsBuilder) EmbeddedWith(m *mixin.Mapping, overrides map[string]string) *ElementsBuilder {
	b.desc.Embeddable = m
	b.desc.Overrides = overrides
	return b
}

// OnTable sets the element table name.
func (b *ElementsBuilder) OnTable(name string) *ElementsBuilder {
	b.desc.Table = name
	return b
}

// ReverseColumn sets the element table column referencing the owner.
func (b *ElementsBuilder) ReverseColumn(name string) *ElementsBuilder {
	b.desc.ReverseColumn = name
	return b
}

// Annotations adds SQL annotations to the owner foreign key.
func (b *ElementsBuilder) Annotations(as ...sqlschema.Annotation) *ElementsBuilder {
	b.desc.Annotation = sqlschema.Merge(append([]sqlschema.Annotation{b.desc.Annotation}, as...)...)
	return b
}

// PropertyName implements schema.Relation.
func (b *ElementsBuilder) PropertyName() string { return b.desc.Accessor.Name() }

// Descriptor returns the relation descriptor.
func (b *ElementsBuilder) Descriptor() *ElementsDescriptor { return b.desc }

var (
	_ schema.Relation = (*OneBuilder)(nil)
	_ schema.Relation = (*ManyBuilder)(nil)
	_ schema.Relation = (*ManyToManyBuilder)(nil)
	_ schema.Relation = (*ElementsBuilder)(nil)
)
