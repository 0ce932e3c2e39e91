// Package naming provides the strategy deriving table, column and
// constraint names from entity types and property names.
package naming

import (
	"reflect"
	"strings"

	"github.com/go-openapi/inflect"
)

var rules = ruleset()

// ruleset returns the inflection rules, with acronyms common in Go names.
func ruleset() *inflect.Ruleset {
	rules := inflect.NewDefaultRuleset()
	for _, w := range []string{"ID", "UUID", "URL", "API", "HTTP", "JSON", "SQL", "XML"} {
		rules.AddAcronym(w)
	}
	return rules
}

// Defaults used when a Strategy leaves an entry unset.
const (
	DefaultIndexColumn   = "idx"
	DefaultDiscriminator = "dtype"
	DefaultJoinSuffix    = "_id"
)

// Strategy derives names. Every entry is optional; unset entries fall back
// to the default rules.
type Strategy struct {
	// Table names the table of an entity type.
	Table func(entity reflect.Type) string
	// Column names the column of a property.
	Column func(property string) string
	// JoinColumn names the foreign key column added to the source table of
	// a source-owned one-to-one relation.
	JoinColumn func(property string) string
	// ReverseColumn names the foreign key column added to a target table
	// to reference the source entity.
	ReverseColumn func(source reflect.Type) string
	// AssociationTable names the association table of a many-valued relation.
	AssociationTable func(sourceTable, property string) string
	// AssociationColumn names an association table column referencing table.
	AssociationColumn func(table string) string
	// ElementTable names the table of an element collection.
	ElementTable func(sourceTable, property string) string
	// ElementColumn names the value column of an element collection.
	ElementColumn func(property string) string
	// ForeignKey names a foreign key constraint.
	ForeignKey func(table string, columns []string, refTable string) string
	// IndexColumn is the name of the index column of indexed collections.
	IndexColumn string
	// Discriminator is the name of the discriminator column.
	Discriminator string
	// JoinSuffix is appended to join column names by default.
	JoinSuffix string
}

// Default returns a strategy using only the default rules.
func Default() *Strategy { return &Strategy{} }

// TableOf returns the table name of the given entity type: the plural,
// snake-cased type name (Car -> cars).
func (s *Strategy) TableOf(t reflect.Type) string {
	if s != nil && s.Table != nil {
		return s.Table(t)
	}
	return rules.Tableize(typeName(t))
}

// ColumnOf returns the column name of a property (engineSize -> engine_size).
func (s *Strategy) ColumnOf(property string) string {
	if s != nil && s.Column != nil {
		return s.Column(property)
	}
	return Snake(property)
}

// JoinColumnOf returns the foreign key column name of a source-owned relation
// (engine -> engine_id).
func (s *Strategy) JoinColumnOf(property string) string {
	if s != nil && s.JoinColumn != nil {
		return s.JoinColumn(property)
	}
	return Snake(property) + s.joinSuffix()
}

// ReverseColumnOf returns the name of the column referencing the source
// type from a target table (Car -> car_id).
func (s *Strategy) ReverseColumnOf(source reflect.Type) string {
	if s != nil && s.ReverseColumn != nil {
		return s.ReverseColumn(source)
	}
	return Snake(typeName(source)) + s.joinSuffix()
}

// AssociationTableOf returns the association table name of a relation
// (cars, radios -> cars_radios).
func (s *Strategy) AssociationTableOf(sourceTable, property string) string {
	if s != nil && s.AssociationTable != nil {
		return s.AssociationTable(sourceTable, property)
	}
	return sourceTable + "_" + Snake(property)
}

// AssociationColumnOf returns the name of an association column referencing
// the given table (cars -> car_id).
func (s *Strategy) AssociationColumnOf(table string) string {
	if s != nil && s.AssociationColumn != nil {
		return s.AssociationColumn(table)
	}
	return rules.Singularize(table) + s.joinSuffix()
}

// ElementTableOf returns the table name of an element collection
// (cars, tags -> cars_tags).
func (s *Strategy) ElementTableOf(sourceTable, property string) string {
	if s != nil && s.ElementTable != nil {
		return s.ElementTable(sourceTable, property)
	}
	return sourceTable + "_" + Snake(property)
}

// ElementColumnOf returns the value column of an element collection
// (tags -> tag).
func (s *Strategy) ElementColumnOf(property string) string {
	if s != nil && s.ElementColumn != nil {
		return s.ElementColumn(property)
	}
	return rules.Singularize(Snake(property))
}

// ForeignKeyOf returns the name of a foreign key constraint.
func (s *Strategy) ForeignKeyOf(table string, columns []string, refTable string) string {
	if s != nil && s.ForeignKey != nil {
		return s.ForeignKey(table, columns, refTable)
	}
	return "fk_" + table + "_" + strings.Join(columns, "_") + "_" + refTable
}

// IndexColumnName returns the index column name of indexed collections.
func (s *Strategy) IndexColumnName() string {
	if s != nil && s.IndexColumn != "" {
		return s.IndexColumn
	}
	return DefaultIndexColumn
}

// DiscriminatorName returns the discriminator column name.
func (s *Strategy) DiscriminatorName() string {
	if s != nil && s.Discriminator != "" {
		return s.Discriminator
	}
	return DefaultDiscriminator
}

func (s *Strategy) joinSuffix() string {
	if s != nil && s.JoinSuffix != "" {
		return s.JoinSuffix
	}
	return DefaultJoinSuffix
}

// Merge returns a strategy using the entries of s, falling back to the
// entries of other. Either may be nil.
func (s *Strategy) Merge(other *Strategy) *Strategy {
	switch {
	case s == nil:
		return other
	case other == nil:
		return s
	}
	m := *s
	if m.Table == nil {
		m.Table = other.Table
	}
	if m.Column == nil {
		m.Column = other.Column
	}
	if m.JoinColumn == nil {
		m.JoinColumn = other.JoinColumn
	}
	if m.ReverseColumn == nil {
		m.ReverseColumn = other.ReverseColumn
	}
	if m.AssociationTable == nil {
		m.AssociationTable = other.AssociationTable
	}
	if m.AssociationColumn == nil {
		m.AssociationColumn = other.AssociationColumn
	}
	if m.ElementTable == nil {
		m.ElementTable = other.ElementTable
	}
	if m.ElementColumn == nil {
		m.ElementColumn = other.ElementColumn
	}
	if m.ForeignKey == nil {
		m.ForeignKey = other.ForeignKey
	}
	if m.IndexColumn == "" {
		m.IndexColumn = other.IndexColumn
	}
	if m.Discriminator == "" {
		m.Discriminator = other.Discriminator
	}
	if m.JoinSuffix == "" {
		m.JoinSuffix = other.JoinSuffix
	}
	return &m
}

// Snake converts a Go name to snake case (EngineSize -> engine_size).
func Snake(s string) string {
	return rules.Underscore(s)
}

// Singular returns the singular form of a word.
func Singular(s string) string {
	return rules.Singularize(s)
}

func typeName(t reflect.Type) string {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.Name()
}
