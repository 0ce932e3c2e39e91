// Package sqlschema provides SQL-specific annotations for column and
// relation declarations.
//
// Import this package as:
//
//	import "github.com/syssam/strata/dialect/sqlschema"
//
// Then use sqlschema.* functions in declarations:
//
//	field.Map(carVIN).Annotations(sqlschema.Size(17), sqlschema.Default("''"))
//	edge.One(carEngine, Engine).Annotations(sqlschema.OnDelete(sqlschema.Cascade))
//
// # Cascade Actions
//
// Available constants for OnDelete and OnUpdate:
//
//	sqlschema.Cascade    - Delete/update related rows
//	sqlschema.SetNull    - Set foreign key to NULL
//	sqlschema.Restrict   - Prevent delete/update if related rows exist
//	sqlschema.SetDefault - Set foreign key to default value
//	sqlschema.NoAction   - No action (database default)
package sqlschema

// CascadeAction defines cascade behavior for foreign key constraints.
type CascadeAction string

const (
	Cascade    CascadeAction = "CASCADE"
	SetNull    CascadeAction = "SET NULL"
	Restrict   CascadeAction = "RESTRICT"
	SetDefault CascadeAction = "SET DEFAULT"
	NoAction   CascadeAction = "NO ACTION"
)

// Annotation holds SQL-specific settings for columns and relations.
// Can be used with functional constructors or struct literals:
//
//	// Functional style
//	sqlschema.Size(10)
//	sqlschema.ColumnType("JSONB")
//
//	// Struct literal style
//	sqlschema.Annotation{Size: 10, ColumnType: "JSONB"}
type Annotation struct {
	// Size overrides the column size (e.g., VARCHAR(Size)).
	Size int64

	// ColumnType sets a custom database column type.
	ColumnType string

	// Default is the SQL literal default value.
	Default string

	// OnDelete sets the ON DELETE cascade action of a foreign key.
	OnDelete CascadeAction

	// OnUpdate sets the ON UPDATE cascade action of a foreign key.
	OnUpdate CascadeAction
}

// Size sets the column size.
func Size(size int64) Annotation {
	return Annotation{Size: size}
}

// ColumnType sets a custom database column type.
//
//	field.Map(docBody).Annotations(sqlschema.ColumnType("JSONB"))
func ColumnType(t string) Annotation {
	return Annotation{ColumnType: t}
}

// Default sets the SQL literal default value of a column.
func Default(v string) Annotation {
	return Annotation{Default: v}
}

// OnDelete sets the ON DELETE cascade action for a relation.
//
//	edge.Many(ownerCars, Car).Annotations(sqlschema.OnDelete(sqlschema.Cascade))
func OnDelete(action CascadeAction) Annotation {
	return Annotation{OnDelete: action}
}

// OnUpdate sets the ON UPDATE cascade action for a relation.
func OnUpdate(action CascadeAction) Annotation {
	return Annotation{OnUpdate: action}
}

// Merge combines multiple SQL annotations into one.
// Later annotations override earlier ones for the same setting.
func Merge(annotations ...Annotation) Annotation {
	result := Annotation{}
	for _, a := range annotations {
		if a.Size != 0 {
			result.Size = a.Size
		}
		if a.ColumnType != "" {
			result.ColumnType = a.ColumnType
		}
		if a.Default != "" {
			result.Default = a.Default
		}
		if a.OnDelete != "" {
			result.OnDelete = a.OnDelete
		}
		if a.OnUpdate != "" {
			result.OnUpdate = a.OnUpdate
		}
	}
	return result
}
