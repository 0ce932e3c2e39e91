// Package field describes entity properties and their column linkages.
//
// Properties are described by explicit accessors built from a getter and a
// setter, so mappings never depend on struct tags or field-name reflection:
//
//	var (
//		carID = field.Prop("id",
//			func(c *Car) int64 { return c.ID },
//			func(c *Car, v int64) { c.ID = v },
//		)
//		carName = field.Prop("name",
//			func(c *Car) string { return c.Name },
//			func(c *Car, v string) { c.Name = v },
//		)
//	)
//
// A Linkage maps a property to a column:
//
//	field.Map(carName).Column("label").Mandatory().Size(64)
//
// # Identifiers
//
// An Identifier declares the key property of an entity hierarchy and its
// policy:
//
//	field.ID(carID, field.DatabaseGenerated())      // auto-increment / serial
//	field.ID(carID, field.UUID())                    // generated before insert
//	field.ID(carID, field.Assigned(isStored, mark))  // set by the application
//
// # Embedded values
//
// A Path chains accessors into embedded values. Intermediate values are
// pointers to structs and are created on demand when a row is loaded.
package field
