// Package schema declares entity mappings: the configuration the compiler
// turns into persisters.
//
// An entity is declared for a pointer type, with property linkages, an
// identifier and relations to other entities:
//
//	var Car = schema.New[*Car]().
//		Identify(field.ID(carID, field.DatabaseGenerated())).
//		Map(field.Map(carModel).Mandatory(), field.Map(carColor)).
//		Relate(edge.One(carEngine, Engine).Cascade(edge.All))
//
// Inheritance follows Go embedding: a subtype embeds its parent struct, and
// accessors declared on the parent apply to subtype instances.
//
//	type Vehicle struct{ ID int64; Color string }
//	type Car struct {
//		Vehicle
//		Model string
//	}
//
//	var Vehicle = schema.New[*Vehicle]().Identify(...)
//	var Car = schema.New[*Car]().ExtendsJoined(Vehicle, "cars")
//
// Polymorphic hierarchies declare their subtypes on the root entity with one
// of OnSingleTable, OnJoinedTables or OnTablePerClass:
//
//	schema.New[*Vehicle]().Polymorphic(
//		schema.OnSingleTable(
//			schema.Sub[*Car]().Discriminator("CAR").Map(field.Map(carModel)),
//			schema.Sub[*Truck]().Discriminator("TRUCK"),
//		),
//	)
//
// Entities referencing each other may be declared first and related later
// (typically in an init function), since Relate mutates the declaration.
package schema
