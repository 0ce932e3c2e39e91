// Package mixin describes reusable property configurations: mapped
// superclasses shared by several entity types, and embeddable values
// stored in the columns of their owner's table.
//
// A mapping lists linkages, nested embedded values and optionally a parent
// mapped superclass:
//
//	address := mixin.New[*Address](
//		field.Map(addressStreet),
//		field.Map(addressCity),
//	)
//
//	person := mixin.New[*Person](field.Map(personName)).
//		EmbedWith(personHome, address, map[string]string{"street": "home_street", "city": "home_city"}).
//		EmbedWith(personWork, address, map[string]string{"street": "work_street", "city": "work_city"})
//
// Embedded values are held by pointer and created on demand when a row is
// loaded. Overrides are keyed by the dotted property path inside the
// embedded mapping.
package mixin
