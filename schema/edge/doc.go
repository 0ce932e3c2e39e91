// Package edge provides fluent builders for declaring entity relations.
//
// # Relation Types
//
//   - edge.One: one-to-one relation to another entity
//   - edge.Many: one-to-many relation to other entities
//   - edge.ManyToMany: many-to-many relation through an association table
//   - edge.Elements: collection of values stored in their own table
//
// # Ownership
//
// A one-to-one relation is owned by the source by default: a join column is
// added to the source table. MappedBy or ReverseColumn moves the foreign key
// to the target table:
//
//	edge.One(personPassport, Passport)                     // people.passport_id
//	edge.One(personPassport, Passport).MappedBy(passportOwner) // passports.owner_id
//
// A one-to-many relation is stored in an association table unless MappedBy
// or ReverseColumn names a column of the target table:
//
//	edge.Many(cityPeople, Person)                          // cities_people(city_id, person_id)
//	edge.Many(cityPeople, Person).ReverseColumn("city_id") // people.city_id
//
// # Cascade Modes
//
//	edge.All              - insert, update and delete targets with the source
//	edge.AllOrphanRemoval - All, plus deleting targets detached from the source
//	edge.AssociationOnly  - only maintain association records, not on one-to-one relations
//	edge.ReadOnly         - load the relation, never write it
//
// # Annotations
//
// Foreign key actions are set with SQL annotations:
//
//	edge.Many(ownerCars, Car).Annotations(sqlschema.OnDelete(sqlschema.Cascade))
package edge
