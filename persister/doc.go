// Package persister executes the persistence strategies compiled from
// entity mappings.
//
// # Persisters
//
//   - EntityPersister: entities of one type over the tables of its
//     inheritance chain, the main table first in updates and last in inserts
//   - Polymorphic: dispatches to the persisters of the subtypes of a
//     single-table, joined-tables or table-per-class hierarchy
//
// Each table is written by a Strategy: the mapped properties, the identifier
// columns and the shadow columns (foreign keys, reverse columns, indexes and
// discriminators) whose values are computed at write time.
//
// # Relations
//
// Relations are maintained by listeners registered on the source persister:
//
//	SourceOwnedOne    - target written before the source, FK on the source
//	TargetOwnedOne    - target written after the source, FK on the target
//	ReverseMany       - targets holding a reverse column (and index)
//	AssociationMany   - records of an association table
//	ElementCollection - rows of value elements, diffed by content
//
// # Operations
//
// The outermost call of an operation attaches its state to the context:
// the correlation of targets to the sources that cascaded to them, the
// instance cache guaranteeing one instance per row, and the bookkeeping of
// selects. Nested calls share it and the outermost call releases it:
//
//	ctx = persister.NewContext(ctx, tx)
//	if err := cars.Persist(ctx, []any{car}); err != nil {
//		return err
//	}
//
// Relations closing a cycle between entity types are loaded in two phases:
// passive joins collect the target identifiers, and the outermost select
// loads them with the target persister once the rows are walked.
package persister
