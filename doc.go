// Package strata maps Go entity types onto relational tables and builds the
// persisters that write and read them.
//
// Entities are declared with the schema packages, compiled into a graph of
// persisters by compiler.Builder, and persisted through the persister
// package:
//
//	b, err := compiler.NewBuilder(compiler.WithDriver(drv))
//	if err != nil {
//		return err
//	}
//	users, err := b.Build(schema.New[*User]().
//		Identify(field.ID(userID, field.DatabaseGenerated())).
//		Map(field.Map(userName)))
//	if err != nil {
//		return err
//	}
//	err = users.Persist(ctx, []any{u})
//
// This package holds the error types shared by the other packages.
package strata
