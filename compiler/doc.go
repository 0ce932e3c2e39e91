// Package compiler builds the persisters of entity declarations.
//
// A Builder turns a schema.Entity into a persister.Relational in ten
// steps: it resolves the naming strategy and tables of the inheritance
// chain, the identifier and primary keys, the property mappings and
// insertion managers, then configures the relations and the polymorphism
// of the entity. Targets of relations are built on demand; a relation
// closing a cycle is joined passively and its target loaded in a second
// phase of the select.
//
//	b, err := compiler.NewBuilder(compiler.WithDriver(drv))
//	if err != nil {
//		return err
//	}
//	users, err := b.Build(schema.New[*User]().Identify(id).Map(name).Relate(cars))
//	if err != nil {
//		return err
//	}
//	stmts, err := b.DDL(ctx)
package compiler
