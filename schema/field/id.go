package field

import (
	"context"

	"github.com/google/uuid"
)

// Policy is the identifier policy of an entity hierarchy. It is one of
// *AlreadyAssigned, *BeforeInsert or *AfterInsert.
type Policy interface {
	policy()
}

// AlreadyAssigned is the policy of identifiers set by the application
// before the entity is persisted.
type AlreadyAssigned struct {
	// IsPersisted reports whether the entity was already stored. Optional;
	// without it, Persist looks the identifiers up in the database.
	IsPersisted func(entity any) bool
	// MarkPersisted is called after the entity row is inserted. Optional.
	MarkPersisted func(entity any)
}

// BeforeInsert is the policy of identifiers generated by the application
// just before the insert statement, e.g. sequences or UUIDs.
type BeforeInsert struct {
	Next func(ctx context.Context) (any, error)
}

// AfterInsert is the policy of identifiers generated by the database and
// read back after the insert statement.
type AfterInsert struct{}

func (*AlreadyAssigned) policy() {}
func (*BeforeInsert) policy()    {}
func (*AfterInsert) policy()     {}

// Assigned returns an already-assigned identifier policy.
func Assigned(isPersisted func(any) bool, markPersisted func(any)) *AlreadyAssigned {
	return &AlreadyAssigned{IsPersisted: isPersisted, MarkPersisted: markPersisted}
}

// Generated returns a before-insert identifier policy calling next.
func Generated(next func(context.Context) (any, error)) *BeforeInsert {
	return &BeforeInsert{Next: next}
}

// UUID returns a before-insert policy generating random (version 4) UUIDs.
func UUID() *BeforeInsert {
	return Generated(func(context.Context) (any, error) {
		id, err := uuid.NewRandom()
		if err != nil {
			return nil, err
		}
		return id, nil
	})
}

// DatabaseGenerated returns the after-insert identifier policy.
func DatabaseGenerated() *AfterInsert {
	return &AfterInsert{}
}

// Identifier declares the identifying property of an entity hierarchy and
// its policy. A composite identifier holds a key value whose components are
// mapped to one column each.
type Identifier struct {
	accessor   *Accessor
	policy     Policy
	column     string
	typ        Type
	components []*Linkage
}

// ID returns a simple identifier declaration.
func ID(a *Accessor, p Policy) *Identifier {
	return &Identifier{accessor: a, policy: p}
}

// CompositeID returns a composite identifier declaration. The accessor
// reads the key value (a struct or a pointer to a struct), and each
// component links a property of the key (declared on the pointer type)
// to a column.
//
//	type PersonKey struct{ First, Last string }
//
//	field.CompositeID(personKey, field.Assigned(nil, nil),
//		field.Map(field.Prop("first", func(k *PersonKey) string { return k.First }, func(k *PersonKey, v string) { k.First = v })),
//		field.Map(field.Prop("last", func(k *PersonKey) string { return k.Last }, func(k *PersonKey, v string) { k.Last = v })),
//	)
func CompositeID(a *Accessor, p Policy, components ...*Linkage) *Identifier {
	return &Identifier{accessor: a, policy: p, components: components}
}

// Column sets an explicit column name of a simple identifier.
func (id *Identifier) Column(name string) *Identifier {
	id.column = name
	return id
}

// Type sets an explicit column type of a simple identifier.
func (id *Identifier) Type(t Type) *Identifier {
	id.typ = t
	return id
}

// Accessor returns the identifying property.
func (id *Identifier) Accessor() *Accessor { return id.accessor }

// Policy returns the identifier policy.
func (id *Identifier) Policy() Policy { return id.policy }

// ColumnName returns the explicit column name, if any.
func (id *Identifier) ColumnName() string { return id.column }

// ColumnType returns the column type of a simple identifier.
func (id *Identifier) ColumnType() Type {
	if id.typ != TypeInvalid {
		return id.typ
	}
	return TypeOf(id.accessor.Type())
}

// Components returns the components of a composite identifier.
func (id *Identifier) Components() []*Linkage { return id.components }

// Composite reports whether the identifier is composite.
func (id *Identifier) Composite() bool { return len(id.components) > 0 }
