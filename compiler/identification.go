package compiler

import (
	"github.com/syssam/strata"
	"github.com/syssam/strata/dialect/sql/schema"
	"github.com/syssam/strata/dialect/sqlschema"
	"github.com/syssam/strata/persister"
	"github.com/syssam/strata/schema/field"
	"github.com/syssam/strata/schema/mixin"
	"github.com/syssam/strata/schema/naming"

	entity "github.com/syssam/strata/schema"
)

// declaration is an identifier declared by one level of a hierarchy.
type declaration struct {
	level string
	id    *field.Identifier
}

// identify returns the identifier of the hierarchy of e. Exactly one level
// of the hierarchy, entity or mapped superclass, must declare it, and only
// the root entity or its mapped superclasses may.
func identify(e *entity.Entity) (*field.Identifier, error) {
	var decls []declaration
	for _, level := range e.Chain() {
		if p := level.Parent(); p != nil {
			if level.Identifier() != nil {
				return nil, strata.NewConfigurationError(level.Name(),
					"identifier declared while extending entity %s", p.Name())
			}
			if level.Mapping().Superclass() != nil {
				return nil, strata.NewConfigurationError(level.Name(),
					"extends both entity %s and a mapped superclass", p.Name())
			}
		}
		if id := level.Identifier(); id != nil {
			decls = append(decls, declaration{level: level.Name(), id: id})
		}
		decls = append(decls, superclassIDs(level.Mapping())...)
	}
	switch len(decls) {
	case 0:
		return nil, strata.NewConfigurationError(e.Name(), "no identifier declared in the hierarchy")
	case 1:
	default:
		return nil, strata.NewConfigurationError(e.Name(), "identifier declared by both %s and %s",
			decls[0].level, decls[1].level)
	}
	id := decls[0].id
	if err := checkIdentifier(e.Name(), id); err != nil {
		return nil, err
	}
	return id, nil
}

// superclassIDs returns the identifiers declared by m and its superclasses.
func superclassIDs(m *mixin.Mapping) []declaration {
	var decls []declaration
	seen := make(map[*mixin.Mapping]bool)
	for s := m; s != nil && !seen[s]; s = s.Superclass() {
		seen[s] = true
		if id := s.Identifier(); id != nil {
			decls = append(decls, declaration{level: field.TypeName(s.Type()), id: id})
		}
	}
	return decls
}

func checkIdentifier(name string, id *field.Identifier) error {
	if id.Accessor() == nil {
		return strata.NewConfigurationError(name, "identifier has no property")
	}
	prop := id.Accessor().Name()
	switch p := id.Policy().(type) {
	case nil:
		return strata.NewConfigurationError(name, "identifier has no policy").WithProperty(prop)
	case *field.BeforeInsert:
		if p.Next == nil {
			return strata.NewConfigurationError(name, "generated identifier has no generator").WithProperty(prop)
		}
	}
	if id.Composite() {
		if _, ok := id.Policy().(*field.AlreadyAssigned); !ok {
			return strata.NewConfigurationError(name, "composite identifier requires an already-assigned policy").
				WithProperty(prop)
		}
		return nil
	}
	if !id.ColumnType().Valid() {
		return strata.NewConfigurationError(name, "unsupported identifier type %s", id.Accessor().Type()).
			WithProperty(prop)
	}
	return nil
}

// primaryKey adds the identifier columns to the root table of a hierarchy
// and makes them its primary key.
func primaryKey(name string, id *field.Identifier, table *schema.Table, ns *naming.Strategy) (*persister.Identifier, error) {
	pid := &persister.Identifier{Accessor: id.Accessor(), Policy: id.Policy()}
	if !id.Composite() {
		column := id.ColumnName()
		if column == "" {
			column = ns.ColumnOf(id.Accessor().Name())
		}
		_, generated := id.Policy().(*field.AfterInsert)
		c := table.AddColumn(&schema.Column{
			Name:      column,
			Type:      id.ColumnType(),
			Increment: generated && id.ColumnType().Integer(),
		})
		if err := table.SetPrimaryKey(c); err != nil {
			return nil, strata.NewConfigurationError(name, "cannot set primary key").WithTable(table.Name).Wrap(err)
		}
		pid.Assembler = persister.NewSimple(c, id.Accessor().Type())
		return pid, nil
	}
	var (
		columns    []*schema.Column
		components []persister.Component
	)
	for _, l := range id.Components() {
		column := l.ColumnName()
		if column == "" {
			column = ns.ColumnOf(l.Accessor().Name())
		}
		if !l.ColumnType().Valid() {
			return nil, strata.NewConfigurationError(name, "unsupported type %s of key component %s",
				l.Accessor().Type(), l.Accessor().Name()).WithProperty(id.Accessor().Name())
		}
		c := table.AddColumn(&schema.Column{Name: column, Type: l.ColumnType(), Size: l.ColumnSize()})
		columns = append(columns, c)
		components = append(components, persister.Component{Accessor: l.Accessor(), Column: c})
	}
	if err := table.SetPrimaryKey(columns...); err != nil {
		return nil, strata.NewConfigurationError(name, "cannot set primary key").WithTable(table.Name).Wrap(err)
	}
	pid.Assembler = persister.NewComposite(id.Accessor().Type(), components...)
	return pid, nil
}

// propagate copies the primary key of ref into table, makes it the primary
// key of table and a foreign key to ref. It returns id bound to the copy.
func propagate(name string, id *persister.Identifier, table, ref *schema.Table, ns *naming.Strategy) (*persister.Identifier, error) {
	columns := copyColumns(table, ref.PrimaryKey, nil, false)
	if err := table.SetPrimaryKey(columns...); err != nil {
		return nil, strata.NewConfigurationError(name, "cannot propagate primary key of %q", ref.Name).
			WithTable(table.Name).Wrap(err)
	}
	addForeignKey(ns, table, columns, ref, sqlschema.Annotation{})
	return id.Bind(columns), nil
}

// copyColumns adds to table one column per reference column, named by
// names when given. Copies are never auto-incremented.
func copyColumns(table *schema.Table, refs []*schema.Column, names []string, nullable bool) []*schema.Column {
	columns := make([]*schema.Column, len(refs))
	for i, r := range refs {
		name := r.Name
		if names != nil {
			name = names[i]
		}
		columns[i] = table.AddColumn(&schema.Column{
			Name:       name,
			Type:       r.Type,
			Size:       r.Size,
			SchemaType: r.SchemaType,
			Nullable:   nullable,
		})
	}
	return columns
}
