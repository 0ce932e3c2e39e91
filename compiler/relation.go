package compiler

import (
	"fmt"
	"reflect"

	"github.com/syssam/strata"
	"github.com/syssam/strata/compiler/mapping"
	"github.com/syssam/strata/dialect/sql/schema"
	"github.com/syssam/strata/dialect/sql/sqlgraph"
	"github.com/syssam/strata/dialect/sqlschema"
	"github.com/syssam/strata/persister"
	"github.com/syssam/strata/schema/edge"
	"github.com/syssam/strata/schema/field"
	"github.com/syssam/strata/schema/naming"

	entity "github.com/syssam/strata/schema"
)

// source is the level of an entity declaring relations.
type source struct {
	// name of the entity being built.
	name string
	// typ is the type of the declaring level. It names the reverse
	// columns, so that subtypes inheriting the relation reuse them.
	typ       reflect.Type
	persister *persister.EntityPersister
	strategy  *persister.Strategy
	naming    *naming.Strategy
}

func (s *source) id() *persister.Identifier { return s.strategy.Identifier() }

func (s *source) table() *schema.Table { return s.strategy.Table() }

func (s *source) node() *sqlgraph.Node { return s.persister.Node(s.strategy) }

// relations configures the relations declared by one level of an entity.
func (b *Builder) relations(src *source, rs []entity.Relation) error {
	for _, r := range rs {
		var err error
		switch r := r.(type) {
		case *edge.OneBuilder:
			err = b.one(src, r.Descriptor())
		case *edge.ManyBuilder:
			err = b.many(src, r.Descriptor())
		case *edge.ManyToManyBuilder:
			err = b.manyToMany(src, r.Descriptor())
		case *edge.ElementsBuilder:
			err = b.elements(src, r.Descriptor())
		default:
			err = strata.NewConfigurationError(src.name, "unsupported relation %T", r).WithProperty(r.PropertyName())
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// target returns the persister of the target of a relation, building it
// when needed. cyclic reports that the target is being built.
func (b *Builder) target(src *source, prop string, t *entity.Entity) (persister.Relational, bool, error) {
	if t == nil {
		return nil, false, strata.NewConfigurationError(src.name, "relation has no target").WithProperty(prop)
	}
	if _, ok := t.Polymorphism().(*entity.TablePerClass); ok {
		return nil, false, strata.NewConfigurationError(src.name,
			"relation targets the table-per-class entity %s", t.Name()).WithProperty(prop)
	}
	if b.ctx.inProgress(t.Type()) {
		p, _ := b.ctx.lookup(t.Type())
		b.config.Logger.Debug("cycle detected", "entity", src.name, "relation", prop, "target", t.Name())
		return p, true, nil
	}
	p, err := b.build(t)
	if err != nil {
		return nil, false, err
	}
	return p, false, nil
}

// retarget sets *ref to the final persister of t once the graph is built.
// The persister registered for a type being built is replaced when the
// type is polymorphic.
func (b *Builder) retarget(ref *persister.Relational, t reflect.Type) {
	ctx := b.ctx
	ctx.later(func() error {
		if p, ok := ctx.lookup(t); ok {
			*ref = p
		}
		return nil
	})
}

// solver returns the cycle solver of t, resolved once the graph is built.
func (b *Builder) solver(t reflect.Type) *persister.CycleSolver {
	ctx := b.ctx
	if s, ok := ctx.solvers[t]; ok {
		return s
	}
	s := persister.NewCycleSolver()
	ctx.solvers[t] = s
	ctx.later(func() error {
		p, ok := ctx.lookup(t)
		if !ok {
			return strata.NewConfigurationError(field.TypeName(t), "no persister for the target of a cyclic relation")
		}
		s.Resolve(p)
		return nil
	})
	return s
}

// join adds the target of a relation under parent. A target being built,
// or polymorphic, is joined passively: its identifiers are collected and
// its instances loaded when the select finishes. Other targets get a copy
// of their join tree.
func (b *Builder) join(src *source, parent *sqlgraph.Node, target persister.Relational, t reflect.Type, cyclic bool,
	binder persister.Binder, left, right []*schema.Column, index *persister.IndexColumn) {
	tree := src.persister.Tree()
	var extra []*schema.Column
	if index != nil && !index.OnParent {
		extra = append(extra, index.Column)
	}
	if ep, ok := target.(*persister.EntityPersister); ok && !cyclic {
		n := tree.Graft(parent, ep.Tree().Root(), sqlgraph.Join{
			Kind:     sqlgraph.Relation,
			Left:     left,
			Right:    right,
			Consumer: persister.Relation(ep.Consumer(), binder, index),
		})
		tree.Columns(n, extra...)
		return
	}
	columns := append(append([]*schema.Column(nil), target.Identifier().Columns()...), extra...)
	tree.Add(parent, sqlgraph.Join{
		Kind:     sqlgraph.Passive,
		Table:    target.Table(),
		Columns:  columns,
		Left:     left,
		Right:    right,
		Consumer: persister.Passive(b.solver(t), binder, index),
	})
}

// referencing returns the names of the columns referencing key: prefix
// for a single column, prefix_column otherwise.
func referencing(prefix string, key []*schema.Column) []string {
	names := make([]string, len(key))
	for i, c := range key {
		names[i] = prefix
		if len(key) > 1 {
			names[i] = fmt.Sprintf("%s_%s", prefix, c.Name)
		}
	}
	return names
}

// reverseColumn returns the prefix of the columns of a target referencing
// the source: the join column of the mapped-by property when there is one.
func reverseColumn(src *source, explicit string, mappedBy *field.Accessor) string {
	switch {
	case explicit != "":
		return explicit
	case mappedBy != nil:
		return src.naming.JoinColumnOf(mappedBy.Name())
	default:
		return src.naming.ReverseColumnOf(src.typ)
	}
}

// claim fails when a writable property of s maps one of the columns.
func claim(name, prop string, s *persister.Strategy, columns []*schema.Column) error {
	for _, p := range s.Properties() {
		if p.ReadOnly {
			continue
		}
		for _, c := range columns {
			if p.Column.Name == c.Name {
				return strata.NewConfigurationError(name, "join column %q is mapped by property %s", c.Name, p.Path).
					WithProperty(prop).WithTable(s.Table().Name)
			}
		}
	}
	return nil
}

// one configures a single-valued relation.
func (b *Builder) one(src *source, d *edge.OneDescriptor) error {
	prop := d.Accessor.Name()
	if d.Mode == edge.AssociationOnly {
		return strata.NewConfigurationError(src.name, "association-only cascade requires an association table").
			WithProperty(prop)
	}
	target, cyclic, err := b.target(src, prop, d.Target)
	if err != nil {
		return err
	}
	if d.TargetOwned() {
		return b.targetOwnedOne(src, d, target, cyclic)
	}
	ns := src.naming
	tid := target.Identifier()
	prefix := d.Column
	switch {
	case prefix != "":
	case len(tid.Columns()) > 1:
		prefix = ns.ColumnOf(prop)
	default:
		prefix = ns.JoinColumnOf(prop)
	}
	columns := copyColumns(src.table(), tid.Columns(), referencing(prefix, tid.Columns()), !d.Mandatory)
	if err := claim(src.name, prop, src.strategy, columns); err != nil {
		return err
	}
	addForeignKey(ns, src.table(), columns, target.Table(), d.Annotation)
	rel := &persister.SourceOwnedOne{
		Entity:    src.name,
		Accessor:  d.Accessor,
		Target:    target,
		Mode:      d.Mode,
		Mandatory: d.Mandatory,
	}
	if d.Mode != edge.ReadOnly {
		b.ctx.shadow(src.strategy, rel.ForeignKey(columns)...)
	}
	rel.Register(src.persister.Listeners())
	if cyclic {
		b.retarget(&rel.Target, d.Target.Type())
	}
	b.join(src, src.node(), target, d.Target.Type(), cyclic, &persister.OneBinder{Accessor: d.Accessor},
		columns, tid.Columns(), nil)
	return nil
}

// targetOwnedOne configures a single-valued relation whose join column is
// in the table of the target.
func (b *Builder) targetOwnedOne(src *source, d *edge.OneDescriptor, target persister.Relational, cyclic bool) error {
	prop := d.Accessor.Name()
	sid := src.id()
	ts := target.Strategy()
	columns := copyColumns(ts.Table(), sid.Columns(), referencing(reverseColumn(src, d.ReverseColumn, d.MappedBy), sid.Columns()), true)
	if err := claim(src.name, prop, ts, columns); err != nil {
		return err
	}
	addForeignKey(src.naming, ts.Table(), columns, src.table(), d.Annotation)
	rel := &persister.TargetOwnedOne{
		Entity:    src.name,
		Accessor:  d.Accessor,
		Target:    target,
		Mode:      d.Mode,
		Mandatory: d.Mandatory,
		MappedBy:  d.MappedBy,
	}
	shadows := rel.Reverse(sid, columns)
	if d.Mode != edge.ReadOnly {
		b.ctx.shadow(ts, shadows...)
	}
	rel.Register(src.persister.Listeners())
	if cyclic {
		b.retarget(&rel.Target, d.Target.Type())
	}
	b.join(src, src.node(), target, d.Target.Type(), cyclic, &persister.OneBinder{Accessor: d.Accessor, Reverse: d.MappedBy},
		sid.Columns(), columns, nil)
	return nil
}

// many configures a one-to-many relation, over a join column in the table
// of the target or over an association table.
func (b *Builder) many(src *source, d *edge.ManyDescriptor) error {
	prop := d.Accessor.Name()
	if d.Mode == edge.AssociationOnly && !d.UsesAssociationTable() {
		return strata.NewConfigurationError(src.name, "association-only cascade requires an association table").
			WithProperty(prop)
	}
	target, cyclic, err := b.target(src, prop, d.Target)
	if err != nil {
		return err
	}
	if d.UsesAssociationTable() {
		return b.association(src, association{
			accessor:    d.Accessor,
			target:      d.Target,
			mode:        d.Mode,
			table:       d.AssociationTable,
			indexed:     d.Indexed,
			indexColumn: d.IndexColumn,
			annotation:  d.Annotation,
		}, target, cyclic)
	}
	ns := src.naming
	sid := src.id()
	ts := target.Strategy()
	columns := copyColumns(ts.Table(), sid.Columns(), referencing(reverseColumn(src, d.ReverseColumn, d.MappedBy), sid.Columns()), true)
	if err := claim(src.name, prop, ts, columns); err != nil {
		return err
	}
	addForeignKey(ns, ts.Table(), columns, src.table(), d.Annotation)
	var (
		index *schema.Column
		ic    *persister.IndexColumn
	)
	if d.Indexed {
		name := d.IndexColumn
		if name == "" {
			name = ns.IndexColumnName()
		}
		index = ts.Table().AddColumn(&schema.Column{Name: name, Type: field.TypeInt, Nullable: true})
		ic = &persister.IndexColumn{Column: index}
	}
	rel := &persister.ReverseMany{
		Accessor: d.Accessor,
		Target:   target,
		Mode:     d.Mode,
		MappedBy: d.MappedBy,
	}
	shadows := rel.Reverse(sid, columns, index)
	if d.Mode != edge.ReadOnly {
		b.ctx.shadow(ts, shadows...)
	}
	rel.Register(src.persister.Listeners())
	if cyclic {
		b.retarget(&rel.Target, d.Target.Type())
	}
	b.join(src, src.node(), target, d.Target.Type(), cyclic,
		&persister.ManyBinder{Accessor: d.Accessor, Indexed: d.Indexed, MappedBy: d.MappedBy},
		sid.Columns(), columns, ic)
	return nil
}

// manyToMany configures a many-to-many relation.
func (b *Builder) manyToMany(src *source, d *edge.ManyToManyDescriptor) error {
	target, cyclic, err := b.target(src, d.Accessor.Name(), d.Target)
	if err != nil {
		return err
	}
	return b.association(src, association{
		accessor:    d.Accessor,
		target:      d.Target,
		mode:        d.Mode,
		table:       d.AssociationTable,
		indexed:     d.Indexed,
		indexColumn: d.IndexColumn,
		reverse:     d.Reverse,
		m2m:         true,
		annotation:  d.Annotation,
	}, target, cyclic)
}

// association is a collection stored in an association table.
type association struct {
	accessor    *field.Many
	target      *entity.Entity
	mode        edge.Mode
	table       string
	indexed     bool
	indexColumn string
	reverse     *field.Many
	m2m         bool
	annotation  sqlschema.Annotation
}

// association configures a collection stored in an association table
// holding the keys of both sides. One-to-many tables get a unique index on
// the target key.
func (b *Builder) association(src *source, a association, target persister.Relational, cyclic bool) error {
	ns := src.naming
	prop := a.accessor.Name()
	name := a.table
	if name == "" {
		name = ns.AssociationTableOf(src.table().Name, prop)
	}
	table := b.table(name)
	sid, tid := src.id(), target.Identifier()
	sname := ns.AssociationColumnOf(src.table().Name)
	tname := ns.AssociationColumnOf(target.Table().Name)
	if tname == sname {
		tname = ns.JoinColumnOf(naming.Singular(naming.Snake(prop)))
	}
	scols := copyColumns(table, sid.Columns(), referencing(sname, sid.Columns()), false)
	tcols := copyColumns(table, tid.Columns(), referencing(tname, tid.Columns()), false)
	key := append(append([]*schema.Column(nil), scols...), tcols...)
	var (
		index *schema.Column
		ic    *persister.IndexColumn
	)
	if a.indexed {
		column := a.indexColumn
		if column == "" {
			column = ns.IndexColumnName()
		}
		index = table.AddColumn(&schema.Column{Name: column, Type: field.TypeInt})
		ic = &persister.IndexColumn{Column: index, OnParent: true}
		key = append(key, index)
	}
	if err := table.SetPrimaryKey(key...); err != nil {
		return strata.NewConfigurationError(src.name, "association table is used by another relation").
			WithProperty(prop).WithTable(name).Wrap(err)
	}
	addForeignKey(ns, table, scols, src.table(), a.annotation)
	addForeignKey(ns, table, tcols, target.Table(), a.annotation)
	if !a.m2m {
		names := make([]string, len(tcols))
		for i, c := range tcols {
			names[i] = c.Name
		}
		addIndex(table, indexName(name, names, true), true, names)
	}
	rel := &persister.AssociationMany{
		Accessor:   a.accessor,
		Target:     target,
		Mode:       a.mode,
		ManyToMany: a.m2m,
		Records:    persister.NewAssociationStrategy(table, sid.Bind(scols), tid.Bind(tcols), index, b.config.Dialect),
	}
	rel.Register(src.persister.Listeners())
	if cyclic {
		b.retarget(&rel.Target, a.target.Type())
	}
	link := src.persister.Tree().Add(src.node(), sqlgraph.Join{
		Kind:    sqlgraph.Link,
		Table:   table,
		Columns: key,
		Left:    sid.Columns(),
		Right:   scols,
	})
	b.join(src, link, target, a.target.Type(), cyclic,
		&persister.ManyBinder{Accessor: a.accessor, Indexed: a.indexed, Reverse: a.reverse},
		tcols, tid.Columns(), ic)
	return nil
}

// elements configures a collection of values or embeddables stored in a
// table keyed by the owner and the element columns.
func (b *Builder) elements(src *source, d *edge.ElementsDescriptor) error {
	ns := src.naming
	prop := d.Accessor.Name()
	name := d.Table
	if name == "" {
		name = ns.ElementTableOf(src.table().Name, prop)
	}
	table := b.table(name)
	sid := src.id()
	prefix := d.ReverseColumn
	if prefix == "" {
		prefix = ns.ReverseColumnOf(src.typ)
	}
	owner := copyColumns(table, sid.Columns(), referencing(prefix, sid.Columns()), false)
	es := persister.NewElementStrategy(table, sid.Bind(owner), d.Accessor.Elem(), b.config.Dialect)
	key := append([]*schema.Column(nil), owner...)
	if d.Embeddable != nil {
		props, err := mapping.ResolveWith(src.name, d.Embeddable, table, ns, d.Overrides)
		if err != nil {
			return err
		}
		seen := make(map[string]bool)
		for _, p := range props {
			if !seen[p.Column.Name] {
				seen[p.Column.Name] = true
				key = append(key, p.Column)
			}
		}
		es.Properties(props...)
	} else {
		typ := field.TypeOf(d.Accessor.Elem())
		if !typ.Valid() {
			return strata.NewConfigurationError(src.name, "unsupported element type %v", d.Accessor.Elem()).
				WithProperty(prop)
		}
		column := d.Column
		if column == "" {
			column = ns.ElementColumnOf(prop)
		}
		c := table.AddColumn(&schema.Column{Name: column, Type: typ, Size: d.Annotation.Size, SchemaType: d.Annotation.ColumnType})
		es.Value(c)
		key = append(key, c)
	}
	if err := table.SetPrimaryKey(key...); err != nil {
		return strata.NewConfigurationError(src.name, "element table is used by another relation").
			WithProperty(prop).WithTable(name).Wrap(err)
	}
	addForeignKey(ns, table, owner, src.table(), d.Annotation)
	rel := &persister.ElementCollection{Accessor: d.Accessor, Elements: es}
	rel.Register(src.persister.Listeners())
	src.persister.Tree().Add(src.node(), sqlgraph.Join{
		Kind:     sqlgraph.Relation,
		Table:    table,
		Columns:  es.Columns(),
		Left:     sid.Columns(),
		Right:    owner,
		Consumer: es.Consumer(&persister.ManyBinder{Accessor: d.Accessor, Footprint: es.Footprint}),
	})
	return nil
}
