package compiler

import (
	"context"
	"fmt"

	"github.com/syssam/strata"
	"github.com/syssam/strata/compiler/mapping"
	"github.com/syssam/strata/dialect/sql/schema"
	"github.com/syssam/strata/persister"
	"github.com/syssam/strata/schema/field"
	"github.com/syssam/strata/schema/naming"

	entity "github.com/syssam/strata/schema"
)

// polymorphic wraps root, the persister of the entity name, in the
// dispatcher of the subtypes of p. outer is the policy of the enclosing
// hierarchy when root is itself a subtype.
func (b *Builder) polymorphic(name string, root *persister.EntityPersister, ns *naming.Strategy, p, outer entity.Polymorphism) (*persister.Polymorphic, error) {
	if len(p.Subtypes()) == 0 {
		return nil, strata.NewConfigurationError(name, "polymorphic entity has no subtypes")
	}
	for _, s := range p.Subtypes() {
		if err := checkSubtype(name, root, s, p); err != nil {
			return nil, err
		}
	}
	var (
		pp  *persister.Polymorphic
		err error
	)
	switch p := p.(type) {
	case *entity.SingleTable:
		pp, err = b.singleTable(name, root, ns, p)
	case *entity.JoinedTables:
		pp, err = b.joinedTables(name, root, ns, p)
	case *entity.TablePerClass:
		if outer != nil {
			return nil, strata.NewConfigurationError(name, "unsupported nested polymorphism: table-per-class under %T", outer)
		}
		pp, err = b.tablePerClass(name, root, ns, p)
	default:
		return nil, strata.NewConfigurationError(name, "unsupported polymorphism %T", p)
	}
	if err != nil {
		return nil, err
	}
	b.config.Logger.Debug("polymorphism configured", "entity", name, "kind", pp.Kind(), "subtypes", len(pp.Subtypes()))
	return pp, nil
}

// checkSubtype validates the declaration of a subtype of root.
func checkSubtype(name string, root *persister.EntityPersister, s *entity.SubEntity, p entity.Polymorphism) error {
	if s.New() == nil {
		return strata.NewConfigurationError(name, "subtype %v must be a pointer to a struct", s.Type())
	}
	if _, ok := field.Upcast(s.New(), root.EntityType()); !ok {
		return strata.NewConfigurationError(name, "subtype %s does not embed %s", s.Name(), name)
	}
	if decls := superclassIDs(s.Mapping()); len(decls) > 0 {
		return strata.NewConfigurationError(name, "subtype %s declares an identifier", s.Name()).
			WithProperty(decls[0].id.Accessor().Name())
	}
	if np := s.Polymorphism(); np != nil {
		_, joined := p.(*entity.JoinedTables)
		_, tpc := np.(*entity.TablePerClass)
		if !joined || tpc {
			return strata.NewConfigurationError(name, "unsupported nested polymorphism: %T under %T", np, p)
		}
	}
	return nil
}

// constant returns a shadow column writing v.
func constant(c *schema.Column, v any) *persister.ShadowColumn {
	return &persister.ShadowColumn{
		Column: c,
		Value:  func(context.Context, any) (any, error) { return v, nil },
	}
}

// singleTable maps the subtypes to the table of root, distinguished by a
// discriminator column. Subtype columns are nullable.
func (b *Builder) singleTable(name string, root *persister.EntityPersister, ns *naming.Strategy, p *entity.SingleTable) (*persister.Polymorphic, error) {
	table := root.Table()
	column := p.DiscriminatorColumn()
	if column == "" {
		column = ns.DiscriminatorName()
	}
	for _, prop := range root.Strategy().Properties() {
		if !prop.ReadOnly && prop.Column.Name == column {
			return nil, strata.NewConfigurationError(name, "discriminator column %q is mapped by property %s", column, prop.Path).
				WithTable(table.Name)
		}
	}
	// Root rows store the entity name, or NULL in non-string columns.
	var rootValue any = name
	if p.DiscriminatorType() != field.TypeString {
		rootValue = nil
	}
	disc := table.AddColumn(&schema.Column{Name: column, Type: p.DiscriminatorType(), Nullable: rootValue == nil})
	root.Strategy().AddShadow(constant(disc, rootValue))
	values := map[string]string{fmt.Sprint(rootValue): name}
	subs := make([]persister.Subtype, 0, len(p.Subtypes()))
	for _, s := range p.Subtypes() {
		value := s.DiscriminatorValue()
		if other, ok := values[fmt.Sprint(value)]; ok {
			return nil, strata.NewConfigurationError(name, "discriminator value %v is used by %s and %s", value, other, s.Name())
		}
		values[fmt.Sprint(value)] = s.Name()
		props, err := mapping.Resolve(s.Name(), s.Mapping(), table, ns)
		if err != nil {
			return nil, err
		}
		if err := checkProperties(s.Name(), table, root.Strategy().Properties(), props); err != nil {
			return nil, err
		}
		for _, prop := range props {
			if prop.Column.Name == disc.Name {
				return nil, strata.NewConfigurationError(s.Name(), "property %s maps the discriminator column", prop.Path).
					WithProperty(prop.Path.String())
			}
			prop.Column.Nullable = true
		}
		strategy := persister.NewStrategy(s.Type(), table, root.Identifier(), root.Strategy().Manager(), b.config.Dialect).
			Share(root.Strategy())
		strategy.AddProperties(props...)
		strategy.AddShadow(constant(disc, value))
		sub := persister.NewEntityPersister(persister.Config{
			Type:      s.Type(),
			CacheType: root.CacheType(),
			New:       s.New,
			Main:      strategy,
			Chain:     root.Chain(),
			Executor:  b.ex,
			Dialect:   b.config.Dialect,
			Logger:    b.config.Logger,
		})
		r, err := b.subtype(name, sub, ns, s)
		if err != nil {
			return nil, err
		}
		subs = append(subs, persister.Subtype{Type: s.Type(), Persister: r, Discriminator: value})
	}
	return persister.NewPolymorphic(persister.SingleTable, root, subs...).Discriminate(disc, rootValue), nil
}

// joinedTables maps each subtype to its own table, keyed by the primary
// key of the root table.
func (b *Builder) joinedTables(name string, root *persister.EntityPersister, ns *naming.Strategy, p *entity.JoinedTables) (*persister.Polymorphic, error) {
	subs := make([]persister.Subtype, 0, len(p.Subtypes()))
	for _, s := range p.Subtypes() {
		table, err := b.subtable(name, root, ns, s)
		if err != nil {
			return nil, err
		}
		id, err := propagate(s.Name(), root.Identifier(), table, root.Table(), ns)
		if err != nil {
			return nil, err
		}
		props, err := mapping.Resolve(s.Name(), s.Mapping(), table, ns)
		if err != nil {
			return nil, err
		}
		if err := checkProperties(s.Name(), table, nil, props); err != nil {
			return nil, err
		}
		strategy := persister.NewStrategy(s.Type(), table, id, persister.FallbackManager{}, b.config.Dialect)
		strategy.AddProperties(props...)
		sub := persister.NewEntityPersister(persister.Config{
			Type:      s.Type(),
			CacheType: root.CacheType(),
			New:       s.New,
			Main:      strategy,
			Chain:     append([]*persister.Strategy{root.Strategy()}, root.Chain()...),
			Executor:  b.ex,
			Dialect:   b.config.Dialect,
			Logger:    b.config.Logger,
		})
		if _, err := b.subtype(name, sub, ns, s); err != nil {
			return nil, err
		}
		var r persister.Relational = sub
		if np := s.Polymorphism(); np != nil {
			nested, err := b.polymorphic(s.Name(), sub, ns, np, p)
			if err != nil {
				return nil, err
			}
			b.ctx.register(s.Type(), nested)
			r = nested
		}
		subs = append(subs, persister.Subtype{Type: s.Type(), Persister: r})
	}
	return persister.NewPolymorphic(persister.JoinedTables, root, subs...), nil
}

// tablePerClass maps each subtype to a table holding all its columns,
// inherited ones included.
func (b *Builder) tablePerClass(name string, root *persister.EntityPersister, ns *naming.Strategy, p *entity.TablePerClass) (*persister.Polymorphic, error) {
	if len(root.Chain()) > 0 {
		return nil, strata.NewConfigurationError(name, "table-per-class entity spans several tables")
	}
	if _, ok := root.Identifier().Policy.(*field.AfterInsert); ok {
		return nil, strata.NewConfigurationError(name, "table-per-class identifiers cannot be generated by the database").
			WithProperty(root.Identifier().Accessor.Name())
	}
	subs := make([]persister.Subtype, 0, len(p.Subtypes()))
	for _, s := range p.Subtypes() {
		if len(s.Relations()) > 0 {
			return nil, strata.NewConfigurationError(s.Name(),
				"relations of table-per-class entities are not supported").WithProperty(s.Relations()[0].PropertyName())
		}
		table, err := b.subtable(name, root, ns, s)
		if err != nil {
			return nil, err
		}
		for _, c := range root.Table().Columns {
			table.AddColumn(&schema.Column{
				Name:       c.Name,
				Type:       c.Type,
				Size:       c.Size,
				Nullable:   c.Nullable,
				SchemaType: c.SchemaType,
				Default:    c.Default,
			})
		}
		key := make([]*schema.Column, len(root.Table().PrimaryKey))
		for i, c := range root.Table().PrimaryKey {
			key[i], _ = table.Column(c.Name)
		}
		if err := table.SetPrimaryKey(key...); err != nil {
			return nil, strata.NewConfigurationError(s.Name(), "cannot set primary key").WithTable(table.Name).Wrap(err)
		}
		id := root.Identifier().Bind(key)
		props, err := mapping.Resolve(s.Name(), s.Mapping(), table, ns)
		if err != nil {
			return nil, err
		}
		if err := checkProperties(s.Name(), table, root.Strategy().Properties(), props); err != nil {
			return nil, err
		}
		strategy := persister.NewStrategy(s.Type(), table, id, persister.NewManager(id, b.config.KeysReader), b.config.Dialect).
			Share(root.Strategy())
		strategy.AddProperties(props...)
		sub := persister.NewEntityPersister(persister.Config{
			Type:      s.Type(),
			CacheType: root.CacheType(),
			New:       s.New,
			Main:      strategy,
			Executor:  b.ex,
			Dialect:   b.config.Dialect,
			Logger:    b.config.Logger,
		})
		r, err := b.subtype(name, sub, ns, s)
		if err != nil {
			return nil, err
		}
		subs = append(subs, persister.Subtype{Type: s.Type(), Persister: r})
	}
	return persister.NewPolymorphic(persister.TablePerClass, root, subs...), nil
}

// subtable returns the table of a subtype mapped to its own table.
func (b *Builder) subtable(name string, root *persister.EntityPersister, ns *naming.Strategy, s *entity.SubEntity) (*schema.Table, error) {
	tname := s.Table()
	if tname == "" {
		tname = ns.TableOf(s.Type())
	}
	if _, ok := b.tables.Table(tname); ok {
		return nil, strata.NewConfigurationError(name, "table %q of subtype %s is already used", tname, s.Name()).
			WithTable(tname)
	}
	if tname == root.Table().Name {
		return nil, strata.NewConfigurationError(name, "subtype %s is mapped to the table of its parent", s.Name()).
			WithTable(tname)
	}
	return b.table(tname), nil
}

// subtype registers the persister of s, then configures its relations and
// indexes.
func (b *Builder) subtype(name string, sub *persister.EntityPersister, ns *naming.Strategy, s *entity.SubEntity) (*persister.EntityPersister, error) {
	b.ctx.register(s.Type(), sub)
	src := &source{
		name:      s.Name(),
		typ:       s.Type(),
		persister: sub,
		strategy:  sub.Strategy(),
		naming:    ns,
	}
	if err := b.relations(src, s.Relations()); err != nil {
		return nil, err
	}
	if err := addIndexes(s.Name(), sub.Table(), sub.Strategy().Properties(), s.IndexDescriptors()); err != nil {
		return nil, err
	}
	return sub, nil
}
