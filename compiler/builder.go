package compiler

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	atlas "ariga.io/atlas/sql/schema"

	"github.com/syssam/strata"
	"github.com/syssam/strata/compiler/mapping"
	"github.com/syssam/strata/dialect"
	"github.com/syssam/strata/dialect/sql"
	"github.com/syssam/strata/dialect/sql/schema"
	"github.com/syssam/strata/dialect/sqlschema"
	"github.com/syssam/strata/persister"
	"github.com/syssam/strata/schema/index"
	"github.com/syssam/strata/schema/naming"

	entity "github.com/syssam/strata/schema"
)

// Builder compiles entity declarations into persisters and the tables
// they write. Persisters are built once per entity type: later builds of
// the same type return the first persister. A Builder is not safe for
// concurrent use; the persisters it returns are.
type Builder struct {
	config *Config
	ex     dialect.ExecQuerier
	stats  *sql.StatsDriver
	tables *schema.Set
	// built holds the persisters of the successful builds.
	built map[reflect.Type]persister.Relational
	// ctx is the state of the running build, nil between builds.
	ctx *buildContext
}

// NewBuilder returns a builder configured by the options.
func NewBuilder(opts ...Option) (*Builder, error) {
	cfg, err := NewConfig(opts...)
	if err != nil {
		return nil, err
	}
	ex, stats := cfg.executor()
	return &Builder{
		config: cfg,
		ex:     ex,
		stats:  stats,
		tables: schema.NewSet(),
		built:  make(map[reflect.Type]persister.Relational),
	}, nil
}

// Config returns the configuration of the builder.
func (b *Builder) Config() *Config { return b.config }

// Stats returns the driver counting the statements of the built
// persisters, or nil if the builder was configured without WithStats.
// Transactions it starts are counted as well.
func (b *Builder) Stats() *sql.StatsDriver { return b.stats }

// Build returns the persister of e, building the persisters of the
// entities its relations target. A failed build leaves the builder as it
// was before the call: no persister is registered and the tables lose what
// the build added. Persisters built by earlier calls lose the shadow
// columns it added.
func (b *Builder) Build(e *entity.Entity) (persister.Relational, error) {
	if e == nil {
		return nil, strata.NewConfigurationError("", "nil entity")
	}
	if b.ctx != nil {
		return b.build(e)
	}
	ctx := newBuildContext(b.built, b.tables.Checkpoint())
	b.ctx = ctx
	p, err := b.build(e)
	if err == nil {
		err = ctx.finalize()
	}
	if err == nil {
		if verr := schema.ValidateSchema(b.tables.Tables()).Err(); verr != nil {
			err = strata.NewConfigurationError(e.Name(), "invalid schema").Wrap(verr)
		}
	}
	b.ctx = nil
	if err != nil {
		b.tables.Rollback(ctx.checkpoint)
		ctx.rollback()
		b.config.Logger.Error("build failed", "entity", e.Name(), "error", err)
		return nil, err
	}
	for t, p := range ctx.registry {
		b.built[t] = p
	}
	b.config.Logger.Info("build completed", "entity", e.Name(), "persisters", len(b.built), "tables", len(b.tables.Tables()))
	return p, nil
}

// MustBuild is like Build but panics on error.
func (b *Builder) MustBuild(e *entity.Entity) persister.Relational {
	p, err := b.Build(e)
	if err != nil {
		panic(err)
	}
	return p
}

// Persister returns the persister built for the entity type t.
func (b *Builder) Persister(t reflect.Type) (persister.Relational, bool) {
	p, ok := b.built[t]
	return p, ok
}

// Tables returns the tables of the built entities, in creation order.
func (b *Builder) Tables() []*schema.Table { return b.tables.Tables() }

// Sorted returns the tables of the built entities, referenced tables
// first.
func (b *Builder) Sorted() []*schema.Table { return b.tables.Sorted() }

// Atlas returns the atlas schema of the built tables.
func (b *Builder) Atlas() (*atlas.Schema, error) {
	return schema.Atlas(b.config.Dialect, b.config.SchemaName, b.tables.Sorted())
}

// DDL returns the statements creating the built tables.
func (b *Builder) DDL(ctx context.Context) ([]string, error) {
	return schema.DDL(ctx, b.config.Dialect, b.tables.Sorted())
}

// group is a table of an entity hierarchy and the levels mapped to it.
type group struct {
	table    *schema.Table
	levels   []*entity.Entity
	id       *persister.Identifier
	strategy *persister.Strategy
}

// build runs the steps of one entity. It is called recursively for the
// targets of relations.
func (b *Builder) build(e *entity.Entity) (persister.Relational, error) {
	ctx := b.ctx
	if p, ok := ctx.lookup(e.Type()); ok {
		b.config.Logger.Debug("persister reused", "entity", e.Name())
		return p, nil
	}
	if e.New() == nil {
		return nil, strata.NewConfigurationError(e.Name(), "entity type %v must be a pointer to a struct", e.Type())
	}
	_, tpc := e.Polymorphism().(*entity.TablePerClass)
	ns := b.naming(e)
	groups, err := b.groups(e, ns)
	if err != nil {
		return nil, err
	}
	id, err := identify(e)
	if err != nil {
		return nil, err
	}
	if groups[0].id, err = primaryKey(e.Name(), id, groups[0].table, ns); err != nil {
		return nil, err
	}
	for i := 1; i < len(groups); i++ {
		if groups[i].id, err = propagate(e.Name(), groups[i-1].id, groups[i].table, groups[i-1].table, ns); err != nil {
			return nil, err
		}
	}
	for i, g := range groups {
		var manager persister.InsertionManager = persister.FallbackManager{}
		if i == 0 {
			manager = persister.NewManager(g.id, b.config.KeysReader)
		}
		g.strategy = persister.NewStrategy(e.Type(), g.table, g.id, manager, b.config.Dialect)
		var props []*persister.Property
		for _, level := range g.levels {
			lp, err := mapping.Resolve(level.Name(), level.Mapping(), g.table, ns)
			if err != nil {
				return nil, err
			}
			props = append(props, lp...)
		}
		if err := checkProperties(e.Name(), g.table, nil, props); err != nil {
			return nil, err
		}
		g.strategy.AddProperties(props...)
	}
	main := groups[len(groups)-1].strategy
	chain := make([]*persister.Strategy, 0, len(groups)-1)
	for i := len(groups) - 2; i >= 0; i-- {
		chain = append(chain, groups[i].strategy)
	}
	ep := persister.NewEntityPersister(persister.Config{
		Type:      e.Type(),
		CacheType: groups[0].levels[0].Type(),
		New:       e.New,
		Main:      main,
		Chain:     chain,
		Executor:  b.ex,
		Dialect:   b.config.Dialect,
		Logger:    b.config.Logger,
	})
	ctx.register(e.Type(), ep)

	pop := ctx.push(e.Type())
	defer pop()
	for _, g := range groups {
		for _, level := range g.levels {
			if tpc && len(level.Relations()) > 0 {
				return nil, strata.NewConfigurationError(e.Name(),
					"relations of table-per-class entities are not supported").WithProperty(level.Relations()[0].PropertyName())
			}
			src := &source{
				name:      e.Name(),
				typ:       level.Type(),
				persister: ep,
				strategy:  g.strategy,
				naming:    ns,
			}
			if err := b.relations(src, level.Relations()); err != nil {
				return nil, err
			}
		}
	}
	for _, g := range groups {
		for _, level := range g.levels {
			if err := addIndexes(e.Name(), g.table, g.strategy.Properties(), level.IndexDescriptors()); err != nil {
				return nil, err
			}
		}
	}
	var p persister.Relational = ep
	if poly := e.Polymorphism(); poly != nil {
		pp, err := b.polymorphic(e.Name(), ep, ns, poly, nil)
		if err != nil {
			return nil, err
		}
		ctx.register(e.Type(), pp)
		p = pp
	}
	b.config.Logger.Debug("persister built", "entity", e.Name(), "table", main.Table().Name, "chain", len(chain))
	return p, nil
}

// naming returns the naming strategy of e: the first declared walking up
// its hierarchy, completed by the default strategy.
func (b *Builder) naming(e *entity.Entity) *naming.Strategy {
	chain := e.Chain()
	for i := len(chain) - 1; i >= 0; i-- {
		level := chain[i]
		if s := level.Naming(); s != nil {
			return s.Merge(b.config.Naming)
		}
		if s := level.Mapping().Naming(); s != nil {
			return s.Merge(b.config.Naming)
		}
	}
	return b.config.Naming
}

// groups splits the hierarchy of e in tables, root first. A level extending
// its parent with a joined table starts a new table; the others share the
// table of their parent.
func (b *Builder) groups(e *entity.Entity, ns *naming.Strategy) ([]*group, error) {
	chain := e.Chain()
	root := chain[0]
	name := root.Table()
	if name == "" {
		name = ns.TableOf(root.Type())
	}
	groups := []*group{{table: b.table(name), levels: []*entity.Entity{root}}}
	for _, level := range chain[1:] {
		last := groups[len(groups)-1]
		if level.Joined() {
			name := level.JoinTable()
			if name == "" {
				name = ns.TableOf(level.Type())
			}
			if name == last.table.Name {
				return nil, strata.NewConfigurationError(level.Name(), "joined table %q is the table of its parent", name).
					WithTable(name)
			}
			groups = append(groups, &group{table: b.table(name), levels: []*entity.Entity{level}})
			continue
		}
		if t := level.Table(); t != "" && t != last.table.Name {
			return nil, strata.NewConfigurationError(level.Name(), "table %q differs from the inherited table %q",
				t, last.table.Name).WithTable(t)
		}
		last.levels = append(last.levels, level)
	}
	return groups, nil
}

// table returns the table of the given name, creating it when needed.
func (b *Builder) table(name string) *schema.Table {
	t, created := b.tables.GetOrCreate(name)
	if created {
		b.config.Logger.Debug("table created", "table", name)
	}
	return t
}

// checkProperties fails when a writable property maps a primary key column
// or a column of another writable property. Properties of shared are
// mapped to the same table.
func checkProperties(name string, table *schema.Table, shared, props []*persister.Property) error {
	pk := make(map[string]bool, len(table.PrimaryKey))
	for _, c := range table.PrimaryKey {
		pk[c.Name] = true
	}
	owner := make(map[string]string)
	for _, p := range shared {
		if !p.ReadOnly {
			owner[p.Column.Name] = p.Path.String()
		}
	}
	for _, p := range props {
		if p.ReadOnly {
			continue
		}
		column := p.Column.Name
		if pk[column] {
			return strata.NewConfigurationError(name, "property %s is mapped to primary key column %q", p.Path, column).
				WithProperty(p.Path.String()).WithTable(table.Name)
		}
		if other, ok := owner[column]; ok && other != p.Path.String() {
			return strata.NewConfigurationError(name, "column %q is mapped by %s and %s", column, other, p.Path).
				WithProperty(p.Path.String()).WithTable(table.Name)
		}
		owner[column] = p.Path.String()
	}
	return nil
}

// addForeignKey adds to table a foreign key from columns to the primary
// key of ref.
func addForeignKey(ns *naming.Strategy, table *schema.Table, columns []*schema.Column, ref *schema.Table, ant sqlschema.Annotation) {
	names := make([]string, len(columns))
	for i, c := range columns {
		names[i] = c.Name
	}
	table.AddForeignKey(&schema.ForeignKey{
		Symbol:     ns.ForeignKeyOf(table.Name, names, ref.Name),
		Columns:    columns,
		RefTable:   ref,
		RefColumns: ref.PrimaryKey,
		OnDelete:   ant.OnDelete,
		OnUpdate:   ant.OnUpdate,
	})
}

// addIndexes adds the declared indexes to table. Fields are resolved to
// the columns of the properties of the same path.
func addIndexes(name string, table *schema.Table, props []*persister.Property, descs []*index.Descriptor) error {
	for _, d := range descs {
		var columns []string
		for _, f := range d.Fields {
			c, ok := propertyColumn(props, f)
			if !ok {
				return strata.NewConfigurationError(name, "index field %s is not a mapped property", f).
					WithTable(table.Name)
			}
			columns = append(columns, c.Name)
		}
		for _, c := range d.Columns {
			if !table.HasColumn(c) {
				return strata.NewConfigurationError(name, "index column %q does not exist", c).WithTable(table.Name)
			}
			columns = append(columns, c)
		}
		if len(columns) == 0 {
			return strata.NewConfigurationError(name, "index has no columns").WithTable(table.Name)
		}
		key := d.StorageKey
		if key == "" {
			key = indexName(table.Name, columns, d.Unique)
		}
		addIndex(table, key, d.Unique, columns)
	}
	return nil
}

func propertyColumn(props []*persister.Property, path string) (*schema.Column, bool) {
	for _, p := range props {
		if p.Path.String() == path {
			return p.Column, true
		}
	}
	return nil, false
}

func indexName(table string, columns []string, unique bool) string {
	suffix := "_idx"
	if unique {
		suffix = "_key"
	}
	return fmt.Sprintf("%s_%s%s", table, strings.Join(columns, "_"), suffix)
}

// addIndex adds an index unless the table has one of the same name.
func addIndex(table *schema.Table, name string, unique bool, columns []string) {
	if _, ok := table.Index(name); ok {
		return
	}
	table.AddIndex(name, unique, columns)
}
