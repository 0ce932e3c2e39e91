package persister

import (
	"context"
	"log/slog"
	"reflect"

	"github.com/syssam/strata"
	"github.com/syssam/strata/dialect"
	"github.com/syssam/strata/dialect/sql/schema"
	"github.com/syssam/strata/dialect/sql/sqlgraph"
	"github.com/syssam/strata/schema/field"
)

// Pair is a modified entity and its state before modification.
type Pair struct {
	Modified   any
	Unmodified any
}

// Persister writes and reads entities of one type.
type Persister interface {
	// Insert inserts the entities and cascades to their relations.
	Insert(ctx context.Context, entities []any) error
	// Update writes the differences of each pair and cascades to their
	// relations. allColumns writes every column.
	Update(ctx context.Context, pairs []Pair, allColumns bool) error
	// UpdateByID writes every column of the entities, without cascade.
	UpdateByID(ctx context.Context, entities []any) error
	// Delete deletes the entities and cascades to their relations.
	Delete(ctx context.Context, entities []any) error
	// DeleteByID deletes the rows of the entity identifiers.
	DeleteByID(ctx context.Context, entities []any) error
	// Select loads the entities of the given identifiers with their
	// relations. Missing identifiers are ignored.
	Select(ctx context.Context, ids []any) ([]any, error)
	// Persist inserts new entities and updates the others against their
	// stored state.
	Persist(ctx context.Context, entities []any) error
}

// Relational is a persister that relations can target.
type Relational interface {
	Persister
	// EntityType returns the entity type.
	EntityType() reflect.Type
	// CacheType returns the type keying instances in an operation: the
	// root type of the entity hierarchy.
	CacheType() reflect.Type
	// Identifier returns the identifier bound to Table.
	Identifier() *Identifier
	// Table returns the most specific table.
	Table() *schema.Table
	// Strategy returns the strategy of Table.
	Strategy() *Strategy
	// Listeners returns the listeners relations register on.
	Listeners() *Listeners
	// Tree returns the join tree selecting the entities.
	Tree() *sqlgraph.Tree
}

// Config configures an EntityPersister.
type Config struct {
	// Type of the entities; CacheType the root type of their hierarchy.
	Type, CacheType reflect.Type
	// New returns a new instance.
	New func() any
	// Main is the strategy of the most specific table.
	Main *Strategy
	// Chain holds the strategies of the parent tables, closest first.
	Chain []*Strategy
	// Executor runs the statements of operations without executor in
	// their context.
	Executor dialect.ExecQuerier
	Dialect  string
	Logger   *slog.Logger
}

// EntityPersister persists entities of one type over the tables of its
// inheritance chain.
type EntityPersister struct {
	typ       reflect.Type
	cacheType reflect.Type
	newFn     func() any
	main      *Strategy
	chain     []*Strategy
	listeners *Listeners
	tree      *sqlgraph.Tree
	nodes     map[*Strategy]*sqlgraph.Node
	ex        dialect.ExecQuerier
	dialect   string
	logger    *slog.Logger
}

// NewEntityPersister returns the persister of cfg. Its join tree selects
// the main table and inner joins the parent tables on the primary key.
func NewEntityPersister(cfg Config) *EntityPersister {
	p := &EntityPersister{
		typ:       cfg.Type,
		cacheType: cfg.CacheType,
		newFn:     cfg.New,
		main:      cfg.Main,
		chain:     cfg.Chain,
		listeners: &Listeners{},
		nodes:     make(map[*Strategy]*sqlgraph.Node),
		ex:        cfg.Executor,
		dialect:   cfg.Dialect,
		logger:    cfg.Logger,
	}
	if p.cacheType == nil {
		p.cacheType = p.typ
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	p.tree = sqlgraph.NewTree(p.main.Table(), p.main.Columns(), sqlgraph.ConsumerFunc(p.consume))
	p.nodes[p.main] = p.tree.Root()
	for _, s := range p.chain {
		p.nodes[s] = p.tree.Add(p.tree.Root(), sqlgraph.Join{
			Kind:     sqlgraph.Merge,
			Table:    s.Table(),
			Columns:  s.Columns(),
			Left:     p.main.Identifier().Columns(),
			Right:    s.Identifier().Columns(),
			Consumer: merge(s),
		})
	}
	return p
}

// EntityType implements Relational.
func (p *EntityPersister) EntityType() reflect.Type { return p.typ }

// CacheType implements Relational.
func (p *EntityPersister) CacheType() reflect.Type { return p.cacheType }

// Identifier implements Relational.
func (p *EntityPersister) Identifier() *Identifier { return p.main.Identifier() }

// Table implements Relational.
func (p *EntityPersister) Table() *schema.Table { return p.main.Table() }

// Strategy implements Relational.
func (p *EntityPersister) Strategy() *Strategy { return p.main }

// Chain returns the strategies of the parent tables, closest first.
func (p *EntityPersister) Chain() []*Strategy { return p.chain }

// Listeners implements Relational.
func (p *EntityPersister) Listeners() *Listeners { return p.listeners }

// Tree implements Relational.
func (p *EntityPersister) Tree() *sqlgraph.Tree { return p.tree }

// Node returns the tree node of the table of strategy s.
func (p *EntityPersister) Node(s *Strategy) *sqlgraph.Node { return p.nodes[s] }

// Executor returns the default executor.
func (p *EntityPersister) Executor() dialect.ExecQuerier { return p.ex }

// strategies returns the strategies from the root table to the main one.
func (p *EntityPersister) strategies() []*Strategy {
	ss := make([]*Strategy, 0, len(p.chain)+1)
	for i := len(p.chain) - 1; i >= 0; i-- {
		ss = append(ss, p.chain[i])
	}
	return append(ss, p.main)
}

// Insert implements Persister. Rows are inserted from the root table to
// the main one.
func (p *EntityPersister) Insert(ctx context.Context, entities []any) error {
	if len(entities) == 0 {
		return nil
	}
	ctx, op, owned := begin(ctx, p.ex)
	if owned {
		defer op.release()
	}
	if err := p.prepare(ctx, entities); err != nil {
		return err
	}
	if err := p.listeners.beforeInsert(ctx, entities); err != nil {
		return err
	}
	if err := p.insertRows(ctx, op, entities); err != nil {
		return err
	}
	return p.listeners.afterInsert(ctx, entities)
}

// prepare lets the insertion managers assign identifiers.
func (p *EntityPersister) prepare(ctx context.Context, entities []any) error {
	for _, s := range p.strategies() {
		if err := s.Manager().Prepare(ctx, entities); err != nil {
			return err
		}
	}
	return nil
}

func (p *EntityPersister) insertRows(ctx context.Context, op *operation, entities []any) error {
	for _, s := range p.strategies() {
		if err := s.Insert(ctx, op.ex, entities); err != nil {
			return err
		}
	}
	return nil
}

// Update implements Persister. The main row is updated before the rows of
// the parent tables.
func (p *EntityPersister) Update(ctx context.Context, pairs []Pair, allColumns bool) error {
	if len(pairs) == 0 {
		return nil
	}
	ctx, op, owned := begin(ctx, p.ex)
	if owned {
		defer op.release()
	}
	if err := p.listeners.beforeUpdate(ctx, pairs, allColumns); err != nil {
		return err
	}
	if err := p.updateRows(ctx, op, pairs, allColumns); err != nil {
		return err
	}
	return p.listeners.afterUpdate(ctx, pairs, allColumns)
}

func (p *EntityPersister) updateRows(ctx context.Context, op *operation, pairs []Pair, allColumns bool) error {
	for _, s := range append([]*Strategy{p.main}, p.chain...) {
		if err := s.Update(ctx, op.ex, pairs, allColumns); err != nil {
			return err
		}
	}
	return nil
}

// UpdateByID implements Persister.
func (p *EntityPersister) UpdateByID(ctx context.Context, entities []any) error {
	if len(entities) == 0 {
		return nil
	}
	ctx, op, owned := begin(ctx, p.ex)
	if owned {
		defer op.release()
	}
	pairs := make([]Pair, len(entities))
	for i, e := range entities {
		pairs[i] = Pair{Modified: e}
	}
	return p.updateRows(ctx, op, pairs, true)
}

// Delete implements Persister. Rows are deleted from the main table to the
// root one.
func (p *EntityPersister) Delete(ctx context.Context, entities []any) error {
	return p.delete(ctx, entities, func(l *Listeners) []DeleteListener { return l.delete })
}

// DeleteByID implements Persister.
func (p *EntityPersister) DeleteByID(ctx context.Context, entities []any) error {
	return p.delete(ctx, entities, func(l *Listeners) []DeleteListener { return l.deleteByID })
}

func (p *EntityPersister) delete(ctx context.Context, entities []any, listeners func(*Listeners) []DeleteListener) error {
	if len(entities) == 0 {
		return nil
	}
	ctx, op, owned := begin(ctx, p.ex)
	if owned {
		defer op.release()
	}
	if err := runDelete(ctx, listeners(p.listeners), entities, true); err != nil {
		return err
	}
	if err := p.deleteRows(ctx, op, entities); err != nil {
		return err
	}
	return runDelete(ctx, listeners(p.listeners), entities, false)
}

func (p *EntityPersister) deleteRows(ctx context.Context, op *operation, entities []any) error {
	for _, s := range append([]*Strategy{p.main}, p.chain...) {
		if err := s.Delete(ctx, op.ex, entities); err != nil {
			return err
		}
	}
	return nil
}

// Select implements Persister.
func (p *EntityPersister) Select(ctx context.Context, ids []any) ([]any, error) {
	ctx, op, owned := begin(ctx, p.ex)
	if owned {
		defer op.release()
	}
	if err := p.listeners.beforeSelect(ctx, ids); err != nil {
		return nil, err
	}
	if err := p.load(ctx, op, ids); err != nil {
		return nil, err
	}
	if owned {
		if err := op.finish(ctx); err != nil {
			return nil, err
		}
	}
	entities := op.collect(p.cacheType, ids)
	if err := p.listeners.afterSelect(ctx, entities); err != nil {
		return nil, err
	}
	return entities, nil
}

// load walks the join tree for the given identifiers.
func (p *EntityPersister) load(ctx context.Context, op *operation, ids []any) error {
	ids = distinctIDs(ids)
	if len(ids) == 0 {
		return nil
	}
	pred, err := p.main.Identifier().Predicate(ids, p.tree.Root().C)
	if err != nil {
		return err
	}
	if err := p.tree.Walk(ctx, op.ex, p.dialect, pred); err != nil {
		if strata.IsMappingError(err) {
			return err
		}
		return strata.NewQueryError(field.TypeName(p.typ), err)
	}
	return nil
}

// Persist implements Persister.
func (p *EntityPersister) Persist(ctx context.Context, entities []any) error {
	return persist(ctx, p, p.ex, entities)
}

// consume reads the entity of a row of the main table, reusing the
// instance of the operation cache.
func (p *EntityPersister) consume(ctx context.Context, row *sqlgraph.Row, n *sqlgraph.Node, _ any) (any, error) {
	op := operationFrom(ctx)
	id, err := p.main.Identifier().Assembler.Assemble(row.Values(n, p.main.Identifier().Columns()))
	if err != nil {
		return nil, strata.NewMappingError(field.TypeName(p.typ), "", nil, err.Error())
	}
	if id == nil {
		return nil, nil
	}
	e, ok := op.cached(p.cacheType, id)
	if !ok {
		e = p.newFn()
		if err := p.main.Identifier().SetID(e, id); err != nil {
			return nil, err
		}
		op.store(p.cacheType, id, e)
	}
	if err := p.main.Load(e, row, n); err != nil {
		return nil, err
	}
	return e, nil
}

// Consumer returns the consumer reading entities of the main table. It is
// the consumer of the tree root, and of the grafted copies of the tree.
func (p *EntityPersister) Consumer() sqlgraph.Consumer {
	return p.tree.Root().Consumer
}

// merge returns the consumer of a parent table: it loads the properties of
// the table into the entity read by the parent node.
func merge(s *Strategy) sqlgraph.Consumer {
	return sqlgraph.ConsumerFunc(func(_ context.Context, row *sqlgraph.Row, n *sqlgraph.Node, parent any) (any, error) {
		if err := s.Load(parent, row, n); err != nil {
			return nil, err
		}
		return parent, nil
	})
}

// collect returns the cached instances of the identifiers, in order and
// without duplicates.
func (op *operation) collect(t reflect.Type, ids []any) []any {
	var (
		entities []any
		seen     = make(map[any]bool)
	)
	for _, id := range ids {
		e, ok := op.cached(t, id)
		if !ok || seen[e] {
			continue
		}
		seen[e] = true
		entities = append(entities, e)
	}
	return entities
}

func distinctIDs(ids []any) []any {
	var (
		out  []any
		seen = make(map[any]bool)
	)
	for _, id := range ids {
		k := key(id)
		if k == nil || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, id)
	}
	return out
}

// distinct returns the non-nil entities without duplicates.
func distinct(entities []any) []any {
	var (
		out  []any
		seen = make(map[any]bool)
	)
	for _, e := range entities {
		if field.IsNil(e) || seen[e] {
			continue
		}
		seen[e] = true
		out = append(out, e)
	}
	return out
}

// persist inserts the new entities and updates the others against the
// state loaded by a separate operation.
func persist(ctx context.Context, p Relational, def dialect.ExecQuerier, entities []any) error {
	entities = distinct(entities)
	if len(entities) == 0 {
		return nil
	}
	ctx, op, owned := begin(ctx, def)
	if owned {
		defer op.release()
	}
	var inserts, lookups []any
	for _, e := range entities {
		if isNew, known := p.Identifier().IsNew(e); known && isNew {
			inserts = append(inserts, e)
		} else {
			lookups = append(lookups, e)
		}
	}
	var pairs []Pair
	if len(lookups) > 0 {
		ids := make([]any, len(lookups))
		for i, e := range lookups {
			ids[i] = p.Identifier().ID(e)
		}
		stored, err := p.Select(detach(ctx, op), ids)
		if err != nil {
			return err
		}
		byID := make(map[any]any, len(stored))
		for _, s := range stored {
			byID[key(p.Identifier().ID(s))] = s
		}
		for _, e := range lookups {
			if s, ok := byID[key(p.Identifier().ID(e))]; ok {
				pairs = append(pairs, Pair{Modified: e, Unmodified: s})
			} else {
				inserts = append(inserts, e)
			}
		}
	}
	if err := p.Insert(ctx, inserts); err != nil {
		return err
	}
	return p.Update(ctx, pairs, false)
}
