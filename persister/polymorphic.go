package persister

import (
	"context"
	"fmt"
	"reflect"

	"github.com/syssam/strata"
	"github.com/syssam/strata/dialect/sql/schema"
	"github.com/syssam/strata/dialect/sql/sqlgraph"
	"github.com/syssam/strata/schema/field"
)

// PolymorphismKind is the storage of the subtypes of a polymorphic entity.
type PolymorphismKind int

// Polymorphism kinds.
const (
	SingleTable PolymorphismKind = iota
	JoinedTables
	TablePerClass
)

// String returns the kind name.
func (k PolymorphismKind) String() string {
	switch k {
	case SingleTable:
		return "single-table"
	case JoinedTables:
		return "joined-tables"
	case TablePerClass:
		return "table-per-class"
	}
	return fmt.Sprintf("polymorphism(%d)", int(k))
}

// Subtype is a subtype of a polymorphic entity and its persister.
type Subtype struct {
	Type      reflect.Type
	Persister Relational
	// Discriminator is the value telling the rows of the subtype apart in
	// a single-table hierarchy.
	Discriminator any
}

// Polymorphic dispatches the operations of a polymorphic entity to the
// persisters of its subtypes, by runtime type for writes and by stored
// type for reads. Instances of the root type go to the root persister.
type Polymorphic struct {
	kind          PolymorphismKind
	root          *EntityPersister
	subs          []Subtype
	discriminator *schema.Column
	rootValue     any
}

// NewPolymorphic returns the dispatcher of a polymorphic hierarchy.
func NewPolymorphic(kind PolymorphismKind, root *EntityPersister, subs ...Subtype) *Polymorphic {
	return &Polymorphic{kind: kind, root: root, subs: subs}
}

// Discriminate sets the discriminator column of a single-table hierarchy,
// and the value of root instances.
func (p *Polymorphic) Discriminate(c *schema.Column, rootValue any) *Polymorphic {
	p.discriminator = c
	p.rootValue = rootValue
	return p
}

// Kind returns the polymorphism kind.
func (p *Polymorphic) Kind() PolymorphismKind { return p.kind }

// Root returns the persister of the root type.
func (p *Polymorphic) Root() *EntityPersister { return p.root }

// Subtypes returns the subtypes.
func (p *Polymorphic) Subtypes() []Subtype { return p.subs }

// EntityType implements Relational.
func (p *Polymorphic) EntityType() reflect.Type { return p.root.EntityType() }

// CacheType implements Relational.
func (p *Polymorphic) CacheType() reflect.Type { return p.root.CacheType() }

// Identifier implements Relational.
func (p *Polymorphic) Identifier() *Identifier { return p.root.Identifier() }

// Table implements Relational.
func (p *Polymorphic) Table() *schema.Table { return p.root.Table() }

// Strategy implements Relational.
func (p *Polymorphic) Strategy() *Strategy { return p.root.Strategy() }

// Listeners implements Relational. Relations of the root type register
// on the root persister.
func (p *Polymorphic) Listeners() *Listeners { return p.root.Listeners() }

// Tree implements Relational.
func (p *Polymorphic) Tree() *sqlgraph.Tree { return p.root.Tree() }

// Consumer returns the consumer reading root instances.
func (p *Polymorphic) Consumer() sqlgraph.Consumer { return p.root.Consumer() }

// handles reports whether r persists instances of type t.
func handles(r Relational, t reflect.Type) bool {
	if r.EntityType() == t {
		return true
	}
	if pp, ok := r.(*Polymorphic); ok {
		for _, s := range pp.subs {
			if handles(s.Persister, t) {
				return true
			}
		}
	}
	return false
}

// group partitions entities per subtype persister, in subtype order. The
// index -1 holds root instances.
func (p *Polymorphic) group(entities []any, typeOf func(any) any) (map[int][]any, error) {
	groups := make(map[int][]any)
	for _, e := range entities {
		t := reflect.TypeOf(typeOf(e))
		i, ok := p.lookup(t)
		if !ok {
			return nil, strata.NewMappingError(field.TypeName(p.root.EntityType()), "", e,
				fmt.Sprintf("no persister for subtype %s", t))
		}
		groups[i] = append(groups[i], e)
	}
	return groups, nil
}

func (p *Polymorphic) lookup(t reflect.Type) (int, bool) {
	if t == p.root.EntityType() {
		return -1, true
	}
	for i, s := range p.subs {
		if handles(s.Persister, t) {
			return i, true
		}
	}
	return 0, false
}

func self(e any) any { return e }

func modified(e any) any { return e.(Pair).Modified }

// each runs root on the root instances and sub on the instances of each
// subtype, in subtype order.
func (p *Polymorphic) each(groups map[int][]any, root func([]any) error, sub func(Relational, []any) error) error {
	if es, ok := groups[-1]; ok {
		if err := root(es); err != nil {
			return err
		}
	}
	for i, s := range p.subs {
		if es, ok := groups[i]; ok {
			if err := sub(s.Persister, es); err != nil {
				return err
			}
		}
	}
	return nil
}

// Insert implements Persister.
func (p *Polymorphic) Insert(ctx context.Context, entities []any) error {
	if len(entities) == 0 {
		return nil
	}
	ctx, op, owned := begin(ctx, p.root.ex)
	if owned {
		defer op.release()
	}
	groups, err := p.group(entities, self)
	if err != nil {
		return err
	}
	if err := p.root.listeners.beforeInsert(ctx, entities); err != nil {
		return err
	}
	err = p.each(groups,
		func(es []any) error {
			if err := p.root.prepare(ctx, es); err != nil {
				return err
			}
			return p.root.insertRows(ctx, op, es)
		},
		func(r Relational, es []any) error { return r.Insert(ctx, es) },
	)
	if err != nil {
		return err
	}
	return p.root.listeners.afterInsert(ctx, entities)
}

// Update implements Persister.
func (p *Polymorphic) Update(ctx context.Context, pairs []Pair, allColumns bool) error {
	if len(pairs) == 0 {
		return nil
	}
	ctx, op, owned := begin(ctx, p.root.ex)
	if owned {
		defer op.release()
	}
	items := make([]any, len(pairs))
	for i, pr := range pairs {
		items[i] = pr
	}
	groups, err := p.group(items, modified)
	if err != nil {
		return err
	}
	if err := p.root.listeners.beforeUpdate(ctx, pairs, allColumns); err != nil {
		return err
	}
	err = p.each(groups,
		func(es []any) error { return p.root.updateRows(ctx, op, pairsOf(es), allColumns) },
		func(r Relational, es []any) error { return r.Update(ctx, pairsOf(es), allColumns) },
	)
	if err != nil {
		return err
	}
	return p.root.listeners.afterUpdate(ctx, pairs, allColumns)
}

func pairsOf(items []any) []Pair {
	pairs := make([]Pair, len(items))
	for i, it := range items {
		pairs[i] = it.(Pair)
	}
	return pairs
}

// UpdateByID implements Persister.
func (p *Polymorphic) UpdateByID(ctx context.Context, entities []any) error {
	if len(entities) == 0 {
		return nil
	}
	ctx, op, owned := begin(ctx, p.root.ex)
	if owned {
		defer op.release()
	}
	groups, err := p.group(entities, self)
	if err != nil {
		return err
	}
	return p.each(groups,
		func(es []any) error { return p.root.UpdateByID(ctx, es) },
		func(r Relational, es []any) error { return r.UpdateByID(ctx, es) },
	)
}

// Delete implements Persister.
func (p *Polymorphic) Delete(ctx context.Context, entities []any) error {
	return p.delete(ctx, entities, false)
}

// DeleteByID implements Persister.
func (p *Polymorphic) DeleteByID(ctx context.Context, entities []any) error {
	return p.delete(ctx, entities, true)
}

func (p *Polymorphic) delete(ctx context.Context, entities []any, byID bool) error {
	if len(entities) == 0 {
		return nil
	}
	ctx, op, owned := begin(ctx, p.root.ex)
	if owned {
		defer op.release()
	}
	groups, err := p.group(entities, self)
	if err != nil {
		return err
	}
	listeners := p.root.listeners.delete
	if byID {
		listeners = p.root.listeners.deleteByID
	}
	if err := runDelete(ctx, listeners, entities, true); err != nil {
		return err
	}
	err = p.each(groups,
		func(es []any) error { return p.root.deleteRows(ctx, op, es) },
		func(r Relational, es []any) error {
			if byID {
				return r.DeleteByID(ctx, es)
			}
			return r.Delete(ctx, es)
		},
	)
	if err != nil {
		return err
	}
	return runDelete(ctx, listeners, entities, false)
}

// Select implements Persister. It resolves the stored subtype of each
// identifier, loads each group through its subtype persister, then loads
// the relations of the root type for the subtype instances.
func (p *Polymorphic) Select(ctx context.Context, ids []any) ([]any, error) {
	ctx, op, owned := begin(ctx, p.root.ex)
	if owned {
		defer op.release()
	}
	if err := p.root.listeners.beforeSelect(ctx, ids); err != nil {
		return nil, err
	}
	ids = distinctIDs(ids)
	if len(ids) > 0 {
		groups, err := p.resolve(ctx, op, ids)
		if err != nil {
			return nil, err
		}
		var subIDs []any
		err = p.each(groups,
			func(ids []any) error { return p.root.load(ctx, op, ids) },
			func(r Relational, ids []any) error {
				subIDs = append(subIDs, ids...)
				_, err := r.Select(ctx, ids)
				return err
			},
		)
		if err != nil {
			return nil, err
		}
		if p.kind != TablePerClass && len(subIDs) > 0 {
			if err := p.root.load(ctx, op, subIDs); err != nil {
				return nil, err
			}
		}
	}
	if owned {
		if err := op.finish(ctx); err != nil {
			return nil, err
		}
	}
	entities := op.collect(p.CacheType(), ids)
	if err := p.root.listeners.afterSelect(ctx, entities); err != nil {
		return nil, err
	}
	return entities, nil
}

// resolve groups the identifiers by stored subtype. Missing identifiers
// are dropped.
func (p *Polymorphic) resolve(ctx context.Context, op *operation, ids []any) (map[int][]any, error) {
	id := p.root.Identifier()
	groups := make(map[int][]any)
	add := func(i int) sqlgraph.Consumer {
		return sqlgraph.ConsumerFunc(func(_ context.Context, row *sqlgraph.Row, n *sqlgraph.Node, _ any) (any, error) {
			v, err := id.Assembler.Assemble(row.Values(n, id.Columns()))
			if err != nil || v == nil {
				return nil, err
			}
			groups[i] = append(groups[i], v)
			return nil, nil
		})
	}
	var (
		trees []*sqlgraph.Tree
		after func()
	)
	switch p.kind {
	case SingleTable:
		values := make(map[string]int, len(p.subs)+1)
		values[fmt.Sprint(p.rootValue)] = -1
		for i, s := range p.subs {
			values[fmt.Sprint(s.Discriminator)] = i
		}
		columns := append(append([]*schema.Column(nil), id.Columns()...), p.discriminator)
		trees = append(trees, sqlgraph.NewTree(p.Table(), columns, sqlgraph.ConsumerFunc(
			func(ctx context.Context, row *sqlgraph.Row, n *sqlgraph.Node, parent any) (any, error) {
				d := fmt.Sprint(row.Value(n, p.discriminator))
				i, ok := values[d]
				if !ok {
					return nil, strata.NewMappingError(field.TypeName(p.EntityType()), "", nil,
						fmt.Sprintf("unknown discriminator value %q", d))
				}
				return add(i).Consume(ctx, row, n, parent)
			})))
	case JoinedTables:
		var (
			stored []any
			found  = make(map[any]bool)
		)
		tree := sqlgraph.NewTree(p.Table(), id.Columns(), sqlgraph.ConsumerFunc(
			func(_ context.Context, row *sqlgraph.Row, n *sqlgraph.Node, _ any) (any, error) {
				v, err := id.Assembler.Assemble(row.Values(n, id.Columns()))
				if err != nil || v == nil {
					return nil, err
				}
				stored = append(stored, v)
				return v, nil
			}))
		for i, s := range p.subs {
			sid := s.Persister.Identifier()
			tree.Add(tree.Root(), sqlgraph.Join{
				Kind:    sqlgraph.Relation,
				Table:   s.Persister.Table(),
				Columns: sid.Columns(),
				Left:    id.Columns(),
				Right:   sid.Columns(),
				Consumer: sqlgraph.ConsumerFunc(func(_ context.Context, row *sqlgraph.Row, n *sqlgraph.Node, _ any) (any, error) {
					v, err := sid.Assembler.Assemble(row.Values(n, sid.Columns()))
					if err != nil || v == nil {
						return nil, err
					}
					found[key(v)] = true
					groups[i] = append(groups[i], v)
					return nil, nil
				}),
			})
		}
		trees = append(trees, tree)
		// Rows without subtype row are root instances.
		after = func() {
			for _, v := range stored {
				if !found[key(v)] {
					groups[-1] = append(groups[-1], v)
				}
			}
		}
	case TablePerClass:
		trees = append(trees, sqlgraph.NewTree(p.Table(), id.Columns(), add(-1)))
		for i, s := range p.subs {
			sid := s.Persister.Identifier()
			trees = append(trees, sqlgraph.NewTree(s.Persister.Table(), sid.Columns(), sqlgraph.ConsumerFunc(
				func(_ context.Context, row *sqlgraph.Row, n *sqlgraph.Node, _ any) (any, error) {
					v, err := sid.Assembler.Assemble(row.Values(n, sid.Columns()))
					if err != nil || v == nil {
						return nil, err
					}
					groups[i] = append(groups[i], v)
					return nil, nil
				})))
		}
	}
	for _, t := range trees {
		if err := p.walk(ctx, op, t, ids); err != nil {
			return nil, err
		}
	}
	if after != nil {
		after()
	}
	return groups, nil
}

func (p *Polymorphic) walk(ctx context.Context, op *operation, t *sqlgraph.Tree, ids []any) error {
	id := p.root.Identifier().Bind(t.Root().Table.PrimaryKey)
	pred, err := id.Predicate(ids, t.Root().C)
	if err != nil {
		return err
	}
	if err := t.Walk(ctx, op.ex, p.root.dialect, pred); err != nil {
		if strata.IsMappingError(err) {
			return err
		}
		return strata.NewQueryError(field.TypeName(p.EntityType()), err)
	}
	return nil
}

// Persist implements Persister.
func (p *Polymorphic) Persist(ctx context.Context, entities []any) error {
	return persist(ctx, p, p.root.ex, entities)
}

var (
	_ Relational = (*EntityPersister)(nil)
	_ Relational = (*Polymorphic)(nil)
)
