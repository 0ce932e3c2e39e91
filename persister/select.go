package persister

import (
	"context"
	"reflect"

	"github.com/syssam/strata/dialect/sql/schema"
	"github.com/syssam/strata/dialect/sql/sqlgraph"
	"github.com/syssam/strata/schema/field"
)

// Binder attaches a loaded target to its source entity.
type Binder interface {
	Bind(ctx context.Context, source, target any, index int) error
}

// OneBinder sets a single-valued relation, and its reverse property when
// the relation is bidirectional.
type OneBinder struct {
	Accessor *field.Accessor
	Reverse  *field.Accessor
}

// Bind implements Binder.
func (b *OneBinder) Bind(_ context.Context, source, target any, _ int) error {
	if err := b.Accessor.Set(source, target); err != nil {
		return err
	}
	if b.Reverse != nil && b.Reverse.CanSet() {
		return b.Reverse.Set(target, source)
	}
	return nil
}

// ManyBinder accumulates the targets of a collection. Collections are set
// once the outermost select finishes, sorted by index when indexed.
type ManyBinder struct {
	Accessor *field.Many
	Indexed  bool
	// MappedBy is the single-valued reverse property of the targets.
	MappedBy *field.Accessor
	// Reverse is the reverse collection of many-to-many targets.
	Reverse *field.Many
	// Footprint returns the identity of value elements. Entities are
	// identified by their instance.
	Footprint func(any) (any, error)
}

// Bind implements Binder.
func (b *ManyBinder) Bind(ctx context.Context, source, target any, index int) error {
	op := operationFrom(ctx)
	k := target
	if b.Footprint != nil {
		fp, err := b.Footprint(target)
		if err != nil {
			return err
		}
		k = fp
	}
	if op.apply(b, source, k, index) {
		op.accumulate(b, source, b.Accessor.Set, b.Indexed, target, index)
	}
	if b.MappedBy != nil && b.MappedBy.CanSet() {
		if err := b.MappedBy.Set(target, source); err != nil {
			return err
		}
	}
	if b.Reverse != nil && op.apply(b.Reverse, target, source, 0) {
		op.accumulate(b.Reverse, target, b.Reverse.Set, false, source, 0)
	}
	return nil
}

// IndexColumn locates the index column of an indexed collection.
type IndexColumn struct {
	Column *schema.Column
	// OnParent is set when the column belongs to the parent node, an
	// association table.
	OnParent bool
}

var intType = reflect.TypeFor[int]()

func (ic *IndexColumn) read(row *sqlgraph.Row, n *sqlgraph.Node) (int, error) {
	if ic == nil {
		return 0, nil
	}
	if ic.OnParent {
		n = n.Parent()
	}
	v, err := field.Convert(row.Value(n, ic.Column), intType)
	if err != nil || v == nil {
		return 0, err
	}
	return v.(int), nil
}

// Relation returns the consumer of a relation node: it reads the target
// with inner and binds it to the entity of the parent node.
func Relation(inner sqlgraph.Consumer, b Binder, index *IndexColumn) sqlgraph.Consumer {
	return sqlgraph.ConsumerFunc(func(ctx context.Context, row *sqlgraph.Row, n *sqlgraph.Node, parent any) (any, error) {
		target, err := inner.Consume(ctx, row, n, parent)
		if err != nil || target == nil {
			return nil, err
		}
		i, err := index.read(row, n)
		if err != nil {
			return nil, err
		}
		if err := b.Bind(ctx, parent, target, i); err != nil {
			return nil, err
		}
		return target, nil
	})
}

// CycleSolver loads the targets of the passive joins of one entity type.
// Its target is set once the whole graph is built.
type CycleSolver struct {
	target Relational
}

// NewCycleSolver returns a solver without target.
func NewCycleSolver() *CycleSolver { return &CycleSolver{} }

// Resolve sets the persister loading the targets.
func (s *CycleSolver) Resolve(target Relational) { s.target = target }

// Target returns the persister loading the targets.
func (s *CycleSolver) Target() Relational { return s.target }

// Passive returns the consumer of a passive node. It collects the target
// identifier, loaded and bound when the outermost select finishes.
func Passive(solver *CycleSolver, b Binder, index *IndexColumn) sqlgraph.Consumer {
	return sqlgraph.ConsumerFunc(func(ctx context.Context, row *sqlgraph.Row, n *sqlgraph.Node, parent any) (any, error) {
		id, err := solver.target.Identifier().Assembler.Assemble(row.Values(n, solver.target.Identifier().Columns()))
		if err != nil || id == nil {
			return nil, err
		}
		i, err := index.read(row, n)
		if err != nil {
			return nil, err
		}
		operationFrom(ctx).postpone(solver, id, func(target any) error {
			return b.Bind(ctx, parent, target, i)
		})
		return nil, nil
	})
}
