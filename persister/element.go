package persister

import (
	"context"
	"fmt"
	"reflect"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/syssam/strata"
	"github.com/syssam/strata/dialect"
	"github.com/syssam/strata/dialect/sql"
	"github.com/syssam/strata/dialect/sql/schema"
	"github.com/syssam/strata/dialect/sql/sqlgraph"
	"github.com/syssam/strata/schema/field"
)

// ElementStrategy writes the rows of an element collection: one row per
// distinct element, keyed by the owner identifier and the element columns.
// Elements are either single values stored in one column, or embeddable
// values whose properties are mapped to columns.
type ElementStrategy struct {
	table   *schema.Table
	owner   *Identifier
	elem    reflect.Type
	value   *schema.Column
	props   []*Property
	dialect string
}

// NewElementStrategy returns the strategy of elements of type elem in
// table. The owner identifier is bound to the owner columns of table.
func NewElementStrategy(table *schema.Table, owner *Identifier, elem reflect.Type, dialectName string) *ElementStrategy {
	return &ElementStrategy{table: table, owner: owner, elem: elem, dialect: dialectName}
}

// Value stores single-value elements in column c.
func (s *ElementStrategy) Value(c *schema.Column) *ElementStrategy {
	s.value = c
	return s
}

// Properties stores embeddable elements through the given properties,
// whose paths start at the element.
func (s *ElementStrategy) Properties(props ...*Property) *ElementStrategy {
	s.props = append(s.props, props...)
	return s
}

// Table returns the element table.
func (s *ElementStrategy) Table() *schema.Table { return s.table }

// Owner returns the owner identifier bound to the element table.
func (s *ElementStrategy) Owner() *Identifier { return s.owner }

// ValueColumns returns the element columns.
func (s *ElementStrategy) ValueColumns() []*schema.Column {
	if s.value != nil {
		return []*schema.Column{s.value}
	}
	cs := make([]*schema.Column, len(s.props))
	for i, p := range s.props {
		cs[i] = p.Column
	}
	return cs
}

// Columns returns the owner and element columns.
func (s *ElementStrategy) Columns() []*schema.Column {
	return append(append([]*schema.Column(nil), s.owner.Columns()...), s.ValueColumns()...)
}

func (s *ElementStrategy) values(elem any) ([]any, error) {
	if s.value != nil {
		return []any{field.Value(elem)}, nil
	}
	vs := make([]any, len(s.props))
	if field.IsNil(elem) {
		return vs, nil
	}
	e := addressable(elem)
	for i, p := range s.props {
		v, err := p.Value(e)
		if err != nil {
			return nil, err
		}
		vs[i] = v
	}
	return vs, nil
}

// Footprint returns the content key of an element.
func (s *ElementStrategy) Footprint(elem any) (any, error) {
	vs, err := s.values(elem)
	if err != nil {
		return nil, err
	}
	b, err := msgpack.Marshal(vs)
	if err != nil {
		return nil, fmt.Errorf("persister: element footprint: %w", err)
	}
	return string(b), nil
}

// read builds an element from the row values of node n.
func (s *ElementStrategy) read(row *sqlgraph.Row, n *sqlgraph.Node) (any, error) {
	if s.value != nil {
		return field.Convert(row.Value(n, s.value), s.elem)
	}
	t := s.elem
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	e := reflect.New(t)
	for _, p := range s.props {
		if err := p.Load(e.Interface(), row.Value(n, p.Column)); err != nil {
			return nil, err
		}
	}
	if s.elem.Kind() == reflect.Pointer {
		return e.Interface(), nil
	}
	return e.Elem().Interface(), nil
}

// Consumer returns the consumer of the element node of a join tree.
func (s *ElementStrategy) Consumer(b Binder) sqlgraph.Consumer {
	return sqlgraph.ConsumerFunc(func(ctx context.Context, row *sqlgraph.Row, n *sqlgraph.Node, parent any) (any, error) {
		if allNil(row.Values(n, s.owner.Columns())) {
			return nil, nil
		}
		e, err := s.read(row, n)
		if err != nil {
			return nil, strata.NewMappingError(s.table.Name, "", nil, err.Error())
		}
		return nil, b.Bind(ctx, parent, e, 0)
	})
}

// distinct returns the elements with distinct footprints, with their footprints.
func (s *ElementStrategy) distinct(elems []any) ([]any, []any, error) {
	var (
		out, fps []any
		seen     = make(map[any]bool)
	)
	for _, e := range elems {
		fp, err := s.Footprint(e)
		if err != nil {
			return nil, nil, err
		}
		if seen[fp] {
			continue
		}
		seen[fp] = true
		out = append(out, e)
		fps = append(fps, fp)
	}
	return out, fps, nil
}

// Insert inserts the distinct elements of owner.
func (s *ElementStrategy) Insert(ctx context.Context, ex dialect.ExecQuerier, owner any, elems []any) error {
	elems, _, err := s.distinct(elems)
	if err != nil {
		return err
	}
	ov, err := s.owner.Values(owner)
	if err != nil {
		return err
	}
	for _, e := range elems {
		vs, err := s.values(e)
		if err != nil {
			return err
		}
		insert := sql.Dialect(s.dialect).Insert(s.table.Name)
		for i, c := range s.owner.Columns() {
			insert.Set(c.Name, ov[i])
		}
		for i, c := range s.ValueColumns() {
			insert.Set(c.Name, vs[i])
		}
		query, args := insert.Query()
		if err := ex.Exec(ctx, query, args, nil); err != nil {
			return s.mutationError("insert", err)
		}
	}
	return nil
}

// Delete deletes the rows of the given elements of owner.
func (s *ElementStrategy) Delete(ctx context.Context, ex dialect.ExecQuerier, owner any, elems []any) error {
	ov, err := s.owner.Values(owner)
	if err != nil {
		return err
	}
	for _, e := range elems {
		vs, err := s.values(e)
		if err != nil {
			return err
		}
		var preds []*sql.Predicate
		for i, c := range s.owner.Columns() {
			preds = append(preds, sql.EQ(c.Name, ov[i]))
		}
		for i, c := range s.ValueColumns() {
			preds = append(preds, sql.EQOrNull(c.Name, vs[i]))
		}
		query, args := sql.Dialect(s.dialect).Delete(s.table.Name).Where(sql.And(preds...)).Query()
		if err := ex.Exec(ctx, query, args, nil); err != nil {
			return s.mutationError("delete", err)
		}
	}
	return nil
}

// DeleteByOwner deletes every element of the owners.
func (s *ElementStrategy) DeleteByOwner(ctx context.Context, ex dialect.ExecQuerier, owners []any) error {
	if len(owners) == 0 {
		return nil
	}
	ids := make([]any, len(owners))
	for i, o := range owners {
		ids[i] = s.owner.ID(o)
	}
	pred, err := s.owner.Predicate(ids, nil)
	if err != nil {
		return err
	}
	query, args := sql.Dialect(s.dialect).Delete(s.table.Name).Where(pred).Query()
	if err := ex.Exec(ctx, query, args, nil); err != nil {
		return s.mutationError("delete", err)
	}
	return nil
}

// Diff returns the elements added to and removed from a collection.
func (s *ElementStrategy) Diff(before, after []any) (added, removed []any, err error) {
	before, bfps, err := s.distinct(before)
	if err != nil {
		return nil, nil, err
	}
	after, afps, err := s.distinct(after)
	if err != nil {
		return nil, nil, err
	}
	old := make(map[any]bool, len(bfps))
	for _, fp := range bfps {
		old[fp] = true
	}
	cur := make(map[any]bool, len(afps))
	for i, fp := range afps {
		cur[fp] = true
		if !old[fp] {
			added = append(added, after[i])
		}
	}
	for i, fp := range bfps {
		if !cur[fp] {
			removed = append(removed, before[i])
		}
	}
	return added, removed, nil
}

func (s *ElementStrategy) mutationError(op string, err error) error {
	return strata.NewMutationError(s.table.Name, op, sqlgraph.WrapConstraint(err))
}
