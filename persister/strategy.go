package persister

import (
	"context"
	"reflect"

	"github.com/syssam/strata"
	"github.com/syssam/strata/dialect"
	"github.com/syssam/strata/dialect/sql"
	"github.com/syssam/strata/dialect/sql/schema"
	"github.com/syssam/strata/dialect/sql/sqlgraph"
	"github.com/syssam/strata/schema/field"
)

// Property maps a property path of an entity to a column.
type Property struct {
	Path     field.Path
	Column   *schema.Column
	ReadOnly bool
	Codec    field.Codec
}

// Value returns the column value of the property of entity.
func (p *Property) Value(entity any) (any, error) {
	v := p.Path.Get(entity)
	if p.Codec != nil {
		ev, err := p.Codec.Encode(v)
		if err != nil {
			return nil, err
		}
		return field.Value(ev), nil
	}
	return field.Value(v), nil
}

// Load sets the property of entity from a column value.
func (p *Property) Load(entity, v any) error {
	if p.Codec != nil {
		dv, err := p.Codec.Decode(v)
		if err != nil {
			return err
		}
		v = dv
	}
	if !p.Path.Leaf().CanSet() {
		return nil
	}
	return p.Path.Set(entity, v)
}

// ShadowColumn is a column without property whose value is computed when a
// row is written: foreign keys, reverse columns, indexes and discriminators.
type ShadowColumn struct {
	Column *schema.Column
	Value  func(ctx context.Context, entity any) (any, error)
	// Updatable shadows are part of update statements. Others are only
	// inserted and maintained by relation listeners.
	Updatable bool
}

// Strategy writes the rows of entities in one table.
type Strategy struct {
	typ     reflect.Type
	table   *schema.Table
	id      *Identifier
	manager InsertionManager
	dialect string
	props   []*Property
	shadows []*ShadowColumn
	shared  *Strategy
}

// NewStrategy returns the strategy of entities of type t in table. The
// identifier must be bound to the primary key of table.
func NewStrategy(t reflect.Type, table *schema.Table, id *Identifier, m InsertionManager, dialectName string) *Strategy {
	return &Strategy{typ: t, table: table, id: id, manager: m, dialect: dialectName}
}

// Share makes the strategy also write the properties and shadow columns of
// s, which maps a supertype to the same table.
func (s *Strategy) Share(shared *Strategy) *Strategy {
	s.shared = shared
	return s
}

// AddProperties adds mapped properties.
func (s *Strategy) AddProperties(props ...*Property) {
	s.props = append(s.props, props...)
}

// AddShadow adds a shadow column. A column is added once.
func (s *Strategy) AddShadow(c *ShadowColumn) {
	for _, sc := range s.shadows {
		if sc.Column.Name == c.Column.Name {
			return
		}
	}
	s.shadows = append(s.shadows, c)
}

// ShadowCheckpoint returns the number of own shadow columns, to be
// restored by RollbackShadows.
func (s *Strategy) ShadowCheckpoint() int { return len(s.shadows) }

// RollbackShadows removes the own shadow columns added after the
// checkpoint n was taken.
func (s *Strategy) RollbackShadows(n int) {
	if n < len(s.shadows) {
		clear(s.shadows[n:])
		s.shadows = s.shadows[:n]
	}
}

// Type returns the entity type.
func (s *Strategy) Type() reflect.Type { return s.typ }

// Table returns the table of the strategy.
func (s *Strategy) Table() *schema.Table { return s.table }

// Identifier returns the identifier bound to the table primary key.
func (s *Strategy) Identifier() *Identifier { return s.id }

// Manager returns the insertion manager.
func (s *Strategy) Manager() InsertionManager { return s.manager }

// Properties returns the properties written by the strategy, including
// those of the shared strategy.
func (s *Strategy) Properties() []*Property {
	if s.shared == nil {
		return s.props
	}
	return append(append([]*Property(nil), s.shared.Properties()...), s.props...)
}

// Shadows returns the shadow columns, including those of the shared
// strategy. Own shadows replace shared ones of the same column.
func (s *Strategy) Shadows() []*ShadowColumn {
	if s.shared == nil {
		return s.shadows
	}
	own := make(map[string]bool, len(s.shadows))
	for _, sc := range s.shadows {
		own[sc.Column.Name] = true
	}
	var shadows []*ShadowColumn
	for _, sc := range s.shared.Shadows() {
		if !own[sc.Column.Name] {
			shadows = append(shadows, sc)
		}
	}
	return append(shadows, s.shadows...)
}

// Columns returns the primary key and property columns, as selected.
func (s *Strategy) Columns() []*schema.Column {
	cs := append([]*schema.Column(nil), s.id.Columns()...)
	for _, p := range s.Properties() {
		cs = append(cs, p.Column)
	}
	return cs
}

// Load sets the properties of entity from the row values of node.
func (s *Strategy) Load(entity any, row *sqlgraph.Row, n *sqlgraph.Node) error {
	for _, p := range s.Properties() {
		if err := p.Load(entity, row.Value(n, p.Column)); err != nil {
			return strata.NewMappingError(field.TypeName(s.typ), "", nil, err.Error())
		}
	}
	return nil
}

// Insert inserts one row per entity.
func (s *Strategy) Insert(ctx context.Context, ex dialect.ExecQuerier, entities []any) error {
	for _, e := range entities {
		insert := sql.Dialect(s.dialect).Insert(s.table.Name)
		if s.manager.WritesID() {
			vs, err := s.id.Values(e)
			if err != nil {
				return err
			}
			for i, c := range s.id.Columns() {
				insert.Set(c.Name, vs[i])
			}
		}
		for _, p := range s.Properties() {
			if p.ReadOnly {
				continue
			}
			v, err := p.Value(e)
			if err != nil {
				return s.mutationError("insert", err)
			}
			insert.Set(p.Column.Name, v)
		}
		for _, sc := range s.Shadows() {
			v, err := sc.Value(ctx, e)
			if err != nil {
				return err
			}
			insert.Set(sc.Column.Name, v)
		}
		if err := s.manager.Execute(ctx, ex, insert, e); err != nil {
			return s.mutationError("insert", err)
		}
	}
	s.manager.Done(entities)
	return nil
}

// Update updates the rows of the modified entities. Unless allColumns is
// set, only the columns whose value differs from the unmodified entity are
// written, and rows without difference are skipped. A nil unmodified entity
// writes every column.
func (s *Strategy) Update(ctx context.Context, ex dialect.ExecQuerier, pairs []Pair, allColumns bool) error {
	for _, pr := range pairs {
		all := allColumns || pr.Unmodified == nil
		update := sql.Dialect(s.dialect).Update(s.table.Name)
		for _, p := range s.Properties() {
			if p.ReadOnly {
				continue
			}
			v, err := p.Value(pr.Modified)
			if err != nil {
				return s.mutationError("update", err)
			}
			if !all {
				ov, err := p.Value(pr.Unmodified)
				if err != nil {
					return s.mutationError("update", err)
				}
				if reflect.DeepEqual(v, ov) {
					continue
				}
			}
			update.Set(p.Column.Name, v)
		}
		for _, sc := range s.Shadows() {
			if !sc.Updatable {
				continue
			}
			v, err := sc.Value(ctx, pr.Modified)
			if err != nil {
				return err
			}
			if !all {
				ov, err := sc.Value(ctx, pr.Unmodified)
				if err != nil {
					return err
				}
				if reflect.DeepEqual(v, ov) {
					continue
				}
			}
			update.Set(sc.Column.Name, v)
		}
		if update.Empty() {
			continue
		}
		pred, err := s.id.Predicate([]any{s.id.ID(pr.Modified)}, nil)
		if err != nil {
			return err
		}
		query, args := update.Where(pred).Query()
		if err := ex.Exec(ctx, query, args, nil); err != nil {
			return s.mutationError("update", err)
		}
	}
	return nil
}

// UpdateColumns sets columns of the row of entity.
func (s *Strategy) UpdateColumns(ctx context.Context, ex dialect.ExecQuerier, entity any, columns []*schema.Column, values []any) error {
	update := sql.Dialect(s.dialect).Update(s.table.Name)
	for i, c := range columns {
		update.Set(c.Name, values[i])
	}
	pred, err := s.id.Predicate([]any{s.id.ID(entity)}, nil)
	if err != nil {
		return err
	}
	query, args := update.Where(pred).Query()
	if err := ex.Exec(ctx, query, args, nil); err != nil {
		return s.mutationError("update", err)
	}
	return nil
}

// Delete deletes the rows of the entities.
func (s *Strategy) Delete(ctx context.Context, ex dialect.ExecQuerier, entities []any) error {
	if len(entities) == 0 {
		return nil
	}
	ids := make([]any, len(entities))
	for i, e := range entities {
		ids[i] = s.id.ID(e)
	}
	pred, err := s.id.Predicate(ids, nil)
	if err != nil {
		return err
	}
	query, args := sql.Dialect(s.dialect).Delete(s.table.Name).Where(pred).Query()
	if err := ex.Exec(ctx, query, args, nil); err != nil {
		return s.mutationError("delete", err)
	}
	return nil
}

func (s *Strategy) mutationError(op string, err error) error {
	return strata.NewMutationError(field.TypeName(s.typ), op, sqlgraph.WrapConstraint(err))
}
