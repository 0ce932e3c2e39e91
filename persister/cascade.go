package persister

import (
	"context"

	"github.com/syssam/strata"
	"github.com/syssam/strata/dialect/sql/schema"
	"github.com/syssam/strata/schema/edge"
	"github.com/syssam/strata/schema/field"
)

// persistTargets inserts the new targets and persists those whose state
// is unknown. It returns the targets that were not known to be new.
func persistTargets(ctx context.Context, target Relational, targets []any) ([]any, error) {
	var inserts, unknown, existing []any
	for _, t := range distinct(targets) {
		switch isNew, known := target.Identifier().IsNew(t); {
		case known && isNew:
			inserts = append(inserts, t)
		case !known:
			unknown = append(unknown, t)
			existing = append(existing, t)
		default:
			existing = append(existing, t)
		}
	}
	if err := target.Insert(ctx, inserts); err != nil {
		return nil, err
	}
	if err := target.Persist(ctx, unknown); err != nil {
		return nil, err
	}
	return existing, nil
}

// matchPairs pairs the targets of two states of a relation by identifier.
// It returns the pairs, and the targets only present before (removed) and
// after (added).
func matchPairs(id *Identifier, before, after []any) (pairs []Pair, added, removed []any) {
	old := make(map[any]any, len(before))
	for _, t := range distinct(before) {
		old[key(id.ID(t))] = t
	}
	cur := make(map[any]bool, len(after))
	for _, t := range distinct(after) {
		k := key(id.ID(t))
		cur[k] = true
		if o, ok := old[k]; ok && k != nil {
			pairs = append(pairs, Pair{Modified: t, Unmodified: o})
		} else {
			added = append(added, t)
		}
	}
	for _, t := range distinct(before) {
		if !cur[key(id.ID(t))] {
			removed = append(removed, t)
		}
	}
	return pairs, added, removed
}

func one(a *field.Accessor, e any) []any {
	if t := a.Get(e); !field.IsNil(t) {
		return []any{t}
	}
	return nil
}

// SourceOwnedOne maintains a one-to-one relation whose foreign key is on
// the source table. Targets are written before the source row.
type SourceOwnedOne struct {
	Entity    string
	Accessor  *field.Accessor
	Target    Relational
	Mode      edge.Mode
	Mandatory bool
}

// ForeignKey returns the shadow columns writing the target identifier in
// the given source columns.
func (r *SourceOwnedOne) ForeignKey(columns []*schema.Column) []*ShadowColumn {
	shadows := make([]*ShadowColumn, len(columns))
	for i, c := range columns {
		shadows[i] = &ShadowColumn{
			Column:    c,
			Updatable: r.Mode != edge.ReadOnly,
			Value: func(_ context.Context, e any) (any, error) {
				t := r.Accessor.Get(e)
				if field.IsNil(t) {
					return nil, nil
				}
				vs, err := r.Target.Identifier().Values(t)
				if err != nil {
					return nil, err
				}
				return vs[i], nil
			},
		}
	}
	return shadows
}

// Register registers the cascades of the relation.
func (r *SourceOwnedOne) Register(l *Listeners) {
	if r.Mode == edge.ReadOnly {
		return
	}
	targets := func(entities []any) []any {
		var ts []any
		for _, e := range entities {
			ts = append(ts, one(r.Accessor, e)...)
		}
		return ts
	}
	l.OnInsert(InsertListener{
		Before: func(ctx context.Context, entities []any) error {
			if err := mandatory(r.Entity, r.Accessor, r.Mandatory, entities); err != nil {
				return err
			}
			if !r.Mode.PersistsTargets() {
				return nil
			}
			_, err := persistTargets(ctx, r.Target, targets(entities))
			return err
		},
	})
	l.OnUpdate(UpdateListener{
		Before: func(ctx context.Context, pairs []Pair, _ bool) error {
			modified := make([]any, len(pairs))
			for i, p := range pairs {
				modified[i] = p.Modified
			}
			if err := mandatory(r.Entity, r.Accessor, r.Mandatory, modified); err != nil {
				return err
			}
			if !r.Mode.PersistsTargets() {
				return nil
			}
			var inserts []any
			for _, t := range targets(modified) {
				if isNew, known := r.Target.Identifier().IsNew(t); isNew || !known {
					inserts = append(inserts, t)
				}
			}
			_, err := persistTargets(ctx, r.Target, inserts)
			return err
		},
		After: func(ctx context.Context, pairs []Pair, _ bool) error {
			if !r.Mode.PersistsTargets() {
				return nil
			}
			var updates []Pair
			var orphans []any
			for _, p := range pairs {
				if p.Unmodified == nil {
					continue
				}
				same, _, removed := matchPairs(r.Target.Identifier(), one(r.Accessor, p.Unmodified), one(r.Accessor, p.Modified))
				updates = append(updates, same...)
				orphans = append(orphans, removed...)
			}
			if err := r.Target.Update(ctx, updates, false); err != nil {
				return err
			}
			if r.Mode == edge.AllOrphanRemoval {
				return r.Target.Delete(ctx, distinct(orphans))
			}
			return nil
		},
	})
	l.OnDelete(DeleteListener{
		After: func(ctx context.Context, entities []any) error {
			if !r.Mode.PersistsTargets() {
				return nil
			}
			return r.Target.Delete(ctx, distinct(targets(entities)))
		},
	})
}

// reverse writes the identifier of the source of a target-owned relation
// in columns of the target table.
type reverse struct {
	relation any
	source   *Identifier
	mappedBy *field.Accessor
	columns  []*schema.Column
	index    *schema.Column
}

// sourceOf returns the source of target: its mapped-by property, or the
// source that cascaded to it in the current operation.
func (rv *reverse) sourceOf(ctx context.Context, target any) (any, int) {
	var c correlation
	if op := operationFrom(ctx); op != nil {
		c, _ = op.correlated(rv.relation, target)
	}
	if rv.mappedBy != nil {
		if s := rv.mappedBy.Get(target); !field.IsNil(s) {
			return s, c.index
		}
	}
	return c.source, c.index
}

func (rv *reverse) shadows() []*ShadowColumn {
	shadows := make([]*ShadowColumn, 0, len(rv.columns)+1)
	for i, c := range rv.columns {
		shadows = append(shadows, &ShadowColumn{
			Column: c,
			Value: func(ctx context.Context, target any) (any, error) {
				s, _ := rv.sourceOf(ctx, target)
				if field.IsNil(s) {
					return nil, nil
				}
				vs, err := rv.source.Values(s)
				if err != nil {
					return nil, err
				}
				return vs[i], nil
			},
		})
	}
	if rv.index != nil {
		shadows = append(shadows, &ShadowColumn{
			Column: rv.index,
			Value: func(ctx context.Context, target any) (any, error) {
				s, i := rv.sourceOf(ctx, target)
				if field.IsNil(s) {
					return nil, nil
				}
				return i, nil
			},
		})
	}
	return shadows
}

// assign writes the reverse columns of existing targets.
func (rv *reverse) assign(ctx context.Context, target Relational, source any, targets []any, index func(any) int) error {
	if len(targets) == 0 {
		return nil
	}
	vs, err := rv.source.Values(source)
	if err != nil {
		return err
	}
	cols := append([]*schema.Column(nil), rv.columns...)
	if rv.index != nil {
		cols = append(cols, rv.index)
	}
	ex := operationFrom(ctx).ex
	for _, t := range targets {
		values := append([]any(nil), vs...)
		if rv.index != nil {
			values = append(values, index(t))
		}
		if err := target.Strategy().UpdateColumns(ctx, ex, t, cols, values); err != nil {
			return err
		}
	}
	return nil
}

// nullify clears the reverse columns of detached targets.
func (rv *reverse) nullify(ctx context.Context, target Relational, targets []any) error {
	cols := append([]*schema.Column(nil), rv.columns...)
	if rv.index != nil {
		cols = append(cols, rv.index)
	}
	ex := operationFrom(ctx).ex
	for _, t := range targets {
		if err := target.Strategy().UpdateColumns(ctx, ex, t, cols, make([]any, len(cols))); err != nil {
			return err
		}
	}
	return nil
}

// TargetOwnedOne maintains a one-to-one relation whose foreign key is on
// the target table. Targets are written after the source row.
type TargetOwnedOne struct {
	Entity    string
	Accessor  *field.Accessor
	Target    Relational
	Mode      edge.Mode
	Mandatory bool
	// MappedBy is the property of the target holding the source.
	MappedBy *field.Accessor
	rv       *reverse
}

// Reverse binds the relation to the reverse columns of the target table
// and returns their shadows, to add to the target strategy.
func (r *TargetOwnedOne) Reverse(source *Identifier, columns []*schema.Column) []*ShadowColumn {
	r.rv = &reverse{relation: r, source: source, mappedBy: r.MappedBy, columns: columns}
	return r.rv.shadows()
}

// Register registers the cascades of the relation.
func (r *TargetOwnedOne) Register(l *Listeners) {
	if r.Mode == edge.ReadOnly {
		return
	}
	link := func(ctx context.Context, source any, targets []any) error {
		op := operationFrom(ctx)
		for _, t := range targets {
			op.correlate(r, t, source, 0)
			if r.MappedBy != nil && r.MappedBy.CanSet() {
				if err := r.MappedBy.Set(t, source); err != nil {
					return err
				}
			}
		}
		existing := targets
		if r.Mode.PersistsTargets() {
			var err error
			if existing, err = persistTargets(ctx, r.Target, targets); err != nil {
				return err
			}
		}
		return r.rv.assign(ctx, r.Target, source, existing, nil)
	}
	l.OnInsert(InsertListener{
		Before: func(_ context.Context, entities []any) error {
			return mandatory(r.Entity, r.Accessor, r.Mandatory, entities)
		},
		After: func(ctx context.Context, entities []any) error {
			for _, e := range entities {
				if err := link(ctx, e, one(r.Accessor, e)); err != nil {
					return err
				}
			}
			return nil
		},
	})
	l.OnUpdate(UpdateListener{
		Before: func(_ context.Context, pairs []Pair, _ bool) error {
			for _, p := range pairs {
				if err := mandatory(r.Entity, r.Accessor, r.Mandatory, []any{p.Modified}); err != nil {
					return err
				}
			}
			return nil
		},
		After: func(ctx context.Context, pairs []Pair, _ bool) error {
			for _, p := range pairs {
				if p.Unmodified == nil {
					continue
				}
				same, added, removed := matchPairs(r.Target.Identifier(), one(r.Accessor, p.Unmodified), one(r.Accessor, p.Modified))
				if err := detachTargets(ctx, r.Target, r.rv, r.Mode, p, removed); err != nil {
					return err
				}
				if err := link(ctx, p.Modified, added); err != nil {
					return err
				}
				if r.Mode.PersistsTargets() {
					if err := r.Target.Update(ctx, same, false); err != nil {
						return err
					}
				}
			}
			return nil
		},
	})
	l.OnDelete(DeleteListener{
		Before: func(ctx context.Context, entities []any) error {
			var ts []any
			for _, e := range entities {
				ts = append(ts, one(r.Accessor, e)...)
			}
			return unlink(ctx, r.Target, r.rv, r.Mode, distinct(ts))
		},
	})
}

// unlink handles the targets of deleted sources: it deletes them when the
// relation owns them, and clears their reverse columns otherwise.
func unlink(ctx context.Context, target Relational, rv *reverse, mode edge.Mode, targets []any) error {
	if len(targets) == 0 {
		return nil
	}
	if mode.PersistsTargets() {
		return target.Delete(ctx, targets)
	}
	return rv.nullify(ctx, target, targets)
}

// detachTargets handles the targets removed from the relation of p. Only orphan
// removal deletes them; other modes keep the rows and clear their reverse
// columns.
func detachTargets(ctx context.Context, target Relational, rv *reverse, mode edge.Mode, p Pair, removed []any) error {
	if len(removed) == 0 {
		return nil
	}
	if mode == edge.AllOrphanRemoval {
		return target.Delete(ctx, removed)
	}
	if err := rv.nullify(ctx, target, removed); err != nil {
		return err
	}
	if rv.mappedBy == nil || !rv.mappedBy.CanSet() {
		return nil
	}
	for _, t := range removed {
		if s := rv.mappedBy.Get(t); s != p.Modified && s != p.Unmodified {
			continue
		}
		if err := rv.mappedBy.Set(t, nil); err != nil {
			return err
		}
	}
	return nil
}

func mandatory(entity string, a *field.Accessor, required bool, entities []any) error {
	if !required {
		return nil
	}
	for _, e := range entities {
		if field.IsNil(a.Get(e)) {
			return strata.NewMappingError(entity, a.Name(), e, "mandatory relation has no target")
		}
	}
	return nil
}

// ReverseMany maintains a one-to-many relation mapped by reverse columns
// on the target table, and an index column for indexed collections.
type ReverseMany struct {
	Accessor *field.Many
	Target   Relational
	Mode     edge.Mode
	MappedBy *field.Accessor
	rv       *reverse
}

// Reverse binds the relation to the reverse and index columns of the
// target table and returns their shadows, to add to the target strategy.
func (r *ReverseMany) Reverse(source *Identifier, columns []*schema.Column, index *schema.Column) []*ShadowColumn {
	r.rv = &reverse{relation: r, source: source, mappedBy: r.MappedBy, columns: columns, index: index}
	return r.rv.shadows()
}

// Register registers the cascades of the relation.
func (r *ReverseMany) Register(l *Listeners) {
	if r.Mode == edge.ReadOnly {
		return
	}
	link := func(ctx context.Context, source any, targets []any) error {
		op := operationFrom(ctx)
		positions := make(map[any]int, len(targets))
		for i, t := range r.Accessor.Get(source) {
			positions[t] = i
		}
		for _, t := range targets {
			op.correlate(r, t, source, positions[t])
			if r.MappedBy != nil && r.MappedBy.CanSet() {
				if err := r.MappedBy.Set(t, source); err != nil {
					return err
				}
			}
		}
		existing := targets
		if r.Mode.PersistsTargets() {
			var err error
			if existing, err = persistTargets(ctx, r.Target, targets); err != nil {
				return err
			}
		}
		return r.rv.assign(ctx, r.Target, source, existing, func(t any) int { return positions[t] })
	}
	l.OnInsert(InsertListener{
		After: func(ctx context.Context, entities []any) error {
			for _, e := range entities {
				if err := link(ctx, e, distinct(r.Accessor.Get(e))); err != nil {
					return err
				}
			}
			return nil
		},
	})
	l.OnUpdate(UpdateListener{
		After: func(ctx context.Context, pairs []Pair, _ bool) error {
			for _, p := range pairs {
				if p.Unmodified == nil {
					continue
				}
				before, after := r.Accessor.Get(p.Unmodified), r.Accessor.Get(p.Modified)
				same, added, removed := matchPairs(r.Target.Identifier(), before, after)
				if err := detachTargets(ctx, r.Target, r.rv, r.Mode, p, removed); err != nil {
					return err
				}
				if err := link(ctx, p.Modified, added); err != nil {
					return err
				}
				if r.Mode.PersistsTargets() {
					if err := r.Target.Update(ctx, same, false); err != nil {
						return err
					}
				}
				if r.rv.index != nil {
					if err := r.reindex(ctx, p.Modified, same, before, after); err != nil {
						return err
					}
				}
			}
			return nil
		},
	})
	l.OnDelete(DeleteListener{
		Before: func(ctx context.Context, entities []any) error {
			var ts []any
			for _, e := range entities {
				ts = append(ts, r.Accessor.Get(e)...)
			}
			return unlink(ctx, r.Target, r.rv, r.Mode, distinct(ts))
		},
	})
}

// reindex updates the index column of kept targets whose position changed.
func (r *ReverseMany) reindex(ctx context.Context, source any, same []Pair, before, after []any) error {
	position := func(ts []any, t any) int {
		for i, x := range ts {
			if x == t {
				return i
			}
		}
		return -1
	}
	ex := operationFrom(ctx).ex
	for _, p := range same {
		i := position(after, p.Modified)
		if i == position(before, p.Unmodified) {
			continue
		}
		if err := r.Target.Strategy().UpdateColumns(ctx, ex, p.Modified, []*schema.Column{r.rv.index}, []any{i}); err != nil {
			return err
		}
	}
	return nil
}

// AssociationMany maintains a one-to-many or many-to-many relation through
// the records of an association table.
type AssociationMany struct {
	Accessor   *field.Many
	Target     Relational
	Mode       edge.Mode
	ManyToMany bool
	Records    *AssociationStrategy
}

func (r *AssociationMany) records(source any) []AssociationRecord {
	ts := r.Accessor.Get(source)
	rs := make([]AssociationRecord, 0, len(ts))
	for i, t := range ts {
		if field.IsNil(t) {
			continue
		}
		rs = append(rs, AssociationRecord{Source: source, Target: t, Index: i})
	}
	return rs
}

// deletesTargets reports whether deleting the source deletes its targets:
// owned targets of one-to-many relations, orphans of many-to-many ones.
func (r *AssociationMany) deletesTargets() bool {
	if r.ManyToMany {
		return r.Mode == edge.AllOrphanRemoval
	}
	return r.Mode.PersistsTargets()
}

// Register registers the cascades of the relation.
func (r *AssociationMany) Register(l *Listeners) {
	if r.Mode == edge.ReadOnly {
		return
	}
	l.OnInsert(InsertListener{
		After: func(ctx context.Context, entities []any) error {
			for _, e := range entities {
				if r.Mode.PersistsTargets() {
					if _, err := persistTargets(ctx, r.Target, r.Accessor.Get(e)); err != nil {
						return err
					}
				}
				if err := r.Records.Insert(ctx, operationFrom(ctx).ex, r.records(e)); err != nil {
					return err
				}
			}
			return nil
		},
	})
	l.OnUpdate(UpdateListener{
		After: func(ctx context.Context, pairs []Pair, _ bool) error {
			ex := operationFrom(ctx).ex
			for _, p := range pairs {
				if p.Unmodified == nil {
					continue
				}
				same, added, removed := matchPairs(r.Target.Identifier(), r.Accessor.Get(p.Unmodified), r.Accessor.Get(p.Modified))
				if r.Mode.PersistsTargets() {
					if _, err := persistTargets(ctx, r.Target, added); err != nil {
						return err
					}
					if err := r.Target.Update(ctx, same, false); err != nil {
						return err
					}
				}
				before := r.records(p.Unmodified)
				for i := range before {
					before[i].Source = p.Modified
				}
				add, remove, moves := r.Records.diff(before, r.records(p.Modified))
				if err := r.Records.Delete(ctx, ex, remove); err != nil {
					return err
				}
				if err := r.Records.Reindex(ctx, ex, moves); err != nil {
					return err
				}
				if err := r.Records.Insert(ctx, ex, add); err != nil {
					return err
				}
				if r.Mode == edge.AllOrphanRemoval {
					if err := r.Target.Delete(ctx, removed); err != nil {
						return err
					}
				}
			}
			return nil
		},
	})
	l.OnDelete(DeleteListener{
		Before: func(ctx context.Context, entities []any) error {
			return r.Records.DeleteBySource(ctx, operationFrom(ctx).ex, entities)
		},
		After: func(ctx context.Context, entities []any) error {
			if !r.deletesTargets() {
				return nil
			}
			var targets []any
			for _, e := range entities {
				targets = append(targets, r.Accessor.Get(e)...)
			}
			return r.Target.Delete(ctx, distinct(targets))
		},
	})
	l.OnDeleteByID(DeleteListener{
		Before: func(ctx context.Context, entities []any) error {
			return r.Records.DeleteBySource(ctx, operationFrom(ctx).ex, entities)
		},
	})
}

// ElementCollection maintains the rows of an element collection.
type ElementCollection struct {
	Accessor *field.Many
	Elements *ElementStrategy
}

// Register registers the cascades of the collection.
func (r *ElementCollection) Register(l *Listeners) {
	l.OnInsert(InsertListener{
		After: func(ctx context.Context, entities []any) error {
			for _, e := range entities {
				if err := r.Elements.Insert(ctx, operationFrom(ctx).ex, e, r.Accessor.Get(e)); err != nil {
					return err
				}
			}
			return nil
		},
	})
	l.OnUpdate(UpdateListener{
		After: func(ctx context.Context, pairs []Pair, _ bool) error {
			ex := operationFrom(ctx).ex
			for _, p := range pairs {
				if p.Unmodified == nil {
					continue
				}
				added, removed, err := r.Elements.Diff(r.Accessor.Get(p.Unmodified), r.Accessor.Get(p.Modified))
				if err != nil {
					return err
				}
				if err := r.Elements.Delete(ctx, ex, p.Modified, removed); err != nil {
					return err
				}
				if err := r.Elements.Insert(ctx, ex, p.Modified, added); err != nil {
					return err
				}
			}
			return nil
		},
	})
	owners := DeleteListener{
		Before: func(ctx context.Context, entities []any) error {
			return r.Elements.DeleteByOwner(ctx, operationFrom(ctx).ex, entities)
		},
	}
	l.OnDelete(owners)
	l.OnDeleteByID(owners)
}
