package persister

import "context"

// InsertListener runs around the insertion of entities.
type InsertListener struct {
	Before func(ctx context.Context, entities []any) error
	After  func(ctx context.Context, entities []any) error
}

// UpdateListener runs around the update of entities.
type UpdateListener struct {
	Before func(ctx context.Context, pairs []Pair, allColumns bool) error
	After  func(ctx context.Context, pairs []Pair, allColumns bool) error
}

// DeleteListener runs around the deletion of entities, by entity or by id.
type DeleteListener struct {
	Before func(ctx context.Context, entities []any) error
	After  func(ctx context.Context, entities []any) error
}

// SelectListener runs around the selection of entities.
type SelectListener struct {
	Before func(ctx context.Context, ids []any) error
	After  func(ctx context.Context, entities []any) error
}

// Listeners holds the listeners of a persister. Listeners run in
// registration order.
type Listeners struct {
	insert     []InsertListener
	update     []UpdateListener
	delete     []DeleteListener
	deleteByID []DeleteListener
	selects    []SelectListener
}

// OnInsert registers an insert listener.
func (l *Listeners) OnInsert(x InsertListener) { l.insert = append(l.insert, x) }

// OnUpdate registers an update listener.
func (l *Listeners) OnUpdate(x UpdateListener) { l.update = append(l.update, x) }

// OnDelete registers a delete listener.
func (l *Listeners) OnDelete(x DeleteListener) { l.delete = append(l.delete, x) }

// OnDeleteByID registers a delete-by-id listener.
func (l *Listeners) OnDeleteByID(x DeleteListener) { l.deleteByID = append(l.deleteByID, x) }

// OnSelect registers a select listener.
func (l *Listeners) OnSelect(x SelectListener) { l.selects = append(l.selects, x) }

func (l *Listeners) beforeInsert(ctx context.Context, es []any) error {
	for _, x := range l.insert {
		if x.Before != nil {
			if err := x.Before(ctx, es); err != nil {
				return err
			}
		}
	}
	return nil
}

func (l *Listeners) afterInsert(ctx context.Context, es []any) error {
	for _, x := range l.insert {
		if x.After != nil {
			if err := x.After(ctx, es); err != nil {
				return err
			}
		}
	}
	return nil
}

func (l *Listeners) beforeUpdate(ctx context.Context, ps []Pair, all bool) error {
	for _, x := range l.update {
		if x.Before != nil {
			if err := x.Before(ctx, ps, all); err != nil {
				return err
			}
		}
	}
	return nil
}

func (l *Listeners) afterUpdate(ctx context.Context, ps []Pair, all bool) error {
	for _, x := range l.update {
		if x.After != nil {
			if err := x.After(ctx, ps, all); err != nil {
				return err
			}
		}
	}
	return nil
}

func runDelete(ctx context.Context, xs []DeleteListener, es []any, before bool) error {
	for _, x := range xs {
		fn := x.After
		if before {
			fn = x.Before
		}
		if fn != nil {
			if err := fn(ctx, es); err != nil {
				return err
			}
		}
	}
	return nil
}

func (l *Listeners) beforeSelect(ctx context.Context, ids []any) error {
	for _, x := range l.selects {
		if x.Before != nil {
			if err := x.Before(ctx, ids); err != nil {
				return err
			}
		}
	}
	return nil
}

func (l *Listeners) afterSelect(ctx context.Context, es []any) error {
	for _, x := range l.selects {
		if x.After != nil {
			if err := x.After(ctx, es); err != nil {
				return err
			}
		}
	}
	return nil
}
