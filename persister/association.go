package persister

import (
	"cmp"
	"context"
	"slices"

	"github.com/syssam/strata"
	"github.com/syssam/strata/dialect"
	"github.com/syssam/strata/dialect/sql"
	"github.com/syssam/strata/dialect/sql/schema"
	"github.com/syssam/strata/dialect/sql/sqlgraph"
)

// AssociationRecord links a source entity to a target entity at an index
// of the source collection.
type AssociationRecord struct {
	Source, Target any
	Index          int
}

// AssociationStrategy writes the records of an association table, keyed by
// the source and target identifiers and the index of indexed collections.
// Updates match records by target and move the index of kept ones.
type AssociationStrategy struct {
	table   *schema.Table
	source  *Identifier
	target  *Identifier
	index   *schema.Column
	dialect string
}

// NewAssociationStrategy returns the strategy of table. The identifiers
// are bound to the source and target columns of the table; index is nil
// for unindexed collections.
func NewAssociationStrategy(table *schema.Table, source, target *Identifier, index *schema.Column, dialectName string) *AssociationStrategy {
	return &AssociationStrategy{table: table, source: source, target: target, index: index, dialect: dialectName}
}

// Table returns the association table.
func (s *AssociationStrategy) Table() *schema.Table { return s.table }

// Insert inserts the records.
func (s *AssociationStrategy) Insert(ctx context.Context, ex dialect.ExecQuerier, records []AssociationRecord) error {
	for _, r := range records {
		insert := sql.Dialect(s.dialect).Insert(s.table.Name)
		cols, vs, err := s.key(r)
		if err != nil {
			return err
		}
		for i, c := range cols {
			insert.Set(c, vs[i])
		}
		query, args := insert.Query()
		if err := ex.Exec(ctx, query, args, nil); err != nil {
			return s.mutationError("insert", err)
		}
	}
	return nil
}

// Delete deletes the records.
func (s *AssociationStrategy) Delete(ctx context.Context, ex dialect.ExecQuerier, records []AssociationRecord) error {
	if len(records) == 0 {
		return nil
	}
	var (
		cols   []string
		tuples = make([][]any, 0, len(records))
	)
	for _, r := range records {
		cs, vs, err := s.key(r)
		if err != nil {
			return err
		}
		cols = cs
		tuples = append(tuples, vs)
	}
	query, args := sql.Dialect(s.dialect).Delete(s.table.Name).Where(sql.TupleIn(cols, tuples)).Query()
	if err := ex.Exec(ctx, query, args, nil); err != nil {
		return s.mutationError("delete", err)
	}
	return nil
}

// DeleteBySource deletes every record of the sources.
func (s *AssociationStrategy) DeleteBySource(ctx context.Context, ex dialect.ExecQuerier, sources []any) error {
	if len(sources) == 0 {
		return nil
	}
	ids := make([]any, len(sources))
	for i, e := range sources {
		ids[i] = s.source.ID(e)
	}
	pred, err := s.source.Predicate(ids, nil)
	if err != nil {
		return err
	}
	query, args := sql.Dialect(s.dialect).Delete(s.table.Name).Where(pred).Query()
	if err := ex.Exec(ctx, query, args, nil); err != nil {
		return s.mutationError("delete", err)
	}
	return nil
}

// key returns the key columns of the table and their values for r.
func (s *AssociationStrategy) key(r AssociationRecord) ([]string, []any, error) {
	sv, err := s.source.Values(r.Source)
	if err != nil {
		return nil, nil, err
	}
	tv, err := s.target.Values(r.Target)
	if err != nil {
		return nil, nil, err
	}
	cols := append(s.source.ColumnNames(), s.target.ColumnNames()...)
	vs := append(sv, tv...)
	if s.index != nil {
		cols = append(cols, s.index.Name)
		vs = append(vs, r.Index)
	}
	return cols, vs, nil
}

// AssociationMove moves a record of an indexed collection from the index
// From to Record.Index.
type AssociationMove struct {
	Record AssociationRecord
	From   int
}

// Reindex updates the index column of moved records. Records moving up
// are written from the highest index down, then the others from the lowest
// up: no intermediate key collides.
func (s *AssociationStrategy) Reindex(ctx context.Context, ex dialect.ExecQuerier, moves []AssociationMove) error {
	if s.index == nil || len(moves) == 0 {
		return nil
	}
	up := func(m AssociationMove) bool { return m.Record.Index > m.From }
	moves = slices.Clone(moves)
	slices.SortStableFunc(moves, func(a, b AssociationMove) int {
		switch ua, ub := up(a), up(b); {
		case ua && !ub:
			return -1
		case !ua && ub:
			return 1
		case ua:
			return cmp.Compare(b.Record.Index, a.Record.Index)
		default:
			return cmp.Compare(a.Record.Index, b.Record.Index)
		}
	})
	for _, m := range moves {
		cols, vs, err := s.key(AssociationRecord{Source: m.Record.Source, Target: m.Record.Target, Index: m.From})
		if err != nil {
			return err
		}
		preds := make([]*sql.Predicate, len(cols))
		for i, c := range cols {
			preds[i] = sql.EQ(c, vs[i])
		}
		query, args := sql.Dialect(s.dialect).Update(s.table.Name).
			Set(s.index.Name, m.Record.Index).
			Where(sql.And(preds...)).
			Query()
		if err := ex.Exec(ctx, query, args, nil); err != nil {
			return s.mutationError("update", err)
		}
	}
	return nil
}

// recordKey identifies a record of one source: its target, and the rank of
// the target among the records holding it.
type recordKey struct {
	target any
	nth    int
}

func (s *AssociationStrategy) recordKeys(records []AssociationRecord) []recordKey {
	seen := make(map[any]int, len(records))
	keys := make([]recordKey, len(records))
	for i, r := range records {
		k := key(s.target.ID(r.Target))
		keys[i] = recordKey{target: k, nth: seen[k]}
		seen[k]++
	}
	return keys
}

// diff compares the records of one source before and after an update.
// Records are matched by target; a matched record of an indexed
// collection whose index changed is moved rather than replaced.
func (s *AssociationStrategy) diff(before, after []AssociationRecord) (added, removed []AssociationRecord, moved []AssociationMove) {
	bkeys, akeys := s.recordKeys(before), s.recordKeys(after)
	old := make(map[recordKey]AssociationRecord, len(before))
	for i, r := range before {
		old[bkeys[i]] = r
	}
	cur := make(map[recordKey]bool, len(after))
	for i, r := range after {
		cur[akeys[i]] = true
		o, ok := old[akeys[i]]
		switch {
		case !ok:
			added = append(added, r)
		case s.index != nil && o.Index != r.Index:
			moved = append(moved, AssociationMove{Record: r, From: o.Index})
		}
	}
	for i, r := range before {
		if !cur[bkeys[i]] {
			removed = append(removed, r)
		}
	}
	return added, removed, moved
}

func (s *AssociationStrategy) mutationError(op string, err error) error {
	return strata.NewMutationError(s.table.Name, op, sqlgraph.WrapConstraint(err))
}
