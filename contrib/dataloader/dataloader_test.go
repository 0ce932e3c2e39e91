package dataloader

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/strata/persister"
)

type mockEntity struct {
	ID   int
	Name string
}

func keyOf(e *mockEntity) int { return e.ID }

// fakePersister serves selects from a map and records the requested ids.
type fakePersister struct {
	persister.Persister
	mu      sync.Mutex
	rows    map[int]any
	err     error
	batches [][]any
}

func (f *fakePersister) Select(_ context.Context, ids []any) ([]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, ids)
	if f.err != nil {
		return nil, f.err
	}
	var out []any
	for _, id := range ids {
		if e, ok := f.rows[id.(int)]; ok {
			out = append(out, e)
		}
	}
	return out, nil
}

func TestOrderByKeys(t *testing.T) {
	t.Parallel()
	t.Run("AllFound", func(t *testing.T) {
		t.Parallel()
		values := []*mockEntity{{ID: 3, Name: "third"}, {ID: 1, Name: "first"}, {ID: 2, Name: "second"}}
		result, errs := OrderByKeys([]int{1, 2, 3}, values, keyOf)
		require.Len(t, result, 3)
		assert.Equal(t, "first", result[0].Name)
		assert.Equal(t, "third", result[2].Name)
		for _, err := range errs {
			assert.NoError(t, err)
		}
	})
	t.Run("Missing", func(t *testing.T) {
		t.Parallel()
		result, errs := OrderByKeys([]int{1, 2}, []*mockEntity{{ID: 1}}, keyOf)
		assert.NotNil(t, result[0])
		assert.Nil(t, result[1])
		assert.NoError(t, errs[0])
		assert.ErrorIs(t, errs[1], ErrNotFound)
	})
}

func TestGroupByKey(t *testing.T) {
	t.Parallel()
	type car struct{ ID, Owner int }
	cars := []*car{{1, 10}, {2, 20}, {3, 10}}
	groups := GroupByKey(cars, func(c *car) int { return c.Owner })
	require.Len(t, groups[10], 2)
	ordered := OrderGroupsByKeys([]int{20, 30, 10}, groups)
	require.Len(t, ordered, 3)
	assert.Len(t, ordered[0], 1)
	assert.Empty(t, ordered[1])
	assert.Equal(t, 3, ordered[2][1].ID)
}

func TestSelect(t *testing.T) {
	t.Parallel()
	p := &fakePersister{rows: map[int]any{1: &mockEntity{ID: 1}, 2: "not an entity"}}
	batch := Select(p, keyOf)

	vs, errs := batch(context.Background(), []int{1, 3})
	require.NotNil(t, vs[0])
	assert.NoError(t, errs[0])
	assert.ErrorIs(t, errs[1], ErrNotFound)

	_, errs = batch(context.Background(), []int{2})
	assert.ErrorContains(t, errs[0], "unexpected entity string")

	p.err = errors.New("connection refused")
	_, errs = batch(context.Background(), []int{1, 2})
	assert.EqualError(t, errs[0], "connection refused")
	assert.EqualError(t, errs[1], "connection refused")
}

func TestLoader(t *testing.T) {
	t.Parallel()
	p := &fakePersister{rows: map[int]any{
		1: &mockEntity{ID: 1, Name: "a8m"},
		2: &mockEntity{ID: 2, Name: "nati"},
	}}
	l := New(p, keyOf)
	ctx := context.Background()

	vs, errs := l.LoadMany(ctx, []int{1, 2, 1, 4})
	require.Len(t, vs, 4)
	assert.Same(t, vs[0], vs[2])
	assert.Equal(t, "nati", vs[1].Name)
	assert.ErrorIs(t, errs[3], ErrNotFound)
	require.Len(t, p.batches, 1)
	assert.Equal(t, []any{1, 2, 4}, p.batches[0])

	// Cached entities are not selected again; failed keys are.
	v, err := l.Load(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "nati", v.Name)
	_, err = l.Load(ctx, 4)
	assert.ErrorIs(t, err, ErrNotFound)
	require.Len(t, p.batches, 2)

	l.Prime(&mockEntity{ID: 4, Name: "primed"})
	v, err = l.Load(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, "primed", v.Name)
	require.Len(t, p.batches, 2)

	l.Clear(1)
	_, err = l.Load(ctx, 1)
	require.NoError(t, err)
	require.Len(t, p.batches, 3)
	assert.Equal(t, []any{1}, p.batches[2])
}

func TestLoaders(t *testing.T) {
	t.Parallel()
	type loaders struct{ Users *Loader[int, *mockEntity] }
	ls := &loaders{Users: NewBatched(func(_ context.Context, keys []int) ([]*mockEntity, []error) {
		vs := make([]*mockEntity, len(keys))
		for i, k := range keys {
			vs[i] = &mockEntity{ID: k}
		}
		return vs, nil
	}, keyOf)}
	ctx := WithLoaders(context.Background(), ls)
	assert.Same(t, ls, For[*loaders](ctx))
	assert.Nil(t, For[*loaders](context.Background()))

	v, err := For[*loaders](ctx).Users.Load(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 7, v.ID)
}
