package persister

import (
	"context"
	"reflect"
	"sort"

	"github.com/syssam/strata/dialect"
)

type (
	opKey struct{}
	exKey struct{}
)

// NewContext returns a context whose persister operations run on ex,
// typically a transaction.
func NewContext(parent context.Context, ex dialect.ExecQuerier) context.Context {
	return context.WithValue(parent, exKey{}, ex)
}

// operation is the state shared by the nested calls of one outermost
// persister call.
type operation struct {
	ex           dialect.ExecQuerier
	correlations map[correlationKey]correlation
	cache        map[cacheKey]any
	applied      map[applyKey]struct{}
	accumulators map[accumulatorKey]*accumulator
	order        []*accumulator
	deferred     []deferredLoad
}

type (
	correlationKey struct {
		relation any
		target   any
	}
	correlation struct {
		source any
		index  int
	}
	cacheKey struct {
		typ reflect.Type
		id  any
	}
	applyKey struct {
		binder any
		source any
		value  any
		index  int
	}
	accumulatorKey struct {
		binder any
		source any
	}
	accumulator struct {
		source  any
		set     func(source any, values []any) error
		indexed bool
		items   []accumulated
	}
	accumulated struct {
		value any
		index int
	}
	deferredLoad struct {
		solver *CycleSolver
		id     any
		bind   func(target any) error
	}
)

// begin returns the operation of ctx, creating one when ctx has none. The
// owned result reports whether the caller is the outermost call, which must
// defer release.
func begin(ctx context.Context, def dialect.ExecQuerier) (context.Context, *operation, bool) {
	if op, _ := ctx.Value(opKey{}).(*operation); op != nil {
		return ctx, op, false
	}
	ex := def
	if cx, ok := ctx.Value(exKey{}).(dialect.ExecQuerier); ok && cx != nil {
		ex = cx
	}
	op := &operation{
		ex:           ex,
		correlations: make(map[correlationKey]correlation),
		cache:        make(map[cacheKey]any),
		applied:      make(map[applyKey]struct{}),
		accumulators: make(map[accumulatorKey]*accumulator),
	}
	return context.WithValue(ctx, opKey{}, op), op, true
}

// detach returns a context starting a new operation on the same executor.
func detach(ctx context.Context, op *operation) context.Context {
	return context.WithValue(NewContext(ctx, op.ex), opKey{}, (*operation)(nil))
}

func operationFrom(ctx context.Context) *operation {
	op, _ := ctx.Value(opKey{}).(*operation)
	return op
}

// release clears the operation state. It runs on success and failure.
func (op *operation) release() {
	op.correlations = nil
	op.cache = nil
	op.applied = nil
	op.accumulators = nil
	op.order = nil
	op.deferred = nil
}

func (op *operation) correlate(relation, target, source any, index int) {
	op.correlations[correlationKey{relation: relation, target: target}] = correlation{source: source, index: index}
}

func (op *operation) correlated(relation, target any) (correlation, bool) {
	c, ok := op.correlations[correlationKey{relation: relation, target: target}]
	return c, ok
}

func (op *operation) cached(t reflect.Type, id any) (any, bool) {
	e, ok := op.cache[cacheKey{typ: t, id: key(id)}]
	return e, ok
}

func (op *operation) store(t reflect.Type, id, e any) {
	op.cache[cacheKey{typ: t, id: key(id)}] = e
}

// apply reports whether the (binder, source, value, index) binding is new,
// and records it.
func (op *operation) apply(binder, source, value any, index int) bool {
	k := applyKey{binder: binder, source: source, value: value, index: index}
	if _, ok := op.applied[k]; ok {
		return false
	}
	op.applied[k] = struct{}{}
	return true
}

// accumulate adds a value to the collection of source, set when the
// operation finishes.
func (op *operation) accumulate(binder, source any, set func(any, []any) error, indexed bool, value any, index int) {
	k := accumulatorKey{binder: binder, source: source}
	acc, ok := op.accumulators[k]
	if !ok {
		acc = &accumulator{source: source, set: set, indexed: indexed}
		op.accumulators[k] = acc
		op.order = append(op.order, acc)
	}
	acc.items = append(acc.items, accumulated{value: value, index: index})
}

func (op *operation) postpone(solver *CycleSolver, id any, bind func(any) error) {
	op.deferred = append(op.deferred, deferredLoad{solver: solver, id: id, bind: bind})
}

// finish loads the deferred relations and sets the accumulated
// collections. Only the outermost select calls it.
func (op *operation) finish(ctx context.Context) error {
	if err := op.drain(ctx); err != nil {
		return err
	}
	for _, acc := range op.order {
		if acc.indexed {
			sort.SliceStable(acc.items, func(i, j int) bool { return acc.items[i].index < acc.items[j].index })
		}
		values := make([]any, len(acc.items))
		for i, it := range acc.items {
			values[i] = it.value
		}
		if err := acc.set(acc.source, values); err != nil {
			return err
		}
	}
	op.accumulators = make(map[accumulatorKey]*accumulator)
	op.order = nil
	return nil
}

// drain runs the second phase of cyclic relations: it loads the targets
// whose identifiers were collected by passive joins, and binds them. Each
// round only loads identifiers absent from the cache.
func (op *operation) drain(ctx context.Context) error {
	for len(op.deferred) > 0 {
		items := op.deferred
		op.deferred = nil
		var (
			solvers []*CycleSolver
			missing = make(map[*CycleSolver][]any)
			seen    = make(map[cacheKey]bool)
		)
		for _, it := range items {
			t := it.solver.target.CacheType()
			k := cacheKey{typ: t, id: key(it.id)}
			if _, ok := op.cache[k]; ok || seen[k] {
				continue
			}
			seen[k] = true
			if _, ok := missing[it.solver]; !ok {
				solvers = append(solvers, it.solver)
			}
			missing[it.solver] = append(missing[it.solver], it.id)
		}
		for _, s := range solvers {
			if _, err := s.target.Select(ctx, missing[s]); err != nil {
				return err
			}
		}
		for _, it := range items {
			target, ok := op.cached(it.solver.target.CacheType(), it.id)
			if !ok {
				continue
			}
			if err := it.bind(target); err != nil {
				return err
			}
		}
	}
	return nil
}
