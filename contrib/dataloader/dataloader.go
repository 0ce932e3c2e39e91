// Package dataloader batches and caches persister selects by identifier.
//
// A Loader collects the identifiers requested while serving one request
// and selects the missing ones in a single round trip:
//
//	users := dataloader.New(p, func(u *User) int { return u.ID })
//	got, errs := users.LoadMany(ctx, []int{1, 2, 3})
//
// Loaders are request scoped. Attach them to the request context:
//
//	ctx = dataloader.WithLoaders(ctx, &Loaders{Users: users})
//	loaders := dataloader.For[*Loaders](ctx)
package dataloader

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/syssam/strata/persister"
)

// ErrNotFound is returned when an entity is not found in a batch result.
var ErrNotFound = errors.New("dataloader: entity not found")

// KeyFunc extracts a key from an entity.
type KeyFunc[K comparable, V any] func(V) K

// BatchFunc loads a batch of entities by their keys. Its results follow
// the order of keys.
type BatchFunc[K comparable, V any] func(ctx context.Context, keys []K) ([]V, []error)

// Select returns the batch function selecting entities of type V through
// p. Entities of another type are reported as errors.
func Select[K comparable, V any](p persister.Persister, key KeyFunc[K, V]) BatchFunc[K, V] {
	return func(ctx context.Context, keys []K) ([]V, []error) {
		ids := make([]any, len(keys))
		for i, k := range keys {
			ids[i] = k
		}
		entities, err := p.Select(ctx, ids)
		if err != nil {
			errs := make([]error, len(keys))
			for i := range errs {
				errs[i] = err
			}
			return make([]V, len(keys)), errs
		}
		values := make([]V, 0, len(entities))
		for _, e := range entities {
			v, ok := e.(V)
			if !ok {
				errs := make([]error, len(keys))
				for i := range errs {
					errs[i] = fmt.Errorf("dataloader: unexpected entity %T", e)
				}
				return make([]V, len(keys)), errs
			}
			values = append(values, v)
		}
		return OrderByKeys(keys, values, key)
	}
}

// OrderByKeys reorders entities to match the order of requested keys.
// Missing entities are represented as zero values with ErrNotFound.
func OrderByKeys[K comparable, V any](keys []K, values []V, keyFn KeyFunc[K, V]) ([]V, []error) {
	lookup := make(map[K]V, len(values))
	for _, v := range values {
		lookup[keyFn(v)] = v
	}
	result := make([]V, len(keys))
	errs := make([]error, len(keys))
	for i, key := range keys {
		if v, ok := lookup[key]; ok {
			result[i] = v
		} else {
			errs[i] = ErrNotFound
		}
	}
	return result, errs
}

// GroupByKey groups entities by a key function, e.g. the entities of a
// one-to-many relation by their owner.
func GroupByKey[K comparable, V any](values []V, keyFn KeyFunc[K, V]) map[K][]V {
	result := make(map[K][]V)
	for _, v := range values {
		key := keyFn(v)
		result[key] = append(result[key], v)
	}
	return result
}

// OrderGroupsByKeys reorders grouped entities to match the order of
// requested keys.
func OrderGroupsByKeys[K comparable, V any](keys []K, groups map[K][]V) [][]V {
	result := make([][]V, len(keys))
	for i, key := range keys {
		result[i] = groups[key]
	}
	return result
}

// Loader caches the entities loaded by a batch function. It is safe for
// concurrent use.
type Loader[K comparable, V any] struct {
	batch BatchFunc[K, V]
	key   KeyFunc[K, V]
	mu    sync.Mutex
	cache map[K]V
}

// New returns a loader selecting entities through p.
func New[K comparable, V any](p persister.Persister, key KeyFunc[K, V]) *Loader[K, V] {
	return NewBatched(Select(p, key), key)
}

// NewBatched returns a loader over a custom batch function.
func NewBatched[K comparable, V any](batch BatchFunc[K, V], key KeyFunc[K, V]) *Loader[K, V] {
	return &Loader[K, V]{batch: batch, key: key, cache: make(map[K]V)}
}

// Load returns the entity of key.
func (l *Loader[K, V]) Load(ctx context.Context, key K) (V, error) {
	vs, errs := l.LoadMany(ctx, []K{key})
	return vs[0], errs[0]
}

// LoadMany returns the entities of keys in their order. Keys missing from
// the cache are loaded in one batch; errors are not cached.
func (l *Loader[K, V]) LoadMany(ctx context.Context, keys []K) ([]V, []error) {
	result := make([]V, len(keys))
	errs := make([]error, len(keys))
	var missing []K
	pending := make(map[K][]int)
	l.mu.Lock()
	for i, k := range keys {
		if v, ok := l.cache[k]; ok {
			result[i] = v
			continue
		}
		if _, ok := pending[k]; !ok {
			missing = append(missing, k)
		}
		pending[k] = append(pending[k], i)
	}
	l.mu.Unlock()
	if len(missing) == 0 {
		return result, errs
	}
	vs, batchErrs := l.batch(ctx, missing)
	l.mu.Lock()
	defer l.mu.Unlock()
	for j, k := range missing {
		var err error
		if j < len(batchErrs) {
			err = batchErrs[j]
		}
		if err == nil {
			l.cache[k] = vs[j]
		}
		for _, i := range pending[k] {
			result[i], errs[i] = vs[j], err
		}
	}
	return result, errs
}

// Prime adds value to the cache, replacing a cached entity of the same
// key.
func (l *Loader[K, V]) Prime(value V) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cache[l.key(value)] = value
}

// Clear removes keys from the cache, e.g. after deleting their entities.
func (l *Loader[K, V]) Clear(keys ...K) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, k := range keys {
		delete(l.cache, k)
	}
}

type ctxKey struct{}

// WithLoaders injects loaders into the context.
//
//	func Middleware(next http.Handler) http.Handler {
//	    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
//	        ctx := dataloader.WithLoaders(r.Context(), newLoaders())
//	        next.ServeHTTP(w, r.WithContext(ctx))
//	    })
//	}
func WithLoaders[T any](ctx context.Context, loaders T) context.Context {
	return context.WithValue(ctx, ctxKey{}, loaders)
}

// For extracts loaders from context.
func For[T any](ctx context.Context) T {
	v, _ := ctx.Value(ctxKey{}).(T)
	return v
}
