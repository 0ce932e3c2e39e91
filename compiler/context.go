package compiler

import (
	"reflect"
	"slices"

	"github.com/syssam/strata/dialect/sql/schema"
	"github.com/syssam/strata/persister"
)

// buildContext is the state shared by the nested invocations of one
// outermost Build call. It is created when the outermost call starts and
// dropped when it returns.
type buildContext struct {
	// stack holds the entity types whose relations are being configured.
	stack []reflect.Type
	// registry holds the persisters built or in progress, by entity type.
	registry map[reflect.Type]persister.Relational
	// post runs once the whole graph is built.
	post []func() error
	// solvers load the targets of passive joins, one per target type.
	solvers    map[reflect.Type]*persister.CycleSolver
	checkpoint schema.Checkpoint
	// shadows holds the shadow checkpoints of the strategies the build
	// added shadow columns to.
	shadows map[*persister.Strategy]int
}

func newBuildContext(built map[reflect.Type]persister.Relational, cp schema.Checkpoint) *buildContext {
	registry := make(map[reflect.Type]persister.Relational, len(built))
	for t, p := range built {
		registry[t] = p
	}
	return &buildContext{
		registry:   registry,
		solvers:    make(map[reflect.Type]*persister.CycleSolver),
		checkpoint: cp,
		shadows:    make(map[*persister.Strategy]int),
	}
}

// push marks t as in progress. The returned function pops it.
func (c *buildContext) push(t reflect.Type) func() {
	c.stack = append(c.stack, t)
	return func() { c.stack = c.stack[:len(c.stack)-1] }
}

// inProgress reports whether the relations of t are being configured: a
// relation targeting t closes a cycle.
func (c *buildContext) inProgress(t reflect.Type) bool {
	return slices.Contains(c.stack, t)
}

func (c *buildContext) register(t reflect.Type, p persister.Relational) {
	c.registry[t] = p
}

func (c *buildContext) lookup(t reflect.Type) (persister.Relational, bool) {
	p, ok := c.registry[t]
	return p, ok
}

// shadow adds shadow columns to s. Strategies of persisters built by
// earlier calls lose them on rollback.
func (c *buildContext) shadow(s *persister.Strategy, shadows ...*persister.ShadowColumn) {
	if _, ok := c.shadows[s]; !ok {
		c.shadows[s] = s.ShadowCheckpoint()
	}
	for _, sc := range shadows {
		s.AddShadow(sc)
	}
}

// rollback restores the shadow columns of the strategies the build
// touched.
func (c *buildContext) rollback() {
	for s, n := range c.shadows {
		s.RollbackShadows(n)
	}
}

// later registers a post-initializer.
func (c *buildContext) later(fn func() error) {
	c.post = append(c.post, fn)
}

// finalize runs the post-initializers in registration order. A
// post-initializer may register others; they run too.
func (c *buildContext) finalize() error {
	for i := 0; i < len(c.post); i++ {
		if err := c.post[i](); err != nil {
			return err
		}
	}
	c.post = nil
	return nil
}
