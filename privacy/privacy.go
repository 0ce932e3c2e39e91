// Package privacy provides sets of types and helpers for writing privacy
// rules over persister operations, and deal with their evaluation at runtime.
package privacy

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/syssam/strata/persister"
)

// Policy decision sentinel errors.
//
// These errors are used as return values from rules to indicate how the
// policy evaluation should proceed. Use errors.Is() to check for these
// values:
//
//	if errors.Is(err, privacy.Allow) { ... }
//	if errors.Is(err, privacy.Deny) { ... }
//	if errors.Is(err, privacy.Skip) { ... }
var (
	// Allow may be returned by rules to indicate that the policy
	// evaluation should terminate with an allow decision.
	Allow = errors.New("strata/privacy: allow rule")

	// Deny may be returned by rules to indicate that the policy
	// evaluation should terminate with a deny decision.
	Deny = errors.New("strata/privacy: deny rule")

	// Skip may be returned by rules to indicate that the policy
	// evaluation should continue to the next rule in the chain.
	Skip = errors.New("strata/privacy: skip rule")
)

// Allowf returns a formatted wrapped Allow decision.
func Allowf(format string, a ...any) error {
	return fmt.Errorf(format+": %w", append(a, Allow)...)
}

// Denyf returns a formatted wrapped Deny decision.
func Denyf(format string, a ...any) error {
	return fmt.Errorf(format+": %w", append(a, Deny)...)
}

// Skipf returns a formatted wrapped Skip decision.
func Skipf(format string, a ...any) error {
	return fmt.Errorf(format+": %w", append(a, Skip)...)
}

// Op is a set of persister operations.
type Op uint

// Persister operations.
const (
	OpInsert Op = 1 << iota
	OpUpdate
	OpDelete
	OpSelect

	OpMutation = OpInsert | OpUpdate | OpDelete
)

// Is reports whether o is one of the operations of op.
func (o Op) Is(op Op) bool { return o&op != 0 }

var opNames = []string{"Insert", "Update", "Delete", "Select"}

func (o Op) String() string {
	var names []string
	for i, n := range opNames {
		if o&(1<<i) != 0 {
			names = append(names, n)
		}
	}
	if len(names) == 0 {
		return fmt.Sprintf("Op(%d)", uint(o))
	}
	return strings.Join(names, "|")
}

// Operation is a persister operation under evaluation. Inserts and deletes
// carry Entities, updates carry Pairs and selects carry IDs.
type Operation struct {
	Op       Op
	Type     reflect.Type
	Entities []any
	Pairs    []persister.Pair
	IDs      []any
}

// Targets returns the entities written by the operation: the inserted or
// deleted entities, or the modified side of the updated pairs.
func (o *Operation) Targets() []any {
	if o.Pairs == nil {
		return o.Entities
	}
	es := make([]any, len(o.Pairs))
	for i, p := range o.Pairs {
		es[i] = p.Modified
	}
	return es
}

// Rule decides whether an operation is allowed.
type Rule interface {
	EvalOperation(context.Context, *Operation) error
}

// RuleFunc type is an adapter which allows the use of ordinary functions
// as rules.
type RuleFunc func(context.Context, *Operation) error

// EvalOperation returns f(ctx, o).
func (f RuleFunc) EvalOperation(ctx context.Context, o *Operation) error {
	return f(ctx, o)
}

// AlwaysAllowRule returns a rule that always returns an Allow decision.
func AlwaysAllowRule() Rule {
	return fixedDecision{Allow}
}

// AlwaysDenyRule returns a rule that always returns a Deny decision.
func AlwaysDenyRule() Rule {
	return fixedDecision{Deny}
}

// ContextRule creates a rule from a context evaluation function. Returning
// nil is equivalent to returning Skip.
func ContextRule(eval func(context.Context) error) Rule {
	return RuleFunc(func(ctx context.Context, _ *Operation) error {
		return eval(ctx)
	})
}

// OnOperation evaluates the given rule only on the given operations.
func OnOperation(rule Rule, op Op) Rule {
	return RuleFunc(func(ctx context.Context, o *Operation) error {
		if o.Op.Is(op) {
			return rule.EvalOperation(ctx, o)
		}
		return Skip
	})
}

// DenyOperationRule returns a rule denying the given operations.
func DenyOperationRule(op Op) Rule {
	rule := RuleFunc(func(_ context.Context, o *Operation) error {
		return Denyf("strata/privacy: operation %s is not allowed", o.Op)
	})
	return OnOperation(rule, op)
}

// AllowOperationRule returns a rule allowing the given operations.
func AllowOperationRule(op Op) Rule {
	return OnOperation(AlwaysAllowRule(), op)
}

// Policy is a list of rules evaluated in order. The first rule returning
// a decision other than Skip ends the evaluation; Allow is reported as a
// nil error. A policy where every rule skips allows the operation.
type Policy []Rule

// EvalOperation evaluates the policy against o. A decision attached to the
// context takes precedence over the rules.
func (p Policy) EvalOperation(ctx context.Context, o *Operation) error {
	if decision, ok := DecisionFromContext(ctx); ok {
		return decision
	}
	for _, rule := range p {
		switch decision := rule.EvalOperation(ctx, o); {
		case decision == nil || errors.Is(decision, Skip):
		case errors.Is(decision, Allow):
			return nil
		default:
			return decision
		}
	}
	return nil
}

// Enforce registers listeners on p evaluating the policy before each
// insert, update, delete and select of its entities. Writes without
// listeners, such as UpdateByID, are not covered.
func Enforce(p persister.Relational, policy Policy) {
	typ := p.EntityType()
	eval := func(ctx context.Context, o *Operation) error {
		o.Type = typ
		return policy.EvalOperation(ctx, o)
	}
	l := p.Listeners()
	l.OnInsert(persister.InsertListener{
		Before: func(ctx context.Context, entities []any) error {
			return eval(ctx, &Operation{Op: OpInsert, Entities: entities})
		},
	})
	l.OnUpdate(persister.UpdateListener{
		Before: func(ctx context.Context, pairs []persister.Pair, _ bool) error {
			return eval(ctx, &Operation{Op: OpUpdate, Pairs: pairs})
		},
	})
	remove := persister.DeleteListener{
		Before: func(ctx context.Context, entities []any) error {
			return eval(ctx, &Operation{Op: OpDelete, Entities: entities})
		},
	}
	l.OnDelete(remove)
	l.OnDeleteByID(remove)
	l.OnSelect(persister.SelectListener{
		Before: func(ctx context.Context, ids []any) error {
			return eval(ctx, &Operation{Op: OpSelect, IDs: ids})
		},
	})
}

type decisionCtxKey struct{}

// DecisionContext creates a new context from the given parent context with
// a policy decision attach to it.
func DecisionContext(parent context.Context, decision error) context.Context {
	if decision == nil || errors.Is(decision, Skip) {
		return parent
	}
	return context.WithValue(parent, decisionCtxKey{}, decision)
}

// DecisionFromContext retrieves the policy decision from the context.
func DecisionFromContext(ctx context.Context) (error, bool) {
	decision, ok := ctx.Value(decisionCtxKey{}).(error)
	if ok && errors.Is(decision, Allow) {
		decision = nil
	}
	return decision, ok
}

type fixedDecision struct {
	decision error
}

func (f fixedDecision) EvalOperation(context.Context, *Operation) error {
	return f.decision
}
