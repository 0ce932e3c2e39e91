package sql

// Predicate is a boolean SQL expression rendered into a Builder.
type Predicate struct {
	fn       func(*Builder)
	compound bool
}

func (p *Predicate) render(b *Builder) { p.fn(b) }

// P creates a predicate from a raw render function.
func P(fn func(*Builder)) *Predicate {
	return &Predicate{fn: fn}
}

// EQ returns a "column = value" predicate.
func EQ(column string, v any) *Predicate {
	return P(func(b *Builder) {
		b.Ident(column).WriteString(" = ").Arg(v)
	})
}

// ColumnsEQ returns a "c1 = c2" predicate, used for join conditions.
func ColumnsEQ(c1, c2 string) *Predicate {
	return P(func(b *Builder) {
		b.Ident(c1).WriteString(" = ").Ident(c2)
	})
}

// IsNull returns a "column IS NULL" predicate.
func IsNull(column string) *Predicate {
	return P(func(b *Builder) {
		b.Ident(column).WriteString(" IS NULL")
	})
}

// NotNull returns a "column IS NOT NULL" predicate.
func NotNull(column string) *Predicate {
	return P(func(b *Builder) {
		b.Ident(column).WriteString(" IS NOT NULL")
	})
}

// EQOrNull returns EQ for non-nil values and IsNull otherwise.
func EQOrNull(column string, v any) *Predicate {
	if v == nil {
		return IsNull(column)
	}
	return EQ(column, v)
}

// In returns a "column IN (...)" predicate. An empty list matches nothing.
func In(column string, vs ...any) *Predicate {
	if len(vs) == 0 {
		return P(func(b *Builder) { b.WriteString("1 = 0") })
	}
	if len(vs) == 1 {
		return EQ(column, vs[0])
	}
	return P(func(b *Builder) {
		b.Ident(column).WriteString(" IN (").Args(vs...).WriteString(")")
	})
}

// TupleIn matches rows whose columns equal one of the given tuples. Single
// column tuples render as IN, others as a disjunction of conjunctions.
func TupleIn(columns []string, tuples [][]any) *Predicate {
	if len(columns) == 1 {
		vs := make([]any, len(tuples))
		for i, t := range tuples {
			vs[i] = t[0]
		}
		return In(columns[0], vs...)
	}
	ors := make([]*Predicate, 0, len(tuples))
	for _, t := range tuples {
		ands := make([]*Predicate, len(columns))
		for i, c := range columns {
			ands[i] = EQ(c, t[i])
		}
		ors = append(ors, And(ands...))
	}
	return Or(ors...)
}

// And combines the predicates with AND.
func And(preds ...*Predicate) *Predicate {
	return combine(" AND ", preds)
}

// Or combines the predicates with OR.
func Or(preds ...*Predicate) *Predicate {
	return combine(" OR ", preds)
}

func combine(op string, preds []*Predicate) *Predicate {
	switch len(preds) {
	case 0:
		return P(func(b *Builder) { b.WriteString("1 = 0") })
	case 1:
		return preds[0]
	}
	return &Predicate{
		compound: true,
		fn: func(b *Builder) {
			for i, p := range preds {
				if i > 0 {
					b.WriteString(op)
				}
				if p.compound {
					b.WriteString("(")
					p.render(b)
					b.WriteString(")")
					continue
				}
				p.render(b)
			}
		},
	}
}
