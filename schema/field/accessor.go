package field

import (
	"fmt"
	"reflect"
	"strings"
)

// Accessor describes one property of a Go type: a stable name, the declaring
// type, the value type and a getter/setter pair. Accessors are created once
// with Prop and shared by every mapping that refers to the property.
type Accessor struct {
	name  string
	owner reflect.Type
	value reflect.Type
	get   func(any) any
	set   func(any, any) error
}

// Prop returns the accessor of the property name of S, reading it with get
// and writing it with set. A nil set makes the property unsettable, which is
// only valid for properties that are never loaded (e.g. computed keys).
//
//	var carName = field.Prop("name",
//		func(c *Car) string { return c.Name },
//		func(c *Car, v string) { c.Name = v },
//	)
func Prop[S, V any](name string, get func(S) V, set func(S, V)) *Accessor {
	a := &Accessor{
		name:  name,
		owner: reflect.TypeFor[S](),
		value: reflect.TypeFor[V](),
	}
	a.get = func(o any) any {
		s, ok := cast[S](o)
		if !ok {
			return nil
		}
		return normalize(get(s))
	}
	if set != nil {
		a.set = func(o, v any) error {
			s, ok := cast[S](o)
			if !ok {
				return fmt.Errorf("field: %s: %T is not a %s", name, o, a.owner)
			}
			if v == nil {
				var zero V
				set(s, zero)
				return nil
			}
			tv, ok := v.(V)
			if !ok {
				cv, err := Convert(v, a.value)
				if err != nil {
					return fmt.Errorf("field: %s: %w", name, err)
				}
				tv, _ = cv.(V)
			}
			set(s, tv)
			return nil
		}
	}
	return a
}

// ReadOnlyProp returns the accessor of a property without setter.
func ReadOnlyProp[S, V any](name string, get func(S) V) *Accessor {
	return Prop[S, V](name, get, nil)
}

// Name returns the property name.
func (a *Accessor) Name() string { return a.name }

// Owner returns the declaring type.
func (a *Accessor) Owner() reflect.Type { return a.owner }

// Type returns the value type of the property.
func (a *Accessor) Type() reflect.Type { return a.value }

// CanSet reports whether the property has a setter.
func (a *Accessor) CanSet() bool { return a.set != nil }

// Get returns the property value of owner. Nil pointers, maps and slices
// are returned as an untyped nil.
func (a *Accessor) Get(owner any) any {
	if owner == nil {
		return nil
	}
	return a.get(owner)
}

// Set sets the property value of owner, converting v to the value type
// when needed.
func (a *Accessor) Set(owner, v any) error {
	if a.set == nil {
		return fmt.Errorf("field: property %s has no setter", a)
	}
	return a.set(owner, v)
}

// New returns a new zero instance of the value type when it is a pointer
// to a struct, or nil otherwise.
func (a *Accessor) New() any {
	if a.value.Kind() != reflect.Pointer || a.value.Elem().Kind() != reflect.Struct {
		return nil
	}
	return reflect.New(a.value.Elem()).Interface()
}

// String returns the qualified property name.
func (a *Accessor) String() string {
	return typeName(a.owner) + "." + a.name
}

// Path is a chain of accessors reaching a property of an embedded value.
type Path []*Accessor

// Get follows the path from root. It returns nil when an intermediate
// value is nil.
func (p Path) Get(root any) any {
	cur := root
	for _, a := range p {
		if cur == nil {
			return nil
		}
		cur = a.Get(cur)
	}
	return cur
}

// Set follows the path from root and sets the leaf property. Missing
// intermediate values are created, unless v is nil.
func (p Path) Set(root, v any) error {
	if len(p) == 0 {
		return fmt.Errorf("field: empty path")
	}
	cur := root
	for _, a := range p[:len(p)-1] {
		next := a.Get(cur)
		if next == nil {
			if v == nil {
				return nil
			}
			if next = a.New(); next == nil {
				return fmt.Errorf("field: cannot instantiate %s of type %s", a, a.Type())
			}
			if err := a.Set(cur, next); err != nil {
				return err
			}
		}
		cur = next
	}
	return p[len(p)-1].Set(cur, v)
}

// Leaf returns the last accessor of the path.
func (p Path) Leaf() *Accessor {
	if len(p) == 0 {
		return nil
	}
	return p[len(p)-1]
}

// Append returns a new path extended with the given accessors.
func (p Path) Append(as ...*Accessor) Path {
	np := make(Path, 0, len(p)+len(as))
	return append(append(np, p...), as...)
}

// String returns the dotted property names of the path.
func (p Path) String() string {
	names := make([]string, len(p))
	for i, a := range p {
		names[i] = a.name
	}
	return strings.Join(names, ".")
}

// Many describes a collection property: a slice of elements read and
// written as a whole.
type Many struct {
	name  string
	owner reflect.Type
	elem  reflect.Type
	get   func(any) []any
	set   func(any, []any) error
}

// Slice returns the accessor of the collection property name of S.
//
//	var carTags = field.Slice("tags",
//		func(c *Car) []string { return c.Tags },
//		func(c *Car, v []string) { c.Tags = v },
//	)
func Slice[S, E any](name string, get func(S) []E, set func(S, []E)) *Many {
	m := &Many{
		name:  name,
		owner: reflect.TypeFor[S](),
		elem:  reflect.TypeFor[E](),
	}
	m.get = func(o any) []any {
		s, ok := cast[S](o)
		if !ok {
			return nil
		}
		es := get(s)
		if es == nil {
			return nil
		}
		vs := make([]any, 0, len(es))
		for _, e := range es {
			vs = append(vs, normalize(e))
		}
		return vs
	}
	if set != nil {
		m.set = func(o any, vs []any) error {
			s, ok := cast[S](o)
			if !ok {
				return fmt.Errorf("field: %s: %T is not a %s", name, o, m.owner)
			}
			es := make([]E, 0, len(vs))
			for _, v := range vs {
				e, ok := v.(E)
				if !ok {
					cv, err := Convert(v, m.elem)
					if err != nil {
						return fmt.Errorf("field: %s: %w", name, err)
					}
					e, _ = cv.(E)
				}
				es = append(es, e)
			}
			set(s, es)
			return nil
		}
	}
	return m
}

// Name returns the property name.
func (m *Many) Name() string { return m.name }

// Owner returns the declaring type.
func (m *Many) Owner() reflect.Type { return m.owner }

// Elem returns the element type of the collection.
func (m *Many) Elem() reflect.Type { return m.elem }

// Get returns the elements of the collection of owner.
func (m *Many) Get(owner any) []any {
	if owner == nil {
		return nil
	}
	return m.get(owner)
}

// Set replaces the collection of owner.
func (m *Many) Set(owner any, vs []any) error {
	if m.set == nil {
		return fmt.Errorf("field: collection %s has no setter", m)
	}
	return m.set(owner, vs)
}

// String returns the qualified property name.
func (m *Many) String() string {
	return typeName(m.owner) + "." + m.name
}

// cast converts o to S, directly or through an embedded field.
func cast[S any](o any) (S, bool) {
	if s, ok := o.(S); ok {
		return s, true
	}
	var zero S
	u, ok := Upcast(o, reflect.TypeFor[S]())
	if !ok {
		return zero, false
	}
	s, ok := u.(S)
	return s, ok
}

// Upcast returns the value of type t embedded (at any depth) in the struct
// pointed to by o. It is how accessors declared on a parent entity type are
// applied to instances of a subtype embedding it:
//
//	type Vehicle struct{ ID int64 }
//	type Car struct {
//		Vehicle
//		Doors int
//	}
//
//	v, _ := field.Upcast(&Car{}, reflect.TypeFor[*Vehicle]()) // &car.Vehicle
func Upcast(o any, t reflect.Type) (any, bool) {
	if o == nil {
		return nil, false
	}
	v := reflect.ValueOf(o)
	if v.Type() == t {
		return o, true
	}
	if t.Kind() == reflect.Interface && v.Type().Implements(t) {
		return o, true
	}
	if v.Kind() != reflect.Pointer || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return nil, false
	}
	e := v.Elem()
	for i := 0; i < e.NumField(); i++ {
		sf := e.Type().Field(i)
		if !sf.Anonymous || !sf.IsExported() {
			continue
		}
		f := e.Field(i)
		var next any
		switch f.Kind() {
		case reflect.Struct:
			next = f.Addr().Interface()
		case reflect.Pointer:
			if f.IsNil() {
				continue
			}
			next = f.Interface()
		default:
			continue
		}
		if u, ok := Upcast(next, t); ok {
			return u, true
		}
	}
	return nil, false
}

// IsNil reports whether v is nil or a nil pointer, map, slice or interface.
func IsNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}

func normalize(v any) any {
	if IsNil(v) {
		return nil
	}
	return v
}

func typeName(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.Name()
}

// TypeName returns the name of t, dereferencing pointers.
func TypeName(t reflect.Type) string { return typeName(t) }
