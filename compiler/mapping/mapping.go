// Package mapping projects property mappings onto the columns of a table.
package mapping

import (
	"fmt"

	"github.com/syssam/strata"
	"github.com/syssam/strata/dialect/sql/schema"
	"github.com/syssam/strata/persister"
	"github.com/syssam/strata/schema/field"
	"github.com/syssam/strata/schema/mixin"
	"github.com/syssam/strata/schema/naming"
)

// Resolve maps the properties of m, of its mapped superclasses and of its
// embedded values onto columns of table, creating the missing ones. A
// column is named by its linkage, then by the override of the enclosing
// embed, then by the naming strategy.
//
// Two properties resolving to the same column, or the same property path
// declared twice, is a configuration error. Read-only properties may share
// the column of a writable one.
func Resolve(entity string, m *mixin.Mapping, table *schema.Table, ns *naming.Strategy) ([]*persister.Property, error) {
	return ResolveWith(entity, m, table, ns, nil)
}

// ResolveWith is like Resolve, with column names overridden per dotted
// property path of m.
func ResolveWith(entity string, m *mixin.Mapping, table *schema.Table, ns *naming.Strategy, overrides map[string]string) ([]*persister.Property, error) {
	r := &resolver{
		entity:  entity,
		table:   table,
		naming:  ns,
		columns: make(map[string]*persister.Property),
		paths:   make(map[string]bool),
	}
	var lookup func(string) (string, bool)
	if len(overrides) > 0 {
		lookup = func(p string) (string, bool) {
			c, ok := overrides[p]
			return c, ok
		}
	}
	if err := r.mapping(m, nil, lookup); err != nil {
		return nil, err
	}
	return r.props, nil
}

type resolver struct {
	entity  string
	table   *schema.Table
	naming  *naming.Strategy
	props   []*persister.Property
	columns map[string]*persister.Property
	paths   map[string]bool
}

// mapping resolves m reached through path. overrides returns the column
// override of a dotted property path of m; outer embeds take precedence.
func (r *resolver) mapping(m *mixin.Mapping, path field.Path, overrides func(string) (string, bool)) error {
	seen := make(map[*mixin.Mapping]bool)
	var supers []*mixin.Mapping
	for s := m.Superclass(); s != nil && !seen[s]; s = s.Superclass() {
		seen[s] = true
		supers = append([]*mixin.Mapping{s}, supers...)
	}
	for _, s := range append(supers, m) {
		for _, l := range s.Linkages() {
			if err := r.linkage(l, path, overrides); err != nil {
				return err
			}
		}
		for _, e := range s.Embeds() {
			name, outer := e.Accessor().Name(), overrides
			sub := func(p string) (string, bool) {
				if outer != nil {
					if c, ok := outer(name + "." + p); ok {
						return c, true
					}
				}
				return e.Override(p)
			}
			if err := r.mapping(e.Mapping(), path.Append(e.Accessor()), sub); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *resolver) linkage(l *field.Linkage, path field.Path, overrides func(string) (string, bool)) error {
	a := l.Accessor()
	full := path.Append(a)
	key := pathKey(full)
	if r.paths[key] {
		return strata.NewConfigurationError(r.entity, "property %s is mapped twice", full).
			WithProperty(full.String()).WithTable(r.table.Name)
	}
	r.paths[key] = true
	name := l.ColumnName()
	if name == "" && overrides != nil {
		name, _ = overrides(a.Name())
	}
	if name == "" {
		name = r.naming.ColumnOf(a.Name())
	}
	typ := l.ColumnType()
	if !typ.Valid() {
		return strata.NewConfigurationError(r.entity, "unsupported type %s of property %s", a.Type(), full).
			WithProperty(full.String())
	}
	p := &persister.Property{Path: full, ReadOnly: l.IsReadOnly(), Codec: l.ValueCodec()}
	if prev, ok := r.columns[name]; ok && !prev.ReadOnly && !p.ReadOnly {
		return strata.NewConfigurationError(r.entity, "column %q is mapped by %s and %s", name, prev.Path, full).
			WithProperty(full.String()).WithTable(r.table.Name)
	}
	ant := l.Annotation()
	p.Column = r.table.AddColumn(&schema.Column{
		Name:       name,
		Type:       typ,
		Size:       l.ColumnSize(),
		Nullable:   !l.IsMandatory(),
		SchemaType: ant.ColumnType,
		Default:    ant.Default,
	})
	if prev, ok := r.columns[name]; !ok || prev.ReadOnly {
		r.columns[name] = p
	}
	r.props = append(r.props, p)
	return nil
}

// pathKey identifies a property path by its accessors.
func pathKey(p field.Path) string {
	var key string
	for _, a := range p {
		key += fmt.Sprintf("%p/", a)
	}
	return key
}
