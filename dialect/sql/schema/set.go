package schema

import (
	"github.com/yourbasic/graph"
)

// Set is an ordered collection of tables addressed by name.
type Set struct {
	tables []*Table
	byName map[string]*Table
}

// NewSet returns an empty set.
func NewSet() *Set {
	return &Set{byName: make(map[string]*Table)}
}

// Table returns the table with the given name, if exists.
func (s *Set) Table(name string) (*Table, bool) {
	t, ok := s.byName[name]
	return t, ok
}

// GetOrCreate returns the table with the given name, creating it when
// missing. The second value reports whether the table was created.
func (s *Set) GetOrCreate(name string) (*Table, bool) {
	if t, ok := s.byName[name]; ok {
		return t, false
	}
	t := NewTable(name)
	s.byName[name] = t
	s.tables = append(s.tables, t)
	return t, true
}

// Tables returns the tables in creation order.
func (s *Set) Tables() []*Table {
	return append([]*Table(nil), s.tables...)
}

// Checkpoint records the size of the set and of each of its tables.
type Checkpoint struct {
	tables int
	sizes  map[*Table][4]int
}

// Checkpoint returns the current state of the set, to be restored by
// Rollback when a build fails.
func (s *Set) Checkpoint() Checkpoint {
	cp := Checkpoint{tables: len(s.tables), sizes: make(map[*Table][4]int, len(s.tables))}
	for _, t := range s.tables {
		cp.sizes[t] = [4]int{len(t.Columns), len(t.PrimaryKey), len(t.ForeignKeys), len(t.Indexes)}
	}
	return cp
}

// Rollback removes every table, column, key and index added after the
// checkpoint was taken.
func (s *Set) Rollback(cp Checkpoint) {
	for _, t := range s.tables[cp.tables:] {
		delete(s.byName, t.Name)
	}
	s.tables = s.tables[:cp.tables]
	for _, t := range s.tables {
		size := cp.sizes[t]
		for _, c := range t.Columns[size[0]:] {
			delete(t.columns, c.Name)
		}
		t.Columns = t.Columns[:size[0]]
		if size[1] == 0 {
			t.PrimaryKey = nil
		}
		t.ForeignKeys = t.ForeignKeys[:size[2]]
		t.Indexes = t.Indexes[:size[3]]
	}
}

// Sorted returns the tables ordered by their foreign keys: referenced
// tables come before the tables referencing them. Tables involved in a
// reference cycle are kept together in creation order.
func (s *Set) Sorted() []*Table {
	index := make(map[*Table]int, len(s.tables))
	for i, t := range s.tables {
		index[t] = i
	}
	g := graph.New(len(s.tables))
	for i, t := range s.tables {
		for _, fk := range t.ForeignKeys {
			if j, ok := index[fk.RefTable]; ok && j != i {
				g.Add(j, i)
			}
		}
	}
	if order, ok := graph.TopSort(g); ok {
		return s.pick(order)
	}
	// Collapse cycles into components and sort the resulting DAG.
	components := graph.StrongComponents(g)
	component := make([]int, len(s.tables))
	for ci, vs := range components {
		for _, v := range vs {
			component[v] = ci
		}
	}
	dag := graph.New(len(components))
	for v := range s.tables {
		g.Visit(v, func(w int, _ int64) bool {
			if component[v] != component[w] {
				dag.Add(component[v], component[w])
			}
			return false
		})
	}
	corder, _ := graph.TopSort(dag)
	order := make([]int, 0, len(s.tables))
	for _, ci := range corder {
		members := make(map[int]bool, len(components[ci]))
		for _, v := range components[ci] {
			members[v] = true
		}
		for v := range s.tables {
			if members[v] {
				order = append(order, v)
			}
		}
	}
	return s.pick(order)
}

func (s *Set) pick(order []int) []*Table {
	tables := make([]*Table, len(order))
	for i, v := range order {
		tables[i] = s.tables[v]
	}
	return tables
}
