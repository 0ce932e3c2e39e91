// Package sqlgraph assembles object graphs from joined rows. A Tree
// describes the tables joined by one select statement; each Node hands its
// columns to a Consumer that builds or binds the objects of the graph.
package sqlgraph

import (
	"context"
	"fmt"
	"strconv"

	"github.com/syssam/strata/dialect"
	"github.com/syssam/strata/dialect/sql"
	"github.com/syssam/strata/dialect/sql/schema"
)

// Kind is the kind of a join node.
type Kind int

// Node kinds.
const (
	// Root is the table of the selected entity.
	Root Kind = iota
	// Merge is a parent table of the entity in a joined inheritance
	// chain. Its columns complete the instance of its parent node.
	Merge
	// Relation is the table of a related entity.
	Relation
	// Link is an association table between two entity tables.
	Link
	// Passive is a related entity table of which only the identifier is
	// read, the entity being loaded by a second select.
	Passive
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case Root:
		return "root"
	case Merge:
		return "merge"
	case Relation:
		return "relation"
	case Link:
		return "link"
	case Passive:
		return "passive"
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Consumer consumes the columns of a node in one row. It returns the object
// passed to the consumers of the child nodes, or nil to skip them.
type Consumer interface {
	Consume(ctx context.Context, row *Row, node *Node, parent any) (any, error)
}

// The ConsumerFunc type is an adapter to allow the use of ordinary
// functions as Consumer.
type ConsumerFunc func(ctx context.Context, row *Row, node *Node, parent any) (any, error)

// Consume calls f(ctx, row, node, parent).
func (f ConsumerFunc) Consume(ctx context.Context, row *Row, node *Node, parent any) (any, error) {
	return f(ctx, row, node, parent)
}

// Join describes how a node is joined to its parent.
type Join struct {
	Kind    Kind
	Table   *schema.Table
	Columns []*schema.Column
	// Left columns belong to the parent node, Right ones to the joined node.
	Left, Right []*schema.Column
	// Consumer of the node. A nil consumer passes the parent object to the
	// child nodes.
	Consumer Consumer
}

// Node is a table of a Tree.
type Node struct {
	Join
	alias    string
	parent   *Node
	children []*Node
	index    map[string]int
}

// Alias returns the table alias of the node in the select statement.
func (n *Node) Alias() string { return n.alias }

// Parent returns the parent node, nil for the root.
func (n *Node) Parent() *Node { return n.parent }

// Children returns the child nodes.
func (n *Node) Children() []*Node { return n.children }

// C returns the column name qualified with the node alias.
func (n *Node) C(column string) string {
	return n.alias + "." + column
}

// Tree is an entity join tree.
type Tree struct {
	root  *Node
	count int
}

// NewTree returns a tree rooted at the given table.
func NewTree(table *schema.Table, columns []*schema.Column, c Consumer) *Tree {
	t := &Tree{}
	t.root = t.node(nil, Join{Kind: Root, Table: table, Columns: columns, Consumer: c})
	return t
}

// Root returns the root node.
func (t *Tree) Root() *Node { return t.root }

// Add joins a table to the parent node.
func (t *Tree) Add(parent *Node, j Join) *Node {
	n := t.node(parent, j)
	parent.children = append(parent.children, n)
	return n
}

// Graft joins a copy of the subtree rooted at sub to the parent node. The
// root of the copy gets the kind, join columns and consumer of j, and the
// columns of sub unless j sets others.
func (t *Tree) Graft(parent, sub *Node, j Join) *Node {
	j.Table = sub.Table
	if j.Columns == nil {
		j.Columns = sub.Columns
	}
	n := t.Add(parent, j)
	for _, c := range sub.children {
		t.copy(n, c)
	}
	return n
}

// Columns adds columns to the selection of a node.
func (t *Tree) Columns(n *Node, columns ...*schema.Column) {
	for _, c := range columns {
		if _, ok := n.index[c.Name]; ok {
			continue
		}
		n.index[c.Name] = len(n.Columns)
		n.Columns = append(n.Columns, c)
	}
}

func (t *Tree) copy(parent, src *Node) {
	n := t.Add(parent, src.Join)
	for _, c := range src.children {
		t.copy(n, c)
	}
}

func (t *Tree) node(parent *Node, j Join) *Node {
	columns := append([]*schema.Column(nil), j.Columns...)
	j.Columns = nil
	n := &Node{Join: j, alias: "t" + strconv.Itoa(t.count), parent: parent, index: make(map[string]int)}
	t.count++
	t.Columns(n, columns...)
	return n
}

// Nodes returns the nodes of the tree in depth-first order.
func (t *Tree) Nodes() []*Node {
	var nodes []*Node
	var walk func(*Node)
	walk = func(n *Node) {
		nodes = append(nodes, n)
		for _, c := range n.children {
			walk(c)
		}
	}
	walk(t.root)
	return nodes
}

// Selector returns the select statement of the tree. Merge nodes are inner
// joined, other nodes left joined.
func (t *Tree) Selector(name string) *sql.Selector {
	var columns []string
	for _, n := range t.Nodes() {
		for _, c := range n.Columns {
			columns = append(columns, n.C(c.Name))
		}
	}
	s := sql.Dialect(name).Select(columns...).From(t.root.Table.Name, t.root.alias)
	for _, n := range t.Nodes()[1:] {
		on := make([]*sql.Predicate, len(n.Left))
		for i := range n.Left {
			on[i] = sql.ColumnsEQ(n.parent.C(n.Left[i].Name), n.C(n.Right[i].Name))
		}
		if n.Kind == Merge {
			s.Join(n.Table.Name, n.alias, sql.And(on...))
		} else {
			s.LeftJoin(n.Table.Name, n.alias, sql.And(on...))
		}
	}
	return s
}

// Walk runs the select statement of the tree filtered by pred, and walks
// each row depth-first through the node consumers.
func (t *Tree) Walk(ctx context.Context, ex dialect.ExecQuerier, name string, pred *sql.Predicate) error {
	nodes := t.Nodes()
	offsets := make(map[*Node]int, len(nodes))
	width := 0
	for _, n := range nodes {
		offsets[n] = width
		width += len(n.Columns)
	}
	query, args := t.Selector(name).Where(pred).Query()
	rows := &sql.Rows{}
	if err := ex.Query(ctx, query, args, rows); err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		values := make([]any, width)
		dest := make([]any, width)
		for i := range values {
			dest[i] = &values[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return fmt.Errorf("sqlgraph: scan row: %w", err)
		}
		row := &Row{values: values, offsets: offsets}
		if err := visit(ctx, row, t.root, nil); err != nil {
			return err
		}
	}
	return rows.Err()
}

func visit(ctx context.Context, row *Row, n *Node, parent any) error {
	v := parent
	if n.Consumer != nil {
		var err error
		if v, err = n.Consumer.Consume(ctx, row, n, parent); err != nil {
			return err
		}
		if v == nil {
			return nil
		}
	}
	for _, c := range n.children {
		if err := visit(ctx, row, c, v); err != nil {
			return err
		}
	}
	return nil
}

// Row is one row of a tree select.
type Row struct {
	values  []any
	offsets map[*Node]int
}

// NewRow returns a row holding the values of the given nodes, in order.
// It is used by consumers reading rows of other statements.
func NewRow(values []any, nodes ...*Node) *Row {
	r := &Row{values: values, offsets: make(map[*Node]int, len(nodes))}
	width := 0
	for _, n := range nodes {
		r.offsets[n] = width
		width += len(n.Columns)
	}
	return r
}

// Value returns the value of a column of the node, nil when the column is
// not selected.
func (r *Row) Value(n *Node, c *schema.Column) any {
	off, ok := r.offsets[n]
	if !ok {
		return nil
	}
	i, ok := n.index[c.Name]
	if !ok {
		return nil
	}
	return r.values[off+i]
}

// Values returns the values of the columns of the node.
func (r *Row) Values(n *Node, cs []*schema.Column) []any {
	vs := make([]any, len(cs))
	for i, c := range cs {
		vs[i] = r.Value(n, c)
	}
	return vs
}
