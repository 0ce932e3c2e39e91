package schema

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/syssam/strata/dialect"
	"github.com/syssam/strata/dialect/sqlschema"
	"github.com/syssam/strata/schema/field"
)

func TestTableMethods(t *testing.T) {
	t.Parallel()
	t.Run("AddColumn", func(t *testing.T) {
		tbl := NewTable("test")
		id := tbl.AddColumn(&Column{Name: "id", Type: field.TypeInt64})
		again := tbl.AddColumn(&Column{Name: "id", Type: field.TypeString})
		require.Same(t, id, again)
		require.Len(t, tbl.Columns, 1)
		require.Equal(t, field.TypeInt64, again.Type)
		require.Same(t, tbl, id.Table())
		require.Equal(t, "test.id", id.Qualified())
	})

	t.Run("Column", func(t *testing.T) {
		tbl := NewTable("test")
		tbl.AddColumn(&Column{Name: "name", Type: field.TypeString})
		tbl.Columns = append(tbl.Columns, &Column{Name: "direct_col", Type: field.TypeInt})

		col, ok := tbl.Column("name")
		require.True(t, ok)
		require.Equal(t, "name", col.Name)
		require.True(t, tbl.HasColumn("direct_col"))
		col, ok = tbl.Column("email")
		require.False(t, ok)
		require.Nil(t, col)
	})

	t.Run("SetPrimaryKey", func(t *testing.T) {
		tbl := NewTable("test")
		id := tbl.AddColumn(&Column{Name: "id", Type: field.TypeInt64, Nullable: true})
		name := tbl.AddColumn(&Column{Name: "name", Type: field.TypeString})
		require.NoError(t, tbl.SetPrimaryKey(id))
		require.False(t, id.Nullable)
		require.NoError(t, tbl.SetPrimaryKey(id), "same primary key is a no-op")
		require.Error(t, tbl.SetPrimaryKey(name))
		require.Equal(t, []string{"id"}, tbl.PrimaryKeyNames())
		require.Error(t, NewTable("other").SetPrimaryKey(id))
		require.Error(t, NewTable("empty").SetPrimaryKey())
	})

	t.Run("AddForeignKey", func(t *testing.T) {
		users := NewTable("users")
		uid := users.AddColumn(&Column{Name: "id", Type: field.TypeInt64})
		require.NoError(t, users.SetPrimaryKey(uid))
		pets := NewTable("pets")
		owner := pets.AddColumn(&Column{Name: "owner_id", Type: field.TypeInt64, Nullable: true})
		fk := pets.AddForeignKey(&ForeignKey{Symbol: "fk_pets_owner_id_users", Columns: []*Column{owner}, RefTable: users, RefColumns: []*Column{uid}})
		again := pets.AddForeignKey(&ForeignKey{Symbol: "fk_pets_owner_id_users"})
		require.Same(t, fk, again)
		require.Len(t, pets.ForeignKeys, 1)
		require.Same(t, pets, fk.Table())
	})

	t.Run("AddIndex", func(t *testing.T) {
		tbl := NewTable("test")
		tbl.AddColumn(&Column{Name: "email", Type: field.TypeString})
		tbl.AddIndex("idx_email", true, []string{"email", "missing"})
		idx, ok := tbl.Index("idx_email")
		require.True(t, ok)
		require.True(t, idx.Unique)
		require.Len(t, idx.Columns, 1)
		_, ok = tbl.Index("nonexistent")
		require.False(t, ok)
	})
}

func TestSetRollback(t *testing.T) {
	t.Parallel()
	s := NewSet()
	users, created := s.GetOrCreate("users")
	require.True(t, created)
	users.AddColumn(&Column{Name: "id", Type: field.TypeInt64})

	cp := s.Checkpoint()
	same, created := s.GetOrCreate("users")
	require.False(t, created)
	require.Same(t, users, same)
	users.AddColumn(&Column{Name: "name", Type: field.TypeString})
	id, _ := users.Column("id")
	require.NoError(t, users.SetPrimaryKey(id))
	users.AddIndex("idx_name", false, []string{"name"})
	pets, _ := s.GetOrCreate("pets")
	pets.AddColumn(&Column{Name: "id", Type: field.TypeInt64})

	s.Rollback(cp)
	require.Len(t, s.Tables(), 1)
	_, ok := s.Table("pets")
	require.False(t, ok)
	require.Len(t, users.Columns, 1)
	require.False(t, users.HasColumn("name"))
	require.Empty(t, users.PrimaryKey)
	require.Empty(t, users.Indexes)

	// Rolled back names can be created again.
	users.AddColumn(&Column{Name: "name", Type: field.TypeString})
	require.True(t, users.HasColumn("name"))
}

func fkTable(s *Set, name string, refs ...*Table) *Table {
	t, _ := s.GetOrCreate(name)
	id := t.AddColumn(&Column{Name: "id", Type: field.TypeInt64})
	_ = t.SetPrimaryKey(id)
	for _, ref := range refs {
		c := t.AddColumn(&Column{Name: ref.Name + "_id", Type: field.TypeInt64, Nullable: true})
		t.AddForeignKey(&ForeignKey{Symbol: "fk_" + name + "_" + ref.Name, Columns: []*Column{c}, RefTable: ref, RefColumns: ref.PrimaryKey})
	}
	return t
}

func position(tables []*Table) map[string]int {
	pos := make(map[string]int, len(tables))
	for i, t := range tables {
		pos[t.Name] = i
	}
	return pos
}

func TestSetSorted(t *testing.T) {
	t.Parallel()
	t.Run("Acyclic", func(t *testing.T) {
		s := NewSet()
		users := fkTable(s, "users")
		// Created before the table it references.
		pets, _ := s.GetOrCreate("pets")
		groups := fkTable(s, "groups", users)
		id := pets.AddColumn(&Column{Name: "id", Type: field.TypeInt64})
		require.NoError(t, pets.SetPrimaryKey(id))
		owner := pets.AddColumn(&Column{Name: "group_id", Type: field.TypeInt64})
		pets.AddForeignKey(&ForeignKey{Symbol: "fk_pets_groups", Columns: []*Column{owner}, RefTable: groups, RefColumns: groups.PrimaryKey})

		pos := position(s.Sorted())
		require.Len(t, pos, 3)
		assert.Less(t, pos["users"], pos["groups"])
		assert.Less(t, pos["groups"], pos["pets"])
	})
	t.Run("Cycle", func(t *testing.T) {
		s := NewSet()
		root := fkTable(s, "root")
		a := fkTable(s, "a", root)
		b := fkTable(s, "b", a)
		c := a.AddColumn(&Column{Name: "b_id", Type: field.TypeInt64, Nullable: true})
		a.AddForeignKey(&ForeignKey{Symbol: "fk_a_b", Columns: []*Column{c}, RefTable: b, RefColumns: b.PrimaryKey})
		fkTable(s, "leaf", b)
		// Self reference.
		self := root.AddColumn(&Column{Name: "parent_id", Type: field.TypeInt64, Nullable: true})
		root.AddForeignKey(&ForeignKey{Symbol: "fk_root_parent", Columns: []*Column{self}, RefTable: root, RefColumns: root.PrimaryKey})

		pos := position(s.Sorted())
		require.Len(t, pos, 4)
		assert.Less(t, pos["root"], pos["a"])
		assert.Less(t, pos["root"], pos["b"])
		assert.Less(t, pos["a"], pos["leaf"])
		assert.Less(t, pos["b"], pos["leaf"])
	})
}

func TestValidateSchema(t *testing.T) {
	t.Parallel()
	s := NewSet()
	users := fkTable(s, "users")
	fkTable(s, "pets", users)
	result := ValidateSchema(s.Tables())
	require.False(t, result.HasErrors(), result.String())
	require.NoError(t, result.Err())
	require.Equal(t, "No issues found", result.String())

	nokey, _ := s.GetOrCreate("nokey")
	c := nokey.AddColumn(&Column{Name: "name", Type: field.TypeString})
	nokey.AddForeignKey(&ForeignKey{Symbol: "fk_bad", Columns: []*Column{c}, RefTable: users, RefColumns: []*Column{c}})
	result = ValidateSchema(s.Tables())
	require.True(t, result.HasErrors())
	require.Len(t, result.Errors, 2)
	require.Error(t, result.Err())
	assert.Contains(t, result.String(), "table has no primary key")
	assert.Contains(t, result.String(), "does not reference the primary key")

	orphan := NewTable("orphan")
	id := orphan.AddColumn(&Column{Name: "id", Type: field.TypeString})
	require.NoError(t, orphan.SetPrimaryKey(id))
	ref := orphan.AddColumn(&Column{Name: "users_id", Type: field.TypeString})
	orphan.AddForeignKey(&ForeignKey{Symbol: "fk_orphan", Columns: []*Column{ref}, RefTable: users, RefColumns: users.PrimaryKey})
	result = ValidateSchema([]*Table{orphan})
	require.True(t, result.HasErrors())
	require.True(t, result.HasWarnings(), "column type mismatch")
}

func TestAtlas(t *testing.T) {
	t.Parallel()
	s := NewSet()
	users := fkTable(s, "users")
	name := users.AddColumn(&Column{Name: "name", Type: field.TypeString, Size: 64})
	users.AddColumn(&Column{Name: "meta", Type: field.TypeJSON, Nullable: true, SchemaType: "jsonb"})
	users.AddIndex("users_name", true, []string{name.Name})
	pets := fkTable(s, "pets", users)
	pets.ForeignKeys[0].OnDelete = sqlschema.Cascade

	as, err := Atlas(dialect.Postgres, "public", s.Sorted())
	require.NoError(t, err)
	require.Equal(t, "public", as.Name)
	require.Len(t, as.Tables, 2)
	at, ok := as.Table("pets")
	require.True(t, ok)
	require.Len(t, at.ForeignKeys, 1)
	require.Equal(t, "CASCADE", string(at.ForeignKeys[0].OnDelete))
	ut, ok := as.Table("users")
	require.True(t, ok)
	require.NotNil(t, ut.PrimaryKey)
	require.Len(t, ut.Indexes, 1)

	_, err = Atlas("oracle", "", s.Sorted())
	require.Error(t, err)
}

func TestDDL(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewSet()
	users := fkTable(s, "users")
	users.PrimaryKey[0].Increment = true
	users.AddColumn(&Column{Name: "name", Type: field.TypeString})
	users.AddColumn(&Column{Name: "active", Type: field.TypeBool, Default: "true"})
	users.AddColumn(&Column{Name: "created_at", Type: field.TypeTime, Nullable: true})
	fkTable(s, "pets", users)

	stmts, err := DDL(ctx, dialect.SQLite, s.Sorted())
	require.NoError(t, err)
	require.Len(t, stmts, 2)
	assert.Contains(t, stmts[0], "users")
	assert.Contains(t, stmts[1], "pets")

	db, err := sql.Open("sqlite", "file:ddl?mode=memory&_pragma=foreign_keys(1)")
	require.NoError(t, err)
	defer db.Close()
	for _, stmt := range stmts {
		_, err := db.ExecContext(ctx, stmt)
		require.NoError(t, err, stmt)
	}
	_, err = db.ExecContext(ctx, "INSERT INTO users (name) VALUES ('a8m')")
	require.NoError(t, err)

	for _, name := range []string{dialect.MySQL, dialect.Postgres} {
		stmts, err := DDL(ctx, name, s.Sorted())
		require.NoError(t, err, name)
		require.NotEmpty(t, stmts, name)
	}
}
