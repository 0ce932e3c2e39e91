package schema

import (
	"context"
	"fmt"

	atlas "ariga.io/atlas/sql/schema"
	"ariga.io/atlas/sql/migrate"
	"ariga.io/atlas/sql/mysql"
	"ariga.io/atlas/sql/postgres"
	"ariga.io/atlas/sql/sqlite"

	"github.com/syssam/strata/dialect"
	"github.com/syssam/strata/schema/field"
)

// Atlas converts the tables to an atlas schema of the given dialect. The
// tables are expected in foreign-key order (see Set.Sorted).
func Atlas(name, schemaName string, tables []*Table) (*atlas.Schema, error) {
	if !dialect.Valid(name) {
		return nil, fmt.Errorf("schema: unsupported dialect %q", name)
	}
	s := atlas.New(schemaName)
	converted := make(map[*Table]*atlas.Table, len(tables))
	for _, t := range tables {
		at := atlas.NewTable(t.Name)
		for _, c := range t.Columns {
			ac, err := atlasColumn(name, c)
			if err != nil {
				return nil, fmt.Errorf("schema: table %q: %w", t.Name, err)
			}
			at.AddColumns(ac)
		}
		if len(t.PrimaryKey) > 0 {
			at.SetPrimaryKey(atlas.NewPrimaryKey(lookup(at, t.PrimaryKey)...))
		}
		for _, idx := range t.Indexes {
			at.AddIndexes(atlas.NewIndex(idx.Name).SetUnique(idx.Unique).AddColumns(lookup(at, idx.Columns)...))
		}
		converted[t] = at
		s.AddTables(at)
	}
	for _, t := range tables {
		at := converted[t]
		for _, fk := range t.ForeignKeys {
			ref, ok := converted[fk.RefTable]
			if !ok {
				return nil, fmt.Errorf("schema: foreign key %q references unknown table %q", fk.Symbol, fk.RefTable.Name)
			}
			afk := atlas.NewForeignKey(fk.Symbol).
				AddColumns(lookup(at, fk.Columns)...).
				SetRefTable(ref).
				AddRefColumns(lookup(ref, fk.RefColumns)...)
			if fk.OnDelete != "" {
				afk.SetOnDelete(atlas.ReferenceOption(fk.OnDelete))
			}
			if fk.OnUpdate != "" {
				afk.SetOnUpdate(atlas.ReferenceOption(fk.OnUpdate))
			}
			at.AddForeignKeys(afk)
		}
	}
	return s, nil
}

// DDL plans the CREATE TABLE statements of the tables for the given dialect.
func DDL(ctx context.Context, name string, tables []*Table) ([]string, error) {
	s, err := Atlas(name, "", tables)
	if err != nil {
		return nil, err
	}
	var planner migrate.PlanApplier
	switch name {
	case dialect.SQLite:
		planner = sqlite.DefaultPlan
	case dialect.MySQL:
		planner = mysql.DefaultPlan
	case dialect.Postgres:
		planner = postgres.DefaultPlan
	}
	changes := make([]atlas.Change, 0, len(s.Tables))
	for _, t := range s.Tables {
		changes = append(changes, &atlas.AddTable{T: t})
	}
	noQualifier := ""
	plan, err := planner.PlanChanges(ctx, "strata", changes, func(o *migrate.PlanOptions) {
		o.SchemaQualifier = &noQualifier
	})
	if err != nil {
		return nil, fmt.Errorf("schema: plan changes: %w", err)
	}
	stmts := make([]string, 0, len(plan.Changes))
	for _, c := range plan.Changes {
		stmts = append(stmts, c.Cmd)
	}
	return stmts, nil
}

func atlasColumn(name string, c *Column) (*atlas.Column, error) {
	t, err := atlasType(name, c)
	if err != nil {
		return nil, fmt.Errorf("column %q: %w", c.Name, err)
	}
	ac := atlas.NewColumn(c.Name).SetType(t).SetNull(c.Nullable)
	if c.Default != "" {
		ac.SetDefault(&atlas.RawExpr{X: c.Default})
	}
	if c.Increment {
		switch name {
		case dialect.SQLite:
			ac.AddAttrs(&sqlite.AutoIncrement{})
		case dialect.MySQL:
			ac.AddAttrs(&mysql.AutoIncrement{})
		case dialect.Postgres:
			ac.AddAttrs(&postgres.Identity{Generation: "BY DEFAULT"})
		}
	}
	return ac, nil
}

func atlasType(name string, c *Column) (atlas.Type, error) {
	if c.SchemaType != "" {
		return &atlas.UnsupportedType{T: c.SchemaType}, nil
	}
	size := c.Size
	if size == 0 {
		size = 255
	}
	switch c.Type {
	case field.TypeBool:
		if name == dialect.Postgres {
			return &atlas.BoolType{T: "boolean"}, nil
		}
		return &atlas.BoolType{T: "bool"}, nil
	case field.TypeInt8, field.TypeInt16, field.TypeInt32, field.TypeInt, field.TypeInt64,
		field.TypeUint8, field.TypeUint16, field.TypeUint32, field.TypeUint, field.TypeUint64:
		if name == dialect.SQLite {
			return &atlas.IntegerType{T: "integer"}, nil
		}
		return &atlas.IntegerType{T: "bigint", Unsigned: name == dialect.MySQL && c.Type >= field.TypeUint8}, nil
	case field.TypeFloat32, field.TypeFloat64:
		switch name {
		case dialect.SQLite:
			return &atlas.FloatType{T: "real"}, nil
		case dialect.Postgres:
			return &atlas.FloatType{T: "double precision"}, nil
		}
		return &atlas.FloatType{T: "double"}, nil
	case field.TypeString:
		switch name {
		case dialect.SQLite:
			return &atlas.StringType{T: "text"}, nil
		case dialect.Postgres:
			return &atlas.StringType{T: "character varying", Size: int(size)}, nil
		}
		return &atlas.StringType{T: "varchar", Size: int(size)}, nil
	case field.TypeTime:
		switch name {
		case dialect.SQLite:
			return &atlas.TimeType{T: "datetime"}, nil
		case dialect.Postgres:
			return &atlas.TimeType{T: "timestamp with time zone"}, nil
		}
		return &atlas.TimeType{T: "timestamp"}, nil
	case field.TypeBytes:
		if name == dialect.Postgres {
			return &atlas.BinaryType{T: "bytea"}, nil
		}
		return &atlas.BinaryType{T: "blob"}, nil
	case field.TypeUUID:
		switch name {
		case dialect.SQLite:
			return &atlas.StringType{T: "uuid"}, nil
		case dialect.Postgres:
			return &atlas.UUIDType{T: "uuid"}, nil
		}
		return &atlas.StringType{T: "char", Size: 36}, nil
	case field.TypeJSON:
		switch name {
		case dialect.SQLite:
			return &atlas.JSONType{T: "json"}, nil
		case dialect.Postgres:
			return &atlas.JSONType{T: "jsonb"}, nil
		}
		return &atlas.JSONType{T: "json"}, nil
	}
	return nil, fmt.Errorf("unsupported type %s", c.Type)
}

func lookup(t *atlas.Table, columns []*Column) []*atlas.Column {
	cs := make([]*atlas.Column, 0, len(columns))
	for _, c := range columns {
		if ac, ok := t.Column(c.Name); ok {
			cs = append(cs, ac)
		}
	}
	return cs
}
