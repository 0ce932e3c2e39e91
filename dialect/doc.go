// Package dialect defines the database dialects supported by strata and the
// driver interfaces persisters execute statements through.
//
// Each dialect is identified by a constant string:
//
//	dialect.Postgres = "postgres"
//	dialect.MySQL    = "mysql"
//	dialect.SQLite   = "sqlite"
//
// The dialect/sql package provides the database/sql backed implementation:
//
//	drv, err := sql.Open(dialect.SQLite, "file:cars.db?_pragma=foreign_keys(1)")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer drv.Close()
//
//	b, err := compiler.NewBuilder(compiler.WithDriver(drv))
package dialect
