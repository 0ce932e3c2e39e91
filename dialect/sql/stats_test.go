package sql

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/strata/dialect"
)

func TestStatementOf(t *testing.T) {
	t.Parallel()
	tests := []struct {
		query string
		want  Statement
	}{
		{query: "INSERT INTO `cars` (`model`) VALUES (?)", want: StatementInsert},
		{query: "  update `cars` SET `model` = ?", want: StatementUpdate},
		{query: "DELETE FROM `cars` WHERE `id` = ?", want: StatementDelete},
		{query: "SELECT `t0`.`id` FROM `cars` AS `t0`", want: StatementSelect},
		{query: "WITH x AS (SELECT 1) SELECT * FROM x", want: StatementSelect},
		{query: "CREATE TABLE `cars` (`id` integer)", want: StatementOther},
		{query: "", want: StatementOther},
	}
	for _, tt := range tests {
		t.Run(tt.want.String(), func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, StatementOf(tt.query))
		})
	}
	assert.Equal(t, "Statement(9)", Statement(9).String())
}

func TestStatsDriver(t *testing.T) {
	t.Parallel()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	var slow []string
	drv := NewStatsDriver(OpenDB(dialect.SQLite, db),
		WithSlowThreshold(-1),
		WithSlowQueryHook(func(_ context.Context, query string, args []any, _ time.Duration) {
			slow = append(slow, query)
			assert.NotNil(t, args)
		}),
	)
	assert.Equal(t, time.Duration(-1), drv.SlowThreshold())
	ctx := context.Background()
	mock.ExpectExec("INSERT INTO cars").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery("SELECT id FROM cars").WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM cars").WillReturnError(errors.New("locked"))
	mock.ExpectRollback()

	require.NoError(t, drv.Exec(ctx, "INSERT INTO cars DEFAULT VALUES", []any{}, nil))
	rows := &Rows{}
	require.NoError(t, drv.Query(ctx, "SELECT id FROM cars", []any{}, rows))
	require.NoError(t, rows.Close())
	tx, err := drv.Tx(ctx)
	require.NoError(t, err)
	require.Error(t, tx.Exec(ctx, "DELETE FROM cars", []any{}, nil))
	require.NoError(t, tx.Rollback())
	require.NoError(t, mock.ExpectationsWereMet())

	s := drv.Snapshot()
	assert.Equal(t, int64(1), s.Count(StatementInsert))
	assert.Equal(t, int64(1), s.Count(StatementSelect))
	assert.Equal(t, int64(1), s.Count(StatementDelete))
	assert.Zero(t, s.Count(StatementUpdate))
	assert.Zero(t, s.Count(Statement(-1)))
	assert.Equal(t, int64(3), s.Total())
	assert.Equal(t, int64(1), s.Errors)
	assert.Equal(t, int64(3), s.Slow)
	assert.Len(t, slow, 3)
	assert.Contains(t, s.String(), "insert=1 update=0 delete=1 select=1 errors=1 slow=3")

	drv.SetSlowThreshold(time.Hour)
	mock.ExpectExec("UPDATE cars").WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, drv.Exec(ctx, "UPDATE cars SET model = ?", []any{"x"}, nil))
	assert.Equal(t, int64(3), drv.Snapshot().Slow)
	assert.Len(t, slow, 3)

	drv.Reset()
	assert.Zero(t, drv.Snapshot().Total())
}

func TestSlowQueryLog(t *testing.T) {
	t.Parallel()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	var buf bytes.Buffer
	drv := NewStatsDriver(OpenDB(dialect.SQLite, db),
		WithSlowThreshold(-1),
		WithSlowQueryLog(slog.New(slog.NewTextHandler(&buf, nil))),
	)
	mock.ExpectExec("UPDATE cars").WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, drv.Exec(context.Background(), "UPDATE cars SET model = ?", []any{"x"}, nil))
	out := buf.String()
	assert.Contains(t, out, "strata: slow statement")
	assert.Contains(t, out, "statement=update")
}

func TestDebugDriver(t *testing.T) {
	t.Parallel()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	drv := NewDebugDriver(OpenDB(dialect.SQLite, db), logger)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE cars").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	tx, err := drv.Tx(context.Background())
	require.NoError(t, err)
	require.NoError(t, tx.Exec(context.Background(), "UPDATE cars SET name = ?", []any{"x"}, nil))
	require.NoError(t, tx.Commit())
	require.NoError(t, mock.ExpectationsWereMet())

	out := buf.String()
	assert.Contains(t, out, "strata: begin transaction")
	assert.Contains(t, out, "strata: tx exec")
	assert.Contains(t, out, "UPDATE cars SET name = ?")
	assert.Contains(t, out, "strata: commit transaction")
}
