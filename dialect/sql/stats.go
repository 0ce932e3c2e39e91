package sql

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/syssam/strata/dialect"
)

// Statement is the kind of a statement counted by a StatsDriver.
type Statement int

// Statement kinds, by the leading keyword of the statement.
const (
	StatementOther Statement = iota
	StatementInsert
	StatementUpdate
	StatementDelete
	StatementSelect
	statementKinds
)

var statementNames = [...]string{"other", "insert", "update", "delete", "select"}

func (s Statement) String() string {
	if s < 0 || s >= statementKinds {
		return fmt.Sprintf("Statement(%d)", int(s))
	}
	return statementNames[s]
}

// StatementOf returns the kind of query.
func StatementOf(query string) Statement {
	query = strings.TrimSpace(query)
	word, _, _ := strings.Cut(query, " ")
	switch strings.ToUpper(word) {
	case "INSERT":
		return StatementInsert
	case "UPDATE":
		return StatementUpdate
	case "DELETE":
		return StatementDelete
	case "SELECT", "WITH":
		return StatementSelect
	default:
		return StatementOther
	}
}

// StatsSnapshot holds the counters of a StatsDriver at one point in time.
type StatsSnapshot struct {
	// Statements counts the statements by kind.
	Statements [statementKinds]int64
	// Errors counts the failed statements.
	Errors int64
	// Slow counts the statements slower than the threshold.
	Slow int64
	// Elapsed is the time spent in the database.
	Elapsed time.Duration
}

// Count returns the number of statements of kind k.
func (s StatsSnapshot) Count(k Statement) int64 {
	if k < 0 || k >= statementKinds {
		return 0
	}
	return s.Statements[k]
}

// Total returns the number of statements.
func (s StatsSnapshot) Total() int64 {
	var n int64
	for _, c := range s.Statements {
		n += c
	}
	return n
}

func (s StatsSnapshot) String() string {
	var b strings.Builder
	for k, c := range s.Statements {
		fmt.Fprintf(&b, "%s=%d ", Statement(k), c)
	}
	fmt.Fprintf(&b, "errors=%d slow=%d elapsed=%s", s.Errors, s.Slow, s.Elapsed)
	return b.String()
}

// SlowQueryHook is called with the statements slower than the threshold
// of a StatsDriver.
type SlowQueryHook func(ctx context.Context, query string, args []any, elapsed time.Duration)

type stats struct {
	statements [statementKinds]atomic.Int64
	errors     atomic.Int64
	slow       atomic.Int64
	elapsed    atomic.Int64
	threshold  atomic.Int64
}

// StatsDriver counts the statements persisters run through a driver and
// reports the slow ones. Statements of the transactions it starts are
// counted as well. It is safe for concurrent use.
type StatsDriver struct {
	dialect.Driver
	stats *stats
	hook  SlowQueryHook
}

// StatsOption configures a StatsDriver.
type StatsOption func(*StatsDriver)

// WithSlowThreshold sets the duration above which a statement is slow.
// Defaults to 100ms.
func WithSlowThreshold(d time.Duration) StatsOption {
	return func(s *StatsDriver) {
		s.stats.threshold.Store(int64(d))
	}
}

// WithSlowQueryHook sets the hook called with slow statements.
func WithSlowQueryHook(hook SlowQueryHook) StatsOption {
	return func(s *StatsDriver) {
		s.hook = hook
	}
}

// WithSlowQueryLog logs slow statements as warnings. A nil logger falls
// back to slog.Default().
func WithSlowQueryLog(logger *slog.Logger) StatsOption {
	if logger == nil {
		logger = slog.Default()
	}
	return WithSlowQueryHook(func(ctx context.Context, query string, args []any, elapsed time.Duration) {
		logger.WarnContext(ctx, "strata: slow statement", "statement", StatementOf(query), "elapsed", elapsed, "sql", query, "args", args)
	})
}

// NewStatsDriver wraps drv with statement counters. Builders create one
// with compiler.WithStats:
//
//	b, err := compiler.NewBuilder(
//	    compiler.WithDriver(drv),
//	    compiler.WithStats(sql.WithSlowThreshold(200*time.Millisecond)),
//	)
//	...
//	fmt.Println(b.Stats().Snapshot())
func NewStatsDriver(drv dialect.Driver, opts ...StatsOption) *StatsDriver {
	s := &StatsDriver{Driver: drv, stats: &stats{}}
	s.stats.threshold.Store(int64(100 * time.Millisecond))
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Snapshot returns the current counters.
func (d *StatsDriver) Snapshot() StatsSnapshot {
	var s StatsSnapshot
	for k := range d.stats.statements {
		s.Statements[k] = d.stats.statements[k].Load()
	}
	s.Errors = d.stats.errors.Load()
	s.Slow = d.stats.slow.Load()
	s.Elapsed = time.Duration(d.stats.elapsed.Load())
	return s
}

// Reset sets the counters to zero.
func (d *StatsDriver) Reset() {
	for k := range d.stats.statements {
		d.stats.statements[k].Store(0)
	}
	d.stats.errors.Store(0)
	d.stats.slow.Store(0)
	d.stats.elapsed.Store(0)
}

// SlowThreshold returns the duration above which a statement is slow.
func (d *StatsDriver) SlowThreshold() time.Duration {
	return time.Duration(d.stats.threshold.Load())
}

// SetSlowThreshold updates the duration above which a statement is slow.
func (d *StatsDriver) SetSlowThreshold(threshold time.Duration) {
	d.stats.threshold.Store(int64(threshold))
}

// Query runs a query and counts it.
func (d *StatsDriver) Query(ctx context.Context, query string, args, v any) error {
	start := time.Now()
	err := d.Driver.Query(ctx, query, args, v)
	d.record(ctx, query, args, time.Since(start), err)
	return err
}

// Exec runs a statement and counts it.
func (d *StatsDriver) Exec(ctx context.Context, query string, args, v any) error {
	start := time.Now()
	err := d.Driver.Exec(ctx, query, args, v)
	d.record(ctx, query, args, time.Since(start), err)
	return err
}

func (d *StatsDriver) record(ctx context.Context, query string, args any, elapsed time.Duration, err error) {
	d.stats.statements[StatementOf(query)].Add(1)
	d.stats.elapsed.Add(int64(elapsed))
	if err != nil {
		d.stats.errors.Add(1)
	}
	if elapsed <= d.SlowThreshold() {
		return
	}
	d.stats.slow.Add(1)
	if d.hook != nil {
		list, _ := args.([]any)
		d.hook(ctx, query, list, elapsed)
	}
}

// Tx starts a transaction whose statements are counted. Pass it to
// persister.NewContext to run operations inside it.
func (d *StatsDriver) Tx(ctx context.Context) (dialect.Tx, error) {
	tx, err := d.Driver.Tx(ctx)
	if err != nil {
		return nil, err
	}
	return &StatsTx{Tx: tx, driver: d}, nil
}

// StatsTx is a transaction started by a StatsDriver.
type StatsTx struct {
	dialect.Tx
	driver *StatsDriver
}

// Query runs a query in the transaction and counts it.
func (tx *StatsTx) Query(ctx context.Context, query string, args, v any) error {
	start := time.Now()
	err := tx.Tx.Query(ctx, query, args, v)
	tx.driver.record(ctx, query, args, time.Since(start), err)
	return err
}

// Exec runs a statement in the transaction and counts it.
func (tx *StatsTx) Exec(ctx context.Context, query string, args, v any) error {
	start := time.Now()
	err := tx.Tx.Exec(ctx, query, args, v)
	tx.driver.record(ctx, query, args, time.Since(start), err)
	return err
}

// DebugDriver logs every statement of the persisters at debug level.
type DebugDriver struct {
	dialect.Driver
	logger *slog.Logger
}

// NewDebugDriver wraps drv with statement logging. A nil logger falls
// back to slog.Default().
func NewDebugDriver(drv dialect.Driver, logger *slog.Logger) *DebugDriver {
	if logger == nil {
		logger = slog.Default()
	}
	return &DebugDriver{Driver: drv, logger: logger}
}

// Query logs and runs a query.
func (d *DebugDriver) Query(ctx context.Context, query string, args, v any) error {
	d.logger.DebugContext(ctx, "strata: query", "sql", query, "args", args)
	return d.Driver.Query(ctx, query, args, v)
}

// Exec logs and runs a statement.
func (d *DebugDriver) Exec(ctx context.Context, query string, args, v any) error {
	d.logger.DebugContext(ctx, "strata: exec", "sql", query, "args", args)
	return d.Driver.Exec(ctx, query, args, v)
}

// Tx starts a transaction whose statements are logged as well.
func (d *DebugDriver) Tx(ctx context.Context) (dialect.Tx, error) {
	d.logger.DebugContext(ctx, "strata: begin transaction")
	tx, err := d.Driver.Tx(ctx)
	if err != nil {
		return nil, err
	}
	return &DebugTx{Tx: tx, logger: d.logger}, nil
}

// DebugTx is a transaction started by a DebugDriver.
type DebugTx struct {
	dialect.Tx
	logger *slog.Logger
}

// Query logs and runs a query in the transaction.
func (tx *DebugTx) Query(ctx context.Context, query string, args, v any) error {
	tx.logger.DebugContext(ctx, "strata: tx query", "sql", query, "args", args)
	return tx.Tx.Query(ctx, query, args, v)
}

// Exec logs and runs a statement in the transaction.
func (tx *DebugTx) Exec(ctx context.Context, query string, args, v any) error {
	tx.logger.DebugContext(ctx, "strata: tx exec", "sql", query, "args", args)
	return tx.Tx.Exec(ctx, query, args, v)
}

// Commit logs and commits the transaction.
func (tx *DebugTx) Commit() error {
	tx.logger.Debug("strata: commit transaction")
	return tx.Tx.Commit()
}

// Rollback logs and rolls back the transaction.
func (tx *DebugTx) Rollback() error {
	tx.logger.Debug("strata: rollback transaction")
	return tx.Tx.Rollback()
}

var (
	_ dialect.Driver = (*StatsDriver)(nil)
	_ dialect.Tx     = (*StatsTx)(nil)
	_ dialect.Driver = (*DebugDriver)(nil)
	_ dialect.Tx     = (*DebugTx)(nil)
)
