package compiler

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/syssam/strata/dialect"
	"github.com/syssam/strata/dialect/sql"
	"github.com/syssam/strata/persister"
	"github.com/syssam/strata/schema/naming"
)

// Config holds the settings of a Builder.
type Config struct {
	// Dialect of the statements. Defaults to the dialect of Driver.
	Dialect string
	// Driver executes the statements of the built persisters, unless an
	// operation carries its own executor (see persister.NewContext).
	Driver dialect.Driver
	// Logger receives the build events.
	Logger *slog.Logger
	// Naming is the naming strategy of entities declaring none.
	Naming *naming.Strategy
	// KeysReader reads database generated identifiers. Defaults to the
	// reader of the dialect.
	KeysReader persister.GeneratedKeysReader
	// SchemaName is the schema of the exported atlas tables.
	SchemaName string
	// Debug logs every statement of the built persisters.
	Debug bool
	// Stats counts the statements of the built persisters. See
	// Builder.Stats.
	Stats bool
	// StatsOptions configure the statement counters.
	StatsOptions []sql.StatsOption
	// SlowQuery logs the statements slower than it. Zero disables the log.
	SlowQuery time.Duration
}

// Option configures a Builder.
type Option func(*Config) error

// NewConfig returns the configuration resulting of the options.
func NewConfig(opts ...Option) (*Config, error) {
	c := &Config{}
	if err := c.Apply(opts...); err != nil {
		return nil, err
	}
	if c.Dialect == "" && c.Driver != nil {
		c.Dialect = c.Driver.Dialect()
	}
	if c.Dialect == "" {
		c.Dialect = dialect.SQLite
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	c.Naming = c.Naming.Merge(naming.Default())
	if c.KeysReader == nil {
		c.KeysReader = persister.DefaultKeysReader(c.Dialect)
	}
	return c, nil
}

// Apply applies options to the config. It returns the first error
// encountered.
func (c *Config) Apply(opts ...Option) error {
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return err
		}
	}
	return nil
}

// executor returns the executor of the built persisters, and the driver
// counting their statements if Stats is set.
func (c *Config) executor() (dialect.ExecQuerier, *sql.StatsDriver) {
	if c.Driver == nil {
		return nil, nil
	}
	drv := c.Driver
	if c.Debug {
		drv = sql.NewDebugDriver(drv, c.Logger)
	}
	if !c.Stats {
		return drv, nil
	}
	opts := c.StatsOptions
	if c.SlowQuery > 0 {
		opts = append(opts[:len(opts):len(opts)], sql.WithSlowThreshold(c.SlowQuery), sql.WithSlowQueryLog(c.Logger))
	}
	stats := sql.NewStatsDriver(drv, opts...)
	return stats, stats
}

// WithDialect sets the dialect of the statements.
// Supported dialects: "sqlite", "mysql", "postgres".
func WithDialect(name string) Option {
	return func(c *Config) error {
		if !dialect.Valid(name) {
			return fmt.Errorf("compiler: unsupported dialect %q; use sqlite, mysql, or postgres", name)
		}
		c.Dialect = name
		return nil
	}
}

// WithDriver sets the driver executing the statements.
func WithDriver(drv dialect.Driver) Option {
	return func(c *Config) error {
		if drv == nil {
			return errors.New("compiler: driver cannot be nil")
		}
		c.Driver = drv
		return nil
	}
}

// WithLogger sets the logger of the build.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) error {
		c.Logger = l
		return nil
	}
}

// WithNaming sets the default naming strategy. Unset rules fall back to
// naming.Default.
func WithNaming(s *naming.Strategy) Option {
	return func(c *Config) error {
		c.Naming = s
		return nil
	}
}

// WithKeysReader sets the reader of database generated identifiers.
func WithKeysReader(r persister.GeneratedKeysReader) Option {
	return func(c *Config) error {
		c.KeysReader = r
		return nil
	}
}

// WithSchemaName sets the schema of the exported atlas tables.
func WithSchemaName(name string) Option {
	return func(c *Config) error {
		c.SchemaName = name
		return nil
	}
}

// WithDebug logs every statement of the built persisters.
func WithDebug() Option {
	return func(c *Config) error {
		c.Debug = true
		return nil
	}
}

// WithStats counts the statements of the built persisters.
func WithStats(opts ...sql.StatsOption) Option {
	return func(c *Config) error {
		c.Stats = true
		c.StatsOptions = append(c.StatsOptions, opts...)
		return nil
	}
}

// WithSlowQueryLog counts the statements of the built persisters and logs
// the ones slower than threshold through the builder logger.
func WithSlowQueryLog(threshold time.Duration) Option {
	return func(c *Config) error {
		if threshold <= 0 {
			return fmt.Errorf("compiler: slow query threshold must be positive, got %s", threshold)
		}
		c.Stats = true
		c.SlowQuery = threshold
		return nil
	}
}

// File is the YAML form of a configuration:
//
//	dialect: postgres
//	schema: public
//	debug: true
//	stats: true
//	slow_query: 200ms
//	naming:
//	  discriminator: kind
//	  index_column: position
//	  join_column_suffix: _ref
type File struct {
	Dialect string `yaml:"dialect,omitempty"`
	Schema  string `yaml:"schema,omitempty"`
	Debug   bool   `yaml:"debug,omitempty"`
	Stats   bool   `yaml:"stats,omitempty"`
	// SlowQuery is a duration such as 200ms.
	SlowQuery time.Duration `yaml:"slow_query,omitempty"`
	Naming    NamingFile    `yaml:"naming,omitempty"`
}

// NamingFile is the YAML form of the naming settings.
type NamingFile struct {
	Discriminator    string `yaml:"discriminator,omitempty"`
	IndexColumn      string `yaml:"index_column,omitempty"`
	JoinColumnSuffix string `yaml:"join_column_suffix,omitempty"`
}

// ParseConfig parses a YAML configuration.
func ParseConfig(data []byte) (*File, error) {
	f := &File{}
	if err := yaml.Unmarshal(data, f); err != nil {
		return nil, fmt.Errorf("compiler: parse config: %w", err)
	}
	if f.Dialect != "" && !dialect.Valid(f.Dialect) {
		return nil, fmt.Errorf("compiler: parse config: unsupported dialect %q", f.Dialect)
	}
	return f, nil
}

// LoadConfig reads a YAML configuration file.
func LoadConfig(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("compiler: load config: %w", err)
	}
	return ParseConfig(data)
}

// Options returns the options applying the file settings.
func (f *File) Options() []Option {
	var opts []Option
	if f.Dialect != "" {
		opts = append(opts, WithDialect(f.Dialect))
	}
	if f.Schema != "" {
		opts = append(opts, WithSchemaName(f.Schema))
	}
	if f.Debug {
		opts = append(opts, WithDebug())
	}
	if f.Stats {
		opts = append(opts, WithStats())
	}
	if f.SlowQuery != 0 {
		opts = append(opts, WithSlowQueryLog(f.SlowQuery))
	}
	if n := f.Naming; n != (NamingFile{}) {
		opts = append(opts, func(c *Config) error {
			c.Naming = c.Naming.Merge(&naming.Strategy{
				Discriminator: n.Discriminator,
				IndexColumn:   n.IndexColumn,
				JoinSuffix:    n.JoinColumnSuffix,
			})
			return nil
		})
	}
	return opts
}

// WithConfigFile applies the settings of a YAML configuration file.
func WithConfigFile(path string) Option {
	return func(c *Config) error {
		f, err := LoadConfig(path)
		if err != nil {
			return err
		}
		return c.Apply(f.Options()...)
	}
}
