package strata

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for the two error categories of the package.
var (
	// ErrConfiguration is matched by every error raised while compiling
	// a mapping configuration into a persister graph.
	ErrConfiguration = errors.New("strata: invalid mapping configuration")

	// ErrMapping is matched by every error raised while an operation
	// maps entities to rows or rows to entities.
	ErrMapping = errors.New("strata: mapping failed")
)

// ConfigurationError is returned by the builder when a mapping configuration
// cannot be compiled. The build that produced it is aborted as a whole.
type ConfigurationError struct {
	Entity   string // Entity type being compiled
	Property string // Offending property, if any
	Table    string // Offending table, if any
	Message  string
	Err      error // Optional cause
}

// Error returns the error string.
func (e *ConfigurationError) Error() string {
	var sb strings.Builder
	sb.WriteString("strata: configuration")
	if e.Entity != "" {
		fmt.Fprintf(&sb, " of %s", e.Entity)
	}
	if e.Property != "" {
		fmt.Fprintf(&sb, " property %q", e.Property)
	}
	if e.Table != "" {
		fmt.Fprintf(&sb, " (table %q)", e.Table)
	}
	sb.WriteString(": ")
	sb.WriteString(e.Message)
	if e.Err != nil {
		fmt.Fprintf(&sb, ": %v", e.Err)
	}
	return sb.String()
}

// Unwrap returns the underlying error.
func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// Is reports whether the target error matches ErrConfiguration.
func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

// NewConfigurationError returns a new ConfigurationError for the given entity type.
func NewConfigurationError(entity, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Entity: entity, Message: fmt.Sprintf(format, args...)}
}

// WithProperty sets the offending property and returns the error.
func (e *ConfigurationError) WithProperty(name string) *ConfigurationError {
	e.Property = name
	return e
}

// WithTable sets the offending table and returns the error.
func (e *ConfigurationError) WithTable(name string) *ConfigurationError {
	e.Table = name
	return e
}

// Wrap sets the cause and returns the error.
func (e *ConfigurationError) Wrap(err error) *ConfigurationError {
	e.Err = err
	return e
}

// IsConfigurationError returns true if the error is a ConfigurationError.
func IsConfigurationError(err error) bool {
	if err == nil {
		return false
	}
	var e *ConfigurationError
	return errors.As(err, &e) || errors.Is(err, ErrConfiguration)
}

// MappingError is returned by persister operations when an entity cannot be
// written or read, e.g. a mandatory relation holds no target. The compiled
// graph stays usable after such an error.
type MappingError struct {
	Entity   string // Entity type of the instance
	Relation string // Offending relation, if any
	Instance any    // Offending instance, if any
	Message  string
}

// Error returns the error string.
func (e *MappingError) Error() string {
	var sb strings.Builder
	sb.WriteString("strata: ")
	if e.Entity != "" {
		sb.WriteString(e.Entity)
		if e.Relation != "" {
			fmt.Fprintf(&sb, ".%s", e.Relation)
		}
		sb.WriteString(": ")
	}
	sb.WriteString(e.Message)
	if e.Instance != nil {
		fmt.Fprintf(&sb, " (instance %v)", e.Instance)
	}
	return sb.String()
}

// Is reports whether the target error matches ErrMapping.
func (e *MappingError) Is(target error) bool {
	return target == ErrMapping
}

// NewMappingError returns a new MappingError.
func NewMappingError(entity, relation string, instance any, message string) *MappingError {
	return &MappingError{Entity: entity, Relation: relation, Instance: instance, Message: message}
}

// IsMappingError returns true if the error is a MappingError.
func IsMappingError(err error) bool {
	if err == nil {
		return false
	}
	var e *MappingError
	return errors.As(err, &e) || errors.Is(err, ErrMapping)
}

// ConstraintError represents a database constraint violation error.
type ConstraintError struct {
	msg  string
	wrap error
}

// Error returns the error string.
func (e ConstraintError) Error() string {
	return fmt.Sprintf("strata: constraint failed: %s", e.msg)
}

// Unwrap returns the underlying error.
func (e ConstraintError) Unwrap() error {
	return e.wrap
}

// NewConstraintError returns a new ConstraintError with the given message.
func NewConstraintError(msg string, wrap error) error {
	return ConstraintError{msg: msg, wrap: wrap}
}

// IsConstraintError returns true if the error is a ConstraintError.
func IsConstraintError(err error) bool {
	if err == nil {
		return false
	}
	var e ConstraintError
	return errors.As(err, &e)
}

// AggregateError represents multiple errors collected during an operation.
type AggregateError struct {
	Errors []error
}

// Error returns the error string.
func (e *AggregateError) Error() string {
	if len(e.Errors) == 0 {
		return "strata: no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	var sb strings.Builder
	sb.WriteString("strata: multiple errors:")
	for i, err := range e.Errors {
		fmt.Fprintf(&sb, "\n  [%d] %v", i+1, err)
	}
	return sb.String()
}

// Unwrap returns the collected errors.
func (e *AggregateError) Unwrap() []error {
	return e.Errors
}

// NewAggregateError returns a new AggregateError if there are errors,
// otherwise returns nil.
func NewAggregateError(errs ...error) error {
	var filtered []error
	for _, err := range errs {
		if err != nil {
			filtered = append(filtered, err)
		}
	}
	if len(filtered) == 0 {
		return nil
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &AggregateError{Errors: filtered}
}

// QueryError wraps a select failure with the entity being loaded.
type QueryError struct {
	Entity string
	Err    error
}

// Error returns the error string.
func (e *QueryError) Error() string {
	return fmt.Sprintf("strata: querying %s: %v", e.Entity, e.Err)
}

// Unwrap returns the underlying error.
func (e *QueryError) Unwrap() error {
	return e.Err
}

// NewQueryError returns a new QueryError.
func NewQueryError(entity string, err error) *QueryError {
	return &QueryError{Entity: entity, Err: err}
}

// IsQueryError returns true if the error is a QueryError.
func IsQueryError(err error) bool {
	if err == nil {
		return false
	}
	var e *QueryError
	return errors.As(err, &e)
}

// MutationError wraps a failed write statement with additional context.
type MutationError struct {
	Entity string // Entity type being mutated
	Op     string // Operation (e.g., "insert", "update", "delete")
	Err    error  // Underlying error
}

// Error returns the error string.
func (e *MutationError) Error() string {
	return fmt.Sprintf("strata: %s %s: %v", e.Op, e.Entity, e.Err)
}

// Unwrap returns the underlying error.
func (e *MutationError) Unwrap() error {
	return e.Err
}

// NewMutationError returns a new MutationError.
func NewMutationError(entity, op string, err error) *MutationError {
	return &MutationError{Entity: entity, Op: op, Err: err}
}

// IsMutationError returns true if the error is a MutationError.
func IsMutationError(err error) bool {
	if err == nil {
		return false
	}
	var e *MutationError
	return errors.As(err, &e)
}
