package strata_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/strata"
)

func TestConfigurationError(t *testing.T) {
	t.Run("Error", func(t *testing.T) {
		err := strata.NewConfigurationError("Car", "duplicate column %q", "name").
			WithProperty("label").
			WithTable("cars")
		assert.Equal(t, `strata: configuration of Car property "label" (table "cars"): duplicate column "name"`, err.Error())
	})

	t.Run("Is", func(t *testing.T) {
		err := strata.NewConfigurationError("Car", "no identifier")
		assert.True(t, errors.Is(err, strata.ErrConfiguration))
		assert.False(t, errors.Is(err, strata.ErrMapping))
	})

	t.Run("Unwrap", func(t *testing.T) {
		cause := errors.New("cause")
		err := strata.NewConfigurationError("Car", "invalid").Wrap(cause)
		assert.ErrorIs(t, err, cause)
		assert.Contains(t, err.Error(), "invalid: cause")
	})

	t.Run("IsConfigurationError", func(t *testing.T) {
		err := strata.NewConfigurationError("Car", "invalid")
		assert.True(t, strata.IsConfigurationError(err))
		assert.True(t, strata.IsConfigurationError(fmt.Errorf("wrapper: %w", err)))
		assert.True(t, strata.IsConfigurationError(strata.ErrConfiguration))
		assert.False(t, strata.IsConfigurationError(errors.New("other error")))
		assert.False(t, strata.IsConfigurationError(nil))
	})
}

func TestMappingError(t *testing.T) {
	t.Run("Error", func(t *testing.T) {
		err := strata.NewMappingError("Car", "engine", nil, "mandatory relation has no target")
		assert.Equal(t, "strata: Car.engine: mandatory relation has no target", err.Error())
	})

	t.Run("Instance", func(t *testing.T) {
		err := strata.NewMappingError("Car", "", 42, "unsupported")
		assert.Equal(t, "strata: Car: unsupported (instance 42)", err.Error())
	})

	t.Run("IsMappingError", func(t *testing.T) {
		err := strata.NewMappingError("Car", "engine", nil, "missing")
		assert.True(t, errors.Is(err, strata.ErrMapping))
		assert.True(t, strata.IsMappingError(fmt.Errorf("wrapper: %w", err)))
		assert.False(t, strata.IsMappingError(strata.NewConfigurationError("Car", "x")))
		assert.False(t, strata.IsMappingError(nil))
	})
}

func TestConstraintError(t *testing.T) {
	cause := errors.New("UNIQUE constraint failed: cars.id")
	err := strata.NewConstraintError(cause.Error(), cause)
	assert.Equal(t, "strata: constraint failed: UNIQUE constraint failed: cars.id", err.Error())
	assert.True(t, strata.IsConstraintError(err))
	assert.True(t, strata.IsConstraintError(fmt.Errorf("insert: %w", err)))
	assert.ErrorIs(t, err, cause)
	assert.False(t, strata.IsConstraintError(cause))
}

func TestAggregateError(t *testing.T) {
	t.Run("Nil", func(t *testing.T) {
		require.NoError(t, strata.NewAggregateError(nil, nil))
	})

	t.Run("Single", func(t *testing.T) {
		e := errors.New("only")
		assert.Equal(t, e, strata.NewAggregateError(nil, e))
	})

	t.Run("Multiple", func(t *testing.T) {
		e1, e2 := errors.New("first"), errors.New("second")
		err := strata.NewAggregateError(e1, e2)
		assert.Equal(t, "strata: multiple errors:\n  [1] first\n  [2] second", err.Error())
		assert.ErrorIs(t, err, e2)
	})
}

func TestQueryAndMutationError(t *testing.T) {
	cause := errors.New("boom")

	qe := strata.NewQueryError("Car", cause)
	assert.Equal(t, "strata: querying Car: boom", qe.Error())
	assert.True(t, strata.IsQueryError(fmt.Errorf("x: %w", qe)))
	assert.ErrorIs(t, qe, cause)

	me := strata.NewMutationError("Car", "insert", cause)
	assert.Equal(t, "strata: insert Car: boom", me.Error())
	assert.True(t, strata.IsMutationError(me))
	assert.False(t, strata.IsMutationError(qe))
}
