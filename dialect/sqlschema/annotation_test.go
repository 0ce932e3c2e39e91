package sqlschema_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/syssam/strata/dialect/sqlschema"
)

func TestMerge(t *testing.T) {
	t.Parallel()
	a := sqlschema.Merge(
		sqlschema.Size(10),
		sqlschema.ColumnType("JSONB"),
		sqlschema.OnDelete(sqlschema.SetNull),
		sqlschema.OnDelete(sqlschema.Cascade),
		sqlschema.Default("0"),
	)
	assert.Equal(t, int64(10), a.Size)
	assert.Equal(t, "JSONB", a.ColumnType)
	assert.Equal(t, sqlschema.Cascade, a.OnDelete)
	assert.Empty(t, a.OnUpdate)
	assert.Equal(t, "0", a.Default)
	assert.Equal(t, sqlschema.Annotation{}, sqlschema.Merge())
}
