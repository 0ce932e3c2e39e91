package index_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/syssam/strata/schema/index"
)

func TestIndexDescriptor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		build    func() *index.Descriptor
		validate func(t *testing.T, desc *index.Descriptor)
	}{
		{
			name: "single_field",
			build: func() *index.Descriptor {
				return index.Fields("name").Descriptor()
			},
			validate: func(t *testing.T, desc *index.Descriptor) {
				assert.Equal(t, []string{"name"}, desc.Fields)
				assert.Empty(t, desc.Columns)
				assert.False(t, desc.Unique)
				assert.Empty(t, desc.StorageKey)
			},
		},
		{
			name: "embedded_path",
			build: func() *index.Descriptor {
				return index.Fields("home.city", "name").Descriptor()
			},
			validate: func(t *testing.T, desc *index.Descriptor) {
				assert.Equal(t, []string{"home.city", "name"}, desc.Fields)
			},
		},
		{
			name: "unique_with_storage_key",
			build: func() *index.Descriptor {
				return index.Fields("email").
					Unique().
					StorageKey("idx_unique_email").
					Descriptor()
			},
			validate: func(t *testing.T, desc *index.Descriptor) {
				assert.True(t, desc.Unique)
				assert.Equal(t, "idx_unique_email", desc.StorageKey)
			},
		},
		{
			name: "fields_and_columns",
			build: func() *index.Descriptor {
				return index.Columns("owner_id").Fields("name").Descriptor()
			},
			validate: func(t *testing.T, desc *index.Descriptor) {
				assert.Equal(t, []string{"owner_id"}, desc.Columns)
				assert.Equal(t, []string{"name"}, desc.Fields)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			tt.validate(t, tt.build())
		})
	}
}
