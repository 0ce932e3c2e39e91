// Package index declares table indexes over mapped properties.
//
//	schema.New[*User]().Indexes(
//		index.Fields("email").Unique(),
//		index.Fields("home.city", "name").StorageKey("users_by_city"),
//	)
//
// Fields are property paths as resolved by the mapping (dotted for
// embedded values); Columns name physical columns directly, such as shadow
// join columns.
package index

// A Builder for indexes.
type Builder struct {
	desc *Descriptor
}

// Fields creates an index on the given property paths.
func Fields(fields ...string) *Builder {
	return &Builder{desc: &Descriptor{Fields: fields}}
}

// Columns creates an index on the given columns.
func Columns(columns ...string) *Builder {
	return &Builder{desc: &Descriptor{Columns: columns}}
}

// Fields appends property paths to the index.
func (b *Builder) Fields(fields ...string) *Builder {
	b.desc.Fields = append(b.desc.Fields, fields...)
	return b
}

// Columns appends columns to the index.
func (b *Builder) Columns(columns ...string) *Builder {
	b.desc.Columns = append(b.desc.Columns, columns...)
	return b
}

// Unique sets the index to be a unique index.
func (b *Builder) Unique() *Builder {
	b.desc.Unique = true
	return b
}

// StorageKey sets the name of the index in the database.
func (b *Builder) StorageKey(key string) *Builder {
	b.desc.StorageKey = key
	return b
}

// Descriptor returns the index descriptor.
func (b *Builder) Descriptor() *Descriptor {
	return b.desc
}

// Descriptor for index configuration.
type Descriptor struct {
	Unique     bool     // unique index.
	Fields     []string // indexed property paths.
	Columns    []string // indexed columns.
	StorageKey string   // custom index name.
}
