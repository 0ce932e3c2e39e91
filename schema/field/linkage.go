package field

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/syssam/strata/dialect/sqlschema"
)

// Linkage links one property to one column.
type Linkage struct {
	accessor  *Accessor
	column    string
	typ       Type
	mandatory bool
	readOnly  bool
	size      int64
	codec     Codec
	ant       sqlschema.Annotation
}

// Map returns a linkage of the given property. The column name defaults to
// the naming strategy and the column type to the property type.
func Map(a *Accessor) *Linkage {
	return &Linkage{accessor: a}
}

// Column sets an explicit column name.
func (l *Linkage) Column(name string) *Linkage {
	l.column = name
	return l
}

// Type sets an explicit column type.
func (l *Linkage) Type(t Type) *Linkage {
	l.typ = t
	return l
}

// Mandatory makes the column NOT NULL.
func (l *Linkage) Mandatory() *Linkage {
	l.mandatory = true
	return l
}

// ReadOnly marks the property as loaded but never written. A read-only
// property may share its column with a writable one.
func (l *Linkage) ReadOnly() *Linkage {
	l.readOnly = true
	return l
}

// Size sets the column size.
func (l *Linkage) Size(n int64) *Linkage {
	l.size = n
	return l
}

// Codec sets the codec converting between the property and the column values.
func (l *Linkage) Codec(c Codec) *Linkage {
	l.codec = c
	return l
}

// Annotations sets SQL-specific column settings.
func (l *Linkage) Annotations(as ...sqlschema.Annotation) *Linkage {
	l.ant = sqlschema.Merge(append([]sqlschema.Annotation{l.ant}, as...)...)
	return l
}

// Annotation returns the merged SQL annotation of the column.
func (l *Linkage) Annotation() sqlschema.Annotation { return l.ant }

// Accessor returns the linked property.
func (l *Linkage) Accessor() *Accessor { return l.accessor }

// ColumnName returns the explicit column name, if any.
func (l *Linkage) ColumnName() string { return l.column }

// ColumnType returns the column type.
func (l *Linkage) ColumnType() Type {
	if l.typ != TypeInvalid {
		return l.typ
	}
	return TypeOf(l.accessor.Type())
}

// IsMandatory reports whether the column is NOT NULL.
func (l *Linkage) IsMandatory() bool { return l.mandatory }

// IsReadOnly reports whether the property is never written.
func (l *Linkage) IsReadOnly() bool { return l.readOnly }

// ColumnSize returns the column size, 0 if unset.
func (l *Linkage) ColumnSize() int64 {
	if l.size == 0 {
		return l.ant.Size
	}
	return l.size
}

// ValueCodec returns the codec of the property. JSON columns without an
// explicit codec get a JSON codec for the property type.
func (l *Linkage) ValueCodec() Codec {
	if l.codec == nil && l.ColumnType() == TypeJSON && l.accessor.Type() != jsonType {
		return JSONCodec(l.accessor.Type())
	}
	return l.codec
}

// Codec converts between a property value and its column value.
type Codec interface {
	// Encode converts a property value to a column value.
	Encode(v any) (any, error)
	// Decode converts a column value to a property value.
	Decode(v any) (any, error)
}

// CodecFuncs implements Codec with two functions.
type CodecFuncs struct {
	EncodeFunc func(any) (any, error)
	DecodeFunc func(any) (any, error)
}

// Encode implements Codec.
func (c CodecFuncs) Encode(v any) (any, error) { return c.EncodeFunc(v) }

// Decode implements Codec.
func (c CodecFuncs) Decode(v any) (any, error) { return c.DecodeFunc(v) }

type jsonCodec struct {
	t reflect.Type
}

// JSONCodec returns a codec storing values of type t as JSON documents.
func JSONCodec(t reflect.Type) Codec {
	return jsonCodec{t: t}
}

func (c jsonCodec) Encode(v any) (any, error) {
	if IsNil(v) {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("field: encode json: %w", err)
	}
	return string(b), nil
}

func (c jsonCodec) Decode(v any) (any, error) {
	var data []byte
	switch v := v.(type) {
	case nil:
		return nil, nil
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return nil, fmt.Errorf("field: decode json: unexpected %T", v)
	}
	p := reflect.New(c.t)
	if err := json.Unmarshal(data, p.Interface()); err != nil {
		return nil, fmt.Errorf("field: decode json: %w", err)
	}
	return p.Elem().Interface(), nil
}
