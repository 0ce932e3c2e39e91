package field

import (
	"database/sql"
	"database/sql/driver"
	"fmt"
	"reflect"
	"strconv"
	"time"
)

var scannerType = reflect.TypeOf((*sql.Scanner)(nil)).Elem()

// timeLayouts are the textual time formats returned by SQLite and MySQL drivers.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Convert converts a value read from a database column (or produced by a
// generator) to the Go type t. A nil value converts to nil.
func Convert(v any, t reflect.Type) (any, error) {
	if v == nil {
		return nil, nil
	}
	rv := reflect.ValueOf(v)
	if rv.Type() == t {
		return v, nil
	}
	if t.Kind() == reflect.Interface {
		if rv.Type().Implements(t) {
			return v, nil
		}
		return nil, fmt.Errorf("cannot convert %T to %s", v, t)
	}
	if t.Kind() == reflect.Pointer {
		ev, err := Convert(v, t.Elem())
		if err != nil || ev == nil {
			return nil, err
		}
		p := reflect.New(t.Elem())
		p.Elem().Set(reflect.ValueOf(ev))
		return p.Interface(), nil
	}
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, nil
		}
		return Convert(rv.Elem().Interface(), t)
	}
	if reflect.PointerTo(t).Implements(scannerType) {
		p := reflect.New(t)
		if err := p.Interface().(sql.Scanner).Scan(v); err != nil {
			return nil, fmt.Errorf("cannot scan %T into %s: %w", v, t, err)
		}
		return p.Elem().Interface(), nil
	}
	if t == timeType {
		return convertTime(v)
	}
	src, dst := rv.Kind(), t.Kind()
	switch {
	case isNumber(src) && isNumber(dst):
		return rv.Convert(t).Interface(), nil
	case dst == reflect.Bool && isNumber(src):
		return reflect.ValueOf(!rv.IsZero()).Convert(t).Interface(), nil
	case src == reflect.String && dst == reflect.String:
		return rv.Convert(t).Interface(), nil
	case src == reflect.Slice && rv.Type().Elem().Kind() == reflect.Uint8 && dst == reflect.String:
		return reflect.ValueOf(string(rv.Bytes())).Convert(t).Interface(), nil
	case src == reflect.String && dst == reflect.Slice && t.Elem().Kind() == reflect.Uint8:
		return reflect.ValueOf([]byte(rv.String())).Convert(t).Interface(), nil
	case src == reflect.Slice && dst == reflect.Slice && rv.Type().Elem().Kind() == reflect.Uint8 && t.Elem().Kind() == reflect.Uint8:
		return rv.Convert(t).Interface(), nil
	case (src == reflect.String || (src == reflect.Slice && rv.Type().Elem().Kind() == reflect.Uint8)) && (isNumber(dst) || dst == reflect.Bool):
		return parseNumber(asString(rv), t)
	}
	return nil, fmt.Errorf("cannot convert %T to %s", v, t)
}

// Value prepares a property value for a statement argument: nil pointers
// become nil and other pointers are dereferenced, except for driver.Valuer
// implementations.
func Value(v any) any {
	if IsNil(v) {
		return nil
	}
	if _, ok := v.(driver.Valuer); ok {
		return v
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
		if vr, ok := rv.Interface().(driver.Valuer); ok {
			return vr
		}
	}
	return rv.Interface()
}

func convertTime(v any) (any, error) {
	switch v := v.(type) {
	case time.Time:
		return v, nil
	case string:
		return parseTime(v)
	case []byte:
		return parseTime(string(v))
	case int64:
		return time.Unix(v, 0).UTC(), nil
	}
	return nil, fmt.Errorf("cannot convert %T to time.Time", v)
}

func parseTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse %q as time", s)
}

func parseNumber(s string, t reflect.Type) (any, error) {
	switch {
	case t.Kind() == reflect.Bool:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return nil, err
		}
		return reflect.ValueOf(b).Convert(t).Interface(), nil
	case t.Kind() >= reflect.Int && t.Kind() <= reflect.Int64:
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, err
		}
		return reflect.ValueOf(n).Convert(t).Interface(), nil
	case t.Kind() >= reflect.Uint && t.Kind() <= reflect.Uint64:
		n, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return nil, err
		}
		return reflect.ValueOf(n).Convert(t).Interface(), nil
	default:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, err
		}
		return reflect.ValueOf(f).Convert(t).Interface(), nil
	}
}

func asString(rv reflect.Value) string {
	if rv.Kind() == reflect.String {
		return rv.String()
	}
	return string(rv.Bytes())
}

func isNumber(k reflect.Kind) bool {
	return k >= reflect.Int && k <= reflect.Float64
}
