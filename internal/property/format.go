package property

import (
	"fmt"
	"reflect"
	"time"
)

// DisplayValue converts an attribute value into a form suitable for JSON or
// text output: named items by name, enum-like values by String, timestamps
// as RFC 3339. Scalars are returned unchanged; anything else is printed.
func DisplayValue(v interface{}) interface{} {
	switch val := v.(type) {
	case nil:
		return nil
	case time.Time:
		return val.Format(time.RFC3339)
	case time.Duration:
		return val.String()
	case Named:
		return val.Name()
	case fmt.Stringer:
		return val.String()
	case error:
		return val.Error()
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String:
		return rv.String()
	case reflect.Bool, reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return v
	case reflect.Ptr, reflect.Interface:
		if rv.IsNil() {
			return nil
		}
		return DisplayValue(rv.Elem().Interface())
	case reflect.Slice, reflect.Array:
		return fmt.Sprintf("[%d]", rv.Len())
	}
	return fmt.Sprint(v)
}

// FormatValue renders an attribute value as text
func FormatValue(v interface{}) string {
	d := DisplayValue(v)
	if d == nil {
		return ""
	}
	return fmt.Sprint(d)
}
