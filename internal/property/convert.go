package property

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"time"
)

// Convert converts raw into a value of type t. Strings are parsed into
// numeric, boolean, duration and timestamp types, numbers are converted
// between numeric kinds when no precision is lost, and named types accept
// values of their underlying kind.
func Convert(raw interface{}, t reflect.Type) (reflect.Value, error) {
	if t == nil {
		return reflect.ValueOf(raw), nil
	}
	if raw == nil {
		return reflect.Zero(t), nil
	}

	rv := reflect.ValueOf(raw)
	if rv.Type().AssignableTo(t) {
		return rv, nil
	}

	if t.Kind() == reflect.Ptr {
		elem, err := Convert(raw, t.Elem())
		if err != nil {
			return reflect.Value{}, err
		}
		ptr := reflect.New(t.Elem())
		ptr.Elem().Set(elem)
		return ptr, nil
	}

	if rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return reflect.Zero(t), nil
		}
		return Convert(rv.Elem().Interface(), t)
	}

	if s, ok := raw.(string); ok {
		return parseString(s, t)
	}

	switch {
	case isNumber(rv.Kind()) && isNumber(t.Kind()):
		return convertNumber(rv, t)
	case rv.Kind() == t.Kind() && rv.Type().ConvertibleTo(t):
		// named types over the same underlying kind
		return rv.Convert(t), nil
	case t.Kind() == reflect.String:
		return reflect.ValueOf(fmt.Sprint(raw)).Convert(t), nil
	}

	return reflect.Value{}, fmt.Errorf("%w: cannot convert %T to %s", ErrConversion, raw, t)
}

func parseString(s string, t reflect.Type) (reflect.Value, error) {
	switch t {
	case durationType:
		d, err := time.ParseDuration(s)
		if err != nil {
			return reflect.Value{}, fmt.Errorf("%w: %v", ErrConversion, err)
		}
		return reflect.ValueOf(d), nil
	case timeType:
		ts, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return reflect.Value{}, fmt.Errorf("%w: %v", ErrConversion, err)
		}
		return reflect.ValueOf(ts), nil
	}

	out := reflect.New(t).Elem()
	switch t.Kind() {
	case reflect.String:
		out.SetString(s)
	case reflect.Bool:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return reflect.Value{}, fmt.Errorf("%w: %v", ErrConversion, err)
		}
		out.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(s, 10, t.Bits())
		if err != nil {
			return reflect.Value{}, fmt.Errorf("%w: %v", ErrConversion, err)
		}
		out.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(s, 10, t.Bits())
		if err != nil {
			return reflect.Value{}, fmt.Errorf("%w: %v", ErrConversion, err)
		}
		out.SetUint(n)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(s, t.Bits())
		if err != nil {
			return reflect.Value{}, fmt.Errorf("%w: %v", ErrConversion, err)
		}
		out.SetFloat(f)
	case reflect.Interface:
		if reflect.TypeOf(s).Implements(t) {
			out.Set(reflect.ValueOf(s))
			break
		}
		return reflect.Value{}, fmt.Errorf("%w: string does not implement %s", ErrConversion, t)
	default:
		return reflect.Value{}, fmt.Errorf("%w: cannot parse %q as %s", ErrConversion, s, t)
	}
	return out, nil
}

func convertNumber(rv reflect.Value, t reflect.Type) (reflect.Value, error) {
	if isFloat(rv.Kind()) && !isFloat(t.Kind()) {
		f := rv.Float()
		if f != math.Trunc(f) {
			return reflect.Value{}, fmt.Errorf("%w: %v is not integral", ErrConversion, f)
		}
	}

	out := rv.Convert(t)
	// round-trip to detect overflow
	if !isFloat(t.Kind()) && out.Convert(rv.Type()).Interface() != rv.Interface() {
		return reflect.Value{}, fmt.Errorf("%w: %v overflows %s", ErrConversion, rv.Interface(), t)
	}
	return out, nil
}

func isNumber(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

func isFloat(k reflect.Kind) bool {
	return k == reflect.Float32 || k == reflect.Float64
}
