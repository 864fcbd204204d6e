package property

import (
	"fmt"
	"reflect"
	"time"
)

// DataType is the semantic type tag of an attribute
type DataType string

const (
	TypeString    DataType = "string"
	TypeText      DataType = "text"
	TypeInt       DataType = "int"
	TypeFloat     DataType = "float"
	TypeBool      DataType = "bool"
	TypeTimestamp DataType = "timestamp"
	TypeDuration  DataType = "duration"
	TypeEnum      DataType = "enum"
	TypeList      DataType = "list"
	TypeObject    DataType = "object"
)

// ParseDataType converts a metadata tag value to a DataType
func ParseDataType(s string) (DataType, error) {
	switch DataType(s) {
	case TypeString, TypeText, TypeInt, TypeFloat, TypeBool,
		TypeTimestamp, TypeDuration, TypeEnum, TypeList, TypeObject:
		return DataType(s), nil
	default:
		return "", fmt.Errorf("unknown data type: %s", s)
	}
}

var (
	timeType     = reflect.TypeOf(time.Time{})
	durationType = reflect.TypeOf(time.Duration(0))
)

// inferDataType derives a type tag from the accessor's Go type
func inferDataType(t reflect.Type) DataType {
	if t == nil {
		return TypeString
	}
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	switch t {
	case timeType:
		return TypeTimestamp
	case durationType:
		return TypeDuration
	}

	switch t.Kind() {
	case reflect.Bool:
		return TypeBool
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return TypeInt
	case reflect.Float32, reflect.Float64:
		return TypeFloat
	case reflect.Slice, reflect.Array:
		return TypeList
	case reflect.Struct, reflect.Map:
		return TypeObject
	default:
		return TypeString
	}
}
