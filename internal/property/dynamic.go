package property

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strconv"
)

var interfaceType = reflect.TypeOf((*interface{})(nil)).Elem()

// isDynamic reports whether v is a collection described per instance
func isDynamic(v reflect.Value) bool {
	if v.Type().Implements(describerType) {
		return false
	}
	switch v.Kind() {
	case reflect.Map:
		return v.Type().Key().Kind() == reflect.String
	case reflect.Slice, reflect.Array:
		return true
	}
	return false
}

// EditableValue returns the value a view shows for target as a whole:
// collections are labelled with their length, e.g. "[3]".
func EditableValue(target interface{}) interface{} {
	if target == nil {
		return nil
	}
	v := reflect.ValueOf(target)
	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		return fmt.Sprintf("[%d]", v.Len())
	}
	return target
}

// dynamic builds per-instance descriptors for a collection
func (e *Extractor) dynamic(v reflect.Value) []*Descriptor {
	if v.Kind() == reflect.Map {
		return mapDescriptors(v)
	}
	return indexDescriptors(v)
}

func mapDescriptors(m reflect.Value) []*Descriptor {
	keys := make([]string, 0, m.Len())
	for _, k := range m.MapKeys() {
		keys = append(keys, k.String())
	}
	sort.Strings(keys)

	keyType := m.Type().Key()
	elemType := m.Type().Elem()

	descriptors := make([]*Descriptor, 0, len(keys))
	for i, key := range keys {
		mapKey := reflect.ValueOf(key).Convert(keyType)

		valueType := elemType
		if elemType == interfaceType {
			if current := m.MapIndex(mapKey); current.IsValid() && !current.IsNil() {
				valueType = current.Elem().Type()
			}
		}

		d := &Descriptor{
			ID:          key,
			DisplayName: key,
			Order:       i,
			DataType:    inferDataType(valueType),
			Editable:    true,
			Updatable:   true,
			valueType:   valueType,
		}
		d.get = func(_ context.Context, owner reflect.Value) (reflect.Value, error) {
			v := owner.MapIndex(mapKey)
			if v.IsValid() && v.Kind() == reflect.Interface && !v.IsNil() {
				v = v.Elem()
			}
			return v, nil
		}
		d.set = func(owner reflect.Value, value reflect.Value) error {
			if owner.IsNil() {
				return ErrNotSettable
			}
			if !value.IsValid() {
				value = reflect.Zero(elemType)
			}
			owner.SetMapIndex(mapKey, value)
			return nil
		}
		descriptors = append(descriptors, d)
	}
	return descriptors
}

func indexDescriptors(s reflect.Value) []*Descriptor {
	elemType := s.Type().Elem()
	settable := s.Kind() == reflect.Slice

	descriptors := make([]*Descriptor, 0, s.Len())
	for i := 0; i < s.Len(); i++ {
		index := i
		valueType := elemType
		if elemType == interfaceType {
			if current := s.Index(i); !current.IsNil() {
				valueType = current.Elem().Type()
			}
		}

		d := &Descriptor{
			ID:          strconv.Itoa(i),
			DisplayName: fmt.Sprintf("[%d]", i),
			Order:       i,
			DataType:    inferDataType(valueType),
			Editable:    settable,
			Updatable:   settable,
			valueType:   valueType,
		}
		d.get = func(_ context.Context, owner reflect.Value) (reflect.Value, error) {
			if index >= owner.Len() {
				return reflect.Value{}, nil
			}
			v := owner.Index(index)
			if v.Kind() == reflect.Interface && !v.IsNil() {
				v = v.Elem()
			}
			return v, nil
		}
		if settable {
			d.set = func(owner reflect.Value, value reflect.Value) error {
				if index >= owner.Len() {
					return ErrNotSettable
				}
				if !value.IsValid() {
					value = reflect.Zero(elemType)
				}
				owner.Index(index).Set(value)
				return nil
			}
		}
		descriptors = append(descriptors, d)
	}
	return descriptors
}
