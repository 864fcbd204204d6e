package edit

import (
	"fmt"
	"reflect"

	"go.uber.org/zap"

	"github.com/conduit-lang/propsheet/internal/property"
)

// resolve maps a plain string onto the matching item of d's value list.
// Items are matched by Name, then String, then their printed form for
// enum-like values. A string without a match is passed through unchanged.
func (e *Editor) resolve(d *property.Descriptor, raw interface{}) interface{} {
	s, ok := raw.(string)
	if !ok || d.ValueList == nil {
		return raw
	}

	items := d.ValueList.Values(e.src.Target())
	for _, item := range items {
		if matchItem(item, s) {
			return item
		}
	}

	if len(items) > 0 && !d.ValueList.AllowCustom() {
		e.logger.Debug("value not in closed list, writing as is",
			zap.String("attribute", d.ID),
			zap.String("value", s))
	}
	return raw
}

func matchItem(item interface{}, s string) bool {
	switch it := item.(type) {
	case nil:
		return false
	case string:
		return it == s
	case property.Named:
		return it.Name() == s
	case fmt.Stringer:
		return it.String() == s
	}

	switch reflect.TypeOf(item).Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.String, reflect.Bool:
		return fmt.Sprint(item) == s
	}
	return false
}
