// Package property discovers the displayable and editable attributes of arbitrary
// Go values. Attributes are declared through struct tags or a static metadata table,
// extracted once per type into an ordered descriptor tree, and read or written
// through the descriptor's accessor bindings.
package property

import (
	"context"
	"fmt"
	"reflect"
)

// DefaultCategory is the bucket for attributes that declare no category
const DefaultCategory = "General"

// DefaultOrder sorts attributes without an explicit order after ordered ones
const DefaultOrder = int(^uint(0) >> 1)

// CacheValidator reports whether the value of attribute id is already cached
// by target, which makes reading it cheap enough to do synchronously.
type CacheValidator func(target interface{}, id string) bool

// ValueListProvider supplies the closed set of legal values for an attribute
type ValueListProvider interface {
	// Values returns the legal values for target
	Values(target interface{}) []interface{}
	// AllowCustom reports whether values outside the list are accepted
	AllowCustom() bool
}

// Named is implemented by value-list items identified by name
type Named interface {
	Name() string
}

// StaticValues is a ValueListProvider over a fixed list
type StaticValues struct {
	Items  []interface{}
	Custom bool
}

// Values returns the fixed list
func (s StaticValues) Values(interface{}) []interface{} {
	return s.Items
}

// AllowCustom reports whether values outside the list are accepted
func (s StaticValues) AllowCustom() bool {
	return s.Custom
}

// getFunc reads one accessor hop from its owner value
type getFunc func(ctx context.Context, owner reflect.Value) (reflect.Value, error)

// setFunc writes one accessor hop on its owner value
type setFunc func(owner reflect.Value, value reflect.Value) error

// Descriptor is the immutable description of one inspectable attribute.
// Group descriptors own the descriptors of the sub-object their accessor returns.
type Descriptor struct {
	ID             string
	DisplayName    string
	Description    string
	Category       string
	Order          int
	DataType       DataType
	Editable       bool // writable while the target is new
	Updatable      bool // writable once the target is persisted
	Lazy           bool
	Expensive      bool
	Hidden         bool
	ValueList      ValueListProvider
	CacheValidator CacheValidator

	// Parent is the group this attribute is embedded under, nil at top level
	Parent *Descriptor

	group     bool
	children  []*Descriptor
	valueType reflect.Type
	get       getFunc
	set       setFunc
}

// IsGroup reports whether the descriptor is a property group node
func (d *Descriptor) IsGroup() bool {
	return d.group
}

// Children returns the ordered descriptors nested under a group
func (d *Descriptor) Children() []*Descriptor {
	if len(d.children) == 0 {
		return nil
	}
	out := make([]*Descriptor, len(d.children))
	copy(out, d.children)
	return out
}

// CategoryName returns the category, falling back to DefaultCategory
func (d *Descriptor) CategoryName() string {
	if d.Category == "" {
		return DefaultCategory
	}
	return d.Category
}

// ValueType returns the Go type produced by the accessor
func (d *Descriptor) ValueType() reflect.Type {
	return d.valueType
}

// CanSet reports whether the attribute has a setter binding
func (d *Descriptor) CanSet() bool {
	return !d.group && d.set != nil
}

// Path returns the descriptors from the outermost group down to d
func (d *Descriptor) Path() []*Descriptor {
	var path []*Descriptor
	for cur := d; cur != nil; cur = cur.Parent {
		path = append([]*Descriptor{cur}, path...)
	}
	return path
}

// Validated reports whether d or one of its ancestors declares a cache validator
func (d *Descriptor) Validated() bool {
	for cur := d; cur != nil; cur = cur.Parent {
		if cur.CacheValidator != nil {
			return true
		}
	}
	return false
}

// Cached consults the cache validators of d and its ancestors. It returns
// true only if at least one validator exists and every validator reports
// the value as cached.
func (d *Descriptor) Cached(target interface{}) bool {
	found := false
	for cur := d; cur != nil; cur = cur.Parent {
		if cur.CacheValidator == nil {
			continue
		}
		found = true
		if !cur.CacheValidator(target, cur.ID) {
			return false
		}
	}
	return found
}

// Value reads the attribute from target. Lazy accessors receive ctx as their
// cancellation token; eager accessors ignore it. Panics raised by accessors
// are recovered and returned as errors.
func (d *Descriptor) Value(ctx context.Context, target interface{}) (value interface{}, err error) {
	owner, err := d.owner(ctx, target)
	if err != nil || !owner.IsValid() {
		return nil, err
	}

	v, err := d.invokeGet(ctx, owner)
	if err != nil {
		return nil, err
	}
	return interfaceOf(v), nil
}

// SetValue writes value to the attribute on target, converting it to the
// accessor's type where Go conversion rules allow.
func (d *Descriptor) SetValue(target interface{}, value interface{}) (err error) {
	if d.group {
		return ErrGroupValue
	}
	if d.set == nil {
		return fmt.Errorf("%s: %w", d.ID, ErrNotSettable)
	}

	converted, err := Convert(value, d.valueType)
	if err != nil {
		return &AccessorError{Attribute: d.ID, Err: err}
	}

	owner, err := d.owner(context.Background(), target)
	if err != nil {
		return err
	}
	if !owner.IsValid() {
		return fmt.Errorf("%s: owner is nil: %w", d.ID, ErrNotSettable)
	}

	defer func() {
		if r := recover(); r != nil {
			err = &AccessorError{Attribute: d.ID, Err: panicError{value: r}}
		}
	}()

	if err := d.set(owner, converted); err != nil {
		return &AccessorError{Attribute: d.ID, Err: err}
	}
	return nil
}

// owner resolves the value that holds d's accessor by walking the group chain
func (d *Descriptor) owner(ctx context.Context, target interface{}) (reflect.Value, error) {
	owner := reflect.ValueOf(target)
	if d.Parent == nil {
		return owner, nil
	}

	for _, p := range d.Parent.Path() {
		if !owner.IsValid() || isNilValue(owner) {
			return reflect.Value{}, nil
		}
		next, err := p.invokeGet(ctx, owner)
		if err != nil {
			return reflect.Value{}, err
		}
		owner = next
	}
	if isNilValue(owner) {
		return reflect.Value{}, nil
	}
	return owner, nil
}

func (d *Descriptor) invokeGet(ctx context.Context, owner reflect.Value) (v reflect.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &AccessorError{Attribute: d.ID, Err: panicError{value: r}}
		}
	}()

	v, err = d.get(ctx, owner)
	if err != nil {
		return reflect.Value{}, &AccessorError{Attribute: d.ID, Err: err}
	}
	return v, nil
}

// withChildren returns a shallow copy of a group descriptor owning children
func (d *Descriptor) withChildren(children []*Descriptor) *Descriptor {
	clone := *d
	clone.children = children
	return &clone
}

func isNilValue(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return v.IsNil()
	}
	return false
}

func interfaceOf(v reflect.Value) interface{} {
	if !v.IsValid() {
		return nil
	}
	if isNilValue(v) {
		return nil
	}
	return v.Interface()
}

// String implements fmt.Stringer
func (d *Descriptor) String() string {
	return fmt.Sprintf("%s(%s)", d.ID, d.DataType)
}
