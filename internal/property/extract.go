package property

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
)

var (
	contextType   = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType     = reflect.TypeOf((*error)(nil)).Elem()
	describerType = reflect.TypeOf((*Describer)(nil)).Elem()
)

// Extractor builds descriptor lists from attribute metadata. Descriptors of
// static types are built once per reflect.Type and shared afterwards.
type Extractor struct {
	mu     sync.RWMutex
	byType map[reflect.Type][]*Descriptor
	logger *zap.Logger
}

// Option configures an Extractor
type Option func(*Extractor)

// WithLogger sets the logger used to report malformed metadata
func WithLogger(logger *zap.Logger) Option {
	return func(e *Extractor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewExtractor creates a new descriptor extractor
func NewExtractor(opts ...Option) *Extractor {
	e := &Extractor{
		byType: make(map[reflect.Type][]*Descriptor),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract returns the ordered top-level descriptors of target, which may be a
// value, a reflect.Type, or a collection (map with string keys, slice, array)
// for which per-instance descriptors are built. Attributes rejected by filter
// are left out; a nil filter keeps everything.
func (e *Extractor) Extract(target interface{}, filter Filter) []*Descriptor {
	if target == nil {
		return nil
	}

	var descriptors []*Descriptor
	switch t := target.(type) {
	case reflect.Type:
		descriptors = e.ForType(t)
	default:
		rv := reflect.ValueOf(target)
		if isDynamic(rv) {
			descriptors = e.dynamic(rv)
		} else {
			descriptors = e.ForType(rv.Type())
		}
	}

	return Apply(descriptors, filter)
}

// ForType returns the memoized descriptors of t, building them on first use
func (e *Extractor) ForType(t reflect.Type) []*Descriptor {
	e.mu.RLock()
	cached, ok := e.byType[t]
	e.mu.RUnlock()
	if ok {
		return cached
	}

	built := e.build(t, nil, map[reflect.Type]bool{})

	e.mu.Lock()
	defer e.mu.Unlock()
	if existing, ok := e.byType[t]; ok {
		return existing
	}
	e.byType[t] = built
	return built
}

// Reset drops all memoized descriptors
func (e *Extractor) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.byType = make(map[reflect.Type][]*Descriptor)
}

// build extracts the descriptors declared by t. parent is the group the
// descriptors are embedded under; visiting guards against recursive groups.
func (e *Extractor) build(t reflect.Type, parent *Descriptor, visiting map[reflect.Type]bool) []*Descriptor {
	visiting[t] = true
	defer delete(visiting, t)

	var descriptors []*Descriptor

	structType := t
	if structType.Kind() == reflect.Ptr {
		structType = structType.Elem()
	}

	if structType.Kind() == reflect.Struct {
		for _, f := range reflect.VisibleFields(structType) {
			if !f.IsExported() || f.Anonymous {
				continue
			}
			tag, ok := f.Tag.Lookup(TagName)
			if !ok || tag == "-" {
				continue
			}

			meta, warnings := parseTag(tag)
			for _, w := range warnings {
				e.logger.Warn("malformed attribute tag",
					zap.String("type", t.String()),
					zap.String("field", f.Name),
					zap.String("problem", w))
			}
			meta.Description = f.Tag.Get(DescriptionTagName)
			if meta.ID == "" {
				meta.ID = attributeID(f.Name)
			}

			d := e.newDescriptor(t, meta, parent)
			if !e.bindField(d, t, f, meta) {
				continue
			}
			descriptors = append(descriptors, e.finish(d, meta, visiting))
		}
	}

	for _, meta := range e.describe(t) {
		if meta.ID == "" {
			e.logger.Warn("attribute metadata without id", zap.String("type", t.String()))
			continue
		}
		d := e.newDescriptor(t, meta, parent)
		if !e.bindMethod(d, t, meta) {
			continue
		}
		descriptors = append(descriptors, e.finish(d, meta, visiting))
	}

	// stable: ties keep declaration order
	sort.SliceStable(descriptors, func(i, j int) bool {
		return descriptors[i].Order < descriptors[j].Order
	})
	return descriptors
}

func (e *Extractor) newDescriptor(t reflect.Type, meta Meta, parent *Descriptor) *Descriptor {
	d := &Descriptor{
		ID:             meta.ID,
		DisplayName:    meta.Name,
		Description:    meta.Description,
		Category:       meta.Category,
		Order:          DefaultOrder,
		Editable:       meta.Editable,
		Updatable:      meta.Updatable,
		Expensive:      meta.Expensive,
		Hidden:         meta.Hidden,
		ValueList:      meta.ValueList,
		CacheValidator: meta.CacheValidator,
		Parent:         parent,
	}
	if parent != nil {
		d.ID = parent.ID + "." + meta.ID
	}
	if d.DisplayName == "" {
		d.DisplayName = displayName(meta.ID)
	}
	if meta.Order != nil {
		d.Order = *meta.Order
	}

	if meta.Type != "" {
		dt, err := ParseDataType(meta.Type)
		if err != nil {
			e.logger.Warn("unknown attribute data type, defaulting to string",
				zap.String("type", t.String()),
				zap.String("attribute", d.ID),
				zap.Error(err))
			dt = TypeString
		}
		d.DataType = dt
	}
	return d
}

// finish applies lazy propagation, type inference and group recursion
func (e *Extractor) finish(d *Descriptor, meta Meta, visiting map[reflect.Type]bool) *Descriptor {
	if d.Parent != nil && d.Parent.Lazy {
		d.Lazy = true
	}
	if d.DataType == "" {
		d.DataType = inferDataType(d.valueType)
	}
	if !meta.Group {
		return d
	}

	sub := d.valueType
	switch {
	case sub == nil || sub.Kind() == reflect.Interface:
		e.logger.Warn("group accessor must return a concrete type, treating as leaf",
			zap.String("attribute", d.ID))
		return d
	case visiting[sub]:
		e.logger.Warn("recursive property group, treating as leaf",
			zap.String("attribute", d.ID),
			zap.String("type", sub.String()))
		return d
	}

	d.group = true
	d.DataType = TypeObject
	d.children = e.build(sub, d, visiting)
	return d
}

// describe collects the metadata table of t, if it declares one
func (e *Extractor) describe(t reflect.Type) (metas []Meta) {
	var inst reflect.Value
	switch {
	case t.Implements(describerType) && t.Kind() == reflect.Ptr:
		inst = reflect.New(t.Elem())
	case t.Implements(describerType):
		inst = reflect.New(t).Elem()
	case reflect.PointerTo(t).Implements(describerType):
		inst = reflect.New(t)
	default:
		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("attribute metadata table panicked",
				zap.String("type", t.String()),
				zap.Any("panic", r))
			metas = nil
		}
	}()
	return inst.Interface().(Describer).PropertyMeta()
}

func (e *Extractor) bindField(d *Descriptor, t reflect.Type, f reflect.StructField, meta Meta) bool {
	index := f.Index
	d.valueType = f.Type
	d.get = func(_ context.Context, owner reflect.Value) (reflect.Value, error) {
		fv, ok := fieldOf(owner, index)
		if !ok {
			return reflect.Value{}, nil
		}
		return fv, nil
	}

	if meta.Setter != "" {
		e.bindSetter(d, t, meta.Setter)
		return true
	}

	d.set = func(owner reflect.Value, value reflect.Value) error {
		fv, ok := fieldOf(owner, index)
		if !ok || !fv.CanSet() {
			return ErrNotSettable
		}
		fv.Set(value)
		return nil
	}
	return true
}

func (e *Extractor) bindMethod(d *Descriptor, t reflect.Type, meta Meta) bool {
	name := meta.Getter
	if name == "" {
		name = exportedName(meta.ID)
	}

	m, ok := t.MethodByName(name)
	if !ok {
		e.logger.Warn("attribute getter not found",
			zap.String("type", t.String()),
			zap.String("attribute", d.ID),
			zap.String("getter", name))
		return false
	}

	mt := m.Type
	in := mt.NumIn() - 1 // receiver
	lazy := in == 1 && mt.In(1) == contextType
	validIn := in == 0 || lazy
	validOut := mt.NumOut() == 1 || (mt.NumOut() == 2 && mt.Out(1) == errorType)
	if !validIn || !validOut {
		e.logger.Warn("attribute getter has an unsupported signature",
			zap.String("type", t.String()),
			zap.String("attribute", d.ID),
			zap.String("signature", mt.String()))
		return false
	}

	d.Lazy = lazy
	d.valueType = mt.Out(0)
	d.get = func(ctx context.Context, owner reflect.Value) (reflect.Value, error) {
		fn := methodOf(owner, name)
		if !fn.IsValid() {
			return reflect.Value{}, fmt.Errorf("method %s not found on %s", name, owner.Type())
		}
		var args []reflect.Value
		if lazy {
			if ctx == nil {
				ctx = context.Background()
			}
			args = []reflect.Value{reflect.ValueOf(ctx)}
		}
		out := fn.Call(args)
		if len(out) == 2 && !out[1].IsNil() {
			return reflect.Value{}, out[1].Interface().(error)
		}
		return out[0], nil
	}

	setter := meta.Setter
	explicit := setter != ""
	if !explicit {
		setter = "Set" + name
	}
	if _, ok := t.MethodByName(setter); ok || explicit {
		e.bindSetter(d, t, setter)
	}
	return true
}

// bindSetter binds a setter method taking one value and returning nothing or
// an error. A missing or malformed setter leaves the attribute read-only.
func (e *Extractor) bindSetter(d *Descriptor, t reflect.Type, name string) {
	m, ok := t.MethodByName(name)
	if !ok {
		e.logger.Warn("attribute setter not found",
			zap.String("type", t.String()),
			zap.String("attribute", d.ID),
			zap.String("setter", name))
		return
	}

	mt := m.Type
	if mt.NumIn() != 2 || mt.NumOut() > 1 || (mt.NumOut() == 1 && mt.Out(0) != errorType) {
		e.logger.Warn("attribute setter has an unsupported signature",
			zap.String("type", t.String()),
			zap.String("attribute", d.ID),
			zap.String("signature", mt.String()))
		return
	}

	param := mt.In(1)
	d.set = func(owner reflect.Value, value reflect.Value) error {
		fn := methodOf(owner, name)
		if !fn.IsValid() {
			return ErrNotSettable
		}
		if value.IsValid() && !value.Type().AssignableTo(param) {
			converted, err := Convert(value.Interface(), param)
			if err != nil {
				return err
			}
			value = converted
		}
		if !value.IsValid() {
			value = reflect.Zero(param)
		}
		out := fn.Call([]reflect.Value{value})
		if len(out) == 1 && !out[0].IsNil() {
			return out[0].Interface().(error)
		}
		return nil
	}
}

// fieldOf dereferences owner and returns the field at index
func fieldOf(owner reflect.Value, index []int) (reflect.Value, bool) {
	v := owner
	for v.Kind() == reflect.Ptr || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return reflect.Value{}, false
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return reflect.Value{}, false
	}
	fv, err := v.FieldByIndexErr(index)
	if err != nil {
		return reflect.Value{}, false
	}
	return fv, true
}

// methodOf looks up a method on owner, falling back to its address
func methodOf(owner reflect.Value, name string) reflect.Value {
	fn := owner.MethodByName(name)
	if !fn.IsValid() && owner.CanAddr() {
		fn = owner.Addr().MethodByName(name)
	}
	return fn
}

func exportedName(id string) string {
	if id == "" {
		return ""
	}
	return strings.ToUpper(id[:1]) + id[1:]
}
