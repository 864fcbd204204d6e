// Package command records reversible attribute changes and replays them for
// undo and redo.
package command

import (
	"reflect"
	"sync"

	"github.com/google/uuid"

	"github.com/conduit-lang/propsheet/internal/property"
)

// Command is one reversible operation recorded in a Context
type Command interface {
	ID() uuid.UUID
	Label() string
}

// Reflector applies a recorded command in either direction
type Reflector interface {
	Redo(cmd Command) error
	Undo(cmd Command) error
}

// Context is the host-level command stack edits are recorded into
type Context interface {
	// Add records a new command
	Add(cmd Command, r Reflector)
	// Update reports that a recorded command was extended in place
	Update(cmd Command, r Reflector)
}

// Change is a single attribute mutation
type Change struct {
	id         uuid.UUID
	Target     interface{}
	Descriptor *property.Descriptor

	mu       sync.RWMutex
	oldValue interface{}
	newValue interface{}
}

// NewChange creates a change of d on target from oldValue to newValue
func NewChange(target interface{}, d *property.Descriptor, oldValue, newValue interface{}) *Change {
	return &Change{
		id:         uuid.New(),
		Target:     target,
		Descriptor: d,
		oldValue:   oldValue,
		newValue:   newValue,
	}
}

// ID returns the change's unique id
func (c *Change) ID() uuid.UUID {
	return c.id
}

// Label returns a human readable description
func (c *Change) Label() string {
	return "Change " + c.Descriptor.DisplayName
}

// OldValue returns the value before the first edit of the run
func (c *Change) OldValue() interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.oldValue
}

// NewValue returns the value after the latest edit of the run
func (c *Change) NewValue() interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.newValue
}

// Extend overwrites the new value, keeping the old one
func (c *Change) Extend(newValue interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.newValue = newValue
}

// Matches reports whether the change edits attribute d of target
func (c *Change) Matches(target interface{}, d *property.Descriptor) bool {
	return c.Descriptor.ID == d.ID && SameTarget(c.Target, target)
}

// SameTarget reports whether a and b are the same object. Pointers, maps
// and slices compare by identity; other comparable values by equality.
func SameTarget(a, b interface{}) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if va.Type() != vb.Type() {
		return false
	}
	switch va.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func, reflect.UnsafePointer:
		if va.Kind() == reflect.Slice && va.Len() != vb.Len() {
			return false
		}
		return va.Pointer() == vb.Pointer()
	}
	if !va.Type().Comparable() {
		return false
	}
	return a == b
}
