// Package edit writes attribute values through their descriptors and
// records every committed write as an undoable command.
package edit

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"

	"go.uber.org/zap"

	"github.com/conduit-lang/propsheet/internal/command"
	"github.com/conduit-lang/propsheet/internal/property"
	"github.com/conduit-lang/propsheet/internal/source"
)

var (
	// ErrNotEditable is returned when writing an attribute the editor may not change
	ErrNotEditable = errors.New("attribute is not editable")

	// ErrForeignCommand is returned when replaying a command recorded by another editor
	ErrForeignCommand = errors.New("command does not belong to this editor")
)

// Authorizer grants or denies edits of a target
type Authorizer interface {
	IsEditable(target interface{}) bool
}

// AuthorizerFunc adapts a function to Authorizer
type AuthorizerFunc func(target interface{}) bool

// IsEditable calls f
func (f AuthorizerFunc) IsEditable(target interface{}) bool {
	return f(target)
}

// Notifier is told about every committed write, undo and redo
type Notifier interface {
	Notify(target interface{}, d *property.Descriptor)
}

// NotifierFunc adapts a function to Notifier
type NotifierFunc func(target interface{}, d *property.Descriptor)

// Notify calls f
func (f NotifierFunc) Notify(target interface{}, d *property.Descriptor) {
	f(target, d)
}

// Defaulter supplies the value an attribute is reset to when no change was recorded
type Defaulter interface {
	Default(target interface{}, d *property.Descriptor) (interface{}, bool)
}

// Persistable is implemented by targets that distinguish new objects from
// stored ones. Targets without it are treated as stored.
type Persistable interface {
	IsPersisted() bool
}

type allowAll struct{}

func (allowAll) IsEditable(interface{}) bool { return true }

type noNotify struct{}

func (noNotify) Notify(interface{}, *property.Descriptor) {}

// Option configures an Editor
type Option func(*Editor)

// WithAuthorizer sets the edit authorization hook
func WithAuthorizer(a Authorizer) Option {
	return func(e *Editor) {
		if a != nil {
			e.auth = a
		}
	}
}

// WithNotifier sets the object update hook
func WithNotifier(n Notifier) Option {
	return func(e *Editor) {
		if n != nil {
			e.notifier = n
		}
	}
}

// WithDefaulter sets the reset-to-default hook
func WithDefaulter(d Defaulter) Option {
	return func(e *Editor) {
		e.defaulter = d
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(e *Editor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// Editor mutates the target of a property source and records the changes
// in a command context. Consecutive writes of the same attribute merge into
// one command until a merge boundary is crossed.
type Editor struct {
	src       *source.PropertySource
	commands  command.Context
	auth      Authorizer
	notifier  Notifier
	defaulter Defaulter
	logger    *zap.Logger

	mu sync.Mutex
	// pending is the command later writes of the same attribute extend;
	// nil once a merge boundary was crossed
	pending *command.Change
	// latest holds the most recent change per attribute id, for Reset
	latest map[string]*command.Change
}

type boundaryNotifier interface {
	OnBoundary(fn func())
}

type lastCommander interface {
	Last() command.Command
}

// New creates an editor for src recording into commands
func New(src *source.PropertySource, commands command.Context, opts ...Option) *Editor {
	e := &Editor{
		src:      src,
		commands: commands,
		auth:     allowAll{},
		notifier: noNotify{},
		logger:   zap.NewNop(),
		latest:   make(map[string]*command.Change),
	}
	for _, opt := range opts {
		opt(e)
	}
	if b, ok := commands.(boundaryNotifier); ok {
		b.OnBoundary(e.Boundary)
	}
	return e
}

// Source returns the property source being edited
func (e *Editor) Source() *source.PropertySource {
	return e.src
}

// IsEditable reports whether d may be written on the source's target
func (e *Editor) IsEditable(d *property.Descriptor) bool {
	if d == nil || !d.CanSet() {
		return false
	}
	target := e.src.Target()
	if !e.auth.IsEditable(target) {
		return false
	}
	if p, ok := target.(Persistable); ok && !p.IsPersisted() {
		return d.Editable
	}
	return d.Updatable
}

// Boundary ends the current merge window
func (e *Editor) Boundary() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pending = nil
}

// Write sets d to raw. Writing the current value is a no-op. A failing
// setter leaves no command and fires no notification.
func (e *Editor) Write(d *property.Descriptor, raw interface{}) error {
	if !e.IsEditable(d) {
		return fmt.Errorf("%s: %w", d.ID, ErrNotEditable)
	}

	e.mu.Lock()
	cmd, merged, err := e.write(d, raw)
	e.mu.Unlock()
	if err != nil || cmd == nil {
		return err
	}

	if merged {
		e.commands.Update(cmd, e)
	} else {
		e.commands.Add(cmd, e)
	}
	return nil
}

// write applies the change and returns the command to record. Callers hold e.mu.
func (e *Editor) write(d *property.Descriptor, raw interface{}) (*command.Change, bool, error) {
	target := e.src.Target()
	value := e.normalize(d, e.resolve(d, raw))

	current, err := e.current(d)
	if err != nil {
		e.logger.Warn("reading current value failed",
			zap.String("attribute", d.ID),
			zap.Error(err))
		return nil, false, err
	}
	if equal(current, value) {
		return nil, false, nil
	}

	if err := e.apply(d, value); err != nil {
		return nil, false, err
	}

	if p := e.pending; p != nil && p.Matches(target, d) && e.isLast(p) {
		p.Extend(value)
		return p, true, nil
	}

	c := command.NewChange(target, d, current, value)
	e.pending = c
	e.latest[d.ID] = c
	return c, false, nil
}

// current reads the value d holds now. A lazy attribute whose value the
// source already fetched is answered from the source; otherwise the accessor
// runs on the calling goroutine.
func (e *Editor) current(d *property.Descriptor) (interface{}, error) {
	if d.Lazy {
		if v, ok := e.src.Resolved(d); ok {
			return v, nil
		}
	}
	return d.Value(context.Background(), e.src.Target())
}

// isLast reports whether c is still the context's most recent command
func (e *Editor) isLast(c *command.Change) bool {
	lc, ok := e.commands.(lastCommander)
	if !ok {
		return true
	}
	last := lc.Last()
	return last != nil && last.ID() == c.ID()
}

// apply invokes the setter, refreshes the source and notifies
func (e *Editor) apply(d *property.Descriptor, value interface{}) error {
	target := e.src.Target()
	if err := d.SetValue(target, value); err != nil {
		e.logger.Warn("attribute write failed",
			zap.String("attribute", d.ID),
			zap.Error(err))
		return fmt.Errorf("write %s: %w", d.ID, err)
	}

	stored := value
	if !d.Lazy {
		if v, err := d.Value(context.Background(), target); err == nil {
			stored = v
		}
	}
	e.src.Store(d, stored)
	e.notifier.Notify(target, d)
	return nil
}

// Reset reverts d to the old value of its latest change. Without one it
// asks the Defaulter; with neither it does nothing. A reset is recorded as a
// command of its own and does not count as d's latest change, so resetting
// twice stays at the reverted value.
func (e *Editor) Reset(d *property.Descriptor) error {
	e.mu.Lock()
	last := e.latest[d.ID]
	e.pending = nil
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.pending = nil
		if last != nil {
			e.latest[d.ID] = last
		} else {
			delete(e.latest, d.ID)
		}
	}()

	if last != nil {
		return e.Write(d, last.OldValue())
	}
	if e.defaulter == nil {
		return nil
	}
	if v, ok := e.defaulter.Default(e.src.Target(), d); ok {
		return e.Write(d, v)
	}
	return nil
}

// Redo reapplies the new value of cmd without recording
func (e *Editor) Redo(cmd command.Command) error {
	c, err := e.own(cmd)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.apply(c.Descriptor, c.NewValue())
}

// Undo reapplies the old value of cmd without recording
func (e *Editor) Undo(cmd command.Command) error {
	c, err := e.own(cmd)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.apply(c.Descriptor, c.OldValue())
}

func (e *Editor) own(cmd command.Command) (*command.Change, error) {
	c, ok := cmd.(*command.Change)
	if !ok || !command.SameTarget(c.Target, e.src.Target()) {
		return nil, ErrForeignCommand
	}
	return c, nil
}

// normalize converts value to the attribute's Go type where possible so
// that equality checks compare like with like
func (e *Editor) normalize(d *property.Descriptor, value interface{}) interface{} {
	t := d.ValueType()
	if t == nil || value == nil {
		return value
	}
	if n, ok := value.(property.Named); ok && t.Kind() == reflect.String {
		value = n.Name()
	}
	converted, err := property.Convert(value, t)
	if err != nil {
		return value
	}
	return converted.Interface()
}

func equal(a, b interface{}) bool {
	if isNil(a) && isNil(b) {
		return true
	}
	return reflect.DeepEqual(a, b)
}

func isNil(v interface{}) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}
