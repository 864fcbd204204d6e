// Package source binds attribute descriptors to one target object and serves
// their values to a view. Eager attributes are read synchronously; lazy ones
// are fetched by a single background loop per source and reported to a
// listener once they resolve.
package source

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/conduit-lang/propsheet/internal/property"
)

// Pending is returned by Value for lazy attributes that are still loading
var Pending interface{} = pendingMarker{}

type pendingMarker struct{}

func (pendingMarker) String() string { return "Loading..." }

// Listener is notified when a lazy attribute finishes loading. completed is
// false when the fetch was cancelled or superseded and the value is absent.
type Listener func(target interface{}, d *property.Descriptor, value interface{}, completed bool)

// Option configures a PropertySource
type Option func(*PropertySource)

// WithRunner sets the runner that hosts the background fetch loop
func WithRunner(r Runner) Option {
	return func(s *PropertySource) {
		if r != nil {
			s.runner = r
		}
	}
}

// WithDispatcher sets the dispatcher listener callbacks are delivered on
func WithDispatcher(d Dispatcher) Option {
	return func(s *PropertySource) {
		if d != nil {
			s.dispatcher = d
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(s *PropertySource) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithListener registers the lazy completion listener
func WithListener(l Listener) Option {
	return func(s *PropertySource) {
		s.listener = l
	}
}

type pendingItem struct {
	d     *property.Descriptor
	token uint64
}

// PropertySource serves attribute values of one target. An attribute id is
// held in at most one of the eager map, the pending queue and the resolved map.
type PropertySource struct {
	id          uuid.UUID
	target      interface{}
	descriptors []*property.Descriptor
	runner      Runner
	dispatcher  Dispatcher
	logger      *zap.Logger

	mu       sync.Mutex
	eager    map[string]interface{}
	resolved map[string]interface{}
	pending  []pendingItem
	queued   map[string]uint64 // id -> token of the waiting or in-flight fetch
	seq      uint64
	listener Listener
	loop     *loop
	closed   bool
}

// New binds descriptors to target
func New(target interface{}, descriptors []*property.Descriptor, opts ...Option) *PropertySource {
	s := &PropertySource{
		id:          uuid.New(),
		target:      target,
		descriptors: descriptors,
		runner:      goRunner{},
		dispatcher:  Inline,
		logger:      zap.NewNop(),
		eager:       make(map[string]interface{}),
		resolved:    make(map[string]interface{}),
		queued:      make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ID returns the source's unique id
func (s *PropertySource) ID() uuid.UUID {
	return s.id
}

// Target returns the object the source is bound to
func (s *PropertySource) Target() interface{} {
	return s.target
}

// EditableValue returns the value a view shows for the target as a whole
func (s *PropertySource) EditableValue() interface{} {
	return property.EditableValue(s.target)
}

// Descriptors returns the top-level descriptors the source was built with
func (s *PropertySource) Descriptors() []*property.Descriptor {
	out := make([]*property.Descriptor, len(s.descriptors))
	copy(out, s.descriptors)
	return out
}

// SetListener replaces the lazy completion listener
func (s *PropertySource) SetListener(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listener = l
}

// Read returns the value of d. For a lazy attribute that has not resolved
// yet it schedules a background fetch and returns pending=true without
// blocking; the listener is called when the value arrives.
func (s *PropertySource) Read(d *property.Descriptor) (value interface{}, pending bool) {
	if !d.Lazy || d.Cached(s.target) {
		return s.readSync(d), false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// the validator reports stale, so a synchronously read copy is dropped
	delete(s.eager, d.ID)

	if v, ok := s.resolved[d.ID]; ok {
		return v, false
	}
	if s.closed {
		return nil, true
	}
	if _, ok := s.queued[d.ID]; ok {
		return nil, true
	}

	s.seq++
	s.queued[d.ID] = s.seq
	s.pending = append(s.pending, pendingItem{d: d, token: s.seq})
	s.ensureLoop()
	return nil, true
}

// Resolved returns the fetched value of lazy attribute d, if one is held.
// It never schedules a fetch.
func (s *PropertySource) Resolved(d *property.Descriptor) (interface{}, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.resolved[d.ID]
	return v, ok
}

// Value is Read with the Pending sentinel in place of the pending flag
func (s *PropertySource) Value(d *property.Descriptor) interface{} {
	v, pending := s.Read(d)
	if pending {
		return Pending
	}
	return v
}

func (s *PropertySource) readSync(d *property.Descriptor) interface{} {
	if !d.Lazy {
		s.mu.Lock()
		v, ok := s.eager[d.ID]
		s.mu.Unlock()
		if ok {
			return v
		}
	}

	v, err := d.Value(context.Background(), s.target)
	if err != nil {
		s.logger.Warn("attribute read failed",
			zap.String("source", s.id.String()),
			zap.String("attribute", d.ID),
			zap.Error(err))
		return err.Error()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.resolved, d.ID)
	delete(s.queued, d.ID)
	s.eager[d.ID] = v
	return v
}

// Store records value as the current value of d, replacing any memoized or
// in-flight value. The editor calls it after a successful write.
func (s *PropertySource) Store(d *property.Descriptor, value interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.queued, d.ID)
	if d.Lazy && !d.Cached(s.target) {
		delete(s.eager, d.ID)
		s.resolved[d.ID] = value
		return
	}
	delete(s.resolved, d.ID)
	s.eager[d.ID] = value
}

// Invalidate drops the cached value of id and of every attribute nested
// under it, so the next Read fetches them again.
func (s *PropertySource) Invalidate(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prefix := id + "."
	matches := func(key string) bool {
		return key == id || strings.HasPrefix(key, prefix)
	}
	for key := range s.eager {
		if matches(key) {
			delete(s.eager, key)
		}
	}
	for key := range s.resolved {
		if matches(key) {
			delete(s.resolved, key)
		}
	}
	for key := range s.queued {
		if matches(key) {
			delete(s.queued, key)
		}
	}
}

// InvalidateAll drops every cached value
func (s *PropertySource) InvalidateAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.eager = make(map[string]interface{})
	s.resolved = make(map[string]interface{})
	s.queued = make(map[string]uint64)
}

// Cancel aborts the running fetch loop. Attributes that were waiting or in
// flight stay absent and their listener is told the fetch did not complete;
// a later Read schedules them again.
func (s *PropertySource) Cancel() {
	s.mu.Lock()
	dropped := s.dropPending()
	if s.loop != nil {
		s.loop.cancel()
	}
	listener := s.listener
	s.mu.Unlock()

	for _, d := range dropped {
		s.notify(listener, d, nil, false)
	}
}

// Close cancels background work. Lazy attributes that have not resolved
// stay pending.
func (s *PropertySource) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.Cancel()
}

// Wait blocks until the fetch loop is idle or ctx is done
func (s *PropertySource) Wait(ctx context.Context) error {
	s.mu.Lock()
	if s.loop == nil {
		s.mu.Unlock()
		return nil
	}
	idle := s.loop.idle
	s.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Loading reports whether a fetch loop is active
func (s *PropertySource) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loop != nil
}

func (s *PropertySource) notify(listener Listener, d *property.Descriptor, value interface{}, completed bool) {
	if listener == nil {
		return
	}
	target := s.target
	s.dispatcher.Dispatch(func() {
		listener(target, d, value, completed)
	})
}
