package columns

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultFlushDelay is how long updates are collected before they are saved
const DefaultFlushDelay = 3 * time.Second

// RegistryOption configures a Registry
type RegistryOption func(*Registry)

// WithFlushDelay sets the debounce delay
func WithFlushDelay(delay time.Duration) RegistryOption {
	return func(r *Registry) {
		if delay > 0 {
			r.delay = delay
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) RegistryOption {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// Registry holds column layouts by view id. Updates are kept in memory and
// written to the store one flush delay after the first unsaved update.
type Registry struct {
	store  Store
	delay  time.Duration
	logger *zap.Logger

	// saveMu serializes writes to the store
	saveMu sync.Mutex

	mu        sync.Mutex
	views     map[string][]State
	dirty     bool
	scheduled bool
	timer     *time.Timer
	closed    bool
}

// NewRegistry creates a registry and loads the saved layouts. A store that
// cannot be read is logged and the registry starts empty.
func NewRegistry(ctx context.Context, store Store, opts ...RegistryOption) *Registry {
	r := &Registry{
		store:  store,
		delay:  DefaultFlushDelay,
		logger: zap.NewNop(),
		views:  make(map[string][]State),
	}
	for _, opt := range opts {
		opt(r)
	}

	views, err := store.Load(ctx)
	if err != nil {
		r.logger.Warn("failed to load column state, using defaults", zap.Error(err))
		return r
	}
	if views != nil {
		r.views = cloneViews(views)
	}
	return r
}

// Get returns a copy of the layout saved for viewID, or nil
func (r *Registry) Get(viewID string) []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return cloneStates(r.views[viewID])
}

// Views returns the ids of all views with a saved layout
func (r *Registry) Views() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return sortedViewIDs(r.views)
}

// Update replaces the layout of viewID and schedules a flush
func (r *Registry) Update(viewID string, states []State) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.views[viewID] = cloneStates(states)
	r.dirty = true
	r.scheduleLocked()
}

// Merge applies the saved layout of viewID to defaults
func (r *Registry) Merge(viewID string, defaults []State) []State {
	return MergeStates(defaults, r.Get(viewID))
}

// Pending reports whether updates are waiting to be flushed
func (r *Registry) Pending() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dirty
}

// scheduleLocked arms the flush timer unless one is armed. Callers hold r.mu.
func (r *Registry) scheduleLocked() {
	if r.scheduled || r.closed {
		return
	}
	r.scheduled = true
	r.timer = time.AfterFunc(r.delay, func() {
		if err := r.flush(context.Background()); err != nil {
			r.logger.Error("failed to save column state", zap.Error(err))
		}
	})
}

// Flush writes pending updates now
func (r *Registry) Flush(ctx context.Context) error {
	r.mu.Lock()
	if r.timer != nil && r.timer.Stop() {
		r.scheduled = false
	}
	r.mu.Unlock()
	return r.flush(ctx)
}

// flush snapshots the layouts and saves them. The scheduled flag is cleared
// before the snapshot so that updates arriving during a slow save arm a new
// timer; a failed save is retried after the flush delay.
func (r *Registry) flush(ctx context.Context) error {
	r.saveMu.Lock()
	defer r.saveMu.Unlock()

	r.mu.Lock()
	r.scheduled = false
	if !r.dirty {
		r.mu.Unlock()
		return nil
	}
	snapshot := cloneViews(r.views)
	r.dirty = false
	r.mu.Unlock()

	if err := r.store.Save(ctx, snapshot); err != nil {
		r.mu.Lock()
		r.dirty = true
		r.scheduleLocked()
		r.mu.Unlock()
		return err
	}

	r.logger.Debug("column state saved", zap.Int("views", len(snapshot)))
	return nil
}

// Reload replaces the in-memory layouts with the stored ones. It refuses
// while updates are unsaved.
func (r *Registry) Reload(ctx context.Context) error {
	r.mu.Lock()
	dirty := r.dirty
	r.mu.Unlock()
	if dirty {
		return ErrUnsavedChanges
	}

	views, err := r.store.Load(ctx)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.dirty {
		return ErrUnsavedChanges
	}
	r.views = cloneViews(views)
	return nil
}

// Close stops the timer and writes pending updates
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	if r.timer != nil {
		r.timer.Stop()
	}
	r.mu.Unlock()
	return r.flush(ctx)
}
