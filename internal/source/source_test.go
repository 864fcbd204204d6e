package source

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/propsheet/internal/property"
)

type sampleDriver struct {
	name    string
	version string
	block   chan struct{}
	calls   atomic.Int32
	cached  atomic.Bool
}

func (d *sampleDriver) PropertyMeta() []property.Meta {
	return []property.Meta{
		{ID: "name", Order: property.Ord(1), Editable: true},
		{ID: "version", Order: property.Ord(2)},
		{ID: "broken", Order: property.Ord(3)},
		{ID: "unstable", Order: property.Ord(4)},
		{ID: "build", Order: property.Ord(5), CacheValidator: func(target interface{}, _ string) bool {
			return target.(*sampleDriver).cached.Load()
		}},
	}
}

func (d *sampleDriver) Name() string        { return d.name }
func (d *sampleDriver) SetName(name string) { d.name = name }

func (d *sampleDriver) Version(ctx context.Context) (string, error) {
	d.calls.Add(1)
	if d.block != nil {
		select {
		case <-d.block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return d.version, nil
}

func (d *sampleDriver) Broken(ctx context.Context) (string, error) {
	return "", errors.New("connection refused")
}

func (d *sampleDriver) Unstable(ctx context.Context) string {
	panic("boom")
}

func (d *sampleDriver) Build(ctx context.Context) (int, error) {
	d.calls.Add(1)
	return 42, nil
}

// manualRunner queues tasks until the test runs them
type manualRunner struct {
	mu      sync.Mutex
	fns     []func()
	started int
}

func (r *manualRunner) Go(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fns = append(r.fns, fn)
	r.started++
}

func (r *manualRunner) runAll() {
	for {
		r.mu.Lock()
		if len(r.fns) == 0 {
			r.mu.Unlock()
			return
		}
		fn := r.fns[0]
		r.fns = r.fns[1:]
		r.mu.Unlock()
		fn()
	}
}

func (r *manualRunner) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.started
}

type event struct {
	id        string
	value     interface{}
	completed bool
}

type recorder struct {
	mu     sync.Mutex
	events []event
	ch     chan event
}

func newRecorder() *recorder {
	return &recorder{ch: make(chan event, 32)}
}

func (r *recorder) listen(_ interface{}, d *property.Descriptor, value interface{}, completed bool) {
	e := event{id: d.ID, value: value, completed: completed}
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
	r.ch <- e
}

func (r *recorder) next(t *testing.T) event {
	t.Helper()
	select {
	case e := <-r.ch:
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("listener was not called")
		return event{}
	}
}

func (r *recorder) all() []event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]event, len(r.events))
	copy(out, r.events)
	return out
}

func newDriverSource(t *testing.T, d *sampleDriver, opts ...Option) (*PropertySource, []*property.Descriptor) {
	t.Helper()
	descriptors := property.NewExtractor().Extract(d, nil)
	require.Len(t, descriptors, 5)
	s := New(d, descriptors, opts...)
	t.Cleanup(s.Close)
	return s, descriptors
}

func TestRead_DriverScenario(t *testing.T) {
	rec := newRecorder()
	s, descriptors := newDriverSource(t, &sampleDriver{name: "pg", version: "9.6"}, WithListener(rec.listen))
	name, version := descriptors[0], descriptors[1]

	v, pending := s.Read(name)
	assert.False(t, pending)
	assert.Equal(t, "pg", v)

	v, pending = s.Read(version)
	assert.True(t, pending)
	assert.Nil(t, v)

	e := rec.next(t)
	assert.Equal(t, event{id: "version", value: "9.6", completed: true}, e)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Wait(ctx))

	v, pending = s.Read(version)
	assert.False(t, pending)
	assert.Equal(t, "9.6", v)
	assert.Len(t, rec.all(), 1, "listener must fire exactly once")
}

func TestRead_LazyNeverResolvedOnCaller(t *testing.T) {
	runner := &manualRunner{}
	d := &sampleDriver{version: "9.6"}
	s, descriptors := newDriverSource(t, d, WithRunner(runner))
	version := descriptors[1]

	for i := 0; i < 3; i++ {
		v, pending := s.Read(version)
		assert.True(t, pending)
		assert.Nil(t, v)
	}
	assert.Equal(t, int32(0), d.calls.Load())
	assert.Equal(t, Pending, s.Value(version))

	runner.runAll()
	assert.Equal(t, int32(1), d.calls.Load())
	assert.Equal(t, "9.6", s.Value(version))
	assert.False(t, s.Loading())
}

func TestRead_CoalescesIntoOneLoop(t *testing.T) {
	runner := &manualRunner{}
	rec := newRecorder()
	s, descriptors := newDriverSource(t, &sampleDriver{version: "9.6"},
		WithRunner(runner), WithListener(rec.listen))

	for _, d := range descriptors[1:4] {
		_, pending := s.Read(d)
		assert.True(t, pending)
	}
	assert.Equal(t, 1, runner.count())

	runner.runAll()
	assert.Equal(t, 1, runner.count())
	assert.Len(t, rec.all(), 3)

	// a fresh read after the loop went idle starts a new one
	s.Invalidate("version")
	_, pending := s.Read(descriptors[1])
	assert.True(t, pending)
	assert.Equal(t, 2, runner.count())
	runner.runAll()
}

func TestRead_RearmsForItemsQueuedDuringBatch(t *testing.T) {
	var started atomic.Int32
	runner := RunnerFunc(func(fn func()) {
		started.Add(1)
		go fn()
	})
	d := &sampleDriver{version: "9.6", block: make(chan struct{})}
	rec := newRecorder()
	s, descriptors := newDriverSource(t, d, WithRunner(runner), WithListener(rec.listen))

	_, pending := s.Read(descriptors[1])
	require.True(t, pending)
	require.Eventually(t, func() bool { return d.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	_, pending = s.Read(descriptors[2])
	require.True(t, pending)
	close(d.block)

	ids := map[string]bool{rec.next(t).id: true, rec.next(t).id: true}
	assert.Equal(t, map[string]bool{"version": true, "broken": true}, ids)
	assert.Equal(t, int32(1), started.Load())
}

func TestRead_FailureStoresErrorText(t *testing.T) {
	runner := &manualRunner{}
	rec := newRecorder()
	s, descriptors := newDriverSource(t, &sampleDriver{}, WithRunner(runner), WithListener(rec.listen))
	broken, unstable := descriptors[2], descriptors[3]

	s.Read(broken)
	s.Read(unstable)
	runner.runAll()

	v, pending := s.Read(broken)
	assert.False(t, pending)
	assert.Contains(t, v, "connection refused")

	v, pending = s.Read(unstable)
	assert.False(t, pending)
	assert.Contains(t, v, "boom")

	for _, e := range rec.all() {
		assert.True(t, e.completed)
	}
}

func TestCancel_LeavesValueAbsent(t *testing.T) {
	d := &sampleDriver{version: "9.6", block: make(chan struct{})}
	rec := newRecorder()
	s, descriptors := newDriverSource(t, d, WithListener(rec.listen))
	version := descriptors[1]

	_, pending := s.Read(version)
	require.True(t, pending)
	require.Eventually(t, func() bool { return d.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	s.Cancel()
	e := rec.next(t)
	assert.Equal(t, "version", e.id)
	assert.False(t, e.completed)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Wait(ctx))

	// the next read schedules the fetch again
	close(d.block)
	_, pending = s.Read(version)
	assert.True(t, pending)
	e = rec.next(t)
	assert.True(t, e.completed)
	assert.Equal(t, "9.6", e.value)
}

func TestCancel_DropsWaitingItems(t *testing.T) {
	runner := &manualRunner{}
	rec := newRecorder()
	d := &sampleDriver{version: "9.6"}
	s, descriptors := newDriverSource(t, d, WithRunner(runner), WithListener(rec.listen))

	s.Read(descriptors[1])
	s.Cancel()
	assert.Equal(t, []event{{id: "version"}}, rec.all())

	runner.runAll()
	assert.Equal(t, int32(0), d.calls.Load())

	_, pending := s.Read(descriptors[1])
	assert.True(t, pending)
	runner.runAll()
	assert.Equal(t, "9.6", s.Value(descriptors[1]))
}

func TestRead_CacheValidator(t *testing.T) {
	runner := &manualRunner{}
	d := &sampleDriver{}
	s, descriptors := newDriverSource(t, d, WithRunner(runner))
	build := descriptors[4]
	require.True(t, build.Lazy)

	d.cached.Store(true)
	v, pending := s.Read(build)
	assert.False(t, pending, "cached lazy values are read synchronously")
	assert.Equal(t, 42, v)
	assert.Equal(t, 0, runner.count())

	d.cached.Store(false)
	_, pending = s.Read(build)
	assert.True(t, pending, "a stale validator forces a re-fetch")
	runner.runAll()
	assert.Equal(t, 42, s.Value(build))
	assert.Equal(t, int32(2), d.calls.Load())
}

type serverInfo struct {
	Version string `prop:"order=1"`
}

type server struct {
	fresh   atomic.Bool
	fetches atomic.Int32
}

func (s *server) PropertyMeta() []property.Meta {
	return []property.Meta{
		{ID: "info", Group: true, CacheValidator: func(target interface{}, _ string) bool {
			return target.(*server).fresh.Load()
		}},
	}
}

func (s *server) Info(ctx context.Context) (*serverInfo, error) {
	s.fetches.Add(1)
	return &serverInfo{Version: "16.1"}, nil
}

func TestRead_GroupValidatorForcesChildRefetch(t *testing.T) {
	runner := &manualRunner{}
	target := &server{}
	descriptors := property.NewExtractor().Extract(target, nil)
	child := property.Find(descriptors, "info.version")
	require.NotNil(t, child)
	require.True(t, child.Lazy)

	s := New(target, descriptors, WithRunner(runner))
	defer s.Close()

	target.fresh.Store(true)
	v, pending := s.Read(child)
	assert.False(t, pending)
	assert.Equal(t, "16.1", v)

	target.fresh.Store(false)
	_, pending = s.Read(child)
	assert.True(t, pending)
	runner.runAll()
	assert.Equal(t, "16.1", s.Value(child))
	assert.Equal(t, int32(2), target.fetches.Load())
}

func TestStoreAndInvalidate(t *testing.T) {
	runner := &manualRunner{}
	d := &sampleDriver{name: "pg", version: "9.6"}
	s, descriptors := newDriverSource(t, d, WithRunner(runner))
	name, version := descriptors[0], descriptors[1]

	assert.Equal(t, "pg", s.Value(name))
	d.name = "changed behind our back"
	assert.Equal(t, "pg", s.Value(name), "eager values are memoized")

	s.Store(name, "pg2")
	assert.Equal(t, "pg2", s.Value(name))

	s.Invalidate("name")
	assert.Equal(t, "changed behind our back", s.Value(name))

	s.Store(version, "10")
	assert.Equal(t, "10", s.Value(version))

	s.InvalidateAll()
	assert.Equal(t, Pending, s.Value(version))
	runner.runAll()
	assert.Equal(t, "9.6", s.Value(version))
}

func TestInvalidate_SupersedesInFlightFetch(t *testing.T) {
	d := &sampleDriver{version: "9.6", block: make(chan struct{})}
	rec := newRecorder()
	s, descriptors := newDriverSource(t, d, WithListener(rec.listen))

	s.Read(descriptors[1])
	require.Eventually(t, func() bool { return d.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	s.Invalidate("version")
	close(d.block)

	e := rec.next(t)
	assert.False(t, e.completed)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Wait(ctx))
	assert.Equal(t, Pending, s.Value(descriptors[1]))
}

func TestEditableValue(t *testing.T) {
	hosts := []string{"a", "b", "c"}
	s := New(hosts, property.NewExtractor().Extract(hosts, nil))
	defer s.Close()

	assert.Equal(t, "[3]", s.EditableValue())
	assert.Len(t, s.Descriptors(), 3)
	assert.NotEqual(t, s.ID(), New(hosts, nil).ID())
}
