package source

import (
	"sync"

	"go.uber.org/zap"
)

// Dispatcher delivers listener callbacks on the goroutine the view layer
// expects them on.
type Dispatcher interface {
	Dispatch(fn func())
}

// Inline runs callbacks on the goroutine that completed the fetch
var Inline Dispatcher = inline{}

type inline struct{}

func (inline) Dispatch(fn func()) {
	fn()
}

// SerialDispatcher runs callbacks one at a time, in submission order, on a
// single consumer goroutine.
type SerialDispatcher struct {
	events chan func()
	done   chan struct{}
	logger *zap.Logger

	mu     sync.RWMutex
	closed bool
}

// NewSerialDispatcher creates and starts a dispatcher with the given buffer size
func NewSerialDispatcher(bufferSize int, logger *zap.Logger) *SerialDispatcher {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	d := &SerialDispatcher{
		events: make(chan func(), bufferSize),
		done:   make(chan struct{}),
		logger: logger,
	}
	go d.consume()
	return d
}

func (d *SerialDispatcher) consume() {
	defer close(d.done)
	for fn := range d.events {
		d.call(fn)
	}
}

func (d *SerialDispatcher) call(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("panic in listener", zap.Any("panic", r))
		}
	}()
	fn()
}

// Dispatch queues fn. Callbacks dispatched after Close are dropped.
func (d *SerialDispatcher) Dispatch(fn func()) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.logger.Debug("dispatcher closed, dropping callback")
		return
	}
	d.events <- fn
}

// Close stops accepting callbacks and waits until queued ones have run
func (d *SerialDispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		<-d.done
		return
	}
	d.closed = true
	close(d.events)
	d.mu.Unlock()

	<-d.done
}
