// Package notify fans out object-update notifications to subscribers on a
// single consumer goroutine.
package notify

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/conduit-lang/propsheet/internal/property"
)

// Event reports that an attribute of a target changed
type Event struct {
	Target     interface{}
	Descriptor *property.Descriptor
}

// Handler processes an event
type Handler interface {
	HandleEvent(ctx context.Context, evt Event) error
}

// HandlerFunc adapts a plain function to the Handler interface
type HandlerFunc func(ctx context.Context, evt Event) error

// HandleEvent calls f
func (f HandlerFunc) HandleEvent(ctx context.Context, evt Event) error {
	return f(ctx, evt)
}

type namedHandler struct {
	name    string
	handler Handler
}

// Bus is an in-process event bus. Events go through a buffered channel and
// are dispatched to every subscriber in order by one consumer goroutine.
type Bus struct {
	mu          sync.RWMutex
	subscribers []namedHandler
	events      chan Event
	done        chan struct{}
	logger      *zap.Logger
	closed      bool
}

// New creates a bus with the given buffer size
func New(bufSize int, logger *zap.Logger) *Bus {
	if bufSize < 1 {
		bufSize = 256
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{
		events: make(chan Event, bufSize),
		done:   make(chan struct{}),
		logger: logger,
	}
}

// Subscribe registers a named handler
func (b *Bus) Subscribe(name string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers = append(b.subscribers, namedHandler{name: name, handler: h})
}

// Notify publishes an update of d on target. It never blocks; when the
// buffer is full or the bus is stopped the event is dropped.
func (b *Bus) Notify(target interface{}, d *property.Descriptor) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		b.logger.Debug("bus stopped, dropping event", zap.String("attribute", d.ID))
		return
	}

	evt := Event{Target: target, Descriptor: d}
	select {
	case b.events <- evt:
	default:
		b.logger.Warn("notification buffer full, dropping event", zap.String("attribute", d.ID))
	}
}

// Start runs the consumer until ctx is cancelled or Stop is called
func (b *Bus) Start(ctx context.Context) {
	go func() {
		defer close(b.done)
		for {
			select {
			case evt, ok := <-b.events:
				if !ok {
					return
				}
				b.dispatch(ctx, evt)
			case <-ctx.Done():
				for {
					select {
					case evt, ok := <-b.events:
						if !ok {
							return
						}
						b.dispatch(ctx, evt)
					default:
						return
					}
				}
			}
		}
	}()
}

// Stop drains queued events and waits for the consumer to finish. Later
// notifications are dropped.
func (b *Bus) Stop() {
	b.mu.Lock()
	if !b.closed {
		b.closed = true
		close(b.events)
	}
	b.mu.Unlock()
	<-b.done
}

func (b *Bus) dispatch(ctx context.Context, evt Event) {
	b.mu.RLock()
	subs := b.subscribers
	b.mu.RUnlock()

	for _, s := range subs {
		if err := b.call(ctx, s, evt); err != nil {
			b.logger.Warn("notification handler failed",
				zap.String("handler", s.name),
				zap.String("attribute", evt.Descriptor.ID),
				zap.Error(err))
		}
	}
}

func (b *Bus) call(ctx context.Context, s namedHandler, evt Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("notification handler panicked",
				zap.String("handler", s.name),
				zap.Any("panic", r))
		}
	}()
	return s.handler.HandleEvent(ctx, evt)
}
