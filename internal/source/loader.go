package source

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/conduit-lang/propsheet/internal/property"
)

// loop is the state of one background fetch loop. idle is closed when the
// loop stops because the queue ran dry.
type loop struct {
	ctx    context.Context
	cancel context.CancelFunc
	idle   chan struct{}
}

// ensureLoop starts the fetch loop unless one is active. Callers hold s.mu.
func (s *PropertySource) ensureLoop() {
	if s.loop != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	l := &loop{ctx: ctx, cancel: cancel, idle: make(chan struct{})}
	s.loop = l
	s.runner.Go(func() { s.drain(l) })
}

// drain fetches pending attributes batch by batch until the queue is empty
func (s *PropertySource) drain(l *loop) {
	for {
		s.mu.Lock()
		if l.ctx.Err() != nil {
			s.rearm(l)
			s.mu.Unlock()
			return
		}
		batch := s.takeBatch()
		if len(batch) == 0 {
			s.loop = nil
			l.cancel()
			close(l.idle)
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()

		s.logger.Debug("fetching lazy attributes",
			zap.String("source", s.id.String()),
			zap.Int("count", len(batch)))

		for _, item := range batch {
			if l.ctx.Err() != nil {
				s.abandon(item)
				continue
			}
			value := s.fetch(l.ctx, item.d)
			if l.ctx.Err() != nil {
				s.abandon(item)
				continue
			}
			s.complete(item, value)
		}
	}
}

// rearm replaces a cancelled loop. Items queued after the cancellation get
// a fresh loop; otherwise the source goes idle. Callers hold s.mu.
func (s *PropertySource) rearm(l *loop) {
	if len(s.pending) > 0 && !s.closed {
		ctx, cancel := context.WithCancel(context.Background())
		next := &loop{ctx: ctx, cancel: cancel, idle: l.idle}
		s.loop = next
		s.runner.Go(func() { s.drain(next) })
		return
	}
	s.loop = nil
	close(l.idle)
}

// takeBatch removes the waiting items from the queue, skipping those that
// were invalidated or re-queued since. Callers hold s.mu.
func (s *PropertySource) takeBatch() []pendingItem {
	batch := make([]pendingItem, 0, len(s.pending))
	for _, item := range s.pending {
		if s.queued[item.d.ID] == item.token {
			batch = append(batch, item)
		}
	}
	s.pending = nil
	return batch
}

// fetch invokes the lazy accessor. Failures become the error text so that
// the attribute never stays unresolved.
func (s *PropertySource) fetch(ctx context.Context, d *property.Descriptor) (value interface{}) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("lazy attribute panicked",
				zap.String("attribute", d.ID),
				zap.Any("panic", r))
			value = fmt.Sprintf("panic: %v", r)
		}
	}()

	v, err := d.Value(ctx, s.target)
	if err != nil {
		s.logger.Warn("lazy attribute fetch failed",
			zap.String("source", s.id.String()),
			zap.String("attribute", d.ID),
			zap.Error(err))
		return err.Error()
	}
	return v
}

func (s *PropertySource) complete(item pendingItem, value interface{}) {
	s.mu.Lock()
	if s.queued[item.d.ID] != item.token {
		listener := s.listener
		s.mu.Unlock()
		s.notify(listener, item.d, nil, false)
		return
	}
	delete(s.queued, item.d.ID)
	s.resolved[item.d.ID] = value
	listener := s.listener
	s.mu.Unlock()

	s.notify(listener, item.d, value, true)
}

func (s *PropertySource) abandon(item pendingItem) {
	s.mu.Lock()
	if s.queued[item.d.ID] == item.token {
		delete(s.queued, item.d.ID)
	}
	listener := s.listener
	s.mu.Unlock()

	s.notify(listener, item.d, nil, false)
}

// dropPending clears the waiting queue and returns the dropped descriptors.
// Callers hold s.mu.
func (s *PropertySource) dropPending() []*property.Descriptor {
	var dropped []*property.Descriptor
	for _, item := range s.pending {
		if s.queued[item.d.ID] == item.token {
			delete(s.queued, item.d.ID)
			dropped = append(dropped, item.d)
		}
	}
	s.pending = nil
	return dropped
}
