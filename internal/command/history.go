package command

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

var (
	// ErrNothingToUndo is returned by Undo on an empty undo stack
	ErrNothingToUndo = errors.New("nothing to undo")

	// ErrNothingToRedo is returned by Redo on an empty redo stack
	ErrNothingToRedo = errors.New("nothing to redo")
)

// DefaultMaxDepth bounds the undo stack when no depth is configured
const DefaultMaxDepth = 100

// EventKind identifies a history change
type EventKind string

const (
	EventAdded   EventKind = "added"
	EventUpdated EventKind = "updated"
	EventUndone  EventKind = "undone"
	EventRedone  EventKind = "redone"
)

// Event describes a history change
type Event struct {
	Kind    EventKind
	Command Command
}

// Listener observes history changes
type Listener func(Event)

type entry struct {
	cmd Command
	r   Reflector
}

// History is an undo/redo stack implementing Context. Undo and redo cross
// a merge boundary before replaying.
type History struct {
	mu         sync.Mutex
	undo       []entry
	redo       []entry
	maxDepth   int
	listeners  []Listener
	boundaries []func()
	logger     *zap.Logger
}

// HistoryOption configures a History
type HistoryOption func(*History)

// WithMaxDepth bounds the undo stack; the oldest commands are dropped first
func WithMaxDepth(depth int) HistoryOption {
	return func(h *History) {
		if depth > 0 {
			h.maxDepth = depth
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) HistoryOption {
	return func(h *History) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// NewHistory creates an empty history
func NewHistory(opts ...HistoryOption) *History {
	h := &History{
		maxDepth: DefaultMaxDepth,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Add records cmd and clears the redo stack
func (h *History) Add(cmd Command, r Reflector) {
	h.mu.Lock()
	h.undo = append(h.undo, entry{cmd: cmd, r: r})
	if len(h.undo) > h.maxDepth {
		h.undo = h.undo[len(h.undo)-h.maxDepth:]
	}
	h.redo = nil
	h.mu.Unlock()

	h.logger.Debug("command added", zap.String("command", cmd.Label()), zap.Stringer("id", cmd.ID()))
	h.emit(Event{Kind: EventAdded, Command: cmd})
}

// Update reports that cmd was extended in place. A command that is no
// longer on the stack is recorded again.
func (h *History) Update(cmd Command, r Reflector) {
	h.mu.Lock()
	found := false
	for i := range h.undo {
		if h.undo[i].cmd.ID() == cmd.ID() {
			h.undo[i].r = r
			found = true
			break
		}
	}
	h.mu.Unlock()

	if !found {
		h.Add(cmd, r)
		return
	}
	h.emit(Event{Kind: EventUpdated, Command: cmd})
}

// Undo reverts the most recent command
func (h *History) Undo() error {
	h.mu.Lock()
	if len(h.undo) == 0 {
		h.mu.Unlock()
		return ErrNothingToUndo
	}
	top := h.undo[len(h.undo)-1]
	h.mu.Unlock()

	h.Boundary()
	if err := top.r.Undo(top.cmd); err != nil {
		return fmt.Errorf("undo %s: %w", top.cmd.Label(), err)
	}

	h.mu.Lock()
	if n := len(h.undo); n > 0 && h.undo[n-1].cmd.ID() == top.cmd.ID() {
		h.undo = h.undo[:n-1]
	}
	h.redo = append(h.redo, top)
	h.mu.Unlock()

	h.emit(Event{Kind: EventUndone, Command: top.cmd})
	return nil
}

// Redo reapplies the most recently undone command
func (h *History) Redo() error {
	h.mu.Lock()
	if len(h.redo) == 0 {
		h.mu.Unlock()
		return ErrNothingToRedo
	}
	top := h.redo[len(h.redo)-1]
	h.mu.Unlock()

	h.Boundary()
	if err := top.r.Redo(top.cmd); err != nil {
		return fmt.Errorf("redo %s: %w", top.cmd.Label(), err)
	}

	h.mu.Lock()
	if n := len(h.redo); n > 0 && h.redo[n-1].cmd.ID() == top.cmd.ID() {
		h.redo = h.redo[:n-1]
	}
	h.undo = append(h.undo, top)
	h.mu.Unlock()

	h.emit(Event{Kind: EventRedone, Command: top.cmd})
	return nil
}

// CanUndo reports whether there is a command to undo
func (h *History) CanUndo() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.undo) > 0
}

// CanRedo reports whether there is a command to redo
func (h *History) CanRedo() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.redo) > 0
}

// Last returns the most recent undoable command, or nil
func (h *History) Last() Command {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.undo) == 0 {
		return nil
	}
	return h.undo[len(h.undo)-1].cmd
}

// Commands returns the undoable commands, oldest first
func (h *History) Commands() []Command {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Command, len(h.undo))
	for i, e := range h.undo {
		out[i] = e.cmd
	}
	return out
}

// Clear drops both stacks
func (h *History) Clear() {
	h.mu.Lock()
	h.undo = nil
	h.redo = nil
	h.mu.Unlock()
	h.Boundary()
}

// Boundary ends the current merge window: the next edit starts a new command
func (h *History) Boundary() {
	h.mu.Lock()
	fns := make([]func(), len(h.boundaries))
	copy(fns, h.boundaries)
	h.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// OnBoundary registers fn to run whenever a merge boundary is crossed
func (h *History) OnBoundary(fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.boundaries = append(h.boundaries, fn)
}

// Subscribe registers a listener for history changes
func (h *History) Subscribe(l Listener) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.listeners = append(h.listeners, l)
}

func (h *History) emit(e Event) {
	h.mu.Lock()
	listeners := make([]Listener, len(h.listeners))
	copy(listeners, h.listeners)
	h.mu.Unlock()

	for _, l := range listeners {
		l(e)
	}
}
