// Package columns keeps per-view column layouts (visibility, order, width)
// and persists them through a pluggable store with a debounced flush.
package columns

import (
	"context"
	"errors"
	"sort"
)

var (
	// ErrCorruptState is returned by stores whose persisted data cannot be decoded
	ErrCorruptState = errors.New("corrupt column state")

	// ErrUnsavedChanges is returned by Reload while updates are waiting to be flushed
	ErrUnsavedChanges = errors.New("column registry has unsaved changes")
)

// State is the persisted layout of one column
type State struct {
	Name    string `json:"name" yaml:"name"`
	Visible bool   `json:"visible" yaml:"visible"`
	Order   int    `json:"order" yaml:"order"`
	Width   int    `json:"width" yaml:"width"`
}

// Store persists the layouts of every view. Save rewrites the whole set.
type Store interface {
	Load(ctx context.Context) (map[string][]State, error)
	Save(ctx context.Context, views map[string][]State) error
}

func cloneStates(states []State) []State {
	if states == nil {
		return nil
	}
	out := make([]State, len(states))
	copy(out, states)
	return out
}

func cloneViews(views map[string][]State) map[string][]State {
	out := make(map[string][]State, len(views))
	for id, states := range views {
		out[id] = cloneStates(states)
	}
	return out
}

// sortedViewIDs returns the view ids of views in lexical order
func sortedViewIDs(views map[string][]State) []string {
	ids := make([]string, 0, len(views))
	for id := range views {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// MergeStates applies saved layouts to a default column set. Columns are
// matched by name, never by position; defaults without a saved layout keep
// their own values. The result is sorted by Order.
func MergeStates(defaults, saved []State) []State {
	byName := make(map[string]State, len(saved))
	for _, s := range saved {
		byName[s.Name] = s
	}

	out := cloneStates(defaults)
	for i := range out {
		if s, ok := byName[out[i].Name]; ok {
			out[i].Visible = s.Visible
			out[i].Order = s.Order
			out[i].Width = s.Width
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Order < out[j].Order
	})
	return out
}
