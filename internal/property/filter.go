package property

// Filter decides whether an attribute is extracted
type Filter func(d *Descriptor) bool

// Apply returns the descriptors accepted by filter. Groups are kept when the
// filter accepts the group node itself; their children are filtered in turn.
func Apply(descriptors []*Descriptor, filter Filter) []*Descriptor {
	if filter == nil {
		out := make([]*Descriptor, len(descriptors))
		copy(out, descriptors)
		return out
	}

	out := make([]*Descriptor, 0, len(descriptors))
	for _, d := range descriptors {
		if !filter(d) {
			continue
		}
		if d.group {
			d = d.withChildren(Apply(d.children, filter))
		}
		out = append(out, d)
	}
	return out
}

// ShowExpensive hides expensive attributes unless show is set
func ShowExpensive(show bool) Filter {
	return func(d *Descriptor) bool {
		return show || !d.Expensive
	}
}

// Visible hides attributes flagged hidden
func Visible() Filter {
	return func(d *Descriptor) bool {
		return !d.Hidden
	}
}

// And accepts an attribute only if every filter does
func And(filters ...Filter) Filter {
	return func(d *Descriptor) bool {
		for _, f := range filters {
			if f != nil && !f(d) {
				return false
			}
		}
		return true
	}
}

// Flatten returns the leaf descriptors in display order, depth first
func Flatten(descriptors []*Descriptor) []*Descriptor {
	var out []*Descriptor
	for _, d := range descriptors {
		if d.group {
			out = append(out, Flatten(d.children)...)
			continue
		}
		out = append(out, d)
	}
	return out
}

// Find returns the descriptor with the given id, searching groups recursively
func Find(descriptors []*Descriptor, id string) *Descriptor {
	for _, d := range descriptors {
		if d.ID == id {
			return d
		}
		if d.group {
			if found := Find(d.children, id); found != nil {
				return found
			}
		}
	}
	return nil
}
