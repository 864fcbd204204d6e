package property

// Item is one node of an attribute tree: a leaf descriptor or a nested group
type Item struct {
	Descriptor *Descriptor
	Group      *Group
}

// Group is a named container of attribute tree items. Category groups have
// no descriptor; property groups carry the group accessor's descriptor.
type Group struct {
	Name       string
	Descriptor *Descriptor
	Items      []Item
}

// Tree is the hierarchical view of an extracted descriptor list
type Tree struct {
	Groups []*Group
	// Collapsed is set when a single category was folded into the root
	Collapsed bool
}

// BuildTree groups descriptors by category, in order of first appearance.
// With collapseSingleRoot, a tree with exactly one category is collapsed so
// that its items become the roots.
func BuildTree(descriptors []*Descriptor, collapseSingleRoot bool) *Tree {
	tree := &Tree{}
	byName := make(map[string]*Group)

	for _, d := range descriptors {
		name := d.CategoryName()
		g, ok := byName[name]
		if !ok {
			g = &Group{Name: name}
			byName[name] = g
			tree.Groups = append(tree.Groups, g)
		}
		g.Items = append(g.Items, itemOf(d))
	}

	tree.Collapsed = collapseSingleRoot && len(tree.Groups) == 1
	return tree
}

func itemOf(d *Descriptor) Item {
	if !d.group {
		return Item{Descriptor: d}
	}
	g := &Group{Name: d.DisplayName, Descriptor: d}
	for _, child := range d.children {
		g.Items = append(g.Items, itemOf(child))
	}
	return Item{Group: g}
}

// Roots returns the top-level items a view renders
func (t *Tree) Roots() []Item {
	if t.Collapsed {
		return t.Groups[0].Items
	}
	items := make([]Item, 0, len(t.Groups))
	for _, g := range t.Groups {
		items = append(items, Item{Group: g})
	}
	return items
}

// Walk visits every item depth first, reporting its nesting depth
func (t *Tree) Walk(fn func(depth int, item Item)) {
	walkItems(t.Roots(), 0, fn)
}

func walkItems(items []Item, depth int, fn func(depth int, item Item)) {
	for _, item := range items {
		fn(depth, item)
		if item.Group != nil {
			walkItems(item.Group.Items, depth+1, fn)
		}
	}
}
