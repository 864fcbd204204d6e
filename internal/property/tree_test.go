package property

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildTree_Categories(t *testing.T) {
	descriptors := NewExtractor().Extract(&testConnection{}, nil)
	tree := BuildTree(descriptors, true)

	require.Len(t, tree.Groups, 2)
	assert.False(t, tree.Collapsed)
	assert.Equal(t, "Main", tree.Groups[0].Name)
	assert.Equal(t, "Extra", tree.Groups[1].Name)

	main := tree.Groups[0]
	require.Len(t, main.Items, 2)
	assert.Equal(t, "name", main.Items[0].Descriptor.ID)
	require.NotNil(t, main.Items[1].Group)
	assert.Equal(t, "Network", main.Items[1].Group.Name)
	assert.Len(t, main.Items[1].Group.Items, 2)

	roots := tree.Roots()
	require.Len(t, roots, 2)
	assert.Equal(t, "Main", roots[0].Group.Name)
}

func TestBuildTree_CollapseSingleRoot(t *testing.T) {
	descriptors := NewExtractor().Extract(&testDriver{}, nil)

	collapsed := BuildTree(descriptors, true)
	assert.True(t, collapsed.Collapsed)
	roots := collapsed.Roots()
	require.Len(t, roots, 2)
	assert.Equal(t, "name", roots[0].Descriptor.ID)

	expanded := BuildTree(descriptors, false)
	assert.False(t, expanded.Collapsed)
	roots = expanded.Roots()
	require.Len(t, roots, 1)
	assert.Equal(t, DefaultCategory, roots[0].Group.Name)
}

func TestTree_Walk(t *testing.T) {
	tree := BuildTree(NewExtractor().Extract(&testConnection{}, nil), true)

	var visited []string
	var depths []int
	tree.Walk(func(depth int, item Item) {
		if item.Group != nil {
			visited = append(visited, "#"+item.Group.Name)
		} else {
			visited = append(visited, item.Descriptor.ID)
		}
		depths = append(depths, depth)
	})

	assert.Equal(t, []string{
		"#Main", "name", "#Network", "network.host", "network.port",
		"#Extra", "comment", "#Stats", "stats.rows", "stats.size",
	}, visited)
	assert.Equal(t, []int{0, 1, 1, 2, 2, 0, 1, 1, 2, 2}, depths)
}

func TestFlatten(t *testing.T) {
	descriptors := NewExtractor().Extract(&testConnection{}, nil)
	assert.Equal(t, []string{
		"name", "comment", "network.host", "network.port", "stats.rows", "stats.size",
	}, ids(Flatten(descriptors)))
}
