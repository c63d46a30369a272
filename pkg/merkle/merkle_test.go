package merkle

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRootOrderIndependence(t *testing.T) {
	a := Root([]string{"h1", "h2", "h3"})
	b := Root([]string{"h3", "h1", "h2"})
	assert.Equal(t, a, b)
	assert.NotEmpty(t, a)
}

func TestRootEmpty(t *testing.T) {
	assert.Equal(t, "", Root(nil))
	assert.Equal(t, "", Root([]string{}))
}

func TestRootSingleLeaf(t *testing.T) {
	tree := Build([]string{"only"})
	assert.Equal(t, tree.Leaves[0], tree.Root)
	assert.Len(t, tree.Levels, 1)
}

func TestRootSensitivity(t *testing.T) {
	assert.NotEqual(t, Root([]string{"h1", "h2"}), Root([]string{"h1", "h3"}))
	assert.NotEqual(t, Root([]string{"h1"}), Root([]string{"h1", "h1"}))
}

func TestOddLeafCount(t *testing.T) {
	tree := Build([]string{"a", "b", "c"})
	assert.NotEmpty(t, tree.Root)
	// 3 leaves → 2 nodes → 1 root
	assert.Len(t, tree.Levels, 3)
	assert.Len(t, tree.Levels[1], 2)
}

func TestDuplicateWitnessesKept(t *testing.T) {
	tree := Build([]string{"w", "w"})
	assert.Len(t, tree.Leaves, 2)
	assert.Equal(t, tree.Leaves[0], tree.Leaves[1])
}
