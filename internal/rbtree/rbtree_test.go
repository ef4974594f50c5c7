// SPDX-FileCopyrightText: 2024 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package rbtree_test

import (
	"cmp"
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/aibor/kvmsandbox/internal/rbtree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func insert(tree *rbtree.Tree[int], value int) *rbtree.Node[int] {
	var (
		parent *rbtree.Node[int]
		left   bool
	)

	for node := tree.Root(); node != nil; {
		parent = node
		left = value < node.Value

		if left {
			node = node.Left()
		} else {
			node = node.Right()
		}
	}

	node := &rbtree.Node[int]{Value: value}
	tree.Link(node, parent, left)
	tree.Insert(node)

	return node
}

func values(tree *rbtree.Tree[int]) []int {
	result := []int{}
	for node := range tree.All() {
		result = append(result, node.Value)
	}

	return result
}

func TestTree_Empty(t *testing.T) {
	var tree rbtree.Tree[int]

	assert.True(t, tree.Empty())
	assert.Nil(t, tree.Root())
	assert.Nil(t, tree.First())
	assert.Nil(t, tree.Last())
	assert.Zero(t, tree.Len())
	assert.Empty(t, values(&tree))
	require.NoError(t, tree.Validate(cmp.Compare[int]))
}

func TestTree_Insert(t *testing.T) {
	tests := []struct {
		name   string
		values []int
	}{
		{
			name:   "single",
			values: []int{1},
		},
		{
			name:   "ascending",
			values: []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10},
		},
		{
			name:   "descending",
			values: []int{10, 9, 8, 7, 6, 5, 4, 3, 2, 1},
		},
		{
			name:   "zig zag left",
			values: []int{30, 10, 20},
		},
		{
			name:   "zig zag right",
			values: []int{10, 30, 20},
		},
		{
			name:   "mixed",
			values: []int{41, 38, 31, 12, 19, 8, 50, 1, 77, 43},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var tree rbtree.Tree[int]

			for _, value := range tt.values {
				node := insert(&tree, value)
				assert.False(t, node.Detached())
				require.NoError(t, tree.Validate(cmp.Compare[int]))
			}

			expected := slices.Sorted(slices.Values(tt.values))
			assert.Equal(t, expected, values(&tree))
			assert.Equal(t, len(tt.values), tree.Len())
			assert.Equal(t, rbtree.Black, tree.Root().Color())
		})
	}
}

func TestTree_Delete(t *testing.T) {
	tests := []struct {
		name   string
		values []int
		delete []int
	}{
		{
			name:   "root only",
			values: []int{1},
			delete: []int{1},
		},
		{
			name:   "leaf",
			values: []int{2, 1, 3},
			delete: []int{3},
		},
		{
			name:   "single child",
			values: []int{2, 1, 3, 4},
			delete: []int{3},
		},
		{
			name:   "two children successor is right child",
			values: []int{2, 1, 3, 4},
			delete: []int{2},
		},
		{
			name:   "two children successor deep in right subtree",
			values: []int{50, 20, 80, 10, 30, 70, 90, 60, 75},
			delete: []int{50},
		},
		{
			name:   "all ascending",
			values: []int{1, 2, 3, 4, 5, 6, 7, 8},
			delete: []int{1, 2, 3, 4, 5, 6, 7, 8},
		},
		{
			name:   "all descending",
			values: []int{1, 2, 3, 4, 5, 6, 7, 8},
			delete: []int{8, 7, 6, 5, 4, 3, 2, 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var tree rbtree.Tree[int]

			nodes := map[int]*rbtree.Node[int]{}
			for _, value := range tt.values {
				nodes[value] = insert(&tree, value)
			}

			remaining := slices.Clone(tt.values)

			for _, value := range tt.delete {
				node := nodes[value]
				tree.Delete(node)

				assert.True(t, node.Detached())
				assert.Nil(t, node.Next())
				assert.Nil(t, node.Prev())
				require.NoError(t, tree.Validate(cmp.Compare[int]))

				remaining = slices.DeleteFunc(remaining, func(v int) bool {
					return v == value
				})
				slices.Sort(remaining)
				assert.Equal(t, remaining, values(&tree))
			}
		})
	}
}

func TestTree_Random(t *testing.T) {
	rnd := rand.New(rand.NewPCG(42, 4711))

	for round := range 20 {
		var tree rbtree.Tree[int]

		live := map[int]*rbtree.Node[int]{}

		for range 300 {
			value := rnd.IntN(500)

			if node, exists := live[value]; exists {
				tree.Delete(node)
				delete(live, value)
			} else {
				live[value] = insert(&tree, value)
			}

			require.NoError(t, tree.Validate(cmp.Compare[int]), "round %d", round)
			require.Equal(t, len(live), tree.Len())
		}

		expected := make([]int, 0, len(live))
		for value := range live {
			expected = append(expected, value)
		}

		slices.Sort(expected)
		assert.Equal(t, expected, values(&tree))
	}
}

func TestNode_NextPrev(t *testing.T) {
	var tree rbtree.Tree[int]

	nodes := map[int]*rbtree.Node[int]{}
	for _, value := range []int{40, 20, 60, 10, 30, 50, 70, 25, 35} {
		nodes[value] = insert(&tree, value)
	}

	ordered := []int{10, 20, 25, 30, 35, 40, 50, 60, 70}

	for idx, value := range ordered {
		node := nodes[value]

		if idx+1 < len(ordered) {
			require.NotNil(t, node.Next())
			assert.Equal(t, ordered[idx+1], node.Next().Value)
		} else {
			assert.Nil(t, node.Next())
		}

		if idx > 0 {
			require.NotNil(t, node.Prev())
			assert.Equal(t, ordered[idx-1], node.Prev().Value)
		} else {
			assert.Nil(t, node.Prev())
		}
	}

	assert.Equal(t, 10, tree.First().Value)
	assert.Equal(t, 70, tree.Last().Value)

	backward := []int{}
	for node := range tree.Backward() {
		backward = append(backward, node.Value)
	}

	slices.Reverse(ordered)
	assert.Equal(t, ordered, backward)
}

func TestTree_AllDeleteWhileIterating(t *testing.T) {
	var tree rbtree.Tree[int]

	for value := range 32 {
		insert(&tree, value)
	}

	for node := range tree.All() {
		if node.Value%2 == 0 {
			tree.Delete(node)
		}
	}

	require.NoError(t, tree.Validate(cmp.Compare[int]))
	assert.Equal(t, 16, tree.Len())

	for _, value := range values(&tree) {
		assert.Equal(t, 1, value%2)
	}
}

func TestTree_Replace(t *testing.T) {
	var tree rbtree.Tree[int]

	nodes := map[int]*rbtree.Node[int]{}
	for _, value := range []int{2, 1, 3} {
		nodes[value] = insert(&tree, value)
	}

	old := nodes[2]
	color := old.Color()
	replacement := &rbtree.Node[int]{Value: 2}

	tree.Replace(old, replacement)

	assert.True(t, old.Detached())
	assert.False(t, replacement.Detached())
	assert.Equal(t, color, replacement.Color())
	assert.Same(t, replacement, tree.Root())
	assert.Same(t, replacement, nodes[1].Parent())
	assert.Same(t, replacement, nodes[3].Parent())
	require.NoError(t, tree.Validate(cmp.Compare[int]))
}

func TestTree_Clear(t *testing.T) {
	var tree rbtree.Tree[int]

	nodes := []*rbtree.Node[int]{}
	for value := range 10 {
		nodes = append(nodes, insert(&tree, value))
	}

	tree.Clear()

	assert.True(t, tree.Empty())
	assert.Zero(t, tree.Len())

	for _, node := range nodes {
		assert.True(t, node.Detached())
	}
}

func TestTree_Validate(t *testing.T) {
	var tree rbtree.Tree[int]

	for value := range 10 {
		insert(&tree, value)
	}

	reversed := func(a, b int) int { return cmp.Compare(b, a) }
	require.ErrorIs(t, tree.Validate(reversed), rbtree.ErrOrder)
}
