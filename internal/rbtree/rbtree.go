// SPDX-FileCopyrightText: 2024 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package rbtree

import "iter"

// Color is the color of a [Node].
type Color uint8

// Node colors.
const (
	Red Color = iota
	Black
)

// String returns the name of the color.
func (c Color) String() string {
	if c == Red {
		return "red"
	}

	return "black"
}

// Node is a single node of a [Tree]. It is supposed to be embedded into or
// referenced by the record it indexes. The zero value is a detached node.
type Node[T any] struct {
	Value T

	parent *Node[T]
	left   *Node[T]
	right  *Node[T]
	color  Color
	linked bool
}

// Color returns the current color of the node.
func (n *Node[T]) Color() Color {
	return n.color
}

// Parent returns the parent node or nil for the root node.
func (n *Node[T]) Parent() *Node[T] {
	return n.parent
}

// Left returns the left child node.
func (n *Node[T]) Left() *Node[T] {
	return n.left
}

// Right returns the right child node.
func (n *Node[T]) Right() *Node[T] {
	return n.right
}

// Detached returns true if the node is not linked into any tree.
func (n *Node[T]) Detached() bool {
	return !n.linked
}

func (n *Node[T]) reset() {
	n.parent = nil
	n.left = nil
	n.right = nil
	n.color = Red
	n.linked = false
}

// Next returns the in-order successor of the node or nil if it is the last
// node. It returns nil for detached nodes.
func (n *Node[T]) Next() *Node[T] {
	if !n.linked {
		return nil
	}

	if n.right != nil {
		return leftmost(n.right)
	}

	// Everything down and left is smaller. Walk up until we come from a left
	// child, that parent is the successor.
	node := n
	for node.parent != nil && node == node.parent.right {
		node = node.parent
	}

	return node.parent
}

// Prev returns the in-order predecessor of the node or nil if it is the
// first node. It returns nil for detached nodes.
func (n *Node[T]) Prev() *Node[T] {
	if !n.linked {
		return nil
	}

	if n.left != nil {
		return rightmost(n.left)
	}

	node := n
	for node.parent != nil && node == node.parent.left {
		node = node.parent
	}

	return node.parent
}

func leftmost[T any](node *Node[T]) *Node[T] {
	for node.left != nil {
		node = node.left
	}

	return node
}

func rightmost[T any](node *Node[T]) *Node[T] {
	for node.right != nil {
		node = node.right
	}

	return node
}

func isRed[T any](node *Node[T]) bool {
	return node != nil && node.color == Red
}

// Tree is a red-black tree. It does not know anything about the ordering of
// its values. Callers locate the insertion point themselves and use
// [Tree.Link] followed by [Tree.Insert].
//
// The zero value is an empty tree.
type Tree[T any] struct {
	root *Node[T]
	len  int
}

// Root returns the root node or nil if the tree is empty.
func (t *Tree[T]) Root() *Node[T] {
	return t.root
}

// Len returns the number of nodes in the tree.
func (t *Tree[T]) Len() int {
	return t.len
}

// Empty returns true if the tree has no nodes.
func (t *Tree[T]) Empty() bool {
	return t.root == nil
}

// First returns the leftmost node or nil if the tree is empty.
func (t *Tree[T]) First() *Node[T] {
	if t.root == nil {
		return nil
	}

	return leftmost(t.root)
}

// Last returns the rightmost node or nil if the tree is empty.
func (t *Tree[T]) Last() *Node[T] {
	if t.root == nil {
		return nil
	}

	return rightmost(t.root)
}

// All returns an iterator over all nodes in order.
func (t *Tree[T]) All() iter.Seq[*Node[T]] {
	return func(yield func(*Node[T]) bool) {
		for node := t.First(); node != nil; {
			// Fetch next first, so the yielded node may be deleted.
			next := node.Next()
			if !yield(node) {
				return
			}

			node = next
		}
	}
}

// Backward returns an iterator over all nodes in reverse order.
func (t *Tree[T]) Backward() iter.Seq[*Node[T]] {
	return func(yield func(*Node[T]) bool) {
		for node := t.Last(); node != nil; {
			prev := node.Prev()
			if !yield(node) {
				return
			}

			node = prev
		}
	}
}

// Link places the detached node into the empty child slot of parent. With a
// nil parent the node becomes the root of an empty tree. The node is colored
// red. [Tree.Insert] must be called afterwards to restore the tree
// properties.
func (t *Tree[T]) Link(node, parent *Node[T], left bool) {
	node.parent = parent
	node.left = nil
	node.right = nil
	node.color = Red
	node.linked = true

	switch {
	case parent == nil:
		t.root = node
	case left:
		parent.left = node
	default:
		parent.right = node
	}

	t.len++
}

// Insert rebalances the tree after node has been placed by [Tree.Link].
func (t *Tree[T]) Insert(node *Node[T]) {
	for {
		parent := node.parent
		if parent == nil {
			// Either the first node or we recursed up to the root.
			node.color = Black
			return
		}

		if parent.color == Black {
			return
		}

		// A red parent is never the root, so the grandparent exists.
		gparent := parent.parent

		if parent == gparent.left {
			uncle := gparent.right
			if isRed(uncle) {
				// Color flip, then recurse at the grandparent since its
				// parent might be red as well.
				uncle.color = Black
				parent.color = Black
				gparent.color = Red
				node = gparent

				continue
			}

			if node == parent.right {
				t.rotateLeft(parent)
				node, parent = parent, node
			}

			parent.color = Black
			gparent.color = Red
			t.rotateRight(gparent)

			return
		}

		uncle := gparent.left
		if isRed(uncle) {
			uncle.color = Black
			parent.color = Black
			gparent.color = Red
			node = gparent

			continue
		}

		if node == parent.left {
			t.rotateRight(parent)
			node, parent = parent, node
		}

		parent.color = Black
		gparent.color = Red
		t.rotateLeft(gparent)

		return
	}
}

// Delete removes the node from the tree and leaves it detached.
func (t *Tree[T]) Delete(node *Node[T]) {
	var (
		child   *Node[T]
		parent  *Node[T]
		removed Color
	)

	switch {
	case node.left == nil:
		child = node.right
		parent = node.parent
		removed = node.color
		t.transplant(node, child)
	case node.right == nil:
		child = node.left
		parent = node.parent
		removed = node.color
		t.transplant(node, child)
	default:
		// Two children: the successor is the leftmost node of the right
		// subtree. It has no left child and takes the place of node.
		successor := leftmost(node.right)
		removed = successor.color
		child = successor.right

		if successor.parent == node {
			parent = successor
		} else {
			parent = successor.parent
			t.transplant(successor, child)
			successor.right = node.right
			successor.right.parent = successor
		}

		t.transplant(node, successor)
		successor.left = node.left
		successor.left.parent = successor
		successor.color = node.color
	}

	if removed == Black {
		t.deleteRebalance(child, parent)
	}

	node.reset()
	t.len--
}

// deleteRebalance restores the black height after a black node has been
// removed above child. child may be nil, so parent is passed explicitly.
func (t *Tree[T]) deleteRebalance(child, parent *Node[T]) {
	node := child

	for node != t.root && !isRed(node) {
		// The sibling is never nil here: the removed black node left a
		// black height of at least one on the other side.
		if node == parent.left {
			sibling := parent.right
			if isRed(sibling) {
				sibling.color = Black
				parent.color = Red
				t.rotateLeft(parent)
				sibling = parent.right
			}

			if !isRed(sibling.left) && !isRed(sibling.right) {
				sibling.color = Red
				node = parent
				parent = node.parent

				continue
			}

			if !isRed(sibling.right) {
				sibling.left.color = Black
				sibling.color = Red
				t.rotateRight(sibling)
				sibling = parent.right
			}

			sibling.color = parent.color
			parent.color = Black
			sibling.right.color = Black
			t.rotateLeft(parent)
			node = t.root

			break
		}

		sibling := parent.left
		if isRed(sibling) {
			sibling.color = Black
			parent.color = Red
			t.rotateRight(parent)
			sibling = parent.left
		}

		if !isRed(sibling.left) && !isRed(sibling.right) {
			sibling.color = Red
			node = parent
			parent = node.parent

			continue
		}

		if !isRed(sibling.left) {
			sibling.right.color = Black
			sibling.color = Red
			t.rotateLeft(sibling)
			sibling = parent.left
		}

		sibling.color = parent.color
		parent.color = Black
		sibling.left.color = Black
		t.rotateRight(parent)
		node = t.root

		break
	}

	if node != nil {
		node.color = Black
	}
}

// Replace puts replacement into the position of old without rebalancing.
// Both must compare equal for the tree to stay ordered. old is left
// detached.
func (t *Tree[T]) Replace(old, replacement *Node[T]) {
	replacement.parent = old.parent
	replacement.left = old.left
	replacement.right = old.right
	replacement.color = old.color
	replacement.linked = true

	if old.left != nil {
		old.left.parent = replacement
	}

	if old.right != nil {
		old.right.parent = replacement
	}

	t.changeChild(old.parent, old, replacement)
	old.reset()
}

// Clear detaches all nodes and empties the tree.
func (t *Tree[T]) Clear() {
	resetSubtree(t.root)

	t.root = nil
	t.len = 0
}

func resetSubtree[T any](node *Node[T]) {
	if node == nil {
		return
	}

	left, right := node.left, node.right
	node.reset()

	resetSubtree(left)
	resetSubtree(right)
}

func (t *Tree[T]) changeChild(parent, old, replacement *Node[T]) {
	switch {
	case parent == nil:
		t.root = replacement
	case parent.left == old:
		parent.left = replacement
	default:
		parent.right = replacement
	}
}

func (t *Tree[T]) transplant(old, replacement *Node[T]) {
	t.changeChild(old.parent, old, replacement)

	if replacement != nil {
		replacement.parent = old.parent
	}
}

//	    n              r
//	   / \            / \
//	  a   r   -->    n   c
//	     / \        / \
//	    b   c      a   b
func (t *Tree[T]) rotateLeft(node *Node[T]) {
	right := node.right

	node.right = right.left
	if right.left != nil {
		right.left.parent = node
	}

	t.changeChild(node.parent, node, right)
	right.parent = node.parent
	right.left = node
	node.parent = right
}

//	      n          l
//	     / \        / \
//	    l   c -->  a   n
//	   / \            / \
//	  a   b          b   c
func (t *Tree[T]) rotateRight(node *Node[T]) {
	left := node.left

	node.left = left.right
	if left.right != nil {
		left.right.parent = node
	}

	t.changeChild(node.parent, node, left)
	left.parent = node.parent
	left.right = node
	node.parent = left
}
