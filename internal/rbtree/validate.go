// SPDX-FileCopyrightText: 2024 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package rbtree

import "fmt"

// Validate checks all red-black tree properties and the ordering of the
// values according to cmp. It returns the first violation found.
func (t *Tree[T]) Validate(cmp func(a, b T) int) error {
	if t.root == nil {
		if t.len != 0 {
			return fmt.Errorf("%w: empty tree with length %d", ErrBrokenLink, t.len)
		}

		return nil
	}

	if t.root.parent != nil {
		return fmt.Errorf("%w: root has parent", ErrBrokenLink)
	}

	if t.root.color != Black {
		return ErrRootNotBlack
	}

	count, _, err := validateNode(t.root)
	if err != nil {
		return err
	}

	if count != t.len {
		return fmt.Errorf("%w: counted %d nodes, length %d", ErrBrokenLink, count, t.len)
	}

	var prev *Node[T]

	for node := range t.All() {
		if prev != nil && cmp(prev.Value, node.Value) >= 0 {
			return fmt.Errorf("%w: %v >= %v", ErrOrder, prev.Value, node.Value)
		}

		prev = node
	}

	return nil
}

// validateNode returns the number of nodes and the black height of the
// subtree.
func validateNode[T any](node *Node[T]) (int, int, error) {
	if node == nil {
		return 0, 1, nil
	}

	if !node.linked {
		return 0, 0, fmt.Errorf("%w: detached node in tree", ErrBrokenLink)
	}

	for _, child := range []*Node[T]{node.left, node.right} {
		if child == nil {
			continue
		}

		if child.parent != node {
			return 0, 0, fmt.Errorf("%w: child does not point to parent", ErrBrokenLink)
		}

		if node.color == Red && child.color == Red {
			return 0, 0, ErrRedRed
		}
	}

	leftCount, leftHeight, err := validateNode(node.left)
	if err != nil {
		return 0, 0, err
	}

	rightCount, rightHeight, err := validateNode(node.right)
	if err != nil {
		return 0, 0, err
	}

	if leftHeight != rightHeight {
		return 0, 0, fmt.Errorf("%w: %d != %d", ErrBlackHeight, leftHeight, rightHeight)
	}

	height := leftHeight
	if node.color == Black {
		height++
	}

	return leftCount + rightCount + 1, height, nil
}
