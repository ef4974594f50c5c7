// SPDX-FileCopyrightText: 2024 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package rbtree

import "errors"

var (
	// ErrRootNotBlack is returned by [Tree.Validate] if the root is red.
	ErrRootNotBlack = errors.New("root is not black")

	// ErrRedRed is returned by [Tree.Validate] if a red node has a red child.
	ErrRedRed = errors.New("red node with red child")

	// ErrBlackHeight is returned by [Tree.Validate] if paths from a node to
	// its leaves have different numbers of black nodes.
	ErrBlackHeight = errors.New("black height mismatch")

	// ErrOrder is returned by [Tree.Validate] if in-order traversal is not
	// strictly ascending.
	ErrOrder = errors.New("nodes out of order")

	// ErrBrokenLink is returned by [Tree.Validate] if parent and child links
	// do not match, or the node count is off.
	ErrBrokenLink = errors.New("broken node link")
)
