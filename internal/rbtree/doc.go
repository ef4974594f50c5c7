// SPDX-FileCopyrightText: 2024 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package rbtree provides a generic red-black tree.
//
// The tree is intrusive in spirit: it only maintains the node links and
// colors. Ordering is up to the caller, who walks the tree from [Tree.Root]
// to find the empty child slot for a new node, places it with [Tree.Link] and
// then calls [Tree.Insert] to restore the red-black properties.
//
// None of the operations allocate. A [Tree] is not safe for concurrent use.
package rbtree
