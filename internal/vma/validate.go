// SPDX-FileCopyrightText: 2024 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package vma

import (
	"cmp"
	"fmt"
)

// Validate checks the tree invariants and that tree order, list order and
// address order agree and all areas are disjoint and within the space.
func (s *Space) Validate() error {
	err := s.tree.Validate(func(a, b *Area) int {
		return cmp.Compare(a.start, b.start)
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInconsistent, err)
	}

	var (
		prev  *Area
		count int
	)

	node := s.tree.First()

	for area := range s.All() {
		if node == nil || node.Value != area {
			return fmt.Errorf("%w: list and tree order differ at %s", ErrInconsistent, area)
		}

		if area.prev != prev {
			return fmt.Errorf("%w: broken prev link at %s", ErrInconsistent, area)
		}

		if area.start >= area.end || area.start < s.start || area.end > s.end {
			return fmt.Errorf("%w: %s out of bounds", ErrInconsistent, area)
		}

		if prev != nil && prev.end > area.start {
			return fmt.Errorf("%w: %s overlaps %s", ErrInconsistent, prev, area)
		}

		prev = area
		node = node.Next()
		count++
	}

	if node != nil || count != s.tree.Len() {
		return fmt.Errorf("%w: list has %d areas, tree %d", ErrInconsistent, count, s.tree.Len())
	}

	return nil
}
