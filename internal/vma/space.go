// SPDX-FileCopyrightText: 2024 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package vma

import (
	"fmt"
	"iter"
	"log/slog"

	"github.com/aibor/kvmsandbox/internal/rbtree"
)

// Space is a virtual address space [Start, End). It owns all its [Area]s,
// which are indexed twice: by a red-black tree keyed by start address and by
// a doubly linked list in address order. Both views are always updated
// together.
type Space struct {
	start uint64
	end   uint64

	tree rbtree.Tree[*Area]
	head *Area

	destroyed bool
}

// New creates a new empty [Space] for the address range [start, end).
func New(start, end uint64) (*Space, error) {
	if start >= end {
		return nil, fmt.Errorf("%w: [%#x, %#x)", ErrInvalidRange, start, end)
	}

	return &Space{
		start: start,
		end:   end,
	}, nil
}

// Start returns the lowest address of the space.
func (s *Space) Start() uint64 {
	return s.start
}

// End returns the first address after the space.
func (s *Space) End() uint64 {
	return s.end
}

// Len returns the number of areas in the space.
func (s *Space) Len() int {
	return s.tree.Len()
}

// All returns an iterator over all areas in ascending address order.
func (s *Space) All() iter.Seq[*Area] {
	return func(yield func(*Area) bool) {
		for area := s.head; area != nil; area = area.next {
			if !yield(area) {
				return
			}
		}
	}
}

// Find returns the area with the lowest start address whose end is above
// addr. This is either the area containing addr or the first one above it.
// prev is the area right before the returned one. If there is no area above
// addr, area is nil and prev is the last area of the space.
func (s *Space) Find(addr uint64) (area, prev *Area) {
	node := s.tree.Root()

	for node != nil {
		candidate := node.Value
		if candidate.end > addr {
			area = candidate
			if candidate.start <= addr {
				break
			}

			node = node.Left()
		} else {
			node = node.Right()
		}
	}

	if area != nil {
		return area, area.prev
	}

	if last := s.tree.Last(); last != nil {
		prev = last.Value
	}

	return nil, prev
}

// Allocate places a new area of length bytes.
//
// With [FlagFixed] the area starts at addr. It fails with [ErrInvalidRange]
// if the range is empty or not within the space and with [ErrOverlap] if it
// intersects an existing area.
//
// Without [FlagFixed] addr is ignored. The free gaps are searched from the
// top of the space downwards and the area is placed at the highest possible
// address of the first gap that is large enough. It fails with [ErrNoSpace]
// if there is no such gap.
func (s *Space) Allocate(addr, length uint64, flags Flags, prot Prot) (*Area, error) {
	if s.destroyed {
		return nil, ErrDestroyed
	}

	if length == 0 {
		return nil, fmt.Errorf("%w: zero length", ErrInvalidRange)
	}

	if flags&FlagFixed != 0 {
		end := addr + length
		if end < addr || addr < s.start || end > s.end {
			return nil, fmt.Errorf("%w: [%#x, %#x+%#x) not within [%#x, %#x)",
				ErrInvalidRange, addr, addr, length, s.start, s.end)
		}
	} else {
		var err error

		addr, err = s.findGap(length)
		if err != nil {
			return nil, err
		}
	}

	link, err := s.findLink(addr, length)
	if err != nil {
		return nil, err
	}

	area := &Area{
		start: addr,
		end:   addr + length,
		flags: flags,
		prot:  prot,
	}
	area.node.Value = area

	s.linkList(area, link.prev)
	s.tree.Link(&area.node, link.parent, link.left)
	s.tree.Insert(&area.node)

	slog.Debug("Allocated virtual memory area",
		slog.String("area", area.String()))

	return area, nil
}

// findGap returns the highest start address for length bytes within the
// free gaps of the space, searching top-down: the gap above the last area,
// then the gaps between areas and finally the gap below the first area.
func (s *Space) findGap(length uint64) (uint64, error) {
	if length > s.end-s.start {
		return 0, fmt.Errorf("%w: length %#x exceeds space size %#x",
			ErrNoSpace, length, s.end-s.start)
	}

	var last *Area
	if node := s.tree.Last(); node != nil {
		last = node.Value
	}

	for area := last; area != nil; area = area.prev {
		gapStart := area.end

		gapEnd := s.end
		if area.next != nil {
			gapEnd = area.next.start
		}

		if gapEnd-gapStart >= length {
			return gapEnd - length, nil
		}
	}

	gapEnd := s.end
	if s.head != nil {
		gapEnd = s.head.start
	}

	if gapEnd-s.start >= length {
		return gapEnd - length, nil
	}

	return 0, fmt.Errorf("%w: no gap of %#x bytes", ErrNoSpace, length)
}

type link struct {
	parent *rbtree.Node[*Area]
	left   bool
	prev   *Area
}

// findLink finds the tree slot and the list predecessor for a new area
// [addr, addr+length). It fails if the range overlaps an existing area.
func (s *Space) findLink(addr, length uint64) (link, error) {
	var result link

	for node := s.tree.Root(); node != nil; {
		area := node.Value
		result.parent = node

		if area.end > addr {
			if area.start < addr+length {
				return link{}, fmt.Errorf("%w: [%#x, %#x) with %s",
					ErrOverlap, addr, addr+length, area)
			}

			result.left = true
			node = node.Left()
		} else {
			result.prev = area
			result.left = false
			node = node.Right()
		}
	}

	return result, nil
}

func (s *Space) linkList(area, prev *Area) {
	var next *Area

	area.prev = prev
	if prev != nil {
		next = prev.next
		prev.next = area
	} else {
		next = s.head
		s.head = area
	}

	area.next = next
	if next != nil {
		next.prev = area
	}
}

// Remove unlinks area from the space. The range becomes free for new
// allocations. It fails with [ErrInvalidRange] if area is not part of the
// space.
func (s *Space) Remove(area *Area) error {
	if s.destroyed {
		return ErrDestroyed
	}

	if found, _ := s.Find(area.start); found != area {
		return fmt.Errorf("%w: %s not in space", ErrInvalidRange, area)
	}

	if area.prev != nil {
		area.prev.next = area.next
	} else {
		s.head = area.next
	}

	if area.next != nil {
		area.next.prev = area.prev
	}

	s.tree.Delete(&area.node)
	area.prev = nil
	area.next = nil

	slog.Debug("Removed virtual memory area",
		slog.String("area", area.String()))

	return nil
}

// Destroy removes all areas from the space. The space can not be used for
// allocations afterwards.
func (s *Space) Destroy() {
	for s.head != nil {
		area := s.head
		s.head = area.next

		if s.head != nil {
			s.head.prev = nil
		}

		s.tree.Delete(&area.node)
		area.prev = nil
		area.next = nil
	}

	s.destroyed = true
}
