// SPDX-FileCopyrightText: 2024 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package pgtable

import "fmt"

// WalkFunc is called by [Builder.Walk] for every level visited. table is the
// guest physical address of the table at that level.
type WalkFunc func(level, table uint64, entry Entry)

// Walk resolves virt level by level from the root and calls fn for every
// entry on the way. It returns [ErrNotMapped] at the first invalid entry,
// after fn has seen it.
func (b *Builder) Walk(virt uint64, fn WalkFunc) error {
	if virt >= b.layout.VirtEnd() {
		return fmt.Errorf("%w: %#x exceeds %d bits", ErrInvalidRange, virt, b.layout.VABits)
	}

	table := b.root

	for level := b.layout.Levels; level > 0; level-- {
		entry, err := b.readEntry(b.entryAddr(table, virt, level-1))
		if err != nil {
			return err
		}

		if fn != nil {
			fn(level-1, table, entry)
		}

		if !entry.Valid() {
			return fmt.Errorf("%w: %#x at level %d", ErrNotMapped, virt, level-1)
		}

		table = entry.Addr(b.layout.PhysMask())
	}

	return nil
}

// Translate returns the guest physical address virt is mapped to and the
// attribute bits of its leaf entry.
func (b *Builder) Translate(virt uint64) (uint64, uint64, error) {
	var leaf Entry

	err := b.Walk(virt, func(level, _ uint64, entry Entry) {
		if level == 0 {
			leaf = entry
		}
	})
	if err != nil {
		return 0, 0, err
	}

	physMask := b.layout.PhysMask()
	phys := leaf.Addr(physMask) | virt&b.layout.PageMask()

	return phys, leaf.Attrs(physMask), nil
}
