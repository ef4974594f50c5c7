// SPDX-FileCopyrightText: 2024 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package layout

import (
	"fmt"
	"log/slog"
)

// Page table entries are 8 bytes, so a table of one page holds
// 1 << (PageShift - entryShift) entries.
const entryShift = 3

// Defaults match a 4 KiB granule, 48 bit virtual and 36 bit physical
// addresses with 512 frames of guest memory.
const (
	DefaultPageShift = 12
	DefaultVABits    = 48
	DefaultPABits    = 36
	DefaultPhysPages = 0x200
)

// MaxPABits is the widest supported guest physical address. Wider output
// addresses use a different descriptor encoding (LPA and LPA2), which
// [Layout.PhysMask] does not implement.
const MaxPABits = 48

// Layout describes the guest memory configuration. It is supplied once by
// the VM owner and passed to every component that needs it.
type Layout struct {
	// PageShift is log2 of the page size. Supported are 12, 14 and 16.
	PageShift uint64

	// VABits is the width of guest virtual addresses.
	VABits uint64

	// PABits is the width of guest physical addresses.
	PABits uint64

	// Levels is the number of page table levels. If zero it is derived from
	// PageShift and VABits.
	Levels uint64

	// PhysBase is the frame number of the first frame of guest memory.
	PhysBase uint64

	// PhysPages is the number of frames of guest memory.
	PhysPages uint64
}

// Default returns the default [Layout].
func Default() Layout {
	return Layout{
		PageShift: DefaultPageShift,
		VABits:    DefaultVABits,
		PABits:    DefaultPABits,
		Levels:    LevelsFor(DefaultPageShift, DefaultVABits),
		PhysPages: DefaultPhysPages,
	}
}

// LevelsFor returns the minimal number of page table levels to translate
// vaBits wide addresses with pages of 1 << pageShift bytes.
func LevelsFor(pageShift, vaBits uint64) uint64 {
	if vaBits <= pageShift {
		return 1
	}

	bitsPerLevel := pageShift - entryShift

	return (vaBits - pageShift + bitsPerLevel - 1) / bitsPerLevel
}

// Validate checks the layout for consistency. A zero Levels is set to the
// derived value.
func (l *Layout) Validate() error {
	switch l.PageShift {
	case 12, 14, 16:
	default:
		return fmt.Errorf("%w: page shift %d", ErrInvalidLayout, l.PageShift)
	}

	if l.PABits < 32 || l.PABits > MaxPABits {
		return fmt.Errorf("%w: %d physical address bits", ErrInvalidLayout, l.PABits)
	}

	if l.VABits <= l.PageShift || l.VABits > 52 {
		return fmt.Errorf("%w: %d virtual address bits", ErrInvalidLayout, l.VABits)
	}

	required := LevelsFor(l.PageShift, l.VABits)
	if l.Levels == 0 {
		l.Levels = required
	}

	if l.Levels < required || l.Levels > 5 {
		return fmt.Errorf("%w: %d levels can not cover %d bits, need %d",
			ErrInvalidLayout, l.Levels, l.VABits, required)
	}

	if l.PhysPages == 0 {
		return fmt.Errorf("%w: no physical pages", ErrInvalidLayout)
	}

	physEnd := (l.PhysBase + l.PhysPages) << l.PageShift
	if physEnd>>l.PageShift != l.PhysBase+l.PhysPages || physEnd > 1<<l.PABits {
		return fmt.Errorf("%w: physical memory exceeds %d bits",
			ErrInvalidLayout, l.PABits)
	}

	return nil
}

// PageSize returns the page size in bytes.
func (l *Layout) PageSize() uint64 {
	return 1 << l.PageShift
}

// PageMask returns the mask of the offset bits within a page.
func (l *Layout) PageMask() uint64 {
	return l.PageSize() - 1
}

// IndexBits returns the number of virtual address bits resolved per page
// table level.
func (l *Layout) IndexBits() uint64 {
	return l.PageShift - entryShift
}

// EntriesPerTable returns the number of entries of a single table.
func (l *Layout) EntriesPerTable() uint64 {
	return 1 << l.IndexBits()
}

// LevelShift returns the virtual address shift of the given level. Level 0
// is the leaf level, Levels-1 the root.
func (l *Layout) LevelShift(level uint64) uint64 {
	return level*l.IndexBits() + l.PageShift
}

// Index returns the table index of virt at the given level.
func (l *Layout) Index(virt, level uint64) uint64 {
	return (virt >> l.LevelShift(level)) & (l.EntriesPerTable() - 1)
}

// PhysMask returns the mask of the output address bits of a page table entry:
// bits [PABits-1, PageShift].
func (l *Layout) PhysMask() uint64 {
	return (1<<l.PABits - 1) &^ l.PageMask()
}

// PhysStart returns the first guest physical address.
func (l *Layout) PhysStart() uint64 {
	return l.PhysBase << l.PageShift
}

// PoolSize returns the size of guest memory in bytes.
func (l *Layout) PoolSize() uint64 {
	return l.PhysPages << l.PageShift
}

// VirtEnd returns the first address after the guest virtual address space.
func (l *Layout) VirtEnd() uint64 {
	return 1 << l.VABits
}

// IsAligned returns true if addr is page aligned.
func (l *Layout) IsAligned(addr uint64) bool {
	return addr&l.PageMask() == 0
}

// AlignDown rounds addr down to a page boundary.
func (l *Layout) AlignDown(addr uint64) uint64 {
	return addr &^ l.PageMask()
}

// AlignUp rounds addr up to a page boundary.
func (l *Layout) AlignUp(addr uint64) uint64 {
	return (addr + l.PageMask()) &^ l.PageMask()
}

// Pages returns the number of pages needed for size bytes.
func (l *Layout) Pages(size uint64) uint64 {
	return l.AlignUp(size) >> l.PageShift
}

// LogValue implements [slog.LogValuer].
func (l Layout) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Uint64("page_size", l.PageSize()),
		slog.Uint64("va_bits", l.VABits),
		slog.Uint64("pa_bits", l.PABits),
		slog.Uint64("levels", l.Levels),
		slog.Uint64("phys_base", l.PhysBase),
		slog.Uint64("phys_pages", l.PhysPages),
	)
}
