// SPDX-FileCopyrightText: 2024 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package pgtable

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aibor/kvmsandbox/internal/layout"
)

// PhysMemory gives access to guest physical memory.
type PhysMemory interface {
	// Bytes returns the n bytes of guest memory starting at gpa.
	Bytes(gpa, n uint64) ([]byte, error)
}

// FrameAllocator hands out guest physical frames.
type FrameAllocator interface {
	// AllocPhys allocates pages contiguous frames and returns the guest
	// physical address of the first one.
	AllocPhys(pages uint64) (uint64, error)
}

// Builder creates and extends the page table of a guest.
type Builder struct {
	layout layout.Layout
	mem    PhysMemory
	frames FrameAllocator
	root   uint64
	tables int
}

// New allocates the root table and returns a [Builder] for it.
func New(l layout.Layout, mem PhysMemory, frames FrameAllocator) (*Builder, error) {
	b := &Builder{
		layout: l,
		mem:    mem,
		frames: frames,
	}

	root, err := b.newTable()
	if err != nil {
		return nil, fmt.Errorf("root table: %w", err)
	}

	b.root = root

	return b, nil
}

// Root returns the guest physical address of the root table.
func (b *Builder) Root() uint64 {
	return b.root
}

// Tables returns the number of table frames in use, root included.
func (b *Builder) Tables() int {
	return b.tables
}

// Map maps the virtual range [virt, virt+length) to the physical range
// starting at phys, one page at a time. Missing tables are allocated on the
// way. Existing leaf entries are overwritten.
//
// Addresses and length must be page aligned, otherwise [ErrMisaligned] is
// returned. Errors of the [FrameAllocator] are returned wrapped but unchanged
// in kind.
func (b *Builder) Map(phys, virt, length uint64) error {
	return b.mapRange(phys, virt, length, LeafAttrs)
}

// MapDevice works like [Builder.Map] but maps the range as device memory,
// so accesses are neither cached nor merged.
func (b *Builder) MapDevice(phys, virt, length uint64) error {
	return b.mapRange(phys, virt, length, DeviceLeafAttrs)
}

func (b *Builder) mapRange(phys, virt, length, attrs uint64) error {
	if err := b.checkRange(phys, virt, length); err != nil {
		return err
	}

	pageSize := b.layout.PageSize()

	for offset := uint64(0); offset < length; offset += pageSize {
		if err := b.mapPage(phys+offset, virt+offset, attrs); err != nil {
			return fmt.Errorf("map %#x: %w", virt+offset, err)
		}
	}

	slog.Debug("Mapped guest pages",
		slog.String("virt", fmt.Sprintf("%#x", virt)),
		slog.String("phys", fmt.Sprintf("%#x", phys)),
		slog.Uint64("pages", length>>b.layout.PageShift),
		slog.String("attrs", fmt.Sprintf("%#x", attrs)),
	)

	return nil
}

// Unmap clears the leaf entries of [virt, virt+length). Pages that are not
// mapped are skipped. Tables are kept, so their frames stay allocated.
func (b *Builder) Unmap(virt, length uint64) error {
	if err := b.checkVirt(virt, length); err != nil {
		return err
	}

	pageSize := b.layout.PageSize()

	for offset := uint64(0); offset < length; offset += pageSize {
		var leafTable uint64

		err := b.Walk(virt+offset, func(level, table uint64, _ Entry) {
			if level == 0 {
				leafTable = table
			}
		})
		if errors.Is(err, ErrNotMapped) {
			continue
		} else if err != nil {
			return fmt.Errorf("unmap %#x: %w", virt+offset, err)
		}

		if err := b.writeEntry(b.entryAddr(leafTable, virt+offset, 0), 0); err != nil {
			return fmt.Errorf("unmap %#x: %w", virt+offset, err)
		}
	}

	return nil
}

func (b *Builder) checkRange(phys, virt, length uint64) error {
	if !b.layout.IsAligned(phys) {
		return fmt.Errorf("%w: %#x", ErrMisaligned, phys)
	}

	if err := b.checkVirt(virt, length); err != nil {
		return err
	}

	physEnd := phys + length
	if physEnd < phys || physEnd > 1<<b.layout.PABits {
		return fmt.Errorf("%w: physical %#x+%#x exceeds %d bits",
			ErrInvalidRange, phys, length, b.layout.PABits)
	}

	return nil
}

func (b *Builder) checkVirt(virt, length uint64) error {
	for _, v := range []uint64{virt, length} {
		if !b.layout.IsAligned(v) {
			return fmt.Errorf("%w: %#x", ErrMisaligned, v)
		}
	}

	if length == 0 {
		return fmt.Errorf("%w: zero length", ErrInvalidRange)
	}

	virtEnd := virt + length
	if virtEnd < virt || virtEnd > b.layout.VirtEnd() {
		return fmt.Errorf("%w: virtual %#x+%#x exceeds %d bits",
			ErrInvalidRange, virt, length, b.layout.VABits)
	}

	return nil
}

// mapPage walks from the root table down to the leaf table of virt and
// writes the leaf entry.
func (b *Builder) mapPage(phys, virt, attrs uint64) error {
	table := b.root

	for level := b.layout.Levels - 1; level > 0; level-- {
		addr := b.entryAddr(table, virt, level)

		entry, err := b.readEntry(addr)
		if err != nil {
			return err
		}

		if !entry.Valid() {
			next, err := b.newTable()
			if err != nil {
				return fmt.Errorf("level %d table: %w", level-1, err)
			}

			entry = Entry(next | TableAttrs)
			if err := b.writeEntry(addr, entry); err != nil {
				return err
			}
		}

		table = entry.Addr(b.layout.PhysMask())
	}

	return b.writeEntry(b.entryAddr(table, virt, 0), Entry(phys|attrs))
}

func (b *Builder) newTable() (uint64, error) {
	gpa, err := b.frames.AllocPhys(1)
	if err != nil {
		return 0, err
	}

	data, err := b.mem.Bytes(gpa, b.layout.PageSize())
	if err != nil {
		return 0, err
	}

	clear(data)
	b.tables++

	return gpa, nil
}

func (b *Builder) entryAddr(table, virt, level uint64) uint64 {
	return table + b.layout.Index(virt, level)*entrySize
}

func (b *Builder) readEntry(addr uint64) (Entry, error) {
	data, err := b.mem.Bytes(addr, entrySize)
	if err != nil {
		return 0, err
	}

	return Entry(binary.LittleEndian.Uint64(data)), nil
}

func (b *Builder) writeEntry(addr uint64, entry Entry) error {
	data, err := b.mem.Bytes(addr, entrySize)
	if err != nil {
		return err
	}

	binary.LittleEndian.PutUint64(data, uint64(entry))

	return nil
}
