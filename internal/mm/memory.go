// SPDX-FileCopyrightText: 2024 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package mm

import (
	"errors"
	"fmt"
	"iter"
	"log/slog"

	"github.com/aibor/kvmsandbox/internal/bitmap"
	"github.com/aibor/kvmsandbox/internal/layout"
	"github.com/aibor/kvmsandbox/internal/pgtable"
	"github.com/aibor/kvmsandbox/internal/vma"
)

// Memory is the memory of a single guest. It is not safe for concurrent use.
type Memory struct {
	layout layout.Layout
	pool   *Pool
	frames *bitmap.Bitmap
	space  *vma.Space
	tables *pgtable.Builder
}

// New creates the guest memory described by l: the backing pool, an empty
// frame bitmap, the virtual address space [0, 1<<VABits) and the root page
// table, which takes the first frame.
func New(l layout.Layout) (*Memory, error) {
	if err := l.Validate(); err != nil {
		return nil, err
	}

	pool, err := NewPool(l.PhysStart(), l.PoolSize())
	if err != nil {
		return nil, err
	}

	space, err := vma.New(0, l.VirtEnd())
	if err != nil {
		_ = pool.Close()
		return nil, err
	}

	mem := &Memory{
		layout: l,
		pool:   pool,
		frames: bitmap.New(l.PhysPages),
		space:  space,
	}

	mem.tables, err = pgtable.New(l, pool, mem)
	if err != nil {
		_ = mem.Close()
		return nil, fmt.Errorf("page table: %w", err)
	}

	slog.Debug("Created guest memory",
		slog.Any("layout", l),
		slog.String("pgtable", fmt.Sprintf("%#x", mem.tables.Root())),
	)

	return mem, nil
}

// Layout returns the layout the memory was created with.
func (m *Memory) Layout() layout.Layout {
	return m.layout
}

// Pool returns the guest physical memory.
func (m *Memory) Pool() *Pool {
	return m.pool
}

// PageTableRoot returns the guest physical address of the root page table.
func (m *Memory) PageTableRoot() uint64 {
	return m.tables.Root()
}

// FreeFrames returns the number of unallocated frames.
func (m *Memory) FreeFrames() uint64 {
	return m.frames.Len() - m.frames.Count()
}

// AllocPhys allocates pages contiguous frames and returns the guest physical
// address of the first one. The frames are zeroed.
func (m *Memory) AllocPhys(pages uint64) (uint64, error) {
	idx, err := m.frames.Allocate(pages)
	if err != nil {
		return 0, fmt.Errorf("allocate %d frames: %w", pages, err)
	}

	gpa := (m.layout.PhysBase + idx) << m.layout.PageShift

	data, err := m.pool.Bytes(gpa, pages<<m.layout.PageShift)
	if err != nil {
		return 0, err
	}

	clear(data)

	return gpa, nil
}

// FreePhys returns pages frames starting at gpa to the frame allocator.
func (m *Memory) FreePhys(gpa, pages uint64) error {
	if !m.layout.IsAligned(gpa) || gpa < m.layout.PhysStart() {
		return fmt.Errorf("%w: frame address %#x", ErrOutOfBounds, gpa)
	}

	idx := gpa>>m.layout.PageShift - m.layout.PhysBase

	if err := m.frames.Clear(idx, pages); err != nil {
		return fmt.Errorf("free %d frames at %#x: %w", pages, gpa, err)
	}

	return nil
}

// Map maps [virt, virt+length) to the guest physical range at phys.
func (m *Memory) Map(phys, virt, length uint64) error {
	return m.tables.Map(phys, virt, length)
}

// Translate returns the guest physical address virt is mapped to.
func (m *Memory) Translate(virt uint64) (uint64, error) {
	phys, _, err := m.tables.Translate(virt)
	return phys, err
}

// Bytes returns the n bytes at guest physical address gpa.
func (m *Memory) Bytes(gpa, n uint64) ([]byte, error) {
	return m.pool.Bytes(gpa, n)
}

// Areas returns an iterator over all virtual memory areas in address order.
func (m *Memory) Areas() iter.Seq[*vma.Area] {
	return m.space.All()
}

// FindArea returns the area containing addr or nil.
func (m *Memory) FindArea(addr uint64) *vma.Area {
	area, _ := m.space.Find(addr)
	if area == nil || !area.Contains(addr) {
		return nil
	}

	return area
}

// Region creates a virtual memory area backed by freshly allocated frames
// and maps it. length is rounded up to full pages. With [vma.FlagFixed] addr
// must be page aligned.
func (m *Memory) Region(addr, length uint64, flags vma.Flags, prot vma.Prot) (*Region, error) {
	if flags&vma.FlagFixed != 0 && !m.layout.IsAligned(addr) {
		return nil, fmt.Errorf("%w: %#x", pgtable.ErrMisaligned, addr)
	}

	length = m.layout.AlignUp(length)
	pages := length >> m.layout.PageShift

	phys, err := m.AllocPhys(pages)
	if err != nil {
		return nil, err
	}

	area, err := m.space.Allocate(addr, length, flags, prot)
	if err != nil {
		_ = m.FreePhys(phys, pages)
		return nil, fmt.Errorf("allocate area: %w", err)
	}

	if err := m.Map(phys, area.Start(), area.Len()); err != nil {
		return nil, errors.Join(
			fmt.Errorf("map area: %w", err),
			m.release(area),
			m.FreePhys(phys, pages),
		)
	}

	return &Region{
		Area: area,
		Phys: phys,
		mem:  m,
	}, nil
}

// DeviceRegion creates a fixed virtual memory area at addr that is identity
// mapped as device memory. The physical range must not be part of the pool,
// so guest accesses exit to the hypervisor.
func (m *Memory) DeviceRegion(addr, length uint64, prot vma.Prot) (*vma.Area, error) {
	length = m.layout.AlignUp(length)

	poolStart := m.pool.Base()
	poolEnd := poolStart + m.pool.Size()

	if addr < poolEnd && addr+length > poolStart {
		return nil, fmt.Errorf("%w: [%#x, %#x)", ErrDeviceInPool, addr, addr+length)
	}

	if !m.layout.IsAligned(addr) {
		return nil, fmt.Errorf("%w: %#x", pgtable.ErrMisaligned, addr)
	}

	area, err := m.space.Allocate(addr, length, vma.FlagFixed|vma.FlagDevice, prot)
	if err != nil {
		return nil, fmt.Errorf("allocate area: %w", err)
	}

	if err := m.tables.MapDevice(addr, addr, length); err != nil {
		return nil, errors.Join(
			fmt.Errorf("map device area: %w", err),
			m.release(area),
		)
	}

	return area, nil
}

// release clears the leaf entries of a partially mapped area and removes it
// from the space. Table frames allocated on the way stay in use.
func (m *Memory) release(area *vma.Area) error {
	return errors.Join(
		m.tables.Unmap(area.Start(), area.Len()),
		m.space.Remove(area),
	)
}

// Close releases all areas and the host memory.
func (m *Memory) Close() error {
	m.space.Destroy()
	return m.pool.Close()
}

// Region is a virtual memory area together with the physically contiguous
// frames it is mapped to.
type Region struct {
	Area *vma.Area
	Phys uint64

	mem *Memory
}

// Bytes returns the guest memory backing the region.
func (r *Region) Bytes() ([]byte, error) {
	return r.mem.Bytes(r.Phys, r.Area.Len())
}
