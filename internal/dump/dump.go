// SPDX-FileCopyrightText: 2024 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package dump

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"

	"github.com/aibor/kvmsandbox/internal/layout"
	"github.com/aibor/kvmsandbox/internal/pgtable"
	"github.com/aibor/kvmsandbox/internal/vma"
)

// Memory is the guest memory to dump. It is implemented by [mm.Memory].
//
// [mm.Memory]: github.com/aibor/kvmsandbox/internal/mm.Memory
type Memory interface {
	Layout() layout.Layout
	Areas() iter.Seq[*vma.Area]
	Translate(virt uint64) (uint64, error)
	Bytes(gpa, n uint64) ([]byte, error)
}

// Write writes all areas of mem as cpio archive to w.
func Write(w io.Writer, mem Memory) error {
	archive := NewCPIOWriter(w)

	areas := 0

	for area := range mem.Areas() {
		if err := archive.WriteArea(area, newAreaReader(mem, area)); err != nil {
			return err
		}

		areas++
	}

	if err := archive.Close(); err != nil {
		return err
	}

	slog.Debug("Dumped guest memory", slog.Int("areas", areas))

	return nil
}

// areaReader reads the content of an area page by page through the page
// table.
type areaReader struct {
	mem      Memory
	area     *vma.Area
	pageSize uint64
	next     uint64
	page     bytes.Reader
}

func newAreaReader(mem Memory, area *vma.Area) *areaReader {
	l := mem.Layout()

	return &areaReader{
		mem:      mem,
		area:     area,
		pageSize: l.PageSize(),
		next:     area.Start(),
	}
}

func (r *areaReader) Read(p []byte) (int, error) {
	if r.page.Len() == 0 {
		if r.next >= r.area.End() {
			return 0, io.EOF
		}

		if err := r.loadPage(); err != nil {
			return 0, err
		}
	}

	return r.page.Read(p)
}

func (r *areaReader) loadPage() error {
	virt := r.next

	if virt&(r.pageSize-1) != 0 || r.area.End()-virt < r.pageSize {
		return fmt.Errorf("%w: %s", ErrMisalignedArea, r.area)
	}

	r.next += r.pageSize

	data, err := r.pageData(virt)
	if err != nil {
		return fmt.Errorf("page %#x: %w", virt, err)
	}

	r.page.Reset(data)

	return nil
}

func (r *areaReader) pageData(virt uint64) ([]byte, error) {
	if r.area.Flags()&vma.FlagDevice != 0 {
		return make([]byte, r.pageSize), nil
	}

	phys, err := r.mem.Translate(virt)
	if errors.Is(err, pgtable.ErrNotMapped) {
		return make([]byte, r.pageSize), nil
	} else if err != nil {
		return nil, err
	}

	return r.mem.Bytes(phys, r.pageSize)
}
