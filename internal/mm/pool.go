// SPDX-FileCopyrightText: 2024 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package mm

import (
	"errors"
	"fmt"
	"log/slog"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Pool is the guest physical memory [Base, Base+Size) backed by a private
// anonymous host mapping.
type Pool struct {
	base uint64
	data []byte
}

// NewPool maps size bytes of host memory for the guest physical range
// starting at base.
//
// Transparent huge pages are disabled for the mapping, so frames handed to
// the guest map to distinct host pages.
func NewPool(base, size uint64) (*Pool, error) {
	if size == 0 {
		return nil, fmt.Errorf("%w: empty pool", ErrOutOfBounds)
	}

	data, err := unix.Mmap(-1, 0, int(size),
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_ANONYMOUS|unix.MAP_PRIVATE|unix.MAP_NORESERVE,
	)
	if err != nil {
		return nil, fmt.Errorf("mmap %d bytes: %w", size, err)
	}

	// EINVAL means the kernel is built without THP support.
	err = unix.Madvise(data, unix.MADV_NOHUGEPAGE)
	if err != nil && !errors.Is(err, unix.EINVAL) {
		_ = unix.Munmap(data)
		return nil, fmt.Errorf("madvise: %w", err)
	}

	slog.Debug("Mapped guest memory pool",
		slog.String("base", fmt.Sprintf("%#x", base)),
		slog.Uint64("size", size),
	)

	return &Pool{
		base: base,
		data: data,
	}, nil
}

// Base returns the first guest physical address of the pool.
func (p *Pool) Base() uint64 {
	return p.base
}

// Size returns the size of the pool in bytes.
func (p *Pool) Size() uint64 {
	return uint64(len(p.data))
}

// Host returns the whole host mapping backing the pool. It is handed to the
// hypervisor as user memory region.
func (p *Pool) Host() []byte {
	return p.data
}

// HostAddr returns the host virtual address of the mapping.
func (p *Pool) HostAddr() uintptr {
	if len(p.data) == 0 {
		return 0
	}

	return uintptr(unsafe.Pointer(&p.data[0]))
}

// Bytes returns the n bytes of memory at guest physical address gpa. The
// slice aliases the pool and must not be used after [Pool.Close].
func (p *Pool) Bytes(gpa, n uint64) ([]byte, error) {
	if p.data == nil {
		return nil, ErrClosed
	}

	if gpa < p.base || n > p.Size() || gpa-p.base > p.Size()-n {
		return nil, fmt.Errorf("%w: [%#x, %#x+%#x) not within [%#x, %#x)",
			ErrOutOfBounds, gpa, gpa, n, p.base, p.base+p.Size())
	}

	offset := gpa - p.base

	return p.data[offset : offset+n : offset+n], nil
}

// Close unmaps the host memory.
func (p *Pool) Close() error {
	if p.data == nil {
		return nil
	}

	err := unix.Munmap(p.data)
	p.data = nil

	if err != nil {
		return fmt.Errorf("munmap: %w", err)
	}

	return nil
}
