// SPDX-FileCopyrightText: 2024 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package vma

import (
	"fmt"
	"strings"

	"github.com/aibor/kvmsandbox/internal/rbtree"
)

// Flags modify how an [Area] is placed.
type Flags uint64

const (
	// FlagFixed requests placement at exactly the given address.
	FlagFixed Flags = 1 << iota

	// FlagDevice marks areas that are not backed by guest memory frames but
	// by an emulated device.
	FlagDevice
)

// String returns a human readable representation of the flags.
func (f Flags) String() string {
	names := []string{}

	if f&FlagFixed != 0 {
		names = append(names, "fixed")
	}

	if f&FlagDevice != 0 {
		names = append(names, "device")
	}

	if len(names) == 0 {
		return "-"
	}

	return strings.Join(names, ",")
}

// Prot are the access permissions of an [Area] once mapped.
type Prot uint64

// Protection bits.
const (
	ProtRead Prot = 1 << iota
	ProtWrite
	ProtExec
)

// String returns the permissions in "rwx" notation.
func (p Prot) String() string {
	perms := []byte("---")

	if p&ProtRead != 0 {
		perms[0] = 'r'
	}

	if p&ProtWrite != 0 {
		perms[1] = 'w'
	}

	if p&ProtExec != 0 {
		perms[2] = 'x'
	}

	return string(perms)
}

// Area is a virtual memory area: the half-open address range [Start, End)
// with uniform flags and protection. Areas are immutable once placed.
type Area struct {
	start uint64
	end   uint64
	flags Flags
	prot  Prot

	prev *Area
	next *Area
	node rbtree.Node[*Area]
}

// Start returns the first address of the area.
func (a *Area) Start() uint64 {
	return a.start
}

// End returns the first address after the area.
func (a *Area) End() uint64 {
	return a.end
}

// Len returns the size of the area in bytes.
func (a *Area) Len() uint64 {
	return a.end - a.start
}

// Flags returns the flags the area was allocated with.
func (a *Area) Flags() Flags {
	return a.flags
}

// Prot returns the protection of the area.
func (a *Area) Prot() Prot {
	return a.prot
}

// Contains returns true if addr is within the area.
func (a *Area) Contains(addr uint64) bool {
	return a.start <= addr && addr < a.end
}

// Overlaps returns true if the area intersects with [start, end).
func (a *Area) Overlaps(start, end uint64) bool {
	return a.start < end && a.end > start
}

// Prev returns the area right below in address order or nil.
func (a *Area) Prev() *Area {
	return a.prev
}

// Next returns the area right above in address order or nil.
func (a *Area) Next() *Area {
	return a.next
}

// String returns a representation like /proc/self/maps.
func (a *Area) String() string {
	return fmt.Sprintf("%016x-%016x %s %s", a.start, a.end, a.prot, a.flags)
}
