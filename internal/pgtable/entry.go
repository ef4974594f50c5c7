// SPDX-FileCopyrightText: 2024 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package pgtable

// Descriptor bits.
const (
	DescValid = 1 << 0
	DescTable = 1 << 1 // Table at upper levels, page at the leaf level.

	AttrIndxShift = 2
	AttrAF        = 1 << 10
)

// MAIR indexes of the memory attributes leaf entries use.
const (
	DeviceMemoryAttrIndex = 0
	NormalMemoryAttrIndex = 4
)

const (
	// TableAttrs are the bits of an entry pointing to the next level table.
	TableAttrs = DescValid | DescTable

	// LeafAttrs are the bits of an entry mapping a page of normal memory.
	LeafAttrs = DescValid | DescTable | NormalMemoryAttrIndex<<AttrIndxShift | AttrAF

	// DeviceLeafAttrs are the bits of an entry mapping a device page.
	DeviceLeafAttrs = DescValid | DescTable | DeviceMemoryAttrIndex<<AttrIndxShift | AttrAF
)

const entrySize = 8

// Entry is a raw translation table descriptor.
type Entry uint64

// Valid returns true if the entry is in use.
func (e Entry) Valid() bool {
	return e&DescValid != 0
}

// Addr returns the output address of the entry.
func (e Entry) Addr(physMask uint64) uint64 {
	return uint64(e) & physMask
}

// Attrs returns all bits except the output address.
func (e Entry) Attrs(physMask uint64) uint64 {
	return uint64(e) &^ physMask
}
