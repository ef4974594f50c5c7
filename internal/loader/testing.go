// SPDX-FileCopyrightText: 2024 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package loader

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"testing"
)

// Segment describes a program segment for [BuildELF].
type Segment struct {
	Type  elf.ProgType
	Flags elf.ProgFlag
	Vaddr uint64
	Data  []byte

	// Memsz defaults to len(Data) if zero.
	Memsz uint64
}

// ELFSpec describes a minimal ELF64 file for [BuildELF].
type ELFSpec struct {
	Type     elf.Type
	Machine  elf.Machine
	Entry    uint64
	Segments []Segment
}

// BuildELF assembles a little endian ELF64 file without sections.
func BuildELF(tb testing.TB, spec ELFSpec) []byte {
	tb.Helper()

	const (
		headerSize = 64
		progSize   = 56
	)

	var ident [elf.EI_NIDENT]byte

	copy(ident[:], elf.ELFMAG)
	ident[elf.EI_CLASS] = byte(elf.ELFCLASS64)
	ident[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	ident[elf.EI_VERSION] = byte(elf.EV_CURRENT)
	ident[elf.EI_OSABI] = byte(elf.ELFOSABI_NONE)

	header := elf.Header64{
		Ident:     ident,
		Type:      uint16(spec.Type),
		Machine:   uint16(spec.Machine),
		Version:   uint32(elf.EV_CURRENT),
		Entry:     spec.Entry,
		Phoff:     headerSize,
		Ehsize:    headerSize,
		Phentsize: progSize,
		Phnum:     uint16(len(spec.Segments)),
	}

	offset := uint64(headerSize + progSize*len(spec.Segments))
	progs := make([]elf.Prog64, 0, len(spec.Segments))

	for _, segment := range spec.Segments {
		memsz := segment.Memsz
		if memsz == 0 {
			memsz = uint64(len(segment.Data))
		}

		segType := segment.Type
		if segType == elf.PT_NULL {
			segType = elf.PT_LOAD
		}

		progs = append(progs, elf.Prog64{
			Type:   uint32(segType),
			Flags:  uint32(segment.Flags),
			Off:    offset,
			Vaddr:  segment.Vaddr,
			Paddr:  segment.Vaddr,
			Filesz: uint64(len(segment.Data)),
			Memsz:  memsz,
			Align:  0x1000,
		})

		offset += uint64(len(segment.Data))
	}

	var buf bytes.Buffer

	for _, data := range []any{header, progs} {
		if err := binary.Write(&buf, binary.LittleEndian, data); err != nil {
			tb.Fatalf("write ELF: %v", err)
		}
	}

	for _, segment := range spec.Segments {
		buf.Write(segment.Data)
	}

	return buf.Bytes()
}
