// SPDX-FileCopyrightText: 2024 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package loader

import (
	"debug/elf"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/aibor/kvmsandbox/internal/mm"
	"github.com/aibor/kvmsandbox/internal/sys"
	"github.com/aibor/kvmsandbox/internal/vma"
)

// LoadFile loads the ELF executable at path into mem. See [Load].
func LoadFile(mem *mm.Memory, path string) (uint64, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open: %w", err)
	}
	defer file.Close()

	return Load(mem, file)
}

// Load loads the ELF executable read from r into mem and returns its entry
// point.
//
// Every PT_LOAD segment gets a fixed virtual memory area covering its page
// aligned memory range, backed by freshly allocated frames. The file content
// of the segment is copied, the remainder up to its memory size stays zero.
// Relocations are not processed, so the executable must be statically linked
// for its load addresses.
func Load(mem *mm.Memory, r io.ReaderAt) (uint64, error) {
	file, err := elf.NewFile(r)
	if err != nil {
		return 0, fmt.Errorf("read ELF: %w", err)
	}
	defer file.Close()

	if file.Type != elf.ET_EXEC {
		return 0, fmt.Errorf("%w: %s", ErrNotExecutable, file.Type)
	}

	if err := sys.ValidateELF(file.FileHeader, sys.GuestArch); err != nil {
		return 0, err
	}

	var loaded int

	for idx, prog := range file.Progs {
		if prog.Type != elf.PT_LOAD || prog.Memsz == 0 {
			continue
		}

		if err := loadSegment(mem, prog); err != nil {
			return 0, fmt.Errorf("segment %d: %w", idx, err)
		}

		loaded++
	}

	if loaded == 0 {
		return 0, ErrNoLoadableSegment
	}

	area := mem.FindArea(file.Entry)
	if area == nil || area.Prot()&vma.ProtExec == 0 {
		return 0, fmt.Errorf("%w: %#x", ErrInvalidEntry, file.Entry)
	}

	return file.Entry, nil
}

func loadSegment(mem *mm.Memory, prog *elf.Prog) error {
	if prog.Filesz > prog.Memsz {
		return fmt.Errorf("%w: file size %#x exceeds memory size %#x",
			ErrInvalidSegment, prog.Filesz, prog.Memsz)
	}

	l := mem.Layout()
	start := l.AlignDown(prog.Vaddr)
	end := l.AlignUp(prog.Vaddr + prog.Memsz)

	if end <= start {
		return fmt.Errorf("%w: [%#x, %#x+%#x) overflows",
			ErrInvalidSegment, prog.Vaddr, prog.Vaddr, prog.Memsz)
	}

	region, err := mem.Region(start, end-start, vma.FlagFixed, protection(prog.Flags))
	if err != nil {
		return err
	}

	data, err := region.Bytes()
	if err != nil {
		return err
	}

	offset := prog.Vaddr - start

	_, err = io.ReadFull(prog.Open(), data[offset:offset+prog.Filesz])
	if err != nil {
		return fmt.Errorf("read: %w", err)
	}

	slog.Debug("Loaded segment",
		slog.String("area", region.Area.String()),
		slog.String("phys", fmt.Sprintf("%#x", region.Phys)),
		slog.Uint64("filesz", prog.Filesz),
	)

	return nil
}

func protection(flags elf.ProgFlag) vma.Prot {
	var prot vma.Prot

	if flags&elf.PF_R != 0 {
		prot |= vma.ProtRead
	}

	if flags&elf.PF_W != 0 {
		prot |= vma.ProtWrite
	}

	if flags&elf.PF_X != 0 {
		prot |= vma.ProtExec
	}

	return prot
}
