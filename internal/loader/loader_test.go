// SPDX-FileCopyrightText: 2024 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package loader_test

import (
	"bytes"
	"debug/elf"
	"os"
	"path/filepath"
	"testing"

	"github.com/aibor/kvmsandbox/internal/layout"
	"github.com/aibor/kvmsandbox/internal/loader"
	"github.com/aibor/kvmsandbox/internal/mm"
	"github.com/aibor/kvmsandbox/internal/sys"
	"github.com/aibor/kvmsandbox/internal/vma"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	text = []byte("0123456789abcdef")
	data = []byte("data")
)

func validSpec() loader.ELFSpec {
	return loader.ELFSpec{
		Type:    elf.ET_EXEC,
		Machine: elf.EM_AARCH64,
		Entry:   0x400000,
		Segments: []loader.Segment{
			{
				Flags: elf.PF_R | elf.PF_X,
				Vaddr: 0x400000,
				Data:  text,
			},
			{
				Type:  elf.PT_NOTE,
				Flags: elf.PF_R,
				Vaddr: 0x300000,
				Data:  []byte("note"),
			},
			{
				Flags: elf.PF_R | elf.PF_W,
				Vaddr: 0x401800,
				Data:  data,
				Memsz: 0x2000,
			},
		},
	}
}

func mustMemory(t *testing.T) *mm.Memory {
	t.Helper()

	mem, err := mm.New(layout.Default())
	require.NoError(t, err)
	t.Cleanup(func() { _ = mem.Close() })

	return mem
}

func readVirt(t *testing.T, mem *mm.Memory, virt, n uint64) []byte {
	t.Helper()

	phys, err := mem.Translate(virt)
	require.NoError(t, err)

	data, err := mem.Bytes(phys, n)
	require.NoError(t, err)

	return data
}

func TestLoad(t *testing.T) {
	mem := mustMemory(t)
	file := loader.BuildELF(t, validSpec())

	entry, err := loader.Load(mem, bytes.NewReader(file))
	require.NoError(t, err)
	assert.Equal(t, uint64(0x400000), entry)

	areas := []string{}
	for area := range mem.Areas() {
		areas = append(areas, area.String())
	}

	assert.Equal(t, []string{
		"0000000000400000-0000000000401000 r-x fixed",
		"0000000000401000-0000000000404000 rw- fixed",
	}, areas)

	assert.Equal(t, text, readVirt(t, mem, 0x400000, uint64(len(text))))
	assert.Equal(t, data, readVirt(t, mem, 0x401800, uint64(len(data))))
	assert.Equal(t, make([]byte, 0x7fc), readVirt(t, mem, 0x401804, 0x7fc), "bss")
	assert.Equal(t, make([]byte, 0x800), readVirt(t, mem, 0x401000, 0x800), "head")
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name        string
		modify      func(spec *loader.ELFSpec)
		expectedErr error
	}{
		{
			name: "shared object",
			modify: func(spec *loader.ELFSpec) {
				spec.Type = elf.ET_DYN
			},
			expectedErr: loader.ErrNotExecutable,
		},
		{
			name: "wrong machine",
			modify: func(spec *loader.ELFSpec) {
				spec.Machine = elf.EM_X86_64
			},
			expectedErr: sys.ErrMachineNotSupported,
		},
		{
			name: "no load segment",
			modify: func(spec *loader.ELFSpec) {
				spec.Segments = spec.Segments[1:2]
			},
			expectedErr: loader.ErrNoLoadableSegment,
		},
		{
			name: "overlapping segments",
			modify: func(spec *loader.ELFSpec) {
				spec.Segments[2].Vaddr = 0x400800
			},
			expectedErr: vma.ErrOverlap,
		},
		{
			name: "file size exceeds memory size",
			modify: func(spec *loader.ELFSpec) {
				spec.Segments[0].Memsz = 4
			},
			expectedErr: loader.ErrInvalidSegment,
		},
		{
			name: "entry in data segment",
			modify: func(spec *loader.ELFSpec) {
				spec.Entry = 0x401800
			},
			expectedErr: loader.ErrInvalidEntry,
		},
		{
			name: "entry outside segments",
			modify: func(spec *loader.ELFSpec) {
				spec.Entry = 0x500000
			},
			expectedErr: loader.ErrInvalidEntry,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := validSpec()
			tt.modify(&spec)

			mem := mustMemory(t)

			_, err := loader.Load(mem, bytes.NewReader(loader.BuildELF(t, spec)))
			require.ErrorIs(t, err, tt.expectedErr)
		})
	}
}

func TestLoad_NotELF(t *testing.T) {
	mem := mustMemory(t)

	_, err := loader.Load(mem, bytes.NewReader([]byte("#!/bin/sh\n")))
	require.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "guest")
	require.NoError(t, os.WriteFile(path, loader.BuildELF(t, validSpec()), 0o600))

	mem := mustMemory(t)

	entry, err := loader.LoadFile(mem, path)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x400000), entry)

	_, err = loader.LoadFile(mem, filepath.Join(t.TempDir(), "missing"))
	require.ErrorIs(t, err, os.ErrNotExist)
}
