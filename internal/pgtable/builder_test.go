// SPDX-FileCopyrightText: 2024 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package pgtable_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/aibor/kvmsandbox/internal/bitmap"
	"github.com/aibor/kvmsandbox/internal/layout"
	"github.com/aibor/kvmsandbox/internal/pgtable"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errOutOfMemory = errors.New("out of guest memory")

// guestMemory is a plain byte slice of guest physical memory starting at 0
// with frames handed out by a bitmap.
type guestMemory struct {
	data      []byte
	frames    *bitmap.Bitmap
	pageShift uint64
}

func newGuestMemory(l layout.Layout, pages uint64) *guestMemory {
	return &guestMemory{
		data:      make([]byte, pages<<l.PageShift),
		frames:    bitmap.New(pages),
		pageShift: l.PageShift,
	}
}

func (m *guestMemory) Bytes(gpa, n uint64) ([]byte, error) {
	if gpa+n > uint64(len(m.data)) {
		return nil, fmt.Errorf("%w: %#x+%#x", errOutOfMemory, gpa, n)
	}

	return m.data[gpa : gpa+n], nil
}

func (m *guestMemory) AllocPhys(pages uint64) (uint64, error) {
	idx, err := m.frames.Allocate(pages)
	if err != nil {
		return 0, err
	}

	return idx << m.pageShift, nil
}

func mustBuilder(t *testing.T, l layout.Layout, pages uint64) (*pgtable.Builder, *guestMemory) {
	t.Helper()

	mem := newGuestMemory(l, pages)

	builder, err := pgtable.New(l, mem, mem)
	require.NoError(t, err)

	return builder, mem
}

func TestNew(t *testing.T) {
	l := layout.Default()
	mem := newGuestMemory(l, 4)

	// Garbage in the frame the root table ends up in.
	mem.data[0x10] = 0xff

	builder, err := pgtable.New(l, mem, mem)
	require.NoError(t, err)

	assert.Equal(t, uint64(0), builder.Root())
	assert.Equal(t, 1, builder.Tables())
	assert.Zero(t, mem.data[0x10], "root table must be zeroed")
}

func TestNew_NoFrames(t *testing.T) {
	l := layout.Default()
	mem := newGuestMemory(l, 1)
	require.NoError(t, mem.frames.Set(0, 1))

	_, err := pgtable.New(l, mem, mem)
	require.ErrorIs(t, err, bitmap.ErrNoSpace)
}

func TestBuilder_MapTranslate(t *testing.T) {
	const (
		virt = uint64(0x0000_7fff_ffff_f000)
		phys = uint64(0x5000)
	)

	l := layout.Default()
	builder, _ := mustBuilder(t, l, 16)

	require.NoError(t, builder.Map(phys, virt, l.PageSize()))
	assert.Equal(t, 4, builder.Tables(), "root plus one table per lower level")

	actualPhys, attrs, err := builder.Translate(virt)
	require.NoError(t, err)
	assert.Equal(t, phys, actualPhys)
	assert.Equal(t, uint64(pgtable.LeafAttrs), attrs)
	assert.Equal(t, uint64(0x413), attrs)

	actualPhys, _, err = builder.Translate(virt + 0x123)
	require.NoError(t, err)
	assert.Equal(t, phys+0x123, actualPhys)

	_, _, err = builder.Translate(virt - l.PageSize())
	require.ErrorIs(t, err, pgtable.ErrNotMapped)
}

func TestBuilder_MapAdjacentPages(t *testing.T) {
	l := layout.Default()
	builder, _ := mustBuilder(t, l, 16)

	virt := uint64(0x40_0000)

	// Map the two pages to non adjacent frames, so they can be told apart.
	require.NoError(t, builder.Map(0x8000, virt, l.PageSize()))
	require.NoError(t, builder.Map(0xa000, virt+l.PageSize(), l.PageSize()))

	type leaf struct {
		table uint64
		entry pgtable.Entry
	}

	leafOf := func(v uint64) leaf {
		var result leaf

		err := builder.Walk(v, func(level, table uint64, entry pgtable.Entry) {
			if level == 0 {
				result = leaf{table, entry}
			}
		})
		require.NoError(t, err)

		return result
	}

	first := leafOf(virt)
	second := leafOf(virt + l.PageSize())

	assert.Equal(t, first.table, second.table, "same leaf table")
	assert.NotEqual(t, first.entry, second.entry, "distinct leaf entries")
	assert.Equal(t, uint64(0x8000), first.entry.Addr(l.PhysMask()))
	assert.Equal(t, uint64(0xa000), second.entry.Addr(l.PhysMask()))
	assert.Equal(t, 4, builder.Tables(), "tables are shared")
}

func TestBuilder_MapRange(t *testing.T) {
	l := layout.Default()
	builder, _ := mustBuilder(t, l, 32)

	// Crosses a leaf table boundary at 0x200000.
	virt := uint64(0x1f_e000)
	length := uint64(4 * l.PageSize())

	require.NoError(t, builder.Map(0x10000, virt, length))
	assert.Equal(t, 5, builder.Tables())

	for offset := uint64(0); offset < length; offset += l.PageSize() {
		phys, _, err := builder.Translate(virt + offset)
		require.NoError(t, err)
		assert.Equal(t, 0x10000+offset, phys)
	}
}

func TestBuilder_MapOverwrites(t *testing.T) {
	l := layout.Default()
	builder, _ := mustBuilder(t, l, 16)

	require.NoError(t, builder.Map(0x5000, 0x1000, l.PageSize()))
	require.NoError(t, builder.Map(0x6000, 0x1000, l.PageSize()))

	phys, _, err := builder.Translate(0x1000)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x6000), phys)
}

func TestBuilder_MapErrors(t *testing.T) {
	l := layout.Default()

	tests := []struct {
		name        string
		phys        uint64
		virt        uint64
		length      uint64
		expectedErr error
	}{
		{
			name:        "misaligned phys",
			phys:        0x5001,
			virt:        0x1000,
			length:      0x1000,
			expectedErr: pgtable.ErrMisaligned,
		},
		{
			name:        "misaligned virt",
			phys:        0x5000,
			virt:        0x1800,
			length:      0x1000,
			expectedErr: pgtable.ErrMisaligned,
		},
		{
			name:        "misaligned length",
			phys:        0x5000,
			virt:        0x1000,
			length:      0x0fff,
			expectedErr: pgtable.ErrMisaligned,
		},
		{
			name:        "zero length",
			phys:        0x5000,
			virt:        0x1000,
			expectedErr: pgtable.ErrInvalidRange,
		},
		{
			name:        "virt beyond va bits",
			phys:        0x5000,
			virt:        1 << 48,
			length:      0x1000,
			expectedErr: pgtable.ErrInvalidRange,
		},
		{
			name:        "phys beyond pa bits",
			phys:        1 << 36,
			virt:        0x1000,
			length:      0x1000,
			expectedErr: pgtable.ErrInvalidRange,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			builder, _ := mustBuilder(t, l, 16)

			err := builder.Map(tt.phys, tt.virt, tt.length)
			require.ErrorIs(t, err, tt.expectedErr)
			assert.Equal(t, 1, builder.Tables(), "nothing allocated")
		})
	}
}

func TestBuilder_MapFrameExhaustion(t *testing.T) {
	l := layout.Default()

	// Root and one more table fit, the walk needs three more.
	builder, _ := mustBuilder(t, l, 2)

	err := builder.Map(0x0, 0x1000, l.PageSize())
	require.ErrorIs(t, err, bitmap.ErrNoSpace)
}

func TestBuilder_Unmap(t *testing.T) {
	l := layout.Default()
	builder, _ := mustBuilder(t, l, 16)

	require.NoError(t, builder.Map(0xa000, 0x400000, 0x2000))
	tables := builder.Tables()

	// The second page is mapped, the third one never was.
	require.NoError(t, builder.Unmap(0x401000, 0x2000))
	assert.Equal(t, tables, builder.Tables(), "tables are kept")

	phys, _, err := builder.Translate(0x400010)
	require.NoError(t, err)
	assert.Equal(t, uint64(0xa010), phys)

	_, _, err = builder.Translate(0x401000)
	require.ErrorIs(t, err, pgtable.ErrNotMapped)

	require.NoError(t, builder.Unmap(0x7f000000, 0x1000), "nothing mapped")
	require.ErrorIs(t, builder.Unmap(0x400800, 0x1000), pgtable.ErrMisaligned)
	require.ErrorIs(t, builder.Unmap(0x400000, 0), pgtable.ErrInvalidRange)
}

func TestBuilder_LargePages(t *testing.T) {
	l := layout.Default()
	l.PageShift = 16
	l.Levels = 0
	require.NoError(t, l.Validate())
	require.Equal(t, uint64(3), l.Levels)

	builder, _ := mustBuilder(t, l, 8)

	virt := uint64(0x1234_0000)
	require.NoError(t, builder.Map(0x3_0000, virt, l.PageSize()))
	assert.Equal(t, 3, builder.Tables())

	phys, attrs, err := builder.Translate(virt + 0xabcd)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x3_abcd), phys)
	assert.Equal(t, uint64(pgtable.LeafAttrs), attrs)
}

func TestBuilder_Walk(t *testing.T) {
	l := layout.Default()
	builder, _ := mustBuilder(t, l, 16)

	require.NoError(t, builder.Map(0x8000, 0x1000, l.PageSize()))

	levels := []uint64{}
	err := builder.Walk(0x1000, func(level, _ uint64, entry pgtable.Entry) {
		levels = append(levels, level)

		if level > 0 {
			assert.Equal(t, uint64(pgtable.TableAttrs), entry.Attrs(l.PhysMask()))
		}
	})
	require.NoError(t, err)
	assert.Equal(t, []uint64{3, 2, 1, 0}, levels)

	levels = levels[:0]
	err = builder.Walk(1<<40, func(level, _ uint64, _ pgtable.Entry) {
		levels = append(levels, level)
	})
	require.ErrorIs(t, err, pgtable.ErrNotMapped)
	assert.Equal(t, []uint64{3}, levels)

	err = builder.Walk(1<<48, nil)
	require.ErrorIs(t, err, pgtable.ErrInvalidRange)
}

func TestBuilder_MapDevice(t *testing.T) {
	l := layout.Default()
	builder, _ := mustBuilder(t, l, 16)

	require.NoError(t, builder.MapDevice(0x0900_0000, 0x0900_0000, l.PageSize()))

	phys, attrs, err := builder.Translate(0x0900_0004)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x0900_0004), phys)
	assert.Equal(t, uint64(pgtable.DeviceLeafAttrs), attrs)
	assert.Equal(t, uint64(0x403), attrs)

	err = builder.MapDevice(0x0900_0000, 0x0900_0800, l.PageSize())
	require.ErrorIs(t, err, pgtable.ErrMisaligned)
}
