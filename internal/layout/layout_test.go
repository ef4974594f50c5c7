// SPDX-FileCopyrightText: 2024 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package layout_test

import (
	"testing"

	"github.com/aibor/kvmsandbox/internal/layout"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	l := layout.Default()
	require.NoError(t, l.Validate())

	assert.Equal(t, uint64(0x1000), l.PageSize())
	assert.Equal(t, uint64(4), l.Levels)
	assert.Equal(t, uint64(9), l.IndexBits())
	assert.Equal(t, uint64(512), l.EntriesPerTable())
	assert.Equal(t, uint64(0x200000), l.PoolSize())
	assert.Equal(t, uint64(0xffffff000), l.PhysMask())
	assert.Equal(t, uint64(1<<48), l.VirtEnd())
}

func TestLevelsFor(t *testing.T) {
	tests := []struct {
		pageShift uint64
		vaBits    uint64
		expected  uint64
	}{
		{pageShift: 12, vaBits: 48, expected: 4},
		{pageShift: 12, vaBits: 39, expected: 3},
		{pageShift: 12, vaBits: 40, expected: 4},
		{pageShift: 12, vaBits: 52, expected: 5},
		{pageShift: 14, vaBits: 47, expected: 3},
		{pageShift: 14, vaBits: 48, expected: 4},
		{pageShift: 16, vaBits: 42, expected: 2},
		{pageShift: 16, vaBits: 48, expected: 3},
		{pageShift: 12, vaBits: 12, expected: 1},
	}

	for _, tt := range tests {
		actual := layout.LevelsFor(tt.pageShift, tt.vaBits)
		assert.Equal(t, tt.expected, actual, "shift %d bits %d", tt.pageShift, tt.vaBits)
	}
}

func TestLayout_Validate(t *testing.T) {
	tests := []struct {
		name      string
		modify    func(l *layout.Layout)
		assertErr require.ErrorAssertionFunc
	}{
		{
			name:      "default",
			modify:    func(_ *layout.Layout) {},
			assertErr: require.NoError,
		},
		{
			name: "16k pages",
			modify: func(l *layout.Layout) {
				l.PageShift = 14
				l.Levels = 0
			},
			assertErr: require.NoError,
		},
		{
			name: "64k pages",
			modify: func(l *layout.Layout) {
				l.PageShift = 16
				l.Levels = 3
			},
			assertErr: require.NoError,
		},
		{
			name: "unsupported page shift",
			modify: func(l *layout.Layout) {
				l.PageShift = 13
			},
			assertErr: requireInvalid,
		},
		{
			name: "too few levels",
			modify: func(l *layout.Layout) {
				l.Levels = 3
			},
			assertErr: requireInvalid,
		},
		{
			name: "too many levels",
			modify: func(l *layout.Layout) {
				l.Levels = 6
			},
			assertErr: requireInvalid,
		},
		{
			name: "pa bits too small",
			modify: func(l *layout.Layout) {
				l.PABits = 31
			},
			assertErr: requireInvalid,
		},
		{
			name: "pa bits at maximum",
			modify: func(l *layout.Layout) {
				l.PABits = layout.MaxPABits
			},
			assertErr: require.NoError,
		},
		{
			name: "pa bits too large",
			modify: func(l *layout.Layout) {
				l.PABits = layout.MaxPABits + 1
			},
			assertErr: requireInvalid,
		},
		{
			name: "pa bits need 52 bit descriptors",
			modify: func(l *layout.Layout) {
				l.PageShift = 16
				l.Levels = 0
				l.PABits = 52
			},
			assertErr: requireInvalid,
		},
		{
			name: "va bits too small",
			modify: func(l *layout.Layout) {
				l.VABits = 12
			},
			assertErr: requireInvalid,
		},
		{
			name: "no frames",
			modify: func(l *layout.Layout) {
				l.PhysPages = 0
			},
			assertErr: requireInvalid,
		},
		{
			name: "pool beyond pa range",
			modify: func(l *layout.Layout) {
				l.PhysBase = 1<<24 - 0x100
			},
			assertErr: requireInvalid,
		},
		{
			name: "pool at end of pa range",
			modify: func(l *layout.Layout) {
				l.PhysBase = 1<<24 - 0x200
			},
			assertErr: require.NoError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := layout.Default()
			tt.modify(&l)

			tt.assertErr(t, l.Validate())
		})
	}
}

func requireInvalid(t require.TestingT, err error, _ ...any) {
	require.ErrorIs(t, err, layout.ErrInvalidLayout)
}

func TestLayout_Validate_DerivesLevels(t *testing.T) {
	l := layout.Default()
	l.Levels = 0

	require.NoError(t, l.Validate())
	assert.Equal(t, uint64(4), l.Levels)
}

func TestLayout_Index(t *testing.T) {
	l := layout.Default()

	virt := uint64(0x100)<<39 | 0x101<<30 | 0x080<<21 | 0x100<<12 | 0x123

	assert.Equal(t, uint64(0x100), l.Index(virt, 0))
	assert.Equal(t, uint64(0x080), l.Index(virt, 1))
	assert.Equal(t, uint64(0x101), l.Index(virt, 2))
	assert.Equal(t, uint64(0x100), l.Index(virt, 3))

	assert.Equal(t, uint64(12), l.LevelShift(0))
	assert.Equal(t, uint64(39), l.LevelShift(3))
}

func TestLayout_Align(t *testing.T) {
	l := layout.Default()

	assert.True(t, l.IsAligned(0x2000))
	assert.False(t, l.IsAligned(0x2001))
	assert.Equal(t, uint64(0x2000), l.AlignDown(0x2fff))
	assert.Equal(t, uint64(0x3000), l.AlignUp(0x2001))
	assert.Equal(t, uint64(0x2000), l.AlignUp(0x2000))
	assert.Equal(t, uint64(3), l.Pages(0x2001))
	assert.Equal(t, uint64(0), l.Pages(0))
}
