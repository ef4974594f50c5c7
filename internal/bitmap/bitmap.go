// SPDX-FileCopyrightText: 2024 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package bitmap

import (
	"fmt"
	"math/bits"
)

const (
	wordBits  = 64
	wordShift = 6
	allOnes   = ^uint64(0)
)

// Bitmap is a fixed size bit vector. A set bit marks an allocated frame.
type Bitmap struct {
	words []uint64
	size  uint64
}

// New creates a new [Bitmap] with size bits, all cleared.
func New(size uint64) *Bitmap {
	return &Bitmap{
		words: make([]uint64, (size+wordBits-1)>>wordShift),
		size:  size,
	}
}

// Len returns the number of bits in the bitmap.
func (b *Bitmap) Len() uint64 {
	return b.size
}

// Count returns the number of set bits.
func (b *Bitmap) Count() uint64 {
	var count int

	for _, word := range b.words {
		count += bits.OnesCount64(word)
	}

	return uint64(count)
}

// Test returns true if bit idx is set. Bits beyond the size are reported as
// set, so they are never considered free.
func (b *Bitmap) Test(idx uint64) bool {
	if idx >= b.size {
		return true
	}

	return b.words[idx>>wordShift]&(1<<(idx&(wordBits-1))) != 0
}

// Set sets length bits starting at start.
func (b *Bitmap) Set(start, length uint64) error {
	if err := b.checkRange(start, length); err != nil {
		return err
	}

	b.apply(start, length, func(word *uint64, mask uint64) {
		*word |= mask
	})

	return nil
}

// Clear clears length bits starting at start.
func (b *Bitmap) Clear(start, length uint64) error {
	if err := b.checkRange(start, length); err != nil {
		return err
	}

	b.apply(start, length, func(word *uint64, mask uint64) {
		*word &^= mask
	})

	return nil
}

func (b *Bitmap) checkRange(start, length uint64) error {
	if start > b.size || length > b.size-start {
		return fmt.Errorf("%w: [%d, %d+%d) exceeds %d bits",
			ErrOutOfRange, start, start, length, b.size)
	}

	return nil
}

// apply calls fn for every word touched by the range with the mask of the
// bits in range. The range is handled in three zones: an unaligned leading
// partial word, full words and a trailing partial word.
func (b *Bitmap) apply(start, length uint64, fn func(word *uint64, mask uint64)) {
	if length == 0 {
		return
	}

	if offset := start & (wordBits - 1); offset != 0 {
		end := min(offset+length, wordBits)
		fn(&b.words[start>>wordShift], genMask(end-1, offset))

		length -= end - offset
		start = alignUp(start)
	}

	for length >= wordBits {
		fn(&b.words[start>>wordShift], allOnes)

		start += wordBits
		length -= wordBits
	}

	if length > 0 {
		fn(&b.words[start>>wordShift], genMask(length-1, 0))
	}
}

// NextZero returns the index of the first cleared bit at or after start. It
// returns [Bitmap.Len] if there is none.
func (b *Bitmap) NextZero(start uint64) uint64 {
	return b.next(start, allOnes)
}

// NextSet returns the index of the first set bit at or after start. It
// returns [Bitmap.Len] if there is none.
func (b *Bitmap) NextSet(start uint64) uint64 {
	return b.next(start, 0)
}

// next finds the first bit at or after start that differs from the bits in
// skip, which is either all ones (find zero) or all zeros (find one).
func (b *Bitmap) next(start uint64, skip uint64) uint64 {
	if start >= b.size {
		return b.size
	}

	length := b.size - start

	if offset := start & (wordBits - 1); offset != 0 {
		end := min(offset+length, wordBits)
		mask := genMask(end-1, offset)

		if found := (b.words[start>>wordShift] ^ skip) & mask; found != 0 {
			return alignDown(start) + uint64(bits.TrailingZeros64(found))
		}

		length -= end - offset
		start = alignUp(start)
	}

	for length >= wordBits {
		if found := b.words[start>>wordShift] ^ skip; found != 0 {
			return start + uint64(bits.TrailingZeros64(found))
		}

		start += wordBits
		length -= wordBits
	}

	if length > 0 {
		mask := genMask(length-1, 0)
		if found := (b.words[start>>wordShift] ^ skip) & mask; found != 0 {
			return start + uint64(bits.TrailingZeros64(found))
		}
	}

	return b.size
}

// Allocate finds the first run of at least n cleared bits, sets the first n
// bits of it and returns the index of the first one.
func (b *Bitmap) Allocate(n uint64) (uint64, error) {
	return b.AllocateFrom(0, n)
}

// AllocateFrom works like [Bitmap.Allocate] but only considers runs starting
// at or after start.
func (b *Bitmap) AllocateFrom(start, n uint64) (uint64, error) {
	if n == 0 {
		return 0, ErrInvalidLength
	}

	for runStart := b.NextZero(start); runStart < b.size; {
		runEnd := b.NextSet(runStart)

		if runEnd-runStart >= n {
			b.apply(runStart, n, func(word *uint64, mask uint64) {
				*word |= mask
			})

			return runStart, nil
		}

		runStart = b.NextZero(runEnd)
	}

	return 0, fmt.Errorf("%w: no run of %d free bits", ErrNoSpace, n)
}

// genMask returns a mask with bits high to low set, both inclusive.
func genMask(high, low uint64) uint64 {
	return (allOnes >> (wordBits - 1 - high)) &^ ((1 << low) - 1)
}

func alignUp(idx uint64) uint64 {
	return (idx + wordBits - 1) &^ (wordBits - 1)
}

func alignDown(idx uint64) uint64 {
	return idx &^ (wordBits - 1)
}
