// SPDX-FileCopyrightText: 2024 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package bitmap

import "errors"

var (
	// ErrNoSpace is returned if no run of free bits is large enough.
	ErrNoSpace = errors.New("no free bit range")

	// ErrOutOfRange is returned if a bit range exceeds the bitmap.
	ErrOutOfRange = errors.New("bit range out of bounds")

	// ErrInvalidLength is returned for zero length allocations.
	ErrInvalidLength = errors.New("invalid length")
)
