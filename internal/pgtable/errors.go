// SPDX-FileCopyrightText: 2024 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package pgtable

import "errors"

var (
	// ErrMisaligned is returned if an address or length is not page aligned.
	ErrMisaligned = errors.New("not page aligned")

	// ErrInvalidRange is returned for empty ranges or ranges beyond the
	// address widths of the layout.
	ErrInvalidRange = errors.New("invalid range")

	// ErrNotMapped is returned if a virtual address has no translation.
	ErrNotMapped = errors.New("not mapped")
)
