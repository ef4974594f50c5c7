// SPDX-FileCopyrightText: 2024 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package vma

import "errors"

var (
	// ErrNoSpace is returned if no free gap is large enough for the
	// requested area.
	ErrNoSpace = errors.New("no space left in address space")

	// ErrOverlap is returned if a fixed area intersects an existing one.
	ErrOverlap = errors.New("area overlaps existing area")

	// ErrInvalidRange is returned for empty ranges or ranges outside of the
	// address space.
	ErrInvalidRange = errors.New("invalid address range")

	// ErrDestroyed is returned if the address space has been destroyed.
	ErrDestroyed = errors.New("address space destroyed")

	// ErrInconsistent is returned by [Space.Validate] if the tree and the
	// list of areas do not agree.
	ErrInconsistent = errors.New("inconsistent address space")
)
