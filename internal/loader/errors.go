// SPDX-FileCopyrightText: 2024 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package loader

import "errors"

var (
	// ErrNotExecutable is returned for ELF files that are not of type
	// ET_EXEC.
	ErrNotExecutable = errors.New("not an executable")

	// ErrNoLoadableSegment is returned if the file has no PT_LOAD segment.
	ErrNoLoadableSegment = errors.New("no loadable segment")

	// ErrInvalidSegment is returned for segments with more file than memory
	// size.
	ErrInvalidSegment = errors.New("invalid segment")

	// ErrInvalidEntry is returned if the entry point is not within a loaded
	// executable segment.
	ErrInvalidEntry = errors.New("entry point not in executable segment")
)
