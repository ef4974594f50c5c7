// SPDX-FileCopyrightText: 2024 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package mm

import "errors"

var (
	// ErrOutOfBounds is returned for accesses beyond guest physical memory.
	ErrOutOfBounds = errors.New("guest physical address out of bounds")

	// ErrClosed is returned when using a closed [Pool] or [Memory].
	ErrClosed = errors.New("guest memory closed")

	// ErrDeviceInPool is returned for device ranges within guest memory.
	ErrDeviceInPool = errors.New("device range overlaps guest memory")
)
