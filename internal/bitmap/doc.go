// SPDX-FileCopyrightText: 2024 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package bitmap implements the physical frame allocator of the guest: a flat
// bit vector with one bit per frame, where a set bit marks the frame as
// allocated.
package bitmap
