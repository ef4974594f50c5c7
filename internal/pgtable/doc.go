// SPDX-FileCopyrightText: 2024 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package pgtable builds the stage-1 translation tables the guest runs with.
//
// Tables live in guest physical memory and are written through a
// [PhysMemory]. Table frames are taken from a [FrameAllocator]. Entries use
// the arm64 descriptor format: every table entry points to the next level
// table, every leaf entry maps a single page as normal memory. Block entries
// are never created.
package pgtable
