// SPDX-FileCopyrightText: 2024 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package layout provides the memory layout configuration of a guest: page
// size, address widths, page table depth and the extent of guest physical
// memory.
package layout
