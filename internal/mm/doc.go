// SPDX-FileCopyrightText: 2024 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package mm manages the memory of a guest.
//
// A [Pool] is the flat guest physical memory, backed by anonymous host memory.
// [Memory] ties the pool together with the frame allocator, the guest virtual
// address space and the page table builder.
package mm
