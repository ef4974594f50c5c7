// SPDX-FileCopyrightText: 2024 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package vma implements the guest virtual address space allocator.
//
// A [Space] hands out disjoint [Area]s, either at a fixed address or top-down
// in the highest free gap that fits. Areas are never unmapped individually;
// the whole space is torn down with [Space.Destroy].
package vma
