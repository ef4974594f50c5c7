// SPDX-FileCopyrightText: 2024 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package dump writes the guest virtual address space as cpio archive.
//
// Each virtual memory area becomes a regular file named after its address
// range, like "0000000000400000-0000000000401000". The file mode reflects
// the protection of the area and the content is read through the guest page
// table, so it is what the guest sees at those addresses. Unmapped pages and
// device areas are zero-filled.
package dump
