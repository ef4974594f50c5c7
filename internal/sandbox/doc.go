// SPDX-FileCopyrightText: 2024 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package sandbox runs a single statically linked arm64 ELF executable as
// the only software of a KVM guest.
//
// The executable runs at EL1 with the MMU enabled. Its segments, a one page
// stack per vCPU and a console device are the only mapped virtual memory. The
// console device is a page of MMIO registers at [ConsoleAddr]:
//
//	offset 0x0: data, bytes written are passed to the console writer
//	offset 0x8: exit, writing a value ends the run with it as exit code
//
// A PSCI SYSTEM_OFF call ends the run with exit code 0.
package sandbox
