// SPDX-FileCopyrightText: 2024 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package sandbox

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/aibor/kvmsandbox/internal/kvm"
)

// ConsoleAddr is the guest physical and virtual address of the console
// device. It is outside of guest memory for all supported layouts with less
// than 144 MiB of memory at base 0.
const ConsoleAddr = 0x0900_0000

// Console device registers.
const (
	ConsoleRegData = 0x0
	ConsoleRegExit = 0x8

	consoleSize = 0x10
)

type deviceResult struct {
	exit     bool
	exitCode int
}

// console is the MMIO console device.
type console struct {
	out io.Writer
}

// handle processes a single MMIO access. Reads always return zero.
func (c *console) handle(mmio *kvm.MMIO) (deviceResult, error) {
	if mmio.PhysAddr < ConsoleAddr || mmio.PhysAddr >= ConsoleAddr+consoleSize {
		return deviceResult{}, &ExitError{
			Reason: kvm.ExitMMIO,
			Err:    fmt.Errorf("%w: %#x", ErrUnhandledMMIO, mmio.PhysAddr),
		}
	}

	if !mmio.IsWrite {
		clear(mmio.Data[:])
		return deviceResult{}, nil
	}

	switch mmio.PhysAddr - ConsoleAddr {
	case ConsoleRegData:
		if _, err := c.out.Write(mmio.Bytes()); err != nil {
			return deviceResult{}, fmt.Errorf("console: %w", err)
		}
	case ConsoleRegExit:
		var value [8]byte

		copy(value[:], mmio.Bytes())

		return deviceResult{
			exit:     true,
			exitCode: int(int32(binary.LittleEndian.Uint64(value[:]))),
		}, nil
	}

	return deviceResult{}, nil
}
