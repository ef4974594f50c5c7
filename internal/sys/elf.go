// SPDX-FileCopyrightText: 2024 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package sys

import (
	"debug/elf"
	"fmt"
)

// ValidateELF validates that ELF attributes match the requested architecture.
func ValidateELF(hdr elf.FileHeader, arch Arch) error {
	switch hdr.OSABI {
	case elf.ELFOSABI_NONE, elf.ELFOSABI_LINUX:
		// supported, pass
	default:
		return fmt.Errorf("%w: %s", ErrOSABINotSupported, hdr.OSABI)
	}

	machine, err := arch.Machine()
	if err != nil {
		return err
	}

	if hdr.Machine != machine {
		return fmt.Errorf(
			"%w: %s on %s",
			ErrMachineNotSupported,
			hdr.Machine,
			arch,
		)
	}

	if hdr.Class != elf.ELFCLASS64 || hdr.Data != elf.ELFDATA2LSB {
		return fmt.Errorf("%w: %s %s", ErrMachineNotSupported, hdr.Class, hdr.Data)
	}

	return nil
}
