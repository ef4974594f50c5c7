// SPDX-FileCopyrightText: 2024 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package sys

import (
	"debug/elf"
	"fmt"
	"os"
	"runtime"
)

// KVMDevice is the device file of the kernel virtual machine.
const KVMDevice = "/dev/kvm"

type Arch string

// Supported guest architectures.
const (
	AMD64   Arch = "amd64"
	ARM64   Arch = "arm64"
	RISCV64 Arch = "riscv64"
)

// Native is the architecture of the host. Guests can only run with KVM on
// the host architecture.
const Native Arch = Arch(runtime.GOARCH)

// GuestArch is the only architecture the sandbox sets up guests for.
const GuestArch = ARM64

func (a Arch) String() string {
	return string(a)
}

func (a Arch) IsNative() bool {
	return Native == a
}

// Machine returns the ELF machine type of the architecture.
func (a Arch) Machine() (elf.Machine, error) {
	switch a {
	case AMD64:
		return elf.EM_X86_64, nil
	case ARM64:
		return elf.EM_AARCH64, nil
	case RISCV64:
		return elf.EM_RISCV, nil
	default:
		return elf.EM_NONE, fmt.Errorf("%w: %s", ErrArchNotSupported, string(a))
	}
}

// KVMAvailable checks if KVM can be used for guests of the given
// architecture.
func (a Arch) KVMAvailable() error {
	if !a.IsNative() {
		return fmt.Errorf("%w: %s guest on %s host", ErrKVMNotAvailable, a, Native)
	}

	f, err := os.OpenFile(KVMDevice, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrKVMNotAvailable, err)
	}

	_ = f.Close()

	return nil
}
