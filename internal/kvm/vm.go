// SPDX-FileCopyrightText: 2024 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package kvm

import (
	"fmt"
	"log/slog"
	"unsafe"

	"golang.org/x/sys/unix"
)

// VM is the handle of a virtual machine.
type VM struct {
	fd     int
	system *System
}

// SetUserMemoryRegion makes host available to the guest at guest physical
// address gpa. host must be page aligned and must stay mapped as long as the
// VM exists.
func (v *VM) SetUserMemoryRegion(slot uint32, gpa uint64, host []byte) error {
	if len(host) == 0 {
		return fmt.Errorf("memory region %d: empty", slot)
	}

	region := userspaceMemoryRegion{
		Slot:          slot,
		GuestPhysAddr: gpa,
		MemorySize:    uint64(len(host)),
		UserspaceAddr: uint64(uintptr(unsafe.Pointer(&host[0]))),
	}

	_, err := ioctl("set user memory region", v.fd, reqSetUserMemoryRegion, unsafe.Pointer(&region))
	if err != nil {
		return err
	}

	slog.Debug("Set user memory region",
		slog.Any("slot", slot),
		slog.String("gpa", fmt.Sprintf("%#x", gpa)),
		slog.Int("size", len(host)),
	)

	return nil
}

// PreferredTarget returns the vCPU target the host recommends.
func (v *VM) PreferredTarget() (VCPUInit, error) {
	var init VCPUInit

	_, err := ioctl("arm preferred target", v.fd, reqARMPreferredTarget, unsafe.Pointer(&init))

	return init, err
}

// CreateVCPU creates the vCPU with the given id and maps its run state.
func (v *VM) CreateVCPU(id uint64) (*VCPU, error) {
	size, err := v.system.VCPUMmapSize()
	if err != nil {
		return nil, err
	}

	if size < runStateMinSize {
		return nil, fmt.Errorf("%w: %d", ErrRunStateSize, size)
	}

	fd, err := ioctlInt("create vcpu", v.fd, reqCreateVCPU, uintptr(id))
	if err != nil {
		return nil, err
	}

	run, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("mmap run state: %w", err)
	}

	slog.Debug("Created vCPU", slog.Uint64("id", id))

	return &VCPU{
		id:  id,
		fd:  fd,
		run: run,
	}, nil
}

// Close closes the VM. All its vCPUs must be closed before.
func (v *VM) Close() error {
	return unix.Close(v.fd)
}
