// SPDX-FileCopyrightText: 2024 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package kvm

import (
	"fmt"
	"log/slog"

	"github.com/aibor/kvmsandbox/internal/sys"
	"golang.org/x/sys/unix"
)

// DefaultIPABits is the guest physical address width of VMs created without
// explicit IPA size.
const DefaultIPABits = 40

// System is the handle of the KVM device.
type System struct {
	fd int
}

// Open opens the KVM device and checks its API version.
func Open() (*System, error) {
	fd, err := unix.Open(sys.KVMDevice, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", sys.KVMDevice, err)
	}

	s := &System{fd: fd}

	version, err := ioctlInt("get api version", fd, reqGetAPIVersion, 0)
	if err != nil {
		_ = s.Close()
		return nil, err
	}

	if version != APIVersion {
		_ = s.Close()
		return nil, fmt.Errorf("%w: %d", ErrAPIVersion, version)
	}

	return s, nil
}

// VCPUMmapSize returns the size of the run state mapping of a vCPU.
func (s *System) VCPUMmapSize() (int, error) {
	return ioctlInt("get vcpu mmap size", s.fd, reqGetVCPUMmapSize, 0)
}

// CreateVM creates a new VM. If ipaBits is larger than [DefaultIPABits], the
// VM is created with that guest physical address width.
func (s *System) CreateVM(ipaBits uint64) (*VM, error) {
	var vmType uintptr
	if ipaBits > DefaultIPABits {
		vmType = uintptr(ipaBits & 0xff)
	}

	fd, err := ioctlInt("create vm", s.fd, reqCreateVM, vmType)
	if err != nil {
		return nil, err
	}

	slog.Debug("Created VM", slog.Int("fd", fd))

	return &VM{
		fd:     fd,
		system: s,
	}, nil
}

// Close closes the KVM device.
func (s *System) Close() error {
	return unix.Close(s.fd)
}
