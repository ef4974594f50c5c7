// SPDX-FileCopyrightText: 2024 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package kvm

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// APIVersion is the only KVM API version ever released.
const APIVersion = 12

const (
	iocNone  = 0
	iocWrite = 1
	iocRead  = 2

	iocNRShift   = 0
	iocTypeShift = 8
	iocSizeShift = 16
	iocDirShift  = 30

	kvmIO = 0xAE
)

func ioc(dir, nr, size uintptr) uintptr {
	return dir<<iocDirShift | size<<iocSizeShift | kvmIO<<iocTypeShift | nr<<iocNRShift
}

func ioNone(nr uintptr) uintptr {
	return ioc(iocNone, nr, 0)
}

func ioWrite(nr, size uintptr) uintptr {
	return ioc(iocWrite, nr, size)
}

func ioRead(nr, size uintptr) uintptr {
	return ioc(iocRead, nr, size)
}

// Requests used by this package.
var (
	reqGetAPIVersion       = ioNone(0x00)
	reqCreateVM            = ioNone(0x01)
	reqGetVCPUMmapSize     = ioNone(0x04)
	reqCreateVCPU          = ioNone(0x41)
	reqSetUserMemoryRegion = ioWrite(0x46, unsafe.Sizeof(userspaceMemoryRegion{}))
	reqRun                 = ioNone(0x80)
	reqGetOneReg           = ioWrite(0xab, unsafe.Sizeof(oneReg{}))
	reqSetOneReg           = ioWrite(0xac, unsafe.Sizeof(oneReg{}))
	reqARMVCPUInit         = ioWrite(0xae, unsafe.Sizeof(VCPUInit{}))
	reqARMPreferredTarget  = ioRead(0xaf, unsafe.Sizeof(VCPUInit{}))
)

type userspaceMemoryRegion struct {
	Slot          uint32
	Flags         uint32
	GuestPhysAddr uint64
	MemorySize    uint64
	UserspaceAddr uint64
}

type oneReg struct {
	ID   uint64
	Addr uint64
}

// VCPUInit is the target and feature set a vCPU is initialized with.
type VCPUInit struct {
	Target   uint32
	Features [7]uint32
}

// ioctl issues req on fd with a pointer argument.
func ioctl(op string, fd int, req uintptr, arg unsafe.Pointer) (int, error) {
	r, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), req, uintptr(arg))
	if errno != 0 {
		return 0, &IoctlError{Op: op, Err: errno}
	}

	return int(r), nil
}

// ioctlInt issues req on fd with an integer argument.
func ioctlInt(op string, fd int, req, arg uintptr) (int, error) {
	r, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), req, arg)
	if errno != 0 {
		return 0, &IoctlError{Op: op, Err: errno}
	}

	return int(r), nil
}
