// SPDX-FileCopyrightText: 2024 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package kvm

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Offsets within struct kvm_run.
const (
	runImmediateExit = 1
	runExitReason    = 8
	runExitData      = 32

	runMMIOPhysAddr = runExitData
	runMMIOData     = runExitData + 8
	runMMIOLen      = runExitData + 16
	runMMIOIsWrite  = runExitData + 20

	runSystemEventType = runExitData

	runInternalSuberror = runExitData

	runStateMinSize = 2048
)

// immediate_exit is byte 1 of the first 32 bit word of struct kvm_run.
const immediateExitBit = 1 << (8 * runImmediateExit)

// VCPU is the handle of a virtual CPU. Its methods must only be called by
// the thread that runs it, except [VCPU.Kick].
type VCPU struct {
	id  uint64
	fd  int
	run []byte
}

// ID returns the id the vCPU was created with.
func (c *VCPU) ID() uint64 {
	return c.id
}

// Init initializes the vCPU for the given target and features.
func (c *VCPU) Init(init VCPUInit) error {
	_, err := ioctl("arm vcpu init", c.fd, reqARMVCPUInit, unsafe.Pointer(&init))
	return err
}

// GetReg reads a 64 bit register.
func (c *VCPU) GetReg(id RegID) (uint64, error) {
	var value uint64

	reg := oneReg{
		ID:   uint64(id),
		Addr: uint64(uintptr(unsafe.Pointer(&value))),
	}

	_, err := ioctl(fmt.Sprintf("get reg %#x", uint64(id)), c.fd, reqGetOneReg, unsafe.Pointer(&reg))

	return value, err
}

// SetReg writes a 64 bit register.
func (c *VCPU) SetReg(id RegID, value uint64) error {
	reg := oneReg{
		ID:   uint64(id),
		Addr: uint64(uintptr(unsafe.Pointer(&value))),
	}

	_, err := ioctl(fmt.Sprintf("set reg %#x", uint64(id)), c.fd, reqSetOneReg, unsafe.Pointer(&reg))

	return err
}

// Run enters the guest until the next exit. It returns an [IoctlError]
// wrapping [unix.EINTR] if interrupted by a signal or by [VCPU.Kick].
func (c *VCPU) Run() error {
	_, err := ioctlInt("run", c.fd, reqRun, 0)
	return err
}

// Kick makes the current or next [VCPU.Run] return with [unix.EINTR]. It is
// safe to call from any goroutine. The running thread must still be
// signaled to leave a guest that is already running.
func (c *VCPU) Kick() {
	atomic.OrUint32(c.runWord(), immediateExitBit)
}

// ClearKick resets the effect of [VCPU.Kick].
func (c *VCPU) ClearKick() {
	atomic.AndUint32(c.runWord(), ^uint32(immediateExitBit))
}

func (c *VCPU) runWord() *uint32 {
	return (*uint32)(unsafe.Pointer(&c.run[0]))
}

// ExitReason returns the reason of the last exit.
func (c *VCPU) ExitReason() ExitReason {
	return ExitReason(binary.NativeEndian.Uint32(c.run[runExitReason:]))
}

// MMIO returns the data of the last [ExitMMIO].
func (c *VCPU) MMIO() MMIO {
	mmio := MMIO{
		PhysAddr: binary.NativeEndian.Uint64(c.run[runMMIOPhysAddr:]),
		Len:      binary.NativeEndian.Uint32(c.run[runMMIOLen:]),
		IsWrite:  c.run[runMMIOIsWrite] != 0,
	}

	copy(mmio.Data[:], c.run[runMMIOData:runMMIOData+8])

	return mmio
}

// SetMMIOData sets the data returned to the guest for an MMIO read.
func (c *VCPU) SetMMIOData(data []byte) {
	copy(c.run[runMMIOData:runMMIOData+8], data)
}

// SystemEvent returns the type of the last [ExitSystemEvent].
func (c *VCPU) SystemEvent() SystemEventType {
	return SystemEventType(binary.NativeEndian.Uint32(c.run[runSystemEventType:]))
}

// InternalError returns the suberror of the last [ExitInternalError].
func (c *VCPU) InternalError() uint32 {
	return binary.NativeEndian.Uint32(c.run[runInternalSuberror:])
}

// Close unmaps the run state and closes the vCPU.
func (c *VCPU) Close() error {
	var munmapErr error

	if c.run != nil {
		munmapErr = unix.Munmap(c.run)
		c.run = nil
	}

	return errors.Join(munmapErr, unix.Close(c.fd))
}
