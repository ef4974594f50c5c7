// SPDX-FileCopyrightText: 2024 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package sandbox

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/aibor/kvmsandbox/internal/kvm"
	"github.com/aibor/kvmsandbox/internal/layout"
	"github.com/aibor/kvmsandbox/internal/loader"
	"github.com/aibor/kvmsandbox/internal/mm"
	"github.com/aibor/kvmsandbox/internal/sys"
	"github.com/aibor/kvmsandbox/internal/vma"
)

// memorySlot is the KVM memory slot of the guest memory pool.
const memorySlot = 0

// Sandbox is a KVM guest with its memory and vCPUs.
type Sandbox struct {
	system *kvm.System
	vm     *kvm.VM
	mem    *mm.Memory
	vcpus  []*kvm.VCPU
}

// New creates a VM with guest memory as described by l and the console
// device. The host must be able to run [sys.GuestArch] guests with KVM.
func New(l layout.Layout) (*Sandbox, error) {
	if err := sys.GuestArch.KVMAvailable(); err != nil {
		return nil, err
	}

	s := &Sandbox{}

	if err := s.init(l); err != nil {
		_ = s.Close()
		return nil, err
	}

	return s, nil
}

func (s *Sandbox) init(l layout.Layout) error {
	var err error

	s.system, err = kvm.Open()
	if err != nil {
		return err
	}

	s.vm, err = s.system.CreateVM(l.PABits)
	if err != nil {
		return err
	}

	s.mem, err = mm.New(l)
	if err != nil {
		return fmt.Errorf("guest memory: %w", err)
	}

	pool := s.mem.Pool()

	err = s.vm.SetUserMemoryRegion(memorySlot, pool.Base(), pool.Host())
	if err != nil {
		return err
	}

	_, err = s.mem.DeviceRegion(ConsoleAddr, consoleSize, vma.ProtRead|vma.ProtWrite)
	if err != nil {
		return fmt.Errorf("console device: %w", err)
	}

	return nil
}

// Memory returns the guest memory.
func (s *Sandbox) Memory() *mm.Memory {
	return s.mem
}

// Load loads the ELF executable at path and returns its entry point.
func (s *Sandbox) Load(path string) (uint64, error) {
	entry, err := loader.LoadFile(s.mem, path)
	if err != nil {
		return 0, fmt.Errorf("load %s: %w", path, err)
	}

	slog.Debug("Loaded executable",
		slog.String("path", path),
		slog.String("entry", fmt.Sprintf("%#x", entry)),
	)

	return entry, nil
}

// AddVCPU creates a vCPU that starts at entry. It gets a one page stack
// placed top-down in the guest address space. Its id is one above the
// highest id in use, so the first vCPU gets id 0.
func (s *Sandbox) AddVCPU(entry uint64) (*kvm.VCPU, error) {
	var id uint64
	for _, vcpu := range s.vcpus {
		if vcpu.ID() >= id {
			id = vcpu.ID() + 1
		}
	}

	l := s.mem.Layout()

	stack, err := s.mem.Region(0, l.PageSize(), 0, vma.ProtRead|vma.ProtWrite)
	if err != nil {
		return nil, fmt.Errorf("stack: %w", err)
	}

	vcpu, err := s.vm.CreateVCPU(id)
	if err != nil {
		return nil, err
	}

	state := bootState{
		id:       id,
		entry:    entry,
		stackEnd: stack.Area.End(),
		pgtable:  s.mem.PageTableRoot(),
	}

	if err := s.initVCPU(vcpu, state); err != nil {
		_ = vcpu.Close()
		return nil, fmt.Errorf("vcpu %d: %w", id, err)
	}

	s.vcpus = append(s.vcpus, vcpu)

	slog.Debug("Added vCPU",
		slog.Uint64("id", id),
		slog.String("stack", stack.Area.String()),
	)

	return vcpu, nil
}

func (s *Sandbox) initVCPU(vcpu *kvm.VCPU, state bootState) error {
	target, err := s.vm.PreferredTarget()
	if err != nil {
		return err
	}

	vcpuInit := kvm.VCPUInit{Target: target.Target}
	vcpuInit.Features[0] |= featurePSCI02

	if err := vcpu.Init(vcpuInit); err != nil {
		return err
	}

	sctlr, err := vcpu.GetReg(kvm.RegSCTLREL1)
	if err != nil {
		return err
	}

	tcr, err := vcpu.GetReg(kvm.RegTCREL1)
	if err != nil {
		return err
	}

	for _, reg := range bootRegisters(s.mem.Layout(), state, sctlr, tcr) {
		if err := vcpu.SetReg(reg.id, reg.value); err != nil {
			return err
		}
	}

	return nil
}

// Close releases vCPUs, guest memory and the VM in reverse order of
// creation.
func (s *Sandbox) Close() error {
	var errs []error

	for idx := len(s.vcpus) - 1; idx >= 0; idx-- {
		errs = append(errs, s.vcpus[idx].Close())
	}

	s.vcpus = nil

	if s.vm != nil {
		errs = append(errs, s.vm.Close())
		s.vm = nil
	}

	if s.mem != nil {
		errs = append(errs, s.mem.Close())
		s.mem = nil
	}

	if s.system != nil {
		errs = append(errs, s.system.Close())
		s.system = nil
	}

	return errors.Join(errs...)
}
