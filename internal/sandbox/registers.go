// SPDX-FileCopyrightText: 2024 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package sandbox

import (
	"github.com/aibor/kvmsandbox/internal/kvm"
	"github.com/aibor/kvmsandbox/internal/layout"
)

// SCTLR_EL1 bits.
const (
	sctlrM = 1 << 0  // MMU enable
	sctlrC = 1 << 2  // data cache enable
	sctlrI = 1 << 12 // instruction cache enable
)

// TCR_EL1 fields for TTBR0 walks.
const (
	tcrIRGN0WBWA  = 1 << 8
	tcrORGN0WBWA  = 1 << 10
	tcrSH0Inner   = 3 << 12
	tcrTG0Shift   = 14
	tcrIPSShift   = 32
	tcrT0SZMask   = 0x3f
	tcrTG0Mask    = 3 << tcrTG0Shift
	tcrIPSMask    = 7 << tcrIPSShift
	cpacrFPENFull = 3 << 20
)

// MAIR_EL1 attributes by index. Index 0 is device memory, index 4 normal
// write-back memory.
const mair = 0x00 | // Device-nGnRnE
	0x04<<8 | // Device-nGnRE
	0x0c<<16 | // Device-GRE
	0x44<<24 | // Normal non-cacheable
	0xff<<32 | // Normal write-back
	0xbb<<40 // Normal write-through

// EL1h with all exceptions masked.
const pstateEL1h = 0x3c5

// PSCI 0.2 feature bit of [kvm.VCPUInit].
const featurePSCI02 = 1 << 2

// tcrGranule returns the TG0 encoding of the page size.
func tcrGranule(pageShift uint64) uint64 {
	switch pageShift {
	case 16:
		return 1
	case 14:
		return 2
	default:
		return 0
	}
}

// tcrIPS returns the smallest intermediate physical address size encoding
// covering paBits.
func tcrIPS(paBits uint64) uint64 {
	sizes := []uint64{32, 36, 40, 42, 44, 48, 52}

	for ips, size := range sizes {
		if paBits <= size {
			return uint64(ips)
		}
	}

	return uint64(len(sizes) - 1)
}

type regValue struct {
	id    kvm.RegID
	value uint64
}

// bootState is what a vCPU needs to start executing the loaded program.
type bootState struct {
	id       uint64
	entry    uint64
	stackEnd uint64
	pgtable  uint64
}

// bootRegisters returns the register values for a vCPU to start at the
// entry point with the MMU enabled. sctlr and tcr are the reset values read
// from the vCPU.
func bootRegisters(l layout.Layout, state bootState, sctlr, tcr uint64) []regValue {
	sctlr |= sctlrM | sctlrC | sctlrI

	tcr &^= tcrT0SZMask | tcrTG0Mask | tcrIPSMask
	tcr |= tcrIRGN0WBWA | tcrORGN0WBWA | tcrSH0Inner
	tcr |= tcrGranule(l.PageShift) << tcrTG0Shift
	tcr |= tcrIPS(l.PABits) << tcrIPSShift
	tcr |= (64 - l.VABits) & tcrT0SZMask

	return []regValue{
		{kvm.RegCPACREL1, cpacrFPENFull},
		{kvm.RegSCTLREL1, sctlr},
		{kvm.RegTCREL1, tcr},
		{kvm.RegMAIREL1, mair},
		{kvm.RegTTBR0EL1, state.pgtable},
		{kvm.RegTPIDREL1, state.id},
		{kvm.RegSPEL1, state.stackEnd},
		{kvm.RegPState, pstateEL1h},
		{kvm.RegPC, state.entry},
	}
}
