// SPDX-FileCopyrightText: 2024 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package kvm

// RegID identifies a register for [VCPU.GetReg] and [VCPU.SetReg].
type RegID uint64

const (
	regARM64   = 0x6000000000000000
	regSizeU64 = 0x0030000000000000

	regARMCore  = 0x0010 << 16
	regARMSys   = 0x0013 << 16
	regCoreSize = 4
)

// CoreReg returns the id of the core register at byte offset off within the
// kernel's struct kvm_regs.
func CoreReg(off uint64) RegID {
	return RegID(regARM64 | regSizeU64 | regARMCore | off/regCoreSize)
}

// SysReg returns the id of the system register with the given encoding.
func SysReg(op0, op1, crn, crm, op2 uint64) RegID {
	return RegID(regARM64 | regSizeU64 | regARMSys |
		(op0<<14)&0xc000 |
		(op1<<11)&0x3800 |
		(crn<<7)&0x0780 |
		(crm<<3)&0x0078 |
		op2&0x0007)
}

// Offsets within struct kvm_regs: 31 general purpose registers, sp, pc and
// pstate of struct user_pt_regs, followed by sp_el1.
const (
	offX0     = 0
	offSP     = 31 * 8
	offPC     = 32 * 8
	offPState = 33 * 8
	offSPEL1  = 34 * 8
)

// Core registers.
var (
	RegSP     = CoreReg(offSP)
	RegPC     = CoreReg(offPC)
	RegPState = CoreReg(offPState)
	RegSPEL1  = CoreReg(offSPEL1)
)

// RegX returns the id of general purpose register n.
func RegX(n uint64) RegID {
	return CoreReg(offX0 + n*8)
}

// System registers.
var (
	RegSCTLREL1 = SysReg(3, 0, 1, 0, 0)
	RegCPACREL1 = SysReg(3, 0, 1, 0, 2)
	RegTTBR0EL1 = SysReg(3, 0, 2, 0, 0)
	RegTCREL1   = SysReg(3, 0, 2, 0, 2)
	RegMAIREL1  = SysReg(3, 0, 10, 2, 0)
	RegTPIDREL1 = SysReg(3, 0, 13, 0, 4)
)
