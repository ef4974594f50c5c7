// SPDX-FileCopyrightText: 2024 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package kvm

import "fmt"

// ExitReason is the reason KVM_RUN returned to user space.
type ExitReason uint32

// Exit reasons.
const (
	ExitUnknown       ExitReason = 0
	ExitException     ExitReason = 1
	ExitIO            ExitReason = 2
	ExitHypercall     ExitReason = 3
	ExitDebug         ExitReason = 4
	ExitHLT           ExitReason = 5
	ExitMMIO          ExitReason = 6
	ExitShutdown      ExitReason = 8
	ExitFailEntry     ExitReason = 9
	ExitIntr          ExitReason = 10
	ExitInternalError ExitReason = 17
	ExitSystemEvent   ExitReason = 24
	ExitARMNISV       ExitReason = 28
)

var exitReasonNames = map[ExitReason]string{
	ExitUnknown:       "unknown",
	ExitException:     "exception",
	ExitIO:            "io",
	ExitHypercall:     "hypercall",
	ExitDebug:         "debug",
	ExitHLT:           "hlt",
	ExitMMIO:          "mmio",
	ExitShutdown:      "shutdown",
	ExitFailEntry:     "fail entry",
	ExitIntr:          "interrupted",
	ExitInternalError: "internal error",
	ExitSystemEvent:   "system event",
	ExitARMNISV:       "arm nisv",
}

func (r ExitReason) String() string {
	if name, exists := exitReasonNames[r]; exists {
		return name
	}

	return fmt.Sprintf("exit reason %d", uint32(r))
}

// SystemEventType is the type of an [ExitSystemEvent].
type SystemEventType uint32

// System event types.
const (
	SystemEventShutdown SystemEventType = 1
	SystemEventReset    SystemEventType = 2
	SystemEventCrash    SystemEventType = 3
)

func (t SystemEventType) String() string {
	switch t {
	case SystemEventShutdown:
		return "shutdown"
	case SystemEventReset:
		return "reset"
	case SystemEventCrash:
		return "crash"
	default:
		return fmt.Sprintf("system event %d", uint32(t))
	}
}

// MMIO is the data of an [ExitMMIO].
type MMIO struct {
	PhysAddr uint64
	Data     [8]byte
	Len      uint32
	IsWrite  bool
}

// Bytes returns the valid part of Data.
func (m *MMIO) Bytes() []byte {
	return m.Data[:min(m.Len, uint32(len(m.Data)))]
}
