// SPDX-FileCopyrightText: 2024 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package sandbox

import (
	"errors"
	"fmt"

	"github.com/aibor/kvmsandbox/internal/kvm"
)

var (
	// ErrNoVCPU is returned if a sandbox without vCPU is run.
	ErrNoVCPU = errors.New("no vCPU")

	// ErrUnhandledMMIO is returned for guest accesses to addresses without
	// device.
	ErrUnhandledMMIO = errors.New("unhandled MMIO access")

	// ErrGuestNonZeroExitCode is returned if the guest did not exit with
	// exit code 0.
	ErrGuestNonZeroExitCode = errors.New("exit code not 0")

	// ErrGuestCrash is returned if the guest reported a crash or requested a
	// reset.
	ErrGuestCrash = errors.New("guest crashed")
)

// ExitError is returned if the vCPU left the guest for a reason the sandbox
// can not handle.
type ExitError struct {
	Reason kvm.ExitReason
	Err    error
}

// Error implements the [error] interface.
func (e *ExitError) Error() string {
	if e.Err == nil {
		return "vcpu exit: " + e.Reason.String()
	}

	return fmt.Sprintf("vcpu exit: %s: %v", e.Reason, e.Err)
}

// Is implements the [errors.Is] interface.
func (*ExitError) Is(other error) bool {
	_, ok := other.(*ExitError)
	return ok
}

// Unwrap implements the [errors.Unwrap] interface.
func (e *ExitError) Unwrap() error {
	return e.Err
}
