// SPDX-FileCopyrightText: 2024 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package kvm

import (
	"errors"
	"fmt"
)

var (
	// ErrAPIVersion is returned if the kernel reports an unexpected KVM API
	// version.
	ErrAPIVersion = errors.New("unsupported KVM API version")

	// ErrRunStateSize is returned if the vCPU run state mapping is too small.
	ErrRunStateSize = errors.New("invalid vCPU run state size")
)

// IoctlError is returned if an ioctl fails.
type IoctlError struct {
	Op  string
	Err error
}

func (e *IoctlError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *IoctlError) Is(other error) bool {
	_, ok := other.(*IoctlError)
	return ok
}

func (e *IoctlError) Unwrap() error {
	return e.Err
}
