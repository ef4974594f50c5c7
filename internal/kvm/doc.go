// SPDX-FileCopyrightText: 2024 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package kvm is a thin wrapper around the ioctl interface of /dev/kvm for
// arm64 guests.
//
// There are three kinds of handles, each owning a file descriptor: the
// [System], a [VM] created from it and the [VCPU]s of a VM. Handles must be
// closed in reverse order of creation.
package kvm
