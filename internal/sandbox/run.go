// SPDX-FileCopyrightText: 2024 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package sandbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"sync"

	"github.com/aibor/kvmsandbox/internal/kvm"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"
)

// guestExit is returned by a vCPU loop if the guest requested to stop.
type guestExit struct {
	code int
}

func (e *guestExit) Error() string {
	return fmt.Sprintf("guest exit %d", e.code)
}

// Run runs all vCPUs until the guest exits or ctx is done. Console output
// of the guest is written to out.
//
// It returns the exit code of the guest. If the guest exits with a code
// other than 0, [ErrGuestNonZeroExitCode] is returned along with it. For
// any other error the returned exit code is 1.
func (s *Sandbox) Run(ctx context.Context, out io.Writer) (int, error) {
	rc := 1

	if len(s.vcpus) == 0 {
		return rc, ErrNoVCPU
	}

	dev := &lockedConsole{console: console{out: out}}
	group, ctx := errgroup.WithContext(ctx)

	for _, vcpu := range s.vcpus {
		tids := make(chan int, 1)
		done := make(chan struct{})

		group.Go(func() error {
			defer close(done)
			return runVCPU(ctx, vcpu, dev, tids)
		})

		group.Go(func() error {
			watchVCPU(ctx, vcpu, tids, done)
			return nil
		})
	}

	err := group.Wait()

	var exit *guestExit
	if !errors.As(err, &exit) {
		return rc, err
	}

	slog.Debug("Guest exited", slog.Int("exit_code", exit.code))

	if exit.code != 0 {
		return exit.code, ErrGuestNonZeroExitCode
	}

	return exit.code, nil
}

// runVCPU enters the guest in a loop and handles its exits. The goroutine is
// locked to its OS thread, whose id is sent on tids, so the thread can be
// signaled out of the guest.
func runVCPU(ctx context.Context, vcpu *kvm.VCPU, dev *lockedConsole, tids chan<- int) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	vcpu.ClearKick()
	tids <- unix.Gettid()

	for {
		err := vcpu.Run()
		if err != nil {
			if !errors.Is(err, unix.EINTR) {
				return err
			}

			// Signals for goroutine preemption interrupt as well.
			if ctx.Err() != nil {
				return ctx.Err()
			}

			continue
		}

		err = handleExit(ctx, vcpu, dev)
		if err != nil {
			return err
		}
	}
}

// watchVCPU kicks the vCPU out of the guest once ctx is done.
func watchVCPU(ctx context.Context, vcpu *kvm.VCPU, tids <-chan int, done <-chan struct{}) {
	var tid int

	select {
	case tid = <-tids:
	case <-done:
		return
	}

	select {
	case <-done:
	case <-ctx.Done():
		vcpu.Kick()

		// The thread may have left already, so ESRCH is fine.
		_ = unix.Tgkill(unix.Getpid(), tid, unix.SIGURG)
	}
}

func handleExit(ctx context.Context, vcpu *kvm.VCPU, dev *lockedConsole) error {
	reason := vcpu.ExitReason()

	switch reason {
	case kvm.ExitMMIO:
		mmio := vcpu.MMIO()

		result, err := dev.handle(&mmio)
		if err != nil {
			return err
		}

		if !mmio.IsWrite {
			vcpu.SetMMIOData(mmio.Data[:])
		}

		if result.exit {
			return &guestExit{code: result.exitCode}
		}
	case kvm.ExitSystemEvent:
		event := vcpu.SystemEvent()
		if event == kvm.SystemEventShutdown {
			return &guestExit{code: 0}
		}

		return &ExitError{
			Reason: reason,
			Err:    fmt.Errorf("%w: %s", ErrGuestCrash, event),
		}
	case kvm.ExitIntr:
		return ctx.Err()
	case kvm.ExitInternalError:
		return &ExitError{
			Reason: reason,
			Err:    fmt.Errorf("suberror %d", vcpu.InternalError()),
		}
	default:
		return &ExitError{Reason: reason}
	}

	return nil
}

// lockedConsole serializes device access of multiple vCPUs.
type lockedConsole struct {
	console
	mu sync.Mutex
}

func (c *lockedConsole) handle(mmio *kvm.MMIO) (deviceResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.console.handle(mmio)
}
