// SPDX-FileCopyrightText: 2024 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime/debug"

	"github.com/aibor/kvmsandbox/internal/dump"
	"github.com/aibor/kvmsandbox/internal/sandbox"
)

const localConfigFile = ".kvmsandbox-args"

// IO provides input and output details for the command.
type IO struct {
	Stdout io.Writer
	Stderr io.Writer
}

func newFlags(args []string, cfg IO) (*flags, error) {
	args, err := MergedArgs(args, os.DirFS("."), localConfigFile)
	if err != nil {
		return nil, err
	}

	flags, err := parseArgs(args, cfg.Stderr)
	if err != nil {
		return nil, fmt.Errorf("parse args: %w", err)
	}

	return flags, nil
}

func newSandbox(flags *flags) (*sandbox.Sandbox, error) {
	s, err := sandbox.New(flags.Layout)
	if err != nil {
		return nil, fmt.Errorf("new sandbox: %w", err)
	}

	entry, err := s.Load(flags.ExecutablePath)
	if err != nil {
		_ = s.Close()
		return nil, err
	}

	if _, err := s.AddVCPU(entry); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("add vcpu: %w", err)
	}

	return s, nil
}

func run(ctx context.Context, flags *flags, cfg IO) (int, error) {
	err := ValidateFilePath(flags.ExecutablePath)
	if err != nil {
		return 1, fmt.Errorf("validate executable: %w", err)
	}

	slog.Debug("Memory layout", slog.Any("layout", flags.Layout))

	s, err := newSandbox(flags)
	if err != nil {
		return 1, err
	}
	defer s.Close()

	if flags.Timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, flags.Timeout)
		defer cancel()
	}

	rc, runErr := s.Run(ctx, cfg.Stdout)

	if flags.DumpPath != "" {
		err := writeDump(flags.DumpPath, s)
		if err != nil {
			return rc, errors.Join(runErr, err)
		}
	}

	return rc, runErr
}

func writeDump(path string, s *sandbox.Sandbox) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create dump file: %w", err)
	}

	err = dump.Write(file, s.Memory())
	if err != nil {
		_ = file.Close()
		return fmt.Errorf("write dump: %w", err)
	}

	slog.Debug("Wrote memory dump", slog.String("path", path))

	return file.Close()
}

func handleParseArgsError(err error) int {
	// [ErrHelp] is returned when help is requested. So exit without error
	// in this case.
	if errors.Is(err, ErrHelp) {
		return 0
	}

	// ParseArgs already prints errors, so we just exit without an error.
	if !errors.Is(err, &ParseArgsError{}) {
		slog.Error(err.Error())
	}

	return -1
}

func handleRunError(rc int, err error, errOutput io.Writer) int {
	// Do not print the error in case the guest ran successfully and
	// properly communicated a non-zero exit code.
	if errors.Is(err, sandbox.ErrGuestNonZeroExitCode) {
		return rc
	}

	fmt.Fprintf(errOutput, "Error [%s]: %v\n", name, err)

	return -1
}

// Run is the main entry point for the CLI command.
func Run(ctx context.Context, args []string, cfg IO) int {
	setupLogging(cfg.Stderr, false)

	flags, err := newFlags(args, cfg)
	if err != nil {
		return handleParseArgsError(err)
	}

	setupLogging(cfg.Stderr, flags.Debug)

	if flags.Version {
		buildInfo, err := getBuildInfo()
		if err != nil {
			slog.Error(err.Error())
			return -1
		}

		fmt.Fprintf(cfg.Stdout, "Version: %s\n", buildInfo.Main.Version)

		return 0
	}

	rc, err := run(ctx, flags, cfg)
	if err != nil {
		return handleRunError(rc, err, cfg.Stderr)
	}

	return rc
}

func getBuildInfo() (*debug.BuildInfo, error) {
	buildInfo, ok := debug.ReadBuildInfo()
	if !ok {
		return nil, ErrReadBuildInfo
	}

	return buildInfo, nil
}
