// SPDX-FileCopyrightText: 2024 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package cmd

import (
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/aibor/kvmsandbox/internal/layout"
)

const (
	name = "kvmsandbox"

	usageMessage = `Usage of 'kvmsandbox':
    kvmsandbox [flags...] executable

Run a static arm64 ELF executable in a KVM guest without kernel. The guest
writes to the console at 0x09000000 and exits by writing its exit code to
0x09000008 or by PSCI SYSTEM_OFF.

All kvmsandbox flags can also be provided via environment variable
KVMSANDBOX_ARGS:
	KVMSANDBOX_ARGS="-pages=1024 -debug" kvmsandbox ./guest

All kvmsandbox flags can also be provided via file ./.kvmsandbox-args, with
one argument per line.
`
)

type flags struct {
	Layout         layout.Layout
	ExecutablePath string
	DumpPath       string
	Timeout        time.Duration
	Debug          bool
	Version        bool
}

func newDefaultFlags() *flags {
	flags := &flags{
		Layout: layout.Default(),
	}

	// Derived on validation, so it follows pageShift and vaBits.
	flags.Layout.Levels = 0

	return flags
}

func parseArgs(args []string, output io.Writer) (*flags, error) {
	flags := newDefaultFlags()
	flagSet := flags.newFlagSet(output)

	// Parses arguments up to the first one that is not prefixed with a "-" or
	// is "--".
	if err := flagSet.Parse(args); err != nil {
		return nil, &ParseArgsError{msg: "flag parse", err: err}
	}

	// With version flag, just return early. The executable is not needed.
	if flags.Version {
		return flags, nil
	}

	positionalArgs := flagSet.Args()

	if len(positionalArgs) < 1 {
		return nil, fail(flagSet, "no executable given", nil)
	}

	if len(positionalArgs) > 1 {
		return nil, fail(flagSet, fmt.Sprintf("unexpected arguments %q", positionalArgs[1:]), nil)
	}

	executable, err := absolutePath(positionalArgs[0])
	if err != nil {
		return nil, fail(flagSet, "executable path", err)
	}

	flags.ExecutablePath = executable

	if err := flags.Layout.Validate(); err != nil {
		return nil, fail(flagSet, "memory layout", err)
	}

	return flags, nil
}

func (f *flags) newFlagSet(output io.Writer) *flag.FlagSet {
	flagSet := flag.NewFlagSet(name, flag.ContinueOnError)
	flagSet.SetOutput(output)
	flagSet.Usage = func() {
		fmt.Fprint(flagSet.Output(), usageMessage)
		fmt.Fprintln(flagSet.Output(), "\nFlags:")
		flagSet.PrintDefaults()
	}

	flagSet.Var(
		&LimitedUintValue{
			Value: &f.Layout.PageShift,
			Lower: 12,
			Upper: 16,
		},
		"pageShift",
		"log2 of the guest page size: 12, 14 or 16",
	)

	flagSet.Var(
		&LimitedUintValue{
			Value: &f.Layout.VABits,
			Lower: 13,
			Upper: 52,
		},
		"vaBits",
		"width of guest virtual addresses",
	)

	flagSet.Var(
		&LimitedUintValue{
			Value: &f.Layout.PABits,
			Lower: 32,
			Upper: layout.MaxPABits,
		},
		"paBits",
		"width of guest physical addresses",
	)

	flagSet.Var(
		&LimitedUintValue{
			Value: &f.Layout.Levels,
			Upper: 5,
		},
		"levels",
		"number of page table levels (0 derives it from pageShift and vaBits)",
	)

	flagSet.Var(
		&LimitedUintValue{
			Value: &f.Layout.PhysBase,
		},
		"physBase",
		"frame number of the first guest memory frame",
	)

	flagSet.Var(
		&LimitedUintValue{
			Value: &f.Layout.PhysPages,
			Lower: 1,
			Upper: 1 << 20,
		},
		"pages",
		"number of guest memory frames",
	)

	flagSet.Var(
		(*FilePath)(&f.DumpPath),
		"dump",
		"write guest memory areas as cpio archive to the given file after the run",
	)

	flagSet.DurationVar(
		&f.Timeout,
		"timeout",
		f.Timeout,
		"stop the guest after the given duration (0 means no timeout)",
	)

	flagSet.BoolVar(
		&f.Debug,
		"debug",
		f.Debug,
		"enable debug output",
	)

	flagSet.BoolVar(
		&f.Version,
		"version",
		f.Version,
		"show version and exit",
	)

	return flagSet
}

// fail fails like flag does. It prints the error first and then usage.
func fail(flagSet *flag.FlagSet, msg string, err error) error {
	err = &ParseArgsError{msg: msg, err: err}
	fmt.Fprintln(flagSet.Output(), err.Error())

	flagSet.Usage()

	return err
}
