// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package cmd

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/aibor/kvmsandbox/internal/kvm"
	"github.com/aibor/kvmsandbox/internal/sandbox"
	"github.com/stretchr/testify/assert"
)

func TestHandleRunError(t *testing.T) {
	tests := []struct {
		name             string
		rc               int
		err              error
		expectedExitCode int
		expectedOutput   string
	}{
		{
			name:             "guest non-zero exit code",
			rc:               43,
			err:              sandbox.ErrGuestNonZeroExitCode,
			expectedExitCode: 43,
		},
		{
			name: "vcpu exit error",
			rc:   1,
			err: &sandbox.ExitError{
				Reason: kvm.ExitMMIO,
				Err:    sandbox.ErrUnhandledMMIO,
			},
			expectedExitCode: -1,
			expectedOutput: "Error [kvmsandbox]: vcpu exit: mmio: " +
				"unhandled MMIO access\n",
		},
		{
			name:             "wrapped error",
			rc:               1,
			err:              fmt.Errorf("new sandbox: %w", assert.AnError),
			expectedExitCode: -1,
			expectedOutput: "Error [kvmsandbox]: new sandbox: " +
				"assert.AnError general error for testing\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdErr bytes.Buffer
			actualExitCode := handleRunError(tt.rc, tt.err, &stdErr)

			assert.Equal(t, tt.expectedExitCode, actualExitCode,
				"exit code should be as expected")
			assert.Equal(t, tt.expectedOutput, stdErr.String(),
				"stderr output should be as expected")
		})
	}
}

func TestHandleParseArgsError(t *testing.T) {
	assert.Equal(t, 0, handleParseArgsError(&ParseArgsError{msg: "flag parse", err: ErrHelp}))
	assert.Equal(t, -1, handleParseArgsError(&ParseArgsError{msg: "no executable given"}))
	assert.Equal(t, -1, handleParseArgsError(assert.AnError))
}

func TestParseArgsError(t *testing.T) {
	assert.Equal(t, "no executable given",
		(&ParseArgsError{msg: "no executable given"}).Error())
	assert.Equal(t, "flag parse: flag: help requested",
		(&ParseArgsError{msg: "flag parse", err: ErrHelp}).Error())
}
