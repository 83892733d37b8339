// SPDX-License-Identifier: GPL-3.0-or-later

package cmdline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmxstat/zookeeperjmx/logger"
)

func TestExecutor_Run(t *testing.T) {
	tests := map[string]struct {
		command    string
		wantStdout string
		wantFailed bool
	}{
		"stdout only": {
			command:    "echo hello",
			wantStdout: "hello\n",
			wantFailed: false,
		},
		"pipeline": {
			command:    `printf '1 a\n2 b\n' | grep -w b`,
			wantStdout: "2 b\n",
			wantFailed: false,
		},
		"non-zero exit": {
			command:    "exit 3",
			wantFailed: true,
		},
		"stderr output with zero exit": {
			command:    "echo oops >&2",
			wantFailed: true,
		},
	}

	e := NewExecutor(logger.New())

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			res, err := e.Run(context.Background(), test.command)

			require.NoError(t, err)
			assert.Equal(t, test.wantStdout, res.Stdout)
			assert.Equal(t, test.wantFailed, res.Failed())
		})
	}
}

func TestResult_FailReason(t *testing.T) {
	assert.Equal(t, "exit code 3", Result{ExitCode: 3}.FailReason())
	assert.Equal(t, "boom", Result{ExitCode: 0, Stderr: "boom\n"}.FailReason())
}
