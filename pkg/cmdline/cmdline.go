// SPDX-License-Identifier: GPL-3.0-or-later

package cmdline

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strconv"
	"strings"

	"github.com/jmxstat/zookeeperjmx/logger"
)

const stderrLimit = 8 << 10 // 8 KiB

// Result holds the captured output of a finished command.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Failed reports whether the command should be treated as failed.
// Exit status alone is not authoritative for the tools this plugin shells
// out to: some of them exit zero but print the problem to stderr, so any
// stderr output counts as a failure too.
func (r Result) Failed() bool {
	return r.ExitCode != 0 || strings.TrimSpace(r.Stderr) != ""
}

// FailReason returns a short human-readable description of the failure.
func (r Result) FailReason() string {
	s := strings.TrimSpace(r.Stderr)
	if len(s) > stderrLimit {
		s = s[:stderrLimit] + "… (truncated)"
	}
	if s == "" {
		return "exit code " + strconv.Itoa(r.ExitCode)
	}
	return s
}

// Executor runs shell command lines and captures their output.
type Executor struct {
	*logger.Logger
}

func NewExecutor(log *logger.Logger) *Executor {
	return &Executor{Logger: log}
}

// Run executes the command line via the shell and blocks until it exits.
// No timeout is enforced at this layer; cancellation is the caller's job
// via ctx.
func (e *Executor) Run(ctx context.Context, command string) (Result, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", command)

	e.Debugf("executing: %s", command)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	res := Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: -1,
	}
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}

	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			// the command never ran (spawn failure, canceled context)
			return res, err
		}
	}

	return res, nil
}
