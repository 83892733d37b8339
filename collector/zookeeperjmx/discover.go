// SPDX-License-Identifier: GPL-3.0-or-later

package zookeeperjmx

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/jmxstat/zookeeperjmx/pkg/cmdline"
)

type commandRunner interface {
	Run(ctx context.Context, command string) (cmdline.Result, error)
}

// checkPrivileges verifies the plugin runs as root. Attaching the bridge
// agent to arbitrary JVM processes needs it.
func checkPrivileges() error {
	if os.Geteuid() != 0 {
		return errors.New("root privileges required to attach the bridge agent, run the plugin as root")
	}
	return nil
}

// discoverProcessIDs lists pids of running JVM processes whose main class
// matches the configured process name. No matches is not an error.
func (c *Collector) discoverProcessIDs(ctx context.Context) ([]string, error) {
	command := fmt.Sprintf(`jcmd | awk '{print $1 " " $2}' | grep -w %q`, c.ProcessName)

	res, err := c.exec.Run(ctx, command)
	if err != nil {
		return nil, fmt.Errorf("process discovery command: %v", err)
	}
	// grep exits non-zero on no matches, stderr is the failure signal here
	if strings.TrimSpace(res.Stderr) != "" {
		return nil, fmt.Errorf("process discovery command: %s", res.FailReason())
	}

	var pids []string
	for _, line := range strings.Split(res.Stdout, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if _, err := strconv.Atoi(fields[0]); err != nil {
			continue
		}
		pids = append(pids, fields[0])
	}

	return pids, nil
}

// resolveUserID returns the owning (real) user id of a process. The bridge
// agent must run with the same privileges as the target JVM.
func resolveUserID(pid string) (string, error) {
	v, err := strconv.ParseInt(pid, 10, 32)
	if err != nil {
		return "", fmt.Errorf("invalid pid '%s': %v", pid, err)
	}

	p, err := process.NewProcess(int32(v))
	if err != nil {
		return "", fmt.Errorf("failed to retrieve uid for pid %s: %v", pid, err)
	}

	uids, err := p.Uids()
	if err != nil || len(uids) == 0 {
		return "", fmt.Errorf("failed to retrieve uid for pid %s: %v", pid, err)
	}

	return strconv.Itoa(int(uids[0])), nil
}
