// SPDX-License-Identifier: GPL-3.0-or-later

package zookeeperjmx

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/jmxstat/zookeeperjmx/logger"
	"github.com/jmxstat/zookeeperjmx/pkg/cmdline"
	"github.com/jmxstat/zookeeperjmx/pkg/jolokia"
	"github.com/jmxstat/zookeeperjmx/pkg/web"
)

type bridgeManager interface {
	// ensureAgentRunning returns the port of a healthy bridge agent for
	// the pid, starting one if needed. It is idempotent: agents are
	// long-lived and may be shared with other collectors, so an already
	// running agent is reused, never restarted.
	ensureAgentRunning(ctx context.Context, pid string) (int, error)

	// isReachable probes the agent's version endpoint.
	isReachable(port int) bool
}

type jolokiaBridge struct {
	*logger.Logger

	exec       commandRunner
	resolveUID func(pid string) (string, error)
	jarPath    string
	listenerIP string
	httpClient *http.Client
	urlForPort func(port int) string
}

func (b *jolokiaBridge) ensureAgentRunning(ctx context.Context, pid string) (int, error) {
	res, err := b.agentCommand(ctx, "status", pid, 0)
	if err == nil && !res.Failed() {
		port, perr := parseStatusPort(res.Stdout)
		if perr == nil {
			b.Debugf("bridge agent is already running for pid %s on port %d", pid, port)
			return port, nil
		}
		b.Warningf("bridge agent status for pid %s: %v", pid, perr)
	}

	port, err := freePort()
	if err != nil {
		return 0, fmt.Errorf("unable to allocate a port for pid %s: %v", pid, err)
	}

	res, err = b.agentCommand(ctx, "start", pid, port)
	if err != nil {
		return 0, fmt.Errorf("unable to start bridge agent for pid %s: %v", pid, err)
	}
	if res.Failed() {
		return 0, fmt.Errorf("unable to start bridge agent for pid %s: %s", pid, res.FailReason())
	}

	b.Infof("started bridge agent for pid %s on port %d", pid, port)

	return port, nil
}

func (b *jolokiaBridge) isReachable(port int) bool {
	client := jolokia.New(b.httpClient, web.RequestConfig{URL: b.urlForPort(port)})

	resp, err := client.Version()

	return err == nil && resp.OK()
}

// agentCommand runs the bridge lifecycle CLI as the owner of the target
// process (sudo with a numeric uid).
func (b *jolokiaBridge) agentCommand(ctx context.Context, verb, pid string, port int) (cmdline.Result, error) {
	uid, err := b.resolveUID(pid)
	if err != nil {
		return cmdline.Result{}, err
	}

	command := fmt.Sprintf("sudo -u '#%s' java -jar %s --host=%s %s %s", uid, b.jarPath, b.listenerIP, verb, pid)
	if port > 0 {
		command += fmt.Sprintf(" --port=%d", port)
	}

	return b.exec.Run(ctx, command)
}

var digitsRe = regexp.MustCompile(`\d+`)

// parseStatusPort extracts the listening port from the status command
// output. The second line embeds "host:ip:port".
func parseStatusPort(out string) (int, error) {
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) < 2 {
		return 0, fmt.Errorf("unexpected status output: %q", strings.TrimSpace(out))
	}

	parts := strings.Split(lines[1], ":")
	if len(parts) < 3 {
		return 0, fmt.Errorf("no address in status output line: %q", lines[1])
	}

	digits := digitsRe.FindString(parts[2])
	if digits == "" {
		return 0, fmt.Errorf("no port in status output line: %q", lines[1])
	}

	return strconv.Atoi(digits)
}

// freePort grabs an ephemeral localhost port and releases it immediately.
func freePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer func() { _ = l.Close() }()

	return l.Addr().(*net.TCPAddr).Port, nil
}
