// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/jmxstat/zookeeperjmx/agent"
	"github.com/jmxstat/zookeeperjmx/logger"
	"github.com/jmxstat/zookeeperjmx/pkg/buildinfo"
	"github.com/jmxstat/zookeeperjmx/pkg/cli"

	_ "github.com/jmxstat/zookeeperjmx/collector/zookeeperjmx"

	_ "go.uber.org/automaxprocs"
)

const (
	name       = "zookeeperjmx.plugin"
	moduleName = "zookeeperjmx"
)

func main() {
	opts := parseCLI()

	if opts.Version {
		fmt.Printf("%s, version: %s\n", name, buildinfo.Version)
		return
	}

	if opts.Debug {
		logger.Level.Set(slog.LevelDebug)
	} else if level := os.Getenv("ZOOKEEPERJMX_LOG_LEVEL"); level != "" {
		logger.Level.SetByName(level)
	}

	a := agent.New(agent.Config{
		Name:           name,
		ConfFile:       confFile(opts),
		LockDir:        opts.LockDir,
		MinUpdateEvery: opts.UpdateEvery,
		ModuleName:     moduleName,
	})

	a.Run()
}

func parseCLI() *cli.Option {
	opts, err := cli.Parse(name, os.Args)
	if err != nil {
		if cli.IsHelp(err) {
			os.Exit(0)
		}
		os.Exit(1)
	}
	return opts
}

func confFile(opts *cli.Option) string {
	if opts.ConfFile != "" {
		return opts.ConfFile
	}
	return "/etc/zookeeperjmx/zookeeperjmx.conf"
}
