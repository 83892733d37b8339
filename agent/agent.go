// SPDX-License-Identifier: GPL-3.0-or-later

package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/jmxstat/zookeeperjmx/agent/filelock"
	"github.com/jmxstat/zookeeperjmx/agent/metricapi"
	"github.com/jmxstat/zookeeperjmx/agent/module"
	"github.com/jmxstat/zookeeperjmx/agent/safewriter"
	"github.com/jmxstat/zookeeperjmx/logger"
)

// Config is an Agent configuration.
type Config struct {
	Name           string
	ConfFile       string
	LockDir        string
	MinUpdateEvery int
	ModuleName     string
}

// Agent drives a single collector: it loads the configuration, acquires
// the instance lock and runs the collection loop until a signal arrives.
type Agent struct {
	*logger.Logger

	Name           string
	ConfFile       string
	LockDir        string
	MinUpdateEvery int
	ModuleName     string
	ModuleRegistry module.Registry
	Out            io.Writer

	api *metricapi.API
}

// New creates a new Agent.
func New(cfg Config) *Agent {
	return &Agent{
		Logger: logger.New().With(
			slog.String("component", "agent"),
		),
		Name:           cfg.Name,
		ConfFile:       cfg.ConfFile,
		LockDir:        cfg.LockDir,
		MinUpdateEvery: cfg.MinUpdateEvery,
		ModuleName:     cfg.ModuleName,
		ModuleRegistry: module.DefaultRegistry,
		Out:            safewriter.Stdout,
		api:            metricapi.New(safewriter.Stdout),
	}
}

// Run starts the Agent and blocks until it terminates.
func (a *Agent) Run() {
	serve(a)
}

func serve(a *Agent) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)
	var wg sync.WaitGroup

	var exit bool

	for {
		ctx, cancel := context.WithCancel(context.Background())

		wg.Add(1)
		go func() { defer wg.Done(); a.run(ctx) }()

		switch sig := <-ch; sig {
		case syscall.SIGHUP:
			a.Infof("received %s signal (%d). Restarting running instance", sig, sig)
		default:
			a.Infof("received %s signal (%d). Terminating...", sig, sig)
			exit = true
		}

		cancel()

		func() {
			timeout := time.Second * 10
			t := time.NewTimer(timeout)
			defer t.Stop()
			done := make(chan struct{})

			go func() { wg.Wait(); close(done) }()

			select {
			case <-t.C:
				a.Errorf("stopping all goroutines timed out after %s. Exiting...", timeout)
				os.Exit(0)
			case <-done:
			}
		}()

		if exit {
			os.Exit(0)
		}

		time.Sleep(time.Second)
	}
}

func (a *Agent) run(ctx context.Context) {
	a.Info("instance is started")
	defer func() { a.Info("instance is stopped") }()

	if err := a.runOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
		a.Error(err)
	}
}

func (a *Agent) runOnce(ctx context.Context) error {
	creator, ok := a.ModuleRegistry.Lookup(a.ModuleName)
	if !ok {
		return fmt.Errorf("collector '%s' is not registered", a.ModuleName)
	}

	mod := creator.Create()
	mod.GetBase().SetLogger(logger.New().With(
		slog.String("collector", a.ModuleName),
	))

	updateEvery, err := a.configure(mod, creator)
	if err != nil {
		return fmt.Errorf("configuring collector '%s': %v", a.ModuleName, err)
	}

	locker := filelock.New(a.LockDir)
	if ok, err := locker.Lock(a.Name); err != nil || !ok {
		return fmt.Errorf("another instance already holds the lock in '%s' (%v)", a.LockDir, err)
	}
	defer locker.UnlockAll()

	if err := mod.Init(ctx); err != nil {
		return fmt.Errorf("init collector '%s': %v", a.ModuleName, err)
	}
	defer mod.Cleanup(ctx)

	if err := mod.Check(ctx); err != nil {
		// collection may still succeed later, e.g. the service starts up
		a.Warningf("check collector '%s': %v", a.ModuleName, err)
	}

	a.Infof("collecting every %ds", updateEvery)

	tk := time.NewTicker(time.Duration(updateEvery) * time.Second)
	defer tk.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tk.C:
			a.runCollection(ctx, mod)
		}
	}
}

// configure loads the YAML configuration file into the collector and
// resolves the effective collection interval. A missing file is not an
// error, collectors ship with usable defaults.
func (a *Agent) configure(mod module.Module, creator module.Creator) (int, error) {
	updateEvery := firstPositive(creator.UpdateEvery, a.MinUpdateEvery)

	raw, err := os.ReadFile(a.ConfFile)
	if err != nil {
		if !os.IsNotExist(err) {
			return 0, err
		}
		a.Warningf("config file '%s' not found, using defaults", a.ConfFile)
	} else {
		if err := yaml.Unmarshal(raw, mod.Configuration()); err != nil {
			return 0, fmt.Errorf("parsing '%s': %v", a.ConfFile, err)
		}

		var opts struct {
			UpdateEvery int `yaml:"update_every"`
		}
		if err := yaml.Unmarshal(raw, &opts); err == nil && opts.UpdateEvery > 0 {
			updateEvery = opts.UpdateEvery
		}
	}

	if updateEvery < a.MinUpdateEvery {
		a.Warningf("update_every %d is below the minimum, using %d", updateEvery, a.MinUpdateEvery)
		updateEvery = a.MinUpdateEvery
	}

	if v, ok := mod.(interface{ SetUpdateEvery(int) }); ok {
		v.SetUpdateEvery(updateEvery)
	}

	return updateEvery, nil
}

func (a *Agent) runCollection(ctx context.Context, mod module.Module) {
	defer func() {
		if r := recover(); r != nil {
			a.Errorf("collector '%s' panicked: %v", a.ModuleName, r)
		}
	}()

	for _, rec := range mod.Collect(ctx) {
		if err := a.api.Dispatch(rec); err != nil {
			a.Errorf("dispatching record: %v", err)
		}
	}
}

func firstPositive(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 1
}
