// SPDX-License-Identifier: GPL-3.0-or-later

package zookeeperjmx

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jmxstat/zookeeperjmx/agent/metricapi"
	"github.com/jmxstat/zookeeperjmx/agent/module"
	"github.com/jmxstat/zookeeperjmx/pkg/cmdline"
	"github.com/jmxstat/zookeeperjmx/pkg/confopt"
	"github.com/jmxstat/zookeeperjmx/pkg/web"
)

const pluginName = "zookeeperjmx"

func init() {
	module.Register(pluginName, module.Creator{
		Defaults: module.Defaults{UpdateEvery: 60},
		Create:   func() module.Module { return New() },
	})
}

func New() *Collector {
	return &Collector{
		Config: Config{
			UpdateEvery: 60,
			ProcessName: "zookeeper",
			ListenerIP:  "127.0.0.1",
			ClientPort:  2181,
			AgentJar:    "/opt/zookeeperjmx/jolokia.jar",
			Timeout:     confopt.Duration(time.Second * 5),
			Categories:  []string{string(categoryJMXSummary), string(categoryZooKeeper)},
		},
		now: time.Now,
	}
}

type Config struct {
	UpdateEvery int `yaml:"update_every,omitempty" json:"update_every"`
	// ProcessName is the JVM main-class name to match during process discovery.
	ProcessName string `yaml:"process_name" json:"process_name"`
	// ListenerIP is the address the bridge agent binds to.
	ListenerIP string `yaml:"listener_ip,omitempty" json:"listener_ip"`
	// ClientPort is the ZooKeeper client port, used to build the service mbean name.
	ClientPort int `yaml:"client_port,omitempty" json:"client_port"`
	// AgentJar is the path to the bridge agent jar.
	AgentJar string           `yaml:"agent_jar,omitempty" json:"agent_jar"`
	Timeout  confopt.Duration `yaml:"timeout,omitempty" json:"timeout"`
	// Categories is the set of statistic categories collected each cycle.
	Categories []string `yaml:"stats_categories,omitempty" json:"stats_categories"`
}

type Collector struct {
	module.Base
	Config `yaml:",inline" json:""`

	exec       commandRunner
	bridge     bridgeManager
	rates      *rateState
	httpClient *http.Client
	categories []category
	urlForPort func(port int) string
	checkPrivs func() error
	now        func() time.Time
}

// Configuration exposes the config for the runtime to load into.
func (c *Collector) Configuration() any {
	return &c.Config
}

func (c *Collector) SetUpdateEvery(secs int) {
	c.UpdateEvery = secs
}

func (c *Collector) Init(context.Context) error {
	if err := c.verifyConfig(); err != nil {
		return fmt.Errorf("invalid config: %v", err)
	}

	httpClient, err := web.NewHTTPClient(web.ClientConfig{Timeout: c.Timeout})
	if err != nil {
		return fmt.Errorf("init HTTP client: %v", err)
	}
	c.httpClient = httpClient

	if c.urlForPort == nil {
		c.urlForPort = func(port int) string {
			return fmt.Sprintf("http://%s:%d/jolokia", c.ListenerIP, port)
		}
	}
	if c.exec == nil {
		c.exec = cmdline.NewExecutor(c.Logger)
	}
	if c.checkPrivs == nil {
		c.checkPrivs = checkPrivileges
	}
	if c.bridge == nil {
		c.bridge = &jolokiaBridge{
			Logger:     c.Logger,
			exec:       c.exec,
			resolveUID: resolveUserID,
			jarPath:    c.AgentJar,
			listenerIP: c.ListenerIP,
			httpClient: c.httpClient,
			urlForPort: c.urlForPort,
		}
	}

	c.rates = newRateState(c.Logger, float64(c.UpdateEvery))
	c.categories = c.activeCategories()

	return nil
}

func (c *Collector) Check(ctx context.Context) error {
	if err := c.checkPrivs(); err != nil {
		return err
	}

	pids, err := c.discoverProcessIDs(ctx)
	if err != nil {
		return err
	}
	if len(pids) == 0 {
		return fmt.Errorf("no '%s' processes are running", c.ProcessName)
	}

	return nil
}

func (c *Collector) Collect(ctx context.Context) []metricapi.Record {
	records, err := c.collect(ctx)
	if err != nil {
		c.Error(err)
	}
	return records
}

func (c *Collector) Cleanup(context.Context) {}

func (c *Collector) verifyConfig() error {
	if c.ProcessName == "" {
		return errors.New("process_name not set")
	}
	if c.ClientPort <= 0 {
		return errors.New("client_port not set")
	}
	if c.AgentJar == "" {
		return errors.New("agent_jar not set")
	}
	if len(c.Categories) == 0 {
		return errors.New("stats_categories not set")
	}
	for _, name := range c.Categories {
		if _, ok := extractors[category(name)]; !ok {
			return fmt.Errorf("unknown statistic category '%s'", name)
		}
	}
	return nil
}

// activeCategories maps the configured category names onto the fixed
// declared order extraction runs in.
func (c *Collector) activeCategories() []category {
	want := make(map[category]bool, len(c.Categories))
	for _, name := range c.Categories {
		want[category(name)] = true
	}

	var cats []category
	for _, cat := range categoryOrder {
		if want[cat] {
			cats = append(cats, cat)
		}
	}
	return cats
}
