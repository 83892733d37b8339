// SPDX-License-Identifier: GPL-3.0-or-later

package zookeeperjmx

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmxstat/zookeeperjmx/agent/metricapi"
	"github.com/jmxstat/zookeeperjmx/logger"
	"github.com/jmxstat/zookeeperjmx/pkg/cmdline"
)

type mockBridge struct {
	ports       map[string]int
	ensureErr   map[string]error
	unreachable bool
}

func (m *mockBridge) ensureAgentRunning(_ context.Context, pid string) (int, error) {
	if err := m.ensureErr[pid]; err != nil {
		return 0, err
	}
	return m.ports[pid], nil
}

func (m *mockBridge) isReachable(int) bool { return !m.unreachable }

// zkAgent serves the queries made by the zookeeperStats category. Packet
// counters advance by 60 received and 30 sent per sample.
func zkAgent(t *testing.T, sample *atomic.Int64) *httptest.Server {
	t.Helper()

	const dataTree = "org.apache.ZooKeeperService:name0=StandaloneServer_port2181,name1=InMemoryDataTree"

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mbean := r.URL.Query().Get("mbean")
		switch {
		case r.URL.Path == "/read" && mbean == dataTree:
			_, _ = w.Write([]byte(`{"status":200,"value":{"NodeCount":42,"WatchCount":7}}`))
		case r.URL.Path == "/read":
			n := sample.Load()
			_, _ = fmt.Fprintf(w, `{"status":200,"value":{
				"AvgRequestLatency":100,"MaxSessionTimeout":40000,"MinSessionTimeout":4000,
				"MaxClientCnxnsPerHost":60,"NumAliveConnections":3,"OutstandingRequests":0,
				"PacketsReceived":%d,"PacketsSent":%d,"Version":"3.4.13"
			}}`, 100+n*60, 50+n*30)
		default:
			_, _ = w.Write([]byte(`{"status":404}`))
		}
	}))
	t.Cleanup(srv.Close)

	return srv
}

func newTestCollector(t *testing.T) *Collector {
	t.Helper()

	collector := New()
	collector.SetLogger(logger.New())
	collector.Categories = []string{string(categoryZooKeeper)}
	collector.checkPrivs = func() error { return nil }

	return collector
}

func TestCollector_collect(t *testing.T) {
	var sample atomic.Int64
	servers := map[int]*httptest.Server{
		9001: zkAgent(t, &sample),
		9002: zkAgent(t, &sample),
	}

	now := time.Unix(1000, 0)

	collector := newTestCollector(t)
	collector.exec = &mockRunner{
		runFn: func(string) (cmdline.Result, error) {
			return cmdline.Result{Stdout: "111 zookeeper\n222 zookeeper\n"}, nil
		},
	}
	collector.bridge = &mockBridge{ports: map[string]int{"111": 9001, "222": 9002}}
	collector.urlForPort = func(port int) string { return servers[port].URL }
	collector.now = func() time.Time { return now }

	require.NoError(t, collector.Init(context.Background()))

	// first cycle: no previous sample, rates are zero
	records, err := collector.collect(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)

	for _, rec := range records {
		assert.Equal(t, "zookeeperjmx", rec[metricapi.FieldPlugin])
		assert.Equal(t, "zookeeperjmx", rec[metricapi.FieldActualPluginType])
		assert.Equal(t, "zookeeperStats", rec[metricapi.FieldPluginType])
		assert.Equal(t, "zookeeperStats", rec[metricapi.FieldPluginInstance])
		assert.Equal(t, int64(1000), rec[metricapi.FieldTimestamp])
		assert.Equal(t, 0.0, rec["packetsReceivedRate"])
		assert.Equal(t, 0.0, rec["packetsSentRate"])
		assert.NotContains(t, rec, "packetsReceived")
		assert.NotContains(t, rec, "packetsSent")
		assert.Equal(t, int64(42), rec["nodeCount"])
	}

	pids := []string{records[0]["pid"].(string), records[1]["pid"].(string)}
	assert.ElementsMatch(t, []string{"111", "222"}, pids)

	// second cycle: counters advanced by 60 and 30 over a 60s interval
	sample.Store(1)
	now = time.Unix(1060, 0)

	records, err = collector.collect(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)

	for _, rec := range records {
		assert.Equal(t, 1.0, rec["packetsReceivedRate"])
		assert.Equal(t, 0.5, rec["packetsSentRate"])
		assert.NotContains(t, rec, "packetsReceived")
		assert.NotContains(t, rec, "packetsSent")
	}
}

func TestCollector_collect_agentFailureSkipsProcess(t *testing.T) {
	var sample atomic.Int64
	srv := zkAgent(t, &sample)

	collector := newTestCollector(t)
	collector.exec = &mockRunner{
		runFn: func(string) (cmdline.Result, error) {
			return cmdline.Result{Stdout: "111 zookeeper\n222 zookeeper\n"}, nil
		},
	}
	collector.bridge = &mockBridge{
		ports:     map[string]int{"111": 9001},
		ensureErr: map[string]error{"222": fmt.Errorf("mock attach failure")},
	}
	collector.urlForPort = func(int) string { return srv.URL }

	require.NoError(t, collector.Init(context.Background()))

	records, err := collector.collect(context.Background())

	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "111", records[0]["pid"])
}

func TestCollector_collect_unreachableAgent(t *testing.T) {
	collector := newTestCollector(t)
	collector.exec = &mockRunner{
		runFn: func(string) (cmdline.Result, error) {
			return cmdline.Result{Stdout: "111 zookeeper\n"}, nil
		},
	}
	collector.bridge = &mockBridge{ports: map[string]int{"111": 9001}, unreachable: true}
	collector.urlForPort = func(int) string { return "http://127.0.0.1:1" }

	require.NoError(t, collector.Init(context.Background()))

	records, err := collector.collect(context.Background())

	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestCollector_collect_noProcesses(t *testing.T) {
	collector := newTestCollector(t)
	collector.exec = &mockRunner{
		runFn: func(string) (cmdline.Result, error) {
			return cmdline.Result{ExitCode: 1}, nil
		},
	}
	collector.bridge = &mockBridge{}

	require.NoError(t, collector.Init(context.Background()))

	_, err := collector.collect(context.Background())

	assert.Error(t, err)
}

func TestCollector_drainResults(t *testing.T) {
	collector := newTestCollector(t)

	results := make(chan result, 4)
	for _, pid := range []string{"111", "222", "333"} {
		results <- result{pid: pid, cat: categoryZooKeeper, rec: metricapi.Record{"nodeCount": int64(1)}}
	}
	close(results)

	// one of the four expected results never arrived
	collected := collector.drainResults(results, 4)

	assert.Len(t, collected, 3)
}

func TestCollector_Check(t *testing.T) {
	t.Run("processes found", func(t *testing.T) {
		collector := newTestCollector(t)
		collector.exec = &mockRunner{
			runFn: func(string) (cmdline.Result, error) {
				return cmdline.Result{Stdout: "111 zookeeper\n"}, nil
			},
		}
		collector.bridge = &mockBridge{}

		require.NoError(t, collector.Init(context.Background()))
		assert.NoError(t, collector.Check(context.Background()))
	})

	t.Run("no processes found", func(t *testing.T) {
		collector := newTestCollector(t)
		collector.exec = &mockRunner{
			runFn: func(string) (cmdline.Result, error) {
				return cmdline.Result{ExitCode: 1}, nil
			},
		}
		collector.bridge = &mockBridge{}

		require.NoError(t, collector.Init(context.Background()))
		assert.Error(t, collector.Check(context.Background()))
	})
}

func TestCollector_Init(t *testing.T) {
	tests := map[string]struct {
		change  func(*Collector)
		wantErr bool
	}{
		"default config": {
			change: func(*Collector) {},
		},
		"empty process name": {
			change:  func(c *Collector) { c.ProcessName = "" },
			wantErr: true,
		},
		"zero client port": {
			change:  func(c *Collector) { c.ClientPort = 0 },
			wantErr: true,
		},
		"empty agent jar": {
			change:  func(c *Collector) { c.AgentJar = "" },
			wantErr: true,
		},
		"no categories": {
			change:  func(c *Collector) { c.Categories = nil },
			wantErr: true,
		},
		"unknown category": {
			change:  func(c *Collector) { c.Categories = []string{"bogusStats"} },
			wantErr: true,
		},
		"all categories": {
			change: func(c *Collector) {
				for _, cat := range categoryOrder {
					c.Categories = append(c.Categories, string(cat))
				}
			},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			collector := New()
			collector.SetLogger(logger.New())
			test.change(collector)

			err := collector.Init(context.Background())

			if test.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCollector_activeCategories(t *testing.T) {
	collector := New()
	// configured order must not matter, extraction order is fixed
	collector.Categories = []string{"zookeeperStats", "jmxStats", "memoryStats"}

	assert.Equal(t, []category{categoryMemory, categoryJMXSummary, categoryZooKeeper}, collector.activeCategories())
}
