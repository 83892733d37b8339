// SPDX-License-Identifier: GPL-3.0-or-later

package zookeeperjmx

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/sourcegraph/conc/pool"

	"github.com/jmxstat/zookeeperjmx/agent/metricapi"
	"github.com/jmxstat/zookeeperjmx/pkg/jolokia"
	"github.com/jmxstat/zookeeperjmx/pkg/web"
)

type result struct {
	pid string
	cat category
	rec metricapi.Record
}

func (c *Collector) collect(ctx context.Context) ([]metricapi.Record, error) {
	if err := c.checkPrivs(); err != nil {
		return nil, err
	}

	pids, err := c.discoverProcessIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("process discovery: %v", err)
	}
	if len(pids) == 0 {
		return nil, fmt.Errorf("no '%s' processes are running", c.ProcessName)
	}

	results := make(chan result, len(pids)*len(c.categories))

	var workers atomic.Int64

	p := pool.New()
	for _, pid := range pids {
		p.Go(func() {
			port, err := c.bridge.ensureAgentRunning(ctx, pid)
			if err != nil {
				c.Errorf("skipping pid %s: %v", pid, err)
				return
			}
			workers.Add(1)
			c.collectProcess(pid, port, results)
		})
	}
	p.Wait()
	close(results)

	collected := c.drainResults(results, int(workers.Load())*len(c.categories))

	return c.finalize(collected), nil
}

// collectProcess runs every active category against one process's bridge
// agent, pushing a result per category into the shared channel. Failed
// categories still push an empty result so the drain accounting holds.
func (c *Collector) collectProcess(pid string, port int, results chan<- result) {
	client := jolokia.New(c.httpClient, web.RequestConfig{URL: c.urlForPort(port)})

	for _, cat := range c.categories {
		if !c.bridge.isReachable(port) {
			c.Errorf("bridge agent for pid %s is not reachable on port %d", pid, port)
			results <- result{pid: pid, cat: cat}
			continue
		}

		rec := metricapi.Record{}
		if err := extractors[cat](c, client, rec); err != nil {
			c.Errorf("collecting %s for pid %s: %v", cat, pid, err)
			results <- result{pid: pid, cat: cat}
			continue
		}
		if len(rec) == 0 {
			c.Errorf("collecting %s for pid %s: no metrics extracted", cat, pid)
			results <- result{pid: pid, cat: cat}
			continue
		}

		c.addCommonFields(rec, pid, cat)
		results <- result{pid: pid, cat: cat, rec: rec}
	}
}

func (c *Collector) addCommonFields(rec metricapi.Record, pid string, cat category) {
	rec[metricapi.FieldTimestamp] = c.now().Unix()
	rec[metricapi.FieldPlugin] = pluginName
	rec[metricapi.FieldActualPluginType] = pluginName
	rec[metricapi.FieldPluginType] = string(cat)
	rec[metricapi.FieldPluginInstance] = string(cat)
	rec["pid"] = pid
}

// drainResults receives exactly the expected number of results without
// blocking on an exhausted channel. Every missing (pid, category) result
// is logged so a stalled worker cannot silently drop data.
func (c *Collector) drainResults(results <-chan result, expected int) []result {
	var collected []result

	for i := 0; i < expected; i++ {
		res, ok := <-results
		if !ok {
			c.Errorf("failed to receive a record from collection workers (%d of %d missing)", expected-i, expected)
			continue
		}
		if res.rec == nil {
			continue
		}
		collected = append(collected, res)
	}

	return collected
}

// finalize routes counter-bearing records through the rate state and
// strips the raw cumulative counters before dispatch.
func (c *Collector) finalize(collected []result) []metricapi.Record {
	records := make([]metricapi.Record, 0, len(collected))

	for _, res := range collected {
		if res.cat != categoryZooKeeper {
			records = append(records, res.rec)
			continue
		}

		rec := c.rates.withRates(res.pid, res.rec)
		for key := range rateKeys {
			delete(rec, key)
		}
		records = append(records, rec)
	}

	return records
}
