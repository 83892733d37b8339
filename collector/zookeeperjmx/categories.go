// SPDX-License-Identifier: GPL-3.0-or-later

package zookeeperjmx

import (
	"github.com/jmxstat/zookeeperjmx/agent/metricapi"
	"github.com/jmxstat/zookeeperjmx/pkg/jolokia"
)

// category is a statistic grouping. The set is closed: every category maps
// to exactly one extraction routine in the table below.
type category string

const (
	categoryMemoryPool   category = "memoryPoolStats"
	categoryMemory       category = "memoryStats"
	categoryThreading    category = "threadStats"
	categoryGC           category = "gcStats"
	categoryClassLoading category = "classLoadingStats"
	categoryCompilation  category = "compilationStats"
	categoryBufferPool   category = "nioStats"
	categoryOS           category = "operatingSysStats"
	categoryJMXSummary   category = "jmxStats"
	categoryZooKeeper    category = "zookeeperStats" // the rate-bearing category
)

// categoryOrder is the fixed order extraction runs in within a worker.
var categoryOrder = []category{
	categoryMemoryPool,
	categoryMemory,
	categoryThreading,
	categoryGC,
	categoryClassLoading,
	categoryCompilation,
	categoryBufferPool,
	categoryOS,
	categoryJMXSummary,
	categoryZooKeeper,
}

var extractors = map[category]func(*Collector, *jolokia.Client, metricapi.Record) error{
	categoryMemoryPool:   (*Collector).collectMemoryPool,
	categoryMemory:       (*Collector).collectMemory,
	categoryThreading:    (*Collector).collectThreading,
	categoryGC:           (*Collector).collectGC,
	categoryClassLoading: (*Collector).collectClassLoading,
	categoryCompilation:  (*Collector).collectCompilation,
	categoryBufferPool:   (*Collector).collectBufferPool,
	categoryOS:           (*Collector).collectOperatingSystem,
	categoryJMXSummary:   (*Collector).collectJMXSummary,
	categoryZooKeeper:    (*Collector).collectZooKeeper,
}
