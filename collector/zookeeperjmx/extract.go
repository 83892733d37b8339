// SPDX-License-Identifier: GPL-3.0-or-later

package zookeeperjmx

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/jmxstat/zookeeperjmx/agent/metricapi"
	"github.com/jmxstat/zookeeperjmx/pkg/jolokia"
)

// Pool and collector names outside these sets are reported as errors and
// skipped: "not supported" must never silently appear with partial data.
var (
	supportedGCs = []string{
		"G1 Old Generation",
		"G1 Young Generation",
	}
	supportedMemoryPools = []string{
		"G1 Eden Space",
		"G1 Old Gen",
		"G1 Survivor Space",
		"Metaspace",
		"Code Cache",
		"Compressed Class Space",
	}
	// pools reported in per-GC before/after usage snapshots
	gcUsagePools = []string{
		"G1 Eden Space",
		"G1 Old Gen",
	}
)

func (c *Collector) collectMemoryPool(client *jolokia.Client, rec metricapi.Record) error {
	names, err := c.memoryPoolNames(client)
	if err != nil {
		return err
	}

	for _, poolName := range names {
		mbean := "java.lang:type=MemoryPool,name=" + poolName

		ok, err := validBean(client, mbean)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}

		resp, err := client.Read(mbean,
			"CollectionUsage", "PeakUsage", "Usage", "CollectionUsageThresholdSupported", "UsageThresholdSupported")
		if err != nil {
			return err
		}
		if !resp.OK() {
			continue
		}

		prefix := stripSpaces(poolName)

		if coll := resp.Value.Get("CollectionUsage"); coll.IsObject() {
			setMegaBytes(rec, prefix+"CollectionUsageMax", coll.Get("max").Float())
			setMegaBytes(rec, prefix+"CollectionUsageInit", coll.Get("init").Float())
			rec[prefix+"CollectionUsageUsed"] = megaBytes(coll.Get("used").Float())
			rec[prefix+"CollectionUsageCommitted"] = megaBytes(coll.Get("committed").Float())
		}

		usage := resp.Value.Get("Usage")
		setMegaBytes(rec, prefix+"UsageMax", usage.Get("max").Float())
		setMegaBytes(rec, prefix+"UsageInit", usage.Get("init").Float())
		rec[prefix+"UsageUsed"] = megaBytes(usage.Get("used").Float())
		rec[prefix+"UsageCommitted"] = megaBytes(usage.Get("committed").Float())

		peak := resp.Value.Get("PeakUsage")
		setMegaBytes(rec, prefix+"PeakUsageMax", peak.Get("max").Float())
		setMegaBytes(rec, prefix+"PeakUsageInit", peak.Get("init").Float())
		rec[prefix+"PeakUsageUsed"] = megaBytes(peak.Get("used").Float())
		rec[prefix+"PeakUsageCommitted"] = megaBytes(peak.Get("committed").Float())

		if resp.Value.Get("CollectionUsageThresholdSupported").Bool() {
			tr, err := client.Read(mbean,
				"CollectionUsageThreshold", "CollectionUsageThresholdCount", "CollectionUsageThresholdExceeded")
			if err != nil {
				return err
			}
			if tr.OK() {
				rec[prefix+"CollectionUsageThreshold"] = megaBytes(tr.Value.Get("CollectionUsageThreshold").Float())
				rec[prefix+"CollectionUsageThresholdCount"] = tr.Value.Get("CollectionUsageThresholdCount").Int()
				rec[prefix+"CollectionUsageThresholdExceeded"] = tr.Value.Get("CollectionUsageThresholdExceeded").Bool()
			}
		}
		if resp.Value.Get("UsageThresholdSupported").Bool() {
			tr, err := client.Read(mbean, "UsageThreshold", "UsageThresholdCount", "UsageThresholdExceeded")
			if err != nil {
				return err
			}
			if tr.OK() {
				rec[prefix+"UsageThreshold"] = megaBytes(tr.Value.Get("UsageThreshold").Float())
				rec[prefix+"UsageThresholdCount"] = tr.Value.Get("UsageThresholdCount").Int()
				rec[prefix+"UsageThresholdExceeded"] = tr.Value.Get("UsageThresholdExceeded").Bool()
			}
		}
	}

	return nil
}

func (c *Collector) collectMemory(client *jolokia.Client, rec metricapi.Record) error {
	resp, err := client.Read("java.lang:type=Memory")
	if err != nil {
		return err
	}
	if !resp.OK() {
		return nil
	}

	heap := resp.Value.Get("HeapMemoryUsage")
	setMegaBytes(rec, "heapMemoryUsageInit", heap.Get("init").Float())
	setMegaBytes(rec, "heapMemoryUsageMax", heap.Get("max").Float())
	rec["heapMemoryUsageUsed"] = megaBytes(heap.Get("used").Float())
	rec["heapMemoryUsageCommitted"] = megaBytes(heap.Get("committed").Float())

	nonHeap := resp.Value.Get("NonHeapMemoryUsage")
	setMegaBytes(rec, "nonHeapMemoryUsageInit", nonHeap.Get("init").Float())
	setMegaBytes(rec, "nonHeapMemoryUsageMax", nonHeap.Get("max").Float())
	rec["nonHeapMemoryUsageUsed"] = megaBytes(nonHeap.Get("used").Float())
	rec["nonHeapMemoryUsageCommitted"] = megaBytes(nonHeap.Get("committed").Float())

	rec["objectPendingFinalization"] = resp.Value.Get("ObjectPendingFinalizationCount").Int()

	return nil
}

func (c *Collector) collectThreading(client *jolokia.Client, rec metricapi.Record) error {
	resp, err := client.Read("java.lang:type=Threading")
	if err != nil {
		return err
	}
	if !resp.OK() {
		return nil
	}

	v := resp.Value
	rec["threads"] = v.Get("ThreadCount").Int()
	rec["peakThreads"] = v.Get("PeakThreadCount").Int()
	rec["daemonThreads"] = v.Get("DaemonThreadCount").Int()
	rec["totalStartedThreads"] = v.Get("TotalStartedThreadCount").Int()

	if v.Get("CurrentThreadCpuTimeSupported").Bool() {
		rec["currentThreadCpuTime"] = nanosToSec(v.Get("CurrentThreadCpuTime").Float())
		rec["currentThreadUserTime"] = nanosToSec(v.Get("CurrentThreadUserTime").Float())
	}

	return nil
}

func (c *Collector) collectGC(client *jolokia.Client, rec metricapi.Record) error {
	names, err := c.gcNames(client)
	if err != nil {
		return err
	}

	for _, gcName := range names {
		mbean := "java.lang:type=GarbageCollector,name=" + gcName

		ok, err := validBean(client, mbean)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}

		resp, err := client.Read(mbean, "CollectionTime", "CollectionCount", "LastGcInfo")
		if err != nil {
			return err
		}
		if !resp.OK() {
			continue
		}

		prefix := stripSpaces(gcName)
		rec[prefix+"CollectionTime"] = millisToSec(resp.Value.Get("CollectionTime").Float())
		rec[prefix+"CollectionCount"] = resp.Value.Get("CollectionCount").Int()

		lastGC := resp.Value.Get("LastGcInfo")
		if !lastGC.IsObject() {
			continue
		}

		rec[prefix+"GcThreadCount"] = lastGC.Get("GcThreadCount").Int()
		rec[prefix+"StartTime"] = millisToSec(lastGC.Get("startTime").Float())
		rec[prefix+"EndTime"] = millisToSec(lastGC.Get("endTime").Float())
		rec[prefix+"Duration"] = millisToSec(lastGC.Get("duration").Float())

		gcMemoryUsage(rec, lastGC.Get("memoryUsageAfterGc"), prefix, "MemUsageAfGc")
		gcMemoryUsage(rec, lastGC.Get("memoryUsageBeforeGc"), prefix, "MemUsageBfGc")
	}

	return nil
}

// gcMemoryUsage flattens a per-pool usage snapshot taken around a GC run.
func gcMemoryUsage(rec metricapi.Record, usage gjson.Result, gcPrefix, key string) {
	usage.ForEach(func(name, values gjson.Result) bool {
		if !slices.Contains(gcUsagePools, name.String()) {
			return true
		}
		prefix := gcPrefix + key + stripSpaces(name.String())
		setMegaBytes(rec, prefix+"Init", values.Get("init").Float())
		setMegaBytes(rec, prefix+"Max", values.Get("max").Float())
		rec[prefix+"Used"] = megaBytes(values.Get("used").Float())
		rec[prefix+"Committed"] = megaBytes(values.Get("committed").Float())
		return true
	})
}

func (c *Collector) collectClassLoading(client *jolokia.Client, rec metricapi.Record) error {
	resp, err := client.Read("java.lang:type=ClassLoading")
	if err != nil {
		return err
	}
	if !resp.OK() {
		return nil
	}

	rec["unloadedClass"] = resp.Value.Get("UnloadedClassCount").Int()
	rec["loadedClass"] = resp.Value.Get("LoadedClassCount").Int()
	rec["totalLoadedClass"] = resp.Value.Get("TotalLoadedClassCount").Int()

	return nil
}

func (c *Collector) collectCompilation(client *jolokia.Client, rec metricapi.Record) error {
	resp, err := client.Read("java.lang:type=Compilation")
	if err != nil {
		return err
	}
	if !resp.OK() {
		return nil
	}

	rec["compilerName"] = resp.Value.Get("Name").String()
	rec["totalCompilationTime"] = millisToSec(resp.Value.Get("TotalCompilationTime").Float())

	return nil
}

func (c *Collector) collectBufferPool(client *jolokia.Client, rec metricapi.Record) error {
	resp, err := client.Read("java.nio:type=BufferPool,*", "Name")
	if err != nil {
		return err
	}

	var names []string
	if resp.OK() {
		resp.Value.ForEach(func(_, v gjson.Result) bool {
			names = append(names, v.Get("Name").String())
			return true
		})
	}

	for _, poolName := range names {
		info, err := client.Read("java.nio:type=BufferPool,name=" + poolName)
		if err != nil {
			return err
		}
		if !info.OK() {
			continue
		}

		rec[poolName+"BufferPoolCount"] = info.Value.Get("Count").Int()
		setMegaBytes(rec, poolName+"BufferPoolMemoryUsed", info.Value.Get("MemoryUsed").Float())
		setMegaBytes(rec, poolName+"BufferPoolTotalCapacity", info.Value.Get("TotalCapacity").Float())
	}

	return nil
}

func (c *Collector) collectOperatingSystem(client *jolokia.Client, rec metricapi.Record) error {
	resp, err := client.Read("java.lang:type=OperatingSystem")
	if err != nil {
		return err
	}
	if !resp.OK() {
		return nil
	}

	v := resp.Value
	rec["osArchitecture"] = v.Get("Arch").String()
	rec["availableProcessors"] = v.Get("AvailableProcessors").Int()
	setMegaBytes(rec, "committedVirtualMemorySize", v.Get("CommittedVirtualMemorySize").Float())
	rec["freePhysicalMemorySize"] = megaBytes(v.Get("FreePhysicalMemorySize").Float())
	rec["freeSwapSpaceSize"] = megaBytes(v.Get("FreeSwapSpaceSize").Float())
	rec["maxFileDescriptors"] = v.Get("MaxFileDescriptorCount").Int()
	rec["osName"] = v.Get("Name").String()
	rec["openFileDescriptors"] = v.Get("OpenFileDescriptorCount").Int()
	rec["processCpuLoad"] = v.Get("ProcessCpuLoad").Float()
	rec["processCpuTime"] = nanosToSec(v.Get("ProcessCpuTime").Float())
	rec["totalPhysicalMemorySize"] = megaBytes(v.Get("TotalPhysicalMemorySize").Float())
	rec["totalSwapSpaceSize"] = megaBytes(v.Get("TotalSwapSpaceSize").Float())
	rec["osVersion"] = v.Get("Version").String()
	rec["systemCpuLoad"] = v.Get("SystemCpuLoad").Float()
	rec["systemLoadAverage"] = v.Get("SystemLoadAverage").Float()

	return nil
}

// collectJMXSummary is the combined summary category: a condensed view of
// class loading, threading, memory, GC and pool usage in one record.
func (c *Collector) collectJMXSummary(client *jolokia.Client, rec metricapi.Record) error {
	resp, err := client.Read("java.lang:type=ClassLoading")
	if err != nil {
		return err
	}
	if resp.OK() {
		rec["unloadedClass"] = resp.Value.Get("UnloadedClassCount").Int()
		rec["loadedClass"] = resp.Value.Get("LoadedClassCount").Int()
	}

	resp, err = client.Read("java.lang:type=Threading")
	if err != nil {
		return err
	}
	if resp.OK() {
		rec["threads"] = resp.Value.Get("ThreadCount").Int()
	}

	resp, err = client.Read("java.lang:type=Memory")
	if err != nil {
		return err
	}
	if resp.OK() {
		heap := resp.Value.Get("HeapMemoryUsage")
		setMegaBytes(rec, "heapMemoryUsageInit", heap.Get("init").Float())
		rec["heapMemoryUsageUsed"] = megaBytes(heap.Get("used").Float())
		rec["heapMemoryUsageCommitted"] = megaBytes(heap.Get("committed").Float())

		nonHeap := resp.Value.Get("NonHeapMemoryUsage")
		setMegaBytes(rec, "nonHeapMemoryUsageInit", nonHeap.Get("init").Float())
		rec["nonHeapMemoryUsageUsed"] = megaBytes(nonHeap.Get("used").Float())
		rec["nonHeapMemoryUsageCommitted"] = megaBytes(nonHeap.Get("committed").Float())
	}

	// GC and pool metrics default to zero so the summary record keeps a
	// stable field set even when a collector or pool is not yet valid.
	for _, param := range []string{
		"G1OldGenerationCollectionTime", "G1OldGenerationCollectionCount",
		"G1YoungGenerationCollectionTime", "G1YoungGenerationCollectionCount",
		"G1OldGenUsageUsed", "G1SurvivorSpaceUsageUsed", "MetaspaceUsageUsed",
		"CodeCacheUsageUsed", "CompressedClassSpaceUsageUsed", "G1EdenSpaceUsageUsed",
	} {
		rec[param] = 0
	}

	gcNames, err := c.gcNames(client)
	if err != nil {
		return err
	}
	for _, gcName := range gcNames {
		mbean := "java.lang:type=GarbageCollector,name=" + gcName

		ok, err := validBean(client, mbean)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}

		resp, err := client.Read(mbean, "CollectionTime", "CollectionCount")
		if err != nil {
			return err
		}
		if resp.OK() {
			prefix := stripSpaces(gcName)
			rec[prefix+"CollectionTime"] = millisToSec(resp.Value.Get("CollectionTime").Float())
			rec[prefix+"CollectionCount"] = resp.Value.Get("CollectionCount").Int()
		}
	}

	poolNames, err := c.memoryPoolNames(client)
	if err != nil {
		return err
	}
	for _, poolName := range poolNames {
		mbean := "java.lang:type=MemoryPool,name=" + poolName

		ok, err := validBean(client, mbean)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}

		resp, err := client.Read(mbean, "Usage")
		if err != nil {
			return err
		}
		if resp.OK() {
			rec[stripSpaces(poolName)+"UsageUsed"] = megaBytes(resp.Value.Get("used").Float())
		}
	}

	return nil
}

func (c *Collector) collectZooKeeper(client *jolokia.Client, rec metricapi.Record) error {
	mbean := fmt.Sprintf("org.apache.ZooKeeperService:name0=StandaloneServer_port%d", c.ClientPort)

	resp, err := client.Read(mbean)
	if err != nil {
		return err
	}
	if resp.OK() {
		v := resp.Value
		rec["avgRequestLatency"] = millisToSec(v.Get("AvgRequestLatency").Float())
		rec["maxSessionTimeout"] = millisToSec(v.Get("MaxSessionTimeout").Float())
		rec["minSessionTimeout"] = millisToSec(v.Get("MinSessionTimeout").Float())
		rec["maxClientCnxnsPerHost"] = v.Get("MaxClientCnxnsPerHost").Int()
		rec["numAliveConnections"] = v.Get("NumAliveConnections").Int()
		rec["outstandingRequests"] = v.Get("OutstandingRequests").Int()
		rec["packetsReceived"] = v.Get("PacketsReceived").Int()
		rec["packetsSent"] = v.Get("PacketsSent").Int()
		rec["zookeeperVersion"] = v.Get("Version").String()
	}

	dataTree := mbean + ",name1=InMemoryDataTree"

	resp, err = client.Read(dataTree)
	if err != nil {
		return err
	}
	if resp.OK() {
		rec["nodeCount"] = resp.Value.Get("NodeCount").Int()
		rec["watchCount"] = resp.Value.Get("WatchCount").Int()
	}

	resp, err = client.Exec(dataTree, "countEphemerals")
	if err != nil {
		return err
	}
	if resp.OK() {
		rec["countEphemerals"] = resp.Value.Int()
	}

	resp, err = client.Exec(dataTree, "approximateDataSize")
	if err != nil {
		return err
	}
	if resp.OK() {
		rec["approximateDataSize"] = megaBytes(resp.Value.Float())
	}

	return nil
}

func (c *Collector) memoryPoolNames(client *jolokia.Client) ([]string, error) {
	return c.supportedNames(client, "java.lang:type=MemoryPool,*", supportedMemoryPools, "memory pool")
}

func (c *Collector) gcNames(client *jolokia.Client) ([]string, error) {
	return c.supportedNames(client, "java.lang:type=GarbageCollector,*", supportedGCs, "GC")
}

// supportedNames discovers named beans matching a wildcard pattern and
// keeps only allow-listed ones, reporting the rest as errors.
func (c *Collector) supportedNames(client *jolokia.Client, pattern string, allowed []string, kind string) ([]string, error) {
	resp, err := client.Read(pattern, "Name")
	if err != nil {
		return nil, err
	}

	var names []string
	if resp.OK() {
		resp.Value.ForEach(func(_, v gjson.Result) bool {
			name := v.Get("Name").String()
			if slices.Contains(allowed, name) {
				names = append(names, name)
			} else {
				c.Errorf("not supported for %s '%s'", kind, name)
			}
			return true
		})
	}

	return names, nil
}

// validBean reads the "Valid" flag queried before any detailed attributes
// of a named pool or collector.
func validBean(client *jolokia.Client, mbean string) (bool, error) {
	resp, err := client.Read(mbean, "Valid")
	if err != nil {
		return false, err
	}
	return resp.OK() && resp.Value.Bool(), nil
}

const bytesPerMiB = 1024.0 * 1024.0

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func megaBytes(v float64) float64 {
	return round2(v / bytesPerMiB)
}

// setMegaBytes preserves the -1 "not supported" sentinel verbatim.
func setMegaBytes(rec metricapi.Record, key string, v float64) {
	if v == -1 {
		rec[key] = v
		return
	}
	rec[key] = megaBytes(v)
}

func millisToSec(v float64) float64 {
	return round2(v * 0.001)
}

// nanosToSec skips conversion for negative "not supported" values.
func nanosToSec(v float64) float64 {
	if v < 0 {
		return v
	}
	return round2(v / 1e9)
}

func stripSpaces(s string) string {
	return strings.Join(strings.Fields(s), "")
}
