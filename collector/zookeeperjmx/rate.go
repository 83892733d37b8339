// SPDX-License-Identifier: GPL-3.0-or-later

package zookeeperjmx

import (
	"math"

	"github.com/jmxstat/zookeeperjmx/agent/metricapi"
	"github.com/jmxstat/zookeeperjmx/logger"
)

// rateKeys maps cumulative counters to the per-second rate fields derived
// from them. The raw counters are removed from dispatched records.
var rateKeys = map[string]string{
	"packetsReceived": "packetsReceivedRate",
	"packetsSent":     "packetsSentRate",
}

// rateState keeps the previous record per process so cumulative counters
// can be turned into per-interval rates.
type rateState struct {
	*logger.Logger

	interval float64
	prev     map[string]metricapi.Record
}

func newRateState(log *logger.Logger, interval float64) *rateState {
	return &rateState{
		Logger:   log,
		interval: interval,
		prev:     make(map[string]metricapi.Record),
	}
}

// withRates stores a pre-rate copy of rec as the new previous sample for
// pid, then returns an independent copy carrying the rate fields. On the
// first sample for a pid all rate fields are zero. An anomalous counter
// gets its rate field omitted, never a NaN: the record must stay
// JSON-encodable so the rest of its metrics still reach dispatch.
func (rs *rateState) withRates(pid string, rec metricapi.Record) metricapi.Record {
	prev, hasPrev := rs.prev[pid]
	rs.prev[pid] = rec.Copy()

	out := rec.Copy()
	for key, rateKey := range rateKeys {
		if !hasPrev {
			out[rateKey] = 0.0
			continue
		}
		if rate := rs.rate(pid, key, rec, prev); !math.IsNaN(rate) {
			out[rateKey] = rate
		}
	}

	return out
}

// rate computes (current - previous) / interval for one counter, clamped
// at zero. Anomalies are logged and yield NaN; the caller drops the field
// for that sample instead of producing a bogus rate.
func (rs *rateState) rate(pid, key string, cur, prev metricapi.Record) float64 {
	curVal, curOK := cur.Float(key)
	prevVal, prevOK := prev.Float(key)
	if !curOK || !prevOK {
		rs.Errorf("rate for '%s' (pid %s): counter missing from current or previous sample", key, pid)
		return math.NaN()
	}

	curTs, curTsOK := cur.Timestamp()
	prevTs, prevTsOK := prev.Timestamp()
	if !curTsOK || !prevTsOK {
		rs.Errorf("rate for '%s' (pid %s): sample timestamp missing", key, pid)
		return math.NaN()
	}
	if curTs <= prevTs {
		rs.Errorf("rate for '%s' (pid %s): sample timestamp did not advance (%d <= %d)", key, pid, curTs, prevTs)
		return math.NaN()
	}

	rate := (curVal - prevVal) / rs.interval
	if rate < 0 {
		rate = 0
	}
	return round2(rate)
}
