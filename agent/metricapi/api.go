// SPDX-License-Identifier: GPL-3.0-or-later

package metricapi

import (
	"encoding/json"
	"io"
)

// Common fields attached to every dispatched record.
const (
	FieldTimestamp        = "timestamp"
	FieldPlugin           = "plugin"
	FieldPluginType       = "pluginType"
	FieldPluginInstance   = "pluginInstance"
	FieldActualPluginType = "actualPluginType"
)

// Record is a flat metric-name to value mapping produced for one
// (process, statistic category) pair per collection cycle.
type Record map[string]any

// Copy makes a full copy of the Record.
func (r Record) Copy() Record {
	rec := make(Record, len(r))
	for k, v := range r {
		rec[k] = v
	}
	return rec
}

// Timestamp returns the capture time in epoch seconds.
func (r Record) Timestamp() (int64, bool) {
	switch v := r[FieldTimestamp].(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		return int64(v), true
	}
	return 0, false
}

// Float returns the named value as float64 if it is numeric.
func (r Record) Float(key string) (float64, bool) {
	switch v := r[key].(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	case int:
		return float64(v), true
	}
	return 0, false
}

// API writes records to the downstream collector, one JSON object per line.
type API struct {
	enc *json.Encoder
}

func New(w io.Writer) *API {
	return &API{enc: json.NewEncoder(w)}
}

// Dispatch forwards a single record downstream.
func (a *API) Dispatch(rec Record) error {
	return a.enc.Encode(rec)
}
