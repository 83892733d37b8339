// SPDX-License-Identifier: GPL-3.0-or-later

package metricapi

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecord_Copy(t *testing.T) {
	rec := Record{"a": int64(1), "b": "two"}

	cp := rec.Copy()
	cp["a"] = int64(42)

	assert.Equal(t, int64(1), rec["a"])
	assert.Equal(t, int64(42), cp["a"])
}

func TestRecord_Timestamp(t *testing.T) {
	tests := map[string]struct {
		rec    Record
		want   int64
		wantOK bool
	}{
		"int64":   {rec: Record{FieldTimestamp: int64(100)}, want: 100, wantOK: true},
		"int":     {rec: Record{FieldTimestamp: 100}, want: 100, wantOK: true},
		"float64": {rec: Record{FieldTimestamp: 100.0}, want: 100, wantOK: true},
		"missing": {rec: Record{}, wantOK: false},
		"string":  {rec: Record{FieldTimestamp: "100"}, wantOK: false},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			ts, ok := test.rec.Timestamp()

			assert.Equal(t, test.wantOK, ok)
			assert.Equal(t, test.want, ts)
		})
	}
}

func TestAPI_Dispatch(t *testing.T) {
	var buf bytes.Buffer
	api := New(&buf)

	require.NoError(t, api.Dispatch(Record{"metric": 1.5, FieldPlugin: "zookeeperjmx"}))
	require.NoError(t, api.Dispatch(Record{"metric": 2.5}))

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)

	var got map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &got))
	assert.Equal(t, "zookeeperjmx", got[FieldPlugin])
	assert.Equal(t, 1.5, got["metric"])
}
