// SPDX-License-Identifier: GPL-3.0-or-later

package jolokia

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmxstat/zookeeperjmx/pkg/web"
)

func newTestClient(srv *httptest.Server) *Client {
	return New(srv.Client(), web.RequestConfig{URL: srv.URL + "/jolokia"})
}

func TestClient_Read(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/jolokia/read", r.URL.Path)
		assert.Equal(t, "java.lang:type=Memory", r.URL.Query().Get("mbean"))

		_, _ = w.Write([]byte(`{"status":200,"value":{"HeapMemoryUsage":{"used":1048576}}}`))
	}))
	defer srv.Close()

	resp, err := newTestClient(srv).Read("java.lang:type=Memory")

	require.NoError(t, err)
	require.True(t, resp.OK())
	assert.Equal(t, int64(1048576), resp.Value.Get("HeapMemoryUsage.used").Int())
}

func TestClient_ReadAttributes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "CollectionTime,CollectionCount", r.URL.Query().Get("attribute"))

		_, _ = w.Write([]byte(`{"status":200,"value":{"CollectionTime":150,"CollectionCount":3}}`))
	}))
	defer srv.Close()

	resp, err := newTestClient(srv).Read("java.lang:type=GarbageCollector,name=G1 Old Generation",
		"CollectionTime", "CollectionCount")

	require.NoError(t, err)
	require.True(t, resp.OK())
	assert.Equal(t, int64(3), resp.Value.Get("CollectionCount").Int())
}

func TestClient_Exec(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/jolokia/exec", r.URL.Path)
		assert.Equal(t, "countEphemerals", r.URL.Query().Get("operation"))

		_, _ = w.Write([]byte(`{"status":200,"value":13}`))
	}))
	defer srv.Close()

	resp, err := newTestClient(srv).Exec("org.apache.ZooKeeperService:name0=StandaloneServer_port2181,name1=InMemoryDataTree", "countEphemerals")

	require.NoError(t, err)
	require.True(t, resp.OK())
	assert.Equal(t, int64(13), resp.Value.Int())
}

func TestClient_NotOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":404,"error":"no such attribute"}`))
	}))
	defer srv.Close()

	resp, err := newTestClient(srv).Read("java.lang:type=Nope")

	require.NoError(t, err)
	assert.False(t, resp.OK())
	assert.False(t, resp.Value.Exists())
}

func TestClient_BadResponses(t *testing.T) {
	tests := map[string]struct {
		handler http.HandlerFunc
	}{
		"HTTP error code": {
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
		},
		"invalid JSON": {
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte("hello\nworld"))
			},
		},
		"missing status": {
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"value":42}`))
			},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(test.handler)
			defer srv.Close()

			resp, err := newTestClient(srv).Version()

			assert.Error(t, err)
			assert.Nil(t, resp)
		})
	}
}

func TestClient_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	resp, err := newTestClient(srv).Version()

	assert.Error(t, err)
	assert.Nil(t, resp)
}
