// SPDX-License-Identifier: GPL-3.0-or-later

package jolokia

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/jmxstat/zookeeperjmx/pkg/web"
)

// Response is a single bridge-agent reply. Status mirrors HTTP semantics:
// anything other than 200 means the value is absent and the sub-metric
// should be skipped.
type Response struct {
	Status int
	Value  gjson.Result
}

// OK reports whether the reply carries a usable value.
func (r *Response) OK() bool {
	return r != nil && r.Status == http.StatusOK
}

// Client talks to a JMX bridge agent over its HTTP+JSON protocol.
type Client struct {
	httpClient *http.Client
	request    web.RequestConfig
}

func New(client *http.Client, request web.RequestConfig) *Client {
	return &Client{
		httpClient: client,
		request:    request,
	}
}

// Read queries attributes of an mbean pattern. No attributes means "read everything".
func (c *Client) Read(mbean string, attributes ...string) (*Response, error) {
	q := url.Values{"mbean": {mbean}}
	if len(attributes) > 0 {
		q.Set("attribute", strings.Join(attributes, ","))
	}
	return c.do("read", q)
}

// Exec invokes an operation on an mbean.
func (c *Client) Exec(mbean, operation string) (*Response, error) {
	q := url.Values{"mbean": {mbean}, "operation": {operation}}
	return c.do("exec", q)
}

// Version probes the agent's version endpoint.
func (c *Client) Version() (*Response, error) {
	return c.do("version", nil)
}

func (c *Client) do(op string, q url.Values) (*Response, error) {
	req := c.request.Copy()
	req.URL = strings.TrimSuffix(req.URL, "/") + "/" + op
	if len(q) > 0 {
		req.URL += "?" + q.Encode()
	}

	httpReq, err := web.NewHTTPRequest(req)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request '%s': %v", req.URL, err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("'%s' returned HTTP status code %d", req.URL, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error on reading response from '%s': %v", req.URL, err)
	}

	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("'%s' returned invalid JSON", req.URL)
	}

	r := gjson.ParseBytes(body)

	status := r.Get("status")
	if !status.Exists() {
		return nil, fmt.Errorf("response from '%s' has no status field", req.URL)
	}

	return &Response{
		Status: int(status.Int()),
		Value:  r.Get("value"),
	}, nil
}
