package telemetry

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// bodies are drained, not kept; the cap stops a misbehaving target from
// holding a worker forever
const maxDrainSize = 1 << 20

// connection pooling limits; telemetry targets are few but polled forever
const (
	defaultMaxIdleConns        = 50
	defaultMaxIdleConnsPerHost = 4
	defaultMaxConnsPerHost     = 4
	defaultIdleConnTimeout     = 60 * time.Second
)

// Probe is the outcome of one reachability check.
type Probe struct {
	// StatusCode is zero when no response arrived.
	StatusCode int

	// Latency runs from sending the request until the body is drained.
	Latency time.Duration

	// Err is set when the target could not be reached.
	Err error
}

// Reachable reports whether the target answered at all. Any HTTP status
// counts: a 500 still proves the host is up.
func (p Probe) Reachable() bool {
	return p.Err == nil
}

// Client measures round trips to telemetry targets.
type Client struct {
	httpClient *http.Client
}

// NewClient creates a [Client] with pooled connections. Timeouts are per
// request, passed to [Client.Probe].
func NewClient() *Client {
	return &Client{
		httpClient: &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        defaultMaxIdleConns,
				MaxIdleConnsPerHost: defaultMaxIdleConnsPerHost,
				MaxConnsPerHost:     defaultMaxConnsPerHost,
				IdleConnTimeout:     defaultIdleConnTimeout,
			},
		},
	}
}

// Probe requests url and drains the response. An empty method means GET.
// Probe never returns an error separately; it is carried in [Probe.Err].
func (c *Client) Probe(ctx context.Context, method, url string, headers map[string]string, timeout time.Duration) Probe {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if method == "" {
		method = http.MethodGet
	}

	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return Probe{Latency: time.Since(start), Err: fmt.Errorf("failed to create request: %w", err)}
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Probe{Latency: time.Since(start), Err: fmt.Errorf("request failed: %w", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	if _, err := io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainSize)); err != nil {
		return Probe{
			StatusCode: resp.StatusCode,
			Latency:    time.Since(start),
			Err:        fmt.Errorf("failed to read response body: %w", err),
		}
	}

	return Probe{StatusCode: resp.StatusCode, Latency: time.Since(start)}
}

// Close drops idle pooled connections. The client stays usable.
func (c *Client) Close() {
	if c == nil || c.httpClient == nil {
		return
	}
	if transport, ok := c.httpClient.Transport.(*http.Transport); ok {
		transport.CloseIdleConnections()
	}
}
