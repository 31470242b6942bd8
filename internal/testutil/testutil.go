// Package testutil provides shared test doubles and harness helpers
// for exercising the proxy over real TCP connections.
package testutil

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// NopMetrics satisfies cacheproxy.Metrics while recording nothing,
// for tests that only care about behavior, not counters.
type NopMetrics struct{}

func (NopMetrics) IncTotalRequests()                   {}
func (NopMetrics) IncServe()                           {}
func (NopMetrics) IncMiss()                            {}
func (NopMetrics) IncRevalidated()                     {}
func (NopMetrics) IncBypass()                          {}
func (NopMetrics) IncTunnel()                          {}
func (NopMetrics) IncOriginErrors()                    {}
func (NopMetrics) IncCacheErrors()                     {}
func (NopMetrics) IncBadRequests()                     {}
func (NopMetrics) ObserveDuration(_ string, _ float64) {}
func (NopMetrics) InflightAdd(_ string)                {}
func (NopMetrics) InflightRemove(_ string)             {}

// ReservePort returns an available local TCP port by briefly listening
// and closing.
func ReservePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err, "reserve a local port")
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

// NewOrigin spins up a plain HTTP test server that serves body at every
// path with headers making it cacheable and fresh for maxAgeSeconds.
func NewOrigin(t *testing.T, body string, maxAgeSeconds int) *httptest.Server {
	t.Helper()
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", maxAgeSeconds))
		w.Header().Set("ETag", `"v1"`)
		w.Header().Set("Last-Modified", time.Now().UTC().Format(http.TimeFormat))
		_, _ = io.WriteString(w, body)
	})
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

// SendHTTPRequest writes a minimal absolute-form HTTP/1.1 request to w,
// as a client would send it to a forwarding proxy.
func SendHTTPRequest(t *testing.T, w io.Writer, method, hostWithPort, path string) {
	t.Helper()
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	req := fmt.Sprintf("%s http://%s%s HTTP/1.1\r\nHost: %s\r\nConnection: close\r\n\r\n",
		method, hostWithPort, path, hostWithPort)
	_, err := io.WriteString(w, req)
	require.NoError(t, err, "write HTTP request")
}

// ReadHTTPResponse parses an HTTP/1.1 response from r.
func ReadHTTPResponse(t *testing.T, r *bufio.Reader) *http.Response {
	t.Helper()
	resp, err := http.ReadResponse(r, nil)
	require.NoError(t, err, "read HTTP response")
	return resp
}
