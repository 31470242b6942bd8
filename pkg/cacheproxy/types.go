// Package cacheproxy implements the proxy's per-connection state
// machine and its RFC 7234 cache facade.
package cacheproxy

import (
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/jnovack/http-cache-proxy/pkg/httpmsg"
)

// ConnectionIDKey is the context key under which the connection's
// correlation id (a uuid.UUID) is stored, for retrieval by log.Ctx
// scoping further down the call stack.
type ConnectionIDKey struct{}

// TransactionRecord is an in-memory summary of one completed
// transaction, published to the metrics layer and to an optional
// observer callback.
type TransactionRecord struct {
	ID          string        `json:"id"`
	Method      string        `json:"method"`
	Target      string        `json:"target"`
	RemoteAddr  string        `json:"remote_addr"`
	Outcome     string        `json:"outcome"`
	Status      int           `json:"status"`
	Bytes       int64         `json:"bytes"`
	Latency     time.Duration `json:"-"`
	LatencySecs float64       `json:"latency_secs"`
	Time        time.Time     `json:"time"`
}

// Outcome values recorded on a TransactionRecord.
const (
	OutcomeServe         = "SERVE"
	OutcomeMiss          = "MISS"
	OutcomeRevalidate200 = "REVALIDATE-200"
	OutcomeRevalidate304 = "REVALIDATE-304"
	OutcomeBypass        = "BYPASS"
	OutcomeTunnel        = "TUNNEL"
	OutcomeError4xx      = "ERROR-4xx"
	OutcomeError5xx      = "ERROR-5xx"
)

// RequestObserver receives TransactionRecords. Observers should be
// fast; NotifyObserver invokes them asynchronously and recovers any
// panic that escapes one.
type RequestObserver func(TransactionRecord)

// Metrics is the minimal set of counters/histograms the connection
// handler reports to. A concrete implementation is
// pkg/admin.Metrics.
type Metrics interface {
	IncTotalRequests()
	IncServe()
	IncMiss()
	IncRevalidated()
	IncBypass()
	IncTunnel()
	IncOriginErrors()
	IncCacheErrors()
	IncBadRequests()
	ObserveDuration(outcome string, seconds float64)
	InflightAdd(id string)
	InflightRemove(id string)
}

// Config holds behavior shared across every connection handled by
// this process.
type Config struct {
	CacheDir        string
	DialTimeout     time.Duration
	Metrics         Metrics
	RequestObserver RequestObserver
}

// hopByHopHeaders lists HTTP/1.x hop-by-hop headers that must not be
// forwarded verbatim between client and origin.
var hopByHopHeaders = map[string]bool{
	"connection":        true,
	"proxy-connection":  true,
	"keep-alive":        true,
	"te":                true,
	"trailer":           true,
	"transfer-encoding": true,
	"upgrade":           true,
}

// stripHopByHop removes every header in hopByHopHeaders from h, along
// with any header named in a Connection field's value (RFC 7230
// §6.1), before a message crosses from one connection to another.
func stripHopByHop(h *httpmsg.Headers) {
	for _, v := range h.Values("Connection") {
		for _, name := range strings.Split(v, ",") {
			h.Remove(strings.TrimSpace(name))
		}
	}
	for name := range hopByHopHeaders {
		h.Remove(name)
	}
}

// NotifyObserver invokes obs asynchronously, recovering any panic so a
// misbehaving observer can never affect the transaction it describes.
func NotifyObserver(obs RequestObserver, rec TransactionRecord) {
	if obs == nil {
		return
	}
	go func(r TransactionRecord) {
		defer func() {
			if err := recover(); err != nil {
				log.Error().Interface("panic", err).Str("txn", r.ID).Msg("observer panicked")
			}
		}()
		obs(r)
	}(rec)
}
