// Package activitylog records the proxy's per-transaction activity
// trail as structured zerolog events. It is thread-safe by
// construction: zerolog's writer serializes each call, so handlers may
// log from any connection goroutine without external synchronization.
package activitylog

import (
	"github.com/rs/zerolog"

	"github.com/jnovack/http-cache-proxy/pkg/logging"
)

// Sink emits one line of the activity trail for a transaction. Every
// line carries a "txn" field equal to id, or logging.NoIDTxn before an
// id has been allocated.
type Sink struct{}

// New returns a Sink. It carries no state: every call resolves the
// current global zerolog logger, so switching between the console and
// file backends (pkg/logging.Setup / SetupFile) takes effect
// immediately for subsequent log lines.
func New() Sink { return Sink{} }

func (Sink) logger(id string) zerolog.Logger {
	return logging.Txn(id)
}

// RequestLine logs the request-line receipt phase.
func (s Sink) RequestLine(id, requestLine, remoteAddr string) {
	l := s.logger(id)
	l.Info().
		Str("remote_addr", remoteAddr).
		Str("request_line", requestLine).
		Msg("received request")
}

// CacheVerdictValid logs a fresh cache hit.
func (s Sink) CacheVerdictValid(id string) {
	l := s.logger(id)
	l.Info().Msg("in cache, valid")
}

// CacheVerdictRequiresValidation logs a stale-but-cached entry.
func (s Sink) CacheVerdictRequiresValidation(id string) {
	l := s.logger(id)
	l.Info().Msg("in cache, requires validation")
}

// CacheVerdictMiss logs a cache miss.
func (s Sink) CacheVerdictMiss(id string) {
	l := s.logger(id)
	l.Info().Msg("not in cache")
}

// Requesting logs the outgoing request to the origin.
func (s Sink) Requesting(id, requestLine, host string) {
	l := s.logger(id)
	l.Info().
		Str("request_line", requestLine).
		Str("host", host).
		Msg("requesting")
}

// Received logs the status line received from the origin.
func (s Sink) Received(id, statusLine, host string) {
	l := s.logger(id)
	l.Info().
		Str("status_line", statusLine).
		Str("host", host).
		Msg("received")
}

// Responding logs the status line sent back to the client.
func (s Sink) Responding(id, statusLine string) {
	l := s.logger(id)
	l.Info().
		Str("status_line", statusLine).
		Msg("responding")
}

// NotCacheable logs why a response was not cached.
func (s Sink) NotCacheable(id, reason string) {
	l := s.logger(id)
	l.Info().
		Str("reason", reason).
		Msg("not cacheable")
}

// CachedExpires logs the freshness deadline of a newly cached
// response.
func (s Sink) CachedExpires(id, expiresAt string) {
	l := s.logger(id)
	l.Info().
		Str("expires_at", expiresAt).
		Msg("cached, expires")
}

// TunnelClosed logs the end of a CONNECT relay.
func (s Sink) TunnelClosed(id string) {
	l := s.logger(id)
	l.Info().Msg("tunnel closed")
}

// Warn logs a recovered error at warn level: the connection handler
// reports id-allocation failures, cache save failures, and CONNECT
// upstream failures this way rather than crashing the process.
func (s Sink) Warn(id, msg string, err error) {
	l := s.logger(id)
	l.Warn().Err(err).Msg(msg)
}
