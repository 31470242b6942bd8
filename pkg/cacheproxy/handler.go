package cacheproxy

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/jnovack/http-cache-proxy/pkg/activitylog"
	"github.com/jnovack/http-cache-proxy/pkg/httpmsg"
)

// recvRetryCap bounds the number of appends a worker will wait through
// for one message before giving up on a stalled peer.
const recvRetryCap = 2000

// recvChunkSize is the size of each read from a socket while filling
// the parser's scratch buffer.
const recvChunkSize = 64 * 1024

const badRequestBody = "<html><body><h1>400 Bad Request</h1></body></html>"
const badGatewayBody = "<html><body><h1>502 Bad Gateway</h1></body></html>"

// Handler runs the per-connection state machine. One Handler is shared
// by every connection a Server accepts, and each connection runs
// HandleConnection to completion on its own goroutine; the Handler
// holds no per-connection state, only the ProxyCache, configuration,
// and activity log it was constructed with.
type Handler struct {
	cache *ProxyCache
	cfg   Config
	log   activitylog.Sink
}

// NewHandler constructs a Handler bound to the process-wide cache and
// configuration.
func NewHandler(cache *ProxyCache, cfg Config) *Handler {
	return &Handler{cache: cache, cfg: cfg, log: activitylog.New()}
}

// HandleConnection drives one accepted client connection through
// receive, dispatch, and response, recovering from any panic that
// escapes a branch so a single bad request can never crash the
// process.
func (h *Handler) HandleConnection(ctx context.Context, client net.Conn) {
	connID := uuid.Must(uuid.NewV7())
	ctx = context.WithValue(ctx, ConnectionIDKey{}, connID)
	connLog := log.With().Str("conn", connID.String()).Logger()
	ctx = connLog.WithContext(ctx)
	defer client.Close()

	start := time.Now()
	id := ""
	defer func() {
		if r := recover(); r != nil {
			log.Ctx(ctx).Warn().Interface("panic", r).Str("txn", id).Msg("panic escaped connection handler")
		}
	}()

	if h.cfg.Metrics != nil {
		h.cfg.Metrics.IncTotalRequests()
		h.cfg.Metrics.InflightAdd(connID.String())
		defer h.cfg.Metrics.InflightRemove(connID.String())
	}

	id, err := h.cache.OfferID()
	if err != nil {
		h.log.Warn(id, "failed to allocate transaction id", err)
		id = ""
	}

	req, err := h.receiveRequest(client)
	if err != nil {
		if err == httpmsg.ErrMalformed && h.cfg.Metrics != nil {
			h.cfg.Metrics.IncBadRequests()
		}
		return
	}

	h.log.RequestLine(id, req.StartLine(), client.RemoteAddr().String())

	rec := TransactionRecord{
		ID:         id,
		Method:     req.Method,
		Target:     req.Target,
		RemoteAddr: client.RemoteAddr().String(),
		Time:       start,
	}
	defer func() {
		rec.Latency = time.Since(start)
		rec.LatencySecs = rec.Latency.Seconds()
		if h.cfg.Metrics != nil {
			h.cfg.Metrics.ObserveDuration(rec.Outcome, rec.LatencySecs)
		}
		NotifyObserver(h.cfg.RequestObserver, rec)
	}()

	switch req.Method {
	case "GET":
		h.handleGET(ctx, client, req, &id, &rec)
	case "POST":
		h.handlePOST(ctx, client, req, &rec)
	case "CONNECT":
		h.handleConnect(ctx, client, req, id, &rec)
	}
}

// receiveRequest appends bytes from client into a scratch buffer and
// retries Build until it succeeds, the peer closes, or the retry cap
// is exhausted.
func (h *Handler) receiveRequest(client net.Conn) (*httpmsg.Request, error) {
	var p httpmsg.RequestParser
	buf := make([]byte, recvChunkSize)
	for i := 0; i < recvRetryCap; i++ {
		req, err := p.Build()
		if err == nil {
			return req, nil
		}
		if err == httpmsg.ErrMalformed {
			sendHTML(client, 400, badRequestBody)
			return nil, err
		}
		n, rerr := client.Read(buf)
		if n > 0 {
			p.SetBuffer(buf[:n])
		}
		if rerr != nil {
			return nil, rerr
		}
	}
	return nil, httpmsg.ErrIncomplete
}

// receiveStatus mirrors receiveRequest for the response side,
// including the StatusNotComplete read-to-EOF path.
func (h *Handler) receiveStatus(upstream net.Conn, isConnect bool) (*httpmsg.Status, error) {
	var p httpmsg.StatusParser
	p.SetIsConnectResponse(isConnect)
	buf := make([]byte, recvChunkSize)
	for i := 0; i < recvRetryCap; i++ {
		sta, err := p.Build()
		if err == nil {
			return sta, nil
		}
		if err == httpmsg.ErrMalformed {
			return nil, err
		}
		if err == httpmsg.ErrStatusIncomplete {
			n, rerr := upstream.Read(buf)
			if n > 0 {
				p.SetBuffer(buf[:n])
			}
			if rerr != nil {
				p.MarkConnectionClosed()
			}
			continue
		}
		n, rerr := upstream.Read(buf)
		if n > 0 {
			p.SetBuffer(buf[:n])
		}
		if rerr != nil {
			return nil, rerr
		}
	}
	return nil, httpmsg.ErrIncomplete
}

func (h *Handler) dialOrigin(ctx context.Context, target httpmsg.Target) (net.Conn, error) {
	port := target.Port
	if port == "" {
		port = "80"
	}
	timeout := h.cfg.DialTimeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	dctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if connID, ok := ctx.Value(ConnectionIDKey{}).(uuid.UUID); ok {
		log.Ctx(ctx).Debug().Str("conn", connID.String()).Str("host", target.Host).Msg("dialing origin")
	}
	var d net.Dialer
	return d.DialContext(dctx, "tcp", net.JoinHostPort(target.Host, port))
}

func (h *Handler) handleGET(ctx context.Context, client net.Conn, req *httpmsg.Request, idPtr *string, rec *TransactionRecord) {
	action := h.cache.ConstructResponse(req)
	if action.ID != "" {
		*idPtr = action.ID
		rec.ID = action.ID
	}
	id := *idPtr

	switch action.Kind {
	case ActionServe:
		h.log.CacheVerdictValid(id)
		h.forwardStatus(client, action.Resp, rec)
		rec.Outcome = OutcomeServe
		if h.cfg.Metrics != nil {
			h.cfg.Metrics.IncServe()
		}
		return

	case ActionMiss:
		h.log.CacheVerdictMiss(id)
		target, err := httpmsg.ParseAbsoluteForm(req.Target)
		if err != nil {
			sendHTML(client, 400, badRequestBody)
			rec.Outcome = OutcomeError4xx
			if h.cfg.Metrics != nil {
				h.cfg.Metrics.IncBadRequests()
			}
			return
		}
		upstream, err := h.dialOrigin(ctx, target)
		if err != nil {
			sendHTML(client, 502, badGatewayBody)
			rec.Outcome = OutcomeError5xx
			if h.cfg.Metrics != nil {
				h.cfg.Metrics.IncOriginErrors()
			}
			return
		}
		defer upstream.Close()

		stripHopByHop(&req.Headers)
		h.log.Requesting(id, req.StartLine(), target.Host)
		if _, err := upstream.Write(req.Serialize()); err != nil {
			sendHTML(client, 502, badGatewayBody)
			rec.Outcome = OutcomeError5xx
			if h.cfg.Metrics != nil {
				h.cfg.Metrics.IncOriginErrors()
			}
			return
		}
		sta, err := h.receiveStatus(upstream, false)
		if err != nil {
			sendHTML(client, 502, badGatewayBody)
			rec.Outcome = OutcomeError5xx
			if h.cfg.Metrics != nil {
				h.cfg.Metrics.IncOriginErrors()
			}
			return
		}
		h.log.Received(id, sta.StatusLine(), target.Host)
		stripHopByHop(&sta.Headers)

		newID, err := h.cache.Save(req, sta, id)
		if err != nil {
			h.log.Warn(id, "cache save failed", err)
			if h.cfg.Metrics != nil {
				h.cfg.Metrics.IncCacheErrors()
			}
		} else if newID != NoID {
			*idPtr = newID
			rec.ID = newID
			h.logCacheDecision(newID, req, sta)
		}

		h.forwardStatus(client, sta, rec)
		rec.Outcome = OutcomeMiss
		if h.cfg.Metrics != nil {
			h.cfg.Metrics.IncMiss()
		}

	case ActionRevalidate:
		h.log.CacheVerdictRequiresValidation(id)
		target, err := httpmsg.ParseAbsoluteForm(req.Target)
		if err != nil {
			sendHTML(client, 400, badRequestBody)
			rec.Outcome = OutcomeError4xx
			if h.cfg.Metrics != nil {
				h.cfg.Metrics.IncBadRequests()
			}
			return
		}
		upstream, err := h.dialOrigin(ctx, target)
		if err != nil {
			sendHTML(client, 502, badGatewayBody)
			rec.Outcome = OutcomeError5xx
			if h.cfg.Metrics != nil {
				h.cfg.Metrics.IncOriginErrors()
			}
			return
		}
		defer upstream.Close()

		stripHopByHop(&action.ValidationReq.Headers)
		h.log.Requesting(id, action.ValidationReq.StartLine(), target.Host)
		if _, err := upstream.Write(action.ValidationReq.Serialize()); err != nil {
			sendHTML(client, 502, badGatewayBody)
			rec.Outcome = OutcomeError5xx
			if h.cfg.Metrics != nil {
				h.cfg.Metrics.IncOriginErrors()
			}
			return
		}
		sta, err := h.receiveStatus(upstream, false)
		if err != nil {
			sendHTML(client, 502, badGatewayBody)
			rec.Outcome = OutcomeError5xx
			if h.cfg.Metrics != nil {
				h.cfg.Metrics.IncOriginErrors()
			}
			return
		}
		h.log.Received(id, sta.StatusLine(), target.Host)
		stripHopByHop(&sta.Headers)

		switch sta.Code {
		case 200:
			newID, err := h.cache.Save(req, sta, id)
			if err != nil {
				h.log.Warn(id, "cache save failed", err)
				if h.cfg.Metrics != nil {
					h.cfg.Metrics.IncCacheErrors()
				}
			} else if newID != NoID {
				*idPtr = newID
				rec.ID = newID
				h.logCacheDecision(newID, req, sta)
			}
			h.forwardStatus(client, sta, rec)
			rec.Outcome = OutcomeRevalidate200
			if h.cfg.Metrics != nil {
				h.cfg.Metrics.IncRevalidated()
			}
		case 304:
			h.forwardStatus(client, action.Resp, rec)
			rec.Outcome = OutcomeRevalidate304
			if h.cfg.Metrics != nil {
				h.cfg.Metrics.IncRevalidated()
			}
		default:
			sendHTML(client, 502, badGatewayBody)
			rec.Outcome = OutcomeError5xx
			if h.cfg.Metrics != nil {
				h.cfg.Metrics.IncOriginErrors()
			}
		}
	}
}

func (h *Handler) handlePOST(ctx context.Context, client net.Conn, req *httpmsg.Request, rec *TransactionRecord) {
	target, err := httpmsg.ParseAbsoluteForm(req.Target)
	if err != nil {
		sendHTML(client, 400, badRequestBody)
		rec.Outcome = OutcomeError4xx
		if h.cfg.Metrics != nil {
			h.cfg.Metrics.IncBadRequests()
		}
		return
	}
	upstream, err := h.dialOrigin(ctx, target)
	if err != nil {
		sendHTML(client, 502, badGatewayBody)
		rec.Outcome = OutcomeError5xx
		if h.cfg.Metrics != nil {
			h.cfg.Metrics.IncOriginErrors()
		}
		return
	}
	defer upstream.Close()

	stripHopByHop(&req.Headers)
	h.log.Requesting(rec.ID, req.StartLine(), target.Host)
	if _, err := upstream.Write(req.Serialize()); err != nil {
		sendHTML(client, 502, badGatewayBody)
		rec.Outcome = OutcomeError5xx
		if h.cfg.Metrics != nil {
			h.cfg.Metrics.IncOriginErrors()
		}
		return
	}
	sta, err := h.receiveStatus(upstream, false)
	if err != nil {
		sendHTML(client, 502, badGatewayBody)
		rec.Outcome = OutcomeError5xx
		if h.cfg.Metrics != nil {
			h.cfg.Metrics.IncOriginErrors()
		}
		return
	}
	h.log.Received(rec.ID, sta.StatusLine(), target.Host)
	stripHopByHop(&sta.Headers)
	h.forwardStatus(client, sta, rec)
	rec.Outcome = OutcomeBypass
	if h.cfg.Metrics != nil {
		h.cfg.Metrics.IncBypass()
	}
}

func (h *Handler) handleConnect(ctx context.Context, client net.Conn, req *httpmsg.Request, id string, rec *TransactionRecord) {
	target, err := httpmsg.ParseAuthorityForm(req.Target)
	if err != nil {
		sendHTML(client, 400, badRequestBody)
		rec.Outcome = OutcomeError4xx
		if h.cfg.Metrics != nil {
			h.cfg.Metrics.IncBadRequests()
		}
		return
	}
	upstream, err := h.dialOrigin(ctx, target)
	if err != nil {
		h.log.Warn(id, "failed to connect to upstream for CONNECT", err)
		rec.Outcome = OutcomeError5xx
		if h.cfg.Metrics != nil {
			h.cfg.Metrics.IncOriginErrors()
		}
		return
	}

	const connEstablished = "HTTP/1.1 200 OK\r\n\r\n"
	if _, err := client.Write([]byte(connEstablished)); err != nil {
		upstream.Close()
		h.log.Warn(id, "failed to send 200 OK to client for CONNECT", err)
		return
	}
	h.log.Responding(id, "HTTP/1.1 200 OK")

	_ = relay(client, upstream)
	h.log.TunnelClosed(id)
	rec.Outcome = OutcomeTunnel
	if h.cfg.Metrics != nil {
		h.cfg.Metrics.IncTunnel()
	}
}

// forwardStatus writes sta to client and logs the responding phase and
// transaction record fields shared by every response-forwarding path.
func (h *Handler) forwardStatus(client net.Conn, sta *httpmsg.Status, rec *TransactionRecord) {
	wire := sta.Serialize()
	rec.Status = sta.Code
	rec.Bytes = int64(len(wire))
	if _, err := client.Write(wire); err != nil {
		log.Debug().Err(err).Msg("failed to write response to client")
		return
	}
	h.log.Responding(rec.ID, sta.StatusLine())
}

// logCacheDecision logs why a freshly saved response either was, or
// was not, actually persisted.
func (h *Handler) logCacheDecision(id string, req *httpmsg.Request, sta *httpmsg.Status) {
	if !IsCacheable(req, sta) {
		h.log.NotCacheable(id, "no-store, private, or Authorization present")
		return
	}
	lifetime, ok := FreshnessLifetime(sta)
	if !ok {
		h.log.NotCacheable(id, "Expires present but undefined relative to Date")
		return
	}
	expiresAt := time.Now().Add(time.Duration(lifetime) * time.Second).UTC().Format(httpDateLayout)
	h.log.CachedExpires(id, expiresAt)
}

func sendHTML(conn net.Conn, code int, body string) {
	reason := "Bad Request"
	if code == 502 {
		reason = "Bad Gateway"
	}
	resp := fmt.Sprintf("HTTP/1.1 %d %s\r\nContent-Type: text/html\r\nContent-Length: %d\r\nConnection: close\r\n\r\n%s",
		code, reason, len(body), body)
	_, _ = conn.Write([]byte(resp))
}
