package cacheproxy

import (
	"errors"
	"sync"
	"time"

	"github.com/jnovack/http-cache-proxy/pkg/httpmsg"
	"github.com/jnovack/http-cache-proxy/pkg/store"
)

// NoID is the reserved sentinel meaning "no cache entry", never used
// as an on-disk id.
const NoID = ""

var (
	// instance holds the process-wide ProxyCache. It is set exactly
	// once by NewProxyCache; a second call is an error, mirroring the
	// original's Singleton::createInstance contract.
	instance   *ProxyCache
	instanceMu sync.Mutex
)

// ProxyCache is the thread-safe RFC 7234 cache facade. A process
// constructs exactly one instance and shares it across every
// connection worker.
type ProxyCache struct {
	store *store.Store
	pool  idPool

	// writeMu serializes save() end to end so the "find existing id,
	// then write two sibling files" sequence is atomic with respect
	// to other savers. Readers do not take this lock.
	writeMu sync.Mutex
}

// NewProxyCache constructs the process-wide ProxyCache rooted at dir.
// Calling it twice returns an error; use Instance to fetch the
// already-constructed cache from other goroutines.
func NewProxyCache(dir string) (*ProxyCache, error) {
	instanceMu.Lock()
	defer instanceMu.Unlock()
	if instance != nil {
		return nil, errors.New("cacheproxy: NewProxyCache called more than once")
	}
	s, err := store.New(dir)
	if err != nil {
		return nil, err
	}
	pc := &ProxyCache{store: s}
	if err := pc.pool.refill(s); err != nil {
		return nil, err
	}
	instance = pc
	return pc, nil
}

// Instance returns the process-wide ProxyCache constructed by
// NewProxyCache. It panics if none has been constructed yet, matching
// the original's getInstance-before-createInstance contract.
func Instance() *ProxyCache {
	instanceMu.Lock()
	defer instanceMu.Unlock()
	if instance == nil {
		panic("cacheproxy: Instance called before NewProxyCache")
	}
	return instance
}

// OfferID allocates one fresh id from the pool, refilling it under the
// pool lock if it has drained.
func (c *ProxyCache) OfferID() (string, error) {
	return c.pool.draw(c.store)
}

// Save stores (req, sta) under cache-write serialization and returns
// the id it was filed under, or NoID if the pair was skipped because
// the method/status pair is not (GET, 200).
//
// When an existing entry's stored request start-line matches req's,
// that id is reused (an update). Otherwise prevID is used if supplied
// non-empty, else a fresh id is drawn from the pool.
func (c *ProxyCache) Save(req *httpmsg.Request, sta *httpmsg.Status, prevID string) (string, error) {
	if req.Method != "GET" || sta.Code != 200 {
		return NoID, nil
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	existingID, _, _, found := c.lookupByStartLine(req.StartLine())
	id := prevID
	if found {
		id = existingID
	} else if id == NoID {
		drawn, err := c.OfferID()
		if err != nil {
			return NoID, err
		}
		id = drawn
	}

	if !IsCacheable(req, sta) {
		return id, nil
	}

	if err := c.store.Save(reqName(id), req.Serialize()); err != nil {
		return NoID, err
	}
	if err := c.store.Save(staName(id), sta.Serialize()); err != nil {
		return NoID, err
	}
	return id, nil
}

// Action is the serving decision returned by ConstructResponse.
type Action struct {
	// Kind is one of "serve", "miss", "revalidate".
	Kind string
	// Resp holds the cached response for Serve, or the previously
	// cached response for Revalidate (returned to the client on 304).
	Resp *httpmsg.Status
	// ValidationReq is the conditional request the caller must send to
	// origin when Kind is "revalidate".
	ValidationReq *httpmsg.Request
	// ID is the id of the matched cache entry, empty on a miss.
	ID string
}

const (
	ActionServe      = "serve"
	ActionMiss       = "miss"
	ActionRevalidate = "revalidate"
)

// ConstructResponse implements the serving decision of RFC 7234 §4:
// it is a total function over every parsed request.
func (c *ProxyCache) ConstructResponse(req *httpmsg.Request) Action {
	id, sta, arrival, found := c.lookupByStartLine(req.StartLine())
	if !found {
		return Action{Kind: ActionMiss}
	}
	if req.Method != "GET" {
		return Action{Kind: ActionMiss}
	}
	if hasCacheControlDirective(&req.Headers, "no-cache") || hasCacheControlDirective(&sta.Headers, "no-cache") {
		return Action{Kind: ActionRevalidate, Resp: sta, ValidationReq: BuildValidationRequest(req, sta), ID: id}
	}
	if IsFresh(sta, time.Now(), arrival) {
		return Action{Kind: ActionServe, Resp: sta, ID: id}
	}
	return Action{Kind: ActionRevalidate, Resp: sta, ValidationReq: BuildValidationRequest(req, sta), ID: id}
}

// lookupByStartLine scans the store for a stored request whose
// start-line equals startLine, returning its id, parsed response, and
// the response's arrival time (its file's last-write time, the
// fallback used by Age when the stored response lacks Date).
func (c *ProxyCache) lookupByStartLine(startLine string) (id string, sta *httpmsg.Status, arrival time.Time, found bool) {
	names, err := c.store.Names()
	if err != nil {
		return "", nil, time.Time{}, false
	}
	for _, name := range names {
		reqID, ok := requestIDFromFilename(name)
		if !ok {
			continue
		}
		b, err := c.store.GetMsgByID(name)
		if err != nil {
			continue
		}
		var p httpmsg.RequestParser
		p.SetBuffer(b)
		req, err := p.Build()
		if err != nil {
			continue
		}
		if req.StartLine() != startLine {
			continue
		}
		respBytes, err := c.store.GetMsgByID(staName(reqID))
		if err != nil {
			// request_<id> exists without a matching response_<id>:
			// a save() in flight. Treat as a miss for this id.
			continue
		}
		var sp httpmsg.StatusParser
		sp.SetBuffer(respBytes)
		// A stored blob is always the complete message; mark it closed
		// up front so a read-until-close response (no Content-Length,
		// no chunked coding) parses instead of reporting
		// ErrStatusIncomplete forever.
		sp.MarkConnectionClosed()
		respMsg, err := sp.Build()
		if err != nil {
			continue
		}
		mtime, err := c.store.ModTime(staName(reqID))
		if err != nil {
			mtime = time.Now()
		}
		return reqID, respMsg, mtime, true
	}
	return "", nil, time.Time{}, false
}

func requestIDFromFilename(name string) (string, bool) {
	const prefix = reqPrefix + nameDelim
	if len(name) <= len(prefix) || name[:len(prefix)] != prefix {
		return "", false
	}
	return name[len(prefix):], true
}
