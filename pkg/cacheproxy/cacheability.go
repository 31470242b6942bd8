package cacheproxy

import (
	"strconv"
	"strings"
	"time"

	"github.com/jnovack/http-cache-proxy/pkg/httpmsg"
)

// heuristicFreshnessSeconds is applied when a storable response
// carries no explicit freshness signal (RFC 7234 §4.2.1).
const heuristicFreshnessSeconds = 86400

// httpDateLayout is RFC 7231's IMF-fixdate form, the only Date/Expires
// form this implementation parses.
const httpDateLayout = "Mon, 02 Jan 2006 15:04:05 GMT"

// IsCacheable reports whether resp is storable for req under RFC 7234
// §3.
func IsCacheable(req *httpmsg.Request, sta *httpmsg.Status) bool {
	if req.Method != "GET" || sta.Code != 200 {
		return false
	}
	if req.Headers.Has("Authorization") {
		return false
	}
	if hasCacheControlDirective(&req.Headers, "no-store") {
		return false
	}
	if hasCacheControlDirective(&sta.Headers, "no-store") {
		return false
	}
	if hasCacheControlDirective(&sta.Headers, "private") {
		return false
	}
	return true
}

// hasCacheControlDirective reports whether any Cache-Control header on
// h carries directive exactly as a comma-separated token, matched
// case-insensitively per RFC 7234.
func hasCacheControlDirective(h *httpmsg.Headers, directive string) bool {
	for _, v := range h.Values("Cache-Control") {
		for _, tok := range splitCommaTrim(v) {
			if strings.EqualFold(tok, directive) {
				return true
			}
		}
	}
	return false
}

func cacheControlIntArg(h *httpmsg.Headers, directive string) (int, bool) {
	for _, v := range h.Values("Cache-Control") {
		for _, tok := range splitCommaTrim(v) {
			prefix := directive + "="
			if len(tok) > len(prefix) && strings.EqualFold(tok[:len(prefix)], prefix) {
				n, err := strconv.Atoi(tok[len(prefix):])
				if err != nil || n < 0 {
					continue
				}
				return n, true
			}
		}
	}
	return 0, false
}

func splitCommaTrim(v string) []string {
	var out []string
	for _, tok := range strings.Split(v, ",") {
		tok = strings.TrimSpace(tok)
		if tok != "" {
			out = append(out, tok)
		}
	}
	return out
}

// FreshnessLifetime returns the freshness lifetime in seconds per RFC
// 7234 §4.2.1. ok is false when Expires is present but
// undefined per the precedence rules (missing/unparseable Date, or
// Expires before Date).
func FreshnessLifetime(sta *httpmsg.Status) (seconds int, ok bool) {
	if n, present := cacheControlIntArg(&sta.Headers, "s-maxage"); present {
		return n, true
	}
	if n, present := cacheControlIntArg(&sta.Headers, "max-age"); present {
		return n, true
	}
	if expiresStr, present := sta.Headers.Get("Expires"); present {
		expires, err := time.Parse(httpDateLayout, expiresStr)
		if err != nil {
			return 0, false
		}
		dateStr, present := sta.Headers.Get("Date")
		if !present {
			return 0, false
		}
		date, err := time.Parse(httpDateLayout, dateStr)
		if err != nil {
			return 0, false
		}
		if expires.Before(date) {
			return 0, false
		}
		return int(expires.Sub(date).Seconds()), true
	}
	return heuristicFreshnessSeconds, true
}

// Age computes the response's age in seconds per RFC 7234 §4.2.3.
// now is the point in time age is measured against; arrival is the
// fallback response-arrival time (the stored
// response file's last-write time) used when Date is absent or
// unparseable. ok is false when the result would be negative
// ("unknown"), which callers must treat as stale.
func Age(sta *httpmsg.Status, now, arrival time.Time) (seconds int, ok bool) {
	if dateStr, present := sta.Headers.Get("Date"); present {
		date, err := time.Parse(httpDateLayout, dateStr)
		if err == nil {
			if now.Before(date) {
				return 0, false
			}
			return int(now.Sub(date).Seconds()), true
		}
	}
	if now.Before(arrival) {
		return 0, false
	}
	return int(now.Sub(arrival).Seconds()), true
}

// IsFresh reports whether the cached response is still servable
// without revalidation: both lifetime and age must be defined, and
// lifetime must exceed age.
func IsFresh(sta *httpmsg.Status, now, arrival time.Time) bool {
	lifetime, ok := FreshnessLifetime(sta)
	if !ok {
		return false
	}
	age, ok := Age(sta, now, arrival)
	if !ok {
		return false
	}
	return lifetime > age
}

// BuildValidationRequest copies req and adds conditional headers
// derived from the cached response's validators:
// ETag becomes If-None-Match, Last-Modified becomes If-Modified-Since.
func BuildValidationRequest(req *httpmsg.Request, sta *httpmsg.Status) *httpmsg.Request {
	out := *req
	out.Headers = httpmsg.Headers{}
	for _, f := range req.Headers.All() {
		out.Headers.Add(f.Name, f.Value)
	}
	if etag, ok := sta.Headers.Get("ETag"); ok {
		out.Headers.Add("If-None-Match", etag)
	}
	if lm, ok := sta.Headers.Get("Last-Modified"); ok {
		out.Headers.Add("If-Modified-Since", lm)
	}
	return &out
}
