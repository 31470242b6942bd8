package cacheproxy

import (
	"testing"
	"time"

	"github.com/jnovack/http-cache-proxy/pkg/httpmsg"
)

func mkReq(method string) *httpmsg.Request {
	return &httpmsg.Request{Method: method, Target: "http://example.com/a", Version: "HTTP/1.1"}
}

func mkSta(code int) *httpmsg.Status {
	return &httpmsg.Status{Version: "HTTP/1.1", Code: code, Reason: "OK"}
}

func TestIsCacheableRequiresGET200(t *testing.T) {
	req, sta := mkReq("GET"), mkSta(200)
	if !IsCacheable(req, sta) {
		t.Fatal("expected GET/200 to be cacheable")
	}
	if IsCacheable(mkReq("POST"), sta) {
		t.Fatal("POST must not be cacheable")
	}
	if IsCacheable(req, mkSta(404)) {
		t.Fatal("404 must not be cacheable")
	}
}

func TestIsCacheableRejectsAuthorizationAndNoStore(t *testing.T) {
	req, sta := mkReq("GET"), mkSta(200)
	req.Headers.Add("Authorization", "Basic xyz")
	if IsCacheable(req, sta) {
		t.Fatal("request Authorization must block caching")
	}

	req2, sta2 := mkReq("GET"), mkSta(200)
	sta2.Headers.Add("Cache-Control", "no-store")
	if IsCacheable(req2, sta2) {
		t.Fatal("response no-store must block caching")
	}

	req3, sta3 := mkReq("GET"), mkSta(200)
	sta3.Headers.Add("Cache-Control", "private")
	if IsCacheable(req3, sta3) {
		t.Fatal("response private must block caching")
	}
}

func TestHasCacheControlDirectiveCaseInsensitive(t *testing.T) {
	sta := mkSta(200)
	sta.Headers.Add("Cache-Control", "No-Cache, max-age=10")
	if !hasCacheControlDirective(&sta.Headers, "no-cache") {
		t.Fatal("expected case-insensitive match on no-cache")
	}
}

func TestFreshnessLifetimePrecedence(t *testing.T) {
	sta := mkSta(200)
	sta.Headers.Add("Cache-Control", "max-age=30, s-maxage=60")
	life, ok := FreshnessLifetime(sta)
	if !ok || life != 60 {
		t.Fatalf("expected s-maxage to win with 60, got %d ok=%v", life, ok)
	}

	sta2 := mkSta(200)
	sta2.Headers.Add("Cache-Control", "max-age=30")
	life2, ok2 := FreshnessLifetime(sta2)
	if !ok2 || life2 != 30 {
		t.Fatalf("expected max-age 30, got %d ok=%v", life2, ok2)
	}

	sta3 := mkSta(200)
	life3, ok3 := FreshnessLifetime(sta3)
	if !ok3 || life3 != heuristicFreshnessSeconds {
		t.Fatalf("expected heuristic default, got %d ok=%v", life3, ok3)
	}
}

func TestFreshnessLifetimeExpiresRequiresDate(t *testing.T) {
	sta := mkSta(200)
	sta.Headers.Add("Expires", "Sun, 06 Nov 2094 08:49:37 GMT")
	_, ok := FreshnessLifetime(sta)
	if ok {
		t.Fatal("Expires without Date must be undefined")
	}
}

func TestAgeFallsBackToArrivalTime(t *testing.T) {
	sta := mkSta(200)
	now := time.Now()
	arrival := now.Add(-30 * time.Second)
	age, ok := Age(sta, now, arrival)
	if !ok || age < 29 || age > 31 {
		t.Fatalf("expected age ~30s from arrival fallback, got %d ok=%v", age, ok)
	}
}

func TestIsFreshComparesLifetimeToAge(t *testing.T) {
	sta := mkSta(200)
	sta.Headers.Add("Cache-Control", "max-age=60")
	now := time.Now()
	fresh := IsFresh(sta, now, now.Add(-10*time.Second))
	if !fresh {
		t.Fatal("expected fresh at age 10s with lifetime 60s")
	}
	stale := IsFresh(sta, now, now.Add(-120*time.Second))
	if stale {
		t.Fatal("expected stale at age 120s with lifetime 60s")
	}
}

func TestBuildValidationRequestAddsConditionalHeaders(t *testing.T) {
	req := mkReq("GET")
	sta := mkSta(200)
	sta.Headers.Add("ETag", `"v1"`)
	sta.Headers.Add("Last-Modified", "Sun, 06 Nov 1994 08:49:37 GMT")
	val := BuildValidationRequest(req, sta)
	if v, ok := val.Headers.Get("If-None-Match"); !ok || v != `"v1"` {
		t.Fatalf("expected If-None-Match set from ETag, got %q ok=%v", v, ok)
	}
	if v, ok := val.Headers.Get("If-Modified-Since"); !ok || v != "Sun, 06 Nov 1994 08:49:37 GMT" {
		t.Fatalf("expected If-Modified-Since set from Last-Modified, got %q ok=%v", v, ok)
	}
}
