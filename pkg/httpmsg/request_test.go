package httpmsg

import "testing"

func TestRequestParserFullMessage(t *testing.T) {
	var p RequestParser
	p.SetBuffer([]byte("GET http://h/x HTTP/1.1\r\nHost: h\r\n\r\n"))
	req, err := p.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if req.Method != "GET" || req.Target != "http://h/x" || req.Version != "HTTP/1.1" {
		t.Fatalf("unexpected request-line: %+v", req)
	}
	host, ok := req.Headers.Get("Host")
	if !ok || host != "h" {
		t.Fatalf("expected Host header, got %q ok=%v", host, ok)
	}
	if len(req.Body) != 0 {
		t.Fatalf("expected empty body, got %q", req.Body)
	}
}

func TestRequestParserIncompletePrefixes(t *testing.T) {
	full := "POST http://h/x HTTP/1.1\r\nHost: h\r\nContent-Length: 3\r\n\r\nabc"
	for i := 0; i < len(full); i++ {
		var p RequestParser
		p.SetBuffer([]byte(full[:i]))
		if _, err := p.Build(); err != ErrIncomplete {
			t.Fatalf("prefix %d: expected ErrIncomplete, got %v", i, err)
		}
	}
	var p RequestParser
	p.SetBuffer([]byte(full))
	req, err := p.Build()
	if err != nil {
		t.Fatalf("Build full: %v", err)
	}
	if string(req.Body) != "abc" {
		t.Fatalf("expected body abc, got %q", req.Body)
	}
}

func TestRequestParserTrailingBytesPreserved(t *testing.T) {
	full := "GET http://h/x HTTP/1.1\r\nHost: h\r\n\r\n"
	trailer := "GET http://h/y HTTP/1.1\r\nHost: h\r\n\r\n"
	var p RequestParser
	p.SetBuffer([]byte(full + trailer))
	req, err := p.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if req.Target != "http://h/x" {
		t.Fatalf("unexpected target: %s", req.Target)
	}
	if string(p.buf.Bytes()) != trailer {
		t.Fatalf("expected trailing bytes preserved, got %q", p.buf.Bytes())
	}
}

func TestRequestParserMalformed(t *testing.T) {
	cases := []string{
		"GEX / HTTP/1.1\r\n\r\n",
		" GET / HTTP/1.1\r\n\r\n",
		"GET  / HTTP/1.1\r\n\r\n",
		"GET / HTTP/1.1 \r\n\r\n",
		"GET / HTTP1.1\r\n\r\n",
		"GET /\r\n\r\n",
		"CONNECT host HTTP/1.1\r\n\r\n",
	}
	for _, c := range cases {
		var p RequestParser
		p.SetBuffer([]byte(c))
		if _, err := p.Build(); err != ErrMalformed {
			t.Fatalf("case %q: expected ErrMalformed, got %v", c, err)
		}
	}
}

func TestRequestParserDuplicateHeaderNamesRetained(t *testing.T) {
	var p RequestParser
	p.SetBuffer([]byte("GET / HTTP/1.1\r\nX-A: 1\r\nX-A: 2\r\n\r\n"))
	req, err := p.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	vals := req.Headers.Values("X-A")
	if len(vals) != 2 || vals[0] != "1" || vals[1] != "2" {
		t.Fatalf("expected both duplicate values retained, got %v", vals)
	}
}

func TestRequestSerializeRoundTrip(t *testing.T) {
	var p RequestParser
	orig := "POST http://h/x HTTP/1.1\r\nHost: h\r\nContent-Length: 3\r\n\r\nabc"
	p.SetBuffer([]byte(orig))
	req, err := p.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	var p2 RequestParser
	p2.SetBuffer(req.Serialize())
	req2, err := p2.Build()
	if err != nil {
		t.Fatalf("Build round-trip: %v", err)
	}
	if !req.Headers.Equal(&req2.Headers) || req.StartLine() != req2.StartLine() || string(req.Body) != string(req2.Body) {
		t.Fatalf("round-trip mismatch: %+v vs %+v", req, req2)
	}
}
