package httpmsg

import "testing"

func TestStatusParserFullMessage(t *testing.T) {
	var p StatusParser
	p.SetBuffer([]byte("HTTP/1.1 200 OK\r\nContent-Length: 3\r\n\r\nabc"))
	sta, err := p.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if sta.Code != 200 || sta.Reason != "OK" {
		t.Fatalf("unexpected status-line: %+v", sta)
	}
	if string(sta.Body) != "abc" {
		t.Fatalf("expected body abc, got %q", sta.Body)
	}
}

func TestStatusParser1xxAnd204And304EmptyBody(t *testing.T) {
	cases := []string{
		"HTTP/1.1 100 Continue\r\nContent-Length: 5\r\n\r\n",
		"HTTP/1.1 204 No Content\r\nContent-Length: 5\r\n\r\n",
		"HTTP/1.1 304 Not Modified\r\nContent-Length: 5\r\n\r\n",
	}
	for _, c := range cases {
		var p StatusParser
		p.SetBuffer([]byte(c))
		sta, err := p.Build()
		if err != nil {
			t.Fatalf("case %q: Build: %v", c, err)
		}
		if len(sta.Body) != 0 {
			t.Fatalf("case %q: expected empty body, got %q", c, sta.Body)
		}
	}
}

func TestStatusParserConnectResponseIgnoresFraming(t *testing.T) {
	var p StatusParser
	p.SetIsConnectResponse(true)
	p.SetBuffer([]byte("HTTP/1.1 200 Connection Established\r\nContent-Length: 100\r\n\r\n"))
	sta, err := p.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(sta.Body) != 0 {
		t.Fatalf("expected empty body for CONNECT 2xx, got %q", sta.Body)
	}
}

func TestStatusParserStatusNotComplete(t *testing.T) {
	var p StatusParser
	p.SetBuffer([]byte("HTTP/1.1 200 OK\r\nX-Foo: bar\r\n\r\nsome unterminated body"))
	if _, err := p.Build(); err != ErrStatusIncomplete {
		t.Fatalf("expected ErrStatusIncomplete, got %v", err)
	}
	p.MarkConnectionClosed()
	sta, err := p.Build()
	if err != nil {
		t.Fatalf("Build after close: %v", err)
	}
	if string(sta.Body) != "some unterminated body" {
		t.Fatalf("expected drained body, got %q", sta.Body)
	}
}

func TestStatusParserMultipleContentLengthMalformed(t *testing.T) {
	var p StatusParser
	p.SetBuffer([]byte("HTTP/1.1 200 OK\r\nContent-Length: 3\r\nContent-Length: 4\r\n\r\nabcd"))
	if _, err := p.Build(); err != ErrMalformed {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func TestStatusParserChunkedDecode(t *testing.T) {
	var p StatusParser
	p.SetBuffer([]byte("HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n4\r\nWiki\r\n5\r\npedia\r\n0\r\n\r\n"))
	sta, err := p.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if string(sta.Body) != "Wikipedia" {
		t.Fatalf("expected Wikipedia, got %q", sta.Body)
	}
}

func TestStatusParserChunkedDecodeAcrossSegments(t *testing.T) {
	var p StatusParser
	full := "HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n4\r\nWiki\r\n5\r\npedia\r\n0\r\n\r\n"
	// split mid-second-chunk, after the first chunk has fully arrived.
	split := len("HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n4\r\nWiki\r\n5\r\npe")
	p.SetBuffer([]byte(full[:split]))
	if _, err := p.Build(); err != ErrIncomplete {
		t.Fatalf("expected ErrIncomplete on the first segment, got %v", err)
	}
	p.SetBuffer([]byte(full[split:]))
	sta, err := p.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if string(sta.Body) != "Wikipedia" {
		t.Fatalf("expected Wikipedia with no chunks lost across the split, got %q", sta.Body)
	}
}

func TestStatusSerializeRoundTrip(t *testing.T) {
	var p StatusParser
	orig := "HTTP/1.1 200 OK\r\nCache-Control: max-age=60\r\nContent-Length: 3\r\n\r\nabc"
	p.SetBuffer([]byte(orig))
	sta, err := p.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	var p2 StatusParser
	p2.SetBuffer(sta.Serialize())
	sta2, err := p2.Build()
	if err != nil {
		t.Fatalf("Build round-trip: %v", err)
	}
	if sta.StatusLine() != sta2.StatusLine() || !sta.Headers.Equal(&sta2.Headers) || string(sta.Body) != string(sta2.Body) {
		t.Fatalf("round-trip mismatch: %+v vs %+v", sta, sta2)
	}
}
