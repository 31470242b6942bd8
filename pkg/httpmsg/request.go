package httpmsg

import "strings"

// Request is a parsed HTTP request message: request-line, headers, and
// an optional body.
type Request struct {
	Method  string
	Target  string
	Version string
	Headers Headers
	Body    []byte
}

var requestMethods = map[string]bool{
	"GET":     true,
	"POST":    true,
	"CONNECT": true,
}

// RequestParser drives incremental construction of a Request from bytes
// appended via SetBuffer. Build is restartable: on ErrIncomplete the
// caller appends more bytes and calls Build again.
type RequestParser struct {
	buf          LineBuffer
	req          Request
	haveLine     bool
	haveHeaders  bool
	bodyComplete bool
}

// SetBuffer appends newly received bytes to the parser's scratch
// buffer.
func (p *RequestParser) SetBuffer(b []byte) {
	p.buf.Append(b)
}

// MarkConnectionClosed records that the peer has closed its half of the
// connection, satisfying a request-side StatusIncomplete wait. Requests
// never wait on connection close, so this exists only for symmetry
// with StatusParser and is otherwise unused.
func (p *RequestParser) MarkConnectionClosed() {
	p.bodyComplete = true
}

// Build attempts to produce a complete Request from the buffered bytes.
func (p *RequestParser) Build() (*Request, error) {
	if !p.haveLine {
		line, err := p.buf.TakeCRLFLine()
		if err != nil {
			return nil, err
		}
		method, target, version, err := parseRequestLine(line)
		if err != nil {
			return nil, err
		}
		p.req.Method = method
		p.req.Target = target
		p.req.Version = version
		p.haveLine = true
	}
	if !p.haveHeaders {
		if err := parseHeaderBlock(&p.buf, &p.req.Headers); err != nil {
			return nil, err
		}
		p.haveHeaders = true
	}
	body, err := requestBody(&p.req.Headers, &p.buf)
	if err != nil {
		return nil, err
	}
	p.req.Body = body
	out := p.req
	return &out, nil
}

// Reset clears all parser state, ready to parse a new message. Any
// unconsumed bytes in the buffer are preserved (a pipelined next
// message may already be present).
func (p *RequestParser) Reset() {
	p.req = Request{}
	p.haveLine = false
	p.haveHeaders = false
	p.bodyComplete = false
}

func parseRequestLine(line string) (method, target, version string, err error) {
	if line == "" {
		return "", "", "", ErrMalformed
	}
	if line[0] == ' ' {
		return "", "", "", ErrMalformed
	}
	sp1 := strings.IndexByte(line, ' ')
	if sp1 < 0 {
		return "", "", "", ErrMalformed
	}
	method = line[:sp1]
	if !requestMethods[method] {
		return "", "", "", ErrMalformed
	}
	rest := line[sp1+1:]
	if rest == "" || rest[0] == ' ' {
		return "", "", "", ErrMalformed
	}
	sp2 := strings.IndexByte(rest, ' ')
	if sp2 < 0 {
		return "", "", "", ErrMalformed
	}
	target = rest[:sp2]
	if target == "" {
		return "", "", "", ErrMalformed
	}
	version = rest[sp2+1:]
	if version == "" || version[0] == ' ' || strings.HasSuffix(version, " ") {
		return "", "", "", ErrMalformed
	}
	if strings.IndexByte(version, ' ') >= 0 {
		return "", "", "", ErrMalformed
	}
	if !isHTTPVersion(version) {
		return "", "", "", ErrMalformed
	}
	if method == "CONNECT" {
		if !strings.Contains(target, ":") {
			return "", "", "", ErrMalformed
		}
	}
	return method, target, version, nil
}

// isHTTPVersion reports whether s matches HTTP/<digit>.<digit> exactly.
func isHTTPVersion(s string) bool {
	const prefix = "HTTP/"
	if len(s) != len(prefix)+3 {
		return false
	}
	if s[:len(prefix)] != prefix {
		return false
	}
	rest := s[len(prefix):]
	return isDigit(rest[0]) && rest[1] == '.' && isDigit(rest[2])
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

// Serialize renders the request back to wire bytes with CRLF line
// terminators.
func (r *Request) Serialize() []byte {
	var b strings.Builder
	b.WriteString(r.Method)
	b.WriteByte(' ')
	b.WriteString(r.Target)
	b.WriteByte(' ')
	b.WriteString(r.Version)
	b.WriteString("\r\n")
	for _, f := range r.Headers.All() {
		b.WriteString(f.Name)
		b.WriteString(": ")
		b.WriteString(f.Value)
		b.WriteString("\r\n")
	}
	b.WriteString("\r\n")
	out := []byte(b.String())
	return append(out, r.Body...)
}

// StartLine renders the request-line alone, used as the cache lookup
// key.
func (r *Request) StartLine() string {
	return r.Method + " " + r.Target + " " + r.Version
}
