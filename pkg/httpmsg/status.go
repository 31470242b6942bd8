package httpmsg

import "strings"

// Status is a parsed HTTP response message: status-line, headers, and
// an optional body.
type Status struct {
	Version string
	Code    int
	Reason  string
	Headers Headers
	Body    []byte
}

// IsNull reports whether s is the reserved sentinel for "no cached
// response", as opposed to a genuinely parsed status. Code that holds a
// Status by value can use it in place of a pointer nil check.
func (s *Status) IsNull() bool { return s.Version == "" && s.Code == 0 }

// StatusParser drives incremental construction of a Status from bytes
// appended via SetBuffer.
type StatusParser struct {
	buf             LineBuffer
	sta             Status
	haveLine        bool
	haveHeaders     bool
	connectResponse bool
	closed          bool
}

// SetBuffer appends newly received bytes to the parser's scratch
// buffer.
func (p *StatusParser) SetBuffer(b []byte) {
	p.buf.Append(b)
}

// SetIsConnectResponse marks that this status is the reply to a
// CONNECT request, which forces an empty body on any 2xx code
// regardless of headers.
func (p *StatusParser) SetIsConnectResponse(v bool) {
	p.connectResponse = v
}

// MarkConnectionClosed records that the upstream peer has closed the
// connection. Build must be retried after this to consume the
// remaining buffered bytes as the body of a StatusNotComplete
// response.
func (p *StatusParser) MarkConnectionClosed() {
	p.closed = true
}

// Build attempts to produce a complete Status from the buffered bytes.
func (p *StatusParser) Build() (*Status, error) {
	if !p.haveLine {
		line, err := p.buf.TakeCRLFLine()
		if err != nil {
			return nil, err
		}
		version, code, reason, err := parseStatusLine(line)
		if err != nil {
			return nil, err
		}
		p.sta.Version = version
		p.sta.Code = code
		p.sta.Reason = reason
		p.haveLine = true
	}
	if !p.haveHeaders {
		if err := parseHeaderBlock(&p.buf, &p.sta.Headers); err != nil {
			return nil, err
		}
		p.haveHeaders = true
	}
	body, err := responseBody(&p.sta, p.connectResponse, p.closed, &p.buf)
	if err != nil {
		return nil, err
	}
	p.sta.Body = body
	out := p.sta
	return &out, nil
}

// Reset clears the parsed message and progress flags, ready to parse a
// new message. Unconsumed buffered bytes and the SetIsConnectResponse
// setting are kept.
func (p *StatusParser) Reset() {
	p.sta = Status{}
	p.haveLine = false
	p.haveHeaders = false
	p.closed = false
}

func parseStatusLine(line string) (version string, code int, reason string, err error) {
	if line == "" || line[0] == ' ' {
		return "", 0, "", ErrMalformed
	}
	sp1 := strings.IndexByte(line, ' ')
	if sp1 < 0 {
		return "", 0, "", ErrMalformed
	}
	version = line[:sp1]
	if !isHTTPVersion(version) {
		return "", 0, "", ErrMalformed
	}
	rest := line[sp1+1:]
	if len(rest) < 3 || rest[0] == ' ' {
		return "", 0, "", ErrMalformed
	}
	if len(rest) < 4 || rest[3] != ' ' {
		return "", 0, "", ErrMalformed
	}
	codeStr := rest[:3]
	for _, c := range codeStr {
		if !isDigit(byte(c)) {
			return "", 0, "", ErrMalformed
		}
	}
	code = int(codeStr[0]-'0')*100 + int(codeStr[1]-'0')*10 + int(codeStr[2]-'0')
	reason = rest[4:]
	return version, code, reason, nil
}

// Serialize renders the status back to wire bytes with CRLF line
// terminators.
func (s *Status) Serialize() []byte {
	var b strings.Builder
	b.WriteString(s.Version)
	b.WriteByte(' ')
	b.WriteString(threeDigit(s.Code))
	b.WriteByte(' ')
	b.WriteString(s.Reason)
	b.WriteString("\r\n")
	for _, f := range s.Headers.All() {
		b.WriteString(f.Name)
		b.WriteString(": ")
		b.WriteString(f.Value)
		b.WriteString("\r\n")
	}
	b.WriteString("\r\n")
	out := []byte(b.String())
	return append(out, s.Body...)
}

// StatusLine renders the status-line alone.
func (s *Status) StatusLine() string {
	return s.Version + " " + threeDigit(s.Code) + " " + s.Reason
}

func threeDigit(n int) string {
	if n < 0 {
		n = 0
	}
	digits := [3]byte{'0', '0', '0'}
	for i := 2; i >= 0 && n > 0; i-- {
		digits[i] = byte('0' + n%10)
		n /= 10
	}
	return string(digits[:])
}
