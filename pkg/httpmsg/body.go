package httpmsg

import "strconv"

// contentLength inspects h for a single valid Content-Length header.
// It returns ok=false with no error when the header is absent, and
// ErrMalformed when it is present more than once or is not a
// non-negative integer.
func contentLength(h *Headers) (n int, ok bool, err error) {
	values := h.Values("Content-Length")
	if len(values) == 0 {
		return 0, false, nil
	}
	if len(values) > 1 {
		return 0, false, ErrMalformed
	}
	v, convErr := strconv.Atoi(values[0])
	if convErr != nil || v < 0 {
		return 0, false, ErrMalformed
	}
	return v, true, nil
}

func lastTransferCoding(h *Headers) (string, bool) {
	v, ok := h.Get("Transfer-Encoding")
	if !ok {
		return "", false
	}
	tokens := splitCommaList(v)
	if len(tokens) == 0 {
		return "", false
	}
	return tokens[len(tokens)-1], true
}

func splitCommaList(v string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(v); i++ {
		if i == len(v) || v[i] == ',' {
			tok := trimOWS(v[start:i])
			if tok != "" {
				out = append(out, tok)
			}
			start = i + 1
		}
	}
	return out
}

func trimOWS(s string) string {
	i, j := 0, len(s)
	for i < j && (s[i] == ' ' || s[i] == '\t') {
		i++
	}
	for j > i && (s[j-1] == ' ' || s[j-1] == '\t') {
		j--
	}
	return s[i:j]
}

// requestBody applies body-framing rules for the request
// side: chunked decode, single valid Content-Length, or empty.
func requestBody(h *Headers, l *LineBuffer) ([]byte, error) {
	if coding, present := lastTransferCoding(h); present {
		if !equalFoldASCII(coding, "chunked") {
			return nil, ErrMalformed
		}
		return decodeChunked(l)
	}
	n, ok, err := contentLength(h)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	if n == 0 {
		return []byte{}, nil
	}
	return l.TakeN(n)
}

// responseBody applies body-framing rules for the response
// side, including the empty-body short circuits and the
// StatusNotComplete read-until-close path.
func responseBody(s *Status, isConnectResponse, closed bool, l *LineBuffer) ([]byte, error) {
	if s.Code/100 == 1 || s.Code == 204 || s.Code == 304 {
		return []byte{}, nil
	}
	if isConnectResponse && s.Code/100 == 2 {
		return []byte{}, nil
	}
	if coding, present := lastTransferCoding(&s.Headers); present {
		if !equalFoldASCII(coding, "chunked") {
			if !closed {
				return nil, ErrStatusIncomplete
			}
			return l.TakeAll(), nil
		}
		return decodeChunked(l)
	}
	n, ok, err := contentLength(&s.Headers)
	if err != nil {
		return nil, err
	}
	if ok {
		if n == 0 {
			return []byte{}, nil
		}
		return l.TakeN(n)
	}
	if !closed {
		return nil, ErrStatusIncomplete
	}
	return l.TakeAll(), nil
}

func equalFoldASCII(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if ca >= 'A' && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if cb >= 'A' && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

// decodeChunked consumes the chunked transfer-coding grammar from l
// and returns the reassembled body octets. A malformed chunk-size or
// missing terminator CRLF yields ErrMalformed; running out of buffered
// bytes mid-chunk yields ErrIncomplete so the caller can append more
// and retry, restoring l to exactly what it held on entry so the next
// attempt re-decodes every chunk, including ones already completed
// this call, rather than losing them.
func decodeChunked(l *LineBuffer) ([]byte, error) {
	saved := append([]byte(nil), l.Bytes()...)
	var body []byte
	for {
		line, err := l.TakeCRLFLine()
		if err != nil {
			l.Reset()
			l.Append(saved)
			return nil, err
		}
		sizeStr := line
		if semi := indexByte(line, ';'); semi >= 0 {
			sizeStr = line[:semi]
		}
		size, err := strconv.ParseInt(sizeStr, 16, 64)
		if err != nil || size < 0 {
			return nil, ErrMalformed
		}
		if size == 0 {
			for {
				trailer, err := l.TakeCRLFLine()
				if err != nil {
					l.Reset()
					l.Append(saved)
					return nil, err
				}
				if trailer == "" {
					return body, nil
				}
			}
		}
		chunk, err := l.TakeN(int(size))
		if err != nil {
			l.Reset()
			l.Append(saved)
			return nil, ErrIncomplete
		}
		body = append(body, chunk...)
		crlf, err := l.TakeN(2)
		if err != nil {
			l.Reset()
			l.Append(saved)
			return nil, ErrIncomplete
		}
		if crlf[0] != '\r' || crlf[1] != '\n' {
			return nil, ErrMalformed
		}
	}
}

func indexByte(s string, c byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == c {
			return i
		}
	}
	return -1
}
