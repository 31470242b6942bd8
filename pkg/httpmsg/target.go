package httpmsg

import "strings"

// Target is a decomposed request-target: host, port, and path.
type Target struct {
	Host string
	Port string
	Path string
}

// ParseAbsoluteForm decomposes an absolute-form request-target
// (http://host[:port][/path], used by GET/POST) into its host, port,
// and path. Port is left empty when unspecified; the caller defaults
// it to "80" at the point of connection, not here.
func ParseAbsoluteForm(target string) (Target, error) {
	const scheme = "http://"
	if !strings.HasPrefix(strings.ToLower(target), scheme) {
		return Target{}, ErrMalformed
	}
	rest := target[len(scheme):]
	if rest == "" {
		return Target{}, ErrMalformed
	}
	path := "/"
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		path = rest[i:]
		rest = rest[:i]
	}
	if rest == "" {
		return Target{}, ErrMalformed
	}
	host := rest
	port := ""
	if i := strings.IndexByte(rest, ':'); i >= 0 {
		host = rest[:i]
		port = rest[i+1:]
		if host == "" || port == "" {
			return Target{}, ErrMalformed
		}
	}
	return Target{Host: host, Port: port, Path: path}, nil
}

// ParseAuthorityForm splits a CONNECT request-target (host:port) on
// its first colon. A missing colon is malformed: CONNECT always
// carries an explicit port.
func ParseAuthorityForm(target string) (Target, error) {
	i := strings.IndexByte(target, ':')
	if i < 0 {
		return Target{}, ErrMalformed
	}
	host := target[:i]
	port := target[i+1:]
	if host == "" || port == "" {
		return Target{}, ErrMalformed
	}
	return Target{Host: host, Port: port}, nil
}
