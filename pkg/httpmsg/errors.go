package httpmsg

import "errors"

// ErrIncomplete means the buffered bytes do not yet contain a full
// message (or line). The caller should append more bytes and retry.
var ErrIncomplete = errors.New("httpmsg: incomplete")

// ErrMalformed means the buffered bytes can never parse into a valid
// message. The caller should reject the message (400 for requests, 502
// for responses) and stop retrying.
var ErrMalformed = errors.New("httpmsg: malformed")

// ErrStatusIncomplete is raised only for responses that carry no framing
// signal (no Content-Length, no chunked Transfer-Encoding). The body can
// only be bounded by the peer closing the connection: the caller must
// read to EOF, call MarkConnectionClosed, and retry Build.
var ErrStatusIncomplete = errors.New("httpmsg: status awaits connection close")
