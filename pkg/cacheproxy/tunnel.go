package cacheproxy

import (
	"io"
	"net"
)

// relay copies bytes bidirectionally between client and upstream until
// either side closes, then closes both. Two goroutines each own one
// direction, and the first to finish triggers both sockets to close so
// the other goroutine's blocked Read unblocks with an error.
func relay(client, upstream net.Conn) error {
	errc := make(chan error, 2)
	go func() {
		_, err := io.Copy(upstream, client)
		errc <- err
	}()
	go func() {
		_, err := io.Copy(client, upstream)
		errc <- err
	}()
	e1 := <-errc
	_ = client.Close()
	_ = upstream.Close()
	e2 := <-errc
	if e1 != nil && e1 != io.EOF {
		return e1
	}
	if e2 != nil && e2 != io.EOF {
		return e2
	}
	return nil
}
