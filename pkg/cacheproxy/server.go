package cacheproxy

import (
	"context"
	"net"

	"github.com/rs/zerolog/log"
)

// Server accepts client connections on a single listener and hands
// each one to its own worker goroutine. There is no connection pool
// and no keep-alive: one accepted socket runs exactly one transaction
// before it is closed.
type Server struct {
	Addr    string
	Cache   *ProxyCache
	Config  Config
	handler *Handler
}

// ListenAndServe binds Addr and accepts connections until ctx is
// canceled, at which point the listener is closed and ListenAndServe
// returns nil without waiting for already-accepted connections. Those
// keep running on their own goroutines, but they share ctx, so an
// origin dial still in progress at that point fails.
func (s *Server) ListenAndServe(ctx context.Context) error {
	// net.Listen has no backlog parameter; the kernel's listen(2)
	// backlog comes from net.core.somaxconn on the host instead of a
	// value this process can request.
	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return err
	}
	s.handler = NewHandler(s.Cache, s.Config)

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	log.Info().Str("addr", s.Addr).Msg("proxy listening")
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				log.Warn().Err(err).Msg("accept failed")
				continue
			}
		}
		go s.handler.HandleConnection(ctx, conn)
	}
}
