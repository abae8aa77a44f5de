package nbdserver

import (
	"context"
	"fmt"
	"net"

	"golang.org/x/sync/errgroup"

	"github.com/nbdserver/nbdserver/internal/connid"
)

// Server is the acceptor: it owns a listening socket and the shared
// ServerConfig/ServerState every spawned Shard references. Build one
// with ServerBuilder.
type Server struct {
	config *ServerConfig
	state  *ServerState

	conns *connid.Pool
	ready chan net.Addr
}

// State returns the shared catalog the host program populates
// (AddImage, SetDefaultDriver) before calling Run.
func (s *Server) State() *ServerState { return s.state }

// Ready yields the bound listening address once Run has successfully
// called net.Listen. Mainly useful in tests that bind port 0 and need
// to learn the ephemeral port that was actually chosen.
func (s *Server) Ready() <-chan net.Addr {
	if s.ready == nil {
		s.ready = make(chan net.Addr, 1)
	}
	return s.ready
}

// Run listens on the configured TCP port and spawns one goroutine per
// accepted connection, bound to an errgroup tied to ctx: canceling ctx
// stops the accept loop and propagates to every in-flight shard's next
// suspension point. Run blocks until the listener stops (ctx
// cancellation or a fatal Accept error) and every spawned shard has
// returned.
func (s *Server) Run(ctx context.Context) error {
	if s.conns == nil {
		s.conns = connid.New(64)
	}

	addr := fmt.Sprintf("0.0.0.0:%d", s.config.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	s.config.Logger.Info().Str("addr", ln.Addr().String()).Msg("nbd server listening")
	if s.ready != nil {
		s.ready <- ln.Addr()
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		<-ctx.Done()
		return ln.Close()
	})

	g.Go(func() error {
		for {
			conn, err := ln.Accept()
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("accepting connection: %w", err)
			}

			s.config.Metrics.ConnectionAccepted()
			cid := s.conns.Acquire()

			g.Go(func() error {
				defer conn.Close()
				defer s.conns.Release(cid)

				// A blocked socket read doesn't observe ctx cancellation on
				// its own; closing the connection is what unblocks it.
				go func() {
					<-ctx.Done()
					conn.Close()
				}()

				sh := newShard(conn, s.config, s.state, cid)
				sh.log.Info().Msg("connection accepted")
				_ = sh.run(ctx)
				return nil
			})
		}
	})

	return g.Wait()
}
