package nbdserver

import (
	"context"
	"errors"
	"io"
	"net"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nbdserver/nbdserver/internal/connid"
	"github.com/nbdserver/nbdserver/internal/driver"
	"github.com/nbdserver/nbdserver/internal/metrics"
	"github.com/nbdserver/nbdserver/internal/wire"
)

// Shard is the per-connection state machine: it owns one TCP socket and
// carries the flags and image negotiated over its lifetime. It is never
// shared between goroutines; the acceptor hands each accepted
// connection its own Shard and its own goroutine.
type Shard struct {
	config *ServerConfig
	state  *ServerState
	conn   net.Conn

	id  uuid.UUID
	cid uint
	log zerolog.Logger

	clientFlags uint32
	image       *driver.Image
	txFlags     uint16
}

func newShard(conn net.Conn, cfg *ServerConfig, state *ServerState, cid uint) *Shard {
	id := uuid.New()
	return &Shard{
		config: cfg,
		state:  state,
		conn:   conn,
		id:     id,
		cid:    cid,
		log: cfg.Logger.With().
			Str("conn_id", id.String()).
			Str("conn_slot", connid.String(cid)).
			Str("remote_addr", conn.RemoteAddr().String()).
			Logger(),
	}
}

func (sh *Shard) metrics() *metrics.Metrics { return sh.config.Metrics }

// run drives the shard through its three phases to completion. Any
// error it returns has already been logged; the acceptor's only job on
// return is to close the socket and release the shard's slot.
func (sh *Shard) run(ctx context.Context) error {
	if err := sh.handshake(); err != nil {
		sh.metrics().HandshakeFailed()
		sh.log.Error().Err(err).Msg("handshake failed")
		return err
	}

	for {
		outcome, err := sh.handleOneOption(ctx)
		if err != nil {
			sh.log.Error().Err(err).Msg("option negotiation failed")
			return err
		}

		switch outcome {
		case End:
			if err := sh.transmissionLoop(ctx); err != nil {
				sh.log.Error().Err(err).Msg("transmission loop ended with error")
				return err
			}
			sh.log.Info().Msg("transmission completed")
			return nil
		case Abort:
			sh.log.Info().Msg("session aborted during option negotiation")
			return nil
		case Continue:
			continue
		}
	}
}

// handshake runs Phase 1: the server writes its greeting and reads the
// client's flags word. FIXED_NEWSTYLE is mandatory; its absence is a
// protocol error closed before any option is read.
func (sh *Shard) handshake() error {
	greeting := wire.Greeting{HandshakeFlags: sh.config.HandshakeFlags}
	if err := greeting.WriteTo(sh.conn); err != nil {
		return TransportError{Err: err}
	}

	flags, err := wire.ReadClientFlags(sh.conn)
	if err != nil {
		return TransportError{Err: err}
	}

	if flags&wire.ClientFlagFixedNewstyle == 0 {
		return ProtocolError{Reason: "client did not offer FIXED_NEWSTYLE"}
	}

	sh.clientFlags = flags
	return nil
}

// handleOneOption runs one iteration of Phase 2: read one option PDU,
// dispatch it, and report the Outcome the caller should act on.
func (sh *Shard) handleOneOption(ctx context.Context) (Outcome, error) {
	hdr, err := wire.ReadOptionHeader(sh.conn)
	if err != nil {
		var malformed wire.ErrMalformed
		if errors.As(err, &malformed) {
			return Abort, ProtocolError{Reason: err.Error()}
		}
		return Abort, TransportError{Err: err}
	}

	data, err := wire.ReadOptionData(sh.conn, hdr.DataLen)
	if err != nil {
		return Abort, TransportError{Err: err}
	}

	handler, ok := sh.config.OptionHandlers[hdr.Opt]
	if !ok {
		handler = optionHandlerFunc(handleUnknown)
	}

	sh.log.Info().Uint32("opt", uint32(hdr.Opt)).Msg("option received")
	return handler.Handle(ctx, sh, hdr.Opt, data, sh.conn)
}

// transmissionLoop runs Phase 3 until Disc, EOF, or a fatal transport
// error. Image-level failures are translated into per-request simple
// replies and never end the loop.
func (sh *Shard) transmissionLoop(ctx context.Context) error {
	for {
		req, err := wire.ReadRequest(sh.conn)
		if err != nil {
			var tooLarge wire.ErrPayloadTooLarge
			if errors.As(err, &tooLarge) {
				if werr := sh.replySimple(wire.ErrNoMem, req.Cookie, nil); werr != nil {
					return TransportError{Err: werr}
				}
				continue
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			var malformed wire.ErrMalformed
			if errors.As(err, &malformed) {
				return ProtocolError{Reason: err.Error()}
			}
			return TransportError{Err: err}
		}

		if req.Cmd == wire.CmdDisc {
			return nil
		}

		if err := sh.dispatchCommand(ctx, req); err != nil {
			return err
		}
	}
}

func (sh *Shard) replySimple(errno uint32, cookie uint64, data []byte) error {
	reply := wire.SimpleReply{Error: errno, Cookie: cookie, Data: data}
	return reply.WriteTo(sh.conn)
}
