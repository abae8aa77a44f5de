package nbdserver

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/nbdserver/nbdserver/internal/wire"
)

// Outcome is an option handler's verdict on how the option loop should
// proceed after it returns.
type Outcome int

const (
	// Continue means the option loop should read the next option.
	Continue Outcome = iota
	// End means option negotiation succeeded; the shard proceeds to the
	// transmission phase.
	End
	// Abort means the session ends cleanly once the reply has been
	// written; not logged as an error.
	Abort
)

// OptionHandler answers one option request. Implementations write
// whatever reply PDU(s) the option requires directly to w before
// returning.
type OptionHandler interface {
	Handle(ctx context.Context, sh *Shard, opt wire.Opt, data []byte, w io.Writer) (Outcome, error)
}

type optionHandlerFunc func(ctx context.Context, sh *Shard, opt wire.Opt, data []byte, w io.Writer) (Outcome, error)

func (f optionHandlerFunc) Handle(ctx context.Context, sh *Shard, opt wire.Opt, data []byte, w io.Writer) (Outcome, error) {
	return f(ctx, sh, opt, data, w)
}

// defaultOptionHandlers is the dispatch table a ServerConfig starts with.
// A host program may override or add entries via ServerBuilder before
// the server starts accepting connections.
func defaultOptionHandlers() map[wire.Opt]OptionHandler {
	return map[wire.Opt]OptionHandler{
		wire.OptExportName: optionHandlerFunc(handleExportName),
		wire.OptAbort:      optionHandlerFunc(handleAbort),
		wire.OptList:       optionHandlerFunc(handleList),
	}
}

// handleUnknown answers any option code the codec accepted (so it is one
// of the protocol's defined codes) but that is absent from the dispatch
// table — PeekExport, Starttls, Info, Go, StructuredReply,
// ListMetaContext, SetMetaContext, ExtendedHeaders — with RepErrUnsup and
// payload "unknown option <n>". A code outside the defined set never
// reaches here: ReadOptionHeader rejects it as malformed first.
func handleUnknown(_ context.Context, sh *Shard, opt wire.Opt, _ []byte, w io.Writer) (Outcome, error) {
	reply := wire.OptionReply{
		Opt:   opt,
		Reply: wire.RepErrUnsup,
		Data:  []byte(fmt.Sprintf("unknown option %d", int32(opt))),
	}
	if err := reply.WriteTo(w); err != nil {
		return Abort, TransportError{Err: err}
	}
	sh.metrics().OptionReplied(fmt.Sprint(uint32(opt)), fmt.Sprint(int32(wire.RepErrUnsup)))
	return Continue, nil
}

func handleExportName(ctx context.Context, sh *Shard, opt wire.Opt, data []byte, w io.Writer) (Outcome, error) {
	name := string(data)

	d, desc, err := sh.state.FindImage(name)
	if err != nil {
		sh.log.Error().Str("export", name).Err(err).Msg("export name not found")
		reply := wire.OptionReply{Opt: wire.OptExportName, Reply: wire.RepErrUnknown, Data: []byte(err.Error())}
		if werr := reply.WriteTo(w); werr != nil {
			return Abort, TransportError{Err: werr}
		}
		return Abort, err
	}

	img, err := d.Open(ctx, desc)
	if err != nil {
		sh.log.Error().Str("export", name).Err(err).Msg("failed to open image")
		return Abort, fmt.Errorf("opening %s: %w", desc, err)
	}

	info := img.Info()
	txFlags := wire.DefaultTransFlags
	if info.ReadOnly {
		txFlags |= wire.TransReadOnly
	}

	sh.image = &img
	sh.txFlags = txFlags

	reply := wire.ExportNameReply{
		Size:       info.Size,
		TransFlags: txFlags,
		NoZeroes:   sh.clientFlags&wire.ClientFlagNoZeroes != 0,
	}
	if err := reply.WriteTo(w); err != nil {
		return Abort, TransportError{Err: err}
	}

	sh.log.Info().Str("export", name).Uint64("size", info.Size).Msg("export opened")
	_ = opt
	return End, nil
}

func handleAbort(_ context.Context, sh *Shard, opt wire.Opt, _ []byte, w io.Writer) (Outcome, error) {
	reply := wire.OptionReply{Opt: opt, Reply: wire.RepAck}
	if err := reply.WriteTo(w); err != nil {
		return Abort, TransportError{Err: err}
	}
	sh.metrics().OptionReplied(fmt.Sprint(uint32(opt)), fmt.Sprint(int32(wire.RepAck)))
	return Abort, nil
}

// handleList replies with one RepServer PDU per currently exported
// image, then a closing RepAck. The 4-byte name-length prefix inside
// each RepServer payload is written in host-native byte order, not
// big-endian: this reproduces a real bug in the source this protocol
// was distilled from rather than silently correcting it, since the
// round-trip scenario this behavior is tested against encodes the
// literal bytes the source emits.
func handleList(_ context.Context, sh *Shard, opt wire.Opt, _ []byte, w io.Writer) (Outcome, error) {
	for _, name := range sh.state.ListImageFullNames() {
		payload := make([]byte, 4+len(name)+4)
		binary.NativeEndian.PutUint32(payload[0:4], uint32(len(name)))
		copy(payload[4:4+len(name)], name)
		// payload[4+len(name):] is already zeroed by make().

		reply := wire.OptionReply{Opt: opt, Reply: wire.RepServer, Data: payload}
		if err := reply.WriteTo(w); err != nil {
			return Abort, TransportError{Err: err}
		}
	}

	ack := wire.OptionReply{Opt: opt, Reply: wire.RepAck}
	if err := ack.WriteTo(w); err != nil {
		return Abort, TransportError{Err: err}
	}
	sh.metrics().OptionReplied(fmt.Sprint(uint32(opt)), fmt.Sprint(int32(wire.RepAck)))
	return Continue, nil
}
