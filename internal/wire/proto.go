// Package wire implements the on-the-wire framing of the fixed-newstyle
// NBD protocol: magic numbers, PDU layouts, and the codec that reads and
// writes them. It has no notion of drivers, images, or server state.
package wire

// Magic numbers, bit-exact per the NBD protocol.
const (
	InitPasswd     = uint64(0x4e42444d41474943) // "NBDMAGIC"
	IHaveOpt       = uint64(0x49484156454F5054) // "IHAVEOPT"
	ClientServMagic = uint64(0x00420281861253)
	RequestMagic   = uint32(0x25609513)
	OptReplyMagic  = uint64(0x0003e889045565a9)
)

const (
	// DefaultPort is NBD's IANA-assigned port.
	DefaultPort = 10809

	// MaxStrLen is the protocol's bound on length-prefixed strings. No
	// function in this package reads a length-prefixed string or checks
	// this bound.
	MaxStrLen = 256

	// MaxOptionDataLen is server policy, not a protocol limit: options
	// carrying more than this much data are rejected before a handler runs.
	MaxOptionDataLen = 4096
)

// Handshake flags (server->client, u16) and client flags (client->server,
// u32) share bit positions.
const (
	FlagFixedNewstyle = uint16(1 << 0)
	FlagNoZeroes      = uint16(1 << 1)
)

const (
	ClientFlagFixedNewstyle = uint32(1 << 0)
	ClientFlagNoZeroes      = uint32(1 << 1)
)

// Transmission flags, advertised per export in the ExportName/Go replies.
const (
	TransHasFlags          = uint16(1 << 0)
	TransReadOnly           = uint16(1 << 1)
	TransSendFlush          = uint16(1 << 2)
	TransSendFUA            = uint16(1 << 3)
	TransSendRotational     = uint16(1 << 4)
	TransSendTrim           = uint16(1 << 5)
	TransSendWriteZeroes    = uint16(1 << 6)
	TransSendDF             = uint16(1 << 7)
	TransCanMultiConn       = uint16(1 << 8)
	TransSendResize         = uint16(1 << 9)
	TransSendCache          = uint16(1 << 10)
	TransSendFastZero       = uint16(1 << 11)
	TransBlockStatusPayload = uint16(1 << 12)
)

// DefaultTransFlags is what this server advertises for every export it
// opens: it never offers FUA, rotational hints, multi-conn, resize,
// cache, fast-zero, or block-status-payload (the surface this spec keeps
// out of scope).
const DefaultTransFlags = TransHasFlags | TransSendFlush | TransSendTrim | TransSendWriteZeroes

// Option codes, as defined by the NBD protocol document.
type Opt uint32

const (
	OptExportName      Opt = 1
	OptAbort           Opt = 2
	OptList            Opt = 3
	OptPeekExport      Opt = 4
	OptStarttls        Opt = 5
	OptInfo            Opt = 6
	OptGo              Opt = 7
	OptStructuredReply Opt = 8
	OptListMetaContext Opt = 9
	OptSetMetaContext  Opt = 10
	OptExtendedHeaders Opt = 11
)

// Valid reports whether o is one of the option codes the protocol
// defines. Anything outside this range is a wire violation, not merely
// an unimplemented option.
func (o Opt) Valid() bool {
	return o >= OptExportName && o <= OptExtendedHeaders
}

// OptReply codes. Negative values indicate an error reply.
type OptReply int32

const (
	RepAck              OptReply = 1
	RepServer           OptReply = 2
	RepInfo             OptReply = 3
	RepMetaContext      OptReply = 4
	RepErrUnsup         OptReply = -1
	RepErrPolicy        OptReply = -2
	RepErrInvalid       OptReply = -3
	RepErrPlatform      OptReply = -4
	RepErrTlsReqd       OptReply = -5
	RepErrUnknown       OptReply = -6
	RepErrShutdown      OptReply = -7
	RepErrBlockSizeReqd OptReply = -8
	RepErrTooBig        OptReply = -9
	RepErrExtHeaderReqd OptReply = -10
)

// Cmd is a transmission-phase command type.
type Cmd uint16

const (
	CmdRead        Cmd = 0
	CmdWrite       Cmd = 1
	CmdDisc        Cmd = 2
	CmdFlush       Cmd = 3
	CmdTrim        Cmd = 4
	CmdCache       Cmd = 5
	CmdWriteZeroes Cmd = 6
	CmdBlockStatus Cmd = 7
	CmdResize      Cmd = 8
)

// Valid reports whether c is one of the command codes the protocol
// defines. Anything outside this range is a wire violation, not merely
// an unimplemented command.
func (c Cmd) Valid() bool {
	return c <= CmdResize
}

// NBD error numbers used in simple replies.
const (
	ErrNone     = uint32(0)
	ErrPerm     = uint32(1)
	ErrIO       = uint32(5)
	ErrNoMem    = uint32(12)
	ErrInval    = uint32(22)
	ErrNoSpc    = uint32(28)
	ErrOverflow = uint32(75)
)
