package wire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// ErrMalformed is returned for a wire-level violation: wrong magic,
// unknown option or command code, or an oversize option payload. It is
// always fatal to the connection. Short reads and failed writes are not
// wrapped in ErrMalformed: they are returned as the underlying io error
// (io.EOF, io.ErrUnexpectedEOF, or the writer's own error).
type ErrMalformed struct {
	Reason string
}

func (e ErrMalformed) Error() string {
	return fmt.Sprintf("malformed nbd input: %s", e.Reason)
}

func malformed(format string, args ...any) error {
	return ErrMalformed{Reason: fmt.Sprintf(format, args...)}
}

// Greeting is the server's opening handshake banner: INIT_PASSWD,
// IHAVEOPT, and the server's handshake flags.
type Greeting struct {
	HandshakeFlags uint16
}

func (g Greeting) WriteTo(w io.Writer) error {
	buf := make([]byte, 18)
	binary.BigEndian.PutUint64(buf[0:8], InitPasswd)
	binary.BigEndian.PutUint64(buf[8:16], IHaveOpt)
	binary.BigEndian.PutUint16(buf[16:18], g.HandshakeFlags)
	_, err := w.Write(buf)
	return err
}

// ReadClientFlags reads the client's post-greeting u32 flags word.
func ReadClientFlags(r io.Reader) (uint32, error) {
	buf := make([]byte, 4)
	if _, err := io.ReadFull(r, buf); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(buf), nil
}

// OptionHeader is the fixed part of a client option request:
// IHAVEOPT | option code | data length. Data follows separately.
type OptionHeader struct {
	Opt     Opt
	DataLen uint32
}

// ReadOptionHeader reads and validates the option request's fixed header.
// It does not read the option data.
func ReadOptionHeader(r io.Reader) (OptionHeader, error) {
	buf := make([]byte, 16)
	if _, err := io.ReadFull(r, buf); err != nil {
		return OptionHeader{}, err
	}

	magic := binary.BigEndian.Uint64(buf[0:8])
	if magic != IHaveOpt {
		return OptionHeader{}, malformed("bad option magic %#x", magic)
	}

	opt := Opt(binary.BigEndian.Uint32(buf[8:12]))
	if !opt.Valid() {
		return OptionHeader{}, malformed("unknown option code %d", uint32(opt))
	}

	dataLen := binary.BigEndian.Uint32(buf[12:16])
	if dataLen > MaxOptionDataLen {
		return OptionHeader{}, malformed("option data length %d exceeds %d", dataLen, MaxOptionDataLen)
	}

	return OptionHeader{Opt: opt, DataLen: dataLen}, nil
}

// ReadOptionData reads exactly n bytes of option payload, bounded by the
// caller having already validated n against MaxOptionDataLen.
func ReadOptionData(r io.Reader, n uint32) ([]byte, error) {
	if n == 0 {
		return nil, nil
	}
	data := make([]byte, n)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, err
	}
	return data, nil
}

// OptionReply is the generic option-reply PDU: magic | option | reply
// type | data length | data.
type OptionReply struct {
	Opt   Opt
	Reply OptReply
	Data  []byte
}

func (r OptionReply) WriteTo(w io.Writer) error {
	buf := make([]byte, 20+len(r.Data))
	binary.BigEndian.PutUint64(buf[0:8], OptReplyMagic)
	binary.BigEndian.PutUint32(buf[8:12], uint32(r.Opt))
	binary.BigEndian.PutUint32(buf[12:16], uint32(int32(r.Reply)))
	binary.BigEndian.PutUint32(buf[16:20], uint32(len(r.Data)))
	copy(buf[20:], r.Data)
	_, err := w.Write(buf)
	return err
}

// ExportNameReply is the legacy (non-NBD_OPT_GO) reply to a successful
// NBD_OPT_EXPORT_NAME: export size, transmission flags, and either 124
// zero bytes or nothing if the client negotiated NO_ZEROES.
type ExportNameReply struct {
	Size      uint64
	TransFlags uint16
	NoZeroes  bool
}

func (r ExportNameReply) WriteTo(w io.Writer) error {
	padLen := 124
	if r.NoZeroes {
		padLen = 0
	}

	buf := make([]byte, 10+padLen)
	binary.BigEndian.PutUint64(buf[0:8], r.Size)
	binary.BigEndian.PutUint16(buf[8:10], r.TransFlags)
	// buf[10:] is already zeroed by make().
	_, err := w.Write(buf)
	return err
}

// Request is a transmission-phase PDU as read off the wire.
type Request struct {
	Flags  uint16
	Cmd    Cmd
	Cookie uint64
	Offset uint64
	Length uint32
	Data   []byte // populated only when Cmd == CmdWrite
}

// maxPayload bounds how much a single Write request may carry, independent
// of the wire's 32-bit length field, so a malicious or buggy client can't
// force an unbounded allocation.
const maxPayload = 32 * 1024 * 1024

// ErrPayloadTooLarge is returned by ReadRequest when a write payload
// exceeds maxPayload; the caller is expected to reply NBD_ENOMEM and keep
// the connection (this is a per-request condition, not a wire violation).
type ErrPayloadTooLarge struct {
	Length uint32
}

func (e ErrPayloadTooLarge) Error() string {
	return fmt.Sprintf("write payload of %d bytes exceeds the server's maximum of %d", e.Length, maxPayload)
}

// ReadRequest reads one transmission-phase request header and, for Write,
// its payload. The payload buffer is sized to exactly Length bytes and
// filled by io.ReadFull before the function returns, so no
// uninitialized tail can ever be passed to a driver.
func ReadRequest(r io.Reader) (Request, error) {
	buf := make([]byte, 28)
	if _, err := io.ReadFull(r, buf); err != nil {
		return Request{}, err
	}

	magic := binary.BigEndian.Uint32(buf[0:4])
	if magic != RequestMagic {
		return Request{}, malformed("bad request magic %#x", magic)
	}

	req := Request{
		Flags:  binary.BigEndian.Uint16(buf[4:6]),
		Cmd:    Cmd(binary.BigEndian.Uint16(buf[6:8])),
		Cookie: binary.BigEndian.Uint64(buf[8:16]),
		Offset: binary.BigEndian.Uint64(buf[16:24]),
		Length: binary.BigEndian.Uint32(buf[24:28]),
	}

	if !req.Cmd.Valid() {
		return Request{}, malformed("unknown command code %d", uint16(req.Cmd))
	}

	if req.Cmd == CmdWrite {
		if req.Length > maxPayload {
			// Drain the oversize payload so the connection stays in sync,
			// then let the caller report it as a per-request error.
			if _, err := io.CopyN(io.Discard, r, int64(req.Length)); err != nil {
				return Request{}, err
			}
			return req, ErrPayloadTooLarge{Length: req.Length}
		}

		req.Data = make([]byte, req.Length)
		if _, err := io.ReadFull(r, req.Data); err != nil {
			return Request{}, err
		}
	}

	return req, nil
}

// SimpleReply is the transmission-phase simple reply PDU: magic | error |
// cookie | data (only for successful reads).
type SimpleReply struct {
	Error  uint32
	Cookie uint64
	Data   []byte
}

const simpleReplyMagic = uint32(0x67446698)

func (r SimpleReply) WriteTo(w io.Writer) error {
	buf := make([]byte, 16+len(r.Data))
	binary.BigEndian.PutUint32(buf[0:4], simpleReplyMagic)
	binary.BigEndian.PutUint32(buf[4:8], r.Error)
	binary.BigEndian.PutUint64(buf[8:16], r.Cookie)
	copy(buf[16:], r.Data)
	_, err := w.Write(buf)
	return err
}
