package wire

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGreetingWriteTo(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Greeting{HandshakeFlags: FlagFixedNewstyle}.WriteTo(&buf))

	want := []byte{
		0x4e, 0x42, 0x44, 0x4d, 0x41, 0x47, 0x49, 0x43,
		0x49, 0x48, 0x41, 0x56, 0x45, 0x4f, 0x50, 0x54,
		0x00, 0x01,
	}
	require.Equal(t, want, buf.Bytes())
}

func TestReadOptionHeaderRejectsBadMagic(t *testing.T) {
	buf := bytes.NewBuffer(make([]byte, 16))
	_, err := ReadOptionHeader(buf)
	require.Error(t, err)
	require.IsType(t, ErrMalformed{}, err)
}

func TestReadOptionHeaderRejectsOversizeData(t *testing.T) {
	var buf bytes.Buffer
	hdr := OptionHeader{Opt: OptExportName, DataLen: MaxOptionDataLen + 1}
	writeRawOptionHeader(&buf, hdr)

	_, err := ReadOptionHeader(&buf)
	require.Error(t, err)
	require.IsType(t, ErrMalformed{}, err)
}

func TestReadOptionHeaderRejectsUnknownOptionCode(t *testing.T) {
	var buf bytes.Buffer
	writeRawOptionHeader(&buf, OptionHeader{Opt: Opt(999), DataLen: 0})

	_, err := ReadOptionHeader(&buf)
	require.Error(t, err)
	require.IsType(t, ErrMalformed{}, err)
}

func TestOptionRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	hdr := OptionHeader{Opt: OptAbort, DataLen: 0}
	writeRawOptionHeader(&buf, hdr)

	got, err := ReadOptionHeader(&buf)
	require.NoError(t, err)
	require.Equal(t, hdr, got)
}

func TestExportNameReplyZeroPadding(t *testing.T) {
	var withZeroes bytes.Buffer
	require.NoError(t, ExportNameReply{Size: 1 << 20, TransFlags: DefaultTransFlags}.WriteTo(&withZeroes))
	require.Len(t, withZeroes.Bytes(), 10+124)
	require.True(t, bytes.Equal(withZeroes.Bytes()[10:], make([]byte, 124)))

	var noZeroes bytes.Buffer
	require.NoError(t, ExportNameReply{Size: 1 << 20, TransFlags: DefaultTransFlags, NoZeroes: true}.WriteTo(&noZeroes))
	require.Len(t, noZeroes.Bytes(), 10)
}

func TestReadRequestFillsWritePayload(t *testing.T) {
	var buf bytes.Buffer
	writeRawRequest(&buf, Request{Cmd: CmdWrite, Cookie: 42, Offset: 0, Length: 4, Data: []byte("abcd")})

	req, err := ReadRequest(&buf)
	require.NoError(t, err)
	require.Equal(t, []byte("abcd"), req.Data)
	require.Equal(t, uint64(42), req.Cookie)
}

func TestReadRequestRejectsBadMagic(t *testing.T) {
	buf := bytes.NewBuffer(make([]byte, 28))
	_, err := ReadRequest(buf)
	require.Error(t, err)
	require.IsType(t, ErrMalformed{}, err)
}

func TestReadRequestRejectsUnknownCommandCode(t *testing.T) {
	var buf bytes.Buffer
	writeRawRequestHeader(&buf, Request{Cmd: Cmd(99)})

	_, err := ReadRequest(&buf)
	require.Error(t, err)
	require.IsType(t, ErrMalformed{}, err)
}

func TestReadRequestOversizeWritePayload(t *testing.T) {
	var buf bytes.Buffer
	writeRawRequestHeader(&buf, Request{Cmd: CmdWrite, Length: maxPayload + 1})
	buf.Write(make([]byte, maxPayload+1))

	_, err := ReadRequest(&buf)
	require.Error(t, err)
	require.IsType(t, ErrPayloadTooLarge{}, err)
}

// --- test helpers mirroring the raw wire layout, independent of the codec
// under test, so the tests don't just call the same code they verify. ---

func writeRawOptionHeader(buf *bytes.Buffer, hdr OptionHeader) {
	b := make([]byte, 16)
	putUint64BE(b[0:8], IHaveOpt)
	putUint32BE(b[8:12], uint32(hdr.Opt))
	putUint32BE(b[12:16], hdr.DataLen)
	buf.Write(b)
}

func writeRawRequestHeader(buf *bytes.Buffer, r Request) {
	b := make([]byte, 28)
	putUint32BE(b[0:4], RequestMagic)
	putUint16BE(b[4:6], r.Flags)
	putUint16BE(b[6:8], uint16(r.Cmd))
	putUint64BE(b[8:16], r.Cookie)
	putUint64BE(b[16:24], r.Offset)
	putUint32BE(b[24:28], r.Length)
	buf.Write(b)
}

func writeRawRequest(buf *bytes.Buffer, r Request) {
	writeRawRequestHeader(buf, r)
	if r.Cmd == CmdWrite {
		buf.Write(r.Data)
	}
}

func putUint64BE(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[7-i] = byte(v >> (8 * i))
	}
}

func putUint32BE(b []byte, v uint32) {
	for i := 0; i < 4; i++ {
		b[3-i] = byte(v >> (8 * i))
	}
}

func putUint16BE(b []byte, v uint16) {
	b[0] = byte(v >> 8)
	b[1] = byte(v)
}
