package nbdserver

import (
	"context"
	"errors"
	"fmt"

	"github.com/nbdserver/nbdserver/internal/driver"
	"github.com/nbdserver/nbdserver/internal/wire"
)

// dispatchCommand runs one transmission-phase request against the
// shard's opened image and writes exactly one simple reply. A non-nil
// return is always a TransportError (the reply itself couldn't be
// written); an image I/O failure is reported to the client in-band and
// never returned as an error, matching the propagation policy that
// only transport/protocol failures end the connection.
func (sh *Shard) dispatchCommand(ctx context.Context, req wire.Request) error {
	cmdName := commandName(req.Cmd)
	sh.metrics().CommandProcessed(cmdName)

	if sh.image == nil {
		return sh.finishCommand(cmdName, req.Cookie, nil, wire.ErrInval)
	}

	switch req.Cmd {
	case wire.CmdRead:
		data, err := sh.image.Read(ctx, int64(req.Offset), int(req.Length))
		if err != nil {
			return sh.finishCommand(cmdName, req.Cookie, nil, readWriteErrno(err))
		}
		return sh.finishCommand(cmdName, req.Cookie, data, wire.ErrNone)

	case wire.CmdWrite:
		err := sh.image.Write(ctx, int64(req.Offset), req.Data)
		return sh.finishCommand(cmdName, req.Cookie, nil, readWriteErrno(err))

	case wire.CmdFlush:
		err := sh.image.Flush(ctx)
		return sh.finishCommand(cmdName, req.Cookie, nil, ioErrno(err))

	case wire.CmdTrim:
		err := sh.image.Trim(ctx, int64(req.Offset), int(req.Length))
		return sh.finishCommand(cmdName, req.Cookie, nil, readWriteErrno(err))

	case wire.CmdWriteZeroes:
		err := sh.image.WriteZeroes(ctx, int64(req.Offset), int(req.Length))
		return sh.finishCommand(cmdName, req.Cookie, nil, readWriteErrno(err))

	default:
		// Cache, BlockStatus, and Resize are defined commands this server
		// doesn't implement; ReadRequest has already rejected anything
		// outside the defined command set as malformed, so this default
		// only ever sees those three.
		return sh.finishCommand(cmdName, req.Cookie, nil, wire.ErrInval)
	}
}

func (sh *Shard) finishCommand(cmdName string, cookie uint64, data []byte, errno uint32) error {
	if errno != wire.ErrNone {
		sh.metrics().CommandFailed(cmdName, fmt.Sprint(errno))
		sh.log.Warn().Str("cmd", cmdName).Uint32("errno", errno).Msg("command failed")
	}
	if err := sh.replySimple(errno, cookie, data); err != nil {
		return TransportError{Err: err}
	}
	return nil
}

// readWriteErrno maps a driver-level error to the NBD errno a
// read/write/trim/write-zeroes reply reports: out-of-range access or an
// unsupported operation (e.g. trim with no backing support) is EINVAL,
// a read-only image rejecting a mutation is EPERM, anything else is EIO.
func readWriteErrno(err error) uint32 {
	if err == nil {
		return wire.ErrNone
	}

	var readOnly driver.ErrReadOnly
	if errors.As(err, &readOnly) {
		return wire.ErrPerm
	}

	var outOfRange driver.ErrOutOfRange
	if errors.As(err, &outOfRange) {
		return wire.ErrInval
	}

	var notSupported driver.ErrNotSupported
	if errors.As(err, &notSupported) {
		return wire.ErrInval
	}

	return wire.ErrIO
}

func ioErrno(err error) uint32 {
	if err == nil {
		return wire.ErrNone
	}
	return wire.ErrIO
}

func commandName(cmd wire.Cmd) string {
	switch cmd {
	case wire.CmdRead:
		return "read"
	case wire.CmdWrite:
		return "write"
	case wire.CmdDisc:
		return "disc"
	case wire.CmdFlush:
		return "flush"
	case wire.CmdTrim:
		return "trim"
	case wire.CmdCache:
		return "cache"
	case wire.CmdWriteZeroes:
		return "write_zeroes"
	case wire.CmdBlockStatus:
		return "block_status"
	case wire.CmdResize:
		return "resize"
	default:
		return fmt.Sprintf("unknown(%d)", uint16(cmd))
	}
}
