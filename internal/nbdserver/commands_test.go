package nbdserver

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nbdserver/nbdserver/internal/driver"
	"github.com/nbdserver/nbdserver/internal/wire"
)

func TestReadWriteErrnoMapping(t *testing.T) {
	require.Equal(t, wire.ErrNone, readWriteErrno(nil))
	require.Equal(t, wire.ErrPerm, readWriteErrno(driver.ErrReadOnly{Op: "write"}))
	require.Equal(t, wire.ErrInval, readWriteErrno(driver.ErrOutOfRange{Offset: 0, Length: 1, Size: 0}))
	require.Equal(t, wire.ErrInval, readWriteErrno(driver.ErrNotSupported{Op: "trim"}))
	require.Equal(t, wire.ErrIO, readWriteErrno(errors.New("disk on fire")))
}

func TestIoErrnoMapping(t *testing.T) {
	require.Equal(t, wire.ErrNone, ioErrno(nil))
	require.Equal(t, wire.ErrIO, ioErrno(errors.New("flush failed")))
}

func TestCommandName(t *testing.T) {
	require.Equal(t, "read", commandName(wire.CmdRead))
	require.Equal(t, "resize", commandName(wire.CmdResize))
	require.Equal(t, "unknown(99)", commandName(wire.Cmd(99)))
}
