package nbdserver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nbdserver/nbdserver/internal/driver"
)

type memDriverImpl struct{ name string }

func (m *memDriverImpl) Name() string { return m.name }

func (m *memDriverImpl) GetImage(_ context.Context, name string) (driver.Descriptor, error) {
	return driver.Descriptor{DriverName: m.name, ImageName: name}, nil
}

func (m *memDriverImpl) Open(_ context.Context, desc driver.Descriptor) (driver.Image, error) {
	return driver.NewImage(&memImage{name: desc.ImageName}), nil
}

type memImage struct{ name string }

func (m *memImage) Name() string     { return m.name }
func (m *memImage) Info() driver.Info { return driver.Info{Size: 1 << 20} }
func (m *memImage) Read(context.Context, int64, int) ([]byte, error)  { return nil, nil }
func (m *memImage) Write(context.Context, int64, []byte) error        { return nil }
func (m *memImage) Flush(context.Context) error                       { return nil }
func (m *memImage) Trim(context.Context, int64, int) error            { return nil }
func (m *memImage) WriteZeroes(context.Context, int64, int) error     { return nil }

func TestServerStateListAndFind(t *testing.T) {
	state := NewServerState()
	d := driver.NewDriver(&memDriverImpl{name: "fs"})
	desc := driver.Descriptor{DriverName: "fs", ImageName: "img"}

	state.AddImage(d, desc)

	names := state.ListImageFullNames()
	require.Equal(t, []string{"img/fs"}, names)

	gotDriver, gotDesc, err := state.FindImage("img/fs")
	require.NoError(t, err)
	require.Equal(t, desc, gotDesc)
	require.True(t, gotDriver.Equal(d))
}

func TestServerStateFindImageNotFound(t *testing.T) {
	state := NewServerState()
	_, _, err := state.FindImage("missing/fs")
	require.Error(t, err)
	require.IsType(t, ImageNotFound{}, err)
}

func TestServerStateFindImageRejectsMalformedText(t *testing.T) {
	state := NewServerState()
	_, _, err := state.FindImage("no-slash-here")
	require.Error(t, err)
	require.IsType(t, ImageNotFound{}, err)
}
