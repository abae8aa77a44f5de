package driver

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeTempImage(t *testing.T, size int) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "disk.img")
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0o644))
	return dir
}

func TestFsDriverOpenReadWrite(t *testing.T) {
	ctx := context.Background()
	root := writeTempImage(t, 4096)

	f, err := fsFactory{}.Construct(Config{"root": root})
	require.NoError(t, err)

	desc, err := f.GetImage(ctx, "disk.img")
	require.NoError(t, err)
	require.Equal(t, Descriptor{DriverName: "fs", ImageName: "disk.img"}, desc)

	img, err := f.Open(ctx, desc)
	require.NoError(t, err)
	require.EqualValues(t, 4096, img.Info().Size)
	require.False(t, img.Info().ReadOnly)

	require.NoError(t, img.Write(ctx, 0, []byte("hello")))
	got, err := img.Read(ctx, 0, 5)
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), got)

	require.NoError(t, img.Flush(ctx))
}

func TestFsDriverWriteZeroesClearsData(t *testing.T) {
	ctx := context.Background()
	root := writeTempImage(t, 4096)

	f, err := fsFactory{}.Construct(Config{"root": root})
	require.NoError(t, err)

	desc, err := f.GetImage(ctx, "disk.img")
	require.NoError(t, err)

	img, err := f.Open(ctx, desc)
	require.NoError(t, err)

	require.NoError(t, img.Write(ctx, 0, []byte("nonzero!")))
	require.NoError(t, img.WriteZeroes(ctx, 0, 8))

	got, err := img.Read(ctx, 0, 8)
	require.NoError(t, err)
	require.Equal(t, make([]byte, 8), got)
}

func TestFsDriverOutOfBounds(t *testing.T) {
	ctx := context.Background()
	root := writeTempImage(t, 16)

	f, err := fsFactory{}.Construct(Config{"root": root})
	require.NoError(t, err)

	desc, err := f.GetImage(ctx, "disk.img")
	require.NoError(t, err)

	img, err := f.Open(ctx, desc)
	require.NoError(t, err)

	_, err = img.Read(ctx, 10, 10)
	require.Error(t, err)
}

func TestFsDriverGetImageNotFound(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()

	f, err := fsFactory{}.Construct(Config{"root": root})
	require.NoError(t, err)

	_, err = f.GetImage(ctx, "missing.img")
	require.Error(t, err)
}

func TestFsFactoryRequiresRoot(t *testing.T) {
	_, err := fsFactory{}.Construct(Config{})
	require.Error(t, err)
}
