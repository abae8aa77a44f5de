package driver

import (
	"context"
	"fmt"
)

// Config is an opaque mapping from string key to string value, opaque to
// the registry and interpreted only by the factory that receives it.
type Config map[string]string

// ErrNotSupported is returned by an ImageImpl operation the backend
// doesn't implement (e.g. trim on a backend with no hole-punching). The
// server maps it to NBD_EINVAL in the simple reply of a read, write,
// trim or write-zeroes; a failed flush is always reported as NBD_EIO.
type ErrNotSupported struct {
	Op string
}

func (e ErrNotSupported) Error() string {
	return "operation not supported: " + e.Op
}

// ErrReadOnly is returned by a mutating operation (write, trim,
// write-zeroes) against an image opened read-only. The server maps it
// to NBD_EPERM.
type ErrReadOnly struct {
	Op string
}

func (e ErrReadOnly) Error() string {
	return "image is read-only: " + e.Op
}

// ErrOutOfRange is returned when offset/length falls outside the
// image's extent. The server maps it to NBD_EINVAL.
type ErrOutOfRange struct {
	Offset int64
	Length int
	Size   int64
}

func (e ErrOutOfRange) Error() string {
	return fmt.Sprintf("range [%d,%d) out of bounds for image of size %d", e.Offset, e.Offset+int64(e.Length), e.Size)
}

// Info describes an opened image: its size and whether writes are
// rejected.
type Info struct {
	Size     uint64
	ReadOnly bool
}

// ImageImpl is the contract a driver's opened image must satisfy. All
// operations may fail with any I/O error; a read, write, trim or
// write-zeroes failing with ErrNotSupported is reported as EINVAL instead
// of EIO. Flush failures are always reported as EIO.
type ImageImpl interface {
	Name() string
	Info() Info
	Read(ctx context.Context, offset int64, length int) ([]byte, error)
	Write(ctx context.Context, offset int64, data []byte) error
	Flush(ctx context.Context) error
	Trim(ctx context.Context, offset int64, length int) error
	WriteZeroes(ctx context.Context, offset int64, length int) error
}

// Image is the polymorphic handle the server holds for an opened export.
type Image struct {
	impl ImageImpl
}

// NewImage wraps a concrete ImageImpl in the handle type the server uses.
func NewImage(impl ImageImpl) Image { return Image{impl: impl} }

func (i Image) Name() string { return i.impl.Name() }
func (i Image) Info() Info   { return i.impl.Info() }

func (i Image) Read(ctx context.Context, offset int64, length int) ([]byte, error) {
	return i.impl.Read(ctx, offset, length)
}

func (i Image) Write(ctx context.Context, offset int64, data []byte) error {
	return i.impl.Write(ctx, offset, data)
}

func (i Image) Flush(ctx context.Context) error { return i.impl.Flush(ctx) }

func (i Image) Trim(ctx context.Context, offset int64, length int) error {
	return i.impl.Trim(ctx, offset, length)
}

func (i Image) WriteZeroes(ctx context.Context, offset int64, length int) error {
	return i.impl.WriteZeroes(ctx, offset, length)
}

// DriverImpl is the contract a storage backend implements: resolving a
// human-typed name to a canonical Descriptor, and opening it for I/O.
type DriverImpl interface {
	Name() string
	GetImage(ctx context.Context, name string) (Descriptor, error)
	Open(ctx context.Context, desc Descriptor) (Image, error)
}

// Driver is the polymorphic handle the registry returns. Two handles
// compare equal iff their underlying implementations report the same
// Name(); the registry invariant is that names are unique.
type Driver struct {
	impl DriverImpl
}

// NewDriver wraps a concrete DriverImpl in the handle type the server uses.
func NewDriver(impl DriverImpl) Driver { return Driver{impl: impl} }

func (d Driver) Name() string { return d.impl.Name() }

func (d Driver) GetImage(ctx context.Context, name string) (Descriptor, error) {
	return d.impl.GetImage(ctx, name)
}

func (d Driver) Open(ctx context.Context, desc Descriptor) (Image, error) {
	return d.impl.Open(ctx, desc)
}

// Equal reports whether d and other are handles to the same named driver.
func (d Driver) Equal(other Driver) bool {
	return d.impl != nil && other.impl != nil && d.Name() == other.Name()
}

// Factory constructs a DriverImpl from a configuration map. Registered
// once at process startup.
type Factory interface {
	Name() string
	Construct(config Config) (DriverImpl, error)
}
