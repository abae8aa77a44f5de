// Package driver defines the storage-driver abstraction consumed by the
// NBD server: the Driver/Image handle types, the contracts a concrete
// backend implements, and the process-wide driver registry.
package driver

import (
	"fmt"
	"strings"
)

// Descriptor names one image as "<image_name>/<driver_name>", the
// canonical textual form a client types and a host registers images
// under. Both sides of the separator must be non-empty.
type Descriptor struct {
	DriverName string
	ImageName  string
}

// String renders the canonical "<image_name>/<driver_name>" form.
func (d Descriptor) String() string {
	return fmt.Sprintf("%s/%s", d.ImageName, d.DriverName)
}

// ParseDescriptor parses the canonical form. It succeeds iff s contains
// exactly one '/' with non-empty text on both sides.
func ParseDescriptor(s string) (Descriptor, error) {
	name, drv, ok := strings.Cut(s, "/")
	if !ok || name == "" || drv == "" {
		return Descriptor{}, fmt.Errorf("invalid image descriptor %q: want \"<image>/<driver>\"", s)
	}
	if strings.Contains(drv, "/") {
		return Descriptor{}, fmt.Errorf("invalid image descriptor %q: more than one '/'", s)
	}
	return Descriptor{ImageName: name, DriverName: drv}, nil
}
