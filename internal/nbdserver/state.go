package nbdserver

import (
	"fmt"
	"sync"

	"github.com/nbdserver/nbdserver/internal/driver"
)

// ImageEntry pairs a Driver handle with one of the Descriptors it
// exports, as returned by ServerState.ListImages.
type ImageEntry struct {
	Driver     driver.Driver
	Descriptor driver.Descriptor
}

// ServerState is the shared, mutex-guarded catalog of exported images.
// It is read by every shard's ExportName and List handlers and mutated
// only by the host program, never under an await: every method takes
// the lock just long enough to copy data out or apply one structural
// change, matching the snapshot-then-release discipline the whole
// server follows around this mutex.
type ServerState struct {
	mu            sync.Mutex
	defaultDriver driver.Driver
	hasDefault    bool
	byDriver      map[string]*driverImages
}

type driverImages struct {
	driver      driver.Driver
	descriptors []driver.Descriptor
}

// NewServerState returns an empty catalog with no default driver and no
// exported images.
func NewServerState() *ServerState {
	return &ServerState{byDriver: make(map[string]*driverImages)}
}

// SetDefaultDriver records d as the server's default driver, readable
// through DefaultDriver. FindImage and the option handlers do not
// consult it. Call this before Run, or
// between accepted connections; it is never called from within a shard.
func (s *ServerState) SetDefaultDriver(d driver.Driver) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defaultDriver = d
	s.hasDefault = true
}

// AddImage registers desc as exported under d. Adding the same
// descriptor twice under the same driver appends a duplicate entry;
// callers are expected to de-duplicate at the host-program level, same
// as the invariant the registry keeps for driver names.
func (s *ServerState) AddImage(d driver.Driver, desc driver.Descriptor) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.byDriver[d.Name()]
	if !ok {
		entry = &driverImages{driver: d}
		s.byDriver[d.Name()] = entry
	}
	entry.descriptors = append(entry.descriptors, desc)
}

// ListImages flattens the driver -> descriptors catalog into a flat
// sequence of pairs copied out under the lock. Drivers come in Go map
// iteration order, so the ordering may differ from one call to the
// next; descriptors under one driver keep the order they were added in.
func (s *ServerState) ListImages() []ImageEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []ImageEntry
	for _, entry := range s.byDriver {
		for _, desc := range entry.descriptors {
			out = append(out, ImageEntry{Driver: entry.driver, Descriptor: desc})
		}
	}
	return out
}

// ListImageFullNames returns every exported image's canonical
// "<image_name>/<driver_name>" textual form.
func (s *ServerState) ListImageFullNames() []string {
	entries := s.ListImages()
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Descriptor.String()
	}
	return names
}

// FindImage parses text as a Descriptor and looks for a matching entry
// in the current catalog. Returns ImageNotFound if text doesn't parse or
// names an image this server doesn't currently export.
func (s *ServerState) FindImage(text string) (driver.Driver, driver.Descriptor, error) {
	desc, err := driver.ParseDescriptor(text)
	if err != nil {
		return driver.Driver{}, driver.Descriptor{}, ImageNotFound{Text: text}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.byDriver[desc.DriverName]
	if !ok {
		return driver.Driver{}, driver.Descriptor{}, ImageNotFound{Text: text}
	}
	for _, d := range entry.descriptors {
		if d == desc {
			return entry.driver, desc, nil
		}
	}
	return driver.Driver{}, driver.Descriptor{}, ImageNotFound{Text: text}
}

// DefaultDriver returns the driver registered via SetDefaultDriver, if
// any.
func (s *ServerState) DefaultDriver() (driver.Driver, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.defaultDriver, s.hasDefault
}

func (e ImageEntry) String() string {
	return fmt.Sprintf("%s (driver %s)", e.Descriptor, e.Driver.Name())
}
