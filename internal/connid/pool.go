// Package connid allocates small, reusable integer identifiers for
// accepted connections, for use as a compact log-correlation field
// alongside the per-shard UUID.
//
// Adapted from the teacher's NbdDevicePool: the same bitset-backed
// slot allocator, minus the /dev/nbdN path parsing and the kernel
// liveness polling that made sense for device minors but not for an
// in-process connection counter.
package connid

import (
	"fmt"
	"sync"

	"github.com/bits-and-blooms/bitset"
)

// Pool hands out small non-negative integer ids and reclaims them when
// the caller is done. Ids are reused as soon as they're released, so a
// long-running server with many short connections doesn't grow the
// underlying bitset without bound.
type Pool struct {
	mu    sync.Mutex
	slots *bitset.BitSet
}

// New returns a Pool capable of handing out ids in [0, capacity) before
// it must grow.
func New(capacity uint) *Pool {
	return &Pool{slots: bitset.New(capacity)}
}

// Acquire returns the lowest currently-unused id, growing the pool's
// backing bitset if every existing slot is taken.
func (p *Pool) Acquire() uint {
	p.mu.Lock()
	defer p.mu.Unlock()

	slot, ok := p.slots.NextClear(0)
	if !ok {
		slot = p.slots.Len()
	}
	p.slots.Set(slot)
	return slot
}

// Release returns id to the pool. Releasing an id that was never
// acquired, or was already released, is a no-op.
func (p *Pool) Release(id uint) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.slots.Clear(id)
}

// String renders an id the way it should appear in a log field.
func String(id uint) string {
	return fmt.Sprintf("conn-%d", id)
}
