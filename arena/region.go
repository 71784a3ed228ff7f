package arena

import (
	"fmt"

	kheap "github.com/helix-os/kheap"
)

// Free-list node headers live inside the memory they describe, so a free
// region must be able to host one before it can enter a free list.
const (
	// NodeSize is the footprint of an in-heap free-list node: a size word
	// followed by a next link.
	NodeSize = 16
	// NodeAlign is the alignment an address must satisfy before a node can
	// be written at it.
	NodeAlign uint = 8
)

// Region is a carvable span of free heap memory. The constructor enforces
// the node-hosting preconditions centrally so the carving and splitting code
// cannot produce a region the free list could not later absorb.
type Region struct {
	addr int
	size int
}

// NewRegion validates that [addr, addr+size) can host a free-list node.
// A violation is a contract breach in the caller and panics rather than
// being silently tolerated.
func NewRegion(addr, size int) Region {
	if kheap.AlignUp(addr, NodeAlign) != addr {
		panic(fmt.Sprintf("free region at address %d is not aligned to %d", addr, NodeAlign))
	}
	if size < NodeSize {
		panic(fmt.Sprintf("free region at address %d spans %d bytes, too few to host a free-list node", addr, size))
	}
	return Region{addr: addr, size: size}
}

// Addr returns the first address of the region.
func (r Region) Addr() int { return r.addr }

// Size returns the region size in bytes.
func (r Region) Size() int { return r.size }

// End returns the first address past the region.
func (r Region) End() int { return r.addr + r.size }
