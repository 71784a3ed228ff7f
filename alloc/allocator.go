// Package alloc implements the allocation strategies for a single
// contiguous heap: a bump arena, a segregated fixed-size-block allocator and
// a first-fit linked-list allocator. All three are drop-in alternatives
// behind the same Allocator contract, and any of them can be made safe for
// concurrent use by wrapping it in a Locked heap.
package alloc

import (
	kheap "github.com/helix-os/kheap"
	"github.com/helix-os/kheap/arena"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
)

// Kind identifies an allocation strategy.
type Kind uint32

const (
	KindBump Kind = iota
	KindFixedSizeBlock
	KindLinkedList
)

var kindMapping = map[Kind]string{
	KindBump:           "Bump",
	KindFixedSizeBlock: "FixedSizeBlock",
	KindLinkedList:     "LinkedList",
}

func (k Kind) String() string {
	return kindMapping[k]
}

// Allocator is the contract every strategy exposes to its environment.
//
// Init must be called exactly once, strictly before any Allocate or Release
// call. The arena handed to it must not be in use by anything else; violating
// either requirement is a caller contract breach and is not runtime-checked.
//
// Allocate returns an address with layout.Size bytes available, aligned to
// layout.Align (which must be a power of two), or an error wrapping
// kheap.ErrOutOfMemory when no memory is available or the end-address
// computation overflows. A failed Allocate is never converted into a
// valid-looking address.
//
// Release must receive exactly the address and layout of a previous
// successful Allocate that has not already been released. Double releases
// and mismatched layouts are undefined behavior in the strategy itself,
// though some violations trip fatal assertions; the Locked wrapper turns
// them into fatal assertions in debug_kheap builds.
type Allocator interface {
	Init(heap *arena.Arena)
	Heap() *arena.Arena
	Kind() Kind

	Allocate(layout kheap.Layout) (int, error)
	Release(addr int, layout kheap.Layout)

	AllocationCount() int
	SumFreeSize() int
	IsEmpty() bool
	Validate() error
	AddStatistics(stats *kheap.Statistics)
	AddDetailedStatistics(stats *kheap.DetailedStatistics)
	HeapJsonData(json jwriter.ObjectState)
}

// FallbackAllocator is the capability surface the fixed-size-block strategy
// requires from its general-purpose collaborator. The collaborator is
// treated as a black box meeting this contract; Deallocate carries the same
// layout-matching precondition as Allocator.Release.
type FallbackAllocator interface {
	Init(heap *arena.Arena)
	Allocate(layout kheap.Layout) (int, error)
	Deallocate(addr int, layout kheap.Layout)
}
