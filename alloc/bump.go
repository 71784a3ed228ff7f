package alloc

import (
	kheap "github.com/helix-os/kheap"
	"github.com/helix-os/kheap/arena"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/pkg/errors"
)

// BumpAllocator hands out memory by advancing a single pointer through the
// heap. Allocation is O(1), but individual blocks cannot be reclaimed: the
// arena is only rewound, in O(1), at the moment the last live allocation is
// released. That trade makes it a fit for short-lived, stack-discipline
// workloads.
type BumpAllocator struct {
	heap        *arena.Arena
	heapStart   int
	heapEnd     int
	next        int
	allocations int
	allocBytes  int
}

var _ Allocator = (*BumpAllocator)(nil)

// NewBumpAllocator creates a new empty bump allocator.
func NewBumpAllocator() *BumpAllocator {
	return &BumpAllocator{}
}

// Init hands the allocator its heap region. Must be called exactly once,
// before any Allocate or Release call.
func (b *BumpAllocator) Init(heap *arena.Arena) {
	b.heap = heap
	b.heapStart = heap.Base()
	b.heapEnd = heap.End()
	b.next = b.heapStart
}

func (b *BumpAllocator) Heap() *arena.Arena { return b.heap }

func (b *BumpAllocator) Kind() Kind { return KindBump }

func (b *BumpAllocator) Allocate(layout kheap.Layout) (int, error) {
	allocStart := kheap.AlignUp(b.next, layout.Align)
	allocEnd, ok := kheap.CheckedAdd(allocStart, layout.Size)
	if !ok {
		return 0, errors.Wrapf(kheap.ErrOutOfMemory, "end address of %d bytes at %d overflows", layout.Size, allocStart)
	}
	if allocEnd > b.heapEnd {
		return 0, errors.Wrapf(kheap.ErrOutOfMemory, "%d bytes aligned to %d do not fit in the %d bytes remaining",
			layout.Size, layout.Align, b.heapEnd-b.next)
	}

	b.next = allocEnd
	b.allocations++
	b.allocBytes += layout.Size
	kheap.DebugValidate(b)
	return allocStart, nil
}

// Release decrements the live-allocation counter and, once it reaches zero,
// rewinds the bump pointer to the start of the heap. The addr argument is
// otherwise unused; this strategy assumes perfectly paired Allocate and
// Release calls, and a release that was never allocated underflows the
// counter with undefined results.
func (b *BumpAllocator) Release(addr int, layout kheap.Layout) {
	b.allocations--
	b.allocBytes -= layout.Size
	if b.allocations == 0 {
		b.next = b.heapStart
	}
	kheap.DebugValidate(b)
}

func (b *BumpAllocator) AllocationCount() int { return b.allocations }

func (b *BumpAllocator) SumFreeSize() int { return b.heapEnd - b.next }

func (b *BumpAllocator) IsEmpty() bool { return b.allocations == 0 }

func (b *BumpAllocator) Validate() error {
	if b.next < b.heapStart || b.next > b.heapEnd {
		return errors.Errorf("bump pointer %d escaped the heap [%d, %d)", b.next, b.heapStart, b.heapEnd)
	}
	if b.allocations < 0 {
		return errors.Errorf("live-allocation counter underflowed to %d", b.allocations)
	}
	if b.allocations == 0 && b.next != b.heapStart {
		return errors.Errorf("no allocations are live but the bump pointer sits at %d instead of %d", b.next, b.heapStart)
	}
	if b.allocBytes > b.next-b.heapStart {
		return errors.Errorf("tracked %d allocated bytes in a %d byte used span", b.allocBytes, b.next-b.heapStart)
	}
	return nil
}

func (b *BumpAllocator) AddStatistics(stats *kheap.Statistics) {
	stats.HeapCount++
	stats.HeapBytes += b.heap.Size()
	stats.AllocationCount += b.allocations
	stats.AllocationBytes += b.allocBytes
}

func (b *BumpAllocator) AddDetailedStatistics(stats *kheap.DetailedStatistics) {
	b.AddStatistics(&stats.Statistics)
	if free := b.heapEnd - b.next; free > 0 {
		stats.AddFreeRegion(free)
	}
}

func (b *BumpAllocator) HeapJsonData(json jwriter.ObjectState) {
	json.Name("TotalBytes").Int(b.heap.Size())
	json.Name("FreeBytes").Int(b.SumFreeSize())
	json.Name("Allocations").Int(b.allocations)
	json.Name("NextOffset").Int(b.next - b.heapStart)
}
