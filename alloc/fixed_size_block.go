package alloc

import (
	"fmt"
	"strconv"

	kheap "github.com/helix-os/kheap"
	"github.com/helix-os/kheap/arena"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/pkg/errors"
	"golang.org/x/exp/slices"
)

// DefaultBlockSizes is the class table used when no override is provided.
// The sizes must be powers of two because they double as the block
// alignments.
var DefaultBlockSizes = []int{8, 16, 32, 64, 128, 256, 512, 1024, 2048}

// blockLinkSize is the footprint of the link a free block stores while it
// sits in its bucket chain. Every class size must be able to host it.
const blockLinkSize = 8

// FixedSizeBlockCreateOptions contains optional settings when creating a
// fixed-size-block allocator.
type FixedSizeBlockCreateOptions struct {
	// BlockSizes overrides DefaultBlockSizes. Entries must be strictly
	// ascending powers of two, each large enough to host a free-block link.
	BlockSizes []int
}

// FixedSizeBlockAllocator segregates free memory into buckets keyed by a
// fixed table of power-of-two block sizes. Releasing a block of a known
// class and allocating one again are O(1) pushes and pops on the bucket's
// chain; empty buckets and requests larger than the biggest class are
// delegated to a general-purpose fallback allocator. Requests are rounded
// up to their class size, trading internal fragmentation for speed.
type FixedSizeBlockAllocator struct {
	heap       *arena.Arena
	blockSizes []int
	listHeads  []int
	fallback   FallbackAllocator

	allocCount int
	allocBytes int
}

var _ Allocator = (*FixedSizeBlockAllocator)(nil)

// NewFixedSizeBlockAllocator creates a fixed-size-block allocator backed by
// the provided general-purpose fallback.
func NewFixedSizeBlockAllocator(fallback FallbackAllocator, options FixedSizeBlockCreateOptions) (*FixedSizeBlockAllocator, error) {
	if fallback == nil {
		return nil, errors.New("a fixed-size-block allocator requires a fallback allocator")
	}

	blockSizes := options.BlockSizes
	if blockSizes == nil {
		blockSizes = DefaultBlockSizes
	}

	if !slices.IsSorted(blockSizes) {
		return nil, errors.Errorf("block sizes %v are not ascending", blockSizes)
	}
	for i, blockSize := range blockSizes {
		if err := kheap.CheckPow2(blockSize, "block size"); err != nil {
			return nil, err
		}
		if blockSize < blockLinkSize {
			return nil, errors.Errorf("block size %d cannot host a %d byte free-block link", blockSize, blockLinkSize)
		}
		if i > 0 && blockSize == blockSizes[i-1] {
			return nil, errors.Errorf("block size %d appears twice", blockSize)
		}
	}

	listHeads := make([]int, len(blockSizes))
	for i := range listHeads {
		listHeads[i] = arena.NoAddr
	}

	return &FixedSizeBlockAllocator{
		blockSizes: slices.Clone(blockSizes),
		listHeads:  listHeads,
		fallback:   fallback,
	}, nil
}

// Init hands the allocator its heap region. The region is managed by the
// fallback allocator; bucket chains are populated lazily from blocks the
// fallback carves out. Must be called exactly once, before any Allocate or
// Release call.
func (f *FixedSizeBlockAllocator) Init(heap *arena.Arena) {
	f.heap = heap
	f.fallback.Init(heap)
}

func (f *FixedSizeBlockAllocator) Heap() *arena.Arena { return f.heap }

func (f *FixedSizeBlockAllocator) Kind() Kind { return KindFixedSizeBlock }

// listIndex returns the index of the smallest class that can satisfy the
// layout, or -1 when the request exceeds the largest class. Because class
// sizes double as alignments, a class fits when it covers both the size and
// the alignment.
func (f *FixedSizeBlockAllocator) listIndex(layout kheap.Layout) int {
	requiredBlockSize := layout.Size
	if int(layout.Align) > requiredBlockSize {
		requiredBlockSize = int(layout.Align)
	}
	for i, blockSize := range f.blockSizes {
		if blockSize >= requiredBlockSize {
			return i
		}
	}
	return -1
}

// blockLayout is the layout a class's blocks are allocated with: the class
// size, aligned to itself.
func (f *FixedSizeBlockAllocator) blockLayout(index int) kheap.Layout {
	blockSize := f.blockSizes[index]
	return kheap.Layout{Size: blockSize, Align: uint(blockSize)}
}

func (f *FixedSizeBlockAllocator) Allocate(layout kheap.Layout) (int, error) {
	index := f.listIndex(layout)
	if index < 0 {
		// Request exceeds the largest class, delegate with the original layout
		addr, err := f.fallback.Allocate(layout)
		if err != nil {
			return 0, err
		}
		f.allocCount++
		f.allocBytes += layout.Size
		return addr, nil
	}

	head := f.listHeads[index]
	if head != arena.NoAddr {
		next, err := f.heap.Link(head)
		if err != nil {
			panic(fmt.Sprintf("bucket chain for class %d is corrupted: %v", f.blockSizes[index], err))
		}
		f.listHeads[index] = next
		f.allocCount++
		f.allocBytes += f.blockSizes[index]
		return head, nil
	}

	// Bucket is empty, request one fresh block of this class from the fallback
	addr, err := f.fallback.Allocate(f.blockLayout(index))
	if err != nil {
		return 0, err
	}
	f.allocCount++
	f.allocBytes += f.blockSizes[index]
	return addr, nil
}

// Release pushes blocks of a known class onto their bucket's chain and
// returns anything larger to the fallback with the original layout. Freed
// blocks stay dedicated to their class; they are never handed back to the
// fallback.
func (f *FixedSizeBlockAllocator) Release(addr int, layout kheap.Layout) {
	index := f.listIndex(layout)
	if index < 0 {
		f.fallback.Deallocate(addr, layout)
		f.allocCount--
		f.allocBytes -= layout.Size
		return
	}

	blockSize := f.blockSizes[index]
	// The class must be able to host the free-block link; the constructor
	// guarantees both, so a failure here means the table was mutated.
	if blockLinkSize > blockSize {
		panic(fmt.Sprintf("class size %d cannot store a %d byte free-block link", blockSize, blockLinkSize))
	}
	if err := f.heap.PutLink(addr, f.listHeads[index]); err != nil {
		panic(fmt.Sprintf("released block at %d escapes the heap: %v", addr, err))
	}
	f.listHeads[index] = addr
	f.allocCount--
	f.allocBytes -= blockSize
}

func (f *FixedSizeBlockAllocator) AllocationCount() int { return f.allocCount }

// FreeBlockCount walks the bucket chain for the given class index and
// returns the number of blocks parked in it.
func (f *FixedSizeBlockAllocator) FreeBlockCount(index int) int {
	var count int
	for current := f.listHeads[index]; current != arena.NoAddr; {
		next, err := f.heap.Link(current)
		if err != nil {
			panic(fmt.Sprintf("bucket chain for class %d is corrupted: %v", f.blockSizes[index], err))
		}
		count++
		current = next
	}
	return count
}

// SumFreeSize sums the bytes parked in bucket chains plus whatever the
// fallback reports as free, when it reports anything at all.
func (f *FixedSizeBlockAllocator) SumFreeSize() int {
	var free int
	for i := range f.blockSizes {
		free += f.FreeBlockCount(i) * f.blockSizes[i]
	}
	if counted, ok := f.fallback.(interface{ SumFreeSize() int }); ok {
		free += counted.SumFreeSize()
	}
	return free
}

func (f *FixedSizeBlockAllocator) IsEmpty() bool { return f.allocCount == 0 }

func (f *FixedSizeBlockAllocator) Validate() error {
	for i, blockSize := range f.blockSizes {
		var walked int
		for current := f.listHeads[i]; current != arena.NoAddr; {
			if walked > f.heap.Size()/blockSize {
				return errors.Errorf("bucket chain for class %d contains a cycle", blockSize)
			}
			if !f.heap.Contains(current, blockSize) {
				return errors.Errorf("free block [%d, %d) of class %d escapes the heap", current, current+blockSize, blockSize)
			}
			if kheap.AlignUp(current, uint(blockSize)) != current {
				return errors.Errorf("free block at %d is not aligned to its class size %d", current, blockSize)
			}

			next, err := f.heap.Link(current)
			if err != nil {
				return err
			}
			walked++
			current = next
		}
	}

	if validatable, ok := f.fallback.(kheap.Validatable); ok {
		return validatable.Validate()
	}
	return nil
}

func (f *FixedSizeBlockAllocator) AddStatistics(stats *kheap.Statistics) {
	stats.HeapCount++
	stats.HeapBytes += f.heap.Size()
	stats.AllocationCount += f.allocCount
	stats.AllocationBytes += f.allocBytes
}

func (f *FixedSizeBlockAllocator) AddDetailedStatistics(stats *kheap.DetailedStatistics) {
	f.AddStatistics(&stats.Statistics)
	for i, blockSize := range f.blockSizes {
		for n := f.FreeBlockCount(i); n > 0; n-- {
			stats.AddFreeRegion(blockSize)
		}
	}
}

func (f *FixedSizeBlockAllocator) HeapJsonData(json jwriter.ObjectState) {
	json.Name("TotalBytes").Int(f.heap.Size())
	json.Name("Allocations").Int(f.allocCount)

	buckets := json.Name("Buckets").Object()
	defer buckets.End()

	for i, blockSize := range f.blockSizes {
		buckets.Name(strconv.Itoa(blockSize)).Int(f.FreeBlockCount(i))
	}
}
