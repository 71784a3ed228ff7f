package alloc

import (
	"fmt"

	kheap "github.com/helix-os/kheap"
	"github.com/helix-os/kheap/arena"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/pkg/errors"
)

// listNode is the in-heap record at the start of every free region: a size
// word followed by a link to the next free node. Holding a node in the list
// is equivalent to owning that memory range.
type listNode struct {
	addr int
	size int
	next int
}

func (n listNode) end() int { return n.addr + n.size }

// LinkedListAllocator is a general-purpose first-fit allocator. Free memory
// is threaded through the heap itself as a singly-linked chain of listNode
// records; allocation scans the chain from the most recently freed end,
// carves the first region that fits and re-lists any leftover. It supports
// arbitrary allocation and release ordering at the cost of an O(n) search.
//
// Freed regions are pushed to the front of the list without address ordering
// and are never coalesced with physically adjacent free neighbors; leftover
// space is only merged back during the split that produced it. See the
// fragmentation notes in DESIGN.md.
type LinkedListAllocator struct {
	heap        *arena.Arena
	firstFree   int
	freeRegions int
	sumFreeSize int
	allocCount  int
	allocBytes  int
}

var (
	_ Allocator         = (*LinkedListAllocator)(nil)
	_ FallbackAllocator = (*LinkedListAllocator)(nil)
)

// NewLinkedListAllocator creates a new empty linked-list allocator.
func NewLinkedListAllocator() *LinkedListAllocator {
	return &LinkedListAllocator{firstFree: arena.NoAddr}
}

// Init hands the allocator its heap region and lists the whole range as one
// free region. Must be called exactly once, before any Allocate or Release
// call. The heap base must satisfy the free-list node alignment and the heap
// must be large enough to host a node; violations panic.
func (l *LinkedListAllocator) Init(heap *arena.Arena) {
	l.heap = heap
	l.addFreeRegion(heap.Base(), heap.Size())
}

func (l *LinkedListAllocator) Heap() *arena.Arena { return l.heap }

func (l *LinkedListAllocator) Kind() Kind { return KindLinkedList }

// readNode decodes the node record at addr. The free list exclusively owns
// every node it references, so a link pointing at memory that cannot hold a
// node means the heap bookkeeping has been corrupted and there is no safe
// way to continue.
func (l *LinkedListAllocator) readNode(addr int) listNode {
	size, err := l.heap.Word(addr)
	if err != nil {
		panic(fmt.Sprintf("free list is corrupted: %v", err))
	}
	next, err := l.heap.Link(addr + linkOffset)
	if err != nil {
		panic(fmt.Sprintf("free list is corrupted: %v", err))
	}
	return listNode{addr: addr, size: size, next: next}
}

const linkOffset = 8

func (l *LinkedListAllocator) writeNode(node listNode) {
	if err := l.heap.PutWord(node.addr, node.size); err != nil {
		panic(fmt.Sprintf("free list node escapes the heap: %v", err))
	}
	if err := l.heap.PutLink(node.addr+linkOffset, node.next); err != nil {
		panic(fmt.Sprintf("free list node escapes the heap: %v", err))
	}
}

// setLink repoints the link leading into the chain position after prev.
// prev == arena.NoAddr addresses the list head.
func (l *LinkedListAllocator) setLink(prev, target int) {
	if prev == arena.NoAddr {
		l.firstFree = target
		return
	}
	if err := l.heap.PutLink(prev+linkOffset, target); err != nil {
		panic(fmt.Sprintf("free list node escapes the heap: %v", err))
	}
}

// addFreeRegion writes a new node at addr and pushes it to the front of the
// list. The address must satisfy the node alignment and the size must cover
// at least a node footprint; arena.NewRegion panics otherwise.
func (l *LinkedListAllocator) addFreeRegion(addr, size int) {
	region := arena.NewRegion(addr, size)

	l.writeNode(listNode{addr: region.Addr(), size: region.Size(), next: l.firstFree})
	l.firstFree = region.Addr()
	l.freeRegions++
	l.sumFreeSize += region.Size()
}

// findRegion scans the list for the first region that can host an allocation
// with the given size and alignment, unlinks it and returns it together with
// the allocation start address.
func (l *LinkedListAllocator) findRegion(size int, align uint) (listNode, int, bool) {
	prev := arena.NoAddr
	current := l.firstFree

	for current != arena.NoAddr {
		node := l.readNode(current)
		allocStart, ok := allocFromRegion(node, size, align)
		if ok {
			l.setLink(prev, node.next)
			l.freeRegions--
			l.sumFreeSize -= node.size
			return node, allocStart, true
		}
		prev = current
		current = node.next
	}

	return listNode{}, 0, false
}

// allocFromRegion tries to place an allocation with the given size and
// alignment inside the region. It fails if the aligned allocation does not
// fit before the region's end, or if it fits but would strand a leftover too
// small to host a free-list node: such a leftover would be unreachable, so
// the region is skipped even though it has enough raw bytes.
func allocFromRegion(region listNode, size int, align uint) (int, bool) {
	allocStart := kheap.AlignUp(region.addr, align)
	allocEnd, ok := kheap.CheckedAdd(allocStart, size)
	if !ok || allocEnd > region.end() {
		return 0, false
	}

	excess := region.end() - allocEnd
	if excess > 0 && excess < arena.NodeSize {
		return 0, false
	}

	return allocStart, true
}

// sizeAlign pads a layout so that the resulting block can host a free-list
// node of at least its own size and alignment when it is later released.
func sizeAlign(layout kheap.Layout) kheap.Layout {
	layout = layout.AlignTo(arena.NodeAlign).PadToAlign()
	if layout.Size < arena.NodeSize {
		layout.Size = arena.NodeSize
	}
	return layout
}

func (l *LinkedListAllocator) Allocate(layout kheap.Layout) (int, error) {
	adjusted := sizeAlign(layout)

	region, allocStart, ok := l.findRegion(adjusted.Size, adjusted.Align)
	if !ok {
		return 0, errors.Wrapf(kheap.ErrOutOfMemory, "no free region fits %d bytes aligned to %d",
			adjusted.Size, adjusted.Align)
	}

	// findRegion already proved the allocation ends inside the region
	allocEnd := allocStart + adjusted.Size
	excess := region.end() - allocEnd
	if excess > 0 {
		l.addFreeRegion(allocEnd, excess)
	}

	l.allocCount++
	l.allocBytes += adjusted.Size
	kheap.DebugValidate(l)
	return allocStart, nil
}

// Release lists the block as a free region at the front of the list. The
// layout is re-padded the same way Allocate padded it, so the region always
// covers the bytes that were actually carved out.
func (l *LinkedListAllocator) Release(addr int, layout kheap.Layout) {
	adjusted := sizeAlign(layout)
	l.addFreeRegion(addr, adjusted.Size)
	l.allocCount--
	l.allocBytes -= adjusted.Size
	kheap.DebugValidate(l)
}

// Deallocate satisfies the FallbackAllocator contract; it is Release under
// the fallback collaborator's name.
func (l *LinkedListAllocator) Deallocate(addr int, layout kheap.Layout) {
	l.Release(addr, layout)
}

func (l *LinkedListAllocator) AllocationCount() int { return l.allocCount }

func (l *LinkedListAllocator) SumFreeSize() int { return l.sumFreeSize }

func (l *LinkedListAllocator) FreeRegionsCount() int { return l.freeRegions }

func (l *LinkedListAllocator) IsEmpty() bool { return l.allocCount == 0 }

// VisitFreeRegions calls visit once per free region, front of the list
// first, until the list ends or visit returns an error.
func (l *LinkedListAllocator) VisitFreeRegions(visit func(addr, size int) error) error {
	for current := l.firstFree; current != arena.NoAddr; {
		node := l.readNode(current)
		if err := visit(node.addr, node.size); err != nil {
			return err
		}
		current = node.next
	}
	return nil
}

func (l *LinkedListAllocator) Validate() error {
	var regions, freeBytes int

	for current := l.firstFree; current != arena.NoAddr; {
		if regions > l.heap.Size()/arena.NodeSize {
			return errors.New("free list contains a cycle")
		}

		node := l.readNode(current)
		if !l.heap.Contains(node.addr, node.size) {
			return errors.Errorf("free region [%d, %d) escapes the heap [%d, %d)",
				node.addr, node.end(), l.heap.Base(), l.heap.End())
		}
		if node.size < arena.NodeSize {
			return errors.Errorf("free region at %d spans %d bytes, too few to host its own node", node.addr, node.size)
		}
		if kheap.AlignUp(node.addr, arena.NodeAlign) != node.addr {
			return errors.Errorf("free region at %d is not aligned to %d", node.addr, arena.NodeAlign)
		}

		regions++
		freeBytes += node.size
		current = node.next
	}

	if regions != l.freeRegions {
		return errors.Errorf("walked %d free regions but %d are tracked", regions, l.freeRegions)
	}
	if freeBytes != l.sumFreeSize {
		return errors.Errorf("walked %d free bytes but %d are tracked", freeBytes, l.sumFreeSize)
	}
	if l.sumFreeSize > l.heap.Size() {
		return errors.New("invalid free size")
	}
	return nil
}

func (l *LinkedListAllocator) AddStatistics(stats *kheap.Statistics) {
	stats.HeapCount++
	stats.HeapBytes += l.heap.Size()
	stats.AllocationCount += l.allocCount
	stats.AllocationBytes += l.allocBytes
}

func (l *LinkedListAllocator) AddDetailedStatistics(stats *kheap.DetailedStatistics) {
	l.AddStatistics(&stats.Statistics)
	_ = l.VisitFreeRegions(func(addr, size int) error {
		stats.AddFreeRegion(size)
		return nil
	})
}

func (l *LinkedListAllocator) HeapJsonData(json jwriter.ObjectState) {
	json.Name("TotalBytes").Int(l.heap.Size())
	json.Name("FreeBytes").Int(l.sumFreeSize)
	json.Name("Allocations").Int(l.allocCount)
	json.Name("FreeRegions").Int(l.freeRegions)

	regions := json.Name("FreeRegionList").Array()
	defer regions.End()

	_ = l.VisitFreeRegions(func(addr, size int) error {
		regionObj := regions.Object()
		defer regionObj.End()

		regionObj.Name("Offset").Int(addr - l.heap.Base())
		regionObj.Name("Size").Int(size)
		return nil
	})
}
