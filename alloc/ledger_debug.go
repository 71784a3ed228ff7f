//go:build debug_kheap

package alloc

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	kheap "github.com/helix-os/kheap"
	"github.com/helix-os/kheap/arena"
)

// allocationLedger tracks every outstanding allocation of a Locked heap so
// that release contract violations trip fatal assertions instead of silently
// corrupting the heap. It only exists in debug_kheap builds.
type allocationLedger struct {
	outstanding *swiss.Map[int, kheap.Layout]
}

func (g *allocationLedger) init() {
	g.outstanding = swiss.NewMap[int, kheap.Layout](64)
}

func (g *allocationLedger) record(addr int, layout kheap.Layout) {
	if _, live := g.outstanding.Get(addr); live {
		panic(fmt.Sprintf("allocator handed out address %d twice without an intervening release", addr))
	}
	g.outstanding.Put(addr, layout)
}

func (g *allocationLedger) verify(addr int, layout kheap.Layout) {
	recorded, live := g.outstanding.Get(addr)
	if !live {
		panic(fmt.Sprintf("release of address %d, which has no outstanding allocation", addr))
	}
	if recorded != layout {
		panic(fmt.Sprintf("release layout {Size: %d, Align: %d} does not match the allocation layout {Size: %d, Align: %d} for address %d",
			layout.Size, layout.Align, recorded.Size, recorded.Align, addr))
	}
	g.outstanding.Delete(addr)
}

func (g *allocationLedger) checkCorruption(heap *arena.Arena) error {
	var err error
	g.outstanding.Iter(func(addr int, layout kheap.Layout) bool {
		margin, sliceErr := heap.Slice(addr+layout.Size, kheap.DebugMargin)
		if sliceErr != nil {
			err = sliceErr
			return true
		}
		if !kheap.ValidateMagicValue(margin) {
			err = errors.Errorf("memory corruption detected after the allocation at address %d", addr)
			return true
		}
		return false
	})
	return err
}
