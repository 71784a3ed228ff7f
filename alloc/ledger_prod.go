//go:build !debug_kheap

package alloc

import (
	kheap "github.com/helix-os/kheap"
	"github.com/helix-os/kheap/arena"
)

// allocationLedger tracks every outstanding allocation of a Locked heap so
// that release contract violations trip fatal assertions instead of silently
// corrupting the heap. It only exists in debug_kheap builds; this version
// compiles down to nothing.
type allocationLedger struct{}

func (g *allocationLedger) init() {
}

func (g *allocationLedger) record(addr int, layout kheap.Layout) {
}

func (g *allocationLedger) verify(addr int, layout kheap.Layout) {
}

func (g *allocationLedger) checkCorruption(heap *arena.Arena) error {
	return nil
}
