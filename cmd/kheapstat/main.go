// Command kheapstat reserves a heap, drives one of the allocation
// strategies with a randomized workload and prints the resulting heap
// statistics as JSON.
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"

	kheap "github.com/helix-os/kheap"
	"github.com/helix-os/kheap/alloc"
	"github.com/helix-os/kheap/arena"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"golang.org/x/exp/slog"
)

func main() {
	var (
		strategy  = flag.String("strategy", "list", "allocation strategy: bump, fixed or list")
		heapSize  = flag.Int("heap-size", 1<<20, "heap size in bytes")
		heapStart = flag.Int("heap-start", 0x44440000, "address the heap region is modeled at")
		ops       = flag.Int("ops", 10000, "number of workload operations to run")
		seed      = flag.Int64("seed", 1, "workload seed")
		verbose   = flag.Bool("v", false, "enable debug logging")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.HandlerOptions{Level: level}.NewTextHandler(os.Stderr))

	allocator, err := buildAllocator(*strategy)
	if err != nil {
		logger.Error("invalid strategy", slog.Any("error", err))
		os.Exit(1)
	}

	backing, releaseHeap, err := arena.ReserveHeap(*heapSize)
	if err != nil {
		logger.Error("failed to reserve heap backing", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := releaseHeap(); err != nil {
			logger.Error("failed to release heap backing", slog.Any("error", err))
		}
	}()

	heap := alloc.NewLocked(allocator, alloc.HeapCreateOptions{Logger: logger})
	heap.Init(arena.FromBytes(*heapStart, backing))
	alloc.InstallGlobal(heap)

	runWorkload(alloc.Global(), *ops, *seed, logger)

	if err := heap.Validate(); err != nil {
		logger.Error("heap failed validation after workload", slog.Any("error", err))
		os.Exit(1)
	}
	if err := heap.CheckCorruption(); err != nil {
		logger.Error("heap corruption detected after workload", slog.Any("error", err))
		os.Exit(1)
	}

	writer := jwriter.NewWriter()
	heap.BuildStatsString(&writer)
	if writer.Error() != nil {
		logger.Error("failed to build stats", slog.Any("error", writer.Error()))
		os.Exit(1)
	}
	fmt.Println(string(writer.Bytes()))
}

func buildAllocator(strategy string) (alloc.Allocator, error) {
	switch strategy {
	case "bump":
		return alloc.NewBumpAllocator(), nil
	case "list":
		return alloc.NewLinkedListAllocator(), nil
	case "fixed":
		return alloc.NewFixedSizeBlockAllocator(alloc.NewLinkedListAllocator(), alloc.FixedSizeBlockCreateOptions{})
	}
	return nil, fmt.Errorf("unknown strategy %q", strategy)
}

type liveBlock struct {
	addr   int
	layout kheap.Layout
}

var workloadAlignments = []uint{1, 2, 4, 8, 16, 32, 64, 128, 256}

// runWorkload interleaves allocations and releases. Exhaustion is expected
// under memory pressure and handled by releasing live blocks; any other
// behavior is a bug in the allocator.
func runWorkload(heap *alloc.Locked, ops int, seed int64, logger *slog.Logger) {
	rng := rand.New(rand.NewSource(seed))
	var live []liveBlock

	release := func(i int) {
		block := live[i]
		heap.Release(block.addr, block.layout)
		live[i] = live[len(live)-1]
		live = live[:len(live)-1]
	}

	for op := 0; op < ops; op++ {
		if len(live) == 0 || rng.Intn(10) < 6 {
			layout := kheap.Layout{
				Size:  1 + rng.Intn(512),
				Align: workloadAlignments[rng.Intn(len(workloadAlignments))],
			}
			addr, err := heap.Allocate(layout)
			if err != nil {
				// Out of memory; relieve pressure and move on
				for i := len(live) / 2; i > 0; i-- {
					release(rng.Intn(len(live)))
				}
				continue
			}
			live = append(live, liveBlock{addr: addr, layout: layout})
		} else {
			release(rng.Intn(len(live)))
		}
	}

	// Keep a handful of blocks live so the stats dump has something to show
	for len(live) > 8 {
		release(rng.Intn(len(live)))
	}

	logger.Info("workload complete",
		slog.Int("Ops", ops),
		slog.Int("LiveBlocks", len(live)),
		slog.Int("LiveAllocations", heap.AllocationCount()),
		slog.Int("FreeBytes", heap.SumFreeSize()),
	)
}
