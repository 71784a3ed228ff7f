package alloc

import (
	"fmt"

	kheap "github.com/helix-os/kheap"
	"github.com/helix-os/kheap/arena"
	"github.com/helix-os/kheap/internal/utils"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"golang.org/x/exp/slog"
)

// CreateFlags indicate specific heap behaviors to activate or deactivate
type CreateFlags int32

const (
	// HeapExternallySynchronized ensures the wrapped allocator will not be
	// synchronized internally. The consumer must guarantee it is used from
	// only one thread of control at a time or is synchronized by some other
	// mechanism, but performance may improve because the internal mutex is
	// not used.
	HeapExternallySynchronized CreateFlags = 1 << iota
)

var createFlagsMapping = map[CreateFlags]string{
	HeapExternallySynchronized: "HeapExternallySynchronized",
}

func (f CreateFlags) String() string {
	var out string
	for flag, name := range createFlagsMapping {
		if f&flag == 0 {
			continue
		}
		if out != "" {
			out += "|"
		}
		out += name
	}
	return out
}

// HeapCreateOptions contains optional settings when wrapping an allocator
// in a Locked heap.
type HeapCreateOptions struct {
	// Flags indicates specific heap behaviors to activate or deactivate
	Flags CreateFlags
	// Logger is the logger heap events are reported through. When nil,
	// slog.Default() is used.
	Logger *slog.Logger
}

// Locked wraps an allocator in a mutual-exclusion domain so it can be
// installed as the process-wide heap and called concurrently. Every call
// acquires the domain for its full duration and releases it on all exit
// paths; there is no read-only path. Acquisition is not re-entrant:
// acquiring while already holding the domain deadlocks, which is a caller
// discipline requirement rather than a runtime-checked error.
//
// In debug_kheap builds the wrapper also keeps a ledger of outstanding
// allocations, turning double releases and mismatched release layouts into
// fatal assertions, and brackets each allocation with corruption-detection
// markers.
type Locked struct {
	mutex  utils.OptionalMutex
	logger *slog.Logger
	inner  Allocator
	ledger allocationLedger
}

var _ Allocator = (*Locked)(nil)

// NewLocked wraps the provided allocator. The allocator must not be used
// directly once wrapped.
func NewLocked(inner Allocator, options HeapCreateOptions) *Locked {
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	locked := &Locked{
		mutex: utils.OptionalMutex{
			UseMutex: options.Flags&HeapExternallySynchronized == 0,
		},
		logger: logger,
		inner:  inner,
	}
	locked.ledger.init()
	return locked
}

func (l *Locked) Init(heap *arena.Arena) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	l.inner.Init(heap)
	l.logger.Debug("Locked::Init",
		slog.String("Strategy", l.inner.Kind().String()),
		slog.Int("HeapStart", heap.Base()),
		slog.Int("HeapSize", heap.Size()),
	)
}

func (l *Locked) Heap() *arena.Arena {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	return l.inner.Heap()
}

func (l *Locked) Kind() Kind { return l.inner.Kind() }

func (l *Locked) Allocate(layout kheap.Layout) (int, error) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	adjusted := layout
	adjusted.Size += kheap.DebugMargin

	addr, err := l.inner.Allocate(adjusted)
	if err != nil {
		l.logger.Debug("Locked::Allocate FAILED",
			slog.Int("Size", layout.Size),
			slog.Uint64("Align", uint64(layout.Align)),
			slog.Any("error", err),
		)
		return 0, err
	}

	if kheap.DebugMargin > 0 {
		margin, marginErr := l.inner.Heap().Slice(addr+layout.Size, kheap.DebugMargin)
		if marginErr != nil {
			panic(fmt.Sprintf("allocator returned a block whose debug margin escapes the heap: %v", marginErr))
		}
		kheap.WriteMagicValue(margin)
	}
	l.ledger.record(addr, layout)
	return addr, nil
}

func (l *Locked) Release(addr int, layout kheap.Layout) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	l.ledger.verify(addr, layout)

	adjusted := layout
	adjusted.Size += kheap.DebugMargin
	l.inner.Release(addr, adjusted)
}

// With runs fn with exclusive access to the wrapped allocator, for compound
// operations that must observe a consistent heap. fn must not call back
// into the wrapper.
func (l *Locked) With(fn func(allocator Allocator)) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	fn(l.inner)
}

func (l *Locked) AllocationCount() int {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	return l.inner.AllocationCount()
}

func (l *Locked) SumFreeSize() int {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	return l.inner.SumFreeSize()
}

func (l *Locked) IsEmpty() bool {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	return l.inner.IsEmpty()
}

func (l *Locked) Validate() error {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	return l.inner.Validate()
}

func (l *Locked) AddStatistics(stats *kheap.Statistics) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	l.inner.AddStatistics(stats)
}

func (l *Locked) AddDetailedStatistics(stats *kheap.DetailedStatistics) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	l.inner.AddDetailedStatistics(stats)
}

func (l *Locked) HeapJsonData(json jwriter.ObjectState) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	l.inner.HeapJsonData(json)
}

// CheckCorruption verifies the corruption-detection markers after every
// outstanding allocation. It only does real work in debug_kheap builds;
// otherwise it returns nil.
func (l *Locked) CheckCorruption() error {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	return l.ledger.checkCorruption(l.inner.Heap())
}

// BuildStatsString writes a JSON snapshot of the heap: the strategy, the
// aggregate statistics and the strategy-specific detail map.
func (l *Locked) BuildStatsString(writer *jwriter.Writer) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	obj := writer.Object()
	defer obj.End()

	obj.Name("Strategy").String(l.inner.Kind().String())

	var stats kheap.DetailedStatistics
	stats.Clear()
	l.inner.AddDetailedStatistics(&stats)

	totals := obj.Name("Totals").Object()
	totals.Name("HeapBytes").Int(stats.HeapBytes)
	totals.Name("AllocationCount").Int(stats.AllocationCount)
	totals.Name("AllocationBytes").Int(stats.AllocationBytes)
	totals.Name("FreeRegionCount").Int(stats.FreeRegionCount)
	if stats.FreeRegionCount > 0 {
		totals.Name("FreeRegionSizeMin").Int(stats.FreeRegionSizeMin)
		totals.Name("FreeRegionSizeMax").Int(stats.FreeRegionSizeMax)
	}
	totals.End()

	heapObj := obj.Name("Heap").Object()
	l.inner.HeapJsonData(heapObj)
	heapObj.End()
}
