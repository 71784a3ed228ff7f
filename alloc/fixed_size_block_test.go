package alloc_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	kheap "github.com/helix-os/kheap"
	"github.com/helix-os/kheap/alloc"
	"github.com/helix-os/kheap/arena"
)

func TestFixedSizeBlockOptions(t *testing.T) {
	_, err := alloc.NewFixedSizeBlockAllocator(nil, alloc.FixedSizeBlockCreateOptions{})
	require.Error(t, err)

	fallback := alloc.NewLinkedListAllocator()

	_, err = alloc.NewFixedSizeBlockAllocator(fallback, alloc.FixedSizeBlockCreateOptions{
		BlockSizes: []int{8, 24, 64},
	})
	require.ErrorIs(t, err, kheap.PowerOfTwoError)

	_, err = alloc.NewFixedSizeBlockAllocator(fallback, alloc.FixedSizeBlockCreateOptions{
		BlockSizes: []int{64, 8},
	})
	require.Error(t, err)

	_, err = alloc.NewFixedSizeBlockAllocator(fallback, alloc.FixedSizeBlockCreateOptions{
		BlockSizes: []int{4, 8},
	})
	require.Error(t, err)

	_, err = alloc.NewFixedSizeBlockAllocator(fallback, alloc.FixedSizeBlockCreateOptions{
		BlockSizes: []int{8, 8, 16},
	})
	require.Error(t, err)

	fsb, err := alloc.NewFixedSizeBlockAllocator(fallback, alloc.FixedSizeBlockCreateOptions{
		BlockSizes: []int{16, 64, 256},
	})
	require.NoError(t, err)
	require.NotNil(t, fsb)
}

func TestFixedSizeBlockReusesFreedBlock(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	heap := arena.New(4096, 4096)
	fallback := NewMockFallbackAllocator(ctrl)
	fallback.EXPECT().Init(heap)

	fsb, err := alloc.NewFixedSizeBlockAllocator(fallback, alloc.FixedSizeBlockCreateOptions{})
	require.NoError(t, err)
	fsb.Init(heap)

	// The empty class-64 bucket pulls exactly one fresh block from the fallback
	layout := kheap.Layout{Size: 40, Align: 8}
	fallback.EXPECT().Allocate(kheap.Layout{Size: 64, Align: 64}).Return(4096, nil)

	addr, err := fsb.Allocate(layout)
	require.NoError(t, err)
	require.Equal(t, 4096, addr)

	fsb.Release(addr, layout)
	require.Equal(t, 1, fsb.FreeBlockCount(3))

	// Reuse must come from the bucket without touching the fallback again
	again, err := fsb.Allocate(kheap.Layout{Size: 64, Align: 1})
	require.NoError(t, err)
	require.Equal(t, addr, again)
	require.Zero(t, fsb.FreeBlockCount(3))
	require.NoError(t, fsb.Validate())
}

func TestFixedSizeBlockOversizedDelegation(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	heap := arena.New(4096, 8192)
	fallback := NewMockFallbackAllocator(ctrl)
	fallback.EXPECT().Init(heap)

	fsb, err := alloc.NewFixedSizeBlockAllocator(fallback, alloc.FixedSizeBlockCreateOptions{})
	require.NoError(t, err)
	fsb.Init(heap)

	// Larger than the biggest class: the original layout goes straight through
	layout := kheap.Layout{Size: 4000, Align: 16}
	fallback.EXPECT().Allocate(layout).Return(4096, nil)

	addr, err := fsb.Allocate(layout)
	require.NoError(t, err)
	require.Equal(t, 4096, addr)

	fallback.EXPECT().Deallocate(4096, layout)
	fsb.Release(addr, layout)
	require.True(t, fsb.IsEmpty())
}

func TestFixedSizeBlockAlignmentSelectsClass(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	heap := arena.New(4096, 4096)
	fallback := NewMockFallbackAllocator(ctrl)
	fallback.EXPECT().Init(heap)

	fsb, err := alloc.NewFixedSizeBlockAllocator(fallback, alloc.FixedSizeBlockCreateOptions{})
	require.NoError(t, err)
	fsb.Init(heap)

	// A small size with a large alignment still lands in the aligned class
	fallback.EXPECT().Allocate(kheap.Layout{Size: 512, Align: 512}).Return(4608, nil)

	addr, err := fsb.Allocate(kheap.Layout{Size: 8, Align: 512})
	require.NoError(t, err)
	require.Equal(t, 4608, addr)
}

func TestFixedSizeBlockFallbackFailurePropagates(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	heap := arena.New(4096, 4096)
	fallback := NewMockFallbackAllocator(ctrl)
	fallback.EXPECT().Init(heap)

	fsb, err := alloc.NewFixedSizeBlockAllocator(fallback, alloc.FixedSizeBlockCreateOptions{})
	require.NoError(t, err)
	fsb.Init(heap)

	fallback.EXPECT().Allocate(gomock.Any()).Return(0, kheap.ErrOutOfMemory).Times(2)

	_, err = fsb.Allocate(kheap.Layout{Size: 32, Align: 8})
	require.ErrorIs(t, err, kheap.ErrOutOfMemory)

	_, err = fsb.Allocate(kheap.Layout{Size: 5000, Align: 8})
	require.ErrorIs(t, err, kheap.ErrOutOfMemory)
	require.True(t, fsb.IsEmpty())
}

func TestFixedSizeBlockWithLinkedListFallback(t *testing.T) {
	fsb, err := alloc.NewFixedSizeBlockAllocator(alloc.NewLinkedListAllocator(), alloc.FixedSizeBlockCreateOptions{})
	require.NoError(t, err)
	fsb.Init(arena.New(4096, 1<<16))

	type block struct {
		addr   int
		layout kheap.Layout
	}
	var live []block

	// Mix of class sizes and one oversized request
	for _, layout := range []kheap.Layout{
		{Size: 5, Align: 1},
		{Size: 8, Align: 8},
		{Size: 100, Align: 8},
		{Size: 2048, Align: 8},
		{Size: 3000, Align: 16},
		{Size: 17, Align: 2},
	} {
		addr, err := fsb.Allocate(layout)
		require.NoError(t, err)
		require.Zero(t, addr%int(layout.Align))
		live = append(live, block{addr: addr, layout: layout})
	}
	require.Equal(t, len(live), fsb.AllocationCount())
	require.NoError(t, fsb.Validate())

	for _, b := range live {
		fsb.Release(b.addr, b.layout)
	}
	require.True(t, fsb.IsEmpty())
	require.NoError(t, fsb.Validate())

	// Freed class blocks are recycled from their buckets
	addr, err := fsb.Allocate(kheap.Layout{Size: 90, Align: 8})
	require.NoError(t, err)
	require.Equal(t, live[2].addr, addr)
}

func TestFixedSizeBlockScenario(t *testing.T) {
	fsb, err := alloc.NewFixedSizeBlockAllocator(alloc.NewLinkedListAllocator(), alloc.FixedSizeBlockCreateOptions{})
	require.NoError(t, err)
	fsb.Init(arena.New(4096, 1024))

	addr, err := fsb.Allocate(kheap.Layout{Size: 100, Align: 8})
	require.NoError(t, err)
	require.Equal(t, 4096, addr)

	_, err = fsb.Allocate(kheap.Layout{Size: 2000, Align: 8})
	require.ErrorIs(t, err, kheap.ErrOutOfMemory)

	fsb.Release(addr, kheap.Layout{Size: 100, Align: 8})

	again, err := fsb.Allocate(kheap.Layout{Size: 100, Align: 8})
	require.NoError(t, err)
	require.Equal(t, addr, again)
}
