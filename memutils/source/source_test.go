package source_test

import (
	"math"
	"testing"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/painlang/memcore/memutils"
	"github.com/painlang/memcore/memutils/source"
	"github.com/stretchr/testify/require"
)

func TestHeapReserveAlignment(t *testing.T) {
	heap := source.NewHeap(0)

	for _, alignment := range []uint{1, 8, 64, 256} {
		block, err := heap.Reserve(100, alignment)
		require.NoError(t, err)
		require.Equal(t, 100, block.Size())
		require.Zero(t, block.Address()%uintptr(alignment))
		require.Len(t, block.Bytes(), 100)
	}

	require.Equal(t, 400, heap.Reserved())
	require.Equal(t, 4, heap.BlockCount())
}

func TestHeapReserveInvalid(t *testing.T) {
	heap := source.NewHeap(0)

	_, err := heap.Reserve(0, 8)
	require.True(t, errors.Is(err, memutils.ErrInvalidSize))

	_, err = heap.Reserve(16, 0)
	require.True(t, errors.Is(err, memutils.ErrInvalidAlignment))

	_, err = heap.Reserve(16, 12)
	require.True(t, errors.Is(err, memutils.PowerOfTwoError))
}

func TestHeapLimit(t *testing.T) {
	heap := source.NewHeap(128)

	first, err := heap.Reserve(100, 8)
	require.NoError(t, err)

	_, err = heap.Reserve(64, 8)
	require.True(t, errors.Is(err, memutils.ErrOutOfMemory))

	require.NoError(t, heap.Release(first))
	require.Zero(t, heap.Reserved())

	_, err = heap.Reserve(64, 8)
	require.NoError(t, err)
}

func TestReserveHugeRequests(t *testing.T) {
	sources := map[string]source.Source{
		"Heap": source.NewHeap(0),
		"Mmap": source.NewMmap(),
	}

	testCases := map[string]struct {
		size      int
		alignment uint
	}{
		"OverLimit":      {size: int(source.MaxReserveSize) + 1, alignment: 8},
		"HugeSize":       {size: 1 << 50, alignment: 8},
		"MaxInt":         {size: math.MaxInt, alignment: 8},
		"HugeAlignment":  {size: 64, alignment: 1 << 50},
		"MaxIntAndAlign": {size: math.MaxInt, alignment: 1 << 62},
	}

	for sourceName, src := range sources {
		for name, testCase := range testCases {
			t.Run(sourceName+name, func(t *testing.T) {
				var block *source.Block
				var err error
				require.NotPanics(t, func() {
					block, err = src.Reserve(testCase.size, testCase.alignment)
				})
				require.Nil(t, block)
				require.True(t, errors.Is(err, memutils.ErrOutOfMemory))
			})
		}
	}
}

func TestReleaseTwice(t *testing.T) {
	heap := source.NewHeap(0)

	block, err := heap.Reserve(32, 8)
	require.NoError(t, err)

	require.NoError(t, heap.Release(block))
	require.True(t, block.Released())
	require.Nil(t, block.Bytes())

	err = heap.Release(block)
	require.True(t, errors.Is(err, memutils.ErrReleased))
	require.Zero(t, heap.BlockCount())
}

func TestBlockContains(t *testing.T) {
	heap := source.NewHeap(0)
	block, err := heap.Reserve(64, 8)
	require.NoError(t, err)

	require.True(t, block.Contains(block.Pointer()))
	require.True(t, block.Contains(unsafe.Add(block.Pointer(), 63)))
	require.False(t, block.Contains(unsafe.Add(block.Pointer(), 64)))
	require.Equal(t, 10, block.Offset(unsafe.Add(block.Pointer(), 10)))
}

func TestMmapRoundTrip(t *testing.T) {
	mmap := source.NewMmap()

	block, err := mmap.Reserve(10000, 64)
	require.NoError(t, err)
	require.Zero(t, block.Address()%64)

	data := block.Bytes()
	for i := range data {
		data[i] = byte(i)
	}
	require.Equal(t, byte(255), data[255])
	require.Equal(t, 10000, mmap.Reserved())

	require.NoError(t, mmap.Release(block))
	require.Zero(t, mmap.Reserved())
	require.True(t, errors.Is(mmap.Release(block), memutils.ErrReleased))
}
