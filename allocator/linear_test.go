package allocator_test

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/painlang/memcore/allocator"
	"github.com/painlang/memcore/memutils"
	"github.com/painlang/memcore/memutils/source"
	"github.com/stretchr/testify/require"
)

func TestLinearAllocateAndReset(t *testing.T) {
	linear, err := allocator.NewLinear(source.NewHeap(0), 1024)
	require.NoError(t, err)
	require.Equal(t, 1024, linear.Capacity())

	ptr1, err := linear.Allocate(16, 8)
	require.NoError(t, err)
	require.NotNil(t, ptr1)
	require.Equal(t, 16, linear.Used())

	ptr2, err := linear.Allocate(32, 8)
	require.NoError(t, err)
	require.Equal(t, 48, linear.Used())
	require.Equal(t, uintptr(16), uintptr(ptr2)-uintptr(ptr1))
	require.NoError(t, linear.Validate())

	linear.Reset()
	require.Zero(t, linear.Used())
	require.Zero(t, linear.AllocationCount())

	ptr3, err := linear.Allocate(16, 8)
	require.NoError(t, err)
	require.Equal(t, ptr1, ptr3)
}

func TestLinearAlignment(t *testing.T) {
	testCases := []struct {
		name  string
		align uint
	}{
		{name: "byte", align: 1},
		{name: "word", align: 8},
		{name: "cacheline", align: 64},
		{name: "odd", align: 3},
		{name: "non-power-of-two", align: 24},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			linear, err := allocator.NewLinear(source.NewHeap(0), 4096)
			require.NoError(t, err)

			// knock the cursor off alignment first
			_, err = linear.Allocate(5, 1)
			require.NoError(t, err)

			before := linear.Used()
			ptr, err := linear.Allocate(10, testCase.align)
			require.NoError(t, err)
			require.Zero(t, uintptr(ptr)%uintptr(testCase.align))

			require.GreaterOrEqual(t, linear.Used(), before+10)
			require.Less(t, linear.Used(), before+10+int(testCase.align))
			require.True(t, linear.Contains(ptr))
		})
	}
}

func TestLinearOutOfMemory(t *testing.T) {
	linear, err := allocator.NewLinear(source.NewHeap(0), 64)
	require.NoError(t, err)

	_, err = linear.Allocate(60, 8)
	require.NoError(t, err)

	_, err = linear.Allocate(8, 8)
	require.True(t, errors.Is(err, memutils.ErrOutOfMemory))
	require.Equal(t, 60, linear.Used())

	// exactly filling the block is fine
	_, err = linear.Allocate(4, 1)
	require.NoError(t, err)
	require.Zero(t, linear.Available())
}

func TestLinearInvalidParameters(t *testing.T) {
	_, err := allocator.NewLinear(source.NewHeap(0), 0)
	require.True(t, errors.Is(err, memutils.ErrInvalidSize))

	linear, err := allocator.NewLinear(source.NewHeap(0), 64)
	require.NoError(t, err)

	_, err = linear.Allocate(8, 0)
	require.True(t, errors.Is(err, memutils.ErrInvalidAlignment))

	_, err = linear.Allocate(-1, 8)
	require.True(t, errors.Is(err, memutils.ErrInvalidSize))
	require.Zero(t, linear.Used())
}

func TestLinearSourceFailure(t *testing.T) {
	_, err := allocator.NewLinear(source.NewHeap(32), 64)
	require.True(t, errors.Is(err, memutils.ErrOutOfMemory))
}

func TestLinearRelease(t *testing.T) {
	heap := source.NewHeap(0)
	linear, err := allocator.NewLinear(heap, 256)
	require.NoError(t, err)
	require.Equal(t, 256, heap.Reserved())

	require.NoError(t, linear.Release())
	require.Zero(t, heap.Reserved())

	require.True(t, errors.Is(linear.Release(), memutils.ErrReleased))
	_, err = linear.Allocate(8, 8)
	require.True(t, errors.Is(err, memutils.ErrReleased))
}

func TestLinearStatistics(t *testing.T) {
	linear, err := allocator.NewLinear(source.NewHeap(0), 512)
	require.NoError(t, err)

	_, err = linear.Allocate(100, 1)
	require.NoError(t, err)
	_, err = linear.Allocate(8, 8)
	require.NoError(t, err)

	var stats memutils.Statistics
	linear.AddStatistics(&stats)
	require.Equal(t, memutils.Statistics{
		BlockCount:      1,
		BlockBytes:      512,
		AllocationCount: 2,
		AllocationBytes: 112,
	}, stats)
}
