package rt

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/painlang/memcore/memutils/source"
	"github.com/painlang/memcore/value"
	"github.com/stretchr/testify/require"
)

func TestRuntimeDefaults(t *testing.T) {
	runtime, err := New(nil, CreateOptions{})
	require.NoError(t, err)
	defer func() { require.NoError(t, runtime.Destroy()) }()

	used, capacity := runtime.MemoryStats()
	require.Zero(t, used)
	require.Equal(t, 1024*1024, capacity)
	require.Zero(t, runtime.GCStats().ObjectCount)
	require.True(t, runtime.mutex.UseMutex)
}

func TestRuntimeArenaAllocation(t *testing.T) {
	runtime, err := New(nil, CreateOptions{ArenaSize: 4096})
	require.NoError(t, err)

	_, err = runtime.Allocate(200, 8)
	require.NoError(t, err)
	_, err = runtime.Allocate(300, 8)
	require.NoError(t, err)

	used, capacity := runtime.MemoryStats()
	require.Equal(t, 500, used)
	require.Equal(t, 4096, capacity)

	// small requests are served by the pools and do not show up in the linear totals
	small, err := runtime.Allocate(16, 8)
	require.NoError(t, err)
	used, _ = runtime.MemoryStats()
	require.Equal(t, 500, used)
	require.NoError(t, runtime.Deallocate(small, 16))

	runtime.Reset()
	used, capacity = runtime.MemoryStats()
	require.Zero(t, used)
	require.Equal(t, 4096, capacity)
	require.NoError(t, runtime.Validate())
}

func TestRuntimeWithoutPools(t *testing.T) {
	runtime, err := New(nil, CreateOptions{
		Flags:     CreateDisableArenaPools,
		ArenaSize: 1024,
	})
	require.NoError(t, err)

	_, err = runtime.Allocate(16, 8)
	require.NoError(t, err)
	_, err = runtime.Allocate(32, 8)
	require.NoError(t, err)

	used, _ := runtime.MemoryStats()
	require.Equal(t, 48, used)
}

func TestRuntimeCollection(t *testing.T) {
	runtime, err := New(nil, CreateOptions{GCThreshold: 1024})
	require.NoError(t, err)

	obj1, err := runtime.AllocateObject(64)
	require.NoError(t, err)
	_, err = runtime.AllocateObject(128)
	require.NoError(t, err)

	runtime.AddRoot(obj1)
	runtime.GCCollect()

	stats := runtime.GCStats()
	require.Equal(t, 1, stats.ObjectCount)
	require.Equal(t, 1, stats.LiveCount)
	require.Zero(t, runtime.CollectGarbage())

	runtime.RemoveRoot(obj1)
	require.Equal(t, stats.TotalBytes, runtime.CollectGarbage())
	require.Zero(t, runtime.GCStats().TotalBytes)
}

func TestRuntimeConcurrentUse(t *testing.T) {
	runtime, err := New(nil, CreateOptions{})
	require.NoError(t, err)

	const workers = 8
	const iterations = 100

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < iterations; j++ {
				_, err := runtime.Allocate(256, 8)
				require.NoError(t, err)

				obj, err := runtime.AllocateObject(32)
				require.NoError(t, err)
				if j%2 == 0 {
					runtime.AddRoot(obj)
				}
				_ = runtime.GCStats()
			}
		}()
	}
	wg.Wait()

	used, _ := runtime.MemoryStats()
	require.Equal(t, workers*iterations*256, used)

	runtime.GCCollect()
	stats := runtime.GCStats()
	require.Equal(t, workers*iterations/2, stats.ObjectCount)
	require.Equal(t, workers*iterations/2, stats.LiveCount)
	require.NoError(t, runtime.Validate())
}

func TestRuntimeExternallySynchronized(t *testing.T) {
	runtime, err := New(nil, CreateOptions{Flags: CreateExternallySynchronized})
	require.NoError(t, err)
	require.False(t, runtime.mutex.UseMutex)

	_, err = runtime.Allocate(512, 16)
	require.NoError(t, err)
	used, _ := runtime.MemoryStats()
	require.Equal(t, 512, used)
}

func TestRuntimeSharedSource(t *testing.T) {
	heap := source.NewHeap(0)
	runtime, err := New(nil, CreateOptions{
		ArenaSize:         2048,
		ArenaPoolSizes:    []int{16},
		ArenaPoolCapacity: 4,
		Source:            heap,
	})
	require.NoError(t, err)

	// one linear allocator and one pool
	require.Equal(t, 2, heap.BlockCount())

	_, err = runtime.AllocateObject(10)
	require.NoError(t, err)
	require.Equal(t, 3, heap.BlockCount())

	require.NoError(t, runtime.Destroy())
	require.Zero(t, heap.BlockCount())
	require.Zero(t, heap.Reserved())
}

func TestRuntimeArenaFailure(t *testing.T) {
	_, err := New(nil, CreateOptions{
		ArenaSize: 1024,
		Source:    source.NewHeap(512),
	})
	require.Error(t, err)
}

func TestRuntimeMemoryReport(t *testing.T) {
	runtime, err := New(nil, CreateOptions{ArenaSize: 1024})
	require.NoError(t, err)

	_, err = runtime.Allocate(256, 8)
	require.NoError(t, err)
	obj, err := runtime.AllocateObject(8)
	require.NoError(t, err)
	runtime.AddRoot(obj)
	runtime.GCCollect()

	report, ok := runtime.MemoryReport().AsInstance()
	require.True(t, ok)
	require.Equal(t, "MemoryReport", report.ClassName)

	expected := map[string]int64{
		"arena_used":       256,
		"arena_capacity":   1024,
		"arena_allocators": 1,
		"gc_objects":       1,
		"gc_live":          1,
		"gc_cycles":        1,
	}
	for name, want := range expected {
		field, ok := report.Field(name)
		require.True(t, ok, name)
		require.True(t, field.Equal(value.Int(want)), name)
	}

	gcBytes, ok := report.Field("gc_bytes")
	require.True(t, ok)
	bytes, ok := gcBytes.AsInt()
	require.True(t, ok)
	require.Equal(t, int64(runtime.GCStats().TotalBytes), bytes)
}

func TestRuntimePrintDetailedMap(t *testing.T) {
	runtime, err := New(nil, CreateOptions{ArenaSize: 1024})
	require.NoError(t, err)

	_, err = runtime.Allocate(300, 8)
	require.NoError(t, err)
	_, err = runtime.AllocateObject(24)
	require.NoError(t, err)

	writer := jwriter.NewWriter()
	runtime.PrintDetailedMap(&writer)
	require.NoError(t, writer.Error())

	var out struct {
		Arena struct {
			AllocatorSize int
			Allocators    []struct{ Used int }
		}
		Collector struct {
			ObjectCount int
		}
	}
	require.NoError(t, json.Unmarshal(writer.Bytes(), &out))
	require.Equal(t, 1024, out.Arena.AllocatorSize)
	require.Len(t, out.Arena.Allocators, 1)
	require.Equal(t, 300, out.Arena.Allocators[0].Used)
	require.Equal(t, 1, out.Collector.ObjectCount)
}

func TestCreateFlagsString(t *testing.T) {
	require.Equal(t, "CreateDisableArenaPools", CreateDisableArenaPools.String())

	combined := (CreateExternallySynchronized | CreateMmapBacked).String()
	require.Contains(t, combined, "CreateExternallySynchronized")
	require.Contains(t, combined, "CreateMmapBacked")
	require.NotContains(t, combined, "CreateDisableArenaPools")
}
