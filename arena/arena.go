// Package arena composes block pools and a growable chain of linear allocators behind a single
// allocation API. Small requests are served from fixed-size pools, everything else is bump
// allocated, and the chain grows geometrically when the current linear allocator runs dry.
package arena

import (
	"context"
	"fmt"
	"unsafe"

	cerrors "github.com/cockroachdb/errors"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/painlang/memcore/allocator"
	"github.com/painlang/memcore/memutils"
	"github.com/painlang/memcore/memutils/source"
	"github.com/pkg/errors"
	"golang.org/x/exp/slog"
)

// Arena routes allocations between its pools and its linear allocators. It performs no internal
// synchronization: callers must serialize every call into a given Arena.
type Arena struct {
	logger *slog.Logger
	source source.Source
	flags  CreateFlags

	allocators    []*allocator.Linear
	current       int
	allocatorSize int

	pools []*allocator.Pool
}

// Allocate returns size bytes aligned to align.
//
// The first pool whose block size is at least size and a multiple of align is tried. If it has
// no free slot, the request falls through to the current linear allocator. An exhausted linear
// allocator hands over to the next one already in the chain, and once the chain is exhausted a new
// allocator of max(AllocatorSize, 2*size) bytes is appended and made current. Requests larger than
// half of AllocatorSize may be served by a later allocator without making it current.
func (a *Arena) Allocate(size int, align uint) (unsafe.Pointer, error) {
	if size < 0 {
		return nil, cerrors.Wrapf(memutils.ErrInvalidSize, "requested %d bytes", size)
	}
	if align == 0 {
		return nil, memutils.ErrInvalidAlignment
	}
	if len(a.allocators) == 0 {
		return nil, memutils.ErrReleased
	}

	if pool := a.matchPool(size, align); pool != nil {
		ptr, err := pool.Allocate()
		if err == nil {
			return ptr, nil
		}
		if !cerrors.Is(err, memutils.ErrPoolEmpty) {
			return nil, err
		}
	}

	// oversized requests leave the cursor on allocators that still have room for smaller ones
	oversized := size > a.allocatorSize/2
	for index := a.current; index < len(a.allocators); index++ {
		ptr, err := a.allocators[index].Allocate(size, align)
		if err == nil {
			if !oversized {
				a.current = index
			}
			return ptr, nil
		}
		if !cerrors.Is(err, memutils.ErrOutOfMemory) {
			return nil, err
		}
	}

	return a.grow(size, align)
}

// matchPool returns the first pool that can hold size bytes at align, or nil. The first match wins
// even when a later, tighter pool exists.
func (a *Arena) matchPool(size int, align uint) *allocator.Pool {
	for _, pool := range a.pools {
		if pool.BlockSize() >= size && pool.BlockSize()%int(align) == 0 {
			return pool
		}
	}
	return nil
}

func (a *Arena) grow(size int, align uint) (unsafe.Pointer, error) {
	if uint64(size) > source.MaxReserveSize || uint64(align) > source.MaxReserveSize {
		return nil, cerrors.Wrapf(memutils.ErrOutOfMemory, "arena cannot grow to hold %d bytes aligned to %d", size, align)
	}

	newSize := max(a.allocatorSize, size*2)
	// alignments larger than the block alignment may need padding that 2*size does not cover
	if align > 8 {
		newSize = max(newSize, size+int(align)-1)
	}

	linear, err := allocator.NewLinear(a.source, newSize)
	if err != nil {
		return nil, cerrors.Mark(cerrors.Wrapf(err, "arena failed to grow by %d bytes", newSize), memutils.ErrOutOfMemory)
	}

	ptr, err := linear.Allocate(size, align)
	if err != nil {
		releaseErr := linear.Release()
		return nil, cerrors.CombineErrors(cerrors.Wrapf(err, "new %d byte linear allocator", newSize), releaseErr)
	}

	a.allocators = append(a.allocators, linear)
	a.current = len(a.allocators) - 1

	a.logger.Debug("Arena::grow",
		slog.Int("Size", newSize),
		slog.Int("Request", size),
		slog.Int("AllocatorCount", len(a.allocators)))

	return ptr, nil
}

// Deallocate hands a pool slot back to the pool whose block size is exactly size. Memory from the
// linear allocators cannot be freed individually, so an address inside one of them, or a size with
// no pool, is a no-op; that memory is reclaimed in bulk by Reset.
func (a *Arena) Deallocate(ptr unsafe.Pointer, size int) error {
	// a request that fell through a full pool was bump allocated
	for _, linear := range a.allocators {
		if linear.Contains(ptr) {
			return nil
		}
	}

	for _, pool := range a.pools {
		if pool.BlockSize() == size {
			return pool.Deallocate(ptr)
		}
	}

	return nil
}

// Reset rewinds every linear allocator without releasing its memory. Pools are left alone: their
// slots are returned through Deallocate.
func (a *Arena) Reset() {
	for _, linear := range a.allocators {
		linear.Reset()
	}
	a.current = 0
}

// TotalUsed sums the bytes used across the linear allocators. Pool slots are not included; see
// PoolStatistics.
func (a *Arena) TotalUsed() int {
	var total int
	for _, linear := range a.allocators {
		total += linear.Used()
	}
	return total
}

// TotalCapacity sums the capacity of the linear allocators. Pool blocks are not included; see
// PoolStatistics.
func (a *Arena) TotalCapacity() int {
	var total int
	for _, linear := range a.allocators {
		total += linear.Capacity()
	}
	return total
}

// AllocatorCount returns the number of linear allocators in the chain
func (a *Arena) AllocatorCount() int { return len(a.allocators) }

// PoolBlockSizes returns the block size of every pool, in routing order
func (a *Arena) PoolBlockSizes() []int {
	sizes := make([]int, 0, len(a.pools))
	for _, pool := range a.pools {
		sizes = append(sizes, pool.BlockSize())
	}
	return sizes
}

// Statistics summarizes the linear allocator tier
func (a *Arena) Statistics() memutils.Statistics {
	var stats memutils.Statistics
	for _, linear := range a.allocators {
		linear.AddStatistics(&stats)
	}
	return stats
}

// PoolStatistics summarizes the pool tier
func (a *Arena) PoolStatistics() memutils.Statistics {
	var stats memutils.Statistics
	for _, pool := range a.pools {
		pool.AddStatistics(&stats)
	}
	return stats
}

// Destroy releases every backing block. Outstanding pool slots are logged as unreleased memory;
// they are invalidated along with their pool regardless.
func (a *Arena) Destroy() error {
	var err error

	for _, pool := range a.pools {
		if pool.AllocatedCount() > 0 {
			a.logUnreleasedSlots(pool)
		}
		err = cerrors.CombineErrors(err, pool.Release())
	}

	for _, linear := range a.allocators {
		err = cerrors.CombineErrors(err, linear.Release())
	}

	a.pools = nil
	a.allocators = nil
	a.current = 0
	return err
}

func (a *Arena) logUnreleasedSlots(pool *allocator.Pool) {
	pool.VisitAllocated(func(ptr unsafe.Pointer) {
		a.logger.LogAttrs(context.Background(), slog.LevelError, "[UNRELEASED MEMORY] unfreed pool slot",
			slog.String("address", fmt.Sprintf("%p", ptr)),
			slog.Int("size", pool.BlockSize()),
		)
	})
}

// Validate checks the consistency of every allocator and pool in the arena
func (a *Arena) Validate() error {
	if len(a.allocators) == 0 {
		return errors.New("arena has no linear allocators")
	}

	if a.current < 0 || a.current >= len(a.allocators) {
		return errors.Errorf("arena current allocator index %d is out of range for %d allocators", a.current, len(a.allocators))
	}

	for index, linear := range a.allocators {
		if err := linear.Validate(); err != nil {
			return cerrors.Wrapf(err, "linear allocator %d", index)
		}
	}

	for _, pool := range a.pools {
		if err := pool.Validate(); err != nil {
			return cerrors.Wrapf(err, "pool of %d byte blocks", pool.BlockSize())
		}
	}

	return nil
}

// PrintDetailedMap writes a json description of every allocator and pool in the arena
func (a *Arena) PrintDetailedMap(writer *jwriter.Writer) {
	objState := writer.Object()
	defer objState.End()

	objState.Name("AllocatorSize").Int(a.allocatorSize)
	objState.Name("CurrentAllocator").Int(a.current)

	allocators := objState.Name("Allocators").Array()
	for index, linear := range a.allocators {
		obj := allocators.Object()
		obj.Name("Index").Int(index)
		obj.Name("Capacity").Int(linear.Capacity())
		obj.Name("Used").Int(linear.Used())
		obj.Name("Allocations").Int(linear.AllocationCount())
		obj.End()
	}
	allocators.End()

	pools := objState.Name("Pools").Array()
	for _, pool := range a.pools {
		obj := pools.Object()
		obj.Name("BlockSize").Int(pool.BlockSize())
		obj.Name("Capacity").Int(pool.Capacity())
		obj.Name("Allocated").Int(pool.AllocatedCount())
		obj.Name("Free").Int(pool.FreeCount())
		obj.End()
	}
	pools.End()

	linearStats := a.Statistics()
	linearObj := objState.Name("LinearTotals").Object()
	linearStats.WriteJSON(&linearObj)
	linearObj.End()

	poolStats := a.PoolStatistics()
	poolObj := objState.Name("PoolTotals").Object()
	poolStats.WriteJSON(&poolObj)
	poolObj.End()
}
