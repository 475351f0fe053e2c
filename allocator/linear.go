// Package allocator contains the two leaf allocation strategies used by the arena: a linear (bump)
// allocator that only supports whole-block reset, and a block pool of fixed-size slots with O(1)
// allocate and deallocate.
//
// Neither type performs any internal synchronization. Every method that mutates state requires
// exclusive access to the allocator for the duration of the call.
package allocator

import (
	"unsafe"

	cerrors "github.com/cockroachdb/errors"
	"github.com/painlang/memcore/memutils"
	"github.com/painlang/memcore/memutils/source"
	"github.com/pkg/errors"
)

// linearBlockAlignment is the alignment of every linear allocator's backing block
const linearBlockAlignment uint = 8

// Linear hands out successive aligned sub-ranges of a single block by advancing a cursor.
// Individual allocations are never freed; Reset rewinds the cursor to the start of the block.
type Linear struct {
	source source.Source
	block  *source.Block

	start   uintptr
	current uintptr
	end     uintptr

	allocationCount int
}

// NewLinear reserves a block of exactly size bytes, aligned to 8, from src
func NewLinear(src source.Source, size int) (*Linear, error) {
	if size <= 0 {
		return nil, cerrors.Wrapf(memutils.ErrInvalidSize, "linear allocator of %d bytes", size)
	}

	block, err := src.Reserve(size, linearBlockAlignment)
	if err != nil {
		return nil, cerrors.Wrapf(err, "failed to reserve %d bytes for linear allocator", size)
	}

	return &Linear{
		source:  src,
		block:   block,
		start:   block.Address(),
		current: block.Address(),
		end:     block.Address() + uintptr(size),
	}, nil
}

// Allocate returns size bytes aligned to align and advances the cursor past them. Power-of-two
// alignments take a bit-mask fast path; any other nonzero alignment is honored with a modulo.
// When the block cannot fit the request, memutils.ErrOutOfMemory is returned and the cursor is
// left untouched.
func (l *Linear) Allocate(size int, align uint) (unsafe.Pointer, error) {
	if l.block == nil {
		return nil, memutils.ErrReleased
	}
	if size < 0 {
		return nil, cerrors.Wrapf(memutils.ErrInvalidSize, "requested %d bytes", size)
	}
	if align == 0 {
		return nil, memutils.ErrInvalidAlignment
	}

	aligned := memutils.AlignAddress(l.current, align)
	// overflow guard for pathological alignments near the top of the address space
	if aligned < l.current || aligned > l.end || uintptr(size) > l.end-aligned {
		return nil, memutils.ErrOutOfMemory
	}

	offset := int(aligned - l.start)
	l.current = aligned + uintptr(size)
	l.allocationCount++

	return unsafe.Add(l.block.Pointer(), offset), nil
}

// Reset rewinds the cursor to the start of the block. Every pointer previously returned by Allocate
// is invalid afterward; the caller must ensure none of them are still in use.
func (l *Linear) Reset() {
	l.current = l.start
	l.allocationCount = 0
}

// Used returns the number of bytes between the start of the block and the cursor, alignment
// padding included
func (l *Linear) Used() int { return int(l.current - l.start) }

// Capacity returns the size in bytes of the block
func (l *Linear) Capacity() int { return int(l.end - l.start) }

// Available returns the number of bytes between the cursor and the end of the block
func (l *Linear) Available() int { return int(l.end - l.current) }

// AllocationCount returns the number of allocations made since construction or the last Reset
func (l *Linear) AllocationCount() int { return l.allocationCount }

// Contains returns true if ptr lies within the allocator's block
func (l *Linear) Contains(ptr unsafe.Pointer) bool {
	addr := uintptr(ptr)
	return l.block != nil && addr >= l.start && addr < l.end
}

// Release returns the backing block to its source. The allocator cannot be used afterward.
func (l *Linear) Release() error {
	if l.block == nil {
		return memutils.ErrReleased
	}

	err := l.source.Release(l.block)
	l.block = nil
	l.current = l.start
	l.allocationCount = 0
	return err
}

// AddStatistics sums this allocator's block and usage into stats
func (l *Linear) AddStatistics(stats *memutils.Statistics) {
	if l.block == nil {
		return
	}

	stats.BlockCount++
	stats.BlockBytes += l.Capacity()
	stats.AllocationCount += l.allocationCount
	stats.AllocationBytes += l.Used()
}

// Validate checks that the cursor lies inside the block
func (l *Linear) Validate() error {
	if l.block == nil {
		return nil
	}

	if l.block.Released() {
		return errors.New("linear allocator's block was released behind its back")
	}

	if l.start != l.block.Address() || l.end-l.start != uintptr(l.block.Size()) {
		return errors.Errorf("linear allocator bounds [%#x, %#x) do not match its block at %#x of %d bytes", l.start, l.end, l.block.Address(), l.block.Size())
	}

	if l.current < l.start || l.current > l.end {
		return errors.Errorf("linear allocator cursor %#x is outside of [%#x, %#x]", l.current, l.start, l.end)
	}

	if l.allocationCount == 0 && l.current != l.start {
		return errors.New("linear allocator has consumed bytes but recorded no allocations")
	}

	return nil
}
