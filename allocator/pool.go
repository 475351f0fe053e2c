package allocator

import (
	"unsafe"

	cerrors "github.com/cockroachdb/errors"
	"github.com/painlang/memcore/memutils"
	"github.com/painlang/memcore/memutils/source"
	"github.com/pkg/errors"
)

// Pool partitions a single block into fixed-size slots. Free slots are kept on a stack of slot
// indices, so both Allocate and Deallocate are O(1).
type Pool struct {
	source source.Source
	block  *source.Block

	blockSize int
	capacity  int

	// freeList holds the indices of free slots; the top of the stack is handed out next
	freeList []int
	// allocated tracks which slots are outstanding so a slot cannot be handed back twice
	allocated []bool
}

// NewPool reserves capacity slots of blockSize bytes. blockSize is rounded up to the next power of
// two and the block is aligned to it, so every slot is aligned to its own size.
func NewPool(src source.Source, blockSize, capacity int) (*Pool, error) {
	if blockSize <= 0 {
		return nil, cerrors.Wrapf(memutils.ErrInvalidSize, "pool block size %d", blockSize)
	}
	if capacity <= 0 {
		return nil, cerrors.Wrapf(memutils.ErrInvalidSize, "pool capacity %d", capacity)
	}

	if uint64(blockSize) > source.MaxReserveSize {
		return nil, cerrors.Wrapf(memutils.ErrOutOfMemory, "pool block size %d", blockSize)
	}
	blockSize = memutils.NextPow2(blockSize)
	if uint64(capacity) > source.MaxReserveSize/uint64(blockSize) {
		return nil, cerrors.Wrapf(memutils.ErrOutOfMemory, "%d slots of %d bytes", capacity, blockSize)
	}

	block, err := src.Reserve(blockSize*capacity, uint(blockSize))
	if err != nil {
		return nil, cerrors.Wrapf(err, "failed to reserve %d slots of %d bytes", capacity, blockSize)
	}

	pool := &Pool{
		source:    src,
		block:     block,
		blockSize: blockSize,
		capacity:  capacity,
		freeList:  make([]int, capacity),
		allocated: make([]bool, capacity),
	}

	// lowest slot on top of the stack
	for i := range pool.freeList {
		pool.freeList[i] = capacity - 1 - i
	}

	return pool, nil
}

// Allocate pops a free slot. memutils.ErrPoolEmpty is returned when every slot is outstanding.
func (p *Pool) Allocate() (unsafe.Pointer, error) {
	if p.block == nil {
		return nil, memutils.ErrReleased
	}

	top := len(p.freeList) - 1
	if top < 0 {
		return nil, memutils.ErrPoolEmpty
	}

	slot := p.freeList[top]
	p.freeList = p.freeList[:top]
	p.allocated[slot] = true

	return unsafe.Add(p.block.Pointer(), slot*p.blockSize), nil
}

// Deallocate returns a slot to the free list. Addresses outside the pool, addresses that do not
// sit on a slot boundary and slots that are already free are rejected without changing the pool.
func (p *Pool) Deallocate(ptr unsafe.Pointer) error {
	slot, err := p.slotIndex(ptr)
	if err != nil {
		return err
	}

	if !p.allocated[slot] {
		return cerrors.Wrapf(memutils.ErrDoubleFree, "slot %d of pool with %d byte blocks", slot, p.blockSize)
	}

	p.allocated[slot] = false
	p.freeList = append(p.freeList, slot)

	memutils.DebugValidate(p)
	return nil
}

func (p *Pool) slotIndex(ptr unsafe.Pointer) (int, error) {
	if p.block == nil {
		return 0, memutils.ErrReleased
	}

	if !p.block.Contains(ptr) {
		return 0, cerrors.Wrapf(memutils.ErrForeignAddress, "%p is outside of pool [%#x, %#x)", ptr, p.block.Address(), p.block.Address()+uintptr(p.block.Size()))
	}

	offset := p.block.Offset(ptr)
	if offset%p.blockSize != 0 {
		return 0, cerrors.Wrapf(memutils.ErrMisalignedAddress, "offset %d in pool with %d byte blocks", offset, p.blockSize)
	}

	return offset / p.blockSize, nil
}

// Owns returns true if ptr is the start of one of this pool's slots, free or not
func (p *Pool) Owns(ptr unsafe.Pointer) bool {
	_, err := p.slotIndex(ptr)
	return err == nil
}

// BlockSize returns the size in bytes of each slot
func (p *Pool) BlockSize() int { return p.blockSize }

// Capacity returns the total number of slots
func (p *Pool) Capacity() int { return p.capacity }

// FreeCount returns the number of slots available to Allocate
func (p *Pool) FreeCount() int { return len(p.freeList) }

// AllocatedCount returns the number of outstanding slots
func (p *Pool) AllocatedCount() int { return p.capacity - len(p.freeList) }

// VisitAllocated calls visit with the address of every outstanding slot, in address order
func (p *Pool) VisitAllocated(visit func(ptr unsafe.Pointer)) {
	if p.block == nil {
		return
	}

	for slot, outstanding := range p.allocated {
		if outstanding {
			visit(unsafe.Add(p.block.Pointer(), slot*p.blockSize))
		}
	}
}

// Release returns the pool's block to its source, invalidating every slot whether it is free or not
func (p *Pool) Release() error {
	if p.block == nil {
		return memutils.ErrReleased
	}

	err := p.source.Release(p.block)
	p.block = nil
	p.freeList = nil
	p.allocated = nil
	return err
}

// AddStatistics sums this pool's block and outstanding slots into stats
func (p *Pool) AddStatistics(stats *memutils.Statistics) {
	if p.block == nil {
		return
	}

	stats.BlockCount++
	stats.BlockBytes += p.blockSize * p.capacity
	stats.AllocationCount += p.AllocatedCount()
	stats.AllocationBytes += p.AllocatedCount() * p.blockSize
}

// Validate checks that the free list and the outstanding-slot table agree
func (p *Pool) Validate() error {
	if p.block == nil {
		return nil
	}

	if err := memutils.CheckPow2(p.blockSize, "pool block size"); err != nil {
		return err
	}

	if p.block.Size() != p.blockSize*p.capacity {
		return errors.Errorf("pool block is %d bytes but %d slots of %d bytes were expected", p.block.Size(), p.capacity, p.blockSize)
	}

	if len(p.freeList) > p.capacity {
		return errors.Errorf("pool free list holds %d slots but the pool only has %d", len(p.freeList), p.capacity)
	}

	seen := make([]bool, p.capacity)
	for _, slot := range p.freeList {
		if slot < 0 || slot >= p.capacity {
			return errors.Errorf("pool free list contains out of range slot %d", slot)
		}
		if seen[slot] {
			return errors.Errorf("slot %d appears in the pool free list more than once", slot)
		}
		if p.allocated[slot] {
			return errors.Errorf("slot %d is in the pool free list but is marked as allocated", slot)
		}
		seen[slot] = true
	}

	var outstanding int
	for _, allocated := range p.allocated {
		if allocated {
			outstanding++
		}
	}

	if outstanding+len(p.freeList) != p.capacity {
		return errors.Errorf("pool has %d outstanding and %d free slots, expected %d in total", outstanding, len(p.freeList), p.capacity)
	}

	return nil
}
