// Package source supplies the raw memory that allocators and the collector carve up. A Source hands
// out Blocks: contiguous, aligned byte ranges whose lifetime is controlled explicitly by the consumer
// instead of by the Go garbage collector's view of reachability.
package source

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/painlang/memcore/memutils"
)

// MaxReserveSize is the largest size or alignment a Source will attempt to reserve. Larger requests
// fail with memutils.ErrOutOfMemory without touching the host.
const MaxReserveSize uint64 = 1 << 47

//go:generate mockgen -source source.go -destination ./mocks/source.go -package mock_source

// Source reserves and releases raw memory blocks. Implementations are not safe for concurrent use.
type Source interface {
	// Reserve returns a block of exactly size usable bytes whose first byte is aligned to alignment.
	// alignment must be a power of two. When the request cannot be satisfied, the returned error
	// matches memutils.ErrOutOfMemory.
	Reserve(size int, alignment uint) (*Block, error)
	// Release returns a block's memory to the source. Releasing the same block twice returns an error
	// matching memutils.ErrReleased.
	Release(block *Block) error
}

// Block is a contiguous range of memory reserved from a Source
type Block struct {
	ptr  unsafe.Pointer
	size int

	// backing is the full reservation; ptr points somewhere inside it after alignment
	backing  []byte
	released bool
}

// NewBlock wraps an existing aligned byte range. Sources built outside this package use it to hand
// out memory they obtained themselves.
func NewBlock(backing []byte, offset, size int) *Block {
	return &Block{
		ptr:     unsafe.Add(unsafe.Pointer(unsafe.SliceData(backing)), offset),
		size:    size,
		backing: backing,
	}
}

// Pointer returns the first usable byte of the block
func (b *Block) Pointer() unsafe.Pointer { return b.ptr }

// Address returns the numeric address of the first usable byte of the block
func (b *Block) Address() uintptr { return uintptr(b.ptr) }

// Size returns the number of usable bytes in the block
func (b *Block) Size() int { return b.size }

// Released returns true once the block has been handed back to its source
func (b *Block) Released() bool { return b.released }

// Bytes returns the usable range of the block as a byte slice. The slice must not be retained
// after the block is released.
func (b *Block) Bytes() []byte {
	if b.released || b.size == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(b.ptr), b.size)
}

// Contains returns true if ptr lies within [start, start+size)
func (b *Block) Contains(ptr unsafe.Pointer) bool {
	addr := uintptr(ptr)
	return addr >= b.Address() && addr < b.Address()+uintptr(b.size)
}

// Offset returns the distance in bytes between the start of the block and ptr
func (b *Block) Offset(ptr unsafe.Pointer) int {
	return int(uintptr(ptr) - b.Address())
}

func (b *Block) markReleased() error {
	if b.released {
		return errors.Wrapf(memutils.ErrReleased, "block of %d bytes at %#x", b.size, b.Address())
	}
	b.released = true
	b.backing = nil
	return nil
}

func validateRequest(size int, alignment uint) error {
	if size <= 0 {
		return errors.Wrapf(memutils.ErrInvalidSize, "requested %d bytes", size)
	}
	if alignment == 0 {
		return memutils.ErrInvalidAlignment
	}
	if err := memutils.CheckPow2(alignment, "alignment"); err != nil {
		return err
	}
	if uint64(size) > MaxReserveSize || uint64(alignment) > MaxReserveSize {
		return errors.Wrapf(memutils.ErrOutOfMemory, "request of %d bytes aligned to %d exceeds the %d byte limit", size, alignment, MaxReserveSize)
	}
	return nil
}
