package memutils

import "github.com/pkg/errors"

// PowerOfTwoError is the error returned from CheckPow2 or other methods if the number being tested is not a power of two
var PowerOfTwoError error = errors.New("number must be a power of two")

var (
	// ErrInvalidSize is returned when a size or capacity parameter is zero or negative
	ErrInvalidSize = errors.New("size must be greater than 0")
	// ErrInvalidAlignment is returned when an alignment of 0 is requested
	ErrInvalidAlignment = errors.New("alignment must be greater than 0")
	// ErrOutOfMemory is returned when an allocation cannot be satisfied by the backing store. It is
	// recoverable: arenas grow and collectors collect before reporting it to their caller.
	ErrOutOfMemory = errors.New("out of memory")
	// ErrPoolEmpty is returned by a block pool that has no free slots left
	ErrPoolEmpty = errors.New("pool has no free blocks")
	// ErrForeignAddress is returned when an address handed back to an allocator was never
	// part of the memory it manages
	ErrForeignAddress = errors.New("address does not belong to this allocator")
	// ErrMisalignedAddress is returned when an address handed back to a block pool does not sit on a
	// slot boundary
	ErrMisalignedAddress = errors.New("address is not aligned to a block boundary")
	// ErrDoubleFree is returned when a slot that is already free is handed back again
	ErrDoubleFree = errors.New("block is already free")
	// ErrReleased is returned when an allocator or memory block is used after its memory was released
	ErrReleased = errors.New("memory has already been released")
)
