package source

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/painlang/memcore/memutils"
)

// HeapSource reserves blocks from the Go heap. Each block keeps its backing slice alive until it is
// released, so addresses handed out from a block stay valid exactly as long as the block does.
type HeapSource struct {
	limit    int
	reserved int
	blocks   int
}

var _ Source = &HeapSource{}

// NewHeap creates a HeapSource. A positive limit caps the number of bytes that may be reserved
// at once, after which Reserve reports memutils.ErrOutOfMemory. A limit of 0 means unlimited.
func NewHeap(limit int) *HeapSource {
	return &HeapSource{limit: limit}
}

func (s *HeapSource) Reserve(size int, alignment uint) (*Block, error) {
	if err := validateRequest(size, alignment); err != nil {
		return nil, err
	}

	if s.limit > 0 && s.reserved+size > s.limit {
		return nil, errors.Wrapf(memutils.ErrOutOfMemory, "heap source limit %d reached: %d reserved, %d requested", s.limit, s.reserved, size)
	}

	backing := make([]byte, size+int(alignment)-1)
	base := uintptr(unsafe.Pointer(unsafe.SliceData(backing)))
	offset := int(memutils.AlignAddress(base, alignment) - base)

	s.reserved += size
	s.blocks++
	return NewBlock(backing, offset, size), nil
}

func (s *HeapSource) Release(block *Block) error {
	if err := block.markReleased(); err != nil {
		return err
	}

	s.reserved -= block.size
	s.blocks--
	return nil
}

// Reserved returns the number of bytes in blocks that have not yet been released
func (s *HeapSource) Reserved() int { return s.reserved }

// BlockCount returns the number of blocks that have not yet been released
func (s *HeapSource) BlockCount() int { return s.blocks }
