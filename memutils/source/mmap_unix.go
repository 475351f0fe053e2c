//go:build unix

package source

import (
	"os"

	"github.com/cockroachdb/errors"
	"github.com/painlang/memcore/memutils"
	"golang.org/x/sys/unix"
)

// MmapSource reserves blocks as private anonymous mappings. Memory lives outside the Go heap and is
// returned to the operating system when the block is released.
type MmapSource struct {
	pageSize int
	reserved int
	blocks   int
}

var _ Source = &MmapSource{}

func NewMmap() *MmapSource {
	return &MmapSource{pageSize: os.Getpagesize()}
}

func (s *MmapSource) Reserve(size int, alignment uint) (*Block, error) {
	if err := validateRequest(size, alignment); err != nil {
		return nil, err
	}

	// mappings are page aligned; only larger alignments need slack
	mapSize := size
	if int(alignment) > s.pageSize {
		mapSize += int(alignment) - s.pageSize
	}
	mapSize = memutils.AlignUp(mapSize, uint(s.pageSize))

	data, err := unix.Mmap(-1, 0, mapSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		if errors.Is(err, unix.ENOMEM) {
			return nil, errors.Wrapf(memutils.ErrOutOfMemory, "mmap of %d bytes: %v", mapSize, err)
		}
		return nil, errors.Wrapf(err, "mmap of %d bytes", mapSize)
	}

	block := NewBlock(data, 0, size)
	if offset := int(memutils.AlignAddress(block.Address(), alignment) - block.Address()); offset != 0 {
		block = NewBlock(data, offset, size)
	}

	s.reserved += size
	s.blocks++
	return block, nil
}

func (s *MmapSource) Release(block *Block) error {
	backing := block.backing
	if err := block.markReleased(); err != nil {
		return err
	}

	s.reserved -= block.size
	s.blocks--

	if err := unix.Munmap(backing); err != nil {
		return errors.Wrapf(err, "munmap of %d bytes", len(backing))
	}
	return nil
}

// Reserved returns the number of bytes in blocks that have not yet been released
func (s *MmapSource) Reserved() int { return s.reserved }

// BlockCount returns the number of blocks that have not yet been released
func (s *MmapSource) BlockCount() int { return s.blocks }
