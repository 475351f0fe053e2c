package gc

import (
	"unsafe"

	"github.com/painlang/memcore/memutils"
	"github.com/painlang/memcore/memutils/source"
)

const (
	objectAlignment uint   = 8
	headerMagic     uint32 = 0x6D6B5357
)

// objectHeader sits in the same block as the object's data, immediately in front of it
type objectHeader struct {
	size   uint64
	marked uint32
	magic  uint32
}

// headerSize is the distance between the start of an object's block and its data
var headerSize = memutils.AlignUp(int(unsafe.Sizeof(objectHeader{}))+memutils.DebugMargin, objectAlignment)

// trackedObject is the live-object table entry for one allocation
type trackedObject struct {
	header    *objectHeader
	block     *source.Block
	allocated int
}

// allocationSize is the number of bytes reserved for an object with size bytes of data. Zero-sized
// objects still get one byte so that their data address lies inside their block.
func allocationSize(size int) int {
	return memutils.AlignUp(headerSize+max(size, 1), objectAlignment)
}

func newTrackedObject(block *source.Block, size int) (*trackedObject, unsafe.Pointer) {
	header := (*objectHeader)(block.Pointer())
	header.size = uint64(size)
	header.marked = 0
	header.magic = headerMagic

	memutils.WriteMagicValue(block.Pointer(), int(unsafe.Sizeof(objectHeader{})))

	return &trackedObject{
		header:    header,
		block:     block,
		allocated: block.Size(),
	}, unsafe.Add(block.Pointer(), headerSize)
}

func (o *trackedObject) Size() int      { return int(o.header.size) }
func (o *trackedObject) IsMarked() bool { return o.header.marked != 0 }
func (o *trackedObject) Mark()          { o.header.marked = 1 }
func (o *trackedObject) ClearMark()     { o.header.marked = 0 }

func (o *trackedObject) DataAddress() uintptr {
	return o.block.Address() + uintptr(headerSize)
}
