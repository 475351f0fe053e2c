package arena

import (
	"github.com/painlang/memcore/allocator"
	"github.com/painlang/memcore/internal/utils"
	"github.com/painlang/memcore/memutils/source"
	"github.com/vkngwrapper/core/v2/common"
	"golang.org/x/exp/slog"
)

// CreateFlags indicate specific arena behaviors to activate or deactivate
type CreateFlags int32

var arenaCreateFlagsMapping = common.NewFlagStringMapping[CreateFlags]()

func (f CreateFlags) Register(str string) {
	arenaCreateFlagsMapping.Register(f, str)
}
func (f CreateFlags) String() string {
	return arenaCreateFlagsMapping.FlagsToString(f)
}

const (
	// CreateDisablePools skips construction of the block pools, so every allocation is served by
	// the linear allocators
	CreateDisablePools CreateFlags = 1 << iota
	// CreateMmapBacked reserves memory from anonymous mappings instead of the Go heap when no
	// Source is provided
	CreateMmapBacked
)

func init() {
	CreateDisablePools.Register("CreateDisablePools")
	CreateMmapBacked.Register("CreateMmapBacked")
}

const (
	// DefaultAllocatorSize is the AllocatorSize used when none is provided via CreateOptions. It is
	// equal to 1Mb.
	DefaultAllocatorSize int = 1024 * 1024
	// DefaultPoolCapacity is the number of slots in each pool when none is provided via CreateOptions
	DefaultPoolCapacity int = 256
)

// DefaultPoolSizes are the block sizes of the pools built when CreateOptions.PoolSizes is empty:
// register-sized values, short strings and small records
var DefaultPoolSizes = []int{8, 16, 32, 64, 128}

// CreateOptions contains optional settings when creating an arena
type CreateOptions struct {
	// Flags indicates specific arena behaviors to activate or deactivate
	Flags CreateFlags
	// AllocatorSize is the size in bytes of the first linear allocator and the minimum size of every
	// linear allocator created when the arena grows
	AllocatorSize int
	// PoolSizes lists the block size of each pool, in the order pools are consulted. Sizes are
	// rounded up to a power of two.
	PoolSizes []int
	// PoolCapacity is the number of slots in each pool
	PoolCapacity int
	// Source supplies the arena's memory. A HeapSource is used if it is left nil.
	Source source.Source
}

// New creates a new Arena. The first linear allocator must be created successfully; pools are
// best-effort, and a pool that cannot be built is logged and left out.
func New(logger *slog.Logger, options CreateOptions) (*Arena, error) {
	arena := &Arena{
		logger:        utils.LoggerOrDiscard(logger),
		source:        options.Source,
		allocatorSize: options.AllocatorSize,
		flags:         options.Flags,
	}

	if arena.allocatorSize == 0 {
		arena.allocatorSize = DefaultAllocatorSize
	}

	if arena.source == nil {
		if options.Flags&CreateMmapBacked != 0 {
			arena.source = source.NewMmap()
		} else {
			arena.source = source.NewHeap(0)
		}
	}

	first, err := allocator.NewLinear(arena.source, arena.allocatorSize)
	if err != nil {
		return nil, err
	}
	arena.allocators = append(arena.allocators, first)

	if options.Flags&CreateDisablePools != 0 {
		return arena, nil
	}

	poolSizes := options.PoolSizes
	if len(poolSizes) == 0 {
		poolSizes = DefaultPoolSizes
	}

	poolCapacity := options.PoolCapacity
	if poolCapacity == 0 {
		poolCapacity = DefaultPoolCapacity
	}

	for _, blockSize := range poolSizes {
		pool, err := allocator.NewPool(arena.source, blockSize, poolCapacity)
		if err != nil {
			arena.logger.Warn("Arena::New omitting pool",
				slog.Int("BlockSize", blockSize),
				slog.Int("Capacity", poolCapacity),
				slog.Any("error", err))
			continue
		}
		arena.pools = append(arena.pools, pool)
	}

	arena.logger.Debug("Arena::New",
		slog.Int("AllocatorSize", arena.allocatorSize),
		slog.Int("PoolCount", len(arena.pools)),
		slog.String("Flags", options.Flags.String()))

	return arena, nil
}
