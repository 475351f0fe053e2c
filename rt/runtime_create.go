package rt

import (
	"github.com/painlang/memcore/arena"
	"github.com/painlang/memcore/gc"
	"github.com/painlang/memcore/internal/utils"
	"github.com/painlang/memcore/memutils/source"
	"github.com/vkngwrapper/core/v2/common"
	"golang.org/x/exp/slog"
)

// CreateFlags indicate specific runtime behaviors to activate or deactivate
type CreateFlags int32

var runtimeCreateFlagsMapping = common.NewFlagStringMapping[CreateFlags]()

func (f CreateFlags) Register(str string) {
	runtimeCreateFlagsMapping.Register(f, str)
}
func (f CreateFlags) String() string {
	return runtimeCreateFlagsMapping.FlagsToString(f)
}

const (
	// CreateExternallySynchronized should be set if the caller guarantees that only one goroutine
	// uses the runtime at a time. The internal mutex is skipped, which makes calls cheaper.
	CreateExternallySynchronized CreateFlags = 1 << iota
	// CreateDisableArenaPools builds the arena without block pools
	CreateDisableArenaPools
	// CreateMmapBacked reserves both the arena's and the collector's memory from anonymous
	// mappings when no Source is provided
	CreateMmapBacked
)

func init() {
	CreateExternallySynchronized.Register("CreateExternallySynchronized")
	CreateDisableArenaPools.Register("CreateDisableArenaPools")
	CreateMmapBacked.Register("CreateMmapBacked")
}

// CreateOptions contains optional settings when creating a runtime. Zero values select the
// arena and collector defaults.
type CreateOptions struct {
	// Flags indicates specific runtime behaviors to activate or deactivate
	Flags CreateFlags
	// ArenaSize is the size in bytes of each linear allocator in the arena
	ArenaSize int
	// ArenaPoolSizes lists the block sizes of the arena's pools
	ArenaPoolSizes []int
	// ArenaPoolCapacity is the number of slots in each arena pool
	ArenaPoolCapacity int
	// GCThreshold is the number of tracked bytes that triggers a collection on allocation
	GCThreshold int
	// Source supplies memory to both the arena and the collector. A HeapSource is used if it
	// is left nil.
	Source source.Source
}

// New creates a Runtime owning one arena and one collector
func New(logger *slog.Logger, options CreateOptions) (*Runtime, error) {
	logger = utils.LoggerOrDiscard(logger)

	src := options.Source
	if src == nil {
		if options.Flags&CreateMmapBacked != 0 {
			src = source.NewMmap()
		} else {
			src = source.NewHeap(0)
		}
	}

	var arenaFlags arena.CreateFlags
	if options.Flags&CreateDisableArenaPools != 0 {
		arenaFlags |= arena.CreateDisablePools
	}

	memArena, err := arena.New(logger, arena.CreateOptions{
		Flags:         arenaFlags,
		AllocatorSize: options.ArenaSize,
		PoolSizes:     options.ArenaPoolSizes,
		PoolCapacity:  options.ArenaPoolCapacity,
		Source:        src,
	})
	if err != nil {
		return nil, err
	}

	runtime := &Runtime{
		logger: logger,
		arena:  memArena,
		collector: gc.New(logger, gc.CreateOptions{
			Threshold: options.GCThreshold,
			Source:    src,
		}),
	}
	runtime.mutex.UseMutex = options.Flags&CreateExternallySynchronized == 0

	logger.Debug("Runtime::New", slog.String("Flags", options.Flags.String()))

	return runtime, nil
}
