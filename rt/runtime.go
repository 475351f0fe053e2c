package rt

import (
	"unsafe"

	cerrors "github.com/cockroachdb/errors"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/painlang/memcore/arena"
	"github.com/painlang/memcore/gc"
	"github.com/painlang/memcore/internal/utils"
	"github.com/painlang/memcore/value"
	"golang.org/x/exp/slog"
)

// Runtime pairs an arena, which serves short-lived and value-embedded data, with a collector,
// which serves tracked heap objects. The two are independent memory spaces: a root handed to the
// collector must come from AllocateObject.
//
// Unless the runtime was created with CreateExternallySynchronized, every method is safe to call
// from multiple goroutines.
type Runtime struct {
	logger *slog.Logger
	mutex  utils.OptionalRWMutex

	arena     *arena.Arena
	collector *gc.Collector
}

// Allocate reserves size bytes with the requested alignment from the arena
func (r *Runtime) Allocate(size int, align uint) (unsafe.Pointer, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	return r.arena.Allocate(size, align)
}

// Deallocate returns a pooled arena allocation of exactly size bytes
func (r *Runtime) Deallocate(ptr unsafe.Pointer, size int) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	return r.arena.Deallocate(ptr, size)
}

// Reset invalidates every linear arena allocation at once. Tracked objects are unaffected.
func (r *Runtime) Reset() {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.arena.Reset()
}

// MemoryStats returns the bytes used and the bytes available across the arena's linear allocators
func (r *Runtime) MemoryStats() (used int, capacity int) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	return r.arena.TotalUsed(), r.arena.TotalCapacity()
}

// AllocateObject reserves a tracked object of size bytes from the collector
func (r *Runtime) AllocateObject(size int) (unsafe.Pointer, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	return r.collector.Allocate(size)
}

func (r *Runtime) AddRoot(ptr unsafe.Pointer) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.collector.AddRoot(ptr)
}

func (r *Runtime) RemoveRoot(ptr unsafe.Pointer) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.collector.RemoveRoot(ptr)
}

// CollectGarbage runs a full collection and returns the number of bytes freed
func (r *Runtime) CollectGarbage() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	return r.collector.ForceCollect()
}

// GCCollect runs a full collection
func (r *Runtime) GCCollect() {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.collector.Collect()
}

func (r *Runtime) GCStats() gc.Stats {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	return r.collector.Stats()
}

// MemoryReport describes the runtime's memory as a MemoryReport instance, so that programs
// running on the runtime can inspect it like any other value
func (r *Runtime) MemoryReport() value.Value {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	gcStats := r.collector.Stats()

	report := value.NewInstance("MemoryReport")
	report.SetField("arena_used", value.Int(int64(r.arena.TotalUsed())))
	report.SetField("arena_capacity", value.Int(int64(r.arena.TotalCapacity())))
	report.SetField("arena_allocators", value.Int(int64(r.arena.AllocatorCount())))
	report.SetField("gc_bytes", value.Int(int64(gcStats.TotalBytes)))
	report.SetField("gc_objects", value.Int(int64(gcStats.ObjectCount)))
	report.SetField("gc_live", value.Int(int64(gcStats.LiveCount)))
	report.SetField("gc_cycles", value.Int(int64(r.collector.Cycles())))

	return value.InstanceOf(report)
}

// Validate checks the arena and the collector for internal consistency
func (r *Runtime) Validate() error {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	if err := r.arena.Validate(); err != nil {
		return cerrors.Wrap(err, "arena")
	}
	if err := r.collector.Validate(); err != nil {
		return cerrors.Wrap(err, "collector")
	}
	return nil
}

// PrintDetailedMap writes a json description of the arena and the collector
func (r *Runtime) PrintDetailedMap(writer *jwriter.Writer) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	objState := writer.Object()
	defer objState.End()

	r.arena.PrintDetailedMap(objState.Name("Arena"))
	r.collector.PrintDetailedMap(objState.Name("Collector"))
}

// Destroy releases all memory held by the arena and the collector. The runtime must not be used
// afterwards.
func (r *Runtime) Destroy() error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.logger.Debug("Runtime::Destroy")

	return cerrors.CombineErrors(r.arena.Destroy(), r.collector.Destroy())
}
