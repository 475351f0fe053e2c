// Package gc implements a stop-the-world mark-and-sweep collector over its own heap of tracked
// objects. Every object carries a header (mark flag and size) in the same block as its data, and
// the collector keeps an explicit root set of data addresses that are always treated as reachable.
//
// Reachability is exactly "named as a root": the collector does not scan object contents for
// further references. A Collector performs no internal synchronization; callers must serialize
// every call into a given Collector.
package gc

import (
	"context"
	"fmt"
	"unsafe"

	cerrors "github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/painlang/memcore/memutils"
	"github.com/painlang/memcore/memutils/source"
	"github.com/pkg/errors"
	"golang.org/x/exp/slices"
	"golang.org/x/exp/slog"
)

// Phase is the stage of a collection cycle the collector is in
type Phase uint32

const (
	PhaseIdle Phase = iota
	PhaseMarking
	PhaseSweeping
)

var phaseMapping = map[Phase]string{
	PhaseIdle:     "Idle",
	PhaseMarking:  "Marking",
	PhaseSweeping: "Sweeping",
}

func (p Phase) String() string {
	str, ok := phaseMapping[p]
	if !ok {
		return "unknown Phase"
	}
	return str
}

// Stats is a snapshot of the collector's heap
type Stats struct {
	// TotalBytes is the number of bytes reserved for tracked objects, headers and padding included
	TotalBytes int
	// ObjectCount is the number of tracked objects
	ObjectCount int
	// LiveCount is the number of tracked objects found reachable by the most recent collection
	LiveCount int
}

// Collector tracks heap objects and frees the ones that are not reachable from its root set
type Collector struct {
	logger *slog.Logger
	source source.Source

	objects *swiss.Map[uintptr, *trackedObject]
	roots   *swiss.Map[uintptr, struct{}]

	totalBytes int
	threshold  int
	phase      Phase
	cycles     int
}

// Allocate reserves a tracked object with size bytes of data and returns the address of the data.
// When the tracked total has reached the threshold a collection runs first. If the memory source
// cannot serve the request, a collection runs and the request is retried exactly once before
// memutils.ErrOutOfMemory is reported. Requests above source.MaxReserveSize fail immediately.
func (c *Collector) Allocate(size int) (unsafe.Pointer, error) {
	if size < 0 {
		return nil, cerrors.Wrapf(memutils.ErrInvalidSize, "requested %d bytes", size)
	}
	// no source accepts a block this large, so collecting first would not help
	if uint64(size) > source.MaxReserveSize {
		return nil, cerrors.Wrapf(memutils.ErrOutOfMemory, "object of %d bytes exceeds the %d byte limit", size, source.MaxReserveSize)
	}

	if c.totalBytes >= c.threshold {
		c.collect("threshold")
	}

	allocSize := allocationSize(size)
	block, err := c.source.Reserve(allocSize, objectAlignment)
	if err != nil {
		c.logger.Debug("Collector::Allocate reserve failed, collecting before retry",
			slog.Int("Size", allocSize),
			slog.Any("error", err))

		c.collect("allocation failure")

		block, err = c.source.Reserve(allocSize, objectAlignment)
		if err != nil {
			return nil, cerrors.Mark(cerrors.Wrapf(err, "failed to allocate %d byte object after collection", size), memutils.ErrOutOfMemory)
		}
	}

	object, data := newTrackedObject(block, size)
	c.objects.Put(uintptr(data), object)
	c.totalBytes += object.allocated

	return data, nil
}

// AddRoot registers a data address as always reachable. Adding a root twice is a no-op, and the
// address does not need to belong to a tracked object.
func (c *Collector) AddRoot(ptr unsafe.Pointer) {
	c.roots.Put(uintptr(ptr), struct{}{})
}

// RemoveRoot unregisters a root. Removing an address that is not a root is a no-op.
func (c *Collector) RemoveRoot(ptr unsafe.Pointer) {
	c.roots.Delete(uintptr(ptr))
}

// IsRoot returns true if ptr is in the root set
func (c *Collector) IsRoot(ptr unsafe.Pointer) bool {
	return c.roots.Has(uintptr(ptr))
}

// Collect runs a full mark and sweep cycle
func (c *Collector) Collect() {
	c.collect("explicit")
}

// ForceCollect runs a full cycle and returns the number of bytes it freed
func (c *Collector) ForceCollect() int {
	return c.collect("forced")
}

func (c *Collector) collect(reason string) int {
	before := c.totalBytes
	objectsBefore := c.objects.Count()

	c.mark()
	c.sweep()
	c.cycles++

	freed := before - c.totalBytes
	c.logger.Debug("Collector::collect",
		slog.String("Reason", reason),
		slog.Int("Cycle", c.cycles),
		slog.Int("FreedBytes", freed),
		slog.Int("FreedObjects", objectsBefore-c.objects.Count()),
		slog.Int("TotalBytes", c.totalBytes))

	return freed
}

func (c *Collector) mark() {
	c.phase = PhaseMarking

	c.objects.Iter(func(_ uintptr, object *trackedObject) bool {
		object.ClearMark()
		return false
	})

	worklist := make([]uintptr, 0, c.roots.Count())
	c.roots.Iter(func(addr uintptr, _ struct{}) bool {
		worklist = append(worklist, addr)
		return false
	})

	visited := swiss.NewMap[uintptr, struct{}](uint32(len(worklist)) + 1)
	for len(worklist) > 0 {
		addr := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]

		if visited.Has(addr) {
			continue
		}
		visited.Put(addr, struct{}{})

		// stale roots are not an error
		if object, ok := c.objects.Get(addr); ok {
			object.Mark()
		}
	}
}

func (c *Collector) sweep() {
	c.phase = PhaseSweeping

	var garbage []uintptr
	c.objects.Iter(func(addr uintptr, object *trackedObject) bool {
		if !object.IsMarked() {
			garbage = append(garbage, addr)
		}
		return false
	})

	for _, addr := range garbage {
		object, _ := c.objects.Get(addr)
		c.objects.Delete(addr)
		c.totalBytes -= object.allocated
		c.release(addr, object)
	}

	c.phase = PhaseIdle
}

// release hands an object's block back to the source. The header goes with it: the two are
// never freed separately.
func (c *Collector) release(addr uintptr, object *trackedObject) {
	object.header.magic = 0

	if err := c.source.Release(object.block); err != nil {
		c.logger.LogAttrs(context.Background(), slog.LevelError, "failed to release collected object",
			slog.String("address", fmt.Sprintf("%#x", addr)),
			slog.Int("size", object.allocated),
			slog.Any("error", err))
	}
}

// Stats returns the tracked byte total, the tracked object count and the number of objects marked
// reachable by the most recent collection
func (c *Collector) Stats() Stats {
	var live int
	c.objects.Iter(func(_ uintptr, object *trackedObject) bool {
		if object.IsMarked() {
			live++
		}
		return false
	})

	return Stats{
		TotalBytes:  c.totalBytes,
		ObjectCount: c.objects.Count(),
		LiveCount:   live,
	}
}

// Statistics summarizes the tracked heap: one block per object, with allocation sizes being the
// sizes requested by the caller
func (c *Collector) Statistics() memutils.DetailedStatistics {
	var stats memutils.DetailedStatistics
	stats.Clear()

	c.objects.Iter(func(_ uintptr, object *trackedObject) bool {
		stats.BlockCount++
		stats.BlockBytes += object.allocated
		stats.AddAllocation(object.Size())
		return false
	})

	return stats
}

// Contains returns true if ptr is the data address of a tracked object
func (c *Collector) Contains(ptr unsafe.Pointer) bool {
	return c.objects.Has(uintptr(ptr))
}

// SizeOf returns the requested size of the tracked object at ptr
func (c *Collector) SizeOf(ptr unsafe.Pointer) (int, bool) {
	object, ok := c.objects.Get(uintptr(ptr))
	if !ok {
		return 0, false
	}
	return object.Size(), true
}

func (c *Collector) Threshold() int  { return c.threshold }
func (c *Collector) RootCount() int  { return c.roots.Count() }
func (c *Collector) Cycles() int     { return c.cycles }
func (c *Collector) Phase() Phase    { return c.phase }
func (c *Collector) TotalBytes() int { return c.totalBytes }

// Destroy releases every tracked object regardless of reachability and clears the root set
func (c *Collector) Destroy() error {
	var err error

	c.objects.Iter(func(addr uintptr, object *trackedObject) bool {
		object.header.magic = 0
		err = cerrors.CombineErrors(err, c.source.Release(object.block))
		return false
	})

	c.logger.Debug("Collector::Destroy",
		slog.Int("ObjectCount", c.objects.Count()),
		slog.Int("TotalBytes", c.totalBytes))

	c.objects = swiss.NewMap[uintptr, *trackedObject](initialObjectCapacity)
	c.roots = swiss.NewMap[uintptr, struct{}](initialRootCapacity)
	c.totalBytes = 0
	return err
}

// Validate checks every tracked object's header against the live-object table and the byte total
func (c *Collector) Validate() error {
	if c.phase != PhaseIdle {
		return errors.Errorf("collector is in phase %s outside of a collection", c.phase)
	}

	var sum int
	var err error
	c.objects.Iter(func(addr uintptr, object *trackedObject) bool {
		switch {
		case object.block.Released():
			err = errors.Errorf("object at %#x is tracked but its block was released", addr)
		case object.header.magic != headerMagic:
			err = errors.Errorf("object at %#x has a corrupt header", addr)
		case !memutils.ValidateMagicValue(object.block.Pointer(), int(unsafe.Sizeof(objectHeader{}))):
			err = errors.Errorf("memory corruption detected in the header guard of object at %#x", addr)
		case object.DataAddress() != addr:
			err = errors.Errorf("object at %#x is keyed by the wrong address, its data starts at %#x", addr, object.DataAddress())
		case allocationSize(object.Size()) != object.allocated:
			err = errors.Errorf("object at %#x of %d bytes should occupy %d bytes but occupies %d", addr, object.Size(), allocationSize(object.Size()), object.allocated)
		}

		sum += object.allocated
		return err != nil
	})
	if err != nil {
		return err
	}

	if sum != c.totalBytes {
		return errors.Errorf("tracked objects occupy %d bytes but the collector accounts for %d", sum, c.totalBytes)
	}

	return nil
}

// PrintDetailedMap writes a json description of the collector and every tracked object, ordered by
// address
func (c *Collector) PrintDetailedMap(writer *jwriter.Writer) {
	objState := writer.Object()
	defer objState.End()

	stats := c.Stats()
	objState.Name("Threshold").Int(c.threshold)
	objState.Name("TotalBytes").Int(stats.TotalBytes)
	objState.Name("ObjectCount").Int(stats.ObjectCount)
	objState.Name("LiveCount").Int(stats.LiveCount)
	objState.Name("RootCount").Int(c.roots.Count())
	objState.Name("Cycles").Int(c.cycles)

	addresses := make([]uintptr, 0, c.objects.Count())
	c.objects.Iter(func(addr uintptr, _ *trackedObject) bool {
		addresses = append(addresses, addr)
		return false
	})
	slices.Sort(addresses)

	objects := objState.Name("Objects").Array()
	defer objects.End()

	for _, addr := range addresses {
		object, _ := c.objects.Get(addr)

		obj := objects.Object()
		obj.Name("Address").String(fmt.Sprintf("%#x", addr))
		obj.Name("Size").Int(object.Size())
		obj.Name("Allocated").Int(object.allocated)
		obj.Name("Marked").Bool(object.IsMarked())
		obj.Name("Root").Bool(c.roots.Has(addr))
		obj.End()
	}
}
