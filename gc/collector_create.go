package gc

import (
	"github.com/dolthub/swiss"
	"github.com/painlang/memcore/internal/utils"
	"github.com/painlang/memcore/memutils/source"
	"golang.org/x/exp/slog"
)

const (
	// DefaultThreshold is the Threshold used when none is provided via CreateOptions. It is equal
	// to 1Mb.
	DefaultThreshold int = 1024 * 1024

	initialObjectCapacity = 64
	initialRootCapacity   = 16
)

// CreateOptions contains optional settings when creating a collector
type CreateOptions struct {
	// Threshold is the number of tracked bytes at or above which an allocation triggers a
	// collection before it is served
	Threshold int
	// Source supplies the memory for tracked objects. A HeapSource is used if it is left nil.
	Source source.Source
}

// New creates a new Collector
func New(logger *slog.Logger, options CreateOptions) *Collector {
	collector := &Collector{
		logger:    utils.LoggerOrDiscard(logger),
		source:    options.Source,
		threshold: options.Threshold,
		objects:   swiss.NewMap[uintptr, *trackedObject](initialObjectCapacity),
		roots:     swiss.NewMap[uintptr, struct{}](initialRootCapacity),
	}

	if collector.threshold <= 0 {
		collector.threshold = DefaultThreshold
	}

	if collector.source == nil {
		collector.source = source.NewHeap(0)
	}

	return collector
}
