package main

import (
	"fmt"

	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/painlang/memcore/rt"
	"github.com/spf13/cobra"
)

type arenaOptions struct {
	allocatorSize int
	iterations    int
	sizes         []int
	align         uint
	resetEvery    int
	noPools       bool
}

func newArenaCmd(global *globalOptions) *cobra.Command {
	opts := &arenaOptions{}

	cmd := &cobra.Command{
		Use:   "arena",
		Short: "Allocate a cycle of request sizes from the arena",
		Long: `The arena command allocates the given request sizes round-robin from
a fresh arena, optionally resetting it every N allocations, and reports
how the requests were spread across pools and linear allocators.

Example:
  memstat arena --iterations 10000 --sizes 8,24,100,300
  memstat arena --allocator-size 4096 --reset-every 64 --detailed`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runArena(cmd, global, opts)
		},
	}

	cmd.Flags().IntVar(&opts.allocatorSize, "allocator-size", 0, "Size in bytes of each linear allocator (default 1MiB)")
	cmd.Flags().IntVar(&opts.iterations, "iterations", 1000, "Number of allocations to perform")
	cmd.Flags().IntSliceVar(&opts.sizes, "sizes", []int{8, 24, 100, 300, 4096}, "Request sizes, used round-robin")
	cmd.Flags().UintVar(&opts.align, "align", 8, "Alignment of every request")
	cmd.Flags().IntVar(&opts.resetEvery, "reset-every", 0, "Reset the arena after this many allocations (0 to never reset)")
	cmd.Flags().BoolVar(&opts.noPools, "no-pools", false, "Serve every request from the linear allocators")

	return cmd
}

func runArena(cmd *cobra.Command, global *globalOptions, opts *arenaOptions) error {
	if len(opts.sizes) == 0 {
		return fmt.Errorf("at least one request size is required")
	}

	logger, err := global.logger(cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	flags := global.runtimeFlags()
	if opts.noPools {
		flags |= rt.CreateDisableArenaPools
	}

	runtime, err := rt.New(logger, rt.CreateOptions{
		Flags:     flags,
		ArenaSize: opts.allocatorSize,
	})
	if err != nil {
		return fmt.Errorf("failed to create runtime: %w", err)
	}
	defer func() {
		if err := runtime.Destroy(); err != nil {
			logger.Error("failed to destroy runtime", "error", err)
		}
	}()

	var requested, resets, peakUsed int
	for i := 0; i < opts.iterations; i++ {
		size := opts.sizes[i%len(opts.sizes)]
		if _, err := runtime.Allocate(size, opts.align); err != nil {
			return fmt.Errorf("allocation %d of %d bytes failed: %w", i, size, err)
		}
		requested += size

		if used, _ := runtime.MemoryStats(); used > peakUsed {
			peakUsed = used
		}

		if opts.resetEvery > 0 && (i+1)%opts.resetEvery == 0 {
			runtime.Reset()
			resets++
		}
	}

	if err := runtime.Validate(); err != nil {
		return err
	}

	return global.writeReport(cmd, runtime, func(obj *jwriter.ObjectState) {
		obj.Name("Kind").String("arena")
		obj.Name("Allocations").Int(opts.iterations)
		obj.Name("RequestedBytes").Int(requested)
		obj.Name("Resets").Int(resets)
		obj.Name("PeakLinearUsed").Int(peakUsed)
	})
}
