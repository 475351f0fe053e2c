package main

import (
	"fmt"
	"io"
	"os"

	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/painlang/memcore/rt"
	"github.com/spf13/cobra"
	"golang.org/x/exp/slog"
)

// globalOptions holds the flags shared by every workload
type globalOptions struct {
	logLevel string
	mmap     bool
	detailed bool
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:   "memstat",
		Short: "Run synthetic workloads against the runtime memory core",
		Long: `memstat drives the arena and the garbage collector with synthetic
allocation workloads and prints a JSON report describing the resulting
memory layout.`,
		Version:       "0.1.0",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().BoolVar(&opts.mmap, "mmap", false, "Reserve memory from anonymous mappings instead of the Go heap")
	cmd.PersistentFlags().BoolVar(&opts.detailed, "detailed", false, "Include the detailed allocator and object map")

	cmd.AddCommand(newArenaCmd(opts))
	cmd.AddCommand(newGCCmd(opts))

	return cmd
}

func execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func (o *globalOptions) logger(out io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(o.logLevel)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", o.logLevel, err)
	}
	return slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level})), nil
}

func (o *globalOptions) runtimeFlags() rt.CreateFlags {
	// workloads run on a single goroutine
	flags := rt.CreateExternallySynchronized
	if o.mmap {
		flags |= rt.CreateMmapBacked
	}
	return flags
}

// writeReport prints one json object holding the workload results, the runtime's memory report
// and, when requested, the detailed map
func (o *globalOptions) writeReport(cmd *cobra.Command, runtime *rt.Runtime, workload func(obj *jwriter.ObjectState)) error {
	writer := jwriter.NewWriter()

	obj := writer.Object()
	workloadObj := obj.Name("Workload").Object()
	workload(&workloadObj)
	workloadObj.End()

	runtime.MemoryReport().WriteJSON(obj.Name("Report"))
	if o.detailed {
		runtime.PrintDetailedMap(obj.Name("Detail"))
	}
	obj.End()

	if err := writer.Error(); err != nil {
		return err
	}

	_, err := fmt.Fprintln(cmd.OutOrStdout(), string(writer.Bytes()))
	return err
}
