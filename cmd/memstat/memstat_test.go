package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

type report struct {
	Workload map[string]any
	Report   struct {
		Class  string
		Fields map[string]int
	}
	Detail map[string]any
}

func runMemstat(t *testing.T, args ...string) (report, string) {
	t.Helper()

	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)

	require.NoError(t, cmd.Execute())

	var out report
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &out), stdout.String())
	return out, stderr.String()
}

func TestArenaWorkload(t *testing.T) {
	out, _ := runMemstat(t, "arena", "--iterations", "10", "--sizes", "8,300", "--allocator-size", "4096")

	require.Equal(t, "arena", out.Workload["Kind"])
	require.Equal(t, 10.0, out.Workload["Allocations"])
	require.Equal(t, 1540.0, out.Workload["RequestedBytes"])
	require.Equal(t, 1516.0, out.Workload["PeakLinearUsed"])

	require.Equal(t, "MemoryReport", out.Report.Class)
	require.Equal(t, 1516, out.Report.Fields["arena_used"])
	require.Equal(t, 4096, out.Report.Fields["arena_capacity"])
	require.Nil(t, out.Detail)
}

func TestArenaWorkloadWithResets(t *testing.T) {
	out, _ := runMemstat(t, "arena", "--iterations", "4", "--sizes", "300", "--reset-every", "2", "--allocator-size", "1024")

	require.Equal(t, 2.0, out.Workload["Resets"])
	require.Equal(t, 604.0, out.Workload["PeakLinearUsed"])
	require.Zero(t, out.Report.Fields["arena_used"])
	require.Equal(t, 1, out.Report.Fields["arena_allocators"])
}

func TestArenaWorkloadWithoutPools(t *testing.T) {
	out, _ := runMemstat(t, "arena", "--iterations", "3", "--sizes", "16", "--no-pools", "--detailed")

	require.Equal(t, 48, out.Report.Fields["arena_used"])
	require.Contains(t, out.Detail, "Arena")
	require.Contains(t, out.Detail, "Collector")
}

func TestGCWorkload(t *testing.T) {
	out, _ := runMemstat(t, "gc", "--objects", "10", "--size", "16", "--root-every", "5")

	require.Equal(t, "gc", out.Workload["Kind"])
	require.Equal(t, 2.0, out.Workload["Roots"])
	require.Equal(t, 10.0, out.Workload["TrackedBeforeFinalCollection"])

	require.Equal(t, 2, out.Report.Fields["gc_objects"])
	require.Equal(t, 2, out.Report.Fields["gc_live"])
	require.Equal(t, 1, out.Report.Fields["gc_cycles"])

	objectBytes := out.Report.Fields["gc_bytes"] / 2
	require.Equal(t, float64(8*objectBytes), out.Workload["FreedBytes"])
}

func TestGCWorkloadLogsCollections(t *testing.T) {
	_, logs := runMemstat(t, "gc", "--objects", "50", "--size", "64", "--threshold", "512", "--root-every", "0", "--log-level", "debug")

	require.Contains(t, logs, "Collector::collect")
	require.Contains(t, logs, "Reason=threshold")
}

func TestMmapBackedWorkload(t *testing.T) {
	out, _ := runMemstat(t, "gc", "--mmap", "--objects", "20", "--root-every", "1")

	require.Equal(t, 20, out.Report.Fields["gc_objects"])
	require.Equal(t, 0.0, out.Workload["FreedBytes"])
}

func TestInvalidArguments(t *testing.T) {
	testCases := map[string][]string{
		"LogLevel":   {"arena", "--log-level", "loud"},
		"ExtraArgs":  {"gc", "unexpected"},
		"BadAlign":   {"arena", "--align", "0"},
		"UnknownCmd": {"compact"},
	}

	for name, args := range testCases {
		t.Run(name, func(t *testing.T) {
			var out bytes.Buffer
			cmd := newRootCmd()
			cmd.SetOut(&out)
			cmd.SetErr(&out)
			cmd.SetArgs(args)

			require.Error(t, cmd.Execute())
		})
	}
}
