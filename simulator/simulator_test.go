package simulator_test

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/memsim/memutils"
	"github.com/vkngwrapper/memsim/simulator"
	"golang.org/x/exp/slog"
)

func newSimulator(t *testing.T, opts simulator.Options) *simulator.Simulator {
	t.Helper()
	sim, err := simulator.New(opts)
	require.NoError(t, err)
	return sim
}

func run(t *testing.T, sim *simulator.Simulator, line string) string {
	t.Helper()
	var out bytes.Buffer
	_, err := sim.Execute(line, &out)
	require.NoError(t, err)
	return out.String()
}

func TestNewInvalidConfiguration(t *testing.T) {
	opts := simulator.DefaultOptions()
	opts.MemorySize = 0
	_, err := simulator.New(opts)
	require.True(t, errors.Is(err, memutils.ErrInvalidConfiguration))

	opts = simulator.DefaultOptions()
	opts.BuddySize = 100
	_, err = simulator.New(opts)
	require.True(t, errors.Is(err, memutils.ErrInvalidConfiguration))
	require.True(t, errors.Is(err, memutils.PowerOfTwoError))

	opts = simulator.DefaultOptions()
	opts.L2.Size = 18
	_, err = simulator.New(opts)
	require.True(t, errors.Is(err, memutils.ErrInvalidConfiguration))
}

func TestMallocFreeDump(t *testing.T) {
	sim := newSimulator(t, simulator.DefaultOptions())

	require.Equal(t, "Allocated 100 bytes at address 0\n", run(t, sim, "malloc 100 first"))
	require.Equal(t, "Allocated 50 bytes at address 100\n", run(t, sim, "MALLOC 50 Best"))
	require.Equal(t, "Freed Memory at address 0\n", run(t, sim, "free 0"))
	require.Equal(t, "No allocation at address 0\n", run(t, sim, "free 0"))
	require.Equal(t, "No allocation at address 7\n", run(t, sim, "free 7"))

	require.Equal(t, `Physical Memory Layout:
[0-99] FREE (100 bytes)
[100-149] USED (50 bytes)
[150-255] FREE (106 bytes)
`, run(t, sim, "dump"))

	require.Equal(t, "Allocation failed\n", run(t, sim, "malloc 200 worst"))
	require.Equal(t, "Allocated 106 bytes at address 150\n", run(t, sim, "malloc 106 worst"))
}

func TestStatsOutput(t *testing.T) {
	sim := newSimulator(t, simulator.DefaultOptions())

	run(t, sim, "malloc 64 first")
	run(t, sim, "malloc 300 first")

	out := run(t, sim, "stats")
	require.Contains(t, out, "Free Memory: 192 bytes\n")
	require.Contains(t, out, "Allocated Memory: 64 bytes\n")
	require.Contains(t, out, "Largest Free Block: 192 bytes\n")
	require.Contains(t, out, "External Fragmentation: 0.0000\n")
	require.Contains(t, out, "Memory Utilization: 0.2500\n")
	require.Contains(t, out, "Allocation Requests: 2 (1 succeeded, 1 failed)\n")
	require.Contains(t, out, "Allocation Success Rate: 0.5000\n")
	require.Contains(t, out, "Allocation Failure Rate: 0.5000\n")

	stats := sim.Memory().Stats()
	require.Equal(t, 2, stats.Requests)
}

func TestBuddyCommands(t *testing.T) {
	sim := newSimulator(t, simulator.DefaultOptions())

	require.Equal(t, "buddy allocated 10 bytes at address 0 (order 4, 16 bytes)\n", run(t, sim, "buddyalloc 10"))
	require.Equal(t, "buddy allocated 20 bytes at address 32 (order 5, 32 bytes)\n", run(t, sim, "buddyalloc 20"))
	require.Equal(t, "Buddy allocation failed: out of memory\n", run(t, sim, "buddyalloc 512"))

	dump := run(t, sim, "buddydump")
	require.True(t, strings.HasPrefix(dump, "Buddy Memory Layout:\n"))
	require.Contains(t, dump, "[0-15] USED order 4 (16 bytes, 10 requested)\n")
	require.Contains(t, dump, "[16-31] FREE order 4 (16 bytes)\n")
	require.Contains(t, dump, "[32-63] USED order 5 (32 bytes, 20 requested)\n")
	require.Contains(t, dump, "  order 7 (128 bytes): 1\n")

	stats := run(t, sim, "buddystats")
	require.Contains(t, stats, "Allocated Memory: 48 bytes (30 requested)\n")
	require.Contains(t, stats, "Internal Fragmentation: 18 bytes\n")

	require.Equal(t, "buddy freed memory at address 0\n", run(t, sim, "buddyfree 0"))
	require.Equal(t, "No buddy allocation at address 0\n", run(t, sim, "buddyfree 0"))
	require.Equal(t, "buddy freed memory at address 32\n", run(t, sim, "buddyfree 32"))

	require.True(t, sim.Buddy().IsEmpty())
	require.Equal(t, 1, sim.Buddy().FreeRegionsCount())
}

func TestCacheCommands(t *testing.T) {
	sim := newSimulator(t, simulator.DefaultOptions())

	require.Equal(t, "0 Not found in L1 and L2 cache\n", run(t, sim, "cacheaccess 0"))
	require.Equal(t, "1 Found in L1 cache\n", run(t, sim, "cacheaccess 1"))
	require.Equal(t, "4 Not found in L1 and L2 cache\n", run(t, sim, "cacheaccess 4"))
	require.Equal(t, "0 Found in L2 cache\n", run(t, sim, "cacheaccess 0"))

	require.Equal(t, `L1 hits: 1
L1 misses: 3
L1 hit ratio: 0.2500
L2 hits: 1
L2 misses: 2
L2 hit ratio: 0.3333
`, run(t, sim, "Cachestats"))
}

func TestUsageErrors(t *testing.T) {
	sim := newSimulator(t, simulator.DefaultOptions())

	for _, line := range []string{
		"malloc",
		"malloc 10",
		"malloc ten first",
		"malloc 10 fastest",
		"malloc 0 first",
		"malloc -5 best",
		"free",
		"free -1",
		"free abc",
		"dump now",
		"buddyalloc",
		"buddyalloc 0",
		"buddyfree x",
		"cacheaccess -4",
	} {
		var out bytes.Buffer
		_, err := sim.Execute(line, &out)
		require.Truef(t, errors.Is(err, simulator.ErrUsage), "line %q returned %v", line, err)
		require.Empty(t, out.String())
	}

	_, err := sim.Execute("realloc", &bytes.Buffer{})
	require.True(t, errors.Is(err, simulator.ErrUnknownCommand))

	// Rejected requests never reach the allocator counters
	require.Equal(t, 0, sim.Memory().Stats().Requests)
	require.Equal(t, 0, sim.Buddy().Stats().Requests)
}

func TestCommentsAndExit(t *testing.T) {
	sim := newSimulator(t, simulator.DefaultOptions())

	var out bytes.Buffer
	exiting, err := sim.Execute("   ", &out)
	require.NoError(t, err)
	require.False(t, exiting)

	exiting, err = sim.Execute("# malloc 10 first", &out)
	require.NoError(t, err)
	require.False(t, exiting)
	require.Empty(t, out.String())

	exiting, err = sim.Execute("exit", &out)
	require.NoError(t, err)
	require.True(t, exiting)
	require.Equal(t, "Exiting simulator.\n", out.String())
}

func TestHelpListsCommands(t *testing.T) {
	sim := newSimulator(t, simulator.DefaultOptions())

	out := run(t, sim, "help")
	for _, name := range []string{"malloc", "free", "dump", "stats", "buddyalloc", "buddyfree", "buddydump", "buddystats", "cacheaccess", "cachestats", "exit"} {
		require.Contains(t, out, "  "+name)
	}
}

func TestJsonOutput(t *testing.T) {
	opts := simulator.DefaultOptions()
	opts.JSON = true
	sim := newSimulator(t, opts)

	run(t, sim, "malloc 56 first")
	run(t, sim, "buddyalloc 100")
	run(t, sim, "cacheaccess 3")

	var region map[string]any
	require.NoError(t, json.Unmarshal([]byte(run(t, sim, "dump")), &region))
	require.Equal(t, float64(256), region["TotalBytes"])
	require.Equal(t, float64(1), region["Allocations"])
	require.Len(t, region["Regions"], 2)
	require.Equal(t, float64(200), region["LargestFreeBlock"])

	var regionStats map[string]any
	require.NoError(t, json.Unmarshal([]byte(run(t, sim, "stats")), &regionStats))
	require.Equal(t, float64(1), regionStats["Requests"])

	var buddyLayout map[string]any
	require.NoError(t, json.Unmarshal([]byte(run(t, sim, "buddydump")), &buddyLayout))
	require.Equal(t, float64(1), buddyLayout["Allocations"])

	var buddy map[string]any
	require.NoError(t, json.Unmarshal([]byte(run(t, sim, "buddystats")), &buddy))
	require.Equal(t, float64(8), buddy["MaxOrder"])
	require.Equal(t, float64(28), buddy["InternalFragmentation"])

	var caches map[string]any
	require.NoError(t, json.Unmarshal([]byte(run(t, sim, "cachestats")), &caches))
	require.Equal(t, float64(1), caches["L1Misses"])
	require.Equal(t, float64(1), caches["L2Misses"])
	require.Equal(t, float64(0), caches["L1Hits"])
}

func TestDebugLogging(t *testing.T) {
	var logs bytes.Buffer
	opts := simulator.DefaultOptions()
	opts.Logger = slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	sim := newSimulator(t, opts)

	run(t, sim, "malloc 500 first")
	run(t, sim, "malloc 5 first")

	require.Contains(t, logs.String(), "Simulator::New")
	require.Contains(t, logs.String(), "Simulator::Allocate FAILED")
	require.Contains(t, logs.String(), "Offset=0")
}

func TestCompactCommand(t *testing.T) {
	sim := newSimulator(t, simulator.DefaultOptions())

	run(t, sim, "malloc 10 first")
	run(t, sim, "malloc 20 first")
	run(t, sim, "malloc 30 first")
	run(t, sim, "free 0")

	require.Equal(t, "Compaction moved 0 allocations (0 bytes) in 0 passes\n", run(t, sim, "compact fast"))

	require.Equal(t, `Moved 20 bytes from address 10 to address 0
Moved 30 bytes from address 30 to address 20
Compaction moved 2 allocations (50 bytes) in 1 passes
`, run(t, sim, "compact"))

	require.Equal(t, `Physical Memory Layout:
[0-19] USED (20 bytes)
[20-49] USED (30 bytes)
[50-255] FREE (206 bytes)
`, run(t, sim, "dump"))

	require.Equal(t, "Freed Memory at address 20\n", run(t, sim, "free 20"))
	require.Equal(t, "Compaction moved 0 allocations (0 bytes) in 0 passes\n", run(t, sim, "compact full"))
}

func TestCompactPassLimits(t *testing.T) {
	opts := simulator.DefaultOptions()
	opts.CompactPassAllocations = 1
	sim := newSimulator(t, opts)

	run(t, sim, "malloc 10 first")
	run(t, sim, "malloc 20 first")
	run(t, sim, "malloc 30 first")
	run(t, sim, "free 0")

	out := run(t, sim, "compact")
	require.True(t, strings.HasSuffix(out, "Compaction moved 2 allocations (50 bytes) in 2 passes\n"))

	opts.CompactPassBytes = -1
	_, err := simulator.New(opts)
	require.True(t, errors.Is(err, memutils.ErrInvalidConfiguration))
}

func TestCompactUsage(t *testing.T) {
	sim := newSimulator(t, simulator.DefaultOptions())

	_, err := sim.Execute("compact slow", &bytes.Buffer{})
	require.True(t, errors.Is(err, simulator.ErrUsage))

	_, err = sim.Execute("compact fast full", &bytes.Buffer{})
	require.True(t, errors.Is(err, simulator.ErrUsage))
}

func TestSummaryAndReset(t *testing.T) {
	sim := newSimulator(t, simulator.DefaultOptions())

	require.Equal(t, `Summary:
Blocks: 2 (512 bytes)
Allocations: 0 (0 bytes)
Unused Ranges: 2
Allocation Size: none
Unused Range Size: min 256, max 256
`, run(t, sim, "summary"))

	run(t, sim, "malloc 10 first")
	run(t, sim, "buddyalloc 20")

	require.Equal(t, `Summary:
Blocks: 2 (512 bytes)
Allocations: 2 (42 bytes)
Unused Ranges: 4
Allocation Size: min 10, max 32
Unused Range Size: min 32, max 246
`, run(t, sim, "summary"))

	require.Equal(t, "Memory reset.\n", run(t, sim, "reset"))
	require.True(t, sim.Memory().IsEmpty())
	require.True(t, sim.Buddy().IsEmpty())
	require.Equal(t, 0, sim.Memory().Stats().Requests)
	require.NoError(t, sim.Memory().Validate())
	require.NoError(t, sim.Buddy().Validate())
}

func TestStatsLogsLiveAllocations(t *testing.T) {
	var logs bytes.Buffer
	opts := simulator.DefaultOptions()
	opts.Logger = slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	sim := newSimulator(t, opts)

	run(t, sim, "malloc 24 first")
	run(t, sim, "buddystats")
	require.NotContains(t, logs.String(), "Simulator::Allocation")

	run(t, sim, "stats")
	require.Contains(t, logs.String(), `Simulator::Allocation" Offset=0 Size=24`)
}
