package simulator

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/memsim/cache"
	"github.com/vkngwrapper/memsim/memutils"
	"github.com/vkngwrapper/memsim/memutils/defrag"
	"github.com/vkngwrapper/memsim/memutils/metadata"
	"golang.org/x/exp/slog"
)

var (
	// ErrUsage is returned from Execute when a command's arguments could not be parsed
	ErrUsage = errors.New("usage")
	// ErrUnknownCommand is returned from Execute when the command name is not recognized
	ErrUnknownCommand = errors.New("unknown command")
)

type command struct {
	usage       string
	description string
	run         func(s *Simulator, args []string, out io.Writer) error
}

// commands is keyed by lower-case command name
var commands map[string]command

var commandOrder = []string{
	"malloc", "free", "dump", "stats", "compact",
	"buddyalloc", "buddyfree", "buddydump", "buddystats",
	"cacheaccess", "cachestats",
	"summary", "reset",
	"help", "exit",
}

func init() {
	commands = map[string]command{
		"malloc":      {usage: "malloc <size> <first|best|worst>", description: "allocate from region memory", run: (*Simulator).runMalloc},
		"free":        {usage: "free <address>", description: "free a region allocation", run: (*Simulator).runFree},
		"dump":        {usage: "dump", description: "print the region memory layout", run: (*Simulator).runDump},
		"stats":       {usage: "stats", description: "print region memory statistics", run: (*Simulator).runStats},
		"compact":     {usage: "compact [fast|full]", description: "relocate region allocations toward address 0", run: (*Simulator).runCompact},
		"buddyalloc":  {usage: "buddyalloc <size>", description: "allocate from buddy memory", run: (*Simulator).runBuddyAlloc},
		"buddyfree":   {usage: "buddyfree <address>", description: "free a buddy allocation", run: (*Simulator).runBuddyFree},
		"buddydump":   {usage: "buddydump", description: "print the buddy memory layout", run: (*Simulator).runBuddyDump},
		"buddystats":  {usage: "buddystats", description: "print buddy memory statistics", run: (*Simulator).runBuddyStats},
		"cacheaccess": {usage: "cacheaccess <address>", description: "look up an address in the L1/L2 caches", run: (*Simulator).runCacheAccess},
		"cachestats":  {usage: "cachestats", description: "print cache statistics", run: (*Simulator).runCacheStats},
		"summary":     {usage: "summary", description: "print combined statistics for both allocators", run: (*Simulator).runSummary},
		"reset":       {usage: "reset", description: "release every region and buddy allocation", run: (*Simulator).runReset},
		"help":        {usage: "help", description: "list available commands", run: (*Simulator).runHelp},
		"exit":        {usage: "exit", description: "leave the simulator", run: (*Simulator).runExit},
	}
}

// Simulator owns one region allocator, one buddy allocator and a two-level cache, and executes
// text commands against them. It is not safe for concurrent use.
type Simulator struct {
	logger *slog.Logger
	json   bool

	compactPass defrag.PassContext

	memory *metadata.RegionBlockMetadata
	buddy  *metadata.BuddyBlockMetadata
	cache  *cache.Multilevel

	exiting bool
}

// New builds a Simulator from opts. It returns an error wrapping memutils.ErrInvalidConfiguration
// if any allocator or cache cannot be built with the requested sizes.
func New(opts Options) (*Simulator, error) {
	err := opts.validate()
	if err != nil {
		return nil, err
	}

	memory, err := metadata.NewRegionBlockMetadata(opts.MemorySize)
	if err != nil {
		return nil, err
	}

	buddy, err := metadata.NewBuddyBlockMetadata(opts.BuddySize)
	if err != nil {
		return nil, err
	}

	l1, err := cache.NewCache(opts.L1.Size, opts.L1.BlockSize, opts.L1.Associativity)
	if err != nil {
		return nil, errors.Wrap(err, "could not build the L1 cache")
	}

	l2, err := cache.NewCache(opts.L2.Size, opts.L2.BlockSize, opts.L2.Associativity)
	if err != nil {
		return nil, errors.Wrap(err, "could not build the L2 cache")
	}

	logger := opts.logger()
	logger.Debug("Simulator::New",
		slog.Int("MemorySize", opts.MemorySize),
		slog.Int("BuddySize", opts.BuddySize),
		slog.Int("L1Size", opts.L1.Size),
		slog.Int("L2Size", opts.L2.Size),
	)

	return &Simulator{
		logger: logger,
		json:   opts.JSON,
		compactPass: defrag.PassContext{
			MaxPassBytes:       opts.CompactPassBytes,
			MaxPassAllocations: opts.CompactPassAllocations,
		},
		memory: memory,
		buddy:  buddy,
		cache:  cache.NewMultilevel(l1, l2),
	}, nil
}

// Memory returns the region allocator driven by malloc and free
func (s *Simulator) Memory() *metadata.RegionBlockMetadata {
	return s.memory
}

// Buddy returns the buddy allocator driven by buddyalloc and buddyfree
func (s *Simulator) Buddy() *metadata.BuddyBlockMetadata {
	return s.buddy
}

// Cache returns the cache hierarchy driven by cacheaccess
func (s *Simulator) Cache() *cache.Multilevel {
	return s.cache
}

// Execute runs a single command line, writing its output to out. It returns true once the exit
// command has been run. Blank lines and lines beginning with # are ignored.
//
// Allocator outcomes, including allocation failures and invalid frees, are reported in the output.
// Errors are only returned for lines that could not be parsed (wrapping ErrUsage or
// ErrUnknownCommand) or for failures writing to out.
func (s *Simulator) Execute(line string, out io.Writer) (bool, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
		return s.exiting, nil
	}

	name := strings.ToLower(fields[0])
	cmd, ok := commands[name]
	if !ok {
		return s.exiting, errors.Wrapf(ErrUnknownCommand, "%q, type 'help' for commands", fields[0])
	}

	s.logger.Debug("Simulator::Execute", slog.String("Command", name), slog.Int("ArgCount", len(fields)-1))

	err := cmd.run(s, fields[1:], out)
	if err != nil {
		return s.exiting, err
	}

	return s.exiting, nil
}

func usageError(cmd string) error {
	return errors.Wrapf(ErrUsage, "Usage: %s", commands[cmd].usage)
}

func parseArgs(cmd string, args []string, count int) error {
	if len(args) != count {
		return usageError(cmd)
	}
	return nil
}

func parseInt(cmd string, arg string) (int, error) {
	value, err := strconv.Atoi(arg)
	if err != nil {
		return 0, errors.Wrapf(usageError(cmd), "%q is not an integer", arg)
	}
	return value, nil
}

func parseAddress(cmd string, arg string) (int, error) {
	address, err := parseInt(cmd, arg)
	if err != nil {
		return 0, err
	}
	if address < 0 {
		return 0, errors.Wrapf(usageError(cmd), "address %d is negative", address)
	}
	return address, nil
}

func (s *Simulator) runMalloc(args []string, out io.Writer) error {
	if err := parseArgs("malloc", args, 2); err != nil {
		return err
	}

	size, err := parseInt("malloc", args[0])
	if err != nil {
		return err
	}

	strategy, err := metadata.ParseFitStrategy(args[1])
	if err != nil {
		return errors.Wrap(usageError("malloc"), err.Error())
	}

	offset, err := s.memory.Allocate(size, strategy)
	if errors.Is(err, memutils.ErrInvalidAllocationSize) {
		return errors.Wrap(usageError("malloc"), err.Error())
	} else if errors.Is(err, memutils.ErrAllocationFailure) {
		s.logger.Debug("  Simulator::Allocate FAILED", slog.Int("Size", size), slog.String("Strategy", strategy.String()))
		_, err = fmt.Fprintln(out, "Allocation failed")
		return err
	} else if err != nil {
		return err
	}

	s.logger.Debug("Simulator::Allocate", slog.Int("Size", size), slog.String("Strategy", strategy.String()), slog.Int("Offset", offset))
	_, err = fmt.Fprintf(out, "Allocated %d bytes at address %d\n", size, offset)
	return err
}

func (s *Simulator) runFree(args []string, out io.Writer) error {
	if err := parseArgs("free", args, 1); err != nil {
		return err
	}

	address, err := parseAddress("free", args[0])
	if err != nil {
		return err
	}

	err = s.memory.Free(address)
	if errors.Is(err, memutils.ErrInvalidFreeTarget) {
		s.logger.Debug("  Simulator::Free FAILED", slog.Int("Offset", address), slog.Any("error", err))
		_, err = fmt.Fprintf(out, "No allocation at address %d\n", address)
		return err
	} else if err != nil {
		return err
	}

	s.logger.Debug("Simulator::Free", slog.Int("Offset", address))
	_, err = fmt.Fprintf(out, "Freed Memory at address %d\n", address)
	return err
}

func (s *Simulator) runDump(args []string, out io.Writer) error {
	if err := parseArgs("dump", args, 0); err != nil {
		return err
	}

	if s.json {
		return writeJson(out, s.memory)
	}
	return writeRegionDump(out, s.memory.Regions())
}

func (s *Simulator) runStats(args []string, out io.Writer) error {
	if err := parseArgs("stats", args, 0); err != nil {
		return err
	}

	s.memory.DebugLogAllAllocations(s.logger, logAllocation)

	if s.json {
		return writeJson(out, s.memory)
	}
	return writeRegionStats(out, s.memory.Stats())
}

func (s *Simulator) runCompact(args []string, out io.Writer) error {
	if len(args) > 1 {
		return usageError("compact")
	}

	algorithm := defrag.AlgorithmFull
	if len(args) == 1 {
		switch strings.ToLower(args[0]) {
		case "fast":
			algorithm = defrag.AlgorithmFast
		case "full":
		default:
			return errors.Wrapf(usageError("compact"), "unknown algorithm %q", args[0])
		}
	}

	var writeErr error
	context := defrag.MetadataDefragContext{
		Algorithm: algorithm,
		Metadata:  s.memory,
		Handler: func(move defrag.DefragmentationMove) defrag.DefragmentationMoveOperation {
			s.logger.Debug("Simulator::Compact", slog.Int("Size", move.Size), slog.Int("SrcOffset", move.SrcOffset), slog.Int("DstOffset", move.DstOffset))
			if writeErr == nil {
				_, writeErr = fmt.Fprintf(out, "Moved %d bytes from address %d to address %d\n", move.Size, move.SrcOffset, move.DstOffset)
			}
			return defrag.DefragmentationMoveCopy
		},
	}

	pass := s.compactPass
	stats, err := context.Run(&pass)
	if err != nil {
		return err
	}
	if writeErr != nil {
		return writeErr
	}

	_, err = fmt.Fprintf(out, "Compaction moved %d allocations (%d bytes) in %d passes\n", stats.AllocationsMoved, stats.BytesMoved, stats.Passes)
	return err
}

func (s *Simulator) runBuddyAlloc(args []string, out io.Writer) error {
	if err := parseArgs("buddyalloc", args, 1); err != nil {
		return err
	}

	size, err := parseInt("buddyalloc", args[0])
	if err != nil {
		return err
	}

	handle, err := s.buddy.Allocate(size)
	if errors.Is(err, memutils.ErrInvalidAllocationSize) {
		return errors.Wrap(usageError("buddyalloc"), err.Error())
	} else if errors.Is(err, memutils.ErrAllocationFailure) {
		s.logger.Debug("  Simulator::BuddyAllocate FAILED", slog.Int("Size", size))
		_, err = fmt.Fprintln(out, "Buddy allocation failed: out of memory")
		return err
	} else if err != nil {
		return err
	}

	s.logger.Debug("Simulator::BuddyAllocate", slog.Int("Size", size), slog.Int("Offset", handle.Offset), slog.Int("Order", handle.Order))
	_, err = fmt.Fprintf(out, "buddy allocated %d bytes at address %d (order %d, %d bytes)\n", size, handle.Offset, handle.Order, handle.Size())
	return err
}

func (s *Simulator) runBuddyFree(args []string, out io.Writer) error {
	if err := parseArgs("buddyfree", args, 1); err != nil {
		return err
	}

	address, err := parseAddress("buddyfree", args[0])
	if err != nil {
		return err
	}

	err = s.buddy.FreeOffset(address)
	if errors.Is(err, memutils.ErrInvalidFreeTarget) {
		s.logger.Debug("  Simulator::BuddyFree FAILED", slog.Int("Offset", address), slog.Any("error", err))
		_, err = fmt.Fprintf(out, "No buddy allocation at address %d\n", address)
		return err
	} else if err != nil {
		return err
	}

	s.logger.Debug("Simulator::BuddyFree", slog.Int("Offset", address))
	_, err = fmt.Fprintf(out, "buddy freed memory at address %d\n", address)
	return err
}

func (s *Simulator) runBuddyDump(args []string, out io.Writer) error {
	if err := parseArgs("buddydump", args, 0); err != nil {
		return err
	}

	if s.json {
		return writeJson(out, s.buddy)
	}
	return writeBuddyDump(out, s.buddy.Chunks(), s.buddy.FreeListLengths())
}

func (s *Simulator) runBuddyStats(args []string, out io.Writer) error {
	if err := parseArgs("buddystats", args, 0); err != nil {
		return err
	}

	s.buddy.DebugLogAllAllocations(s.logger, logAllocation)

	if s.json {
		return writeJson(out, s.buddy)
	}
	return writeBuddyStats(out, s.buddy.Stats())
}

func (s *Simulator) runCacheAccess(args []string, out io.Writer) error {
	if err := parseArgs("cacheaccess", args, 1); err != nil {
		return err
	}

	address, err := parseAddress("cacheaccess", args[0])
	if err != nil {
		return err
	}

	result := s.cache.Access(address)
	s.logger.Debug("Simulator::CacheAccess", slog.Int("Address", address), slog.String("Result", result.String()))

	switch result {
	case cache.HitL1:
		_, err = fmt.Fprintf(out, "%d Found in L1 cache\n", address)
	case cache.HitL2:
		_, err = fmt.Fprintf(out, "%d Found in L2 cache\n", address)
	default:
		_, err = fmt.Fprintf(out, "%d Not found in L1 and L2 cache\n", address)
	}
	return err
}

func (s *Simulator) runCacheStats(args []string, out io.Writer) error {
	if err := parseArgs("cachestats", args, 0); err != nil {
		return err
	}

	if s.json {
		return writeCacheJson(out, s.cache)
	}
	return writeCacheStats(out, s.cache)
}

func (s *Simulator) runSummary(args []string, out io.Writer) error {
	if err := parseArgs("summary", args, 0); err != nil {
		return err
	}

	var totals memutils.Statistics
	s.memory.AddStatistics(&totals)
	s.buddy.AddStatistics(&totals)

	var detailed, buddyDetailed memutils.DetailedStatistics
	detailed.Clear()
	buddyDetailed.Clear()
	s.memory.AddDetailedStatistics(&detailed)
	s.buddy.AddDetailedStatistics(&buddyDetailed)
	detailed.AddDetailedStatistics(&buddyDetailed)

	if s.json {
		return writeSummaryJson(out, totals, detailed)
	}
	return writeSummary(out, totals, detailed)
}

func (s *Simulator) runReset(args []string, out io.Writer) error {
	if err := parseArgs("reset", args, 0); err != nil {
		return err
	}

	s.memory.Clear()
	s.buddy.Clear()
	s.logger.Debug("Simulator::Reset")

	_, err := fmt.Fprintln(out, "Memory reset.")
	return err
}

func logAllocation(logger *slog.Logger, offset int, size int) {
	logger.Debug("  Simulator::Allocation", slog.Int("Offset", offset), slog.Int("Size", size))
}

func (s *Simulator) runHelp(args []string, out io.Writer) error {
	return writeHelp(out)
}

func (s *Simulator) runExit(args []string, out io.Writer) error {
	s.exiting = true
	_, err := fmt.Fprintln(out, "Exiting simulator.")
	return err
}
