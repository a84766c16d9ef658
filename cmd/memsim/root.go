package main

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/vkngwrapper/memsim/simulator"
	"golang.org/x/exp/slog"
)

const prompt = "mem> "

// cliFlags holds the global flags shared by every subcommand
type cliFlags struct {
	verbose bool
	quiet   bool
	jsonOut bool

	memorySize int
	buddySize  int

	l1Size  int
	l1Block int
	l1Assoc int
	l2Size  int
	l2Block int
	l2Assoc int

	compactPassBytes  int
	compactPassAllocs int
}

func newRootCmd() *cobra.Command {
	flags := &cliFlags{}
	defaults := simulator.DefaultOptions()

	rootCmd := &cobra.Command{
		Use:   "memsim",
		Short: "Simulate memory allocation strategies and a two-level cache",
		Long: `memsim is an interactive simulator for address-space allocators. It manages a
region of simulated memory with first, best and worst fit placement, a power-of-two
buddy allocator, and a two-level FIFO cache, and reports layout and fragmentation
statistics for each.

Type 'help' at the prompt for the list of commands.`,
		Version:       version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			sim, err := flags.newSimulator(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			return runInteractive(sim, flags, cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.BoolVarP(&flags.verbose, "verbose", "v", false, "Enable debug logging on stderr")
	pf.BoolVarP(&flags.quiet, "quiet", "q", false, "Suppress the prompt and banner")
	pf.BoolVar(&flags.jsonOut, "json", false, "Render dump and stats output as JSON")
	pf.IntVar(&flags.memorySize, "memory-size", defaults.MemorySize, "Bytes of region memory")
	pf.IntVar(&flags.buddySize, "buddy-size", defaults.BuddySize, "Bytes of buddy memory, a power of two")
	pf.IntVar(&flags.l1Size, "l1-size", defaults.L1.Size, "L1 cache size in bytes")
	pf.IntVar(&flags.l1Block, "l1-block", defaults.L1.BlockSize, "L1 cache block size in bytes")
	pf.IntVar(&flags.l1Assoc, "l1-assoc", defaults.L1.Associativity, "L1 cache associativity")
	pf.IntVar(&flags.l2Size, "l2-size", defaults.L2.Size, "L2 cache size in bytes")
	pf.IntVar(&flags.l2Block, "l2-block", defaults.L2.BlockSize, "L2 cache block size in bytes")
	pf.IntVar(&flags.l2Assoc, "l2-assoc", defaults.L2.Associativity, "L2 cache associativity")
	pf.IntVar(&flags.compactPassBytes, "compact-pass-bytes", 0, "Maximum bytes relocated per compaction pass, 0 for no limit")
	pf.IntVar(&flags.compactPassAllocs, "compact-pass-allocs", 0, "Maximum allocations relocated per compaction pass, 0 for no limit")

	rootCmd.AddCommand(newRunCmd(flags))
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

func (f *cliFlags) options(logOut io.Writer) simulator.Options {
	opts := simulator.Options{
		MemorySize: f.memorySize,
		BuddySize:  f.buddySize,
		L1: simulator.CacheOptions{
			Size:          f.l1Size,
			BlockSize:     f.l1Block,
			Associativity: f.l1Assoc,
		},
		L2: simulator.CacheOptions{
			Size:          f.l2Size,
			BlockSize:     f.l2Block,
			Associativity: f.l2Assoc,
		},
		CompactPassBytes:       f.compactPassBytes,
		CompactPassAllocations: f.compactPassAllocs,
		JSON:                   f.jsonOut,
	}

	if f.verbose {
		opts.Logger = slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
	}

	return opts
}

func (f *cliFlags) newSimulator(logOut io.Writer) (*simulator.Simulator, error) {
	sim, err := simulator.New(f.options(logOut))
	if err != nil {
		return nil, errors.Wrap(err, "could not create simulator")
	}
	return sim, nil
}

// runInteractive reads commands from in until exit or end of input. Command errors are
// printed and the loop continues.
func runInteractive(sim *simulator.Simulator, flags *cliFlags, in io.Reader, out, errOut io.Writer) error {
	if !flags.quiet {
		fmt.Fprintln(out, "Memory simulator. Type 'help' for commands.")
	}

	scanner := bufio.NewScanner(in)
	for {
		if !flags.quiet {
			fmt.Fprint(out, prompt)
		}

		if !scanner.Scan() {
			break
		}

		exiting, err := sim.Execute(scanner.Text(), out)
		if err != nil {
			fmt.Fprintf(errOut, "Error: %v\n", err)
		}
		if exiting {
			return nil
		}
	}

	if !flags.quiet {
		fmt.Fprintln(out)
	}
	return scanner.Err()
}

func execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
