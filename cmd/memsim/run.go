package main

import (
	"bufio"
	"io"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/vkngwrapper/memsim/simulator"
)

func newRunCmd(flags *cliFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run <script>",
		Short: "Execute a file of simulator commands",
		Long: `The run command executes simulator commands from a file, one per line, and
stops at the first line that cannot be parsed. Blank lines and lines starting
with # are skipped. Use - to read commands from stdin.

Example:
  memsim run workload.txt
  memsim run workload.txt --json --buddy-size 1024`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sim, err := flags.newSimulator(cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			in := cmd.InOrStdin()
			if args[0] != "-" {
				file, err := os.Open(args[0])
				if err != nil {
					return errors.Wrapf(err, "could not open script %s", args[0])
				}
				defer file.Close()
				in = file
			}

			return runScript(sim, in, cmd.OutOrStdout())
		},
	}
}

func runScript(sim *simulator.Simulator, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	lineNumber := 0
	for scanner.Scan() {
		lineNumber++

		exiting, err := sim.Execute(scanner.Text(), out)
		if err != nil {
			return errors.Wrapf(err, "line %d", lineNumber)
		}
		if exiting {
			return nil
		}
	}

	return scanner.Err()
}
