package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"bcrebuild/internal/prof"
	"bcrebuild/internal/version"
)

// errReported ends a command whose problems were already printed as
// diagnostics.
var errReported = errors.New("diagnostics reported")

// newRootCmd builds the command tree. The returned function stops the
// profilers, releases the tracer and must run after Execute.
func newRootCmd() (*cobra.Command, func()) {
	cleanup := func() {}
	var profiles *prof.Session
	root := &cobra.Command{
		Use:           "bcrebuild",
		Short:         "Rebuild IR modules into the restricted bytecode dialect",
		Long:          `bcrebuild rewrites every function of an IR module so that it only uses integer, pointer-to-integer and flat array types, lowering address arithmetic to byte or element offsets.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			c, err := setupTracing(cmd)
			if err != nil {
				return err
			}
			cleanup = c
			profiles, err = startProfiles(cmd)
			return err
		},
	}

	root.AddCommand(newRebuildCmd())
	root.AddCommand(newDumpCmd())
	root.AddCommand(newVersionCmd())

	flags := root.PersistentFlags()
	flags.String("color", "auto", "colorize output (auto|on|off)")
	flags.Bool("quiet", false, "suppress non-essential output")
	flags.String("config", "", "path to bcrebuild.toml (default: search upwards from the working directory)")
	flags.Int("jobs", 0, "max parallel workers (0=auto)")
	flags.Int("max-diagnostics", 100, "maximum number of diagnostics to show per file")
	flags.String("trace", "", "trace output file (- for stderr)")
	flags.String("trace-level", "off", "trace level (off|error|phase|detail|debug)")
	flags.String("trace-mode", "stream", "trace storage (stream|ring|both)")
	flags.Int("trace-ring-size", 4096, "events kept by the ring tracer")
	flags.Duration("trace-heartbeat", 0, "emit a heartbeat event at this interval (0 disables)")
	flags.String("cpuprofile", "", "write a CPU profile to this file")
	flags.String("memprofile", "", "write a heap profile to this file on exit")
	flags.String("runtime-trace", "", "write a Go runtime trace to this file")

	return root, func() {
		if err := profiles.Stop(); err != nil {
			fmt.Fprintf(os.Stderr, "bcrebuild: failed to write profiles: %v\n", err)
		}
		cleanup()
	}
}

func startProfiles(cmd *cobra.Command) (*prof.Session, error) {
	var cfg prof.Config
	var err error
	if cfg.CPU, err = cmd.Flags().GetString("cpuprofile"); err != nil {
		return nil, fmt.Errorf("failed to get cpuprofile flag: %w", err)
	}
	if cfg.Mem, err = cmd.Flags().GetString("memprofile"); err != nil {
		return nil, fmt.Errorf("failed to get memprofile flag: %w", err)
	}
	if cfg.Trace, err = cmd.Flags().GetString("runtime-trace"); err != nil {
		return nil, fmt.Errorf("failed to get runtime-trace flag: %w", err)
	}
	if !cfg.Enabled() {
		return nil, nil
	}
	return prof.Start(cfg)
}

// main exits with status 1 when the command fails; diagnostics have
// already been written in that case.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	root, cleanup := newRootCmd()
	err := root.ExecuteContext(ctx)
	cleanup()
	stop()
	if err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintf(os.Stderr, "bcrebuild: %v\n", err)
		}
		os.Exit(1)
	}
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd())) //nolint:gosec // file descriptors fit in int
}

func writesToTerminal(cmd *cobra.Command) bool {
	f, ok := cmd.OutOrStdout().(*os.File)
	return ok && isTerminal(f)
}
