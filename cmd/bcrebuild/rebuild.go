package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"bcrebuild/internal/config"
	"bcrebuild/internal/diagfmt"
	"bcrebuild/internal/driver"
)

func newRebuildCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rebuild [flags] <module|directory>...",
		Short: "Rebuild modules into the bytecode dialect",
		Long: `Rebuild every module file given, or every module file below the given
directories. Results are written next to each input as <name>.rebuilt.<ext>
unless --out or --out-dir says otherwise.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runRebuild,
	}
	addConfigFlags(cmd)
	cmd.Flags().String("format", "", "output format (msgpack|yaml|text), default from config")
	cmd.Flags().StringP("out", "o", "", "output file for a single input (- for stdout)")
	cmd.Flags().String("out-dir", "", "directory for rebuilt modules")
	cmd.Flags().Bool("dry-run", false, "rebuild and verify without writing results")
	cmd.Flags().Bool("stats", false, "print per-function statistics")
	cmd.Flags().Bool("timings", false, "print how long each stage took")
	cmd.Flags().String("diag-format", "pretty", "diagnostics format (pretty|json|short)")
	cmd.Flags().String("ui", "auto", "progress view (auto|on|off)")
	return cmd
}

func runRebuild(cmd *cobra.Command, args []string) error {
	defer dumpTraceOnPanic(cmd)

	g, err := readGlobalOptions(cmd)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(cmd, g)
	if err != nil {
		return err
	}
	out, err := cmd.Flags().GetString("out")
	if err != nil {
		return fmt.Errorf("failed to get out flag: %w", err)
	}
	dryRun, err := cmd.Flags().GetBool("dry-run")
	if err != nil {
		return fmt.Errorf("failed to get dry-run flag: %w", err)
	}
	showStats, err := cmd.Flags().GetBool("stats")
	if err != nil {
		return fmt.Errorf("failed to get stats flag: %w", err)
	}
	showTimings, err := cmd.Flags().GetBool("timings")
	if err != nil {
		return fmt.Errorf("failed to get timings flag: %w", err)
	}
	diagFormat, err := cmd.Flags().GetString("diag-format")
	if err != nil {
		return fmt.Errorf("failed to get diag-format flag: %w", err)
	}

	uiValue, err := cmd.Flags().GetString("ui")
	if err != nil {
		return fmt.Errorf("failed to get ui flag: %w", err)
	}
	mode, err := readUIMode(uiValue)
	if err != nil {
		return err
	}

	paths, err := driver.ExpandInputs(args)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return fmt.Errorf("no module files found in %v", args)
	}

	toStdout := out == "-"
	if toStdout && len(paths) > 1 {
		return fmt.Errorf("-o -: %w", driver.ErrOutPathWithManyInputs)
	}
	if toStdout && cfg.Format == config.FormatMsgpack && writesToTerminal(cmd) {
		return fmt.Errorf("refusing to write msgpack to a terminal; use --format or a file")
	}
	opts := driver.Options{
		Config:         cfg,
		MaxDiagnostics: g.maxDiagnostics,
		Jobs:           g.jobs,
		DryRun:         dryRun || toStdout,
	}
	if !toStdout {
		opts.OutPath = out
	}
	useTUI := shouldUseTUI(mode, cmd, toStdout, g.quiet)
	var results []*driver.Result
	var runErr error
	if useTUI {
		results, runErr = rebuildWithUI(cmd.Context(), cmd, paths, opts)
	} else {
		results, runErr = driver.RebuildFiles(cmd.Context(), paths, opts)
	}
	if results == nil && runErr != nil {
		return runErr
	}

	stdout := cmd.OutOrStdout()
	failed := false
	for _, r := range results {
		if r.Failed() {
			failed = true
			continue
		}
		if toStdout {
			if err := driver.EncodeModule(stdout, r.Module, cfg.Format); err != nil {
				return err
			}
		} else if r.OutPath != "" && !g.quiet && !useTUI {
			fmt.Fprintf(stdout, "%s -> %s\n", r.Path, r.OutPath)
		}
		if showStats && r.Stats != nil && !toStdout {
			rows, total := driver.StatsRows(r.Stats)
			fmt.Fprintf(stdout, "\n%s\n", r.Path)
			if err := diagfmt.StatsTable(stdout, rows, &total, diagfmt.TableOpts{Color: g.color}); err != nil {
				return err
			}
		}
		if showTimings {
			fmt.Fprint(cmd.ErrOrStderr(), r.Timings.Summary(r.Path))
		}
	}

	if err := printDiagnostics(cmd, driver.MergeBags(results, g.maxDiagnostics), diagFormat, g); err != nil {
		return err
	}
	if failed || runErr != nil {
		return errReported
	}
	return nil
}
