package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"bcrebuild/internal/config"
	"bcrebuild/internal/diag"
	"bcrebuild/internal/driver"
)

func newDumpCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dump [flags] <module>",
		Short: "Print a module, optionally after rebuilding it",
		Long: `Decode a module file and print it as text, or convert it to another
module format with --format and --out.`,
		Args: cobra.ExactArgs(1),
		RunE: runDump,
	}
	addConfigFlags(cmd)
	cmd.Flags().String("format", config.FormatText, "output format (text|yaml|msgpack)")
	cmd.Flags().StringP("out", "o", "", "write to a file instead of stdout")
	cmd.Flags().Bool("rebuild", false, "run the rebuild pass before printing")
	return cmd
}

func runDump(cmd *cobra.Command, args []string) error {
	defer dumpTraceOnPanic(cmd)

	g, err := readGlobalOptions(cmd)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(cmd, g)
	if err != nil {
		return err
	}
	// loadConfig only applies --format when it was given explicitly.
	if !cmd.Flags().Changed("format") {
		cfg.Format = config.FormatText
	}
	out, err := cmd.Flags().GetString("out")
	if err != nil {
		return fmt.Errorf("failed to get out flag: %w", err)
	}
	rebuildFirst, err := cmd.Flags().GetBool("rebuild")
	if err != nil {
		return fmt.Errorf("failed to get rebuild flag: %w", err)
	}
	if cfg.Format == config.FormatMsgpack && (out == "" || out == "-") && writesToTerminal(cmd) {
		return fmt.Errorf("refusing to write msgpack to a terminal; use --out")
	}

	ctx := cmd.Context()
	bag := diag.NewBag(g.maxDiagnostics)
	m := driver.LoadModule(ctx, args[0], bag)
	if m != nil && rebuildFirst {
		driver.RebuildModule(ctx, m, cfg, bag)
	}
	if bag.HasErrors() {
		if err := printDiagnostics(cmd, bag, "pretty", g); err != nil {
			return err
		}
		return errReported
	}

	if out == "" || out == "-" {
		return driver.EncodeModule(cmd.OutOrStdout(), m, cfg.Format)
	}
	return driver.WriteModule(out, m, cfg.Format)
}
