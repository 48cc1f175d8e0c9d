package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"bcrebuild/internal/config"
	"bcrebuild/internal/diag"
	"bcrebuild/internal/diagfmt"
	"bcrebuild/internal/source"
)

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	color          bool
	quiet          bool
	configPath     string
	jobs           int
	maxDiagnostics int
}

func readGlobalOptions(cmd *cobra.Command) (globalOptions, error) {
	flags := cmd.Root().PersistentFlags()
	var opts globalOptions

	colorFlag, err := flags.GetString("color")
	if err != nil {
		return opts, fmt.Errorf("failed to get color flag: %w", err)
	}
	switch strings.ToLower(colorFlag) {
	case "on":
		opts.color = true
	case "off":
		opts.color = false
	case "auto":
		opts.color = isTerminal(os.Stderr)
	default:
		return opts, fmt.Errorf("unsupported color mode %q (expected auto|on|off)", colorFlag)
	}
	// fatih/color consults the global switch for banners and tables.
	color.NoColor = !opts.color

	if opts.quiet, err = flags.GetBool("quiet"); err != nil {
		return opts, fmt.Errorf("failed to get quiet flag: %w", err)
	}
	if opts.configPath, err = flags.GetString("config"); err != nil {
		return opts, fmt.Errorf("failed to get config flag: %w", err)
	}
	if opts.jobs, err = flags.GetInt("jobs"); err != nil {
		return opts, fmt.Errorf("failed to get jobs flag: %w", err)
	}
	if opts.maxDiagnostics, err = flags.GetInt("max-diagnostics"); err != nil {
		return opts, fmt.Errorf("failed to get max-diagnostics flag: %w", err)
	}
	return opts, nil
}

// addConfigFlags registers the flags that override bcrebuild.toml.
func addConfigFlags(cmd *cobra.Command) {
	cmd.Flags().String("target", "", "data layout preset (bytecode64|bytecode32)")
	cmd.Flags().Bool("allow-non-uniform", false, "accept aggregates whose leaves differ in type")
	cmd.Flags().Bool("no-verify", false, "skip checking the rebuilt module")
}

// loadConfig resolves bcrebuild.toml and applies command-line overrides.
func loadConfig(cmd *cobra.Command, g globalOptions) (config.Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		return config.Config{}, err
	}
	cfg, err := config.Resolve(wd, g.configPath)
	if err != nil {
		bag := diag.NewBag(1)
		bag.Add(diag.NewError(diag.CfgInvalid, source.Pos{}, err.Error()))
		if perr := printDiagnostics(cmd, bag, "pretty", g); perr != nil {
			return config.Config{}, perr
		}
		return config.Config{}, errReported
	}

	flags := cmd.Flags()
	if flags.Changed("target") {
		name, _ := flags.GetString("target")
		t, err := config.TargetByName(name)
		if err != nil {
			return config.Config{}, err
		}
		cfg.Target = t
	}
	if flags.Changed("allow-non-uniform") {
		cfg.AllowNonUniform, _ = flags.GetBool("allow-non-uniform")
	}
	if flags.Changed("no-verify") {
		noVerify, _ := flags.GetBool("no-verify")
		cfg.Verify = !noVerify
	}
	if f := flags.Lookup("format"); f != nil && f.Changed {
		format, err := config.ParseFormat(f.Value.String())
		if err != nil {
			return config.Config{}, err
		}
		cfg.Format = format
	}
	if f := flags.Lookup("out-dir"); f != nil && f.Changed {
		cfg.Dir = f.Value.String()
	}
	return cfg, nil
}

// printDiagnostics renders bag to stderr, or to stdout for machine
// formats. In quiet mode informational diagnostics are dropped.
func printDiagnostics(cmd *cobra.Command, bag *diag.Bag, format string, g globalOptions) error {
	if g.quiet {
		kept := diag.NewBag(int(bag.Cap()))
		for _, d := range bag.Items() {
			if d.Severity >= diag.SevWarning {
				kept.Add(d)
			}
		}
		bag = kept
	}
	bag.Sort()
	bag.Dedup()

	switch format {
	case "pretty":
		if bag.Len() == 0 {
			return nil
		}
		return diagfmt.Pretty(cmd.ErrOrStderr(), bag, diagfmt.PrettyOpts{
			Color:     g.color,
			ShowNotes: true,
			ShowInstr: true,
			Summary:   !g.quiet && bag.HasErrors(),
		})
	case "json":
		return diagfmt.JSON(cmd.OutOrStdout(), bag, diagfmt.JSONOpts{IncludeNotes: true})
	case "short":
		_, err := fmt.Fprint(cmd.ErrOrStderr(), diag.FormatShort(bag.Items(), true))
		return err
	}
	return fmt.Errorf("unsupported diagnostics format %q (expected pretty|json|short)", format)
}
