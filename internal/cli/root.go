package cli

import (
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/steady/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
	Config  string // path to a TOML config file, optional
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the steady CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "steady",
		Short: "steady - declarative reconciliation engine",
		Long: `Run controllers that drive objects toward their declared manifests.

Manifests are written in CUE, mirrored to a SQLite journal and reconciled
by one controller per kind. Removing an object removes everything it owns.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVarP(&opts.Config, "config", "c", "", "path to steady.toml")

	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewApplyCommand(opts))
	cmd.AddCommand(NewJournalCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}

// loadConfig returns the file config, or the defaults without --config.
func (o *RootOptions) loadConfig() (config.Config, error) {
	if o.Config == "" {
		return config.Default(), nil
	}
	cfg, err := config.Load(o.Config)
	if err != nil {
		return config.Config{}, exitf(ExitCommandError, "invalid config: %w", err)
	}
	return cfg, nil
}

// newLogger builds the text logger commands log to. --verbose forces debug.
func (o *RootOptions) newLogger(cfg config.Config, w io.Writer) *slog.Logger {
	level := cfg.LogLevel
	if o.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// formatter returns an OutputFormatter writing to cmd's streams.
func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:  o.Format,
		Out:     cmd.OutOrStdout(),
		Diag:    cmd.ErrOrStderr(),
		Verbose: o.Verbose,
	}
}
