package cli

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/steady/internal/config"
	"github.com/roach88/steady/internal/journal"
	"github.com/roach88/steady/internal/kinds"
	"github.com/roach88/steady/internal/manifest"
	"github.com/roach88/steady/pkg/engine"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Journal string        // overrides [journal] path
	For     time.Duration // stop after this long; zero waits for a signal
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run [manifests-dir]",
		Short: "Start the engine and apply manifests",
		Long: `Start the engine with the built-in kinds (Foo, Parent, Child).

If a journal is configured, its manifests and ownership edges are restored
first. The CUE manifests in manifests-dir (or [manifests] dir) are then
applied, and the engine keeps reconciling until SIGINT or SIGTERM.

Example:
  steady run ./manifests --journal ./steady.db
  steady run --config ./steady.toml --for 10s`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := ""
			if len(args) == 1 {
				dir = args[0]
			}
			return runEngine(opts, dir, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Journal, "journal", "", "path to SQLite journal")
	cmd.Flags().DurationVar(&opts.For, "for", 0, "stop after this duration")

	return cmd
}

func runEngine(opts *RunOptions, dir string, cmd *cobra.Command) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	if opts.Journal != "" {
		cfg.JournalPath = opts.Journal
	}
	if dir != "" {
		cfg.ManifestsDir = dir
	}
	logger := opts.newLogger(cfg, cmd.ErrOrStderr())

	engineOpts := []engine.Option{engine.WithLogger(logger)}

	var j *journal.Journal
	if cfg.JournalPath != "" {
		logger.Info("opening journal", "path", cfg.JournalPath)
		j, err = journal.Open(cfg.JournalPath, journal.WithLogger(logger))
		if err != nil {
			return exitf(ExitCommandError, "failed to open journal: %w", err)
		}
		defer func() {
			if closeErr := j.Close(); closeErr != nil {
				logger.Error("error closing journal", "error", closeErr)
			}
		}()
		engineOpts = append(engineOpts, engine.WithJournal(j))
	}

	e := engine.New(engineOpts...)
	if _, err := kinds.Register(e, kinds.Options{FooResync: cfg.FooResync}); err != nil {
		return exitf(ExitFailure, "failed to register kinds: %w", err)
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	if err := startup(ctx, e, j, cfg, logger); err != nil {
		e.Stop()
		<-done
		if ctx.Err() != nil {
			logger.Info("cancelled during startup", "error", err)
			return nil
		}
		return err
	}

	f := opts.formatter(cmd)
	f.Textf("Engine started. Reconciling %v.", e.Kinds())
	f.Textf("Press Ctrl-C to stop.")

	var deadline <-chan time.Time
	if opts.For > 0 {
		timer := time.NewTimer(opts.For)
		defer timer.Stop()
		deadline = timer.C
	}

	select {
	case sig := <-sigChan:
		logger.Info("received signal, shutting down", "signal", sig)
	case <-deadline:
		logger.Info("run duration elapsed, shutting down", "for", opts.For)
	case <-ctx.Done():
	case err := <-done:
		return engineExit(err)
	}

	e.Stop()
	if err := engineExit(<-done); err != nil {
		return err
	}

	logger.Info("engine stopped gracefully")
	if f.JSON() {
		return f.Success(map[string]any{"kinds": e.Kinds()})
	}
	f.Textf("Engine stopped.")
	return nil
}

// startup restores the journal and applies the configured manifests.
func startup(ctx context.Context, e *engine.Engine, j *journal.Journal, cfg config.Config, logger *slog.Logger) error {
	if j != nil {
		n, err := j.Restore(ctx, e)
		if err != nil {
			return exitf(ExitFailure, "failed to restore journal: %w", err)
		}
		logger.Info("journal restored", "manifests", n)
	}

	if cfg.ManifestsDir == "" {
		return nil
	}

	logger.Info("loading manifests", "dir", cfg.ManifestsDir)
	result, errs := manifest.LoadDir(cfg.ManifestsDir, e, manifest.FailFast)
	if len(errs) > 0 {
		return exitf(ExitCommandError, "failed to load manifests: %w", errs[0])
	}

	applyCtx, cancel := context.WithTimeout(ctx, cfg.AckTimeout*time.Duration(max(len(result.Manifests), 1)))
	defer cancel()
	if err := manifest.Apply(applyCtx, e.Command(), result.Manifests); err != nil {
		return exitf(ExitFailure, "failed to apply manifests: %w", err)
	}
	logger.Info("manifests applied", "files", result.FileCount, "manifests", len(result.Manifests))
	return nil
}

func engineExit(err error) error {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return exitf(ExitFailure, "engine error: run: %w", err)
}
