package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/steady/internal/canonical"
	"github.com/roach88/steady/internal/journal"
	"github.com/roach88/steady/internal/kinds"
	"github.com/roach88/steady/internal/manifest"
	"github.com/roach88/steady/pkg/engine"
	"github.com/roach88/steady/pkg/object"
)

// ApplyOptions holds flags for the apply command.
type ApplyOptions struct {
	*RootOptions
	Journal string // persist the applied manifests here
}

// ManifestSummary describes one decoded manifest.
type ManifestSummary struct {
	Kind   object.Kind `json:"kind"`
	Name   string      `json:"name"`
	Digest string      `json:"digest"`
}

// ApplyResult is the output of the apply command.
type ApplyResult struct {
	Files     int               `json:"files"`
	Manifests []ManifestSummary `json:"manifests"`
	Persisted bool              `json:"persisted,omitempty"`
}

// loadErrorDetail is one entry of the error details list.
type loadErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewApplyCommand creates the apply command.
func NewApplyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ApplyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "apply <manifests-dir>",
		Short: "Validate manifests and optionally persist them",
		Long: `Decode every CUE manifest in a directory against the built-in kinds.

Without --journal this only validates: every error is reported and each
manifest is printed with its content digest. With --journal the manifests
are applied through a short-lived engine, reconciled until idle and
recorded in the journal for a later "steady run".

Exit codes:
  0 - All manifests valid
  1 - Engine error while persisting
  2 - Invalid manifests or command error

Examples:
  steady apply ./manifests
  steady apply ./manifests --format json
  steady apply ./manifests --journal ./steady.db`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApply(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Journal, "journal", "", "path to SQLite journal to persist into")

	return cmd
}

func runApply(opts *ApplyOptions, dir string, cmd *cobra.Command) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	f := opts.formatter(cmd)
	logger := opts.newLogger(cfg, f.Diag)

	// Kinds are registered so their stores can decode; the engine is only
	// started when persisting.
	var j *journal.Journal
	engineOpts := []engine.Option{engine.WithLogger(logger)}
	if opts.Journal != "" {
		j, err = journal.Open(opts.Journal, journal.WithLogger(logger))
		if err != nil {
			return exitf(ExitCommandError, "failed to open journal: %w", err)
		}
		defer j.Close()
		engineOpts = append(engineOpts, engine.WithJournal(j))
	}
	e := engine.New(engineOpts...)
	if _, err := kinds.Register(e, kinds.Options{}); err != nil {
		return exitf(ExitFailure, "failed to register kinds: %w", err)
	}

	f.Debugf("loading manifests from %s", dir)
	result, errs := manifest.LoadDir(dir, e, manifest.CollectAll)
	if len(errs) > 0 {
		return reportLoadErrors(f, errs)
	}

	out := ApplyResult{Files: result.FileCount, Manifests: make([]ManifestSummary, 0, len(result.Manifests))}
	for _, m := range result.Manifests {
		digest, err := canonical.Hash(canonical.DomainManifest, m)
		if err != nil {
			return exitf(ExitFailure, "failed to hash manifest: %w", err)
		}
		out.Manifests = append(out.Manifests, ManifestSummary{Kind: m.Kind(), Name: m.Name(), Digest: digest})
	}

	if j != nil {
		f.Debugf("persisting %d manifest(s) to %s", len(result.Manifests), opts.Journal)
		if err := persist(cmd.Context(), e, result.Manifests, cfg.AckTimeout); err != nil {
			return exitf(ExitFailure, "failed to persist manifests: %w", err)
		}
		out.Persisted = true
	}

	if f.JSON() {
		return f.Success(out)
	}
	for _, m := range out.Manifests {
		f.Textf("%s/%s  %s", m.Kind, m.Name, m.Digest)
	}
	f.Textf("✓ %d manifest(s) from %d file(s) valid", len(out.Manifests), out.Files)
	if out.Persisted {
		f.Textf("✓ persisted to %s", opts.Journal)
	}
	return nil
}

func reportLoadErrors(f *OutputFormatter, errs []error) error {
	details := make([]loadErrorDetail, 0, len(errs))
	for _, err := range errs {
		details = append(details, loadErrorDetail{Code: manifest.Code(err), Message: err.Error()})
	}

	msg := fmt.Sprintf("%d manifest error(s)", len(errs))
	if f.JSON() {
		if err := f.Error(details[0].Code, msg, details); err != nil {
			return err
		}
	} else {
		for _, d := range details {
			_ = f.Error(d.Code, d.Message, nil)
		}
	}
	return exitf(ExitCommandError, "%s", msg)
}

// persist runs e just long enough to apply manifests and let every
// controller settle.
func persist(parent context.Context, e *engine.Engine, manifests []object.AnyManifest, ackTimeout time.Duration) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithTimeout(parent, ackTimeout*time.Duration(len(manifests)+1))
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	err := manifest.Apply(ctx, e.Command(), manifests)
	if err == nil {
		err = waitIdle(ctx, e)
	}

	e.Stop()
	if runErr := <-done; err == nil {
		err = runErr
	}
	return err
}

// waitIdle polls until e is idle.
func waitIdle(ctx context.Context, e *engine.Engine) error {
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for {
		if e.Idle() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
