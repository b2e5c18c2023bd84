package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/steady/internal/journal"
	"github.com/roach88/steady/pkg/object"
)

// JournalOptions holds flags for the journal command.
type JournalOptions struct {
	*RootOptions
	Object    string // Kind/name or Kind
	Since     int64
	Manifests bool
}

// NewJournalCommand creates the journal command.
func NewJournalCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &JournalOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "journal <db>",
		Short: "Inspect a journal",
		Long: `Print the change log of a journal, oldest first.

With --manifests the current manifests are printed instead.

Examples:
  steady journal ./steady.db
  steady journal ./steady.db --object Child/Sara
  steady journal ./steady.db --object Foo --since 10
  steady journal ./steady.db --manifests --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJournal(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Object, "object", "", "only changes of Kind or Kind/name")
	cmd.Flags().Int64Var(&opts.Since, "since", 0, "only changes with seq greater than this")
	cmd.Flags().BoolVar(&opts.Manifests, "manifests", false, "print current manifests instead of changes")

	return cmd
}

func runJournal(opts *JournalOptions, path string, cmd *cobra.Command) error {
	filter, err := parseObjectFilter(opts.Object)
	if err != nil {
		return exitf(ExitCommandError, "invalid --object: %w", err)
	}
	filter.Since = opts.Since

	// Open would create a missing database.
	if _, err := os.Stat(path); err != nil {
		return exitf(ExitCommandError, "journal not found: %w", err)
	}
	j, err := journal.Open(path)
	if err != nil {
		return exitf(ExitCommandError, "failed to open journal: %w", err)
	}
	defer j.Close()

	f := opts.formatter(cmd)
	ctx := cmd.Context()

	if opts.Manifests {
		manifests, err := j.Manifests(ctx)
		if err != nil {
			return exitf(ExitFailure, "failed to read manifests: %w", err)
		}
		if f.JSON() {
			return f.Success(manifests)
		}
		for _, m := range manifests {
			f.Textf("%6d  %s/%s  %s  %s", m.Seq, m.Kind, m.Name, m.Digest, m.Manifest)
		}
		return nil
	}

	changes, err := j.Changes(ctx, filter)
	if err != nil {
		return exitf(ExitFailure, "failed to read changes: %w", err)
	}
	if f.JSON() {
		return f.Success(changes)
	}
	for _, c := range changes {
		f.Textf("%s", formatChange(c))
	}
	return nil
}

// parseObjectFilter parses "Kind" or "Kind/name".
func parseObjectFilter(s string) (journal.ChangeFilter, error) {
	if s == "" {
		return journal.ChangeFilter{}, nil
	}
	kind, name, _ := strings.Cut(s, "/")
	if kind == "" {
		return journal.ChangeFilter{}, fmt.Errorf("%q: kind is empty", s)
	}
	if strings.HasSuffix(s, "/") {
		return journal.ChangeFilter{}, fmt.Errorf("%q: name is empty", s)
	}
	return journal.ChangeFilter{Kind: object.Kind(kind), Name: name}, nil
}

func formatChange(c journal.Change) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%6d  %-7s %s/%s", c.Seq, c.Change, c.Kind, c.Name)
	if c.Patch {
		b.WriteString("  (patch)")
	}
	if c.Owner != "" {
		fmt.Fprintf(&b, "  owner=%s", c.Owner)
	}
	if c.Digest != "" {
		fmt.Fprintf(&b, "  %s", c.Digest)
	}
	return b.String()
}
