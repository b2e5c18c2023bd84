package cli

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/steady/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Update bool   // regenerate golden files
	Filter string // scenario filter (glob pattern)
	Golden string // golden directory, default <scenarios-dir>/golden
}

// ScenarioResult holds the result of a single scenario execution.
type ScenarioResult struct {
	Name   string   `json:"name"`
	Pass   bool     `json:"pass"`
	Errors []string `json:"errors,omitempty"`
}

// TestResult holds the overall test result.
type TestResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenarios-dir>",
		Short: "Run scenario harness",
		Long: `Run YAML scenarios against the built-in kinds.

Each scenario drives a fresh engine through its steps, checks its
assertions and compares the recorded trace against a golden file when
one exists.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  steady test ./scenarios
  steady test ./scenarios --filter "parent_*"
  steady test ./scenarios --update
  steady test ./scenarios --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern")
	cmd.Flags().StringVar(&opts.Golden, "golden", "", "golden directory (default <scenarios-dir>/golden)")

	return cmd
}

func runTests(opts *TestOptions, scenariosDir string, cmd *cobra.Command) error {
	if _, err := os.Stat(scenariosDir); os.IsNotExist(err) {
		return exitf(ExitCommandError, "scenarios directory not found: %s", scenariosDir)
	}
	if opts.Golden == "" {
		opts.Golden = filepath.Join(scenariosDir, "golden")
	}

	files, err := findScenarioFiles(scenariosDir, opts.Filter)
	if err != nil {
		return exitf(ExitCommandError, "failed to find scenarios: %w", err)
	}
	if len(files) == 0 {
		return exitf(ExitCommandError, "no scenarios found in %s", scenariosDir)
	}

	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	// Scenario engines only log errors unless --verbose is set.
	if !opts.Verbose {
		cfg.LogLevel = slog.LevelError
	}
	logger := opts.newLogger(cfg, cmd.ErrOrStderr())

	var result TestResult
	for _, file := range files {
		sr := runScenario(cmd.Context(), file, opts, logger, cmd)
		result.Scenarios = append(result.Scenarios, sr)
		if sr.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
	}
	result.Total = len(result.Scenarios)

	if opts.Format == "json" {
		return outputTestJSON(cmd, result)
	}
	return outputTestText(cmd, result)
}

// findScenarioFiles finds all YAML scenario files directly in dir.
func findScenarioFiles(dir string, filter string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		if filter != "" {
			matched, err := filepath.Match(filter, strings.TrimSuffix(entry.Name(), ext))
			if err != nil {
				return nil, fmt.Errorf("invalid filter pattern: %w", err)
			}
			if !matched {
				continue
			}
		}
		files = append(files, filepath.Join(dir, entry.Name()))
	}
	return files, nil
}

// runScenario executes a single scenario and returns the result.
func runScenario(ctx context.Context, file string, opts *TestOptions, logger *slog.Logger, cmd *cobra.Command) ScenarioResult {
	f := opts.formatter(cmd)
	fail := func(name string, msg string) ScenarioResult {
		f.Textf("✗ %s", name)
		f.Textf("  %s", msg)
		return ScenarioResult{Name: name, Pass: false, Errors: []string{msg}}
	}

	f.Debugf("running %s", file)
	scenario, err := harness.LoadScenario(file)
	if err != nil {
		return fail(filepath.Base(file), fmt.Sprintf("failed to load scenario: %v", err))
	}

	if ctx == nil {
		ctx = context.Background()
	}
	result, err := harness.RunWithLogger(ctx, scenario, logger)
	if err != nil {
		return fail(scenario.Name, fmt.Sprintf("execution failed: %v", err))
	}
	if !result.Pass {
		f.Textf("✗ %s", scenario.Name)
		for _, e := range result.Errors {
			f.Textf("  %s", e)
		}
		return ScenarioResult{Name: scenario.Name, Pass: false, Errors: result.Errors}
	}

	snapshot, err := harness.Snapshot(scenario.Name, result)
	if err != nil {
		return fail(scenario.Name, fmt.Sprintf("snapshot failed: %v", err))
	}
	goldenPath := filepath.Join(opts.Golden, scenario.Name+".golden")

	if opts.Update {
		if err := os.MkdirAll(opts.Golden, 0755); err != nil {
			return fail(scenario.Name, fmt.Sprintf("failed to create golden directory: %v", err))
		}
		if err := os.WriteFile(goldenPath, snapshot, 0644); err != nil {
			return fail(scenario.Name, fmt.Sprintf("failed to write golden file: %v", err))
		}
		f.Textf("✓ %s (golden updated)", scenario.Name)
		return ScenarioResult{Name: scenario.Name, Pass: true}
	}

	golden, err := os.ReadFile(goldenPath)
	switch {
	case os.IsNotExist(err):
		f.Textf("✓ %s (no golden file)", scenario.Name)
		return ScenarioResult{Name: scenario.Name, Pass: true}
	case err != nil:
		return fail(scenario.Name, fmt.Sprintf("failed to read golden file: %v", err))
	case !bytes.Equal(bytes.TrimRight(golden, "\n"), snapshot):
		return fail(scenario.Name, "trace does not match golden file (run with --update to regenerate)")
	}

	f.Textf("✓ %s", scenario.Name)
	return ScenarioResult{Name: scenario.Name, Pass: true}
}

// outputTestJSON outputs the test result as JSON.
func outputTestJSON(cmd *cobra.Command, result TestResult) error {
	f := &OutputFormatter{Format: "json", Out: cmd.OutOrStdout()}

	if result.Failed > 0 {
		msg := fmt.Sprintf("%d scenario(s) failed", result.Failed)
		if err := f.Fail(result, "E_TEST_FAILED", msg); err != nil {
			return err
		}
		return exitf(ExitFailure, "%s", msg)
	}
	return f.Success(result)
}

// outputTestText outputs the test result as text.
func outputTestText(cmd *cobra.Command, result TestResult) error {
	w := cmd.OutOrStdout()

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Test Summary: %d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)

	if result.Failed > 0 {
		return exitf(ExitFailure, "%d scenario(s) failed", result.Failed)
	}

	fmt.Fprintln(w, "✓ All scenarios passed")
	return nil
}
