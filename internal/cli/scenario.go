package cli

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fluencelabs/aquavm-sub001/internal/harness"
)

// ScenarioOptions holds flags for the scenario command.
type ScenarioOptions struct {
	*RootOptions
	Filter string // scenario filter (glob pattern)
}

// suiteReport wraps a harness suite result for text output.
type suiteReport struct {
	*harness.SuiteResult
}

// NewScenarioCommand creates the scenario command.
func NewScenarioCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ScenarioOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "scenario <path>...",
		Short: "Run network scenarios",
		Long: `Run YAML network scenarios.

Each scenario starts a network of in-memory peers, routes one particle
between them until it settles and checks the scenario's assertions. A
directory argument runs every .yaml and .yml file it contains.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  air scenario ./scenarios
  air scenario ./scenarios --filter "relay_*"
  air scenario ./scenarios/relay_chain.yaml --format json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarios(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern on the file name")

	return cmd
}

func runScenarios(opts *ScenarioOptions, paths []string, cmd *cobra.Command) error {
	files, err := harness.FindScenarios(paths...)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to find scenarios", err)
	}
	files, err = filterScenarios(files, opts.Filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid filter", err)
	}

	formatter := newFormatter(opts.RootOptions, cmd)
	if len(files) == 0 {
		if opts.Format == "json" {
			return formatter.Success(&harness.SuiteResult{})
		}
		fmt.Fprintln(cmd.OutOrStdout(), "No scenarios found.")
		return nil
	}

	for _, f := range files {
		formatter.VerboseLog("running %s", f)
	}
	result, err := harness.RunSuite(commandContext(cmd), files)
	if err != nil {
		return WrapExitError(ExitCommandError, "scenario run interrupted", err)
	}

	report := suiteReport{result}
	if result.Failed > 0 {
		if err := formatter.Error("scenarios_failed", fmt.Sprintf("%d of %d scenarios failed", result.Failed, result.Total), report); err != nil {
			return err
		}
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}
	return formatter.Success(report)
}

// filterScenarios keeps the files whose name without extension matches pattern.
func filterScenarios(files []string, pattern string) ([]string, error) {
	if pattern == "" {
		return files, nil
	}
	var kept []string
	for _, f := range files {
		base := filepath.Base(f)
		name := strings.TrimSuffix(base, filepath.Ext(base))
		matched, err := filepath.Match(pattern, name)
		if err != nil {
			return nil, fmt.Errorf("invalid filter pattern: %w", err)
		}
		if matched {
			kept = append(kept, f)
		}
	}
	return kept, nil
}

func (r suiteReport) renderText(w io.Writer, verbose bool) {
	for _, f := range r.Failures {
		name := f.Name
		if name == "" {
			name = filepath.Base(f.Path)
		}
		fmt.Fprintf(w, "✗ %s\n", name)
		fmt.Fprintf(w, "  %s\n", f.Error)
		if verbose {
			fmt.Fprintf(w, "  file: %s\n", f.Path)
		}
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Results: %d passed, %d failed, %d total\n", r.Passed, r.Failed, r.Total)
}
