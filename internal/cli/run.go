package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/azsmith/grainulator-sub004/internal/harness"
	"github.com/azsmith/grainulator-sub004/internal/journal"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database string
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <scenario.yaml | scenarios-dir>",
		Short: "Run scenario files against a fresh engine",
		Long: `Run one scenario file, or every scenario in a directory, against a
fresh engine on a deterministic transport and clock.

Each scenario gets its own engine; traces, the event log, and the final
state are reported per scenario. With --db, the event log of a single
scenario run is archived into a SQLite journal.

Exit codes:
  0 - every scenario ran to completion
  2 - command error (unreadable scenario, journal not empty)

Examples:
  grainulator run ./scenarios
  grainulator run ./scenarios/arm_recording.yaml --db ./session.db
  grainulator run ./scenarios --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarios(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "archive the event log into this SQLite journal (single scenario only)")

	return cmd
}

func runScenarios(opts *RunOptions, path string, cmd *cobra.Command) error {
	logLevel := slog.LevelInfo
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	handler := slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: logLevel})
	logger := slog.New(handler)

	scenarios, err := loadScenarioPath(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load scenarios", err)
	}
	if len(scenarios) == 0 {
		return NewExitError(ExitCommandError, fmt.Sprintf("no scenarios found in %s", path))
	}
	if opts.Database != "" && len(scenarios) > 1 {
		return NewExitError(ExitCommandError, "--db requires a single scenario file")
	}
	logger.Debug("scenarios loaded", "count", len(scenarios))

	results := make([]*harness.Result, 0, len(scenarios))
	for _, scenario := range scenarios {
		logger.Info("running scenario", "name", scenario.Name, "steps", len(scenario.Steps))
		result, err := harness.Run(scenario)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("scenario %s failed", scenario.Name), err)
		}
		results = append(results, result)
	}

	if opts.Database != "" {
		if err := archiveEvents(cmd.Context(), opts.Database, results[0]); err != nil {
			return WrapExitError(ExitCommandError, "failed to archive event log", err)
		}
		logger.Info("event log archived", "db", opts.Database, "events", len(results[0].Records))
	}

	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
	if opts.Format == "json" {
		return formatter.Success(results)
	}
	return outputRunText(formatter, results)
}

// loadScenarioPath accepts either one scenario file or a directory.
func loadScenarioPath(path string) ([]*harness.Scenario, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return harness.LoadDir(path)
	}
	s, err := harness.LoadScenario(path)
	if err != nil {
		return nil, err
	}
	return []*harness.Scenario{s}, nil
}

// archiveEvents writes a scenario's event log into a fresh journal.
// Sequence numbers restart at 1 per engine, so the journal must be empty.
func archiveEvents(ctx context.Context, path string, result *harness.Result) error {
	if ctx == nil {
		ctx = context.Background()
	}
	j, err := journal.Open(path)
	if err != nil {
		return err
	}
	defer j.Close()

	last, err := j.LastSeq(ctx)
	if err != nil {
		return err
	}
	if last != 0 {
		return fmt.Errorf("journal %s is not empty (last seq %d)", path, last)
	}
	return j.AppendAll(ctx, result.Records)
}

func outputRunText(formatter *OutputFormatter, results []*harness.Result) error {
	w := formatter.Writer
	for _, result := range results {
		fmt.Fprintf(w, "Scenario: %s\n", result.Name)
		fmt.Fprintf(w, "  steps=%d events=%d finalVersion=%d\n",
			len(result.Trace), len(result.Events), result.FinalStateVersion)

		if formatter.Verbose {
			for _, line := range result.Events {
				fmt.Fprintf(w, "  event %s\n", line)
			}
			for _, line := range result.FinalState {
				fmt.Fprintf(w, "  state %s\n", line)
			}
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintf(w, "%d scenario(s) completed\n", len(results))
	return nil
}
