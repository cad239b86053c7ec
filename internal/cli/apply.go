package cli

import (
	"bytes"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/azsmith/grainulator-sub004/internal/harness"
)

// ApplyOptions holds flags for the apply command.
type ApplyOptions struct {
	*RootOptions
	Database string
}

// NewApplyCommand creates the apply command.
func NewApplyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ApplyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "apply <bundle.yaml>",
		Short: "Submit one bundle through the full scheduling pipeline",
		Long: `Submit one bundle file through validate, confirm, and apply against a
fresh engine, then dispatch whatever became due.

The bundle file holds a single submission in the same YAML shape the
scenario runner uses for its apply steps. High-risk bundles only commit
when the file sets confirm: true.

Exit codes:
  0 - bundle committed
  1 - bundle rejected (validation, policy, or conflict failure)
  2 - command error (unreadable file, journal not empty)

Example:
  grainulator apply ./bundles/arm_voice_a.yaml --db ./session.db`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return applyBundle(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "archive the event log into this SQLite journal")

	return cmd
}

func applyBundle(opts *ApplyOptions, path string, cmd *cobra.Command) error {
	spec, err := loadBundleSpec(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load bundle", err)
	}

	scenario := &harness.Scenario{
		Name: "apply",
		Steps: []harness.Step{
			{Apply: spec},
			{Dispatch: true},
		},
	}
	result, err := harness.Run(scenario)
	if err != nil {
		return WrapExitError(ExitCommandError, "apply failed", err)
	}

	if opts.Database != "" {
		if err := archiveEvents(cmd.Context(), opts.Database, result); err != nil {
			return WrapExitError(ExitCommandError, "failed to archive event log", err)
		}
	}

	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	applied := result.Trace[0]
	if opts.Format == "json" {
		if err := formatter.Success(result); err != nil {
			return err
		}
	} else if err := outputApplyText(formatter, result); err != nil {
		return err
	}

	if applied.Status != "ok" {
		return NewExitError(ExitFailure, fmt.Sprintf("bundle %s rejected: %s", applied.BundleID, applied.Error))
	}
	return nil
}

// loadBundleSpec parses a single-bundle YAML file. Unknown fields are
// rejected, matching the scenario loader.
func loadBundleSpec(path string) (*harness.BundleSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var spec harness.BundleSpec
	if err := dec.Decode(&spec); err != nil {
		return nil, fmt.Errorf("parse bundle %s: %w", path, err)
	}
	if spec.BundleID == "" {
		return nil, fmt.Errorf("bundle %s: missing bundleId", path)
	}
	if len(spec.Actions) == 0 {
		return nil, fmt.Errorf("bundle %s: no actions", spec.BundleID)
	}
	return &spec, nil
}

func outputApplyText(formatter *OutputFormatter, result *harness.Result) error {
	w := formatter.Writer
	applied := result.Trace[0]

	status := "✓"
	if applied.Status != "ok" {
		status = "✗"
	}
	fmt.Fprintf(w, "%s Bundle: %s\n", status, applied.BundleID)
	if applied.Error != "" {
		fmt.Fprintf(w, "  error: %s\n", applied.Error)
	}
	if applied.StateVersion > 0 {
		fmt.Fprintf(w, "  stateVersion: %d\n", applied.StateVersion)
	}
	for _, a := range applied.Actions {
		fmt.Fprintf(w, "  action %s: %s atSample=%d", a.ActionID, a.Status, a.AtSample)
		if a.EndSample > 0 {
			fmt.Fprintf(w, " endSample=%d", a.EndSample)
		}
		if a.Error != "" {
			fmt.Fprintf(w, " error=%s", a.Error)
		}
		fmt.Fprintln(w)
	}

	dispatched := result.Trace[1]
	fmt.Fprintf(w, "  dispatched %d command(s)\n", dispatched.Count)
	for _, c := range dispatched.Commands {
		fmt.Fprintf(w, "    %s %s atSample=%d", c.Type, c.Target, c.AtSample)
		if c.Value != "" {
			fmt.Fprintf(w, " value=%s", c.Value)
		}
		if c.To != "" {
			fmt.Fprintf(w, " from=%s to=%s", c.From, c.To)
		}
		if c.Mode != "" {
			fmt.Fprintf(w, " mode=%s", c.Mode)
		}
		if c.Feedback != "" {
			fmt.Fprintf(w, " feedback=%s", c.Feedback)
		}
		fmt.Fprintln(w)
	}
	return nil
}
