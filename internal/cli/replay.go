package cli

import (
	"context"
	"fmt"
	"math"
	"reflect"
	"sort"

	"github.com/spf13/cobra"

	"github.com/azsmith/grainulator-sub004/internal/eventlog"
	"github.com/azsmith/grainulator-sub004/internal/journal"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database string
	BundleID string // optional - verify one bundle's records only
}

// ReplayBundleResult holds per-bundle journal statistics.
type ReplayBundleResult struct {
	BundleID string `json:"bundleId"`
	Events   int    `json:"events"`
	FirstSeq uint64 `json:"firstSeq"`
	LastSeq  uint64 `json:"lastSeq"`
}

// ReplayResult holds the overall journal verification result.
type ReplayResult struct {
	Events     int                  `json:"events"`
	LastSeq    uint64               `json:"lastSeq"`
	Bundles    []ReplayBundleResult `json:"bundles"`
	Violations []string             `json:"violations,omitempty"`
	OK         bool                 `json:"ok"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay a journal and verify its ordering invariants",
		Long: `Replay an archived event journal and verify its ordering invariants.

The journal is read twice and the reads compared, then every record is
checked: sequence numbers must be contiguous, state versions must
strictly increase, and state-changing records must carry a version and
paths.
Per-bundle statistics are reported alongside.

Exit codes:
  0 - journal verified
  1 - invariant violation detected
  2 - command error (database not found, etc.)

Examples:
  grainulator replay --db ./session.db
  grainulator replay --db ./session.db --bundle b-42 --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite journal (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.BundleID, "bundle", "", "verify one bundle's records only")

	return cmd
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	j, err := journal.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	defer j.Close()

	first, err := readJournal(ctx, j, opts.BundleID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read journal", err)
	}
	second, err := readJournal(ctx, j, opts.BundleID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to re-read journal", err)
	}

	result := verifyRecords(first, opts.BundleID != "")
	if !reflect.DeepEqual(first, second) {
		result.Violations = append(result.Violations, "repeated reads returned different records")
		result.OK = false
	}

	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
	if opts.Format == "json" {
		if err := formatter.Success(result); err != nil {
			return err
		}
	} else if err := outputReplayText(formatter, result); err != nil {
		return err
	}

	if !result.OK {
		return NewExitError(ExitFailure, fmt.Sprintf("journal verification failed with %d violation(s)", len(result.Violations)))
	}
	return nil
}

func readJournal(ctx context.Context, j *journal.Journal, bundleID string) ([]eventlog.Record, error) {
	if bundleID != "" {
		return j.ReadBundle(ctx, bundleID)
	}
	return j.ReadRange(ctx, 1, math.MaxUint64)
}

// verifyRecords checks the ordering invariants over one read of the
// journal. A bundle-filtered read skips the contiguity check, since the
// filter naturally leaves gaps.
func verifyRecords(records []eventlog.Record, filtered bool) ReplayResult {
	result := ReplayResult{Events: len(records), OK: true}

	type bundleStats struct {
		events   int
		firstSeq uint64
		lastSeq  uint64
	}
	bundles := map[string]*bundleStats{}

	var prevSeq, prevVersion uint64
	for i := range records {
		rec := &records[i]

		if rec.Seq <= prevSeq {
			result.Violations = append(result.Violations,
				fmt.Sprintf("seq %d: not increasing (previous %d)", rec.Seq, prevSeq))
		} else if !filtered && prevSeq != 0 && rec.Seq != prevSeq+1 {
			result.Violations = append(result.Violations,
				fmt.Sprintf("seq %d: gap after %d", rec.Seq, prevSeq))
		}
		prevSeq = rec.Seq

		// Each commit writes exactly one versioned record, so versions
		// must strictly increase; a duplicate is as broken as a regression.
		if rec.StateVersion != 0 {
			if rec.StateVersion <= prevVersion {
				result.Violations = append(result.Violations,
					fmt.Sprintf("seq %d: state version %d not above previous %d", rec.Seq, rec.StateVersion, prevVersion))
			}
			prevVersion = rec.StateVersion
		}

		if rec.Kind != eventlog.KindBundleSuperseded {
			if rec.StateVersion == 0 {
				result.Violations = append(result.Violations,
					fmt.Sprintf("seq %d: %s record without a state version", rec.Seq, rec.Kind))
			}
			if len(rec.Paths) == 0 {
				result.Violations = append(result.Violations,
					fmt.Sprintf("seq %d: %s record without paths", rec.Seq, rec.Kind))
			}
		}

		if rec.BundleID != "" {
			st := bundles[rec.BundleID]
			if st == nil {
				st = &bundleStats{firstSeq: rec.Seq}
				bundles[rec.BundleID] = st
			}
			st.events++
			st.lastSeq = rec.Seq
		}
		result.LastSeq = rec.Seq
	}

	ids := make([]string, 0, len(bundles))
	for id := range bundles {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	result.Bundles = make([]ReplayBundleResult, 0, len(ids))
	for _, id := range ids {
		st := bundles[id]
		result.Bundles = append(result.Bundles, ReplayBundleResult{
			BundleID: id,
			Events:   st.events,
			FirstSeq: st.firstSeq,
			LastSeq:  st.lastSeq,
		})
	}

	result.OK = len(result.Violations) == 0
	return result
}

func outputReplayText(formatter *OutputFormatter, result ReplayResult) error {
	w := formatter.Writer

	fmt.Fprintf(w, "Journal: %d event(s), last seq %d\n\n", result.Events, result.LastSeq)

	for _, b := range result.Bundles {
		fmt.Fprintf(w, "  bundle %s: %d event(s), seq %d..%d\n", b.BundleID, b.Events, b.FirstSeq, b.LastSeq)
	}
	if len(result.Bundles) > 0 {
		fmt.Fprintln(w)
	}

	if result.OK {
		fmt.Fprintln(w, "✓ Journal verified")
		return nil
	}

	fmt.Fprintln(w, "✗ Journal verification failed")
	for _, v := range result.Violations {
		fmt.Fprintf(w, "  %s\n", v)
	}
	return nil
}
