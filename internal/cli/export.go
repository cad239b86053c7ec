package cli

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/spf13/cobra"

	"github.com/azsmith/grainulator-sub004/internal/eventlog"
	"github.com/azsmith/grainulator-sub004/internal/journal"
)

// ExportOptions holds flags for the export command.
type ExportOptions struct {
	*RootOptions
	Database string
	BundleID string
	From     uint64
	To       uint64
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export event records from a journal",
		Long: `Export event records from an archived journal, in sequence order.

Clients that missed notifications re-read the range they lost; this
command is the offline equivalent against an archived journal.

Examples:
  grainulator export --db ./session.db
  grainulator export --db ./session.db --from 10 --to 20
  grainulator export --db ./session.db --bundle b-42 --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite journal (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.BundleID, "bundle", "", "export one bundle's records only")
	cmd.Flags().Uint64Var(&opts.From, "from", 1, "first sequence number (inclusive)")
	cmd.Flags().Uint64Var(&opts.To, "to", math.MaxUint64, "last sequence number (inclusive)")

	return cmd
}

func runExport(opts *ExportOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.From > opts.To {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid range: from %d after to %d", opts.From, opts.To))
	}

	j, err := journal.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	defer j.Close()

	var records []eventlog.Record
	if opts.BundleID != "" {
		records, err = j.ReadBundle(ctx, opts.BundleID)
	} else {
		records, err = j.ReadRange(ctx, opts.From, opts.To)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read journal", err)
	}
	if opts.BundleID != "" {
		records = filterRange(records, opts.From, opts.To)
	}

	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
	if opts.Format == "json" {
		return formatter.Success(records)
	}
	return outputExportText(formatter, records)
}

func filterRange(records []eventlog.Record, from, to uint64) []eventlog.Record {
	out := records[:0]
	for _, rec := range records {
		if rec.Seq >= from && rec.Seq <= to {
			out = append(out, rec)
		}
	}
	return out
}

func outputExportText(formatter *OutputFormatter, records []eventlog.Record) error {
	w := formatter.Writer
	for _, rec := range records {
		line := fmt.Sprintf("seq=%d kind=%s cause=%s version=%d", rec.Seq, rec.Kind, rec.Cause, rec.StateVersion)
		if rec.BundleID != "" {
			line += " bundle=" + rec.BundleID
		}
		if len(rec.Paths) > 0 {
			line += " paths=" + strings.Join(rec.Paths, ",")
		}
		if formatter.Verbose {
			line += " at=" + rec.At.Format("2006-01-02T15:04:05.000Z07:00")
		}
		fmt.Fprintln(w, line)
	}
	fmt.Fprintf(w, "%d record(s)\n", len(records))
	return nil
}
