package cli

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/azsmith/grainulator-sub004/internal/action"
	"github.com/azsmith/grainulator-sub004/internal/eventlog"
	"github.com/azsmith/grainulator-sub004/internal/journal"
)

// seedJournal writes crafted records into a fresh journal file.
func seedJournal(t *testing.T, records []eventlog.Record) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "events.db")
	j, err := journal.Open(path)
	require.NoError(t, err)
	defer j.Close()

	require.NoError(t, j.AppendAll(context.Background(), records))
	return path
}

func record(seq, version uint64, bundleID string) eventlog.Record {
	return eventlog.Record{
		Seq:          seq,
		StateVersion: version,
		Kind:         eventlog.KindStateChanged,
		Paths:        []string{"granular.voiceA.grainSize"},
		Cause:        action.CauseManual,
		BundleID:     bundleID,
		At:           time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestReplayCommand_VerifiesCleanJournal(t *testing.T) {
	db := seedJournal(t, []eventlog.Record{
		record(1, 1, "b1"),
		record(2, 2, "b1"),
		record(3, 3, "b2"),
	})

	stdout, _, err := execute(t, "replay", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Journal: 3 event(s), last seq 3")
	assert.Contains(t, stdout, "bundle b1: 2 event(s), seq 1..2")
	assert.Contains(t, stdout, "bundle b2: 1 event(s), seq 3..3")
	assert.Contains(t, stdout, "Journal verified")
}

func TestReplayCommand_DetectsSeqGap(t *testing.T) {
	db := seedJournal(t, []eventlog.Record{
		record(1, 1, "b1"),
		record(3, 2, "b1"),
	})

	stdout, _, err := execute(t, "replay", "--db", db)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, stdout, "seq 3: gap after 1")
}

func TestReplayCommand_DetectsVersionRegression(t *testing.T) {
	db := seedJournal(t, []eventlog.Record{
		record(1, 5, "b1"),
		record(2, 4, "b1"),
	})

	stdout, _, err := execute(t, "replay", "--db", db)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, stdout, "state version 4 not above previous 5")
}

func TestReplayCommand_DetectsDuplicateVersion(t *testing.T) {
	// Two records claiming the same version means one commit was
	// journaled twice.
	db := seedJournal(t, []eventlog.Record{
		record(1, 1, "b1"),
		record(2, 1, "b1"),
	})

	stdout, _, err := execute(t, "replay", "--db", db)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, stdout, "state version 1 not above previous 1")
}

func TestReplayCommand_SupersededRecordsAreExempt(t *testing.T) {
	superseded := eventlog.Record{
		Seq:      2,
		Kind:     eventlog.KindBundleSuperseded,
		Cause:    action.CauseScheduled,
		BundleID: "b2",
		At:       time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	db := seedJournal(t, []eventlog.Record{
		record(1, 1, "b1"),
		superseded,
		record(3, 2, "b1"),
	})

	stdout, _, err := execute(t, "replay", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Journal verified")
}

func TestReplayCommand_BundleFilterSkipsContiguity(t *testing.T) {
	db := seedJournal(t, []eventlog.Record{
		record(1, 1, "b1"),
		record(2, 2, "b2"),
		record(3, 3, "b1"),
	})

	stdout, _, err := execute(t, "replay", "--db", db, "--bundle", "b1")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Journal: 2 event(s), last seq 3")
	assert.Contains(t, stdout, "Journal verified")
}

func TestReplayCommand_MissingDatabaseFlag(t *testing.T) {
	_, _, err := execute(t, "replay")
	require.Error(t, err)
}
