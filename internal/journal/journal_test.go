package journal

import (
	"path/filepath"
	"testing"

	"github.com/telemetrygw/tsbuffer/internal/sector"
)

func TestAppendPendingThenCommitRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "journal.log")

	j, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer j.Close()

	ids := []sector.ID{1, 2, 3}
	opID, err := j.AppendPending(OpMigrate, 7, 0b11, sector.ID(1), sector.ID(4), "sensor_7_seq_1.dat", ids)
	if err != nil {
		t.Fatalf("AppendPending failed: %v", err)
	}

	entries, err := ScanEntries(path)
	if err != nil {
		t.Fatalf("ScanEntries failed: %v", err)
	}
	if len(entries) != 1 || entries[0].State != StatePending {
		t.Fatalf("expected 1 pending entry, got %+v", entries)
	}

	if err := j.Commit(entries[0]); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	entries, err = ScanEntries(path)
	if err != nil {
		t.Fatalf("ScanEntries failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries after commit (append-only log), got %d", len(entries))
	}
	last := entries[len(entries)-1]
	if last.OpID != opID || last.State != StateCommitted || last.FileName != "sensor_7_seq_1.dat" {
		t.Errorf("committed entry mismatch: %+v", last)
	}
}

func TestTruncateEmptiesLog(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "journal.log")

	j, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if _, err := j.AppendPending(OpErase, 1, 0, sector.Null, sector.Null, "", nil); err != nil {
		t.Fatalf("AppendPending failed: %v", err)
	}
	if err := j.Truncate(); err != nil {
		t.Fatalf("Truncate failed: %v", err)
	}
	j.Close()

	entries, err := ScanEntries(path)
	if err != nil {
		t.Fatalf("ScanEntries failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected empty journal after truncate, got %d entries", len(entries))
	}
}

func TestScanEntriesToleratesMissingFile(t *testing.T) {
	entries, err := ScanEntries(filepath.Join(t.TempDir(), "nope.log"))
	if err != nil {
		t.Fatalf("expected no error for missing journal, got %v", err)
	}
	if entries != nil {
		t.Errorf("expected nil entries for missing journal, got %+v", entries)
	}
}
