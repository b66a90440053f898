package spool

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWriteAndVerifyRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir, 3)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	payloads := [][]byte{[]byte("01234567890123456789012345678901"[:32]), []byte("abcdefghijklmnopqrstuvwxyzabcdef")}
	var all []byte
	for _, p := range payloads {
		all = append(all, p...)
	}
	h := DefaultHeader(1, 0, 1, 0, 1000)
	h.RecordCount = uint32(len(payloads))
	h.ChecksumCRC32 = ChecksumPayload(all)

	name := FileName(1, 1, false)
	if err := s.WriteFile(name, h, payloads); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, name+".tmp")); !os.IsNotExist(err) {
		t.Errorf("tmp file still present after rename")
	}

	gotHeader, ok, err := s.Verify(name)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if !ok {
		t.Fatalf("Verify reports checksum mismatch")
	}
	if gotHeader.SensorID != 1 || gotHeader.RecordCount != 2 {
		t.Errorf("header round-trip mismatch: %+v", gotHeader)
	}

	rec, err := s.ReadRecord(name, 1, 32)
	if err != nil {
		t.Fatalf("ReadRecord failed: %v", err)
	}
	if string(rec) != "abcdefghijklmnopqrstuvwxyzabcdef" {
		t.Errorf("ReadRecord(1) = %q, want second payload", rec)
	}
}

func TestDegradesToRAMOnlyAfterRepeatedErrors(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir, 2)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	bad := filepath.Join(dir, "nonexistent", "also-nonexistent")
	s.root = bad // point writes at a path whose parent doesn't exist

	h := DefaultHeader(1, 0, 1, 0, 1000)
	for i := 0; i < 2; i++ {
		if err := s.WriteFile("x.dat", h, nil); err == nil {
			t.Fatalf("expected write to a missing directory to fail")
		}
	}
	if s.DiskHealthy() {
		t.Errorf("expected RAM-only mode after %d consecutive errors", 2)
	}

	s.root = dir
	if !s.Probe() {
		t.Errorf("Probe against a real directory should succeed")
	}
	if !s.DiskHealthy() {
		t.Errorf("expected DiskHealthy after successful Probe")
	}
}

func TestDeleteRemovesFileAndCacheEntry(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir, 3)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	name := FileName(2, 1, false)
	h := DefaultHeader(2, 1, 1, 0, 1000)
	if err := s.WriteFile(name, h, [][]byte{make([]byte, 32)}); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if _, err := s.ReadRecord(name, 0, 32); err != nil {
		t.Fatalf("ReadRecord failed: %v", err)
	}
	if err := s.Delete(name); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, name)); !os.IsNotExist(err) {
		t.Errorf("file still present after Delete")
	}
}
