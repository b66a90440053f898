package journal

import (
	"path/filepath"
	"testing"

	"github.com/telemetrygw/tsbuffer/internal/chain"
	"github.com/telemetrygw/tsbuffer/internal/codec"
	"github.com/telemetrygw/tsbuffer/internal/model"
	"github.com/telemetrygw/tsbuffer/internal/pending"
	"github.com/telemetrygw/tsbuffer/internal/sector"
	"github.com/telemetrygw/tsbuffer/internal/spool"
)

func newTestMigrator(t *testing.T) (*Migrator, *sector.Pool, *chain.Engine) {
	t.Helper()
	pool := sector.NewPool(32)
	eng := chain.NewEngine(pool)
	sp, err := spool.New(t.TempDir(), 3)
	if err != nil {
		t.Fatalf("spool.New failed: %v", err)
	}
	j, err := Open(filepath.Join(t.TempDir(), "journal.log"))
	if err != nil {
		t.Fatalf("journal Open failed: %v", err)
	}
	t.Cleanup(func() { j.Close(); sp.Close() })
	return &Migrator{Pool: pool, Journal: j, Spool: sp, Disk: NewDiskIndex()}, pool, eng
}

func TestMigrateMovesHeadSectorsToDiskAndRemapsCursors(t *testing.T) {
	m, pool, eng := newTestMigrator(t)
	s := model.Sensor{ID: 9, SamplePeriodMs: 100}
	state := model.NewSensorState()

	// 6 values fit per TSD sector; write 15 across 3 sectors (6+6+3 tail).
	for i := uint32(0); i < 15; i++ {
		if err := codec.WriteTSD(pool, eng, s, &state, i, 1000); err != nil {
			t.Fatalf("WriteTSD failed: %v", err)
		}
	}
	firstRAMID := state.RAMHeadID
	state.PerDestination[model.DestTelemetry].ReadHeadID = firstRAMID

	n, err := m.Migrate(s.ID, &state, 2, 1, 5000)
	if err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 sectors migrated, got %d", n)
	}

	if !IsDiskID(state.RAMHeadID) {
		t.Errorf("expected chain head to be disk-backed after migration, got %v", state.RAMHeadID)
	}
	ds := state.PerDestination[model.DestTelemetry]
	if ds.ReadHeadID != state.RAMHeadID {
		t.Errorf("destination cursor not remapped: got %v, want %v", ds.ReadHeadID, state.RAMHeadID)
	}

	if _, err := pool.Meta(firstRAMID); err == nil {
		t.Errorf("expected migrated RAM sector %v to be freed", firstRAMID)
	}

	entry, ok := m.Disk.Get(state.RAMHeadID)
	if !ok {
		t.Fatalf("expected disk entry for new head")
	}
	if entry.File == "" {
		t.Errorf("expected disk entry to carry a file name")
	}

	entries, err := ScanEntries(m.Journal.path)
	if err != nil {
		t.Fatalf("ScanEntries failed: %v", err)
	}
	if len(entries) != 2 || entries[0].State != StatePending || entries[1].State != StateCommitted {
		t.Fatalf("expected one pending then one committed entry, got %+v", entries)
	}
}

// TestMigrateSkipsSectorsInsideAnInFlightPendingWindow reproduces the
// selection policy's pending_destinations_mask check: a sector a
// destination has already taken delivery of via read_bulk, but not yet
// committed, must not be migrated out from under it. Once that destination
// commits, the same sector becomes eligible even though a second
// destination never read it at all.
func TestMigrateSkipsSectorsInsideAnInFlightPendingWindow(t *testing.T) {
	m, pool, eng := newTestMigrator(t)
	s := model.Sensor{ID: 7}
	state := model.NewSensorState()
	state.ActiveDestMask = model.DestTelemetry.Mask() | model.DestDiagnostics.Mask()

	// 2 pairs fit per EVT sector; 5 events span 3 sectors (2 + 2 + 1 tail).
	for v := uint32(0); v < 5; v++ {
		if err := codec.WriteEVT(pool, eng, s, &state, v, uint64(v)); err != nil {
			t.Fatalf("WriteEVT failed: %v", err)
		}
	}
	firstRAMID := state.RAMHeadID

	// Telemetry reads the first sector's worth but doesn't commit yet.
	if _, filled, err := pending.ReadBulk(pool, s, &state, model.DestTelemetry, 2); err != nil || filled != 2 {
		t.Fatalf("ReadBulk failed: filled=%d err=%v", filled, err)
	}

	n, err := m.Migrate(s.ID, &state, 2, 1, 5000)
	if err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected migration to skip the in-flight pending sector, got n=%d", n)
	}
	if state.RAMHeadID != firstRAMID {
		t.Errorf("chain head should be unchanged when nothing migrated")
	}

	if err := pending.Commit(pool, &state, model.DestTelemetry, 2); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	// Diagnostics never read anything, so the now-committed sector still
	// isn't fully clear of pending bits — but it's no longer inside any
	// destination's delivered window, so migration may take it.
	n, err = m.Migrate(s.ID, &state, 2, 2, 6000)
	if err != nil {
		t.Fatalf("Migrate after commit failed: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 sectors migratable once the pending window cleared, got %d", n)
	}
	if !IsDiskID(state.RAMHeadID) {
		t.Errorf("expected chain head to be disk-backed after second migration pass")
	}
}

func TestMigrateNoopsOnEmptyChain(t *testing.T) {
	m, _, _ := newTestMigrator(t)
	state := model.NewSensorState()

	n, err := m.Migrate(1, &state, 4, 1, 1000)
	if err != nil {
		t.Fatalf("Migrate on empty chain failed: %v", err)
	}
	if n != 0 {
		t.Errorf("expected no-op migration on empty chain, got %d", n)
	}
}
