package power

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/telemetrygw/tsbuffer/internal/chain"
	"github.com/telemetrygw/tsbuffer/internal/codec"
	"github.com/telemetrygw/tsbuffer/internal/journal"
	"github.com/telemetrygw/tsbuffer/internal/model"
	"github.com/telemetrygw/tsbuffer/internal/sector"
	"github.com/telemetrygw/tsbuffer/internal/spool"
)

func newTestHandler(t *testing.T) (*Handler, *sector.Pool, *chain.Engine, string) {
	t.Helper()
	pool := sector.NewPool(32)
	eng := chain.NewEngine(pool)
	sp, err := spool.New(t.TempDir(), 3)
	if err != nil {
		t.Fatalf("spool.New failed: %v", err)
	}
	journalPath := filepath.Join(t.TempDir(), "journal.log")
	j, err := journal.Open(journalPath)
	if err != nil {
		t.Fatalf("journal.Open failed: %v", err)
	}
	t.Cleanup(func() { j.Close(); sp.Close() })
	return &Handler{Pool: pool, Spool: sp, Journal: j, Disk: journal.NewDiskIndex()}, pool, eng, journalPath
}

// TestFlushSensorWritesFullChainIncludingTail is spec §8 scenario 5 traced
// at the component level: unlike migration, the power-abort flush must
// carry the tail too, since nothing will ever write to this chain again.
func TestFlushSensorWritesFullChainIncludingTail(t *testing.T) {
	h, pool, eng, journalPath := newTestHandler(t)
	s := model.Sensor{ID: 5}
	state := model.NewSensorState()

	// 2 pairs fit per EVT sector; 3 events span a full sector plus a
	// partial tail.
	for v := uint32(0); v < 3; v++ {
		if err := codec.WriteEVT(pool, eng, s, &state, v, uint64(v)); err != nil {
			t.Fatalf("WriteEVT failed: %v", err)
		}
	}

	flushed, lost, err := h.FlushSensor(s.ID, &state, 1, 9000, time.Now().Add(time.Second))
	if err != nil {
		t.Fatalf("FlushSensor failed: %v", err)
	}
	if lost != 0 {
		t.Errorf("expected nothing lost with a generous deadline, got %d", lost)
	}
	if flushed != 2 {
		t.Fatalf("expected both sectors (full + tail) flushed, got %d", flushed)
	}

	entries, err := journal.ScanEntries(journalPath)
	if err != nil {
		t.Fatalf("ScanEntries failed: %v", err)
	}
	if len(entries) != 2 || entries[0].State != journal.StatePending || entries[1].State != journal.StateCommitted {
		t.Fatalf("expected one pending then one committed entry, got %+v", entries)
	}
	if _, _, emergency, ok := spool.ParseFileName(entries[1].FileName); !ok || !emergency {
		t.Errorf("expected the emergency flush's file name to carry the .emergency suffix, got %q", entries[1].FileName)
	}
}

// TestFlushSensorNoopsOnEmptyChain mirrors Migrate's empty-chain behavior:
// nothing to flush, nothing journaled.
func TestFlushSensorNoopsOnEmptyChain(t *testing.T) {
	h, _, _, _ := newTestHandler(t)
	state := model.NewSensorState()

	flushed, lost, err := h.FlushSensor(1, &state, 1, 1000, time.Now().Add(time.Second))
	if err != nil {
		t.Fatalf("FlushSensor on empty chain failed: %v", err)
	}
	if flushed != 0 || lost != 0 {
		t.Errorf("expected a no-op, got flushed=%d lost=%d", flushed, lost)
	}
}

// TestFlushSensorStopsAtDeadline exercises the bounded-time contract: an
// already-elapsed deadline must still persist whatever it can collect
// before the first check, never block past it, and report the rest lost.
func TestFlushSensorStopsAtDeadline(t *testing.T) {
	h, pool, eng, _ := newTestHandler(t)
	s := model.Sensor{ID: 6}
	state := model.NewSensorState()

	for v := uint32(0); v < 5; v++ {
		if err := codec.WriteEVT(pool, eng, s, &state, v, uint64(v)); err != nil {
			t.Fatalf("WriteEVT failed: %v", err)
		}
	}

	flushed, lost, err := h.FlushSensor(s.ID, &state, 1, 1000, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("FlushSensor failed: %v", err)
	}
	if flushed != 0 {
		t.Errorf("expected nothing collected once the deadline has already passed, got %d", flushed)
	}
	if lost == 0 {
		t.Errorf("expected every sector reported lost when the deadline left nothing collected")
	}
}
