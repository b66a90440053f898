package pending

import (
	"testing"

	"github.com/telemetrygw/tsbuffer/internal/chain"
	"github.com/telemetrygw/tsbuffer/internal/codec"
	"github.com/telemetrygw/tsbuffer/internal/model"
	"github.com/telemetrygw/tsbuffer/internal/sector"
)

func writeEvents(t *testing.T, pool *sector.Pool, eng *chain.Engine, s model.Sensor, state *model.SensorState, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if err := codec.WriteEVT(pool, eng, s, state, uint32(i), uint64(i*1000)); err != nil {
			t.Fatalf("WriteEVT(%d) failed: %v", i, err)
		}
	}
}

// TestMultiDestinationBroadcastIsolation reproduces spec §8 scenario 2: two
// destinations, 10 events written, A reads and commits all 10, but B's
// count_new is unaffected and no sector is freed.
func TestMultiDestinationBroadcastIsolation(t *testing.T) {
	pool := sector.NewPool(16)
	eng := chain.NewEngine(pool)
	s := model.Sensor{ID: 1, SamplePeriodMs: 0}
	state := model.NewSensorState()
	state.ActiveDestMask = model.DestTelemetry.Mask() | model.DestDiagnostics.Mask()
	writeEvents(t, pool, eng, s, &state, 10)

	statsBefore := pool.Stats()

	_, filled, err := ReadBulk(pool, s, &state, model.DestTelemetry, 10)
	if err != nil || filled != 10 {
		t.Fatalf("ReadBulk(A) = %d, %v; want 10, nil", filled, err)
	}
	if err := Commit(pool, &state, model.DestTelemetry, 10); err != nil {
		t.Fatalf("Commit(A) failed: %v", err)
	}

	countB, err := CountNew(pool, &state, model.DestDiagnostics)
	if err != nil {
		t.Fatalf("CountNew(B) failed: %v", err)
	}
	if countB != 10 {
		t.Errorf("CountNew(B) = %d, want 10", countB)
	}

	statsAfter := pool.Stats()
	if statsAfter.EVTInUse != statsBefore.EVTInUse {
		t.Errorf("sector freed after A-only commit: before=%d after=%d", statsBefore.EVTInUse, statsAfter.EVTInUse)
	}

	// Now B catches up and commits; only then should sectors free.
	_, filled, err = ReadBulk(pool, s, &state, model.DestDiagnostics, 10)
	if err != nil || filled != 10 {
		t.Fatalf("ReadBulk(B) = %d, %v; want 10, nil", filled, err)
	}
	if err := Commit(pool, &state, model.DestDiagnostics, 10); err != nil {
		t.Fatalf("Commit(B) failed: %v", err)
	}
	finalStats := pool.Stats()
	if finalStats.EVTInUse >= statsBefore.EVTInUse {
		t.Errorf("expected sectors freed once both destinations committed, EVTInUse=%d", finalStats.EVTInUse)
	}
}

// TestNackAckLoop reproduces spec §8 scenario 3: write 10, read_bulk(10),
// revert, read_bulk(10) again returns identical values, commit(10) frees.
func TestNackAckLoop(t *testing.T) {
	pool := sector.NewPool(16)
	eng := chain.NewEngine(pool)
	s := model.Sensor{ID: 1, SamplePeriodMs: 0}
	state := model.NewSensorState()
	state.ActiveDestMask = model.DestGateway.Mask()
	writeEvents(t, pool, eng, s, &state, 10)

	first, filled, err := ReadBulk(pool, s, &state, model.DestGateway, 10)
	if err != nil || filled != 10 {
		t.Fatalf("first ReadBulk = %d, %v; want 10, nil", filled, err)
	}

	Revert(&state, model.DestGateway)
	if n, _ := CountNew(pool, &state, model.DestGateway); n != 10 {
		t.Fatalf("CountNew after revert = %d, want 10", n)
	}

	second, filled, err := ReadBulk(pool, s, &state, model.DestGateway, 10)
	if err != nil || filled != 10 {
		t.Fatalf("second ReadBulk = %d, %v; want 10, nil", filled, err)
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("sample %d differs after revert: %+v vs %+v", i, first[i], second[i])
		}
	}

	if err := Commit(pool, &state, model.DestGateway, 10); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	stats := pool.Stats()
	if stats.EVTInUse != 0 {
		t.Errorf("EVTInUse = %d after full commit, want 0", stats.EVTInUse)
	}
}

// TestCommitExceedsPendingWindow rejects a commit count larger than what
// was actually read.
func TestCommitExceedsPendingWindow(t *testing.T) {
	pool := sector.NewPool(4)
	eng := chain.NewEngine(pool)
	s := model.Sensor{ID: 1, SamplePeriodMs: 1000}
	state := model.NewSensorState()
	codec.WriteTSD(pool, eng, s, &state, 1, 1000)

	if _, _, err := ReadBulk(pool, s, &state, model.DestTelemetry, 1); err != nil {
		t.Fatalf("ReadBulk failed: %v", err)
	}
	if err := Commit(pool, &state, model.DestTelemetry, 5); err != ErrInvalidParameter {
		t.Errorf("Commit(5) over a pending window of 1 = %v, want ErrInvalidParameter", err)
	}
}

func TestCountNewOnEmptySensor(t *testing.T) {
	pool := sector.NewPool(4)
	state := model.NewSensorState()
	n, err := CountNew(pool, &state, model.DestTelemetry)
	if err != nil || n != 0 {
		t.Fatalf("CountNew on empty sensor = %d, %v; want 0, nil", n, err)
	}
}
