package codec

import (
	"errors"
	"testing"

	"github.com/telemetrygw/tsbuffer/internal/chain"
	"github.com/telemetrygw/tsbuffer/internal/model"
	"github.com/telemetrygw/tsbuffer/internal/sector"
)

// TestTSDPackingScenario reproduces spec §8's concrete TSD packing example:
// 32-byte sectors, period=60000ms, first write at clock=1_000_000, values
// 100..106 (7 samples => 2 sectors at 6 values/sector).
func TestTSDPackingScenario(t *testing.T) {
	pool := sector.NewPool(4)
	eng := chain.NewEngine(pool)
	sensorHandle := model.Sensor{ID: 1, SamplePeriodMs: 60000}
	state := model.NewSensorState()

	values := []uint32{100, 101, 102, 103, 104, 105, 106}
	clock := uint64(1_000_000)
	for i, v := range values {
		now := clock
		if i >= int(sector.Capacity(sector.KindTSD)) {
			// second sector is stamped when it's actually allocated.
			now = clock + uint64(i)*60000
		}
		if err := WriteTSD(pool, eng, sensorHandle, &state, v, now); err != nil {
			t.Fatalf("WriteTSD(%d) failed: %v", v, err)
		}
	}

	stats := pool.Stats()
	if stats.TSDInUse != 2 {
		t.Fatalf("sectors allocated = %d, want 2", stats.TSDInUse)
	}

	headMeta, _ := pool.Meta(state.RAMHeadID)
	headPayload, _ := pool.Payload(state.RAMHeadID)
	if got := TSDFirstUTC(headPayload); got != clock {
		t.Errorf("sector-1 first_utc = %d, want %d", got, clock)
	}
	if headMeta.NextID != state.RAMTailID {
		t.Fatalf("expected two-sector chain")
	}

	// Sample index 3 (value 103) should read back as (103, 1_180_000).
	for i := 0; i < 3; i++ {
		if _, err := ReadOne(pool, sensorHandle, &state, model.DestTelemetry); err != nil {
			t.Fatalf("priming reads failed at %d: %v", i, err)
		}
	}
	sample, err := ReadOne(pool, sensorHandle, &state, model.DestTelemetry)
	if err != nil {
		t.Fatalf("ReadOne failed: %v", err)
	}
	if sample.Value != 103 || sample.UTCMs != 1_180_000 {
		t.Errorf("sample 3 = %+v, want {103 1180000}", sample)
	}

	// Drain to sample 6 (value 106), which lives in sector-2 with its own
	// first_utc.
	var last model.Sample
	for {
		s, err := ReadOne(pool, sensorHandle, &state, model.DestTelemetry)
		if errors.Is(err, ErrNoData) {
			break
		}
		if err != nil {
			t.Fatalf("ReadOne failed: %v", err)
		}
		last = s
	}
	if last.Value != 106 {
		t.Errorf("last sample value = %d, want 106", last.Value)
	}
	wantApprox := clock + 6*60000
	if last.UTCMs < wantApprox-60000 || last.UTCMs > wantApprox+6*60000 {
		t.Errorf("last sample ts = %d, want near %d", last.UTCMs, wantApprox)
	}
}

func TestReadOneNoDataAtTail(t *testing.T) {
	pool := sector.NewPool(4)
	eng := chain.NewEngine(pool)
	s := model.Sensor{ID: 1, SamplePeriodMs: 1000}
	state := model.NewSensorState()

	if _, err := ReadOne(pool, s, &state, model.DestTelemetry); !errors.Is(err, ErrNoData) {
		t.Fatalf("ReadOne on empty chain = %v, want ErrNoData", err)
	}

	WriteTSD(pool, eng, s, &state, 42, 1000)
	sample, err := ReadOne(pool, s, &state, model.DestTelemetry)
	if err != nil || sample.Value != 42 {
		t.Fatalf("ReadOne = %+v, %v; want {42 ..}, nil", sample, err)
	}

	if _, err := ReadOne(pool, s, &state, model.DestTelemetry); !errors.Is(err, ErrNoData) {
		t.Errorf("ReadOne after drain = %v, want ErrNoData", err)
	}
}

func TestEVTRoundTrip(t *testing.T) {
	pool := sector.NewPool(4)
	eng := chain.NewEngine(pool)
	s := model.Sensor{ID: 2, SamplePeriodMs: 0}
	state := model.NewSensorState()

	WriteEVT(pool, eng, s, &state, 7, 5_000)
	WriteEVT(pool, eng, s, &state, 8, 5_500)

	first, err := ReadOne(pool, s, &state, model.DestGateway)
	if err != nil || first.Value != 7 || first.UTCMs != 5_000 {
		t.Fatalf("first EVT read = %+v, %v", first, err)
	}
	second, err := ReadOne(pool, s, &state, model.DestGateway)
	if err != nil || second.Value != 8 || second.UTCMs != 5_500 {
		t.Fatalf("second EVT read = %+v, %v", second, err)
	}
}

func TestSectorBoundaryRead(t *testing.T) {
	pool := sector.NewPool(4)
	eng := chain.NewEngine(pool)
	s := model.Sensor{ID: 3, SamplePeriodMs: 1000}
	state := model.NewSensorState()

	cap := sector.Capacity(sector.KindTSD)
	for i := uint32(0); i < cap+2; i++ {
		WriteTSD(pool, eng, s, &state, 1000+i, uint64(i)*1000)
	}

	for i := uint32(0); i < cap+2; i++ {
		sample, err := ReadOne(pool, s, &state, model.DestTelemetry)
		if err != nil {
			t.Fatalf("read %d failed: %v", i, err)
		}
		if sample.Value != 1000+i {
			t.Errorf("read %d value = %d, want %d", i, sample.Value, 1000+i)
		}
	}
}
