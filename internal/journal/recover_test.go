package journal

import (
	"testing"

	"github.com/telemetrygw/tsbuffer/internal/model"
	"github.com/telemetrygw/tsbuffer/internal/sector"
	"github.com/telemetrygw/tsbuffer/internal/spool"
)

func writeMigratedFile(t *testing.T, sp *spool.Spooler, sensorID, seq uint32, records int) {
	t.Helper()
	payloads := make([][]byte, records)
	var all []byte
	for i := range payloads {
		payloads[i] = make([]byte, 32)
		all = append(all, payloads[i]...)
	}
	h := spool.DefaultHeader(sensorID, uint8(model.AllDestMask), seq, 0, 1000)
	h.RecordCount = uint32(records)
	h.ChecksumCRC32 = spool.ChecksumPayload(all)
	name := spool.FileName(sensorID, seq, false)
	if err := sp.WriteFile(name, h, payloads); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
}

func TestRecoverSensorRehydratesChainInSequenceOrder(t *testing.T) {
	dir := t.TempDir()
	sp, err := spool.New(dir, 3)
	if err != nil {
		t.Fatalf("spool.New failed: %v", err)
	}
	defer sp.Close()

	writeMigratedFile(t, sp, 5, 2, 3)
	writeMigratedFile(t, sp, 5, 1, 2)
	writeMigratedFile(t, sp, 6, 1, 1) // different sensor, must not be picked up

	disk := NewDiskIndex()
	state, recovered, err := RecoverSensor(sp, disk, 5)
	if err != nil {
		t.Fatalf("RecoverSensor failed: %v", err)
	}
	if recovered != 5 {
		t.Fatalf("expected 5 recovered records, got %d", recovered)
	}
	if state.RAMHeadID == sector.Null || state.RAMTailID == sector.Null {
		t.Fatalf("expected a non-empty recovered chain, got %+v", state)
	}

	// Walk the recovered chain and confirm files appear in seq order
	// (seq 1's two records before seq 2's three).
	var files []string
	id := state.RAMHeadID
	for id != sector.Null {
		e, ok := disk.Get(id)
		if !ok {
			t.Fatalf("dangling disk id %v in recovered chain", id)
		}
		files = append(files, e.File)
		id = e.NextID
	}
	if len(files) != 5 {
		t.Fatalf("expected 5 hops in recovered chain, got %d", len(files))
	}
	wantFirst := spool.FileName(5, 1, false)
	wantLast := spool.FileName(5, 2, false)
	if files[0] != wantFirst || files[len(files)-1] != wantLast {
		t.Errorf("chain not in sequence order: %+v", files)
	}
}

func TestRecoverSensorOnEmptyDirectory(t *testing.T) {
	dir := t.TempDir()
	sp, err := spool.New(dir, 3)
	if err != nil {
		t.Fatalf("spool.New failed: %v", err)
	}
	defer sp.Close()

	state, recovered, err := RecoverSensor(sp, NewDiskIndex(), 42)
	if err != nil {
		t.Fatalf("RecoverSensor failed: %v", err)
	}
	if recovered != 0 || state.RAMHeadID != sector.Null {
		t.Errorf("expected empty recovery, got recovered=%d state=%+v", recovered, state)
	}
}
