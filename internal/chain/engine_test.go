package chain

import (
	"errors"
	"testing"

	"github.com/telemetrygw/tsbuffer/internal/model"
	"github.com/telemetrygw/tsbuffer/internal/sector"
)

func TestLinkTailGrowsChain(t *testing.T) {
	pool := sector.NewPool(4)
	eng := NewEngine(pool)
	state := model.NewSensorState()

	id1, err := eng.LinkTail(&state, 1, sector.KindTSD, model.AllDestMask)
	if err != nil {
		t.Fatalf("LinkTail failed: %v", err)
	}
	if state.RAMHeadID != id1 || state.RAMTailID != id1 {
		t.Fatalf("first link did not set head/tail: %+v", state)
	}

	id2, err := eng.LinkTail(&state, 1, sector.KindTSD, model.AllDestMask)
	if err != nil {
		t.Fatalf("LinkTail failed: %v", err)
	}
	if state.RAMHeadID != id1 || state.RAMTailID != id2 {
		t.Fatalf("second link did not preserve head/update tail: %+v", state)
	}

	meta, _ := pool.Meta(id1)
	if meta.NextID != id2 {
		t.Errorf("head.NextID = %v, want %v", meta.NextID, id2)
	}
}

func TestWalkReportsFillForTailOnly(t *testing.T) {
	pool := sector.NewPool(4)
	eng := NewEngine(pool)
	state := model.NewSensorState()

	eng.LinkTail(&state, 1, sector.KindTSD, model.AllDestMask)
	eng.LinkTail(&state, 1, sector.KindTSD, model.AllDestMask)
	state.TailWriteOffset = 3

	entries, err := eng.Walk(&state)
	if err != nil {
		t.Fatalf("Walk failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].Fill != sector.Capacity(sector.KindTSD) {
		t.Errorf("non-tail fill = %d, want full capacity", entries[0].Fill)
	}
	if entries[1].Fill != 3 {
		t.Errorf("tail fill = %d, want 3", entries[1].Fill)
	}
}

func TestValidateDetectsWrongOwner(t *testing.T) {
	pool := sector.NewPool(4)
	eng := NewEngine(pool)
	stateA := model.NewSensorState()
	idA, _ := eng.LinkTail(&stateA, 1, sector.KindTSD, model.AllDestMask)

	// Corrupt: point A's only sector at an entry owned by a different sensor.
	otherID, _ := pool.Alloc(2, model.AllDestMask, sector.KindTSD)
	pool.MutateMeta(idA, func(e *sector.Entry) { e.NextID = otherID })

	if err := eng.Validate(&stateA, 1); !errors.Is(err, ErrWrongOwner) {
		t.Errorf("Validate = %v, want ErrWrongOwner", err)
	}
}

func TestValidateDetectsCycle(t *testing.T) {
	pool := sector.NewPool(4)
	eng := NewEngine(pool)
	state := model.NewSensorState()
	id1, _ := eng.LinkTail(&state, 1, sector.KindTSD, model.AllDestMask)
	id2, _ := eng.LinkTail(&state, 1, sector.KindTSD, model.AllDestMask)
	// Poke the tail to point back at the head, forming a cycle.
	pool.MutateMeta(id2, func(e *sector.Entry) { e.NextID = id1 })

	if err := eng.Validate(&state, 1); !errors.Is(err, ErrCycle) {
		t.Errorf("Validate = %v, want ErrCycle", err)
	}
}

func TestRepairTruncatesAtBreak(t *testing.T) {
	pool := sector.NewPool(4)
	eng := NewEngine(pool)
	state := model.NewSensorState()
	id1, _ := eng.LinkTail(&state, 1, sector.KindTSD, model.AllDestMask)
	eng.LinkTail(&state, 1, sector.KindTSD, model.AllDestMask)

	// Poke next_id of the mid-chain (head) entry to a free slot.
	pool.MutateMeta(id1, func(e *sector.Entry) { e.NextID = sector.ID(3) })

	if err := eng.Validate(&state, 1); !errors.Is(err, ErrDangling) {
		t.Fatalf("Validate before repair = %v, want ErrDangling", err)
	}

	dropped, err := eng.Repair(&state, 1)
	if !errors.Is(err, ErrCorrupt) {
		t.Fatalf("Repair err = %v, want ErrCorrupt", err)
	}
	if dropped != 0 {
		t.Errorf("dropped = %d, want 0 (broken link points at a free slot)", dropped)
	}
	if state.RAMTailID != id1 {
		t.Errorf("RAMTailID after repair = %v, want %v", state.RAMTailID, id1)
	}

	if err := eng.Validate(&state, 1); err != nil {
		t.Errorf("chain still invalid after repair: %v", err)
	}
}
