// Package chain implements the per-sensor chain engine (spec component C):
// head/tail/write-offset bookkeeping, the oldest-first chain walker, and
// corruption validation/repair. Chains are singly linked — there is no
// back-pointer, so oldest-first streaming is the only access pattern and the
// entire class of back-pointer cycle bugs spec §9 warns about cannot arise
// from this package's own links (a corrupted next_id can still introduce
// one, which is exactly what Validate detects).
package chain

import (
	"github.com/telemetrygw/tsbuffer/internal/model"
	"github.com/telemetrygw/tsbuffer/internal/sector"
)

// Engine walks and mutates chains stored in a sector.Pool. It holds no
// per-sensor state itself — every method takes the caller-owned
// *model.SensorState, consistent with the core being stateless w.r.t.
// sensor identity.
type Engine struct {
	pool *sector.Pool
}

// NewEngine wraps pool. The pool is not owned by the engine — callers may
// share one pool across many engines/components.
func NewEngine(pool *sector.Pool) *Engine {
	return &Engine{pool: pool}
}

// LinkTail allocates a new sector, appends it to state's chain, and makes
// it the new tail. If the chain was empty, the new sector becomes both
// head and tail. destMask (normally state.ActiveDestMask) is captured as
// the sector's owning and initial pending-destination mask.
func (e *Engine) LinkTail(state *model.SensorState, sensorID uint32, kind sector.Kind, destMask uint32) (sector.ID, error) {
	id, err := e.pool.Alloc(sensorID, destMask, kind)
	if err != nil {
		return sector.Null, err
	}

	if state.RAMTailID != sector.Null {
		if mutErr := e.pool.MutateMeta(state.RAMTailID, func(entry *sector.Entry) {
			entry.NextID = id
		}); mutErr != nil {
			e.pool.Free(id)
			return sector.Null, mutErr
		}
	}
	if state.RAMHeadID == sector.Null {
		state.RAMHeadID = id
	}
	state.RAMTailID = id
	state.TailWriteOffset = 0
	return id, nil
}

// WalkEntry is one hop of a chain walk.
type WalkEntry struct {
	ID   sector.ID
	Kind sector.Kind
	// Fill is the number of records stored in this sector: the
	// layout-maximum for every sector except the tail, whose fill is the
	// sensor's current write offset.
	Fill uint32
}

// Walk returns the chain from head to tail in order. It is bounded by the
// pool's sector count so a corrupt cycle cannot loop forever; a cycle found
// this way surfaces as ErrCycle.
func (e *Engine) Walk(state *model.SensorState) ([]WalkEntry, error) {
	if state.RAMHeadID == sector.Null {
		return nil, nil
	}

	var out []WalkEntry
	visited := make(map[sector.ID]bool)
	id := state.RAMHeadID
	limit := e.pool.Len()

	for id != sector.Null {
		if visited[id] {
			return out, ErrCycle
		}
		if len(visited) > limit {
			return out, ErrChainTooLong
		}
		visited[id] = true

		meta, err := e.pool.Meta(id)
		if err != nil {
			return out, ErrDangling
		}

		fill := sector.Capacity(meta.Kind)
		if id == state.RAMTailID {
			fill = state.TailWriteOffset
		}
		out = append(out, WalkEntry{ID: id, Kind: meta.Kind, Fill: fill})
		id = meta.NextID
	}
	return out, nil
}

// Validate walks state's chain looking for cycles, dangling links, or
// entries owned by a different sensor, and reports chains longer than the
// pool itself. It never mutates state or the pool.
func (e *Engine) Validate(state *model.SensorState, sensorID uint32) error {
	if state.RAMHeadID == sector.Null {
		return nil
	}

	visited := make(map[sector.ID]bool)
	id := state.RAMHeadID
	limit := e.pool.Len()

	for id != sector.Null {
		if visited[id] {
			return ErrCycle
		}
		if len(visited) > limit {
			return ErrChainTooLong
		}
		visited[id] = true

		meta, err := e.pool.Meta(id)
		if err != nil {
			return ErrDangling
		}
		if meta.OwningSensor != sensorID {
			return ErrWrongOwner
		}
		id = meta.NextID
	}
	return nil
}

// Repair truncates state's chain at the first broken link (cycle, dangling
// reference, or wrong-owner entry) and reports how many records were lost
// downstream of the break — every record this engine can still observe
// through the corrupted pointer before it must stop, since anything beyond
// an unreachable or cyclic link can no longer be counted from here. The
// surviving prefix's tail is left with a full write offset so the next
// write allocates a fresh sector rather than append past known-good data.
func (e *Engine) Repair(state *model.SensorState, sensorID uint32) (droppedRecords int, err error) {
	if state.RAMHeadID == sector.Null {
		return 0, nil
	}

	visited := make(map[sector.ID]bool)
	var prev sector.ID = sector.Null
	id := state.RAMHeadID
	limit := e.pool.Len()

	for id != sector.Null {
		if visited[id] || len(visited) > limit {
			break
		}
		meta, metaErr := e.pool.Meta(id)
		if metaErr != nil || meta.OwningSensor != sensorID {
			break
		}
		visited[id] = true
		prev = id
		id = meta.NextID
	}

	if id == sector.Null {
		// Chain was already intact.
		return 0, nil
	}

	// Count what's still observable past the break, without touching it —
	// it may belong to another sensor's live chain.
	lostVisited := make(map[sector.ID]bool)
	cursor := id
	for cursor != sector.Null && !lostVisited[cursor] && len(lostVisited) <= limit {
		meta, metaErr := e.pool.Meta(cursor)
		if metaErr != nil {
			break
		}
		lostVisited[cursor] = true
		droppedRecords += int(sector.Capacity(meta.Kind))
		cursor = meta.NextID
	}

	if prev == sector.Null {
		state.RAMHeadID = sector.Null
		state.RAMTailID = sector.Null
		state.TailWriteOffset = 0
		return droppedRecords, ErrCorrupt
	}

	if mutErr := e.pool.MutateMeta(prev, func(entry *sector.Entry) {
		entry.NextID = sector.Null
	}); mutErr != nil {
		return droppedRecords, mutErr
	}
	state.RAMTailID = prev
	prevMeta, _ := e.pool.Meta(prev)
	state.TailWriteOffset = sector.Capacity(prevMeta.Kind)
	return droppedRecords, ErrCorrupt
}
