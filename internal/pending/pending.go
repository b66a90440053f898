// Package pending implements the per-(sensor,destination) read cursor and
// pending window (spec component E): count_new, read_bulk, commit, revert.
// Writes broadcast to every destination; each destination's cursor and
// pending window are independent, and a sector is freed only once every
// destination that ever owned it has committed past it.
package pending

import (
	"errors"

	"github.com/telemetrygw/tsbuffer/internal/codec"
	"github.com/telemetrygw/tsbuffer/internal/model"
	"github.com/telemetrygw/tsbuffer/internal/sector"
)

// CountNew reports how many records dest has not yet delivered via ReadBulk,
// from its read cursor (or the chain head, if dest has never read) up to the
// sensor's current write position.
func CountNew(pool *sector.Pool, state *model.SensorState, dest model.Destination) (uint32, error) {
	ds := &state.PerDestination[dest]
	id := ds.ReadHeadID
	offset := ds.ReadOffset
	if id == sector.Null {
		id = state.RAMHeadID
		offset = 0
	}
	if id == sector.Null {
		return 0, nil
	}

	var count uint32
	limit := pool.Len()
	for visited := 0; ; visited++ {
		if visited > limit {
			return count, ErrCorrupt
		}
		meta, err := pool.Meta(id)
		if err != nil {
			return count, ErrCorrupt
		}
		fill := sector.Capacity(meta.Kind)
		if id == state.RAMTailID {
			fill = state.TailWriteOffset
		}
		if offset <= fill {
			count += fill - offset
		}
		if id == state.RAMTailID {
			return count, nil
		}
		id = meta.NextID
		offset = 0
	}
}

// ReadBulk reads up to max records for dest, advancing its read cursor and
// extending its pending window. It never returns an error for "no more
// records" — filled simply comes back lower than max (zero at the tail).
// The pending window's start is only (re)captured when no window is
// currently open, so repeated ReadBulk calls between commits extend one
// contiguous window rather than resetting it.
func ReadBulk(pool *sector.Pool, s model.Sensor, state *model.SensorState, dest model.Destination, max uint32) ([]model.Sample, uint32, error) {
	ds := &state.PerDestination[dest]
	if ds.PendingCount == 0 {
		if ds.ReadHeadID == sector.Null {
			if state.RAMHeadID == sector.Null {
				return nil, 0, nil
			}
			ds.PendingStart = state.RAMHeadID
			ds.PendingOff = 0
		} else {
			ds.PendingStart = ds.ReadHeadID
			ds.PendingOff = ds.ReadOffset
		}
	}

	out := make([]model.Sample, 0, max)
	var filled uint32
	for filled < max {
		sample, err := codec.ReadOne(pool, s, state, dest)
		if errors.Is(err, codec.ErrNoData) {
			break
		}
		if err != nil {
			return out, filled, err
		}
		out = append(out, sample)
		filled++
	}
	ds.PendingCount += filled
	return out, filled, nil
}

// Commit acknowledges the first n records of dest's pending window. Sectors
// that fall entirely behind the committed region have dest cleared from
// their pending-destination mask; once that mask is empty and no
// destination's read cursor still points at the sector, it is freed.
func Commit(pool *sector.Pool, state *model.SensorState, dest model.Destination, n uint32) error {
	if n == 0 {
		return nil
	}
	ds := &state.PerDestination[dest]
	if n > ds.PendingCount {
		return ErrInvalidParameter
	}

	id := ds.PendingStart
	offset := ds.PendingOff
	remaining := n
	limit := pool.Len()

	for visited := 0; remaining > 0; visited++ {
		if visited > limit {
			return ErrCorrupt
		}
		meta, err := pool.Meta(id)
		if err != nil {
			return ErrCorrupt
		}
		fill := sector.Capacity(meta.Kind)
		if id == state.RAMTailID {
			fill = state.TailWriteOffset
		}

		available := fill - offset
		step := remaining
		if step > available {
			step = available
		}
		offset += step
		remaining -= step

		if offset >= fill && id != state.RAMTailID {
			next := meta.NextID
			if err := clearAndMaybeFree(pool, state, id, dest); err != nil {
				return err
			}
			id = next
			offset = 0
		}
	}

	// If the committed region reaches exactly the end of what's been
	// written to the tail, the whole chain may now be empty: the normal
	// per-sector free above never considers the tail, since a non-empty
	// chain always needs somewhere for the next write to land. Draining
	// the tail is a separate, chain-emptying operation.
	if id == state.RAMTailID && offset == state.TailWriteOffset {
		drained, err := tryDrainTail(pool, state, id, dest)
		if err != nil {
			return err
		}
		if drained {
			id = sector.Null
			offset = 0
		}
	}

	ds.PendingStart = id
	ds.PendingOff = offset
	ds.PendingCount -= n
	return nil
}

// tryDrainTail frees the tail sector and empties the chain once dest has
// committed all the way through it and the read cursor of every destination
// that owns the tail or has started reading has also caught up to the
// current write offset. It reports whether the chain was actually drained.
func tryDrainTail(pool *sector.Pool, state *model.SensorState, id sector.ID, dest model.Destination) (bool, error) {
	if err := pool.MutateMeta(id, func(e *sector.Entry) {
		e.PendingDestMask &^= dest.Mask()
	}); err != nil {
		return false, err
	}
	meta, err := pool.Meta(id)
	if err != nil {
		return false, err
	}
	if meta.PendingDestMask != 0 {
		return false, nil
	}
	for i := range state.PerDestination {
		ds := &state.PerDestination[i]
		if ds.ReadHeadID == sector.Null && meta.OwningDestMask&model.Destination(i).Mask() == 0 {
			continue
		}
		if !(ds.ReadHeadID == id && ds.ReadOffset == state.TailWriteOffset) {
			return false, nil
		}
	}

	pool.Free(id)
	state.RAMHeadID = sector.Null
	state.RAMTailID = sector.Null
	state.TailWriteOffset = 0
	for i := range state.PerDestination {
		state.PerDestination[i].ReadHeadID = sector.Null
		state.PerDestination[i].ReadOffset = 0
	}
	return true, nil
}

// clearAndMaybeFree clears dest from id's pending-destination mask and frees
// the sector once every destination has committed past it and no
// destination's read cursor still references it.
func clearAndMaybeFree(pool *sector.Pool, state *model.SensorState, id sector.ID, dest model.Destination) error {
	if err := pool.MutateMeta(id, func(e *sector.Entry) {
		e.PendingDestMask &^= dest.Mask()
	}); err != nil {
		return err
	}
	meta, err := pool.Meta(id)
	if err != nil {
		return err
	}
	if meta.PendingDestMask != 0 {
		return nil
	}
	for i := range state.PerDestination {
		ds := &state.PerDestination[i]
		if ds.ReadHeadID == id {
			return nil
		}
		// A destination that owns this sector but has never read anything
		// implicitly sits at the chain head; if that's still this sector,
		// it hasn't passed it.
		if ds.ReadHeadID == sector.Null && state.RAMHeadID == id && meta.OwningDestMask&model.Destination(i).Mask() != 0 {
			return nil
		}
	}
	if state.RAMHeadID == id {
		state.RAMHeadID = meta.NextID
	}
	pool.Free(id)
	return nil
}

// Revert resets dest's read cursor back to the start of its pending window
// and clears the window; sector contents and other destinations' state are
// unaffected. A subsequent ReadBulk(max) returns the same records as before
// the reverted one.
func Revert(state *model.SensorState, dest model.Destination) {
	ds := &state.PerDestination[dest]
	ds.ReadHeadID = ds.PendingStart
	ds.ReadOffset = ds.PendingOff
	ds.PendingCount = 0
}
