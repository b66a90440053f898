package tsbuffer

import (
	"errors"

	"github.com/telemetrygw/tsbuffer/internal/codec"
	"github.com/telemetrygw/tsbuffer/internal/constants"
	"github.com/telemetrygw/tsbuffer/internal/journal"
	"github.com/telemetrygw/tsbuffer/internal/pending"
	"github.com/telemetrygw/tsbuffer/internal/sector"
)

// maxWalkHops bounds every hybrid chain walk below, the same role
// pool.Len() plays for the RAM-only walkers in internal/pending and
// internal/chain — a corrupt cycle surfaces as ErrCorrupt instead of
// looping forever.
const maxWalkHops = 1 << 20

// hop is one step of a hybrid RAM/disk chain walk: the fields internal/
// pending's RAM-only walkers read off sector.Entry, fetched instead from
// whichever tier id actually lives in.
type hop struct {
	kind            sector.Kind
	pendingDestMask uint32
	owningDestMask  uint32
	nextID          sector.ID
	diskBacked      bool
	file            string
	recordOffset    uint32
}

func (b *Buffer) getHop(id sector.ID) (hop, error) {
	if b.disk != nil && journal.IsDiskID(id) {
		e, ok := b.disk.Get(id)
		if !ok {
			return hop{}, pending.ErrCorrupt
		}
		return hop{kind: e.Kind, pendingDestMask: e.PendingDestMask, owningDestMask: e.OwningDestMask, nextID: e.NextID, diskBacked: true, file: e.File, recordOffset: e.RecordOffset}, nil
	}
	m, err := b.pool.Meta(id)
	if err != nil {
		return hop{}, pending.ErrCorrupt
	}
	return hop{kind: m.Kind, pendingDestMask: m.PendingDestMask, owningDestMask: m.OwningDestMask, nextID: m.NextID}, nil
}

func (b *Buffer) getPayload(id sector.ID, h hop) ([]byte, error) {
	if h.diskBacked {
		return b.spooler.ReadRecord(h.file, h.recordOffset, constants.SectorSize)
	}
	return b.pool.Payload(id)
}

// hybridCountNew mirrors pending.CountNew, but walks through getHop so the
// chain can cross from RAM into disk-backed sectors and back.
func (b *Buffer) hybridCountNew(state *SensorState, dest Destination) (uint32, error) {
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
	for i := 0; ; i++ {
		if i > maxWalkHops {
			return count, pending.ErrCorrupt
		}
		h, err := b.getHop(id)
		if err != nil {
			return count, err
		}
		fill := sector.Capacity(h.kind)
		if id == state.RAMTailID {
			fill = state.TailWriteOffset
		}
		if offset <= fill {
			count += fill - offset
		}
		if id == state.RAMTailID {
			return count, nil
		}
		id = h.nextID
		offset = 0
	}
}

// hybridReadOne mirrors codec.ReadOne, decoding through getHop/getPayload
// instead of assuming every sector lives in the RAM pool.
func (b *Buffer) hybridReadOne(s Sensor, state *SensorState, dest Destination) (Sample, error) {
	ds := &state.PerDestination[dest]

	if ds.ReadHeadID == sector.Null {
		if state.RAMHeadID == sector.Null {
			return Sample{}, codec.ErrNoData
		}
		ds.ReadHeadID = state.RAMHeadID
		ds.ReadOffset = 0
	}

	h, err := b.getHop(ds.ReadHeadID)
	if err != nil {
		return Sample{}, err
	}
	if ds.ReadHeadID != state.RAMTailID && ds.ReadOffset >= sector.Capacity(h.kind) {
		ds.ReadHeadID = h.nextID
		ds.ReadOffset = 0
		if h, err = b.getHop(ds.ReadHeadID); err != nil {
			return Sample{}, err
		}
	}
	fill := sector.Capacity(h.kind)
	if ds.ReadHeadID == state.RAMTailID {
		fill = state.TailWriteOffset
	}
	if ds.ReadOffset > fill {
		return Sample{}, codec.ErrCorruptLayout
	}
	if ds.ReadOffset >= fill {
		return Sample{}, codec.ErrNoData
	}

	payload, err := b.getPayload(ds.ReadHeadID, h)
	if err != nil {
		return Sample{}, codec.ErrCorruptLayout
	}

	var sample Sample
	switch h.kind {
	case sector.KindTSD:
		value := codec.DecodeTSDValue(payload, ds.ReadOffset)
		ts := codec.TSDSampleTimestamp(codec.TSDFirstUTC(payload), ds.ReadOffset, s.SamplePeriodMs)
		sample = Sample{Value: value, UTCMs: ts}
	case sector.KindEVT:
		value, ts := codec.DecodeEVTPair(payload, ds.ReadOffset)
		sample = Sample{Value: value, UTCMs: ts}
	default:
		return Sample{}, codec.ErrCorruptLayout
	}

	ds.ReadOffset++
	if ds.ReadOffset >= sector.Capacity(h.kind) && ds.ReadHeadID != state.RAMTailID {
		ds.ReadHeadID = h.nextID
		ds.ReadOffset = 0
	}
	return sample, nil
}

func (b *Buffer) hybridReadBulk(s Sensor, state *SensorState, dest Destination, max uint32) ([]Sample, uint32, error) {
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

	out := make([]Sample, 0, max)
	var filled uint32
	for filled < max {
		sample, err := b.hybridReadOne(s, state, dest)
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

// release clears dest from id's pending-destination mask, wherever id
// lives, and frees it once every destination has committed past it and no
// destination's read cursor still references it — a disk-backed sector's
// "free" also deletes its backing file once every sector that file held
// has been released (spec §4.F "Cleanup": a file is deleted once every
// destination that ever owned it has committed).
func (b *Buffer) release(state *SensorState, id sector.ID, dest Destination, h hop) error {
	newMask := h.pendingDestMask &^ dest.Mask()

	if h.diskBacked {
		b.disk.MutateMeta(id, func(e *journal.DiskEntry) { e.PendingDestMask = newMask })
		if newMask != 0 {
			return nil
		}
		if refersTo(state, id, h.owningDestMask) {
			return nil
		}
		file := h.file
		b.disk.Free(id)
		if state.RAMHeadID == id {
			state.RAMHeadID = h.nextID
		}
		if len(b.disk.EntriesForFile(file)) == 0 {
			_ = b.spooler.Delete(file)
		}
		return nil
	}

	if err := b.pool.MutateMeta(id, func(e *sector.Entry) { e.PendingDestMask = newMask }); err != nil {
		return err
	}
	if newMask != 0 {
		return nil
	}
	if refersTo(state, id, h.owningDestMask) {
		return nil
	}
	if state.RAMHeadID == id {
		state.RAMHeadID = h.nextID
	}
	b.pool.Free(id)
	return nil
}

// refersTo reports whether any destination's read cursor still points at
// id, including a destination in owningDestMask that has never read yet and
// so implicitly sits at the chain head.
func refersTo(state *SensorState, id sector.ID, owningDestMask uint32) bool {
	for i := range state.PerDestination {
		ds := &state.PerDestination[i]
		if ds.ReadHeadID == id {
			return true
		}
		if ds.ReadHeadID == sector.Null && state.RAMHeadID == id && owningDestMask&Destination(i).Mask() != 0 {
			return true
		}
	}
	return false
}

// tryDrainTail frees the tail sector and empties the whole chain once
// dest's commit walk has reached exactly the tail's current write offset
// and every destination that owns the tail or has started reading has
// caught up to that same position. The tail is
// never disk-backed (migration always stops one sector short of it), so
// this stays a plain RAM operation even in hybrid mode.
func (b *Buffer) tryDrainTail(state *SensorState, id sector.ID, dest Destination) (bool, error) {
	if err := b.pool.MutateMeta(id, func(e *sector.Entry) { e.PendingDestMask &^= dest.Mask() }); err != nil {
		return false, err
	}
	meta, err := b.pool.Meta(id)
	if err != nil {
		return false, err
	}
	if meta.PendingDestMask != 0 {
		return false, nil
	}
	for i := range state.PerDestination {
		ds := &state.PerDestination[i]
		if ds.ReadHeadID == sector.Null && meta.OwningDestMask&Destination(i).Mask() == 0 {
			continue
		}
		if !(ds.ReadHeadID == id && ds.ReadOffset == state.TailWriteOffset) {
			return false, nil
		}
	}

	b.pool.Free(id)
	state.RAMHeadID = sector.Null
	state.RAMTailID = sector.Null
	state.TailWriteOffset = 0
	for i := range state.PerDestination {
		state.PerDestination[i].ReadHeadID = sector.Null
		state.PerDestination[i].ReadOffset = 0
	}
	return true, nil
}

// hybridCommit mirrors pending.Commit, releasing sectors through release
// (which dispatches per-hop between the RAM pool and the disk index)
// instead of assuming the whole chain lives in one tier.
func (b *Buffer) hybridCommit(state *SensorState, dest Destination, n uint32) error {
	if n == 0 {
		return nil
	}
	ds := &state.PerDestination[dest]
	if n > ds.PendingCount {
		return pending.ErrInvalidParameter
	}

	id := ds.PendingStart
	offset := ds.PendingOff
	remaining := n

	for i := 0; remaining > 0; i++ {
		if i > maxWalkHops {
			return pending.ErrCorrupt
		}
		h, err := b.getHop(id)
		if err != nil {
			return err
		}
		fill := sector.Capacity(h.kind)
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
			next := h.nextID
			if err := b.release(state, id, dest, h); err != nil {
				return err
			}
			id = next
			offset = 0
		}
	}

	if id == state.RAMTailID && offset == state.TailWriteOffset {
		drained, err := b.tryDrainTail(state, id, dest)
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
