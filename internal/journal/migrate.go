package journal

import (
	"github.com/telemetrygw/tsbuffer/internal/model"
	"github.com/telemetrygw/tsbuffer/internal/sector"
	"github.com/telemetrygw/tsbuffer/internal/spool"
)

// Migrator drives RAM-to-disk migration for one sensor's chain, writing
// through a Journal and a Spooler and rewriting the chain into a DiskIndex.
type Migrator struct {
	Pool    *sector.Pool
	Journal *Journal
	Spool   *spool.Spooler
	Disk    *DiskIndex
}

// Migrate walks sensorID's chain from the head, migrating up to maxBatch
// RAM sectors (never including the current tail, which is still being
// written) to one disk file. It journals the operation before writing the
// file and commits the journal before rewriting the chain, so a crash
// between file-write and journal-commit leaves the source chain untouched
// and the orphan file discoverable on replay (spec §8 scenario 4).
//
// Every destination's cursor that currently points into the migrated range
// is rewritten to the corresponding disk-backed ID so reads continue
// seamlessly through internal/spool.
func (m *Migrator) Migrate(sensorID uint32, state *model.SensorState, maxBatch int, seq uint32, nowUTCMs uint64) (int, error) {
	if state.RAMHeadID == sector.Null || maxBatch <= 0 {
		return 0, nil
	}

	var ids []sector.ID
	var payloads [][]byte
	id := state.RAMHeadID
	var kind sector.Kind
	for len(ids) < maxBatch && id != sector.Null && id != state.RAMTailID {
		meta, err := m.Pool.Meta(id)
		if err != nil {
			break
		}
		if m.blockedForMigration(state, id, meta) {
			// A destination has already taken delivery of this sector via
			// read_bulk but not yet committed it; stop the batch here
			// rather than pulling data out from under an in-flight pending
			// window (spec §4.F selection policy).
			break
		}
		payload, err := m.Pool.Payload(id)
		if err != nil {
			break
		}
		kind = meta.Kind
		cp := make([]byte, len(payload))
		copy(cp, payload)
		ids = append(ids, id)
		payloads = append(payloads, cp)
		id = meta.NextID
	}
	if len(ids) == 0 {
		return 0, nil
	}
	afterRAMID := id // first sector after the migrated run, still in RAM (or tail), or Null

	name := spool.FileName(sensorID, seq, false)
	opID, err := m.Journal.AppendPending(OpMigrate, sensorID, state.ActiveDestMask, state.RAMHeadID, afterRAMID, name, ids)
	if err != nil {
		return 0, err
	}

	var all []byte
	for _, p := range payloads {
		all = append(all, p...)
	}
	header := spool.DefaultHeader(sensorID, uint8(state.ActiveDestMask), seq, uint8(kind), nowUTCMs)
	header.RecordCount = uint32(len(payloads))
	header.TailFill = sector.Capacity(kind)
	header.ChecksumCRC32 = spool.ChecksumPayload(all)

	if err := m.Spool.WriteFile(name, header, payloads); err != nil {
		return 0, err
	}

	pendingEntry := Entry{
		OpID: opID, Kind: OpMigrate, SensorID: sensorID, DestMask: state.ActiveDestMask,
		BeforeTailID: state.RAMHeadID, AfterTailID: afterRAMID, FileName: name, SectorList: ids,
		State: StatePending,
	}
	if err := m.Journal.Commit(pendingEntry); err != nil {
		return 0, err
	}

	m.rewriteChain(sensorID, state, ids, afterRAMID, name)
	return len(ids), nil
}

// blockedForMigration reports whether id is currently inside some
// destination's delivered-but-uncommitted pending window — data already
// handed back by read_bulk but not yet acknowledged by commit. The
// selection policy (spec §4.F) only clears a sector for migration once its
// pending_destinations_mask is 0 for every destination, or every
// destination still holding a bit for it hasn't delivered it yet (it sits
// at or after that destination's read cursor, outside its current pending
// window).
func (m *Migrator) blockedForMigration(state *model.SensorState, id sector.ID, meta sector.Entry) bool {
	if meta.PendingDestMask == 0 {
		return false
	}
	for i := range state.PerDestination {
		dest := model.Destination(i)
		if meta.PendingDestMask&dest.Mask() == 0 {
			continue
		}
		ds := &state.PerDestination[i]
		if ds.PendingStart == sector.Null || ds.ReadHeadID == sector.Null {
			continue
		}
		for cur := ds.PendingStart; cur != sector.Null && cur != ds.ReadHeadID; {
			if cur == id {
				return true
			}
			next, err := m.Pool.Meta(cur)
			if err != nil {
				break
			}
			cur = next.NextID
		}
	}
	return false
}

// rewriteChain replaces the migrated RAM run with disk-backed IDs, frees the
// RAM slots, and remaps any destination cursor pointing into the run.
func (m *Migrator) rewriteChain(sensorID uint32, state *model.SensorState, ids []sector.ID, afterRAMID sector.ID, file string) {
	diskIDs := make([]sector.ID, len(ids))
	for i, ramID := range ids {
		meta, _ := m.Pool.Meta(ramID)
		diskIDs[i] = m.Disk.Alloc(DiskEntry{
			Kind:            meta.Kind,
			OwningSensor:    sensorID,
			OwningDestMask:  meta.OwningDestMask,
			PendingDestMask: meta.PendingDestMask,
			File:            file,
			RecordOffset:    uint32(i),
		})
	}
	for i, diskID := range diskIDs {
		next := afterRAMID
		if i+1 < len(diskIDs) {
			next = diskIDs[i+1]
		}
		m.Disk.MutateMeta(diskID, func(e *DiskEntry) { e.NextID = next })
	}

	state.RAMHeadID = diskIDs[0]
	if state.RAMTailID == sector.Null {
		// every RAM sector was migrated (tail included): this cannot
		// happen since the loop never includes the tail, kept defensive.
		state.RAMTailID = diskIDs[len(diskIDs)-1]
	}

	migrated := make(map[sector.ID]int, len(ids))
	for i, id := range ids {
		migrated[id] = i
	}
	for i := range state.PerDestination {
		ds := &state.PerDestination[i]
		if idx, ok := migrated[ds.ReadHeadID]; ok {
			ds.ReadHeadID = diskIDs[idx]
		}
		if idx, ok := migrated[ds.PendingStart]; ok {
			ds.PendingStart = diskIDs[idx]
		}
	}

	for _, id := range ids {
		m.Pool.Free(id)
	}
}
