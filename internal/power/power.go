// Package power implements the power-loss shutdown flush (spec component
// H): a bounded, best-effort copy of a sensor's entire live RAM chain
// (head through tail, unlike migration which always leaves the tail in
// RAM) into a single emergency file, journaled the same way a migration
// is. Nothing in the chain is rewritten afterward — the process is
// exiting, so the caller's SensorState and the pool it points into are
// about to be discarded either way. On the next boot, the emergency file
// is recovered exactly like any other spooled file (internal/journal's
// RecoverSensor does not distinguish .dat from .emergency).
package power

import (
	"time"

	"github.com/telemetrygw/tsbuffer/internal/chain"
	"github.com/telemetrygw/tsbuffer/internal/journal"
	"github.com/telemetrygw/tsbuffer/internal/model"
	"github.com/telemetrygw/tsbuffer/internal/sector"
	"github.com/telemetrygw/tsbuffer/internal/spool"
)

// Handler drives emergency flush for one buffer's pool/spool/journal/disk
// index, the same roles internal/journal.Migrator plays for routine
// migration.
type Handler struct {
	Pool    *sector.Pool
	Spool   *spool.Spooler
	Journal *journal.Journal
	Disk    *journal.DiskIndex
}

// FlushSensor walks sensorID's full RAM chain and writes whatever it can
// collect before deadline into one emergency file. It stops collecting
// further sectors the moment deadline passes, reporting how many sectors
// it still managed to persist (flushed) and how many it had to leave
// behind (lost) — those records are gone once the process exits, since
// nothing else holds them durably.
func (h *Handler) FlushSensor(sensorID uint32, state *model.SensorState, seq uint32, nowUTCMs uint64, deadline time.Time) (flushed int, lost int, err error) {
	if state.RAMHeadID == sector.Null {
		return 0, 0, nil
	}

	eng := chain.NewEngine(h.Pool)
	entries, _ := eng.Walk(state)
	if len(entries) == 0 {
		return 0, 0, nil
	}

	var ids []sector.ID
	var payloads [][]byte
	var kind sector.Kind
	for _, we := range entries {
		if time.Now().After(deadline) {
			break
		}
		payload, perr := h.Pool.Payload(we.ID)
		if perr != nil {
			continue
		}
		cp := make([]byte, len(payload))
		copy(cp, payload)
		ids = append(ids, we.ID)
		payloads = append(payloads, cp)
		kind = we.Kind
	}
	lost = len(entries) - len(ids)
	if len(ids) == 0 {
		return 0, lost, nil
	}

	name := spool.FileName(sensorID, seq, true)
	opID, jerr := h.Journal.AppendPending(journal.OpEmergencyFlush, sensorID, state.ActiveDestMask, state.RAMHeadID, sector.Null, name, ids)
	if jerr != nil {
		return 0, lost, jerr
	}

	var all []byte
	for _, p := range payloads {
		all = append(all, p...)
	}
	header := spool.DefaultHeader(sensorID, uint8(state.ActiveDestMask), seq, uint8(kind), nowUTCMs)
	header.RecordCount = uint32(len(payloads))
	header.Emergency = true
	header.ChecksumCRC32 = spool.ChecksumPayload(all)
	if len(ids) == len(entries) {
		// The deadline let us collect all the way to the real chain tail, so
		// the last record is whatever was actually written into it, not a
		// full sector.
		header.TailFill = state.TailWriteOffset
	} else {
		// The deadline cut the walk short before reaching the live tail —
		// every record we did collect, including the last one, is an
		// already-complete sector.
		header.TailFill = sector.Capacity(kind)
	}

	if werr := h.Spool.WriteFile(name, header, payloads); werr != nil {
		return 0, lost, werr
	}

	pendingEntry := journal.Entry{
		OpID: opID, Kind: journal.OpEmergencyFlush, SensorID: sensorID, DestMask: state.ActiveDestMask,
		BeforeTailID: state.RAMHeadID, AfterTailID: sector.Null, FileName: name, SectorList: ids,
		State: journal.StatePending,
	}
	if cerr := h.Journal.Commit(pendingEntry); cerr != nil {
		return 0, lost, cerr
	}

	return len(ids), lost, nil
}
