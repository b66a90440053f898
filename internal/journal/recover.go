package journal

import (
	"sort"

	"github.com/telemetrygw/tsbuffer/internal/model"
	"github.com/telemetrygw/tsbuffer/internal/sector"
	"github.com/telemetrygw/tsbuffer/internal/spool"
)

// RecoverSensor rebuilds sensorID's chain purely from committed disk files
// (spec §4.G: "rehydrates chains by scanning per-sensor directories in
// sequence order"). It never consults the crashed process's old journal
// SectorList — those RAM IDs meant nothing once the process restarted — only
// the files Startup left behind after rolling back anything uncommitted.
//
// A sensor's .dat and .emergency files are recovered together, sorted purely
// by sequence number — an emergency flush is just a migration that happened
// to run at shutdown, not a distinct recovery case.
//
// The recovered chain is entirely disk-backed and read-only: any record that
// was still RAM-resident (or mid-migration) at the moment of the crash, and
// wasn't durably flushed by internal/power, is gone. Every destination's
// cursor starts at the chain head, since no per-destination read/commit
// position survives a restart either — callers that need to resume exactly
// where they left off must have durably recorded their own cursor alongside
// the data, which is outside this package's scope.
func RecoverSensor(sp *spool.Spooler, disk *DiskIndex, sensorID uint32) (model.SensorState, int, error) {
	names, err := sp.List()
	if err != nil {
		return model.SensorState{}, 0, err
	}

	type match struct {
		name string
		seq  uint32
	}
	var matches []match
	for _, n := range names {
		id, seq, _, ok := spool.ParseFileName(n)
		if !ok || id != sensorID {
			continue
		}
		matches = append(matches, match{name: n, seq: seq})
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].seq < matches[j].seq })

	state := model.NewSensorState()
	var prevID = sector.Null
	var recovered int

	for _, m := range matches {
		header, ok, verr := sp.Verify(m.name)
		if verr != nil || !ok {
			// A corrupt or unreadable file: skip it rather than fail the
			// whole sensor's recovery, leaving a gap in the chain. Any file
			// this defensive would ever catch should already have been
			// rolled back by Startup as an uncommitted orphan.
			continue
		}
		for rec := uint32(0); rec < header.RecordCount; rec++ {
			id := disk.Alloc(DiskEntry{
				Kind:            sector.Kind(header.Kind),
				OwningSensor:    sensorID,
				OwningDestMask:  uint32(header.DestMask),
				PendingDestMask: uint32(header.DestMask),
				NextID:          sector.Null,
				File:            m.name,
				RecordOffset:    rec,
			})
			if prevID == sector.Null {
				state.RAMHeadID = id
			} else {
				disk.MutateMeta(prevID, func(e *DiskEntry) { e.NextID = id })
			}
			state.RAMTailID = id
			prevID = id
			recovered++

			// Every record but the very last one recovered is a complete
			// sector; only the final record's header.TailFill can be less
			// than a full sector (an emergency flush's true tail). This runs
			// unconditionally and is simply overwritten until the last
			// iteration leaves the right value in place.
			if rec == header.RecordCount-1 {
				state.TailWriteOffset = header.TailFill
			} else {
				state.TailWriteOffset = sector.Capacity(sector.Kind(header.Kind))
			}
		}
	}

	return state, recovered, nil
}
