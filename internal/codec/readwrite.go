package codec

import (
	"github.com/telemetrygw/tsbuffer/internal/chain"
	"github.com/telemetrygw/tsbuffer/internal/model"
	"github.com/telemetrygw/tsbuffer/internal/sector"
)

// destMaskOrAll resolves the destination mask a newly allocated sector should
// carry. A sensor with no destinations explicitly activated (ActiveDestMask
// still zero, e.g. one never passed through ActivateSensor) broadcasts to
// every destination, matching the pre-multi-destination write behavior.
func destMaskOrAll(state *model.SensorState) uint32 {
	if state.ActiveDestMask == 0 {
		return model.AllDestMask
	}
	return state.ActiveDestMask
}

// WriteTSD appends one TSD value to state's chain, allocating and linking a
// new tail sector (stamped with nowUTCMs as its first_sample_utc_ms) when
// the current tail is full or the chain is empty.
func WriteTSD(pool *sector.Pool, eng *chain.Engine, s model.Sensor, state *model.SensorState, value uint32, nowUTCMs uint64) error {
	if state.RAMTailID == sector.Null || sector.IsFull(sector.KindTSD, state.TailWriteOffset) {
		id, err := eng.LinkTail(state, s.ID, sector.KindTSD, destMaskOrAll(state))
		if err != nil {
			return err
		}
		payload, err := pool.Payload(id)
		if err != nil {
			return err
		}
		InitTSDHeader(payload, nowUTCMs)
	}

	payload, err := pool.Payload(state.RAMTailID)
	if err != nil {
		return err
	}
	AppendTSDValue(payload, state.TailWriteOffset, value)
	state.TailWriteOffset++
	return nil
}

// WriteEVT appends one (value, utc_ms) event to state's chain, allocating a
// new tail sector when needed.
func WriteEVT(pool *sector.Pool, eng *chain.Engine, s model.Sensor, state *model.SensorState, value uint32, utcMs uint64) error {
	if state.RAMTailID == sector.Null || sector.IsFull(sector.KindEVT, state.TailWriteOffset) {
		if _, err := eng.LinkTail(state, s.ID, sector.KindEVT, destMaskOrAll(state)); err != nil {
			return err
		}
	}

	payload, err := pool.Payload(state.RAMTailID)
	if err != nil {
		return err
	}
	AppendEVTPair(payload, state.TailWriteOffset, value, utcMs)
	state.TailWriteOffset++
	return nil
}

// ReadOne advances dest's read cursor by exactly one record and decodes it.
// A cursor left at the end of a sector that has since stopped being the
// tail first moves on to the next sector. It returns ErrNoData when the
// cursor has caught up with the tail's current write offset, and
// ErrCorruptLayout when the cursor's offset lies beyond it.
func ReadOne(pool *sector.Pool, s model.Sensor, state *model.SensorState, dest model.Destination) (model.Sample, error) {
	ds := &state.PerDestination[dest]

	if ds.ReadHeadID == sector.Null {
		if state.RAMHeadID == sector.Null {
			return model.Sample{}, ErrNoData
		}
		ds.ReadHeadID = state.RAMHeadID
		ds.ReadOffset = 0
	}

	if ds.ReadHeadID != state.RAMTailID && ds.ReadOffset >= sector.Capacity(s.Kind()) {
		done, err := pool.Meta(ds.ReadHeadID)
		if err != nil {
			return model.Sample{}, ErrCorruptLayout
		}
		ds.ReadHeadID = done.NextID
		ds.ReadOffset = 0
	}

	fill := sector.Capacity(s.Kind())
	if ds.ReadHeadID == state.RAMTailID {
		fill = state.TailWriteOffset
	}
	if ds.ReadOffset > fill {
		return model.Sample{}, ErrCorruptLayout
	}
	if ds.ReadOffset >= fill {
		return model.Sample{}, ErrNoData
	}

	meta, err := pool.Meta(ds.ReadHeadID)
	if err != nil {
		return model.Sample{}, ErrCorruptLayout
	}
	payload, err := pool.Payload(ds.ReadHeadID)
	if err != nil {
		return model.Sample{}, ErrCorruptLayout
	}

	var sample model.Sample
	switch meta.Kind {
	case sector.KindTSD:
		value := DecodeTSDValue(payload, ds.ReadOffset)
		ts := TSDSampleTimestamp(TSDFirstUTC(payload), ds.ReadOffset, s.SamplePeriodMs)
		sample = model.Sample{Value: value, UTCMs: ts}
	case sector.KindEVT:
		value, ts := DecodeEVTPair(payload, ds.ReadOffset)
		sample = model.Sample{Value: value, UTCMs: ts}
	default:
		return model.Sample{}, ErrCorruptLayout
	}

	ds.ReadOffset++
	if ds.ReadOffset >= sector.Capacity(meta.Kind) && ds.ReadHeadID != state.RAMTailID {
		ds.ReadHeadID = meta.NextID
		ds.ReadOffset = 0
	}
	return sample, nil
}
