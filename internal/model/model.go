// Package model holds the caller-owned data types the core operates on:
// Sensor handles, per-sensor state, and per-destination cursors. Nothing in
// this package is mutated behind the caller's back outside of the explicit
// core API calls that take a *SensorState — the core is stateless with
// respect to sensor identity (spec §9, "global sensor registry is
// rejected"): it never maintains its own sensors[] table.
package model

import "github.com/telemetrygw/tsbuffer/internal/sector"

// Destination is a logical upload target. Each has its own read cursor and
// pending window per sensor.
type Destination uint8

const (
	DestTelemetry Destination = iota
	DestDiagnostics
	DestGateway
	DestBLE
	DestCAN

	// NumDestinations bounds the small fixed destination set; it sizes the
	// per-sensor PerDestination array and the bitmasks used for broadcast
	// membership (OwningDestMask, PendingDestMask).
	NumDestinations = 5
)

func (d Destination) String() string {
	switch d {
	case DestTelemetry:
		return "telemetry"
	case DestDiagnostics:
		return "diagnostics"
	case DestGateway:
		return "gateway"
	case DestBLE:
		return "ble"
	case DestCAN:
		return "can"
	default:
		return "unknown"
	}
}

// Mask returns the single-bit mask for d, used in OwningDestMask/PendingDestMask.
func (d Destination) Mask() uint32 {
	return 1 << uint32(d)
}

// AllDestMask is the bitmask with every destination bit set — the initial
// OwningDestMask and PendingDestMask for a freshly written sector whose
// sensor has no destination activated, which then broadcasts to every
// destination (see internal/codec).
const AllDestMask = (1 << NumDestinations) - 1

// Sensor is the caller-owned handle identifying a data source. SamplePeriodMs
// of zero means EVT (irregular event) mode; a positive value means TSD
// (uniformly sampled) mode.
type Sensor struct {
	ID             uint32
	SamplePeriodMs uint32
}

// IsTSD reports whether this sensor is in uniformly-sampled mode.
func (s Sensor) IsTSD() bool {
	return s.SamplePeriodMs > 0
}

// Kind returns the sector payload layout this sensor uses.
func (s Sensor) Kind() sector.Kind {
	if s.IsTSD() {
		return sector.KindTSD
	}
	return sector.KindEVT
}

// DestinationState is the per-(sensor,destination) read cursor and pending
// window. It belongs in SensorState, not in a device-wide table, because
// every destination streams a given sensor independently.
type DestinationState struct {
	ReadHeadID   sector.ID
	ReadOffset   uint32
	PendingStart sector.ID
	PendingOff   uint32
	PendingCount uint32

	// DiskFileCursor is reserved for a position within a disk-backed
	// sector's file; nothing in this module sets or reads it (the hybrid
	// reader locates disk records through ReadHeadID and ReadOffset).
	DiskFileCursor uint32
}

// SensorState is the caller-owned, core-mutated per-sensor state: chain
// head/tail and every destination's cursor. The core never stores this
// itself; every API call takes a pointer to the caller's copy.
type SensorState struct {
	RAMHeadID       sector.ID
	RAMTailID       sector.ID
	TailWriteOffset uint32
	PerDestination  [NumDestinations]DestinationState

	// ActiveDestMask is the set of destinations this sensor currently
	// broadcasts to, maintained by ActivateSensor/DeactivateSensor. It is
	// captured into each new sector's owning/pending masks at allocation
	// time, not retroactively applied to sectors already written.
	ActiveDestMask uint32
}

// NewSensorState returns a SensorState with an empty chain and no pending
// reads on any destination.
func NewSensorState() SensorState {
	s := SensorState{
		RAMHeadID: sector.Null,
		RAMTailID: sector.Null,
	}
	for i := range s.PerDestination {
		s.PerDestination[i] = DestinationState{
			ReadHeadID:   sector.Null,
			PendingStart: sector.Null,
		}
	}
	return s
}

// Sample is one decoded record: either a TSD value at a reconstructed
// timestamp, or a raw EVT (value, timestamp) pair.
type Sample struct {
	Value uint32
	UTCMs uint64
}
