package tsbuffer

import "github.com/telemetrygw/tsbuffer/internal/model"

// Sensor, SensorState, and Destination are re-exported from internal/model
// at the root so callers never import an internal package directly, while
// every lower component shares exactly one definition (spec §9: the core is
// stateless w.r.t. sensor identity — the caller owns every Sensor/SensorState
// value and passes it into each call).
type (
	Sensor           = model.Sensor
	SensorState      = model.SensorState
	DestinationState = model.DestinationState
	Destination      = model.Destination
)

const (
	DestTelemetry   = model.DestTelemetry
	DestDiagnostics = model.DestDiagnostics
	DestGateway     = model.DestGateway
	DestBLE         = model.DestBLE
	DestCAN         = model.DestCAN
	NumDestinations = model.NumDestinations
)

// NewSensorState returns a SensorState with an empty chain and no pending
// reads on any destination.
func NewSensorState() SensorState {
	return model.NewSensorState()
}
