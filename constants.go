package tsbuffer

import "github.com/telemetrygw/tsbuffer/internal/constants"

// Re-exported defaults, so callers building BufferParams don't need to
// import internal/constants directly.
const (
	DefaultPoolSectors        = constants.DefaultPoolSectors
	DefaultMigrateThreshold   = constants.DefaultMigrateThreshold
	DefaultStopThreshold      = constants.DefaultStopThreshold
	DefaultTSDBatch           = constants.DefaultTSDBatch
	DefaultEVTBatch           = constants.DefaultEVTBatch
	DefaultIOErrorTrip        = constants.DefaultIOErrorTrip
	DefaultPowerAbortDeadline = constants.DefaultPowerAbortDeadline
)
