// Package constants holds default sizes, thresholds, and timing knobs
// shared across the buffer core.
package constants

import "time"

// Sector geometry. SectorSize is the fixed payload size of every sector in
// the pool; it determines both TSD and EVT per-sector capacity.
const (
	// SectorSize is the fixed byte size of every sector's payload.
	SectorSize = 32

	// TSDHeaderSize is the size of the first_sample_utc_ms field.
	TSDHeaderSize = 8

	// TSDValueSize is the size of one packed TSD value.
	TSDValueSize = 4

	// TSDValuesPerSector is how many TSD values fit after the header.
	TSDValuesPerSector = (SectorSize - TSDHeaderSize) / TSDValueSize

	// EVTValueSize is the size of one EVT value field.
	EVTValueSize = 4

	// EVTTimestampSize is the size of one EVT utc_ms field.
	EVTTimestampSize = 8

	// EVTPairSize is the size of one (value, utc_ms) EVT record.
	EVTPairSize = EVTValueSize + EVTTimestampSize

	// EVTPairsPerSector is how many EVT pairs fit in one sector, with slack.
	EVTPairsPerSector = SectorSize / EVTPairSize
)

// Sector ID ranges. Pool IDs are [0, DiskBaseID); disk-backed IDs are
// [DiskBaseID, NullSectorID).
const (
	// DiskBaseID is the first SectorID value reserved for disk-backed sectors.
	DiskBaseID = 1 << 24

	// NullSectorID is the distinguished "no sector" handle.
	NullSectorID = 0xFFFFFFFF
)

// Disk spooler defaults.
const (
	// DefaultMigrateThreshold triggers spooling once used/total crosses this.
	DefaultMigrateThreshold = 0.80

	// DefaultStopThreshold stops spooling once used/total falls below this
	// (hysteresis band between stop and migrate prevents thrashing).
	DefaultStopThreshold = 0.70

	// DefaultTSDBatch is how many TSD sectors migrate per spooler pass.
	DefaultTSDBatch = 6

	// DefaultEVTBatch is how many EVT sectors migrate per spooler pass.
	DefaultEVTBatch = 3

	// DefaultIOErrorTrip is how many consecutive disk I/O errors push the
	// spooler into RAM-only mode.
	DefaultIOErrorTrip = 3
)

// Disk file format.
const (
	// FileMagic identifies a spool/emergency file.
	FileMagic uint32 = 0x54534446 // "TSDF"

	// FileVersion is the on-disk header format version.
	FileVersion uint32 = 2
)

// Power-abort defaults.
const (
	// DefaultPowerAbortDeadline bounds how long shutdown() spends flushing.
	DefaultPowerAbortDeadline = 60 * time.Second
)

// DefaultPoolSectors is the default fixed sector-pool size when callers
// don't override it in BufferParams.
const DefaultPoolSectors = 4096
