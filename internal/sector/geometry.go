package sector

import "github.com/telemetrygw/tsbuffer/internal/constants"

// Capacity returns how many records of kind fit in one sector.
func Capacity(k Kind) uint32 {
	if k == KindEVT {
		return constants.EVTPairsPerSector
	}
	return constants.TSDValuesPerSector
}

// IsFull reports whether offset (a record count, not a byte count) has
// reached kind's per-sector capacity.
func IsFull(k Kind, offset uint32) bool {
	return offset >= Capacity(k)
}
