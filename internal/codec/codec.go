// Package codec implements the TSD/EVT in-sector layouts (spec component D):
// packing writes into sector payloads, decoding records back out, and
// reconstructing each TSD sample's timestamp from its sector's header.
// Binary fields are little-endian, matching the on-disk file format in
// spec §3/§6 — encoding/binary field-by-field, the same style the teacher's
// internal/uapi/marshal.go uses for its wire structs.
package codec

import (
	"encoding/binary"

	"github.com/telemetrygw/tsbuffer/internal/constants"
)

// InitTSDHeader stamps a freshly allocated TSD sector with its first
// sample's timestamp.
func InitTSDHeader(payload []byte, firstSampleUTCMs uint64) {
	binary.LittleEndian.PutUint64(payload[0:constants.TSDHeaderSize], firstSampleUTCMs)
}

// TSDFirstUTC reads back a TSD sector's header timestamp.
func TSDFirstUTC(payload []byte) uint64 {
	return binary.LittleEndian.Uint64(payload[0:constants.TSDHeaderSize])
}

// AppendTSDValue writes value at record index offset (0-based, post-header).
func AppendTSDValue(payload []byte, offset uint32, value uint32) {
	start := constants.TSDHeaderSize + int(offset)*constants.TSDValueSize
	binary.LittleEndian.PutUint32(payload[start:start+constants.TSDValueSize], value)
}

// DecodeTSDValue reads back the value at record index offset.
func DecodeTSDValue(payload []byte, offset uint32) uint32 {
	start := constants.TSDHeaderSize + int(offset)*constants.TSDValueSize
	return binary.LittleEndian.Uint32(payload[start : start+constants.TSDValueSize])
}

// TSDSampleTimestamp reconstructs sample index's UTC timestamp from its
// sector's first_sample_utc_ms and the sensor's fixed sampling period.
func TSDSampleTimestamp(firstSampleUTCMs uint64, index uint32, periodMs uint32) uint64 {
	return firstSampleUTCMs + uint64(index)*uint64(periodMs)
}

// AppendEVTPair writes an EVT (value, utc_ms) record at index offset. The
// sector's trailing slack bytes are never interpreted by this layout.
func AppendEVTPair(payload []byte, offset uint32, value uint32, utcMs uint64) {
	start := int(offset) * constants.EVTPairSize
	binary.LittleEndian.PutUint32(payload[start:start+constants.EVTValueSize], value)
	tsStart := start + constants.EVTValueSize
	binary.LittleEndian.PutUint64(payload[tsStart:tsStart+constants.EVTTimestampSize], utcMs)
}

// DecodeEVTPair reads back the (value, utc_ms) record at index offset.
func DecodeEVTPair(payload []byte, offset uint32) (value uint32, utcMs uint64) {
	start := int(offset) * constants.EVTPairSize
	value = binary.LittleEndian.Uint32(payload[start : start+constants.EVTValueSize])
	tsStart := start + constants.EVTValueSize
	utcMs = binary.LittleEndian.Uint64(payload[tsStart : tsStart+constants.EVTTimestampSize])
	return value, utcMs
}
