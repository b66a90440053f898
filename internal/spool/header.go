package spool

import (
	"encoding/binary"
	"hash/crc32"

	"github.com/telemetrygw/tsbuffer/internal/constants"
)

// HeaderSize is the fixed on-disk header width preceding the packed sector
// payloads: magic, version, sensor_id, destination, sequence_no,
// record_count, kind, created_utc_ms, checksum_crc32, emergency, tail_fill.
const HeaderSize = 4 + 4 + 4 + 1 + 4 + 4 + 1 + 8 + 4 + 1 + 4

// Header is a disk file's fixed preamble (spec §3 "Disk file"). DestMask
// records which destinations were active/broadcasting when this file was
// written — informational provenance only, since the payload itself is one
// shared copy of the chain segment, not a per-destination duplicate.
//
// TailFill records how many values are actually occupied in the file's last
// record. Every record but the last is always a full sector — migration
// never takes the active tail, and a flush's earlier records are all
// already-complete sectors too. Only an emergency flush can leave its very
// last record partially written, since it copies the live tail exactly as
// the write cursor left it. Non-terminal files (and ordinary migrate files,
// whose last record is always full) simply carry the kind's full capacity.
type Header struct {
	Magic         uint32
	Version       uint32
	SensorID      uint32
	DestMask      uint8
	SequenceNo    uint32
	RecordCount   uint32
	Kind          uint8
	CreatedUTCMs  uint64
	ChecksumCRC32 uint32
	Emergency     bool
	TailFill      uint32
}

// EncodeHeader writes h into a HeaderSize-byte buffer. The checksum field is
// written as-is; callers compute it over the payload before calling this.
func EncodeHeader(h Header) []byte {
	buf := make([]byte, HeaderSize)
	off := 0
	binary.LittleEndian.PutUint32(buf[off:], h.Magic)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], h.Version)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], h.SensorID)
	off += 4
	buf[off] = h.DestMask
	off++
	binary.LittleEndian.PutUint32(buf[off:], h.SequenceNo)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], h.RecordCount)
	off += 4
	buf[off] = h.Kind
	off++
	binary.LittleEndian.PutUint64(buf[off:], h.CreatedUTCMs)
	off += 8
	binary.LittleEndian.PutUint32(buf[off:], h.ChecksumCRC32)
	off += 4
	if h.Emergency {
		buf[off] = 1
	}
	off++
	binary.LittleEndian.PutUint32(buf[off:], h.TailFill)
	return buf
}

// DecodeHeader parses a HeaderSize-byte buffer.
func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, ErrShortHeader
	}
	var h Header
	off := 0
	h.Magic = binary.LittleEndian.Uint32(buf[off:])
	off += 4
	h.Version = binary.LittleEndian.Uint32(buf[off:])
	off += 4
	h.SensorID = binary.LittleEndian.Uint32(buf[off:])
	off += 4
	h.DestMask = buf[off]
	off++
	h.SequenceNo = binary.LittleEndian.Uint32(buf[off:])
	off += 4
	h.RecordCount = binary.LittleEndian.Uint32(buf[off:])
	off += 4
	h.Kind = buf[off]
	off++
	h.CreatedUTCMs = binary.LittleEndian.Uint64(buf[off:])
	off += 8
	h.ChecksumCRC32 = binary.LittleEndian.Uint32(buf[off:])
	off += 4
	h.Emergency = buf[off] != 0
	off++
	h.TailFill = binary.LittleEndian.Uint32(buf[off:])
	return h, nil
}

// ChecksumPayload computes the CRC-32 the header carries, over the packed
// sector payload range only (never the header itself).
func ChecksumPayload(payload []byte) uint32 {
	return crc32.ChecksumIEEE(payload)
}

// DefaultHeader starts a Header stamped with the current file format magic
// and version (spec §3/§6).
func DefaultHeader(sensorID uint32, destMask uint8, seq uint32, kind uint8, createdUTCMs uint64) Header {
	return Header{
		Magic:        constants.FileMagic,
		Version:      constants.FileVersion,
		SensorID:     sensorID,
		DestMask:     destMask,
		SequenceNo:   seq,
		Kind:         kind,
		CreatedUTCMs: createdUTCMs,
	}
}
