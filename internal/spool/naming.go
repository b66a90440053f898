package spool

import "fmt"

// ParseFileName recovers the fields FileName encoded, used by recovery scans
// that walk a directory instead of remembering every name they wrote.
func ParseFileName(name string) (sensorID uint32, seq uint32, emergency bool, ok bool) {
	var ext string
	n, err := fmt.Sscanf(name, "sensor_%d_seq_%d.%s", &sensorID, &seq, &ext)
	if err != nil || n != 3 {
		return 0, 0, false, false
	}
	switch ext {
	case "dat":
		return sensorID, seq, false, true
	case "emergency":
		return sensorID, seq, true, true
	default:
		return 0, 0, false, false
	}
}

// FileName builds a migrated/emergency file's name. A migrated file holds
// one sensor's chain segment, broadcast to every destination that was
// active when it was written (spec §3's writes are never per-destination
// copies) — so identity is sensor_id+seq, not a single destination. Two
// logical sources that happen to share a numeric sensor_id (e.g. a gateway
// sensor and a BLE sensor both named "5") are disambiguated by the caller
// using separate disk roots per source, per spec §9's stateless-core design
// (the core never enumerates sensors across sources itself).
func FileName(sensorID uint32, seq uint32, emergency bool) string {
	ext := "dat"
	if emergency {
		ext = "emergency"
	}
	return fmt.Sprintf("sensor_%d_seq_%d.%s", sensorID, seq, ext)
}
