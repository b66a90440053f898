package codec

import "errors"

var (
	// ErrNoData is returned when a read request finds the cursor already
	// caught up with the tail (spec §4.D, "not an error" at the API level —
	// the root package translates this into CodeNoData rather than failing).
	ErrNoData = errors.New("codec: no data available")

	// ErrCorruptLayout is returned when a record index falls outside the
	// legal band for its sector's kind, or when the sector being read
	// cannot be looked up or has an unknown kind.
	ErrCorruptLayout = errors.New("codec: invalid record layout")
)
