package sector

import "errors"

// Sentinel errors surfaced by the pool; the root package translates these
// into tsbuffer.Error values at the API boundary.
var (
	ErrOutOfMemory  = errors.New("sector: pool exhausted")
	ErrInvalidEntry = errors.New("sector: invalid or free entry")
)
