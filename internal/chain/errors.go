package chain

import "errors"

var (
	ErrCycle        = errors.New("chain: cycle detected")
	ErrDangling     = errors.New("chain: dangling sector reference")
	ErrWrongOwner   = errors.New("chain: sector owned by a different sensor")
	ErrChainTooLong = errors.New("chain: exceeds pool capacity")
	ErrCorrupt      = errors.New("chain: corrupt, repaired by truncation")
)
