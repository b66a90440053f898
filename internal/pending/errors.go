package pending

import "errors"

var (
	// ErrInvalidParameter is returned when commit is asked to acknowledge
	// more records than the destination's pending window currently holds.
	ErrInvalidParameter = errors.New("pending: commit count exceeds pending window")

	// ErrCorrupt surfaces a dangling or wrong-kind sector reached while
	// walking a cursor or pending window — it should only occur alongside
	// chain corruption already caught by internal/chain.Validate.
	ErrCorrupt = errors.New("pending: corrupt cursor or pending window")
)
