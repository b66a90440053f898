package tsbuffer

import (
	"time"

	"github.com/telemetrygw/tsbuffer/internal/ifaces"
)

// Clock is the time source the buffer consumes (spec §6 "Time source
// interface"). Callers own the implementation — wall clock, NTP/GPS
// disciplined clock, or a test double — the core never reads the system
// clock directly except through SystemClock below.
type Clock = ifaces.Clock

// SystemClock is the default Clock, backed by the OS wall clock. It always
// reports UTC as established; callers on a platform where UTC isn't trusted
// until synchronized should supply their own Clock instead.
type SystemClock struct{}

// NowUTCMs returns the current wall-clock time in UTC milliseconds.
func (SystemClock) NowUTCMs() uint64 {
	return uint64(time.Now().UnixMilli())
}

// UTCEstablished always reports true for the system clock.
func (SystemClock) UTCEstablished() bool {
	return true
}

var _ Clock = SystemClock{}
