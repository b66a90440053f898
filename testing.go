package tsbuffer

import "sync/atomic"

// FakeClock is a Clock test double whose wall time only advances when the
// test tells it to, playing the same role the teacher's MockBackend played
// for backend.Device — a drop-in wired into BufferParams in place of
// SystemClock so timestamp-sensitive assertions never race real time.
type FakeClock struct {
	nowMs       atomic.Int64
	established atomic.Bool
}

// NewFakeClock returns a FakeClock starting at startMs with UTC already
// established.
func NewFakeClock(startMs uint64) *FakeClock {
	c := &FakeClock{}
	c.nowMs.Store(int64(startMs))
	c.established.Store(true)
	return c
}

func (c *FakeClock) NowUTCMs() uint64 {
	return uint64(c.nowMs.Load())
}

func (c *FakeClock) UTCEstablished() bool {
	return c.established.Load()
}

// Advance moves the clock forward by deltaMs.
func (c *FakeClock) Advance(deltaMs uint64) {
	c.nowMs.Add(int64(deltaMs))
}

// Set pins the clock to an exact value.
func (c *FakeClock) Set(nowMs uint64) {
	c.nowMs.Store(int64(nowMs))
}

// SetEstablished toggles whether the clock reports UTC as trustworthy,
// exercising the IsReady gate a platform without a synchronized clock yet
// would trip at boot.
func (c *FakeClock) SetEstablished(v bool) {
	c.established.Store(v)
}

var _ Clock = (*FakeClock)(nil)

// NewTestSensor returns a TSD (uniformly sampled) sensor handle, a
// convenience for tests that don't care about any other field.
func NewTestSensor(id uint32, samplePeriodMs uint32) Sensor {
	return Sensor{ID: id, SamplePeriodMs: samplePeriodMs}
}

// NewTestEVTSensor returns an EVT (irregularly sampled) sensor handle.
func NewTestEVTSensor(id uint32) Sensor {
	return Sensor{ID: id, SamplePeriodMs: 0}
}
