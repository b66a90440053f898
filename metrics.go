package tsbuffer

import (
	"sync/atomic"
	"time"
)

// Metrics tracks operational counters for one Buffer, mirroring the
// teacher's atomic-counter Metrics type: plain atomics, a Snapshot for
// point-in-time reads, and an Observer interface so callers can plug in
// their own collector (e.g. internal/telemetry's Prometheus exporter)
// instead of this one.
type Metrics struct {
	AllocOK     atomic.Uint64
	AllocFailed atomic.Uint64
	Frees       atomic.Uint64

	MigrationRuns   atomic.Uint64
	MigratedSectors atomic.Uint64
	MigratedBytes   atomic.Uint64
	MigrationErrors atomic.Uint64

	JournalReplays      atomic.Uint64
	JournalReplayErrors atomic.Uint64

	PowerAbortFlushed atomic.Uint64
	PowerAbortLost    atomic.Uint64

	StartTime atomic.Int64
}

// NewMetrics returns a freshly zeroed Metrics with its start time stamped.
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

func (m *Metrics) recordAlloc(ok bool) {
	if ok {
		m.AllocOK.Add(1)
	} else {
		m.AllocFailed.Add(1)
	}
}

func (m *Metrics) recordFree() {
	m.Frees.Add(1)
}

func (m *Metrics) recordMigration(sectors int, bytes int64, err error) {
	m.MigrationRuns.Add(1)
	if err != nil {
		m.MigrationErrors.Add(1)
		return
	}
	m.MigratedSectors.Add(uint64(sectors))
	m.MigratedBytes.Add(uint64(bytes))
}

func (m *Metrics) recordJournalReplay(entries int, err error) {
	m.JournalReplays.Add(uint64(entries))
	if err != nil {
		m.JournalReplayErrors.Add(1)
	}
}

func (m *Metrics) recordPowerAbort(flushed, lost int) {
	m.PowerAbortFlushed.Add(uint64(flushed))
	m.PowerAbortLost.Add(uint64(lost))
}

// MetricsSnapshot is a point-in-time copy of Metrics, safe to hand to a
// caller outside the atomic fields.
type MetricsSnapshot struct {
	AllocOK, AllocFailed, Frees                           uint64
	MigrationRuns, MigratedSectors, MigratedBytes          uint64
	MigrationErrors                                        uint64
	JournalReplays, JournalReplayErrors                    uint64
	PowerAbortFlushed, PowerAbortLost                      uint64
	UptimeNs                                               uint64
}

// Snapshot captures every counter at once.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		AllocOK:             m.AllocOK.Load(),
		AllocFailed:         m.AllocFailed.Load(),
		Frees:               m.Frees.Load(),
		MigrationRuns:       m.MigrationRuns.Load(),
		MigratedSectors:     m.MigratedSectors.Load(),
		MigratedBytes:       m.MigratedBytes.Load(),
		MigrationErrors:     m.MigrationErrors.Load(),
		JournalReplays:      m.JournalReplays.Load(),
		JournalReplayErrors: m.JournalReplayErrors.Load(),
		PowerAbortFlushed:   m.PowerAbortFlushed.Load(),
		PowerAbortLost:      m.PowerAbortLost.Load(),
		UptimeNs:            uint64(time.Now().UnixNano() - m.StartTime.Load()),
	}
}

// Observer receives optional telemetry hooks from the core (internal/ifaces
// defines the interface the lower packages see; this is the same shape,
// implemented here so a caller can pass *Metrics-backed observers straight
// into BufferParams without an adapter).
type Observer interface {
	ObserveAlloc(ok bool)
	ObserveFree()
	ObserveMigration(sectors int, bytes int64, err error)
	ObserveJournalReplay(entries int, err error)
	ObservePowerAbort(flushed int, lost int)
}

// NoOpObserver discards every hook.
type NoOpObserver struct{}

func (NoOpObserver) ObserveAlloc(bool)                        {}
func (NoOpObserver) ObserveFree()                             {}
func (NoOpObserver) ObserveMigration(int, int64, error)       {}
func (NoOpObserver) ObserveJournalReplay(int, error)          {}
func (NoOpObserver) ObservePowerAbort(int, int)               {}

// MetricsObserver routes every hook into a *Metrics.
type MetricsObserver struct {
	metrics *Metrics
}

// NewMetricsObserver returns an Observer that records into m.
func NewMetricsObserver(m *Metrics) *MetricsObserver {
	return &MetricsObserver{metrics: m}
}

func (o *MetricsObserver) ObserveAlloc(ok bool)  { o.metrics.recordAlloc(ok) }
func (o *MetricsObserver) ObserveFree()          { o.metrics.recordFree() }
func (o *MetricsObserver) ObserveMigration(sectors int, bytes int64, err error) {
	o.metrics.recordMigration(sectors, bytes, err)
}
func (o *MetricsObserver) ObserveJournalReplay(entries int, err error) {
	o.metrics.recordJournalReplay(entries, err)
}
func (o *MetricsObserver) ObservePowerAbort(flushed, lost int) {
	o.metrics.recordPowerAbort(flushed, lost)
}

var (
	_ Observer = (*MetricsObserver)(nil)
	_ Observer = NoOpObserver{}
)
