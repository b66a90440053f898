// Package telemetry provides an opt-in Prometheus Observer for tsbuffer,
// grounded on the global-counter registration style of etalazz-vsa's churn
// package: a handful of collectors, registered here on a registry owned by
// each Exporter, exposed through an Observer implementation so a caller can wire it into
// BufferParams in place of the default Metrics-backed observer.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Exporter is a Prometheus-backed implementation of tsbuffer.Observer. It
// carries its own prometheus.Registry so multiple Buffers (or tests) in one
// process never collide on global collector registration the way a package
// init() singleton would.
type Exporter struct {
	registry *prometheus.Registry

	allocOK     prometheus.Counter
	allocFailed prometheus.Counter
	frees       prometheus.Counter

	migrationRuns   prometheus.Counter
	migratedSectors prometheus.Counter
	migratedBytes   prometheus.Counter
	migrationErrors prometheus.Counter
	migrationBatch  prometheus.Histogram

	journalReplays      prometheus.Counter
	journalReplayErrors prometheus.Counter

	powerAbortFlushed prometheus.Counter
	powerAbortLost    prometheus.Counter
}

// New builds an Exporter with its own registry and registers every
// collector against it.
func New() *Exporter {
	e := &Exporter{
		registry: prometheus.NewRegistry(),

		allocOK: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tsbuffer_sector_alloc_ok_total",
			Help: "Write calls that succeeded, whether or not they allocated a new sector.",
		}),
		allocFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tsbuffer_sector_alloc_failed_total",
			Help: "Write calls that failed after passing the readiness check.",
		}),
		frees: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tsbuffer_sector_frees_total",
			Help: "Commit calls that succeeded; one commit may release zero or more sectors.",
		}),
		migrationRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tsbuffer_migration_runs_total",
			Help: "Migration passes attempted, successful or not.",
		}),
		migratedSectors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tsbuffer_migrated_sectors_total",
			Help: "Sectors moved from RAM to disk across every migration pass.",
		}),
		migratedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tsbuffer_migrated_bytes_total",
			Help: "Bytes moved from RAM to disk across every migration pass.",
		}),
		migrationErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tsbuffer_migration_errors_total",
			Help: "Migration passes that returned an error.",
		}),
		migrationBatch: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tsbuffer_migration_batch_sectors",
			Help:    "Distribution of sector counts moved per migration pass.",
			Buckets: []float64{1, 2, 4, 8, 16, 32, 64, 128, 256},
		}),
		journalReplays: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tsbuffer_journal_replay_entries_total",
			Help: "Journal entries scanned during startup replay.",
		}),
		journalReplayErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tsbuffer_journal_replay_errors_total",
			Help: "Startup replay attempts that failed.",
		}),
		powerAbortFlushed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tsbuffer_power_abort_flushed_sectors_total",
			Help: "Sectors durably written by a power-abort emergency flush.",
		}),
		powerAbortLost: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tsbuffer_power_abort_lost_sectors_total",
			Help: "Sectors a power-abort flush ran out of deadline before persisting.",
		}),
	}

	e.registry.MustRegister(
		e.allocOK, e.allocFailed, e.frees,
		e.migrationRuns, e.migratedSectors, e.migratedBytes, e.migrationErrors, e.migrationBatch,
		e.journalReplays, e.journalReplayErrors,
		e.powerAbortFlushed, e.powerAbortLost,
	)
	return e
}

// Handler returns an http.Handler serving this Exporter's registry in the
// Prometheus text exposition format, for mounting at /metrics.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}

// Serve starts a dedicated HTTP server exposing /metrics on addr, the same
// "tiny standalone server if you don't already run one" convenience the
// churn package offers via its MetricsAddr config field.
func (e *Exporter) Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", e.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		_ = srv.ListenAndServe()
	}()
	return srv
}

func (e *Exporter) ObserveAlloc(ok bool) {
	if ok {
		e.allocOK.Inc()
	} else {
		e.allocFailed.Inc()
	}
}

func (e *Exporter) ObserveFree() {
	e.frees.Inc()
}

func (e *Exporter) ObserveMigration(sectors int, bytes int64, err error) {
	e.migrationRuns.Inc()
	if err != nil {
		e.migrationErrors.Inc()
		return
	}
	e.migratedSectors.Add(float64(sectors))
	e.migratedBytes.Add(float64(bytes))
	e.migrationBatch.Observe(float64(sectors))
}

func (e *Exporter) ObserveJournalReplay(entries int, err error) {
	e.journalReplays.Add(float64(entries))
	if err != nil {
		e.journalReplayErrors.Inc()
	}
}

func (e *Exporter) ObservePowerAbort(flushed, lost int) {
	e.powerAbortFlushed.Add(float64(flushed))
	e.powerAbortLost.Add(float64(lost))
}
