// Package ifaces provides internal interface definitions shared between the
// root package and the component packages under internal/. They are kept
// separate from the root package's own types to avoid import cycles. Only
// Clock is in use: the root package's Clock is an alias for it. No package
// under internal/ imports this one.
package ifaces

// Clock is the time source the core consumes. It is read-only from the
// core's perspective; callers own the implementation (wall clock, NTP/GPS
// disciplined clock, or a test double).
type Clock interface {
	// NowUTCMs returns monotonic-for-practical-purposes UTC milliseconds.
	NowUTCMs() uint64
	// UTCEstablished reports whether the clock has synchronized with a
	// trusted source. On constrained platforms this gates IsReady().
	UTCEstablished() bool
}

// Logger is a leveled logging interface that internal/logging's Logger
// satisfies. No internal component depends on it: internal/spool logs
// through internal/logging directly.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// Observer lists the optional telemetry hooks. Implementations must be safe
// to call from any goroutine. The root package declares its own Observer
// with the same methods and does not use this one.
type Observer interface {
	ObserveAlloc(ok bool)
	ObserveFree()
	ObserveMigration(sectors int, bytes int64, err error)
	ObserveJournalReplay(entries int, err error)
	ObservePowerAbort(flushed int, lost int)
}

// FileStore describes the durable file operations the disk spooler and
// power-abort handler perform. Neither is written against it: both use the
// os package directly.
type FileStore interface {
	WriteAtomic(dir, name string, data []byte) error
	ReadFile(path string) ([]byte, error)
	Remove(path string) error
	Rename(oldPath, newPath string) error
	List(dir string) ([]string, error)
	MkdirAll(dir string) error
}
