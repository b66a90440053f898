package tsbuffer

import (
	"errors"
	"fmt"

	"github.com/telemetrygw/tsbuffer/internal/model"
)

// ErrorCode is a high-level error category, matching spec §6's symbolic
// error kinds 1:1.
type ErrorCode string

const (
	CodeOutOfMemory      ErrorCode = "out of memory"
	CodeInvalidParameter ErrorCode = "invalid parameter"
	CodeInvalidEntry     ErrorCode = "invalid entry"
	CodeTimeout          ErrorCode = "timeout"
	CodeNoData           ErrorCode = "no data"
	CodeInitError        ErrorCode = "init error"
	CodeCorrupt          ErrorCode = "corrupt"
)

// Error is a structured buffer error carrying the operation, the sensor and
// destination it concerns, its category, and any wrapped cause — the same
// op/id/code/inner split the teacher's *Error uses for ublk device errors.
type Error struct {
	Op     string
	Sensor uint32
	Dest   model.Destination
	HasDest bool
	Code   ErrorCode
	Msg    string
	Inner  error
}

func (e *Error) Error() string {
	var parts []string
	if e.Op != "" {
		parts = append(parts, fmt.Sprintf("op=%s", e.Op))
	}
	if e.Sensor != 0 {
		parts = append(parts, fmt.Sprintf("sensor=%d", e.Sensor))
	}
	if e.HasDest {
		parts = append(parts, fmt.Sprintf("dest=%s", e.Dest))
	}

	msg := e.Msg
	if msg == "" {
		msg = string(e.Code)
	}
	if len(parts) > 0 {
		return fmt.Sprintf("tsbuffer: %s (%s)", msg, parts[0])
	}
	return fmt.Sprintf("tsbuffer: %s", msg)
}

// Unwrap supports errors.Is/errors.As against the wrapped cause.
func (e *Error) Unwrap() error {
	return e.Inner
}

// Is matches by error code, so callers can compare against a bare
// &Error{Code: CodeNoData} without reconstructing Op/Sensor/Dest.
func (e *Error) Is(target error) bool {
	te, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == te.Code
}

// NewError builds an *Error with just an operation and category.
func NewError(op string, code ErrorCode, msg string) *Error {
	return &Error{Op: op, Code: code, Msg: msg}
}

// NewSensorError builds an *Error scoped to one sensor.
func NewSensorError(op string, sensorID uint32, code ErrorCode, msg string) *Error {
	return &Error{Op: op, Sensor: sensorID, Code: code, Msg: msg}
}

// NewDestError builds an *Error scoped to one sensor and destination.
func NewDestError(op string, sensorID uint32, dest model.Destination, code ErrorCode, msg string) *Error {
	return &Error{Op: op, Sensor: sensorID, Dest: dest, HasDest: true, Code: code, Msg: msg}
}

// WrapError wraps inner with operation context, preserving its code if it is
// already a structured *Error.
func WrapError(op string, inner error) *Error {
	if inner == nil {
		return nil
	}
	var te *Error
	if errors.As(inner, &te) {
		return &Error{Op: op, Sensor: te.Sensor, Dest: te.Dest, HasDest: te.HasDest, Code: te.Code, Msg: te.Msg, Inner: te.Inner}
	}
	return &Error{Op: op, Code: CodeInvalidEntry, Msg: inner.Error(), Inner: inner}
}

// IsCode reports whether err is a *Error with the given code.
func IsCode(err error, code ErrorCode) bool {
	var te *Error
	if errors.As(err, &te) {
		return te.Code == code
	}
	return false
}

// Sentinel errors for the common no-mutation boundary conditions, usable
// directly with errors.Is.
var (
	ErrOutOfMemory      = &Error{Code: CodeOutOfMemory, Msg: "sector pool exhausted"}
	ErrInvalidParameter = &Error{Code: CodeInvalidParameter, Msg: "invalid parameter"}
	ErrInvalidEntry     = &Error{Code: CodeInvalidEntry, Msg: "invalid entry"}
	ErrTimeout          = &Error{Code: CodeTimeout, Msg: "clock not ready"}
	ErrNoData           = &Error{Code: CodeNoData, Msg: "no data available"}
	ErrInitError        = &Error{Code: CodeInitError, Msg: "initialization failed"}
	ErrCorrupt          = &Error{Code: CodeCorrupt, Msg: "chain corruption detected"}

	// ErrDraining is returned by write operations after PowerEvent until the
	// caller creates a fresh Buffer (spec §5 "writes during draining return
	// immediately").
	ErrDraining = &Error{Code: CodeInvalidParameter, Msg: "buffer is draining"}
)
