package spool

import "errors"

var (
	ErrShortHeader   = errors.New("spool: file shorter than header")
	ErrChecksum      = errors.New("spool: payload checksum mismatch")
	ErrRAMOnly       = errors.New("spool: disk subsystem degraded to RAM-only")
	ErrRecordOOB     = errors.New("spool: record offset out of bounds")
	ErrFileNotFound  = errors.New("spool: file not found")
)
