// Package spool implements the disk spooler (spec component F): atomic file
// writes for migrated sector payloads, an open-file cache for the read path,
// and RAM-only degradation after repeated I/O errors. It holds no knowledge
// of chains or sensors — internal/journal drives migration selection and
// chain rewriting, calling down into this package only to persist and read
// bytes.
//
// The open-file cache is sharded by a hash of the file name, the same
// parallelism trade-off the backend's in-memory store makes by sharding on
// byte offset: a handful of locks instead of one, so concurrent reads across
// different files don't serialize on a single mutex.
package spool

import (
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"github.com/telemetrygw/tsbuffer/internal/logging"
)

const cacheShards = 16

type fileShard struct {
	mu    sync.RWMutex
	files map[string]*os.File
}

// Spooler owns the on-disk root directory for one buffer's spool files,
// shared by every destination.
type Spooler struct {
	root string

	shards [cacheShards]*fileShard

	consecutiveErrors atomic.Int32
	ramOnly           atomic.Bool
	ioErrorTrip       int32

	bytesWritten atomic.Uint64
	filesWritten atomic.Uint64
	filesDeleted atomic.Uint64
}

// New creates a Spooler rooted at dir, which must already exist or be
// creatable. ioErrorTrip is the number of consecutive I/O errors (spec §4.F
// default: constants.DefaultIOErrorTrip) that flips the spooler into
// RAM-only mode.
func New(dir string, ioErrorTrip int) (*Spooler, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	s := &Spooler{root: dir, ioErrorTrip: int32(ioErrorTrip)}
	for i := range s.shards {
		s.shards[i] = &fileShard{files: make(map[string]*os.File)}
	}
	return s, nil
}

func shardFor(name string) int {
	var h uint32 = 2166136261
	for i := 0; i < len(name); i++ {
		h ^= uint32(name[i])
		h *= 16777619
	}
	return int(h % cacheShards)
}

// DiskHealthy reports whether the spooler is in its normal (non-RAM-only)
// mode.
func (s *Spooler) DiskHealthy() bool {
	return !s.ramOnly.Load()
}

// Probe attempts a trivial filesystem operation against root; on success it
// clears RAM-only mode and the consecutive-error counter (spec §4.F: "future
// migrations return immediately until a health probe succeeds").
func (s *Spooler) Probe() bool {
	if _, err := os.Stat(s.root); err != nil {
		s.recordError()
		return false
	}
	s.consecutiveErrors.Store(0)
	s.ramOnly.Store(false)
	return true
}

func (s *Spooler) recordError() {
	n := s.consecutiveErrors.Add(1)
	if n >= s.ioErrorTrip {
		if !s.ramOnly.Swap(true) {
			logging.Warnf("spool: %d consecutive I/O errors, entering RAM-only mode", n)
		}
	}
}

func (s *Spooler) recordSuccess() {
	s.consecutiveErrors.Store(0)
}

// WriteFile persists header+payloads as name using the atomic create
// pattern: write to a temp file, fsync it, rename over the final name, then
// fsync the containing directory so the rename itself survives a crash.
func (s *Spooler) WriteFile(name string, header Header, payloads [][]byte) error {
	if s.ramOnly.Load() {
		return ErrRAMOnly
	}

	final := filepath.Join(s.root, name)
	tmp := final + ".tmp"

	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		s.recordError()
		return err
	}

	if _, err := f.Write(EncodeHeader(header)); err != nil {
		f.Close()
		os.Remove(tmp)
		s.recordError()
		return err
	}
	for _, p := range payloads {
		if _, err := f.Write(p); err != nil {
			f.Close()
			os.Remove(tmp)
			s.recordError()
			return err
		}
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		s.recordError()
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		s.recordError()
		return err
	}
	if err := os.Rename(tmp, final); err != nil {
		s.recordError()
		return err
	}
	if err := fsyncDir(s.root); err != nil {
		// The file itself is durable; a missed directory fsync only risks
		// the rename being invisible after a crash, which journal replay
		// treats as an orphan and cleans up.
		logging.Warnf("spool: directory fsync failed for %s: %v", s.root, err)
	}

	var total int
	for _, p := range payloads {
		total += len(p)
	}
	s.bytesWritten.Add(uint64(total))
	s.filesWritten.Add(1)
	s.recordSuccess()
	return nil
}

func fsyncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return unix.Fsync(int(d.Fd()))
}

// ReadHeader reads and decodes just the header of name.
func (s *Spooler) ReadHeader(name string) (Header, error) {
	f, err := s.open(name)
	if err != nil {
		return Header{}, err
	}
	buf := make([]byte, HeaderSize)
	if _, err := f.ReadAt(buf, 0); err != nil {
		s.recordError()
		return Header{}, err
	}
	return DecodeHeader(buf)
}

// ReadRecord returns the recordSize-byte payload at record index idx within
// name through the cached open handle. It does not check the payload
// checksum; Verify does.
func (s *Spooler) ReadRecord(name string, idx uint32, recordSize int) ([]byte, error) {
	f, err := s.open(name)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, recordSize)
	off := int64(HeaderSize) + int64(idx)*int64(recordSize)
	n, err := f.ReadAt(buf, off)
	if err != nil && n != recordSize {
		s.recordError()
		return nil, err
	}
	s.recordSuccess()
	return buf, nil
}

// Verify re-reads name's full payload range and compares it against the
// checksum recorded in its own header — used by RecoverSensor to skip a
// file whose payload no longer matches.
func (s *Spooler) Verify(name string) (Header, bool, error) {
	full, err := os.ReadFile(filepath.Join(s.root, name))
	if err != nil {
		return Header{}, false, err
	}
	if len(full) < HeaderSize {
		return Header{}, false, ErrShortHeader
	}
	h, err := DecodeHeader(full[:HeaderSize])
	if err != nil {
		return Header{}, false, err
	}
	got := ChecksumPayload(full[HeaderSize:])
	return h, got == h.ChecksumCRC32, nil
}

func (s *Spooler) open(name string) (*os.File, error) {
	shard := s.shards[shardFor(name)]

	shard.mu.RLock()
	f, ok := shard.files[name]
	shard.mu.RUnlock()
	if ok {
		return f, nil
	}

	shard.mu.Lock()
	defer shard.mu.Unlock()
	if f, ok := shard.files[name]; ok {
		return f, nil
	}
	f, err := os.Open(filepath.Join(s.root, name))
	if err != nil {
		s.recordError()
		return nil, err
	}
	shard.files[name] = f
	return f, nil
}

// Delete removes name from disk and the open-file cache, used once every
// destination that ever owned a file has committed every record in it
// (spec §4.F "Cleanup").
func (s *Spooler) Delete(name string) error {
	shard := s.shards[shardFor(name)]
	shard.mu.Lock()
	if f, ok := shard.files[name]; ok {
		f.Close()
		delete(shard.files, name)
	}
	shard.mu.Unlock()

	if err := os.Remove(filepath.Join(s.root, name)); err != nil && !os.IsNotExist(err) {
		s.recordError()
		return err
	}
	s.filesDeleted.Add(1)
	return nil
}

// List returns the name of every spool data or emergency file currently in
// root, for journal rehydration; other files there (such as the journal
// itself) are left out.
func (s *Spooler) List() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) == ".tmp" {
			continue
		}
		if _, _, _, ok := ParseFileName(e.Name()); !ok {
			continue
		}
		names = append(names, e.Name())
	}
	return names, nil
}

// Stats is a point-in-time snapshot of spooler activity.
type Stats struct {
	RAMOnly      bool
	BytesWritten uint64
	FilesWritten uint64
	FilesDeleted uint64
}

func (s *Spooler) Stats() Stats {
	return Stats{
		RAMOnly:      s.ramOnly.Load(),
		BytesWritten: s.bytesWritten.Load(),
		FilesWritten: s.filesWritten.Load(),
		FilesDeleted: s.filesDeleted.Load(),
	}
}

// Close releases every cached file handle.
func (s *Spooler) Close() error {
	var first error
	for _, shard := range s.shards {
		shard.mu.Lock()
		for name, f := range shard.files {
			if err := f.Close(); err != nil && first == nil {
				first = err
			}
			delete(shard.files, name)
		}
		shard.mu.Unlock()
	}
	return first
}
