// Package journal implements the intent log and recovery scan (spec
// component G), plus the migration operation that produces journal entries
// and rewrites chains to reference disk-backed sectors (internal/power's
// emergency flush journals through this package too). It sits above internal/spool (which only knows how to persist
// and read bytes) and internal/chain/internal/pending (which only know
// RAM-resident chains).
package journal

import (
	"bufio"
	"encoding/json"
	"os"
	"sync"
	"sync/atomic"

	"github.com/telemetrygw/tsbuffer/internal/sector"
)

// OpKind is the kind of operation a journal entry records.
type OpKind string

const (
	OpMigrate         OpKind = "migrate"
	OpErase           OpKind = "erase"
	OpRename          OpKind = "rename"
	OpEmergencyFlush  OpKind = "emergency_flush"
)

// State is where an entry sits in its own two-phase lifecycle.
type State string

const (
	StatePending   State = "pending"
	StateCommitted State = "committed"
)

// Entry is one journal record (spec §3 "Journal entry"). Kept as plain
// exported fields and marshaled with encoding/json: the journal is a small,
// human-inspectable append log, not a hot data path, so stdlib JSON costs
// nothing that matters here and needs no schema migration tooling the way
// the sector wire format does.
type Entry struct {
	OpID         uint64      `json:"op_id"`
	Kind         OpKind      `json:"op_kind"`
	SensorID     uint32      `json:"sensor"`
	DestMask     uint32      `json:"dest_mask"`
	BeforeTailID sector.ID   `json:"before_tail_id"`
	AfterTailID  sector.ID   `json:"after_tail_id"`
	FileName     string      `json:"file_name,omitempty"`
	SectorList   []sector.ID `json:"sector_list,omitempty"`
	State        State       `json:"state"`
}

// Journal is an append-only intent log backed by one file.
type Journal struct {
	mu     sync.Mutex
	path   string
	f      *os.File
	nextOp atomic.Uint64
}

// Open opens (creating if necessary) the journal file at path for
// appending.
func Open(path string) (*Journal, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}
	return &Journal{path: path, f: f}, nil
}

// ScanEntries reads every entry currently in the journal at path, in
// append order. It does not require an open Journal handle, so startup
// recovery can call it before (or instead of) opening one for writing.
func ScanEntries(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			return entries, err
		}
		entries = append(entries, e)
	}
	return entries, scanner.Err()
}

func (j *Journal) append(e Entry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	buf, err := json.Marshal(e)
	if err != nil {
		return err
	}
	buf = append(buf, '\n')
	if _, err := j.f.Write(buf); err != nil {
		return err
	}
	return j.f.Sync()
}

// AppendPending writes a new pending entry and returns its op_id.
func (j *Journal) AppendPending(kind OpKind, sensorID uint32, destMask uint32, before, after sector.ID, fileName string, sectorList []sector.ID) (uint64, error) {
	opID := j.nextOp.Add(1)
	e := Entry{
		OpID:         opID,
		Kind:         kind,
		SensorID:     sensorID,
		DestMask:     destMask,
		BeforeTailID: before,
		AfterTailID:  after,
		FileName:     fileName,
		SectorList:   sectorList,
		State:        StatePending,
	}
	return opID, j.append(e)
}

// Commit appends a committed record for an operation previously logged as
// pending. The log is append-only — replay takes the last entry seen for a
// given op_id as authoritative.
func (j *Journal) Commit(pending Entry) error {
	pending.State = StateCommitted
	return j.append(pending)
}

// Truncate empties the journal file once every entry in it has been
// replayed (spec §4.G step 5).
func (j *Journal) Truncate() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.f.Truncate(0); err != nil {
		return err
	}
	_, err := j.f.Seek(0, 0)
	return err
}

// Close releases the journal file handle.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.f.Close()
}
