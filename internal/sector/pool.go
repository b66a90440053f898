// Package sector implements the fixed-count RAM sector pool and its
// parallel chain-metadata table (spec component B).
//
// Sectors carry payload only; the pool never embeds a next-pointer inside a
// sector's bytes. Chain metadata — in_use, kind, owner, next link, pending
// mask, disk backing — lives in a table parallel to the payload slice, sized
// by pool capacity rather than by sensor count. This keeps the payload
// section at full density (see internal/codec) and lets every codec share
// one allocator.
package sector

import (
	"sync"
	"sync/atomic"

	"github.com/telemetrygw/tsbuffer/internal/constants"
)

// ID is an opaque sector handle. IDs below constants.DiskBaseID address
// sectors in this pool ("pool IDs"); IDs at or above it are disk-backed and
// are never looked up here — see internal/journal's DiskIndex.
type ID uint32

// Null is the distinguished "no sector" handle.
const Null ID = constants.NullSectorID

// Kind distinguishes the two payload layouts sharing this pool's geometry.
type Kind uint8

const (
	KindTSD Kind = iota
	KindEVT
)

func (k Kind) String() string {
	if k == KindEVT {
		return "EVT"
	}
	return "TSD"
}

// FileRef locates a sector's payload inside a disk-backed file once it has
// been migrated out of RAM (internal/spool owns the file itself).
type FileRef struct {
	File         string
	RecordOffset uint32
}

// Entry is one chain-metadata row, held in the table parallel to the pool's
// payload slice. Invariant: InUse is true iff the entry is allocated to
// exactly one chain; entries on the free list have InUse false.
type Entry struct {
	InUse           bool
	Kind            Kind
	OwningSensor    uint32
	OwningDestMask  uint32
	NextID          ID
	PendingDestMask uint32
	OnDisk          bool
	FileRef         *FileRef
}

// Stats is a point-in-time snapshot of pool occupancy.
type Stats struct {
	TotalSectors   int
	FreeSectors    int
	TSDInUse       int
	EVTInUse       int
	AllocFailures  uint64
	EfficiencyPct  float64
}

// Pool is the fixed-count sector allocator. All sectors share one size
// (constants.SectorSize). A single pool-wide mutex serializes every chain
// mutation, matching the richer-platform concurrency model in spec §5.
type Pool struct {
	mu      sync.Mutex
	payload [][]byte
	meta    []Entry
	free    []ID // first-fit free list; popped from the tail

	allocFailures atomic.Uint64
}

// NewPool allocates a pool of n fixed-size sectors, all initially free.
func NewPool(n int) *Pool {
	p := &Pool{
		payload: make([][]byte, n),
		meta:    make([]Entry, n),
		free:    make([]ID, 0, n),
	}
	for i := n - 1; i >= 0; i-- {
		p.payload[i] = make([]byte, constants.SectorSize)
		p.free = append(p.free, ID(i))
	}
	return p
}

// Alloc reserves a free sector for sensorID, initializing it with kind and
// an owning-destination mask (the set of destinations that must see the
// sector before it can be freed). Returns ErrOutOfMemory if the pool is
// exhausted.
func (p *Pool) Alloc(sensorID uint32, destMask uint32, kind Kind) (ID, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.free) == 0 {
		p.allocFailures.Add(1)
		return Null, ErrOutOfMemory
	}

	id := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]

	p.meta[id] = Entry{
		InUse:           true,
		Kind:            kind,
		OwningSensor:    sensorID,
		OwningDestMask:  destMask,
		NextID:          Null,
		PendingDestMask: destMask,
	}
	for i := range p.payload[id] {
		p.payload[id][i] = 0
	}
	return id, nil
}

// Free releases id back to the pool. It is a no-op if id is already free;
// callers are expected to have already unlinked it from any chain.
func (p *Pool) Free(id ID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.freeLocked(id)
}

func (p *Pool) freeLocked(id ID) {
	if int(id) >= len(p.meta) || !p.meta[id].InUse {
		return
	}
	p.meta[id] = Entry{}
	p.free = append(p.free, id)
}

// Payload returns the byte slice backing id. The returned slice aliases the
// pool's storage and must only be used while holding no assumption of
// concurrent safety beyond single-writer-per-sensor discipline (callers
// serialize writes to a given sensor's tail sector themselves).
func (p *Pool) Payload(id ID) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if int(id) >= len(p.payload) || !p.meta[id].InUse {
		return nil, ErrInvalidEntry
	}
	return p.payload[id], nil
}

// Meta returns a copy of id's chain-metadata entry.
func (p *Pool) Meta(id ID) (Entry, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if int(id) >= len(p.meta) || !p.meta[id].InUse {
		return Entry{}, ErrInvalidEntry
	}
	return p.meta[id], nil
}

// MutateMeta applies fn to id's entry under the pool lock. fn must not
// retain the pointer past the call.
func (p *Pool) MutateMeta(id ID, fn func(*Entry)) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if int(id) >= len(p.meta) || !p.meta[id].InUse {
		return ErrInvalidEntry
	}
	fn(&p.meta[id])
	return nil
}

// Stats returns a snapshot of pool occupancy and allocation failures.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := Stats{
		TotalSectors: len(p.meta),
		FreeSectors:  len(p.free),
	}
	for i := range p.meta {
		if !p.meta[i].InUse {
			continue
		}
		if p.meta[i].Kind == KindTSD {
			s.TSDInUse++
		} else {
			s.EVTInUse++
		}
	}
	s.AllocFailures = p.allocFailures.Load()
	if s.TotalSectors > 0 {
		used := s.TotalSectors - s.FreeSectors
		s.EfficiencyPct = float64(used) / float64(s.TotalSectors) * 100
	}
	return s
}

// Len reports the pool's fixed sector count.
func (p *Pool) Len() int {
	return len(p.meta)
}
