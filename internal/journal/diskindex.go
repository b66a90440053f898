package journal

import (
	"sync"

	"github.com/telemetrygw/tsbuffer/internal/constants"
	"github.com/telemetrygw/tsbuffer/internal/sector"
)

// DiskEntry mirrors sector.Entry for a sector whose payload has been
// migrated out of RAM: same chain-metadata fields, plus the file location
// sector.FileRef carries on the pool-side stub.
type DiskEntry struct {
	InUse           bool
	Kind            sector.Kind
	OwningSensor    uint32
	OwningDestMask  uint32
	PendingDestMask uint32
	NextID          sector.ID
	File            string
	RecordOffset    uint32
}

// DiskIndex hands out disk-backed sector IDs (>= constants.DiskBaseID) and
// holds their metadata. internal/sector.Pool never sees these IDs; they
// only mean something to a caller holding this index alongside the pool.
type DiskIndex struct {
	mu      sync.Mutex
	entries map[sector.ID]DiskEntry
	next    uint32
}

// NewDiskIndex returns an empty index, IDs starting at constants.DiskBaseID.
func NewDiskIndex() *DiskIndex {
	return &DiskIndex{
		entries: make(map[sector.ID]DiskEntry),
		next:    constants.DiskBaseID,
	}
}

// IsDiskID reports whether id falls in the disk-backed range.
func IsDiskID(id sector.ID) bool {
	return uint32(id) >= constants.DiskBaseID && id != sector.Null
}

// Alloc reserves a fresh disk-backed ID for entry.
func (d *DiskIndex) Alloc(entry DiskEntry) sector.ID {
	d.mu.Lock()
	defer d.mu.Unlock()
	entry.InUse = true
	id := sector.ID(d.next)
	d.next++
	d.entries[id] = entry
	return id
}

// Get returns a copy of id's entry.
func (d *DiskIndex) Get(id sector.ID) (DiskEntry, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.entries[id]
	return e, ok
}

// MutateMeta applies fn to id's entry.
func (d *DiskIndex) MutateMeta(id sector.ID, fn func(*DiskEntry)) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.entries[id]
	if !ok {
		return false
	}
	fn(&e)
	d.entries[id] = e
	return true
}

// Free drops id's entry. Callers do this once a file is deleted (spec §4.F
// Cleanup) or once a migration's journal entry is rolled back as an orphan.
func (d *DiskIndex) Free(id sector.ID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.entries, id)
}

// EntriesForFile returns every disk ID currently backed by file, in no
// particular order — used when a file is deleted and its index entries must
// go with it.
func (d *DiskIndex) EntriesForFile(file string) []sector.ID {
	d.mu.Lock()
	defer d.mu.Unlock()
	var ids []sector.ID
	for id, e := range d.entries {
		if e.File == file {
			ids = append(ids, id)
		}
	}
	return ids
}
