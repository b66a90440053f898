package journal

import (
	"github.com/telemetrygw/tsbuffer/internal/spool"
)

// Startup scans the journal at path and resolves every entry left pending
// by a crash (spec §4.G steps 1-5). Only a committed entry represents a
// durably applied operation — a pending migrate or emergency_flush whose
// process died before the journal commit is rolled back unconditionally,
// even if its target file happens to be fully valid on disk: the file
// alone isn't proof the operation (which also rewrites the in-RAM chain)
// completed, and that chain state is gone anyway once the process that
// held it has restarted. This matches spec §8 scenario 4: a migration
// killed after the file write but before the journal commit leaves the
// file an orphan, always deleted, source chain (already gone with the old
// process) simply never referenced it.
//
// After cleanup the journal is truncated; committed entries carry no
// ongoing meaning — the durable state they describe is recovered instead by
// walking spool files directly, via RecoverSensor.
func Startup(journalPath string, sp *spool.Spooler) ([]Entry, error) {
	entries, err := ScanEntries(journalPath)
	if err != nil {
		return nil, err
	}

	// The journal never rewrites a pending entry in place — Commit appends a
	// second line carrying the same op_id with State=committed. Build the
	// set of op_ids that reached that second line before deleting anything,
	// so a completed migration's pending-state line doesn't delete a file
	// its own later committed-state line already vouches for.
	committed := make(map[uint64]bool, len(entries))
	for _, e := range entries {
		if e.State == StateCommitted {
			committed[e.OpID] = true
		}
	}

	for _, e := range entries {
		if e.State == StateCommitted || committed[e.OpID] {
			continue
		}
		if e.FileName != "" {
			_ = sp.Delete(e.FileName)
		}
	}

	j, err := Open(journalPath)
	if err != nil {
		return entries, err
	}
	defer j.Close()
	if err := j.Truncate(); err != nil {
		return entries, err
	}
	return entries, nil
}
