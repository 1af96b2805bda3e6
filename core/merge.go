package core

import (
	"fmt"
	"log"
	"os"
)

// Merge runs a synchronous compaction: it rewrites every sealed segment's
// live records into fresh segments, drops everything else (tombstones,
// superseded versions, abandoned batch records), and deletes the old
// segment files. It returns ErrMergeInProgress if a merge (explicit or
// background) is already running, and ErrMergeRatioUnreached if the
// reclaimable-byte fraction across sealed segments hasn't crossed
// Options.DataFileMergeRatio.
func (db *DB) Merge() error {
	select {
	case db.mergeSem <- struct{}{}:
	default:
		return ErrMergeInProgress
	}
	defer func() { <-db.mergeSem }()

	return db.runMerge(true)
}

// maybeTriggerMerge is called after every committed write, with db.mu
// already held by the caller. It starts a background merge once the
// sealed-segment count crosses MergeSegmentThreshold, skipping silently if
// one is already running.
func (db *DB) maybeTriggerMerge() {
	if !db.opts.MergeEnabled {
		return
	}
	if len(db.sealedID) < db.opts.MergeSegmentThreshold {
		return
	}

	select {
	case db.mergeSem <- struct{}{}:
		go func() {
			defer func() { <-db.mergeSem }()
			if err := db.runMerge(true); err != nil && err != ErrMergeRatioUnreached {
				log.Printf("bitcask: background merge failed: %v", err)
			}
		}()
	default:
	}
}

// runMerge does the actual compaction. checkRatio gates it on
// DataFileMergeRatio; both the explicit and the background path check it,
// since an unconditional background merge would defeat the point of the
// threshold.
func (db *DB) runMerge(checkRatio bool) error {
	db.mu.RLock()
	sealed := append([]uint32(nil), db.sealedID...)
	segs := make(map[uint32]*segment, len(sealed))
	for _, id := range sealed {
		segs[id] = db.segments[id]
	}
	db.mu.RUnlock()

	if len(sealed) == 0 {
		return ErrMergeRatioUnreached
	}

	if checkRatio {
		var total, live int64
		for _, id := range sealed {
			total += segs[id].size()
		}
		if total == 0 {
			return ErrMergeRatioUnreached
		}
		sealedSet := make(map[uint32]bool, len(sealed))
		for _, id := range sealed {
			sealedSet[id] = true
		}
		db.idx.forEach(func(_ []byte, loc Location) {
			if sealedSet[loc.SegmentID] {
				live += int64(loc.Size)
			}
		})
		reclaimable := 1 - float64(live)/float64(total)
		if reclaimable < db.opts.DataFileMergeRatio {
			return ErrMergeRatioUnreached
		}
	}

	output, err := db.copyLiveRecords(sealed, segs)
	if err != nil {
		db.abortMerge(output)
		return err
	}

	return db.installMergeOutput(sealed, output)
}

// mergedSegment is one freshly written output segment from a merge pass.
type mergedSegment struct {
	seg *segment
}

// copyLiveRecords scans every sealed segment in order and copies forward
// only Normal records whose location still matches the live index entry for
// their key; everything else (tombstones, superseded versions, unfinished
// batch records) is dropped.
func (db *DB) copyLiveRecords(sealed []uint32, segs map[uint32]*segment) ([]*mergedSegment, error) {
	var out []*mergedSegment
	var cur *segment

	newOutputSegment := func() error {
		id := db.claimSegID()
		seg, err := openSegment(db.dir, id, false)
		if err != nil {
			return err
		}
		cur = seg
		out = append(out, &mergedSegment{seg: seg})
		return nil
	}
	if err := newOutputSegment(); err != nil {
		return out, err
	}

	for _, id := range sealed {
		seg := segs[id]
		var off int64
		for {
			rec, n, err := seg.readRecordAt(off)
			if err != nil {
				if err == ErrDataFileEOF {
					break
				}
				return out, fmt.Errorf("%w: segment %d at offset %d: %v", ErrCorruptRecord, id, off, err)
			}

			if rec.Type == RecordNormal {
				_, realKey, decErr := decodeSeqKey(rec.Key)
				if decErr != nil {
					return out, decErr
				}
				loc := Location{SegmentID: id, Offset: off, Size: uint32(n)}
				if cur2, ok := db.idx.get(realKey); ok && cur2 == loc {
					buf := Encode(Record{Type: RecordNormal, Key: encodeSeqKey(nonBatchSeq, realKey), Value: rec.Value})
					if cur.size()+int64(len(buf)) > db.opts.DataFileSize {
						if err := cur.sync(); err != nil {
							return out, err
						}
						if err := newOutputSegment(); err != nil {
							return out, err
						}
					}
					newLoc, err := cur.append(buf)
					if err != nil {
						return out, err
					}
					if !db.idx.compareAndSwap(realKey, loc, newLoc) {
						// the key was rewritten concurrently; our copy is
						// stale and simply becomes dead space, reclaimed by
						// a future merge.
					}
				}
			}

			off += n
		}
	}

	if err := cur.sync(); err != nil {
		return out, err
	}
	return out, nil
}

// installMergeOutput swaps the merged segments in for the old sealed ones
// and deletes the old segment files.
//
// A merge always processes every currently sealed segment (runMerge snapshots
// the full db.sealedID, never a subset), so oldSealed is exactly the lowest,
// contiguous prefix of ids in use. claimSegID is a single monotonically
// increasing counter shared with segment rotation, so the freshly written
// output segments always get the highest ids in use. Removing a contiguous
// low prefix and appending a contiguous high suffix keeps the on-disk id set
// dense, without needing to renumber anything already on disk.
func (db *DB) installMergeOutput(oldSealed []uint32, output []*mergedSegment) error {
	db.mu.Lock()
	oldSet := make(map[uint32]bool, len(oldSealed))
	for _, id := range oldSealed {
		oldSet[id] = true
	}

	newSealed := make([]uint32, 0, len(db.sealedID)-len(oldSealed)+len(output))
	for _, id := range db.sealedID {
		if !oldSet[id] {
			newSealed = append(newSealed, id)
		}
	}
	for _, ms := range output {
		db.segments[ms.seg.id] = ms.seg
		newSealed = append(newSealed, ms.seg.id)
	}
	for _, id := range oldSealed {
		if seg, ok := db.segments[id]; ok {
			seg.close()
			delete(db.segments, id)
		}
	}
	db.sealedID = newSealed
	dir := db.dir
	db.mu.Unlock()

	for _, id := range oldSealed {
		if err := os.Remove(segmentPath(dir, id)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("%w: %v", ErrFailedToOpenDataFile, err)
		}
	}
	return nil
}

// abortMerge closes and deletes any output segments written so far by a
// merge pass that failed partway through.
func (db *DB) abortMerge(output []*mergedSegment) {
	for _, ms := range output {
		ms.seg.close()
		os.Remove(segmentPath(db.dir, ms.seg.id))
	}
}
