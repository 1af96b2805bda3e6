package core

import (
	"encoding/binary"
	"fmt"
	"log"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/deckarep/golang-set/v2"
	"github.com/gofrs/flock"
)

// DB is an embedded, single-directory Bitcask-style key/value store. Put,
// Delete, WriteBatch commit, segment rotation and the final swap of a merge
// serialize on mu.Lock. Reads take mu.RLock only to look up the segments
// map and do the positioned read outside it; that lookup still waits while a
// writer holds mu.Lock, which covers the writer's whole append. The read
// itself needs no lock because sealed segments are immutable and the active
// segment is only ever appended to beyond previously published offsets.
type DB struct {
	dir  string
	opts Options

	mu       sync.RWMutex
	segments map[uint32]*segment
	sealedID []uint32 // ascending, excludes active.id
	active   *segment

	idx *index

	flock *flock.Flock

	seqCounter uint64 // highest WriteBatch sequence number used so far, atomic
	nextSegID  uint32 // next segment id to claim, atomic

	mergeSem chan struct{}
	closed   bool
}

func (db *DB) claimSegID() uint32 {
	return atomic.AddUint32(&db.nextSegID, 1) - 1
}

var segmentFileRE = regexp.MustCompile(`^(\d{9})\.data$`)

// Open opens or creates a Bitcask directory at dir, replaying its segments
// to rebuild the in-memory index.
func Open(dir string, opts ...Option) (*DB, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFailedToOpenDataFile, err)
	}

	fl, err := acquireDirLock(dir)
	if err != nil {
		return nil, err
	}

	db := &DB{
		dir:      dir,
		opts:     defaultOptions(),
		segments: make(map[uint32]*segment),
		idx:      newIndex(),
		flock:    fl,
		mergeSem: make(chan struct{}, 1),
	}
	for _, o := range opts {
		o(db)
	}
	if db.opts.DataFileMergeRatio < 0 || db.opts.DataFileMergeRatio > 1 {
		fl.Unlock()
		return nil, ErrInvalidMergeRatio
	}

	if err := db.loadSegments(); err != nil {
		fl.Unlock()
		return nil, err
	}

	if err := db.recover(); err != nil {
		db.closeSegments()
		fl.Unlock()
		return nil, err
	}

	log.Printf("bitcask: opened %s (%d segments, %d keys)", dir, len(db.segments), db.idx.len())
	return db, nil
}

// loadSegments discovers existing segment files, validates that their ids
// form a dense 1..n range (a gap or stray file means the directory was
// tampered with or corrupted), and opens each one. If none exist, a fresh
// segment 1 is created as the active segment.
func (db *DB) loadSegments() error {
	entries, err := os.ReadDir(db.dir)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFailedToOpenDataFile, err)
	}

	var ids []uint32
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := segmentFileRE.FindStringSubmatch(e.Name())
		if m == nil {
			if strings.HasSuffix(e.Name(), ".data") {
				return fmt.Errorf("%w: unexpected data file name %s", ErrDataDirectoryCorrupted, e.Name())
			}
			continue
		}
		n, err := strconv.ParseUint(m[1], 10, 32)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrDataDirectoryCorrupted, e.Name(), err)
		}
		ids = append(ids, uint32(n))
	}

	if len(ids) == 0 {
		seg, err := openSegment(db.dir, 1, false)
		if err != nil {
			return err
		}
		db.segments[1] = seg
		db.active = seg
		db.nextSegID = 2
		return nil
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	expected := mapset.NewSet[uint32]()
	for i := uint32(1); i <= ids[len(ids)-1]; i++ {
		expected.Add(i)
	}
	actual := mapset.NewSet[uint32](ids...)
	if !expected.Equal(actual) {
		missing := expected.Difference(actual)
		return fmt.Errorf("%w: missing segment ids %v", ErrDataDirectoryCorrupted, missing.ToSlice())
	}

	lastID := ids[len(ids)-1]
	for _, id := range ids {
		useMmap := db.opts.MmapAtStartup && id != lastID
		seg, err := openSegment(db.dir, id, useMmap)
		if err != nil {
			db.closeSegments()
			return err
		}
		db.segments[id] = seg
		if id != lastID {
			db.sealedID = append(db.sealedID, id)
		}
	}
	db.active = db.segments[lastID]
	db.nextSegID = lastID + 1
	return nil
}

// recover replays every segment from the lowest id upward, applying non-batched
// writes immediately and staging batched writes until their TxnFinished
// marker is seen. A batch whose TxnFinished record never appears (the
// process crashed mid-commit) is discarded, leaving its records durable on
// disk but invisible to the index until a merge reclaims them.
func (db *DB) recover() error {
	lastID := db.active.id

	ids := make([]uint32, 0, len(db.segments))
	for id := range db.segments {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	pending := make(map[uint64][]stagedOp)
	var maxSeq uint64

	for _, id := range ids {
		seg := db.segments[id]
		var off int64
		for {
			rec, n, err := seg.readRecordAt(off)
			if err != nil {
				if err == ErrDataFileEOF {
					if off == seg.offset {
						// clean end of segment: every byte decoded into a
						// full record, nothing left to truncate.
						break
					}
					if id != lastID {
						// leftover bytes that don't form a full record in a
						// sealed segment are not a crash-interrupted write in
						// progress; the sealed, supposedly-immutable segment
						// is corrupted.
						return fmt.Errorf("%w: segment %d at offset %d: %v", ErrCorruptRecord, id, off, err)
					}
					// a partial trailing record in the active segment: a
					// crash mid-append. Truncate the segment file and its
					// write offset back to the end of the last valid record,
					// so future appends overwrite the garbage tail instead of
					// leaving it as a gap.
					seg.offset = off
					if f, ok := seg.io.(*fileIO); ok {
						if err := f.fd.Truncate(off); err != nil {
							return fmt.Errorf("%w: %v", ErrFailedWriteToDataFile, err)
						}
					}
					break
				}
				return fmt.Errorf("%w: segment %d at offset %d: %v", ErrCorruptRecord, id, off, err)
			}

			seq, realKey, err := decodeSeqKey(rec.Key)
			if err != nil {
				return err
			}

			loc := Location{SegmentID: id, Offset: off, Size: uint32(n)}

			switch rec.Type {
			case RecordTxnFinished:
				// realKey is itself a varint: the batch sequence being
				// finished. The outer seq (from decodeSeqKey) is always
				// nonBatchSeq, since the finish marker is appended as a
				// direct write.
				finishedSeq, fn := binary.Uvarint(realKey)
				if fn <= 0 {
					return fmt.Errorf("%w: malformed txn-finished marker", ErrCorruptRecord)
				}
				for _, op := range pending[finishedSeq] {
					db.applyRecovered(op.Type, op.Key, op.Loc)
				}
				delete(pending, finishedSeq)
			case RecordNormal, RecordTombstone:
				if seq > maxSeq {
					maxSeq = seq
				}
				if seq == nonBatchSeq {
					db.applyRecovered(rec.Type, realKey, loc)
				} else {
					pending[seq] = append(pending[seq], stagedOp{Type: rec.Type, Key: realKey, Loc: loc})
				}
			}

			off += n
		}
	}

	// nextSeq adds 1 before handing out a sequence number, so seqCounter
	// holds the highest one already used.
	db.seqCounter = maxSeq
	return nil
}

func (db *DB) applyRecovered(t RecordType, key []byte, loc Location) {
	switch t {
	case RecordNormal:
		db.idx.put(key, loc)
	case RecordTombstone:
		db.idx.delete(key)
	}
}

// Put writes key/value as a single, immediately committed record.
func (db *DB) Put(key, value []byte) error {
	if len(key) == 0 {
		return ErrKeyIsEmpty
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	loc, err := db.appendLocked(nonBatchSeq, RecordNormal, key, value)
	if err != nil {
		return err
	}
	db.idx.put(key, loc)
	db.maybeTriggerMerge()
	return nil
}

// Delete appends a tombstone for key. It is not an error to delete a
// missing key.
func (db *DB) Delete(key []byte) error {
	if len(key) == 0 {
		return ErrKeyIsEmpty
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	if _, ok := db.idx.get(key); !ok {
		return nil
	}

	if _, err := db.appendLocked(nonBatchSeq, RecordTombstone, key, nil); err != nil {
		return err
	}
	db.idx.delete(key)
	db.maybeTriggerMerge()
	return nil
}

// Get returns the current value for key, or ErrKeyNotFound.
func (db *DB) Get(key []byte) ([]byte, error) {
	if len(key) == 0 {
		return nil, ErrKeyIsEmpty
	}

	loc, ok := db.idx.get(key)
	if !ok {
		return nil, ErrKeyNotFound
	}
	return db.readValue(loc)
}

func (db *DB) readValue(loc Location) ([]byte, error) {
	db.mu.RLock()
	seg, ok := db.segments[loc.SegmentID]
	db.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: segment %d", ErrDataFileNotFound, loc.SegmentID)
	}

	rec, _, err := seg.readRecordAt(loc.Offset)
	if err != nil {
		return nil, err
	}
	if rec.Type == RecordTombstone {
		return nil, ErrKeyNotFound
	}
	return rec.Value, nil
}

// ListKeys returns every live key in ascending order.
func (db *DB) ListKeys() [][]byte {
	return db.idx.listKeys()
}

// Fold calls fn for every live key/value pair in ascending key order,
// stopping early if fn returns false.
func (db *DB) Fold(fn func(key, value []byte) bool) error {
	it := db.idx.iterator(IteratorOptions{})
	defer it.close()
	for it.rewind(); it.valid(); it.next() {
		val, err := db.readValue(it.location())
		if err != nil {
			if err == ErrKeyNotFound {
				continue
			}
			return err
		}
		if !fn(it.key(), val) {
			break
		}
	}
	return nil
}

// Iterator returns a snapshot iterator over the live keys matching opts.
func (db *DB) Iterator(opts IteratorOptions) *iterator {
	return db.idx.iterator(opts)
}

// appendLocked encodes and appends one record to the active segment,
// rotating it first if the write would exceed DataFileSize. Callers must
// hold db.mu.
func (db *DB) appendLocked(seq uint64, t RecordType, key, value []byte) (Location, error) {
	buf := Encode(Record{Type: t, Key: encodeSeqKey(seq, key), Value: value})

	if db.active.size()+int64(len(buf)) > db.opts.DataFileSize {
		if err := db.rotateActiveLocked(); err != nil {
			return Location{}, err
		}
	}

	loc, err := db.active.append(buf)
	if err != nil {
		return Location{}, err
	}

	if db.opts.SyncWrites {
		if err := db.active.sync(); err != nil {
			return Location{}, err
		}
	} else if db.opts.BytesPerSync > 0 && db.active.size()%db.opts.BytesPerSync < int64(len(buf)) {
		if err := db.active.sync(); err != nil {
			return Location{}, err
		}
	}

	return loc, nil
}

func (db *DB) rotateActiveLocked() error {
	if err := db.active.sync(); err != nil {
		return err
	}

	db.sealedID = append(db.sealedID, db.active.id)

	newID := db.claimSegID()
	seg, err := openSegment(db.dir, newID, false)
	if err != nil {
		return err
	}
	db.segments[newID] = seg
	db.active = seg
	return nil
}

func (db *DB) closeSegments() {
	for _, seg := range db.segments {
		seg.close()
	}
}

// Close flushes the active segment and releases the directory lock.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.closed {
		return nil
	}
	db.closed = true

	var firstErr error
	if err := db.active.sync(); err != nil && firstErr == nil {
		firstErr = err
	}
	db.closeSegments()

	if err := db.flock.Unlock(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// DiskSize reports the combined size in bytes of every segment file.
func (db *DB) DiskSize() (int64, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	var total int64
	for _, seg := range db.segments {
		total += seg.size()
	}
	return total, nil
}

// nextSeq returns the next WriteBatch sequence number, starting at 1 so it
// never collides with nonBatchSeq.
func nextSeq(db *DB) uint64 {
	return atomic.AddUint64(&db.seqCounter, 1)
}
