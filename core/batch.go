package core

import (
	"encoding/binary"
	"fmt"
)

// nonBatchSeq is the sequence number embedded in every record written
// directly through Put/Delete, outside of a WriteBatch. It is never a valid
// WriteBatch sequence number (those start at 1), so recovery can tell the
// two apart unambiguously.
const nonBatchSeq = 0

// encodeSeqKey prepends seq, varint-encoded, to key. This is the key that
// actually goes on disk; Get/Put/Delete callers never see it.
func encodeSeqKey(seq uint64, key []byte) []byte {
	buf := make([]byte, binary.MaxVarintLen64+len(key))
	n := binary.PutUvarint(buf, seq)
	n += copy(buf[n:], key)
	return buf[:n]
}

// decodeSeqKey reverses encodeSeqKey.
func decodeSeqKey(buf []byte) (seq uint64, key []byte, err error) {
	seq, n := binary.Uvarint(buf)
	if n <= 0 {
		return 0, nil, fmt.Errorf("%w: malformed sequenced key", ErrCorruptRecord)
	}
	return seq, buf[n:], nil
}

type stagedOp struct {
	Type RecordType
	Key  []byte
	Loc  Location
}

type batchOp struct {
	deleted bool
	value   []byte
}

// WriteBatch stages a group of Put/Delete calls and commits them atomically:
// either every staged write becomes visible, or (on a crash before Commit
// finishes) none of them do. Staged writes aren't visible to Get until
// Commit returns successfully. A WriteBatch is not safe for concurrent use.
type WriteBatch struct {
	db  *DB
	ops map[string]*batchOp
}

// NewWriteBatch begins a new batch against db.
func (db *DB) NewWriteBatch() *WriteBatch {
	return &WriteBatch{db: db, ops: make(map[string]*batchOp)}
}

// Put stages a write of key/value, superseding any earlier staged write to
// the same key in this batch.
func (b *WriteBatch) Put(key, value []byte) error {
	if len(key) == 0 {
		return ErrKeyIsEmpty
	}
	b.ops[string(key)] = &batchOp{value: append([]byte(nil), value...)}
	return nil
}

// Delete stages a tombstone for key.
func (b *WriteBatch) Delete(key []byte) error {
	if len(key) == 0 {
		return ErrKeyIsEmpty
	}
	b.ops[string(key)] = &batchOp{deleted: true}
	return nil
}

// Commit appends every staged write followed by a TxnFinished marker, all
// under one critical section, then applies the writes to the index. An
// empty batch is a no-op.
func (b *WriteBatch) Commit() error {
	if len(b.ops) == 0 {
		return nil
	}

	db := b.db
	db.mu.Lock()
	defer db.mu.Unlock()

	seq := nextSeq(db)

	type applied struct {
		op  *batchOp
		key []byte
		loc Location
	}
	results := make([]applied, 0, len(b.ops))

	for k, op := range b.ops {
		key := []byte(k)
		var (
			loc Location
			err error
		)
		if op.deleted {
			loc, err = db.appendLocked(seq, RecordTombstone, key, nil)
		} else {
			loc, err = db.appendLocked(seq, RecordNormal, key, op.value)
		}
		if err != nil {
			return err
		}
		results = append(results, applied{op: op, key: key, loc: loc})
	}

	finishKey := make([]byte, binary.MaxVarintLen64)
	n := binary.PutUvarint(finishKey, seq)
	if _, err := db.appendLocked(nonBatchSeq, RecordTxnFinished, finishKey[:n], nil); err != nil {
		return err
	}

	for _, r := range results {
		if r.op.deleted {
			db.idx.delete(r.key)
		} else {
			db.idx.put(r.key, r.loc)
		}
	}

	db.maybeTriggerMerge()
	return nil
}
