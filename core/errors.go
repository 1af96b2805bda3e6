// Package core provides the on-disk log format, key→location index, and the
// read/write/delete path of an embedded Bitcask-style key/value store.
package core

import "errors"

var (
	// ErrKeyIsEmpty is returned when Put/Get/Delete is called with an empty key.
	ErrKeyIsEmpty = errors.New("bitcask: key is empty")

	// ErrKeyNotFound is returned when a key has no live index entry.
	ErrKeyNotFound = errors.New("bitcask: key not found")

	// ErrIndexUpdateFailed is returned when an index mutation could not be
	// applied after its record was already durably appended.
	ErrIndexUpdateFailed = errors.New("bitcask: failed to update index")

	// ErrFailedToOpenDataFile wraps an OS-level failure opening a segment file.
	ErrFailedToOpenDataFile = errors.New("bitcask: failed to open data file")

	// ErrFailedReadFromDataFile wraps an OS-level failure reading a segment file.
	ErrFailedReadFromDataFile = errors.New("bitcask: failed to read from data file")

	// ErrFailedWriteToDataFile wraps an OS-level failure writing a segment file.
	ErrFailedWriteToDataFile = errors.New("bitcask: failed to write to data file")

	// ErrFailedSyncDataFile wraps an OS-level failure fsyncing a segment file.
	ErrFailedSyncDataFile = errors.New("bitcask: failed to sync data file")

	// ErrDataFileEOF marks a short read at the end of an IO back-end's
	// addressable range (mmap out-of-range read, or a positioned read that
	// ran past the segment's tracked size). It terminates a recovery scan;
	// it is never returned to a Get/Put/Delete caller.
	ErrDataFileEOF = errors.New("bitcask: read past end of data file")

	// ErrDataFileNotFound is returned when an index entry names a segment id
	// that is not currently open.
	ErrDataFileNotFound = errors.New("bitcask: data file not found")

	// ErrCorruptRecord is returned when a record's checksum does not
	// validate, or its header cannot be decoded (bad type tag, varint
	// overrun).
	ErrCorruptRecord = errors.New("bitcask: corrupt record")

	// ErrDataDirectoryCorrupted is returned when segment filenames don't
	// match the numeric pattern, or the segment id sequence has gaps.
	ErrDataDirectoryCorrupted = errors.New("bitcask: data directory corrupted")

	// ErrDatabaseIsUsing is returned when the directory lock is already held
	// by another instance.
	ErrDatabaseIsUsing = errors.New("bitcask: database is already in use")

	// ErrInvalidMergeRatio is returned when DataFileMergeRatio is outside [0,1].
	ErrInvalidMergeRatio = errors.New("bitcask: invalid merge ratio")

	// ErrMergeInProgress is returned by a direct Merge() call when a merge
	// (background or explicit) is already running.
	ErrMergeInProgress = errors.New("bitcask: merge already in progress")

	// ErrMergeRatioUnreached is returned by a direct Merge() call when the
	// reclaimable-byte ratio across sealed segments hasn't crossed
	// DataFileMergeRatio.
	ErrMergeRatioUnreached = errors.New("bitcask: merge ratio not reached")
)
