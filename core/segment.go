package core

import (
	"fmt"
	"path/filepath"
)

// segmentFileFormat is the on-disk filename pattern: a zero-padded, dense,
// monotonically increasing id.
const segmentFileFormat = "%09d.data"

// minRecordSize is the smallest encoded record: type tag, two one-byte
// length varints, no key or value, and the checksum.
const minRecordSize = 3 + crcSize

func segmentFileName(id uint32) string {
	return fmt.Sprintf(segmentFileFormat, id)
}

func segmentPath(dir string, id uint32) string {
	return filepath.Join(dir, segmentFileName(id))
}

// segment is one numbered, append-only log file. The active segment is
// opened with fileIO; sealed segments may be reopened with mmapIO depending
// on Options.MmapAtStartup.
type segment struct {
	id   uint32
	io   ioManager
	// offset is the next write position: the tracked logical size of the
	// segment, which may run ahead of what's been fsynced but never ahead of
	// what's been written.
	offset int64
}

func openSegment(dir string, id uint32, useMmap bool) (*segment, error) {
	path := segmentPath(dir, id)

	var (
		back ioManager
		err  error
	)
	if useMmap {
		back, err = newMmapIO(path)
	} else {
		back, err = newFileIO(path)
	}
	if err != nil {
		return nil, err
	}

	size, err := back.size()
	if err != nil {
		back.close()
		return nil, err
	}

	return &segment{id: id, io: back, offset: size}, nil
}

// append writes buf at the segment's current tail and returns the location
// the write landed at.
func (s *segment) append(buf []byte) (Location, error) {
	off := s.offset
	n, err := s.io.write(buf)
	if err != nil {
		return Location{}, err
	}
	s.offset += int64(n)
	return Location{SegmentID: s.id, Offset: off, Size: uint32(len(buf))}, nil
}

func (s *segment) sync() error {
	return s.io.sync()
}

func (s *segment) size() int64 {
	return s.offset
}

func (s *segment) close() error {
	return s.io.close()
}

// readRecordAt decodes one record starting at off. It reads the header in
// two phases to distinguish a genuinely truncated tail record (EOF) from a
// corrupt one: first it reads min(maxHeaderSize, remaining) bytes and
// decodes just the header; a short header there means the segment ends
// mid-header, which is only tolerated at the very end of the segment
// (checked by the caller, recover). Fewer remaining bytes than the smallest
// possible record are reported the same way. Once key/value lengths are
// known it reads the whole record (header, payload and checksum) in a
// second pass and decodes it.
func (s *segment) readRecordAt(off int64) (Record, int64, error) {
	remaining := s.offset - off
	if remaining < minRecordSize {
		return Record{}, 0, ErrDataFileEOF
	}

	headBuf := make([]byte, minInt64(int64(maxHeaderSize), remaining))
	if _, err := s.io.readAt(headBuf, off); err != nil {
		return Record{}, 0, err
	}

	_, keyLen, valLen, hdrLen, err := decodeHeader(headBuf)
	if err != nil {
		if err == errShortHeader {
			return Record{}, 0, ErrDataFileEOF
		}
		return Record{}, 0, err
	}

	total := int64(hdrLen + keyLen + valLen + crcSize)
	if total > remaining {
		return Record{}, 0, ErrDataFileEOF
	}

	full := make([]byte, total)
	if _, err := s.io.readAt(full, off); err != nil {
		return Record{}, 0, err
	}

	rec, err := Decode(full)
	if err != nil {
		return Record{}, 0, err
	}
	return rec, total, nil
}

func minInt64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
