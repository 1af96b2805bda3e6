package core

import (
	"fmt"
	"os"

	"github.com/edsrzf/mmap-go"
)

// mmapIO is a read-only memory-mapped back-end for sealed segments, used
// when Options.MmapAtStartup is set. write and sync always fail: a sealed
// segment is never appended to again outside of merge, which rewrites
// through a fresh fileIO-backed segment instead.
type mmapIO struct {
	fd *os.File
	m  mmap.MMap
}

func newMmapIO(path string) (*mmapIO, error) {
	fd, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrFailedToOpenDataFile, path, err)
	}

	info, err := fd.Stat()
	if err != nil {
		fd.Close()
		return nil, fmt.Errorf("%w: %v", ErrFailedToOpenDataFile, err)
	}

	if info.Size() == 0 {
		// mmap.Map refuses to map a zero-length file; an empty segment has
		// nothing to read anyway.
		return &mmapIO{fd: fd, m: nil}, nil
	}

	m, err := mmap.Map(fd, mmap.RDONLY, 0)
	if err != nil {
		fd.Close()
		return nil, fmt.Errorf("%w: %s: %v", ErrFailedToOpenDataFile, path, err)
	}

	return &mmapIO{fd: fd, m: m}, nil
}

func (m *mmapIO) readAt(buf []byte, off int64) (int, error) {
	if off < 0 || off > int64(len(m.m)) {
		return 0, fmt.Errorf("%w: offset %d past mapped size %d", ErrDataFileEOF, off, len(m.m))
	}
	n := copy(buf, m.m[off:])
	if n < len(buf) {
		return n, fmt.Errorf("%w: short mapped read at %d", ErrDataFileEOF, off)
	}
	return n, nil
}

func (m *mmapIO) write([]byte) (int, error) {
	return 0, fmt.Errorf("%w: segment is memory-mapped read-only", ErrFailedWriteToDataFile)
}

func (m *mmapIO) sync() error {
	return fmt.Errorf("%w: segment is memory-mapped read-only", ErrFailedSyncDataFile)
}

func (m *mmapIO) size() (int64, error) {
	return int64(len(m.m)), nil
}

func (m *mmapIO) close() error {
	if m.m != nil {
		if err := m.m.Unmap(); err != nil {
			m.fd.Close()
			return err
		}
	}
	return m.fd.Close()
}
