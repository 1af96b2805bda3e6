package core

import (
	"fmt"
	"os"
)

// ioManager is the back-end a segment reads and writes through. A segment's
// active (still being appended to) file always uses fileIO; a sealed segment
// uses fileIO or mmapIO depending on Options.MmapAtStartup.
type ioManager interface {
	// readAt reads len(buf) bytes starting at off, or returns ErrDataFileEOF
	// if the back-end cannot satisfy the full read.
	readAt(buf []byte, off int64) (int, error)

	// write appends buf, returning the number of bytes written.
	write(buf []byte) (int, error)

	// sync flushes any buffered writes to stable storage.
	sync() error

	// size reports the current extent of the back-end.
	size() (int64, error)

	// close releases the underlying resource.
	close() error
}

// fileIO is the buffered, positioned-file back-end: every segment opens one
// of these for writing, and for reading unless mmap is enabled.
type fileIO struct {
	fd *os.File
}

func newFileIO(path string) (*fileIO, error) {
	fd, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrFailedToOpenDataFile, path, err)
	}
	return &fileIO{fd: fd}, nil
}

func (f *fileIO) readAt(buf []byte, off int64) (int, error) {
	n, err := f.fd.ReadAt(buf, off)
	if err != nil {
		if n == len(buf) {
			return n, nil
		}
		return n, fmt.Errorf("%w: %v", ErrDataFileEOF, err)
	}
	return n, nil
}

func (f *fileIO) write(buf []byte) (int, error) {
	n, err := f.fd.Write(buf)
	if err != nil {
		return n, fmt.Errorf("%w: %v", ErrFailedWriteToDataFile, err)
	}
	return n, nil
}

func (f *fileIO) sync() error {
	if err := f.fd.Sync(); err != nil {
		return fmt.Errorf("%w: %v", ErrFailedSyncDataFile, err)
	}
	return nil
}

func (f *fileIO) size() (int64, error) {
	info, err := f.fd.Stat()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrFailedReadFromDataFile, err)
	}
	return info.Size(), nil
}

func (f *fileIO) close() error {
	return f.fd.Close()
}
