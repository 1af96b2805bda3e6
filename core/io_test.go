package core

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestFileIOWriteReadSync(t *testing.T) {
	dir := t.TempDir()
	f, err := newFileIO(filepath.Join(dir, "0.data"))
	if err != nil {
		t.Fatalf("newFileIO: %v", err)
	}
	defer f.close()

	if _, err := f.write([]byte("hello")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := f.sync(); err != nil {
		t.Fatalf("sync: %v", err)
	}

	sz, err := f.size()
	if err != nil {
		t.Fatalf("size: %v", err)
	}
	if sz != 5 {
		t.Fatalf("size = %d, want 5", sz)
	}

	buf := make([]byte, 5)
	if _, err := f.readAt(buf, 0); err != nil {
		t.Fatalf("readAt: %v", err)
	}
	if string(buf) != "hello" {
		t.Fatalf("readAt = %q, want hello", buf)
	}
}

func TestFileIOReadPastEOF(t *testing.T) {
	dir := t.TempDir()
	f, err := newFileIO(filepath.Join(dir, "0.data"))
	if err != nil {
		t.Fatalf("newFileIO: %v", err)
	}
	defer f.close()

	if _, err := f.write([]byte("ab")); err != nil {
		t.Fatalf("write: %v", err)
	}

	buf := make([]byte, 10)
	_, err = f.readAt(buf, 0)
	if !errors.Is(err, ErrDataFileEOF) {
		t.Fatalf("err = %v, want ErrDataFileEOF", err)
	}
}
