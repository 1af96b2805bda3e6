package core

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestPutGetDelete(t *testing.T) {
	db, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	if err := db.Put([]byte("k"), []byte("v1")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	val, err := db.Get([]byte("k"))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(val) != "v1" {
		t.Fatalf("Get = %q, want v1", val)
	}

	if err := db.Put([]byte("k"), []byte("v2")); err != nil {
		t.Fatalf("overwrite Put: %v", err)
	}
	val, _ = db.Get([]byte("k"))
	if string(val) != "v2" {
		t.Fatalf("Get after overwrite = %q, want v2", val)
	}

	if err := db.Delete([]byte("k")); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := db.Get([]byte("k")); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("Get after delete = %v, want ErrKeyNotFound", err)
	}
}

func TestEmptyKeyRejected(t *testing.T) {
	db, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	if err := db.Put(nil, []byte("v")); !errors.Is(err, ErrKeyIsEmpty) {
		t.Fatalf("Put(nil) = %v, want ErrKeyIsEmpty", err)
	}
	if _, err := db.Get(nil); !errors.Is(err, ErrKeyIsEmpty) {
		t.Fatalf("Get(nil) = %v, want ErrKeyIsEmpty", err)
	}
	if err := db.Delete(nil); !errors.Is(err, ErrKeyIsEmpty) {
		t.Fatalf("Delete(nil) = %v, want ErrKeyIsEmpty", err)
	}
}

func TestDeleteMissingKeyIsNotError(t *testing.T) {
	db, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	if err := db.Delete([]byte("nope")); err != nil {
		t.Fatalf("Delete missing key: %v", err)
	}
}

func TestPersistenceAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	db, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	for i := 0; i < 50; i++ {
		k := []byte{byte(i)}
		if err := db.Put(k, []byte("value")); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}
	if err := db.Delete([]byte{10}); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	if _, err := reopened.Get([]byte{10}); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("Get(deleted) after reopen = %v, want ErrKeyNotFound", err)
	}
	val, err := reopened.Get([]byte{20})
	if err != nil {
		t.Fatalf("Get after reopen: %v", err)
	}
	if string(val) != "value" {
		t.Fatalf("Get after reopen = %q", val)
	}
	if len(reopened.ListKeys()) != 49 {
		t.Fatalf("ListKeys len = %d, want 49", len(reopened.ListKeys()))
	}
}

func TestSegmentRotation(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(dir, WithDataFileSize(64))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	for i := 0; i < 20; i++ {
		if err := db.Put([]byte{byte(i)}, []byte("0123456789")); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}

	db.mu.Lock()
	n := len(db.segments)
	db.mu.Unlock()
	if n < 2 {
		t.Fatalf("segments = %d, want rotation to have produced more than 1", n)
	}
}

func TestDatabaseIsUsing(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	if _, err := Open(dir); !errors.Is(err, ErrDatabaseIsUsing) {
		t.Fatalf("second Open = %v, want ErrDatabaseIsUsing", err)
	}
}

func TestDataDirectoryCorruptedOnGap(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := db.Put([]byte("k"), []byte("v")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// introduce a gap: rename segment 1 to a non-contiguous id.
	if err := os.Rename(
		filepath.Join(dir, segmentFileName(1)),
		filepath.Join(dir, segmentFileName(5)),
	); err != nil {
		t.Fatalf("rename: %v", err)
	}

	if _, err := Open(dir); !errors.Is(err, ErrDataDirectoryCorrupted) {
		t.Fatalf("Open after gap = %v, want ErrDataDirectoryCorrupted", err)
	}
}

func TestTruncatedTailRecordIsIgnoredOnRecovery(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := db.Put([]byte("k1"), []byte("v1")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	path := filepath.Join(dir, segmentFileName(1))
	f, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	info, err := f.Stat()
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	// append a handful of garbage bytes that can't form a full record.
	if err := f.Truncate(info.Size() + 3); err != nil {
		t.Fatalf("Truncate: %v", err)
	}
	f.Close()

	reopened, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen after truncated tail: %v", err)
	}
	defer reopened.Close()

	val, err := reopened.Get([]byte("k1"))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(val) != "v1" {
		t.Fatalf("Get = %q, want v1", val)
	}
}

func TestCorruptSealedSegmentTailFailsOpen(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(dir, WithDataFileSize(64))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	// force a rotation so segment 1 is sealed, leaving segment 2 active.
	for i := 0; i < 20; i++ {
		if err := db.Put([]byte{byte(i)}, []byte("0123456789")); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}
	db.mu.RLock()
	sealed := len(db.sealedID)
	db.mu.RUnlock()
	if sealed == 0 {
		t.Fatal("expected at least one sealed segment before corrupting it")
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	path := filepath.Join(dir, segmentFileName(1))
	f, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	info, err := f.Stat()
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	// append a handful of garbage bytes to the now-sealed segment 1 that
	// can't form a full record.
	if err := f.Truncate(info.Size() + 3); err != nil {
		t.Fatalf("Truncate: %v", err)
	}
	f.Close()

	if _, err := Open(dir); !errors.Is(err, ErrCorruptRecord) {
		t.Fatalf("Open after corrupting a sealed segment's tail = %v, want ErrCorruptRecord", err)
	}
}

func TestListKeysAndFold(t *testing.T) {
	db, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	for _, k := range []string{"b", "a", "c"} {
		if err := db.Put([]byte(k), []byte(k+"-val")); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}

	keys := db.ListKeys()
	want := []string{"a", "b", "c"}
	for i, k := range keys {
		if string(k) != want[i] {
			t.Fatalf("ListKeys[%d] = %q, want %q", i, k, want[i])
		}
	}

	var folded []string
	err = db.Fold(func(key, value []byte) bool {
		folded = append(folded, string(key)+"="+string(value))
		return true
	})
	if err != nil {
		t.Fatalf("Fold: %v", err)
	}
	if len(folded) != 3 {
		t.Fatalf("folded = %v", folded)
	}
}

func TestFoldEarlyStop(t *testing.T) {
	db, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	for _, k := range []string{"a", "b", "c"} {
		db.Put([]byte(k), []byte("v"))
	}

	count := 0
	db.Fold(func(key, value []byte) bool {
		count++
		return count < 2
	})
	if count != 2 {
		t.Fatalf("count = %d, want 2", count)
	}
}

func TestDiskSizeGrowsWithWrites(t *testing.T) {
	db, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	before, _ := db.DiskSize()
	if err := db.Put([]byte("k"), []byte("0123456789")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	after, _ := db.DiskSize()
	if after <= before {
		t.Fatalf("DiskSize did not grow: before=%d after=%d", before, after)
	}
}

func TestInvalidMergeRatioRejected(t *testing.T) {
	if _, err := Open(t.TempDir(), WithDataFileMergeRatio(1.5)); !errors.Is(err, ErrInvalidMergeRatio) {
		t.Fatalf("err = %v, want ErrInvalidMergeRatio", err)
	}
}
