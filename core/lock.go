package core

import (
	"path/filepath"

	"github.com/gofrs/flock"
)

const lockFileName = "bitcask.lock"

// acquireDirLock takes an exclusive, non-blocking lock on dir, failing with
// ErrDatabaseIsUsing if another process (or another open in this process)
// already holds it.
func acquireDirLock(dir string) (*flock.Flock, error) {
	fl := flock.New(filepath.Join(dir, lockFileName))
	ok, err := fl.TryLock()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrDatabaseIsUsing
	}
	return fl, nil
}
