// Package fsops implements the cross-platform filesystem primitives that
// internal/fstxn, internal/swapper and internal/cleanup build on: an
// atomic-as-possible rename-over-existing, and a safe overwrite of a file
// in place. The rename behavior is adapted from internal/osutil.Rename
// (syncthing): prepare the destination directory, clear the destination on
// Windows where rename-over-existing isn't atomic, then rename.
package fsops

import (
	"os"
	"path/filepath"
	"sync"
)

var renameMu sync.Mutex

// Rename moves from to to, replacing any existing file at to. On POSIX this
// is a single atomic os.Rename. On Windows, where renaming onto an existing
// file fails, the destination is removed first; FSTransaction callers are
// responsible for having already sidecar'd the prior destination if the
// abort path needs to restore it (see internal/fstxn).
func Rename(from, to string) error {
	renameMu.Lock()
	defer renameMu.Unlock()

	if err := os.MkdirAll(filepath.Dir(to), 0o777); err != nil {
		return err
	}
	return platformRename(from, to)
}

// RemoveEmptyDir removes path only if it contains no entries, returning nil
// if the directory does not exist. This backs FSTransaction's remove() rule
// that directories may only be removed while empty.
func RemoveEmptyDir(path string) error {
	entries, err := os.ReadDir(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(entries) > 0 {
		return &os.PathError{Op: "rmdir", Path: path, Err: errNotEmpty}
	}
	return os.Remove(path)
}

type notEmptyError struct{}

func (notEmptyError) Error() string { return "directory not empty" }

var errNotEmpty = notEmptyError{}
