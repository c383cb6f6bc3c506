//go:build !windows

package swapper

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sys/unix"
)

// versionInUse reports whether lockfilePath is held by another process, by
// attempting a non-blocking exclusive flock on it. The file is created if
// missing; the lock is released immediately since the mere ability to
// acquire it is the only thing being tested. A lock this same process took
// out via LockVersionDir is held on a distinct, separately-opened file
// descriptor, so re-flocking it here from the same process still reports
// "in use" (POSIX flock is per-open-file-description, not per-process).
func versionInUse(lockfilePath string) (bool, error) {
	f, err := os.OpenFile(lockfilePath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return false, err
	}
	defer f.Close()

	err = unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
	if err != nil {
		if err == unix.EWOULDBLOCK {
			return true, nil
		}
		return false, err
	}
	defer unix.Flock(int(f.Fd()), unix.LOCK_UN)
	return false, nil
}

var (
	heldLocksMu sync.Mutex
	heldLocks   []*os.File
)

// LockVersionDir opens versionDir's lockfile.txt and takes a non-blocking
// exclusive flock on it, holding the descriptor open for the remaining life
// of the process instead of releasing it. This is what makes versionInUse
// report a running version as locked: the flock esky's own
// run_startup_hooks takes on its active version's lockfile.txt
// (original_source/esky/__init__.py) and never releases until exit.
func LockVersionDir(versionDir string) error {
	lockfilePath := filepath.Join(versionDir, controlDir, lockfileName)
	f, err := os.OpenFile(lockfilePath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("swapper: open %s: %w", lockfilePath, err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		return fmt.Errorf("swapper: lock %s: %w", lockfilePath, err)
	}
	heldLocksMu.Lock()
	heldLocks = append(heldLocks, f)
	heldLocksMu.Unlock()
	return nil
}
