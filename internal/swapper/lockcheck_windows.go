//go:build windows

package swapper

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sys/windows"
)

// versionInUse on Windows has no cheap advisory-lock primitive in the
// stdlib, so it uses the same test the uninstall rename step relies on
// anyway: try to rename the lockfile to itself plus a throwaway suffix and
// back. A failure of the first rename (other than the file not existing)
// is taken to mean some process still has a handle open inside the version
// directory — including this same process, if it holds the exclusive
// handle LockVersionDir opened with no sharing permitted at all. The
// rename back is deferred and its error is ignored.
func versionInUse(lockfilePath string) (bool, error) {
	probe := lockfilePath + ".probe"
	if err := os.Rename(lockfilePath, probe); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return true, nil
	}
	defer os.Rename(probe, lockfilePath)
	return false, nil
}

var (
	heldLocksMu sync.Mutex
	heldLocks   []windows.Handle
)

// LockVersionDir opens versionDir's lockfile.txt with no sharing permitted
// at all and keeps the handle open for the remaining life of the process.
// Any later rename of that path — the sharing-violation test versionInUse
// and Uninstall's own manifest rename both rely on — fails for as long as
// this handle stays open, mirroring esky's run_startup_hooks locking its
// active version's directory on Windows.
func LockVersionDir(versionDir string) error {
	lockfilePath := filepath.Join(versionDir, controlDir, lockfileName)
	pathPtr, err := windows.UTF16PtrFromString(lockfilePath)
	if err != nil {
		return fmt.Errorf("swapper: lock %s: %w", lockfilePath, err)
	}
	h, err := windows.CreateFile(
		pathPtr,
		windows.GENERIC_READ|windows.GENERIC_WRITE,
		0, // no FILE_SHARE_* flags: exclusive to this handle
		nil,
		windows.OPEN_ALWAYS,
		windows.FILE_ATTRIBUTE_NORMAL,
		0,
	)
	if err != nil {
		return fmt.Errorf("swapper: lock %s: %w", lockfilePath, err)
	}
	heldLocksMu.Lock()
	heldLocks = append(heldLocks, h)
	heldLocksMu.Unlock()
	return nil
}
