//go:build windows

package applock

import (
	"os"
	"time"
)

// touchPath refreshes a marker file's mtime. Windows has no Utimes
// syscall equivalent exposed by x/sys in the form unix.Utimes is, so
// this falls back to the stdlib path.
func touchPath(path string) error {
	now := time.Now()
	return os.Chtimes(path, now, now)
}
