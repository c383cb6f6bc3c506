//go:build !windows

package applock

import (
	"time"

	"golang.org/x/sys/unix"
)

// touchPath refreshes a marker file's mtime via a direct unix.Utimes call,
// avoiding the stat-then-open round trip os.Chtimes does internally.
func touchPath(path string) error {
	now := time.Now()
	tv := []unix.Timeval{
		unix.NsecToTimeval(now.UnixNano()),
		unix.NsecToTimeval(now.UnixNano()),
	}
	return unix.Utimes(path, tv)
}
