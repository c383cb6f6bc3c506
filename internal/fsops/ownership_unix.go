//go:build !windows

package fsops

import (
	"os"
	"syscall"
)

// CopyOwnership sets dst's owning uid/gid and mode to match src's, the way
// esky's copy_ownership_info keeps a freshly fetched version's permissions
// consistent with the version it replaces. Best-effort: failures (e.g. not
// running as root) are swallowed, matching the original's use — this is a
// courtesy, not a security boundary.
func CopyOwnership(src, dst string) {
	info, err := os.Stat(src)
	if err != nil {
		return
	}
	if err := os.Chmod(dst, info.Mode()); err != nil {
		return
	}
	if stat, ok := info.Sys().(*syscall.Stat_t); ok {
		_ = os.Chown(dst, int(stat.Uid), int(stat.Gid))
	}
}
