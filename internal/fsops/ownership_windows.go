//go:build windows

package fsops

// CopyOwnership is a no-op on Windows; ACL replication isn't attempted here,
// matching esky's original copy_ownership_info which only ever did
// anything on POSIX (os.chown has no Windows equivalent in the stdlib).
func CopyOwnership(src, dst string) {}
