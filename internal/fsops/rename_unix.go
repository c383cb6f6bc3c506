//go:build !windows

package fsops

import "os"

// platformRename relies on POSIX rename(2)'s atomic replace semantics.
func platformRename(from, to string) error {
	return os.Rename(from, to)
}
