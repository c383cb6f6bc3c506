//go:build windows

package fsops

import "os"

// platformRename implements the remove-then-rename dance FSTransaction's
// cross-platform note requires on Windows, where os.Rename cannot replace
// an existing destination.
func platformRename(from, to string) error {
	if err := os.Remove(to); err != nil && !os.IsNotExist(err) {
		return err
	}
	return os.Rename(from, to)
}
