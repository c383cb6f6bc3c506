package updater

import (
	"sync"

	"github.com/eskygo/eskygo/internal/swapper"
)

var (
	startupHooksOnce sync.Once
	startupHooksRun  bool
	startupHooksMu   sync.Mutex
)

// RunStartupHooks must be called once, early, by every frozen application
// built on this package — before any other Updater method, and certainly
// before CleanupAtExit registers its respawn. It is idempotent: later
// calls are no-ops, and only the first call's error (if any) is ever
// returned.
//
// Its central responsibility is locking u's own active version directory,
// mirroring esky's run_startup_hooks -> _lock_version_dir(active vdir)
// (original_source/esky/__init__.py): the lock is taken here and held for
// the life of the process, which is what makes Uninstall's in-use check
// actually fire against a version this process is running from (spec.md
// §8 scenario 2, invariant P3). It also marks that startup has happened,
// so CleanupAtExit can refuse to run in a process that skipped it (a
// frozen app that never calls this is, by definition, not running from
// inside a managed version directory).
func (u *Updater) RunStartupHooks() error {
	var err error
	startupHooksOnce.Do(func() {
		err = u.lockActiveVersionDir()
		startupHooksMu.Lock()
		startupHooksRun = true
		startupHooksMu.Unlock()
		log.Debugf("startup hooks run")
	})
	return err
}

// lockActiveVersionDir locks u's current version directory, if one is
// known. An appdir with no installed version yet (a first-run helper
// before any version is staged) has nothing to lock.
func (u *Updater) lockActiveVersionDir() error {
	version, ok := u.CurrentVersion()
	if !ok {
		return nil
	}
	dir := u.installedPath(version)
	if dir == "" {
		return nil
	}
	return swapper.LockVersionDir(dir)
}

func startupHooksWereRun() bool {
	startupHooksMu.Lock()
	defer startupHooksMu.Unlock()
	return startupHooksRun
}
