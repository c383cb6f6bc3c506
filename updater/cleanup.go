package updater

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/eskygo/eskygo/internal/appdir"
	internalcleanup "github.com/eskygo/eskygo/internal/cleanup"
)

// cleanupAtExitEnv marks a process as the helper spawned by CleanupAtExit,
// the way syncthing's monitor sets STMONITORED to tell a respawned child
// it's already supervised.
const cleanupAtExitEnv = "ESKY_CLEANUP_CHILD"

// cleanupAtExitWait is how long the helper process sleeps before running,
// giving the parent time to exit and release its lock and open file
// handles on its own version directory.
const cleanupAtExitWait = time.Second

// finderCleaner adapts a VersionFinder (which also satisfies cleanup.Finder)
// for the engine; with a nil Finder its methods report no work and return
// nil.
type finderCleaner struct{ f VersionFinder }

func (fc finderCleaner) NeedsCleanup() bool {
	if fc.f == nil {
		return false
	}
	return fc.f.NeedsCleanup()
}

func (fc finderCleaner) Cleanup() error {
	if fc.f == nil {
		return nil
	}
	return fc.f.Cleanup()
}

// NeedsCleanup reports true when the appdir has no current version or when
// the attached VersionFinder has state of its own to reclaim. It does not
// inspect the appdir for partial installs, a pending layout migration,
// retirable versions or deferred overwrites.
func (u *Updater) NeedsCleanup() bool {
	_, hasCur := u.CurrentVersion()
	if !hasCur {
		return true
	}
	return finderCleaner{u.Finder}.NeedsCleanup()
}

// Cleanup runs one reconciliation pass under the AppdirLock.
func (u *Updater) Cleanup() (internalcleanup.Result, error) {
	if u.Proxy != nil {
		return u.Proxy.Cleanup()
	}

	unlock, err := u.lockOrProxy()
	if err != nil {
		return internalcleanup.Result{}, err
	}
	defer unlock()

	u.mu.Lock()
	active := ""
	if u.hasCur {
		active = appdir.Join(u.current)
	}
	u.mu.Unlock()
	engine := internalcleanup.New(u.Appdir, active, finderCleaner{u.Finder})
	res := engine.Run()
	if err := u.Reinitialize(); err != nil {
		return res, err
	}
	return res, nil
}

// CleanupAtExit writes a control record describing this Updater and
// spawns a detached helper process that waits briefly for the current
// process to exit, then performs one cleanup pass and exits 0 on success
// or 1 on any error. It does not block: the helper runs independently of
// the caller's own exit.
func (u *Updater) CleanupAtExit() error {
	if !startupHooksWereRun() {
		panic("updater: CleanupAtExit called before RunStartupHooks")
	}
	if u.Proxy != nil {
		return u.Proxy.CleanupAtExit()
	}

	recordPath := filepath.Join(os.TempDir(), fmt.Sprintf("esky-cleanup-%d.yaml", os.Getpid()))
	// The helper hands ActiveVersion straight to the cleanup engine, which
	// compares it against version directory names.
	u.mu.Lock()
	active := ""
	if u.hasCur {
		active = appdir.Join(u.current)
	}
	u.mu.Unlock()
	if err := writeControlRecord(recordPath, controlRecord{
		Appdir:        u.Appdir,
		AppName:       u.AppName,
		ActiveVersion: active,
	}); err != nil {
		return fmt.Errorf("updater: write cleanup control record: %w", err)
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("updater: locate executable for cleanup helper: %w", err)
	}

	cmd := exec.Command(exe, "--"+cleanupHelperFlag, recordPath)
	cmd.Env = append(os.Environ(), cleanupAtExitEnv+"=1")
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("updater: spawn cleanup helper: %w", err)
	}
	log.Infof("spawned cleanup helper pid=%d for %s", cmd.Process.Pid, u.Appdir)
	return cmd.Process.Release()
}

// cleanupHelperFlag is the flag name CLI entry points should register so
// RunCleanupHelper gets invoked when re-exec'd by CleanupAtExit.
const cleanupHelperFlag = "esky-cleanup-helper"

// CleanupHelperFlagName exposes cleanupHelperFlag for cmd/eskyupdate.
func CleanupHelperFlagName() string { return cleanupHelperFlag }

// RunCleanupHelper is the entry point a respawned helper process should
// call immediately on startup when it finds cleanupAtExitEnv set. It waits
// for the parent to exit, reads back the control record, runs one cleanup
// pass, and returns an exit code: 0 on success, 1 on any error.
func RunCleanupHelper(recordPath string) int {
	time.Sleep(cleanupAtExitWait)

	rec, err := readControlRecord(recordPath)
	if err != nil {
		log.Errorf("cleanup helper: read control record: %v", err)
		return 1
	}
	defer os.Remove(recordPath)

	engine := internalcleanup.New(rec.Appdir, rec.ActiveVersion, nil)
	res := engine.Run()
	if !res.FullyCleaned {
		log.Warnf("cleanup helper: pass did not fully clean %s: %v", rec.Appdir, res.Errors)
		return 1
	}
	log.Infof("cleanup helper: %s fully cleaned", rec.Appdir)
	return 0
}
