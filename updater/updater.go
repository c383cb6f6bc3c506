// Package updater implements Updater, the façade an embedding application
// calls to discover, fetch, install, and retire versions of itself, and to
// reconcile its appdir via the cleanup engine.
package updater

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/eskygo/eskygo/internal/appdir"
	"github.com/eskygo/eskygo/internal/applock"
	"github.com/eskygo/eskygo/internal/cleanup"
	"github.com/eskygo/eskygo/internal/eskylog"
	"github.com/eskygo/eskygo/internal/swapper"
	"github.com/eskygo/eskygo/internal/verstore"
)

var log = eskylog.For("updater")

var (
	// ErrBroken means the appdir has no usable installed version at all.
	ErrBroken = errors.New("updater: appdir has no usable installed version")
	// ErrNoVersionFinder is returned by any operation that needs to
	// discover or fetch versions when no VersionFinder is attached.
	ErrNoVersionFinder = errors.New("updater: no VersionFinder attached")
	// ErrTransport wraps a VersionFinder failure to fetch or enumerate
	// versions; the returned error matches ErrTransport under errors.Is
	// and carries the original error's text in its message, but does not
	// wrap the original error itself.
	ErrTransport = errors.New("updater: version finder transport error")

	// ErrLockBusy and ErrVersionLocked are re-exported so callers don't
	// need to import internal/applock or internal/swapper to use
	// errors.Is against them.
	ErrLockBusy      = applock.ErrLockBusy
	ErrVersionLocked = swapper.ErrVersionLocked
)

// Status reports fetch progress. Stage is a short machine-readable label
// ("downloading", "extracting", ...); Fraction is in [0,1] when known, or
// negative when indeterminate.
type Status struct {
	Stage    string
	Fraction float64
	Path     string
}

// ProgressFunc is polled during FetchVersion; returning false cancels the
// fetch, per the VersionFinder contract's cancellation rule.
type ProgressFunc func(Status) bool

// VersionFinder is the collaborator that knows how to discover and
// retrieve versions of the app from wherever they're published.
type VersionFinder interface {
	// FindVersions returns every version string the finder currently
	// knows about for appName, in no particular order.
	FindVersions(ctx context.Context, appName string) ([]string, error)
	// HasVersion reports whether version is already staged locally,
	// returning its staging directory path if so.
	HasVersion(appName, version string) (path string, ok bool, err error)
	// FetchVersion retrieves version, invoking progress as it goes, and
	// returns the path to the fully built staging directory.
	FetchVersion(ctx context.Context, appName, version string, progress ProgressFunc) (string, error)
	// NeedsCleanup reports whether the finder is holding onto state
	// (cached indices, partial downloads) worth reclaiming.
	NeedsCleanup() bool
	// Cleanup reclaims whatever NeedsCleanup flagged.
	Cleanup() error
}

// PrivilegedProxy mirrors every mutating Updater operation, running it
// with elevated privileges on the caller's behalf. Attach one when
// installs/uninstalls need permissions the current process lacks.
type PrivilegedProxy interface {
	Lock() error
	Unlock() error
	HasRoot() bool
	FetchVersion(ctx context.Context, appName, version string, progress ProgressFunc) (string, error)
	InstallVersion(version string) error
	UninstallVersion(version string) error
	Cleanup() (cleanup.Result, error)
	CleanupAtExit() error
}

// Updater is the façade bound to a single appdir.
type Updater struct {
	Appdir  string
	AppName string
	Finder  VersionFinder
	Proxy   PrivilegedProxy

	lock *applock.Lock

	mu      sync.Mutex
	current appdir.Ref
	hasCur  bool
}

// Open constructs an Updater for appdirPath and immediately loads the
// current best version via Reinitialize. finder may be nil if the embedder
// only needs uninstall and cleanup; without one, FindUpdate, FetchVersion
// and InstallVersion return ErrNoVersionFinder.
func Open(appdirPath, appName string, finder VersionFinder) (*Updater, error) {
	u := &Updater{
		Appdir:  appdirPath,
		AppName: appName,
		Finder:  finder,
		lock:    applock.New(appdirPath),
	}
	if err := u.Reinitialize(); err != nil {
		return nil, err
	}
	return u, nil
}

// Attach binds a PrivilegedProxy; every mutating method is re-issued
// through it from this point on instead of running locally.
func (u *Updater) Attach(proxy PrivilegedProxy) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.Proxy = proxy
}

// Reinitialize refreshes the in-memory current-version pointer from the
// on-disk VersionStore. Call after any external change to the appdir (for
// example, after a CleanupAtExit child process has run).
func (u *Updater) Reinitialize() error {
	store, err := verstore.Open(u.Appdir)
	if err != nil {
		return fmt.Errorf("updater: open version store: %w", err)
	}
	best, ok := store.BestVersion(false)

	u.mu.Lock()
	defer u.mu.Unlock()
	if !ok {
		u.hasCur = false
		return nil
	}
	u.current = best.Ref
	u.hasCur = true
	return nil
}

// CurrentVersion returns the active version string and whether one is
// known. An appdir with no installed version is not itself an error —
// ErrBroken is reserved for operations that require a current version.
func (u *Updater) CurrentVersion() (string, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if !u.hasCur {
		return "", false
	}
	return u.current.Version, true
}

// RequireInstalled returns ErrBroken if the appdir currently has no
// installed version to run from. Embedders call this at startup before
// trusting the appdir to serve the running application.
func (u *Updater) RequireInstalled() error {
	if _, ok := u.CurrentVersion(); !ok {
		return ErrBroken
	}
	return nil
}

// FindUpdate queries the attached VersionFinder and returns the highest
// version strictly greater than the current one, if any.
func (u *Updater) FindUpdate(ctx context.Context) (string, bool, error) {
	if u.Finder == nil {
		return "", false, ErrNoVersionFinder
	}
	versions, err := u.Finder.FindVersions(ctx, u.AppName)
	if err != nil {
		return "", false, fmt.Errorf("%w: %v", ErrTransport, err)
	}

	curStr, hasCur := u.CurrentVersion()
	var cur appdir.Version
	if hasCur {
		cur, _ = appdir.ParseVersion(curStr)
	}

	var best string
	var bestV appdir.Version
	found := false
	for _, v := range versions {
		pv, _ := appdir.ParseVersion(v)
		if hasCur && appdir.Compare(pv, cur) <= 0 {
			continue
		}
		if !found || appdir.Compare(pv, bestV) > 0 {
			best, bestV, found = v, pv, true
		}
	}
	return best, found, nil
}

func (u *Updater) lockOrProxy() (func(), error) {
	if u.Proxy != nil {
		if err := u.Proxy.Lock(); err != nil {
			return nil, err
		}
		return func() { _ = u.Proxy.Unlock() }, nil
	}
	if err := u.lock.Acquire(); err != nil {
		return nil, err
	}
	return func() { _ = u.lock.Release() }, nil
}
