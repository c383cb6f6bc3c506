package updater

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/eskygo/eskygo/internal/fsops"
	"github.com/eskygo/eskygo/internal/swapper"
	"github.com/eskygo/eskygo/internal/verstore"
)

// FetchVersion retrieves version via the attached VersionFinder (checking
// HasVersion first so an already-staged version isn't re-downloaded), then
// adjusts the staging directory's ownership/permissions to match the
// current installed version, mirroring esky's fetch_version.
func (u *Updater) FetchVersion(ctx context.Context, version string, progress ProgressFunc) (string, error) {
	if u.Proxy != nil {
		return u.Proxy.FetchVersion(ctx, u.AppName, version, progress)
	}
	if u.Finder == nil {
		return "", ErrNoVersionFinder
	}

	if path, ok, err := u.Finder.HasVersion(u.AppName, version); err != nil {
		return "", fmt.Errorf("%w: %v", ErrTransport, err)
	} else if ok {
		return path, nil
	}

	path, err := u.Finder.FetchVersion(ctx, u.AppName, version, progress)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTransport, err)
	}

	if curVersion, ok := u.CurrentVersion(); ok {
		refTarget := u.installedPath(curVersion)
		if _, statErr := os.Stat(refTarget); statErr == nil {
			fsops.CopyOwnership(refTarget, path)
		}
	}
	return path, nil
}

// InstallVersion fetches version if it is not already staged, then invokes
// the bootstrap swapper to install it.
func (u *Updater) InstallVersion(ctx context.Context, version string) error {
	if u.Proxy != nil {
		return u.Proxy.InstallVersion(version)
	}

	unlock, err := u.lockOrProxy()
	if err != nil {
		return err
	}
	defer unlock()

	staged, err := u.FetchVersion(ctx, version, nil)
	if err != nil {
		return err
	}

	store, err := verstore.Open(u.Appdir)
	if err != nil {
		return err
	}
	versionsRoot, err := u.appdataRootFor(store)
	if err != nil {
		return err
	}
	if _, err := swapper.Install(u.Appdir, versionsRoot, staged); err != nil {
		return err
	}
	return u.Reinitialize()
}

// appdataRootFor returns the versions root a fresh install should land in.
// If store is still on the legacy layout (versions directly under the
// appdir), this is install_version's chance to migrate: the appdata/ child
// is created eagerly (mirroring esky's install_version, which mkdirs it
// and redirects the install target the moment it notices vsdir == appdir,
// rather than waiting for a later cleanup pass), and every subsequent
// install lands there instead.
func (u *Updater) appdataRootFor(store *verstore.Store) (string, error) {
	root := store.VersionsRoot()
	if root != u.Appdir {
		return root, nil
	}
	appdataRoot := filepath.Join(u.Appdir, verstore.ChildLayoutDir)
	if err := os.MkdirAll(appdataRoot, 0o755); err != nil {
		return "", fmt.Errorf("updater: create %s: %w", appdataRoot, err)
	}
	fsops.CopyOwnership(u.Appdir, appdataRoot)
	return appdataRoot, nil
}

// UninstallVersion demotes version to DISABLED, computing the retained
// manifest set from every other READY version still on disk.
func (u *Updater) UninstallVersion(version string) error {
	if u.Proxy != nil {
		return u.Proxy.UninstallVersion(version)
	}

	unlock, err := u.lockOrProxy()
	if err != nil {
		return err
	}
	defer unlock()

	store, err := verstore.Open(u.Appdir)
	if err != nil {
		return err
	}
	entries, err := store.ListAll()
	if err != nil {
		return err
	}
	roots := make(map[string]string, len(entries)) // dirname -> versions root
	for _, e := range entries {
		roots[e.Dirname] = store.VersionsRoot()
	}

	// A version installed before appdataRootFor's eager migration can still
	// be sitting in the legacy root even though store now resolves to
	// appdata/; fall back to the legacy root so it stays reachable.
	if store.VersionsRoot() != u.Appdir {
		legacy := verstore.OpenAt(u.Appdir, u.Appdir)
		legacyEntries, err := legacy.ListAll()
		if err != nil {
			return err
		}
		for _, e := range legacyEntries {
			if e.Ref.Version == version {
				entries = append(entries, e)
				roots[e.Dirname] = u.Appdir
				break
			}
		}
	}

	var target *verstore.Entry
	retained := make(map[string]map[string]struct{})
	for i := range entries {
		e := &entries[i]
		if e.Ref.Version == version {
			target = e
			continue
		}
		if e.State == verstore.StateReady {
			m, err := verstore.OpenAt(u.Appdir, roots[e.Dirname]).ManifestOf(e.Dirname)
			if err == nil {
				retained[e.Dirname] = m
			}
		}
	}
	if target == nil {
		return fmt.Errorf("updater: version %q is not installed", version)
	}

	return swapper.Uninstall(u.Appdir, roots[target.Dirname], target.Dirname, retained)
}

// AutoUpdate runs the convenience sequence: find -> fetch -> install ->
// uninstall(previous current) -> reinitialize -> cleanup. The install and
// uninstall sub-steps go through withPermissionRetry: a PermissionDenied
// error is retried once, and only when a PrivilegedProxy is attached. No
// proxy is acquired or released here; with one attached, both attempts
// already run through it.
func (u *Updater) AutoUpdate(ctx context.Context, progress ProgressFunc) (installed string, err error) {
	version, found, err := u.FindUpdate(ctx)
	if err != nil {
		return "", err
	}
	if !found {
		return "", nil
	}

	prevVersion, hadPrev := u.CurrentVersion()

	if err := u.withPermissionRetry(func() error {
		return u.InstallVersion(ctx, version)
	}); err != nil {
		return "", fmt.Errorf("updater: install %s: %w", version, err)
	}

	if hadPrev && prevVersion != version {
		if err := u.withPermissionRetry(func() error {
			return u.UninstallVersion(prevVersion)
		}); err != nil {
			log.Warnf("auto_update: failed to uninstall previous version %s: %v", prevVersion, err)
		}
	}

	if err := u.Reinitialize(); err != nil {
		return version, err
	}

	if _, err := u.Cleanup(); err != nil {
		log.Warnf("auto_update: cleanup after installing %s reported errors: %v", version, err)
	}
	return version, nil
}

// withPermissionRetry runs fn; if it fails with a permission error and a
// PrivilegedProxy is attached, it calls fn exactly once more. The Updater
// methods fn calls already route through an attached proxy, so the retry
// takes the same route as the first attempt.
func (u *Updater) withPermissionRetry(fn func() error) error {
	err := fn()
	if err == nil || u.Proxy == nil {
		return err
	}
	if !errors.Is(err, os.ErrPermission) {
		return err
	}
	log.Infof("permission denied, retrying via privileged proxy")
	return fn()
}

func (u *Updater) installedPath(version string) string {
	store, err := verstore.Open(u.Appdir)
	if err != nil {
		return ""
	}
	entries, err := store.ListAll()
	if err != nil {
		return ""
	}
	for _, e := range entries {
		if e.Ref.Version == version {
			return filepath.Join(store.VersionsRoot(), e.Dirname)
		}
	}
	return ""
}
