// Package cleanup implements CleanupEngine: idempotent reconciliation of an
// appdir's versions directory, run under the AppdirLock. Each pass
// completes partial installs, migrates legacy layouts, retires obsolete
// versions, applies deferred overwrites, and gives the attached
// VersionFinder a chance to purge its own cache.
package cleanup

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/eskygo/eskygo/internal/eskylog"
	"github.com/eskygo/eskygo/internal/fsops"
	"github.com/eskygo/eskygo/internal/metrics"
	"github.com/eskygo/eskygo/internal/swapper"
	"github.com/eskygo/eskygo/internal/verstore"
)

var log = eskylog.For("cleanup")

// Finder is the subset of the VersionFinder collaborator interface the
// cleanup engine needs: the ability to report whether it is holding onto
// stale cache state, and to purge it.
type Finder interface {
	NeedsCleanup() bool
	Cleanup() error
}

// Result summarizes one cleanup pass. FullyCleaned is false whenever any
// step failed; per spec, a failing step never aborts the pass — it is
// recorded here and the remaining independent steps still run.
type Result struct {
	FullyCleaned bool
	Errors       []error
}

// Engine runs one reconciliation pass over a single appdir.
type Engine struct {
	Appdir string
	// Active is the dirname of the currently executing version, if any.
	// Per I4 it is never retired even if another version is "best".
	Active string
	Finder Finder
}

// New returns an Engine for appdirPath. active may be empty if the caller
// is not running from inside a version directory (e.g. a maintenance CLI).
func New(appdirPath, active string, finder Finder) *Engine {
	return &Engine{Appdir: appdirPath, Active: active, Finder: finder}
}

// Run executes one cleanup pass. Each action is independent: an error in
// one is recorded and the rest still run, matching CleanupEngine's "never
// raises" propagation policy.
func (e *Engine) Run() Result {
	start := time.Now()
	res := Result{FullyCleaned: true}

	steps := []struct {
		name string
		fn   func() error
	}{
		{"complete partial installs", e.completePartialInstalls},
		{"migrate layout", e.migrateLayout},
		{"delete retired versions", e.deleteRetiredVersions},
		{"apply deferred overwrites", e.applyDeferredOverwrites},
		{"delegate to version finder", e.delegateToFinder},
	}
	for _, step := range steps {
		if err := step.fn(); err != nil {
			res.FullyCleaned = false
			res.Errors = append(res.Errors, fmt.Errorf("%s: %w", step.name, err))
			log.Warnf("cleanup step %q failed: %v", step.name, err)
		}
	}

	metrics.CleanupDuration.WithLabelValues(e.Appdir).Observe(time.Since(start).Seconds())
	metrics.CleanupRuns.WithLabelValues(e.Appdir, strconv.FormatBool(res.FullyCleaned)).Inc()
	return res
}

func (e *Engine) completePartialInstalls() error {
	store, err := verstore.Open(e.Appdir)
	if err != nil {
		return err
	}
	ready, hasReady := store.BestVersion(false)
	partial, hasPartial := store.BestVersion(true)
	if !hasPartial || (hasReady && partial.Dirname == ready.Dirname) {
		return nil
	}

	target := filepath.Join(store.VersionsRoot(), partial.Dirname)
	if _, err := swapper.Install(e.Appdir, store.VersionsRoot(), target); err != nil {
		return fmt.Errorf("finish installing %s: %w", partial.Dirname, err)
	}
	log.Infof("completed partial install of %s", partial.Dirname)
	return nil
}

func (e *Engine) migrateLayout() error {
	legacy := verstore.OpenAt(e.Appdir, e.Appdir)
	best, ok := legacy.BestVersion(true)
	if !ok {
		return nil // nothing installed under the legacy root; nothing to migrate
	}

	// Per-pass idempotence: if the appdata/ store already has its own
	// complete version, a prior pass (or install_version's own eager
	// migration) already did this.
	current, err := verstore.Open(e.Appdir)
	if err != nil {
		return err
	}
	if current.VersionsRoot() != e.Appdir {
		return nil
	}

	appdataRoot := filepath.Join(e.Appdir, verstore.ChildLayoutDir)
	if err := os.MkdirAll(appdataRoot, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", appdataRoot, err)
	}
	fsops.CopyOwnership(e.Appdir, appdataRoot)

	target := filepath.Join(e.Appdir, best.Dirname)
	if _, err := swapper.Install(e.Appdir, appdataRoot, target); err != nil {
		return fmt.Errorf("migrate %s to appdata layout: %w", best.Dirname, err)
	}
	log.Infof("migrated %s from legacy layout to appdata layout", best.Dirname)
	return nil
}

// locatedEntry pairs a verstore.Entry with the root it was found under, so
// deleteRetiredVersions can sweep the legacy root and the appdata root
// together once a layout migration has split versions across both.
type locatedEntry struct {
	verstore.Entry
	root string
}

func (e *Engine) deleteRetiredVersions() error {
	store, err := verstore.Open(e.Appdir)
	if err != nil {
		return err
	}
	entries, err := store.ListAll()
	if err != nil {
		return err
	}

	all := make([]locatedEntry, 0, len(entries))
	for _, ent := range entries {
		all = append(all, locatedEntry{ent, store.VersionsRoot()})
	}

	// migrateLayout relocates only the best version into appdata/, which
	// can strand an obsolete version in the legacy root once the store
	// has switched to reading from appdata/ — sweep that root too, the
	// same way the original scans both its old and new versions
	// directories in one pass.
	if store.VersionsRoot() != e.Appdir {
		legacy := verstore.OpenAt(e.Appdir, e.Appdir)
		legacyEntries, err := legacy.ListAll()
		if err != nil {
			return err
		}
		for _, ent := range legacyEntries {
			all = append(all, locatedEntry{ent, e.Appdir})
		}
	}

	best, hasBest := store.BestVersion(false)

	// Build the retained-manifest set referenced by Uninstall from every
	// READY version, the best and active versions included, so uninstalling
	// an obsolete version never removes a bootstrap path they still list.
	retained := make(map[string]map[string]struct{})
	for _, le := range all {
		if le.State == verstore.StateReady {
			m, err := verstore.OpenAt(e.Appdir, le.root).ManifestOf(le.Dirname)
			if err == nil {
				retained[le.Dirname] = m
			}
		}
	}

	var firstErr error
	for _, le := range all {
		if le.Dirname == e.Active {
			continue // I4: never touch the active version
		}
		if hasBest && le.Dirname == best.Dirname {
			continue
		}

		switch le.State {
		case verstore.StateDisabled:
			if err := swapper.Purge(le.root, le.Dirname); err != nil {
				if firstErr == nil {
					firstErr = err
				}
			}
		case verstore.StateReady:
			others := make(map[string]map[string]struct{}, len(retained))
			for k, v := range retained {
				if k != le.Dirname {
					others[k] = v
				}
			}
			if err := swapper.Uninstall(e.Appdir, le.root, le.Dirname, others); err != nil {
				if firstErr == nil {
					firstErr = fmt.Errorf("uninstall obsolete %s: %w", le.Dirname, err)
				}
				continue
			}
			if err := swapper.Purge(le.root, le.Dirname); err != nil {
				if firstErr == nil {
					firstErr = err
				}
			}
		default:
			// StateStaged/StatePurged: either mid-install (left for the
			// next completePartialInstalls pass) or already gone.
		}
	}
	return firstErr
}

func (e *Engine) applyDeferredOverwrites() error {
	store, err := verstore.Open(e.Appdir)
	if err != nil {
		return err
	}
	best, ok := store.BestVersion(false)
	if !ok {
		return nil
	}

	overwriteRoot := filepath.Join(store.VersionsRoot(), best.Dirname, "esky-files", "overwrite")
	info, err := os.Stat(overwriteRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if !info.IsDir() {
		return nil
	}

	var firstErr error
	err = filepath.Walk(overwriteRoot, func(path string, fi os.FileInfo, err error) error {
		if err != nil || fi.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(overwriteRoot, path)
		if err != nil {
			return nil
		}
		dst := filepath.Join(e.Appdir, rel)
		if err := fsops.Overwrite(path, dst); err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("apply deferred overwrite %s: %w", rel, err)
			}
			return nil
		}
		if err := os.Remove(path); err != nil && firstErr == nil {
			firstErr = err
		}
		return nil
	})
	if err != nil && firstErr == nil {
		firstErr = err
	}
	pruneEmptyDirs(overwriteRoot)
	return firstErr
}

func (e *Engine) delegateToFinder() error {
	if e.Finder == nil {
		return nil
	}
	if !e.Finder.NeedsCleanup() {
		return nil
	}
	return e.Finder.Cleanup()
}

// pruneEmptyDirs removes now-empty directories under root, bottom-up,
// leaving root itself in place even if empty (the overwrite directory is
// expected to persist across cleanup passes).
func pruneEmptyDirs(root string) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		sub := filepath.Join(root, e.Name())
		pruneEmptyDirs(sub)
		if empty, _ := isEmptyDir(sub); empty {
			_ = os.Remove(sub)
		}
	}
}

func isEmptyDir(path string) (bool, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return false, err
	}
	return len(entries) == 0, nil
}
