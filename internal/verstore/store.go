// Package verstore implements VersionStore: enumeration and selection of
// installed version directories under an appdir, across both the legacy
// layout (version directories directly under the appdir) and the current
// layout (version directories under an "appdata" child).
package verstore

import (
	"os"
	"path/filepath"

	"github.com/eskygo/eskygo/internal/appdir"
	"github.com/eskygo/eskygo/internal/eskylog"
)

var log = eskylog.For("verstore")

// ChildLayoutDir is the name of the child directory current-layout appdirs
// keep their version directories under.
const ChildLayoutDir = "appdata"

// ControlDirPrefix names the per-version control directory esky-files lives
// under; directories with this prefix are never candidate version
// directories themselves.
const ControlDirPrefix = "esky-files"

// State is a version directory's position in the install/uninstall state
// machine, inferred from which control files are present.
type State int

const (
	// StateAbsent is never returned by ListAll; it exists only as the
	// zero value for callers reasoning about a version that might not be
	// on disk at all.
	StateAbsent State = iota
	StateStaged
	StateInstalled
	StateReady
	StateDisabled
	StatePurged
)

func (s State) String() string {
	switch s {
	case StateStaged:
		return "staged"
	case StateInstalled:
		return "installed"
	case StateReady:
		return "ready"
	case StateDisabled:
		return "disabled"
	case StatePurged:
		return "purged"
	default:
		return "absent"
	}
}

// Entry is one version directory found by ListAll.
type Entry struct {
	Dirname string
	Ref     appdir.Ref
	State   State
}

// Store enumerates and selects version directories for a single appdir.
type Store struct {
	Appdir string

	// versionsRoot is the legacy appdir itself or its appdata child,
	// decided once by Open based on what's actually on disk.
	versionsRoot string
}

// Open inspects appdir and decides which layout's versions root to use: the
// child appdata/ directory is preferred whenever it contains at least one
// complete installed version; otherwise the legacy root (the appdir
// itself) is used so existing legacy installs keep working.
func Open(appdirPath string) (*Store, error) {
	s := &Store{Appdir: appdirPath}

	childRoot := filepath.Join(appdirPath, ChildLayoutDir)
	if hasInstalledVersion(childRoot) {
		s.versionsRoot = childRoot
		return s, nil
	}
	s.versionsRoot = appdirPath
	return s, nil
}

// VersionsRoot returns the directory version directories are enumerated
// from — either appdir itself or its appdata child.
func (s *Store) VersionsRoot() string { return s.versionsRoot }

// OpenAt builds a Store rooted at an explicit versions root, bypassing the
// layout-selection heuristic Open uses. The cleanup engine uses this to
// inspect the legacy root and the appdata child independently when
// deciding whether a layout migration is needed.
func OpenAt(appdirPath, root string) *Store {
	return &Store{Appdir: appdirPath, versionsRoot: root}
}

func hasInstalledVersion(root string) bool {
	entries, err := os.ReadDir(root)
	if err != nil {
		return false
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if st := stateOf(root, e.Name()); st >= StateInstalled && st <= StateReady {
			return true
		}
	}
	return false
}

// ListAll yields every candidate version directory under the versions
// root, together with its parsed name and inferred state.
func (s *Store) ListAll() ([]Entry, error) {
	dirents, err := os.ReadDir(s.versionsRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var out []Entry
	for _, e := range dirents {
		if !e.IsDir() {
			continue
		}
		ref, err := appdir.Split(e.Name())
		if err != nil {
			continue // not a version directory; ignore silently
		}
		out = append(out, Entry{
			Dirname: e.Name(),
			Ref:     ref,
			State:   stateOf(s.versionsRoot, e.Name()),
		})
	}
	return out, nil
}

// BestVersion returns the entry with the highest version among those in
// StateReady, or, when includePartial is set, among any state >=
// StateInstalled. Returns (Entry{}, false) if there is no candidate.
func (s *Store) BestVersion(includePartial bool) (Entry, bool) {
	entries, err := s.ListAll()
	if err != nil {
		log.Warnf("list versions under %s: %v", s.versionsRoot, err)
		return Entry{}, false
	}

	var best Entry
	found := false
	for _, e := range entries {
		ok := e.State == StateReady
		if includePartial {
			ok = e.State >= StateInstalled && e.State <= StateReady
		}
		if !ok {
			continue
		}
		bv, _ := appdir.ParseVersion(best.Ref.Version)
		ev, _ := appdir.ParseVersion(e.Ref.Version)
		if !found || appdir.Compare(ev, bv) > 0 {
			best = e
			found = true
		}
	}
	return best, found
}

// ManifestOf reads the bootstrap manifest for the given version directory,
// returning an empty manifest if none is present.
func (s *Store) ManifestOf(dirname string) (map[string]struct{}, error) {
	path := filepath.Join(s.versionsRoot, dirname, ControlDirPrefix, "bootstrap-manifest.txt")
	return appdir.ReadManifest(path)
}

// stateOf infers a version directory's lifecycle state from which control
// files it has: presence of a bootstrap/ subdirectory means the version is
// still STAGED (pre-swap); presence of bootstrap-manifest-old.txt without a
// bootstrap-manifest.txt means the version has been uninstalled and is
// DISABLED awaiting purge; otherwise a bootstrap-manifest.txt means the
// version has progressed to INSTALLED or beyond (the swapper distinguishes
// INSTALLED from READY transiently, tracked only in memory during a single
// install call, so the store reports READY for any on-disk version with a
// committed manifest and no leftover bootstrap/ directory).
func stateOf(root, dirname string) State {
	control := filepath.Join(root, dirname, ControlDirPrefix)

	if _, err := os.Stat(filepath.Join(control, "bootstrap")); err == nil {
		return StateStaged
	}
	manifestExists := fileExists(filepath.Join(control, "bootstrap-manifest.txt"))
	oldManifestExists := fileExists(filepath.Join(control, "bootstrap-manifest-old.txt"))

	switch {
	case manifestExists:
		return StateReady
	case oldManifestExists:
		return StateDisabled
	default:
		return StatePurged
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
