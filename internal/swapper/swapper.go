// Package swapper implements BootstrapSwapper: the transactional install
// and uninstall state machines that move a version directory through
// ABSENT -> STAGED -> INSTALLED -> READY and, in reverse, READY ->
// DISABLED -> PURGED.
package swapper

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"

	"github.com/eskygo/eskygo/internal/appdir"
	"github.com/eskygo/eskygo/internal/eskylog"
	"github.com/eskygo/eskygo/internal/fsops"
	"github.com/eskygo/eskygo/internal/fstxn"
	"github.com/eskygo/eskygo/internal/metrics"
	"github.com/eskygo/eskygo/internal/verstore"
)

var log = eskylog.For("swapper")

// ErrVersionLocked is returned by Uninstall when the target version's files
// are currently in use (a locked executable on Windows, or a held advisory
// lock on lockfile.txt elsewhere).
var ErrVersionLocked = errors.New("swapper: version is in use")

const (
	controlDir   = verstore.ControlDirPrefix
	bootstrapDir = "bootstrap"
	overwriteDir = "overwrite"
	manifestName = "bootstrap-manifest.txt"
	oldManifest  = "bootstrap-manifest-old.txt"
	lockfileName = "lockfile.txt"
)

// Install moves a staged version directory produced by a VersionFinder into
// the versions root and swaps its bootstrap files into the appdir, taking
// the version from STAGED through INSTALLED to READY. stagingDir must
// already be named "<name>-<version>-<platform>".
func Install(appdirPath, versionsRoot, stagingDir string) (dirname string, err error) {
	dirname = filepath.Base(stagingDir)
	if _, err := appdir.Split(dirname); err != nil {
		return "", fmt.Errorf("swapper: %w", err)
	}

	target := filepath.Join(versionsRoot, dirname)
	if _, err := os.Stat(target); err != nil {
		if !os.IsNotExist(err) {
			return "", err
		}
		if err := fsops.Rename(stagingDir, target); err != nil {
			return "", fmt.Errorf("swapper: stage version: %w", err)
		}
		log.Debugf("staged %s into %s", dirname, versionsRoot)
	}

	manifest, err := appdir.ReadManifest(filepath.Join(target, controlDir, manifestName))
	if err != nil {
		return "", fmt.Errorf("swapper: read manifest for %s: %w", dirname, err)
	}

	txn := fstxn.New(appdirPath)
	bootstrap := filepath.Join(target, controlDir, bootstrapDir)
	overwrite := filepath.Join(target, controlDir, overwriteDir)

	var parents []string
	for nm := range manifest {
		bssrc := filepath.Join(bootstrap, filepath.FromSlash(nm))
		bsdst := filepath.Join(appdirPath, filepath.FromSlash(nm))

		if _, err := os.Stat(bssrc); err != nil {
			continue // nothing staged for this manifest entry
		}

		if err := planOne(txn, bssrc, bsdst, overwrite, nm); err != nil {
			return "", fmt.Errorf("swapper: plan %s: %w", nm, err)
		}

		for d := filepath.Dir(bssrc); len(d) > len(bootstrap); d = filepath.Dir(d) {
			parents = append(parents, d)
		}
	}
	// Staging subdirectories are emptied by the moves above, so remove them
	// after those moves, deepest first, before the bootstrap root itself.
	sort.Slice(parents, func(i, j int) bool { return len(parents[i]) > len(parents[j]) })
	for _, d := range parents {
		_ = txn.Remove(d)
	}
	_ = txn.Remove(bootstrap)

	if err := txn.Commit(); err != nil {
		metrics.Installs.WithLabelValues(appdirPath, "failure").Inc()
		return "", fmt.Errorf("swapper: install %s: %w", dirname, err)
	}
	metrics.Installs.WithLabelValues(appdirPath, "success").Inc()
	log.Infof("installed %s", dirname)
	return dirname, nil
}

// planOne records the move/remove operations for a single bootstrap file,
// following the byte-equal / safe-overwrite / direct-move decision from the
// install state machine's STAGED -> INSTALLED step.
func planOne(txn *fstxn.Txn, bssrc, bsdst, overwriteRoot, nm string) error {
	if _, err := os.Stat(bsdst); err != nil {
		if os.IsNotExist(err) {
			return txn.Move(bssrc, bsdst)
		}
		return err
	}

	identical, err := fsops.FilesIdentical(bssrc, bsdst)
	if err != nil {
		return err
	}
	if identical {
		return txn.Remove(bssrc)
	}

	if runtime.GOOS == "windows" && !safeToOverwrite(bsdst) {
		ovrdst := filepath.Join(overwriteRoot, filepath.FromSlash(nm))
		if err := os.MkdirAll(filepath.Dir(ovrdst), 0o755); err != nil {
			return err
		}
		return txn.Move(bssrc, ovrdst)
	}
	return txn.Move(bssrc, bsdst)
}

// safeToOverwrite reports whether bsdst can be replaced directly rather
// than deferred. planOne consults it only on Windows. It always returns
// false, so on Windows every existing, differing bootstrap file is routed
// into the overwrite area instead of being replaced in place.
func safeToOverwrite(path string) bool {
	return false
}

func dirIsEmpty(path string) (bool, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return false, err
	}
	return len(entries) == 0, nil
}
