package swapper

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/eskygo/eskygo/internal/appdir"
	"github.com/eskygo/eskygo/internal/fstxn"
	"github.com/eskygo/eskygo/internal/metrics"
)

// Uninstall demotes version dirname from READY to DISABLED: bootstrap
// paths belonging to dirname that no retained version also needs are
// removed from the appdir, then dirname's manifest is renamed to
// bootstrap-manifest-old.txt. retained is every other installed version's
// manifest, keyed by dirname, used to compute which paths are still
// needed.
//
// Uninstall never removes dirname itself; final deletion (DISABLED ->
// PURGED) is the cleanup engine's job, run lazily on a later pass.
func Uninstall(appdirPath, versionsRoot, dirname string, retained map[string]map[string]struct{}) error {
	target := filepath.Join(versionsRoot, dirname)
	control := filepath.Join(target, controlDir)

	manifest, err := appdir.ReadManifest(filepath.Join(control, manifestName))
	if err != nil {
		return fmt.Errorf("swapper: read manifest for %s: %w", dirname, err)
	}

	stillNeeded := make(map[string]struct{})
	for _, m := range retained {
		for nm := range m {
			stillNeeded[nm] = struct{}{}
		}
	}

	lockPath := filepath.Join(control, lockfileName)
	inUse, err := versionInUse(lockPath)
	if err != nil {
		return fmt.Errorf("swapper: check %s in use: %w", dirname, err)
	}
	if inUse {
		return fmt.Errorf("%w: %s", ErrVersionLocked, dirname)
	}

	txn := fstxn.New(appdirPath)
	removedParents := make(map[string]struct{})
	for nm := range manifest {
		if _, keep := stillNeeded[nm]; keep {
			continue
		}
		path := filepath.Join(appdirPath, filepath.FromSlash(nm))
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := txn.Remove(path); err != nil {
			return err
		}
		removedParents[filepath.Dir(path)] = struct{}{}
	}
	for parent := range removedParents {
		if empty, _ := dirIsEmpty(parent); empty && parent != appdirPath {
			_ = txn.Remove(parent)
		}
	}

	manifestPath := filepath.Join(control, manifestName)
	oldManifestPath := filepath.Join(control, oldManifest)
	if err := txn.Move(manifestPath, oldManifestPath); err != nil {
		return err
	}

	if err := txn.Commit(); err != nil {
		metrics.Uninstalls.WithLabelValues(appdirPath, "failure").Inc()
		return fmt.Errorf("swapper: uninstall %s: %w", dirname, err)
	}
	metrics.Uninstalls.WithLabelValues(appdirPath, "success").Inc()
	log.Infof("uninstalled %s (disabled, pending purge)", dirname)
	return nil
}

// Purge deletes a DISABLED version directory entirely: PURGED is terminal
// and irreversible, so it bypasses FSTransaction and simply removes the
// tree.
func Purge(versionsRoot, dirname string) error {
	target := filepath.Join(versionsRoot, dirname)
	if err := os.RemoveAll(target); err != nil {
		return fmt.Errorf("swapper: purge %s: %w", dirname, err)
	}
	log.Infof("purged %s", dirname)
	return nil
}
