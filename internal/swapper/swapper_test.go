package swapper

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/eskygo/eskygo/internal/verstore"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func stageVersion(t *testing.T, stagingRoot, dirname string, files map[string]string) string {
	t.Helper()
	vdir := filepath.Join(stagingRoot, dirname)
	control := filepath.Join(vdir, controlDir)
	bootstrap := filepath.Join(control, bootstrapDir)

	var manifest string
	for rel, content := range files {
		writeFile(t, filepath.Join(bootstrap, rel), content)
		manifest += rel + "\n"
	}
	writeFile(t, filepath.Join(control, manifestName), manifest)
	return vdir
}

func TestInstallFreshVersion(t *testing.T) {
	appdirPath := t.TempDir()
	stagingRoot := t.TempDir()

	vdir := stageVersion(t, stagingRoot, "myapp-1.0.0-linux-x86_64", map[string]string{
		"bin/myapp": "binary-contents",
		"lib/a.so":  "lib-contents",
	})

	dirname, err := Install(appdirPath, appdirPath, vdir)
	if err != nil {
		t.Fatalf("Install: %v", err)
	}
	if dirname != "myapp-1.0.0-linux-x86_64" {
		t.Errorf("got dirname %q", dirname)
	}

	for _, rel := range []string{"bin/myapp", "lib/a.so"} {
		if _, err := os.Stat(filepath.Join(appdirPath, rel)); err != nil {
			t.Errorf("expected %s installed in appdir: %v", rel, err)
		}
	}

	// bootstrap dir should be gone; version is READY.
	bootstrap := filepath.Join(appdirPath, dirname, controlDir, bootstrapDir)
	if _, err := os.Stat(bootstrap); !os.IsNotExist(err) {
		t.Errorf("expected bootstrap dir removed, stat err = %v", err)
	}

	s, err := verstore.Open(appdirPath)
	if err != nil {
		t.Fatalf("verstore.Open: %v", err)
	}
	best, ok := s.BestVersion(false)
	if !ok || best.Dirname != dirname {
		t.Errorf("expected %s to be best version, got %+v (ok=%v)", dirname, best, ok)
	}
}

func TestInstallSkipsIdenticalFiles(t *testing.T) {
	appdirPath := t.TempDir()
	stagingRoot := t.TempDir()

	writeFile(t, filepath.Join(appdirPath, "bin/myapp"), "same-contents")

	vdir := stageVersion(t, stagingRoot, "myapp-1.0.0-linux-x86_64", map[string]string{
		"bin/myapp": "same-contents",
	})

	if _, err := Install(appdirPath, appdirPath, vdir); err != nil {
		t.Fatalf("Install: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(appdirPath, "bin/myapp"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "same-contents" {
		t.Errorf("got %q", data)
	}
}

func TestUninstallDemotesToDisabled(t *testing.T) {
	appdirPath := t.TempDir()
	stagingRoot := t.TempDir()

	vdir := stageVersion(t, stagingRoot, "myapp-1.0.0-linux-x86_64", map[string]string{
		"bin/myapp": "v1",
	})
	dirname, err := Install(appdirPath, appdirPath, vdir)
	if err != nil {
		t.Fatalf("Install: %v", err)
	}

	if err := Uninstall(appdirPath, appdirPath, dirname, nil); err != nil {
		t.Fatalf("Uninstall: %v", err)
	}

	control := filepath.Join(appdirPath, dirname, controlDir)
	if _, err := os.Stat(filepath.Join(control, oldManifest)); err != nil {
		t.Errorf("expected old manifest present: %v", err)
	}
	if _, err := os.Stat(filepath.Join(control, manifestName)); !os.IsNotExist(err) {
		t.Errorf("expected manifest renamed away, stat err = %v", err)
	}
	if _, err := os.Stat(filepath.Join(appdirPath, "bin/myapp")); !os.IsNotExist(err) {
		t.Errorf("expected bin/myapp removed from appdir, stat err = %v", err)
	}
}

func TestUninstallRetainsPathsNeededByOtherVersions(t *testing.T) {
	appdirPath := t.TempDir()
	stagingRoot := t.TempDir()

	v1 := stageVersion(t, stagingRoot, "myapp-1.0.0-linux-x86_64", map[string]string{
		"lib/shared.so": "shared",
		"bin/v1only":    "v1",
	})
	d1, err := Install(appdirPath, appdirPath, v1)
	if err != nil {
		t.Fatalf("Install v1: %v", err)
	}

	retained := map[string]map[string]struct{}{
		"other": {"lib/shared.so": {}},
	}
	if err := Uninstall(appdirPath, appdirPath, d1, retained); err != nil {
		t.Fatalf("Uninstall: %v", err)
	}

	if _, err := os.Stat(filepath.Join(appdirPath, "lib/shared.so")); err != nil {
		t.Errorf("expected lib/shared.so retained: %v", err)
	}
	if _, err := os.Stat(filepath.Join(appdirPath, "bin/v1only")); !os.IsNotExist(err) {
		t.Errorf("expected bin/v1only removed, stat err = %v", err)
	}
}

func TestUninstallRejectsLockedVersion(t *testing.T) {
	appdirPath := t.TempDir()
	stagingRoot := t.TempDir()

	vdir := stageVersion(t, stagingRoot, "myapp-1.0.0-linux-x86_64", map[string]string{
		"bin/myapp": "v1",
	})
	dirname, err := Install(appdirPath, appdirPath, vdir)
	if err != nil {
		t.Fatalf("Install: %v", err)
	}

	if err := LockVersionDir(filepath.Join(appdirPath, dirname)); err != nil {
		t.Fatalf("LockVersionDir: %v", err)
	}

	err = Uninstall(appdirPath, appdirPath, dirname, nil)
	if !errors.Is(err, ErrVersionLocked) {
		t.Fatalf("Uninstall of locked version: got %v, want ErrVersionLocked", err)
	}

	// the manifest must still be in place: an aborted/rejected uninstall
	// must not demote the version it couldn't actually lock.
	if _, err := os.Stat(filepath.Join(appdirPath, dirname, controlDir, manifestName)); err != nil {
		t.Errorf("expected manifest untouched after rejected uninstall: %v", err)
	}
}

func TestPurgeRemovesDirectory(t *testing.T) {
	appdirPath := t.TempDir()
	stagingRoot := t.TempDir()
	vdir := stageVersion(t, stagingRoot, "myapp-1.0.0-linux-x86_64", map[string]string{
		"bin/myapp": "v1",
	})
	dirname, err := Install(appdirPath, appdirPath, vdir)
	if err != nil {
		t.Fatalf("Install: %v", err)
	}
	if err := Uninstall(appdirPath, appdirPath, dirname, nil); err != nil {
		t.Fatalf("Uninstall: %v", err)
	}
	if err := Purge(appdirPath, dirname); err != nil {
		t.Fatalf("Purge: %v", err)
	}
	if _, err := os.Stat(filepath.Join(appdirPath, dirname)); !os.IsNotExist(err) {
		t.Errorf("expected version directory purged, stat err = %v", err)
	}
}
