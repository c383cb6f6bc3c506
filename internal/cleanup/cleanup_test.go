package cleanup

import (
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

func installReadyVersion(t *testing.T, appdirPath, dirname string, files map[string]string) {
	t.Helper()
	control := filepath.Join(appdirPath, dirname, "esky-files")
	var manifest string
	for rel, content := range files {
		writeFile(t, filepath.Join(appdirPath, rel), content)
		manifest += rel + "\n"
	}
	writeFile(t, filepath.Join(control, "bootstrap-manifest.txt"), manifest)
}

func TestCleanupIsIdempotent(t *testing.T) {
	appdirPath := t.TempDir()
	installReadyVersion(t, appdirPath, "myapp-1.0.0-linux-x86_64", map[string]string{
		"bin/myapp": "v1",
	})

	e := New(appdirPath, "myapp-1.0.0-linux-x86_64", nil)

	first := e.Run()
	if !first.FullyCleaned {
		t.Fatalf("expected first cleanup to be fully cleaned, errors: %v", first.Errors)
	}
	second := e.Run()
	if !second.FullyCleaned {
		t.Fatalf("expected second cleanup to be fully cleaned, errors: %v", second.Errors)
	}

	if _, err := os.Stat(filepath.Join(appdirPath, "bin/myapp")); err != nil {
		t.Errorf("expected bin/myapp to remain after idempotent cleanup: %v", err)
	}
}

func TestCleanupRetiresObsoleteReadyVersion(t *testing.T) {
	appdirPath := t.TempDir()
	installReadyVersion(t, appdirPath, "myapp-1.0.0-linux-x86_64", map[string]string{
		"bin/old-only": "v1",
	})
	installReadyVersion(t, appdirPath, "myapp-2.0.0-linux-x86_64", map[string]string{
		"bin/new-only": "v2",
	})

	e := New(appdirPath, "", nil)
	res := e.Run()
	if !res.FullyCleaned {
		t.Fatalf("expected fully cleaned, errors: %v", res.Errors)
	}

	if _, err := os.Stat(filepath.Join(appdirPath, "myapp-1.0.0-linux-x86_64")); !os.IsNotExist(err) {
		t.Errorf("expected obsolete version directory purged, stat err = %v", err)
	}
	// migrateLayout relocates the best version into appdata/ along the way.
	if _, err := os.Stat(filepath.Join(appdirPath, verstore.ChildLayoutDir, "myapp-2.0.0-linux-x86_64")); err != nil {
		t.Errorf("expected best version directory retained under appdata/: %v", err)
	}
}

func TestCleanupNeverTouchesActiveVersion(t *testing.T) {
	appdirPath := t.TempDir()
	installReadyVersion(t, appdirPath, "myapp-1.0.0-linux-x86_64", map[string]string{
		"bin/old": "v1",
	})
	installReadyVersion(t, appdirPath, "myapp-2.0.0-linux-x86_64", map[string]string{
		"bin/new": "v2",
	})

	e := New(appdirPath, "myapp-1.0.0-linux-x86_64", nil)
	res := e.Run()
	if !res.FullyCleaned {
		t.Fatalf("expected fully cleaned, errors: %v", res.Errors)
	}

	if _, err := os.Stat(filepath.Join(appdirPath, "myapp-1.0.0-linux-x86_64")); err != nil {
		t.Errorf("expected active version directory retained: %v", err)
	}
}
