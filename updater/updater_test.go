package updater

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeFinder struct {
	versions map[string]string // version -> staged version directory
	stagedAt map[string]string // version -> path already on disk
	dir      string
}

func newFakeFinder(t *testing.T) *fakeFinder {
	return &fakeFinder{
		versions: make(map[string]string),
		stagedAt: make(map[string]string),
		dir:      t.TempDir(),
	}
}

func (f *fakeFinder) addVersion(t *testing.T, appName, version string, files map[string]string) {
	t.Helper()
	dirname := appName + "-" + version + "-linux-x86_64"
	vdir := filepath.Join(f.dir, dirname)
	control := filepath.Join(vdir, "esky-files", "bootstrap")
	var manifest string
	for rel, content := range files {
		path := filepath.Join(control, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("MkdirAll: %v", err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
		manifest += rel + "\n"
	}
	manifestPath := filepath.Join(vdir, "esky-files", "bootstrap-manifest.txt")
	if err := os.WriteFile(manifestPath, []byte(manifest), 0o644); err != nil {
		t.Fatalf("WriteFile manifest: %v", err)
	}
	f.versions[version] = vdir
}

func (f *fakeFinder) FindVersions(ctx context.Context, appName string) ([]string, error) {
	out := make([]string, 0, len(f.versions))
	for v := range f.versions {
		out = append(out, v)
	}
	return out, nil
}

func (f *fakeFinder) HasVersion(appName, version string) (string, bool, error) {
	if p, ok := f.stagedAt[version]; ok {
		return p, true, nil
	}
	return "", false, nil
}

func (f *fakeFinder) FetchVersion(ctx context.Context, appName, version string, progress ProgressFunc) (string, error) {
	p, ok := f.versions[version]
	if !ok {
		return "", os.ErrNotExist
	}
	f.stagedAt[version] = p
	return p, nil
}

func (f *fakeFinder) NeedsCleanup() bool { return false }
func (f *fakeFinder) Cleanup() error     { return nil }

func TestOpenWithNoInstalledVersion(t *testing.T) {
	appdirPath := t.TempDir()
	u, err := Open(appdirPath, "myapp", nil)
	require.NoError(t, err)
	_, ok := u.CurrentVersion()
	require.False(t, ok)
}

func TestFindUpdateReturnsHighestNewerVersion(t *testing.T) {
	appdirPath := t.TempDir()
	control := filepath.Join(appdirPath, "myapp-1.0.0-linux-x86_64", "esky-files")
	require.NoError(t, os.MkdirAll(control, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(appdirPath, "bin-marker"), []byte("v1"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(control, "bootstrap-manifest.txt"), []byte("bin-marker\n"), 0o644))

	finder := newFakeFinder(t)
	finder.addVersion(t, "myapp", "1.5.0", map[string]string{"bin-marker": "v1.5"})
	finder.addVersion(t, "myapp", "2.0.0", map[string]string{"bin-marker": "v2"})
	finder.addVersion(t, "myapp", "0.5.0", map[string]string{"bin-marker": "v0.5"})

	u, err := Open(appdirPath, "myapp", finder)
	require.NoError(t, err)

	best, found, err := u.FindUpdate(context.Background())
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "2.0.0", best)
}

func TestInstallVersionThenUninstallPrevious(t *testing.T) {
	appdirPath := t.TempDir()
	control := filepath.Join(appdirPath, "myapp-1.0.0-linux-x86_64", "esky-files")
	require.NoError(t, os.MkdirAll(control, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(appdirPath, "bin-marker"), []byte("v1"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(control, "bootstrap-manifest.txt"), []byte("bin-marker\n"), 0o644))

	finder := newFakeFinder(t)
	finder.addVersion(t, "myapp", "2.0.0", map[string]string{"bin-marker": "v2"})

	u, err := Open(appdirPath, "myapp", finder)
	require.NoError(t, err)

	installed, err := u.AutoUpdate(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, "2.0.0", installed)

	cur, ok := u.CurrentVersion()
	require.True(t, ok)
	require.Equal(t, "2.0.0", cur)

	data, err := os.ReadFile(filepath.Join(appdirPath, "bin-marker"))
	require.NoError(t, err)
	require.Equal(t, "v2", string(data))
}

func TestCleanupReportsFullyCleaned(t *testing.T) {
	appdirPath := t.TempDir()
	control := filepath.Join(appdirPath, "myapp-1.0.0-linux-x86_64", "esky-files")
	require.NoError(t, os.MkdirAll(control, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(appdirPath, "bin-marker"), []byte("v1"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(control, "bootstrap-manifest.txt"), []byte("bin-marker\n"), 0o644))

	u, err := Open(appdirPath, "myapp", nil)
	require.NoError(t, err)

	res, err := u.Cleanup()
	require.NoError(t, err)
	require.True(t, res.FullyCleaned)
}
