package appdir

import (
	"path/filepath"
	"testing"
)

func TestReadManifestMissingFileIsEmpty(t *testing.T) {
	m, err := ReadManifest(filepath.Join(t.TempDir(), "nope.txt"))
	if err != nil {
		t.Fatalf("ReadManifest: %v", err)
	}
	if len(m) != 0 {
		t.Errorf("expected empty manifest, got %v", m)
	}
}

func TestReadManifestDiscardsUnsafePaths(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bootstrap-manifest.txt")
	if err := WriteManifest(path, map[string]struct{}{
		"bin/app":       {},
		"lib/app.so":    {},
		"../../escape":  {},
		"/etc/passwd":   {},
		"..":            {},
		"nested/ok.txt": {},
	}); err != nil {
		t.Fatalf("WriteManifest: %v", err)
	}

	m, err := ReadManifest(path)
	if err != nil {
		t.Fatalf("ReadManifest: %v", err)
	}

	want := map[string]struct{}{
		"bin/app":       {},
		"lib/app.so":    {},
		"nested/ok.txt": {},
	}
	if len(m) != len(want) {
		t.Fatalf("got %v, want %v", m, want)
	}
	for k := range want {
		if _, ok := m[k]; !ok {
			t.Errorf("missing expected entry %q", k)
		}
	}
}

func TestWriteReadManifestRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bootstrap-manifest.txt")
	entries := map[string]struct{}{
		"a/b.txt": {},
		"c.txt":   {},
	}
	if err := WriteManifest(path, entries); err != nil {
		t.Fatalf("WriteManifest: %v", err)
	}
	got, err := ReadManifest(path)
	if err != nil {
		t.Fatalf("ReadManifest: %v", err)
	}
	if len(got) != len(entries) {
		t.Fatalf("got %v, want %v", got, entries)
	}
}
