package appdir

import (
	"bufio"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ReadManifest reads a bootstrap-manifest.txt file: one relative path per
// line, LF-terminated, leading/trailing whitespace trimmed. A missing file
// is not an error; it simply yields an empty manifest (mirrors esky's
// _version_manifest, which swallows IOError the same way).
//
// Lines are normalized with filepath.Clean and, per I5, any line that is
// absolute or that escapes the manifest's root via ".." is discarded
// silently rather than propagated — a corrupt or malicious manifest must
// never let the swapper write or delete outside the appdir.
func ReadManifest(path string) (map[string]struct{}, error) {
	manifest := make(map[string]struct{})

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return manifest, nil
		}
		return nil, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		line = filepath.ToSlash(line)
		clean := filepath.ToSlash(filepath.Clean(line))
		if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, "../") {
			continue
		}
		manifest[clean] = struct{}{}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return manifest, nil
}

// WriteManifest writes the given relative paths to path, one per line,
// sorted for deterministic output, LF-terminated.
func WriteManifest(path string, entries map[string]struct{}) error {
	lines := make([]string, 0, len(entries))
	for e := range entries {
		lines = append(lines, e)
	}
	sort.Strings(lines)

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, l := range lines {
		if _, err := w.WriteString(l + "\n"); err != nil {
			return err
		}
	}
	return w.Flush()
}
