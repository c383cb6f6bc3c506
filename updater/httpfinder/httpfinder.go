// Package httpfinder implements a VersionFinder over a GitHub-releases-
// style JSON index of tagged releases, each carrying one or more .tar.gz
// assets. It is grounded on syncthing's internal/upgrade LatestRelease and
// readTarGZ, generalized from "fetch the syncthing binary" to "fetch a
// full esky version directory".
package httpfinder

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/eskygo/eskygo/internal/eskylog"
	"github.com/eskygo/eskygo/updater"
)

var log = eskylog.For("httpfinder")

// Release mirrors one entry of the index this finder consumes.
type Release struct {
	Tag        string  `json:"tag_name"`
	Prerelease bool    `json:"prerelease"`
	Assets     []Asset `json:"assets"`
}

// Asset is one downloadable file attached to a Release.
type Asset struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Finder is a VersionFinder backed by an HTTP index URL returning a JSON
// array of Release, and per-asset .tar.gz archives whose top-level entry
// is a version directory already laid out as esky expects
// (<name>-<version>-<platform>/esky-files/...).
type Finder struct {
	// IndexURL returns a JSON array of Release when GETted.
	IndexURL string
	// Platform is matched against asset names the same way
	// internal/upgrade matches "syncthing-<os>-<arch>-<tag>.": assets
	// whose name doesn't contain Platform are skipped.
	Platform string
	// StagingDir is the directory new versions are extracted into before
	// BootstrapSwapper.Install renames them into the versions root.
	StagingDir string

	client *http.Client

	cacheDir string
}

// New returns a Finder. client may be nil to use http.DefaultClient.
func New(indexURL, platform, stagingDir string, client *http.Client) *Finder {
	if client == nil {
		client = http.DefaultClient
	}
	return &Finder{
		IndexURL:   indexURL,
		Platform:   platform,
		StagingDir: stagingDir,
		client:     client,
	}
}

var _ updater.VersionFinder = (*Finder)(nil)

// FindVersions fetches the index and returns every release tag matching
// this finder's platform.
func (f *Finder) FindVersions(ctx context.Context, appName string) ([]string, error) {
	releases, err := f.fetchIndex(ctx)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, r := range releases {
		if f.assetFor(r, appName) != nil {
			out = append(out, r.Tag)
		}
	}
	return out, nil
}

// HasVersion always reports not-found: this finder has no local staging
// cache of its own, so every version is fetched fresh. A finder backed by
// a persistent download cache would check it here.
func (f *Finder) HasVersion(appName, version string) (string, bool, error) {
	return "", false, nil
}

// FetchVersion downloads and extracts the tar.gz asset matching version
// and this finder's platform, returning the path to the extracted version
// directory (named "<appName>-<version>-<platform>", ready for
// BootstrapSwapper.Install).
func (f *Finder) FetchVersion(ctx context.Context, appName, version string, progress updater.ProgressFunc) (string, error) {
	releases, err := f.fetchIndex(ctx)
	if err != nil {
		return "", err
	}

	var rel *Release
	for i := range releases {
		if releases[i].Tag == version {
			rel = &releases[i]
			break
		}
	}
	if rel == nil {
		return "", fmt.Errorf("httpfinder: version %q not found in index", version)
	}
	asset := f.assetFor(*rel, appName)
	if asset == nil {
		return "", fmt.Errorf("httpfinder: no %s asset for version %q", f.Platform, version)
	}

	if progress != nil && !progress(updater.Status{Stage: "downloading", Fraction: -1}) {
		return "", fmt.Errorf("httpfinder: fetch of %s canceled", version)
	}

	extractRoot := filepath.Join(f.StagingDir, "fetch-"+uuid.NewString())
	if err := os.MkdirAll(extractRoot, 0o755); err != nil {
		return "", err
	}

	// An asset URL relative to the index is resolved against IndexURL.
	assetURL := asset.URL
	if base, err := url.Parse(f.IndexURL); err == nil {
		if ref, err := url.Parse(asset.URL); err == nil {
			assetURL = base.ResolveReference(ref).String()
		}
	}
	if err := f.downloadTarGZ(ctx, assetURL, extractRoot); err != nil {
		os.RemoveAll(extractRoot)
		return "", err
	}

	if progress != nil && !progress(updater.Status{Stage: "extracting", Fraction: -1}) {
		os.RemoveAll(extractRoot)
		return "", fmt.Errorf("httpfinder: fetch of %s canceled", version)
	}

	wantDir := appName + "-" + version + "-" + f.Platform
	extractedDir := filepath.Join(extractRoot, wantDir)
	if _, err := os.Stat(extractedDir); err != nil {
		os.RemoveAll(extractRoot)
		return "", fmt.Errorf("httpfinder: archive for %s did not contain %s", version, wantDir)
	}

	final := filepath.Join(f.StagingDir, wantDir)
	if err := os.Rename(extractedDir, final); err != nil {
		os.RemoveAll(extractRoot)
		return "", err
	}
	os.RemoveAll(extractRoot)

	log.Infof("fetched %s %s into %s", appName, version, final)
	return final, nil
}

// NeedsCleanup reports whether any abandoned extraction directories remain
// under StagingDir from a prior canceled or crashed fetch.
func (f *Finder) NeedsCleanup() bool {
	entries, err := os.ReadDir(f.StagingDir)
	if err != nil {
		return false
	}
	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(e.Name(), "fetch-") {
			return true
		}
	}
	return false
}

// Cleanup removes abandoned "fetch-*" extraction directories.
func (f *Finder) Cleanup() error {
	entries, err := os.ReadDir(f.StagingDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	var firstErr error
	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(e.Name(), "fetch-") {
			if err := os.RemoveAll(filepath.Join(f.StagingDir, e.Name())); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (f *Finder) assetFor(r Release, appName string) *Asset {
	prefix := fmt.Sprintf("%s-%s-%s", appName, f.Platform, r.Tag)
	for i := range r.Assets {
		if strings.HasPrefix(r.Assets[i].Name, prefix) && strings.HasSuffix(r.Assets[i].Name, ".tar.gz") {
			return &r.Assets[i]
		}
	}
	return nil
}

func (f *Finder) fetchIndex(ctx context.Context) ([]Release, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.IndexURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode > 299 {
		return nil, fmt.Errorf("httpfinder: index request returned %s", resp.Status)
	}

	var releases []Release
	if err := json.NewDecoder(resp.Body).Decode(&releases); err != nil {
		return nil, fmt.Errorf("httpfinder: decode index: %w", err)
	}
	return releases, nil
}

func (f *Finder) downloadTarGZ(ctx context.Context, url, destDir string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/octet-stream")

	resp, err := f.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode > 299 {
		return fmt.Errorf("httpfinder: asset request returned %s", resp.Status)
	}

	gr, err := gzip.NewReader(resp.Body)
	if err != nil {
		return err
	}
	defer gr.Close()

	tr := tar.NewReader(gr)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		target := filepath.Join(destDir, filepath.FromSlash(path.Clean(hdr.Name)))
		if !strings.HasPrefix(target, filepath.Clean(destDir)+string(filepath.Separator)) {
			return fmt.Errorf("httpfinder: archive entry %q escapes extraction root", hdr.Name)
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(hdr.Mode))
			if err != nil {
				return err
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return err
			}
			if err := out.Close(); err != nil {
				return err
			}
		}
	}
}

// Descriptor returns a short identifier suitable for a controlRecord's
// FinderDescriptor field, so a cleanup_at_exit helper process could in
// principle reconstruct an equivalent Finder (index URL and platform are
// enough; StagingDir travels with the appdir).
func (f *Finder) Descriptor() string {
	return fmt.Sprintf("httpfinder:%s:%s", f.Platform, f.IndexURL)
}
