package appdir

import (
	"strconv"
	"strings"
)

// Version is a parsed, totally-ordered version string. Comparison follows
// internal/upgrade's CompareVersions: release segments compare numerically
// component by component, a longer release segment is newer when the
// shared prefix is equal, and any pre-release tag ("-beta.2", "-rc1", ...)
// sorts below the plain release it qualifies.
type Version struct {
	raw        string
	release    []int
	prerelease []any // each element is either int or string
}

// ParseVersion never fails: any input that doesn't look like a dotted
// numeric version degrades to an all-zero release segment compared only by
// its raw string, so arbitrary version directory names still sort
// deterministically rather than rejecting the directory outright.
func ParseVersion(s string) (Version, error) {
	release, prerelease := versionParts(s)
	return Version{raw: s, release: release, prerelease: prerelease}, nil
}

// String returns the original version text.
func (v Version) String() string { return v.raw }

// Compare returns <0, 0, >0 as a is older than, equal to, or newer than b.
func Compare(a, b Version) int {
	minlen := len(a.release)
	if l := len(b.release); l < minlen {
		minlen = l
	}
	for i := 0; i < minlen; i++ {
		if a.release[i] < b.release[i] {
			return -1
		}
		if a.release[i] > b.release[i] {
			return 1
		}
	}
	if len(a.release) != len(b.release) {
		if len(a.release) < len(b.release) {
			return -1
		}
		return 1
	}

	if len(a.prerelease) == 0 && len(b.prerelease) > 0 {
		return 1
	}
	if len(a.prerelease) > 0 && len(b.prerelease) == 0 {
		return -1
	}

	minlen = len(a.prerelease)
	if l := len(b.prerelease); l < minlen {
		minlen = l
	}
	for i := 0; i < minlen; i++ {
		switch av := a.prerelease[i].(type) {
		case int:
			switch bv := b.prerelease[i].(type) {
			case int:
				if av != bv {
					if av < bv {
						return -1
					}
					return 1
				}
			case string:
				return -1
			}
		case string:
			switch bv := b.prerelease[i].(type) {
			case int:
				return 1
			case string:
				if av != bv {
					if av < bv {
						return -1
					}
					return 1
				}
			}
		}
	}
	if len(a.prerelease) != len(b.prerelease) {
		if len(a.prerelease) < len(b.prerelease) {
			return -1
		}
		return 1
	}
	if a.raw != b.raw {
		return strings.Compare(a.raw, b.raw)
	}
	return 0
}

// versionParts splits "1.2.3-beta.2+build" into release [1,2,3] and
// prerelease ["beta", 2]. Build metadata after "+" is dropped from both
// parts, so it plays no role in ordering except through Compare's final
// tie-break on the raw version string.
func versionParts(v string) ([]int, []any) {
	v = strings.SplitN(v, "+", 2)[0]
	parts := strings.SplitN(v, "-", 2)

	fields := strings.Split(parts[0], ".")
	release := make([]int, len(fields))
	for i, s := range fields {
		n, _ := strconv.Atoi(s)
		release[i] = n
	}

	var prerelease []any
	if len(parts) > 1 {
		fields = strings.Split(parts[1], ".")
		prerelease = make([]any, len(fields))
		for i, s := range fields {
			if n, err := strconv.Atoi(s); err == nil {
				prerelease[i] = n
			} else {
				prerelease[i] = s
			}
		}
	}
	return release, prerelease
}
