// Package update checks GitHub releases for a newer glean build and
// swaps the running binary in place.
package update

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	Repo       = "glean-app/glean"
	BinaryName = "glean"
)

type Release struct {
	Version     string
	AssetURL    string
	ChecksumURL string
}

// NewerThan reports whether the release is a strict semver upgrade
// over current. Unparsable versions (including "dev" builds) never
// upgrade.
func (r Release) NewerThan(current string) bool {
	cur, err := parseSemver(current)
	if err != nil {
		return false
	}
	rel, err := parseSemver(r.Version)
	if err != nil {
		return false
	}
	return rel.greaterThan(cur)
}

type semver struct {
	major, minor, patch int
}

// parseSemver accepts an optional leading "v" and strips pre-release
// and build suffixes.
func parseSemver(v string) (semver, error) {
	v = strings.TrimPrefix(v, "v")
	if i := strings.IndexAny(v, "-+"); i >= 0 {
		v = v[:i]
	}
	parts := strings.Split(v, ".")
	if len(parts) != 3 {
		return semver{}, fmt.Errorf("invalid semver: %q", v)
	}
	var out [3]int
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return semver{}, err
		}
		out[i] = n
	}
	return semver{out[0], out[1], out[2]}, nil
}

func (s semver) greaterThan(o semver) bool {
	if s.major != o.major {
		return s.major > o.major
	}
	if s.minor != o.minor {
		return s.minor > o.minor
	}
	return s.patch > o.patch
}
