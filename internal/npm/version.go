package npm

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"
)

const (
	BumpMajor      = "major"
	BumpMinor      = "minor"
	BumpPatch      = "patch"
	BumpPrerelease = "prerelease"
)

// NextVersion computes the version after current for bump, which is one of
// the Bump* keywords or an explicit version that must be greater than current.
// preid names prerelease versions ("rc" gives 1.2.4-rc.0).
func NextVersion(current, bump, preid string) (string, error) {
	cur, err := semver.NewVersion(current)
	if err != nil {
		return "", fmt.Errorf("invalid current version %q: %w", current, err)
	}
	if preid == "" {
		preid = "rc"
	}

	var next semver.Version
	switch strings.ToLower(strings.TrimSpace(bump)) {
	case BumpMajor:
		next = cur.IncMajor()
	case BumpMinor:
		next = cur.IncMinor()
	case BumpPatch, "":
		next = cur.IncPatch()
	case BumpPrerelease:
		next, err = nextPrerelease(cur, preid)
		if err != nil {
			return "", err
		}
	default:
		explicit, err := semver.NewVersion(strings.TrimPrefix(strings.TrimSpace(bump), "v"))
		if err != nil {
			return "", fmt.Errorf("invalid bump %q: want major, minor, patch, prerelease or a version", bump)
		}
		if !explicit.GreaterThan(cur) {
			return "", fmt.Errorf("version %s is not greater than current %s", explicit, cur)
		}
		next = *explicit
	}
	return next.String(), nil
}

// nextPrerelease increments the trailing counter of an existing preid
// prerelease, or starts preid.0 on the next patch.
func nextPrerelease(cur *semver.Version, preid string) (semver.Version, error) {
	if pre := cur.Prerelease(); pre != "" {
		id, n, ok := strings.Cut(pre, ".")
		if ok && id == preid {
			if count, err := strconv.Atoi(n); err == nil {
				return cur.SetPrerelease(fmt.Sprintf("%s.%d", preid, count+1))
			}
		}
		return cur.SetPrerelease(preid + ".0")
	}
	next := cur.IncPatch()
	return next.SetPrerelease(preid + ".0")
}
