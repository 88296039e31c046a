// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Apix Contributors

package extension

import (
	"log/slog"
	"os"
	"sort"

	"github.com/Masterminds/semver/v3"
	apixerr "github.com/apix-dev/apix/pkg/errors"
)

// Any is the wildcard constraint selecting the newest installed version.
const Any = "*"

// ParseVersion parses a strict MAJOR.MINOR.PATCH version without a "v" prefix.
func ParseVersion(s string) (*semver.Version, error) {
	v, err := semver.StrictNewVersion(s)
	if err != nil {
		return nil, apixerr.Errorf(apixerr.CodeExtensionVersionInvalid, "invalid version %q: %s", s, err)
	}
	return v, nil
}

// InstalledVersions lists the versions of name installed under root, sorted
// ascending. Entries whose names are not semantic versions are skipped.
func InstalledVersions(root, name string) ([]*semver.Version, error) {
	dir := Layout{Root: root}.ExtensionDir(name)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apixerr.New(apixerr.CodeExtensionLoadNotFound, "extension "+name+" is not installed",
				apixerr.FieldExtension(name), apixerr.FieldPath(dir))
		}
		return nil, apixerr.Wrap(err, apixerr.CodeExtensionLoadNotFound, "listing installed versions",
			apixerr.FieldExtension(name), apixerr.FieldPath(dir))
	}

	versions := make([]*semver.Version, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		v, err := semver.StrictNewVersion(entry.Name())
		if err != nil {
			slog.Debug("skipping non-version entry", "extension", name, "entry", entry.Name())
			continue
		}
		versions = append(versions, v)
	}

	sort.Sort(semver.Collection(versions))
	return versions, nil
}

// Resolution is the outcome of Resolve.
type Resolution struct {
	// Version is the installed directory name that was picked.
	Version string
	// Exact is false when the nearest installed version stood in for the
	// requested one.
	Exact bool
}

// Resolve picks which installed version of name satisfies constraint.
//
// "*" selects the newest version. An installed exact match is returned as is.
// Otherwise the smallest installed version above the request wins, falling
// back to the largest one below it. That fallback is not an exact match and
// callers must treat it as such.
func Resolve(name, constraint string, installed []*semver.Version) (Resolution, error) {
	if len(installed) == 0 {
		return Resolution{}, apixerr.New(apixerr.CodeExtensionVersionNotFound,
			"no versions of "+name+" are installed", apixerr.FieldExtension(name))
	}

	sorted := make([]*semver.Version, len(installed))
	copy(sorted, installed)
	sort.Sort(semver.Collection(sorted))

	if constraint == Any {
		return Resolution{Version: sorted[len(sorted)-1].Original(), Exact: true}, nil
	}

	want, err := ParseVersion(constraint)
	if err != nil {
		return Resolution{}, apixerr.With(err, apixerr.FieldExtension(name))
	}

	// sorted is ascending, so the first greater entry is the smallest greater
	// one and the last lesser entry is the largest lesser one.
	var lower *semver.Version
	for _, v := range sorted {
		switch {
		case v.Equal(want):
			return Resolution{Version: v.Original(), Exact: true}, nil
		case v.GreaterThan(want):
			slog.Debug("resolved to nearest higher version", "extension", name, "requested", constraint, "resolved", v.Original())
			return Resolution{Version: v.Original()}, nil
		default:
			lower = v
		}
	}

	slog.Debug("resolved to nearest lower version", "extension", name, "requested", constraint, "resolved", lower.Original())
	return Resolution{Version: lower.Original()}, nil
}

// Check is the result of comparing an installed version to a required one.
type Check int

const (
	UpToDate Check = iota
	// Newer means the installed version is ahead of the required one.
	Newer
	// Older means the installed version is behind the required one.
	Older
)

func (c Check) String() string {
	switch c {
	case UpToDate:
		return "up-to-date"
	case Newer:
		return "newer"
	case Older:
		return "older"
	default:
		return "unknown"
	}
}

// Compare compares an installed version against a required one. A wildcard on
// either side is always UpToDate.
func Compare(installed, required string) (Check, error) {
	if installed == Any || required == Any {
		return UpToDate, nil
	}

	iv, err := ParseVersion(installed)
	if err != nil {
		return UpToDate, err
	}
	rv, err := ParseVersion(required)
	if err != nil {
		return UpToDate, err
	}

	switch iv.Compare(rv) {
	case 1:
		return Newer, nil
	case -1:
		return Older, nil
	default:
		return UpToDate, nil
	}
}

// Policy decides whether a version drift aborts an invocation.
type Policy string

const (
	// PolicyStrict requires installed == required.
	PolicyStrict Policy = "strict"
	// PolicyWarn logs drift and continues.
	PolicyWarn Policy = "warn"
)

// Enforce compares installed to required and applies the policy.
func (p Policy) Enforce(name, installed, required string) error {
	check, err := Compare(installed, required)
	if err != nil {
		return apixerr.With(err, apixerr.FieldExtension(name))
	}
	if check == UpToDate {
		return nil
	}

	if p == PolicyWarn {
		slog.Warn("extension version differs from project requirement",
			"extension", name, "installed", installed, "required", required, "check", check.String())
		return nil
	}

	return apixerr.New(apixerr.CodeExtensionVersionMismatch,
		"installed "+name+" "+installed+" is "+check.String()+" than required "+required,
		apixerr.FieldExtension(name),
		apixerr.FieldVersion(installed),
		apixerr.Field("required", required))
}
