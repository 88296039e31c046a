// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Apix Contributors

package extension

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/BurntSushi/toml"
	apixerr "github.com/apix-dev/apix/pkg/errors"
)

// ManifestFile is the descriptor file name inside every version directory.
const ManifestFile = "extension.toml"

// Action names an entry point an extension may implement.
type Action string

const (
	ActionCreate  Action = "create"
	ActionExtend  Action = "extend"
	ActionMigrate Action = "migrate"
	ActionInfo    Action = "info"
)

var validActions = map[Action]bool{
	ActionCreate:  true,
	ActionExtend:  true,
	ActionMigrate: true,
	ActionInfo:    true,
}

// nameRe matches extension names usable as a directory and a Lua file stem.
var nameRe = regexp.MustCompile(`^[a-z0-9][a-z0-9_\-]*$`)

// Descriptor is the parsed extension.toml of one installed version.
type Descriptor struct {
	Name        string    `toml:"name"`
	Version     string    `toml:"version"`
	Description string    `toml:"description"`
	Supported   Supported `toml:"supported"`
}

// Supported lists what an extension declares it can do. An empty Actions list
// means every action is supported.
type Supported struct {
	Actions   []Action `toml:"actions"`
	Languages []string `toml:"languages"`
	Features  []string `toml:"features"`
}

// ParseManifest decodes TOML data into a Descriptor and validates it.
func ParseManifest(data []byte) (*Descriptor, error) {
	var d Descriptor
	if err := toml.Unmarshal(data, &d); err != nil {
		return nil, apixerr.Errorf(apixerr.CodeExtensionManifestInvalid, "manifest parse: %s", err)
	}

	if errs := d.Validate(); len(errs) > 0 {
		return nil, errs[0]
	}

	return &d, nil
}

// LoadManifest reads the descriptor stored in an extension version directory.
func LoadManifest(dir string) (*Descriptor, error) {
	path := filepath.Join(dir, ManifestFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apixerr.New(apixerr.CodeExtensionLoadNotFound, "extension manifest not found",
				apixerr.FieldPath(path))
		}
		return nil, apixerr.Wrap(err, apixerr.CodeExtensionManifestInvalid, "reading extension manifest",
			apixerr.FieldPath(path))
	}
	d, err := ParseManifest(data)
	if err != nil {
		return nil, apixerr.With(err, apixerr.FieldPath(path))
	}
	return d, nil
}

// Validate checks that the Descriptor is well-formed. It returns all validation
// errors found rather than stopping at the first one.
func (d *Descriptor) Validate() []error {
	var errs []error

	if strings.TrimSpace(d.Name) == "" {
		errs = append(errs, apixerr.Errorf(apixerr.CodeExtensionManifestInvalid,
			"manifest validation: name must not be empty"))
	} else if !nameRe.MatchString(d.Name) {
		errs = append(errs, apixerr.Errorf(apixerr.CodeExtensionManifestInvalid,
			"manifest validation: name must match %s, got %q", nameRe, d.Name))
	}

	if strings.TrimSpace(d.Version) == "" {
		errs = append(errs, apixerr.Errorf(apixerr.CodeExtensionManifestInvalid,
			"manifest validation: version must not be empty"))
	} else if _, err := ParseVersion(d.Version); err != nil {
		errs = append(errs, apixerr.Errorf(apixerr.CodeExtensionManifestInvalid,
			"manifest validation: version must be valid semver (MAJOR.MINOR.PATCH), got %q", d.Version))
	}

	for i, a := range d.Supported.Actions {
		if !validActions[a] {
			errs = append(errs, apixerr.Errorf(apixerr.CodeExtensionManifestInvalid,
				"manifest validation: supported.actions[%d] must be one of [create, extend, migrate, info], got %q", i, a))
		}
	}

	return errs
}

// Supports reports whether the descriptor declares the action.
func (d *Descriptor) Supports(a Action) bool {
	if len(d.Supported.Actions) == 0 {
		return true
	}
	for _, have := range d.Supported.Actions {
		if have == a {
			return true
		}
	}
	return false
}

// VerifyManifest checks that a descriptor loaded from the version directory
// dirVersion of extension name actually describes that name and version.
func VerifyManifest(d *Descriptor, name, dirVersion string) error {
	if d.Name != name {
		return apixerr.New(apixerr.CodeExtensionManifestInvalid,
			"manifest name "+d.Name+" does not match extension directory "+name,
			apixerr.FieldExtension(name))
	}

	want, err := ParseVersion(dirVersion)
	if err != nil {
		return err
	}
	got, err := ParseVersion(d.Version)
	if err != nil {
		return err
	}
	if !got.Equal(want) {
		return apixerr.New(apixerr.CodeExtensionVersionMismatch,
			"manifest declares version "+d.Version+" but was installed as "+dirVersion,
			apixerr.FieldExtension(name),
			apixerr.FieldVersion(dirVersion))
	}
	return nil
}
