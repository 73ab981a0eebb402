package catalog

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"github.com/googlearchive/science-journal-ios/errors"
	"github.com/googlearchive/science-journal-ios/version"
)

//go:embed manifest.schema.json
var manifestSchema []byte

// Manifest is the exportable description of a schema bundle: its protobuf
// package, version descriptor and ordered schema list.
type Manifest struct {
	Package string             `json:"package" yaml:"package"`
	Version version.Descriptor `json:"version" yaml:"version"`
	Schemas []ManifestEntry    `json:"schemas" yaml:"schemas"`
}

// ManifestEntry is one schema in a Manifest.
type ManifestEntry struct {
	Name     Name   `json:"name" yaml:"name"`
	FullName string `json:"full_name" yaml:"full_name"`
}

// NewManifest describes set resolved inside pkg.
func NewManifest(set Set, pkg string) *Manifest {
	m := &Manifest{
		Package: pkg,
		Version: version.Current(),
		Schemas: make([]ManifestEntry, 0, set.Len()),
	}
	for _, schema := range set.All() {
		m.Schemas = append(m.Schemas, ManifestEntry{
			Name:     schema.Name,
			FullName: string(schema.FullName(pkg)),
		})
	}
	return m
}

// JSON encodes the manifest as indented JSON.
func (m *Manifest) JSON() ([]byte, error) {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "Manifest", "JSON", "marshal")
	}
	return data, nil
}

// YAML encodes the manifest as YAML.
func (m *Manifest) YAML() ([]byte, error) {
	data, err := yaml.Marshal(m)
	if err != nil {
		return nil, errors.Wrap(err, "Manifest", "YAML", "marshal")
	}
	return data, nil
}

// DecodeManifest parses a JSON manifest.
func DecodeManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %v", errors.ErrParsingFailed, err),
			"Manifest", "DecodeManifest", "json decode")
	}
	return &m, nil
}

// DecodeManifestYAML parses a YAML manifest.
func DecodeManifestYAML(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %v", errors.ErrParsingFailed, err),
			"Manifest", "DecodeManifestYAML", "yaml decode")
	}
	return &m, nil
}

// Validate checks the manifest against the embedded JSON Schema and the
// catalog: every entry must be a known schema with a consistent full name.
func (m *Manifest) Validate() error {
	doc, err := json.Marshal(m)
	if err != nil {
		return errors.Wrap(err, "Manifest", "Validate", "marshal")
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(manifestSchema),
		gojsonschema.NewBytesLoader(doc),
	)
	if err != nil {
		return errors.WrapFatal(err, "Manifest", "Validate", "load manifest schema")
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			msgs = append(msgs, fmt.Sprintf("%s: %s", desc.Field(), desc.Description()))
		}
		return errors.WrapInvalid(
			fmt.Errorf("%w: %s", errors.ErrInvalidData, strings.Join(msgs, "; ")),
			"Manifest", "Validate", "schema validation")
	}

	seen := make(map[Name]struct{}, len(m.Schemas))
	for _, entry := range m.Schemas {
		schema, ok := Lookup(entry.Name)
		if !ok {
			return errors.WrapInvalid(
				fmt.Errorf("%w: %q", errors.ErrUnknownSchema, entry.Name),
				"Manifest", "Validate", "catalog check")
		}
		if _, dup := seen[entry.Name]; dup {
			return errors.WrapInvalid(
				fmt.Errorf("%w: %q", errors.ErrDuplicateSchema, entry.Name),
				"Manifest", "Validate", "catalog check")
		}
		seen[entry.Name] = struct{}{}
		if want := string(schema.FullName(m.Package)); entry.FullName != want {
			return errors.WrapInvalid(
				fmt.Errorf("%w: %s is listed as %s, want %s", errors.ErrSchemaMismatch, entry.Name, entry.FullName, want),
				"Manifest", "Validate", "catalog check")
		}
	}

	return nil
}

// Names returns the schema names listed in the manifest.
func (m *Manifest) Names() []Name {
	out := make([]Name, len(m.Schemas))
	for i, entry := range m.Schemas {
		out[i] = entry.Name
	}
	return out
}

// ManifestDiff compares a local manifest with a remote one.
type ManifestDiff struct {
	VersionCompatible bool   `json:"version_compatible"`
	PackageMatches    bool   `json:"package_matches"`
	Added             []Name `json:"added,omitempty"`   // in remote only
	Removed           []Name `json:"removed,omitempty"` // in local only
}

// Compatible reports whether every schema the local side knows is described
// remotely, under the same package and a compatible version.
func (d ManifestDiff) Compatible() bool {
	return d.VersionCompatible && d.PackageMatches && len(d.Removed) == 0
}

// Diff compares m (local) against remote.
func (m *Manifest) Diff(remote *Manifest) ManifestDiff {
	d := ManifestDiff{
		VersionCompatible: m.Version.Compatible(remote.Version),
		PackageMatches:    m.Package == remote.Package,
	}

	local := make(map[Name]struct{}, len(m.Schemas))
	for _, e := range m.Schemas {
		local[e.Name] = struct{}{}
	}
	theirs := make(map[Name]struct{}, len(remote.Schemas))
	for _, e := range remote.Schemas {
		theirs[e.Name] = struct{}{}
		if _, ok := local[e.Name]; !ok {
			d.Added = append(d.Added, e.Name)
		}
	}
	for _, e := range m.Schemas {
		if _, ok := theirs[e.Name]; !ok {
			d.Removed = append(d.Removed, e.Name)
		}
	}
	return d
}
