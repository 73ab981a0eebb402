// Package catalog is the single import point for the Science Journal schema
// bundle. It enumerates every message schema of the bundle in declaration
// order and binds those names to message types at runtime.
//
// Importing the package performs no I/O and registers nothing; the list is a
// compile-time constant. Message layouts are owned by the generated bindings
// (or descriptor sets) that a consumer links against; Bind checks that all of
// them are present.
//
//	import (
//	    _ "example.com/goosci" // generated bindings register with protoregistry
//	    "github.com/googlearchive/science-journal-ios/catalog"
//	)
//
//	bundle, err := catalog.Bind(nil) // nil resolves against protoregistry.GlobalTypes
//	if err != nil {
//	    // err names every schema that did not resolve
//	}
//	trial, _ := bundle.New(catalog.Trial)
package catalog

import (
	"fmt"
	"slices"

	"google.golang.org/protobuf/reflect/protoreflect"

	"github.com/googlearchive/science-journal-ios/errors"
)

// Name identifies one message schema of the bundle.
type Name string

// Schemas of the bundle. Adding or removing one is a change to this block
// and to the ordered list below.
const (
	BasicSensorAppearance    Name = "BasicSensorAppearance"
	ScalarSensorData         Name = "ScalarSensorData"
	Caption                  Name = "Caption"
	Sensor                   Name = "Sensor"
	DeviceSpec               Name = "DeviceSpec"
	SensorConfig             Name = "SensorConfig"
	Experiment               Name = "Experiment"
	SensorLayout             Name = "SensorLayout"
	ExperimentLibrary        Name = "ExperimentLibrary"
	SensorSpec               Name = "SensorSpec"
	GadgetInfo               Name = "GadgetInfo"
	SensorTrigger            Name = "SensorTrigger"
	IconPath                 Name = "IconPath"
	SensorTriggerInformation Name = "SensorTriggerInformation"
	InputDevice              Name = "InputDevice"
	SensorTriggerLabelValue  Name = "SensorTriggerLabelValue"
	Label                    Name = "Label"
	SnapshotLabelValue       Name = "SnapshotLabelValue"
	LabelValue               Name = "LabelValue"
	TextLabelValue           Name = "TextLabelValue"
	LocalSyncStatus          Name = "LocalSyncStatus"
	Trial                    Name = "Trial"
	PictureLabelValue        Name = "PictureLabelValue"
	UserMetadata             Name = "UserMetadata"
	ScalarInputConfig        Name = "ScalarInputConfig"
	Version                  Name = "Version"
)

// DefaultPackage is the protobuf package the bundle's messages live in.
const DefaultPackage = "goosci"

var declared = [...]Name{
	BasicSensorAppearance,
	ScalarSensorData,
	Caption,
	Sensor,
	DeviceSpec,
	SensorConfig,
	Experiment,
	SensorLayout,
	ExperimentLibrary,
	SensorSpec,
	GadgetInfo,
	SensorTrigger,
	IconPath,
	SensorTriggerInformation,
	InputDevice,
	SensorTriggerLabelValue,
	Label,
	SnapshotLabelValue,
	LabelValue,
	TextLabelValue,
	LocalSyncStatus,
	Trial,
	PictureLabelValue,
	UserMetadata,
	ScalarInputConfig,
	Version,
}

var defaultSet = newSet(declared[:])

// Schema is one entry of the catalog. Index is the position of the schema in
// the full declaration list and does not change when a Set omits entries.
type Schema struct {
	Name  Name `json:"name" yaml:"name"`
	Index int  `json:"index" yaml:"index"`
}

// FullName returns the protobuf full name of the schema inside pkg.
// An empty pkg yields the bare message name.
func (s Schema) FullName(pkg string) protoreflect.FullName {
	if pkg == "" {
		return protoreflect.FullName(s.Name)
	}
	return protoreflect.FullName(pkg + "." + string(s.Name))
}

func (s Schema) String() string {
	return string(s.Name)
}

// Set is an immutable, ordered selection of catalog schemas. The zero Set is
// empty.
type Set struct {
	schemas []Schema
	byName  map[Name]Schema
}

func newSet(names []Name) Set {
	set := Set{
		schemas: make([]Schema, 0, len(names)),
		byName:  make(map[Name]Schema, len(names)),
	}
	for i, name := range names {
		s := Schema{Name: name, Index: i}
		set.schemas = append(set.schemas, s)
		set.byName[name] = s
	}
	return set
}

// Default returns the full catalog.
func Default() Set {
	return defaultSet
}

// All returns the schemas in declaration order.
func (s Set) All() []Schema {
	return slices.Clone(s.schemas)
}

// Names returns the schema names in declaration order.
func (s Set) Names() []Name {
	out := make([]Name, len(s.schemas))
	for i, schema := range s.schemas {
		out[i] = schema.Name
	}
	return out
}

// Len returns the number of schemas in the set.
func (s Set) Len() int {
	return len(s.schemas)
}

// Lookup returns the schema registered under name.
func (s Set) Lookup(name Name) (Schema, bool) {
	schema, ok := s.byName[name]
	return schema, ok
}

// Contains reports whether name is part of the set.
func (s Set) Contains(name Name) bool {
	_, ok := s.byName[name]
	return ok
}

// Without returns a copy of the set minus the given schemas. Unknown names
// are ignored.
func (s Set) Without(names ...Name) Set {
	drop := make(map[Name]struct{}, len(names))
	for _, n := range names {
		drop[n] = struct{}{}
	}

	out := Set{byName: make(map[Name]Schema, len(s.schemas))}
	for _, schema := range s.schemas {
		if _, skip := drop[schema.Name]; skip {
			continue
		}
		out.schemas = append(out.schemas, schema)
		out.byName[schema.Name] = schema
	}
	return out
}

// All returns the full catalog in declaration order.
func All() []Schema { return defaultSet.All() }

// Names returns every schema name in declaration order.
func Names() []Name { return defaultSet.Names() }

// Len returns the size of the full catalog.
func Len() int { return defaultSet.Len() }

// Lookup finds a schema in the full catalog.
func Lookup(name Name) (Schema, bool) { return defaultSet.Lookup(name) }

// Contains reports whether name belongs to the full catalog.
func Contains(name Name) bool { return defaultSet.Contains(name) }

// Without returns the full catalog minus the given schemas.
func Without(names ...Name) Set { return defaultSet.Without(names...) }

// Parse converts s into a catalog name. Matching is case sensitive.
func Parse(s string) (Name, error) {
	name := Name(s)
	if !defaultSet.Contains(name) {
		return "", errors.WrapInvalid(
			fmt.Errorf("%w: %q", errors.ErrUnknownSchema, s),
			"Catalog", "Parse", "schema name lookup")
	}
	return name, nil
}
