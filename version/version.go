// Package version exposes the revision of the Science Journal schema bundle.
//
// Number and String are fixed when the module is built. They do not depend
// on the catalog, so adding or removing a schema never changes them.
package version

import (
	"fmt"
	"math"

	"github.com/googlearchive/science-journal-ios/errors"
)

const (
	// Number is the numeric revision of the schema bundle.
	Number float64 = 1.0

	// String is the display form of the bundle revision.
	String = "ScienceJournalProtos-1.0"
)

// Bytes returns String as a byte sequence. Each call returns a new slice.
func Bytes() []byte {
	return []byte(String)
}

// Descriptor pairs a numeric revision with its display string.
type Descriptor struct {
	Number float64 `json:"number" yaml:"number"`
	String string  `json:"string" yaml:"string"`
}

// Current returns the descriptor of the linked bundle.
func Current() Descriptor {
	return Descriptor{Number: Number, String: String}
}

// Major is the integer part of the revision number.
func (d Descriptor) Major() int {
	return int(math.Floor(d.Number))
}

// Compatible reports whether two bundles share a major revision.
func (d Descriptor) Compatible(other Descriptor) bool {
	return d.Major() == other.Major()
}

// Validate rejects descriptors that could not have come from a build.
func (d Descriptor) Validate() error {
	if d.Number <= 0 || math.IsNaN(d.Number) || math.IsInf(d.Number, 0) {
		return errors.WrapInvalid(
			fmt.Errorf("version number %v must be positive", d.Number),
			"Descriptor", "Validate", "number check")
	}
	if d.String == "" {
		return errors.WrapInvalid(
			fmt.Errorf("version string is empty"),
			"Descriptor", "Validate", "string check")
	}
	return nil
}

func (d Descriptor) Text() string {
	return fmt.Sprintf("%s (%g)", d.String, d.Number)
}
