package codec

import (
	"fmt"
	"strings"

	"github.com/googlearchive/science-journal-ios/errors"
)

// Format is a protobuf wire representation.
type Format string

// Supported formats.
const (
	FormatBinary Format = "binary"
	FormatJSON   Format = "json"
	FormatText   Format = "text"
)

// ParseFormat accepts a format name, case-insensitively. An empty string is
// the binary format.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatBinary, "proto", "protobuf":
		return FormatBinary, nil
	case FormatJSON, "protojson":
		return FormatJSON, nil
	case FormatText, "prototext":
		return FormatText, nil
	}
	return "", errors.WrapInvalid(
		fmt.Errorf("%w: unknown format %q", errors.ErrInvalidData, s),
		"Codec", "ParseFormat", "format lookup")
}

// ContentType returns the HTTP media type for f.
func (f Format) ContentType() string {
	switch f {
	case FormatJSON:
		return "application/json"
	case FormatText:
		return "text/plain; charset=utf-8"
	default:
		return "application/x-protobuf"
	}
}

func (f Format) String() string { return string(f) }

func (f Format) valid() bool {
	return f == FormatBinary || f == FormatJSON || f == FormatText
}
