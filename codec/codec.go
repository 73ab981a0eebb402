// Package codec encodes and decodes catalog messages in the binary, JSON and
// text protobuf formats, and wraps encoded payloads in self-describing
// envelopes.
//
// Messages are created through a registry.MessageRegistry, so the codec works
// equally with generated bindings and with dynamic types built from a
// descriptor set.
package codec

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/encoding/prototext"
	"google.golang.org/protobuf/proto"

	"github.com/googlearchive/science-journal-ios/catalog"
	"github.com/googlearchive/science-journal-ios/errors"
	"github.com/googlearchive/science-journal-ios/metric"
	"github.com/googlearchive/science-journal-ios/registry"
)

// Option configures a Codec.
type Option func(*Codec)

// WithMetrics records codec operations.
func WithMetrics(m *metric.Metrics) Option {
	return func(c *Codec) { c.metrics = m }
}

// Codec marshals and unmarshals catalog messages.
type Codec struct {
	registry *registry.MessageRegistry
	metrics  *metric.Metrics

	jsonMarshal   protojson.MarshalOptions
	jsonUnmarshal protojson.UnmarshalOptions
	textMarshal   prototext.MarshalOptions
}

// New creates a codec that resolves schemas through reg.
func New(reg *registry.MessageRegistry, opts ...Option) *Codec {
	c := &Codec{
		registry:      reg,
		jsonMarshal:   protojson.MarshalOptions{UseProtoNames: true},
		jsonUnmarshal: protojson.UnmarshalOptions{DiscardUnknown: true},
		textMarshal:   prototext.MarshalOptions{Multiline: true},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Marshal encodes msg in format.
func (c *Codec) Marshal(msg proto.Message, format Format) ([]byte, error) {
	start := time.Now()
	data, err := c.marshal(msg, format)
	c.metrics.RecordCodec("encode", format.String(), err, time.Since(start))
	return data, err
}

func (c *Codec) marshal(msg proto.Message, format Format) ([]byte, error) {
	if msg == nil {
		return nil, errors.WrapInvalid(errors.ErrInvalidData, "Codec", "Marshal", "message validation")
	}

	var (
		data []byte
		err  error
	)
	switch format {
	case FormatBinary:
		data, err = proto.MarshalOptions{Deterministic: true}.Marshal(msg)
	case FormatJSON:
		data, err = c.jsonMarshal.Marshal(msg)
	case FormatText:
		data, err = c.textMarshal.Marshal(msg)
	default:
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: unknown format %q", errors.ErrInvalidData, format),
			"Codec", "Marshal", "format lookup")
	}
	if err != nil {
		return nil, errors.WrapInvalid(err, "Codec", "Marshal", fmt.Sprintf("%s encode", format))
	}
	return data, nil
}

// Unmarshal decodes data as the named schema.
func (c *Codec) Unmarshal(name catalog.Name, data []byte, format Format) (proto.Message, error) {
	start := time.Now()
	msg, err := c.unmarshal(name, data, format)
	c.metrics.RecordCodec("decode", format.String(), err, time.Since(start))
	return msg, err
}

func (c *Codec) unmarshal(name catalog.Name, data []byte, format Format) (proto.Message, error) {
	msg := c.registry.Create(name)
	if msg == nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %q", errors.ErrUnknownSchema, name),
			"Codec", "Unmarshal", "message creation")
	}

	var err error
	switch format {
	case FormatBinary:
		err = proto.Unmarshal(data, msg)
	case FormatJSON:
		err = c.jsonUnmarshal.Unmarshal(data, msg)
	case FormatText:
		err = prototext.Unmarshal(data, msg)
	default:
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: unknown format %q", errors.ErrInvalidData, format),
			"Codec", "Unmarshal", "format lookup")
	}
	if err != nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %s: %v", errors.ErrParsingFailed, name, err),
			"Codec", "Unmarshal", fmt.Sprintf("%s decode", format))
	}
	return msg, nil
}
