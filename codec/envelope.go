package codec

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"google.golang.org/protobuf/proto"

	"github.com/googlearchive/science-journal-ios/catalog"
	"github.com/googlearchive/science-journal-ios/errors"
	"github.com/googlearchive/science-journal-ios/version"
)

// Envelope carries one encoded message together with the schema and bundle
// version needed to decode it.
type Envelope struct {
	ID            uuid.UUID          `json:"id"`
	Schema        catalog.Name       `json:"schema"`
	BundleVersion version.Descriptor `json:"bundle_version"`
	Format        Format             `json:"format"`
	CreatedAt     time.Time          `json:"created_at"`
	Payload       []byte             `json:"payload"`
}

// Validate checks that the envelope is complete.
func (e *Envelope) Validate() error {
	if e == nil {
		return errors.WrapInvalid(errors.ErrInvalidData, "Envelope", "Validate", "nil envelope")
	}
	if e.ID == uuid.Nil {
		return errors.WrapInvalid(
			fmt.Errorf("%w: missing id", errors.ErrInvalidData), "Envelope", "Validate", "id check")
	}
	if _, err := catalog.Parse(string(e.Schema)); err != nil {
		return errors.Wrap(err, "Envelope", "Validate", "schema check")
	}
	if !e.Format.valid() {
		return errors.WrapInvalid(
			fmt.Errorf("%w: unknown format %q", errors.ErrInvalidData, e.Format), "Envelope", "Validate", "format check")
	}
	if err := e.BundleVersion.Validate(); err != nil {
		return errors.Wrap(err, "Envelope", "Validate", "version check")
	}
	return nil
}

// MarshalEnvelope encodes e as JSON.
func MarshalEnvelope(e *Envelope) ([]byte, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}
	data, err := json.Marshal(e)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Envelope", "Marshal", "json encode")
	}
	return data, nil
}

// UnmarshalEnvelope decodes and validates a JSON envelope.
func UnmarshalEnvelope(data []byte) (*Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %v", errors.ErrParsingFailed, err), "Envelope", "Unmarshal", "json decode")
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return &e, nil
}

// Seal encodes msg and wraps it in an envelope stamped with the current
// bundle version.
func (c *Codec) Seal(msg proto.Message, format Format) (*Envelope, error) {
	if msg == nil {
		return nil, errors.WrapInvalid(errors.ErrInvalidData, "Codec", "Seal", "message validation")
	}

	fullName := msg.ProtoReflect().Descriptor().FullName()
	name := catalog.Name(fullName.Name())
	reg, ok := c.registry.Registration(name)
	if !ok {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %q", errors.ErrUnknownSchema, name), "Codec", "Seal", "schema lookup")
	}
	if reg.FullName != fullName {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %s is registered as %s", errors.ErrSchemaMismatch, fullName, reg.FullName),
			"Codec", "Seal", "schema lookup")
	}

	payload, err := c.Marshal(msg, format)
	if err != nil {
		return nil, errors.Wrap(err, "Codec", "Seal", "payload encode")
	}

	return &Envelope{
		ID:            uuid.New(),
		Schema:        name,
		BundleVersion: version.Current(),
		Format:        format,
		CreatedAt:     time.Now().UTC(),
		Payload:       payload,
	}, nil
}

// Open decodes the envelope payload. Envelopes written by a bundle with a
// different major version are rejected.
func (c *Codec) Open(e *Envelope) (proto.Message, error) {
	if err := e.Validate(); err != nil {
		return nil, errors.Wrap(err, "Codec", "Open", "envelope validation")
	}

	if current := version.Current(); !current.Compatible(e.BundleVersion) {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: envelope %s written by %s, running %s",
				errors.ErrVersionMismatch, e.ID, e.BundleVersion.Text(), current.Text()),
			"Codec", "Open", "version check")
	}

	msg, err := c.Unmarshal(e.Schema, e.Payload, e.Format)
	if err != nil {
		return nil, errors.Wrap(err, "Codec", "Open", "payload decode")
	}
	return msg, nil
}
