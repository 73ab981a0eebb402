package codec_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/testing/protocmp"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/googlearchive/science-journal-ios/catalog"
	"github.com/googlearchive/science-journal-ios/codec"
	pkgerrors "github.com/googlearchive/science-journal-ios/errors"
	"github.com/googlearchive/science-journal-ios/metric"
	"github.com/googlearchive/science-journal-ios/registry"
	fixtures "github.com/googlearchive/science-journal-ios/testutil"
	"github.com/googlearchive/science-journal-ios/version"
)

func newCodec(t *testing.T, opts ...codec.Option) (*codec.Codec, *registry.MessageRegistry) {
	t.Helper()

	reg := registry.New()
	require.NoError(t, reg.RegisterBundle(fixtures.Bundle(t, catalog.Default(), fixtures.WithFixtureField())))
	return codec.New(reg, opts...), reg
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    codec.Format
		wantErr bool
	}{
		{"", codec.FormatBinary, false},
		{"binary", codec.FormatBinary, false},
		{"proto", codec.FormatBinary, false},
		{"JSON", codec.FormatJSON, false},
		{"protojson", codec.FormatJSON, false},
		{" text ", codec.FormatText, false},
		{"xml", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := codec.ParseFormat(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, pkgerrors.IsInvalid(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormat_ContentType(t *testing.T) {
	assert.Equal(t, "application/x-protobuf", codec.FormatBinary.ContentType())
	assert.Equal(t, "application/json", codec.FormatJSON.ContentType())
	assert.Contains(t, codec.FormatText.ContentType(), "text/plain")
}

func TestCodec_RoundTrip(t *testing.T) {
	c, reg := newCodec(t)

	for _, format := range []codec.Format{codec.FormatBinary, codec.FormatJSON, codec.FormatText} {
		t.Run(string(format), func(t *testing.T) {
			msg := reg.Create(catalog.Experiment)
			require.NotNil(t, msg)
			fixtures.SetFixture(t, msg, "pendulum period")

			data, err := c.Marshal(msg, format)
			require.NoError(t, err)
			require.NotEmpty(t, data)

			got, err := c.Unmarshal(catalog.Experiment, data, format)
			require.NoError(t, err)
			if diff := cmp.Diff(msg, got, protocmp.Transform()); diff != "" {
				t.Errorf("round trip mismatch (-want +got):\n%s", diff)
			}
			assert.Equal(t, "pendulum period", fixtures.Fixture(t, got))
		})
	}
}

func TestCodec_JSONUsesFieldNames(t *testing.T) {
	c, reg := newCodec(t)
	msg := reg.Create(catalog.Caption)
	fixtures.SetFixture(t, msg, "hello")

	data, err := c.Marshal(msg, codec.FormatJSON)
	require.NoError(t, err)
	assert.JSONEq(t, `{"fixture":"hello"}`, string(data))
}

func TestCodec_Errors(t *testing.T) {
	c, reg := newCodec(t)

	t.Run("marshal nil", func(t *testing.T) {
		_, err := c.Marshal(nil, codec.FormatBinary)
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidData)
	})

	t.Run("marshal unknown format", func(t *testing.T) {
		_, err := c.Marshal(reg.Create(catalog.Label), codec.Format("xml"))
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidData)
	})

	t.Run("unmarshal unknown schema", func(t *testing.T) {
		_, err := c.Unmarshal("Notebook", []byte{}, codec.FormatBinary)
		assert.ErrorIs(t, err, pkgerrors.ErrUnknownSchema)
	})

	t.Run("unmarshal garbage binary", func(t *testing.T) {
		_, err := c.Unmarshal(catalog.Label, []byte{0xff, 0xff, 0xff}, codec.FormatBinary)
		require.Error(t, err)
		assert.ErrorIs(t, err, pkgerrors.ErrParsingFailed)
		assert.True(t, pkgerrors.IsInvalid(err))
	})

	t.Run("unmarshal garbage json", func(t *testing.T) {
		_, err := c.Unmarshal(catalog.Label, []byte(`{"fixture":`), codec.FormatJSON)
		assert.ErrorIs(t, err, pkgerrors.ErrParsingFailed)
	})

	t.Run("unmarshal unknown format", func(t *testing.T) {
		_, err := c.Unmarshal(catalog.Label, nil, codec.Format("xml"))
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidData)
	})
}

func TestCodec_JSONDiscardsUnknownFields(t *testing.T) {
	c, _ := newCodec(t)

	got, err := c.Unmarshal(catalog.Trial, []byte(`{"fixture":"a","recorded_by":"b"}`), codec.FormatJSON)
	require.NoError(t, err)
	assert.Equal(t, "a", fixtures.Fixture(t, got))
}

func TestSealOpen(t *testing.T) {
	c, reg := newCodec(t)
	msg := reg.Create(catalog.Trial)
	fixtures.SetFixture(t, msg, "run 3")

	env, err := c.Seal(msg, codec.FormatJSON)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, env.ID)
	assert.Equal(t, catalog.Trial, env.Schema)
	assert.Equal(t, version.Current(), env.BundleVersion)
	assert.Equal(t, codec.FormatJSON, env.Format)

	data, err := codec.MarshalEnvelope(env)
	require.NoError(t, err)

	decoded, err := codec.UnmarshalEnvelope(data)
	require.NoError(t, err)
	assert.Equal(t, env.ID, decoded.ID)
	assert.Equal(t, env.Payload, decoded.Payload)

	got, err := c.Open(decoded)
	require.NoError(t, err)
	if diff := cmp.Diff(msg, got, protocmp.Transform()); diff != "" {
		t.Errorf("open mismatch (-want +got):\n%s", diff)
	}
}

func TestSeal_UnregisteredType(t *testing.T) {
	c, _ := newCodec(t)

	_, err := c.Seal(wrapperspb.String("x"), codec.FormatBinary)
	assert.ErrorIs(t, err, pkgerrors.ErrUnknownSchema)

	_, err = c.Seal(nil, codec.FormatBinary)
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidData)
}

func TestSeal_ForeignPackage(t *testing.T) {
	c, _ := newCodec(t)

	other := fixtures.Bundle(t, catalog.Default(), fixtures.WithPackage("other"), fixtures.WithFixtureField())
	msg, err := other.New(catalog.Trial)
	require.NoError(t, err)

	env, err := c.Seal(msg, codec.FormatBinary)
	require.Error(t, err)
	assert.Nil(t, env)
	assert.ErrorIs(t, err, pkgerrors.ErrSchemaMismatch)
	assert.True(t, pkgerrors.IsInvalid(err))
	assert.Contains(t, err.Error(), "other.Trial")
}

func TestOpen_VersionMismatch(t *testing.T) {
	c, reg := newCodec(t)

	env, err := c.Seal(reg.Create(catalog.Label), codec.FormatBinary)
	require.NoError(t, err)

	env.BundleVersion = version.Descriptor{Number: version.Number + 1, String: "ScienceJournalProtos-2.0"}
	_, err = c.Open(env)
	require.Error(t, err)
	assert.ErrorIs(t, err, pkgerrors.ErrVersionMismatch)

	env.BundleVersion = version.Descriptor{Number: version.Number + 0.5, String: "ScienceJournalProtos-1.5"}
	_, err = c.Open(env)
	assert.NoError(t, err, "minor revisions stay compatible")
}

func TestEnvelope_Validate(t *testing.T) {
	valid := func() *codec.Envelope {
		return &codec.Envelope{
			ID:            uuid.New(),
			Schema:        catalog.Label,
			BundleVersion: version.Current(),
			Format:        codec.FormatBinary,
		}
	}

	tests := []struct {
		name    string
		mutate  func(*codec.Envelope)
		wantErr error
	}{
		{"valid", func(*codec.Envelope) {}, nil},
		{"nil id", func(e *codec.Envelope) { e.ID = uuid.Nil }, pkgerrors.ErrInvalidData},
		{"unknown schema", func(e *codec.Envelope) { e.Schema = "Notebook" }, pkgerrors.ErrUnknownSchema},
		{"empty format", func(e *codec.Envelope) { e.Format = "" }, pkgerrors.ErrInvalidData},
		{"bad version", func(e *codec.Envelope) { e.BundleVersion = version.Descriptor{} }, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := valid()
			tt.mutate(env)
			err := env.Validate()
			switch {
			case tt.name == "valid":
				assert.NoError(t, err)
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			default:
				assert.Error(t, err)
			}
		})
	}

	var nilEnv *codec.Envelope
	assert.Error(t, nilEnv.Validate())
}

func TestUnmarshalEnvelope_Invalid(t *testing.T) {
	_, err := codec.UnmarshalEnvelope([]byte("{"))
	assert.ErrorIs(t, err, pkgerrors.ErrParsingFailed)

	_, err = codec.UnmarshalEnvelope([]byte(`{"schema":"Label"}`))
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidData)
}

func TestCodec_Metrics(t *testing.T) {
	m := metric.NewMetrics()
	c, reg := newCodec(t, codec.WithMetrics(m))

	data, err := c.Marshal(reg.Create(catalog.Sensor), codec.FormatBinary)
	require.NoError(t, err)
	_, err = c.Unmarshal(catalog.Sensor, data, codec.FormatBinary)
	require.NoError(t, err)
	_, _ = c.Unmarshal(catalog.Sensor, []byte{0xff}, codec.FormatBinary)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.CodecOperations.WithLabelValues("encode", "binary", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CodecOperations.WithLabelValues("decode", "binary", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CodecOperations.WithLabelValues("decode", "binary", "error")))
}
