package descriptorset_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/descriptorpb"
	_ "google.golang.org/protobuf/types/known/timestamppb"

	"github.com/googlearchive/science-journal-ios/catalog"
	"github.com/googlearchive/science-journal-ios/descriptorset"
	pkgerrors "github.com/googlearchive/science-journal-ios/errors"
	fixtures "github.com/googlearchive/science-journal-ios/testutil"
)

func writeSet(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "goosci.pb")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestLoadTypes_CompleteBundle(t *testing.T) {
	path := writeSet(t, fixtures.DescriptorSetBytes(t, catalog.Default()))

	types, err := descriptorset.LoadTypes(path)
	require.NoError(t, err)
	assert.Equal(t, catalog.Len(), types.NumMessages())

	bundle, err := catalog.Bind(types)
	require.NoError(t, err)
	assert.Len(t, bundle.Schemas(), catalog.Len())
}

func TestLoadTypes_MissingSchema(t *testing.T) {
	path := writeSet(t, fixtures.DescriptorSetBytes(t, catalog.Without(catalog.Trial)))

	types, err := descriptorset.LoadTypes(path)
	require.NoError(t, err)

	_, err = catalog.Bind(types)
	require.Error(t, err)
	assert.ErrorIs(t, err, pkgerrors.ErrUnresolvedSchema)
	assert.Contains(t, err.Error(), "goosci.Trial")
}

func TestParse_NestedAndImports(t *testing.T) {
	file := fixtures.FileDescriptor(catalog.Default())
	file.Dependency = []string{"google/protobuf/timestamp.proto"}
	schema, ok := catalog.Lookup(catalog.Experiment)
	require.True(t, ok)
	experiment := file.MessageType[schema.Index]
	experiment.NestedType = []*descriptorpb.DescriptorProto{{Name: proto.String("Archive")}}
	experiment.Field = []*descriptorpb.FieldDescriptorProto{{
		Name:     proto.String("created"),
		JsonName: proto.String("created"),
		Number:   proto.Int32(1),
		Label:    descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
		Type:     descriptorpb.FieldDescriptorProto_TYPE_MESSAGE.Enum(),
		TypeName: proto.String(".google.protobuf.Timestamp"),
	}}

	data, err := proto.Marshal(&descriptorpb.FileDescriptorSet{File: []*descriptorpb.FileDescriptorProto{file}})
	require.NoError(t, err)

	files, err := descriptorset.Parse(data)
	require.NoError(t, err)
	assert.Equal(t, 1, files.NumFiles())

	types, err := descriptorset.Types(files)
	require.NoError(t, err)
	assert.Equal(t, catalog.Len()+1, types.NumMessages())

	_, err = types.FindMessageByName("goosci.Experiment.Archive")
	assert.NoError(t, err)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		wantErr error
	}{
		{"garbage", []byte{0xff, 0xff, 0xff}, pkgerrors.ErrParsingFailed},
		{"empty set", nil, pkgerrors.ErrInvalidData},
		{"unresolvable import", func() []byte {
			file := fixtures.FileDescriptor(catalog.Default())
			file.Dependency = []string{"goosci/missing.proto"}
			data, _ := proto.Marshal(&descriptorpb.FileDescriptorSet{File: []*descriptorpb.FileDescriptorProto{file}})
			return data
		}(), pkgerrors.ErrDataCorrupted},
		{"duplicate file", func() []byte {
			file := fixtures.FileDescriptor(catalog.Default())
			data, _ := proto.Marshal(&descriptorpb.FileDescriptorSet{File: []*descriptorpb.FileDescriptorProto{file, file}})
			return data
		}(), pkgerrors.ErrDuplicateSchema},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := descriptorset.Parse(tt.data)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestLoad_Errors(t *testing.T) {
	_, err := descriptorset.Load("")
	assert.ErrorIs(t, err, pkgerrors.ErrMissingConfig)

	_, err = descriptorset.Load(filepath.Join(t.TempDir(), "absent.pb"))
	assert.ErrorIs(t, err, pkgerrors.ErrConfigNotFound)
	assert.True(t, pkgerrors.IsFatal(err))

	_, err = descriptorset.Load(t.TempDir())
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidConfig)

	_, err = descriptorset.Types(nil)
	assert.Error(t, err)
}
