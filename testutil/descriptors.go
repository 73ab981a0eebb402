package testutil

import (
	"testing"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/dynamicpb"

	"github.com/googlearchive/science-journal-ios/catalog"
)

// FixtureField is the single string field added by WithFixtureField.
const FixtureField = "fixture"

type fixtureOptions struct {
	pkg      string
	withData bool
}

// FixtureOption configures the synthetic descriptors.
type FixtureOption func(*fixtureOptions)

// WithPackage declares the fixture messages in pkg instead of catalog.DefaultPackage.
func WithPackage(pkg string) FixtureOption {
	return func(o *fixtureOptions) { o.pkg = pkg }
}

// WithFixtureField gives every fixture message an optional string field so
// codec tests have something to round-trip.
func WithFixtureField() FixtureOption {
	return func(o *fixtureOptions) { o.withData = true }
}

func applyFixtureOptions(opts []FixtureOption) fixtureOptions {
	o := fixtureOptions{pkg: catalog.DefaultPackage}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// FileDescriptor builds a proto3 file declaring one message per schema in
// set. Message bodies are empty unless WithFixtureField is given.
func FileDescriptor(set catalog.Set, opts ...FixtureOption) *descriptorpb.FileDescriptorProto {
	o := applyFixtureOptions(opts)

	file := &descriptorpb.FileDescriptorProto{
		Name:    proto.String(o.pkg + "/fixtures.proto"),
		Package: proto.String(o.pkg),
		Syntax:  proto.String("proto3"),
	}
	for _, schema := range set.All() {
		msg := &descriptorpb.DescriptorProto{Name: proto.String(string(schema.Name))}
		if o.withData {
			msg.Field = []*descriptorpb.FieldDescriptorProto{{
				Name:     proto.String(FixtureField),
				JsonName: proto.String(FixtureField),
				Number:   proto.Int32(1),
				Label:    descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
				Type:     descriptorpb.FieldDescriptorProto_TYPE_STRING.Enum(),
			}}
		}
		file.MessageType = append(file.MessageType, msg)
	}
	return file
}

// DescriptorSet wraps FileDescriptor in a FileDescriptorSet.
func DescriptorSet(set catalog.Set, opts ...FixtureOption) *descriptorpb.FileDescriptorSet {
	return &descriptorpb.FileDescriptorSet{
		File: []*descriptorpb.FileDescriptorProto{FileDescriptor(set, opts...)},
	}
}

// DescriptorSetBytes returns the serialized FileDescriptorSet, as protoc
// --descriptor_set_out would write it.
func DescriptorSetBytes(t testing.TB, set catalog.Set, opts ...FixtureOption) []byte {
	t.Helper()

	data, err := proto.Marshal(DescriptorSet(set, opts...))
	if err != nil {
		t.Fatalf("marshal descriptor set: %v", err)
	}
	return data
}

// Types returns a resolver holding dynamic message types for every schema in set.
func Types(t testing.TB, set catalog.Set, opts ...FixtureOption) *protoregistry.Types {
	t.Helper()

	fd, err := protodesc.NewFile(FileDescriptor(set, opts...), protoregistry.GlobalFiles)
	if err != nil {
		t.Fatalf("build file descriptor: %v", err)
	}

	types := new(protoregistry.Types)
	messages := fd.Messages()
	for i := 0; i < messages.Len(); i++ {
		if err := types.RegisterMessage(dynamicpb.NewMessageType(messages.Get(i))); err != nil {
			t.Fatalf("register %s: %v", messages.Get(i).FullName(), err)
		}
	}
	return types
}

// Bundle binds set against freshly built fixture types.
func Bundle(t testing.TB, set catalog.Set, opts ...FixtureOption) *catalog.Bundle {
	t.Helper()

	o := applyFixtureOptions(opts)
	bundle, err := set.Bind(Types(t, set, opts...), catalog.WithPackage(o.pkg))
	if err != nil {
		t.Fatalf("bind fixture bundle: %v", err)
	}
	return bundle
}

// SetFixture stores value in the fixture field of msg. msg must come from a
// bundle built WithFixtureField.
func SetFixture(t testing.TB, msg proto.Message, value string) {
	t.Helper()

	m := msg.ProtoReflect()
	fd := m.Descriptor().Fields().ByName(FixtureField)
	if fd == nil {
		t.Fatalf("%s has no %s field", m.Descriptor().FullName(), FixtureField)
	}
	m.Set(fd, protoreflect.ValueOfString(value))
}

// Fixture reads the fixture field of msg.
func Fixture(t testing.TB, msg proto.Message) string {
	t.Helper()

	m := msg.ProtoReflect()
	fd := m.Descriptor().Fields().ByName(FixtureField)
	if fd == nil {
		t.Fatalf("%s has no %s field", m.Descriptor().FullName(), FixtureField)
	}
	return m.Get(fd).String()
}
