// Package descriptorset loads serialized FileDescriptorSets, as written by
// protoc --descriptor_set_out, and turns them into resolvers that
// catalog.Bind accepts. Tooling uses it to check a schema bundle without
// compiled Go bindings.
package descriptorset

import (
	"fmt"
	"os"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/dynamicpb"

	"github.com/googlearchive/science-journal-ios/errors"
)

const maxSetSize = 64 << 20 // 64MB

// Load reads and parses a descriptor set file.
func Load(path string) (*protoregistry.Files, error) {
	if path == "" {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "DescriptorSet", "Load", "path check")
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.WrapFatal(
			fmt.Errorf("%w: %v", errors.ErrConfigNotFound, err), "DescriptorSet", "Load", "stat")
	}
	if !info.Mode().IsRegular() {
		return nil, errors.WrapFatal(
			fmt.Errorf("%w: not a regular file: %s", errors.ErrInvalidConfig, path), "DescriptorSet", "Load", "stat")
	}
	if info.Size() > maxSetSize {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: descriptor set too large: %d bytes > %d", errors.ErrInvalidData, info.Size(), maxSetSize),
			"DescriptorSet", "Load", "size check")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapTransient(err, "DescriptorSet", "Load", "read")
	}
	return Parse(data)
}

// Parse builds a file registry from a serialized FileDescriptorSet. Files
// must be listed after their dependencies, as protoc emits them with
// --include_imports; imports of well-known types resolve from the linked
// runtime.
func Parse(data []byte) (*protoregistry.Files, error) {
	var set descriptorpb.FileDescriptorSet
	if err := proto.Unmarshal(data, &set); err != nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %v", errors.ErrParsingFailed, err), "DescriptorSet", "Parse", "unmarshal")
	}
	if len(set.GetFile()) == 0 {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: descriptor set has no files", errors.ErrInvalidData), "DescriptorSet", "Parse", "file check")
	}

	files := new(protoregistry.Files)
	resolver := chainResolver{files}
	for _, fdp := range set.GetFile() {
		fd, err := protodesc.NewFile(fdp, resolver)
		if err != nil {
			return nil, errors.WrapInvalid(
				fmt.Errorf("%w: %s: %v", errors.ErrDataCorrupted, fdp.GetName(), err),
				"DescriptorSet", "Parse", "build file")
		}
		if err := files.RegisterFile(fd); err != nil {
			return nil, errors.WrapInvalid(
				fmt.Errorf("%w: %s: %v", errors.ErrDuplicateSchema, fdp.GetName(), err),
				"DescriptorSet", "Parse", "register file")
		}
	}
	return files, nil
}

// Types creates dynamic message types for every message declared in files,
// including nested messages.
func Types(files *protoregistry.Files) (*protoregistry.Types, error) {
	if files == nil {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "DescriptorSet", "Types", "files check")
	}

	types := new(protoregistry.Types)
	var rangeErr error
	files.RangeFiles(func(fd protoreflect.FileDescriptor) bool {
		rangeErr = registerMessages(types, fd.Messages())
		return rangeErr == nil
	})
	if rangeErr != nil {
		return nil, errors.WrapInvalid(rangeErr, "DescriptorSet", "Types", "register message")
	}
	return types, nil
}

// LoadTypes is Load followed by Types.
func LoadTypes(path string) (*protoregistry.Types, error) {
	files, err := Load(path)
	if err != nil {
		return nil, err
	}
	return Types(files)
}

func registerMessages(types *protoregistry.Types, messages protoreflect.MessageDescriptors) error {
	for i := 0; i < messages.Len(); i++ {
		md := messages.Get(i)
		if md.IsMapEntry() {
			continue
		}
		if err := types.RegisterMessage(dynamicpb.NewMessageType(md)); err != nil {
			return err
		}
		if err := registerMessages(types, md.Messages()); err != nil {
			return err
		}
	}
	return nil
}

// chainResolver looks up dependencies in the set being built first, then in
// the global registry of linked files.
type chainResolver struct {
	local *protoregistry.Files
}

func (r chainResolver) FindFileByPath(path string) (protoreflect.FileDescriptor, error) {
	if fd, err := r.local.FindFileByPath(path); err == nil {
		return fd, nil
	}
	return protoregistry.GlobalFiles.FindFileByPath(path)
}

func (r chainResolver) FindDescriptorByName(name protoreflect.FullName) (protoreflect.Descriptor, error) {
	if d, err := r.local.FindDescriptorByName(name); err == nil {
		return d, nil
	}
	return protoregistry.GlobalFiles.FindDescriptorByName(name)
}
