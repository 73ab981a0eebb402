package catalog

import (
	stderrors "errors"
	"fmt"
	"strings"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"

	"github.com/googlearchive/science-journal-ios/errors"
	"github.com/googlearchive/science-journal-ios/version"
)

// UnresolvedError lists the schemas a resolver could not provide.
type UnresolvedError struct {
	Package string
	Missing []Name
}

func (e *UnresolvedError) Error() string {
	full := make([]string, len(e.Missing))
	for i, name := range e.Missing {
		full[i] = string(Schema{Name: name}.FullName(e.Package))
	}
	return fmt.Sprintf("%s: %s", errors.ErrUnresolvedSchema, strings.Join(full, ", "))
}

func (e *UnresolvedError) Unwrap() error {
	return errors.ErrUnresolvedSchema
}

type bindOptions struct {
	pkg string
}

// Option configures Bind.
type Option func(*bindOptions)

// WithPackage overrides the protobuf package the schemas are resolved in.
func WithPackage(pkg string) Option {
	return func(o *bindOptions) {
		o.pkg = pkg
	}
}

// Bundle is a catalog whose every schema resolved to a message type.
type Bundle struct {
	pkg   string
	set   Set
	types map[Name]protoreflect.MessageType
}

// Bind resolves the full catalog. A nil resolver uses
// protoregistry.GlobalTypes, which generated bindings populate on import.
func Bind(resolver protoregistry.MessageTypeResolver, opts ...Option) (*Bundle, error) {
	return defaultSet.Bind(resolver, opts...)
}

// Bind resolves every schema of the set. It fails with an *UnresolvedError
// naming all missing schemas; partial bundles are never returned.
func (s Set) Bind(resolver protoregistry.MessageTypeResolver, opts ...Option) (*Bundle, error) {
	o := bindOptions{pkg: DefaultPackage}
	for _, opt := range opts {
		opt(&o)
	}
	if resolver == nil {
		resolver = protoregistry.GlobalTypes
	}

	types := make(map[Name]protoreflect.MessageType, len(s.schemas))
	var missing []Name
	for _, schema := range s.schemas {
		mt, err := resolver.FindMessageByName(schema.FullName(o.pkg))
		if err != nil {
			if !stderrors.Is(err, protoregistry.NotFound) {
				return nil, errors.WrapTransient(err, "Catalog", "Bind",
					fmt.Sprintf("resolve %s", schema.FullName(o.pkg)))
			}
			missing = append(missing, schema.Name)
			continue
		}
		types[schema.Name] = mt
	}

	if len(missing) > 0 {
		return nil, errors.WrapInvalid(
			&UnresolvedError{Package: o.pkg, Missing: missing},
			"Catalog", "Bind", "schema resolution")
	}

	return &Bundle{pkg: o.pkg, set: s, types: types}, nil
}

// Package returns the protobuf package the bundle was resolved in.
func (b *Bundle) Package() string {
	return b.pkg
}

// Schemas returns the bound schemas in declaration order.
func (b *Bundle) Schemas() []Schema {
	return b.set.All()
}

// Set returns the catalog selection the bundle was bound from.
func (b *Bundle) Set() Set {
	return b.set
}

// Type returns the message type bound to name.
func (b *Bundle) Type(name Name) (protoreflect.MessageType, bool) {
	mt, ok := b.types[name]
	return mt, ok
}

// New returns a new, empty message of the named schema.
func (b *Bundle) New(name Name) (proto.Message, error) {
	mt, ok := b.types[name]
	if !ok {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %q", errors.ErrUnknownSchema, name),
			"Bundle", "New", "schema lookup")
	}
	return mt.New().Interface(), nil
}

// Version returns the bundle's version descriptor.
func (b *Bundle) Version() version.Descriptor {
	return version.Current()
}

// Manifest describes the bundle.
func (b *Bundle) Manifest() *Manifest {
	return NewManifest(b.set, b.pkg)
}
