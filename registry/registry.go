// Package registry maps catalog schema names to message factories. It is the
// runtime lookup table codecs and servers use to create typed messages.
package registry

import (
	"fmt"
	"log/slog"
	"sync"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"

	"github.com/googlearchive/science-journal-ios/catalog"
	"github.com/googlearchive/science-journal-ios/errors"
	"github.com/googlearchive/science-journal-ios/metric"
)

// MessageFactory creates an empty message for one schema.
type MessageFactory func() proto.Message

// Registration holds a factory and metadata for a schema.
type Registration struct {
	Schema      catalog.Name          `json:"schema"`
	FullName    protoreflect.FullName `json:"full_name"`
	Description string                `json:"description,omitempty"`
	Factory     MessageFactory        `json:"-"`

	desc protoreflect.MessageDescriptor
}

func (r *Registration) copyWithoutFactory() *Registration {
	return &Registration{
		Schema:      r.Schema,
		FullName:    r.FullName,
		Description: r.Description,
	}
}

// Option configures a MessageRegistry.
type Option func(*MessageRegistry)

// WithMetrics records registry activity.
func WithMetrics(m *metric.Metrics) Option {
	return func(r *MessageRegistry) { r.metrics = m }
}

// WithLogger sets the registry logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *MessageRegistry) { r.logger = logger }
}

// WithCatalog restricts the registry to a subset of the catalog.
func WithCatalog(set catalog.Set) Option {
	return func(r *MessageRegistry) { r.set = set }
}

// WithPackage sets the protobuf package registered messages must belong to.
// It defaults to catalog.DefaultPackage.
func WithPackage(pkg string) Option {
	return func(r *MessageRegistry) { r.pkg = pkg }
}

// MessageRegistry is a thread-safe table of message factories keyed by
// catalog name.
type MessageRegistry struct {
	registrations map[catalog.Name]*Registration
	set           catalog.Set
	pkg           string
	metrics       *metric.Metrics
	logger        *slog.Logger
	mu            sync.RWMutex
}

// New creates an empty registry over the full catalog.
func New(opts ...Option) *MessageRegistry {
	r := &MessageRegistry{
		registrations: make(map[catalog.Name]*Registration),
		set:           catalog.Default(),
		pkg:           catalog.DefaultPackage,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// Package returns the protobuf package the registry accepts messages from.
func (r *MessageRegistry) Package() string {
	return r.pkg
}

// Register adds a factory for a catalog schema. The factory must produce the
// schema's message in the registry package. Registering the same message
// type twice is a no-op; a different definition under the same name is
// rejected.
func (r *MessageRegistry) Register(reg *Registration) error {
	desc, err := r.validate(reg)
	if err != nil {
		r.metrics.RecordRegistration("rejected")
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	fullName := desc.FullName()
	if existing, ok := r.registrations[reg.Schema]; ok {
		if sameDefinition(existing.desc, desc) {
			r.metrics.RecordRegistration("repeat")
			return nil
		}
		r.metrics.RecordRegistration("rejected")
		return errors.WrapInvalid(
			fmt.Errorf("%w: %s is already bound to a different definition of %s",
				errors.ErrDuplicateSchema, reg.Schema, existing.FullName),
			"MessageRegistry", "Register", "duplicate schema check")
	}

	stored := *reg
	stored.FullName = fullName
	stored.desc = desc
	r.registrations[reg.Schema] = &stored
	r.metrics.RecordRegistration("new")
	r.metrics.RecordSchemasRegistered(len(r.registrations))
	r.logger.Debug("Registered schema", "schema", reg.Schema, "full_name", fullName)
	return nil
}

func (r *MessageRegistry) validate(reg *Registration) (protoreflect.MessageDescriptor, error) {
	if reg == nil {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig,
			"MessageRegistry", "Register", "registration validation")
	}
	schema, ok := r.set.Lookup(reg.Schema)
	if !ok {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %q", errors.ErrUnknownSchema, reg.Schema),
			"MessageRegistry", "Register", "schema name validation")
	}
	if reg.Factory == nil {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig,
			"MessageRegistry", "Register", "factory function validation")
	}

	msg := reg.Factory()
	if msg == nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("factory for %s returned nil", reg.Schema),
			"MessageRegistry", "Register", "factory function validation")
	}
	desc := msg.ProtoReflect().Descriptor()
	got := desc.FullName()
	if want := schema.FullName(r.pkg); got != want {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %s produces %s, want %s", errors.ErrSchemaMismatch, reg.Schema, got, want),
			"MessageRegistry", "Register", "message type validation")
	}
	if reg.FullName != "" && reg.FullName != got {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %s declared as %s but produces %s", errors.ErrSchemaMismatch, reg.Schema, reg.FullName, got),
			"MessageRegistry", "Register", "message type validation")
	}
	return desc, nil
}

func sameDefinition(a, b protoreflect.MessageDescriptor) bool {
	if a == b {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return proto.Equal(protodesc.ToDescriptorProto(a), protodesc.ToDescriptorProto(b))
}

// RegisterBundle registers every schema of a bound bundle. The bundle must be
// bound in the registry package.
func (r *MessageRegistry) RegisterBundle(bundle *catalog.Bundle) error {
	if bundle == nil {
		return errors.WrapFatal(errors.ErrMissingConfig,
			"MessageRegistry", "RegisterBundle", "bundle validation")
	}
	if bundle.Package() != r.pkg {
		return errors.WrapInvalid(
			fmt.Errorf("%w: bundle package %q, registry package %q",
				errors.ErrSchemaMismatch, bundle.Package(), r.pkg),
			"MessageRegistry", "RegisterBundle", "package validation")
	}

	for _, schema := range bundle.Schemas() {
		mt, ok := bundle.Type(schema.Name)
		if !ok {
			continue
		}
		err := r.Register(&Registration{
			Schema:   schema.Name,
			FullName: mt.Descriptor().FullName(),
			Factory:  func() proto.Message { return mt.New().Interface() },
		})
		if err != nil {
			return errors.Wrap(err, "MessageRegistry", "RegisterBundle",
				fmt.Sprintf("register %s", schema.Name))
		}
	}
	return nil
}

// Create returns a new message for name, or nil if name is not registered.
func (r *MessageRegistry) Create(name catalog.Name) proto.Message {
	r.mu.RLock()
	reg, ok := r.registrations[name]
	r.mu.RUnlock()

	r.metrics.RecordLookup(string(name), ok)
	if !ok {
		return nil
	}
	return reg.Factory()
}

// Registration returns a copy of the registration for name without its factory.
func (r *MessageRegistry) Registration(name catalog.Name) (*Registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reg, ok := r.registrations[name]
	if !ok {
		return nil, false
	}
	return reg.copyWithoutFactory(), true
}

// List returns copies of all registrations in catalog order.
func (r *MessageRegistry) List() []*Registration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Registration, 0, len(r.registrations))
	for _, name := range r.set.Names() {
		if reg, ok := r.registrations[name]; ok {
			out = append(out, reg.copyWithoutFactory())
		}
	}
	return out
}

// Len returns the number of registered schemas.
func (r *MessageRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.registrations)
}

// Missing lists catalog schemas that have no registration, in catalog order.
func (r *MessageRegistry) Missing() []catalog.Name {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var missing []catalog.Name
	for _, name := range r.set.Names() {
		if _, ok := r.registrations[name]; !ok {
			missing = append(missing, name)
		}
	}
	return missing
}

// Verify fails with an unresolved-schema error naming every schema that has
// no registration.
func (r *MessageRegistry) Verify() error {
	missing := r.Missing()
	if len(missing) == 0 {
		return nil
	}
	for _, name := range missing {
		r.metrics.RecordUnresolved(string(name))
	}
	return errors.WrapInvalid(
		&catalog.UnresolvedError{Package: r.pkg, Missing: missing},
		"MessageRegistry", "Verify", "completeness check")
}
