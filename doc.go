// Package sciencejournal is the schema bundle of Science Journal: the
// catalog of protobuf messages the app persists and exchanges, and the
// version descriptor that identifies the bundle.
//
// # Layout
//
// The bundle itself is two packages with no I/O and no dependencies on each
// other:
//
//   - version: the bundle version descriptor (Number 1.0,
//     "ScienceJournalProtos-1.0"). It does not import the catalog, so the
//     descriptor is unaffected by which schemas the catalog lists.
//   - catalog: the 26 schema names in declaration order, plus Bind, which
//     resolves every name against a set of message types and reports any
//     schema that cannot be resolved.
//
// Message bodies are not defined here. They come from generated bindings or
// from a FileDescriptorSet loaded at runtime (package descriptorset).
//
// Around the bundle sit the packages that put it to work:
//
//   - registry: message factories keyed by catalog name
//   - codec: binary, JSON and text encodings, plus versioned envelopes
//   - catalogstore: manifest publication in a NATS JetStream KV bucket
//   - service: the HTTP catalog server
//   - cmd/sjcatalog: list, check, export, convert and serve from the shell
//
// Supporting packages follow the usual layout: config (JSON file plus SJ_*
// environment overrides), errors (classified errors), metric (Prometheus),
// health, natsclient, pkg/retry, pkg/cache and testutil.
//
// # Binding
//
// Binding is how a consumer proves a bundle is complete:
//
//	bundle, err := catalog.Bind(protoregistry.GlobalTypes)
//	if err != nil {
//		// err wraps errors.ErrUnresolvedSchema and names each missing
//		// schema, e.g. "goosci.Trial".
//	}
//	trial, _ := bundle.New(catalog.Trial)
//
// Binding is idempotent; binding the same resolver twice yields equal
// bundles.
//
// # Checking a descriptor set
//
//	protoc --include_imports --descriptor_set_out=sj.pb *.proto
//	sjcatalog check --descriptors sj.pb
//
// The command exits non-zero and prints one MISSING line per schema the set
// does not provide.
package sciencejournal
