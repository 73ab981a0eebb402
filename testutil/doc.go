// Package testutil provides fixtures for tests of the schema catalog.
//
// Fixture descriptors: FileDescriptor, DescriptorSet and Types synthesise a
// proto3 file that declares one message per catalog schema. Bodies are empty
// unless WithFixtureField adds a single string field, which is enough for
// codec round trips without generated bindings:
//
//	bundle := testutil.Bundle(t, catalog.Default(), testutil.WithFixtureField())
//	msg, _ := bundle.New(catalog.Trial)
//	testutil.SetFixture(t, msg, "run 1")
//
// Removing a schema from the input set models a bundle with a dangling
// reference:
//
//	types := testutil.Types(t, catalog.Without(catalog.Trial))
//	_, err := catalog.Bind(types) // names goosci.Trial
//
// MockKVStore is an in-memory, thread-safe stand-in for natsclient.KVStore.
// Use it for unit tests; tests against a real server use
// natsclient.NewTestClient and the integration build tag.
package testutil
