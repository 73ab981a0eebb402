// Package natsclient manages the NATS connection used to share catalog
// manifests between services through JetStream key-value buckets.
//
// The client dials with exponential backoff (pkg/retry), tracks connection
// state through the NATS reconnect callbacks, and maps KV failures onto the
// catalog error classes: a missing key is an invalid error wrapping
// errors.ErrKeyNotFound, server and network failures are transient.
//
// # Basic Usage
//
//	client, err := natsclient.NewClient("nats://localhost:4222",
//	    natsclient.WithTimeout(5*time.Second),
//	    natsclient.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	if err := client.Connect(ctx); err != nil {
//	    return err
//	}
//	defer client.Close(ctx)
//
//	bucket, err := client.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{Bucket: "SJ_CATALOG"})
//	if err != nil {
//	    return err
//	}
//	kv := client.NewKVStore(bucket)
//	entry, err := kv.Get(ctx, "manifest.1")
//
// # Testing
//
// NewTestClient starts a NATS server in a container through testcontainers
// and returns a connected Client. Tests that use it carry the integration
// build tag:
//
//	tc := natsclient.NewTestClient(t, natsclient.WithKVBuckets("SJ_CATALOG"))
//	bucket, _ := tc.GetKVBucket(ctx, "SJ_CATALOG")
package natsclient
