// Package catalogstore shares catalog manifests through a NATS JetStream
// key-value bucket so that services can check, before exchanging messages,
// that they were built against compatible schema bundles.
//
// Manifests are stored as JSON under "manifest.<major>", one key per major
// bundle version.
package catalogstore

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/googlearchive/science-journal-ios/catalog"
	"github.com/googlearchive/science-journal-ios/errors"
	"github.com/googlearchive/science-journal-ios/metric"
	"github.com/googlearchive/science-journal-ios/natsclient"
	"github.com/googlearchive/science-journal-ios/pkg/cache"
)

// DefaultBucket is the KV bucket manifests are published to.
const DefaultBucket = "SJ_CATALOG"

const keyPrefix = "manifest."

// KeyValue is the subset of natsclient.KVStore the store needs.
type KeyValue interface {
	Get(ctx context.Context, key string) (*natsclient.KVEntry, error)
	Put(ctx context.Context, key string, value []byte) (uint64, error)
	Keys(ctx context.Context) ([]string, error)
}

// ManifestKey returns the key a manifest of the given major version is
// stored under.
func ManifestKey(major int) string {
	return keyPrefix + strconv.Itoa(major)
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// WithMetrics records store operations.
func WithMetrics(m *metric.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// WithCacheTTL keeps fetched manifests for ttl so repeated compatibility
// checks skip the bucket. Zero disables caching.
func WithCacheTTL(ttl time.Duration) Option {
	return func(s *Store) { s.cacheTTL = ttl }
}

// Store publishes and fetches manifests.
type Store struct {
	kv       KeyValue
	logger   *slog.Logger
	metrics  *metric.Metrics
	cacheTTL time.Duration
	cache    *cache.TTL[[]byte] // raw manifest JSON by key
}

// New creates a store over kv.
func New(kv KeyValue, opts ...Option) *Store {
	s := &Store{kv: kv}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.cacheTTL > 0 {
		c, err := cache.NewTTL[[]byte](context.Background(), s.cacheTTL, 0)
		if err != nil {
			s.logger.Warn("Manifest cache disabled", "error", err)
		} else {
			s.cache = c
		}
	}
	return s
}

// Close releases the manifest cache. The underlying bucket is left open.
func (s *Store) Close() error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Close()
}

// Open gets or creates bucket on a connected client and returns a store
// over it.
func Open(ctx context.Context, client *natsclient.Client, bucket string, opts ...Option) (*Store, error) {
	if client == nil {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "Store", "Open", "client check")
	}
	if bucket == "" {
		bucket = DefaultBucket
	}

	kv, err := client.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{
		Bucket:      bucket,
		Description: "Science Journal schema catalog manifests",
		History:     5,
	})
	if err != nil {
		return nil, errors.Wrap(err, "Store", "Open", fmt.Sprintf("open bucket %s", bucket))
	}
	return New(client.NewKVStore(kv), opts...), nil
}

// Publish validates m and stores it under its major version. It returns the
// KV revision of the write.
func (s *Store) Publish(ctx context.Context, m *catalog.Manifest) (uint64, error) {
	rev, err := s.publish(ctx, m)
	s.metrics.RecordStore("publish", err)
	return rev, err
}

func (s *Store) publish(ctx context.Context, m *catalog.Manifest) (uint64, error) {
	if m == nil {
		return 0, errors.WrapInvalid(errors.ErrInvalidData, "Store", "Publish", "manifest check")
	}
	if err := m.Validate(); err != nil {
		return 0, errors.Wrap(err, "Store", "Publish", "manifest validation")
	}

	data, err := m.JSON()
	if err != nil {
		return 0, errors.Wrap(err, "Store", "Publish", "encode manifest")
	}

	key := ManifestKey(m.Version.Major())
	rev, err := s.kv.Put(ctx, key, data)
	if err != nil {
		return 0, errors.Wrap(err, "Store", "Publish", fmt.Sprintf("put %s", key))
	}

	if s.cache != nil {
		_, _ = s.cache.Set(key, data)
	}

	s.logger.Info("Published catalog manifest",
		"key", key, "revision", rev, "schemas", len(m.Schemas), "version", m.Version.String)
	return rev, nil
}

// Fetch returns the manifest published for a major version. A missing
// manifest is an invalid error wrapping errors.ErrKeyNotFound.
func (s *Store) Fetch(ctx context.Context, major int) (*catalog.Manifest, error) {
	m, err := s.fetch(ctx, major)
	s.metrics.RecordStore("fetch", err)
	return m, err
}

func (s *Store) fetch(ctx context.Context, major int) (*catalog.Manifest, error) {
	key := ManifestKey(major)

	data, cached := s.cachedManifest(key)
	if !cached {
		entry, err := s.kv.Get(ctx, key)
		if err != nil {
			return nil, errors.Wrap(err, "Store", "Fetch", fmt.Sprintf("get %s", key))
		}
		data = entry.Value
	}

	m, err := catalog.DecodeManifest(data)
	if err != nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %s: %v", errors.ErrDataCorrupted, key, err), "Store", "Fetch", "decode manifest")
	}
	if s.cache != nil && !cached {
		_, _ = s.cache.Set(key, data)
	}
	return m, nil
}

func (s *Store) cachedManifest(key string) ([]byte, bool) {
	if s.cache == nil {
		return nil, false
	}
	return s.cache.Get(key)
}

// Majors lists the major versions with a published manifest, ascending.
func (s *Store) Majors(ctx context.Context) ([]int, error) {
	keys, err := s.kv.Keys(ctx)
	s.metrics.RecordStore("list", err)
	if err != nil {
		return nil, errors.Wrap(err, "Store", "Majors", "list keys")
	}

	var majors []int
	for _, key := range keys {
		suffix, ok := strings.CutPrefix(key, keyPrefix)
		if !ok {
			continue
		}
		if major, err := strconv.Atoi(suffix); err == nil {
			majors = append(majors, major)
		}
	}
	sort.Ints(majors)
	return majors, nil
}

// CheckCompatibility compares local with the manifest published for the
// same major version.
func (s *Store) CheckCompatibility(ctx context.Context, local *catalog.Manifest) (catalog.ManifestDiff, error) {
	if local == nil {
		return catalog.ManifestDiff{}, errors.WrapInvalid(errors.ErrInvalidData,
			"Store", "CheckCompatibility", "manifest check")
	}

	remote, err := s.Fetch(ctx, local.Version.Major())
	if err != nil {
		return catalog.ManifestDiff{}, err
	}

	diff := local.Diff(remote)
	if !diff.Compatible() {
		s.logger.Warn("Catalog manifest differs from published one",
			"package_matches", diff.PackageMatches,
			"version_compatible", diff.VersionCompatible,
			"removed", diff.Removed,
			"added", diff.Added)
	}
	return diff, nil
}

// IsNotPublished reports whether err means no manifest exists for the
// requested version.
func IsNotPublished(err error) bool {
	return stderrors.Is(err, errors.ErrKeyNotFound)
}
