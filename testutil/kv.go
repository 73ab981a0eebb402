package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/googlearchive/science-journal-ios/errors"
	"github.com/googlearchive/science-journal-ios/natsclient"
)

// MockKVStore is an in-memory stand-in for natsclient.KVStore.
// Thread-safe for concurrent use from multiple goroutines.
type MockKVStore struct {
	mu       sync.RWMutex
	data     map[string]*natsclient.KVEntry
	revision uint64

	// Err, when set, is returned by every operation.
	Err error
}

// NewMockKVStore creates a new mock KV store.
func NewMockKVStore() *MockKVStore {
	return &MockKVStore{
		data: make(map[string]*natsclient.KVEntry),
	}
}

// Put stores a value and returns its revision.
func (kv *MockKVStore) Put(ctx context.Context, key string, value []byte) (uint64, error) {
	if err := kv.check(ctx); err != nil {
		return 0, err
	}

	kv.mu.Lock()
	defer kv.mu.Unlock()

	kv.revision++
	stored := make([]byte, len(value))
	copy(stored, value)
	kv.data[key] = &natsclient.KVEntry{Key: key, Value: stored, Revision: kv.revision}
	return kv.revision, nil
}

// Get retrieves a copy of the entry.
func (kv *MockKVStore) Get(ctx context.Context, key string) (*natsclient.KVEntry, error) {
	if err := kv.check(ctx); err != nil {
		return nil, err
	}

	kv.mu.RLock()
	defer kv.mu.RUnlock()

	entry, ok := kv.data[key]
	if !ok {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %s", errors.ErrKeyNotFound, key), "MockKVStore", "Get", "kv get")
	}
	// Return a copy to prevent races on the returned slice
	value := make([]byte, len(entry.Value))
	copy(value, entry.Value)
	return &natsclient.KVEntry{Key: key, Value: value, Revision: entry.Revision}, nil
}

// Delete removes a key.
func (kv *MockKVStore) Delete(ctx context.Context, key string) error {
	if err := kv.check(ctx); err != nil {
		return err
	}

	kv.mu.Lock()
	defer kv.mu.Unlock()

	if _, ok := kv.data[key]; !ok {
		return errors.WrapInvalid(
			fmt.Errorf("%w: %s", errors.ErrKeyNotFound, key), "MockKVStore", "Delete", "kv delete")
	}
	delete(kv.data, key)
	return nil
}

// Keys returns all keys in sorted order.
func (kv *MockKVStore) Keys(ctx context.Context) ([]string, error) {
	if err := kv.check(ctx); err != nil {
		return nil, err
	}

	kv.mu.RLock()
	defer kv.mu.RUnlock()

	keys := make([]string, 0, len(kv.data))
	for k := range kv.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// Clear removes all keys.
func (kv *MockKVStore) Clear() {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	kv.data = make(map[string]*natsclient.KVEntry)
}

func (kv *MockKVStore) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return errors.WrapTransient(err, "MockKVStore", "check", "context")
	}
	if kv.Err != nil {
		return kv.Err
	}
	return nil
}
