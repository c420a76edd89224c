package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// DefaultBucket is the KV bucket holding session records.
const DefaultBucket = "INTAKE_SESSIONS"

// KVBackend stores records in a NATS JetStream key/value bucket.
type KVBackend struct {
	nc *nats.Conn
	kv jetstream.KeyValue
}

// DialKV connects to NATS and opens (or creates) the bucket.
func DialKV(ctx context.Context, url, bucket string) (*KVBackend, error) {
	nc, err := nats.Connect(url,
		nats.Name("intake"),
		nats.RetryOnFailedConnect(false),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream init: %w", err)
	}

	b, err := NewKVBackend(ctx, js, bucket)
	if err != nil {
		nc.Close()
		return nil, err
	}
	b.nc = nc
	return b, nil
}

// NewKVBackend opens the bucket on an existing JetStream context, creating it
// if it doesn't exist. The caller keeps ownership of the connection.
func NewKVBackend(ctx context.Context, js jetstream.JetStream, bucket string) (*KVBackend, error) {
	if bucket == "" {
		bucket = DefaultBucket
	}
	kv, err := getOrCreateBucket(ctx, js, bucket)
	if err != nil {
		return nil, fmt.Errorf("create %s bucket: %w", bucket, err)
	}
	return &KVBackend{kv: kv}, nil
}

func getOrCreateBucket(ctx context.Context, js jetstream.JetStream, name string) (jetstream.KeyValue, error) {
	kv, err := js.KeyValue(ctx, name)
	if err == nil {
		return kv, nil
	}
	// Bucket doesn't exist, create it
	return js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      name,
		Description: fmt.Sprintf("Intake %s storage", strings.ToLower(name)),
		History:     5, // Keep last 5 revisions
	})
}

func (b *KVBackend) Get(ctx context.Context, key string) ([]byte, error) {
	entry, err := b.kv.Get(ctx, key)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return entry.Value(), nil
}

func (b *KVBackend) Put(ctx context.Context, key string, value []byte) error {
	if _, err := b.kv.Put(ctx, key, value); err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

func (b *KVBackend) Delete(ctx context.Context, key string) error {
	if err := b.kv.Delete(ctx, key); err != nil && !isNotFound(err) {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// Close drains the connection when the backend dialed it itself.
func (b *KVBackend) Close() error {
	if b.nc == nil {
		return nil
	}
	return b.nc.Drain()
}

// isNotFound checks if an error indicates a key was not found. Deleted keys
// leave a tombstone that also reads as not found.
func isNotFound(err error) bool {
	return errors.Is(err, jetstream.ErrKeyNotFound) ||
		errors.Is(err, jetstream.ErrKeyDeleted) ||
		(err != nil && strings.Contains(err.Error(), "key not found"))
}
